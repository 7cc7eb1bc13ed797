package protocol

import (
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

var (
	preamblePulse = Pulse{Level0: Low, Duration0: 1500, Level1: High, Duration1: 500}
	startPulse    = Pulse{Level0: High, Duration0: 30000, Level1: High, Duration1: 0}
)

// bitPulses returns one (low, high) pulse per bit of value, MSB first.
func bitPulses(value uint16, bits int) []Pulse {
	var out []Pulse
	for i := bits - 1; i >= 0; i-- {
		low := uint32(BitZeroLow)
		if value&(1<<i) != 0 {
			low = BitOneLow
		}
		out = append(out, Pulse{Level0: Low, Duration0: low, Level1: High, Duration1: BitPeriod - low})
	}
	return out
}

func byteFrame(b byte) []Pulse {
	return append([]Pulse{startPulse}, bitPulses(uint16(b), 8)...)
}

func wordFrame(w uint16) []Pulse {
	return append([]Pulse{preamblePulse, startPulse}, bitPulses(w, 16)...)
}

type recorder struct {
	values []Value
}

func (r *recorder) handle(v Value) { r.values = append(r.values, v) }

func newTestDecoder(clock *fakeClock) (*Decoder, *recorder) {
	rec := &recorder{}
	d := NewDecoder(DefaultTiming(), WithClock(clock.Now), WithHandler(rec.handle))
	return d, rec
}

func TestNewDecoderInitialState(t *testing.T) {
	d := NewDecoder(DefaultTiming())
	if d.State() != SeekingStart {
		t.Errorf("expected SEEKING_START, got %s", d.State())
	}
	if d.Stats() != (Stats{}) {
		t.Errorf("expected zero stats, got %+v", d.Stats())
	}
}

func TestDecodeSingleByte(t *testing.T) {
	clock := newFakeClock()
	d, rec := newTestDecoder(clock)

	d.ProcessAll(byteFrame(0xA5))

	if len(rec.values) != 1 {
		t.Fatalf("expected 1 value, got %d", len(rec.values))
	}
	v := rec.values[0]
	if v.Kind != KindByte || v.Byte != 0xA5 || v.Word != 0 {
		t.Errorf("expected byte 0xA5, got %+v", v)
	}
	if !v.Time.Equal(clock.Now()) {
		t.Errorf("expected time %v, got %v", clock.Now(), v.Time)
	}
	if d.State() != SeekingStart {
		t.Errorf("expected SEEKING_START after frame, got %s", d.State())
	}
}

func TestDecodeByteThenWord(t *testing.T) {
	clock := newFakeClock()
	d, rec := newTestDecoder(clock)

	d.ProcessAll(byteFrame(0xA5))
	clock.Advance(20 * time.Millisecond)
	d.ProcessAll(wordFrame(0x1234))

	if len(rec.values) != 2 {
		t.Fatalf("expected 2 values, got %d", len(rec.values))
	}
	if rec.values[0].Kind != KindByte || rec.values[0].Byte != 0xA5 {
		t.Errorf("value 0: expected byte 0xA5, got %v", rec.values[0])
	}
	if rec.values[1].Kind != KindWord || rec.values[1].Word != 0x1234 || rec.values[1].Byte != 0 {
		t.Errorf("value 1: expected word 0x1234, got %+v", rec.values[1])
	}
}

func TestDecodePreambleSelectsWordWidth(t *testing.T) {
	clock := newFakeClock()
	d, rec := newTestDecoder(clock)

	// Preamble then a 16-bit frame: after 8 bits the frame is still open.
	d.Process(preamblePulse)
	d.Process(startPulse)
	d.ProcessAll(bitPulses(0xFF, 8))

	if d.State() != CollectingBits {
		t.Errorf("expected COLLECTING_BITS after 8 of 16 bits, got %s", d.State())
	}
	if len(rec.values) != 0 {
		t.Errorf("expected no values, got %d", len(rec.values))
	}

	d.ProcessAll(bitPulses(0xFF, 8))
	if d.State() != SeekingStart {
		t.Errorf("expected SEEKING_START after 16 bits, got %s", d.State())
	}
}

func TestDecodeWithoutPreambleIsByteWidth(t *testing.T) {
	clock := newFakeClock()
	d, _ := newTestDecoder(clock)

	d.Process(startPulse)
	d.ProcessAll(bitPulses(0x01, 8))

	if d.State() != SeekingStart {
		t.Errorf("expected 8-bit frame to complete, got %s", d.State())
	}
	if d.Stats().Bytes != 1 {
		t.Errorf("expected 1 byte, got %d", d.Stats().Bytes)
	}
}

func TestPreambleFlagIsOneShot(t *testing.T) {
	clock := newFakeClock()
	d, rec := newTestDecoder(clock)

	d.ProcessAll(byteFrame(0x10))
	d.ProcessAll(wordFrame(0xBEEF))
	// Next start without preamble is 8 bits again.
	clock.Advance(TransactionReset)
	d.ProcessAll(byteFrame(0x20))

	if len(rec.values) != 3 {
		t.Fatalf("expected 3 values, got %d", len(rec.values))
	}
	if rec.values[2].Kind != KindByte || rec.values[2].Byte != 0x20 {
		t.Errorf("expected byte 0x20, got %v", rec.values[2])
	}
}

func TestDuplicateByteSuppressedWithinTransaction(t *testing.T) {
	clock := newFakeClock()
	d, rec := newTestDecoder(clock)

	d.ProcessAll(byteFrame(0x42))
	clock.Advance(40 * time.Millisecond)
	d.ProcessAll(byteFrame(0x42))

	if len(rec.values) != 1 {
		t.Fatalf("expected 1 value, got %d", len(rec.values))
	}
	if d.Stats().Suppressed != 1 {
		t.Errorf("expected 1 suppressed, got %d", d.Stats().Suppressed)
	}
}

func TestDuplicateWordSuppressedWithinTransaction(t *testing.T) {
	clock := newFakeClock()
	d, rec := newTestDecoder(clock)

	d.ProcessAll(byteFrame(0x42))
	d.ProcessAll(wordFrame(0x0102))
	d.ProcessAll(wordFrame(0x0102))

	if len(rec.values) != 2 {
		t.Fatalf("expected 2 values, got %d", len(rec.values))
	}
	if d.Stats().Suppressed != 1 {
		t.Errorf("expected 1 suppressed, got %d", d.Stats().Suppressed)
	}
}

func TestSilenceStartsNewTransaction(t *testing.T) {
	tests := []struct {
		name    string
		silence time.Duration
		want    int
	}{
		{"short gap", 79 * time.Millisecond, 1},
		{"exact reset window", 80 * time.Millisecond, 2},
		{"long gap", 500 * time.Millisecond, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			d, rec := newTestDecoder(clock)

			d.ProcessAll(byteFrame(0x42))
			clock.Advance(tt.silence)
			d.ProcessAll(byteFrame(0x42))

			if len(rec.values) != tt.want {
				t.Errorf("expected %d values, got %d", tt.want, len(rec.values))
			}
		})
	}
}

func TestWordWithoutByteDropped(t *testing.T) {
	clock := newFakeClock()
	d, rec := newTestDecoder(clock)

	d.ProcessAll(wordFrame(0x1234))

	if len(rec.values) != 0 {
		t.Fatalf("expected no values, got %d", len(rec.values))
	}
	if d.Stats().SpuriousWords != 1 {
		t.Errorf("expected 1 spurious word, got %d", d.Stats().SpuriousWords)
	}
	if d.State() != SeekingStart {
		t.Errorf("expected SEEKING_START, got %s", d.State())
	}
}

func TestWordAfterBoundaryNeedsFreshByte(t *testing.T) {
	clock := newFakeClock()
	d, rec := newTestDecoder(clock)

	d.ProcessAll(byteFrame(0x42))
	clock.Advance(100 * time.Millisecond)
	d.ProcessAll(wordFrame(0x1234))

	if len(rec.values) != 1 {
		t.Fatalf("expected only the byte, got %d values", len(rec.values))
	}
}

func TestPreambleIgnoredWhileCollecting(t *testing.T) {
	clock := newFakeClock()
	d, rec := newTestDecoder(clock)

	d.Process(startPulse)
	// A 1.5ms low inside a frame is a short low phase: bit 1.
	d.Process(preamblePulse)
	d.ProcessAll(bitPulses(0, 7))

	if len(rec.values) != 1 {
		t.Fatalf("expected 1 value, got %d", len(rec.values))
	}
	if rec.values[0].Byte != 0x80 {
		t.Errorf("expected byte 0x80, got 0x%02X", rec.values[0].Byte)
	}
	if d.Stats().Preambles != 0 {
		t.Errorf("expected no preambles, got %d", d.Stats().Preambles)
	}
}

func TestStartRecordCarriesFirstBit(t *testing.T) {
	clock := newFakeClock()
	d, rec := newTestDecoder(clock)

	// Capture pairs the 30ms high with the first bit's low phase.
	d.Process(Pulse{Level0: High, Duration0: 30000, Level1: Low, Duration1: BitOneLow})
	d.ProcessAll(bitPulses(0x25, 7))

	if len(rec.values) != 1 {
		t.Fatalf("expected 1 value, got %d", len(rec.values))
	}
	if rec.values[0].Byte != 0xA5 {
		t.Errorf("expected byte 0xA5, got 0x%02X", rec.values[0].Byte)
	}
}

func TestTruncatedFrameOverwritten(t *testing.T) {
	clock := newFakeClock()
	d, rec := newTestDecoder(clock)

	d.Process(startPulse)
	d.ProcessAll(bitPulses(0x7, 3))
	d.ProcessAll(byteFrame(0x5A))

	if len(rec.values) != 1 {
		t.Fatalf("expected 1 value, got %d", len(rec.values))
	}
	if rec.values[0].Byte != 0x5A {
		t.Errorf("expected byte 0x5A, got 0x%02X", rec.values[0].Byte)
	}
	if d.Stats().Truncated != 1 {
		t.Errorf("expected 1 truncated frame, got %d", d.Stats().Truncated)
	}
}

func TestNoiseDiscarded(t *testing.T) {
	clock := newFakeClock()
	d, rec := newTestDecoder(clock)

	noise := []Pulse{
		{Level0: High, Duration0: 150, Level1: Low, Duration1: 200},
		{Level0: Low, Duration0: 5000, Level1: High, Duration1: 12000},
		{Level0: High, Duration0: 40000, Level1: Low, Duration1: 100},
	}
	d.ProcessAll(noise)

	if len(rec.values) != 0 {
		t.Errorf("expected no values, got %d", len(rec.values))
	}
	if d.State() != SeekingStart {
		t.Errorf("expected SEEKING_START, got %s", d.State())
	}
	if d.Stats().Discarded != len(noise) {
		t.Errorf("expected %d discarded, got %d", len(noise), d.Stats().Discarded)
	}
}

func TestHighOnlyPulseSkippedWhileCollecting(t *testing.T) {
	clock := newFakeClock()
	d, rec := newTestDecoder(clock)

	d.Process(startPulse)
	d.ProcessAll(bitPulses(0xC, 4))
	d.Process(Pulse{Level0: High, Duration0: 1000, Level1: High, Duration1: 1000})
	d.ProcessAll(bitPulses(0x3, 4))

	if len(rec.values) != 1 || rec.values[0].Byte != 0xC3 {
		t.Fatalf("expected byte 0xC3, got %v", rec.values)
	}
}

func TestSetHandlerLastRegistrationWins(t *testing.T) {
	clock := newFakeClock()
	d := NewDecoder(DefaultTiming(), WithClock(clock.Now))

	// No handler: decoding still works.
	d.ProcessAll(byteFrame(0x01))

	first, second := &recorder{}, &recorder{}
	d.SetHandler(first.handle)
	d.SetHandler(second.handle)

	clock.Advance(TransactionReset)
	d.ProcessAll(byteFrame(0x02))

	if len(first.values) != 0 {
		t.Errorf("replaced handler should not be called, got %d", len(first.values))
	}
	if len(second.values) != 1 || second.values[0].Byte != 0x02 {
		t.Errorf("expected byte 0x02 on second handler, got %v", second.values)
	}
}

func TestStatsCounting(t *testing.T) {
	clock := newFakeClock()
	d, _ := newTestDecoder(clock)

	d.ProcessAll(byteFrame(0x42))
	d.ProcessAll(wordFrame(0x1234))

	s := d.Stats()
	if s.Pulses != 9+18 {
		t.Errorf("expected %d pulses, got %d", 9+18, s.Pulses)
	}
	if s.Frames != 2 {
		t.Errorf("expected 2 frames, got %d", s.Frames)
	}
	if s.Preambles != 1 {
		t.Errorf("expected 1 preamble, got %d", s.Preambles)
	}
	if s.Bytes != 1 || s.Words != 1 {
		t.Errorf("expected 1 byte and 1 word, got %d/%d", s.Bytes, s.Words)
	}
}

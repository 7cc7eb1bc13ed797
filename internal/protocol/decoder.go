package protocol

import (
	"time"

	"github.com/rs/zerolog"
)

// Decoder reconstructs byte and word frames from captured pulses.
// It is owned by a single goroutine and is not safe for concurrent use.
type Decoder struct {
	timing  Timing
	now     func() time.Time
	log     zerolog.Logger
	handler Handler

	state        State
	expectedBits int
	value        uint16
	bitCount     int
	sawPreamble  bool
	gotByte      bool
	gotWord      bool
	lastActivity time.Time

	stats Stats
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithClock sets the clock used for transaction boundaries.
func WithClock(now func() time.Time) Option {
	return func(d *Decoder) { d.now = now }
}

// WithLogger sets the diagnostics logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Decoder) { d.log = l }
}

// WithHandler registers the initial value handler.
func WithHandler(h Handler) Option {
	return func(d *Decoder) { d.handler = h }
}

// NewDecoder creates a decoder in SEEKING_START with all counters zero.
func NewDecoder(timing Timing, opts ...Option) *Decoder {
	d := &Decoder{
		timing:       timing,
		now:          time.Now,
		log:          zerolog.Nop(),
		state:        SeekingStart,
		expectedBits: 8,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetHandler replaces the registered handler. Passing nil unregisters it.
func (d *Decoder) SetHandler(h Handler) {
	d.handler = h
}

// State returns the current decoder state.
func (d *Decoder) State() State {
	return d.state
}

// Stats returns a copy of the decoder counters.
func (d *Decoder) Stats() Stats {
	return d.stats
}

// ProcessAll feeds pulses in order.
func (d *Decoder) ProcessAll(pulses []Pulse) {
	for _, p := range pulses {
		d.Process(p)
	}
}

// Process advances the state machine by one pulse. Pulses that match no
// window are discarded without error.
func (d *Decoder) Process(p Pulse) {
	now := d.now()
	d.stats.Pulses++

	// Transaction boundary: a long silence since the last completed frame.
	if now.Sub(d.lastActivity) >= d.timing.TransactionReset {
		d.gotByte = false
		d.gotWord = false
	}

	if d.state == SeekingStart && d.timing.Preamble.matches(p, Low) {
		d.sawPreamble = true
		d.stats.Preambles++
		d.log.Debug().Stringer("pulse", p).Msg("preamble low pulse")
		return
	}

	started := d.timing.Start.matches(p, High)
	if started {
		if d.state == CollectingBits && d.bitCount > 0 {
			d.stats.Truncated++
			d.log.Debug().
				Int("bits", d.bitCount).
				Int("expected", d.expectedBits).
				Msg("truncated frame overwritten by start pulse")
		}
		d.expectedBits = 8
		if d.sawPreamble {
			d.expectedBits = 16
		}
		d.sawPreamble = false
		d.bitCount = 0
		d.value = 0
		d.state = CollectingBits
		d.stats.Frames++
		d.log.Debug().Int("bits", d.expectedBits).Msg("start pulse")
		// The start record may also carry the first bit's low phase.
	}

	if d.state == SeekingStart {
		d.stats.Discarded++
		return
	}

	low, ok := p.LowDuration()
	if !ok {
		if !started {
			d.stats.Discarded++
		}
		return
	}

	d.value = d.value<<1 | d.timing.Classify(low)
	d.bitCount++

	if d.bitCount == d.expectedBits {
		d.complete(now)
	}
}

func (d *Decoder) complete(now time.Time) {
	d.lastActivity = now

	switch {
	case d.expectedBits == 8 && !d.gotByte:
		d.gotByte = true
		d.stats.Bytes++
		v := Value{Kind: KindByte, Byte: uint8(d.value), Time: now}
		d.log.Info().Msgf("received byte: 0x%02X", v.Byte)
		d.emit(v)
	case d.expectedBits == 16 && d.gotByte && !d.gotWord:
		d.gotWord = true
		d.stats.Words++
		v := Value{Kind: KindWord, Word: d.value, Time: now}
		d.log.Info().Msgf("received 16-bit value: 0x%04X", v.Word)
		d.emit(v)
	case d.expectedBits == 16 && !d.gotByte:
		d.stats.SpuriousWords++
		d.log.Debug().Msgf("dropped word 0x%04X without preceding byte", d.value)
	default:
		d.stats.Suppressed++
		d.log.Debug().Int("bits", d.expectedBits).Msg("duplicate frame suppressed")
	}

	d.bitCount = 0
	d.value = 0
	d.state = SeekingStart
}

func (d *Decoder) emit(v Value) {
	if d.handler != nil {
		d.handler(v)
	}
}

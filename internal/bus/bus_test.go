package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vevorbus/vevor-bus/internal/gpio"
	"github.com/vevorbus/vevor-bus/internal/protocol"
)

var (
	preamble = protocol.Pulse{Level0: protocol.Low, Duration0: 1500, Level1: protocol.High, Duration1: 500}
	start    = protocol.Pulse{Level0: protocol.High, Duration0: 30000, Level1: protocol.High}
)

func bits(value uint16, n int) []protocol.Pulse {
	var out []protocol.Pulse
	for i := n - 1; i >= 0; i-- {
		low := uint32(protocol.BitZeroLow)
		if value&(1<<i) != 0 {
			low = protocol.BitOneLow
		}
		out = append(out, protocol.Pulse{Level0: protocol.Low, Duration0: low, Level1: protocol.High, Duration1: protocol.BitPeriod - low})
	}
	return out
}

func fixedClock() func() time.Time {
	t := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestReceiverDecodesAndReleases(t *testing.T) {
	byteFrame := append([]protocol.Pulse{start}, bits(0xA5, 8)...)
	wordFrame := append([]protocol.Pulse{preamble, start}, bits(0x1234, 16)...)
	src := gpio.NewFakeSource(byteFrame, wordFrame)

	var got []protocol.Value
	dec := protocol.NewDecoder(protocol.DefaultTiming(),
		protocol.WithClock(fixedClock()),
		protocol.WithHandler(func(v protocol.Value) { got = append(got, v) }),
	)
	var reports []protocol.Stats
	r := NewReceiver(src, dec, func(s protocol.Stats) { reports = append(reports, s) })

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if src.Released != 2 {
		t.Errorf("expected 2 released batches, got %d", src.Released)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 values, got %d", len(got))
	}
	if got[0].Kind != protocol.KindByte || got[0].Byte != 0xA5 {
		t.Errorf("expected byte 0xA5, got %v", got[0])
	}
	if got[1].Kind != protocol.KindWord || got[1].Word != 0x1234 {
		t.Errorf("expected word 0x1234, got %v", got[1])
	}
	if len(reports) != 2 || reports[1].Words != 1 {
		t.Errorf("expected stats after each batch, got %+v", reports)
	}
}

func TestReceiverReturnsSourceError(t *testing.T) {
	src := gpio.NewFakeSource()
	src.ReceiveError = errors.New("capture failed")
	r := NewReceiver(src, protocol.NewDecoder(protocol.DefaultTiming()), nil)

	err := r.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, src.ReceiveError) {
		t.Errorf("expected wrapped source error, got %v", err)
	}
}

func TestReceiverStopsOnCancel(t *testing.T) {
	lb := gpio.NewLoopback(1)
	defer lb.Close()
	r := NewReceiver(lb, protocol.NewDecoder(protocol.DefaultTiming()), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil on cancel, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("receiver did not stop")
	}
}

func TestReceiverReleasesOnHandlerPanic(t *testing.T) {
	src := gpio.NewFakeSource(append([]protocol.Pulse{start}, bits(0x01, 8)...))
	dec := protocol.NewDecoder(protocol.DefaultTiming(),
		protocol.WithClock(fixedClock()),
		protocol.WithHandler(func(protocol.Value) { panic("consumer bug") }),
	)
	r := NewReceiver(src, dec, nil)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		r.Run(context.Background())
	}()

	if src.Released != 1 {
		t.Errorf("expected batch released on panic, got %d", src.Released)
	}
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	var a, b []protocol.Value
	d := NewDispatcher(8,
		func(v protocol.Value) { a = append(a, v) },
		func(v protocol.Value) { b = append(b, v) },
	)

	d.Handle(protocol.Value{Kind: protocol.KindByte, Byte: 1})
	d.Handle(protocol.Value{Kind: protocol.KindWord, Word: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx) // drains queued values before returning

	if len(a) != 2 || len(b) != 2 {
		t.Fatalf("expected 2 values per consumer, got %d and %d", len(a), len(b))
	}
	if a[0].Byte != 1 || a[1].Word != 2 {
		t.Errorf("unexpected order: %v", a)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	d := NewDispatcher(1)
	d.Handle(protocol.Value{Kind: protocol.KindByte, Byte: 1})
	d.Handle(protocol.Value{Kind: protocol.KindByte, Byte: 2})

	if d.Dropped() != 1 {
		t.Errorf("expected 1 dropped, got %d", d.Dropped())
	}
}

func TestTransmitterEncodes(t *testing.T) {
	sink := gpio.NewFakeSink()
	tx := NewTransmitter(sink, protocol.DefaultTiming())
	var sent []byte
	tx.OnSent = func(b byte) { sent = append(sent, b) }

	if err := tx.SendByte(context.Background(), 0x3C); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := sink.Transmissions()
	if len(got) != 1 || len(got[0]) != protocol.EncodedFrameLen {
		t.Fatalf("expected one %d-pulse transmission, got %v", protocol.EncodedFrameLen, got)
	}
	want := protocol.EncodeByte(0x3C)
	for i := range want {
		if got[0][i] != want[i] {
			t.Errorf("pulse %d: expected %v, got %v", i, want[i], got[0][i])
		}
	}
	if len(sent) != 1 || sent[0] != 0x3C {
		t.Errorf("expected OnSent(0x3C), got %v", sent)
	}
}

func TestTransmitterError(t *testing.T) {
	sink := gpio.NewFakeSink()
	sink.TransmitError = errors.New("line busy")
	tx := NewTransmitter(sink, protocol.DefaultTiming())
	called := false
	tx.OnSent = func(byte) { called = true }

	err := tx.SendByte(context.Background(), 0x01)
	if !errors.Is(err, sink.TransmitError) {
		t.Errorf("expected wrapped sink error, got %v", err)
	}
	if called {
		t.Error("OnSent should not run on failure")
	}
}

func TestLoopbackEndToEnd(t *testing.T) {
	lb := gpio.NewLoopback(4)
	tx := NewTransmitter(lb, protocol.DefaultTiming())

	var got []protocol.Value
	dec := protocol.NewDecoder(protocol.DefaultTiming(),
		protocol.WithClock(fixedClock()),
		protocol.WithHandler(func(v protocol.Value) { got = append(got, v) }),
	)

	ctx := context.Background()
	// Retransmissions within one transaction report once.
	for i := 0; i < 3; i++ {
		if err := tx.SendByte(ctx, 0x9C); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	lb.Close()

	r := NewReceiver(lb, dec, nil)
	if err := r.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 1 || got[0].Byte != 0x9C {
		t.Errorf("expected one byte 0x9C, got %v", got)
	}
	if dec.Stats().Suppressed != 2 {
		t.Errorf("expected 2 suppressed, got %d", dec.Stats().Suppressed)
	}
}

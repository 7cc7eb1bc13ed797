package protocol

import (
	"strings"
	"testing"
	"time"
)

func TestClassifyThreshold(t *testing.T) {
	timing := DefaultTiming()
	if timing.Threshold() != 6000 {
		t.Fatalf("expected threshold 6000, got %d", timing.Threshold())
	}

	for d := uint32(0); d < 6000; d++ {
		if got := timing.Classify(d); got != 1 {
			t.Fatalf("low %dus: expected bit 1, got %d", d, got)
		}
	}
	for d := uint32(6000); d <= 65535; d++ {
		if got := timing.Classify(d); got != 0 {
			t.Fatalf("low %dus: expected bit 0, got %d", d, got)
		}
	}
}

func TestWindowContainsIsExclusive(t *testing.T) {
	w := Window{Min: 800, Max: 3000}
	tests := []struct {
		us   uint32
		want bool
	}{
		{0, false},
		{800, false},
		{801, true},
		{1500, true},
		{2999, true},
		{3000, false},
		{10000, false},
	}
	for _, tt := range tests {
		if got := w.Contains(tt.us); got != tt.want {
			t.Errorf("Contains(%d): expected %v, got %v", tt.us, tt.want, got)
		}
	}
}

func TestWindowMatchesEitherHalf(t *testing.T) {
	start := DefaultTiming().Start

	if !start.matches(Pulse{Level0: High, Duration0: 30000, Level1: Low, Duration1: 4000}, High) {
		t.Error("expected match on first half")
	}
	if !start.matches(Pulse{Level0: Low, Duration0: 4000, Level1: High, Duration1: 30000}, High) {
		t.Error("expected match on second half")
	}
	if start.matches(Pulse{Level0: Low, Duration0: 30000, Level1: Low, Duration1: 30000}, High) {
		t.Error("low halves must not match a high window")
	}
}

func TestDefaultTimingValid(t *testing.T) {
	if err := DefaultTiming().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTimingValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Timing)
		want   string
	}{
		{"empty preamble", func(tm *Timing) { tm.Preamble = Window{Min: 3000, Max: 800} }, "preamble window"},
		{"empty start", func(tm *Timing) { tm.Start = Window{Min: 30000, Max: 30000} }, "start window"},
		{"bit order", func(tm *Timing) { tm.BitOneLow = 9000 }, "bit one low"},
		{"period", func(tm *Timing) { tm.BitPeriod = 7000 }, "bit period"},
		{"reset", func(tm *Timing) { tm.TransactionReset = 0 }, "transaction reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timing := DefaultTiming()
			tt.modify(&timing)
			err := timing.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestTimingConstants(t *testing.T) {
	timing := DefaultTiming()
	if timing.Preamble.Min != 800 || timing.Preamble.Max != 3000 {
		t.Errorf("unexpected preamble window %+v", timing.Preamble)
	}
	if timing.Start.Min != 28000 || timing.Start.Max != 32000 {
		t.Errorf("unexpected start window %+v", timing.Start)
	}
	if timing.TransactionReset != 80*time.Millisecond {
		t.Errorf("unexpected transaction reset %v", timing.TransactionReset)
	}
}

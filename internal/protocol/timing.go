package protocol

import (
	"errors"
	"fmt"
	"time"
)

// Nominal timing of the bus, in microseconds unless noted.
const (
	PreambleLowMin = 800
	PreambleLowMax = 3000

	StartHighMin = 28000
	StartHighMax = 32000

	BitOneLow  = 4000
	BitZeroLow = 8000
	BitPeriod  = 12100

	SyncLong  = 10000
	SyncShort = 5000

	TransactionReset = 80 * time.Millisecond
)

// EncodedFrameLen is the number of pulses produced for one byte.
const EncodedFrameLen = 2 + 8

// Window is an exclusive (Min, Max) range of microseconds.
type Window struct {
	Min uint32
	Max uint32
}

// Contains reports whether Min < us < Max.
func (w Window) Contains(us uint32) bool {
	return us > w.Min && us < w.Max
}

// matches reports whether either half of p has the given level and a
// duration inside the window.
func (w Window) matches(p Pulse, level Level) bool {
	return (p.Level0 == level && w.Contains(p.Duration0)) ||
		(p.Level1 == level && w.Contains(p.Duration1))
}

// Timing is the table of windows shared by the encoder and decoder.
type Timing struct {
	// Preamble is the low pulse that marks the next frame as 16 bits wide.
	Preamble Window
	// Start is the high pulse that begins a frame's bit field.
	Start Window
	// BitOneLow and BitZeroLow are the nominal low phases of a 1 and a 0.
	BitOneLow  uint32
	BitZeroLow uint32
	// BitPeriod is the total low+high length of an encoded bit.
	BitPeriod uint32
	// SyncLong and SyncShort are the encoder's leading high halves.
	SyncLong  uint32
	SyncShort uint32
	// TransactionReset is the silence after which duplicate suppression clears.
	TransactionReset time.Duration
}

// DefaultTiming returns the nominal bus timing.
func DefaultTiming() Timing {
	return Timing{
		Preamble:         Window{Min: PreambleLowMin, Max: PreambleLowMax},
		Start:            Window{Min: StartHighMin, Max: StartHighMax},
		BitOneLow:        BitOneLow,
		BitZeroLow:       BitZeroLow,
		BitPeriod:        BitPeriod,
		SyncLong:         SyncLong,
		SyncShort:        SyncShort,
		TransactionReset: TransactionReset,
	}
}

// Threshold is the low-phase duration separating a 1 (below) from a 0.
func (t Timing) Threshold() uint32 {
	return (t.BitOneLow + t.BitZeroLow) / 2
}

// Classify returns the bit encoded by a low phase of the given duration.
func (t Timing) Classify(lowUs uint32) uint16 {
	if lowUs < t.Threshold() {
		return 1
	}
	return 0
}

// Validate checks that the table can classify and encode bits.
func (t Timing) Validate() error {
	var errs []error
	if t.Preamble.Min >= t.Preamble.Max {
		errs = append(errs, fmt.Errorf("preamble window %d..%d is empty", t.Preamble.Min, t.Preamble.Max))
	}
	if t.Start.Min >= t.Start.Max {
		errs = append(errs, fmt.Errorf("start window %d..%d is empty", t.Start.Min, t.Start.Max))
	}
	if t.BitOneLow >= t.BitZeroLow {
		errs = append(errs, fmt.Errorf("bit one low %d must be shorter than bit zero low %d", t.BitOneLow, t.BitZeroLow))
	}
	if t.BitZeroLow >= t.BitPeriod {
		errs = append(errs, fmt.Errorf("bit zero low %d must be shorter than bit period %d", t.BitZeroLow, t.BitPeriod))
	}
	if t.TransactionReset <= 0 {
		errs = append(errs, errors.New("transaction reset must be positive"))
	}
	return errors.Join(errs...)
}

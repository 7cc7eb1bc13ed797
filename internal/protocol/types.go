// Package protocol contains the pure timing logic of the Vevor PWM bus.
// This package has NO I/O (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via a clock function.
package protocol

import (
	"fmt"
	"time"
)

// Level is the electrical level of one half of a pulse.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "H"
	}
	return "L"
}

// Pulse is one capture record: two consecutive (level, duration) halves.
// Durations are in microseconds.
type Pulse struct {
	Level0    Level
	Duration0 uint32
	Level1    Level
	Duration1 uint32
}

// LowDuration returns the duration of the first low half, if any.
func (p Pulse) LowDuration() (uint32, bool) {
	if p.Level0 == Low {
		return p.Duration0, true
	}
	if p.Level1 == Low {
		return p.Duration1, true
	}
	return 0, false
}

func (p Pulse) String() string {
	return fmt.Sprintf("%s%d/%s%d", p.Level0, p.Duration0, p.Level1, p.Duration1)
}

// Kind tells which width of value was decoded.
type Kind string

const (
	KindByte Kind = "BYTE"
	KindWord Kind = "WORD"
)

// Value is a decoded frame. Exactly one of Byte or Word is meaningful,
// selected by Kind; the other is zero.
type Value struct {
	Kind Kind
	Byte uint8
	Word uint16
	Time time.Time
}

func (v Value) String() string {
	if v.Kind == KindWord {
		return fmt.Sprintf("word 0x%04X", v.Word)
	}
	return fmt.Sprintf("byte 0x%02X", v.Byte)
}

// Handler receives decoded values. It is called synchronously from the
// decoding loop and must return quickly.
type Handler func(Value)

// State is the frame decoder state.
type State int

const (
	SeekingStart State = iota
	CollectingBits
)

func (s State) String() string {
	switch s {
	case SeekingStart:
		return "SEEKING_START"
	case CollectingBits:
		return "COLLECTING_BITS"
	default:
		return "UNKNOWN"
	}
}

// Stats counts decoder activity since construction.
type Stats struct {
	Pulses        int
	Discarded     int
	Preambles     int
	Frames        int
	Truncated     int
	Bytes         int
	Words         int
	Suppressed    int
	SpuriousWords int
}

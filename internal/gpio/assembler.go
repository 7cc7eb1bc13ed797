package gpio

import "github.com/vevorbus/vevor-bus/internal/protocol"

// Phase is a single level held for a duration in microseconds.
type Phase struct {
	Level    protocol.Level
	Duration uint32
}

// Phases flattens pulses into their halves, in order.
func Phases(pulses []protocol.Pulse) []Phase {
	out := make([]Phase, 0, len(pulses)*2)
	for _, p := range pulses {
		out = append(out,
			Phase{Level: p.Level0, Duration: p.Duration0},
			Phase{Level: p.Level1, Duration: p.Duration1},
		)
	}
	return out
}

// Assembler pairs consecutive phases into two-half capture records the way
// the capture peripheral does. Adjacent phases of the same level merge, and
// zero-length phases are ignored.
// Not safe for concurrent use.
type Assembler struct {
	items      []protocol.Pulse
	pending    Phase
	hasPending bool
}

// Add appends a phase.
func (a *Assembler) Add(level protocol.Level, us uint32) {
	if us == 0 {
		return
	}

	if a.hasPending {
		if a.pending.Level == level {
			a.pending.Duration += us
			return
		}
		a.items = append(a.items, protocol.Pulse{
			Level0:    a.pending.Level,
			Duration0: a.pending.Duration,
			Level1:    level,
			Duration1: us,
		})
		a.hasPending = false
		return
	}

	if n := len(a.items); n > 0 && a.items[n-1].Level1 == level {
		a.items[n-1].Duration1 += us
		return
	}

	a.pending = Phase{Level: level, Duration: us}
	a.hasPending = true
}

// Len returns the number of completed records.
func (a *Assembler) Len() int {
	return len(a.items)
}

// Drain appends completed records to dst and keeps any open half.
func (a *Assembler) Drain(dst []protocol.Pulse) []protocol.Pulse {
	dst = append(dst, a.items...)
	a.items = a.items[:0]
	return dst
}

// Flush appends all records to dst, closing an open half with a
// zero-length half of the opposite level, and resets the assembler.
func (a *Assembler) Flush(dst []protocol.Pulse) []protocol.Pulse {
	if a.hasPending {
		a.items = append(a.items, protocol.Pulse{
			Level0:    a.pending.Level,
			Duration0: a.pending.Duration,
			Level1:    !a.pending.Level,
		})
		a.hasPending = false
	}
	return a.Drain(dst)
}

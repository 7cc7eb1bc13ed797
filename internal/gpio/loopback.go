package gpio

import (
	"context"
	"sync"

	"github.com/vevorbus/vevor-bus/internal/protocol"
)

// Loopback is a wire model connecting a Sink to a Source. A transmitted
// sequence reaches the receiver as the capture peripheral would record it:
// same-level halves merge, and leading low halves are invisible because an
// idle-low line produces no edge for them.
type Loopback struct {
	mu        sync.Mutex
	batches   chan *Batch
	done      chan struct{}
	closeOnce sync.Once
}

// NewLoopback creates a loopback holding up to depth undelivered batches.
func NewLoopback(depth int) *Loopback {
	if depth < 1 {
		depth = 1
	}
	return &Loopback{
		batches: make(chan *Batch, depth),
		done:    make(chan struct{}),
	}
}

// Transmit converts pulses to one captured batch and queues it.
func (l *Loopback) Transmit(ctx context.Context, pulses []protocol.Pulse) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.done:
		return ErrClosed
	default:
	}

	var asm Assembler
	edge := false
	for _, ph := range Phases(pulses) {
		if !edge && ph.Level == protocol.Low {
			continue
		}
		edge = true
		asm.Add(ph.Level, ph.Duration)
	}
	captured := asm.Flush(nil)
	if len(captured) == 0 {
		return nil
	}

	select {
	case l.batches <- NewBatch(captured, nil):
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next captured batch. Batches queued before Close are
// still delivered.
func (l *Loopback) Receive(ctx context.Context) (*Batch, error) {
	select {
	case b := <-l.batches:
		return b, nil
	default:
	}

	select {
	case b := <-l.batches:
		return b, nil
	case <-l.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the loopback.
func (l *Loopback) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

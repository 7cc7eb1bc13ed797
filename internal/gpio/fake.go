package gpio

import (
	"context"
	"sync"

	"github.com/vevorbus/vevor-bus/internal/protocol"
)

// FakeSource is a test double that returns scripted batches.
type FakeSource struct {
	// Batches contains the scripted pulse groups, delivered in order.
	// Once exhausted, Receive returns ErrClosed.
	Batches [][]protocol.Pulse

	// ReceiveError, if set, will be returned by Receive.
	ReceiveError error

	// Released counts batches handed back via Release.
	Released int

	// Closed tracks if Close was called.
	Closed bool

	index int
}

// NewFakeSource creates a FakeSource with the given batches.
func NewFakeSource(batches ...[]protocol.Pulse) *FakeSource {
	return &FakeSource{Batches: batches}
}

// Receive returns the next scripted batch.
func (f *FakeSource) Receive(ctx context.Context) (*Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.ReceiveError != nil {
		return nil, f.ReceiveError
	}
	if f.Closed || f.index >= len(f.Batches) {
		return nil, ErrClosed
	}

	pulses := f.Batches[f.index]
	f.index++
	return NewBatch(pulses, func() { f.Released++ }), nil
}

// Close marks the source as closed.
func (f *FakeSource) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds the source to the first batch.
func (f *FakeSource) Reset() {
	f.index = 0
	f.Released = 0
	f.Closed = false
}

// FakeSink records transmitted sequences for test assertions.
// Safe for concurrent use.
type FakeSink struct {
	mu sync.Mutex

	// Sent contains every transmitted sequence.
	Sent [][]protocol.Pulse

	// TransmitError, if set, will be returned by Transmit.
	TransmitError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeSink creates a FakeSink for testing.
func NewFakeSink() *FakeSink {
	return &FakeSink{}
}

// Transmit records a copy of the sequence.
func (f *FakeSink) Transmit(ctx context.Context, pulses []protocol.Pulse) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.TransmitError != nil {
		return f.TransmitError
	}
	f.Sent = append(f.Sent, append([]protocol.Pulse(nil), pulses...))
	return nil
}

// Transmissions returns a copy of the recorded sequences.
func (f *FakeSink) Transmissions() [][]protocol.Pulse {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]protocol.Pulse(nil), f.Sent...)
}

// Close marks the sink as closed.
func (f *FakeSink) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

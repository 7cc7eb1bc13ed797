// Package gpio provides pulse capture and transmission with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake and loopback implementations allow testing without hardware.
package gpio

import (
	"context"
	"errors"

	"github.com/vevorbus/vevor-bus/internal/protocol"
)

// ErrClosed is returned by Receive once a source is closed or exhausted.
var ErrClosed = errors.New("gpio: source closed")

// Default pins (line offsets on the chip).
const (
	DefaultChip  = "gpiochip0"
	DefaultRXPin = 16
	DefaultTXPin = 17
)

// Source delivers captured pulses in arrival order.
type Source interface {
	// Receive blocks until the next batch is available.
	// The caller must Release the batch when done with it.
	Receive(ctx context.Context) (*Batch, error)

	// Close releases capture resources. Pending Receive calls return ErrClosed.
	Close() error
}

// Sink transmits pulse sequences on the wire.
type Sink interface {
	// Transmit sends the sequence as one unit; concurrent calls are serialized.
	Transmit(ctx context.Context, pulses []protocol.Pulse) error

	// Close releases transmit resources.
	Close() error
}

// Batch is a borrowed group of pulses. Its storage belongs to the source
// until Release is called.
type Batch struct {
	Pulses  []protocol.Pulse
	release func()
}

// NewBatch wraps pulses; release, if non-nil, runs once on Release.
func NewBatch(pulses []protocol.Pulse, release func()) *Batch {
	return &Batch{Pulses: pulses, release: release}
}

// Release hands the batch storage back to its source. Extra calls are no-ops.
func (b *Batch) Release() {
	if b.release != nil {
		b.release()
		b.release = nil
	}
	b.Pulses = nil
}

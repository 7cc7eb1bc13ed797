//go:build !linux

package gpio

import (
	"context"
	"errors"
	"time"

	"github.com/vevorbus/vevor-bus/internal/protocol"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// CaptureConfig configures the edge capture on the RX line.
type CaptureConfig struct {
	Chip          string
	Offset        int
	GlitchFilter  time.Duration
	IdleThreshold time.Duration
	MaxBatch      int
	QueueSize     int
}

// Capture is not available on non-Linux platforms.
type Capture struct{}

// NewCapture returns an error on non-Linux platforms.
func NewCapture(cfg CaptureConfig) (*Capture, error) {
	return nil, errUnsupported
}

// Receive is not implemented on non-Linux platforms.
func (c *Capture) Receive(ctx context.Context) (*Batch, error) {
	return nil, errUnsupported
}

// Dropped always returns zero on non-Linux platforms.
func (c *Capture) Dropped() int {
	return 0
}

// Close is not implemented on non-Linux platforms.
func (c *Capture) Close() error {
	return nil
}

// Transmitter is not available on non-Linux platforms.
type Transmitter struct{}

// NewTransmitter returns an error on non-Linux platforms.
func NewTransmitter(chip string, offset int) (*Transmitter, error) {
	return nil, errUnsupported
}

// Transmit is not implemented on non-Linux platforms.
func (t *Transmitter) Transmit(ctx context.Context, pulses []protocol.Pulse) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (t *Transmitter) Close() error {
	return nil
}

package bus

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/vevorbus/vevor-bus/internal/gpio"
	"github.com/vevorbus/vevor-bus/internal/protocol"
)

// Transmitter encodes bytes and hands them to a sink.
type Transmitter struct {
	sink   gpio.Sink
	timing protocol.Timing

	// OnSent, if set, is called after each successful transmission.
	OnSent func(b byte)
}

// NewTransmitter creates a transmitter using the given timing.
func NewTransmitter(sink gpio.Sink, timing protocol.Timing) *Transmitter {
	return &Transmitter{sink: sink, timing: timing}
}

// SendByte encodes b and transmits it as one unit.
func (t *Transmitter) SendByte(ctx context.Context, b byte) error {
	if err := t.sink.Transmit(ctx, t.timing.Encode(b)); err != nil {
		return fmt.Errorf("transmit 0x%02X: %w", b, err)
	}
	log.Info().Msgf("sent byte: 0x%02X", b)
	if t.OnSent != nil {
		t.OnSent(b)
	}
	return nil
}

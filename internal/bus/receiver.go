// Package bus runs the decoder against a pulse source and connects it to
// consumers and the transmit path.
package bus

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/vevorbus/vevor-bus/internal/gpio"
	"github.com/vevorbus/vevor-bus/internal/protocol"
)

// Receiver is the long-lived decoding task. It owns the decoder exclusively.
type Receiver struct {
	source  gpio.Source
	decoder *protocol.Decoder
	onBatch func(protocol.Stats)
}

// NewReceiver creates a receiver feeding source into decoder. onBatch, if
// non-nil, is called with fresh decoder counters after every batch.
func NewReceiver(source gpio.Source, decoder *protocol.Decoder, onBatch func(protocol.Stats)) *Receiver {
	return &Receiver{
		source:  source,
		decoder: decoder,
		onBatch: onBatch,
	}
}

// Run blocks receiving and decoding batches until the source closes or ctx
// is canceled, both of which return nil. Other receive errors are returned.
func (r *Receiver) Run(ctx context.Context) error {
	log.Info().Msg("receiver started")
	for {
		batch, err := r.source.Receive(ctx)
		if err != nil {
			if errors.Is(err, gpio.ErrClosed) || ctx.Err() != nil {
				log.Info().Msg("receiver stopped")
				return nil
			}
			return fmt.Errorf("receive pulses: %w", err)
		}
		r.process(batch)
	}
}

func (r *Receiver) process(batch *gpio.Batch) {
	defer batch.Release()

	r.decoder.ProcessAll(batch.Pulses)
	if r.onBatch != nil {
		r.onBatch(r.decoder.Stats())
	}
}

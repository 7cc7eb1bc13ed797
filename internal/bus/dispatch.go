package bus

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/vevorbus/vevor-bus/internal/protocol"
)

// Dispatcher decouples the decoder callback from slow consumers. Handle
// never blocks; values that do not fit in the queue are dropped.
type Dispatcher struct {
	queue     chan protocol.Value
	consumers []func(protocol.Value)
	dropped   atomic.Int64
}

// NewDispatcher creates a dispatcher with the given queue size.
func NewDispatcher(size int, consumers ...func(protocol.Value)) *Dispatcher {
	if size < 1 {
		size = 1
	}
	return &Dispatcher{
		queue:     make(chan protocol.Value, size),
		consumers: consumers,
	}
}

// Handle queues a decoded value. It matches protocol.Handler.
func (d *Dispatcher) Handle(v protocol.Value) {
	select {
	case d.queue <- v:
	default:
		n := d.dropped.Add(1)
		log.Warn().Stringer("value", v).Int64("dropped", n).Msg("dispatch queue full, dropping value")
	}
}

// Dropped returns the number of values lost to a full queue.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Run delivers queued values to every consumer in order until ctx is
// canceled, then delivers what is still queued and returns.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case v := <-d.queue:
			d.deliver(v)
		case <-ctx.Done():
			for {
				select {
				case v := <-d.queue:
					d.deliver(v)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(v protocol.Value) {
	for _, c := range d.consumers {
		c(v)
	}
}

package capture

import (
	"context"
	"sync"
	"time"

	"github.com/vevorbus/vevor-bus/internal/gpio"
)

// Recorder is a gpio.Source that copies every batch it passes through.
type Recorder struct {
	src gpio.Source
	now func() time.Time

	mu  sync.Mutex
	rec Recording
}

var _ gpio.Source = (*Recorder)(nil)

// NewRecorder wraps src. now may be nil for time.Now.
func NewRecorder(src gpio.Source, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		src: src,
		now: now,
		rec: Recording{Version: Version, StartedAt: now()},
	}
}

// Receive returns the next batch from the wrapped source after recording it.
func (r *Recorder) Receive(ctx context.Context) (*gpio.Batch, error) {
	b, err := r.src.Receive(ctx)
	if err != nil {
		return nil, err
	}
	offset := r.now().Sub(r.rec.StartedAt).Microseconds()
	r.mu.Lock()
	r.rec.Batches = append(r.rec.Batches, Batch{OffsetUs: offset, Pulses: EncodePulses(b.Pulses)})
	r.mu.Unlock()
	return b, nil
}

// Close closes the wrapped source.
func (r *Recorder) Close() error {
	return r.src.Close()
}

// Recording returns a copy of everything recorded so far.
func (r *Recorder) Recording() *Recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.rec
	rec.Batches = append([]Batch(nil), r.rec.Batches...)
	return &rec
}

// Replayer is a gpio.Source that yields the batches of a recording in order
// and then reports gpio.ErrClosed.
type Replayer struct {
	rec *Recording

	mu   sync.Mutex
	next int
	at   time.Time
}

var _ gpio.Source = (*Replayer)(nil)

// NewReplayer creates a source over rec.
func NewReplayer(rec *Recording) *Replayer {
	return &Replayer{rec: rec, at: rec.StartedAt}
}

// Receive returns the next recorded batch and advances the virtual clock to
// its capture time.
func (p *Replayer) Receive(ctx context.Context) (*gpio.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.next >= len(p.rec.Batches) {
		return nil, gpio.ErrClosed
	}
	b := p.rec.Batches[p.next]
	p.next++
	p.at = p.rec.Time(b)
	return gpio.NewBatch(DecodePulses(b.Pulses), nil), nil
}

// Now is the virtual clock: the capture time of the batch last returned.
func (p *Replayer) Now() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.at
}

// Close stops the replay.
func (p *Replayer) Close() error {
	p.mu.Lock()
	p.next = len(p.rec.Batches)
	p.mu.Unlock()
	return nil
}

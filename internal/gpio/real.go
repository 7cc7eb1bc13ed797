//go:build linux

package gpio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/warthog618/go-gpiocdev"

	"github.com/vevorbus/vevor-bus/internal/protocol"
)

const consumer = "vevor-bus"

// CaptureConfig configures the edge capture on the RX line.
type CaptureConfig struct {
	Chip   string
	Offset int
	// GlitchFilter drops pulses shorter than this (line debounce).
	GlitchFilter time.Duration
	// IdleThreshold ends a batch once the line is quiet this long.
	// Must be longer than the 30ms start pulse.
	IdleThreshold time.Duration
	// MaxBatch caps the number of records per batch.
	MaxBatch int
	// QueueSize is the number of batches buffered for the receiver.
	QueueSize int
}

// Capture records edges on the RX line and delivers them as batches of
// two-half pulse records.
type Capture struct {
	cfg     CaptureConfig
	line    *gpiocdev.Line
	batches chan *Batch
	done    chan struct{}
	once    sync.Once
	pool    sync.Pool

	mu       sync.Mutex
	asm      Assembler
	active   bool
	level    protocol.Level
	lastEdge time.Duration
	lastWall time.Time
	idle     *time.Timer
	dropped  int
}

// NewCapture requests the RX line with both-edge detection.
func NewCapture(cfg CaptureConfig) (*Capture, error) {
	c := newCapture(cfg)

	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithPullDown,
		gpiocdev.WithBothEdges,
		gpiocdev.WithConsumer(consumer),
		gpiocdev.WithEventHandler(c.handleEvent),
	}
	if c.cfg.GlitchFilter > 0 {
		opts = append(opts, gpiocdev.WithDebounce(c.cfg.GlitchFilter))
	}

	line, err := gpiocdev.RequestLine(c.cfg.Chip, c.cfg.Offset, opts...)
	if err != nil {
		c.idle.Stop()
		return nil, fmt.Errorf("request RX pin %d: %w", c.cfg.Offset, err)
	}
	c.line = line
	return c, nil
}

// newCapture builds the batching state without a line.
func newCapture(cfg CaptureConfig) *Capture {
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 64
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}

	c := &Capture{
		cfg:     cfg,
		batches: make(chan *Batch, cfg.QueueSize),
		done:    make(chan struct{}),
	}
	c.pool.New = func() any {
		buf := make([]protocol.Pulse, 0, cfg.MaxBatch)
		return &buf
	}
	c.idle = time.AfterFunc(time.Hour, c.onIdle)
	c.idle.Stop()
	return c
}

// handleEvent closes the phase that the edge ended. A rising edge ends a
// low phase and a falling edge ends a high phase.
func (c *Capture) handleEvent(evt gpiocdev.LineEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := protocol.Level(evt.Type == gpiocdev.LineEventRisingEdge)
	if c.active {
		dt := evt.Timestamp - c.lastEdge
		if dt >= c.cfg.IdleThreshold {
			c.flushLocked()
		} else {
			c.asm.Add(!next, uint32(dt/time.Microsecond))
			if c.asm.Len() >= c.cfg.MaxBatch {
				c.deliverLocked(c.asm.Drain(c.getBuf()))
			}
		}
	}

	c.active = true
	c.level = next
	c.lastEdge = evt.Timestamp
	c.lastWall = time.Now()
	c.idle.Reset(c.cfg.IdleThreshold)
}

func (c *Capture) onIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active || time.Since(c.lastWall) < c.cfg.IdleThreshold {
		return
	}
	c.flushLocked()
	c.active = false
}

func (c *Capture) flushLocked() {
	c.deliverLocked(c.asm.Flush(c.getBuf()))
}

func (c *Capture) getBuf() []protocol.Pulse {
	buf := c.pool.Get().(*[]protocol.Pulse)
	return (*buf)[:0]
}

func (c *Capture) putBuf(pulses []protocol.Pulse) {
	pulses = pulses[:0]
	c.pool.Put(&pulses)
}

func (c *Capture) deliverLocked(pulses []protocol.Pulse) {
	if len(pulses) == 0 {
		c.putBuf(pulses)
		return
	}
	batch := NewBatch(pulses, func() { c.putBuf(pulses) })
	select {
	case c.batches <- batch:
	default:
		c.dropped++
		log.Warn().Int("pulses", len(pulses)).Int("dropped", c.dropped).Msg("capture queue full, dropping batch")
		batch.Release()
	}
}

// Receive blocks until the next batch is captured.
func (c *Capture) Receive(ctx context.Context) (*Batch, error) {
	select {
	case b := <-c.batches:
		return b, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dropped returns the number of batches lost to a full queue.
func (c *Capture) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Close reconfigures the RX line as a plain input and releases it.
func (c *Capture) Close() error {
	var err error
	c.once.Do(func() {
		c.idle.Stop()
		close(c.done)
		if c.line == nil {
			return
		}
		if rerr := c.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); rerr != nil {
			log.Warn().Err(rerr).Msg("reconfigure RX pin")
		}
		if cerr := c.line.Close(); cerr != nil {
			err = fmt.Errorf("close RX pin: %w", cerr)
		}
	})
	return err
}

// Transmitter drives the TX line. The line idles low.
type Transmitter struct {
	mu   sync.Mutex
	line *gpiocdev.Line
}

// NewTransmitter requests the TX line as an output driven low.
func NewTransmitter(chip string, offset int) (*Transmitter, error) {
	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("request TX pin %d: %w", offset, err)
	}
	return &Transmitter{line: line}, nil
}

// Transmit writes each half's level for its duration. Deadlines are
// absolute so scheduling jitter does not accumulate across the sequence.
func (t *Transmitter) Transmit(ctx context.Context, pulses []protocol.Pulse) (err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	defer func() {
		if lerr := t.line.SetValue(0); lerr != nil && err == nil {
			err = fmt.Errorf("set TX idle: %w", lerr)
		}
	}()

	deadline := time.Now()
	for _, ph := range Phases(pulses) {
		if ph.Duration == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		v := 0
		if ph.Level == protocol.High {
			v = 1
		}
		if err := t.line.SetValue(v); err != nil {
			return fmt.Errorf("set TX level: %w", err)
		}
		deadline = deadline.Add(time.Duration(ph.Duration) * time.Microsecond)
		time.Sleep(time.Until(deadline))
	}
	return nil
}

// Close drives the line low and releases it.
func (t *Transmitter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	if err := t.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("set TX idle: %w", err))
	}
	if err := t.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close TX pin: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

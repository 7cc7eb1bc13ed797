// Package status provides a thread-safe view of the daemon for the status
// server and heartbeat events.
package status

import (
	"sync"
	"time"

	"github.com/vevorbus/vevor-bus/internal/protocol"
)

// Config contains daemon configuration for display.
type Config struct {
	Chip        string
	RXPin       int
	TXPin       int
	HeartbeatMs int64
	Broker      string
	NATS        string
	HTTPAddr    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Stats         protocol.Stats
	LastByte      *protocol.Value
	LastWord      *protocol.Value
	Transmitted   int
	LastSent      *byte
	Dropped       int64
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Observe records a decoded value.
func (t *Tracker) Observe(v protocol.Value) {
	t.mu.Lock()
	switch v.Kind {
	case protocol.KindByte:
		t.snap.LastByte = &v
	case protocol.KindWord:
		t.snap.LastWord = &v
	}
	t.mu.Unlock()
}

// UpdateStats replaces the decoder counters.
func (t *Tracker) UpdateStats(s protocol.Stats) {
	t.mu.Lock()
	t.snap.Stats = s
	t.mu.Unlock()
}

// RecordSent counts a transmitted byte.
func (t *Tracker) RecordSent(b byte) {
	t.mu.Lock()
	t.snap.Transmitted++
	t.snap.LastSent = &b
	t.mu.Unlock()
}

// SetDropped sets the number of values dropped before reaching consumers.
func (t *Tracker) SetDropped(n int64) {
	t.mu.Lock()
	t.snap.Dropped = n
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}

// Package publish defines how decoded values and lifecycle events leave the
// daemon, independent of the broker carrying them.
package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vevorbus/vevor-bus/internal/protocol"
)

// Publisher publishes decoded values and system events.
type Publisher interface {
	// Publish sends a decoded value.
	// Returns error if publishing fails (should not crash the process).
	Publish(v protocol.Value) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether a broker connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the message payload for a decoded value.
type Payload struct {
	Bus ValuePayload `json:"vevor"`
}

// ValuePayload contains the decoded value details.
type ValuePayload struct {
	Timestamp string `json:"timestamp"`
	Kind      string `json:"kind"`
	Value     int    `json:"value"`
	Hex       string `json:"hex"`
}

// FormatPayload creates the JSON payload for a decoded value.
func FormatPayload(v protocol.Value) ([]byte, error) {
	inner := ValuePayload{
		Timestamp: v.Time.UTC().Format(time.RFC3339Nano),
		Kind:      string(v.Kind),
	}
	switch v.Kind {
	case protocol.KindByte:
		inner.Value = int(v.Byte)
		inner.Hex = fmt.Sprintf("0x%02X", v.Byte)
	case protocol.KindWord:
		inner.Value = int(v.Word)
		inner.Hex = fmt.Sprintf("0x%04X", v.Word)
	default:
		return nil, fmt.Errorf("unknown value kind %q", v.Kind)
	}
	return json.Marshal(Payload{Bus: inner})
}

// SystemPayload represents the payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// Multi fans out to several publishers. Every publisher is attempted;
// failures are joined.
type Multi []Publisher

// Publish sends v to every publisher.
func (m Multi) Publish(v protocol.Value) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishSystem sends event to every publisher.
func (m Multi) PublishSystem(event SystemEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishSystem(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every publisher.
func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsConnected reports whether every publisher that tracks a connection is connected.
func (m Multi) IsConnected() bool {
	for _, p := range m {
		if cs, ok := p.(ConnectionStatus); ok && !cs.IsConnected() {
			return false
		}
	}
	return true
}

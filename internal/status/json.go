package status

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vevorbus/vevor-bus/internal/protocol"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string      `json:"event,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     string      `json:"start_time"`
	Timestamp     string      `json:"timestamp"`
	LastByte      *ValueJSON  `json:"last_byte,omitempty"`
	LastWord      *ValueJSON  `json:"last_word,omitempty"`
	Transmitted   int         `json:"transmitted"`
	LastSent      string      `json:"last_sent,omitempty"`
	Dropped       int64       `json:"dropped"`
	Decoder       DecoderJSON `json:"decoder"`
	MQTT          MQTTStatus  `json:"mqtt"`
	Config        ConfigJSON  `json:"config"`
}

// ValueJSON is the JSON representation of a decoded value.
type ValueJSON struct {
	Value     int    `json:"value"`
	Hex       string `json:"hex"`
	Timestamp string `json:"timestamp"`
}

// DecoderJSON is the JSON representation of decoder counters.
type DecoderJSON struct {
	Pulses        int `json:"pulses"`
	Discarded     int `json:"discarded"`
	Preambles     int `json:"preambles"`
	Frames        int `json:"frames"`
	Truncated     int `json:"truncated"`
	Bytes         int `json:"bytes"`
	Words         int `json:"words"`
	Suppressed    int `json:"suppressed"`
	SpuriousWords int `json:"spurious_words"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Chip        string `json:"chip"`
	RXPin       int    `json:"rx_pin"`
	TXPin       int    `json:"tx_pin"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	NATS        string `json:"nats,omitempty"`
	HTTPAddr    string `json:"http_addr"`
}

func valueJSON(v *protocol.Value) *ValueJSON {
	if v == nil {
		return nil
	}
	out := &ValueJSON{Timestamp: v.Time.UTC().Format(time.RFC3339)}
	if v.Kind == protocol.KindWord {
		out.Value = int(v.Word)
		out.Hex = fmt.Sprintf("0x%04X", v.Word)
	} else {
		out.Value = int(v.Byte)
		out.Hex = fmt.Sprintf("0x%02X", v.Byte)
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		LastByte:      valueJSON(snap.LastByte),
		LastWord:      valueJSON(snap.LastWord),
		Transmitted:   snap.Transmitted,
		Dropped:       snap.Dropped,
		Decoder: DecoderJSON{
			Pulses:        snap.Stats.Pulses,
			Discarded:     snap.Stats.Discarded,
			Preambles:     snap.Stats.Preambles,
			Frames:        snap.Stats.Frames,
			Truncated:     snap.Stats.Truncated,
			Bytes:         snap.Stats.Bytes,
			Words:         snap.Stats.Words,
			Suppressed:    snap.Stats.Suppressed,
			SpuriousWords: snap.Stats.SpuriousWords,
		},
		MQTT: MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Chip:        snap.Config.Chip,
			RXPin:       snap.Config.RXPin,
			TXPin:       snap.Config.TXPin,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			NATS:        snap.Config.NATS,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
	if snap.LastSent != nil {
		inner.LastSent = fmt.Sprintf("0x%02X", *snap.LastSent)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for a system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

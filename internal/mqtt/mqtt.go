// Package mqtt publishes decoded bus values to an MQTT broker and accepts
// transmit commands from it.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vevorbus/vevor-bus/internal/protocol"
)

// Default settings.
const (
	DefaultTopicPrefix = "vevor/bus"
	DefaultBufferSize  = 256

	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Config holds broker connection settings.
type Config struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	// Commands enables the <prefix>/send subscription.
	Commands   bool
	BufferSize int
}

// Topics are the topic names derived from a prefix.
type Topics struct {
	Byte   string
	Word   string
	System string
	Send   string
}

// TopicsFor builds the topic set under prefix.
func TopicsFor(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{
		Byte:   prefix + "/byte",
		Word:   prefix + "/word",
		System: prefix + "/system",
		Send:   prefix + "/send",
	}
}

// ClientID returns id, or a generated one when id is empty.
func ClientID(id string) string {
	if id != "" {
		return id
	}
	return "vevor-bus-" + uuid.NewString()[:8]
}

type commandBody struct {
	Value *int `json:"value"`
}

// ParseCommand extracts the byte to transmit from a command payload.
// Accepted forms: "165", "0xA5", "0b10100101" and {"value":165}.
func ParseCommand(payload []byte) (byte, error) {
	s := strings.TrimSpace(string(payload))
	if strings.HasPrefix(s, "{") {
		var body commandBody
		if err := json.Unmarshal([]byte(s), &body); err != nil {
			return 0, fmt.Errorf("decode command: %w", err)
		}
		if body.Value == nil {
			return 0, fmt.Errorf("command has no value")
		}
		if *body.Value < 0 || *body.Value > 0xFF {
			return 0, fmt.Errorf("value %d out of byte range", *body.Value)
		}
		return byte(*body.Value), nil
	}
	return protocol.ParseByte(s)
}

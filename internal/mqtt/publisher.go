package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/vevorbus/vevor-bus/internal/protocol"
	"github.com/vevorbus/vevor-bus/internal/publish"
)

// client is the subset of paho.Client used by Publisher.
type client interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	IsConnectionOpen() bool
	Disconnect(quiesce uint)
}

// CommandFunc receives bytes requested on the send topic.
type CommandFunc func(b byte)

// Publisher publishes to an MQTT broker. Messages produced while the
// connection is down are buffered and replayed on reconnect.
type Publisher struct {
	client    client
	topics    Topics
	commands  bool
	onCommand CommandFunc
	now       func() time.Time

	mu        sync.Mutex
	outbox    *outbox
	connected bool // a connection has been established at least once
}

var _ publish.Publisher = (*Publisher)(nil)

// New connects to the broker described by cfg. If the broker is unreachable
// the client keeps retrying in the background and New still succeeds.
func New(cfg Config, onCommand CommandFunc) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker not configured")
	}
	p := newPublisher(cfg, onCommand)

	will, err := publish.FormatSystemPayload(publish.SystemEvent{
		Timestamp: p.now(),
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	clientID := ClientID(cfg.ClientID)
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(p.topics.System, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("mqtt: connection lost")
		})
	p.client = paho.NewClient(opts)

	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Warn().Str("broker", cfg.Broker).Msg("mqtt: broker not reachable yet, retrying in background")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	log.Info().Str("broker", cfg.Broker).Str("client_id", clientID).Msg("mqtt: connected")
	return p, nil
}

func newPublisher(cfg Config, onCommand CommandFunc) *Publisher {
	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Publisher{
		topics:    TopicsFor(cfg.TopicPrefix),
		commands:  cfg.Commands && onCommand != nil,
		onCommand: onCommand,
		now:       time.Now,
		outbox:    newOutbox(size),
	}
}

// Topics returns the topic names in use.
func (p *Publisher) Topics() Topics { return p.topics }

// Publish sends a decoded value to the byte or word topic.
func (p *Publisher) Publish(v protocol.Value) error {
	payload, err := publish.FormatPayload(v)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	topic := p.topics.Byte
	if v.Kind == protocol.KindWord {
		topic = p.topics.Word
	}
	// QoS 0 (at-most-once), not retained
	return p.send(pending{topic: topic, payload: payload})
}

// PublishSystem sends a system lifecycle event.
func (p *Publisher) PublishSystem(event publish.SystemEvent) error {
	payload, err := publish.FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(pending{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

func (p *Publisher) send(msg pending) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.outbox.push(msg)
		p.mu.Unlock()
		return nil
	}
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

func (p *Publisher) subscribe() error {
	token := p.client.Subscribe(p.topics.Send, 1, p.handleMessage)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe %s: timeout", p.topics.Send)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", p.topics.Send, err)
	}
	return nil
}

// onConnect runs on every (re)connection.
func (p *Publisher) onConnect() {
	if p.commands {
		if err := p.subscribe(); err != nil {
			log.Warn().Err(err).Str("topic", p.topics.Send).Msg("mqtt: subscribe failed")
		}
	}

	p.mu.Lock()
	backlog := p.outbox.drain()
	reconnected := p.connected
	p.connected = true
	p.mu.Unlock()

	for _, msg := range backlog {
		if err := p.send(msg); err != nil {
			log.Error().Err(err).Msg("mqtt: replay failed")
		}
	}
	if len(backlog) > 0 {
		log.Info().Int("count", len(backlog)).Msg("mqtt: replayed buffered messages")
	}

	if reconnected {
		err := p.PublishSystem(publish.SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
		if err != nil {
			log.Error().Err(err).Msg("mqtt: publish reconnect event")
		}
	}
}

func (p *Publisher) handleMessage(_ paho.Client, m paho.Message) {
	p.handleCommand(m.Payload())
}

func (p *Publisher) handleCommand(payload []byte) {
	b, err := ParseCommand(payload)
	if err != nil {
		log.Warn().Err(err).Str("topic", p.topics.Send).Msg("mqtt: ignoring command")
		return
	}
	log.Debug().Msgf("mqtt: send command 0x%02X", b)
	p.onCommand(b)
}

// Buffered returns the number of messages waiting for a connection.
func (p *Publisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outbox.len()
}

// IsConnected reports whether the broker connection is open.
func (p *Publisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *Publisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

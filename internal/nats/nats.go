// Package nats publishes decoded bus values to a NATS server.
package nats

import (
	"fmt"
	"strings"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/vevorbus/vevor-bus/internal/protocol"
	"github.com/vevorbus/vevor-bus/internal/publish"
)

// DefaultSubject is the subject prefix used when none is configured.
const DefaultSubject = "vevor.bus"

// conn is the subset of *natsgo.Conn used by Publisher.
type conn interface {
	Publish(subj string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	IsConnected() bool
	Drain() error
}

// Publisher publishes to <subject>.byte, <subject>.word and <subject>.system.
type Publisher struct {
	conn    conn
	subject string
}

var _ publish.Publisher = (*Publisher)(nil)

// New connects to url.
func New(url, subject string) (*Publisher, error) {
	nc, err := natsgo.Connect(url,
		natsgo.Name("vevor-bus"),
		natsgo.ReconnectWait(2*time.Second),
		natsgo.MaxReconnects(-1),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats: disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats: reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	log.Info().Str("url", nc.ConnectedUrl()).Msg("nats: connected")
	return newPublisher(nc, subject), nil
}

func newPublisher(c conn, subject string) *Publisher {
	subject = strings.TrimSuffix(subject, ".")
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{conn: c, subject: subject}
}

// Publish sends a decoded value.
func (p *Publisher) Publish(v protocol.Value) error {
	payload, err := publish.FormatPayload(v)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	subj := p.subject + ".byte"
	if v.Kind == protocol.KindWord {
		subj = p.subject + ".word"
	}
	if err := p.conn.Publish(subj, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subj, err)
	}
	return nil
}

// PublishSystem sends a lifecycle event and waits for the server to receive it.
func (p *Publisher) PublishSystem(event publish.SystemEvent) error {
	payload, err := publish.FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	subj := p.subject + ".system"
	if err := p.conn.Publish(subj, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subj, err)
	}
	if err := p.conn.FlushTimeout(2 * time.Second); err != nil {
		return fmt.Errorf("flush %s: %w", subj, err)
	}
	return nil
}

// IsConnected reports whether the server connection is up.
func (p *Publisher) IsConnected() bool {
	return p.conn.IsConnected()
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() error {
	return p.conn.Drain()
}

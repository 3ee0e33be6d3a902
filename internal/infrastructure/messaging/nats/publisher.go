// Package natsclient publishes outbox events to NATS.
package natsclient

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"vendstock/internal/infrastructure/storage/postgres"
	"vendstock/pkg/logger"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "vendstock"

// ErrNotConnected is returned when publishing on a closed connection.
var ErrNotConnected = errors.New("nats not connected")

// Publisher implements postgres.OutboxHandler: each message goes to <prefix>.<event_type>.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

var _ postgres.OutboxHandler = (*Publisher)(nil)

// Connect dials url and returns a publisher that reconnects forever.
func Connect(url, prefix string) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("vendstock-worker"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn(context.Background(), "nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info(context.Background(), "nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return NewPublisher(nc, prefix), nil
}

// NewPublisher wraps an existing connection.
func NewPublisher(nc *nats.Conn, prefix string) *Publisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{nc: nc, prefix: prefix}
}

// Subject returns the subject an event type is published on.
func (p *Publisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

// Handle publishes one outbox message. The outbox id travels as Nats-Msg-Id so
// JetStream consumers can deduplicate redeliveries.
func (p *Publisher) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	if p.nc == nil || p.nc.IsClosed() {
		return ErrNotConnected
	}
	if err := p.nc.PublishMsg(p.message(msg)); err != nil {
		return err
	}
	logger.Debug(ctx, "outbox message published", "subject", p.Subject(msg.EventType), "outbox_id", msg.ID)
	return nil
}

func (p *Publisher) message(msg *postgres.OutboxMessage) *nats.Msg {
	m := nats.NewMsg(p.Subject(msg.EventType))
	m.Data = msg.Payload
	m.Header.Set(nats.MsgIdHdr, msg.ID.String())
	m.Header.Set("Aggregate-Type", msg.AggregateType)
	m.Header.Set("Aggregate-Id", msg.AggregateID.String())
	return m
}

// Close drains pending publishes and closes the connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

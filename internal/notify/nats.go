package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sydlexius/plexrenamer/internal/event"
)

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher forwards session events to NATS subjects named
// <prefix>.<event type>, e.g. "plexrenamer.scan.completed".
type NATSPublisher struct {
	conn   Conn
	prefix string
	events []event.Type
	logger *slog.Logger
}

// ConnectNATS dials url and returns a publisher for the given subject prefix.
// The connection reconnects forever; publishes while disconnected are
// buffered by the client library.
func ConnectNATS(url, prefix string, logger *slog.Logger) (*NATSPublisher, error) {
	log := logger.With(slog.String("component", "nats-notifier"))
	opts := []nats.Option{
		nats.Name("plexrenamer"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Debug("nats connection closed")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return NewNATSPublisher(nc, prefix, logger), nil
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(conn Conn, prefix string, logger *slog.Logger) *NATSPublisher {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = "plexrenamer"
	}
	return &NATSPublisher{
		conn:   conn,
		prefix: prefix,
		events: DefaultEvents,
		logger: logger.With(slog.String("component", "nats-notifier")),
	}
}

// Subject returns the subject an event of type t is published on.
func (p *NATSPublisher) Subject(t event.Type) string {
	return p.prefix + "." + string(t)
}

// HandleEvent is an event.Handler that publishes scan and apply completions.
func (p *NATSPublisher) HandleEvent(e event.Event) {
	wanted := false
	for _, t := range p.events {
		if t == e.Type {
			wanted = true
			break
		}
	}
	if !wanted {
		return
	}

	data, err := json.Marshal(newPayload(e))
	if err != nil {
		p.logger.Error("encoding nats message", "event", string(e.Type), "error", err)
		return
	}
	if err := p.conn.Publish(p.Subject(e.Type), data); err != nil {
		p.logger.Warn("nats publish failed", "subject", p.Subject(e.Type), "error", err)
		return
	}
	p.logger.Debug("nats message published", "subject", p.Subject(e.Type))
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("draining nats connection: %w", err)
	}
	return nil
}

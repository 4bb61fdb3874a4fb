// Package notify publishes finished sync cycles to NATS so other services can
// react to a refreshed mirror.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kang-git/threejs-sync-server/internal/logfields"
)

// Publisher sends JSON documents to a fixed destination.
type Publisher interface {
	PublishJSON(ctx context.Context, v any) error
	Close() error
}

// Noop discards everything. It is used when no NATS URL is configured.
type Noop struct{}

func (Noop) PublishJSON(context.Context, any) error { return nil }
func (Noop) Close() error                           { return nil }

// NATSPublisher publishes to a core NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNATSPublisher connects to url. The connection keeps retrying in the
// background, so an unavailable server at startup is not an error.
func NewNATSPublisher(url, subject string, logger *slog.Logger) (*NATSPublisher, error) {
	if url == "" || subject == "" {
		return nil, errors.New("nats url and subject are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(url,
		nats.Name("threejs-sync-server"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", logfields.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", logfields.URL(c.ConnectedUrlRedacted()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("NATS publisher initialized", logfields.URL(url), slog.String("subject", subject))
	return &NATSPublisher{conn: conn, subject: subject, logger: logger}, nil
}

// PublishJSON marshals v and publishes it, flushing within ctx.
func (p *NATSPublisher) PublishJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	if !p.conn.IsConnected() {
		// Buffered until the reconnect succeeds.
		p.logger.Debug("NATS not connected, notification buffered", slog.String("subject", p.subject))
		return nil
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush notification: %w", err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if p.conn.IsConnected() {
		return p.conn.Drain()
	}
	p.conn.Close()
	return nil
}

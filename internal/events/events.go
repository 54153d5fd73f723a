// Package events publishes document lifecycle notifications.
//
// Events are fire-and-forget JSON messages on NATS core subjects:
//
//	<prefix>.document.ingested
//	<prefix>.document.deleted
//
// Publishing is best effort. The pipeline logs a failed publish and carries
// on, so subscribers must tolerate gaps.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightflow/internal/config"
	"github.com/fyrsmithlabs/insightflow/internal/logging"
)

// Event types, used as the subject suffix.
const (
	TypeDocumentIngested = "document.ingested"
	TypeDocumentDeleted  = "document.deleted"
)

// DocumentEvent is the message body for every document event.
type DocumentEvent struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	ProjectID  string    `json:"project_id"`
	DocumentID string    `json:"document_id"`
	Source     string    `json:"source,omitempty"`
	Chunks     int       `json:"chunks,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher emits document events.
type Publisher interface {
	Publish(ctx context.Context, ev DocumentEvent) error
	Close() error
}

// Subject returns the NATS subject for an event type.
func Subject(prefix, eventType string) string {
	if prefix == "" {
		return eventType
	}
	return prefix + "." + eventType
}

// NATSPublisher publishes events on a NATS connection.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	owned  bool
}

// NewNATSPublisher wraps an existing connection. Close does not close nc.
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: nc, prefix: prefix}
}

// Connect dials cfg.NATSURL with reconnects enabled.
func Connect(cfg config.EventsConfig, logger *logging.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("insightflow"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn(context.Background(), "nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info(context.Background(), "nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", cfg.NATSURL, err)
	}
	return &NATSPublisher{conn: nc, prefix: cfg.SubjectPrefix, owned: true}, nil
}

// Publish marshals ev and publishes it on its subject. A zero Timestamp is
// set to now.
func (p *NATSPublisher) Publish(ctx context.Context, ev DocumentEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	subject := Subject(p.prefix, ev.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection when the publisher dialed it.
func (p *NATSPublisher) Close() error {
	if !p.owned {
		return nil
	}
	return p.conn.Drain()
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, DocumentEvent) error { return nil }
func (Nop) Close() error { return nil }

// NewPublisher returns a NATS publisher when events.nats_url is set and Nop
// otherwise.
func NewPublisher(cfg config.EventsConfig, logger *logging.Logger) (Publisher, error) {
	if cfg.NATSURL == "" {
		return Nop{}, nil
	}
	p, err := Connect(cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info(context.Background(), "connected to nats",
		zap.String("url", cfg.NATSURL),
		zap.String("subject_prefix", cfg.SubjectPrefix),
	)
	return p, nil
}

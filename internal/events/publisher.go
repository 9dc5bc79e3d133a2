// Package events publishes call outcome events so downstream systems
// (CRM sync, follow-up dialers, reporting) can react without polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// CallOutcome is the payload emitted once per finished call.
type CallOutcome struct {
	CallID             string    `json:"call_id"`
	CallerPhone        string    `json:"caller_phone,omitempty"`
	Outcome            string    `json:"outcome"`
	EndReason          string    `json:"end_reason"`
	ConfirmationNumber string    `json:"confirmation_number,omitempty"`
	AppointmentTime    string    `json:"appointment_time,omitempty"`
	EndedAt            time.Time `json:"ended_at"`
}

type Publisher interface {
	PublishOutcome(ctx context.Context, ev CallOutcome) error
	Close()
}

// NATSPublisher emits outcome events on a single subject.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

func Connect(natsURL, subject string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(natsURL,
		nats.Name("doorline"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSPublisher{nc: nc, subject: subject, logger: logger}, nil
}

func (p *NATSPublisher) PublishOutcome(ctx context.Context, ev CallOutcome) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal outcome event: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish outcome event: %w", err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	p.nc.Drain()
}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishOutcome(ctx context.Context, ev CallOutcome) error { return nil }
func (NoopPublisher) Close()                                                   {}

// NewPublisher returns a NATS publisher when a URL is configured,
// otherwise a no-op.
func NewPublisher(natsURL, subject string, logger *slog.Logger) (Publisher, error) {
	if natsURL == "" {
		return NoopPublisher{}, nil
	}
	return Connect(natsURL, subject, logger)
}

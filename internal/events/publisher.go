package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

const (
	AppointmentBooked      = "appointment.booked"
	AppointmentCancelled   = "appointment.cancelled"
	AppointmentRescheduled = "appointment.rescheduled"
	AppointmentConfirmed   = "appointment.confirmed"
	OrderCreated           = "payment.order_created"
	PaymentVerified        = "payment.verified"
	PaymentCancelled       = "payment.cancelled"
	PaymentFailed          = "payment.failed"
)

// Event is the envelope published for every booking lifecycle change.
type Event struct {
	Type       string    `json:"event"`
	Version    int       `json:"version"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// New builds a version 1 event stamped with the current time.
func New(eventType, key string, data any) Event {
	return Event{
		Type:       eventType,
		Version:    1,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

func (e Event) Marshal() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	return b, nil
}

// Publisher delivers events after the state change they describe has committed.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// LoggingPublisher writes events to the log. It is the default backend.
type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := evt.Marshal()
	if err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "event published",
		"module", "events.publisher",
		"operation", "publish",
		"outcome", "success",
		"event_type", evt.Type,
		"key", evt.Key,
		"payload_bytes", len(payload),
	)
	return nil
}

func (p *LoggingPublisher) Close() error { return nil }

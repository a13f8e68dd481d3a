package events

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"lawfirm-server/internal/config"
)

func TestEventMarshalEnvelope(t *testing.T) {
	evt := New(PaymentVerified, "pay-1", map[string]string{"orderId": "order_1"})

	raw, err := evt.Marshal()
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["event"] != PaymentVerified || decoded["key"] != "pay-1" {
		t.Fatalf("unexpected envelope %v", decoded)
	}
	if decoded["version"].(float64) != 1 {
		t.Fatalf("expected version 1, got %v", decoded["version"])
	}
}

func TestLoggingPublisherWritesEventType(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	pub := NewLoggingPublisher(logger)

	if err := pub.Publish(context.Background(), New(AppointmentBooked, "appt-1", nil)); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "event_type=appointment.booked") {
		t.Fatalf("log line missing event type: %s", buf.String())
	}
}

func TestNewPublisherValidatesBackend(t *testing.T) {
	if _, err := NewPublisher(config.EventsConfig{Backend: "carrier-pigeon"}, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	if _, err := NewPublisher(config.EventsConfig{Backend: "rabbitmq"}, nil); err == nil {
		t.Fatalf("expected error when rabbit url is missing")
	}
	if _, err := NewPublisher(config.EventsConfig{Backend: "kafka", KafkaTopic: "t"}, nil); err == nil {
		t.Fatalf("expected error when kafka brokers are missing")
	}
	pub, err := NewPublisher(config.EventsConfig{}, nil)
	if err != nil {
		t.Fatalf("default backend returned error: %v", err)
	}
	if _, ok := pub.(*LoggingPublisher); !ok {
		t.Fatalf("expected logging publisher by default, got %T", pub)
	}
}

package events

import (
	"fmt"
	"log/slog"

	"lawfirm-server/internal/config"
)

// NewPublisher builds the backend selected by EVENTS_BACKEND.
func NewPublisher(cfg config.EventsConfig, logger *slog.Logger) (Publisher, error) {
	switch cfg.Backend {
	case "", "log":
		return NewLoggingPublisher(logger), nil
	case "rabbitmq":
		if cfg.RabbitURL == "" {
			return nil, fmt.Errorf("EVENTS_RABBIT_URL is required for the rabbitmq backend")
		}
		return NewRabbitPublisher(cfg.RabbitURL, cfg.Exchange)
	case "kafka":
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}

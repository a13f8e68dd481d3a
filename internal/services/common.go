package services

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"lawfirm-server/internal/domain"
	"lawfirm-server/internal/events"
	"lawfirm-server/internal/logging"
)

var tracer = otel.Tracer("lawfirm-server/services")

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// loadErr maps a gorm lookup failure to a domain error.
func loadErr(err error, resource string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NotFoundError{Resource: resource, Err: err}
	}
	return domain.InternalError{Msg: "failed to load " + resource, Err: err}
}

func dbErr(err error, action string) error {
	if err == nil {
		return nil
	}
	return domain.InternalError{Msg: "failed to " + action, Err: err}
}

// logAttrs builds the per-line attributes. The module key is bound once by
// logging.For on the service's logger.
func logAttrs(ctx context.Context, operation, outcome string, extra ...any) []any {
	attrs := []any{"operation", operation, "outcome", outcome}
	if rid := logging.RequestID(ctx); rid != "" {
		attrs = append(attrs, "request_id", rid)
	}
	return append(attrs, extra...)
}

// publish runs after commit. A failed publish never undoes the state change.
func publish(ctx context.Context, pub events.Publisher, logger *slog.Logger, evt events.Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, evt); err != nil {
		logger.WarnContext(ctx, "event publish failed",
			logAttrs(ctx, "publish", "failure", "event_type", evt.Type, "key", evt.Key, "error", err)...)
	}
}

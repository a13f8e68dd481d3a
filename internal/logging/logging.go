package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

const serviceName = "lawfirm-server"

type ctxKey struct{}

// Setup installs the process-wide slog logger. Production logs are JSON.
func Setup(environment string) *slog.Logger {
	return setup(os.Stdout, environment)
}

func setup(w io.Writer, environment string) *slog.Logger {
	var handler slog.Handler
	if environment == "production" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(handler).With("service", serviceName)
	slog.SetDefault(logger)
	return logger
}

// For returns the default logger scoped to a module.
func For(module string) *slog.Logger {
	return slog.Default().With("module", module)
}

// WithRequestID stores the request id so service-layer logs can carry it.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, requestID)
}

func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

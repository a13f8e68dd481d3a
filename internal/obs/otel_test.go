package obs

import (
	"context"
	"testing"

	"lawfirm-server/internal/config"
)

func TestInitTracerWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), config.TracingConfig{ServiceName: "lawfirm-server"}, "test")
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

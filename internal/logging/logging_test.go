package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestSetupProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setup(&buf, "production")

	ctx := WithRequestID(context.Background(), "req-9")
	logger.InfoContext(ctx, "order created", "module", "services.payments", "request_id", RequestID(ctx))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if line["service"] != serviceName || line["request_id"] != "req-9" || line["module"] != "services.payments" {
		t.Fatalf("unexpected log line %v", line)
	}
}

func TestSetupDevelopmentWritesText(t *testing.T) {
	var buf bytes.Buffer
	setup(&buf, "development").Debug("slot listed")
	if !strings.Contains(buf.String(), "msg=\"slot listed\"") {
		t.Fatalf("expected text handler output, got %q", buf.String())
	}
}

func TestRequestIDMissing(t *testing.T) {
	if got := RequestID(context.Background()); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}
}

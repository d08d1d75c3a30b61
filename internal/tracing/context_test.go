package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewTraceID(t *testing.T) {
	id1 := NewTraceID()
	id2 := NewTraceID()

	if id1 == "" {
		t.Error("NewTraceID returned empty string")
	}

	if id1 == id2 {
		t.Error("NewTraceID returned duplicate IDs")
	}
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithTaskID(ctx, "task-1")
	ctx = WithCommand(ctx, "ls")

	tc := FromContext(ctx)
	if tc.TraceID != "trace-1" {
		t.Errorf("Expected trace ID trace-1, got %s", tc.TraceID)
	}
	if tc.TaskID != "task-1" {
		t.Errorf("Expected task ID task-1, got %s", tc.TaskID)
	}
	if tc.Command != "ls" {
		t.Errorf("Expected command ls, got %s", tc.Command)
	}
}

func TestEmptyContext(t *testing.T) {
	tc := FromContext(context.Background())
	if tc.TraceID != "" || tc.TaskID != "" || tc.Command != "" {
		t.Errorf("Expected empty trace context, got %+v", tc)
	}
}

func TestEnsureTraceID(t *testing.T) {
	ctx := EnsureTraceID(context.Background())
	id := GetTraceID(ctx)
	if id == "" {
		t.Fatal("EnsureTraceID did not add a trace ID")
	}

	if got := GetTraceID(EnsureTraceID(ctx)); got != id {
		t.Errorf("EnsureTraceID replaced existing ID %s with %s", id, got)
	}
}

func TestLoggerFromContext(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trace-xyz")
	ctx = WithTaskID(ctx, "task-abc")

	var buf bytes.Buffer
	logger := LoggerFromContext(ctx, zerolog.New(&buf))
	logger.Info().Msg("test")

	output := buf.String()
	if !strings.Contains(output, "trace-xyz") {
		t.Error("Trace ID not in log output")
	}
	if !strings.Contains(output, "task-abc") {
		t.Error("Task ID not in log output")
	}
}

func TestStartSpanAddsTraceID(t *testing.T) {
	if err := InitOpenTelemetry("orca-test"); err != nil {
		t.Fatalf("InitOpenTelemetry failed: %v", err)
	}

	ctx, span := StartSpan(context.Background(), "orca.test", "test.span")
	defer span.End()

	if GetTraceID(ctx) == "" {
		t.Error("StartSpan did not propagate a trace ID")
	}
}

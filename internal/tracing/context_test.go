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

func TestNewCallID(t *testing.T) {
	id1 := NewCallID()
	id2 := NewCallID()

	if id1 == "" {
		t.Error("NewCallID returned empty string")
	}

	if id1 == id2 {
		t.Error("NewCallID returned duplicate IDs")
	}
}

func TestWithCallID(t *testing.T) {
	ctx := WithCallID(context.Background(), "call-1")

	if got := GetCallID(ctx); got != "call-1" {
		t.Errorf("Expected call ID call-1, got %s", got)
	}
}

func TestGettersOnEmptyContext(t *testing.T) {
	ctx := context.Background()

	if GetTraceID(ctx) != "" || GetCallID(ctx) != "" || GetMethod(ctx) != "" {
		t.Error("Expected empty values from a bare context")
	}
}

func TestNewCallContext(t *testing.T) {
	t.Run("generates trace ID", func(t *testing.T) {
		ctx := NewCallContext(context.Background(), "call-1", "trackEvent")

		if GetTraceID(ctx) == "" {
			t.Error("Expected a generated trace ID")
		}
		if GetMethod(ctx) != "trackEvent" {
			t.Errorf("Expected method trackEvent, got %s", GetMethod(ctx))
		}
	})

	t.Run("keeps existing trace ID", func(t *testing.T) {
		ctx := WithTraceID(context.Background(), "trace-1")
		ctx = NewCallContext(ctx, "call-1", "dispatch")

		if GetTraceID(ctx) != "trace-1" {
			t.Errorf("Expected trace-1, got %s", GetTraceID(ctx))
		}
	})
}

func TestDetach(t *testing.T) {
	parent, cancel := context.WithCancel(WithCallID(context.Background(), "call-1"))
	cancel()

	detached := Detach(parent)

	if detached.Err() != nil {
		t.Error("Detached context should not be cancelled")
	}
	if GetCallID(detached) != "call-1" {
		t.Errorf("Expected call-1, got %s", GetCallID(detached))
	}
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := NewContext(context.Background(), &TraceContext{TraceID: "t-1", CallID: "c-1", Method: "exitGTM"})
	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("forwarded")

	out := buf.String()
	for _, want := range []string{`"trace_id":"t-1"`, `"call_id":"c-1"`, `"method":"exitGTM"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %s in %s", want, out)
		}
	}
}

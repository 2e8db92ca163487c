package tracing

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestLogExporter(t *testing.T) {
	var buf bytes.Buffer
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(NewLogExporter(zerolog.New(&buf))))
	defer tp.Shutdown(context.Background())

	tracer := tp.Tracer(TracerName)
	_, span := tracer.Start(context.Background(), "gtm.invoke")
	span.SetAttributes(attribute.String("method", "dispatch"))
	span.RecordError(errors.New("boom"))
	span.SetStatus(codes.Error, "boom")
	span.End()

	out := buf.String()
	for _, want := range []string{
		`"span":"gtm.invoke"`,
		`"method":"dispatch"`,
		`"status":"boom"`,
		`"component":"tracing"`,
		`"message":"Span finished"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %s in %s", want, out)
		}
	}
}

func TestStartSpanSetsTraceID(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "tagqueue.enqueue")
	defer span.End()

	if span.SpanContext().IsValid() && GetTraceID(ctx) != span.SpanContext().TraceID().String() {
		t.Errorf("Expected trace id %s, got %s", span.SpanContext().TraceID(), GetTraceID(ctx))
	}

	preset := WithTraceID(context.Background(), "preset")
	ctx, span2 := StartSpan(preset, "tagqueue.forward")
	defer span2.End()
	if GetTraceID(ctx) != "preset" {
		t.Errorf("Expected preset trace id to be kept, got %s", GetTraceID(ctx))
	}
}

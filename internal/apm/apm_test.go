package apm

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders("x-honeycomb-team=abc, api-key=k=v,broken,=empty")
	if len(got) != 2 {
		t.Fatalf("headers = %v", got)
	}
	if got["x-honeycomb-team"] != "abc" || got["api-key"] != "k=v" {
		t.Errorf("headers = %v", got)
	}
}

func TestTracer_RecordsSpanAndTraceID(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	if TraceID(context.Background()) != "" {
		t.Error("expected empty trace id without span")
	}

	ctx, span := NewTracer("test").StartSpanFromContext(context.Background(), "evaluate")
	if TraceID(ctx) == "" {
		t.Error("expected trace id inside span")
	}
	span.NoticeError(errors.New("boom"))
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 || ended[0].Name() != "evaluate" {
		t.Fatalf("ended spans = %v", ended)
	}
	if len(ended[0].Events()) != 1 {
		t.Errorf("expected recorded error event, got %d events", len(ended[0].Events()))
	}
}

package apm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts spans under a named instrumentation scope.
type Tracer interface {
	StartSpanFromContext(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, Span)
}

// Span is the subset of trace.Span the application uses.
type Span interface {
	SetAttributes(values ...attribute.KeyValue)
	NoticeError(err error)
	AddEvent(name string, options ...trace.EventOption)
	End(options ...trace.SpanEndOption)
}

type openTracer struct {
	tracer trace.Tracer
}

// NewTracer returns a tracer bound to the global provider.
func NewTracer(name string) Tracer {
	return &openTracer{otel.Tracer(name)}
}

func (t *openTracer) StartSpanFromContext(
	ctx context.Context, name string, opts ...trace.SpanStartOption,
) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, opts...)
	return ctx, &traceSpan{span}
}

type traceSpan struct {
	span trace.Span
}

func (t *traceSpan) SetAttributes(values ...attribute.KeyValue) {
	t.span.SetAttributes(values...)
}

// NoticeError records err and marks the span failed.
func (t *traceSpan) NoticeError(err error) {
	if err == nil {
		return
	}
	t.span.RecordError(err)
	t.span.SetStatus(codes.Error, err.Error())
}

func (t *traceSpan) AddEvent(name string, options ...trace.EventOption) {
	t.span.AddEvent(name, options...)
}

func (t *traceSpan) End(options ...trace.SpanEndOption) {
	t.span.End(options...)
}

// TraceID returns the active trace id in ctx, or "" when there is none.
// It matches logger.TraceIDFn.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Package apm configures OpenTelemetry tracing.
package apm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"

	"github.com/fd1az/triarb-bot/internal/config"
	"github.com/fd1az/triarb-bot/internal/logger"
)

type Provider string

const (
	ZipkinProvider   Provider = "zipkin"
	OTLPGRPCProvider Provider = "otlp_grpc"
	OTLPHTTPProvider Provider = "otlp_http"
	ConsoleProvider  Provider = "console"
	EmptyProvider    Provider = "empty"
)

type TraceProvider interface {
	Stop() error
}

type emptyTraceProvider struct{}

func (emptyTraceProvider) Stop() error { return nil }

type traceProvider struct {
	tp *sdktrace.TracerProvider
}

// NewTraceProvider builds the exporter named by cfg.TraceProvider and installs
// the global tracer provider. Disabled telemetry yields a no-op provider.
func NewTraceProvider(cfg config.TelemetryConfig, log logger.LoggerInterface) (TraceProvider, error) {
	ctx := context.Background()

	if !cfg.Enabled {
		return emptyTraceProvider{}, nil
	}

	provider := Provider(strings.ToLower(cfg.TraceProvider))
	exp, err := newExporter(ctx, provider, cfg)
	if err != nil {
		return nil, fmt.Errorf("trace exporter %s: %w", provider, err)
	}
	if exp == nil {
		log.Warn(ctx, "tracer provider not found, tracing disabled", "provider", cfg.TraceProvider)
		return emptyTraceProvider{}, nil
	}

	rsrc, _ := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
			attribute.String("otel.provider", string(provider)),
		))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(rsrc),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

	log.Info(ctx, "tracing enabled", "provider", provider, "endpoint", cfg.OTLPEndpoint)

	return &traceProvider{tp}, nil
}

func newExporter(ctx context.Context, provider Provider, cfg config.TelemetryConfig) (sdktrace.SpanExporter, error) {
	switch provider {
	case ZipkinProvider:
		return zipkin.New(cfg.OTLPEndpoint)
	case OTLPGRPCProvider:
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpointURL(cfg.OTLPEndpoint),
			otlptracegrpc.WithHeaders(ParseHeaders(cfg.OTLPHeaders)),
		)
	case OTLPHTTPProvider:
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint),
			otlptracehttp.WithHeaders(ParseHeaders(cfg.OTLPHeaders)),
		)
	case ConsoleProvider:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, nil
	}
}

// ParseHeaders parses "k1=v1,k2=v2" into a header map, skipping malformed pairs.
func ParseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" {
			continue
		}
		headers[k] = v
	}
	return headers
}

func (o *traceProvider) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5) //nolint:gomnd
	defer cancel()

	return o.tp.Shutdown(ctx)
}

// Package observability provides OpenTelemetry tracing, Prometheus-format
// metrics and an ingest audit trail.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer every pipeline span is started from.
const TracerName = "github.com/efebarandurmaz/bujo"

// TracingConfig configures span export. An empty Endpoint disables export;
// spans are then started on the global no-op provider.
type TracingConfig struct {
	ServiceName    string // default "bujo"
	ServiceVersion string
	Environment    string
	Endpoint       string // OTLP gRPC, e.g. localhost:4317
	// Insecure disables TLS towards Endpoint, as for a local collector.
	Insecure   bool
	SampleRate float64 // clamped to [0, 1]
}

// TracerProvider owns the SDK provider when export is enabled.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing installs a batching OTLP exporter as the global tracer
// provider. A nil config or empty endpoint returns a provider that only
// hands out the global tracer.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return &TracerProvider{tracer: otel.Tracer(TracerName)}, nil
	}
	name := cfg.ServiceName
	if name == "" {
		name = "bujo"
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(name), semconv.ServiceVersion(cfg.ServiceVersion)}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(samplerFor(cfg.SampleRate))),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return &TracerProvider{provider: provider, tracer: provider.Tracer(TracerName)}, nil
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Exporting reports whether spans leave the process.
func (tp *TracerProvider) Exporting() bool { return tp.provider != nil }

// Shutdown flushes pending spans and stops the exporter.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}

// Tracer returns the underlying tracer.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// SpanKind constants for bujo operations.
const (
	SpanKindIngest  = "ingest"
	SpanKindStage   = "stage"
	SpanKindReindex = "reindex"
)

// StartIngestSpan starts the root span for one Ingest call.
func StartIngestSpan(ctx context.Context, notebookName string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "ingest",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("bujo.span.kind", SpanKindIngest),
			attribute.String("bujo.notebook.name", notebookName),
		),
	)
}

// StartStageSpan starts a child span for a pipeline stage (embed, search, ...).
func StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "ingest."+stage,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("bujo.span.kind", SpanKindStage),
			attribute.String("bujo.stage", stage),
		),
	)
}

// StartReindexSpan starts a span for a reindex run.
func StartReindexSpan(ctx context.Context, limit int) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "reindex",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("bujo.span.kind", SpanKindReindex),
			attribute.Int("reindex.limit", limit),
		),
	)
}

// RecordVerdict records the arbitration outcome on a span.
func RecordVerdict(span trace.Span, kind, matchedID string, similarity float64, committed bool, warnings int) {
	span.SetAttributes(
		attribute.String("ingest.verdict", kind),
		attribute.String("ingest.matched_id", matchedID),
		attribute.Float64("ingest.similarity", similarity),
		attribute.Bool("ingest.committed", committed),
		attribute.Int("ingest.warning_count", warnings),
	)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"

	"relay/internal/relay"
)

// Config holds configuration parameters for OpenTelemetry tracing setup.
// An empty Endpoint disables export; spans are still created so decorators
// work unchanged.
type Config struct {
	ServiceName    string        `env:"SERVICE_NAME" envDefault:"relay"`
	ServiceVersion string        `env:"SERVICE_VERSION" envDefault:"1.0.0"`
	Endpoint       string        `env:"ENDPOINT"`
	SampleRate     float64       `env:"SAMPLE_RATE" envDefault:"1.0"`
	BatchTimeout   time.Duration `env:"BATCH_TIMEOUT" envDefault:"1s"`
	ExportTimeout  time.Duration `env:"EXPORT_TIMEOUT" envDefault:"30s"`
	MaxExportBatch int           `env:"MAX_EXPORT_BATCH" envDefault:"512"`
	MaxQueueSize   int           `env:"MAX_QUEUE_SIZE" envDefault:"2048"`
}

// Tracer wraps the OpenTelemetry tracer with helpers for publish and route spans.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer configures a tracer provider with OTLP HTTP export and returns the
// tracer plus a cleanup function that flushes and shuts the provider down.
func NewTracer(config Config) (*Tracer, func(context.Context) error, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(config.SampleRate)),
	}

	if config.Endpoint != "" {
		exporter, err := otlptracehttp.New(
			context.Background(),
			otlptracehttp.WithEndpoint(config.Endpoint),
			otlptracehttp.WithInsecure(),
			otlptracehttp.WithTimeout(config.ExportTimeout),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}

		opts = append(opts, sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(
			exporter,
			sdktrace.WithBatchTimeout(config.BatchTimeout),
			sdktrace.WithExportTimeout(config.ExportTimeout),
			sdktrace.WithMaxExportBatchSize(config.MaxExportBatch),
			sdktrace.WithMaxQueueSize(config.MaxQueueSize),
		)))
	}

	tp := sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	cleanup := func(ctx context.Context) error {
		if err := tp.ForceFlush(ctx); err != nil {
			return fmt.Errorf("failed to flush traces: %w", err)
		}
		return tp.Shutdown(ctx)
	}

	return New(tp.Tracer(config.ServiceName)), cleanup, nil
}

// New wraps an existing OpenTelemetry tracer.
func New(tracer trace.Tracer) *Tracer {
	return &Tracer{tracer: tracer}
}

// StartSpan creates a new span and returns the context carrying it.
func (t *Tracer) StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName, opts...)
}

// RecordError records err on the active span and marks it failed.
func (t *Tracer) RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// BatchAttributes describes a publish batch before it runs.
func (t *Tracer) BatchAttributes(batchSize int, timeout time.Duration) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("relay.batch_size", batchSize),
		attribute.Int64("relay.timeout_ms", timeout.Milliseconds()),
	}
}

// OutcomeAttributes summarizes a finished batch by outcome kind.
func (t *Tracer) OutcomeAttributes(res relay.BatchResult) []attribute.KeyValue {
	counts := res.Counts()
	return []attribute.KeyValue{
		attribute.Int("relay.delivered", counts[relay.Delivered]),
		attribute.Int("relay.submission_failed", counts[relay.SubmissionFailed]),
		attribute.Int("relay.confirmation_failed", counts[relay.ConfirmationFailed]),
	}
}

// RouteAttributes describes a write to a routing destination.
func (t *Tracer) RouteAttributes(destination string, n int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("relay.route.destination", destination),
		attribute.Int("relay.route.records", n),
	}
}

// ErrorAttributes creates attributes based on error state.
func (t *Tracer) ErrorAttributes(err error) []attribute.KeyValue {
	if err == nil {
		return []attribute.KeyValue{
			attribute.Bool("error", false),
		}
	}
	return []attribute.KeyValue{
		attribute.Bool("error", true),
		attribute.String("error.type", fmt.Sprintf("%T", err)),
		attribute.String("error.message", err.Error()),
	}
}

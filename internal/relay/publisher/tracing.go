package publisher

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"relay/internal/relay"
	"relay/internal/relay/tracing"
)

// TracedPublisher wraps a relay.Publisher with distributed tracing
// Layer order: TracedPublisher -> MetricsPublisher -> Publisher
type TracedPublisher struct {
	publisher relay.Publisher
	tracer    *tracing.Tracer
}

// NewTracedPublisher creates a new traced publisher
func NewTracedPublisher(publisher relay.Publisher, tracer *tracing.Tracer) relay.Publisher {
	return &TracedPublisher{
		publisher: publisher,
		tracer:    tracer,
	}
}

// PublishBatch implements relay.Publisher.PublishBatch with distributed tracing.
// Every failed record is added to the span as an event.
func (p *TracedPublisher) PublishBatch(ctx context.Context, records []relay.Record, timeout time.Duration) (relay.BatchResult, error) {
	ctx, span := p.tracer.StartSpan(ctx, "publisher.publish_batch")
	defer span.End()

	span.SetAttributes(p.tracer.BatchAttributes(len(records), timeout)...)

	res, err := p.publisher.PublishBatch(ctx, records, timeout)
	if err != nil {
		p.tracer.RecordError(ctx, err)
		span.SetAttributes(p.tracer.ErrorAttributes(err)...)
		return res, err
	}

	for _, e := range res.Failed() {
		attrs := []attribute.KeyValue{
			attribute.String("relay.token", e.Token),
			attribute.String("relay.outcome", e.Outcome.Kind.String()),
		}
		if e.Outcome.Err != nil {
			attrs = append(attrs, attribute.String("error.message", e.Outcome.Err.Error()))
		}
		span.AddEvent("record.failed", trace.WithAttributes(attrs...))
	}

	span.SetAttributes(p.tracer.OutcomeAttributes(res)...)
	span.SetStatus(codes.Ok, "")

	return res, nil
}

func (p *TracedPublisher) Close() error {
	return p.publisher.Close()
}

package route

import (
	"context"

	"go.opentelemetry.io/otel/codes"

	"relay/internal/relay/tracing"
)

// TracedSink wraps a Sink with distributed tracing
// Layer order: TracedSink -> MetricsSink -> Sink
type TracedSink struct {
	sink   Sink
	tracer *tracing.Tracer
}

// NewTracedSink creates a new traced sink
func NewTracedSink(sink Sink, tracer *tracing.Tracer) Sink {
	return &TracedSink{
		sink:   sink,
		tracer: tracer,
	}
}

func (s *TracedSink) Success(ctx context.Context, routed []Routed) error {
	return s.trace(ctx, DestinationSuccess, routed, s.sink.Success)
}

func (s *TracedSink) Failure(ctx context.Context, routed []Routed) error {
	return s.trace(ctx, DestinationFailure, routed, s.sink.Failure)
}

func (s *TracedSink) trace(ctx context.Context, destination string, routed []Routed, write func(context.Context, []Routed) error) error {
	ctx, span := s.tracer.StartSpan(ctx, "route."+destination)
	defer span.End()

	span.SetAttributes(s.tracer.RouteAttributes(destination, len(routed))...)

	err := write(ctx, routed)
	if err != nil {
		s.tracer.RecordError(ctx, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(s.tracer.ErrorAttributes(err)...)

	return err
}

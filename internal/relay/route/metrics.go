package route

import (
	"context"
	"time"

	"relay/internal/relay/metrics"
)

// MetricsSink wraps a Sink with metrics collection
type MetricsSink struct {
	sink     Sink
	registry *metrics.Registry
}

// NewMetricsSink creates a new instrumented sink
func NewMetricsSink(sink Sink, registry *metrics.Registry) Sink {
	return &MetricsSink{
		sink:     sink,
		registry: registry,
	}
}

func (s *MetricsSink) Success(ctx context.Context, routed []Routed) error {
	start := time.Now()
	err := s.sink.Success(ctx, routed)
	s.registry.RecordRoute(DestinationSuccess, len(routed), time.Since(start), err)
	return err
}

func (s *MetricsSink) Failure(ctx context.Context, routed []Routed) error {
	start := time.Now()
	err := s.sink.Failure(ctx, routed)
	s.registry.RecordRoute(DestinationFailure, len(routed), time.Since(start), err)
	return err
}

package publisher

import (
	"context"
	"time"

	"relay/internal/relay"
	"relay/internal/relay/metrics"
)

// MetricsPublisher wraps a relay.Publisher with metrics collection
type MetricsPublisher struct {
	publisher relay.Publisher
	registry  *metrics.Registry
}

// NewMetricsPublisher creates a new instrumented publisher
func NewMetricsPublisher(publisher relay.Publisher, registry *metrics.Registry) relay.Publisher {
	return &MetricsPublisher{
		publisher: publisher,
		registry:  registry,
	}
}

// PublishBatch implements relay.Publisher.PublishBatch with metrics collection
func (p *MetricsPublisher) PublishBatch(ctx context.Context, records []relay.Record, timeout time.Duration) (relay.BatchResult, error) {
	start := time.Now()

	res, err := p.publisher.PublishBatch(ctx, records, timeout)
	duration := time.Since(start)

	topics := make([]string, len(records))
	for i, r := range records {
		topics[i] = r.Topic
	}
	p.registry.RecordPublishBatch(topics, res, duration, err)

	return res, err
}

func (p *MetricsPublisher) Close() error {
	return p.publisher.Close()
}

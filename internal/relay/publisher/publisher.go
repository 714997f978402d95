package publisher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"relay/internal/relay"
	"relay/internal/validator"
)

// Option configures a Publisher.
type Option func(*Publisher)

// WithAwaitConcurrency bounds how many acknowledgments of one batch are
// awaited at the same time. Zero or less means no bound.
func WithAwaitConcurrency(n int) Option {
	return func(p *Publisher) {
		p.awaitLimit = n
	}
}

// Publisher publishes batches of records through a relay.Client. It owns the
// client and releases it on Close. PublishBatch calls on one Publisher are
// serialized.
type Publisher struct {
	client     relay.Client
	logger     *zap.Logger
	awaitLimit int

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func New(client relay.Client, logger *zap.Logger, opts ...Option) (*Publisher, error) {
	p := Publisher{
		client: client,
		logger: logger,
	}

	if err := validator.Validate("publisher", p.client, p.logger); err != nil {
		return nil, fmt.Errorf("failed to validate publisher deps: %w", err)
	}

	for _, opt := range opts {
		opt(&p)
	}
	p.logger = p.logger.Named("publisher")

	return &p, nil
}

// PublishBatch submits all records first, then awaits every accepted record's
// acknowledgment, then aggregates one Outcome per record in input order.
func (p *Publisher) PublishBatch(ctx context.Context, records []relay.Record, timeout time.Duration) (relay.BatchResult, error) {
	if timeout <= 0 {
		return relay.BatchResult{}, fmt.Errorf("%w: %s", relay.ErrInvalidTimeout, timeout)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return relay.BatchResult{}, relay.ErrClosed
	}

	logger := p.logger.With(zap.Int("batchSize", len(records)), zap.Duration("timeout", timeout))
	logger.Debug("publishing batch")

	outcomes := make([]relay.Outcome, len(records))
	pending := make([]relay.PendingDelivery, 0, len(records))
	for i, r := range records {
		pd, err := p.submit(ctx, i, r)
		if err != nil {
			logger.Warn("record rejected at submission", zap.String("token", r.ID), zap.Error(err))
			outcomes[i] = relay.SubmissionFailure(err)
			continue
		}
		pending = append(pending, pd)
	}

	logger.Debug("submitted", zap.Int("pending", len(pending)))

	p.awaitAll(ctx, logger, pending, timeout, outcomes)

	res, err := relay.Aggregate(records, outcomes)
	if err != nil {
		return relay.BatchResult{}, fmt.Errorf("failed to aggregate batch: %w", err)
	}

	counts := res.Counts()
	logger.Info("batch published",
		zap.Int(relay.Delivered.String(), counts[relay.Delivered]),
		zap.Int(relay.SubmissionFailed.String(), counts[relay.SubmissionFailed]),
		zap.Int(relay.ConfirmationFailed.String(), counts[relay.ConfirmationFailed]),
	)

	return res, nil
}

// awaitAll resolves every pending delivery concurrently. Each goroutine owns
// exactly one slot of outcomes.
func (p *Publisher) awaitAll(ctx context.Context, logger *zap.Logger, pending []relay.PendingDelivery, timeout time.Duration, outcomes []relay.Outcome) {
	var g errgroup.Group
	if p.awaitLimit > 0 {
		g.SetLimit(p.awaitLimit)
	}

	for _, pd := range pending {
		g.Go(func() error {
			o := p.await(ctx, pd, timeout)
			if o.Failed() {
				logger.Warn("record not confirmed", zap.String("token", pd.Token), zap.Error(o.Err))
			}
			outcomes[pd.Index] = o
			return nil
		})
	}

	// goroutines never return errors; failures live in outcomes
	_ = g.Wait()
}

// Ready reports relay.ErrClosed once Close has been called.
func (p *Publisher) Ready() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return relay.ErrClosed
	}
	return nil
}

// Close releases the broker client. Only the first call reaches the client
// and can return an error; later calls are no-ops.
func (p *Publisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		if cerr := p.client.Close(); cerr != nil {
			err = fmt.Errorf("failed to close broker client: %w", cerr)
			return
		}
		p.logger.Debug("broker client released")
	})

	return err
}

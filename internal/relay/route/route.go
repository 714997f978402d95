// Package route moves the records of a published batch to a success or a
// failure destination according to their outcomes.
package route

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"relay/internal/relay"
	"relay/internal/validator"
)

const (
	DestinationSuccess = "success"
	DestinationFailure = "failure"
)

// ErrUnroutable is returned when a BatchResult does not line up with the
// records it was produced from.
var ErrUnroutable = errors.New("batch result does not match records")

// Routed is one record together with its outcome.
type Routed struct {
	Record  relay.Record
	Outcome relay.Outcome
}

// Attempted reports whether the record reached the broker transport.
// Failed records that were never attempted are safe to resend as-is.
func (r Routed) Attempted() bool {
	return r.Outcome.Attempted()
}

// Sink is a pair of destinations for delivered and failed records.
type Sink interface {
	Success(ctx context.Context, routed []Routed) error
	Failure(ctx context.Context, routed []Routed) error
}

// Summary counts what was routed where.
type Summary struct {
	Delivered    int
	Failed       int
	NotAttempted int
}

// Router sends delivered records to Success and both failure kinds to Failure.
type Router struct {
	sink   Sink
	logger *zap.Logger
}

func NewRouter(sink Sink, logger *zap.Logger) (*Router, error) {
	r := Router{
		sink:   sink,
		logger: logger,
	}

	if err := validator.Validate("router", r.sink, r.logger); err != nil {
		return nil, fmt.Errorf("failed to validate router deps: %w", err)
	}
	r.logger = r.logger.Named("router")

	return &r, nil
}

// Route pairs records with the entries of res by position and writes them to
// the sink. Both destinations are attempted even if the first one fails.
func (r *Router) Route(ctx context.Context, records []relay.Record, res relay.BatchResult) (Summary, error) {
	if len(records) != res.Len() {
		return Summary{}, fmt.Errorf("%w: %d records, %d entries", ErrUnroutable, len(records), res.Len())
	}

	var (
		delivered []Routed
		failed    []Routed
		summary   Summary
	)
	for i, e := range res.Entries() {
		if records[i].ID != e.Token {
			return Summary{}, fmt.Errorf("%w: record %s at index %d, entry %s", ErrUnroutable, records[i].ID, i, e.Token)
		}

		routed := Routed{Record: records[i], Outcome: e.Outcome}
		if !e.Outcome.Failed() {
			delivered = append(delivered, routed)
			continue
		}

		failed = append(failed, routed)
		if !routed.Attempted() {
			summary.NotAttempted++
		}
	}
	summary.Delivered = len(delivered)
	summary.Failed = len(failed)

	var errs []error
	if len(delivered) > 0 {
		if err := r.sink.Success(ctx, delivered); err != nil {
			errs = append(errs, fmt.Errorf("failed to route %d delivered records: %w", len(delivered), err))
		}
	}
	if len(failed) > 0 {
		if err := r.sink.Failure(ctx, failed); err != nil {
			errs = append(errs, fmt.Errorf("failed to route %d failed records: %w", len(failed), err))
		}
	}

	r.logger.Debug("routed batch",
		zap.Int("delivered", summary.Delivered),
		zap.Int("failed", summary.Failed),
		zap.Int("notAttempted", summary.NotAttempted),
	)

	return summary, errors.Join(errs...)
}

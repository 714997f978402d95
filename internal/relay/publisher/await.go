package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relay/internal/relay"
)

type ackResult struct {
	md  relay.DeliveryMetadata
	err error
}

// await blocks until the acknowledgment resolves or timeout elapses, measured
// from the call. On timeout the acknowledgment is abandoned: the broker may
// still deliver the record but the result is ignored.
func (p *Publisher) await(ctx context.Context, pd relay.PendingDelivery, timeout time.Duration) relay.Outcome {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan ackResult, 1)
	go func() {
		md, err := pd.Ack.Wait(wctx)
		done <- ackResult{md: md, err: err}
	}()

	var (
		res      ackResult
		timedOut bool
	)
	select {
	case res = <-done:
		timedOut = errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil
	case <-wctx.Done():
		res = ackResult{err: wctx.Err()}
		timedOut = ctx.Err() == nil
	}

	return outcomeOf(res, timedOut, timeout)
}

// outcomeOf classifies a resolved wait. Only a wait that ran into its own
// deadline is reported as relay.ErrTimedOut.
func outcomeOf(res ackResult, timedOut bool, timeout time.Duration) relay.Outcome {
	switch {
	case res.err == nil:
		return relay.DeliveredOutcome(res.md)
	case timedOut:
		return relay.ConfirmationFailure(fmt.Errorf("%w after %s: %w", relay.ErrTimedOut, timeout, res.err))
	default:
		return relay.ConfirmationFailure(res.err)
	}
}

package relay

import (
	"context"
	"time"
)

// Publisher defines the interface for publishing batches of records to a broker.
type Publisher interface {
	// PublishBatch submits every record, waits up to timeout per record for its
	// acknowledgment and returns one Outcome per record in input order. The
	// returned error is reserved for conditions that make the publisher itself
	// unusable; per-record failures are reported in the BatchResult.
	PublishBatch(ctx context.Context, records []Record, timeout time.Duration) (BatchResult, error)

	// Close releases the broker client. It is safe to call more than once.
	Close() error
}

package relay

import "context"

// Client is the broker capability the publisher depends on. Send hands one
// record to the broker's internal send queue and returns without waiting for
// the broker to acknowledge it. Implementations must be safe for concurrent
// Send and Ack.Wait calls.
type Client interface {
	Send(ctx context.Context, record Record) (Ack, error)
	Close() error
}

// Ack is a broker's deferred delivery acknowledgment. Wait blocks until the
// acknowledgment resolves or ctx is done. Abandoning an Ack must not cancel the
// delivery itself.
type Ack interface {
	Wait(ctx context.Context) (DeliveryMetadata, error)
}

// AckFunc adapts a function to the Ack interface.
type AckFunc func(ctx context.Context) (DeliveryMetadata, error)

func (f AckFunc) Wait(ctx context.Context) (DeliveryMetadata, error) {
	return f(ctx)
}

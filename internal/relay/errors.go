package relay

import "errors"

var (
	// ErrTimedOut is the cause recorded when a delivery acknowledgment does not
	// resolve within the per-record timeout.
	ErrTimedOut = errors.New("timed out waiting for delivery acknowledgment")

	// ErrClosed is returned when publishing through a closed publisher.
	ErrClosed = errors.New("publisher is closed")

	// ErrInvalidTimeout is returned when the per-record timeout is not positive.
	ErrInvalidTimeout = errors.New("timeout must be positive")

	// ErrOutcomeMismatch is returned by Aggregate when records and outcomes
	// cannot be paired one to one.
	ErrOutcomeMismatch = errors.New("records and outcomes do not match")
)

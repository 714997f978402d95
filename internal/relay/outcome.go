package relay

import "fmt"

// OutcomeKind tags the fate of a single record.
type OutcomeKind int

const (
	// Delivered means the broker acknowledged the record.
	Delivered OutcomeKind = iota + 1
	// SubmissionFailed means the broker client rejected the record before it
	// entered the transport. The record was never attempted.
	SubmissionFailed
	// ConfirmationFailed means the record was accepted for sending but was not
	// acknowledged, either because the broker reported an error or because the
	// wait timed out.
	ConfirmationFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case Delivered:
		return "delivered"
	case SubmissionFailed:
		return "submission_failed"
	case ConfirmationFailed:
		return "confirmation_failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Outcome is the result for one record. Metadata is set only for Delivered,
// Err only for the failure kinds.
type Outcome struct {
	Kind     OutcomeKind
	Metadata DeliveryMetadata
	Err      error
}

func DeliveredOutcome(md DeliveryMetadata) Outcome {
	return Outcome{Kind: Delivered, Metadata: md}
}

func SubmissionFailure(err error) Outcome {
	return Outcome{Kind: SubmissionFailed, Err: err}
}

func ConfirmationFailure(err error) Outcome {
	return Outcome{Kind: ConfirmationFailed, Err: err}
}

// Failed reports whether the record must be retried by the caller.
func (o Outcome) Failed() bool {
	return o.Kind != Delivered
}

// Attempted reports whether the record made it into the broker transport.
func (o Outcome) Attempted() bool {
	return o.Kind == Delivered || o.Kind == ConfirmationFailed
}

func (o Outcome) String() string {
	if o.Kind == Delivered {
		return fmt.Sprintf("%s(%s/%d@%d)", o.Kind, o.Metadata.Topic, o.Metadata.Partition, o.Metadata.Offset)
	}

	return fmt.Sprintf("%s(%v)", o.Kind, o.Err)
}

// Error wraps a failed Outcome's cause with its correlation token.
type Error struct {
	Token string
	Kind  OutcomeKind
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("record %s %s: %v", e.Token, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

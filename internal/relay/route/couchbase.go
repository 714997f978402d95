package route

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"

	"relay/internal/couchbase"
	"relay/internal/validator"
)

// Receipt records a delivered record.
type Receipt struct {
	ID          string    `json:"id"`
	Token       string    `json:"token"`
	Topic       string    `json:"topic"`
	Partition   int32     `json:"partition"`
	Offset      int64     `json:"offset"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

// DeadLetter keeps a failed record with enough detail to replay it.
type DeadLetter struct {
	ID          string            `json:"id"`
	Token       string            `json:"token"`
	Topic       string            `json:"topic"`
	Partition   *int32            `json:"partition,omitempty"`
	Key         []byte            `json:"key,omitempty"`
	Value       []byte            `json:"value"`
	Headers     map[string]string `json:"headers,omitempty"`
	Outcome     string            `json:"outcome"`
	Attempted   bool              `json:"attempted"`
	Error       string            `json:"error"`
	Attempts    int               `json:"attempts"`
	LastFailure time.Time         `json:"lastFailure"`
}

const (
	StateDelivered = "delivered"
	StateFailed    = "failed"
	StateUnknown   = "unknown"
)

// Status is what the sink knows about one correlation token.
type Status struct {
	Token      string      `json:"token"`
	State      string      `json:"state"`
	Receipt    *Receipt    `json:"receipt,omitempty"`
	DeadLetter *DeadLetter `json:"deadLetter,omitempty"`
}

func ReceiptKey(token string) string {
	return "receipt::" + token
}

func DeadLetterKey(token string) string {
	return "deadletter::" + token
}

func NewReceiptsStore(bucket *gocb.Bucket, scope string) (*couchbase.Couchbase[Receipt], error) {
	return couchbase.NewCouchbase[Receipt](bucket.Scope(scope).Collection("receipts"))
}

func NewDeadLettersStore(bucket *gocb.Bucket, scope string) (*couchbase.Couchbase[DeadLetter], error) {
	return couchbase.NewCouchbase[DeadLetter](bucket.Scope(scope).Collection("deadletters"))
}

// CouchbaseSink stores a Receipt per delivered record and a DeadLetter per
// failed record. Each call writes its records in one transaction. A delivered
// record clears any dead letter left by an earlier failed attempt.
type CouchbaseSink struct {
	receipts     couchbase.Store[Receipt]
	deadLetters  couchbase.Store[DeadLetter]
	transactions couchbase.Transactor
	now          func() time.Time
}

func NewCouchbaseSink(
	receipts couchbase.Store[Receipt],
	deadLetters couchbase.Store[DeadLetter],
	transactions couchbase.Transactor,
) (*CouchbaseSink, error) {
	s := CouchbaseSink{
		receipts:     receipts,
		deadLetters:  deadLetters,
		transactions: transactions,
		now:          func() time.Time { return time.Now().UTC() },
	}

	if err := validator.Validate("couchbase sink", s.receipts, s.deadLetters, s.transactions); err != nil {
		return nil, fmt.Errorf("failed to validate couchbase sink deps: %w", err)
	}

	return &s, nil
}

// Success implements Sink.
func (s *CouchbaseSink) Success(_ context.Context, routed []Routed) error {
	now := s.now()

	_, err := s.transactions.Transaction(func(r couchbase.TransactionRunner) error {
		for _, rt := range routed {
			receipt := newReceipt(rt, now)

			var existing Receipt
			doc, found, err := r.Get(s.receipts, receipt.ID, &existing)
			if err != nil {
				return fmt.Errorf("failed to get receipt %s: %w", receipt.ID, err)
			}
			if found {
				err = r.Replace(doc, receipt)
			} else {
				err = r.Insert(s.receipts, receipt.ID, receipt)
			}
			if err != nil {
				return fmt.Errorf("failed to write receipt %s: %w", receipt.ID, err)
			}

			dl, found, err := r.Get(s.deadLetters, DeadLetterKey(rt.Record.ID), nil)
			if err != nil {
				return fmt.Errorf("failed to get dead letter for %s: %w", rt.Record.ID, err)
			}
			if found {
				if err := r.Remove(dl); err != nil {
					return fmt.Errorf("failed to clear dead letter for %s: %w", rt.Record.ID, err)
				}
			}
		}
		return nil
	})

	return err
}

// Failure implements Sink.
func (s *CouchbaseSink) Failure(_ context.Context, routed []Routed) error {
	now := s.now()

	_, err := s.transactions.Transaction(func(r couchbase.TransactionRunner) error {
		for _, rt := range routed {
			key := DeadLetterKey(rt.Record.ID)

			var previous DeadLetter
			doc, found, err := r.Get(s.deadLetters, key, &previous)
			if err != nil {
				return fmt.Errorf("failed to get dead letter %s: %w", key, err)
			}

			if !found {
				err = r.Insert(s.deadLetters, key, newDeadLetter(rt, nil, now))
			} else {
				err = r.Replace(doc, newDeadLetter(rt, &previous, now))
			}
			if err != nil {
				return fmt.Errorf("failed to write dead letter %s: %w", key, err)
			}
		}
		return nil
	})

	return err
}

// Status looks up both documents of token. A receipt wins over a dead letter:
// once delivered, a record stays delivered.
func (s *CouchbaseSink) Status(ctx context.Context, token string) (Status, error) {
	st := Status{Token: token, State: StateUnknown}

	receipt, err := s.Receipt(ctx, token)
	if err != nil && !errors.Is(err, couchbase.ErrNotFound) {
		return Status{}, err
	}
	deadLetter, err := s.DeadLetter(ctx, token)
	if err != nil && !errors.Is(err, couchbase.ErrNotFound) {
		return Status{}, err
	}

	st.Receipt, st.DeadLetter = receipt, deadLetter
	switch {
	case receipt != nil:
		st.State = StateDelivered
	case deadLetter != nil:
		st.State = StateFailed
	}

	return st, nil
}

// Receipt looks up the receipt of a delivered record.
func (s *CouchbaseSink) Receipt(ctx context.Context, token string) (*Receipt, error) {
	return s.receipts.Get(ctx, ReceiptKey(token))
}

// DeadLetter looks up the dead letter of a failed record.
func (s *CouchbaseSink) DeadLetter(ctx context.Context, token string) (*DeadLetter, error) {
	return s.deadLetters.Get(ctx, DeadLetterKey(token))
}

func newReceipt(rt Routed, now time.Time) Receipt {
	md := rt.Outcome.Metadata
	deliveredAt := md.Timestamp
	if deliveredAt.IsZero() {
		deliveredAt = now
	}

	return Receipt{
		ID:          ReceiptKey(rt.Record.ID),
		Token:       rt.Record.ID,
		Topic:       md.Topic,
		Partition:   md.Partition,
		Offset:      md.Offset,
		DeliveredAt: deliveredAt,
	}
}

// newDeadLetter builds the dead letter for rt, carrying the attempt count
// over from previous when the record failed before.
func newDeadLetter(rt Routed, previous *DeadLetter, now time.Time) DeadLetter {
	attempts := 1
	if previous != nil {
		attempts = previous.Attempts + 1
	}

	var cause string
	if rt.Outcome.Err != nil {
		cause = rt.Outcome.Err.Error()
	}

	return DeadLetter{
		ID:          DeadLetterKey(rt.Record.ID),
		Token:       rt.Record.ID,
		Topic:       rt.Record.Topic,
		Partition:   rt.Record.Partition,
		Key:         rt.Record.Key,
		Value:       rt.Record.Value,
		Headers:     rt.Record.Headers,
		Outcome:     rt.Outcome.Kind.String(),
		Attempted:   rt.Attempted(),
		Error:       cause,
		Attempts:    attempts,
		LastFailure: now,
	}
}

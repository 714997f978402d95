package relay

import (
	"errors"
	"fmt"
)

// Entry pairs a record's correlation token with its Outcome.
type Entry struct {
	Token   string
	Outcome Outcome
}

// BatchResult is the immutable outcome of one PublishBatch call. It holds
// exactly one Entry per input record, in submission order.
type BatchResult struct {
	entries []Entry
}

// Aggregate pairs records with their order-matched outcomes. It performs no
// I/O and fails only when the two slices cannot be paired one to one.
func Aggregate(records []Record, outcomes []Outcome) (BatchResult, error) {
	if len(records) != len(outcomes) {
		return BatchResult{}, fmt.Errorf("%w: %d records, %d outcomes", ErrOutcomeMismatch, len(records), len(outcomes))
	}

	entries := make([]Entry, len(records))
	for i, r := range records {
		if outcomes[i].Kind == 0 {
			return BatchResult{}, fmt.Errorf("%w: record %s at index %d has no outcome", ErrOutcomeMismatch, r.ID, i)
		}
		entries[i] = Entry{Token: r.ID, Outcome: outcomes[i]}
	}

	return BatchResult{entries: entries}, nil
}

// Len returns the number of entries, equal to the number of input records.
func (b BatchResult) Len() int {
	return len(b.entries)
}

// At returns the i-th entry.
func (b BatchResult) At(i int) Entry {
	return b.entries[i]
}

// Entries returns a copy of all entries in submission order.
func (b BatchResult) Entries() []Entry {
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Delivered returns the entries that were acknowledged by the broker.
func (b BatchResult) Delivered() []Entry {
	return b.filter(func(o Outcome) bool { return !o.Failed() })
}

// Failed returns the entries of both failure kinds.
func (b BatchResult) Failed() []Entry {
	return b.filter(Outcome.Failed)
}

// Counts returns the number of entries per OutcomeKind.
func (b BatchResult) Counts() map[OutcomeKind]int {
	counts := make(map[OutcomeKind]int, 3)
	for _, e := range b.entries {
		counts[e.Outcome.Kind]++
	}
	return counts
}

// Err joins the causes of every failed entry, or returns nil when all records
// were delivered.
func (b BatchResult) Err() error {
	var errs []error
	for _, e := range b.entries {
		if e.Outcome.Failed() {
			errs = append(errs, &Error{Token: e.Token, Kind: e.Outcome.Kind, Err: e.Outcome.Err})
		}
	}

	return errors.Join(errs...)
}

func (b BatchResult) filter(keep func(Outcome) bool) []Entry {
	var out []Entry
	for _, e := range b.entries {
		if keep(e.Outcome) {
			out = append(out, e)
		}
	}
	return out
}

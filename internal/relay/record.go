package relay

import (
	"github.com/google/uuid"
)

// Record is one unit of data handed to a Publisher. ID is the correlation
// token the caller uses to match an Outcome back to the upstream unit.
// A Record must not be mutated once it has been passed to PublishBatch.
type Record struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Partition *int32            `json:"partition,omitempty"`
	Key       []byte            `json:"key,omitempty"`
	Value     []byte            `json:"value"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// NewRecord builds a Record with a freshly generated correlation token.
func NewRecord(topic string, key, value []byte) Record {
	return Record{
		ID:    uuid.NewString(),
		Topic: topic,
		Key:   key,
		Value: value,
	}
}

// WithPartition returns a copy of r pinned to the given partition.
func (r Record) WithPartition(p int32) Record {
	r.Partition = &p
	return r
}

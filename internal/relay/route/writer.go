package route

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
	"unicode/utf8"
)

// EncodingBase64 marks a Line whose key and value are base64 encoded because
// they are not valid UTF-8.
const EncodingBase64 = "base64"

// Line is the JSON form of one routed record written by WriterSink.
type Line struct {
	Token     string            `json:"token"`
	Topic     string            `json:"topic"`
	Outcome   string            `json:"outcome"`
	Attempted bool              `json:"attempted"`
	Partition *int32            `json:"partition,omitempty"`
	Offset    int64             `json:"offset,omitempty"`
	Error     string            `json:"error,omitempty"`
	Key       string            `json:"key,omitempty"`
	Value     string            `json:"value,omitempty"`
	Encoding  string            `json:"encoding,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	At        time.Time         `json:"at"`
}

// WriterSink writes routed records as JSON lines. Delivered records go to
// success with their broker position. Failed records go to failure with their
// key, payload, headers and partition hint so the lines can be published
// again. Payloads that are not valid UTF-8 are written base64 encoded.
type WriterSink struct {
	mu      sync.Mutex
	success *json.Encoder
	failure *json.Encoder
}

func NewWriterSink(success, failure io.Writer) *WriterSink {
	return &WriterSink{
		success: json.NewEncoder(success),
		failure: json.NewEncoder(failure),
	}
}

func (s *WriterSink) Success(_ context.Context, routed []Routed) error {
	return s.write(s.success, routed, false)
}

func (s *WriterSink) Failure(_ context.Context, routed []Routed) error {
	return s.write(s.failure, routed, true)
}

func (s *WriterSink) write(enc *json.Encoder, routed []Routed, withPayload bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, r := range routed {
		line := Line{
			Token:     r.Record.ID,
			Topic:     r.Record.Topic,
			Outcome:   r.Outcome.Kind.String(),
			Attempted: r.Attempted(),
			At:        now,
		}
		if r.Outcome.Err != nil {
			line.Error = r.Outcome.Err.Error()
		}
		if withPayload {
			line.Partition = r.Record.Partition
			line.Headers = r.Record.Headers
			line.Key, line.Value, line.Encoding = encodePayload(r.Record.Key, r.Record.Value)
		} else {
			line.Partition = &r.Outcome.Metadata.Partition
			line.Offset = r.Outcome.Metadata.Offset
		}

		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("failed to write record %s: %w", r.Record.ID, err)
		}
	}

	return nil
}

func encodePayload(key, value []byte) (string, string, string) {
	if utf8.Valid(key) && utf8.Valid(value) {
		return string(key), string(value), ""
	}
	return base64.StdEncoding.EncodeToString(key), base64.StdEncoding.EncodeToString(value), EncodingBase64
}

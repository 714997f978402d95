package main

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"

	"relay/internal/relay"
	"relay/internal/relay/route"
)

// inputLine is one JSON line on stdin. Lines written to the failure output
// use "token" for the correlation id and can be fed back in unchanged. Key
// and value are plain text unless encoding is "base64".
type inputLine struct {
	ID        string            `json:"id"`
	Token     string            `json:"token"`
	Topic     string            `json:"topic"`
	Partition *int32            `json:"partition"`
	Key       string            `json:"key"`
	Value     string            `json:"value"`
	Headers   map[string]string `json:"headers"`
	Encoding  string            `json:"encoding"`
}

func (l inputLine) record(defaultTopic string) (relay.Record, error) {
	key, value := []byte(l.Key), []byte(l.Value)
	switch l.Encoding {
	case "":
	case route.EncodingBase64:
		var err error
		if key, err = base64.StdEncoding.DecodeString(l.Key); err != nil {
			return relay.Record{}, fmt.Errorf("invalid base64 key: %w", err)
		}
		if value, err = base64.StdEncoding.DecodeString(l.Value); err != nil {
			return relay.Record{}, fmt.Errorf("invalid base64 value: %w", err)
		}
	default:
		return relay.Record{}, fmt.Errorf("unknown encoding %q", l.Encoding)
	}

	r := relay.Record{
		ID:        l.ID,
		Topic:     l.Topic,
		Partition: l.Partition,
		Value:     value,
		Headers:   l.Headers,
	}
	if r.ID == "" {
		r.ID = l.Token
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Topic == "" {
		r.Topic = defaultTopic
	}
	if len(key) > 0 {
		r.Key = key
	}

	return r, nil
}

// batches reads JSON lines from r and calls fn with up to size records at a
// time. Blank lines are skipped.
func batches(r io.Reader, size int, defaultTopic string, fn func([]relay.Record) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	batch := make([]relay.Record, 0, size)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var line inputLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}

		rec, err := line.record(defaultTopic)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		batch = append(batch, rec)
		if len(batch) == size {
			if err := fn(batch); err != nil {
				return err
			}
			batch = make([]relay.Record, 0, size)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}

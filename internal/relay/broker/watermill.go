package broker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"

	"relay/internal/relay"
	"relay/internal/validator"
)

const (
	// MetadataPartition carries the record's partition hint in watermill metadata.
	MetadataPartition = "partition"
	// MetadataKey carries the record key in watermill metadata.
	MetadataKey = "key"
)

var (
	// ErrQueueFull is returned by Send when the internal send queue is full.
	ErrQueueFull = errors.New("send queue is full")
	// ErrClientClosed is returned by Send after Close.
	ErrClientClosed = errors.New("broker client is closed")
)

// WatermillOption configures a Watermill client.
type WatermillOption func(*Watermill)

// WithQueueSize sets the capacity of the internal send queue.
func WithQueueSize(n int) WatermillOption {
	return func(w *Watermill) {
		w.queueSize = n
	}
}

// WithQueueObserver is called with the queue depth after every enqueue and dequeue.
func WithQueueObserver(fn func(depth int)) WatermillOption {
	return func(w *Watermill) {
		w.observe = fn
	}
}

// Watermill is a relay.Client on top of a synchronous watermill publisher.
// Send only enqueues; a single worker publishes in submission order and
// resolves each record's acknowledgment.
type Watermill struct {
	publisher message.Publisher
	logger    *zap.Logger
	queueSize int
	observe   func(depth int)

	queue   chan *submission
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	offsets map[string]int64
}

func NewWatermill(publisher message.Publisher, logger *zap.Logger, opts ...WatermillOption) (*Watermill, error) {
	w := Watermill{
		publisher: publisher,
		logger:    logger,
		queueSize: 1024,
		observe:   func(int) {},
		offsets:   make(map[string]int64),
	}
	for _, opt := range opts {
		opt(&w)
	}

	if err := validator.Validate("watermill client", w.publisher, w.logger, w.queueSize); err != nil {
		return nil, fmt.Errorf("failed to validate watermill client deps: %w", err)
	}

	w.logger = w.logger.Named("watermill-client")
	w.queue = make(chan *submission, w.queueSize)
	w.wg.Add(1)
	go w.run()

	return &w, nil
}

type submission struct {
	stream    string
	partition int32
	msg       *message.Message
	done      chan struct{}
	md        relay.DeliveryMetadata
	err       error
}

func (s *submission) Wait(ctx context.Context) (relay.DeliveryMetadata, error) {
	select {
	case <-s.done:
		return s.md, s.err
	case <-ctx.Done():
		return relay.DeliveryMetadata{}, ctx.Err()
	}
}

// Send implements relay.Client.
func (w *Watermill) Send(ctx context.Context, record relay.Record) (relay.Ack, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return nil, ErrClientClosed
	}

	msg := message.NewMessage(record.ID, record.Value)
	msg.SetContext(context.WithoutCancel(ctx))
	for k, v := range record.Headers {
		msg.Metadata.Set(k, v)
	}
	if len(record.Key) > 0 {
		msg.Metadata.Set(MetadataKey, string(record.Key))
	}

	s := &submission{
		stream:    StreamName(record),
		partition: partitionOf(record),
		msg:       msg,
		done:      make(chan struct{}),
	}
	if record.Partition != nil {
		msg.Metadata.Set(MetadataPartition, strconv.Itoa(int(*record.Partition)))
	}

	select {
	case w.queue <- s:
	default:
		return nil, fmt.Errorf("record %s: %w", record.ID, ErrQueueFull)
	}
	w.observe(len(w.queue))

	return s, nil
}

func (w *Watermill) run() {
	defer w.wg.Done()

	for s := range w.queue {
		w.observe(len(w.queue))

		if err := w.publisher.Publish(s.stream, s.msg); err != nil {
			w.logger.Debug("publish failed", zap.String("stream", s.stream), zap.String("uuid", s.msg.UUID), zap.Error(err))
			s.err = fmt.Errorf("failed to publish to %s: %w", s.stream, err)
			close(s.done)
			continue
		}

		offset := w.offsets[s.stream]
		w.offsets[s.stream] = offset + 1
		s.md = relay.DeliveryMetadata{
			Topic:     s.stream,
			Partition: s.partition,
			Offset:    offset,
			Timestamp: time.Now().UTC(),
		}
		close(s.done)
	}
}

// Close stops accepting records, drains the queue and closes the publisher.
func (w *Watermill) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	w.wg.Wait()

	if err := w.publisher.Close(); err != nil {
		return fmt.Errorf("failed to close watermill publisher: %w", err)
	}
	return nil
}

// StreamName is the watermill topic for a record: the record topic, suffixed
// with the partition hint when one is set.
func StreamName(record relay.Record) string {
	if record.Partition == nil {
		return record.Topic
	}
	return fmt.Sprintf("%s.%d", record.Topic, *record.Partition)
}

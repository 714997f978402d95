// Package brokertest provides an in-memory relay.Client with controllable
// faults, for deterministic tests of code that publishes through a broker.
package brokertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"relay/internal/relay"
)

const (
	// FailValue makes the first Send carrying it fail synchronously.
	FailValue = "fail"
	// FutureFailValue makes the first acknowledgment for a record carrying it
	// resolve with an error.
	FutureFailValue = "futurefail"
)

var (
	// ErrInjectedSubmit is returned by Send for the submission fault.
	ErrInjectedSubmit = errors.New("injected submission failure")
	// ErrInjectedDelivery is returned by Ack.Wait for the delivery fault.
	ErrInjectedDelivery = errors.New("injected delivery failure")
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("brokertest: client closed")
)

// Option configures a Client.
type Option func(*Client)

// WithDelay sets how long the acknowledgment for each record takes to
// resolve. The default resolves immediately.
func WithDelay(fn func(relay.Record) time.Duration) Option {
	return func(c *Client) {
		c.delay = fn
	}
}

// WithSentinels replaces the payload values that trigger the submission and
// delivery faults.
func WithSentinels(fail, futureFail string) Option {
	return func(c *Client) {
		c.failValue = fail
		c.futureFailValue = futureFail
	}
}

// Client is a fault-injecting relay.Client. Each fault fires once per Client
// instance: the first record whose value equals the sentinel fails, later ones
// succeed.
type Client struct {
	mu              sync.Mutex
	failValue       string
	futureFailValue string
	failed          bool
	futureFailed    bool
	delay           func(relay.Record) time.Duration
	offsets         map[string]int64
	sent            []string
	awaited         []string
	closes          int
}

// NewClient creates a Client with the default sentinels.
func NewClient(opts ...Option) *Client {
	c := &Client{
		failValue:       FailValue,
		futureFailValue: FutureFailValue,
		delay:           func(relay.Record) time.Duration { return 0 },
		offsets:         make(map[string]int64),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Send implements relay.Client.
func (c *Client) Send(_ context.Context, record relay.Record) (relay.Ack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closes > 0 {
		return nil, ErrClosed
	}

	value := string(record.Value)
	if value == c.failValue && !c.failed {
		c.failed = true
		return nil, fmt.Errorf("send %s: %w", record.ID, ErrInjectedSubmit)
	}

	var deliveryErr error
	if value == c.futureFailValue && !c.futureFailed {
		c.futureFailed = true
		deliveryErr = fmt.Errorf("deliver %s: %w", record.ID, ErrInjectedDelivery)
	}

	var partition int32
	if record.Partition != nil {
		partition = *record.Partition
	}
	key := fmt.Sprintf("%s/%d", record.Topic, partition)
	offset := c.offsets[key]
	c.offsets[key] = offset + 1
	c.sent = append(c.sent, record.ID)

	md := relay.DeliveryMetadata{
		Topic:     record.Topic,
		Partition: partition,
		Offset:    offset,
		Timestamp: time.Now().UTC(),
	}

	return c.resolveAfter(record.ID, c.delay(record), md, deliveryErr), nil
}

func (c *Client) resolveAfter(token string, d time.Duration, md relay.DeliveryMetadata, err error) relay.Ack {
	done := make(chan struct{})
	time.AfterFunc(d, func() { close(done) })

	return relay.AckFunc(func(ctx context.Context) (relay.DeliveryMetadata, error) {
		c.mu.Lock()
		c.awaited = append(c.awaited, token)
		c.mu.Unlock()

		select {
		case <-done:
			if err != nil {
				return relay.DeliveryMetadata{}, err
			}
			return md, nil
		case <-ctx.Done():
			return relay.DeliveryMetadata{}, ctx.Err()
		}
	})
}

// Close implements relay.Client and counts how many times it was called.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closes++
	return nil
}

// Sent returns the tokens of records accepted by Send, in order.
func (c *Client) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.sent...)
}

// Awaited returns the tokens whose acknowledgment was waited on.
func (c *Client) Awaited() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.awaited...)
}

// Closes returns how many times Close was called.
func (c *Client) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closes
}

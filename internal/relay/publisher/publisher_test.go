package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"relay/internal/relay"
	"relay/internal/relay/brokertest"
	"relay/internal/validator"
)

func newPublisher(t *testing.T, client relay.Client, opts ...Option) *Publisher {
	t.Helper()

	p, err := New(client, zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	return p
}

func records(values ...string) []relay.Record {
	out := make([]relay.Record, len(values))
	for i, v := range values {
		out[i] = relay.NewRecord("orders", nil, []byte(v))
	}
	return out
}

func kinds(res relay.BatchResult) []relay.OutcomeKind {
	out := make([]relay.OutcomeKind, res.Len())
	for i, e := range res.Entries() {
		out[i] = e.Outcome.Kind
	}
	return out
}

func TestNew_MissingClient(t *testing.T) {
	_, err := New(nil, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, validator.ErrMissingDependency)

	_, err = New(brokertest.NewClient(), nil)
	assert.ErrorIs(t, err, validator.ErrMissingDependency)
}

func TestPublishBatch_SubmissionFailureDoesNotAbortBatch(t *testing.T) {
	client := brokertest.NewClient()
	p := newPublisher(t, client)

	batch := records("ok", brokertest.FailValue, "ok")
	res, err := p.PublishBatch(context.Background(), batch, time.Second)
	require.NoError(t, err)

	require.Equal(t, len(batch), res.Len())
	assert.Equal(t, []relay.OutcomeKind{relay.Delivered, relay.SubmissionFailed, relay.Delivered}, kinds(res))
	assert.ErrorIs(t, res.At(1).Outcome.Err, brokertest.ErrInjectedSubmit)

	// the rejected record never reached the awaiting layer
	assert.Equal(t, []string{batch[0].ID, batch[2].ID}, client.Sent())
	assert.ElementsMatch(t, []string{batch[0].ID, batch[2].ID}, client.Awaited())
}

func TestPublishBatch_DeferredFailure(t *testing.T) {
	client := brokertest.NewClient(brokertest.WithDelay(func(relay.Record) time.Duration {
		return 10 * time.Millisecond
	}))
	p := newPublisher(t, client)

	res, err := p.PublishBatch(context.Background(), records(brokertest.FutureFailValue), 50*time.Millisecond)
	require.NoError(t, err)

	require.Equal(t, 1, res.Len())
	o := res.At(0).Outcome
	assert.Equal(t, relay.ConfirmationFailed, o.Kind)
	assert.ErrorIs(t, o.Err, brokertest.ErrInjectedDelivery)
	assert.True(t, o.Attempted())
}

func TestPublishBatch_FaultsFireOnce(t *testing.T) {
	p := newPublisher(t, brokertest.NewClient())
	ctx := context.Background()

	res, err := p.PublishBatch(ctx, records(brokertest.FailValue, brokertest.FutureFailValue), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []relay.OutcomeKind{relay.SubmissionFailed, relay.ConfirmationFailed}, kinds(res))

	res, err = p.PublishBatch(ctx, records(brokertest.FailValue, brokertest.FutureFailValue), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []relay.OutcomeKind{relay.Delivered, relay.Delivered}, kinds(res))
}

func TestPublishBatch_Timeout(t *testing.T) {
	client := brokertest.NewClient(brokertest.WithDelay(func(r relay.Record) time.Duration {
		if string(r.Value) == "slow" {
			return time.Hour
		}
		return 0
	}))
	p := newPublisher(t, client)

	res, err := p.PublishBatch(context.Background(), records("ok", "slow", "ok"), 50*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, []relay.OutcomeKind{relay.Delivered, relay.ConfirmationFailed, relay.Delivered}, kinds(res))
	assert.ErrorIs(t, res.At(1).Outcome.Err, relay.ErrTimedOut)
}

type stuckClient struct{}

func (c *stuckClient) Send(context.Context, relay.Record) (relay.Ack, error) {
	return relay.AckFunc(func(context.Context) (relay.DeliveryMetadata, error) {
		select {} // ignores ctx on purpose
	}), nil
}

func (c *stuckClient) Close() error {
	return nil
}

func TestPublishBatch_TimeoutWhenAckIgnoresContext(t *testing.T) {
	p := newPublisher(t, &stuckClient{})

	res, err := p.PublishBatch(context.Background(), records("ok"), 20*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, relay.ConfirmationFailed, res.At(0).Outcome.Kind)
	assert.ErrorIs(t, res.At(0).Outcome.Err, relay.ErrTimedOut)
}

func TestPublishBatch_MetadataCorrelation(t *testing.T) {
	p := newPublisher(t, brokertest.NewClient())

	batch := []relay.Record{
		relay.NewRecord("orders", nil, []byte("a")).WithPartition(0),
		relay.NewRecord("users", nil, []byte("b")).WithPartition(2),
		relay.NewRecord("orders", nil, []byte("c")).WithPartition(0),
		relay.NewRecord("orders", nil, []byte("d")).WithPartition(1),
	}

	res, err := p.PublishBatch(context.Background(), batch, time.Second)
	require.NoError(t, err)
	require.NoError(t, res.Err())

	want := []relay.DeliveryMetadata{
		{Topic: "orders", Partition: 0, Offset: 0},
		{Topic: "users", Partition: 2, Offset: 0},
		{Topic: "orders", Partition: 0, Offset: 1},
		{Topic: "orders", Partition: 1, Offset: 0},
	}
	for i, e := range res.Entries() {
		assert.Equal(t, batch[i].ID, e.Token)
		assert.Equal(t, want[i].Topic, e.Outcome.Metadata.Topic)
		assert.Equal(t, want[i].Partition, e.Outcome.Metadata.Partition)
		assert.Equal(t, want[i].Offset, e.Outcome.Metadata.Offset)
	}
}

func TestPublishBatch_OrderIndependentOfResolution(t *testing.T) {
	delays := map[string]time.Duration{"1": 60 * time.Millisecond, "2": 30 * time.Millisecond, "3": 0}
	client := brokertest.NewClient(brokertest.WithDelay(func(r relay.Record) time.Duration {
		return delays[string(r.Value)]
	}))
	p := newPublisher(t, client)

	batch := records("1", "2", "3")
	res, err := p.PublishBatch(context.Background(), batch, time.Second)
	require.NoError(t, err)

	for i := range batch {
		assert.Equal(t, batch[i].ID, res.At(i).Token)
		assert.Equal(t, relay.Delivered, res.At(i).Outcome.Kind)
	}
}

func TestPublishBatch_WaitsOverlap(t *testing.T) {
	client := brokertest.NewClient(brokertest.WithDelay(func(relay.Record) time.Duration {
		return 100 * time.Millisecond
	}))
	p := newPublisher(t, client)

	start := time.Now()
	res, err := p.PublishBatch(context.Background(), records("a", "b", "c", "d", "e"), time.Second)
	require.NoError(t, err)
	require.NoError(t, res.Err())

	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestPublishBatch_AwaitConcurrencyLimit(t *testing.T) {
	p := newPublisher(t, brokertest.NewClient(), WithAwaitConcurrency(1))

	res, err := p.PublishBatch(context.Background(), records("a", "b", "c"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []relay.OutcomeKind{relay.Delivered, relay.Delivered, relay.Delivered}, kinds(res))
}

func TestPublishBatch_Empty(t *testing.T) {
	p := newPublisher(t, brokertest.NewClient())

	res, err := p.PublishBatch(context.Background(), nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Len())
}

func TestPublishBatch_InvalidTimeout(t *testing.T) {
	p := newPublisher(t, brokertest.NewClient())

	_, err := p.PublishBatch(context.Background(), records("a"), 0)
	assert.ErrorIs(t, err, relay.ErrInvalidTimeout)
}

func TestPublishBatch_CancelledContext(t *testing.T) {
	client := brokertest.NewClient(brokertest.WithDelay(func(relay.Record) time.Duration { return time.Hour }))
	p := newPublisher(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	res, err := p.PublishBatch(ctx, records("a"), time.Minute)
	require.NoError(t, err)

	o := res.At(0).Outcome
	assert.Equal(t, relay.ConfirmationFailed, o.Kind)
	assert.ErrorIs(t, o.Err, context.Canceled)
	assert.NotErrorIs(t, o.Err, relay.ErrTimedOut)
}

type nilAckClient struct{}

func (nilAckClient) Send(context.Context, relay.Record) (relay.Ack, error) { return nil, nil }
func (nilAckClient) Close() error { return nil }

func TestPublishBatch_NilAckIsSubmissionFailure(t *testing.T) {
	p := newPublisher(t, nilAckClient{})

	res, err := p.PublishBatch(context.Background(), records("a"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, relay.SubmissionFailed, res.At(0).Outcome.Kind)
}

func TestClose_Idempotent(t *testing.T) {
	client := brokertest.NewClient()
	p := newPublisher(t, client)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, client.Closes())

	assert.ErrorIs(t, p.Ready(), relay.ErrClosed)

	_, err := p.PublishBatch(context.Background(), records("a"), time.Second)
	assert.ErrorIs(t, err, relay.ErrClosed)
}

type failingCloseClient struct {
	*brokertest.Client
}

func (c *failingCloseClient) Close() error {
	_ = c.Client.Close()
	return errors.New("connection reset")
}

func TestClose_ReportsClientErrorOnce(t *testing.T) {
	client := &failingCloseClient{Client: brokertest.NewClient()}
	p, err := New(client, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.Error(t, p.Close())
	assert.NoError(t, p.Close())
	assert.Equal(t, 1, client.Closes())
}

func TestOutcomeOf(t *testing.T) {
	nacked := errors.New("nacked")

	tests := []struct {
		name     string
		res      ackResult
		timedOut bool
		kind     relay.OutcomeKind
		timeout  bool
	}{
		{"delivered", ackResult{md: relay.DeliveryMetadata{Offset: 3}}, false, relay.Delivered, false},
		{"broker error", ackResult{err: nacked}, false, relay.ConfirmationFailed, false},
		{"deadline", ackResult{err: context.DeadlineExceeded}, true, relay.ConfirmationFailed, true},
		{"cancelled", ackResult{err: context.Canceled}, false, relay.ConfirmationFailed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := outcomeOf(tt.res, tt.timedOut, time.Second)
			assert.Equal(t, tt.kind, o.Kind)
			assert.Equal(t, tt.timeout, errors.Is(o.Err, relay.ErrTimedOut))
		})
	}
}

type lateErrorClient struct {
	*brokertest.Client
	err error
}

func (c *lateErrorClient) Send(context.Context, relay.Record) (relay.Ack, error) {
	return relay.AckFunc(func(ctx context.Context) (relay.DeliveryMetadata, error) {
		deadline, _ := ctx.Deadline()
		time.Sleep(time.Until(deadline) - 10*time.Millisecond)
		return relay.DeliveryMetadata{}, c.err
	}), nil
}

func TestPublishBatch_BrokerErrorNearDeadlineIsNotTimeout(t *testing.T) {
	nacked := errors.New("nacked")
	p := newPublisher(t, &lateErrorClient{Client: brokertest.NewClient(), err: nacked})

	res, err := p.PublishBatch(context.Background(), records("ok"), 100*time.Millisecond)
	require.NoError(t, err)

	o := res.At(0).Outcome
	assert.Equal(t, relay.ConfirmationFailed, o.Kind)
	assert.ErrorIs(t, o.Err, nacked)
	assert.NotErrorIs(t, o.Err, relay.ErrTimedOut)
}

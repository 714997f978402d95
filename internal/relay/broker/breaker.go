package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"relay/internal/relay"
	"relay/internal/validator"
)

// BreakerConfig configures the circuit breaker around a broker client.
type BreakerConfig struct {
	Enabled          bool          `env:"ENABLED" envDefault:"true"`
	MaxRequests      uint32        `env:"MAX_REQUESTS" envDefault:"1"`
	Interval         time.Duration `env:"INTERVAL" envDefault:"0s"`
	Timeout          time.Duration `env:"TIMEOUT" envDefault:"30s"`
	FailureThreshold uint32        `env:"FAILURE_THRESHOLD" envDefault:"5"`
}

// StateObserver is notified of breaker state transitions.
type StateObserver func(name string, state gobreaker.State)

// Breaker guards a relay.Client with a two-step circuit breaker. Sends are
// rejected while the breaker is open; both send errors and failed
// acknowledgments count as failures.
type Breaker struct {
	client  relay.Client
	breaker *gobreaker.TwoStepCircuitBreaker[struct{}]
}

func NewBreaker(name string, client relay.Client, cfg BreakerConfig, logger *zap.Logger, observe StateObserver) (*Breaker, error) {
	if err := validator.Validate("breaker", name, client, logger); err != nil {
		return nil, fmt.Errorf("failed to validate breaker deps: %w", err)
	}
	if observe == nil {
		observe = func(string, gobreaker.State) {}
	}

	logger = logger.Named("breaker")
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			observe(name, to)
		},
	}

	return &Breaker{
		client:  client,
		breaker: gobreaker.NewTwoStepCircuitBreaker[struct{}](settings),
	}, nil
}

// Send implements relay.Client.
func (b *Breaker) Send(ctx context.Context, record relay.Record) (relay.Ack, error) {
	done, err := b.breaker.Allow()
	if err != nil {
		return nil, fmt.Errorf("broker %s unavailable: %w", b.breaker.Name(), err)
	}

	ack, err := b.client.Send(ctx, record)
	if err != nil {
		done(false)
		return nil, err
	}
	if ack == nil {
		done(false)
		return nil, nil
	}

	return &breakerAck{ack: ack, done: done}, nil
}

// State returns the breaker's current state.
func (b *Breaker) State() gobreaker.State {
	return b.breaker.State()
}

func (b *Breaker) Close() error {
	return b.client.Close()
}

type breakerAck struct {
	ack  relay.Ack
	done func(success bool)
	once sync.Once
}

// Wait reports the acknowledgment to the breaker once. A caller cancelling
// the wait says nothing about the broker and counts as success.
func (a *breakerAck) Wait(ctx context.Context) (relay.DeliveryMetadata, error) {
	md, err := a.ack.Wait(ctx)
	a.once.Do(func() {
		a.done(err == nil || errors.Is(err, context.Canceled))
	})
	return md, err
}

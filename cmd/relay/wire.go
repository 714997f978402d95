package main

import (
	"fmt"
	"io"
	"os"

	"github.com/couchbase/gocb/v2"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"relay/internal/config"
	"relay/internal/couchbase"
	"relay/internal/relay"
	"relay/internal/relay/broker"
	"relay/internal/relay/brokertest"
	"relay/internal/relay/metrics"
	"relay/internal/relay/route"
)

// newClient builds the broker client named by cfg.Broker, wrapped in a
// circuit breaker when enabled. Construction errors are fatal.
func newClient(cfg config.Config, logger *zap.Logger, registry *metrics.Registry) (relay.Client, error) {
	var (
		client relay.Client
		err    error
	)

	switch cfg.Broker {
	case config.BrokerAMQP:
		client, err = broker.DialAMQP(cfg.AMQP, logger)
	case config.BrokerRedis:
		client, err = broker.NewRedisStream(cfg.Redis, logger, broker.WithQueueObserver(func(depth int) {
			registry.SetSendQueueSize(config.BrokerRedis, depth)
		}))
	case config.BrokerFault:
		client = brokertest.NewClient()
	default:
		err = fmt.Errorf("unknown broker %q", cfg.Broker)
	}
	if err != nil {
		return nil, err
	}

	if !cfg.Breaker.Enabled {
		return client, nil
	}

	breaker, err := broker.NewBreaker(cfg.Broker, client, cfg.Breaker, logger, func(name string, s gobreaker.State) {
		registry.SetBreakerState(name, float64(s))
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	return breaker, nil
}

// newSink builds the routing sink and returns a cleanup for whatever it opened.
func newSink(cfg config.Config, logger *zap.Logger) (route.Sink, func(), error) {
	switch cfg.Sink {
	case config.SinkCouchbase:
		sink, closeSink, err := newCouchbaseSink(cfg.Couchbase, logger)
		if err != nil {
			return nil, nil, err
		}
		return sink, closeSink, nil
	default:
		return newWriterSink(cfg.SuccessOut, cfg.FailureOut)
	}
}

func newWriterSink(successPath, failurePath string) (route.Sink, func(), error) {
	success, closeSuccess, err := openOutput(successPath)
	if err != nil {
		return nil, nil, err
	}

	failure, closeFailure, err := openOutput(failurePath)
	if err != nil {
		closeSuccess()
		return nil, nil, err
	}

	return route.NewWriterSink(success, failure), func() {
		closeSuccess()
		closeFailure()
	}, nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "-" {
		return os.Stdout, func() {}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	return f, func() { _ = f.Close() }, nil
}

func newCouchbaseSink(cfg couchbase.Config, logger *zap.Logger) (*route.CouchbaseSink, func(), error) {
	cluster, bucket, err := couchbase.Connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	closeCluster := func() {
		if err := cluster.Close(nil); err != nil {
			logger.Error("failed to close couchbase cluster", zap.Error(err))
		}
	}

	sink, err := buildCouchbaseSink(cluster, bucket, cfg.Scope)
	if err != nil {
		closeCluster()
		return nil, nil, err
	}

	return sink, closeCluster, nil
}

func buildCouchbaseSink(cluster *gocb.Cluster, bucket *gocb.Bucket, scope string) (*route.CouchbaseSink, error) {
	receipts, err := route.NewReceiptsStore(bucket, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to create receipts store: %w", err)
	}
	deadLetters, err := route.NewDeadLettersStore(bucket, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to create dead letters store: %w", err)
	}
	transactions, err := couchbase.NewTransactions(cluster, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactions: %w", err)
	}

	return route.NewCouchbaseSink(receipts, deadLetters, transactions)
}

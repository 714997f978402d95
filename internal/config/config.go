// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"relay/internal/couchbase"
	"relay/internal/relay/broker"
	"relay/internal/relay/metrics"
	"relay/internal/relay/tracing"
)

const (
	BrokerAMQP  = "amqp"
	BrokerRedis = "redis"
	BrokerFault = "fault"

	SinkWriter    = "writer"
	SinkCouchbase = "couchbase"
)

type Config struct {
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	Broker           string        `env:"BROKER" envDefault:"amqp"`
	Topic            string        `env:"TOPIC" envDefault:"relay"`
	PublishTimeout   time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"5s"`
	BatchSize        int           `env:"BATCH_SIZE" envDefault:"100"`
	AwaitConcurrency int           `env:"AWAIT_CONCURRENCY" envDefault:"0"`
	Sink             string        `env:"SINK" envDefault:"writer"`
	SuccessOut       string        `env:"SUCCESS_OUT" envDefault:"-"`
	FailureOut       string        `env:"FAILURE_OUT" envDefault:"failed.jsonl"`

	AMQP      broker.AMQPConfig    `envPrefix:"AMQP_"`
	Redis     broker.RedisConfig   `envPrefix:"REDIS_"`
	Breaker   broker.BreakerConfig `envPrefix:"BREAKER_"`
	Couchbase couchbase.Config     `envPrefix:"COUCHBASE_"`
	Metrics   metrics.ServerConfig `envPrefix:"METRICS_"`
	Tracing   tracing.Config       `envPrefix:"TRACING_"`
}

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	return cfg, nil
}

// Validate checks values that env tags cannot express.
func (c Config) Validate() error {
	var errs []error

	switch c.Broker {
	case BrokerAMQP, BrokerRedis, BrokerFault:
	default:
		errs = append(errs, fmt.Errorf("unknown broker %q", c.Broker))
	}

	switch c.Sink {
	case SinkWriter, SinkCouchbase:
	default:
		errs = append(errs, fmt.Errorf("unknown sink %q", c.Sink))
	}

	if c.PublishTimeout <= 0 {
		errs = append(errs, fmt.Errorf("publish timeout must be positive, got %s", c.PublishTimeout))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch size must be positive, got %d", c.BatchSize))
	}

	return errors.Join(errs...)
}

// NewLogger builds a production zap logger at the given level. An invalid
// level falls back to info.
func NewLogger(level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		log.Printf("invalid log level %q, defaulting to info: %v", level, err)
		zapLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger, nil
}

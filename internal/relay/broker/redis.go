package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig holds connection settings for the redis streams client.
type RedisConfig struct {
	Addr        string        `env:"ADDR" envDefault:"localhost:6379"`
	Password    string        `env:"PASSWORD"`
	DB          int           `env:"DB" envDefault:"0"`
	MaxLen      int64         `env:"MAX_LEN" envDefault:"0"`
	DialTimeout time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	QueueSize   int           `env:"QUEUE_SIZE" envDefault:"1024"`
}

// NewRedisStream connects to redis and returns a Watermill client publishing
// to redis streams. Connection failures are fatal for the caller.
func NewRedisStream(cfg RedisConfig, logger *zap.Logger, opts ...WatermillOption) (*Watermill, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	pubCfg := redisstream.PublisherConfig{Client: client}
	if cfg.MaxLen > 0 {
		pubCfg.DefaultMaxlen = cfg.MaxLen
	}

	publisher, err := redisstream.NewPublisher(pubCfg, NewWatermillLogger(logger))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create redis stream publisher: %w", err)
	}

	return NewWatermill(publisher, logger, append([]WatermillOption{WithQueueSize(cfg.QueueSize)}, opts...)...)
}

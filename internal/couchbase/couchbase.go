// Package couchbase is a thin typed layer over the Couchbase Go SDK.
package couchbase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
)

// Config holds cluster connection settings.
type Config struct {
	ConnectionString string        `env:"CONNECTION_STRING" envDefault:"couchbase://localhost"`
	Username         string        `env:"USERNAME" envDefault:"Administrator"`
	Password         string        `env:"PASSWORD" envDefault:"password"`
	Bucket           string        `env:"BUCKET" envDefault:"relay"`
	Scope            string        `env:"SCOPE" envDefault:"_default"`
	ConnectTimeout   time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s"`
	KVTimeout        time.Duration `env:"KV_TIMEOUT" envDefault:"5s"`
}

// Connect opens the cluster and waits for the bucket to become ready.
func Connect(cfg Config) (*gocb.Cluster, *gocb.Bucket, error) {
	cluster, err := gocb.Connect(cfg.ConnectionString, gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		},
		TimeoutsConfig: gocb.TimeoutsConfig{
			ConnectTimeout: cfg.ConnectTimeout,
			KVTimeout:      cfg.KVTimeout,
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to cluster: %w", err)
	}

	bucket := cluster.Bucket(cfg.Bucket)
	if err := bucket.WaitUntilReady(cfg.ConnectTimeout, nil); err != nil {
		_ = cluster.Close(nil)
		return nil, nil, fmt.Errorf("bucket %s not ready: %w", cfg.Bucket, err)
	}

	return cluster, bucket, nil
}

// ErrNotFound is returned by Get when no document exists for the key.
var ErrNotFound = errors.New("document not found")

// Store is typed read access to one collection that can also be enlisted in
// a transaction.
type Store[T any] interface {
	TransactionCollection
	Get(ctx context.Context, key string) (*T, error)
}

// Couchbase provides typed access to one collection.
type Couchbase[T any] struct {
	collection *gocb.Collection
}

func NewCouchbase[T any](collection *gocb.Collection) (*Couchbase[T], error) {
	if collection == nil {
		return nil, errors.New("invalid Couchbase parameters: collection must not be nil")
	}

	return &Couchbase[T]{collection: collection}, nil
}

// Get retrieves a document by key.
func (c *Couchbase[T]) Get(ctx context.Context, key string) (*T, error) {
	res, err := c.collection.Get(key, &gocb.GetOptions{Context: ctx})
	switch {
	case err == nil:
	case errors.Is(err, gocb.ErrDocumentNotFound):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	default:
		return nil, fmt.Errorf("failed to get document with key %s: %w", key, err)
	}

	var v T
	if err := res.Content(&v); err != nil {
		return nil, fmt.Errorf("failed to parse document content for key %s: %w", key, err)
	}

	return &v, nil
}

// Collection returns the underlying collection, used to enlist it in transactions.
func (c *Couchbase[T]) Collection() *gocb.Collection {
	return c.collection
}

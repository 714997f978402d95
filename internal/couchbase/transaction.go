package couchbase

import (
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
)

// Transactor runs a TransactionAttempt atomically and returns the
// transaction ID.
type Transactor interface {
	Transaction(fn TransactionAttempt) (string, error)
}

// Transactions runs functions inside Couchbase distributed transactions.
type Transactions struct {
	cluster *gocb.Cluster
	timeout time.Duration
}

func NewTransactions(cluster *gocb.Cluster, timeout time.Duration) (*Transactions, error) {
	if cluster == nil {
		return nil, fmt.Errorf("couchbase cluster cannot be nil")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Transactions{
		cluster: cluster,
		timeout: timeout,
	}, nil
}

// Transaction runs fn, retrying attempts as the SDK decides, and returns the
// transaction ID on success.
func (t *Transactions) Transaction(fn TransactionAttempt) (string, error) {
	opts := gocb.TransactionOptions{
		DurabilityLevel: gocb.DurabilityLevelNone,
		Timeout:         t.timeout,
	}
	run := func(actx *gocb.TransactionAttemptContext) error {
		return fn(&transactionRunner{ctx: actx})
	}

	res, err := t.cluster.Transactions().Run(run, &opts)
	if err != nil {
		return "", fmt.Errorf("failed to run transaction: %w", err)
	}

	return res.TransactionID, nil
}

// TransactionCollection is anything that can enlist its collection in a transaction.
type TransactionCollection interface {
	Collection() *gocb.Collection
}

// TransactionRunner is the set of operations available inside a transaction.
type TransactionRunner interface {
	// Get returns found=false without error when the document does not exist.
	Get(tc TransactionCollection, key string, into any) (doc *gocb.TransactionGetResult, found bool, err error)
	Insert(tc TransactionCollection, key string, value any) error
	Replace(doc *gocb.TransactionGetResult, value any) error
	Remove(doc *gocb.TransactionGetResult) error
}

// TransactionAttempt is the body of a transaction.
type TransactionAttempt func(r TransactionRunner) error

type transactionRunner struct {
	ctx *gocb.TransactionAttemptContext
}

func (t *transactionRunner) Get(tc TransactionCollection, key string, into any) (*gocb.TransactionGetResult, bool, error) {
	doc, err := t.ctx.Get(tc.Collection(), key)
	switch {
	case err == nil:
	case errors.Is(err, gocb.ErrDocumentNotFound):
		return nil, false, nil
	default:
		return nil, false, err
	}

	if into != nil {
		if err := doc.Content(into); err != nil {
			return nil, false, fmt.Errorf("failed to parse document content for key %s: %w", key, err)
		}
	}

	return doc, true, nil
}

func (t *transactionRunner) Insert(tc TransactionCollection, key string, value any) error {
	_, err := t.ctx.Insert(tc.Collection(), key, value)
	return err
}

func (t *transactionRunner) Replace(doc *gocb.TransactionGetResult, value any) error {
	_, err := t.ctx.Replace(doc, value)
	return err
}

func (t *transactionRunner) Remove(doc *gocb.TransactionGetResult) error {
	return t.ctx.Remove(doc)
}

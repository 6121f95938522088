package evm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"perp-stats/internal/logging"
	"perp-stats/internal/observability"
)

// ErrNoTimestampSource is returned by FixedChain, which cannot look up blocks.
var ErrNoTimestampSource = errors.New("no block timestamp source")

// ChainReader is the part of a node the resolver needs.
type ChainReader interface {
	ChainID(ctx context.Context) (int64, error)
	BlockTimestamp(ctx context.Context, number uint64) (int64, error)
}

// RetryPolicy configures exponential backoff for chain lookups.
type RetryPolicy struct {
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Multiplier      float64       `yaml:"multiplier"`
	// MaxAttempts caps retries after the first try. 0 retries until success.
	MaxAttempts uint64 `yaml:"max_attempts"`
}

// DefaultRetryPolicy retries forever, from 500ms up to 30s between tries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	def := DefaultRetryPolicy()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = def.InitialInterval
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	b.MaxInterval = def.MaxInterval
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.Multiplier = def.Multiplier
	if p.Multiplier >= 1 {
		b.Multiplier = p.Multiplier
	}
	b.MaxElapsedTime = 0
	b.Reset()

	var bo backoff.BackOff = b
	if p.MaxAttempts > 0 {
		bo = backoff.WithMaxRetries(bo, p.MaxAttempts)
	}
	return backoff.WithContext(bo, ctx)
}

// Resolver resolves the chain id and block timestamps, retrying transient
// failures according to its policy. The chain id is resolved once.
type Resolver struct {
	reader ChainReader
	policy RetryPolicy
	log    *logrus.Entry

	mu        sync.Mutex
	chainID   int64
	lastBlock uint64
	lastTS    int64
}

// NewResolver creates a resolver over reader.
func NewResolver(reader ChainReader, policy RetryPolicy, log *logrus.Entry) *Resolver {
	return &Resolver{
		reader: reader,
		policy: policy,
		log:    logging.OrDefault(log, "evm.resolver"),
	}
}

// ChainID returns the chain id of the node.
func (r *Resolver) ChainID(ctx context.Context) (int64, error) {
	r.mu.Lock()
	id := r.chainID
	r.mu.Unlock()
	if id != 0 {
		return id, nil
	}

	err := r.retry(ctx, "chain_id", func() error {
		var err error
		id, err = r.reader.ChainID(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("resolve chain id: %w", err)
	}

	r.mu.Lock()
	r.chainID = id
	r.mu.Unlock()
	return id, nil
}

// BlockTimestamp returns the unix timestamp (seconds) of block number.
// Consecutive events usually share a block, so the last answer is kept.
func (r *Resolver) BlockTimestamp(ctx context.Context, number uint64) (int64, error) {
	r.mu.Lock()
	if r.lastTS != 0 && r.lastBlock == number {
		ts := r.lastTS
		r.mu.Unlock()
		return ts, nil
	}
	r.mu.Unlock()

	var ts int64
	err := r.retry(ctx, "block_timestamp", func() error {
		var err error
		ts, err = r.reader.BlockTimestamp(ctx, number)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("resolve timestamp of block %d: %w", number, err)
	}

	r.mu.Lock()
	r.lastBlock, r.lastTS = number, ts
	r.mu.Unlock()
	return ts, nil
}

func (r *Resolver) retry(ctx context.Context, op string, fn func() error) error {
	return backoff.RetryNotify(fn, r.policy.backOff(ctx), func(err error, wait time.Duration) {
		observability.RecordResolverRetry(op)
		r.log.WithError(err).WithFields(logrus.Fields{
			"operation": op,
			"wait":      wait,
		}).Warn("chain lookup failed, retrying")
	})
}

// FixedChain answers ChainID from configuration and never resolves blocks.
// It serves sources whose events already carry timestamps.
type FixedChain struct {
	ID int64
}

// ChainID returns the configured id.
func (f FixedChain) ChainID(context.Context) (int64, error) {
	return f.ID, nil
}

// BlockTimestamp always fails permanently.
func (f FixedChain) BlockTimestamp(_ context.Context, number uint64) (int64, error) {
	return 0, backoff.Permanent(fmt.Errorf("block %d: %w", number, ErrNoTimestampSource))
}

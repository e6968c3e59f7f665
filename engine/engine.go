package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/krisalay/sharded-counter/shard"
	"github.com/krisalay/sharded-counter/types"
)

const (
	// DefaultShards is the shard count a counter starts with.
	DefaultShards = 20

	// DefaultCacheTTL bounds how stale a cached total can be.
	DefaultCacheTTL = 60 * time.Second

	// DefaultMaxAttempts bounds retries of transient store errors.
	DefaultMaxAttempts = 3

	// DefaultRetryBackoff is the wait before the second attempt; it doubles after that.
	DefaultRetryBackoff = 10 * time.Millisecond

	// MaxNameBytes caps counter names so they stay usable as storage keys.
	MaxNameBytes = 1500
)

// Policy holds the static knobs of the engine. Zero fields take the defaults above.
type Policy struct {
	DefaultShards int
	CacheTTL      time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
}

/*
CounterEngine is the "brain" of the counter.
It owns the RULES, not the data.

It decides:
- Which counter names are acceptable
- How many shards a new counter gets and how long totals are cached
- Which shard an increment lands on
- Which store errors are retried, how often, and how long to wait
- Where metrics and logs go

It does NOT:
- Store shards, configs or totals
- Take locks
*/
type CounterEngine struct {
	DefaultShards int
	CacheTTL      time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration

	// Selector picks shard indices. Inject a SequenceSelector for deterministic tests.
	Selector shard.Selector

	Metrics types.Metrics
	Logger  *slog.Logger
}

/*
NewCounterEngine creates a CounterEngine.

nil selector, metrics or logger fall back to a random selector, NoopMetrics and
slog.Default, so the rest of the code never checks for nil.
*/
func NewCounterEngine(
	policy Policy,
	selector shard.Selector,
	metrics types.Metrics,
	logger *slog.Logger,
) *CounterEngine {
	if policy.DefaultShards <= 0 {
		policy.DefaultShards = DefaultShards
	}
	if policy.CacheTTL <= 0 {
		policy.CacheTTL = DefaultCacheTTL
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultMaxAttempts
	}
	if policy.RetryBackoff < 0 {
		policy.RetryBackoff = 0
	}
	if selector == nil {
		selector = shard.NewRandomSelector(nil)
	}
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &CounterEngine{
		DefaultShards: policy.DefaultShards,
		CacheTTL:      policy.CacheTTL,
		MaxAttempts:   policy.MaxAttempts,
		RetryBackoff:  policy.RetryBackoff,
		Selector:      selector,
		Metrics:       metrics,
		Logger:        logger,
	}
}

/*
ValidateName rejects names before any store access.

A name must be non-empty valid UTF-8, at most MaxNameBytes long, and free of control
characters (they break log lines and file-backed keys).
*/
func (e *CounterEngine) ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", types.ErrInvalidCounterName)
	case len(name) > MaxNameBytes:
		return fmt.Errorf("%w: %d bytes exceeds %d", types.ErrInvalidCounterName, len(name), MaxNameBytes)
	case !utf8.ValidString(name):
		return fmt.Errorf("%w: not valid UTF-8", types.ErrInvalidCounterName)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: contains control character %U", types.ErrInvalidCounterName, r)
		}
	}
	return nil
}

// PickShard returns an index in [0, shardCount).
func (e *CounterEngine) PickShard(shardCount int) int {
	if shardCount <= 1 {
		return 0
	}
	idx := e.Selector.Select(shardCount)
	if idx < 0 || idx >= shardCount {
		// A misbehaving selector must not break the shard bound.
		idx = ((idx % shardCount) + shardCount) % shardCount
	}
	return idx
}

/*
Retry runs fn until it succeeds, fails permanently, or MaxAttempts is reached.

Only transient errors (ErrStoreUnavailable, ErrTransactionConflict) are retried. Between
attempts it waits RetryBackoff, doubling each time, and gives up early if ctx is done.
It returns the number of attempts made and the last error.
*/
func (e *CounterEngine) Retry(ctx context.Context, op string, fn func(attempt int) error) (int, error) {
	wait := e.RetryBackoff

	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return attempt, nil
		}
		if !types.IsTransient(err) {
			return attempt, err
		}

		e.Metrics.Conflict()
		if attempt >= e.MaxAttempts {
			e.Logger.Warn("retries exhausted", "op", op, "attempts", attempt, "error", err)
			return attempt, err
		}
		e.Logger.Debug("retrying", "op", op, "attempt", attempt, "error", err)

		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return attempt, fmt.Errorf("%w: %w", ctx.Err(), err)
			case <-t.C:
			}
			wait *= 2
		} else if ctx.Err() != nil {
			return attempt, fmt.Errorf("%w: %w", ctx.Err(), err)
		}
	}
}

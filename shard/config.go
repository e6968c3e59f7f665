package shard

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/krisalay/sharded-counter/types"
	"github.com/krisalay/sharded-counter/writepolicy"
)

//go:generate mockgen -source=config.go -destination=mocks/mock_config.go -package=mocks

// ConfigStore is durable storage over counter name → shard count.
type ConfigStore interface {

	// Get returns the config of name without creating it.
	Get(ctx context.Context, name string) (types.ShardConfig, bool, error)

	// GetOrCreate returns the existing config or creates one with defaultCount.
	// Racing first-time callers all observe the same ShardCount.
	GetOrCreate(ctx context.Context, name string, defaultCount int) (types.ShardConfig, error)

	// GrowTo atomically sets ShardCount = max(ShardCount, requested). It never decreases.
	// The config must exist; otherwise ErrUnknownCounter is returned.
	GrowTo(ctx context.Context, name string, requested int) (types.ShardConfig, error)
}

type configEntry struct {
	// mu serializes read-modify-write of count and the first persist.
	mu sync.Mutex

	// count and durable are atomics so the increment hot path reads them without mu.
	count atomic.Int64

	// durable is set once the creation went through the write policy.
	durable atomic.Bool
}

// MemoryConfigStore is the in-memory ConfigStore.
type MemoryConfigStore struct {
	entries sync.Map // counter name → *configEntry
	policy  writepolicy.WritePolicy
}

func NewMemoryConfigStore(policy writepolicy.WritePolicy) *MemoryConfigStore {
	return &MemoryConfigStore{policy: policy}
}

func (s *MemoryConfigStore) Get(ctx context.Context, name string) (types.ShardConfig, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.ShardConfig{}, false, err
	}
	v, ok := s.entries.Load(name)
	if !ok {
		return types.ShardConfig{}, false, nil
	}
	e := v.(*configEntry)
	if !e.durable.Load() {
		return types.ShardConfig{}, false, nil
	}
	return types.ShardConfig{Counter: name, ShardCount: int(e.count.Load())}, true, nil
}

/*
GetOrCreate is called on every increment, so the common case must be cheap:

1. Fast path: the entry exists and is durable → two atomic loads, no lock
2. Slow path: LoadOrStore picks ONE entry for all racing creators, then the first
   caller to take its mutex persists it
*/
func (s *MemoryConfigStore) GetOrCreate(ctx context.Context, name string, defaultCount int) (types.ShardConfig, error) {
	if defaultCount < 1 {
		return types.ShardConfig{}, fmt.Errorf("%w: default %d", types.ErrInvalidShardCount, defaultCount)
	}

	if v, ok := s.entries.Load(name); ok {
		e := v.(*configEntry)
		if e.durable.Load() {
			return types.ShardConfig{Counter: name, ShardCount: int(e.count.Load())}, nil
		}
	}

	fresh := &configEntry{}
	fresh.count.Store(int64(defaultCount))
	v, _ := s.entries.LoadOrStore(name, fresh)
	e := v.(*configEntry)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.durable.Load() {
		if err := ctx.Err(); err != nil {
			return types.ShardConfig{}, err
		}
		if s.policy != nil {
			rec := types.ConfigRecord(name, int(e.count.Load()))
			if err := s.policy.OnWrite(ctx, rec); err != nil {
				return types.ShardConfig{}, err
			}
		}
		e.durable.Store(true)
	}

	return types.ShardConfig{Counter: name, ShardCount: int(e.count.Load())}, nil
}

func (s *MemoryConfigStore) GrowTo(ctx context.Context, name string, requested int) (types.ShardConfig, error) {
	if requested < 1 {
		return types.ShardConfig{}, fmt.Errorf("%w: requested %d", types.ErrInvalidShardCount, requested)
	}

	v, ok := s.entries.Load(name)
	if !ok {
		return types.ShardConfig{}, fmt.Errorf("%w: %q", types.ErrUnknownCounter, name)
	}
	e := v.(*configEntry)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.durable.Load() {
		return types.ShardConfig{}, fmt.Errorf("%w: %q", types.ErrUnknownCounter, name)
	}

	current := e.count.Load()
	if int64(requested) <= current {
		return types.ShardConfig{Counter: name, ShardCount: int(current)}, nil
	}

	if err := ctx.Err(); err != nil {
		return types.ShardConfig{}, err
	}
	if s.policy != nil {
		if err := s.policy.OnWrite(ctx, types.ConfigRecord(name, requested)); err != nil {
			return types.ShardConfig{}, err
		}
	}
	e.count.Store(int64(requested))

	return types.ShardConfig{Counter: name, ShardCount: requested}, nil
}

// Restore loads config records read back from a sink. Shard records are ignored.
func (s *MemoryConfigStore) Restore(records []types.Record) {
	for _, rec := range records {
		if rec.Kind != types.KindConfig || rec.Value < 1 {
			continue
		}
		fresh := &configEntry{}
		fresh.count.Store(rec.Value)
		v, _ := s.entries.LoadOrStore(rec.Counter, fresh)
		e := v.(*configEntry)

		e.mu.Lock()
		if rec.Value > e.count.Load() {
			e.count.Store(rec.Value)
		}
		e.durable.Store(true)
		e.mu.Unlock()
	}
}

// Close closes the write policy. Policies tolerate being closed by both stores.
func (s *MemoryConfigStore) Close() error {
	if s.policy == nil {
		return nil
	}
	return s.policy.Close()
}

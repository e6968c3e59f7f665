package shard

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/krisalay/sharded-counter/types"
	"github.com/krisalay/sharded-counter/writepolicy"
)

//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks

// Store is durable storage over (counter name, shard index) → count.
type Store interface {

	// Get returns the shard at index, or false if no write was ever committed to it.
	Get(ctx context.Context, name string, index int) (types.Shard, bool, error)

	/*
		Upsert atomically reads the shard (zero if absent), applies mutate and writes
		the result back.

		Concurrent upserts to the same key never lose updates. Upserts to different keys
		do not block each other. If ctx is done before the write commits, nothing is applied.
	*/
	Upsert(ctx context.Context, name string, index int, mutate func(count int64) int64) error

	// ScanByCounter returns every shard of name that holds a committed write.
	ScanByCounter(ctx context.Context, name string) ([]types.Shard, error)
}

// MemoryStore is the in-memory Store. Durability comes from its write policy.
type MemoryStore struct {
	// counters maps a counter name to its *namespace.
	counters sync.Map

	// policy is told about every new count before it becomes visible. May be nil.
	policy writepolicy.WritePolicy
}

func NewMemoryStore(policy writepolicy.WritePolicy) *MemoryStore {
	return &MemoryStore{policy: policy}
}

func (s *MemoryStore) namespace(name string) *namespace {
	if v, ok := s.counters.Load(name); ok {
		return v.(*namespace)
	}
	v, _ := s.counters.LoadOrStore(name, newNamespace())
	return v.(*namespace)
}

// Get returns a committed shard. A slot whose first write never committed reads as absent.
func (s *MemoryStore) Get(ctx context.Context, name string, index int) (types.Shard, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.Shard{}, false, err
	}

	v, ok := s.counters.Load(name)
	if !ok {
		return types.Shard{}, false, nil
	}
	sl, ok := v.(*namespace).lookup(index)
	if !ok {
		return types.Shard{}, false, nil
	}

	count := sl.load()
	if count == 0 {
		return types.Shard{}, false, nil
	}
	return types.Shard{Counter: name, Index: index, Count: count}, true, nil
}

/*
Upsert is the linearization point of an increment.

The slot mutex is held while the write policy persists the new value, so the value
in memory is never ahead of what the policy accepted.
*/
func (s *MemoryStore) Upsert(ctx context.Context, name string, index int, mutate func(int64) int64) error {
	if index < 0 {
		return fmt.Errorf("%w: shard index %d", types.ErrInvalidShardCount, index)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sl := s.namespace(name).getOrCreate(index)

	sl.mu.Lock()
	defer sl.mu.Unlock()

	// Nothing is visible yet; a cancelled caller can still back out.
	if err := ctx.Err(); err != nil {
		return err
	}

	next := mutate(sl.count)
	if next < sl.count {
		return fmt.Errorf("shard %s/%d: count may not decrease (%d -> %d)", name, index, sl.count, next)
	}
	if next == sl.count {
		return nil
	}

	if s.policy != nil {
		if err := s.policy.OnWrite(ctx, types.ShardRecord(name, index, next)); err != nil {
			return err
		}
	}

	sl.count = next
	return nil
}

// ScanByCounter returns the committed shards of name ordered by index.
func (s *MemoryStore) ScanByCounter(ctx context.Context, name string) ([]types.Shard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, ok := s.counters.Load(name)
	if !ok {
		return nil, nil
	}

	slots := v.(*namespace).snapshot()
	shards := make([]types.Shard, 0, len(slots))
	for index, sl := range slots {
		count := sl.load()
		if count == 0 {
			continue
		}
		shards = append(shards, types.Shard{Counter: name, Index: index, Count: count})
	}

	slices.SortFunc(shards, func(a, b types.Shard) int { return cmp.Compare(a.Index, b.Index) })
	return shards, nil
}

/*
Restore loads shard records read back from a sink at startup.
Config records are ignored. Restore does not go through the write policy.
*/
func (s *MemoryStore) Restore(records []types.Record) {
	for _, rec := range records {
		if rec.Kind != types.KindShard || rec.Index < 0 {
			continue
		}
		sl := s.namespace(rec.Counter).getOrCreate(rec.Index)
		sl.mu.Lock()
		if rec.Value > sl.count {
			sl.count = rec.Value
		}
		sl.mu.Unlock()
	}
}

// Close closes the write policy, flushing pending writes.
func (s *MemoryStore) Close() error {
	if s.policy == nil {
		return nil
	}
	return s.policy.Close()
}

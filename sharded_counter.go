package counter

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	api "github.com/krisalay/sharded-counter/api"
	"github.com/krisalay/sharded-counter/engine"
	"github.com/krisalay/sharded-counter/shard"
	"github.com/krisalay/sharded-counter/totalcache"
	"github.com/krisalay/sharded-counter/types"
	"golang.org/x/sync/singleflight"
)

var _ api.Counter = (*ShardedCounter)(nil)

/*
ShardedCounter is the main counter implementation.
This struct is the orchestrator that connects:
- the shard store (partial counts)
- the config store (shard count per counter)
- the total cache (recent sums)
- the engine (rules, retries, metrics, logging)
*/
type ShardedCounter struct {
	shards  shard.Store
	configs shard.ConfigStore

	// totals is best-effort. It is never consulted for correctness.
	totals totalcache.Cache

	engine *engine.CounterEngine

	// sf collapses concurrent scans of the same counter into one.
	sf singleflight.Group

	// closers are closed in order by Close.
	closers []io.Closer
}

// NewShardedCounter wires a counter. A nil cache disables caching; a nil engine uses the defaults.
// Stores that implement io.Closer are closed by Close.
func NewShardedCounter(
	shards shard.Store,
	configs shard.ConfigStore,
	totals totalcache.Cache,
	eng *engine.CounterEngine,
) *ShardedCounter {
	if totals == nil {
		totals = totalcache.Noop{}
	}
	if eng == nil {
		eng = engine.NewCounterEngine(engine.Policy{}, nil, nil, nil)
	}

	c := &ShardedCounter{
		shards:  shards,
		configs: configs,
		totals:  totals,
		engine:  eng,
	}
	for _, s := range []any{shards, configs} {
		if cl, ok := s.(io.Closer); ok {
			c.closers = append(c.closers, cl)
		}
	}
	return c
}

func increment(count int64) int64 { return count + 1 }

/*
Increment adds one to the counter.

1. Read the shard config, creating it with the default shard count on first use
2. Pick a shard uniformly in [0, shardCount)
3. Atomically upsert that shard: the only step that must be transactional
4. Best-effort: bump the cached total if one is live

Transient failures in 1–3 are retried, and each attempt picks its shard again. Step 4
never fails the call. If the cache bump races with a concurrent full scan the cached total
can be off until its TTL runs out; the shards themselves are always exact.
*/
func (c *ShardedCounter) Increment(ctx context.Context, name string) error {
	if err := c.engine.ValidateName(name); err != nil {
		return &OpError{Op: "increment", Counter: name, Err: err}
	}

	attempts, err := c.engine.Retry(ctx, "increment", func(int) error {
		cfg, err := c.configs.GetOrCreate(ctx, name, c.engine.DefaultShards)
		if err != nil {
			return err
		}
		index := c.engine.PickShard(cfg.ShardCount)
		return c.shards.Upsert(ctx, name, index, increment)
	})
	if err != nil {
		return &OpError{Op: "increment", Counter: name, Attempts: attempts, Err: err}
	}

	c.engine.Metrics.Increment()
	c.totals.IncrementIfPresent(name)
	return nil
}

/*
GetCount returns the counter's total.

A live cached total is returned as is, so a result may be up to one TTL stale.
Otherwise every shard is scanned and summed, and the sum is cached if no other scan
got there first. Concurrent misses share one scan; each caller stops waiting when its own
ctx is done. If the scan fails, a total cached in the meantime is still served.
*/
func (c *ShardedCounter) GetCount(ctx context.Context, name string) (int64, error) {
	if err := c.engine.ValidateName(name); err != nil {
		return 0, &OpError{Op: "get_count", Counter: name, Err: err}
	}

	if total, ok := c.totals.Get(name); ok {
		c.engine.Metrics.Hit()
		return total, nil
	}
	c.engine.Metrics.Miss()

	// The shared scan must not die with whichever caller started it.
	scanCtx := context.WithoutCancel(ctx)
	ch := c.sf.DoChan(name, func() (any, error) {
		return c.aggregate(scanCtx, name)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return 0, &OpError{Op: "get_count", Counter: name, Err: ctx.Err()}
	}

	if err := res.Err; err != nil {
		if total, ok := c.totals.Get(name); ok {
			c.engine.Logger.Warn("scan failed, serving cached total", "counter", name, "error", err)
			return total, nil
		}
		return 0, err
	}
	return res.Val.(int64), nil
}

// aggregate scans and sums every shard of name, then offers the sum to the cache.
func (c *ShardedCounter) aggregate(ctx context.Context, name string) (int64, error) {
	var (
		total int64
		n     int
	)
	attempts, err := c.engine.Retry(ctx, "get_count", func(int) error {
		shards, err := c.shards.ScanByCounter(ctx, name)
		if err != nil {
			return err
		}
		total, n = 0, len(shards)
		for _, s := range shards {
			total += s.Count
		}
		return nil
	})
	if err != nil {
		return 0, &OpError{Op: "get_count", Counter: name, Attempts: attempts, Err: err}
	}

	c.engine.Metrics.Scan(n)
	c.totals.SetIfAbsent(name, total, c.engine.CacheTTL)
	return total, nil
}

/*
GrowShards raises the counter's shard count to requested. It never lowers it.

Growing is always safe: new increments pick from the larger range, and shards written
under the old, smaller range are still summed because scans cover every index.
*/
func (c *ShardedCounter) GrowShards(ctx context.Context, name string, requested int) error {
	if err := c.engine.ValidateName(name); err != nil {
		return &OpError{Op: "grow_shards", Counter: name, Err: err}
	}
	if requested < 1 {
		return &OpError{
			Op:      "grow_shards",
			Counter: name,
			Err:     fmt.Errorf("%w: requested %d", types.ErrInvalidShardCount, requested),
		}
	}

	var before, after types.ShardConfig
	attempts, err := c.engine.Retry(ctx, "grow_shards", func(int) error {
		cfg, err := c.configs.GetOrCreate(ctx, name, c.engine.DefaultShards)
		if err != nil {
			return err
		}
		grown, err := c.configs.GrowTo(ctx, name, requested)
		if err != nil {
			return err
		}
		before, after = cfg, grown
		return nil
	})
	if err != nil {
		return &OpError{Op: "grow_shards", Counter: name, Attempts: attempts, Err: err}
	}

	if after.ShardCount > before.ShardCount {
		c.engine.Metrics.Grow()
		c.engine.Logger.Info("shards grown", "counter", name, "from", before.ShardCount, "to", after.ShardCount)
	}
	return nil
}

// ShardConfig returns the counter's config without creating it.
func (c *ShardedCounter) ShardConfig(ctx context.Context, name string) (types.ShardConfig, bool, error) {
	if err := c.engine.ValidateName(name); err != nil {
		return types.ShardConfig{}, false, &OpError{Op: "shard_config", Counter: name, Err: err}
	}
	cfg, ok, err := c.configs.Get(ctx, name)
	if err != nil {
		return types.ShardConfig{}, false, &OpError{Op: "shard_config", Counter: name, Err: err}
	}
	return cfg, ok, nil
}

// Distribution returns the committed shards of the counter ordered by index.
// It always scans and never touches the cache. Intended for debugging and tests.
func (c *ShardedCounter) Distribution(ctx context.Context, name string) ([]types.Shard, error) {
	if err := c.engine.ValidateName(name); err != nil {
		return nil, &OpError{Op: "distribution", Counter: name, Err: err}
	}
	shards, err := c.shards.ScanByCounter(ctx, name)
	if err != nil {
		return nil, &OpError{Op: "distribution", Counter: name, Err: err}
	}
	slices.SortFunc(shards, func(a, b types.Shard) int { return cmp.Compare(a.Index, b.Index) })
	return shards, nil
}

/*
Close releases the stores: write-back policies flush pending records and file-backed
sinks give up their lock. The counter must not be used afterwards.
*/
func (c *ShardedCounter) Close() error {
	var errs []error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package counter_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	counter "github.com/krisalay/sharded-counter"
	api "github.com/krisalay/sharded-counter/api"
	"github.com/krisalay/sharded-counter/engine"
	"github.com/krisalay/sharded-counter/eviction"
	"github.com/krisalay/sharded-counter/shard"
	"github.com/krisalay/sharded-counter/totalcache"
	"github.com/krisalay/sharded-counter/types"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// eventMetrics counts the engine events the tests assert on.
type eventMetrics struct {
	types.NoopMetrics
	hits       atomic.Int64
	misses     atomic.Int64
	increments atomic.Int64
	conflicts  atomic.Int64
	grows      atomic.Int64
}

func (m *eventMetrics) Hit()       { m.hits.Add(1) }
func (m *eventMetrics) Miss()      { m.misses.Add(1) }
func (m *eventMetrics) Increment() { m.increments.Add(1) }
func (m *eventMetrics) Conflict()  { m.conflicts.Add(1) }
func (m *eventMetrics) Grow()      { m.grows.Add(1) }

// fakeClock is a manually advanced time source for the sharded total cache.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testCounter bundles an in-memory counter with the pieces tests poke at directly.
type testCounter struct {
	*counter.ShardedCounter
	shards  *shard.MemoryStore
	configs *shard.MemoryConfigStore
	clock   *fakeClock
	metrics *eventMetrics
}

type testOptions struct {
	defaultShards int
	selector      shard.Selector
}

/*
newTestCounter builds a counter on memory stores with a sharded total cache driven by a
fake clock. The cache TTL is the engine default (60s).
*/
func newTestCounter(t *testing.T, opts testOptions) *testCounter {
	t.Helper()

	clock := newFakeClock()
	m := &eventMetrics{}

	totals := totalcache.NewSharded(4, 1000, eviction.LRU, nil, m)
	totals.SetClock(clock.Now)

	shards := shard.NewMemoryStore(nil)
	configs := shard.NewMemoryConfigStore(nil)
	eng := engine.NewCounterEngine(
		engine.Policy{DefaultShards: opts.defaultShards, RetryBackoff: time.Millisecond},
		opts.selector,
		m,
		quietLogger,
	)

	c := counter.NewShardedCounter(shards, configs, totals, eng)
	t.Cleanup(func() { require.NoError(t, c.Close()) })

	return &testCounter{ShardedCounter: c, shards: shards, configs: configs, clock: clock, metrics: m}
}

// incrementConcurrently runs n increments of name from up to 64 goroutines.
func incrementConcurrently(t *testing.T, c api.Counter, name string, n int) {
	t.Helper()

	var g errgroup.Group
	g.SetLimit(64)
	for i := 0; i < n; i++ {
		g.Go(func() error { return c.Increment(context.Background(), name) })
	}
	require.NoError(t, g.Wait())
}

package totalcache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krisalay/sharded-counter/eviction"
	"github.com/krisalay/sharded-counter/types"
)

// countingMetrics records the cache events the tests assert on.
type countingMetrics struct {
	types.NoopMetrics
	evictions atomic.Int64
	expires   atomic.Int64
}

func (m *countingMetrics) Eviction() { m.evictions.Add(1) }
func (m *countingMetrics) Expire()   { m.expires.Add(1) }

// fakeClock is a manually advanced time source.
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

func TestCacheContract(t *testing.T) {
	impls := map[string]func() Cache{
		"gocache": func() Cache { return NewGoCache(time.Minute) },
		"sharded": func() Cache { return NewSharded(4, 100, eviction.LRU, nil, nil) },
	}

	for name, newCache := range impls {
		t.Run(name, func(t *testing.T) {
			c := newCache()

			_, ok := c.Get("c")
			assert.False(t, ok)

			assert.False(t, c.IncrementIfPresent("c"), "increment must not create an entry")
			_, ok = c.Get("c")
			assert.False(t, ok)

			assert.True(t, c.SetIfAbsent("c", 10, time.Minute))
			assert.False(t, c.SetIfAbsent("c", 99, time.Minute), "a live entry is kept")

			v, ok := c.Get("c")
			require.True(t, ok)
			assert.Equal(t, int64(10), v)

			assert.True(t, c.IncrementIfPresent("c"))
			v, _ = c.Get("c")
			assert.Equal(t, int64(11), v)
		})
	}
}

func TestCacheConcurrentIncrements(t *testing.T) {
	impls := map[string]Cache{
		"gocache": NewGoCache(time.Minute),
		"sharded": NewSharded(4, 100, eviction.LRU, nil, nil),
	}

	for name, c := range impls {
		t.Run(name, func(t *testing.T) {
			require.True(t, c.SetIfAbsent("hot", 0, time.Minute))

			var wg sync.WaitGroup
			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					c.IncrementIfPresent("hot")
				}()
			}
			wg.Wait()

			v, ok := c.Get("hot")
			require.True(t, ok)
			assert.Equal(t, int64(100), v)
		})
	}
}

func TestGoCacheExpiry(t *testing.T) {
	c := NewGoCache(time.Minute)

	require.True(t, c.SetIfAbsent("c", 5, 20*time.Millisecond))
	time.Sleep(50 * time.Millisecond)

	_, ok := c.Get("c")
	assert.False(t, ok)
	assert.False(t, c.IncrementIfPresent("c"))
	assert.True(t, c.SetIfAbsent("c", 6, time.Minute), "an expired entry may be replaced")
}

func TestGoCacheRefusesNonPositiveTTL(t *testing.T) {
	c := NewGoCache(time.Minute)
	assert.False(t, c.SetIfAbsent("c", 1, 0))
	assert.Zero(t, c.Len())
}

func TestShardedExpiresAfterWrite(t *testing.T) {
	clock := newFakeClock()
	m := &countingMetrics{}
	c := NewSharded(2, 10, eviction.LRU, nil, m)
	c.SetClock(clock.Now)

	require.True(t, c.SetIfAbsent("c", 7, time.Minute))

	clock.Advance(59 * time.Second)
	assert.True(t, c.IncrementIfPresent("c"))
	v, ok := c.Get("c")
	require.True(t, ok)
	assert.Equal(t, int64(8), v)

	// Increments do not extend the lifetime.
	clock.Advance(time.Second)
	_, ok = c.Get("c")
	assert.False(t, ok)
	assert.False(t, c.IncrementIfPresent("c"))
	assert.Equal(t, int64(1), m.expires.Load())

	assert.True(t, c.SetIfAbsent("c", 100, time.Minute))
}

func TestShardedEvictsWhenFull(t *testing.T) {
	clock := newFakeClock()
	m := &countingMetrics{}
	c := NewSharded(1, 2, eviction.LRU, nil, m)
	c.SetClock(clock.Now)

	require.True(t, c.SetIfAbsent("a", 1, time.Minute))
	require.True(t, c.SetIfAbsent("b", 2, time.Minute))
	_, _ = c.Get("a")

	require.True(t, c.SetIfAbsent("c", 3, time.Minute))

	_, ok := c.Get("b")
	assert.False(t, ok, "b was least recently used")
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(1), m.evictions.Load())
}

func TestShardedPrefersDroppingExpiredEntries(t *testing.T) {
	clock := newFakeClock()
	m := &countingMetrics{}
	c := NewSharded(1, 2, eviction.LRU, nil, m)
	c.SetClock(clock.Now)

	require.True(t, c.SetIfAbsent("short", 1, time.Second))
	require.True(t, c.SetIfAbsent("long", 2, time.Hour))
	clock.Advance(2 * time.Second)

	require.True(t, c.SetIfAbsent("new", 3, time.Hour))

	_, ok := c.Get("long")
	assert.True(t, ok)
	assert.Zero(t, m.evictions.Load())
	assert.Equal(t, int64(1), m.expires.Load())
}

func TestNoop(t *testing.T) {
	var c Cache = Noop{}
	assert.False(t, c.SetIfAbsent("c", 1, time.Minute))
	assert.False(t, c.IncrementIfPresent("c"))
	_, ok := c.Get("c")
	assert.False(t, ok)
}

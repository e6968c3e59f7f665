package totalcache

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/krisalay/sharded-counter/eviction"
	"github.com/krisalay/sharded-counter/expiration"
	"github.com/krisalay/sharded-counter/types"
)

/*
Sharded is a bounded total cache split into independent buckets.

Instead of one map behind one lock, counter names are hashed onto buckets. Each bucket:
- Holds a portion of the totals
- Has its own eviction policy instance
- Has its own lock

Capacity is divided across buckets. Expired totals are removed lazily on access, or
first when a full bucket needs room.
*/
type Sharded struct {
	buckets []*bucket

	// capacity is the per-bucket bound.
	capacity int

	expiration expiration.Strategy
	metrics    types.Metrics

	// now is replaced through SetClock in tests.
	now func() time.Time
}

type bucket struct {
	mu       sync.Mutex
	entries  map[string]*types.TotalEntry
	eviction eviction.Policy
}

// NewSharded creates a cache of buckets holding at most capacity totals overall
// (rounded to at least one per bucket). A nil strategy expires entries one minute after write.
func NewSharded(
	buckets int,
	capacity int,
	policy eviction.PolicyType,
	exp expiration.Strategy,
	metrics types.Metrics,
) *Sharded {
	if buckets < 1 {
		buckets = 1
	}
	perBucket := capacity / buckets
	if perBucket < 1 {
		perBucket = 1
	}
	if exp == nil {
		exp = &expiration.ExpireAfterWrite{TTL: time.Minute}
	}
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}

	b := make([]*bucket, buckets)
	for i := range b {
		b[i] = &bucket{
			entries:  make(map[string]*types.TotalEntry),
			eviction: eviction.NewEvictionPolicy(policy),
		}
	}

	return &Sharded{
		buckets:    b,
		capacity:   perBucket,
		expiration: exp,
		metrics:    metrics,
		now:        time.Now,
	}
}

// SetClock replaces the time source.
func (c *Sharded) SetClock(now func() time.Time) {
	c.now = now
}

// hash is 32-bit FNV-1a.
func hash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

func (c *Sharded) bucketFor(name string) *bucket {
	return c.buckets[hash(name)%uint32(len(c.buckets))]
}

// live returns the unexpired entry for name, dropping it if it expired. Caller holds b.mu.
func (c *Sharded) live(b *bucket, name string, now time.Time) (*types.TotalEntry, bool) {
	ent, ok := b.entries[name]
	if !ok {
		return nil, false
	}
	if c.expiration.IsExpired(ent, now) {
		delete(b.entries, name)
		b.eviction.Remove(name)
		c.metrics.Expire()
		return nil, false
	}
	return ent, true
}

func (c *Sharded) Get(name string) (int64, bool) {
	b := c.bucketFor(name)

	b.mu.Lock()
	defer b.mu.Unlock()

	ent, ok := c.live(b, name, c.now())
	if !ok {
		return 0, false
	}
	b.eviction.OnGet(name)
	return ent.Value, true
}

func (c *Sharded) SetIfAbsent(name string, value int64, ttl time.Duration) bool {
	b := c.bucketFor(name)
	now := c.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := c.live(b, name, now); ok {
		return false
	}

	if len(b.entries) >= c.capacity {
		c.makeRoom(b, now)
	}

	ent := &types.TotalEntry{Counter: name, Value: value}
	if ttl > 0 {
		ent.ExpireAt = now.Add(ttl)
	}
	c.expiration.OnWrite(ent, now)

	b.entries[name] = ent
	b.eviction.OnPut(name)
	return true
}

// makeRoom drops expired entries first and only evicts a live one if that freed nothing.
// Caller holds b.mu.
func (c *Sharded) makeRoom(b *bucket, now time.Time) {
	for name := range b.entries {
		c.live(b, name, now)
	}
	if len(b.entries) < c.capacity {
		return
	}
	if victim := b.eviction.Evict(); victim != "" {
		delete(b.entries, victim)
		c.metrics.Eviction()
	}
}

func (c *Sharded) IncrementIfPresent(name string) bool {
	b := c.bucketFor(name)

	b.mu.Lock()
	defer b.mu.Unlock()

	ent, ok := c.live(b, name, c.now())
	if !ok {
		return false
	}
	ent.Value++
	return true
}

// Len counts entries across buckets, including expired ones not yet dropped.
func (c *Sharded) Len() int {
	n := 0
	for _, b := range c.buckets {
		b.mu.Lock()
		n += len(b.entries)
		b.mu.Unlock()
	}
	return n
}

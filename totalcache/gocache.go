package totalcache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

/*
GoCache backs the total cache with github.com/patrickmn/go-cache.

Its primitives line up with the contract one to one:
- Add fails when a live item exists        → SetIfAbsent
- IncrementInt64 fails on a missing/expired item → IncrementIfPresent
*/
type GoCache struct {
	items *gocache.Cache
}

// NewGoCache creates an empty cache. Expired items are purged every cleanupInterval;
// until then go-cache already hides them from reads.
func NewGoCache(cleanupInterval time.Duration) *GoCache {
	return &GoCache{items: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (c *GoCache) Get(name string) (int64, bool) {
	v, ok := c.items.Get(name)
	if !ok {
		return 0, false
	}
	n, ok := v.(int64)
	return n, ok
}

// SetIfAbsent refuses ttl <= 0: go-cache would treat it as "never expires".
func (c *GoCache) SetIfAbsent(name string, value int64, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return c.items.Add(name, value, ttl) == nil
}

func (c *GoCache) IncrementIfPresent(name string) bool {
	_, err := c.items.IncrementInt64(name, 1)
	return err == nil
}

// Len counts items including expired ones not yet purged.
func (c *GoCache) Len() int {
	return c.items.ItemCount()
}

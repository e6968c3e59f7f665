/*
Package totalcache holds short-lived copies of counter totals.

A cached total is an accelerator, never the source of truth. It may be missing, or stale up to
its TTL. The counter engine swallows every cache failure, so none of these methods return errors.
*/
package totalcache

import "time"

// Cache is the contract the counter engine relies on.
type Cache interface {

	// Get returns the live total for name.
	Get(name string) (int64, bool)

	/*
		SetIfAbsent stores value for ttl only if no live entry exists and reports whether it did.

		Used after a full scan: if a concurrent scan already populated the entry, that value
		is at least as recent and is kept.
	*/
	SetIfAbsent(name string, value int64, ttl time.Duration) bool

	/*
		IncrementIfPresent adds 1 to a live entry and reports whether it did.

		It must NEVER create an entry: a total seeded from a single increment would be
		served as if it were the whole count.
	*/
	IncrementIfPresent(name string) bool
}

// Noop never caches. Every GetCount scans the shards.
type Noop struct{}

func (Noop) Get(string) (int64, bool)                      { return 0, false }
func (Noop) SetIfAbsent(string, int64, time.Duration) bool { return false }
func (Noop) IncrementIfPresent(string) bool                { return false }

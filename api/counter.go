package counter

import "context"

/*
Counter defines the PUBLIC API of the sharded counter.

Sharding, shard configs, caching and persistence are hidden behind it. All methods are safe
for concurrent use; the implementation holds no lock across calls.
*/
type Counter interface {

	/*
		Increment adds exactly one to the named counter.

		BEHAVIOR:
		---------
		- Either exactly one shard gained one count, or (on error) none did
		- Transient store errors are retried a bounded number of times
		- Cancelling ctx before the shard write commits leaves the counter untouched
	*/
	Increment(ctx context.Context, name string) error

	/*
		GetCount returns the named counter's total.

		BEHAVIOR:
		---------
		- Served from the total cache when a live entry exists (may be up to one TTL stale)
		- Otherwise computed by summing every shard, then cached
		- An unknown counter counts 0
	*/
	GetCount(ctx context.Context, name string) (int64, error)

	/*
		GrowShards raises the number of shards new increments are spread over.

		BEHAVIOR:
		---------
		- Creates the counter's config if needed
		- Never lowers the shard count; a smaller request is a no-op
	*/
	GrowShards(ctx context.Context, name string, requested int) error

	// Close flushes pending writes and releases storage.
	Close() error
}

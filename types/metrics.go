package types

// This file defines how the counter reports what it is doing.

/*
Metrics is an interface that defines what the counter wants to measure.
Each method represents an event in the counter lifecycle.
*/
type Metrics interface {

	// Hit is called when GetCount is served from the total cache.
	Hit()

	// Miss is called when GetCount has to scan the shards.
	Miss()

	// Eviction is called when a total cache drops a live entry because it is full.
	Eviction()

	// Expire is called when a total cache drops an entry that passed its TTL.
	Expire()

	// Increment is called once per committed shard upsert.
	Increment()

	// Conflict is called whenever an attempt failed with a transient store error.
	Conflict()

	// Scan is called after a full aggregation with the number of shards summed.
	Scan(shards int)

	// Grow is called when GrowShards actually raised a shard count.
	Grow()
}

/*
NoopMetrics is a "do nothing" implementation of Metrics.
The engine falls back to it so callers that do not care about metrics pass nil.
*/
type NoopMetrics struct{}

func (NoopMetrics) Hit()       {}
func (NoopMetrics) Miss()      {}
func (NoopMetrics) Eviction()  {}
func (NoopMetrics) Expire()    {}
func (NoopMetrics) Increment() {}
func (NoopMetrics) Conflict()  {}
func (NoopMetrics) Scan(int)   {}
func (NoopMetrics) Grow()      {}

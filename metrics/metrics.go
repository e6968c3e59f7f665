// Package metrics exports counter events to Prometheus.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/krisalay/sharded-counter/types"
)

// Collector implements types.Metrics with Prometheus instruments.
type Collector struct {
	Increments  prometheus.Counter
	Conflicts   prometheus.Counter
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
	Evictions   prometheus.Counter
	Expirations prometheus.Counter
	Grows       prometheus.Counter
	ScanShards  prometheus.Histogram
}

var _ types.Metrics = (*Collector)(nil)

// New creates unregistered instruments under namespace.
func New(namespace string) *Collector {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}
	return &Collector{
		Increments:  counter("increments_total", "Committed shard increments."),
		Conflicts:   counter("transient_errors_total", "Attempts that failed with a transient store error."),
		CacheHits:   counter("cache_hits_total", "GetCount calls served from the total cache."),
		CacheMisses: counter("cache_misses_total", "GetCount calls that scanned the shards."),
		Evictions:   counter("cache_evictions_total", "Live totals dropped because the cache was full."),
		Expirations: counter("cache_expirations_total", "Totals dropped after their TTL."),
		Grows:       counter("shard_grows_total", "GrowShards calls that raised a shard count."),
		ScanShards: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_shards",
			Help:      "Shards summed per full aggregation.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}

// Register adds every instrument to reg. Already registered instruments are not an error.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{
		c.Increments, c.Conflicts, c.CacheHits, c.CacheMisses,
		c.Evictions, c.Expirations, c.Grows, c.ScanShards,
	} {
		if err := reg.Register(col); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

func (c *Collector) Hit()            { c.CacheHits.Inc() }
func (c *Collector) Miss()           { c.CacheMisses.Inc() }
func (c *Collector) Eviction()       { c.Evictions.Inc() }
func (c *Collector) Expire()         { c.Expirations.Inc() }
func (c *Collector) Increment()      { c.Increments.Inc() }
func (c *Collector) Conflict()       { c.Conflicts.Inc() }
func (c *Collector) Grow()           { c.Grows.Inc() }
func (c *Collector) Scan(shards int) { c.ScanShards.Observe(float64(shards)) }

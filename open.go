package counter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/krisalay/sharded-counter/config"
	"github.com/krisalay/sharded-counter/engine"
	"github.com/krisalay/sharded-counter/expiration"
	"github.com/krisalay/sharded-counter/filestore"
	"github.com/krisalay/sharded-counter/shard"
	"github.com/krisalay/sharded-counter/totalcache"
	"github.com/krisalay/sharded-counter/types"
	"github.com/krisalay/sharded-counter/writepolicy"
)

/*
Open builds a ShardedCounter from cfg.

With a StorePath, the record log is locked and loaded, the stores are restored from it,
and every later change goes through the configured write policy. Without one, counts live
in memory only. metrics and logger may be nil.
*/
func Open(ctx context.Context, cfg config.Config, metrics types.Metrics, logger *slog.Logger) (*ShardedCounter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	var (
		policy  writepolicy.WritePolicy
		records []types.Record
		snap    *filestore.Store
	)
	if cfg.StorePath != "" {
		var err error
		snap, err = filestore.Open(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		records, err = snap.Load(ctx)
		if err != nil {
			snap.Close()
			return nil, fmt.Errorf("load store: %w", err)
		}

		switch cfg.WritePolicy {
		case config.WriteBack:
			policy = writepolicy.NewWriteBackPolicy(snap, logger)
		default:
			policy = writepolicy.NewWriteThroughPolicy(snap)
		}
		logger.Info("store loaded", "path", cfg.StorePath, "records", len(records), "write_policy", cfg.WritePolicy)
	}

	shards := shard.NewMemoryStore(policy)
	shards.Restore(records)
	configs := shard.NewMemoryConfigStore(policy)
	configs.Restore(records)

	eng := engine.NewCounterEngine(
		engine.Policy{
			DefaultShards: cfg.DefaultShards,
			CacheTTL:      cfg.CacheTTL,
			MaxAttempts:   cfg.MaxAttempts,
			RetryBackoff:  cfg.RetryBackoff,
		},
		shard.NewRandomSelector(nil),
		metrics,
		logger,
	)

	c := NewShardedCounter(shards, configs, newTotalCache(cfg, metrics), eng)
	if snap != nil {
		// Closed after the stores so a write-back flush still reaches the file.
		c.closers = append(c.closers, snap)
	}
	return c, nil
}

func newTotalCache(cfg config.Config, metrics types.Metrics) totalcache.Cache {
	switch cfg.CacheBackend {
	case config.CacheSharded:
		return totalcache.NewSharded(
			cfg.CacheShards,
			cfg.CacheCapacity,
			cfg.CacheEviction,
			&expiration.ExpireAfterWrite{TTL: cfg.CacheTTL},
			metrics,
		)
	case config.CacheNone:
		return totalcache.Noop{}
	default:
		return totalcache.NewGoCache(cfg.CacheTTL)
	}
}

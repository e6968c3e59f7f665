// Package config loads the counter's static configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/krisalay/sharded-counter/engine"
	"github.com/krisalay/sharded-counter/eviction"
)

// CacheBackend selects the total cache implementation.
type CacheBackend string

const (
	CacheGoCache CacheBackend = "gocache"
	CacheSharded CacheBackend = "sharded"
	CacheNone    CacheBackend = "none"
)

// WritePolicy selects how records reach the record log.
type WritePolicy string

const (
	WriteThrough WritePolicy = "through"
	WriteBack    WritePolicy = "back"
)

// Config is fixed for the lifetime of a counter; nothing here changes at runtime.
type Config struct {
	DefaultShards int
	CacheTTL      time.Duration

	CacheBackend  CacheBackend
	CacheShards   int
	CacheCapacity int
	CacheEviction eviction.PolicyType

	// StorePath is the record log file. Empty keeps everything in memory.
	StorePath   string
	WritePolicy WritePolicy

	MaxAttempts  int
	RetryBackoff time.Duration

	MetricsNamespace string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DefaultShards:    engine.DefaultShards,
		CacheTTL:         engine.DefaultCacheTTL,
		CacheBackend:     CacheGoCache,
		CacheShards:      16,
		CacheCapacity:    10000,
		CacheEviction:    eviction.LRU,
		WritePolicy:      WriteThrough,
		MaxAttempts:      engine.DefaultMaxAttempts,
		RetryBackoff:     engine.DefaultRetryBackoff,
		MetricsNamespace: "sharded_counter",
	}
}

// EnvVar documents one environment variable.
type EnvVar struct {
	Name        string
	Description string
}

// EnvVarsHelp lists the variables Load understands.
func EnvVarsHelp() []EnvVar {
	return []EnvVar{
		{"COUNTER_DEFAULT_SHARDS", "Shard count of a new counter (default 20)"},
		{"COUNTER_CACHE_TTL", "Lifetime of a cached total (default 60s)"},
		{"COUNTER_CACHE_BACKEND", "gocache, sharded or none (default gocache)"},
		{"COUNTER_CACHE_SHARDS", "Buckets of the sharded total cache (default 16)"},
		{"COUNTER_CACHE_CAPACITY", "Totals kept by the sharded total cache (default 10000)"},
		{"COUNTER_CACHE_EVICTION", "LRU, LFU or FIFO (default LRU)"},
		{"COUNTER_STORE_PATH", "Record log file; empty keeps counts in memory only"},
		{"COUNTER_WRITE_POLICY", "through or back (default through)"},
		{"COUNTER_MAX_ATTEMPTS", "Attempts per operation on transient errors (default 3)"},
		{"COUNTER_RETRY_BACKOFF", "Wait before the first retry, doubled after (default 10ms)"},
		{"COUNTER_METRICS_NAMESPACE", "Prometheus namespace (default sharded_counter)"},
	}
}

/*
Load reads a .env file from the working directory if there is one, then overlays the
environment on Default. Variables already set in the environment win over .env.
*/
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv overlays the current environment on Default and validates the result.
func FromEnv() (Config, error) {
	cfg := Default()
	var err error

	if cfg.DefaultShards, err = envInt("COUNTER_DEFAULT_SHARDS", cfg.DefaultShards); err != nil {
		return Config{}, err
	}
	if cfg.CacheTTL, err = envDuration("COUNTER_CACHE_TTL", cfg.CacheTTL); err != nil {
		return Config{}, err
	}
	cfg.CacheBackend = CacheBackend(envString("COUNTER_CACHE_BACKEND", string(cfg.CacheBackend)))
	if cfg.CacheShards, err = envInt("COUNTER_CACHE_SHARDS", cfg.CacheShards); err != nil {
		return Config{}, err
	}
	if cfg.CacheCapacity, err = envInt("COUNTER_CACHE_CAPACITY", cfg.CacheCapacity); err != nil {
		return Config{}, err
	}
	cfg.CacheEviction = eviction.PolicyType(envString("COUNTER_CACHE_EVICTION", string(cfg.CacheEviction)))
	cfg.StorePath = envString("COUNTER_STORE_PATH", cfg.StorePath)
	cfg.WritePolicy = WritePolicy(envString("COUNTER_WRITE_POLICY", string(cfg.WritePolicy)))
	if cfg.MaxAttempts, err = envInt("COUNTER_MAX_ATTEMPTS", cfg.MaxAttempts); err != nil {
		return Config{}, err
	}
	if cfg.RetryBackoff, err = envDuration("COUNTER_RETRY_BACKOFF", cfg.RetryBackoff); err != nil {
		return Config{}, err
	}
	cfg.MetricsNamespace = envString("COUNTER_METRICS_NAMESPACE", cfg.MetricsNamespace)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the counter cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.DefaultShards < 1 {
		errs = append(errs, fmt.Errorf("default shards must be >= 1, got %d", c.DefaultShards))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache TTL must be positive, got %s", c.CacheTTL))
	}
	switch c.CacheBackend {
	case CacheGoCache, CacheNone:
	case CacheSharded:
		if c.CacheShards < 1 {
			errs = append(errs, fmt.Errorf("cache shards must be >= 1, got %d", c.CacheShards))
		}
		if c.CacheCapacity < 1 {
			errs = append(errs, fmt.Errorf("cache capacity must be >= 1, got %d", c.CacheCapacity))
		}
		if !c.CacheEviction.Valid() {
			errs = append(errs, fmt.Errorf("unknown cache eviction %q", c.CacheEviction))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.CacheBackend))
	}
	switch c.WritePolicy {
	case WriteThrough, WriteBack:
	default:
		errs = append(errs, fmt.Errorf("unknown write policy %q", c.WritePolicy))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts must be >= 1, got %d", c.MaxAttempts))
	}
	if c.RetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("retry backoff must not be negative, got %s", c.RetryBackoff))
	}

	return errors.Join(errs...)
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

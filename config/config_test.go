package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krisalay/sharded-counter/eviction"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 20, cfg.DefaultShards)
	assert.Equal(t, 60*time.Second, cfg.CacheTTL)
	assert.Equal(t, CacheGoCache, cfg.CacheBackend)
	assert.Equal(t, WriteThrough, cfg.WritePolicy)
	assert.Empty(t, cfg.StorePath)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("COUNTER_DEFAULT_SHARDS", "8")
	t.Setenv("COUNTER_CACHE_TTL", "2s")
	t.Setenv("COUNTER_CACHE_BACKEND", "sharded")
	t.Setenv("COUNTER_CACHE_EVICTION", "LFU")
	t.Setenv("COUNTER_STORE_PATH", "/tmp/counters.json")
	t.Setenv("COUNTER_WRITE_POLICY", "back")
	t.Setenv("COUNTER_RETRY_BACKOFF", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.DefaultShards)
	assert.Equal(t, 2*time.Second, cfg.CacheTTL)
	assert.Equal(t, CacheSharded, cfg.CacheBackend)
	assert.Equal(t, eviction.LFU, cfg.CacheEviction)
	assert.Equal(t, "/tmp/counters.json", cfg.StorePath)
	assert.Equal(t, WriteBack, cfg.WritePolicy)
	assert.Equal(t, Default().RetryBackoff, cfg.RetryBackoff, "empty values keep the default")
}

func TestFromEnvRejectsMalformedValues(t *testing.T) {
	tests := map[string]string{
		"COUNTER_DEFAULT_SHARDS": "many",
		"COUNTER_CACHE_TTL":      "soon",
		"COUNTER_MAX_ATTEMPTS":   "3x",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero shards", func(c *Config) { c.DefaultShards = 0 }},
		{"zero ttl", func(c *Config) { c.CacheTTL = 0 }},
		{"unknown backend", func(c *Config) { c.CacheBackend = "redis" }},
		{"unknown eviction", func(c *Config) { c.CacheBackend = CacheSharded; c.CacheEviction = "MRU" }},
		{"zero capacity", func(c *Config) { c.CacheBackend = CacheSharded; c.CacheCapacity = 0 }},
		{"unknown write policy", func(c *Config) { c.WritePolicy = "around" }},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"negative backoff", func(c *Config) { c.RetryBackoff = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	// Eviction is only checked when the sharded cache is used.
	cfg := Default()
	cfg.CacheEviction = "MRU"
	assert.NoError(t, cfg.Validate())
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	dotenv := "COUNTER_CACHE_SHARDS=7\nCOUNTER_DEFAULT_SHARDS=3\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(dotenv), 0o644))
	t.Chdir(dir)

	// godotenv writes straight into the process environment.
	require.NoError(t, os.Unsetenv("COUNTER_CACHE_SHARDS"))
	t.Cleanup(func() { os.Unsetenv("COUNTER_CACHE_SHARDS") })
	t.Setenv("COUNTER_DEFAULT_SHARDS", "9")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.CacheShards)
	assert.Equal(t, 9, cfg.DefaultShards, "the environment wins over .env")
}

func TestLoadWithoutDotEnv(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default().MetricsNamespace, cfg.MetricsNamespace)
}

func TestEnvVarsHelpCoversEveryVariable(t *testing.T) {
	names := make(map[string]bool)
	for _, v := range EnvVarsHelp() {
		assert.NotEmpty(t, v.Description)
		names[v.Name] = true
	}
	assert.True(t, names["COUNTER_DEFAULT_SHARDS"])
	assert.True(t, names["COUNTER_CACHE_TTL"])
	assert.True(t, names["COUNTER_STORE_PATH"])
	assert.Len(t, names, 11)
}

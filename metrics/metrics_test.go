package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCountsEvents(t *testing.T) {
	c := New("test")

	c.Increment()
	c.Increment()
	c.Conflict()
	c.Hit()
	c.Miss()
	c.Miss()
	c.Eviction()
	c.Expire()
	c.Grow()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Increments))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Conflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.CacheHits))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.CacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Evictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Expirations))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Grows))
}

func TestRegisterAndGather(t *testing.T) {
	c := New("test")
	reg := prometheus.NewRegistry()

	require.NoError(t, c.Register(reg))
	require.NoError(t, c.Register(reg), "registering twice is allowed")

	c.Scan(20)
	c.Scan(50)

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]bool)
	for _, mf := range families {
		byName[mf.GetName()] = true
		if mf.GetName() == "test_scan_shards" {
			require.Len(t, mf.GetMetric(), 1)
			h := mf.GetMetric()[0].GetHistogram()
			assert.Equal(t, uint64(2), h.GetSampleCount())
			assert.Equal(t, 70.0, h.GetSampleSum())
		}
	}
	assert.True(t, byName["test_increments_total"])
	assert.True(t, byName["test_scan_shards"])
	assert.Len(t, byName, 8)
}

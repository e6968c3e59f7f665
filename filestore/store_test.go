package filestore_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krisalay/sharded-counter/filestore"
	"github.com/krisalay/sharded-counter/types"
)

func logPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "counters.json")
}

func TestOpenMissingFileIsEmpty(t *testing.T) {
	s, err := filestore.Open(logPath(t))
	require.NoError(t, err)
	defer s.Close()

	records, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestPutSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := logPath(t)

	s, err := filestore.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, types.ShardRecord("visits", 3, 12)))
	require.NoError(t, s.Put(ctx, types.ShardRecord("visits", 0, 4)))
	require.NoError(t, s.Put(ctx, types.ConfigRecord("visits", 50)))
	require.NoError(t, s.Close())

	reopened, err := filestore.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.Record{
		types.ConfigRecord("visits", 50),
		types.ShardRecord("visits", 0, 4),
		types.ShardRecord("visits", 3, 12),
	}, records)
}

func TestPutKeepsLargerValue(t *testing.T) {
	ctx := context.Background()
	s, err := filestore.Open(logPath(t))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(ctx, types.ShardRecord("c", 1, 5)))
	require.NoError(t, s.Put(ctx, types.ShardRecord("c", 1, 3)))

	records, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.Record{types.ShardRecord("c", 1, 5)}, records)
}

func TestOpenTwiceFailsWhileLocked(t *testing.T) {
	path := logPath(t)

	first, err := filestore.Open(path)
	require.NoError(t, err)

	_, err = filestore.Open(path)
	require.ErrorIs(t, err, filestore.ErrLockHeld)

	require.NoError(t, first.Close())
	require.NoError(t, first.Close(), "Close must be idempotent")

	second, err := filestore.Open(path)
	require.NoError(t, err)
	assert.NoError(t, second.Close())
}

func TestClosedStoreRejectsCalls(t *testing.T) {
	ctx := context.Background()
	s, err := filestore.Open(logPath(t))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Error(t, s.Put(ctx, types.ShardRecord("c", 0, 1)))
	_, err = s.Load(ctx)
	assert.Error(t, err)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := filestore.Open(logPath(t))
	require.NoError(t, err)
	defer s.Close()

	assert.ErrorIs(t, s.Put(ctx, types.ShardRecord("c", 0, 1)), context.Canceled)
}

const header = `{"version":2,"magic":"SHARDED_COUNTER"}` + "\n"

func TestOpenRejectsCorruptLogs(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "hello\n"},
		{"wrong magic", `{"version":2,"magic":"NOPE"}` + "\n"},
		{"wrong version", `{"version":9,"magic":"SHARDED_COUNTER"}` + "\n"},
		{"unknown kind", header + `{"kind":"total","counter":"c","value":1}` + "\n"},
		{"negative value", header + `{"kind":"shard","counter":"c","index":0,"value":-1}` + "\n"},
		{"garbage before a valid line", header + "garbage\n" + `{"kind":"config","counter":"c","value":20}` + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := logPath(t)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := filestore.Open(path)
			require.Error(t, err)

			// A failed Open must release the lock.
			_, statErr := os.Stat(path + ".lock")
			assert.ErrorIs(t, statErr, os.ErrNotExist)
		})
	}
}

func TestOpenMergesDuplicateRecords(t *testing.T) {
	path := logPath(t)
	content := header +
		`{"kind":"shard","counter":"c","index":2,"value":9}` + "\n" +
		`{"kind":"shard","counter":"c","index":2,"value":4}` + "\n" +
		`{"kind":"config","counter":"c","value":20}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := filestore.Open(path)
	require.NoError(t, err)
	defer s.Close()

	records, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.Record{
		types.ConfigRecord("c", 20),
		types.ShardRecord("c", 2, 9),
	}, records)
}

func TestOpenDropsTornTail(t *testing.T) {
	ctx := context.Background()
	path := logPath(t)
	content := header +
		`{"kind":"shard","counter":"c","index":0,"value":3}` + "\n" +
		`{"kind":"shard","cou`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := filestore.Open(path)
	require.NoError(t, err)

	records, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.Record{types.ShardRecord("c", 0, 3)}, records)

	// Appends after a torn tail must still read back.
	require.NoError(t, s.Put(ctx, types.ShardRecord("c", 0, 4)))
	require.NoError(t, s.Close())

	reopened, err := filestore.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	records, err = reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.Record{types.ShardRecord("c", 0, 4)}, records)
}

func TestOpenCompactsTheLog(t *testing.T) {
	ctx := context.Background()
	path := logPath(t)

	s, err := filestore.Open(path)
	require.NoError(t, err)
	for v := int64(1); v <= 5; v++ {
		require.NoError(t, s.Put(ctx, types.ShardRecord("c", 1, v)))
	}
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 6, strings.Count(string(data), "\n"), "header plus one line per append")

	reopened, err := filestore.Open(path)
	require.NoError(t, err)
	require.NoError(t, reopened.Close())

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"), "header plus one line per key")
	assert.Contains(t, string(data), `"value":5`)
}

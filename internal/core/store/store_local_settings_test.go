//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackendSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: config.DriverLibsql,
		Path:   filepath.Join(t.TempDir(), "state", "buckets.db"),
	}

	backend, err := OpenBackend(ctx, cfg)
	require.NoError(t, err)
	st, ok := backend.(*Store)
	require.True(t, ok)

	// Embedded files run with a single writer in WAL mode.
	assert.Equal(t, 1, st.DB.Stats().MaxOpenConnections)
	var mode string
	require.NoError(t, st.DB.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	assert.Contains(t, mode, "wal")
	var busy int
	require.NoError(t, st.DB.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busy))
	assert.Equal(t, localBusyTimeoutMs, busy)

	reset := time.Now().Add(time.Minute).Truncate(time.Millisecond)
	require.NoError(t, backend.UpdateBucket(ctx, "/webhooks/1/:token", &core.BucketState{
		Limit: 5, Remaining: 2, ResetAt: reset,
	}))
	require.NoError(t, backend.Close())

	reopened, err := OpenBackend(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.GetBucket(ctx, "/webhooks/1/:token")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Remaining)
	assert.True(t, reset.Equal(got.ResetAt))
}

func TestFileBackendReopensRepeatedly(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: config.DriverLibsql,
		Path:   filepath.Join(t.TempDir(), "buckets.db"),
	}

	for i := range 10 {
		backend, err := OpenBackend(ctx, cfg)
		require.NoError(t, err, "open %d", i)

		route := "/webhooks/1/:token"
		require.NoError(t, backend.UpdateBucket(ctx, route, &core.BucketState{
			Limit: 5, Remaining: 5 - i%5, ResetAt: time.Now().Add(time.Minute),
		}))
		count, err := backend.CountBuckets(ctx, BucketQuery{All: true})
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		require.NoError(t, backend.Close(), "close %d", i)
	}
}

func TestOpenRejectsForeignDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: config.DriverRedis, Path: ":memory:"})
	require.Error(t, err)
}

func TestIsLocalDSN(t *testing.T) {
	assert.True(t, isLocalDSN("file:/var/lib/hookline/buckets.db"))
	assert.False(t, isLocalDSN(":memory:"))
	assert.False(t, isLocalDSN("libsql://db.example.io"))
}

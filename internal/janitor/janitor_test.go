package janitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mergetree-writer/internal/logging"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "janitor.db")
	r, err := NewRegistry(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestAcquireRejectsDuplicateDir(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Acquire(ctx, "/data/tmp/insert_1_1_0", "pid-1")
	require.NoError(t, err)

	_, err = r.Acquire(ctx, "/data/tmp/insert_1_1_0", "pid-2")
	assert.Error(t, err)
}

func TestReleaseFreesLease(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Acquire(ctx, "/data/tmp/insert_2_2_0", "pid-1")
	require.NoError(t, err)
	require.NoError(t, r.Release(ctx, "/data/tmp/insert_2_2_0"))

	_, err = r.Acquire(ctx, "/data/tmp/insert_2_2_0", "pid-2")
	assert.NoError(t, err)
}

func TestListStaleFiltersByCutoff(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Acquire(ctx, "/data/tmp/insert_3_3_0", "pid-1")
	require.NoError(t, err)

	stale, err := r.ListStale(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "/data/tmp/insert_3_3_0", stale[0].Dir)

	fresh, err := r.ListStale(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, fresh)
}

func TestSweeperRemovesStaleLeases(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	_, err := r.Acquire(ctx, "/data/tmp/insert_4_4_0", "pid-1")
	require.NoError(t, err)

	var removed []string
	sweeper := NewSweeper(r, time.Millisecond, -time.Second, func(dir string) error {
		removed = append(removed, dir)
		return nil
	}, &logging.NoOpLogger{})

	sweeper.sweepOnce(ctx)

	assert.Equal(t, []string{"/data/tmp/insert_4_4_0"}, removed)
	stale, err := r.ListStale(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stale)
}

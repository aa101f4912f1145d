//go:build unix

package flock_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
	"github.com/mrz1836/taskreview/internal/flock"
)

func TestExclusive(t *testing.T) {
	t.Parallel()

	lockFile := filepath.Join(t.TempDir(), "test.lock")
	f1, err := os.OpenFile(lockFile, os.O_RDWR|os.O_CREATE, 0o600) // #nosec G304 -- test temp dir
	require.NoError(t, err)
	defer func() { _ = f1.Close() }()
	f2, err := os.OpenFile(lockFile, os.O_RDWR, 0o600) // #nosec G304 -- test temp dir
	require.NoError(t, err)
	defer func() { _ = f2.Close() }()

	require.NoError(t, flock.Exclusive(f1))
	require.ErrorIs(t, flock.Exclusive(f2), flock.ErrLockHeld, "second descriptor must not acquire a held lock")
	require.NoError(t, flock.Unlock(f1))
	require.NoError(t, flock.Exclusive(f2))
	require.NoError(t, flock.Unlock(f2))
}

func TestExclusive_ClosedFile(t *testing.T) {
	t.Parallel()

	f, err := os.Create(filepath.Join(t.TempDir(), "closed.lock")) // #nosec G304 -- test temp dir
	require.NoError(t, err)
	require.NoError(t, f.Close())

	err = flock.Exclusive(f)
	require.Error(t, err)
	assert.NotErrorIs(t, err, flock.ErrLockHeld)
}

func TestAcquire(t *testing.T) {
	t.Parallel()

	t.Run("acquires and releases", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "task.json.lock")
		lock, err := flock.Acquire(context.Background(), path, time.Second)
		require.NoError(t, err)
		require.NoError(t, lock.Release())

		again, err := flock.Acquire(context.Background(), path, time.Second)
		require.NoError(t, err)
		require.NoError(t, again.Release())
	})

	t.Run("times out while held", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "task.json.lock")
		held, err := flock.Acquire(context.Background(), path, time.Second)
		require.NoError(t, err)
		defer func() { _ = held.Release() }()

		_, err = flock.Acquire(context.Background(), path, 100*time.Millisecond)
		require.ErrorIs(t, err, reviewerrors.ErrLockTimeout)
	})

	t.Run("honors cancellation", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "task.json.lock")
		held, err := flock.Acquire(context.Background(), path, time.Second)
		require.NoError(t, err)
		defer func() { _ = held.Release() }()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = flock.Acquire(ctx, path, time.Minute)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("nil lock release is a no-op", func(t *testing.T) {
		t.Parallel()
		var l *flock.Lock
		assert.NoError(t, l.Release())
	})
}

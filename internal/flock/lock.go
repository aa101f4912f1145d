package flock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
)

const (
	lockFilePerm = 0o600
	retryDelay   = 25 * time.Millisecond
)

// ErrLockHeld reports that another descriptor holds the lock.
var ErrLockHeld = errors.New("lock held by another process")

// Lock is a held exclusive lock on a file.
type Lock struct {
	f *os.File
}

// Acquire opens (creating if needed) the lock file at path and polls for an
// exclusive lock while it is held elsewhere, until ctx is done or timeout
// elapses. Any other locking failure is returned at once.
func Acquire(ctx context.Context, path string, timeout time.Duration) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, lockFilePerm) //#nosec G302,G304 -- lock file path is built by the store
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			_ = f.Close()
			return nil, err
		}
		err := Exclusive(f)
		if err == nil {
			return &Lock{f: f}, nil
		}
		if !errors.Is(err, ErrLockHeld) {
			_ = f.Close()
			return nil, fmt.Errorf("failed to lock %s: %w", path, err)
		}
		if time.Now().After(deadline) {
			_ = f.Close()
			return nil, fmt.Errorf("failed to acquire lock %s: %w", path, reviewerrors.ErrLockTimeout)
		}
		time.Sleep(retryDelay)
	}
}

// Release unlocks and closes the lock file. Safe to call on a nil Lock.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	if err := Unlock(l.f); err != nil {
		_ = l.f.Close()
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return l.f.Close()
}

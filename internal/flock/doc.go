// Package flock provides cross-platform file locking utilities.
//
// The file store takes one exclusive lock per task document for the whole
// read-check-write cycle of a transition, which is what gives it
// compare-and-swap semantics across processes.
//
// Usage:
//
//	lock, err := flock.Acquire(ctx, path, 5*time.Second)
//	if err != nil {
//	    return err // errors.ErrLockTimeout when contended too long
//	}
//	defer lock.Release()
package flock

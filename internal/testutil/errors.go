// Package testutil provides testing utilities for taskreview.
//
// It holds the mock errors shared by the storage, notification and service
// tests. It should only be imported by test files (*_test.go).
package testutil

import "errors"

// Mock errors for simulating collaborator failures in tests.
var (
	// ErrMockNetwork simulates a dropped connection mid-transfer.
	ErrMockNetwork = errors.New("connection reset")

	// ErrMockThrottled simulates an object store asking the client to back off.
	ErrMockThrottled = errors.New("503 SlowDown")

	// ErrMockStorageUnavailable simulates an unreachable artifact bucket.
	ErrMockStorageUnavailable = errors.New("bucket unreachable")

	// ErrMockNotifierDown simulates a notification channel that is offline.
	ErrMockNotifierDown = errors.New("smtp down")

	// ErrMockDispatch simulates a dispatcher that rejects a notification.
	ErrMockDispatch = errors.New("dispatch failed")
)

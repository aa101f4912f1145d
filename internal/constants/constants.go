// Package constants provides centralized constant values used throughout taskreview.
// This package is the single source of truth for all shared constants and MUST NOT
// import any other internal packages.
package constants

import "time"

// File names used by the file store for state persistence.
const (
	// TaskFileName is the name of the JSON document holding a task and its history.
	TaskFileName = "task.json"

	// LockFileSuffix is appended to TaskFileName to build the per-task lock file.
	LockFileSuffix = ".lock"
)

// Directory names and paths used for organizing data.
const (
	// AppHome is the hidden directory name where taskreview stores all its data.
	// This directory is created in the user's home directory.
	AppHome = ".taskreview"

	// TasksDir is the directory name where task documents are stored.
	TasksDir = "tasks"

	// ArtifactsDir is the directory name where submitted deliverables are stored
	// by the local artifact backend.
	ArtifactsDir = "artifacts"

	// LogsDir is the directory name where log files are stored.
	LogsDir = "logs"

	// DatabaseFileName is the default SQLite database file name.
	DatabaseFileName = "taskreview.db"
)

// Timeouts and limits.
const (
	// DefaultLockTimeout bounds how long the file store waits for a task lock.
	DefaultLockTimeout = 5 * time.Second

	// DefaultNotifyTimeout bounds a single best-effort notification dispatch.
	DefaultNotifyTimeout = 5 * time.Second

	// DefaultNotifyMaxRetries is the number of push attempts for queued notifications.
	DefaultNotifyMaxRetries = 3

	// DefaultServerAddr is the listen address for the HTTP API.
	DefaultServerAddr = ":8080"

	// DefaultShutdownTimeout bounds graceful HTTP shutdown.
	DefaultShutdownTimeout = 10 * time.Second

	// MaxUploadBytes caps multipart submissions accepted by the HTTP API.
	MaxUploadBytes = 64 << 20
)

// Schema version constants for data migration support.
const (
	// TaskSchemaVersion is the current version of the persisted task schema.
	TaskSchemaVersion = "1.0"
)

// DateLayout is the calendar-date layout used for deadlines on the wire and in storage.
const DateLayout = "2006-01-02"

// DefaultFinalizeNote is recorded when an administrator finalizes without a comment.
const DefaultFinalizeNote = "Task finalized by administrator."

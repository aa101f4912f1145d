// Package errors provides centralized error handling for taskreview.
//
// This package defines sentinel errors used for programmatic error categorization
// throughout the application. All error types can be checked using errors.Is().
//
// IMPORTANT: This package MUST NOT import any other internal packages except
// internal/constants. Only standard library imports are allowed otherwise.
package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mrz1836/taskreview/internal/constants"
)

// Error categories surfaced by the workflow engine.
// Every engine failure wraps exactly one of these.
var (
	// ErrValidation indicates caller input is missing, empty or structurally invalid
	// (empty validators, assignee among validators, missing rejection comment).
	ErrValidation = errors.New("validation error")

	// ErrAuthorization indicates the actor lacks the capability for the requested transition.
	ErrAuthorization = errors.New("authorization error")

	// ErrStateConflict indicates the transition's source state no longer matches the
	// persisted task (another actor already moved it, or the task is finalized).
	ErrStateConflict = errors.New("state conflict")

	// ErrResourceUnavailable indicates artifact storage (or another external resource)
	// was unavailable or did not acknowledge the upload.
	ErrResourceUnavailable = errors.New("resource unavailable")
)

// Sentinel errors for specific conditions. Most wrap into a category above
// at the call site via fmt.Errorf("%w: ...").
var (
	// ErrTaskNotFound indicates that a task with the given ID does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskExists indicates an attempt to create a task that already exists.
	ErrTaskExists = errors.New("task already exists")

	// ErrEmptyValue indicates that a required value was empty.
	ErrEmptyValue = errors.New("value cannot be empty")

	// ErrHistoryTampered indicates the audit log hash chain does not verify.
	ErrHistoryTampered = errors.New("audit history failed verification")

	// ErrHistoryAppend indicates an audit entry that does not extend the end of the log.
	ErrHistoryAppend = errors.New("entry does not extend the audit log")

	// ErrLockTimeout indicates a file lock could not be acquired within the timeout period.
	ErrLockTimeout = errors.New("lock acquisition timeout")

	// ErrPathTraversal indicates an attempt to use path traversal in a filename or key.
	ErrPathTraversal = errors.New("path traversal detected")

	// ErrArtifactNotFound indicates the requested artifact does not exist.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrUnauthenticated indicates the caller presented no usable credential.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrConfigNil indicates that a nil config was passed to validation.
	ErrConfigNil = errors.New("config is nil")

	// ErrConfigInvalidStore indicates an invalid store configuration value.
	ErrConfigInvalidStore = errors.New("invalid store configuration")

	// ErrConfigInvalidArtifacts indicates an invalid artifact storage configuration value.
	ErrConfigInvalidArtifacts = errors.New("invalid artifacts configuration")

	// ErrConfigInvalidNotifications indicates an invalid notifications configuration value.
	ErrConfigInvalidNotifications = errors.New("invalid notifications configuration")

	// ErrConfigInvalidIdentity indicates an invalid identity configuration value.
	ErrConfigInvalidIdentity = errors.New("invalid identity configuration")

	// ErrConfigInvalidServer indicates an invalid server configuration value.
	ErrConfigInvalidServer = errors.New("invalid server configuration")

	// ErrInvalidOutputFormat indicates an invalid output format was specified.
	ErrInvalidOutputFormat = errors.New("invalid output format")

	// ErrInvalidArgument indicates that an invalid argument was provided.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPromptCanceled indicates the user aborted an interactive prompt or no
	// terminal was available to show it.
	ErrPromptCanceled = errors.New("prompt canceled")
)

// StateConflictError reports that a requested transition did not match the
// persisted state. It carries the actual status so callers can re-fetch and
// show it. errors.Is(err, ErrStateConflict) is true for every StateConflictError.
type StateConflictError struct {
	TaskID     string
	Transition constants.Transition
	Actual     constants.TaskStatus
	Expected   []constants.TaskStatus
	// Reason is an optional detail such as "version changed".
	Reason string
}

// Error implements the error interface.
func (e *StateConflictError) Error() string {
	var b strings.Builder
	b.WriteString(ErrStateConflict.Error())
	fmt.Fprintf(&b, ": task %q is %s", e.TaskID, e.Actual)
	if e.Transition != "" {
		fmt.Fprintf(&b, ", cannot %s", e.Transition)
	}
	if len(e.Expected) > 0 {
		names := make([]string, len(e.Expected))
		for i, s := range e.Expected {
			names[i] = s.String()
		}
		fmt.Fprintf(&b, " (requires %s)", strings.Join(names, "|"))
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

// Unwrap returns ErrStateConflict so errors.Is works on the category.
func (e *StateConflictError) Unwrap() error {
	return ErrStateConflict
}

// AsStateConflict extracts a StateConflictError from the chain.
func AsStateConflict(err error) (*StateConflictError, bool) {
	var sc *StateConflictError
	if errors.As(err, &sc) {
		return sc, true
	}
	return nil, false
}

// Kind classifies an error into one of the engine categories.
type Kind string

// Error kinds.
const (
	KindNone       Kind = ""
	KindValidation Kind = "validation"
	KindAuth       Kind = "authorization"
	KindConflict   Kind = "state_conflict"
	KindResource   Kind = "resource"
	KindNotFound   Kind = "not_found"
	KindInternal   Kind = "internal"
)

// KindOf returns the category of err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrStateConflict):
		return KindConflict
	case errors.Is(err, ErrAuthorization), errors.Is(err, ErrUnauthenticated):
		return KindAuth
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrResourceUnavailable):
		return KindResource
	case errors.Is(err, ErrTaskNotFound), errors.Is(err, ErrArtifactNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}

// ExitCode2Error wraps an error to indicate exit code 2 should be used.
type ExitCode2Error struct {
	Err error
}

// NewExitCode2Error wraps an error to indicate exit code 2.
func NewExitCode2Error(err error) *ExitCode2Error {
	return &ExitCode2Error{Err: err}
}

// Error implements the error interface.
func (e *ExitCode2Error) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ExitCode2Error) Unwrap() error {
	return e.Err
}

// IsExitCode2Error checks if an error should result in exit code 2.
func IsExitCode2Error(err error) bool {
	var e *ExitCode2Error
	return errors.As(err, &e)
}

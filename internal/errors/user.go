package errors

import "errors"

// ErrorInfo holds user-facing message and suggested action for an error.
type ErrorInfo struct {
	// Message is the user-friendly error description.
	Message string
	// Action is a suggested action to resolve the issue (empty if none).
	Action string
	// Retryable is true when repeating the same request later may succeed.
	Retryable bool
}

// errorEntry pairs a sentinel error with its user-facing info.
type errorEntry struct {
	err  error
	info ErrorInfo
}

// errorInfoEntries maps sentinel errors to their user-facing messages.
// More specific sentinels come before the categories they are wrapped in.
// Using a slice (not a map) because errors.Is() requires proper error chain traversal.
//
//nolint:gochecknoglobals // Pre-built mapping for efficiency
var errorInfoEntries = []errorEntry{
	{
		err: ErrTaskNotFound,
		info: ErrorInfo{
			Message: "The task does not exist.",
			Action:  "Check the task ID with 'taskreview task list'.",
		},
	},
	{
		err: ErrTaskExists,
		info: ErrorInfo{
			Message: "A task with this ID already exists.",
			Action:  "Omit the ID to have one generated.",
		},
	},
	{
		err: ErrStateConflict,
		info: ErrorInfo{
			Message: "The task changed since you last loaded it.",
			Action:  "Refresh the task to see its current status before acting again.",
		},
	},
	{
		err: ErrAuthorization,
		info: ErrorInfo{
			Message: "You are not allowed to perform this action on the task.",
		},
	},
	{
		err: ErrUnauthenticated,
		info: ErrorInfo{
			Message: "No valid credential was presented.",
			Action:  "Sign in again and retry.",
		},
	},
	{
		err: ErrValidation,
		info: ErrorInfo{
			Message: "The request is missing required information or is inconsistent.",
			Action:  "Correct the highlighted fields and submit again.",
		},
	},
	{
		err: ErrResourceUnavailable,
		info: ErrorInfo{
			Message:   "File storage is temporarily unavailable. Nothing was changed.",
			Action:    "Retry the upload in a moment.",
			Retryable: true,
		},
	},
	{
		err: ErrLockTimeout,
		info: ErrorInfo{
			Message:   "The task is busy.",
			Action:    "Retry in a moment.",
			Retryable: true,
		},
	},
	{
		err: ErrHistoryTampered,
		info: ErrorInfo{
			Message: "The task's audit history failed its integrity check.",
			Action:  "Contact an administrator; the task record may have been edited outside the workflow.",
		},
	},
	{
		err: ErrConfigNil,
		info: ErrorInfo{
			Message: "Configuration is missing.",
		},
	},
	{
		err: ErrInvalidOutputFormat,
		info: ErrorInfo{
			Message: "Unsupported output format.",
			Action:  "Use --output text or --output json.",
		},
	},
	{
		err: ErrPromptCanceled,
		info: ErrorInfo{
			Message: "Canceled.",
			Action:  "Pass the answer as a flag when running without a terminal.",
		},
	},
}

//nolint:gochecknoglobals // Built once from errorInfoEntries
var errorInfoMap = buildErrorInfoMap()

// buildErrorInfoMap creates a map from the errorInfoEntries slice.
func buildErrorInfoMap() map[error]ErrorInfo {
	m := make(map[error]ErrorInfo, len(errorInfoEntries))
	for _, entry := range errorInfoEntries {
		m[entry.err] = entry.info
	}
	return m
}

// getErrorInfo looks up the ErrorInfo for a given error.
// Direct sentinel hits are O(1); wrapped errors fall back to errors.Is traversal.
func getErrorInfo(err error) ErrorInfo {
	if info, ok := errorInfoMap[err]; ok {
		return info
	}
	for _, entry := range errorInfoEntries {
		if errors.Is(err, entry.err) {
			return entry.info
		}
	}
	return ErrorInfo{Message: err.Error()}
}

// UserMessage returns a user-friendly message for common errors.
// For unrecognized errors, it returns the error's original message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	return getErrorInfo(err).Message
}

// Actionable returns a user-friendly error message along with a suggested action.
// The action is empty when there is nothing the user can do.
func Actionable(err error) (message, action string) {
	if err == nil {
		return "", ""
	}
	info := getErrorInfo(err)
	return info.Message, info.Action
}

// Retryable reports whether retrying the same request later may succeed.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return getErrorInfo(err).Retryable
}

package task

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"github.com/mrz1836/taskreview/internal/constants"
	"github.com/mrz1836/taskreview/internal/domain"
	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
)

// validTaskIDRegex restricts task IDs to characters that are safe as path
// segments and SQL keys.
var validTaskIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidTaskID reports whether id may be used as a task identifier.
func ValidTaskID(id string) bool {
	return validTaskIDRegex.MatchString(id)
}

// GenerateTaskID returns a new random task identifier.
func GenerateTaskID() string {
	return uuid.NewString()
}

// Mutation is one atomic, conditional write: the task row is replaced only if
// its persisted status and version still equal the expected values, and Entry
// (when non-nil) is appended to the audit log in the same unit.
type Mutation struct {
	// Transition is used for error reporting only. Empty for reassignments.
	Transition constants.Transition

	ExpectedStatus  constants.TaskStatus
	ExpectedVersion int64

	// Task is the full new task state. Its Version must be ExpectedVersion+1.
	Task *domain.Task

	// Entry is appended to the audit log. It must follow the last persisted
	// entry: next sequence number, PrevHash equal to the last Hash.
	Entry *domain.HistoryEntry
}

// checkAppend refuses an entry that does not extend history.
func checkAppend(taskID string, history []domain.HistoryEntry, e *domain.HistoryEntry) error {
	if e == nil {
		return nil
	}
	var (
		lastSeq  int64
		lastHash string
	)
	for _, h := range history {
		if h.Sequence > lastSeq {
			lastSeq, lastHash = h.Sequence, h.Hash
		}
	}
	return checkTail(taskID, lastSeq, lastHash, e)
}

func checkTail(taskID string, lastSeq int64, lastHash string, e *domain.HistoryEntry) error {
	if e.TaskID != taskID || e.Sequence != lastSeq+1 || e.PrevHash != lastHash {
		return fmt.Errorf("failed to update task '%s': %w: entry %d after %d",
			taskID, reviewerrors.ErrHistoryAppend, e.Sequence, lastSeq)
	}
	return nil
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	ProjectID string
	Assignee  string
	Validator string
	Status    constants.TaskStatus
}

// Matches reports whether t satisfies the filter.
func (f ListFilter) Matches(t *domain.Task) bool {
	switch {
	case f.ProjectID != "" && t.ProjectID != f.ProjectID:
		return false
	case f.Assignee != "" && t.Assignee != f.Assignee:
		return false
	case f.Validator != "" && !t.IsValidator(f.Validator):
		return false
	case f.Status != "" && t.Status != f.Status:
		return false
	}
	return true
}

// Store persists tasks and their audit logs.
//
// Implementations must provide:
//   - compare-and-swap on Apply: commit only when (status, version) still match,
//     otherwise return an *errors.StateConflictError carrying the actual status;
//   - atomicity: the task write and the audit append of one Mutation commit together;
//   - an append-only audit log ordered by PerformedAt (Sequence breaks ties).
type Store interface {
	// Create persists a new task together with its creation entry.
	// Returns ErrTaskExists if the ID is taken.
	Create(ctx context.Context, task *domain.Task, entry domain.HistoryEntry) error

	// Get retrieves a task by ID. Returns ErrTaskNotFound if missing.
	Get(ctx context.Context, taskID string) (*domain.Task, error)

	// History returns the task's audit log in chronological order.
	History(ctx context.Context, taskID string) ([]domain.HistoryEntry, error)

	// Load returns a task and its history read from one consistent snapshot.
	Load(ctx context.Context, taskID string) (*domain.Task, []domain.HistoryEntry, error)

	// Apply commits a conditional mutation.
	Apply(ctx context.Context, m Mutation) error

	// List returns tasks matching filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]*domain.Task, error)

	// Close releases resources held by the store.
	Close() error
}

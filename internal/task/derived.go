package task

import (
	"math"
	"sort"
	"time"

	"github.com/mrz1836/taskreview/internal/domain"
)

// day is the unit used for deadline arithmetic.
const day = 24 * time.Hour

// HasPendingSubmission reports whether the latest submission in history has not
// yet been followed by a validate or reject decision. The log is scanned in
// chronological order, and entries sharing a timestamp keep their commit
// (Sequence) order. A history without submissions is never pending.
func HasPendingSubmission(history []domain.HistoryEntry) bool {
	ordered := chronological(history)

	latest := -1
	for i, e := range ordered {
		if e.ActionType.IsSubmission() {
			latest = i
		}
	}
	if latest < 0 {
		return false
	}
	for _, e := range ordered[latest+1:] {
		if e.ActionType.IsDecision() {
			return false
		}
	}
	return true
}

// chronological returns a copy of history ordered by PerformedAt, with
// Sequence breaking ties.
func chronological(history []domain.HistoryEntry) []domain.HistoryEntry {
	out := make([]domain.HistoryEntry, len(history))
	copy(out, history)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].PerformedAt.Equal(out[j].PerformedAt) {
			return out[i].PerformedAt.Before(out[j].PerformedAt)
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out
}

// RemainingDays returns ceil((date - now) / 1 day). A date later today yields 1,
// a date that passed less than a day ago yields 0.
func RemainingDays(date, now time.Time) int {
	return int(math.Ceil(float64(date.Sub(now)) / float64(day)))
}

// IsOverdue reports whether RemainingDays is negative.
func IsOverdue(date, now time.Time) bool {
	return RemainingDays(date, now) < 0
}

// DeadlineStatus is the lazily evaluated view of one deadline.
type DeadlineStatus struct {
	Set           bool       `json:"set"`
	Date          *time.Time `json:"date,omitempty"`
	RemainingDays int        `json:"remaining_days"`
	Overdue       bool       `json:"overdue"`
}

// EvaluateDeadline computes the DeadlineStatus of date at now. A nil date is unset.
func EvaluateDeadline(date *time.Time, now time.Time) DeadlineStatus {
	if date == nil {
		return DeadlineStatus{}
	}
	remaining := RemainingDays(*date, now)
	d := *date
	return DeadlineStatus{
		Set:           true,
		Date:          &d,
		RemainingDays: remaining,
		Overdue:       remaining < 0,
	}
}

// Derived holds the signals other subsystems read. It is recomputed on every
// read and never persisted.
type Derived struct {
	PendingSubmission  bool           `json:"pending_submission"`
	Deadline           DeadlineStatus `json:"deadline"`
	ValidationDeadline DeadlineStatus `json:"validation_deadline"`
}

// Derive computes the derived signals for t and its history at now.
func Derive(t *domain.Task, history []domain.HistoryEntry, now time.Time) Derived {
	if t == nil {
		return Derived{}
	}
	return Derived{
		PendingSubmission:  HasPendingSubmission(history),
		Deadline:           EvaluateDeadline(t.Deadline, now),
		ValidationDeadline: EvaluateDeadline(t.ValidationDeadline, now),
	}
}

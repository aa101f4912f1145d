// Package domain provides shared domain types for the taskreview workflow engine.
// These types are used across all internal packages to ensure consistent data structures.
//
// This package follows strict import rules:
//   - CAN import: internal/constants, standard library
//   - MUST NOT import: any other internal packages
//
// All JSON field names use snake_case.
package domain

import (
	"slices"
	"time"

	"github.com/mrz1836/taskreview/internal/constants"
)

// Task is the unit of work under review.
//
// Example JSON representation:
//
//	{
//	    "id": "0b6a...",
//	    "project_id": "proj-1",
//	    "phase": "design", "section": "structure", "subsection": "foundations",
//	    "label": "Foundation drawings",
//	    "assignee": "u1",
//	    "validators": ["u2", "u3"],
//	    "deadline": "2026-11-01T00:00:00Z",
//	    "status": "submitted",
//	    "version": 3,
//	    ...
//	}
type Task struct {
	// ID is the opaque unique identifier for the task.
	ID string `json:"id"`

	// ProjectID and the hierarchy fields are opaque path segments; the engine
	// never interprets them.
	ProjectID  string `json:"project_id"`
	Phase      string `json:"phase,omitempty"`
	Section    string `json:"section,omitempty"`
	Subsection string `json:"subsection,omitempty"`

	// Label is the human-readable task name used in notifications.
	Label string `json:"label"`

	// ProjectLabel is the human-readable project name used in notifications.
	ProjectLabel string `json:"project_label,omitempty"`

	// Assignee is the single actor responsible for producing a submission.
	Assignee string `json:"assignee"`

	// Validators may approve or reject submissions. Never empty and never
	// contains Assignee.
	Validators []string `json:"validators"`

	// Deadline is the submission due date; ValidationDeadline the review due date.
	Deadline           *time.Time `json:"deadline,omitempty"`
	ValidationDeadline *time.Time `json:"validation_deadline,omitempty"`

	// ExpectedFormat is an opaque tag describing the deliverable's file kind.
	ExpectedFormat string `json:"expected_format,omitempty"`

	// Status is the current workflow state.
	Status constants.TaskStatus `json:"status"`

	// Version increments on every committed write and backs optimistic concurrency.
	Version int64 `json:"version"`

	// CurrentFileRef points to the last submitted artifact (empty until first submission).
	CurrentFileRef  string `json:"current_file_ref,omitempty"`
	CurrentFileName string `json:"current_file_name,omitempty"`

	// InstructionComment is set at creation.
	InstructionComment string `json:"instruction_comment,omitempty"`

	// DecisionComment and DecisionActor are set by the last validate, reject or finalize.
	DecisionComment string `json:"decision_comment,omitempty"`
	DecisionActor   string `json:"decision_actor,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`

	// SchemaVersion indicates the version of the persisted schema.
	SchemaVersion string `json:"schema_version"`
}

// IsValidator reports whether actorID is one of the task's validators.
func (t *Task) IsValidator(actorID string) bool {
	return actorID != "" && slices.Contains(t.Validators, actorID)
}

// IsAssignee reports whether actorID is the task's assignee.
func (t *Task) IsAssignee(actorID string) bool {
	return actorID != "" && t.Assignee == actorID
}

// Clone returns a deep copy of the task so callers can mutate it freely.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Validators = slices.Clone(t.Validators)
	c.Deadline = cloneTime(t.Deadline)
	c.ValidationDeadline = cloneTime(t.ValidationDeadline)
	c.SubmittedAt = cloneTime(t.SubmittedAt)
	c.DecidedAt = cloneTime(t.DecidedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// HistoryEntry is one immutable record in a task's audit log.
type HistoryEntry struct {
	// ID uniquely identifies the entry.
	ID string `json:"id"`

	TaskID string `json:"task_id"`

	// Sequence is 1-based and strictly increasing per task.
	Sequence int64 `json:"sequence"`

	ActionType  constants.ActionType `json:"action_type"`
	PerformedBy string               `json:"performed_by"`
	PerformedAt time.Time            `json:"performed_at"`

	// FromStatus and ToStatus record the edge taken. FromStatus is empty for
	// the synthetic creation entry.
	FromStatus constants.TaskStatus `json:"from_status,omitempty"`
	ToStatus   constants.TaskStatus `json:"to_status"`

	// Submission-type fields.
	FileRef  string `json:"file_ref,omitempty"`
	FileName string `json:"file_name,omitempty"`
	Comment  string `json:"comment,omitempty"`

	// DecisionComment is set on validate, reject and finalize entries.
	DecisionComment string `json:"decision_comment,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`

	// PrevHash and Hash chain the entries of one task together.
	PrevHash string `json:"prev_hash,omitempty"`
	Hash     string `json:"hash"`
}

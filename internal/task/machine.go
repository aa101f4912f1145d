package task

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/google/uuid"

	"github.com/mrz1836/taskreview/internal/clock"
	"github.com/mrz1836/taskreview/internal/constants"
	"github.com/mrz1836/taskreview/internal/domain"
	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
)

// Command is an approved transition ready to be applied.
type Command struct {
	Transition constants.Transition
	ActorID    string
	FileRef    string
	FileName   string
	Comment    string
	Metadata   map[string]string
}

// Machine applies transitions to persisted tasks. Every Apply is one
// conditional Store.Apply carrying both the new task state and exactly one
// audit entry.
type Machine struct {
	store        Store
	clock        clock.Clock
	newID        func() string
	finalizeNote string
}

// NewMachine returns a Machine writing to store.
func NewMachine(store Store, clk clock.Clock, finalizeNote string) *Machine {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if strings.TrimSpace(finalizeNote) == "" {
		finalizeNote = constants.DefaultFinalizeNote
	}
	return &Machine{
		store:        store,
		clock:        clk,
		newID:        uuid.NewString,
		finalizeNote: finalizeNote,
	}
}

// Apply moves current along cmd.Transition. current and history must come from
// one Store.Load; the write is conditional on current's status and version, so
// any commit made since that read surfaces as a StateConflictError.
func (m *Machine) Apply(ctx context.Context, current *domain.Task, history []domain.HistoryEntry, cmd Command) (*domain.Task, domain.HistoryEntry, error) {
	rule, ok := RuleFor(cmd.Transition)
	if !ok {
		return nil, domain.HistoryEntry{}, reviewerrors.Validationf("unknown transition %q", cmd.Transition)
	}
	if !rule.Allows(current.Status) {
		return nil, domain.HistoryEntry{}, &reviewerrors.StateConflictError{
			TaskID:     current.ID,
			Transition: cmd.Transition,
			Actual:     current.Status,
			Expected:   rule.From,
		}
	}

	entry := domain.HistoryEntry{
		ID:          m.newID(),
		TaskID:      current.ID,
		ActionType:  rule.ActionFrom(current.Status),
		PerformedBy: cmd.ActorID,
		PerformedAt: m.clock.Now().UTC(),
		FromStatus:  current.Status,
		ToStatus:    rule.To,
		Metadata:    maps.Clone(cmd.Metadata),
	}

	next := current.Clone()
	next.Status = rule.To
	next.Version = current.Version + 1

	switch cmd.Transition {
	case constants.TransitionSubmit:
		next.CurrentFileRef = cmd.FileRef
		next.CurrentFileName = cmd.FileName
		entry.FileRef = cmd.FileRef
		entry.FileName = cmd.FileName
		entry.Comment = cmd.Comment
	case constants.TransitionValidate, constants.TransitionReject, constants.TransitionFinalize:
		comment := cmd.Comment
		if cmd.Transition == constants.TransitionFinalize && strings.TrimSpace(comment) == "" {
			comment = m.finalizeNote
		}
		next.DecisionComment = comment
		next.DecisionActor = cmd.ActorID
		entry.DecisionComment = comment
	case constants.TransitionStart:
	}

	chainEntry(history, &entry)

	// Task timestamps follow the entry time, which chainEntry may have clamped.
	at := entry.PerformedAt
	next.UpdatedAt = at
	switch cmd.Transition {
	case constants.TransitionSubmit:
		next.SubmittedAt = &at
	case constants.TransitionValidate, constants.TransitionReject, constants.TransitionFinalize:
		next.DecidedAt = &at
	case constants.TransitionStart:
	}

	err := m.store.Apply(ctx, Mutation{
		Transition:      cmd.Transition,
		ExpectedStatus:  current.Status,
		ExpectedVersion: current.Version,
		Task:            next,
		Entry:           &entry,
	})
	if err != nil {
		return nil, domain.HistoryEntry{}, fmt.Errorf("failed to %s task '%s': %w", cmd.Transition, current.ID, err)
	}
	return next, entry, nil
}

// Create persists t in Assigned together with the synthetic creation entry.
func (m *Machine) Create(ctx context.Context, t *domain.Task, actorID string) (*domain.Task, domain.HistoryEntry, error) {
	now := m.clock.Now().UTC()

	created := t.Clone()
	created.Status = constants.TaskStatusAssigned
	created.Version = 1
	created.CreatedAt = now
	created.UpdatedAt = now
	created.SubmittedAt = nil
	created.DecidedAt = nil
	created.CurrentFileRef = ""
	created.CurrentFileName = ""
	created.DecisionComment = ""
	created.DecisionActor = ""
	created.SchemaVersion = constants.TaskSchemaVersion

	entry := domain.HistoryEntry{
		ID:          m.newID(),
		TaskID:      created.ID,
		ActionType:  constants.ActionAssigned,
		PerformedBy: actorID,
		PerformedAt: now,
		ToStatus:    constants.TaskStatusAssigned,
		Comment:     created.InstructionComment,
		Metadata:    assignmentMetadata(nil, created),
	}
	chainEntry(nil, &entry)

	if err := m.store.Create(ctx, created, entry); err != nil {
		return nil, domain.HistoryEntry{}, fmt.Errorf("failed to create task '%s': %w", created.ID, err)
	}
	return created, entry, nil
}

// Reassign replaces the task's parties and deadlines without a status change.
// The write is conditional on the current status and version and appends an
// assigned entry recording the previous and new parties. current and history
// must come from one Store.Load.
func (m *Machine) Reassign(ctx context.Context, current *domain.Task, history []domain.HistoryEntry, updated *domain.Task, actorID string) (*domain.Task, domain.HistoryEntry, error) {
	if IsTerminalStatus(current.Status) {
		return nil, domain.HistoryEntry{}, &reviewerrors.StateConflictError{
			TaskID: current.ID,
			Actual: current.Status,
			Reason: "finalized tasks cannot be reassigned",
		}
	}

	next := current.Clone()
	next.Assignee = updated.Assignee
	next.Validators = append([]string(nil), updated.Validators...)
	next.Deadline = updated.Deadline
	next.ValidationDeadline = updated.ValidationDeadline
	next.Version = current.Version + 1

	entry := domain.HistoryEntry{
		ID:          m.newID(),
		TaskID:      current.ID,
		ActionType:  constants.ActionAssigned,
		PerformedBy: actorID,
		PerformedAt: m.clock.Now().UTC(),
		FromStatus:  current.Status,
		ToStatus:    current.Status,
		Metadata:    assignmentMetadata(current, next),
	}
	chainEntry(history, &entry)
	next.UpdatedAt = entry.PerformedAt

	err := m.store.Apply(ctx, Mutation{
		ExpectedStatus:  current.Status,
		ExpectedVersion: current.Version,
		Task:            next,
		Entry:           &entry,
	})
	if err != nil {
		return nil, domain.HistoryEntry{}, fmt.Errorf("failed to reassign task '%s': %w", current.ID, err)
	}
	return next, entry, nil
}

package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/taskreview/internal/constants"
	"github.com/mrz1836/taskreview/internal/domain"
	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
)

func capsFor(task *domain.Task, actorID string, admin bool) domain.Capabilities {
	return domain.CapabilitiesFor(task, domain.Actor{ID: actorID, Admin: admin})
}

func TestGuard_Authorization(t *testing.T) {
	g := NewGuard(nil)
	submitted := createTestTask("t-1", constants.TaskStatusSubmitted)
	submittedHistory := buildHistory("t-1", constants.ActionAssigned, constants.ActionSubmitted)
	assigned := createTestTask("t-2", constants.TaskStatusAssigned)
	assignedHistory := buildHistory("t-2", constants.ActionAssigned)

	tests := []struct {
		name    string
		task    *domain.Task
		history []domain.HistoryEntry
		req     Request
		wantErr error
	}{
		{
			name: "assignee may start", task: assigned, history: assignedHistory,
			req: Request{Transition: constants.TransitionStart, Caps: capsFor(assigned, "u1", false)},
		},
		{
			name: "validator may not start", task: assigned, history: assignedHistory,
			req:     Request{Transition: constants.TransitionStart, Caps: capsFor(assigned, "u2", false)},
			wantErr: reviewerrors.ErrAuthorization,
		},
		{
			name: "admin may not submit on behalf of the assignee", task: assigned, history: assignedHistory,
			req:     Request{Transition: constants.TransitionSubmit, Caps: capsFor(assigned, "boss", true), FileRef: "f"},
			wantErr: reviewerrors.ErrAuthorization,
		},
		{
			name: "validator may validate", task: submitted, history: submittedHistory,
			req: Request{Transition: constants.TransitionValidate, Caps: capsFor(submitted, "u3", false)},
		},
		{
			name: "admin may validate", task: submitted, history: submittedHistory,
			req: Request{Transition: constants.TransitionValidate, Caps: capsFor(submitted, "boss", true)},
		},
		{
			name: "assignee may not validate own work", task: submitted, history: submittedHistory,
			req:     Request{Transition: constants.TransitionValidate, Caps: capsFor(submitted, "u1", false)},
			wantErr: reviewerrors.ErrAuthorization,
		},
		{
			name: "stranger may not reject", task: submitted, history: submittedHistory,
			req:     Request{Transition: constants.TransitionReject, Caps: capsFor(submitted, "u9", false), Comment: "no"},
			wantErr: reviewerrors.ErrAuthorization,
		},
		{
			name: "validator may not finalize", task: submitted, history: submittedHistory,
			req:     Request{Transition: constants.TransitionFinalize, Caps: capsFor(submitted, "u2", false)},
			wantErr: reviewerrors.ErrAuthorization,
		},
		{
			name: "empty actor", task: submitted, history: submittedHistory,
			req:     Request{Transition: constants.TransitionValidate, Caps: domain.Capabilities{}},
			wantErr: reviewerrors.ErrAuthorization,
		},
		{
			name: "unknown transition", task: submitted, history: submittedHistory,
			req:     Request{Transition: "archive", Caps: capsFor(submitted, "boss", true)},
			wantErr: reviewerrors.ErrValidation,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := g.Check(tc.task, tc.history, tc.req)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestGuard_SubmitWhilePending(t *testing.T) {
	g := NewGuard(nil)
	task := createTestTask("t-1", constants.TaskStatusSubmitted)
	history := buildHistory("t-1", constants.ActionAssigned, constants.ActionSubmitted)

	err := g.Check(task, history, Request{
		Transition: constants.TransitionSubmit,
		Caps:       capsFor(task, "u1", false),
		FileRef:    "f2",
	})

	require.ErrorIs(t, err, reviewerrors.ErrStateConflict)
	conflict, ok := reviewerrors.AsStateConflict(err)
	require.True(t, ok)
	assert.Equal(t, constants.TaskStatusSubmitted, conflict.Actual)
	assert.Contains(t, conflict.Reason, "pending")
}

func TestGuard_RequiredFields(t *testing.T) {
	g := NewGuard(nil)

	t.Run("submit without file", func(t *testing.T) {
		task := createTestTask("t-1", constants.TaskStatusInProgress)
		history := buildHistory("t-1", constants.ActionAssigned, constants.ActionStarted)
		err := g.Check(task, history, Request{
			Transition: constants.TransitionSubmit,
			Caps:       capsFor(task, "u1", false),
			FileRef:    "   ",
		})
		require.ErrorIs(t, err, reviewerrors.ErrValidation)
	})

	t.Run("reject without comment", func(t *testing.T) {
		task := createTestTask("t-1", constants.TaskStatusSubmitted)
		history := buildHistory("t-1", constants.ActionAssigned, constants.ActionSubmitted)
		err := g.Check(task, history, Request{
			Transition: constants.TransitionReject,
			Caps:       capsFor(task, "u2", false),
			Comment:    "",
		})
		require.ErrorIs(t, err, reviewerrors.ErrValidation)
	})

	t.Run("authorization is checked before fields", func(t *testing.T) {
		task := createTestTask("t-1", constants.TaskStatusSubmitted)
		history := buildHistory("t-1", constants.ActionAssigned, constants.ActionSubmitted)
		err := g.Check(task, history, Request{
			Transition: constants.TransitionReject,
			Caps:       capsFor(task, "u9", false),
		})
		require.ErrorIs(t, err, reviewerrors.ErrAuthorization)
	})
}

func TestGuard_AllowedTransitions(t *testing.T) {
	g := NewGuard(nil)
	task := createTestTask("t-1", constants.TaskStatusSubmitted)
	history := buildHistory("t-1", constants.ActionAssigned, constants.ActionSubmitted)

	assert.Equal(t,
		[]constants.Transition{constants.TransitionValidate, constants.TransitionReject},
		g.AllowedTransitions(task, history, capsFor(task, "u2", false)))
	assert.Empty(t, g.AllowedTransitions(task, history, capsFor(task, "u1", false)))

	assigned := createTestTask("t-2", constants.TaskStatusAssigned)
	assert.Equal(t,
		[]constants.Transition{constants.TransitionStart, constants.TransitionSubmit},
		g.AllowedTransitions(assigned, buildHistory("t-2", constants.ActionAssigned), capsFor(assigned, "u1", false)))
}

func TestValidateStructure(t *testing.T) {
	deadline := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		mutate  func(*domain.Task)
		opts    StructureOptions
		wantErr bool
	}{
		{name: "valid", mutate: func(*domain.Task) {}},
		{name: "missing project", mutate: func(t *domain.Task) { t.ProjectID = " " }, wantErr: true},
		{name: "missing label", mutate: func(t *domain.Task) { t.Label = "" }, wantErr: true},
		{name: "missing assignee", mutate: func(t *domain.Task) { t.Assignee = "" }, wantErr: true},
		{name: "no validators", mutate: func(t *domain.Task) { t.Validators = nil }, wantErr: true},
		{name: "empty validator", mutate: func(t *domain.Task) { t.Validators = []string{"u2", ""} }, wantErr: true},
		{name: "duplicate validator", mutate: func(t *domain.Task) { t.Validators = []string{"u2", "u2"} }, wantErr: true},
		{name: "assignee is validator", mutate: func(t *domain.Task) { t.Validators = []string{"u1"} }, wantErr: true},
		{
			name: "validation deadline before deadline, enforced",
			mutate: func(t *domain.Task) {
				t.Deadline = ptrTime(deadline)
				t.ValidationDeadline = ptrTime(deadline.Add(-24 * time.Hour))
			},
			opts:    StructureOptions{EnforceDeadlineOrder: true},
			wantErr: true,
		},
		{
			name: "validation deadline before deadline, not enforced",
			mutate: func(t *domain.Task) {
				t.Deadline = ptrTime(deadline)
				t.ValidationDeadline = ptrTime(deadline.Add(-24 * time.Hour))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			task := createTestTask("t-1", constants.TaskStatusAssigned)
			tc.mutate(task)
			err := ValidateStructure(task, tc.opts)
			if tc.wantErr {
				require.ErrorIs(t, err, reviewerrors.ErrValidation)
				return
			}
			require.NoError(t, err)
		})
	}

	require.ErrorIs(t, ValidateStructure(nil, StructureOptions{}), reviewerrors.ErrValidation)
}

func TestCycleDecisions(t *testing.T) {
	assert.Nil(t, CycleDecisions(buildHistory("t-1", constants.ActionAssigned)))

	h := buildHistory("t-1",
		constants.ActionAssigned, constants.ActionSubmitted, constants.ActionRejected,
		constants.ActionResubmitted, constants.ActionValidated)
	decisions := CycleDecisions(h)
	require.Len(t, decisions, 1)
	assert.Equal(t, constants.ActionValidated, decisions[0].ActionType)

	assert.Empty(t, CycleDecisions(h[:4]))
}

func TestFirstDecisionWins(t *testing.T) {
	p := FirstDecisionWins{}
	assert.Equal(t, "first_decision_wins", p.Name())
	require.NoError(t, p.AuthorizeDecision(domain.Capabilities{ActorID: "u2", IsValidator: true}))
	require.NoError(t, p.AuthorizeDecision(domain.Capabilities{ActorID: "boss", IsAdmin: true}))
	require.ErrorIs(t, p.AuthorizeDecision(domain.Capabilities{ActorID: "u1", IsAssignee: true}), reviewerrors.ErrAuthorization)
}

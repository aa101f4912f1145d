package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/taskreview/internal/constants"
)

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		name string
		from constants.TaskStatus
		to   constants.TaskStatus
		want bool
	}{
		{"assigned to in_progress", constants.TaskStatusAssigned, constants.TaskStatusInProgress, true},
		{"assigned to submitted", constants.TaskStatusAssigned, constants.TaskStatusSubmitted, true},
		{"in_progress to submitted", constants.TaskStatusInProgress, constants.TaskStatusSubmitted, true},
		{"rejected to submitted", constants.TaskStatusRejected, constants.TaskStatusSubmitted, true},
		{"submitted to validated", constants.TaskStatusSubmitted, constants.TaskStatusValidated, true},
		{"submitted to rejected", constants.TaskStatusSubmitted, constants.TaskStatusRejected, true},
		{"validated to finalized", constants.TaskStatusValidated, constants.TaskStatusFinalized, true},

		{"assigned to validated", constants.TaskStatusAssigned, constants.TaskStatusValidated, false},
		{"in_progress to assigned", constants.TaskStatusInProgress, constants.TaskStatusAssigned, false},
		{"submitted to finalized", constants.TaskStatusSubmitted, constants.TaskStatusFinalized, false},
		{"rejected to in_progress", constants.TaskStatusRejected, constants.TaskStatusInProgress, false},
		{"validated to rejected", constants.TaskStatusValidated, constants.TaskStatusRejected, false},
		{"finalized to submitted", constants.TaskStatusFinalized, constants.TaskStatusSubmitted, false},
		{"same status", constants.TaskStatusSubmitted, constants.TaskStatusSubmitted, false},
		{"unknown source", constants.TaskStatus("archived"), constants.TaskStatusSubmitted, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsValidTransition(tc.from, tc.to))
		})
	}
}

func TestIsTerminalStatus(t *testing.T) {
	for _, s := range constants.AllTaskStatuses() {
		assert.Equal(t, s == constants.TaskStatusFinalized, IsTerminalStatus(s), s)
	}
	assert.False(t, IsTerminalStatus("bogus"))
}

func TestRuleFor(t *testing.T) {
	t.Run("every transition has a rule", func(t *testing.T) {
		for _, tr := range constants.AllTransitions() {
			rule, ok := RuleFor(tr)
			require.True(t, ok, tr)
			assert.Equal(t, tr, rule.Transition)
			assert.NotEmpty(t, rule.From)
		}
	})

	t.Run("unknown transition", func(t *testing.T) {
		_, ok := RuleFor("archive")
		assert.False(t, ok)
	})

	t.Run("returned source set is a copy", func(t *testing.T) {
		rule, _ := RuleFor(constants.TransitionSubmit)
		rule.From[0] = constants.TaskStatusFinalized

		again, _ := RuleFor(constants.TransitionSubmit)
		assert.Equal(t, constants.TaskStatusAssigned, again.From[0])
	})
}

func TestRule_ActionFrom(t *testing.T) {
	submit, _ := RuleFor(constants.TransitionSubmit)
	assert.Equal(t, constants.ActionSubmitted, submit.ActionFrom(constants.TaskStatusAssigned))
	assert.Equal(t, constants.ActionSubmitted, submit.ActionFrom(constants.TaskStatusInProgress))
	assert.Equal(t, constants.ActionResubmitted, submit.ActionFrom(constants.TaskStatusRejected))

	reject, _ := RuleFor(constants.TransitionReject)
	assert.Equal(t, constants.ActionRejected, reject.ActionFrom(constants.TaskStatusSubmitted))
}

func TestTransitionsFrom(t *testing.T) {
	assert.Equal(t,
		[]constants.Transition{constants.TransitionStart, constants.TransitionSubmit},
		TransitionsFrom(constants.TaskStatusAssigned))
	assert.Equal(t,
		[]constants.Transition{constants.TransitionValidate, constants.TransitionReject},
		TransitionsFrom(constants.TaskStatusSubmitted))
	assert.Empty(t, TransitionsFrom(constants.TaskStatusFinalized))
}

func TestValidTransitions_MatchesRules(t *testing.T) {
	for from, targets := range ValidTransitions {
		for _, to := range targets {
			found := false
			for _, tr := range TransitionsFrom(from) {
				rule, _ := RuleFor(tr)
				if rule.To == to {
					found = true
				}
			}
			assert.True(t, found, "%s -> %s has no rule", from, to)
		}
	}
}

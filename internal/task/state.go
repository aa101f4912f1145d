// Package task provides the task review workflow engine.
//
// This file implements the transition graph, which defines every legal edge a
// task may take and which audit action records it.
//
// Import rules:
//   - CAN import: internal/constants, internal/domain, internal/errors, internal/clock, std lib
//   - MUST NOT import: internal/api, internal/cli
package task

import (
	"slices"

	"github.com/mrz1836/taskreview/internal/constants"
)

// Rule describes one requestable transition: the statuses it may leave from,
// the status it produces and the audit action it records.
type Rule struct {
	Transition constants.Transition
	From       []constants.TaskStatus
	To         constants.TaskStatus
	Action     constants.ActionType
}

// transitionRules is the complete workflow graph. No other edges exist.
//
//	Assigned --start--> InProgress
//	Assigned|InProgress|Rejected --submit--> Submitted
//	Submitted --validate--> Validated
//	Submitted --reject--> Rejected
//	Validated --finalize--> Finalized
//
//nolint:gochecknoglobals // Read-only lookup table
var transitionRules = map[constants.Transition]Rule{
	constants.TransitionStart: {
		Transition: constants.TransitionStart,
		From:       []constants.TaskStatus{constants.TaskStatusAssigned},
		To:         constants.TaskStatusInProgress,
		Action:     constants.ActionStarted,
	},
	constants.TransitionSubmit: {
		Transition: constants.TransitionSubmit,
		From: []constants.TaskStatus{
			constants.TaskStatusAssigned,
			constants.TaskStatusInProgress,
			constants.TaskStatusRejected,
		},
		To:     constants.TaskStatusSubmitted,
		Action: constants.ActionSubmitted,
	},
	constants.TransitionValidate: {
		Transition: constants.TransitionValidate,
		From:       []constants.TaskStatus{constants.TaskStatusSubmitted},
		To:         constants.TaskStatusValidated,
		Action:     constants.ActionValidated,
	},
	constants.TransitionReject: {
		Transition: constants.TransitionReject,
		From:       []constants.TaskStatus{constants.TaskStatusSubmitted},
		To:         constants.TaskStatusRejected,
		Action:     constants.ActionRejected,
	},
	constants.TransitionFinalize: {
		Transition: constants.TransitionFinalize,
		From:       []constants.TaskStatus{constants.TaskStatusValidated},
		To:         constants.TaskStatusFinalized,
		Action:     constants.ActionFinalized,
	},
}

// ValidTransitions lists, per source status, every reachable target status.
// It is derived from transitionRules so the two can never disagree.
//
//nolint:gochecknoglobals // Exported for testing and read-only lookup
var ValidTransitions = buildValidTransitions()

func buildValidTransitions() map[constants.TaskStatus][]constants.TaskStatus {
	out := make(map[constants.TaskStatus][]constants.TaskStatus)
	for _, tr := range constants.AllTransitions() {
		rule := transitionRules[tr]
		for _, from := range rule.From {
			if !slices.Contains(out[from], rule.To) {
				out[from] = append(out[from], rule.To)
			}
		}
	}
	return out
}

// RuleFor returns the rule for a requestable transition.
func RuleFor(tr constants.Transition) (Rule, bool) {
	rule, ok := transitionRules[tr]
	if !ok {
		return Rule{}, false
	}
	rule.From = slices.Clone(rule.From)
	return rule, true
}

// Allows reports whether the rule may leave from status.
func (r Rule) Allows(status constants.TaskStatus) bool {
	return slices.Contains(r.From, status)
}

// ActionFrom returns the audit action recorded when the rule fires from status.
// A submission out of Rejected is recorded as a resubmission.
func (r Rule) ActionFrom(status constants.TaskStatus) constants.ActionType {
	if r.Transition == constants.TransitionSubmit && status == constants.TaskStatusRejected {
		return constants.ActionResubmitted
	}
	return r.Action
}

// IsValidTransition checks if a status change from one status to another is an
// edge of the graph. Same-status changes are never valid.
func IsValidTransition(from, to constants.TaskStatus) bool {
	if from == to {
		return false
	}
	return slices.Contains(ValidTransitions[from], to)
}

// IsTerminalStatus returns true for states with no outgoing edges (Finalized).
func IsTerminalStatus(status constants.TaskStatus) bool {
	return status.IsKnown() && len(ValidTransitions[status]) == 0
}

// TransitionsFrom returns the requestable transitions whose source set contains status.
func TransitionsFrom(status constants.TaskStatus) []constants.Transition {
	var out []constants.Transition
	for _, tr := range constants.AllTransitions() {
		if transitionRules[tr].Allows(status) {
			out = append(out, tr)
		}
	}
	return out
}

package task

import (
	"github.com/mrz1836/taskreview/internal/domain"
	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
)

// QuorumPolicy decides who may validate or reject a submitted task.
type QuorumPolicy interface {
	// Name identifies the policy in logs.
	Name() string

	// AuthorizeDecision returns an ErrAuthorization error when caps may not
	// record a decision on the current submission.
	AuthorizeDecision(caps domain.Capabilities) error
}

// FirstDecisionWins lets any single validator, or an administrator, decide.
// The first committed validate or reject moves the task out of Submitted; every
// later attempt on the same submission fails the state check with ErrStateConflict.
// There is no multi-validator vote.
type FirstDecisionWins struct{}

var _ QuorumPolicy = FirstDecisionWins{}

// Name implements QuorumPolicy.
func (FirstDecisionWins) Name() string {
	return "first_decision_wins"
}

// AuthorizeDecision implements QuorumPolicy.
func (FirstDecisionWins) AuthorizeDecision(caps domain.Capabilities) error {
	if caps.IsValidator || caps.IsAdmin {
		return nil
	}
	return reviewerrors.Authorizationf("actor %q is neither a validator of this task nor an administrator", caps.ActorID)
}

// CycleDecisions returns the decision entries recorded after the latest
// submission. Under FirstDecisionWins it holds at most one entry.
func CycleDecisions(history []domain.HistoryEntry) []domain.HistoryEntry {
	ordered := chronological(history)
	latest := -1
	for i, e := range ordered {
		if e.ActionType.IsSubmission() {
			latest = i
		}
	}
	if latest < 0 {
		return nil
	}
	var out []domain.HistoryEntry
	for _, e := range ordered[latest+1:] {
		if e.ActionType.IsDecision() {
			out = append(out, e)
		}
	}
	return out
}

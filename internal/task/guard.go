package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/mrz1836/taskreview/internal/constants"
	"github.com/mrz1836/taskreview/internal/domain"
	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
)

// Request is a transition as requested by a caller, after identity resolution.
type Request struct {
	Transition constants.Transition
	Caps       domain.Capabilities
	FileRef    string
	FileName   string
	Comment    string
}

// Guard rejects transition requests before any mutation is attempted.
type Guard struct {
	quorum QuorumPolicy
}

// NewGuard returns a Guard using policy for validate/reject authorization.
// A nil policy means FirstDecisionWins.
func NewGuard(policy QuorumPolicy) *Guard {
	if policy == nil {
		policy = FirstDecisionWins{}
	}
	return &Guard{quorum: policy}
}

// Check runs, in order: actor authorization, the pending-submission check for
// submit (computed from history, never from caller-supplied status), and the
// required-field checks. The source-state check belongs to the Machine, which
// repeats it against the persisted record at commit time.
func (g *Guard) Check(t *domain.Task, history []domain.HistoryEntry, req Request) error {
	if _, ok := RuleFor(req.Transition); !ok {
		return reviewerrors.Validationf("unknown transition %q", req.Transition)
	}

	if err := g.authorize(req); err != nil {
		return err
	}

	switch req.Transition {
	case constants.TransitionSubmit:
		if HasPendingSubmission(history) {
			return &reviewerrors.StateConflictError{
				TaskID:     t.ID,
				Transition: req.Transition,
				Actual:     t.Status,
				Reason:     "a submission is already pending review",
			}
		}
		if strings.TrimSpace(req.FileRef) == "" {
			return reviewerrors.Validationf("a file reference is required to submit")
		}
	case constants.TransitionReject:
		if strings.TrimSpace(req.Comment) == "" {
			return reviewerrors.Validationf("a comment is required to reject a submission")
		}
	case constants.TransitionStart, constants.TransitionValidate, constants.TransitionFinalize:
	}

	return nil
}

// authorize enforces the per-transition actor requirement: start and submit are
// assignee-only, validate and reject go through the quorum policy, finalize is
// admin-only.
func (g *Guard) authorize(req Request) error {
	caps := req.Caps
	if caps.ActorID == "" {
		return fmt.Errorf("%w: actor is required", reviewerrors.ErrAuthorization)
	}

	switch req.Transition {
	case constants.TransitionStart, constants.TransitionSubmit:
		if !caps.IsAssignee {
			return reviewerrors.Authorizationf("only the assignee may %s this task", req.Transition)
		}
	case constants.TransitionValidate, constants.TransitionReject:
		return g.quorum.AuthorizeDecision(caps)
	case constants.TransitionFinalize:
		if !caps.IsAdmin {
			return reviewerrors.Authorizationf("only an administrator may finalize a task")
		}
	}
	return nil
}

// StructureOptions tunes ValidateStructure.
type StructureOptions struct {
	// EnforceDeadlineOrder rejects a validation deadline earlier than the deadline.
	EnforceDeadlineOrder bool
}

// ValidateStructure checks the invariants that create and reassign must hold:
// required fields, a non-empty validator set without duplicates, and an
// assignee that is not also a validator.
func ValidateStructure(t *domain.Task, opts StructureOptions) error {
	if t == nil {
		return fmt.Errorf("%w: task %w", reviewerrors.ErrValidation, reviewerrors.ErrEmptyValue)
	}

	var missing []string
	if strings.TrimSpace(t.ProjectID) == "" {
		missing = append(missing, "project_id")
	}
	if strings.TrimSpace(t.Label) == "" {
		missing = append(missing, "label")
	}
	if strings.TrimSpace(t.Assignee) == "" {
		missing = append(missing, "assignee")
	}
	if len(missing) > 0 {
		return reviewerrors.Validationf("missing required fields: %s", strings.Join(missing, ", "))
	}

	if len(t.Validators) == 0 {
		return reviewerrors.Validationf("at least one validator is required")
	}
	seen := make(map[string]struct{}, len(t.Validators))
	for _, v := range t.Validators {
		if strings.TrimSpace(v) == "" {
			return reviewerrors.Validationf("validator IDs must not be empty")
		}
		if _, dup := seen[v]; dup {
			return reviewerrors.Validationf("validator %q is listed more than once", v)
		}
		seen[v] = struct{}{}
	}
	if _, clash := seen[t.Assignee]; clash {
		return reviewerrors.Validationf("assignee %q cannot also be a validator", t.Assignee)
	}

	if opts.EnforceDeadlineOrder && t.Deadline != nil && t.ValidationDeadline != nil &&
		t.ValidationDeadline.Before(*t.Deadline) {
		return reviewerrors.Validationf("validation deadline %s is before deadline %s",
			t.ValidationDeadline.Format(constants.DateLayout), t.Deadline.Format(constants.DateLayout))
	}

	return nil
}

// AllowedTransitions lists what caps could request on t right now, combining
// the graph, the actor requirement and the pending-submission check. Used for
// read views; the Guard and Machine remain authoritative.
func (g *Guard) AllowedTransitions(t *domain.Task, history []domain.HistoryEntry, caps domain.Capabilities) []constants.Transition {
	var out []constants.Transition
	// Payload checks are not part of what the actor may do, so they are satisfied.
	for _, tr := range TransitionsFrom(t.Status) {
		req := Request{Transition: tr, Caps: caps, FileRef: "-", Comment: "-"}
		if g.Check(t, history, req) == nil {
			out = append(out, tr)
		}
	}
	return out
}

// normalizeDate truncates a deadline to its UTC calendar date.
func normalizeDate(d *time.Time) *time.Time {
	if d == nil {
		return nil
	}
	u := d.UTC()
	v := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return &v
}

package constants

// TaskStatus represents the state of a task in the review workflow.
// Status values use snake_case for JSON serialization compatibility.
type TaskStatus string

// Task status constants. The workflow graph is:
//
//	Assigned   → InProgress (start), Submitted (submit)
//	InProgress → Submitted (submit)
//	Submitted  → Validated (validate), Rejected (reject)
//	Rejected   → Submitted (resubmit)
//	Validated  → Finalized (finalize)
//	Finalized  is terminal
const (
	// TaskStatusAssigned is the initial state of every task.
	TaskStatusAssigned TaskStatus = "assigned"

	// TaskStatusInProgress indicates the assignee has started working.
	TaskStatusInProgress TaskStatus = "in_progress"

	// TaskStatusSubmitted indicates a deliverable awaits a validator decision.
	TaskStatusSubmitted TaskStatus = "submitted"

	// TaskStatusValidated indicates a validator approved the latest submission.
	TaskStatusValidated TaskStatus = "validated"

	// TaskStatusRejected indicates a validator rejected the latest submission.
	// The assignee may resubmit.
	TaskStatusRejected TaskStatus = "rejected"

	// TaskStatusFinalized indicates an administrator closed the task.
	TaskStatusFinalized TaskStatus = "finalized"
)

// String returns the string representation of the TaskStatus.
func (s TaskStatus) String() string {
	return string(s)
}

// AllTaskStatuses returns every known status in workflow order.
func AllTaskStatuses() []TaskStatus {
	return []TaskStatus{
		TaskStatusAssigned,
		TaskStatusInProgress,
		TaskStatusSubmitted,
		TaskStatusValidated,
		TaskStatusRejected,
		TaskStatusFinalized,
	}
}

// IsKnown reports whether s is one of the declared statuses.
func (s TaskStatus) IsKnown() bool {
	for _, known := range AllTaskStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

// ActionType identifies the kind of audit log entry.
type ActionType string

// Audit log action types.
const (
	ActionAssigned    ActionType = "assigned"
	ActionStarted     ActionType = "started"
	ActionSubmitted   ActionType = "submitted"
	ActionResubmitted ActionType = "resubmitted"
	ActionValidated   ActionType = "validated"
	ActionRejected    ActionType = "rejected"
	ActionFinalized   ActionType = "finalized"
)

// String returns the string representation of the ActionType.
func (a ActionType) String() string {
	return string(a)
}

// IsSubmission reports whether the action records a deliverable.
func (a ActionType) IsSubmission() bool {
	return a == ActionSubmitted || a == ActionResubmitted
}

// IsDecision reports whether the action records a validator decision.
func (a ActionType) IsDecision() bool {
	return a == ActionValidated || a == ActionRejected
}

// Transition names the operations a caller can request on a task.
type Transition string

// Requestable transitions.
const (
	TransitionStart    Transition = "start"
	TransitionSubmit   Transition = "submit"
	TransitionValidate Transition = "validate"
	TransitionReject   Transition = "reject"
	TransitionFinalize Transition = "finalize"
)

// String returns the string representation of the Transition.
func (t Transition) String() string {
	return string(t)
}

// AllTransitions returns every requestable transition.
func AllTransitions() []Transition {
	return []Transition{
		TransitionStart,
		TransitionSubmit,
		TransitionValidate,
		TransitionReject,
		TransitionFinalize,
	}
}

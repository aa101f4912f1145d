package domain

import (
	"time"

	"github.com/mrz1836/taskreview/internal/constants"
)

// Notification describes a committed transition for the notification dispatcher.
type Notification struct {
	TaskID       string               `json:"task_id"`
	Transition   constants.Transition `json:"transition"`
	Action       constants.ActionType `json:"action"`
	ActorID      string               `json:"actor_id"`
	TaskLabel    string               `json:"task_label"`
	ProjectID    string               `json:"project_id"`
	ProjectLabel string               `json:"project_label"`
	Status       constants.TaskStatus `json:"status"`
	// Recipients are the other parties of the task (assignee and validators
	// minus the actor). Delivery is the dispatcher's concern.
	Recipients []string  `json:"recipients,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

package task

import (
	"time"

	"github.com/mrz1836/taskreview/internal/constants"
	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
)

// Metrics collects metrics about workflow activity.
// Implementations can send these to monitoring systems like Prometheus.
type Metrics interface {
	// TransitionApplied is called after a transition commits.
	TransitionApplied(tr constants.Transition, from, to constants.TaskStatus, duration time.Duration)

	// TransitionFailed is called when a transition is refused or fails.
	TransitionFailed(tr constants.Transition, kind reviewerrors.Kind)

	// TaskCreated is called after a task is created.
	TaskCreated()

	// NotificationFailed is called when the dispatcher returns an error.
	NotificationFailed(tr constants.Transition)
}

// NoopMetrics is a no-op implementation of Metrics for default behavior.
type NoopMetrics struct{}

var _ Metrics = NoopMetrics{}

// TransitionApplied implements Metrics.
func (NoopMetrics) TransitionApplied(constants.Transition, constants.TaskStatus, constants.TaskStatus, time.Duration) {
}

// TransitionFailed implements Metrics.
func (NoopMetrics) TransitionFailed(constants.Transition, reviewerrors.Kind) {}

// TaskCreated implements Metrics.
func (NoopMetrics) TaskCreated() {}

// NotificationFailed implements Metrics.
func (NoopMetrics) NotificationFailed(constants.Transition) {}

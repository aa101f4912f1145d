package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mrz1836/taskreview/internal/domain"
)

// LogDispatcher writes each notification as a structured log event.
type LogDispatcher struct {
	logger zerolog.Logger
}

// NewLogDispatcher returns a LogDispatcher writing to logger.
func NewLogDispatcher(logger zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.With().Str("component", "notify").Logger()}
}

// Notify implements Dispatcher.
func (d *LogDispatcher) Notify(_ context.Context, n domain.Notification) error {
	d.logger.Info().
		Str("task_id", n.TaskID).
		Str("transition", n.Transition.String()).
		Str("action", n.Action.String()).
		Str("actor", n.ActorID).
		Str("task_label", n.TaskLabel).
		Str("project_label", n.ProjectLabel).
		Str("status", n.Status.String()).
		Strs("recipients", n.Recipients).
		Time("occurred_at", n.OccurredAt).
		Msg("task notification")
	return nil
}

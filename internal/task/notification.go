package task

import (
	"context"

	"github.com/mrz1836/taskreview/internal/domain"
)

// Notifier is the hook the service calls after a transition commits.
// Delivery is best-effort and at-least-once on the implementation side; the
// service logs a returned error and never rolls back because of it.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n domain.Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n domain.Notification) error {
	return f(ctx, n)
}

// NoopNotifier drops every notification.
type NoopNotifier struct{}

// Notify implements Notifier.
func (NoopNotifier) Notify(context.Context, domain.Notification) error {
	return nil
}

// recipientsFor lists the parties of t other than actorID: the assignee and the
// validators.
func recipientsFor(t *domain.Task, actorID string) []string {
	out := make([]string, 0, len(t.Validators)+1)
	if t.Assignee != actorID {
		out = append(out, t.Assignee)
	}
	for _, v := range t.Validators {
		if v != actorID {
			out = append(out, v)
		}
	}
	return out
}

// Package notify delivers workflow notifications after a transition commits.
//
// Dispatchers are best-effort: the task service logs a returned error and
// never rolls a transition back because of it. Queue-backed dispatchers retry
// with exponential backoff and may deliver a message more than once; consumers
// deduplicate on the message ID.
package notify

import (
	"context"
	"errors"

	"github.com/mrz1836/taskreview/internal/domain"
)

// Dispatcher sends one notification.
type Dispatcher interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// Multi fans a notification out to every dispatcher. All dispatchers are
// tried; their errors are joined.
type Multi []Dispatcher

// Notify implements Dispatcher.
func (m Multi) Notify(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, d := range m {
		if d == nil {
			continue
		}
		if err := d.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

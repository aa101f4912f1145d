package tui

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mrz1836/taskreview/internal/clock"
)

// DefaultClock is the default clock used for time operations.
//
//nolint:gochecknoglobals // Package-level default for dependency injection
var DefaultClock clock.Clock = clock.RealClock{}

// RelativeTime formats a time relative to now, like "3 hours ago".
func RelativeTime(t time.Time) string {
	return RelativeTimeWith(t, DefaultClock)
}

// RelativeTimeWith formats t relative to the clock's now.
func RelativeTimeWith(t time.Time, c clock.Clock) string {
	if c.Now().Sub(t) < time.Minute && !t.After(c.Now()) {
		return "just now"
	}
	return humanize.RelTime(t, c.Now(), "ago", "from now")
}

// DaysLabel describes a remaining day count: "due today", "3 days left", "2 days overdue".
func DaysLabel(remaining int) string {
	switch {
	case remaining == 0:
		return "due today"
	case remaining == 1:
		return "1 day left"
	case remaining > 1:
		return fmt.Sprintf("%d days left", remaining)
	case remaining == -1:
		return "1 day overdue"
	default:
		return fmt.Sprintf("%d days overdue", -remaining)
	}
}

// Bytes formats a byte count for humans.
func Bytes(n int64) string {
	if n < 0 {
		return "0 B"
	}
	return humanize.Bytes(uint64(n))
}

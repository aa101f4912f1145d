package artifact

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
)

// BreakerConfig tunes the circuit breaker around a Storage.
type BreakerConfig struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32
}

// DefaultBreakerConfig returns conservative breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// BreakerStorage fails fast with ErrResourceUnavailable while the wrapped
// storage keeps failing.
type BreakerStorage struct {
	next Storage
	cb   *gobreaker.CircuitBreaker
}

var _ Storage = (*BreakerStorage)(nil)

// NewBreakerStorage wraps next. name labels the breaker in logs.
func NewBreakerStorage(next Storage, name string, cfg BreakerConfig, logger zerolog.Logger) *BreakerStorage {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// Only backend trouble counts against the breaker; bad keys and
		// missing objects are the caller's problem.
		IsSuccessful: func(err error) bool {
			return err == nil || reviewerrors.KindOf(err) != reviewerrors.KindResource
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("artifact storage circuit breaker state changed")
		},
	}
	return &BreakerStorage{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Put implements Storage.
func (b *BreakerStorage) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Put(ctx, key, contentType, body)
	})
	if err != nil {
		return "", translateBreakerErr(err)
	}
	return out.(string), nil
}

// Open implements Storage.
func (b *BreakerStorage) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Open(ctx, ref)
	})
	if err != nil {
		return nil, translateBreakerErr(err)
	}
	return out.(io.ReadCloser), nil
}

// State reports the breaker state for health checks.
func (b *BreakerStorage) State() string {
	return b.cb.State().String()
}

func translateBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return reviewerrors.Resourcef(err, "artifact storage is temporarily disabled after repeated failures")
	}
	return err
}

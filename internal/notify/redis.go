package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mrz1836/taskreview/internal/constants"
	"github.com/mrz1836/taskreview/internal/domain"
)

// DefaultRedisKey is the list notifications are pushed onto.
const DefaultRedisKey = "taskreview:notifications"

// RedisConfig configures RedisDispatcher.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	Key        string
	MaxRetries uint
	// InitialBackoff is the first retry delay; later delays grow exponentially.
	InitialBackoff time.Duration
}

// message is the queued payload. ID lets consumers drop duplicates.
type message struct {
	ID string `json:"id"`
	domain.Notification
}

// RedisDispatcher LPUSHes notifications as JSON onto a Redis list for an
// out-of-process mailer to consume.
type RedisDispatcher struct {
	pool   *redis.Pool
	cfg    RedisConfig
	logger zerolog.Logger
	newID  func() string
}

// NewRedisDispatcher returns a dispatcher with its own connection pool.
func NewRedisDispatcher(cfg RedisConfig, logger zerolog.Logger) *RedisDispatcher {
	if cfg.Key == "" {
		cfg.Key = DefaultRedisKey
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = constants.DefaultNotifyMaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}

	pool := &redis.Pool{
		MaxIdle:     4,
		IdleTimeout: 5 * time.Minute,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", cfg.Addr,
				redis.DialPassword(cfg.Password),
				redis.DialDatabase(cfg.DB),
				redis.DialConnectTimeout(2*time.Second),
				redis.DialReadTimeout(2*time.Second),
				redis.DialWriteTimeout(2*time.Second),
			)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}

	return &RedisDispatcher{
		pool:   pool,
		cfg:    cfg,
		logger: logger.With().Str("component", "notify_redis").Logger(),
		newID:  uuid.NewString,
	}
}

// Notify pushes n, retrying transient failures until ctx expires or
// MaxRetries attempts were made. The same message ID is reused across
// attempts.
func (d *RedisDispatcher) Notify(ctx context.Context, n domain.Notification) error {
	payload, err := json.Marshal(message{ID: d.newID(), Notification: n})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = d.cfg.InitialBackoff

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, d.push(ctx, payload)
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(d.cfg.MaxRetries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			d.logger.Debug().
				Err(err).
				Int("attempt", attempt).
				Dur("retry_in", wait).
				Str("task_id", n.TaskID).
				Msg("notification push failed, retrying")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to queue notification for task '%s' after %d attempts: %w", n.TaskID, attempt, err)
	}
	return nil
}

func (d *RedisDispatcher) push(ctx context.Context, payload []byte) error {
	conn, err := d.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	_, err = redis.DoContext(conn, ctx, "LPUSH", d.cfg.Key, payload)
	return err
}

// Close releases pooled connections.
func (d *RedisDispatcher) Close() error {
	return d.pool.Close()
}

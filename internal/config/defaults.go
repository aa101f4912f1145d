package config

import (
	"time"

	"github.com/mrz1836/taskreview/internal/constants"
)

// defaultRedisKey mirrors notify.DefaultRedisKey; config may not import notify.
const defaultRedisKey = "taskreview:notifications"

// DefaultConfig returns a new Config with sensible default values.
// These defaults are used as the base layer that can be overridden by
// config files, environment variables, and CLI flags.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			// Driver: the file store needs no external service.
			Driver:      StoreFile,
			LockTimeout: constants.DefaultLockTimeout,
		},
		Artifacts: ArtifactsConfig{
			Backend: ArtifactsLocal,
			Breaker: BreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				OpenTimeout:      30 * time.Second,
				HalfOpenRequests: 1,
			},
		},
		Notifications: NotificationsConfig{
			Backend: NotifyLog,
			Timeout: constants.DefaultNotifyTimeout,
			Redis: RedisConfig{
				Addr:           "localhost:6379",
				Key:            defaultRedisKey,
				MaxRetries:     constants.DefaultNotifyMaxRetries,
				InitialBackoff: 100 * time.Millisecond,
			},
		},
		Identity: IdentityConfig{
			Mode:   IdentityStatic,
			Issuer: "taskreview",
		},
		Server: ServerConfig{
			Addr:            constants.DefaultServerAddr,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: constants.DefaultShutdownTimeout,
			MaxUploadBytes:  constants.MaxUploadBytes,
		},
		Workflow: WorkflowConfig{
			FinalizeNote:         constants.DefaultFinalizeNote,
			EnforceDeadlineOrder: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// setDefaults configures all default values on the Viper instance.
// These defaults match the values from DefaultConfig().
// IMPORTANT: Keys must match the YAML tag names exactly for proper mapping.
func setDefaults(v viperDefaulter) {
	d := DefaultConfig()

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.path", "")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.lock_timeout", d.Store.LockTimeout.String())

	v.SetDefault("artifacts.backend", d.Artifacts.Backend)
	v.SetDefault("artifacts.dir", "")
	v.SetDefault("artifacts.s3.bucket", "")
	v.SetDefault("artifacts.s3.region", "")
	v.SetDefault("artifacts.s3.prefix", "")
	v.SetDefault("artifacts.s3.endpoint", "")
	v.SetDefault("artifacts.s3.access_key_id", "")
	v.SetDefault("artifacts.s3.secret_access_key", "")
	v.SetDefault("artifacts.breaker.enabled", d.Artifacts.Breaker.Enabled)
	v.SetDefault("artifacts.breaker.failure_threshold", d.Artifacts.Breaker.FailureThreshold)
	v.SetDefault("artifacts.breaker.open_timeout", d.Artifacts.Breaker.OpenTimeout.String())
	v.SetDefault("artifacts.breaker.half_open_requests", d.Artifacts.Breaker.HalfOpenRequests)

	v.SetDefault("notifications.backend", d.Notifications.Backend)
	v.SetDefault("notifications.timeout", d.Notifications.Timeout.String())
	v.SetDefault("notifications.redis.addr", d.Notifications.Redis.Addr)
	v.SetDefault("notifications.redis.password", "")
	v.SetDefault("notifications.redis.db", 0)
	v.SetDefault("notifications.redis.key", d.Notifications.Redis.Key)
	v.SetDefault("notifications.redis.max_retries", d.Notifications.Redis.MaxRetries)
	v.SetDefault("notifications.redis.initial_backoff", d.Notifications.Redis.InitialBackoff.String())

	v.SetDefault("identity.mode", d.Identity.Mode)
	v.SetDefault("identity.admins", []string{})
	v.SetDefault("identity.jwt_secret", "")
	v.SetDefault("identity.issuer", d.Identity.Issuer)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout.String())
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout.String())
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout.String())
	v.SetDefault("server.max_upload_bytes", d.Server.MaxUploadBytes)

	v.SetDefault("workflow.finalize_note", d.Workflow.FinalizeNote)
	v.SetDefault("workflow.enforce_deadline_order", d.Workflow.EnforceDeadlineOrder)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", "")
}

// viperDefaulter is the subset of *viper.Viper used by setDefaults.
type viperDefaulter interface {
	SetDefault(key string, value any)
}

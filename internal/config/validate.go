package config

import (
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mrz1836/taskreview/internal/errors"
)

// minJWTSecretBytes is the shortest accepted HMAC key.
const minJWTSecretBytes = 32

// Validate checks the configuration for invalid or inconsistent values.
// It returns an error describing the first validation failure found.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.ErrConfigNil
	}
	if err := validateStoreConfig(&cfg.Store); err != nil {
		return err
	}
	if err := validateArtifactsConfig(&cfg.Artifacts); err != nil {
		return err
	}
	if err := validateNotificationsConfig(&cfg.Notifications); err != nil {
		return err
	}
	if err := validateIdentityConfig(&cfg.Identity); err != nil {
		return err
	}
	if err := validateServerConfig(&cfg.Server); err != nil {
		return err
	}
	if cfg.Log.Level != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level)); err != nil {
			return errors.Wrapf(errors.ErrInvalidArgument, "log.level %q is not a log level", cfg.Log.Level)
		}
	}
	return nil
}

// validateStoreConfig checks store-specific configuration values.
func validateStoreConfig(cfg *StoreConfig) error {
	switch cfg.Driver {
	case StoreMemory, StoreFile, StoreSQLite:
	case StorePostgres:
		if cfg.DSN == "" {
			return errors.Wrap(errors.ErrConfigInvalidStore,
				"store.dsn is required for the postgres driver")
		}
	default:
		return errors.Wrapf(errors.ErrConfigInvalidStore,
			"store.driver must be one of memory, file, sqlite or postgres, got %q", cfg.Driver)
	}

	if cfg.LockTimeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidStore,
			"store.lock_timeout must be positive, got %s", cfg.LockTimeout)
	}
	return nil
}

// validateArtifactsConfig checks artifact storage configuration values.
func validateArtifactsConfig(cfg *ArtifactsConfig) error {
	switch cfg.Backend {
	case ArtifactsLocal:
	case ArtifactsS3:
		if cfg.S3.Bucket == "" {
			return errors.Wrap(errors.ErrConfigInvalidArtifacts,
				"artifacts.s3.bucket is required for the s3 backend")
		}
		if (cfg.S3.AccessKeyID == "") != (cfg.S3.SecretAccessKey == "") {
			return errors.Wrap(errors.ErrConfigInvalidArtifacts,
				"artifacts.s3.access_key_id and artifacts.s3.secret_access_key must be set together")
		}
	default:
		return errors.Wrapf(errors.ErrConfigInvalidArtifacts,
			"artifacts.backend must be local or s3, got %q", cfg.Backend)
	}

	if cfg.Breaker.Enabled {
		if cfg.Breaker.FailureThreshold == 0 {
			return errors.Wrap(errors.ErrConfigInvalidArtifacts,
				"artifacts.breaker.failure_threshold must be at least 1")
		}
		if cfg.Breaker.OpenTimeout <= 0 {
			return errors.Wrapf(errors.ErrConfigInvalidArtifacts,
				"artifacts.breaker.open_timeout must be positive, got %s", cfg.Breaker.OpenTimeout)
		}
	}
	return nil
}

// validateNotificationsConfig checks notification dispatch configuration values.
func validateNotificationsConfig(cfg *NotificationsConfig) error {
	switch cfg.Backend {
	case NotifyLog, NotifyNone:
	case NotifyRedis:
		if cfg.Redis.Addr == "" {
			return errors.Wrap(errors.ErrConfigInvalidNotifications,
				"notifications.redis.addr is required for the redis backend")
		}
		if cfg.Redis.Key == "" {
			return errors.Wrap(errors.ErrConfigInvalidNotifications,
				"notifications.redis.key must not be empty")
		}
	default:
		return errors.Wrapf(errors.ErrConfigInvalidNotifications,
			"notifications.backend must be log, redis or none, got %q", cfg.Backend)
	}

	if cfg.Timeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidNotifications,
			"notifications.timeout must be positive, got %s", cfg.Timeout)
	}
	return nil
}

// validateIdentityConfig checks identity configuration values.
func validateIdentityConfig(cfg *IdentityConfig) error {
	if slices.Contains(cfg.Admins, "") {
		return errors.Wrap(errors.ErrConfigInvalidIdentity,
			"identity.admins must not contain empty ids")
	}

	switch cfg.Mode {
	case IdentityStatic:
	case IdentityJWT:
		if len(cfg.JWTSecret) < minJWTSecretBytes {
			return errors.Wrapf(errors.ErrConfigInvalidIdentity,
				"identity.jwt_secret must be at least %d bytes", minJWTSecretBytes)
		}
	default:
		return errors.Wrapf(errors.ErrConfigInvalidIdentity,
			"identity.mode must be static or jwt, got %q", cfg.Mode)
	}
	return nil
}

// validateServerConfig checks HTTP API configuration values.
func validateServerConfig(cfg *ServerConfig) error {
	if cfg.Addr == "" {
		return errors.Wrap(errors.ErrConfigInvalidServer, "server.addr must not be empty")
	}
	if cfg.ShutdownTimeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidServer,
			"server.shutdown_timeout must be positive, got %s", cfg.ShutdownTimeout)
	}
	if cfg.MaxUploadBytes <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidServer,
			"server.max_upload_bytes must be positive, got %d", cfg.MaxUploadBytes)
	}
	return nil
}

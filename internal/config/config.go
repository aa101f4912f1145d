// Package config provides configuration management for taskreview with layered precedence.
//
// Configuration sources are loaded in the following order (highest precedence first):
//  1. CLI flags (passed via LoadWithOverrides)
//  2. Environment variables (TASKREVIEW_* prefix)
//  3. Project config (.taskreview/config.yaml)
//  4. Global config (~/.taskreview/config.yaml)
//  5. Built-in defaults
//
// Each higher level completely overrides the lower level for the same key.
//
// IMPORTANT: This package may import internal/constants and internal/errors,
// but MUST NOT import internal/domain or other internal packages.
package config

import "time"

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Artifact backends.
const (
	ArtifactsLocal = "local"
	ArtifactsS3    = "s3"
)

// Notification backends.
const (
	NotifyLog   = "log"
	NotifyRedis = "redis"
	NotifyNone  = "none"
)

// Identity modes.
const (
	IdentityStatic = "static"
	IdentityJWT    = "jwt"
)

// Config is the root configuration structure for taskreview.
type Config struct {
	// Store selects where tasks and their audit history are persisted.
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Artifacts selects where submitted deliverables are uploaded.
	Artifacts ArtifactsConfig `yaml:"artifacts" mapstructure:"artifacts"`

	// Notifications configures the dispatcher that receives transition notices.
	Notifications NotificationsConfig `yaml:"notifications" mapstructure:"notifications"`

	// Identity configures how callers are authenticated and who is an administrator.
	Identity IdentityConfig `yaml:"identity" mapstructure:"identity"`

	// Server contains settings for the HTTP API.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Workflow contains settings that shape task transitions.
	Workflow WorkflowConfig `yaml:"workflow" mapstructure:"workflow"`

	// Log contains settings for the log output.
	Log LogConfig `yaml:"log" mapstructure:"log"`
}

// StoreConfig contains persistence settings.
type StoreConfig struct {
	// Driver is one of memory, file, sqlite or postgres.
	// Default: "file"
	Driver string `yaml:"driver" mapstructure:"driver"`

	// Path is the root directory for the file driver and the database file
	// for the sqlite driver. Empty means under ~/.taskreview.
	Path string `yaml:"path" mapstructure:"path"`

	// DSN is the PostgreSQL connection string. Required for the postgres driver.
	DSN string `yaml:"dsn" mapstructure:"dsn"`

	// LockTimeout bounds how long the file driver waits for a task lock.
	// Default: 5s
	LockTimeout time.Duration `yaml:"lock_timeout" mapstructure:"lock_timeout"`
}

// ArtifactsConfig contains artifact storage settings.
type ArtifactsConfig struct {
	// Backend is one of local or s3.
	// Default: "local"
	Backend string `yaml:"backend" mapstructure:"backend"`

	// Dir is the root directory for the local backend. Empty means ~/.taskreview/artifacts.
	Dir string `yaml:"dir" mapstructure:"dir"`

	// S3 contains the object storage settings for the s3 backend.
	S3 S3Config `yaml:"s3" mapstructure:"s3"`

	// Breaker configures the circuit breaker placed in front of the backend.
	Breaker BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
}

// S3Config contains object storage settings.
// Credentials fall back to the AWS default chain when AccessKeyID is empty.
type S3Config struct {
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Region          string `yaml:"region" mapstructure:"region"`
	Prefix          string `yaml:"prefix" mapstructure:"prefix"`
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" mapstructure:"secret_access_key"`
}

// BreakerConfig contains circuit breaker settings.
type BreakerConfig struct {
	// Enabled wraps the artifact backend in a circuit breaker.
	// Default: true
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// FailureThreshold is the number of consecutive failures that opens the breaker.
	// Default: 5
	FailureThreshold uint32 `yaml:"failure_threshold" mapstructure:"failure_threshold"`

	// OpenTimeout is how long the breaker stays open before probing again.
	// Default: 30s
	OpenTimeout time.Duration `yaml:"open_timeout" mapstructure:"open_timeout"`

	// HalfOpenRequests is the number of probes allowed while half-open.
	// Default: 1
	HalfOpenRequests uint32 `yaml:"half_open_requests" mapstructure:"half_open_requests"`
}

// NotificationsConfig contains notification dispatch settings.
type NotificationsConfig struct {
	// Backend is one of log, redis or none.
	// Default: "log"
	Backend string `yaml:"backend" mapstructure:"backend"`

	// Timeout bounds a single dispatch. Notifications are best-effort.
	// Default: 5s
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// Redis contains the queue settings for the redis backend.
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig contains Redis queue settings.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`

	// Key is the list that notifications are pushed onto.
	// Default: "taskreview:notifications"
	Key string `yaml:"key" mapstructure:"key"`

	// MaxRetries is the number of push attempts per notification.
	// Default: 3
	MaxRetries uint `yaml:"max_retries" mapstructure:"max_retries"`

	// InitialBackoff is the delay before the first retry.
	// Default: 100ms
	InitialBackoff time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
}

// IdentityConfig contains authentication settings.
type IdentityConfig struct {
	// Mode is static (the actor header is trusted) or jwt (HS256 bearer tokens).
	// Default: "static"
	Mode string `yaml:"mode" mapstructure:"mode"`

	// Admins lists actor IDs that hold the administrator role.
	Admins []string `yaml:"admins" mapstructure:"admins"`

	// JWTSecret is the HMAC key for the jwt mode. At least 32 bytes.
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`

	// Issuer is the expected "iss" claim for the jwt mode.
	// Default: "taskreview"
	Issuer string `yaml:"issuer" mapstructure:"issuer"`
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	// Addr is the listen address.
	// Default: ":8080"
	Addr string `yaml:"addr" mapstructure:"addr"`

	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`

	// MaxUploadBytes caps multipart submissions.
	// Default: 64 MiB
	MaxUploadBytes int64 `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
}

// WorkflowConfig contains settings that shape transitions.
type WorkflowConfig struct {
	// FinalizeNote is recorded when an administrator finalizes without a comment.
	FinalizeNote string `yaml:"finalize_note" mapstructure:"finalize_note"`

	// EnforceDeadlineOrder rejects tasks whose deadline falls after the validation deadline.
	// Default: true
	EnforceDeadlineOrder bool `yaml:"enforce_deadline_order" mapstructure:"enforce_deadline_order"`
}

// LogConfig contains log output settings.
type LogConfig struct {
	// Level is a zerolog level name.
	// Default: "info"
	Level string `yaml:"level" mapstructure:"level"`

	// File is the rotating log file. Empty means ~/.taskreview/logs/taskreview.log.
	File string `yaml:"file" mapstructure:"file"`
}

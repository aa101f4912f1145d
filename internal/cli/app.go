package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/mrz1836/taskreview/internal/artifact"
	"github.com/mrz1836/taskreview/internal/config"
	"github.com/mrz1836/taskreview/internal/errors"
	"github.com/mrz1836/taskreview/internal/identity"
	"github.com/mrz1836/taskreview/internal/metrics"
	"github.com/mrz1836/taskreview/internal/notify"
	"github.com/mrz1836/taskreview/internal/task"
)

// app is the wired engine behind every command that touches tasks.
type app struct {
	cfg      *config.Config
	service  *task.Service
	auth     identity.Provider
	registry *prometheus.Registry
	logger   zerolog.Logger
	closers  []io.Closer
}

// newApp builds the store, artifact storage, notifier, identity provider and
// metrics described by cfg and hands them to a task.Service.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store)

	uploader, err := openArtifacts(ctx, cfg.Artifacts, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	notifier, closer := openNotifier(cfg.Notifications, logger)
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	if a.auth, err = openIdentity(cfg.Identity); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.service = task.NewService(store,
		task.WithLogger(logger),
		task.WithUploader(uploader),
		task.WithNotifier(notifier),
		task.WithMetrics(metrics.New(a.registry)),
		task.WithConfig(task.ServiceConfig{
			FinalizeNote:         cfg.Workflow.FinalizeNote,
			EnforceDeadlineOrder: cfg.Workflow.EnforceDeadlineOrder,
			NotifyTimeout:        cfg.Notifications.Timeout,
		}),
	)

	logger.Debug().
		Str("store", cfg.Store.Driver).
		Str("artifacts", cfg.Artifacts.Backend).
		Str("notifications", cfg.Notifications.Backend).
		Str("identity", cfg.Identity.Mode).
		Msg("engine ready")

	return a, nil
}

// Close releases the store and notifier connections in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("failed to close engine: %w", errs[0])
	}
	return nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (task.Store, error) {
	switch cfg.Driver {
	case config.StoreMemory:
		return task.NewMemoryStore(), nil
	case config.StoreFile:
		s, err := task.NewFileStore(cfg.Path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open file store")
		}
		return s.WithLockTimeout(cfg.LockTimeout), nil
	case config.StoreSQLite:
		return task.OpenSQLStore(ctx, task.DialectSQLite, cfg.Path)
	case config.StorePostgres:
		return task.OpenSQLStore(ctx, task.DialectPostgres, cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", errors.ErrConfigInvalidStore, cfg.Driver)
	}
}

func openArtifacts(ctx context.Context, cfg config.ArtifactsConfig, logger zerolog.Logger) (artifact.Storage, error) {
	var (
		storage artifact.Storage
		err     error
	)
	switch cfg.Backend {
	case config.ArtifactsLocal:
		storage, err = artifact.NewLocalStorage(cfg.Dir)
	case config.ArtifactsS3:
		storage, err = artifact.NewS3Storage(ctx, artifact.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", errors.ErrConfigInvalidArtifacts, cfg.Backend)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to open artifact storage")
	}

	if !cfg.Breaker.Enabled {
		return storage, nil
	}
	return artifact.NewBreakerStorage(storage, "artifacts-"+cfg.Backend, artifact.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		OpenTimeout:      cfg.Breaker.OpenTimeout,
		HalfOpenRequests: cfg.Breaker.HalfOpenRequests,
	}, logger), nil
}

// openNotifier returns the configured dispatcher. The log dispatcher always
// runs so every notice is at least visible in the log; redis is added on top.
func openNotifier(cfg config.NotificationsConfig, logger zerolog.Logger) (task.Notifier, io.Closer) {
	switch cfg.Backend {
	case config.NotifyNone:
		return task.NoopNotifier{}, nil
	case config.NotifyRedis:
		redisDispatcher := notify.NewRedisDispatcher(notify.RedisConfig{
			Addr:           cfg.Redis.Addr,
			Password:       cfg.Redis.Password,
			DB:             cfg.Redis.DB,
			Key:            cfg.Redis.Key,
			MaxRetries:     cfg.Redis.MaxRetries,
			InitialBackoff: cfg.Redis.InitialBackoff,
		}, logger)
		return notify.Multi{notify.NewLogDispatcher(logger), redisDispatcher}, redisDispatcher
	default:
		return notify.NewLogDispatcher(logger), nil
	}
}

func openIdentity(cfg config.IdentityConfig) (identity.Provider, error) {
	switch cfg.Mode {
	case config.IdentityJWT:
		return identity.NewJWTProvider(cfg.JWTSecret, cfg.Issuer, cfg.Admins)
	case config.IdentityStatic, "":
		return identity.NewStaticProvider(cfg.Admins), nil
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", errors.ErrConfigInvalidIdentity, cfg.Mode)
	}
}

package bootstrap

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/foodfund-backend/internal/locks"
	"github.com/angelmondragon/foodfund-backend/pkg/config"
	"github.com/angelmondragon/foodfund-backend/pkg/db"
	"github.com/angelmondragon/foodfund-backend/pkg/instance"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	"github.com/angelmondragon/foodfund-backend/pkg/metrics"
	"github.com/angelmondragon/foodfund-backend/pkg/migrate"
	"github.com/angelmondragon/foodfund-backend/pkg/redis"
)

// RuntimeOptions selects what a binary opens at startup.
type RuntimeOptions struct {
	Kind string
	// DevMigrate applies embedded migrations when running in dev with
	// auto-migrate enabled.
	DevMigrate bool
	SkipRedis  bool
}

// Runtime holds the process-wide handles every binary starts with.
type Runtime struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client
	Redis  *redis.Client

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Start loads configuration and connects to Postgres and, unless skipped,
// Redis. On error every handle opened so far is closed again.
func Start(ctx context.Context, opts RuntimeOptions) (rt *Runtime, err error) {
	if opts.Kind == "" {
		return nil, fmt.Errorf("service kind required")
	}
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = opts.Kind

	rt = &Runtime{
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: opts.Kind,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
		}),
	}
	defer func() {
		if err != nil {
			rt.Close(ctx)
			rt = nil
		}
	}()

	if rt.DB, err = db.New(ctx, cfg.DB, rt.Logger.Named("db")); err != nil {
		return rt, fmt.Errorf("bootstrap database: %w", err)
	}
	rt.OnClose("database", rt.DB.Close)

	if opts.DevMigrate {
		if err = migrate.MaybeRunDev(ctx, cfg, rt.Logger, rt.DB); err != nil {
			return rt, fmt.Errorf("dev migrations: %w", err)
		}
	}

	if opts.SkipRedis {
		return rt, nil
	}
	if rt.Redis, err = redis.New(ctx, cfg.Redis, rt.Logger.Named("redis")); err != nil {
		return rt, fmt.Errorf("bootstrap redis: %w", err)
	}
	rt.OnClose("redis", rt.Redis.Close)
	return rt, nil
}

// OnClose registers a handle that Close releases before everything opened
// earlier.
func (rt *Runtime) OnClose(name string, fn func() error) {
	rt.closers = append(rt.closers, namedCloser{name: name, close: fn})
}

// Close releases handles in reverse order of opening.
func (rt *Runtime) Close(ctx context.Context) {
	if rt == nil {
		return
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		c := rt.closers[i]
		if err := c.close(); err != nil {
			rt.Logger.Error(rt.Logger.WithField(ctx, "resource", c.name), "close failed", err)
		}
	}
	rt.closers = nil
}

// Context tags ctx with the fields every log line of the binary carries.
func (rt *Runtime) Context(ctx context.Context) context.Context {
	return rt.Logger.WithFields(ctx, map[string]any{
		"env":         rt.Config.App.Env,
		"serviceKind": rt.Config.Service.Kind,
		"instance":    instance.GetID(),
	})
}

// Services wires the workflow services on top of the runtime's handles with
// phase mutations serialised through Redis.
func (rt *Runtime) Services(registerer prometheus.Registerer) (*Services, error) {
	if rt.Redis == nil {
		return nil, fmt.Errorf("workflow services need redis")
	}
	locker, err := locks.NewRedisLocker(rt.Redis, rt.Config.Workflow.PhaseLockTTL, rt.Config.Workflow.PhaseLockWait)
	if err != nil {
		return nil, fmt.Errorf("phase locker: %w", err)
	}
	services, err := NewServices(Params{
		DB:       rt.DB.DB(),
		Tx:       rt.DB,
		Locker:   locker,
		LockKey:  rt.Redis.PhaseLockKey,
		Workflow: rt.Config.Workflow,
		Logger:   rt.Logger,
		Metrics:  metrics.NewWorkflowMetrics(registerer),
	})
	if err != nil {
		return nil, fmt.Errorf("wire workflow services: %w", err)
	}
	return services, nil
}

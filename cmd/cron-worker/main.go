package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/foodfund-backend/internal/bootstrap"
	"github.com/angelmondragon/foodfund-backend/internal/cron"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	"github.com/angelmondragon/foodfund-backend/pkg/metrics"
	"github.com/angelmondragon/foodfund-backend/pkg/outbox"
)

const serviceKind = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit (for external schedulers)")
	only := flag.String("job", "", "restrict the run to one registered job")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, *once, *only)
	stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.New(logger.Options{ServiceName: serviceKind}).Error(context.Background(), "cron worker stopped", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, once bool, only string) error {
	rt, err := bootstrap.Start(ctx, bootstrap.RuntimeOptions{Kind: serviceKind, DevMigrate: true})
	if err != nil {
		return err
	}
	defer rt.Close(context.WithoutCancel(ctx))
	ctx = rt.Context(ctx)
	logg := rt.Logger

	registry, err := buildRegistry(rt)
	if err != nil {
		return err
	}
	if only != "" {
		job, ok := registry.Lookup(only)
		if !ok {
			return fmt.Errorf("unknown job %q (registered: %v)", only, registry.Names())
		}
		if registry, err = cron.NewRegistry(job); err != nil {
			return err
		}
	}

	cfg := rt.Config.Cron
	lock, err := cron.NewRedisLock(rt.Redis, rt.Redis.CronLockKey(rt.Config.App.Env), cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg.Named("cron"),
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Interval,
		JobTimeout: cfg.JobTimeout,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"jobs":     registry.Names(),
		"once":     once,
		"interval": cfg.Interval.String(),
	}), "starting cron worker")
	if once {
		return service.RunOnce(ctx)
	}
	err = service.Run(ctx)
	logg.Info(ctx, "cron worker shutting down")
	return err
}

func buildRegistry(rt *bootstrap.Runtime) (*cron.Registry, error) {
	services, err := rt.Services(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, err
	}
	cfg := rt.Config.Cron

	closeJob, err := cron.NewCampaignCloseJob(cron.CampaignCloseJobParams{
		Logger:    rt.Logger,
		Closer:    services.Disposition,
		BatchSize: cfg.CloseBatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("campaign close job: %w", err)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     rt.Logger,
		DB:         rt.DB,
		Repository: outbox.NewRepository(rt.DB.DB()),
		Retention:  cfg.OutboxRetentionDays,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}
	return cron.NewRegistry(closeJob, retentionJob)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/foodfund-backend/internal/bootstrap"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	"github.com/angelmondragon/foodfund-backend/pkg/metrics"
	"github.com/angelmondragon/foodfund-backend/pkg/outbox"
	"github.com/angelmondragon/foodfund-backend/pkg/outbox/registry"
	"github.com/angelmondragon/foodfund-backend/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.New(logger.Options{ServiceName: serviceKind}).Error(context.Background(), "outbox publisher stopped", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	rt, err := bootstrap.Start(ctx, bootstrap.RuntimeOptions{Kind: serviceKind, DevMigrate: true, SkipRedis: true})
	if err != nil {
		return err
	}
	defer rt.Close(context.WithoutCancel(ctx))
	ctx = rt.Context(ctx)
	cfg, logg := rt.Config, rt.Logger

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.RelayResources(cfg.PubSub), logg.Named("pubsub"))
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	rt.OnClose("pubsub", pubsubClient.Close)

	events, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("event registry: %w", err)
	}
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg.Named("outbox-relay"),
		DB:            rt.DB,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(rt.DB.DB()),
		Registry:      events,
		DLQRepository: outbox.NewDLQRepository(rt.DB.DB()),
		Metrics:       metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return fmt.Errorf("outbox publisher: %w", err)
	}

	logg.Info(ctx, "starting outbox publisher")
	err = service.Run(ctx)
	logg.Info(ctx, "outbox publisher shutting down")
	return err
}

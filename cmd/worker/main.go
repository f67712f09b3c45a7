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
	"github.com/angelmondragon/foodfund-backend/internal/consumers/settlement"
	"github.com/angelmondragon/foodfund-backend/pkg/instance"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	"github.com/angelmondragon/foodfund-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/foodfund-backend/pkg/pubsub"
)

const serviceKind = "worker"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.New(logger.Options{ServiceName: serviceKind}).Error(context.Background(), "worker stopped", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	rt, err := bootstrap.Start(ctx, bootstrap.RuntimeOptions{Kind: serviceKind})
	if err != nil {
		return err
	}
	defer rt.Close(context.WithoutCancel(ctx))
	ctx = rt.Context(ctx)
	cfg, logg := rt.Config, rt.Logger

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.SettlementResources(cfg.PubSub), logg.Named("pubsub"))
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	rt.OnClose("pubsub", pubsubClient.Close)

	services, err := rt.Services(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	claims, err := idempotency.NewManager(rt.Redis, cfg.Eventing.OutboxIdempotencyTTL, idempotency.WithOwner(instance.GetID()))
	if err != nil {
		return fmt.Errorf("idempotency manager: %w", err)
	}
	consumer, err := settlement.NewConsumer(services.Campaigns, claims, pubsubClient.SettlementSubscription(), logg.Named("settlement"))
	if err != nil {
		return fmt.Errorf("settlement consumer: %w", err)
	}

	service, err := NewService(ServiceParams{
		Logger:     logg,
		DB:         rt.DB,
		Redis:      rt.Redis,
		PubSub:     pubsubClient,
		Settlement: consumer,
	})
	if err != nil {
		return fmt.Errorf("worker service: %w", err)
	}

	logg.Info(ctx, "starting worker")
	err = service.Run(ctx)
	logg.Info(ctx, "worker shutting down")
	return err
}

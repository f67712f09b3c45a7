package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/foodfund-backend/api/routes"
	"github.com/angelmondragon/foodfund-backend/internal/bootstrap"
	"github.com/angelmondragon/foodfund-backend/pkg/auth/session"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	"github.com/angelmondragon/foodfund-backend/pkg/metrics"
	"github.com/angelmondragon/foodfund-backend/pkg/outbox"
)

const (
	serviceKind       = "api"
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		logger.New(logger.Options{ServiceName: serviceKind}).Error(context.Background(), "api stopped", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	rt, err := bootstrap.Start(ctx, bootstrap.RuntimeOptions{Kind: serviceKind, DevMigrate: true})
	if err != nil {
		return err
	}
	defer rt.Close(context.WithoutCancel(ctx))
	cfg, logg := rt.Config, rt.Logger

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	services, err := rt.Services(registry)
	if err != nil {
		return err
	}
	revocations, err := session.NewRevocations(rt.Redis)
	if err != nil {
		return fmt.Errorf("token revocations: %w", err)
	}

	server := &http.Server{
		Addr: ":" + cfg.App.Port,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:           cfg,
			Logger:           logg,
			DB:               rt.DB,
			Redis:            rt.Redis,
			IdempotencyStore: rt.Redis,
			RateLimitStore:   rt.Redis,
			Revocations:      revocations,
			HTTPMetrics:      metrics.NewHTTPMetrics(registry),
			MetricsHandler:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			Campaigns:        services.Campaigns,
			Timeline:         services.Timeline,
			Disposition:      services.Disposition,
			Phases:           services.Phases,
			Ingredients:      services.Ingredients,
			Disbursements:    services.Disbursements,
			ExpenseProofs:    services.ExpenseProofs,
			MealBatches:      services.MealBatches,
			Deliveries:       services.Deliveries,
			DeadLetters:      outbox.NewDLQRepository(rt.DB.DB()),
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	ctx = logg.WithField(rt.Context(ctx), "addr", server.Addr)
	return serve(ctx, logg, server)
}

// serve blocks until the listener fails or ctx is cancelled, then drains
// in-flight requests.
func serve(ctx context.Context, logg *logger.Logger, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logg.Info(ctx, "api server stopped")
	return nil
}

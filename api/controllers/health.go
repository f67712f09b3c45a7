package controllers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/foodfund-backend/api/responses"
	"github.com/angelmondragon/foodfund-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/foodfund-backend/pkg/errors"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
)

const (
	readinessTimeout = 2 * time.Second
	envHeader        = "X-FoodFund-Env"
)

// Pinger is a dependency checked by the readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency in parallel and answers 503 listing the
// ones that failed.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		checks, failed, err := pingAll(r.Context(), deps)
		if err != nil {
			unavailable := pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dependencies unavailable").
				WithDetails(map[string]any{"failed": failed, "checks": checks})
			responses.WriteError(r.Context(), logg, w, unavailable)
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}

// pingAll pings every dependency to completion. The returned error is the first
// ping failure; checks still carries the outcome of each dependency.
func pingAll(ctx context.Context, deps map[string]Pinger) (map[string]string, []string, error) {
	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()

	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(deps))
		failed []string
	)
	var g errgroup.Group
	for name, dep := range deps {
		if dep == nil {
			continue
		}
		g.Go(func() error {
			err := dep.Ping(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[name] = err.Error()
				failed = append(failed, name)
				return fmt.Errorf("ping %s: %w", name, err)
			}
			checks[name] = "ok"
			return nil
		})
	}
	err := g.Wait()
	sort.Strings(failed)
	return checks, failed, err
}

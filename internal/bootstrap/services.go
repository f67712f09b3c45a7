// Package bootstrap assembles the workflow services shared by the api, cron
// and settlement binaries.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/foodfund-backend/internal/campaigns"
	"github.com/angelmondragon/foodfund-backend/internal/deliveries"
	"github.com/angelmondragon/foodfund-backend/internal/disbursements"
	"github.com/angelmondragon/foodfund-backend/internal/disposition"
	"github.com/angelmondragon/foodfund-backend/internal/expenseproofs"
	"github.com/angelmondragon/foodfund-backend/internal/ingredients"
	"github.com/angelmondragon/foodfund-backend/internal/locks"
	"github.com/angelmondragon/foodfund-backend/internal/mealbatches"
	"github.com/angelmondragon/foodfund-backend/internal/phases"
	"github.com/angelmondragon/foodfund-backend/internal/timeline"
	"github.com/angelmondragon/foodfund-backend/pkg/config"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	"github.com/angelmondragon/foodfund-backend/pkg/metrics"
	"github.com/angelmondragon/foodfund-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Params are the infrastructure handles the services are built on.
// A nil Locker falls back to an in-process lock.
type Params struct {
	DB       *gorm.DB
	Tx       txRunner
	Locker   locks.Locker
	LockKey  func(phaseID string) string
	Workflow config.WorkflowConfig
	Logger   *logger.Logger
	Metrics  *metrics.WorkflowMetrics
	Clock    func() time.Time
}

// Services is the full set of workflow services.
type Services struct {
	Outbox        *outbox.Service
	Phases        phases.Service
	Disposition   disposition.Service
	Campaigns     campaigns.Service
	Timeline      *timeline.Service
	Ingredients   ingredients.Service
	Disbursements disbursements.Service
	ExpenseProofs expenseproofs.Service
	MealBatches   mealbatches.Service
	Deliveries    deliveries.Service
}

// NewServices wires the services in dependency order.
func NewServices(params Params) (*Services, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("database required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(params.DB), params.Logger)

	phaseSvc, err := phases.NewService(phases.ServiceParams{
		Repo:     phases.NewRepository(params.DB),
		Tx:       params.Tx,
		Outbox:   outboxSvc,
		Locker:   params.Locker,
		LockKey:  params.LockKey,
		Workflow: params.Workflow,
		Logger:   params.Logger,
		Metrics:  params.Metrics,
		Clock:    clock,
	})
	if err != nil {
		return nil, fmt.Errorf("phases service: %w", err)
	}

	dispositionSvc, err := disposition.NewService(disposition.ServiceParams{
		Repo:     disposition.NewRepository(params.DB),
		Tx:       params.Tx,
		Phases:   phaseSvc,
		Outbox:   outboxSvc,
		Locker:   params.Locker,
		Workflow: params.Workflow,
		Logger:   params.Logger,
		Metrics:  params.Metrics,
		Clock:    clock,
	})
	if err != nil {
		return nil, fmt.Errorf("disposition service: %w", err)
	}

	campaignSvc, err := campaigns.NewService(campaigns.ServiceParams{
		Repo:     campaigns.NewRepository(params.DB),
		Tx:       params.Tx,
		Phases:   phaseSvc,
		Resolver: dispositionSvc,
		Outbox:   outboxSvc,
		Logger:   params.Logger,
		Clock:    clock,
	})
	if err != nil {
		return nil, fmt.Errorf("campaigns service: %w", err)
	}

	timelineSvc, err := timeline.NewService(campaignSvc, phaseSvc, clock)
	if err != nil {
		return nil, fmt.Errorf("timeline service: %w", err)
	}

	ingredientSvc, err := ingredients.NewService(ingredients.NewRepository(params.DB), phaseSvc, outboxSvc, params.Logger)
	if err != nil {
		return nil, fmt.Errorf("ingredients service: %w", err)
	}

	disbursementSvc, err := disbursements.NewService(disbursements.NewRepository(params.DB), phaseSvc, outboxSvc, params.Workflow, params.Logger, params.Metrics)
	if err != nil {
		return nil, fmt.Errorf("disbursements service: %w", err)
	}

	proofSvc, err := expenseproofs.NewService(expenseproofs.NewRepository(params.DB), disbursementSvc, phaseSvc, outboxSvc, params.Logger)
	if err != nil {
		return nil, fmt.Errorf("expense proofs service: %w", err)
	}

	batchSvc, err := mealbatches.NewService(mealbatches.NewRepository(params.DB), ingredientSvc, phaseSvc, outboxSvc, params.Logger)
	if err != nil {
		return nil, fmt.Errorf("meal batches service: %w", err)
	}

	deliverySvc, err := deliveries.NewService(deliveries.NewRepository(params.DB), batchSvc, phaseSvc, outboxSvc, params.Logger)
	if err != nil {
		return nil, fmt.Errorf("deliveries service: %w", err)
	}

	return &Services{
		Outbox:        outboxSvc,
		Phases:        phaseSvc,
		Disposition:   dispositionSvc,
		Campaigns:     campaignSvc,
		Timeline:      timelineSvc,
		Ingredients:   ingredientSvc,
		Disbursements: disbursementSvc,
		ExpenseProofs: proofSvc,
		MealBatches:   batchSvc,
		Deliveries:    deliverySvc,
	}, nil
}

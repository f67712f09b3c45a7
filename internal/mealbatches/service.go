package mealbatches

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodfund-backend/internal/phases"
	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodfund-backend/pkg/errors"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	"github.com/angelmondragon/foodfund-backend/pkg/outbox"
	"github.com/angelmondragon/foodfund-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/foodfund-backend/pkg/pagination"
)

type phaseWorkflow interface {
	Mutate(ctx context.Context, phaseID uuid.UUID, expectedVersion int64, fn phases.MutateFunc) (*models.CampaignPhase, error)
	ApplyTx(ctx context.Context, tx *gorm.DB, phase *models.CampaignPhase, ev phases.Event, actor phases.Actor) (*phases.Result, error)
}

// ingredientCatalog resolves the request lines a batch claims to consume.
type ingredientCatalog interface {
	Get(ctx context.Context, id uuid.UUID) (*models.IngredientRequest, error)
	Items(ctx context.Context, ids []uuid.UUID) ([]models.IngredientRequestItem, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// UsageInput records how much of an ingredient line a batch consumed.
type UsageInput struct {
	IngredientRequestItemID uuid.UUID
	QuantityUsed            decimal.Decimal
}

// CreateInput describes a new meal batch.
type CreateInput struct {
	PhaseID          uuid.UUID
	FoodName         string
	Quantity         int
	Media            []string
	IngredientUsages []UsageInput
}

// StatusInput moves a batch forward. CookedDate defaults to now when the
// batch becomes ready; Media replaces the evidence list when non-empty.
type StatusInput struct {
	Status     enums.MealBatchStatus
	CookedDate *time.Time
	Media      []string
}

// phases in which kitchens may log batches
var cookingStatuses = map[enums.PhaseStatus]bool{
	enums.PhaseStatusCooking:                     true,
	enums.PhaseStatusAwaitingDeliveryDisbursement: true,
	enums.PhaseStatusDelivery:                    true,
}

// Service is the meal batch tracker.
type Service interface {
	Create(ctx context.Context, input CreateInput, actor phases.Actor) (*models.MealBatch, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, input StatusInput, actor phases.Actor) (*models.MealBatch, error)
	Get(ctx context.Context, id uuid.UUID) (*models.MealBatch, error)
	List(ctx context.Context, filter ListFilter) ([]models.MealBatch, error)
}

type service struct {
	repo        Repository
	ingredients ingredientCatalog
	phases      phaseWorkflow
	outbox      outboxPublisher
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(repo Repository, ingredients ingredientCatalog, workflow phaseWorkflow, publisher outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("meal batch repository required")
	}
	if ingredients == nil {
		return nil, fmt.Errorf("ingredient catalog required")
	}
	if workflow == nil {
		return nil, fmt.Errorf("phase workflow required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, ingredients: ingredients, phases: workflow, outbox: publisher, logg: logg, now: time.Now}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput, actor phases.Actor) (*models.MealBatch, error) {
	if input.PhaseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaignPhaseId is required")
	}
	foodName := strings.TrimSpace(input.FoodName)
	if foodName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "foodName is required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	usages, err := s.resolveUsages(ctx, input.PhaseID, input.IngredientUsages)
	if err != nil {
		return nil, err
	}

	batch := &models.MealBatch{
		ID:               uuid.New(),
		CampaignPhaseID:  input.PhaseID,
		PreparedBy:       actor.UserID,
		FoodName:         foodName,
		Quantity:         input.Quantity,
		Status:           enums.MealBatchStatusPreparing,
		Media:            pq.StringArray(cleanMedia(input.Media)),
		IngredientUsages: usages,
	}
	_, err = s.phases.Mutate(ctx, input.PhaseID, 0, func(tx *gorm.DB, phase *models.CampaignPhase) error {
		status := phase.PhaseStatus()
		if status == enums.PhaseStatusUndetermined {
			return pkgerrors.New(pkgerrors.CodeUnrecognizedStatus, "phase status is undetermined; an administrator must correct it")
		}
		if !cookingStatuses[status] {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("meal batches cannot be logged while the phase is %s", status))
		}
		if err := s.repo.WithTx(tx).Create(ctx, batch); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create meal batch")
		}
		return s.emit(ctx, tx, batch, actor)
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// UpdateStatus advances a batch. The first batch to become ready while the
// phase is cooking moves the phase on to the delivery disbursement step.
func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, input StatusInput, actor phases.Actor) (*models.MealBatch, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid meal batch status %q", input.Status))
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var updated *models.MealBatch
	_, err = s.phases.Mutate(ctx, existing.CampaignPhaseID, 0, func(tx *gorm.DB, phase *models.CampaignPhase) error {
		repo := s.repo.WithTx(tx)
		batch, err := repo.FindByID(ctx, id)
		if err != nil {
			return translateNotFound(err)
		}
		updated = batch
		if batch.Status == input.Status {
			return nil
		}
		switch status := phase.PhaseStatus(); {
		case status == enums.PhaseStatusFailed:
			return pkgerrors.New(pkgerrors.CodePhaseFailed, "phase has failed")
		case status.IsTerminal():
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("phase is %s", status))
		}
		if !batch.Status.CanTransitionTo(input.Status) {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("meal batch cannot move from %s to %s", batch.Status, input.Status))
		}

		now := s.now().UTC()
		if input.Status == enums.MealBatchStatusReady {
			cooked := now
			if input.CookedDate != nil {
				cooked = input.CookedDate.UTC()
			}
			batch.CookedDate = &cooked
			if phase.PhaseStatus() == enums.PhaseStatusCooking {
				if _, err := s.phases.ApplyTx(ctx, tx, phase, phases.Event{
					Type:       enums.PhaseEventMealBatchCooked,
					SourceID:   batch.ID,
					OccurredAt: cooked,
				}, actor); err != nil {
					return err
				}
			}
		}
		if media := cleanMedia(input.Media); len(media) > 0 {
			batch.Media = pq.StringArray(media)
		}
		batch.Status = input.Status
		batch.UpdatedAt = now
		if err := repo.UpdateStatus(ctx, batch); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update meal batch")
		}
		return s.emit(ctx, tx, batch, actor)
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithPhaseID(ctx, updated.CampaignPhaseID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"meal_batch_id": id.String(), "status": updated.Status})
	s.logg.Info(logCtx, "meal batch status updated")
	return updated, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.MealBatch, error) {
	batch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return batch, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]models.MealBatch, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", *filter.Status))
	}
	page := pagination.OffsetParams{Limit: filter.Limit, Offset: filter.Offset}.Normalize()
	filter.Limit, filter.Offset = page.Limit, page.Offset
	batches, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list meal batches")
	}
	return batches, nil
}

// resolveUsages checks each usage against an approved ingredient request
// line of the same phase.
func (s *service) resolveUsages(ctx context.Context, phaseID uuid.UUID, inputs []UsageInput) ([]models.IngredientUsage, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(inputs))
	for i, in := range inputs {
		if in.IngredientRequestItemID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("usage %d needs an ingredientRequestItemId", i+1))
		}
		if !in.QuantityUsed.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("usage %d quantity must be positive", i+1))
		}
		ids = append(ids, in.IngredientRequestItemID)
	}

	items, err := s.ingredients.Items(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.IngredientRequestItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	checked := map[uuid.UUID]bool{}
	usages := make([]models.IngredientUsage, 0, len(inputs))
	for _, in := range inputs {
		item, ok := byID[in.IngredientRequestItemID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("ingredient item %s not found", in.IngredientRequestItemID))
		}
		if in.QuantityUsed.GreaterThan(item.Quantity) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s used %s exceeds requested %s", item.Name, in.QuantityUsed.String(), item.Quantity.String()))
		}
		if !checked[item.IngredientRequestID] {
			request, err := s.ingredients.Get(ctx, item.IngredientRequestID)
			if err != nil {
				return nil, err
			}
			if request.CampaignPhaseID != phaseID || request.Status != enums.ReviewStatusApproved {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("ingredient item %s is not part of this phase's approved request", item.ID))
			}
			checked[item.IngredientRequestID] = true
		}
		usages = append(usages, models.IngredientUsage{
			ID:                      uuid.New(),
			IngredientRequestItemID: item.ID,
			QuantityUsed:            in.QuantityUsed,
		})
	}
	return usages, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, batch *models.MealBatch, actor phases.Actor) error {
	actorRef := outbox.NewActorRef(actor.UserID, actor.OrganizationID, string(actor.Role))
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventMealBatchStatusChanged,
		AggregateType: enums.AggregateMealBatch,
		AggregateID:   batch.ID,
		Actor:         actorRef,
		Data: payloads.MealBatchStatusEvent{
			MealBatchID: batch.ID,
			PhaseID:     batch.CampaignPhaseID,
			Status:      batch.Status,
			CookedDate:  batch.CookedDate,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit meal batch event")
	}
	return nil
}

func cleanMedia(in []string) []string {
	out := make([]string, 0, len(in))
	for _, ref := range in {
		if trimmed := strings.TrimSpace(ref); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "meal batch not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load meal batch")
}

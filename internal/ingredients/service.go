package ingredients

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodfund-backend/internal/phases"
	dbpkg "github.com/angelmondragon/foodfund-backend/pkg/db"
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

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ItemInput is one priced line of a new ingredient request.
type ItemInput struct {
	Name                string
	Quantity            decimal.Decimal
	Unit                string
	EstimatedUnitPrice  int64
	EstimatedTotalPrice int64
	Supplier            string
}

// CreateInput describes a new ingredient request.
type CreateInput struct {
	PhaseID   uuid.UUID
	Items     []ItemInput
	TotalCost int64
}

// Service is the ingredient procurement tracker.
type Service interface {
	Create(ctx context.Context, input CreateInput, actor phases.Actor) (*models.IngredientRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*models.IngredientRequest, error)
	List(ctx context.Context, filter ListFilter) ([]models.IngredientRequest, error)
	Approve(ctx context.Context, id uuid.UUID, actor phases.Actor, note string) (*models.IngredientRequest, error)
	Reject(ctx context.Context, id uuid.UUID, actor phases.Actor, note string) (*models.IngredientRequest, error)
	Items(ctx context.Context, ids []uuid.UUID) ([]models.IngredientRequestItem, error)
}

type service struct {
	repo   Repository
	phases phaseWorkflow
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(repo Repository, workflow phaseWorkflow, publisher outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ingredient request repository required")
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
	return &service{repo: repo, phases: workflow, outbox: publisher, logg: logg, now: time.Now}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput, actor phases.Actor) (*models.IngredientRequest, error) {
	if input.PhaseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaignPhaseId is required")
	}
	items, total, err := buildItems(input.Items)
	if err != nil {
		return nil, err
	}
	if input.TotalCost != 0 && input.TotalCost != total {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("totalCost %d does not match line items total %d", input.TotalCost, total))
	}

	request := &models.IngredientRequest{
		ID:              uuid.New(),
		CampaignPhaseID: input.PhaseID,
		RequestedBy:     actor.UserID,
		TotalCost:       total,
		Status:          enums.ReviewStatusPending,
		Items:           items,
	}
	_, err = s.phases.Mutate(ctx, input.PhaseID, 0, func(tx *gorm.DB, phase *models.CampaignPhase) error {
		switch status := phase.PhaseStatus(); status {
		case enums.PhaseStatusPlanning:
		case enums.PhaseStatusUndetermined:
			return pkgerrors.New(pkgerrors.CodeUnrecognizedStatus, "phase status is undetermined; an administrator must correct it")
		default:
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("ingredient requests are accepted while the phase is PLANNING, not %s", status))
		}
		if total > phase.IngredientFundAmount {
			return pkgerrors.New(pkgerrors.CodeInsufficientAllocation,
				fmt.Sprintf("ingredient request total %d exceeds the planned ingredient allocation %d", total, phase.IngredientFundAmount))
		}
		if err := s.repo.WithTx(tx).Create(ctx, request); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create ingredient request")
		}
		return s.emit(ctx, tx, enums.EventIngredientRequestCreated, request, actor)
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithPhaseID(ctx, input.PhaseID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"ingredient_request_id": request.ID.String(), "total_cost": total})
	s.logg.Info(logCtx, "ingredient request created")
	return request, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.IngredientRequest, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return request, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]models.IngredientRequest, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", *filter.Status))
	}
	page := pagination.OffsetParams{Limit: filter.Limit, Offset: filter.Offset}.Normalize()
	filter.Limit, filter.Offset = page.Limit, page.Offset
	requests, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list ingredient requests")
	}
	return requests, nil
}

func (s *service) Items(ctx context.Context, ids []uuid.UUID) ([]models.IngredientRequestItem, error) {
	items, err := s.repo.FindItems(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ingredient items")
	}
	return items, nil
}

// Approve accepts the request and narrows the phase's planned ingredient
// allocation to its total. A total above the plan is refused.
func (s *service) Approve(ctx context.Context, id uuid.UUID, actor phases.Actor, note string) (*models.IngredientRequest, error) {
	return s.decide(ctx, id, enums.ReviewStatusApproved, actor, note)
}

func (s *service) Reject(ctx context.Context, id uuid.UUID, actor phases.Actor, note string) (*models.IngredientRequest, error) {
	return s.decide(ctx, id, enums.ReviewStatusRejected, actor, note)
}

func (s *service) decide(ctx context.Context, id uuid.UUID, decision enums.ReviewStatus, actor phases.Actor, note string) (*models.IngredientRequest, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status == decision {
		return existing, nil
	}
	if existing.Status != enums.ReviewStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("ingredient request is already %s", existing.Status))
	}

	var decided *models.IngredientRequest
	_, err = s.phases.Mutate(ctx, existing.CampaignPhaseID, 0, func(tx *gorm.DB, phase *models.CampaignPhase) error {
		repo := s.repo.WithTx(tx)
		request, err := repo.FindByID(ctx, id)
		if err != nil {
			return translateNotFound(err)
		}
		if request.Status == decision {
			decided = request
			return nil
		}
		if request.Status != enums.ReviewStatusPending {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("ingredient request is already %s", request.Status))
		}

		if decision == enums.ReviewStatusApproved {
			if _, err := s.phases.ApplyTx(ctx, tx, phase, phases.Event{
				Type:     enums.PhaseEventIngredientRequestApproved,
				SourceID: request.ID,
				Amount:   request.TotalCost,
			}, actor); err != nil {
				return err
			}
		}

		now := s.now().UTC()
		request.Status = decision
		request.ReviewedAt = &now
		request.UpdatedAt = now
		if actor.UserID != uuid.Nil {
			reviewer := actor.UserID
			request.ReviewedBy = &reviewer
		}
		if trimmed := strings.TrimSpace(note); trimmed != "" {
			request.AdminNote = &trimmed
		}
		if err := repo.UpdateReview(ctx, request); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_ingredient_requests_phase_approved") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "phase already has an approved ingredient request")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update ingredient request")
		}
		if err := s.emit(ctx, tx, enums.EventIngredientRequestDecided, request, actor); err != nil {
			return err
		}
		decided = request
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decided, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, request *models.IngredientRequest, actor phases.Actor) error {
	actorRef := outbox.NewActorRef(actor.UserID, actor.OrganizationID, string(actor.Role))
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateIngredientRequest,
		AggregateID:   request.ID,
		Actor:         actorRef,
		Data: payloads.IngredientRequestEvent{
			IngredientRequestID: request.ID,
			PhaseID:             request.CampaignPhaseID,
			TotalCost:           request.TotalCost,
			Status:              request.Status,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit ingredient request event")
	}
	return nil
}

// buildItems validates line items and returns them with the summed total.
func buildItems(inputs []ItemInput) ([]models.IngredientRequestItem, int64, error) {
	if len(inputs) == 0 {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	items := make([]models.IngredientRequestItem, 0, len(inputs))
	total := decimal.Zero
	for i, in := range inputs {
		name := strings.TrimSpace(in.Name)
		unit := strings.TrimSpace(in.Unit)
		if name == "" || unit == "" {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d needs a name and unit", i+1))
		}
		if !in.Quantity.IsPositive() {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d quantity must be positive", i+1))
		}
		if in.EstimatedUnitPrice < 0 {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d unit price must not be negative", i+1))
		}
		lineTotal := in.Quantity.Mul(decimal.NewFromInt(in.EstimatedUnitPrice)).Round(0)
		if in.EstimatedTotalPrice != 0 && !lineTotal.Equal(decimal.NewFromInt(in.EstimatedTotalPrice)) {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d total %d does not match quantity x unit price %s", i+1, in.EstimatedTotalPrice, lineTotal.String()))
		}
		item := models.IngredientRequestItem{
			ID:                  uuid.New(),
			Position:            i + 1,
			Name:                name,
			Quantity:            in.Quantity,
			Unit:                unit,
			EstimatedUnitPrice:  in.EstimatedUnitPrice,
			EstimatedTotalPrice: lineTotal.IntPart(),
		}
		if supplier := strings.TrimSpace(in.Supplier); supplier != "" {
			item.Supplier = &supplier
		}
		items = append(items, item)
		total = total.Add(lineTotal)
	}
	if !total.IsPositive() {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "total cost must be positive")
	}
	return items, total.IntPart(), nil
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "ingredient request not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ingredient request")
}

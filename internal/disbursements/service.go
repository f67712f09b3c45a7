package disbursements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodfund-backend/internal/phases"
	"github.com/angelmondragon/foodfund-backend/pkg/config"
	dbpkg "github.com/angelmondragon/foodfund-backend/pkg/db"
	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodfund-backend/pkg/errors"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	"github.com/angelmondragon/foodfund-backend/pkg/metrics"
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

// RequestInput describes a disbursement request against a phase allocation.
type RequestInput struct {
	PhaseID     uuid.UUID
	ExpenseType enums.ExpenseType
	Amount      int64
	Title       string
}

// ListParams pages through a requester's operation requests.
type ListParams struct {
	RequestedBy uuid.UUID
	Limit       int
	Offset      int
	SortBy      string
}

// Service is the disbursement gate.
type Service interface {
	RequestDisbursement(ctx context.Context, input RequestInput, actor phases.Actor) (*models.OperationRequest, error)
	Approve(ctx context.Context, requestID uuid.UUID, actor phases.Actor, note string) (*models.OperationRequest, error)
	Reject(ctx context.Context, requestID uuid.UUID, actor phases.Actor, note string) (*models.OperationRequest, error)
	Get(ctx context.Context, requestID uuid.UUID) (*models.OperationRequest, error)
	ListMine(ctx context.Context, params ListParams) ([]models.OperationRequest, error)
	ListByPhase(ctx context.Context, phaseID uuid.UUID) ([]models.OperationRequest, error)
}

type service struct {
	repo    Repository
	phases  phaseWorkflow
	outbox  outboxPublisher
	cfg     config.WorkflowConfig
	logg    *logger.Logger
	metrics *metrics.WorkflowMetrics
	now     func() time.Time
}

// NewService wires the disbursement gate.
func NewService(repo Repository, workflow phaseWorkflow, publisher outboxPublisher, cfg config.WorkflowConfig, logg *logger.Logger, m *metrics.WorkflowMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("operation request repository required")
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
	return &service{
		repo:    repo,
		phases:  workflow,
		outbox:  publisher,
		cfg:     cfg,
		logg:    logg,
		metrics: m,
		now:     time.Now,
	}, nil
}

var sortColumns = map[string]string{
	"":          "created_at DESC",
	"newest":    "created_at DESC",
	"oldest":    "created_at ASC",
	"amount":    "total_cost DESC",
	"status":    "status ASC",
	"createdAt": "created_at DESC",
}

// RequestDisbursement opens a PENDING operation request. It succeeds only
// while the phase awaits this expense type, the amount fits the remaining
// allocation and nothing else is in flight for the same expense type.
func (s *service) RequestDisbursement(ctx context.Context, input RequestInput, actor phases.Actor) (*models.OperationRequest, error) {
	if input.PhaseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaignPhaseId is required")
	}
	if !input.ExpenseType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid expense type %q", input.ExpenseType))
	}
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "totalCost must be positive")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = fmt.Sprintf("%s disbursement", input.ExpenseType)
	}

	var created *models.OperationRequest
	_, err := s.phases.Mutate(ctx, input.PhaseID, 0, func(tx *gorm.DB, phase *models.CampaignPhase) error {
		if err := checkPhaseAwaits(phase, input.ExpenseType); err != nil {
			return err
		}
		state := phases.StateFromModel(*phase)
		if remaining := state.Remaining(input.ExpenseType); input.Amount > remaining {
			return pkgerrors.New(pkgerrors.CodeInsufficientAllocation, fmt.Sprintf("amount %d exceeds remaining %s allocation %d", input.Amount, input.ExpenseType, remaining)).
				WithDetails(map[string]any{"remaining": remaining})
		}

		repo := s.repo.WithTx(tx)
		pending, err := repo.HasPending(ctx, phase.ID, input.ExpenseType)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check in-flight disbursements")
		}
		if pending {
			return inFlightConflict(input.ExpenseType)
		}

		request := &models.OperationRequest{
			ID:              uuid.New(),
			CampaignPhaseID: phase.ID,
			RequestedBy:     actor.UserID,
			Title:           title,
			ExpenseType:     input.ExpenseType,
			TotalCost:       input.Amount,
			Status:          enums.ReviewStatusPending,
		}
		if err := repo.Create(ctx, request); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_operation_requests_inflight") {
				return inFlightConflict(input.ExpenseType)
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create operation request")
		}
		if err := s.emit(ctx, tx, enums.EventDisbursementRequested, request, actor); err != nil {
			return err
		}
		created = request
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncDecision(string(created.ExpenseType), "requested")
	logCtx := s.logg.WithPhaseID(ctx, created.CampaignPhaseID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"operation_request_id": created.ID.String(),
		"expense_type":         created.ExpenseType,
		"amount":               created.TotalCost,
	})
	s.logg.Info(logCtx, "disbursement requested")
	return created, nil
}

// Approve releases the funds of a pending request and advances the phase.
// Approving an approved request returns it unchanged.
func (s *service) Approve(ctx context.Context, requestID uuid.UUID, actor phases.Actor, note string) (*models.OperationRequest, error) {
	existing, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	switch existing.Status {
	case enums.ReviewStatusApproved:
		return existing, nil
	case enums.ReviewStatusRejected:
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "operation request was already rejected")
	}

	var decided *models.OperationRequest
	_, err = s.phases.Mutate(ctx, existing.CampaignPhaseID, 0, func(tx *gorm.DB, phase *models.CampaignPhase) error {
		repo := s.repo.WithTx(tx)
		request, err := repo.FindByID(ctx, requestID)
		if err != nil {
			return translateNotFound(err)
		}
		if request.Status == enums.ReviewStatusApproved {
			decided = request
			return nil
		}
		if request.Status != enums.ReviewStatusPending {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("operation request is %s", request.Status))
		}

		if _, err := s.phases.ApplyTx(ctx, tx, phase, phases.Event{
			Type:        enums.PhaseEventDisbursementApproved,
			SourceID:    request.ID,
			ExpenseType: request.ExpenseType,
			Amount:      request.TotalCost,
		}, actor); err != nil {
			return err
		}

		s.review(request, enums.ReviewStatusApproved, actor, note)
		if err := repo.UpdateReview(ctx, request); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "approve operation request")
		}
		if err := s.emit(ctx, tx, enums.EventDisbursementApproved, request, actor); err != nil {
			return err
		}
		decided = request
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncDecision(string(decided.ExpenseType), "approved")
	return decided, nil
}

// Reject closes a pending request without touching the phase allocation.
// Once rejections for the same expense type exceed the configured maximum,
// the phase is failed.
func (s *service) Reject(ctx context.Context, requestID uuid.UUID, actor phases.Actor, note string) (*models.OperationRequest, error) {
	existing, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	switch existing.Status {
	case enums.ReviewStatusRejected:
		return existing, nil
	case enums.ReviewStatusApproved:
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "operation request was already approved")
	}

	var decided *models.OperationRequest
	_, err = s.phases.Mutate(ctx, existing.CampaignPhaseID, 0, func(tx *gorm.DB, phase *models.CampaignPhase) error {
		repo := s.repo.WithTx(tx)
		request, err := repo.FindByID(ctx, requestID)
		if err != nil {
			return translateNotFound(err)
		}
		if request.Status == enums.ReviewStatusRejected {
			decided = request
			return nil
		}
		if request.Status != enums.ReviewStatusPending {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("operation request is %s", request.Status))
		}

		s.review(request, enums.ReviewStatusRejected, actor, note)
		if err := repo.UpdateReview(ctx, request); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reject operation request")
		}
		if err := s.emit(ctx, tx, enums.EventDisbursementRejected, request, actor); err != nil {
			return err
		}

		rejections, err := repo.CountRejected(ctx, phase.ID, request.ExpenseType)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count rejected disbursements")
		}
		if rejections > int64(s.cfg.MaxDisbursementRejections) && !phase.PhaseStatus().IsTerminal() {
			if _, err := s.phases.ApplyTx(ctx, tx, phase, phases.Event{
				Type:     enums.PhaseEventFailed,
				SourceID: request.ID,
				Reason:   fmt.Sprintf("%s disbursement rejected %d times", request.ExpenseType, rejections),
			}, actor); err != nil {
				return err
			}
		}
		decided = request
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncDecision(string(decided.ExpenseType), "rejected")
	return decided, nil
}

func (s *service) Get(ctx context.Context, requestID uuid.UUID) (*models.OperationRequest, error) {
	request, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return request, nil
}

func (s *service) ListMine(ctx context.Context, params ListParams) ([]models.OperationRequest, error) {
	if params.RequestedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "requester required")
	}
	order, ok := sortColumns[params.SortBy]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported sortBy %q", params.SortBy))
	}
	page := pagination.OffsetParams{Limit: params.Limit, Offset: params.Offset}.Normalize()
	requests, err := s.repo.ListByRequester(ctx, listParams{
		RequestedBy: params.RequestedBy,
		Limit:       page.Limit,
		Offset:      page.Offset,
		OrderBy:     order,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list operation requests")
	}
	return requests, nil
}

func (s *service) ListByPhase(ctx context.Context, phaseID uuid.UUID) ([]models.OperationRequest, error) {
	requests, err := s.repo.ListByPhase(ctx, phaseID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list operation requests")
	}
	return requests, nil
}

func (s *service) review(request *models.OperationRequest, status enums.ReviewStatus, actor phases.Actor, note string) {
	now := s.now().UTC()
	request.Status = status
	request.ReviewedAt = &now
	request.UpdatedAt = now
	if actor.UserID != uuid.Nil {
		reviewer := actor.UserID
		request.ReviewedBy = &reviewer
	}
	if trimmed := strings.TrimSpace(note); trimmed != "" {
		request.AdminNote = &trimmed
	}
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, request *models.OperationRequest, actor phases.Actor) error {
	var note string
	if request.AdminNote != nil {
		note = *request.AdminNote
	}
	actorRef := outbox.NewActorRef(actor.UserID, actor.OrganizationID, string(actor.Role))
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOperationRequest,
		AggregateID:   request.ID,
		Actor:         actorRef,
		Data: payloads.DisbursementEvent{
			OperationRequestID: request.ID,
			PhaseID:            request.CampaignPhaseID,
			ExpenseType:        request.ExpenseType,
			Amount:             request.TotalCost,
			Status:             request.Status,
			Note:               note,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit disbursement event")
	}
	return nil
}

func checkPhaseAwaits(phase *models.CampaignPhase, expenseType enums.ExpenseType) error {
	status := phase.PhaseStatus()
	switch {
	case status == enums.PhaseStatusUndetermined:
		return pkgerrors.New(pkgerrors.CodeUnrecognizedStatus, "phase status is undetermined; an administrator must correct it")
	case status == enums.PhaseStatusFailed:
		return pkgerrors.New(pkgerrors.CodePhaseFailed, "phase has failed")
	case status != expenseType.AwaitingStatus():
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("phase is %s; %s disbursements are accepted in %s", status, expenseType, expenseType.AwaitingStatus()))
	}
	return nil
}

func inFlightConflict(expenseType enums.ExpenseType) error {
	return pkgerrors.New(pkgerrors.CodeDisbursementConflict, fmt.Sprintf("a %s disbursement is already in flight for this phase", expenseType))
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "operation request not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load operation request")
}

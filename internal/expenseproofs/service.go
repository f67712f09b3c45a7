package expenseproofs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodfund-backend/internal/phases"
	dbpkg "github.com/angelmondragon/foodfund-backend/pkg/db"
	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodfund-backend/pkg/errors"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	"github.com/angelmondragon/foodfund-backend/pkg/outbox"
	"github.com/angelmondragon/foodfund-backend/pkg/outbox/payloads"
)

type phaseWorkflow interface {
	Mutate(ctx context.Context, phaseID uuid.UUID, expectedVersion int64, fn phases.MutateFunc) (*models.CampaignPhase, error)
	ApplyTx(ctx context.Context, tx *gorm.DB, phase *models.CampaignPhase, ev phases.Event, actor phases.Actor) (*phases.Result, error)
}

type requestReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.OperationRequest, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// CreateInput is a proof submission against an approved operation request.
type CreateInput struct {
	RequestID uuid.UUID
	Media     []string
	Amount    int64
}

// ReviewResult reports an audit decision and where it left the phase.
type ReviewResult struct {
	Proof         *models.ExpenseProof `json:"proof"`
	Outcome       pkgerrors.Code       `json:"outcome,omitempty"`
	Resubmissions int                  `json:"resubmissions"`
	PhaseStatus   enums.PhaseStatus    `json:"phaseStatus"`
}

// Service is the expense proof audit tracker.
type Service interface {
	Create(ctx context.Context, input CreateInput, actor phases.Actor) (*models.ExpenseProof, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ExpenseProof, error)
	ListMine(ctx context.Context, submittedBy uuid.UUID, requestID *uuid.UUID) ([]models.ExpenseProof, error)
	Approve(ctx context.Context, id uuid.UUID, actor phases.Actor, note string) (*ReviewResult, error)
	Reject(ctx context.Context, id uuid.UUID, actor phases.Actor, note string) (*ReviewResult, error)
}

type service struct {
	repo     Repository
	requests requestReader
	phases   phaseWorkflow
	outbox   outboxPublisher
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(repo Repository, requests requestReader, workflow phaseWorkflow, publisher outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("expense proof repository required")
	}
	if requests == nil {
		return nil, fmt.Errorf("operation request reader required")
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
	return &service{repo: repo, requests: requests, phases: workflow, outbox: publisher, logg: logg, now: time.Now}, nil
}

// Create records receipts for an approved request. Proofs for ingredient
// purchases move the phase into audit.
func (s *service) Create(ctx context.Context, input CreateInput, actor phases.Actor) (*models.ExpenseProof, error) {
	if input.RequestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "requestId is required")
	}
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	media := cleanMedia(input.Media)
	if len(media) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one media reference is required")
	}

	request, err := s.requests.Get(ctx, input.RequestID)
	if err != nil {
		return nil, err
	}
	if request.Status != enums.ReviewStatusApproved {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("proofs can only be submitted for approved requests, request is %s", request.Status))
	}
	if input.Amount > request.TotalCost {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("amount %d exceeds the disbursed %d", input.Amount, request.TotalCost))
	}

	proof := &models.ExpenseProof{
		ID:                 uuid.New(),
		OperationRequestID: request.ID,
		CampaignPhaseID:    request.CampaignPhaseID,
		SubmittedBy:        actor.UserID,
		Amount:             input.Amount,
		Media:              pq.StringArray(media),
		Status:             enums.ReviewStatusPending,
	}
	_, err = s.phases.Mutate(ctx, request.CampaignPhaseID, 0, func(tx *gorm.DB, phase *models.CampaignPhase) error {
		if request.ExpenseType == enums.ExpenseTypeIngredient {
			if _, err := s.phases.ApplyTx(ctx, tx, phase, phases.Event{
				Type:        enums.PhaseEventExpenseProofSubmitted,
				SourceID:    proof.ID,
				ExpenseType: request.ExpenseType,
				Amount:      proof.Amount,
			}, actor); err != nil {
				return err
			}
		}
		if err := s.repo.WithTx(tx).Create(ctx, proof); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_expense_proofs_request_pending") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "a proof for this request is already awaiting audit")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create expense proof")
		}
		return s.emit(ctx, tx, enums.EventExpenseProofSubmitted, proof, phase.AuditRejections, actor)
	})
	if err != nil {
		return nil, err
	}
	return proof, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.ExpenseProof, error) {
	proof, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return proof, nil
}

func (s *service) ListMine(ctx context.Context, submittedBy uuid.UUID, requestID *uuid.UUID) ([]models.ExpenseProof, error) {
	if submittedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "submitter required")
	}
	proofs, err := s.repo.ListBySubmitter(ctx, submittedBy, requestID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list expense proofs")
	}
	return proofs, nil
}

func (s *service) Approve(ctx context.Context, id uuid.UUID, actor phases.Actor, note string) (*ReviewResult, error) {
	return s.audit(ctx, id, enums.ReviewStatusApproved, actor, note)
}

// Reject sends the phase back to purchasing for a resubmission. The result
// carries AUDIT_REJECTED, or PHASE_FAILED once resubmissions are exhausted.
func (s *service) Reject(ctx context.Context, id uuid.UUID, actor phases.Actor, note string) (*ReviewResult, error) {
	return s.audit(ctx, id, enums.ReviewStatusRejected, actor, note)
}

func (s *service) audit(ctx context.Context, id uuid.UUID, decision enums.ReviewStatus, actor phases.Actor, note string) (*ReviewResult, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status != enums.ReviewStatusPending && existing.Status != decision {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("expense proof is already %s", existing.Status))
	}
	request, err := s.requests.Get(ctx, existing.OperationRequestID)
	if err != nil {
		return nil, err
	}

	result := &ReviewResult{}
	phase, err := s.phases.Mutate(ctx, existing.CampaignPhaseID, 0, func(tx *gorm.DB, phase *models.CampaignPhase) error {
		repo := s.repo.WithTx(tx)
		proof, err := repo.FindByID(ctx, id)
		if err != nil {
			return translateNotFound(err)
		}
		result.Proof = proof
		if proof.Status == decision {
			return nil
		}
		if proof.Status != enums.ReviewStatusPending {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("expense proof is already %s", proof.Status))
		}

		if request.ExpenseType == enums.ExpenseTypeIngredient {
			eventType := enums.PhaseEventExpenseProofApproved
			if decision == enums.ReviewStatusRejected {
				eventType = enums.PhaseEventExpenseProofRejected
			}
			if _, err := s.phases.ApplyTx(ctx, tx, phase, phases.Event{
				Type:        eventType,
				SourceID:    proof.ID,
				ExpenseType: request.ExpenseType,
				Amount:      proof.Amount,
				Reason:      strings.TrimSpace(note),
			}, actor); err != nil {
				return err
			}
		}

		now := s.now().UTC()
		proof.Status = decision
		proof.ReviewedAt = &now
		proof.UpdatedAt = now
		if actor.UserID != uuid.Nil {
			reviewer := actor.UserID
			proof.ReviewedBy = &reviewer
		}
		if trimmed := strings.TrimSpace(note); trimmed != "" {
			proof.AdminNote = &trimmed
		}
		if err := repo.UpdateReview(ctx, proof); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update expense proof")
		}
		return s.emit(ctx, tx, enums.EventExpenseProofAudited, proof, phase.AuditRejections, actor)
	})
	if err != nil {
		return nil, err
	}

	result.Resubmissions = phase.AuditRejections
	result.PhaseStatus = phase.PhaseStatus()
	if decision == enums.ReviewStatusRejected {
		result.Outcome = pkgerrors.CodeAuditRejected
		if result.PhaseStatus == enums.PhaseStatusFailed {
			result.Outcome = pkgerrors.CodePhaseFailed
		}
		logCtx := s.logg.WithPhaseID(ctx, phase.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"expense_proof_id": id.String(),
			"resubmissions":    result.Resubmissions,
			"outcome":          result.Outcome,
		})
		s.logg.Warn(logCtx, "expense proof rejected")
	}
	return result, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, proof *models.ExpenseProof, resubmissions int, actor phases.Actor) error {
	var note string
	if proof.AdminNote != nil {
		note = *proof.AdminNote
	}
	actorRef := outbox.NewActorRef(actor.UserID, actor.OrganizationID, string(actor.Role))
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateExpenseProof,
		AggregateID:   proof.ID,
		Actor:         actorRef,
		Data: payloads.ExpenseProofEvent{
			ExpenseProofID:     proof.ID,
			OperationRequestID: proof.OperationRequestID,
			PhaseID:            proof.CampaignPhaseID,
			Amount:             proof.Amount,
			Status:             proof.Status,
			AdminNote:          note,
			Resubmissions:      resubmissions,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit expense proof event")
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
		return pkgerrors.New(pkgerrors.CodeNotFound, "expense proof not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load expense proof")
}

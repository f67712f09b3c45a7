package deliveries

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
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
	DeliveryProgressTx(ctx context.Context, tx *gorm.DB, phaseID uuid.UUID) (int64, int64, error)
}

type batchReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.MealBatch, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// AssignInput hands a cooked meal batch to a delivery staff member.
type AssignInput struct {
	MealBatchID uuid.UUID
	AssignedTo  uuid.UUID
	Note        string
}

// StatusInput moves a task along its lifecycle.
type StatusInput struct {
	Status enums.DeliveryTaskStatus
	Note   string
}

// ListParams pages through delivery tasks with a cursor.
type ListParams struct {
	Filter
	Limit  int
	Cursor string
}

// ListResult is one page of delivery tasks.
type ListResult struct {
	Items  []models.DeliveryTask `json:"items"`
	Cursor string                `json:"cursor"`
}

// Service is the delivery tracker.
type Service interface {
	Assign(ctx context.Context, input AssignInput, actor phases.Actor) (*models.DeliveryTask, error)
	Reassign(ctx context.Context, id, assignedTo uuid.UUID, actor phases.Actor, note string) (*models.DeliveryTask, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, input StatusInput, actor phases.Actor) (*models.DeliveryTask, error)
	Get(ctx context.Context, id uuid.UUID) (*models.DeliveryTask, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	ListMine(ctx context.Context, assignedTo uuid.UUID, limit, offset int) ([]models.DeliveryTask, error)
}

type service struct {
	repo    Repository
	batches batchReader
	phases  phaseWorkflow
	outbox  outboxPublisher
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(repo Repository, batches batchReader, workflow phaseWorkflow, publisher outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("delivery task repository required")
	}
	if batches == nil {
		return nil, fmt.Errorf("meal batch reader required")
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
	return &service{repo: repo, batches: batches, phases: workflow, outbox: publisher, logg: logg, now: time.Now}, nil
}

func (s *service) Assign(ctx context.Context, input AssignInput, actor phases.Actor) (*models.DeliveryTask, error) {
	if input.MealBatchID == uuid.Nil || input.AssignedTo == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mealBatchId and assignedTo are required")
	}
	batch, err := s.batches.Get(ctx, input.MealBatchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != enums.MealBatchStatusReady {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("meal batch is %s, only ready batches can be assigned", batch.Status))
	}

	now := s.now().UTC()
	task := &models.DeliveryTask{
		ID:              uuid.New(),
		MealBatchID:     batch.ID,
		CampaignPhaseID: batch.CampaignPhaseID,
		AssignedTo:      input.AssignedTo,
		Status:          enums.DeliveryTaskStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	_, err = s.phases.Mutate(ctx, batch.CampaignPhaseID, 0, func(tx *gorm.DB, phase *models.CampaignPhase) error {
		if err := requireOpenPhase(phase); err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, task); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create delivery task")
		}
		entry, err := s.appendLog(ctx, repo, task, input.Note, actor)
		if err != nil {
			return err
		}
		task.StatusLogs = []models.DeliveryStatusLog{*entry}
		return s.emit(ctx, tx, task, input.Note, actor)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Reassign returns a rejected or failed task to the pending queue, optionally
// under a different staff member.
func (s *service) Reassign(ctx context.Context, id, assignedTo uuid.UUID, actor phases.Actor, note string) (*models.DeliveryTask, error) {
	if assignedTo == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "assignedTo is required")
	}
	return s.transition(ctx, id, enums.DeliveryTaskStatusPending, actor, note, func(task *models.DeliveryTask) {
		task.AssignedTo = assignedTo
	})
}

// UpdateStatus records a status change by the assignee or an administrator.
// Delivering the last outstanding task of a phase in DELIVERY completes it.
func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, input StatusInput, actor phases.Actor) (*models.DeliveryTask, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid delivery task status %q", input.Status))
	}
	if input.Status == enums.DeliveryTaskStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "use reassign to return a task to pending")
	}
	return s.transition(ctx, id, input.Status, actor, input.Note, nil)
}

func (s *service) transition(ctx context.Context, id uuid.UUID, next enums.DeliveryTaskStatus, actor phases.Actor, note string, mutate func(*models.DeliveryTask)) (*models.DeliveryTask, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, translateNotFound(err)
	}
	if actor.Role == enums.MemberRoleDeliveryStaff && existing.AssignedTo != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "delivery task is assigned to someone else")
	}

	var updated *models.DeliveryTask
	_, err = s.phases.Mutate(ctx, existing.CampaignPhaseID, 0, func(tx *gorm.DB, phase *models.CampaignPhase) error {
		repo := s.repo.WithTx(tx)
		task, err := repo.FindByID(ctx, id)
		if err != nil {
			return translateNotFound(err)
		}
		updated = task
		if task.Status == next && mutate == nil {
			return nil
		}
		if err := requireOpenPhase(phase); err != nil {
			return err
		}
		if !task.Status.CanTransitionTo(next) {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("delivery task cannot move from %s to %s", task.Status, next))
		}
		if (next == enums.DeliveryTaskStatusOutForDelivery || next == enums.DeliveryTaskStatusDelivered) && phase.PhaseStatus() != enums.PhaseStatusDelivery {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("deliveries start once delivery funds are released, phase is %s", phase.PhaseStatus()))
		}

		now := s.now().UTC()
		task.Status = next
		task.UpdatedAt = now
		if next.IsDelivered() {
			task.DeliveredAt = &now
		}
		if mutate != nil {
			mutate(task)
		}
		if err := repo.UpdateStatus(ctx, task); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update delivery task")
		}
		entry, err := s.appendLog(ctx, repo, task, note, actor)
		if err != nil {
			return err
		}
		task.StatusLogs = append(task.StatusLogs, *entry)
		if err := s.emit(ctx, tx, task, note, actor); err != nil {
			return err
		}
		if next.IsDelivered() {
			return s.settleDelivered(ctx, tx, repo, phase, task, actor)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithPhaseID(ctx, updated.CampaignPhaseID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"delivery_task_id": id.String(), "status": updated.Status})
	s.logg.Info(logCtx, "delivery task status updated")
	return updated, nil
}

// settleDelivered closes the meal batch once all of its tasks are delivered
// and completes the phase once none of its tasks are outstanding.
func (s *service) settleDelivered(ctx context.Context, tx *gorm.DB, repo Repository, phase *models.CampaignPhase, task *models.DeliveryTask, actor phases.Actor) error {
	remaining, err := repo.CountUndelivered(ctx, task.MealBatchID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count undelivered tasks")
	}
	if remaining == 0 {
		if err := repo.MarkBatchDelivered(ctx, task.MealBatchID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark meal batch delivered")
		}
	}

	total, outstanding, err := s.phases.DeliveryProgressTx(ctx, tx, phase.ID)
	if err != nil {
		return err
	}
	if total == 0 || outstanding > 0 {
		return nil
	}
	_, err = s.phases.ApplyTx(ctx, tx, phase, phases.Event{
		Type:        enums.PhaseEventDeliveriesCompleted,
		SourceID:    task.ID,
		Outstanding: int(outstanding),
		OccurredAt:  *task.DeliveredAt,
	}, actor)
	return err
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.DeliveryTask, error) {
	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return task, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", *params.Status))
	}
	query := listParams{Filter: params.Filter, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list delivery tasks")
	}
	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) ListMine(ctx context.Context, assignedTo uuid.UUID, limit, offset int) ([]models.DeliveryTask, error) {
	if assignedTo == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "delivery staff required")
	}
	page := pagination.OffsetParams{Limit: limit, Offset: offset}.Normalize()
	tasks, err := s.repo.ListByAssignee(ctx, assignedTo, page.Limit, page.Offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list delivery tasks")
	}
	return tasks, nil
}

func (s *service) appendLog(ctx context.Context, repo Repository, task *models.DeliveryTask, note string, actor phases.Actor) (*models.DeliveryStatusLog, error) {
	entry := &models.DeliveryStatusLog{
		ID:             uuid.New(),
		DeliveryTaskID: task.ID,
		Status:         task.Status,
		ChangedBy:      actor.UserID,
		CreatedAt:      task.UpdatedAt,
	}
	if trimmed := strings.TrimSpace(note); trimmed != "" {
		entry.Note = &trimmed
	}
	if err := repo.AppendLog(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append delivery status log")
	}
	return entry, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, task *models.DeliveryTask, note string, actor phases.Actor) error {
	actorRef := outbox.NewActorRef(actor.UserID, actor.OrganizationID, string(actor.Role))
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventDeliveryTaskStatusChange,
		AggregateType: enums.AggregateDeliveryTask,
		AggregateID:   task.ID,
		Actor:         actorRef,
		Data: payloads.DeliveryTaskStatusEvent{
			DeliveryTaskID: task.ID,
			MealBatchID:    task.MealBatchID,
			PhaseID:        task.CampaignPhaseID,
			AssignedTo:     task.AssignedTo,
			Status:         task.Status,
			Note:           strings.TrimSpace(note),
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit delivery task event")
	}
	return nil
}

func requireOpenPhase(phase *models.CampaignPhase) error {
	switch status := phase.PhaseStatus(); {
	case status == enums.PhaseStatusUndetermined:
		return pkgerrors.New(pkgerrors.CodeUnrecognizedStatus, "phase status is undetermined; an administrator must correct it")
	case status == enums.PhaseStatusFailed:
		return pkgerrors.New(pkgerrors.CodePhaseFailed, "phase has failed")
	case status.IsTerminal():
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("phase is %s", status))
	}
	return nil
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "delivery task not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load delivery task")
}

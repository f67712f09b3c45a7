package phases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodfund-backend/internal/locks"
	"github.com/angelmondragon/foodfund-backend/pkg/config"
	dbpkg "github.com/angelmondragon/foodfund-backend/pkg/db"
	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodfund-backend/pkg/errors"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	"github.com/angelmondragon/foodfund-backend/pkg/metrics"
	"github.com/angelmondragon/foodfund-backend/pkg/outbox"
	"github.com/angelmondragon/foodfund-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Actor identifies who is acting on a phase.
type Actor struct {
	UserID         uuid.UUID
	Role           enums.MemberRole
	OrganizationID *uuid.UUID
}

// SystemActor is used for transitions the platform raises on its own.
var SystemActor = Actor{}

func (a Actor) ref() *outbox.ActorRef {
	return outbox.NewActorRef(a.UserID, a.OrganizationID, string(a.Role))
}

func (a Actor) id() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}

// MutateFunc runs inside a phase's critical section with the row locked.
type MutateFunc func(tx *gorm.DB, phase *models.CampaignPhase) error

// Result describes what ApplyTx did with an event.
type Result struct {
	Phase     *models.CampaignPhase
	From      enums.PhaseStatus
	To        enums.PhaseStatus
	Applied   bool
	Duplicate bool
	Deferred  bool
}

// Service owns every mutation of campaign phases.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*models.CampaignPhase, error)
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]models.CampaignPhase, error)
	Events(ctx context.Context, id uuid.UUID) ([]models.PhaseEvent, error)
	CreateTx(ctx context.Context, tx *gorm.DB, phases []models.CampaignPhase) error
	Mutate(ctx context.Context, phaseID uuid.UUID, expectedVersion int64, fn MutateFunc) (*models.CampaignPhase, error)
	ApplyTx(ctx context.Context, tx *gorm.DB, phase *models.CampaignPhase, ev Event, actor Actor) (*Result, error)
	DeliveryProgressTx(ctx context.Context, tx *gorm.DB, phaseID uuid.UUID) (total int64, outstanding int64, err error)
	Cancel(ctx context.Context, phaseID uuid.UUID, actor Actor, reason string, expectedVersion int64) (*models.CampaignPhase, error)
	Fail(ctx context.Context, phaseID uuid.UUID, actor Actor, reason string, expectedVersion int64) (*models.CampaignPhase, error)
	Terminate(ctx context.Context, phaseID uuid.UUID, eventType enums.PhaseEventType, actor Actor, reason string) (*models.CampaignPhase, error)
	CorrectStatus(ctx context.Context, phaseID uuid.UUID, status enums.PhaseStatus, actor Actor, expectedVersion int64) (*models.CampaignPhase, error)
	Policy() Policy
}

// ServiceParams configure the phases service.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Locker   locks.Locker
	LockKey  func(phaseID string) string
	Workflow config.WorkflowConfig
	Logger   *logger.Logger
	Metrics  *metrics.WorkflowMetrics
	Clock    func() time.Time
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	locker  locks.Locker
	lockKey func(string) string
	cfg     config.WorkflowConfig
	logg    *logger.Logger
	metrics *metrics.WorkflowMetrics
	now     func() time.Time
}

// NewService builds the phases service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("phases repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	locker := params.Locker
	if locker == nil {
		locker = locks.NewLocalLocker(params.Workflow.PhaseLockWait)
	}
	lockKey := params.LockKey
	if lockKey == nil {
		lockKey = func(id string) string { return "phase:" + id }
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		outbox:  params.Outbox,
		locker:  locker,
		lockKey: lockKey,
		cfg:     params.Workflow,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     clock,
	}, nil
}

func (s *service) Policy() Policy {
	return Policy{MaxAuditResubmissions: s.cfg.MaxAuditResubmissions}
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.CampaignPhase, error) {
	phase, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return phase, nil
}

func (s *service) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]models.CampaignPhase, error) {
	phases, err := s.repo.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list campaign phases")
	}
	return phases, nil
}

func (s *service) Events(ctx context.Context, id uuid.UUID) ([]models.PhaseEvent, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	events, err := s.repo.ListEvents(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list phase events")
	}
	return events, nil
}

// CreateTx inserts freshly planned phases in PLANNING at version 1.
func (s *service) CreateTx(ctx context.Context, tx *gorm.DB, phases []models.CampaignPhase) error {
	repo := s.repo.WithTx(tx)
	for i := range phases {
		phase := &phases[i]
		if phase.ID == uuid.Nil {
			phase.ID = uuid.New()
		}
		phase.Status = string(enums.PhaseStatusPlanning)
		phase.Version = 1
		if err := repo.Create(ctx, phase); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_campaign_phases_campaign_position") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "phase position already used")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create phase")
		}
	}
	return nil
}

// Mutate runs fn under the phase lock inside a transaction with the phase
// row locked. A positive expectedVersion must match the stored version.
func (s *service) Mutate(ctx context.Context, phaseID uuid.UUID, expectedVersion int64, fn MutateFunc) (*models.CampaignPhase, error) {
	if fn == nil {
		return nil, errors.New("mutate func required")
	}
	waitStart := time.Now()
	unlock, err := s.locker.Lock(ctx, s.lockKey(phaseID.String()))
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveLockWait(time.Since(waitStart))

	var (
		phase  *models.CampaignPhase
		before enums.PhaseStatus
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, phaseID)
		if err != nil {
			return translateNotFound(err)
		}
		if expectedVersion > 0 && current.Version != expectedVersion {
			return pkgerrors.New(pkgerrors.CodeStaleWrite, fmt.Sprintf("phase is at version %d, expected %d; re-read and retry", current.Version, expectedVersion))
		}
		before = current.PhaseStatus()
		if err := fn(tx, current); err != nil {
			return err
		}
		phase = current
		return nil
	})
	unlock()
	if err != nil {
		return nil, err
	}

	if s.cfg.SequentialPhases && !before.IsTerminal() && phase.PhaseStatus().IsTerminal() {
		s.advanceSuccessor(ctx, phase)
	}
	return phase, nil
}

// ApplyTx runs the event through the machine and persists the outcome. It
// must be called from inside Mutate so the phase row is locked. Re-raising
// an event with an already recorded (type, source) is a no-op.
func (s *service) ApplyTx(ctx context.Context, tx *gorm.DB, phase *models.CampaignPhase, ev Event, actor Actor) (*Result, error) {
	if phase == nil {
		return nil, errors.New("phase required")
	}
	repo := s.repo.WithTx(tx)
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now().UTC()
	}
	if ev.ActorID == nil {
		ev.ActorID = actor.id()
	}

	from := phase.PhaseStatus()
	result := &Result{Phase: phase, From: from, To: from}

	if ev.SourceID != uuid.Nil {
		exists, err := repo.EventExists(ctx, phase.ID, ev.Type, ev.SourceID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check phase event")
		}
		if exists {
			result.Duplicate = true
			return result, nil
		}
	} else {
		ev.SourceID = uuid.New()
	}

	if ev.Type == enums.PhaseEventDeliveriesCompleted && s.cfg.SequentialPhases && from == enums.PhaseStatusDelivery {
		blocking, err := blockingPredecessor(ctx, repo, phase)
		if err != nil {
			return nil, err
		}
		if blocking != nil {
			if err := s.emitDeferred(ctx, tx, phase, blocking, actor); err != nil {
				return nil, err
			}
			result.Deferred = true
			return result, nil
		}
	}

	next, err := Apply(StateFromModel(*phase), ev, s.Policy())
	if err != nil {
		if appErr := pkgerrors.As(err); appErr != nil {
			s.metrics.IncRejection(string(ev.Type), string(appErr.Code()))
		}
		return nil, err
	}

	prevVersion := phase.Version
	next.ApplyToModel(phase)
	if next.Status.IsTerminal() {
		reason := terminalReason(ev, next)
		phase.TerminalReason = &reason
	}
	ok, err := repo.UpdateWithVersion(ctx, phase, prevVersion)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update phase")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStaleWrite, "phase changed concurrently; re-read and retry")
	}

	if err := s.appendEvent(ctx, repo, phase.ID, ev, from, next.Status); err != nil {
		return nil, err
	}
	if next.Status == enums.PhaseStatusCancelled || next.Status == enums.PhaseStatusFailed {
		if err := s.closePendingDisbursements(ctx, tx, phase, next.Status, ev.OccurredAt); err != nil {
			return nil, err
		}
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPhaseTransitioned,
		AggregateType: enums.AggregateCampaignPhase,
		AggregateID:   phase.ID,
		Actor:         actor.ref(),
		OccurredAt:    ev.OccurredAt,
		Data: payloads.PhaseTransitionedEvent{
			PhaseID:    phase.ID,
			CampaignID: phase.CampaignID,
			EventType:  ev.Type,
			SourceID:   ev.SourceID,
			From:       from,
			To:         next.Status,
			Version:    next.Version,
			OccurredAt: ev.OccurredAt,
			Reason:     ev.Reason,
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit phase transition")
	}

	s.metrics.IncTransition(string(ev.Type), string(from), string(next.Status))
	logCtx := s.logg.WithPhaseID(ctx, phase.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"campaign_id": phase.CampaignID.String(),
		"event_type":  ev.Type,
		"from":        from,
		"to":          next.Status,
		"version":     next.Version,
	})
	s.logg.Info(logCtx, "phase transition applied")

	result.To = next.Status
	result.Applied = true
	return result, nil
}

// closePendingDisbursements rejects requests that can no longer be approved
// once the phase has terminated, so none stays PENDING forever.
func (s *service) closePendingDisbursements(ctx context.Context, tx *gorm.DB, phase *models.CampaignPhase, status enums.PhaseStatus, at time.Time) error {
	note := fmt.Sprintf("closed automatically: phase is %s", status)
	closed, err := s.repo.WithTx(tx).RejectPendingDisbursements(ctx, phase.ID, note, at)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "close pending disbursements")
	}
	for _, request := range closed {
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisbursementRejected,
			AggregateType: enums.AggregateOperationRequest,
			AggregateID:   request.ID,
			OccurredAt:    at,
			Data: payloads.DisbursementEvent{
				OperationRequestID: request.ID,
				PhaseID:            phase.ID,
				ExpenseType:        request.ExpenseType,
				Amount:             request.TotalCost,
				Status:             request.Status,
				Note:               note,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit disbursement rejection")
		}
	}
	if len(closed) > 0 {
		logCtx := s.logg.WithPhaseID(ctx, phase.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"status": status, "requests": len(closed)})
		s.logg.Info(logCtx, "pending disbursements closed")
	}
	return nil
}

func (s *service) DeliveryProgressTx(ctx context.Context, tx *gorm.DB, phaseID uuid.UUID) (int64, int64, error) {
	total, outstanding, err := s.repo.WithTx(tx).CountDeliveryTasks(ctx, phaseID)
	if err != nil {
		return 0, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count delivery tasks")
	}
	return total, outstanding, nil
}

// Cancel terminalizes the phase for roles allowed by configuration.
func (s *service) Cancel(ctx context.Context, phaseID uuid.UUID, actor Actor, reason string, expectedVersion int64) (*models.CampaignPhase, error) {
	if !s.cfg.CanCancel(string(actor.Role)) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role is not allowed to cancel phases")
	}
	return s.terminate(ctx, phaseID, enums.PhaseEventCancelled, actor, reason, expectedVersion)
}

// Fail terminalizes the phase as failed.
func (s *service) Fail(ctx context.Context, phaseID uuid.UUID, actor Actor, reason string, expectedVersion int64) (*models.CampaignPhase, error) {
	if !actor.Role.IsPlatformAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only platform admins can fail phases")
	}
	return s.terminate(ctx, phaseID, enums.PhaseEventFailed, actor, reason, expectedVersion)
}

// Terminate is the unchecked variant used by platform processes such as
// campaign cancellation and fund sweeps.
func (s *service) Terminate(ctx context.Context, phaseID uuid.UUID, eventType enums.PhaseEventType, actor Actor, reason string) (*models.CampaignPhase, error) {
	if !eventType.IsAdministrative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s is not a terminating event", eventType))
	}
	return s.terminate(ctx, phaseID, eventType, actor, reason, 0)
}

func (s *service) terminate(ctx context.Context, phaseID uuid.UUID, eventType enums.PhaseEventType, actor Actor, reason string, expectedVersion int64) (*models.CampaignPhase, error) {
	target := enums.PhaseStatusCancelled
	if eventType == enums.PhaseEventFailed {
		target = enums.PhaseStatusFailed
	}
	return s.Mutate(ctx, phaseID, expectedVersion, func(tx *gorm.DB, phase *models.CampaignPhase) error {
		if phase.PhaseStatus() == target {
			return nil
		}
		_, err := s.ApplyTx(ctx, tx, phase, Event{Type: eventType, Reason: reason}, actor)
		return err
	})
}

// CorrectStatus repairs a phase whose stored status could not be recognized.
func (s *service) CorrectStatus(ctx context.Context, phaseID uuid.UUID, status enums.PhaseStatus, actor Actor, expectedVersion int64) (*models.CampaignPhase, error) {
	if !actor.Role.IsPlatformAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only platform admins can correct phase status")
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid phase status %q", status))
	}
	return s.Mutate(ctx, phaseID, expectedVersion, func(tx *gorm.DB, phase *models.CampaignPhase) error {
		if phase.PhaseStatus() != enums.PhaseStatusUndetermined {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only phases with an undetermined status can be corrected")
		}
		raw := phase.Status
		prevVersion := phase.Version
		phase.Status = string(status)
		phase.Version = prevVersion + 1
		ok, err := s.repo.WithTx(tx).UpdateWithVersion(ctx, phase, prevVersion)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update phase")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStaleWrite, "phase changed concurrently; re-read and retry")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPhaseStatusCorrected,
			AggregateType: enums.AggregateCampaignPhase,
			AggregateID:   phase.ID,
			Actor:         actor.ref(),
			Data: payloads.PhaseStatusCorrectedEvent{
				PhaseID:    phase.ID,
				CampaignID: phase.CampaignID,
				RawStatus:  raw,
				Status:     status,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit status correction")
		}
		logCtx := s.logg.WithPhaseID(ctx, phase.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"raw_status": raw, "status": status})
		s.logg.Warn(logCtx, "undetermined phase status corrected")
		return nil
	})
}

func (s *service) appendEvent(ctx context.Context, repo Repository, phaseID uuid.UUID, ev Event, from, to enums.PhaseStatus) error {
	seq, err := repo.NextSequence(ctx, phaseID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "next phase event sequence")
	}
	row := &models.PhaseEvent{
		ID:              uuid.New(),
		CampaignPhaseID: phaseID,
		Sequence:        seq,
		EventType:       ev.Type,
		SourceID:        ev.SourceID,
		Amount:          ev.Amount,
		Outstanding:     ev.Outstanding,
		FromStatus:      string(from),
		ToStatus:        string(to),
		ActorID:         ev.ActorID,
		OccurredAt:      ev.OccurredAt,
	}
	if ev.ExpenseType != "" {
		expenseType := ev.ExpenseType
		row.ExpenseType = &expenseType
	}
	if ev.Reason != "" {
		reason := ev.Reason
		row.Reason = &reason
	}
	if err := repo.AppendEvent(ctx, row); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_phase_events_source") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "phase event already recorded")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append phase event")
	}
	return nil
}

func (s *service) emitDeferred(ctx context.Context, tx *gorm.DB, phase, blocking *models.CampaignPhase, actor Actor) error {
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPhaseCompletionDeferred,
		AggregateType: enums.AggregateCampaignPhase,
		AggregateID:   phase.ID,
		Actor:         actor.ref(),
		Data: payloads.PhaseCompletionDeferredEvent{
			PhaseID:         phase.ID,
			CampaignID:      phase.CampaignID,
			BlockingPhaseID: blocking.ID,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit deferred completion")
	}
	logCtx := s.logg.WithPhaseID(ctx, phase.ID.String())
	logCtx = s.logg.WithField(logCtx, "blocking_phase_id", blocking.ID.String())
	s.logg.Info(logCtx, "phase completion deferred until earlier phase terminates")
	return nil
}

// advanceSuccessor completes the next phase once its deferred completion is unblocked.
func (s *service) advanceSuccessor(ctx context.Context, phase *models.CampaignPhase) {
	siblings, err := s.repo.ListByCampaign(ctx, phase.CampaignID)
	if err != nil {
		s.logg.Error(ctx, "list phases for successor", err)
		return
	}
	var successor *models.CampaignPhase
	for i := range siblings {
		candidate := siblings[i]
		if candidate.Position <= phase.Position || candidate.PhaseStatus().IsTerminal() {
			continue
		}
		successor = &candidate
		break
	}
	if successor == nil || successor.PhaseStatus() != enums.PhaseStatusDelivery {
		return
	}

	_, err = s.Mutate(ctx, successor.ID, 0, func(tx *gorm.DB, locked *models.CampaignPhase) error {
		if locked.PhaseStatus() != enums.PhaseStatusDelivery {
			return nil
		}
		total, outstanding, err := s.DeliveryProgressTx(ctx, tx, locked.ID)
		if err != nil {
			return err
		}
		if total == 0 || outstanding > 0 {
			return nil
		}
		_, err = s.ApplyTx(ctx, tx, locked, Event{
			Type:     enums.PhaseEventDeliveriesCompleted,
			SourceID: phase.ID,
			Reason:   "earlier phase terminated",
		}, SystemActor)
		return err
	})
	if err != nil {
		logCtx := s.logg.WithPhaseID(ctx, successor.ID.String())
		s.logg.Error(logCtx, "advance successor phase", err)
	}
}

func blockingPredecessor(ctx context.Context, repo Repository, phase *models.CampaignPhase) (*models.CampaignPhase, error) {
	siblings, err := repo.ListByCampaign(ctx, phase.CampaignID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list campaign phases")
	}
	for i := range siblings {
		if siblings[i].Position < phase.Position && !siblings[i].PhaseStatus().IsTerminal() {
			return &siblings[i], nil
		}
	}
	return nil, nil
}

func terminalReason(ev Event, next State) string {
	if ev.Reason != "" {
		return ev.Reason
	}
	if ev.Type == enums.PhaseEventExpenseProofRejected && next.Status == enums.PhaseStatusFailed {
		return "audit resubmissions exhausted"
	}
	return string(ev.Type)
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "phase not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load phase")
}

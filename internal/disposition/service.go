package disposition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodfund-backend/internal/locks"
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
)

const sweepCancelReason = "campaign funds swept to the general fund"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type phaseTerminator interface {
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]models.CampaignPhase, error)
	Terminate(ctx context.Context, phaseID uuid.UUID, eventType enums.PhaseEventType, actor phases.Actor, reason string) (*models.CampaignPhase, error)
}

type outboxPublisher interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service records the once-per-campaign refund or sweep decision.
type Service interface {
	Resolve(ctx context.Context, campaignID uuid.UUID, trigger enums.DispositionTrigger) (*models.CampaignDisposition, error)
	Get(ctx context.Context, campaignID uuid.UUID) (*models.CampaignDisposition, error)
	ApplyToSettledTx(ctx context.Context, tx *gorm.DB, donation models.Donation) (*models.DonationDisposition, error)
	CloseDue(ctx context.Context, limit int) ([]models.CampaignDisposition, error)
}

// ServiceParams configure the disposition service.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Phases   phaseTerminator
	Outbox   outboxPublisher
	Locker   locks.Locker
	Workflow config.WorkflowConfig
	Logger   *logger.Logger
	Metrics  *metrics.WorkflowMetrics
	Clock    func() time.Time
}

type service struct {
	repo    Repository
	tx      txRunner
	phases  phaseTerminator
	outbox  outboxPublisher
	locker  locks.Locker
	cfg     config.WorkflowConfig
	logg    *logger.Logger
	metrics *metrics.WorkflowMetrics
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("disposition repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Phases == nil {
		return nil, fmt.Errorf("phase terminator required")
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
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		phases:  params.Phases,
		outbox:  params.Outbox,
		locker:  locker,
		cfg:     params.Workflow,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     clock,
	}, nil
}

// Resolve returns the recorded disposition, deciding and recording it first
// when the campaign has none. A recorded decision is never recomputed.
func (s *service) Resolve(ctx context.Context, campaignID uuid.UUID, trigger enums.DispositionTrigger) (*models.CampaignDisposition, error) {
	if !trigger.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid disposition trigger %q", trigger))
	}
	unlock, err := s.locker.Lock(ctx, "campaign:"+campaignID.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		recorded *models.CampaignDisposition
		created  bool
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		campaign, err := repo.LockCampaign(ctx, campaignID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "campaign not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load campaign")
		}

		existing, err := repo.FindByCampaign(ctx, campaignID)
		switch {
		case err == nil:
			recorded = existing
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load disposition")
		}

		now := s.now().UTC()
		if trigger == enums.DispositionTriggerWindowClosed && !campaign.CancelledForCause {
			if campaign.Status != enums.CampaignStatusActive {
				return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("campaign is %s", campaign.Status))
			}
			if now.Before(campaign.FundraisingEndDate) {
				return pkgerrors.New(pkgerrors.CodeInvalidTransition, "fundraising window is still open")
			}
		}

		donations, err := repo.SettledDonations(ctx, campaignID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load settled donations")
		}
		decision := Decide(Input{
			Trigger:           trigger,
			CancelledForCause: campaign.CancelledForCause,
			ReceivedAmount:    campaign.ReceivedAmount,
			TargetAmount:      campaign.TargetAmount,
			SweepRatio:        s.cfg.SweepRatio(),
		})

		disposition := &models.CampaignDisposition{
			ID:             uuid.New(),
			CampaignID:     campaignID,
			Trigger:        trigger,
			Outcome:        decision.Outcome,
			ReceivedAmount: campaign.ReceivedAmount,
			TargetAmount:   campaign.TargetAmount,
			FundingRatio:   decision.FundingRatio,
			DecidedAt:      now,
			CreatedAt:      now,
		}
		if action, percent, ok := Action(decision.Outcome); ok {
			for _, donation := range donations {
				disposition.Donations = append(disposition.Donations, models.DonationDisposition{
					ID:            uuid.New(),
					DonationID:    donation.ID,
					Action:        action,
					Amount:        donation.Amount,
					RefundPercent: percent,
					CreatedAt:     now,
				})
			}
		}
		if err := repo.Create(ctx, disposition); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_campaign_dispositions_campaign") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "disposition already recorded")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record disposition")
		}
		if trigger == enums.DispositionTriggerWindowClosed {
			if err := repo.CloseCampaign(ctx, campaignID, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "close campaign")
			}
		}
		if err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDispositionRecorded,
			AggregateType: enums.AggregateCampaign,
			AggregateID:   campaignID,
			Data: payloads.DispositionRecordedEvent{
				DispositionID: disposition.ID,
				CampaignID:    campaignID,
				Trigger:       trigger,
				Outcome:       decision.Outcome,
				FundingRatio:  decision.FundingRatio.String(),
				DonationCount: len(disposition.Donations),
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit disposition event")
		}
		recorded = disposition
		created = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithCampaignID(ctx, campaignID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"trigger":       recorded.Trigger,
		"outcome":       recorded.Outcome,
		"funding_ratio": recorded.FundingRatio.String(),
	})
	if !created {
		s.logg.Debug(logCtx, "disposition already recorded")
		return recorded, nil
	}
	s.metrics.IncDisposition(string(recorded.Outcome))
	s.logg.Info(logCtx, "disposition recorded")

	if recorded.Outcome == enums.DispositionOutcomeSweepGeneralFund {
		if err := s.cancelOpenPhases(ctx, campaignID); err != nil {
			return nil, err
		}
	}
	return recorded, nil
}

func (s *service) Get(ctx context.Context, campaignID uuid.UUID) (*models.CampaignDisposition, error) {
	disposition, err := s.repo.FindByCampaign(ctx, campaignID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "disposition not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load disposition")
	}
	return disposition, nil
}

// ApplyToSettledTx extends a recorded disposition to a donation that settled
// after the decision, using the recorded outcome as is. The caller must hold
// the campaign row lock. It returns nil when nothing is recorded yet or the
// outcome moves no funds.
func (s *service) ApplyToSettledTx(ctx context.Context, tx *gorm.DB, donation models.Donation) (*models.DonationDisposition, error) {
	if donation.Status != enums.DonationStatusSettled {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("donation is %s", donation.Status))
	}
	repo := s.repo.WithTx(tx)
	recorded, err := repo.FindByCampaign(ctx, donation.CampaignID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load disposition")
	}
	for i := range recorded.Donations {
		if recorded.Donations[i].DonationID == donation.ID {
			return &recorded.Donations[i], nil
		}
	}
	action, percent, ok := Action(recorded.Outcome)
	if !ok {
		return nil, nil
	}

	row := &models.DonationDisposition{
		ID:            uuid.New(),
		DispositionID: recorded.ID,
		DonationID:    donation.ID,
		Action:        action,
		Amount:        donation.Amount,
		RefundPercent: percent,
		CreatedAt:     s.now().UTC(),
	}
	if err := repo.CreateDonationRow(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record late donation disposition")
	}

	logCtx := s.logg.WithCampaignID(ctx, donation.CampaignID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"donation_id": donation.ID.String(),
		"outcome":     recorded.Outcome,
		"action":      action,
	})
	s.logg.Warn(logCtx, "late settlement added to recorded disposition")
	return row, nil
}

// CloseDue resolves every active campaign whose fundraising window ended.
// Failures are collected so one campaign cannot block the rest.
func (s *service) CloseDue(ctx context.Context, limit int) ([]models.CampaignDisposition, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.repo.DueForClose(ctx, s.now().UTC(), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list campaigns due for close")
	}

	var (
		resolved []models.CampaignDisposition
		errs     error
	)
	for _, id := range ids {
		disposition, err := s.Resolve(ctx, id, enums.DispositionTriggerWindowClosed)
		if err != nil {
			s.logg.Error(s.logg.WithCampaignID(ctx, id.String()), "campaign close failed", err)
			errs = multierr.Append(errs, fmt.Errorf("campaign %s: %w", id, err))
			continue
		}
		resolved = append(resolved, *disposition)
	}
	return resolved, errs
}

func (s *service) cancelOpenPhases(ctx context.Context, campaignID uuid.UUID) error {
	rows, err := s.phases.ListByCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	var errs error
	for _, phase := range rows {
		if phase.PhaseStatus().IsTerminal() {
			continue
		}
		if _, err := s.phases.Terminate(ctx, phase.ID, enums.PhaseEventCancelled, phases.SystemActor, sweepCancelReason); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

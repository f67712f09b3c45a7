package campaigns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
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

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type phasePlanner interface {
	CreateTx(ctx context.Context, tx *gorm.DB, phases []models.CampaignPhase) error
	Terminate(ctx context.Context, phaseID uuid.UUID, eventType enums.PhaseEventType, actor phases.Actor, reason string) (*models.CampaignPhase, error)
}

// resolver decides the fund disposition of a campaign and extends a recorded
// decision to donations that settle afterwards.
type resolver interface {
	Resolve(ctx context.Context, campaignID uuid.UUID, trigger enums.DispositionTrigger) (*models.CampaignDisposition, error)
	ApplyToSettledTx(ctx context.Context, tx *gorm.DB, donation models.Donation) (*models.DonationDisposition, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// CreateInput describes a campaign submitted for review.
type CreateInput struct {
	OrganizationID       uuid.UUID
	Title                string
	Description          string
	TargetAmount         int64
	FundraisingStartDate time.Time
	FundraisingEndDate   time.Time
}

// PhasePlan is one phase of the plan finalized at approval.
type PhasePlan struct {
	Name                 string
	IngredientFundAmount int64
	CookingFundAmount    int64
	DeliveryFundAmount   int64
}

// SearchInput filters the public campaign search.
type SearchInput struct {
	Query  string
	Status *enums.CampaignStatus
	Page   int
	Limit  int
}

// SearchResult is one page of campaigns with page metadata.
type SearchResult struct {
	Items []models.Campaign `json:"items"`
	pagination.PageInfo
}

// DonationInput records a donation reported by the payment gateway.
type DonationInput struct {
	CampaignID     uuid.UUID
	DonorRef       string
	TransactionRef string
	Amount         int64
}

// CancelResult reports a for-cause cancellation and the recorded disposition.
type CancelResult struct {
	Campaign    *models.Campaign            `json:"campaign"`
	Disposition *models.CampaignDisposition `json:"disposition"`
}

// Service manages campaigns and their donation ledger.
type Service interface {
	Create(ctx context.Context, input CreateInput, actor phases.Actor) (*models.Campaign, error)
	Approve(ctx context.Context, id uuid.UUID, plan []PhasePlan, actor phases.Actor) (*models.Campaign, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	Search(ctx context.Context, input SearchInput) (*SearchResult, error)
	RecordDonation(ctx context.Context, input DonationInput) (*models.Donation, error)
	SettleDonation(ctx context.Context, transactionRef string) (*models.Donation, error)
	FailDonation(ctx context.Context, transactionRef string) (*models.Donation, error)
	ListDonations(ctx context.Context, campaignID uuid.UUID) ([]models.Donation, error)
	CancelForCause(ctx context.Context, id uuid.UUID, reason string, actor phases.Actor) (*CancelResult, error)
}

// ServiceParams configure the campaigns service.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Phases   phasePlanner
	Resolver resolver
	Outbox   outboxPublisher
	Logger   *logger.Logger
	Clock    func() time.Time
}

type service struct {
	repo     Repository
	tx       txRunner
	phases   phasePlanner
	resolver resolver
	outbox   outboxPublisher
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("campaign repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Phases == nil {
		return nil, fmt.Errorf("phase planner required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("disposition resolver required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		phases:   params.Phases,
		resolver: params.Resolver,
		outbox:   params.Outbox,
		logg:     params.Logger,
		now:      clock,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput, actor phases.Actor) (*models.Campaign, error) {
	title := strings.TrimSpace(input.Title)
	switch {
	case input.OrganizationID == uuid.Nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organizationId is required")
	case title == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	case input.TargetAmount <= 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "targetAmount must be positive")
	case input.FundraisingStartDate.IsZero() || input.FundraisingEndDate.IsZero():
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fundraising window is required")
	case !input.FundraisingEndDate.After(input.FundraisingStartDate):
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fundraisingEndDate must be after fundraisingStartDate")
	}

	now := s.now().UTC()
	campaign := &models.Campaign{
		ID:                   uuid.New(),
		OrganizationID:       input.OrganizationID,
		CreatedBy:            actor.UserID,
		Title:                title,
		Status:               enums.CampaignStatusPending,
		TargetAmount:         input.TargetAmount,
		FundraisingStartDate: input.FundraisingStartDate.UTC(),
		FundraisingEndDate:   input.FundraisingEndDate.UTC(),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if desc := strings.TrimSpace(input.Description); desc != "" {
		campaign.Description = &desc
	}
	if err := s.repo.Create(ctx, campaign); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create campaign")
	}
	return campaign, nil
}

// Approve activates a pending campaign and creates its phases in PLANNING.
// Approving an active campaign again returns it unchanged.
func (s *service) Approve(ctx context.Context, id uuid.UUID, plan []PhasePlan, actor phases.Actor) (*models.Campaign, error) {
	if len(plan) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one phase is required")
	}
	var planned int64
	for i, p := range plan {
		if strings.TrimSpace(p.Name) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("phase %d needs a name", i+1))
		}
		if p.IngredientFundAmount < 0 || p.CookingFundAmount < 0 || p.DeliveryFundAmount < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("phase %d has a negative allocation", i+1))
		}
		planned += p.IngredientFundAmount + p.CookingFundAmount + p.DeliveryFundAmount
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		campaign, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return translateNotFound(err)
		}
		switch campaign.Status {
		case enums.CampaignStatusActive:
			return nil
		case enums.CampaignStatusPending:
		default:
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("campaign is %s", campaign.Status))
		}
		if planned > campaign.TargetAmount {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("phase allocations %d exceed target %d", planned, campaign.TargetAmount))
		}

		rows := make([]models.CampaignPhase, 0, len(plan))
		for i, p := range plan {
			rows = append(rows, models.CampaignPhase{
				ID:                   uuid.New(),
				CampaignID:           campaign.ID,
				Name:                 strings.TrimSpace(p.Name),
				Position:             i + 1,
				IngredientFundAmount: p.IngredientFundAmount,
				CookingFundAmount:    p.CookingFundAmount,
				DeliveryFundAmount:   p.DeliveryFundAmount,
			})
		}
		if err := s.phases.CreateTx(ctx, tx, rows); err != nil {
			return err
		}

		now := s.now().UTC()
		campaign.Status = enums.CampaignStatusActive
		campaign.ApprovedAt = &now
		campaign.UpdatedAt = now
		if err := repo.Update(ctx, campaign); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "approve campaign")
		}

		phaseIDs := make([]uuid.UUID, 0, len(rows))
		for _, row := range rows {
			phaseIDs = append(phaseIDs, row.ID)
		}
		return s.emitCampaign(ctx, tx, enums.EventCampaignApproved, campaign, phaseIDs, "", actor)
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithCampaignID(ctx, id.String())
	s.logg.Info(s.logg.WithField(logCtx, "phases", len(plan)), "campaign approved")
	return s.Get(ctx, id)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	campaign, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return campaign, nil
}

func (s *service) Search(ctx context.Context, input SearchInput) (*SearchResult, error) {
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", *input.Status))
	}
	page := pagination.FromPage(input.Page, input.Limit)
	rows, total, err := s.repo.Search(ctx, searchParams{
		Query:  input.Query,
		Status: input.Status,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "search campaigns")
	}
	if rows == nil {
		rows = []models.Campaign{}
	}
	return &SearchResult{Items: rows, PageInfo: pagination.NewPageInfo(input.Page, input.Limit, total)}, nil
}

// RecordDonation stores a pending donation. Replaying the same transaction
// reference returns the stored donation.
func (s *service) RecordDonation(ctx context.Context, input DonationInput) (*models.Donation, error) {
	ref := strings.TrimSpace(input.TransactionRef)
	donor := strings.TrimSpace(input.DonorRef)
	switch {
	case input.CampaignID == uuid.Nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaignId is required")
	case ref == "" || donor == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transactionRef and donorRef are required")
	case input.Amount <= 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	campaign, err := s.Get(ctx, input.CampaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != enums.CampaignStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("campaign is %s and not accepting donations", campaign.Status))
	}

	now := s.now().UTC()
	donation := &models.Donation{
		ID:             uuid.New(),
		CampaignID:     campaign.ID,
		DonorRef:       donor,
		TransactionRef: ref,
		Amount:         input.Amount,
		Status:         enums.DonationStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	existing, err := s.repo.FindDonationByRef(ctx, ref)
	switch {
	case err == nil:
		return sameDonation(existing, donation)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load donation")
	}
	if err := s.repo.CreateDonation(ctx, donation); err != nil {
		if !dbpkg.IsUniqueViolation(err, "ux_donations_transaction_ref") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record donation")
		}
		existing, findErr := s.repo.FindDonationByRef(ctx, ref)
		if findErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, findErr, "load donation")
		}
		return sameDonation(existing, donation)
	}
	return donation, nil
}

func sameDonation(existing, incoming *models.Donation) (*models.Donation, error) {
	if existing.CampaignID != incoming.CampaignID || existing.Amount != incoming.Amount {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "transaction reference already used for a different donation")
	}
	return existing, nil
}

// SettleDonation confirms a pending donation and recomputes the campaign's
// received amount from its settled donations. A donation settling after the
// campaign's refund or sweep was recorded joins that recorded outcome.
func (s *service) SettleDonation(ctx context.Context, transactionRef string) (*models.Donation, error) {
	return s.finalizeDonation(ctx, transactionRef, enums.DonationStatusSettled)
}

func (s *service) FailDonation(ctx context.Context, transactionRef string) (*models.Donation, error) {
	return s.finalizeDonation(ctx, transactionRef, enums.DonationStatusFailed)
}

func (s *service) finalizeDonation(ctx context.Context, transactionRef string, next enums.DonationStatus) (*models.Donation, error) {
	ref := strings.TrimSpace(transactionRef)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transactionRef is required")
	}

	var (
		result   *models.Donation
		received int64
		changed  bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		donation, err := repo.FindDonationByRefForUpdate(ctx, ref)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "donation not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load donation")
		}
		result = donation
		if donation.Status == next {
			return nil
		}
		if donation.Status != enums.DonationStatusPending {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("donation is already %s", donation.Status))
		}

		campaign, err := repo.FindByIDForUpdate(ctx, donation.CampaignID)
		if err != nil {
			return translateNotFound(err)
		}

		now := s.now().UTC()
		donation.Status = next
		donation.UpdatedAt = now
		if next == enums.DonationStatusSettled {
			donation.SettledAt = &now
		}
		if err := repo.UpdateDonation(ctx, donation); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update donation")
		}
		changed = true
		if next != enums.DonationStatusSettled {
			return nil
		}

		received, err = repo.SumSettled(ctx, campaign.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum settled donations")
		}
		campaign.ReceivedAmount = received
		campaign.UpdatedAt = now
		if err := repo.Update(ctx, campaign); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update received amount")
		}
		late, err := s.resolver.ApplyToSettledTx(ctx, tx, *donation)
		if err != nil {
			return err
		}
		event := payloads.DonationSettledEvent{
			DonationID:     donation.ID,
			CampaignID:     campaign.ID,
			Amount:         donation.Amount,
			ReceivedAmount: received,
		}
		if late != nil {
			event.DispositionAction = late.Action
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDonationSettled,
			AggregateType: enums.AggregateDonation,
			AggregateID:   donation.ID,
			Data:          event,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit donation event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		logCtx := s.logg.WithCampaignID(ctx, result.CampaignID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"donation_id":     result.ID.String(),
			"status":          result.Status,
			"received_amount": received,
		})
		s.logg.Info(logCtx, "donation finalized")
	}
	return result, nil
}

func (s *service) ListDonations(ctx context.Context, campaignID uuid.UUID) ([]models.Donation, error) {
	donations, err := s.repo.ListDonations(ctx, campaignID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list donations")
	}
	return donations, nil
}

// CancelForCause cancels the campaign and every open phase, then records a
// full refund disposition unless one was already recorded.
func (s *service) CancelForCause(ctx context.Context, id uuid.UUID, reason string, actor phases.Actor) (*CancelResult, error) {
	if !actor.Role.IsPlatformAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only platform administrators can cancel campaigns for cause")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		campaign, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return translateNotFound(err)
		}
		if campaign.Status == enums.CampaignStatusCancelled {
			return nil
		}
		now := s.now().UTC()
		campaign.Status = enums.CampaignStatusCancelled
		campaign.CancelledForCause = true
		campaign.CancelReason = &reason
		campaign.CancelledAt = &now
		campaign.UpdatedAt = now
		if err := repo.Update(ctx, campaign); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel campaign")
		}
		return s.emitCampaign(ctx, tx, enums.EventCampaignCancelled, campaign, nil, reason, actor)
	})
	if err != nil {
		return nil, err
	}

	campaign, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, phase := range campaign.Phases {
		if phase.PhaseStatus().IsTerminal() {
			continue
		}
		if _, err := s.phases.Terminate(ctx, phase.ID, enums.PhaseEventCancelled, actor, reason); err != nil {
			return nil, err
		}
	}

	disposition, err := s.resolver.Resolve(ctx, id, enums.DispositionTriggerCancelledForCause)
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithCampaignID(ctx, id.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"outcome": disposition.Outcome, "reason": reason})
	s.logg.Warn(logCtx, "campaign cancelled for cause")

	campaign, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CancelResult{Campaign: campaign, Disposition: disposition}, nil
}

func (s *service) emitCampaign(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, campaign *models.Campaign, phaseIDs []uuid.UUID, reason string, actor phases.Actor) error {
	actorRef := outbox.NewActorRef(actor.UserID, actor.OrganizationID, string(actor.Role))
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateCampaign,
		AggregateID:   campaign.ID,
		Actor:         actorRef,
		Data: payloads.CampaignEvent{
			CampaignID:        campaign.ID,
			Status:            campaign.Status,
			PhaseIDs:          phaseIDs,
			CancelledForCause: campaign.CancelledForCause,
			Reason:            reason,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit campaign event")
	}
	return nil
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "campaign not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load campaign")
}

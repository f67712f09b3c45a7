package campaigns

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodfund-backend/internal/disposition"
	"github.com/angelmondragon/foodfund-backend/internal/locks"
	"github.com/angelmondragon/foodfund-backend/internal/phases"
	"github.com/angelmondragon/foodfund-backend/pkg/config"
	"github.com/angelmondragon/foodfund-backend/pkg/db/dbtest"
	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodfund-backend/pkg/errors"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	"github.com/angelmondragon/foodfund-backend/pkg/outbox"
)

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

var (
	owner = phases.Actor{UserID: uuid.New(), Role: enums.MemberRoleOrganizationOwner}
	admin = phases.Actor{UserID: uuid.New(), Role: enums.MemberRolePlatformAdmin}
)

type harness struct {
	db     *gorm.DB
	svc    Service
	phases phases.Service
}

func newHarness(t *testing.T) harness {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	publisher := outbox.NewService(outbox.NewRepository(conn), logg)
	cfg := config.WorkflowConfig{MaxAuditResubmissions: 3, SweepThreshold: "0.5"}
	locker := locks.NewLocalLocker(time.Second)
	clock := func() time.Time { return now }

	phaseSvc, err := phases.NewService(phases.ServiceParams{
		Repo:     phases.NewRepository(conn),
		Tx:       dbtest.TxRunner{DB: conn},
		Outbox:   publisher,
		Locker:   locker,
		Workflow: cfg,
		Logger:   logg,
	})
	require.NoError(t, err)
	resolver, err := disposition.NewService(disposition.ServiceParams{
		Repo:     disposition.NewRepository(conn),
		Tx:       dbtest.TxRunner{DB: conn},
		Phases:   phaseSvc,
		Outbox:   publisher,
		Locker:   locker,
		Workflow: cfg,
		Logger:   logg,
		Clock:    clock,
	})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(conn),
		Tx:       dbtest.TxRunner{DB: conn},
		Phases:   phaseSvc,
		Resolver: resolver,
		Outbox:   publisher,
		Logger:   logg,
		Clock:    clock,
	})
	require.NoError(t, err)
	return harness{db: conn, svc: svc, phases: phaseSvc}
}

func (h harness) create(t *testing.T, title string, target int64) *models.Campaign {
	t.Helper()
	campaign, err := h.svc.Create(context.Background(), CreateInput{
		OrganizationID:       uuid.New(),
		Title:                title,
		Description:          "Hot meals for the shelter",
		TargetAmount:         target,
		FundraisingStartDate: now.Add(-24 * time.Hour),
		FundraisingEndDate:   now.Add(10 * 24 * time.Hour),
	}, owner)
	require.NoError(t, err)
	return campaign
}

func (h harness) active(t *testing.T, target int64) *models.Campaign {
	t.Helper()
	campaign := h.create(t, "Winter meals", target)
	approved, err := h.svc.Approve(context.Background(), campaign.ID, []PhasePlan{
		{Name: "Week one", IngredientFundAmount: 300, CookingFundAmount: 100, DeliveryFundAmount: 50},
		{Name: "Week two", IngredientFundAmount: 300, CookingFundAmount: 100, DeliveryFundAmount: 50},
	}, admin)
	require.NoError(t, err)
	return approved
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t)
	valid := CreateInput{
		OrganizationID:       uuid.New(),
		Title:                "Meals",
		TargetAmount:         100,
		FundraisingStartDate: now,
		FundraisingEndDate:   now.Add(time.Hour),
	}
	cases := map[string]func(in *CreateInput){
		"missing organization": func(in *CreateInput) { in.OrganizationID = uuid.Nil },
		"blank title":          func(in *CreateInput) { in.Title = "  " },
		"zero target":          func(in *CreateInput) { in.TargetAmount = 0 },
		"missing window":       func(in *CreateInput) { in.FundraisingEndDate = time.Time{} },
		"inverted window":      func(in *CreateInput) { in.FundraisingEndDate = now.Add(-time.Hour) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := valid
			mutate(&in)
			_, err := h.svc.Create(context.Background(), in, owner)
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	campaign, err := h.svc.Create(context.Background(), valid, owner)
	require.NoError(t, err)
	assert.Equal(t, enums.CampaignStatusPending, campaign.Status)
	assert.Equal(t, owner.UserID, campaign.CreatedBy)
}

func TestApproveCreatesPhasesOnce(t *testing.T) {
	h := newHarness(t)
	campaign := h.active(t, 1000)

	assert.Equal(t, enums.CampaignStatusActive, campaign.Status)
	require.NotNil(t, campaign.ApprovedAt)
	require.Len(t, campaign.Phases, 2)
	for i, phase := range campaign.Phases {
		assert.Equal(t, i+1, phase.Position)
		assert.Equal(t, enums.PhaseStatusPlanning, phase.PhaseStatus())
	}

	again, err := h.svc.Approve(context.Background(), campaign.ID, []PhasePlan{{Name: "Other"}}, admin)
	require.NoError(t, err)
	assert.Len(t, again.Phases, 2)
}

func TestApproveRejectsOverAllocation(t *testing.T) {
	h := newHarness(t)
	campaign := h.create(t, "Small", 100)

	_, err := h.svc.Approve(context.Background(), campaign.ID, []PhasePlan{{Name: "Only", IngredientFundAmount: 80, CookingFundAmount: 30}}, admin)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.Approve(context.Background(), campaign.ID, nil, admin)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.Approve(context.Background(), uuid.New(), []PhasePlan{{Name: "Only"}}, admin)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	stored, err := h.svc.Get(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CampaignStatusPending, stored.Status)
	assert.Empty(t, stored.Phases)
}

func TestSearchPages(t *testing.T) {
	h := newHarness(t)
	for _, title := range []string{"Rice for Ward 3", "Soup kitchen", "Rice drive"} {
		h.create(t, title, 100)
	}

	got, err := h.svc.Search(context.Background(), SearchInput{Query: "rice", Page: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, int64(2), got.Total)
	assert.Equal(t, 2, got.TotalPages)

	second, err := h.svc.Search(context.Background(), SearchInput{Query: "rice", Page: 2, Limit: 1})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.NotEqual(t, got.Items[0].ID, second.Items[0].ID)

	active := enums.CampaignStatusActive
	none, err := h.svc.Search(context.Background(), SearchInput{Status: &active})
	require.NoError(t, err)
	assert.Empty(t, none.Items)
	assert.Equal(t, int64(0), none.Total)

	bogus := enums.CampaignStatus("LIVE")
	_, err = h.svc.Search(context.Background(), SearchInput{Status: &bogus})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDonationLedger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pending := h.create(t, "Not yet approved", 100)
	_, err := h.svc.RecordDonation(ctx, DonationInput{CampaignID: pending.ID, DonorRef: "d1", TransactionRef: "tx-0", Amount: 10})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	campaign := h.active(t, 1000)
	first, err := h.svc.RecordDonation(ctx, DonationInput{CampaignID: campaign.ID, DonorRef: "d1", TransactionRef: "tx-1", Amount: 250})
	require.NoError(t, err)
	assert.Equal(t, enums.DonationStatusPending, first.Status)

	replay, err := h.svc.RecordDonation(ctx, DonationInput{CampaignID: campaign.ID, DonorRef: "d1", TransactionRef: "tx-1", Amount: 250})
	require.NoError(t, err)
	assert.Equal(t, first.ID, replay.ID)

	_, err = h.svc.RecordDonation(ctx, DonationInput{CampaignID: campaign.ID, DonorRef: "d1", TransactionRef: "tx-1", Amount: 999})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = h.svc.RecordDonation(ctx, DonationInput{CampaignID: campaign.ID, DonorRef: "d2", TransactionRef: "tx-2", Amount: 400})
	require.NoError(t, err)

	settled, err := h.svc.SettleDonation(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, enums.DonationStatusSettled, settled.Status)
	require.NotNil(t, settled.SettledAt)

	_, err = h.svc.SettleDonation(ctx, "tx-1")
	require.NoError(t, err)

	failed, err := h.svc.FailDonation(ctx, "tx-2")
	require.NoError(t, err)
	assert.Equal(t, enums.DonationStatusFailed, failed.Status)

	_, err = h.svc.SettleDonation(ctx, "tx-2")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	_, err = h.svc.SettleDonation(ctx, "tx-unknown")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	stored, err := h.svc.Get(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(250), stored.ReceivedAmount)

	donations, err := h.svc.ListDonations(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Len(t, donations, 2)
}

func TestCancelForCause(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	campaign := h.active(t, 1000)

	_, err := h.svc.RecordDonation(ctx, DonationInput{CampaignID: campaign.ID, DonorRef: "d1", TransactionRef: "tx-1", Amount: 900})
	require.NoError(t, err)
	_, err = h.svc.SettleDonation(ctx, "tx-1")
	require.NoError(t, err)

	_, err = h.svc.CancelForCause(ctx, campaign.ID, "fraud", owner)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = h.svc.CancelForCause(ctx, campaign.ID, " ", admin)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	result, err := h.svc.CancelForCause(ctx, campaign.ID, "fraud", admin)
	require.NoError(t, err)
	assert.Equal(t, enums.CampaignStatusCancelled, result.Campaign.Status)
	assert.True(t, result.Campaign.CancelledForCause)
	assert.Equal(t, enums.DispositionOutcomeRefundFull, result.Disposition.Outcome)
	require.Len(t, result.Disposition.Donations, 1)
	assert.Equal(t, 100, result.Disposition.Donations[0].RefundPercent)
	for _, phase := range result.Campaign.Phases {
		assert.Equal(t, enums.PhaseStatusCancelled, phase.PhaseStatus())
	}

	again, err := h.svc.CancelForCause(ctx, campaign.ID, "fraud", admin)
	require.NoError(t, err)
	assert.Equal(t, result.Disposition.ID, again.Disposition.ID)

	_, err = h.svc.RecordDonation(ctx, DonationInput{CampaignID: campaign.ID, DonorRef: "d3", TransactionRef: "tx-3", Amount: 10})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
}

func TestSettlementAfterCancelForCauseIsRefunded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	campaign := h.active(t, 1000)

	_, err := h.svc.RecordDonation(ctx, DonationInput{CampaignID: campaign.ID, DonorRef: "d1", TransactionRef: "tx-a", Amount: 400})
	require.NoError(t, err)
	_, err = h.svc.SettleDonation(ctx, "tx-a")
	require.NoError(t, err)
	late, err := h.svc.RecordDonation(ctx, DonationInput{CampaignID: campaign.ID, DonorRef: "d2", TransactionRef: "tx-b", Amount: 100})
	require.NoError(t, err)

	result, err := h.svc.CancelForCause(ctx, campaign.ID, "policy violation", admin)
	require.NoError(t, err)
	require.Len(t, result.Disposition.Donations, 1)

	settled, err := h.svc.SettleDonation(ctx, "tx-b")
	require.NoError(t, err)
	assert.Equal(t, enums.DonationStatusSettled, settled.Status)

	stored, err := h.svc.Get(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CampaignStatusCancelled, stored.Status)
	assert.Equal(t, int64(500), stored.ReceivedAmount)

	var rows []models.DonationDisposition
	require.NoError(t, h.db.Where("disposition_id = ?", result.Disposition.ID).Order("amount DESC").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, late.ID, rows[1].DonationID)
	for _, row := range rows {
		assert.Equal(t, enums.DonationDispositionRefund, row.Action)
		assert.Equal(t, 100, row.RefundPercent)
	}

	var recorded models.CampaignDisposition
	require.NoError(t, h.db.First(&recorded, "id = ?", result.Disposition.ID).Error)
	assert.Equal(t, int64(400), recorded.ReceivedAmount)
	assert.Equal(t, enums.DispositionOutcomeRefundFull, recorded.Outcome)
}

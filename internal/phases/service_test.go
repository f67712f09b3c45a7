package phases

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodfund-backend/internal/locks"
	"github.com/angelmondragon/foodfund-backend/pkg/config"
	"github.com/angelmondragon/foodfund-backend/pkg/db/dbtest"
	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodfund-backend/pkg/errors"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	"github.com/angelmondragon/foodfund-backend/pkg/metrics"
	"github.com/angelmondragon/foodfund-backend/pkg/outbox"
)

type fixture struct {
	db     *gorm.DB
	svc    Service
	outbox *outbox.Repository
}

func newFixture(t *testing.T, cfg config.WorkflowConfig) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	outboxRepo := outbox.NewRepository(conn)
	if cfg.MaxAuditResubmissions == 0 {
		cfg.MaxAuditResubmissions = 3
	}
	if len(cfg.CancelRoles) == 0 {
		cfg.CancelRoles = []string{string(enums.MemberRolePlatformAdmin)}
	}
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(conn),
		Tx:       dbtest.TxRunner{DB: conn},
		Outbox:   outbox.NewService(outboxRepo, logg),
		Locker:   locks.NewLocalLocker(time.Second),
		Workflow: cfg,
		Logger:   logg,
		Metrics:  metrics.NewWorkflowMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return fixture{db: conn, svc: svc, outbox: outboxRepo}
}

func (f fixture) seedPhase(t *testing.T, campaignID uuid.UUID, position int, status enums.PhaseStatus) models.CampaignPhase {
	t.Helper()
	phase := models.CampaignPhase{
		ID:                   uuid.New(),
		CampaignID:           campaignID,
		Name:                 "phase",
		Position:             position,
		Status:               string(status),
		IngredientFundAmount: 1000,
		CookingFundAmount:    500,
		DeliveryFundAmount:   300,
		Version:              1,
	}
	require.NoError(t, f.db.Create(&phase).Error)
	return phase
}

func (f fixture) seedDeliveryTask(t *testing.T, phaseID uuid.UUID, status enums.DeliveryTaskStatus) {
	t.Helper()
	task := models.DeliveryTask{
		ID:              uuid.New(),
		MealBatchID:     uuid.New(),
		CampaignPhaseID: phaseID,
		AssignedTo:      uuid.New(),
		Status:          status,
	}
	require.NoError(t, f.db.Create(&task).Error)
}

func (f fixture) raise(t *testing.T, phaseID uuid.UUID, ev Event) (*Result, error) {
	t.Helper()
	var result *Result
	_, err := f.svc.Mutate(context.Background(), phaseID, 0, func(tx *gorm.DB, phase *models.CampaignPhase) error {
		res, err := f.svc.ApplyTx(context.Background(), tx, phase, ev, Actor{UserID: uuid.New(), Role: enums.MemberRolePlatformAdmin})
		result = res
		return err
	})
	return result, err
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestApplyTxPersistsTransitionAndEvents(t *testing.T) {
	f := newFixture(t, config.WorkflowConfig{})
	phase := f.seedPhase(t, uuid.New(), 1, enums.PhaseStatusAwaitingCookingDisbursement)

	source := uuid.New()
	res, err := f.raise(t, phase.ID, Event{Type: enums.PhaseEventDisbursementApproved, SourceID: source, ExpenseType: enums.ExpenseTypeCooking, Amount: 200})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, enums.PhaseStatusCooking, res.To)

	stored, err := f.svc.Get(context.Background(), phase.ID)
	require.NoError(t, err)
	assert.Equal(t, string(enums.PhaseStatusCooking), stored.Status)
	assert.Equal(t, int64(200), stored.CookingDisbursed)
	assert.Equal(t, int64(2), stored.Version)

	events, err := f.svc.Events(context.Background(), phase.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].Sequence)
	assert.Equal(t, source, events[0].SourceID)
	assert.Equal(t, string(enums.PhaseStatusAwaitingCookingDisbursement), events[0].FromStatus)

	queued, err := f.outbox.ListForAggregate(context.Background(), enums.AggregateCampaignPhase, phase.ID)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, enums.EventPhaseTransitioned, queued[0].EventType)
}

func TestApplyTxDuplicateSourceIsNoop(t *testing.T) {
	f := newFixture(t, config.WorkflowConfig{})
	phase := f.seedPhase(t, uuid.New(), 1, enums.PhaseStatusCooking)

	cooked := Event{Type: enums.PhaseEventMealBatchCooked, SourceID: uuid.New()}
	_, err := f.raise(t, phase.ID, cooked)
	require.NoError(t, err)

	res, err := f.raise(t, phase.ID, cooked)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.False(t, res.Applied)

	events, err := f.svc.Events(context.Background(), phase.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestApplyTxRejectionLeavesPhaseUntouched(t *testing.T) {
	f := newFixture(t, config.WorkflowConfig{})
	phase := f.seedPhase(t, uuid.New(), 1, enums.PhaseStatusAwaitingCookingDisbursement)

	_, err := f.raise(t, phase.ID, Event{Type: enums.PhaseEventMealBatchCooked, SourceID: uuid.New()})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	stored, err := f.svc.Get(context.Background(), phase.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	assert.Equal(t, string(enums.PhaseStatusAwaitingCookingDisbursement), stored.Status)
}

func TestMutateStaleVersion(t *testing.T) {
	f := newFixture(t, config.WorkflowConfig{})
	phase := f.seedPhase(t, uuid.New(), 1, enums.PhaseStatusCooking)

	_, err := f.svc.Mutate(context.Background(), phase.ID, 7, func(tx *gorm.DB, p *models.CampaignPhase) error {
		t.Fatal("callback must not run on a stale version")
		return nil
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStaleWrite))
}

func TestMutateUnknownPhase(t *testing.T) {
	f := newFixture(t, config.WorkflowConfig{})
	_, err := f.svc.Mutate(context.Background(), uuid.New(), 0, func(tx *gorm.DB, p *models.CampaignPhase) error { return nil })
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestConcurrentDisbursementsNeverOverdraw(t *testing.T) {
	f := newFixture(t, config.WorkflowConfig{})
	phase := f.seedPhase(t, uuid.New(), 1, enums.PhaseStatusAwaitingCookingDisbursement)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.raise(t, phase.ID, Event{Type: enums.PhaseEventDisbursementApproved, SourceID: uuid.New(), ExpenseType: enums.ExpenseTypeCooking, Amount: 400})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)

	stored, err := f.svc.Get(context.Background(), phase.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), stored.CookingDisbursed)
}

func TestCancelRequiresConfiguredRole(t *testing.T) {
	f := newFixture(t, config.WorkflowConfig{})
	phase := f.seedPhase(t, uuid.New(), 1, enums.PhaseStatusCooking)

	_, err := f.svc.Cancel(context.Background(), phase.ID, Actor{UserID: uuid.New(), Role: enums.MemberRoleKitchenStaff}, "no", 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	cancelled, err := f.svc.Cancel(context.Background(), phase.ID, Actor{UserID: uuid.New(), Role: enums.MemberRolePlatformAdmin}, "kitchen closed", 1)
	require.NoError(t, err)
	assert.Equal(t, string(enums.PhaseStatusCancelled), cancelled.Status)
	require.NotNil(t, cancelled.TerminalReason)
	assert.Equal(t, "kitchen closed", *cancelled.TerminalReason)

	again, err := f.svc.Cancel(context.Background(), phase.ID, Actor{UserID: uuid.New(), Role: enums.MemberRolePlatformAdmin}, "again", 0)
	require.NoError(t, err)
	assert.Equal(t, cancelled.Version, again.Version)
}

func TestFailedPhaseRejectsCancel(t *testing.T) {
	f := newFixture(t, config.WorkflowConfig{})
	phase := f.seedPhase(t, uuid.New(), 1, enums.PhaseStatusFailed)

	_, err := f.svc.Cancel(context.Background(), phase.ID, Actor{UserID: uuid.New(), Role: enums.MemberRolePlatformAdmin}, "late", 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePhaseFailed))
}

func TestCorrectStatusOnlyForUndetermined(t *testing.T) {
	f := newFixture(t, config.WorkflowConfig{})
	admin := Actor{UserID: uuid.New(), Role: enums.MemberRolePlatformAdmin}

	garbled := f.seedPhase(t, uuid.New(), 1, enums.PhaseStatus("SIMMERING"))
	loaded, err := f.svc.Get(context.Background(), garbled.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PhaseStatusUndetermined, loaded.PhaseStatus())

	corrected, err := f.svc.CorrectStatus(context.Background(), garbled.ID, enums.PhaseStatusCooking, admin, 0)
	require.NoError(t, err)
	assert.Equal(t, string(enums.PhaseStatusCooking), corrected.Status)

	_, err = f.svc.CorrectStatus(context.Background(), garbled.ID, enums.PhaseStatusDelivery, admin, 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.CorrectStatus(context.Background(), garbled.ID, enums.PhaseStatusUndetermined, admin, 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSequentialPhasesDeferCompletion(t *testing.T) {
	f := newFixture(t, config.WorkflowConfig{SequentialPhases: true})
	campaignID := uuid.New()
	first := f.seedPhase(t, campaignID, 1, enums.PhaseStatusCooking)
	second := f.seedPhase(t, campaignID, 2, enums.PhaseStatusDelivery)
	f.seedDeliveryTask(t, second.ID, enums.DeliveryTaskStatusDelivered)

	res, err := f.raise(t, second.ID, Event{Type: enums.PhaseEventDeliveriesCompleted, SourceID: uuid.New()})
	require.NoError(t, err)
	assert.True(t, res.Deferred)

	stored, err := f.svc.Get(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, string(enums.PhaseStatusDelivery), stored.Status)

	_, err = f.svc.Terminate(context.Background(), first.ID, enums.PhaseEventCancelled, SystemActor, "campaign wound down")
	require.NoError(t, err)

	stored, err = f.svc.Get(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, string(enums.PhaseStatusCompleted), stored.Status)
	require.NotNil(t, stored.DeliveryDate)
}

func TestIndependentPhasesCompleteFreely(t *testing.T) {
	f := newFixture(t, config.WorkflowConfig{})
	campaignID := uuid.New()
	f.seedPhase(t, campaignID, 1, enums.PhaseStatusCooking)
	second := f.seedPhase(t, campaignID, 2, enums.PhaseStatusDelivery)

	res, err := f.raise(t, second.ID, Event{Type: enums.PhaseEventDeliveriesCompleted, SourceID: uuid.New()})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, enums.PhaseStatusCompleted, res.To)
}

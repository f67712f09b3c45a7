package deliveries

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodfund-backend/internal/locks"
	"github.com/angelmondragon/foodfund-backend/internal/mealbatches"
	"github.com/angelmondragon/foodfund-backend/internal/phases"
	"github.com/angelmondragon/foodfund-backend/pkg/config"
	"github.com/angelmondragon/foodfund-backend/pkg/db/dbtest"
	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodfund-backend/pkg/errors"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	"github.com/angelmondragon/foodfund-backend/pkg/outbox"
)

var admin = phases.Actor{UserID: uuid.New(), Role: enums.MemberRoleOrganizationAdmin}

type harness struct {
	db     *gorm.DB
	svc    *service
	phases phases.Service
	clock  time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	publisher := outbox.NewService(outbox.NewRepository(conn), logg)
	phaseSvc, err := phases.NewService(phases.ServiceParams{
		Repo:     phases.NewRepository(conn),
		Tx:       dbtest.TxRunner{DB: conn},
		Outbox:   publisher,
		Locker:   locks.NewLocalLocker(time.Second),
		Workflow: config.WorkflowConfig{MaxAuditResubmissions: 3},
		Logger:   logg,
	})
	require.NoError(t, err)
	batchReader, err := mealbatches.NewService(mealbatches.NewRepository(conn), stubCatalog{}, phaseSvc, publisher, logg)
	require.NoError(t, err)
	svc, err := NewService(NewRepository(conn), batchReader, phaseSvc, publisher, logg)
	require.NoError(t, err)

	h := &harness{db: conn, svc: svc.(*service), phases: phaseSvc, clock: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	h.svc.now = func() time.Time {
		h.clock = h.clock.Add(time.Minute)
		return h.clock
	}
	return h
}

type stubCatalog struct{}

func (stubCatalog) Get(context.Context, uuid.UUID) (*models.IngredientRequest, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "not found")
}

func (stubCatalog) Items(context.Context, []uuid.UUID) ([]models.IngredientRequestItem, error) {
	return nil, nil
}

func (h *harness) seed(t *testing.T, status enums.PhaseStatus, batchStatus enums.MealBatchStatus) (models.CampaignPhase, models.MealBatch) {
	t.Helper()
	phase := models.CampaignPhase{ID: uuid.New(), CampaignID: uuid.New(), Name: "Week 1", Position: 1, Status: string(status), Version: 1}
	require.NoError(t, h.db.Create(&phase).Error)
	batch := models.MealBatch{ID: uuid.New(), CampaignPhaseID: phase.ID, PreparedBy: uuid.New(), FoodName: "Fried rice", Quantity: 100, Status: batchStatus}
	require.NoError(t, h.db.Create(&batch).Error)
	return phase, batch
}

func staff() phases.Actor {
	return phases.Actor{UserID: uuid.New(), Role: enums.MemberRoleDeliveryStaff}
}

func (h *harness) deliver(t *testing.T, task *models.DeliveryTask, actor phases.Actor) *models.DeliveryTask {
	t.Helper()
	var err error
	for _, status := range []enums.DeliveryTaskStatus{enums.DeliveryTaskStatusAccepted, enums.DeliveryTaskStatusOutForDelivery, enums.DeliveryTaskStatusDelivered} {
		task, err = h.svc.UpdateStatus(context.Background(), task.ID, StatusInput{Status: status}, actor)
		require.NoError(t, err)
	}
	return task
}

func TestAssignRequiresReadyBatch(t *testing.T) {
	h := newHarness(t)
	_, batch := h.seed(t, enums.PhaseStatusCooking, enums.MealBatchStatusPreparing)

	_, err := h.svc.Assign(context.Background(), AssignInput{MealBatchID: batch.ID, AssignedTo: uuid.New()}, admin)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	_, err = h.svc.Assign(context.Background(), AssignInput{MealBatchID: uuid.New(), AssignedTo: uuid.New()}, admin)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestLastDeliveryCompletesPhase(t *testing.T) {
	h := newHarness(t)
	phase, batch := h.seed(t, enums.PhaseStatusDelivery, enums.MealBatchStatusReady)
	alice, bob := staff(), staff()

	first, err := h.svc.Assign(context.Background(), AssignInput{MealBatchID: batch.ID, AssignedTo: alice.UserID, Note: "north route"}, admin)
	require.NoError(t, err)
	second, err := h.svc.Assign(context.Background(), AssignInput{MealBatchID: batch.ID, AssignedTo: bob.UserID}, admin)
	require.NoError(t, err)

	h.deliver(t, first, alice)
	stored, err := h.phases.Get(context.Background(), phase.ID)
	require.NoError(t, err)
	assert.Equal(t, string(enums.PhaseStatusDelivery), stored.Status)
	assert.Nil(t, stored.DeliveryDate)

	delivered := h.deliver(t, second, bob)
	require.NotNil(t, delivered.DeliveredAt)

	stored, err = h.phases.Get(context.Background(), phase.ID)
	require.NoError(t, err)
	assert.Equal(t, string(enums.PhaseStatusCompleted), stored.Status)
	require.NotNil(t, stored.DeliveryDate)
	assert.True(t, stored.DeliveryDate.Equal(*delivered.DeliveredAt))

	var reloaded models.MealBatch
	require.NoError(t, h.db.First(&reloaded, "id = ?", batch.ID).Error)
	assert.Equal(t, enums.MealBatchStatusDelivered, reloaded.Status)

	loaded, err := h.svc.Get(context.Background(), first.ID)
	require.NoError(t, err)
	require.Len(t, loaded.StatusLogs, 4)
	assert.Equal(t, enums.DeliveryTaskStatusPending, loaded.StatusLogs[0].Status)
	require.NotNil(t, loaded.StatusLogs[0].Note)
	assert.Equal(t, "north route", *loaded.StatusLogs[0].Note)
	assert.Equal(t, enums.DeliveryTaskStatusDelivered, loaded.StatusLogs[3].Status)
	assert.Equal(t, alice.UserID, loaded.StatusLogs[3].ChangedBy)
}

func TestDeliveryWaitsForDeliveryFunds(t *testing.T) {
	h := newHarness(t)
	_, batch := h.seed(t, enums.PhaseStatusAwaitingDeliveryDisbursement, enums.MealBatchStatusReady)
	driver := staff()

	task, err := h.svc.Assign(context.Background(), AssignInput{MealBatchID: batch.ID, AssignedTo: driver.UserID}, admin)
	require.NoError(t, err)
	_, err = h.svc.UpdateStatus(context.Background(), task.ID, StatusInput{Status: enums.DeliveryTaskStatusAccepted}, driver)
	require.NoError(t, err)

	_, err = h.svc.UpdateStatus(context.Background(), task.ID, StatusInput{Status: enums.DeliveryTaskStatusOutForDelivery}, driver)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
}

func TestStaffCanOnlyMoveOwnTasks(t *testing.T) {
	h := newHarness(t)
	_, batch := h.seed(t, enums.PhaseStatusDelivery, enums.MealBatchStatusReady)
	owner, other := staff(), staff()

	task, err := h.svc.Assign(context.Background(), AssignInput{MealBatchID: batch.ID, AssignedTo: owner.UserID}, admin)
	require.NoError(t, err)

	_, err = h.svc.UpdateStatus(context.Background(), task.ID, StatusInput{Status: enums.DeliveryTaskStatusAccepted}, other)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = h.svc.UpdateStatus(context.Background(), task.ID, StatusInput{Status: enums.DeliveryTaskStatusDelivered}, owner)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
}

func TestRejectedTaskBlocksCompletionUntilReassigned(t *testing.T) {
	h := newHarness(t)
	phase, batch := h.seed(t, enums.PhaseStatusDelivery, enums.MealBatchStatusReady)
	first, second := staff(), staff()

	task, err := h.svc.Assign(context.Background(), AssignInput{MealBatchID: batch.ID, AssignedTo: first.UserID}, admin)
	require.NoError(t, err)
	rejected, err := h.svc.UpdateStatus(context.Background(), task.ID, StatusInput{Status: enums.DeliveryTaskStatusRejected, Note: "vehicle broke"}, first)
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryTaskStatusRejected, rejected.Status)

	stored, err := h.phases.Get(context.Background(), phase.ID)
	require.NoError(t, err)
	assert.Equal(t, string(enums.PhaseStatusDelivery), stored.Status)

	reassigned, err := h.svc.Reassign(context.Background(), task.ID, second.UserID, admin, "")
	require.NoError(t, err)
	assert.Equal(t, second.UserID, reassigned.AssignedTo)
	assert.Equal(t, enums.DeliveryTaskStatusPending, reassigned.Status)

	h.deliver(t, reassigned, second)
	stored, err = h.phases.Get(context.Background(), phase.ID)
	require.NoError(t, err)
	assert.Equal(t, string(enums.PhaseStatusCompleted), stored.Status)

	mine, err := h.svc.ListMine(context.Background(), second.UserID, 10, 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	none, err := h.svc.ListMine(context.Background(), first.UserID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListPagesWithCursor(t *testing.T) {
	h := newHarness(t)
	phase, batch := h.seed(t, enums.PhaseStatusDelivery, enums.MealBatchStatusReady)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		task, err := h.svc.Assign(context.Background(), AssignInput{MealBatchID: batch.ID, AssignedTo: uuid.New()}, admin)
		require.NoError(t, err)
		ids = append(ids, task.ID)
	}

	page, err := h.svc.List(context.Background(), ListParams{Filter: Filter{PhaseID: &phase.ID}, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, ids[2], page.Items[0].ID)
	assert.Equal(t, ids[1], page.Items[1].ID)
	require.NotEmpty(t, page.Cursor)

	rest, err := h.svc.List(context.Background(), ListParams{Filter: Filter{PhaseID: &phase.ID}, Limit: 2, Cursor: page.Cursor})
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	assert.Equal(t, ids[0], rest.Items[0].ID)
	assert.Empty(t, rest.Cursor)

	_, err = h.svc.List(context.Background(), ListParams{Cursor: "not-a-cursor"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

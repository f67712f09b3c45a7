package deliveries

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/foodfund-backend/api/middleware"
	internaldeliveries "github.com/angelmondragon/foodfund-backend/internal/deliveries"
	internalphases "github.com/angelmondragon/foodfund-backend/internal/phases"
	pkgAuth "github.com/angelmondragon/foodfund-backend/pkg/auth"
	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodfund-backend/pkg/errors"
)

type stubDeliveryService struct {
	internaldeliveries.Service
	assign     internaldeliveries.AssignInput
	reassignTo uuid.UUID
	status     internaldeliveries.StatusInput
	params     internaldeliveries.ListParams
	mineUser   uuid.UUID
	actor      internalphases.Actor
	err        error
}

func (s *stubDeliveryService) Assign(ctx context.Context, input internaldeliveries.AssignInput, actor internalphases.Actor) (*models.DeliveryTask, error) {
	s.assign, s.actor = input, actor
	if s.err != nil {
		return nil, s.err
	}
	return &models.DeliveryTask{ID: uuid.New(), MealBatchID: input.MealBatchID, AssignedTo: input.AssignedTo, Status: enums.DeliveryTaskStatusPending}, nil
}

func (s *stubDeliveryService) Reassign(ctx context.Context, id, assignedTo uuid.UUID, actor internalphases.Actor, note string) (*models.DeliveryTask, error) {
	s.reassignTo = assignedTo
	return &models.DeliveryTask{ID: id, AssignedTo: assignedTo}, s.err
}

func (s *stubDeliveryService) UpdateStatus(ctx context.Context, id uuid.UUID, input internaldeliveries.StatusInput, actor internalphases.Actor) (*models.DeliveryTask, error) {
	s.status, s.actor = input, actor
	if s.err != nil {
		return nil, s.err
	}
	return &models.DeliveryTask{ID: id, Status: input.Status}, nil
}

func (s *stubDeliveryService) List(ctx context.Context, params internaldeliveries.ListParams) (*internaldeliveries.ListResult, error) {
	s.params = params
	return &internaldeliveries.ListResult{Cursor: "next"}, s.err
}

func (s *stubDeliveryService) ListMine(ctx context.Context, assignedTo uuid.UUID, limit, offset int) ([]models.DeliveryTask, error) {
	s.mineUser = assignedTo
	return nil, s.err
}

func deliveryRequest(userID uuid.UUID, role enums.MemberRole, method, target, body string, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := middleware.WithClaims(req.Context(), &pkgAuth.AccessTokenClaims{UserID: userID, Role: role})
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rctx))
}

func TestAssignDeliveryTask(t *testing.T) {
	svc := &stubDeliveryService{}
	batchID := uuid.New()
	staffID := uuid.New()
	body := `{"mealBatchId":"` + batchID.String() + `","deliveryStaffId":"` + staffID.String() + `","note":"north district"}`
	rec := httptest.NewRecorder()
	Assign(svc, nil).ServeHTTP(rec, deliveryRequest(uuid.New(), enums.MemberRoleOrganizationAdmin, http.MethodPost, "/api/v1/delivery-tasks", body, nil))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, batchID, svc.assign.MealBatchID)
	assert.Equal(t, staffID, svc.assign.AssignedTo)
	assert.Equal(t, "north district", svc.assign.Note)
	assert.Equal(t, enums.MemberRoleOrganizationAdmin, svc.actor.Role)
}

func TestAssignMapsBatchNotReady(t *testing.T) {
	svc := &stubDeliveryService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "meal batch is not ready")}
	body := `{"mealBatchId":"` + uuid.NewString() + `","deliveryStaffId":"` + uuid.NewString() + `"}`
	rec := httptest.NewRecorder()
	Assign(svc, nil).ServeHTTP(rec, deliveryRequest(uuid.New(), enums.MemberRoleOrganizationAdmin, http.MethodPost, "/api/v1/delivery-tasks", body, nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestReassignDeliveryTask(t *testing.T) {
	svc := &stubDeliveryService{}
	id := uuid.NewString()
	staffID := uuid.New()
	rec := httptest.NewRecorder()
	Reassign(svc, nil).ServeHTTP(rec, deliveryRequest(uuid.New(), enums.MemberRoleOrganizationAdmin, http.MethodPost, "/api/v1/delivery-tasks/"+id+"/reassign", `{"deliveryStaffId":"`+staffID.String()+`"}`, map[string]string{"id": id}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, staffID, svc.reassignTo)
}

func TestUpdateDeliveryStatus(t *testing.T) {
	svc := &stubDeliveryService{}
	id := uuid.NewString()
	staffID := uuid.New()
	rec := httptest.NewRecorder()
	UpdateStatus(svc, nil).ServeHTTP(rec, deliveryRequest(staffID, enums.MemberRoleDeliveryStaff, http.MethodPatch, "/api/v1/delivery-tasks/"+id+"/status", `{"status":"OUT_FOR_DELIVERY"}`, map[string]string{"id": id}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, enums.DeliveryTaskStatusOutForDelivery, svc.status.Status)
	assert.Equal(t, staffID, svc.actor.UserID)
}

func TestUpdateDeliveryStatusForbiddenForOtherStaff(t *testing.T) {
	svc := &stubDeliveryService{err: pkgerrors.New(pkgerrors.CodeForbidden, "task is assigned to another staff member")}
	id := uuid.NewString()
	rec := httptest.NewRecorder()
	UpdateStatus(svc, nil).ServeHTTP(rec, deliveryRequest(uuid.New(), enums.MemberRoleDeliveryStaff, http.MethodPatch, "/api/v1/delivery-tasks/"+id+"/status", `{"status":"DELIVERED"}`, map[string]string{"id": id}))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListDeliveryTasksUsesCursor(t *testing.T) {
	svc := &stubDeliveryService{}
	phaseID := uuid.New()
	rec := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(rec, deliveryRequest(uuid.New(), enums.MemberRolePlatformAdmin, http.MethodGet, "/api/v1/delivery-tasks?campaignPhaseId="+phaseID.String()+"&status=PENDING&cursor=abc&limit=10", "", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.params.PhaseID)
	assert.Equal(t, phaseID, *svc.params.PhaseID)
	require.NotNil(t, svc.params.Status)
	assert.Equal(t, enums.DeliveryTaskStatusPending, *svc.params.Status)
	assert.Equal(t, "abc", svc.params.Cursor)
	assert.Equal(t, 10, svc.params.Limit)
	assert.Contains(t, rec.Body.String(), `"cursor":"next"`)
}

func TestListMineUsesCaller(t *testing.T) {
	svc := &stubDeliveryService{}
	staffID := uuid.New()
	rec := httptest.NewRecorder()
	ListMine(svc, nil).ServeHTTP(rec, deliveryRequest(staffID, enums.MemberRoleDeliveryStaff, http.MethodGet, "/api/v1/delivery-tasks/mine", "", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, staffID, svc.mineUser)
}

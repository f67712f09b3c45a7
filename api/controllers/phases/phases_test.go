package phases

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
	internalphases "github.com/angelmondragon/foodfund-backend/internal/phases"
	pkgAuth "github.com/angelmondragon/foodfund-backend/pkg/auth"
	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodfund-backend/pkg/errors"
)

// stubPhaseService overrides the handful of methods the handlers call.
type stubPhaseService struct {
	internalphases.Service
	actor   internalphases.Actor
	reason  string
	version int64
	status  enums.PhaseStatus
	err     error
}

func (s *stubPhaseService) Get(ctx context.Context, id uuid.UUID) (*models.CampaignPhase, error) {
	return &models.CampaignPhase{ID: id}, s.err
}

func (s *stubPhaseService) Events(ctx context.Context, id uuid.UUID) ([]models.PhaseEvent, error) {
	return []models.PhaseEvent{{CampaignPhaseID: id}}, s.err
}

func (s *stubPhaseService) Cancel(ctx context.Context, id uuid.UUID, actor internalphases.Actor, reason string, expectedVersion int64) (*models.CampaignPhase, error) {
	s.actor, s.reason, s.version = actor, reason, expectedVersion
	if s.err != nil {
		return nil, s.err
	}
	return &models.CampaignPhase{ID: id, Status: string(enums.PhaseStatusCancelled)}, nil
}

func (s *stubPhaseService) Fail(ctx context.Context, id uuid.UUID, actor internalphases.Actor, reason string, expectedVersion int64) (*models.CampaignPhase, error) {
	s.actor, s.reason, s.version = actor, reason, expectedVersion
	return &models.CampaignPhase{ID: id, Status: string(enums.PhaseStatusFailed)}, s.err
}

func (s *stubPhaseService) CorrectStatus(ctx context.Context, id uuid.UUID, status enums.PhaseStatus, actor internalphases.Actor, expectedVersion int64) (*models.CampaignPhase, error) {
	s.status, s.actor, s.version = status, actor, expectedVersion
	return &models.CampaignPhase{ID: id, Status: string(status)}, s.err
}

func phaseRequest(method, body string, role enums.MemberRole, phaseID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, "/api/v1/phases/"+phaseID.String(), strings.NewReader(body))
	claims := &pkgAuth.AccessTokenClaims{UserID: uuid.New(), Role: role}
	ctx := middleware.WithClaims(req.Context(), claims)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("phaseId", phaseID.String())
	return req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rctx))
}

func TestGetPhase(t *testing.T) {
	rec := httptest.NewRecorder()
	Get(&stubPhaseService{}, nil).ServeHTTP(rec, phaseRequest(http.MethodGet, "", enums.MemberRoleDonor, uuid.New()))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestEventsMapsNotFound(t *testing.T) {
	svc := &stubPhaseService{err: pkgerrors.New(pkgerrors.CodeNotFound, "phase not found")}
	rec := httptest.NewRecorder()
	Events(svc, nil).ServeHTTP(rec, phaseRequest(http.MethodGet, "", enums.MemberRoleDonor, uuid.New()))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelPassesReasonAndVersion(t *testing.T) {
	svc := &stubPhaseService{}
	rec := httptest.NewRecorder()
	req := phaseRequest(http.MethodPost, `{"reason":"kitchen closed","expectedVersion":4}`, enums.MemberRolePlatformAdmin, uuid.New())

	Cancel(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "kitchen closed", svc.reason)
	assert.Equal(t, int64(4), svc.version)
	assert.Equal(t, enums.MemberRolePlatformAdmin, svc.actor.Role)
}

func TestCancelSurfacesPolicyRejection(t *testing.T) {
	svc := &stubPhaseService{err: pkgerrors.New(pkgerrors.CodeForbidden, "role may not cancel phases")}
	rec := httptest.NewRecorder()
	req := phaseRequest(http.MethodPost, `{"reason":"no"}`, enums.MemberRoleKitchenStaff, uuid.New())

	Cancel(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestFailRequiresReason(t *testing.T) {
	rec := httptest.NewRecorder()
	req := phaseRequest(http.MethodPost, `{"expectedVersion":1}`, enums.MemberRolePlatformAdmin, uuid.New())

	Fail(&stubPhaseService{}, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCorrectStatusParsesStatus(t *testing.T) {
	svc := &stubPhaseService{}
	rec := httptest.NewRecorder()
	req := phaseRequest(http.MethodPost, `{"status":"COOKING","expectedVersion":2}`, enums.MemberRolePlatformAdmin, uuid.New())

	CorrectStatus(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, enums.PhaseStatusCooking, svc.status)
	assert.Equal(t, int64(2), svc.version)
}

func TestCorrectStatusRejectsUnknownStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	req := phaseRequest(http.MethodPost, `{"status":"BAKING"}`, enums.MemberRolePlatformAdmin, uuid.New())

	CorrectStatus(&stubPhaseService{}, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

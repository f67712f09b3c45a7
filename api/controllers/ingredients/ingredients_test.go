package ingredients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/foodfund-backend/api/middleware"
	internalingredients "github.com/angelmondragon/foodfund-backend/internal/ingredients"
	internalphases "github.com/angelmondragon/foodfund-backend/internal/phases"
	pkgAuth "github.com/angelmondragon/foodfund-backend/pkg/auth"
	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodfund-backend/pkg/errors"
)

type stubIngredientService struct {
	internalingredients.Service
	created internalingredients.CreateInput
	filter  internalingredients.ListFilter
	actor   internalphases.Actor
	err     error
}

func (s *stubIngredientService) Create(ctx context.Context, input internalingredients.CreateInput, actor internalphases.Actor) (*models.IngredientRequest, error) {
	s.created, s.actor = input, actor
	if s.err != nil {
		return nil, s.err
	}
	return &models.IngredientRequest{ID: uuid.New(), CampaignPhaseID: input.PhaseID}, nil
}

func (s *stubIngredientService) List(ctx context.Context, filter internalingredients.ListFilter) ([]models.IngredientRequest, error) {
	s.filter = filter
	return []models.IngredientRequest{}, s.err
}

func (s *stubIngredientService) Get(ctx context.Context, id uuid.UUID) (*models.IngredientRequest, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.IngredientRequest{ID: id}, nil
}

func kitchenRequest(method, target, body string, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := middleware.WithClaims(req.Context(), &pkgAuth.AccessTokenClaims{UserID: uuid.New(), Role: enums.MemberRoleKitchenStaff})
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rctx))
}

func TestCreateIngredientRequest(t *testing.T) {
	svc := &stubIngredientService{}
	phaseID := uuid.New()
	body := `{"campaignPhaseId":"` + phaseID.String() + `","totalCost":150000,"items":[` +
		`{"name":"rice","quantity":"12.5","unit":"kg","estimatedUnitPrice":10000,"estimatedTotalPrice":125000,"supplier":"market"},` +
		`{"name":"salt","quantity":1,"unit":"kg","estimatedUnitPrice":25000,"estimatedTotalPrice":25000}]}`

	rec := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(rec, kitchenRequest(http.MethodPost, "/api/v1/ingredient-requests", body, nil))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, phaseID, svc.created.PhaseID)
	assert.Equal(t, int64(150000), svc.created.TotalCost)
	require.Len(t, svc.created.Items, 2)
	assert.True(t, svc.created.Items[0].Quantity.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, enums.MemberRoleKitchenStaff, svc.actor.Role)
}

func TestCreateIngredientRequestNeedsItems(t *testing.T) {
	svc := &stubIngredientService{}
	body := `{"campaignPhaseId":"` + uuid.NewString() + `","totalCost":100,"items":[]}`
	rec := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(rec, kitchenRequest(http.MethodPost, "/api/v1/ingredient-requests", body, nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateIngredientRequestMapsPendingConflict(t *testing.T) {
	svc := &stubIngredientService{err: pkgerrors.New(pkgerrors.CodeConflict, "phase already has a pending ingredient request")}
	body := `{"campaignPhaseId":"` + uuid.NewString() + `","totalCost":100,"items":[{"name":"rice","quantity":"1","unit":"kg","estimatedUnitPrice":100,"estimatedTotalPrice":100}]}`
	rec := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(rec, kitchenRequest(http.MethodPost, "/api/v1/ingredient-requests", body, nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestListIngredientRequestsParsesFilters(t *testing.T) {
	svc := &stubIngredientService{}
	phaseID := uuid.New()
	target := "/api/v1/ingredient-requests?campaignPhaseId=" + phaseID.String() + "&status=PENDING&limit=5&offset=10"
	rec := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(rec, kitchenRequest(http.MethodGet, target, "", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.filter.PhaseID)
	assert.Equal(t, phaseID, *svc.filter.PhaseID)
	require.NotNil(t, svc.filter.Status)
	assert.Equal(t, enums.ReviewStatusPending, *svc.filter.Status)
	assert.Equal(t, 5, svc.filter.Limit)
	assert.Equal(t, 10, svc.filter.Offset)
}

func TestListIngredientRequestsRejectsUnknownStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	List(&stubIngredientService{}, nil).ServeHTTP(rec, kitchenRequest(http.MethodGet, "/api/v1/ingredient-requests?status=MAYBE", "", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetIngredientRequestNotFound(t *testing.T) {
	svc := &stubIngredientService{err: pkgerrors.New(pkgerrors.CodeNotFound, "ingredient request not found")}
	id := uuid.NewString()
	rec := httptest.NewRecorder()
	Get(svc, nil).ServeHTTP(rec, kitchenRequest(http.MethodGet, "/api/v1/ingredient-requests/"+id, "", map[string]string{"id": id}))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

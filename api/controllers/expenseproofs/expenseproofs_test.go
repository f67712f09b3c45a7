package expenseproofs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/foodfund-backend/api/middleware"
	internalexpenseproofs "github.com/angelmondragon/foodfund-backend/internal/expenseproofs"
	internalphases "github.com/angelmondragon/foodfund-backend/internal/phases"
	pkgAuth "github.com/angelmondragon/foodfund-backend/pkg/auth"
	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodfund-backend/pkg/errors"
)

type stubProofService struct {
	internalexpenseproofs.Service
	input       internalexpenseproofs.CreateInput
	submittedBy uuid.UUID
	requestID   *uuid.UUID
	err         error
}

func (s *stubProofService) Create(ctx context.Context, input internalexpenseproofs.CreateInput, actor internalphases.Actor) (*models.ExpenseProof, error) {
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return &models.ExpenseProof{ID: uuid.New(), OperationRequestID: input.RequestID, Amount: input.Amount}, nil
}

func (s *stubProofService) ListMine(ctx context.Context, submittedBy uuid.UUID, requestID *uuid.UUID) ([]models.ExpenseProof, error) {
	s.submittedBy, s.requestID = submittedBy, requestID
	return []models.ExpenseProof{}, s.err
}

func (s *stubProofService) Reject(ctx context.Context, id uuid.UUID, actor internalphases.Actor, note string) (*internalexpenseproofs.ReviewResult, error) {
	return &internalexpenseproofs.ReviewResult{
		Proof:         &models.ExpenseProof{ID: id, Status: enums.ReviewStatusRejected},
		Resubmissions: 1,
		PhaseStatus:   enums.PhaseStatusAwaitingAudit,
	}, s.err
}

func proofRequest(userID uuid.UUID, role enums.MemberRole, method, target, body string, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := middleware.WithClaims(req.Context(), &pkgAuth.AccessTokenClaims{UserID: userID, Role: role})
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rctx))
}

func TestCreateExpenseProof(t *testing.T) {
	svc := &stubProofService{}
	requestID := uuid.New()
	body := `{"requestId":"` + requestID.String() + `","media":["receipts/a.jpg","receipts/b.jpg"],"amount":120000}`
	rec := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(rec, proofRequest(uuid.New(), enums.MemberRoleKitchenStaff, http.MethodPost, "/api/v1/expense-proofs", body, nil))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, requestID, svc.input.RequestID)
	assert.Len(t, svc.input.Media, 2)
	assert.Equal(t, int64(120000), svc.input.Amount)
}

func TestCreateExpenseProofRequiresMedia(t *testing.T) {
	body := `{"requestId":"` + uuid.NewString() + `","media":[],"amount":1}`
	rec := httptest.NewRecorder()
	Create(&stubProofService{}, nil).ServeHTTP(rec, proofRequest(uuid.New(), enums.MemberRoleKitchenStaff, http.MethodPost, "/api/v1/expense-proofs", body, nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateExpenseProofMapsStateConflict(t *testing.T) {
	svc := &stubProofService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "request is not approved")}
	body := `{"requestId":"` + uuid.NewString() + `","media":["r.jpg"],"amount":1}`
	rec := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(rec, proofRequest(uuid.New(), enums.MemberRoleKitchenStaff, http.MethodPost, "/api/v1/expense-proofs", body, nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestListMineFiltersByRequest(t *testing.T) {
	svc := &stubProofService{}
	userID := uuid.New()
	requestID := uuid.New()
	rec := httptest.NewRecorder()
	ListMine(svc, nil).ServeHTTP(rec, proofRequest(userID, enums.MemberRoleKitchenStaff, http.MethodGet, "/api/v1/expense-proofs/mine?requestId="+requestID.String(), "", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, svc.submittedBy)
	require.NotNil(t, svc.requestID)
	assert.Equal(t, requestID, *svc.requestID)
}

func TestRejectReturnsReviewResult(t *testing.T) {
	id := uuid.NewString()
	rec := httptest.NewRecorder()
	Reject(&stubProofService{}, nil).ServeHTTP(rec, proofRequest(uuid.New(), enums.MemberRolePlatformAdmin, http.MethodPost, "/api/v1/admin/expense-proofs/"+id+"/reject", `{"note":"blurry"}`, map[string]string{"id": id}))

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data internalexpenseproofs.ReviewResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, 1, envelope.Data.Resubmissions)
	assert.Equal(t, enums.PhaseStatusAwaitingAudit, envelope.Data.PhaseStatus)
}

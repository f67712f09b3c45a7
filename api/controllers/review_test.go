package controllers

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
	"github.com/angelmondragon/foodfund-backend/internal/phases"
	"github.com/angelmondragon/foodfund-backend/pkg/auth"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodfund-backend/pkg/errors"
)

func reviewRequestFor(id, body string, claims *auth.AccessTokenClaims) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/x/"+id+"/approve", nil)
	} else {
		req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/x/"+id+"/approve", strings.NewReader(body))
	}
	ctx := req.Context()
	if claims != nil {
		ctx = middleware.WithClaims(ctx, claims)
	}
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rctx))
}

func TestReviewPassesNoteAndActor(t *testing.T) {
	adminID := uuid.New()
	targetID := uuid.New()
	var gotID uuid.UUID
	var gotActor phases.Actor
	var gotNote string
	decide := func(ctx context.Context, id uuid.UUID, actor phases.Actor, note string) (string, error) {
		gotID, gotActor, gotNote = id, actor, note
		return "ok", nil
	}

	rec := httptest.NewRecorder()
	claims := &auth.AccessTokenClaims{UserID: adminID, Role: enums.MemberRolePlatformAdmin}
	Review(nil, decide).ServeHTTP(rec, reviewRequestFor(targetID.String(), `{"note":"looks fine"}`, claims))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, targetID, gotID)
	assert.Equal(t, adminID, gotActor.UserID)
	assert.Equal(t, enums.MemberRolePlatformAdmin, gotActor.Role)
	assert.Equal(t, "looks fine", gotNote)
}

func TestReviewAllowsEmptyBody(t *testing.T) {
	called := false
	decide := func(ctx context.Context, id uuid.UUID, actor phases.Actor, note string) (string, error) {
		called = true
		return "ok", nil
	}
	rec := httptest.NewRecorder()
	claims := &auth.AccessTokenClaims{UserID: uuid.New(), Role: enums.MemberRolePlatformAdmin}
	Review(nil, decide).ServeHTTP(rec, reviewRequestFor(uuid.NewString(), "", claims))

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, called)
}

func TestReviewRejectsBadID(t *testing.T) {
	decide := func(ctx context.Context, id uuid.UUID, actor phases.Actor, note string) (string, error) {
		t.Fatal("decision should not run")
		return "", nil
	}
	rec := httptest.NewRecorder()
	claims := &auth.AccessTokenClaims{UserID: uuid.New(), Role: enums.MemberRolePlatformAdmin}
	Review(nil, decide).ServeHTTP(rec, reviewRequestFor("nope", "", claims))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReviewRequiresActor(t *testing.T) {
	decide := func(ctx context.Context, id uuid.UUID, actor phases.Actor, note string) (string, error) {
		return "", nil
	}
	rec := httptest.NewRecorder()
	Review(nil, decide).ServeHTTP(rec, reviewRequestFor(uuid.NewString(), "", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReviewMapsWorkflowErrors(t *testing.T) {
	decide := func(ctx context.Context, id uuid.UUID, actor phases.Actor, note string) (string, error) {
		return "", pkgerrors.New(pkgerrors.CodeInvalidTransition, "phase is not awaiting review")
	}
	rec := httptest.NewRecorder()
	claims := &auth.AccessTokenClaims{UserID: uuid.New(), Role: enums.MemberRolePlatformAdmin}
	Review(nil, decide).ServeHTTP(rec, reviewRequestFor(uuid.NewString(), "", claims))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "phase is not awaiting review")
}

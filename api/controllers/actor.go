package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodfund-backend/api/middleware"
	"github.com/angelmondragon/foodfund-backend/internal/phases"
	pkgerrors "github.com/angelmondragon/foodfund-backend/pkg/errors"
)

// ActorFromRequest builds the workflow actor from the authenticated request.
func ActorFromRequest(r *http.Request) (phases.Actor, error) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok || id.UserID == uuid.Nil {
		return phases.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user id")
	}
	if !id.Role.IsValid() {
		return phases.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing role")
	}
	return phases.Actor{UserID: id.UserID, OrganizationID: id.OrganizationID, Role: id.Role}, nil
}

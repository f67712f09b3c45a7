package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodfund-backend/api/responses"
	"github.com/angelmondragon/foodfund-backend/api/validators"
	"github.com/angelmondragon/foodfund-backend/internal/phases"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
)

// ReviewFunc is an admin approve or reject decision on one record.
type ReviewFunc[T any] func(ctx context.Context, id uuid.UUID, actor phases.Actor, note string) (T, error)

type reviewRequest struct {
	Note string `json:"note" validate:"max=1000"`
}

// Review adapts a decision to a handler reading {id} and an optional note.
func Review[T any](logg *logger.Logger, decide ReviewFunc[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body reviewRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		result, err := decide(r.Context(), id, actor, body.Note)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

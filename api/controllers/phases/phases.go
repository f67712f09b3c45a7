package phases

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodfund-backend/api/controllers"
	"github.com/angelmondragon/foodfund-backend/api/responses"
	"github.com/angelmondragon/foodfund-backend/api/validators"
	internalphases "github.com/angelmondragon/foodfund-backend/internal/phases"
	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
)

type terminateRequest struct {
	Reason          string `json:"reason" validate:"required,max=1000"`
	ExpectedVersion int64  `json:"expectedVersion" validate:"gte=0"`
}

type correctStatusRequest struct {
	Status          string `json:"status" validate:"required"`
	ExpectedVersion int64  `json:"expectedVersion" validate:"gte=0"`
}

// Get returns one phase with its allocations and milestones.
func Get(svc internalphases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "phaseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		phase, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, phase)
	}
}

// ListByCampaign returns the campaign's phases in position order.
func ListByCampaign(svc internalphases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "campaignId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		phases, err := svc.ListByCampaign(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, phases)
	}
}

// Events returns the phase's applied event history.
func Events(svc internalphases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "phaseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		events, err := svc.Events(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, events)
	}
}

// Cancel terminates a phase; the service checks the caller's role against policy.
func Cancel(svc internalphases.Service, logg *logger.Logger) http.HandlerFunc {
	return terminate(logg, svc.Cancel)
}

// Fail marks a phase failed by administrative decision.
func Fail(svc internalphases.Service, logg *logger.Logger) http.HandlerFunc {
	return terminate(logg, svc.Fail)
}

type terminateFunc func(ctx context.Context, phaseID uuid.UUID, actor internalphases.Actor, reason string, expectedVersion int64) (*models.CampaignPhase, error)

func terminate(logg *logger.Logger, apply terminateFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := controllers.ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "phaseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body terminateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		phase, err := apply(r.Context(), id, actor, body.Reason, body.ExpectedVersion)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, phase)
	}
}

// CorrectStatus lets a platform admin repair an undetermined phase status.
func CorrectStatus(svc internalphases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := controllers.ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "phaseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body correctStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := validators.ParseEnum("status", body.Status, enums.ParsePhaseStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		phase, err := svc.CorrectStatus(r.Context(), id, status, actor, body.ExpectedVersion)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, phase)
	}
}

package deliveries

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodfund-backend/api/controllers"
	"github.com/angelmondragon/foodfund-backend/api/responses"
	"github.com/angelmondragon/foodfund-backend/api/validators"
	internaldeliveries "github.com/angelmondragon/foodfund-backend/internal/deliveries"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	"github.com/angelmondragon/foodfund-backend/pkg/pagination"
)

type assignRequest struct {
	MealBatchID uuid.UUID `json:"mealBatchId" validate:"required"`
	AssignedTo  uuid.UUID `json:"deliveryStaffId" validate:"required"`
	Note        string    `json:"note" validate:"max=1000"`
}

type reassignRequest struct {
	AssignedTo uuid.UUID `json:"deliveryStaffId" validate:"required"`
	Note       string    `json:"note" validate:"max=1000"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=1000"`
}

// Assign hands a ready meal batch to a delivery staff member.
func Assign(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := controllers.ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body assignRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		task, err := svc.Assign(r.Context(), internaldeliveries.AssignInput{
			MealBatchID: body.MealBatchID,
			AssignedTo:  body.AssignedTo,
			Note:        validators.SanitizeString(body.Note, 1000),
		}, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, task)
	}
}

// Reassign moves an unfinished task to another staff member.
func Reassign(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := controllers.ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body reassignRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		task, err := svc.Reassign(r.Context(), id, body.AssignedTo, actor, validators.SanitizeString(body.Note, 1000))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, task)
	}
}

// UpdateStatus records delivery progress reported by the assignee.
func UpdateStatus(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := controllers.ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body statusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := validators.ParseEnum("status", body.Status, enums.ParseDeliveryTaskStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		task, err := svc.UpdateStatus(r.Context(), id, internaldeliveries.StatusInput{
			Status: status,
			Note:   validators.SanitizeString(body.Note, 1000),
		}, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, task)
	}
}

func Get(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		task, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, task)
	}
}

// List returns a cursor page of tasks for admins and organization staff.
func List(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var filter internaldeliveries.Filter
		var err error
		if filter.PhaseID, err = validators.ParseOptionalUUIDQuery(r, "campaignPhaseId"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.MealBatchID, err = validators.ParseOptionalUUIDQuery(r, "mealBatchId"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.AssignedTo, err = validators.ParseOptionalUUIDQuery(r, "deliveryStaffId"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.Status, err = validators.ParseOptionalEnumQuery(r, "status", enums.ParseDeliveryTaskStatus); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), internaldeliveries.ListParams{
			Filter: filter,
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ListMine returns the tasks assigned to the caller.
func ListMine(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := controllers.ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1<<20)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tasks, err := svc.ListMine(r.Context(), actor.UserID, limit, offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tasks)
	}
}

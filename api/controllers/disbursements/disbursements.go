package disbursements

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodfund-backend/api/controllers"
	"github.com/angelmondragon/foodfund-backend/api/responses"
	"github.com/angelmondragon/foodfund-backend/api/validators"
	internaldisbursements "github.com/angelmondragon/foodfund-backend/internal/disbursements"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	"github.com/angelmondragon/foodfund-backend/pkg/pagination"
)

type createRequest struct {
	PhaseID     uuid.UUID `json:"campaignPhaseId" validate:"required"`
	ExpenseType string    `json:"expenseType" validate:"required"`
	Amount      int64     `json:"totalCost" validate:"gt=0"`
	Title       string    `json:"title" validate:"required,max=200"`
}

// Create opens a disbursement request against the phase's allocation.
func Create(svc internaldisbursements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := controllers.ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		expenseType, err := validators.ParseEnum("expenseType", body.ExpenseType, enums.ParseExpenseType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := svc.RequestDisbursement(r.Context(), internaldisbursements.RequestInput{
			PhaseID:     body.PhaseID,
			ExpenseType: expenseType,
			Amount:      body.Amount,
			Title:       validators.SanitizeString(body.Title, 200),
		}, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, request)
	}
}

// ListMine pages through the caller's own disbursement requests.
func ListMine(svc internaldisbursements.Service, logg *logger.Logger) http.HandlerFunc {
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

		requests, err := svc.ListMine(r.Context(), internaldisbursements.ListParams{
			RequestedBy: actor.UserID,
			Limit:       limit,
			Offset:      offset,
			SortBy:      strings.TrimSpace(r.URL.Query().Get("sortBy")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, requests)
	}
}

// ListByPhase returns every disbursement request raised against a phase.
func ListByPhase(svc internaldisbursements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phaseID, err := validators.ParseUUIDParam(r, "phaseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requests, err := svc.ListByPhase(r.Context(), phaseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, requests)
	}
}

func Get(svc internaldisbursements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		request, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}

// Approve releases the requested funds and advances the phase.
func Approve(svc internaldisbursements.Service, logg *logger.Logger) http.HandlerFunc {
	return controllers.Review(logg, svc.Approve)
}

// Reject declines the request; repeated rejections fail the phase.
func Reject(svc internaldisbursements.Service, logg *logger.Logger) http.HandlerFunc {
	return controllers.Review(logg, svc.Reject)
}

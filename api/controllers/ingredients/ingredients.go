package ingredients

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/foodfund-backend/api/controllers"
	"github.com/angelmondragon/foodfund-backend/api/responses"
	"github.com/angelmondragon/foodfund-backend/api/validators"
	internalingredients "github.com/angelmondragon/foodfund-backend/internal/ingredients"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	"github.com/angelmondragon/foodfund-backend/pkg/pagination"
)

type itemRequest struct {
	Name                string          `json:"name" validate:"required,max=200"`
	Quantity            decimal.Decimal `json:"quantity" validate:"gt=0"`
	Unit                string          `json:"unit" validate:"required,max=32"`
	EstimatedUnitPrice  int64           `json:"estimatedUnitPrice" validate:"gte=0"`
	EstimatedTotalPrice int64           `json:"estimatedTotalPrice" validate:"gte=0"`
	Supplier            string          `json:"supplier" validate:"max=200"`
}

type createRequest struct {
	PhaseID   uuid.UUID     `json:"campaignPhaseId" validate:"required"`
	Items     []itemRequest `json:"items" validate:"required,min=1,dive"`
	TotalCost int64         `json:"totalCost" validate:"gt=0"`
}

// Create records a kitchen's ingredient purchase plan for a phase.
func Create(svc internalingredients.Service, logg *logger.Logger) http.HandlerFunc {
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

		items := make([]internalingredients.ItemInput, 0, len(body.Items))
		for _, item := range body.Items {
			items = append(items, internalingredients.ItemInput{
				Name:                item.Name,
				Quantity:            item.Quantity,
				Unit:                item.Unit,
				EstimatedUnitPrice:  item.EstimatedUnitPrice,
				EstimatedTotalPrice: item.EstimatedTotalPrice,
				Supplier:            item.Supplier,
			})
		}

		request, err := svc.Create(r.Context(), internalingredients.CreateInput{
			PhaseID:   body.PhaseID,
			Items:     items,
			TotalCost: body.TotalCost,
		}, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, request)
	}
}

// List pages through ingredient requests, optionally by phase and status.
func List(svc internalingredients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phaseID, err := validators.ParseOptionalUUIDQuery(r, "campaignPhaseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := validators.ParseOptionalEnumQuery(r, "status", enums.ParseReviewStatus)
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

		requests, err := svc.List(r.Context(), internalingredients.ListFilter{
			PhaseID: phaseID,
			Status:  status,
			Limit:   limit,
			Offset:  offset,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, requests)
	}
}

// Get returns one ingredient request with its items.
func Get(svc internalingredients.Service, logg *logger.Logger) http.HandlerFunc {
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

// Approve accepts the request and sets the phase's ingredient allocation.
func Approve(svc internalingredients.Service, logg *logger.Logger) http.HandlerFunc {
	return controllers.Review(logg, svc.Approve)
}

// Reject declines the request so the kitchen can resubmit.
func Reject(svc internalingredients.Service, logg *logger.Logger) http.HandlerFunc {
	return controllers.Review(logg, svc.Reject)
}

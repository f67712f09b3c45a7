package mealbatches

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/foodfund-backend/api/controllers"
	"github.com/angelmondragon/foodfund-backend/api/responses"
	"github.com/angelmondragon/foodfund-backend/api/validators"
	internalmealbatches "github.com/angelmondragon/foodfund-backend/internal/mealbatches"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	"github.com/angelmondragon/foodfund-backend/pkg/pagination"
)

type usageRequest struct {
	IngredientRequestItemID uuid.UUID       `json:"ingredientRequestItemId" validate:"required"`
	QuantityUsed            decimal.Decimal `json:"quantityUsed" validate:"gt=0"`
}

type createRequest struct {
	PhaseID          uuid.UUID      `json:"campaignPhaseId" validate:"required"`
	FoodName         string         `json:"foodName" validate:"required,max=200"`
	Quantity         int            `json:"quantity" validate:"gt=0"`
	Media            []string       `json:"media" validate:"max=20,dive,required,max=1024"`
	IngredientUsages []usageRequest `json:"ingredientUsages" validate:"dive"`
}

type statusRequest struct {
	Status     string     `json:"status" validate:"required"`
	CookedDate *time.Time `json:"cookedDate"`
	Media      []string   `json:"media" validate:"max=20,dive,required,max=1024"`
}

// Create logs a cooked batch and the ingredient quantities it consumed.
func Create(svc internalmealbatches.Service, logg *logger.Logger) http.HandlerFunc {
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

		usages := make([]internalmealbatches.UsageInput, 0, len(body.IngredientUsages))
		for _, usage := range body.IngredientUsages {
			usages = append(usages, internalmealbatches.UsageInput{
				IngredientRequestItemID: usage.IngredientRequestItemID,
				QuantityUsed:            usage.QuantityUsed,
			})
		}

		batch, err := svc.Create(r.Context(), internalmealbatches.CreateInput{
			PhaseID:          body.PhaseID,
			FoodName:         validators.SanitizeString(body.FoodName, 200),
			Quantity:         body.Quantity,
			Media:            body.Media,
			IngredientUsages: usages,
		}, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, batch)
	}
}

// UpdateStatus moves a batch to READY or DELIVERED.
func UpdateStatus(svc internalmealbatches.Service, logg *logger.Logger) http.HandlerFunc {
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
		status, err := validators.ParseEnum("status", body.Status, enums.ParseMealBatchStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		batch, err := svc.UpdateStatus(r.Context(), id, internalmealbatches.StatusInput{
			Status:     status,
			CookedDate: body.CookedDate,
			Media:      body.Media,
		}, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, batch)
	}
}

func Get(svc internalmealbatches.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		batch, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, batch)
	}
}

// List filters batches by phase, status and kitchen.
func List(svc internalmealbatches.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phaseID, err := validators.ParseOptionalUUIDQuery(r, "campaignPhaseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		preparedBy, err := validators.ParseOptionalUUIDQuery(r, "preparedBy")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := validators.ParseOptionalEnumQuery(r, "status", enums.ParseMealBatchStatus)
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

		batches, err := svc.List(r.Context(), internalmealbatches.ListFilter{
			PhaseID:    phaseID,
			Status:     status,
			PreparedBy: preparedBy,
			Limit:      limit,
			Offset:     offset,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, batches)
	}
}

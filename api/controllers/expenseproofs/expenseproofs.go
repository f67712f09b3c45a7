package expenseproofs

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodfund-backend/api/controllers"
	"github.com/angelmondragon/foodfund-backend/api/responses"
	"github.com/angelmondragon/foodfund-backend/api/validators"
	internalexpenseproofs "github.com/angelmondragon/foodfund-backend/internal/expenseproofs"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
)

type createRequest struct {
	RequestID uuid.UUID `json:"requestId" validate:"required"`
	Media     []string  `json:"media" validate:"required,min=1,max=20,dive,required,max=1024"`
	Amount    int64     `json:"amount" validate:"gt=0"`
}

// Create submits receipts for an approved ingredient disbursement.
func Create(svc internalexpenseproofs.Service, logg *logger.Logger) http.HandlerFunc {
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

		proof, err := svc.Create(r.Context(), internalexpenseproofs.CreateInput{
			RequestID: body.RequestID,
			Media:     body.Media,
			Amount:    body.Amount,
		}, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, proof)
	}
}

// ListMine returns the caller's proofs, optionally for one request.
func ListMine(svc internalexpenseproofs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := controllers.ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParseOptionalUUIDQuery(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		proofs, err := svc.ListMine(r.Context(), actor.UserID, requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, proofs)
	}
}

func Get(svc internalexpenseproofs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		proof, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, proof)
	}
}

// Approve passes the audit. The result carries the phase status it produced.
func Approve(svc internalexpenseproofs.Service, logg *logger.Logger) http.HandlerFunc {
	return controllers.Review(logg, svc.Approve)
}

// Reject fails the audit; the result reports the resubmission count.
func Reject(svc internalexpenseproofs.Service, logg *logger.Logger) http.HandlerFunc {
	return controllers.Review(logg, svc.Reject)
}

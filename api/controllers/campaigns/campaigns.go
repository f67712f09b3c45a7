package campaigns

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/foodfund-backend/api/controllers"
	"github.com/angelmondragon/foodfund-backend/api/responses"
	"github.com/angelmondragon/foodfund-backend/api/validators"
	internalcampaigns "github.com/angelmondragon/foodfund-backend/internal/campaigns"
	"github.com/angelmondragon/foodfund-backend/internal/timeline"
	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodfund-backend/pkg/errors"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	"github.com/angelmondragon/foodfund-backend/pkg/pagination"
)

type dispositionReader interface {
	Get(ctx context.Context, campaignID uuid.UUID) (*models.CampaignDisposition, error)
}

type timelineProjector interface {
	ForCampaign(ctx context.Context, campaignID uuid.UUID) (timeline.Timeline, error)
}

type createCampaignRequest struct {
	OrganizationID       *uuid.UUID `json:"organizationId"`
	Title                string     `json:"title" validate:"required,max=200"`
	Description          string     `json:"description" validate:"max=5000"`
	TargetAmount         int64      `json:"targetAmount" validate:"required,gt=0"`
	FundraisingStartDate time.Time  `json:"fundraisingStartDate" validate:"required"`
	FundraisingEndDate   time.Time  `json:"fundraisingEndDate" validate:"required"`
}

type phasePlanRequest struct {
	Name                 string `json:"name" validate:"required,max=120"`
	IngredientFundAmount int64  `json:"ingredientFundAmount" validate:"gte=0"`
	CookingFundAmount    int64  `json:"cookingFundAmount" validate:"gte=0"`
	DeliveryFundAmount   int64  `json:"deliveryFundAmount" validate:"gte=0"`
}

type approveCampaignRequest struct {
	Phases []phasePlanRequest `json:"phases" validate:"required,min=1,dive"`
}

type cancelCampaignRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

type donationRequest struct {
	TransactionRef string `json:"transactionRef" validate:"required,max=200"`
	Amount         int64  `json:"amount" validate:"required,gt=0"`
}

// Search serves the public campaign search.
func Search(svc internalcampaigns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "campaign service unavailable"))
			return
		}

		page, err := validators.ParseQueryInt(r, "page", 1, 1, 10000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := validators.ParseOptionalEnumQuery(r, "status", enums.ParseCampaignStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Search(r.Context(), internalcampaigns.SearchInput{
			Query:  validators.SanitizeString(r.URL.Query().Get("q"), 200),
			Status: status,
			Page:   page,
			Limit:  limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Get returns one campaign.
func Get(svc internalcampaigns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "campaignId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		campaign, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, campaign)
	}
}

// Timeline projects the campaign's milestones at request time.
func Timeline(projector timelineProjector, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "campaignId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		projected, err := projector.ForCampaign(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, projected)
	}
}

// Create submits a campaign for review on behalf of the caller's organization.
func Create(svc internalcampaigns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := controllers.ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createCampaignRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orgID := uuid.Nil
		switch {
		case actor.Role.IsPlatformAdmin() && body.OrganizationID != nil:
			orgID = *body.OrganizationID
		case actor.OrganizationID != nil:
			if body.OrganizationID != nil && *body.OrganizationID != *actor.OrganizationID {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "organization mismatch"))
				return
			}
			orgID = *actor.OrganizationID
		}

		campaign, err := svc.Create(r.Context(), internalcampaigns.CreateInput{
			OrganizationID:       orgID,
			Title:                body.Title,
			Description:          body.Description,
			TargetAmount:         body.TargetAmount,
			FundraisingStartDate: body.FundraisingStartDate,
			FundraisingEndDate:   body.FundraisingEndDate,
		}, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, campaign)
	}
}

// Approve finalizes the phase plan and opens the campaign.
func Approve(svc internalcampaigns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := controllers.ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "campaignId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body approveCampaignRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		plan := make([]internalcampaigns.PhasePlan, 0, len(body.Phases))
		for _, phase := range body.Phases {
			plan = append(plan, internalcampaigns.PhasePlan{
				Name:                 phase.Name,
				IngredientFundAmount: phase.IngredientFundAmount,
				CookingFundAmount:    phase.CookingFundAmount,
				DeliveryFundAmount:   phase.DeliveryFundAmount,
			})
		}

		campaign, err := svc.Approve(r.Context(), id, plan, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, campaign)
	}
}

// Cancel cancels a campaign for cause and refunds its donors.
func Cancel(svc internalcampaigns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := controllers.ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "campaignId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body cancelCampaignRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CancelForCause(r.Context(), id, body.Reason, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Donate records a pending donation reported by the payment gateway.
func Donate(svc internalcampaigns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := controllers.ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "campaignId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body donationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		donation, err := svc.RecordDonation(r.Context(), internalcampaigns.DonationInput{
			CampaignID:     id,
			DonorRef:       actor.UserID.String(),
			TransactionRef: strings.TrimSpace(body.TransactionRef),
			Amount:         body.Amount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, donation)
	}
}

// SettleDonation marks a gateway transaction as settled.
func SettleDonation(svc internalcampaigns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := strings.TrimSpace(chi.URLParam(r, "transactionRef"))
		donation, err := svc.SettleDonation(r.Context(), ref)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, donation)
	}
}

// FailDonation marks a gateway transaction as failed.
func FailDonation(svc internalcampaigns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := strings.TrimSpace(chi.URLParam(r, "transactionRef"))
		donation, err := svc.FailDonation(r.Context(), ref)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, donation)
	}
}

// Donations lists the campaign's donation ledger.
func Donations(svc internalcampaigns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "campaignId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		donations, err := svc.ListDonations(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, donations)
	}
}

// Disposition returns the recorded refund or sweep decision of a campaign.
func Disposition(reader dispositionReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "campaignId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		disposition, err := reader.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, disposition)
	}
}

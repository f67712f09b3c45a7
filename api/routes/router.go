package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/foodfund-backend/api/controllers"
	campaigncontrollers "github.com/angelmondragon/foodfund-backend/api/controllers/campaigns"
	"github.com/angelmondragon/foodfund-backend/api/controllers/deadletters"
	deliverycontrollers "github.com/angelmondragon/foodfund-backend/api/controllers/deliveries"
	disbursementcontrollers "github.com/angelmondragon/foodfund-backend/api/controllers/disbursements"
	proofcontrollers "github.com/angelmondragon/foodfund-backend/api/controllers/expenseproofs"
	ingredientcontrollers "github.com/angelmondragon/foodfund-backend/api/controllers/ingredients"
	batchcontrollers "github.com/angelmondragon/foodfund-backend/api/controllers/mealbatches"
	phasecontrollers "github.com/angelmondragon/foodfund-backend/api/controllers/phases"
	"github.com/angelmondragon/foodfund-backend/api/middleware"
	"github.com/angelmondragon/foodfund-backend/internal/campaigns"
	"github.com/angelmondragon/foodfund-backend/internal/deliveries"
	"github.com/angelmondragon/foodfund-backend/internal/disbursements"
	"github.com/angelmondragon/foodfund-backend/internal/disposition"
	"github.com/angelmondragon/foodfund-backend/internal/expenseproofs"
	"github.com/angelmondragon/foodfund-backend/internal/ingredients"
	"github.com/angelmondragon/foodfund-backend/internal/mealbatches"
	"github.com/angelmondragon/foodfund-backend/internal/phases"
	"github.com/angelmondragon/foodfund-backend/internal/timeline"
	"github.com/angelmondragon/foodfund-backend/pkg/auth/session"
	"github.com/angelmondragon/foodfund-backend/pkg/config"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	"github.com/angelmondragon/foodfund-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/foodfund-backend/pkg/redis"
)

// TokenRevocations is the access-token denylist used by Auth and logout.
type TokenRevocations interface {
	session.RevocationChecker
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
}

type timelineProjector interface {
	ForCampaign(ctx context.Context, campaignID uuid.UUID) (timeline.Timeline, error)
}

// Dependencies carries everything the API router wires into handlers.
// Nil stores disable the middleware that needs them.
type Dependencies struct {
	Config *config.Config
	Logger *logger.Logger

	DB               controllers.Pinger
	Redis            controllers.Pinger
	IdempotencyStore pkgredis.IdempotencyStore
	RateLimitStore   middleware.RateLimitStore
	Revocations      TokenRevocations
	HTTPMetrics      *metrics.HTTPMetrics
	MetricsHandler   http.Handler

	Campaigns     campaigns.Service
	Timeline      timelineProjector
	Disposition   disposition.Service
	Phases        phases.Service
	Ingredients   ingredients.Service
	Disbursements disbursements.Service
	ExpenseProofs expenseproofs.Service
	MealBatches   mealbatches.Service
	Deliveries    deliveries.Service
	DeadLetters   deadletters.Store
}

var (
	organizationRoles = []enums.MemberRole{
		enums.MemberRoleOrganizationOwner,
		enums.MemberRoleOrganizationAdmin,
		enums.MemberRolePlatformAdmin,
	}
	kitchenRoles = []enums.MemberRole{
		enums.MemberRoleKitchenStaff,
		enums.MemberRoleOrganizationOwner,
		enums.MemberRoleOrganizationAdmin,
	}
	fundRequesterRoles = []enums.MemberRole{
		enums.MemberRoleKitchenStaff,
		enums.MemberRoleDeliveryStaff,
		enums.MemberRoleOrganizationOwner,
		enums.MemberRoleOrganizationAdmin,
	}
	deliveryStaffRoles = []enums.MemberRole{
		enums.MemberRoleDeliveryStaff,
	}
	deliveryUpdaterRoles = []enums.MemberRole{
		enums.MemberRoleDeliveryStaff,
		enums.MemberRoleOrganizationOwner,
		enums.MemberRoleOrganizationAdmin,
		enums.MemberRolePlatformAdmin,
	}
)

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readinessDeps(deps)))
	})
	r.Handle("/metrics", metricsHandler)

	readPolicy := middleware.NewRateLimitPolicy("api", cfg.RateLimit.Window, cfg.RateLimit.Limit)
	writePolicy := middleware.NewRateLimitPolicy("api-write", cfg.RateLimit.Window, cfg.RateLimit.WriteLimit)

	idempotency := middleware.NewIdempotency(deps.IdempotencyStore, logg)
	standard := idempotency.Require(middleware.StandardIdempotencyTTL)
	money := idempotency.Require(middleware.MoneyMovementIdempotencyTTL)

	r.Route("/api/v1", func(r chi.Router) {
		// public campaign discovery
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(readPolicy, deps.RateLimitStore, logg))
			r.Get("/campaigns", campaigncontrollers.Search(deps.Campaigns, logg))
			r.Get("/campaigns/{campaignId}", campaigncontrollers.Get(deps.Campaigns, logg))
			r.Get("/campaigns/{campaignId}/timeline", campaigncontrollers.Timeline(deps.Timeline, logg))
			r.Get("/campaigns/{campaignId}/phases", phasecontrollers.ListByCampaign(deps.Phases, logg))
			r.Get("/campaigns/{campaignId}/disposition", campaigncontrollers.Disposition(deps.Disposition, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, deps.Revocations, logg))
			r.Use(middleware.RateLimit(readPolicy, deps.RateLimitStore, logg))
			r.Use(writeLimit(writePolicy, deps.RateLimitStore, logg))

			r.Post("/auth/logout", controllers.AuthLogout(deps.Revocations, cfg.JWT, logg))

			r.With(middleware.RequireRoles(logg, organizationRoles...), standard).Post("/campaigns", campaigncontrollers.Create(deps.Campaigns, logg))
			r.With(money).Post("/campaigns/{campaignId}/donations", campaigncontrollers.Donate(deps.Campaigns, logg))

			r.Route("/phases/{phaseId}", func(r chi.Router) {
				r.Get("/", phasecontrollers.Get(deps.Phases, logg))
				r.Get("/events", phasecontrollers.Events(deps.Phases, logg))
				r.Get("/operation-requests", disbursementcontrollers.ListByPhase(deps.Disbursements, logg))
				r.With(standard).Post("/cancel", phasecontrollers.Cancel(deps.Phases, logg))
			})

			r.Route("/ingredient-requests", func(r chi.Router) {
				r.With(middleware.RequireRoles(logg, kitchenRoles...), standard).Post("/", ingredientcontrollers.Create(deps.Ingredients, logg))
				r.Get("/", ingredientcontrollers.List(deps.Ingredients, logg))
				r.Get("/{id}", ingredientcontrollers.Get(deps.Ingredients, logg))
			})

			r.Route("/operation-requests", func(r chi.Router) {
				r.With(middleware.RequireRoles(logg, fundRequesterRoles...), money).Post("/", disbursementcontrollers.Create(deps.Disbursements, logg))
				r.Get("/mine", disbursementcontrollers.ListMine(deps.Disbursements, logg))
				r.Get("/{id}", disbursementcontrollers.Get(deps.Disbursements, logg))
			})

			r.Route("/expense-proofs", func(r chi.Router) {
				r.With(middleware.RequireRoles(logg, kitchenRoles...), standard).Post("/", proofcontrollers.Create(deps.ExpenseProofs, logg))
				r.Get("/mine", proofcontrollers.ListMine(deps.ExpenseProofs, logg))
				r.Get("/{id}", proofcontrollers.Get(deps.ExpenseProofs, logg))
			})

			r.Route("/meal-batches", func(r chi.Router) {
				r.With(middleware.RequireRoles(logg, kitchenRoles...), standard).Post("/", batchcontrollers.Create(deps.MealBatches, logg))
				r.With(middleware.RequireRoles(logg, kitchenRoles...)).Patch("/{id}/status", batchcontrollers.UpdateStatus(deps.MealBatches, logg))
				r.Get("/", batchcontrollers.List(deps.MealBatches, logg))
				r.Get("/{id}", batchcontrollers.Get(deps.MealBatches, logg))
			})

			r.Route("/delivery-tasks", func(r chi.Router) {
				r.With(middleware.RequireRoles(logg, organizationRoles...), standard).Post("/", deliverycontrollers.Assign(deps.Deliveries, logg))
				r.With(middleware.RequireRoles(logg, organizationRoles...), standard).Post("/{id}/reassign", deliverycontrollers.Reassign(deps.Deliveries, logg))
				r.With(middleware.RequireRoles(logg, deliveryUpdaterRoles...)).Patch("/{id}/status", deliverycontrollers.UpdateStatus(deps.Deliveries, logg))
				r.With(middleware.RequireRoles(logg, organizationRoles...)).Get("/", deliverycontrollers.List(deps.Deliveries, logg))
				r.With(middleware.RequireRoles(logg, deliveryStaffRoles...)).Get("/mine", deliverycontrollers.ListMine(deps.Deliveries, logg))
				r.Get("/{id}", deliverycontrollers.Get(deps.Deliveries, logg))
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRoles(logg, enums.MemberRolePlatformAdmin))

				r.With(standard).Post("/campaigns/{campaignId}/approve", campaigncontrollers.Approve(deps.Campaigns, logg))
				r.With(money).Post("/campaigns/{campaignId}/cancel", campaigncontrollers.Cancel(deps.Campaigns, logg))
				r.Get("/campaigns/{campaignId}/donations", campaigncontrollers.Donations(deps.Campaigns, logg))
				r.With(money).Post("/donations/{transactionRef}/settle", campaigncontrollers.SettleDonation(deps.Campaigns, logg))
				r.With(money).Post("/donations/{transactionRef}/fail", campaigncontrollers.FailDonation(deps.Campaigns, logg))

				r.With(standard).Post("/phases/{phaseId}/fail", phasecontrollers.Fail(deps.Phases, logg))
				r.With(standard).Post("/phases/{phaseId}/status", phasecontrollers.CorrectStatus(deps.Phases, logg))

				r.With(standard).Post("/ingredient-requests/{id}/approve", ingredientcontrollers.Approve(deps.Ingredients, logg))
				r.With(standard).Post("/ingredient-requests/{id}/reject", ingredientcontrollers.Reject(deps.Ingredients, logg))
				r.With(money).Post("/operation-requests/{id}/approve", disbursementcontrollers.Approve(deps.Disbursements, logg))
				r.With(money).Post("/operation-requests/{id}/reject", disbursementcontrollers.Reject(deps.Disbursements, logg))
				r.With(standard).Post("/expense-proofs/{id}/approve", proofcontrollers.Approve(deps.ExpenseProofs, logg))
				r.With(standard).Post("/expense-proofs/{id}/reject", proofcontrollers.Reject(deps.ExpenseProofs, logg))

				if deps.DeadLetters != nil {
					r.Get("/outbox/dead-letters", deadletters.List(deps.DeadLetters, logg))
					r.Post("/outbox/dead-letters/{eventId}/requeue", deadletters.Requeue(deps.DeadLetters, logg))
				}
			})
		})
	})

	return r
}

func readinessDeps(deps Dependencies) map[string]controllers.Pinger {
	checks := map[string]controllers.Pinger{}
	if deps.DB != nil {
		checks["db"] = deps.DB
	}
	if deps.Redis != nil {
		checks["redis"] = deps.Redis
	}
	return checks
}

// writeLimit applies the tighter write policy to mutating requests only.
func writeLimit(policy middleware.RateLimitPolicy, store middleware.RateLimitStore, logg *logger.Logger) func(http.Handler) http.Handler {
	limited := middleware.RateLimit(policy, store, logg)
	return func(next http.Handler) http.Handler {
		guarded := limited(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
			default:
				guarded.ServeHTTP(w, r)
			}
		})
	}
}

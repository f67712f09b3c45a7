package deadletters

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodfund-backend/api/responses"
	"github.com/angelmondragon/foodfund-backend/api/validators"
	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	"github.com/angelmondragon/foodfund-backend/pkg/outbox"
	"github.com/angelmondragon/foodfund-backend/pkg/pagination"
)

// Store is the slice of the dead-letter repository the admin endpoints use.
type Store interface {
	List(ctx context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, error)
	Requeue(ctx context.Context, eventID uuid.UUID) error
}

type deadLetterDTO struct {
	EventID       uuid.UUID                  `json:"eventId"`
	EventType     enums.OutboxEventType      `json:"eventType"`
	AggregateType enums.OutboxAggregateType  `json:"aggregateType"`
	AggregateID   uuid.UUID                  `json:"aggregateId"`
	ErrorReason   enums.OutboxDLQErrorReason `json:"errorReason"`
	ErrorMessage  *string                    `json:"errorMessage,omitempty"`
	AttemptCount  int                        `json:"attemptCount"`
	FailedAt      string                     `json:"failedAt"`
}

// List shows the events the relay stopped retrying.
func List(store Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventType, err := validators.ParseOptionalEnumQuery(r, "eventType", enums.ParseOutboxEventType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := store.List(r.Context(), outbox.DLQFilter{EventType: eventType, Limit: limit})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]deadLetterDTO, 0, len(rows))
		for _, row := range rows {
			out = append(out, deadLetterDTO{
				EventID:       row.EventID,
				EventType:     row.EventType,
				AggregateType: row.AggregateType,
				AggregateID:   row.AggregateID,
				ErrorReason:   row.ErrorReason,
				ErrorMessage:  row.ErrorMessage,
				AttemptCount:  row.AttemptCount,
				FailedAt:      row.FailedAt.UTC().Format(time.RFC3339),
			})
		}
		responses.WriteSuccess(w, out)
	}
}

// Requeue hands a dead letter back to the relay.
func Requeue(store Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := validators.ParseUUIDParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := store.Requeue(r.Context(), eventID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithField(r.Context(), "event_id", eventID.String()), "outbox dead letter requeued")
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"eventId": eventID.String()})
	}
}

package outbox

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/foodfund-backend/pkg/db/dbtest"
	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodfund-backend/pkg/errors"
)

func seedDeadLetter(t *testing.T, repo *DLQRepository, outboxRepo *Repository, eventType enums.OutboxEventType, msg string) models.OutboxEvent {
	t.Helper()
	db := repo.db
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateCampaignPhase,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		AttemptCount:  10,
	}
	require.NoError(t, outboxRepo.Insert(db, event))
	require.NoError(t, repo.InsertTx(db, event.DeadLetter(enums.OutboxDLQReasonMaxAttempts, msg, time.Now())))
	return event
}

func TestDLQInsertTruncatesAndValidates(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewDLQRepository(db)

	seedDeadLetter(t, repo, NewRepository(db), enums.EventPhaseTransitioned, strings.Repeat("ư", maxDLQErrorRunes+10))

	rows, err := repo.List(context.Background(), DLQFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, maxDLQErrorRunes, len([]rune(*rows[0].ErrorMessage)))

	err = repo.InsertTx(db, models.OutboxDLQ{EventID: uuid.New(), ErrorReason: "gave_up"})
	require.ErrorContains(t, err, "unknown dead-letter reason")
}

func TestDLQListFiltersByEventType(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewDLQRepository(db)
	outboxRepo := NewRepository(db)

	seedDeadLetter(t, repo, outboxRepo, enums.EventPhaseTransitioned, "timeout")
	settled := seedDeadLetter(t, repo, outboxRepo, enums.EventDonationSettled, "timeout")

	eventType := enums.EventDonationSettled
	rows, err := repo.List(context.Background(), DLQFilter{EventType: &eventType})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, settled.ID, rows[0].EventID)
}

func TestDLQRequeueResetsOutboxRow(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewDLQRepository(db)
	event := seedDeadLetter(t, repo, NewRepository(db), enums.EventPhaseTransitioned, "permission denied")

	require.NoError(t, repo.Requeue(context.Background(), event.ID))

	var row models.OutboxEvent
	require.NoError(t, db.First(&row, "id = ?", event.ID).Error)
	require.Equal(t, 0, row.AttemptCount)
	require.Nil(t, row.LastError)

	rows, err := repo.List(context.Background(), DLQFilter{})
	require.NoError(t, err)
	require.Empty(t, rows)

	err = repo.Requeue(context.Background(), event.ID)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

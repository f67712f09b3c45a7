package phases

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/foodfund-backend/pkg/enums"
)

func permutations(events []Event) [][]Event {
	if len(events) <= 1 {
		return [][]Event{append([]Event(nil), events...)}
	}
	var out [][]Event
	for i := range events {
		rest := make([]Event, 0, len(events)-1)
		rest = append(rest, events[:i]...)
		rest = append(rest, events[i+1:]...)
		for _, perm := range permutations(rest) {
			out = append(out, append([]Event{events[i]}, perm...))
		}
	}
	return out
}

func TestReplayIsOrderIndependent(t *testing.T) {
	at := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{Type: enums.PhaseEventDisbursementApproved, SourceID: uuid.New(), ExpenseType: enums.ExpenseTypeCooking, Amount: 500, OccurredAt: at},
		{Type: enums.PhaseEventMealBatchCooked, SourceID: uuid.New(), OccurredAt: at},
		{Type: enums.PhaseEventDisbursementApproved, SourceID: uuid.New(), ExpenseType: enums.ExpenseTypeDelivery, Amount: 300, OccurredAt: at},
		{Type: enums.PhaseEventDeliveriesCompleted, SourceID: uuid.New(), OccurredAt: at},
	}
	snapshot := fundedState(enums.PhaseStatusAwaitingCookingDisbursement)

	var want *ReplayResult
	for _, perm := range permutations(events) {
		got, err := Replay(snapshot, perm, testPolicy)
		require.NoError(t, err)
		assert.Empty(t, got.Pending)
		if want == nil {
			want = &got
			continue
		}
		assert.Equal(t, want.State, got.State)
	}
	require.NotNil(t, want)
	assert.Equal(t, enums.PhaseStatusCompleted, want.State.Status)
	assert.Equal(t, snapshot.Version+4, want.State.Version)
}

func TestReplayBuffersUnmetPreconditions(t *testing.T) {
	cooked := Event{Type: enums.PhaseEventMealBatchCooked, SourceID: uuid.New()}
	got, err := Replay(fundedState(enums.PhaseStatusAwaitingCookingDisbursement), []Event{cooked}, testPolicy)
	require.NoError(t, err)
	assert.Empty(t, got.Applied)
	require.Len(t, got.Pending, 1)
	assert.Equal(t, enums.PhaseStatusAwaitingCookingDisbursement, got.State.Status)
}

func TestReplayAppliesDuplicatesOnce(t *testing.T) {
	source := uuid.New()
	release := Event{Type: enums.PhaseEventDisbursementApproved, SourceID: source, ExpenseType: enums.ExpenseTypeCooking, Amount: 200}

	got, err := Replay(fundedState(enums.PhaseStatusAwaitingCookingDisbursement), []Event{release, release, release}, testPolicy)
	require.NoError(t, err)
	assert.Len(t, got.Applied, 1)
	assert.Equal(t, int64(200), got.State.CookingDisbursed)
}

func TestReplayAbortsOnUndeterminedStatus(t *testing.T) {
	_, err := Replay(fundedState(enums.PhaseStatusUndetermined), []Event{{Type: enums.PhaseEventMealBatchCooked, SourceID: uuid.New()}}, testPolicy)
	require.Error(t, err)
}

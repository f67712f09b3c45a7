package phases

import (
	"sort"

	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodfund-backend/pkg/errors"
)

// ReplayResult is the outcome of replaying a set of recorded events.
type ReplayResult struct {
	State   State
	Applied []Event
	Pending []Event
}

// Replay applies recorded events to a snapshot regardless of the order they
// were delivered in. Events are put in a canonical order first; an event
// whose preconditions are not met yet stays buffered until another event
// unblocks it or no further progress is possible. Duplicate (type, source)
// pairs apply once. Errors other than unmet preconditions abort the replay.
func Replay(snapshot State, events []Event, policy Policy) (ReplayResult, error) {
	pending := canonicalOrder(dedupe(events))
	state := snapshot
	applied := make([]Event, 0, len(pending))

	for len(pending) > 0 {
		progressed := false
		for i, ev := range pending {
			next, err := Apply(state, ev, policy)
			if err != nil {
				if isUnmetPrecondition(err) {
					continue
				}
				return ReplayResult{State: state, Applied: applied, Pending: pending}, err
			}
			state = next
			applied = append(applied, ev)
			pending = append(pending[:i:i], pending[i+1:]...)
			progressed = true
			break
		}
		if !progressed {
			break
		}
	}

	return ReplayResult{State: state, Applied: applied, Pending: pending}, nil
}

func isUnmetPrecondition(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) ||
		pkgerrors.IsCode(err, pkgerrors.CodeInsufficientAllocation) ||
		pkgerrors.IsCode(err, pkgerrors.CodePhaseFailed)
}

type eventKey struct {
	eventType enums.PhaseEventType
	source    string
}

func dedupe(events []Event) []Event {
	seen := make(map[eventKey]struct{}, len(events))
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		key := eventKey{eventType: ev.Type, source: ev.SourceID.String()}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ev)
	}
	return out
}

// canonicalOrder sorts by occurrence time, then by the workflow position of
// the event type, then by source id.
func canonicalOrder(events []Event) []Event {
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.Before(b.OccurredAt)
		}
		if ra, rb := eventRank(a.Type), eventRank(b.Type); ra != rb {
			return ra < rb
		}
		return a.SourceID.String() < b.SourceID.String()
	})
	return sorted
}

func eventRank(t enums.PhaseEventType) int {
	for i, candidate := range enums.PhaseEventTypes() {
		if candidate == t {
			return i
		}
	}
	return len(enums.PhaseEventTypes())
}

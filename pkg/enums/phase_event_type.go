package enums

import "fmt"

// PhaseEventType identifies an event that may advance a campaign phase.
type PhaseEventType string

const (
	PhaseEventIngredientRequestApproved PhaseEventType = "ingredient_request_approved"
	PhaseEventDisbursementApproved      PhaseEventType = "disbursement_approved"
	PhaseEventExpenseProofSubmitted     PhaseEventType = "expense_proof_submitted"
	PhaseEventExpenseProofApproved      PhaseEventType = "expense_proof_approved"
	PhaseEventExpenseProofRejected      PhaseEventType = "expense_proof_rejected"
	PhaseEventMealBatchCooked           PhaseEventType = "meal_batch_cooked"
	PhaseEventDeliveriesCompleted       PhaseEventType = "deliveries_completed"
	PhaseEventCancelled                 PhaseEventType = "phase_cancelled"
	PhaseEventFailed                    PhaseEventType = "phase_failed"
)

var validPhaseEventTypes = []PhaseEventType{
	PhaseEventIngredientRequestApproved,
	PhaseEventDisbursementApproved,
	PhaseEventExpenseProofSubmitted,
	PhaseEventExpenseProofApproved,
	PhaseEventExpenseProofRejected,
	PhaseEventMealBatchCooked,
	PhaseEventDeliveriesCompleted,
	PhaseEventCancelled,
	PhaseEventFailed,
}

// PhaseEventTypes returns the known event types in workflow order.
func PhaseEventTypes() []PhaseEventType {
	out := make([]PhaseEventType, len(validPhaseEventTypes))
	copy(out, validPhaseEventTypes)
	return out
}

// String implements fmt.Stringer.
func (e PhaseEventType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known PhaseEventType.
func (e PhaseEventType) IsValid() bool {
	for _, candidate := range validPhaseEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// IsAdministrative reports whether the event is an explicit admin action
// rather than a tracker-raised advancement.
func (e PhaseEventType) IsAdministrative() bool {
	return e == PhaseEventCancelled || e == PhaseEventFailed
}

// ParsePhaseEventType converts raw input into a PhaseEventType.
func ParsePhaseEventType(value string) (PhaseEventType, error) {
	for _, candidate := range validPhaseEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid phase event type %q", value)
}

package enums

import "fmt"

// PhaseStatus tracks a campaign phase through procurement, cooking and delivery.
type PhaseStatus string

const (
	PhaseStatusPlanning                       PhaseStatus = "PLANNING"
	PhaseStatusAwaitingIngredientDisbursement PhaseStatus = "AWAITING_INGREDIENT_DISBURSEMENT"
	PhaseStatusIngredientPurchase             PhaseStatus = "INGREDIENT_PURCHASE"
	PhaseStatusAwaitingAudit                  PhaseStatus = "AWAITING_AUDIT"
	PhaseStatusAwaitingCookingDisbursement    PhaseStatus = "AWAITING_COOKING_DISBURSEMENT"
	PhaseStatusCooking                        PhaseStatus = "COOKING"
	PhaseStatusAwaitingDeliveryDisbursement   PhaseStatus = "AWAITING_DELIVERY_DISBURSEMENT"
	PhaseStatusDelivery                       PhaseStatus = "DELIVERY"
	PhaseStatusCompleted                      PhaseStatus = "COMPLETED"
	PhaseStatusCancelled                      PhaseStatus = "CANCELLED"
	PhaseStatusFailed                         PhaseStatus = "FAILED"

	// PhaseStatusUndetermined labels persisted values this build does not recognize.
	PhaseStatusUndetermined PhaseStatus = "UNDETERMINED"
)

// validPhaseStatuses is ordered along the forward path of the workflow.
var validPhaseStatuses = []PhaseStatus{
	PhaseStatusPlanning,
	PhaseStatusAwaitingIngredientDisbursement,
	PhaseStatusIngredientPurchase,
	PhaseStatusAwaitingAudit,
	PhaseStatusAwaitingCookingDisbursement,
	PhaseStatusCooking,
	PhaseStatusAwaitingDeliveryDisbursement,
	PhaseStatusDelivery,
	PhaseStatusCompleted,
	PhaseStatusCancelled,
	PhaseStatusFailed,
}

var phaseStatusLabels = map[PhaseStatus]string{
	PhaseStatusPlanning:                       "Planning",
	PhaseStatusAwaitingIngredientDisbursement: "Awaiting ingredient funds",
	PhaseStatusIngredientPurchase:             "Purchasing ingredients",
	PhaseStatusAwaitingAudit:                  "Awaiting audit",
	PhaseStatusAwaitingCookingDisbursement:    "Awaiting cooking funds",
	PhaseStatusCooking:                        "Cooking",
	PhaseStatusAwaitingDeliveryDisbursement:   "Awaiting delivery funds",
	PhaseStatusDelivery:                       "Delivering",
	PhaseStatusCompleted:                      "Completed",
	PhaseStatusCancelled:                      "Cancelled",
	PhaseStatusFailed:                         "Failed",
	PhaseStatusUndetermined:                   "Undetermined",
}

// String implements fmt.Stringer.
func (p PhaseStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PhaseStatus. Undetermined is not valid.
func (p PhaseStatus) IsValid() bool {
	for _, candidate := range validPhaseStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the phase can no longer transition.
func (p PhaseStatus) IsTerminal() bool {
	switch p {
	case PhaseStatusCompleted, PhaseStatusCancelled, PhaseStatusFailed:
		return true
	default:
		return false
	}
}

// Rank returns the position along the forward path, or -1 for unknown values.
// Cancelled and failed share the terminal rank with completed.
func (p PhaseStatus) Rank() int {
	switch p {
	case PhaseStatusCancelled, PhaseStatusFailed:
		return PhaseStatusCompleted.Rank()
	}
	for i, candidate := range validPhaseStatuses {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Label returns the human readable label, falling back to "Undetermined".
func (p PhaseStatus) Label() string {
	if label, ok := phaseStatusLabels[p]; ok {
		return label
	}
	return phaseStatusLabels[PhaseStatusUndetermined]
}

// ParsePhaseStatus converts raw input into a PhaseStatus.
func ParsePhaseStatus(value string) (PhaseStatus, error) {
	for _, candidate := range validPhaseStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid phase status %q", value)
}

// ResolvePhaseStatus maps persisted data onto a PhaseStatus without failing;
// unknown strings resolve to PhaseStatusUndetermined.
func ResolvePhaseStatus(value string) PhaseStatus {
	status, err := ParsePhaseStatus(value)
	if err != nil {
		return PhaseStatusUndetermined
	}
	return status
}

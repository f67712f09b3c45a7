package enums

import "fmt"

// ExpenseType categorizes a disbursement against a phase allocation.
type ExpenseType string

const (
	ExpenseTypeIngredient ExpenseType = "ingredient"
	ExpenseTypeCooking    ExpenseType = "cooking"
	ExpenseTypeDelivery   ExpenseType = "delivery"
)

var validExpenseTypes = []ExpenseType{
	ExpenseTypeIngredient,
	ExpenseTypeCooking,
	ExpenseTypeDelivery,
}

// String implements fmt.Stringer.
func (e ExpenseType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known ExpenseType.
func (e ExpenseType) IsValid() bool {
	for _, candidate := range validExpenseTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// AwaitingStatus returns the phase status in which this expense type may be disbursed.
func (e ExpenseType) AwaitingStatus() PhaseStatus {
	switch e {
	case ExpenseTypeIngredient:
		return PhaseStatusAwaitingIngredientDisbursement
	case ExpenseTypeCooking:
		return PhaseStatusAwaitingCookingDisbursement
	case ExpenseTypeDelivery:
		return PhaseStatusAwaitingDeliveryDisbursement
	default:
		return PhaseStatusUndetermined
	}
}

// ParseExpenseType converts raw input into an ExpenseType.
func ParseExpenseType(value string) (ExpenseType, error) {
	for _, candidate := range validExpenseTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid expense type %q", value)
}

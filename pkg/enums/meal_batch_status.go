package enums

import "fmt"

// MealBatchStatus tracks a batch of cooked meals.
type MealBatchStatus string

const (
	MealBatchStatusPreparing MealBatchStatus = "PREPARING"
	MealBatchStatusReady     MealBatchStatus = "READY"
	MealBatchStatusDelivered MealBatchStatus = "DELIVERED"
)

var validMealBatchStatuses = []MealBatchStatus{
	MealBatchStatusPreparing,
	MealBatchStatusReady,
	MealBatchStatusDelivered,
}

// String implements fmt.Stringer.
func (m MealBatchStatus) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MealBatchStatus.
func (m MealBatchStatus) IsValid() bool {
	for _, candidate := range validMealBatchStatuses {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsCooked reports whether the batch has finished cooking.
func (m MealBatchStatus) IsCooked() bool {
	return m == MealBatchStatusReady || m == MealBatchStatusDelivered
}

// CanTransitionTo reports whether the batch may move forward to next.
func (m MealBatchStatus) CanTransitionTo(next MealBatchStatus) bool {
	switch m {
	case MealBatchStatusPreparing:
		return next == MealBatchStatusReady
	case MealBatchStatusReady:
		return next == MealBatchStatusDelivered
	default:
		return false
	}
}

// ParseMealBatchStatus converts raw input into a MealBatchStatus.
func ParseMealBatchStatus(value string) (MealBatchStatus, error) {
	for _, candidate := range validMealBatchStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid meal batch status %q", value)
}

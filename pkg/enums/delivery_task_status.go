package enums

import "fmt"

// DeliveryTaskStatus tracks a single delivery assignment.
type DeliveryTaskStatus string

const (
	DeliveryTaskStatusPending        DeliveryTaskStatus = "PENDING"
	DeliveryTaskStatusAccepted       DeliveryTaskStatus = "ACCEPTED"
	DeliveryTaskStatusRejected       DeliveryTaskStatus = "REJECTED"
	DeliveryTaskStatusOutForDelivery DeliveryTaskStatus = "OUT_FOR_DELIVERY"
	DeliveryTaskStatusDelivered      DeliveryTaskStatus = "DELIVERED"
	DeliveryTaskStatusFailed         DeliveryTaskStatus = "FAILED"
)

var validDeliveryTaskStatuses = []DeliveryTaskStatus{
	DeliveryTaskStatusPending,
	DeliveryTaskStatusAccepted,
	DeliveryTaskStatusRejected,
	DeliveryTaskStatusOutForDelivery,
	DeliveryTaskStatusDelivered,
	DeliveryTaskStatusFailed,
}

// Rejected and failed tasks go back to pending when reassigned.
var deliveryTaskTransitions = map[DeliveryTaskStatus][]DeliveryTaskStatus{
	DeliveryTaskStatusPending:        {DeliveryTaskStatusAccepted, DeliveryTaskStatusRejected},
	DeliveryTaskStatusAccepted:       {DeliveryTaskStatusOutForDelivery, DeliveryTaskStatusRejected},
	DeliveryTaskStatusOutForDelivery: {DeliveryTaskStatusDelivered, DeliveryTaskStatusFailed},
	DeliveryTaskStatusRejected:       {DeliveryTaskStatusPending},
	DeliveryTaskStatusFailed:         {DeliveryTaskStatusPending},
}

// String implements fmt.Stringer.
func (d DeliveryTaskStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DeliveryTaskStatus.
func (d DeliveryTaskStatus) IsValid() bool {
	for _, candidate := range validDeliveryTaskStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// IsDelivered reports whether the task reached its only terminal status.
func (d DeliveryTaskStatus) IsDelivered() bool {
	return d == DeliveryTaskStatusDelivered
}

// CanTransitionTo reports whether next is reachable from the current status.
func (d DeliveryTaskStatus) CanTransitionTo(next DeliveryTaskStatus) bool {
	for _, candidate := range deliveryTaskTransitions[d] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseDeliveryTaskStatus converts raw input into a DeliveryTaskStatus.
func ParseDeliveryTaskStatus(value string) (DeliveryTaskStatus, error) {
	for _, candidate := range validDeliveryTaskStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery task status %q", value)
}

package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateCampaign          OutboxAggregateType = "campaign"
	AggregateCampaignPhase     OutboxAggregateType = "campaign_phase"
	AggregateOperationRequest  OutboxAggregateType = "operation_request"
	AggregateIngredientRequest OutboxAggregateType = "ingredient_request"
	AggregateExpenseProof      OutboxAggregateType = "expense_proof"
	AggregateMealBatch         OutboxAggregateType = "meal_batch"
	AggregateDeliveryTask      OutboxAggregateType = "delivery_task"
	AggregateDonation          OutboxAggregateType = "donation"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateCampaign,
	AggregateCampaignPhase,
	AggregateOperationRequest,
	AggregateIngredientRequest,
	AggregateExpenseProof,
	AggregateMealBatch,
	AggregateDeliveryTask,
	AggregateDonation,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventPhaseTransitioned        OutboxEventType = "phase_transitioned"
	EventPhaseCompletionDeferred  OutboxEventType = "phase_completion_deferred"
	EventPhaseStatusCorrected     OutboxEventType = "phase_status_corrected"
	EventDisbursementRequested    OutboxEventType = "disbursement_requested"
	EventDisbursementApproved     OutboxEventType = "disbursement_approved"
	EventDisbursementRejected     OutboxEventType = "disbursement_rejected"
	EventIngredientRequestCreated OutboxEventType = "ingredient_request_created"
	EventIngredientRequestDecided OutboxEventType = "ingredient_request_decided"
	EventExpenseProofSubmitted    OutboxEventType = "expense_proof_submitted"
	EventExpenseProofAudited      OutboxEventType = "expense_proof_audited"
	EventMealBatchStatusChanged   OutboxEventType = "meal_batch_status_changed"
	EventDeliveryTaskStatusChange OutboxEventType = "delivery_task_status_changed"
	EventCampaignApproved         OutboxEventType = "campaign_approved"
	EventCampaignCancelled        OutboxEventType = "campaign_cancelled"
	EventDonationSettled          OutboxEventType = "donation_settled"
	EventDispositionRecorded      OutboxEventType = "disposition_recorded"
)

var validOutboxEventTypes = []OutboxEventType{
	EventPhaseTransitioned,
	EventPhaseCompletionDeferred,
	EventPhaseStatusCorrected,
	EventDisbursementRequested,
	EventDisbursementApproved,
	EventDisbursementRejected,
	EventIngredientRequestCreated,
	EventIngredientRequestDecided,
	EventExpenseProofSubmitted,
	EventExpenseProofAudited,
	EventMealBatchStatusChanged,
	EventDeliveryTaskStatusChange,
	EventCampaignApproved,
	EventCampaignCancelled,
	EventDonationSettled,
	EventDispositionRecorded,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason records why the relay gave up on a row.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

// IsValid reports whether the value is a known dead-letter reason.
func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}

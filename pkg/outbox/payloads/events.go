package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodfund-backend/pkg/enums"
)

// PhaseTransitionedEvent is emitted whenever the phase state machine applies an event.
type PhaseTransitionedEvent struct {
	PhaseID    uuid.UUID            `json:"phase_id"`
	CampaignID uuid.UUID            `json:"campaign_id"`
	EventType  enums.PhaseEventType `json:"event_type"`
	SourceID   uuid.UUID            `json:"source_id"`
	From       enums.PhaseStatus    `json:"from"`
	To         enums.PhaseStatus    `json:"to"`
	Version    int64                `json:"version"`
	OccurredAt time.Time            `json:"occurred_at"`
	Reason     string               `json:"reason,omitempty"`
}

// PhaseCompletionDeferredEvent is emitted when sequential execution holds back a completion.
type PhaseCompletionDeferredEvent struct {
	PhaseID         uuid.UUID `json:"phase_id"`
	CampaignID      uuid.UUID `json:"campaign_id"`
	BlockingPhaseID uuid.UUID `json:"blocking_phase_id"`
}

// PhaseStatusCorrectedEvent records an administrator repairing an undetermined status.
type PhaseStatusCorrectedEvent struct {
	PhaseID    uuid.UUID         `json:"phase_id"`
	CampaignID uuid.UUID         `json:"campaign_id"`
	RawStatus  string            `json:"raw_status"`
	Status     enums.PhaseStatus `json:"status"`
}

// DisbursementEvent covers operation request creation and decisions.
type DisbursementEvent struct {
	OperationRequestID uuid.UUID          `json:"operation_request_id"`
	PhaseID            uuid.UUID          `json:"phase_id"`
	ExpenseType        enums.ExpenseType  `json:"expense_type"`
	Amount             int64              `json:"amount"`
	Status             enums.ReviewStatus `json:"status"`
	Note               string             `json:"note,omitempty"`
}

// IngredientRequestEvent covers ingredient request creation and decisions.
type IngredientRequestEvent struct {
	IngredientRequestID uuid.UUID          `json:"ingredient_request_id"`
	PhaseID             uuid.UUID          `json:"phase_id"`
	TotalCost           int64              `json:"total_cost"`
	Status              enums.ReviewStatus `json:"status"`
}

// ExpenseProofEvent covers proof submission and audit decisions.
type ExpenseProofEvent struct {
	ExpenseProofID     uuid.UUID          `json:"expense_proof_id"`
	OperationRequestID uuid.UUID          `json:"operation_request_id"`
	PhaseID            uuid.UUID          `json:"phase_id"`
	Amount             int64              `json:"amount"`
	Status             enums.ReviewStatus `json:"status"`
	AdminNote          string             `json:"admin_note,omitempty"`
	Resubmissions      int                `json:"resubmissions"`
}

// MealBatchStatusEvent is emitted when a meal batch changes status.
type MealBatchStatusEvent struct {
	MealBatchID uuid.UUID             `json:"meal_batch_id"`
	PhaseID     uuid.UUID             `json:"phase_id"`
	Status      enums.MealBatchStatus `json:"status"`
	CookedDate  *time.Time            `json:"cooked_date,omitempty"`
}

// DeliveryTaskStatusEvent is emitted when a delivery task changes status.
type DeliveryTaskStatusEvent struct {
	DeliveryTaskID uuid.UUID                `json:"delivery_task_id"`
	MealBatchID    uuid.UUID                `json:"meal_batch_id"`
	PhaseID        uuid.UUID                `json:"phase_id"`
	AssignedTo     uuid.UUID                `json:"assigned_to"`
	Status         enums.DeliveryTaskStatus `json:"status"`
	Note           string                   `json:"note,omitempty"`
}

// CampaignEvent covers campaign approval and cancellation.
type CampaignEvent struct {
	CampaignID        uuid.UUID            `json:"campaign_id"`
	Status            enums.CampaignStatus `json:"status"`
	PhaseIDs          []uuid.UUID          `json:"phase_ids,omitempty"`
	CancelledForCause bool                 `json:"cancelled_for_cause,omitempty"`
	Reason            string               `json:"reason,omitempty"`
}

// DonationSettledEvent is emitted when a donation settles and the received amount moves.
type DonationSettledEvent struct {
	DonationID     uuid.UUID `json:"donation_id"`
	CampaignID     uuid.UUID `json:"campaign_id"`
	Amount         int64     `json:"amount"`
	ReceivedAmount int64     `json:"received_amount"`
	// Set when the donation settled after the campaign's refund or sweep was recorded.
	DispositionAction enums.DonationDispositionAction `json:"disposition_action,omitempty"`
}

// DispositionRecordedEvent is emitted once per campaign when funds are resolved.
type DispositionRecordedEvent struct {
	DispositionID uuid.UUID                `json:"disposition_id"`
	CampaignID    uuid.UUID                `json:"campaign_id"`
	Trigger       enums.DispositionTrigger `json:"trigger"`
	Outcome       enums.DispositionOutcome `json:"outcome"`
	FundingRatio  string                   `json:"funding_ratio"`
	DonationCount int                      `json:"donation_count"`
}

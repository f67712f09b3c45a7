package registry

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodfund-backend/pkg/config"
	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	"github.com/angelmondragon/foodfund-backend/pkg/outbox"
	"github.com/angelmondragon/foodfund-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry with the configured topic names.
// Workflow events go to the domain topic; events people should hear about
// are routed to the notification topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.DomainTopic == "" {
		return nil, fmt.Errorf("domain topic is required")
	}
	if cfg.NotificationTopic == "" {
		return nil, fmt.Errorf("notification topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	domainTopic := cfg.DomainTopic
	notificationTopic := cfg.NotificationTopic

	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventPhaseTransitioned,
			AggregateType:  enums.AggregateCampaignPhase,
			Topic:          domainTopic,
			PayloadFactory: func() interface{} { return &payloads.PhaseTransitionedEvent{} },
		},
		{
			EventType:      enums.EventPhaseCompletionDeferred,
			AggregateType:  enums.AggregateCampaignPhase,
			Topic:          domainTopic,
			PayloadFactory: func() interface{} { return &payloads.PhaseCompletionDeferredEvent{} },
		},
		{
			EventType:      enums.EventPhaseStatusCorrected,
			AggregateType:  enums.AggregateCampaignPhase,
			Topic:          domainTopic,
			PayloadFactory: func() interface{} { return &payloads.PhaseStatusCorrectedEvent{} },
		},
		{
			EventType:      enums.EventDisbursementRequested,
			AggregateType:  enums.AggregateOperationRequest,
			Topic:          domainTopic,
			PayloadFactory: func() interface{} { return &payloads.DisbursementEvent{} },
		},
		{
			EventType:      enums.EventIngredientRequestCreated,
			AggregateType:  enums.AggregateIngredientRequest,
			Topic:          domainTopic,
			PayloadFactory: func() interface{} { return &payloads.IngredientRequestEvent{} },
		},
		{
			EventType:      enums.EventExpenseProofSubmitted,
			AggregateType:  enums.AggregateExpenseProof,
			Topic:          domainTopic,
			PayloadFactory: func() interface{} { return &payloads.ExpenseProofEvent{} },
		},
		{
			EventType:      enums.EventMealBatchStatusChanged,
			AggregateType:  enums.AggregateMealBatch,
			Topic:          domainTopic,
			PayloadFactory: func() interface{} { return &payloads.MealBatchStatusEvent{} },
		},
		{
			EventType:      enums.EventDonationSettled,
			AggregateType:  enums.AggregateDonation,
			Topic:          domainTopic,
			PayloadFactory: func() interface{} { return &payloads.DonationSettledEvent{} },
		},
		{
			EventType:      enums.EventCampaignApproved,
			AggregateType:  enums.AggregateCampaign,
			Topic:          domainTopic,
			PayloadFactory: func() interface{} { return &payloads.CampaignEvent{} },
		},
	} {
		reg.register(desc)
	}
	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventDisbursementApproved,
			AggregateType:  enums.AggregateOperationRequest,
			Topic:          notificationTopic,
			PayloadFactory: func() interface{} { return &payloads.DisbursementEvent{} },
		},
		{
			EventType:      enums.EventDisbursementRejected,
			AggregateType:  enums.AggregateOperationRequest,
			Topic:          notificationTopic,
			PayloadFactory: func() interface{} { return &payloads.DisbursementEvent{} },
		},
		{
			EventType:      enums.EventIngredientRequestDecided,
			AggregateType:  enums.AggregateIngredientRequest,
			Topic:          notificationTopic,
			PayloadFactory: func() interface{} { return &payloads.IngredientRequestEvent{} },
		},
		{
			EventType:      enums.EventExpenseProofAudited,
			AggregateType:  enums.AggregateExpenseProof,
			Topic:          notificationTopic,
			PayloadFactory: func() interface{} { return &payloads.ExpenseProofEvent{} },
		},
		{
			EventType:      enums.EventDeliveryTaskStatusChange,
			AggregateType:  enums.AggregateDeliveryTask,
			Topic:          notificationTopic,
			PayloadFactory: func() interface{} { return &payloads.DeliveryTaskStatusEvent{} },
		},
		{
			EventType:      enums.EventCampaignCancelled,
			AggregateType:  enums.AggregateCampaign,
			Topic:          notificationTopic,
			PayloadFactory: func() interface{} { return &payloads.CampaignEvent{} },
		},
		{
			EventType:      enums.EventDispositionRecorded,
			AggregateType:  enums.AggregateCampaign,
			Topic:          notificationTopic,
			PayloadFactory: func() interface{} { return &payloads.DispositionRecordedEvent{} },
		},
	} {
		reg.register(desc)
	}

	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

package phases

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodfund-backend/pkg/db/models"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodfund-backend/pkg/errors"
)

// State is the serializable snapshot the machine operates on.
type State struct {
	Status                 enums.PhaseStatus `json:"status"`
	IngredientFundAmount   int64             `json:"ingredientFundAmount"`
	CookingFundAmount      int64             `json:"cookingFundAmount"`
	DeliveryFundAmount     int64             `json:"deliveryFundAmount"`
	IngredientDisbursed    int64             `json:"ingredientDisbursed"`
	CookingDisbursed       int64             `json:"cookingDisbursed"`
	DeliveryDisbursed      int64             `json:"deliveryDisbursed"`
	IngredientPurchaseDate *time.Time        `json:"ingredientPurchaseDate,omitempty"`
	CookingDate            *time.Time        `json:"cookingDate,omitempty"`
	DeliveryDate           *time.Time        `json:"deliveryDate,omitempty"`
	AuditRejections        int               `json:"auditRejections"`
	Version                int64             `json:"version"`
}

// Event is a trigger raised by a tracker, the disbursement gate or an administrator.
type Event struct {
	Type        enums.PhaseEventType `json:"type"`
	SourceID    uuid.UUID            `json:"sourceId"`
	ExpenseType enums.ExpenseType    `json:"expenseType,omitempty"`
	Amount      int64                `json:"amount,omitempty"`
	Outstanding int                  `json:"outstanding,omitempty"`
	Reason      string               `json:"reason,omitempty"`
	ActorID     *uuid.UUID           `json:"actorId,omitempty"`
	OccurredAt  time.Time            `json:"occurredAt"`
}

// Policy holds the configurable limits the machine enforces.
type Policy struct {
	MaxAuditResubmissions int
}

type ruleKey struct {
	from  enums.PhaseStatus
	event enums.PhaseEventType
}

type rule struct {
	to     enums.PhaseStatus
	guard  func(State, Event, Policy) error
	effect func(*State, Event, Policy)
}

var transitions = map[ruleKey]rule{
	{enums.PhaseStatusPlanning, enums.PhaseEventIngredientRequestApproved}: {
		to:    enums.PhaseStatusAwaitingIngredientDisbursement,
		guard: guardIngredientBudget,
		// The approved total narrows the planned ingredient allocation.
		effect: func(s *State, ev Event, _ Policy) {
			s.IngredientFundAmount = min(s.IngredientFundAmount, ev.Amount)
		},
	},
	{enums.PhaseStatusAwaitingIngredientDisbursement, enums.PhaseEventDisbursementApproved}: {
		to:     enums.PhaseStatusIngredientPurchase,
		guard:  guardDisbursement(enums.ExpenseTypeIngredient),
		effect: recordDisbursement,
	},
	{enums.PhaseStatusIngredientPurchase, enums.PhaseEventExpenseProofSubmitted}: {
		to: enums.PhaseStatusAwaitingAudit,
	},
	{enums.PhaseStatusAwaitingAudit, enums.PhaseEventExpenseProofApproved}: {
		to: enums.PhaseStatusAwaitingCookingDisbursement,
		effect: func(s *State, ev Event, _ Policy) {
			s.IngredientPurchaseDate = stampOnce(s.IngredientPurchaseDate, ev.OccurredAt)
		},
	},
	{enums.PhaseStatusAwaitingAudit, enums.PhaseEventExpenseProofRejected}: {
		to: enums.PhaseStatusIngredientPurchase,
		effect: func(s *State, _ Event, p Policy) {
			s.AuditRejections++
			if s.AuditRejections > p.MaxAuditResubmissions {
				s.Status = enums.PhaseStatusFailed
			}
		},
	},
	{enums.PhaseStatusAwaitingCookingDisbursement, enums.PhaseEventDisbursementApproved}: {
		to:     enums.PhaseStatusCooking,
		guard:  guardDisbursement(enums.ExpenseTypeCooking),
		effect: recordDisbursement,
	},
	{enums.PhaseStatusCooking, enums.PhaseEventMealBatchCooked}: {
		to: enums.PhaseStatusAwaitingDeliveryDisbursement,
		effect: func(s *State, ev Event, _ Policy) {
			s.CookingDate = stampOnce(s.CookingDate, ev.OccurredAt)
		},
	},
	{enums.PhaseStatusAwaitingDeliveryDisbursement, enums.PhaseEventDisbursementApproved}: {
		to:     enums.PhaseStatusDelivery,
		guard:  guardDisbursement(enums.ExpenseTypeDelivery),
		effect: recordDisbursement,
	},
	{enums.PhaseStatusDelivery, enums.PhaseEventDeliveriesCompleted}: {
		to: enums.PhaseStatusCompleted,
		guard: func(_ State, ev Event, _ Policy) error {
			if ev.Outstanding != 0 {
				return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("%d delivery tasks are not delivered", ev.Outstanding))
			}
			return nil
		},
		effect: func(s *State, ev Event, _ Policy) {
			s.DeliveryDate = stampOnce(s.DeliveryDate, ev.OccurredAt)
		},
	},
}

// Apply runs one event through the transition table and returns the next state.
// The input state is never modified.
func Apply(current State, ev Event, policy Policy) (State, error) {
	from := current.Status
	if from == enums.PhaseStatusFailed {
		return current, pkgerrors.New(pkgerrors.CodePhaseFailed, "phase has failed")
	}
	if from.IsTerminal() {
		return current, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("phase is %s", from))
	}
	if !ev.Type.IsValid() {
		return current, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown phase event %q", ev.Type))
	}

	next := current
	switch ev.Type {
	case enums.PhaseEventCancelled:
		next.Status = enums.PhaseStatusCancelled
	case enums.PhaseEventFailed:
		next.Status = enums.PhaseStatusFailed
	default:
		if from == enums.PhaseStatusUndetermined || !from.IsValid() {
			return current, pkgerrors.New(pkgerrors.CodeUnrecognizedStatus, "phase status is undetermined; an administrator must correct it")
		}
		r, ok := transitions[ruleKey{from: from, event: ev.Type}]
		if !ok {
			return current, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("%s is not allowed while phase is %s", ev.Type, from))
		}
		if r.guard != nil {
			if err := r.guard(current, ev, policy); err != nil {
				return current, err
			}
		}
		next.Status = r.to
		if r.effect != nil {
			r.effect(&next, ev, policy)
		}
	}

	if err := checkInvariants(next); err != nil {
		return current, err
	}
	next.Version = current.Version + 1
	return next, nil
}

// Allocation returns the fund amount allocated to the expense category.
func (s State) Allocation(expenseType enums.ExpenseType) int64 {
	switch expenseType {
	case enums.ExpenseTypeIngredient:
		return s.IngredientFundAmount
	case enums.ExpenseTypeCooking:
		return s.CookingFundAmount
	case enums.ExpenseTypeDelivery:
		return s.DeliveryFundAmount
	}
	return 0
}

// Disbursed returns the amount already released for the expense category.
func (s State) Disbursed(expenseType enums.ExpenseType) int64 {
	switch expenseType {
	case enums.ExpenseTypeIngredient:
		return s.IngredientDisbursed
	case enums.ExpenseTypeCooking:
		return s.CookingDisbursed
	case enums.ExpenseTypeDelivery:
		return s.DeliveryDisbursed
	}
	return 0
}

// Remaining returns the undisbursed balance for the expense category.
func (s State) Remaining(expenseType enums.ExpenseType) int64 {
	return s.Allocation(expenseType) - s.Disbursed(expenseType)
}

// StateFromModel builds a snapshot from a persisted phase.
func StateFromModel(p models.CampaignPhase) State {
	return State{
		Status:                 p.PhaseStatus(),
		IngredientFundAmount:   p.IngredientFundAmount,
		CookingFundAmount:      p.CookingFundAmount,
		DeliveryFundAmount:     p.DeliveryFundAmount,
		IngredientDisbursed:    p.IngredientDisbursed,
		CookingDisbursed:       p.CookingDisbursed,
		DeliveryDisbursed:      p.DeliveryDisbursed,
		IngredientPurchaseDate: p.IngredientPurchaseDate,
		CookingDate:            p.CookingDate,
		DeliveryDate:           p.DeliveryDate,
		AuditRejections:        p.AuditRejections,
		Version:                p.Version,
	}
}

// ApplyToModel copies the snapshot onto a persisted phase.
func (s State) ApplyToModel(p *models.CampaignPhase) {
	p.Status = string(s.Status)
	p.IngredientFundAmount = s.IngredientFundAmount
	p.CookingFundAmount = s.CookingFundAmount
	p.DeliveryFundAmount = s.DeliveryFundAmount
	p.IngredientDisbursed = s.IngredientDisbursed
	p.CookingDisbursed = s.CookingDisbursed
	p.DeliveryDisbursed = s.DeliveryDisbursed
	p.IngredientPurchaseDate = s.IngredientPurchaseDate
	p.CookingDate = s.CookingDate
	p.DeliveryDate = s.DeliveryDate
	p.AuditRejections = s.AuditRejections
	p.Version = s.Version
}

// guardIngredientBudget keeps an approved ingredient request within the
// ingredient allocation fixed by the campaign's phase plan.
func guardIngredientBudget(s State, ev Event, p Policy) error {
	if err := requirePositiveAmount(s, ev, p); err != nil {
		return err
	}
	if ev.Amount > s.IngredientFundAmount {
		return pkgerrors.New(pkgerrors.CodeInsufficientAllocation,
			fmt.Sprintf("ingredient request total %d exceeds the planned ingredient allocation %d", ev.Amount, s.IngredientFundAmount))
	}
	return nil
}

func requirePositiveAmount(_ State, ev Event, _ Policy) error {
	if ev.Amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	return nil
}

func guardDisbursement(expected enums.ExpenseType) func(State, Event, Policy) error {
	return func(s State, ev Event, _ Policy) error {
		if ev.ExpenseType != expected {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("phase awaits %s disbursement, got %s", expected, ev.ExpenseType))
		}
		if ev.Amount <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
		}
		if ev.Amount > s.Remaining(expected) {
			return pkgerrors.New(pkgerrors.CodeInsufficientAllocation, fmt.Sprintf("amount %d exceeds remaining %s allocation %d", ev.Amount, expected, s.Remaining(expected)))
		}
		return nil
	}
}

func recordDisbursement(s *State, ev Event, _ Policy) {
	switch ev.ExpenseType {
	case enums.ExpenseTypeIngredient:
		s.IngredientDisbursed += ev.Amount
	case enums.ExpenseTypeCooking:
		s.CookingDisbursed += ev.Amount
	case enums.ExpenseTypeDelivery:
		s.DeliveryDisbursed += ev.Amount
	}
}

func stampOnce(existing *time.Time, at time.Time) *time.Time {
	if existing != nil {
		return existing
	}
	if at.IsZero() {
		at = time.Now()
	}
	stamped := at.UTC()
	return &stamped
}

// checkInvariants rejects snapshots no sequence of valid events can produce.
func checkInvariants(s State) error {
	for _, t := range []enums.ExpenseType{enums.ExpenseTypeIngredient, enums.ExpenseTypeCooking, enums.ExpenseTypeDelivery} {
		if s.Disbursed(t) < 0 || s.Allocation(t) < 0 {
			return pkgerrors.New(pkgerrors.CodeInvariantViolation, fmt.Sprintf("negative %s balance", t))
		}
		if s.Disbursed(t) > s.Allocation(t) {
			return pkgerrors.New(pkgerrors.CodeInvariantViolation, fmt.Sprintf("%s disbursed exceeds allocation", t))
		}
	}
	return nil
}

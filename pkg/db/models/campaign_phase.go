package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodfund-backend/pkg/enums"
)

// CampaignPhase is one bounded stage of a campaign's food program. Status is
// stored as raw text so unknown values survive a read and resolve to
// UNDETERMINED instead of failing the scan.
type CampaignPhase struct {
	ID                     uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CampaignID             uuid.UUID  `gorm:"column:campaign_id;type:uuid;not null" json:"campaignId"`
	Name                   string     `gorm:"column:name;not null" json:"name"`
	Position               int        `gorm:"column:position;not null" json:"position"`
	Status                 string     `gorm:"column:status;type:text;not null;default:'PLANNING'" json:"status"`
	IngredientFundAmount   int64      `gorm:"column:ingredient_fund_amount;not null;default:0" json:"ingredientFundAmount"`
	CookingFundAmount      int64      `gorm:"column:cooking_fund_amount;not null;default:0" json:"cookingFundAmount"`
	DeliveryFundAmount     int64      `gorm:"column:delivery_fund_amount;not null;default:0" json:"deliveryFundAmount"`
	IngredientDisbursed    int64      `gorm:"column:ingredient_disbursed;not null;default:0" json:"ingredientDisbursed"`
	CookingDisbursed       int64      `gorm:"column:cooking_disbursed;not null;default:0" json:"cookingDisbursed"`
	DeliveryDisbursed      int64      `gorm:"column:delivery_disbursed;not null;default:0" json:"deliveryDisbursed"`
	IngredientPurchaseDate *time.Time `gorm:"column:ingredient_purchase_date" json:"ingredientPurchaseDate,omitempty"`
	CookingDate            *time.Time `gorm:"column:cooking_date" json:"cookingDate,omitempty"`
	DeliveryDate           *time.Time `gorm:"column:delivery_date" json:"deliveryDate,omitempty"`
	AuditRejections        int        `gorm:"column:audit_rejections;not null;default:0" json:"auditRejections"`
	TerminalReason         *string    `gorm:"column:terminal_reason" json:"terminalReason,omitempty"`
	Version                int64      `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt              time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt              time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// PhaseStatus resolves the stored status string.
func (p CampaignPhase) PhaseStatus() enums.PhaseStatus {
	return enums.ResolvePhaseStatus(p.Status)
}

// PhaseEvent is the append-only log of events applied to a phase.
type PhaseEvent struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CampaignPhaseID uuid.UUID            `gorm:"column:campaign_phase_id;type:uuid;not null" json:"campaignPhaseId"`
	Sequence        int64                `gorm:"column:sequence;not null" json:"sequence"`
	EventType       enums.PhaseEventType `gorm:"column:event_type;type:text;not null" json:"eventType"`
	SourceID        uuid.UUID            `gorm:"column:source_id;type:uuid;not null" json:"sourceId"`
	ExpenseType     *enums.ExpenseType   `gorm:"column:expense_type;type:text" json:"expenseType,omitempty"`
	Amount          int64                `gorm:"column:amount;not null;default:0" json:"amount"`
	Outstanding     int                  `gorm:"column:outstanding;not null;default:0" json:"outstanding"`
	Reason          *string              `gorm:"column:reason" json:"reason,omitempty"`
	FromStatus      string               `gorm:"column:from_status;type:text;not null" json:"fromStatus"`
	ToStatus        string               `gorm:"column:to_status;type:text;not null" json:"toStatus"`
	ActorID         *uuid.UUID           `gorm:"column:actor_id;type:uuid" json:"actorId,omitempty"`
	OccurredAt      time.Time            `gorm:"column:occurred_at;not null" json:"occurredAt"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

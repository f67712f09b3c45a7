package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/foodfund-backend/pkg/enums"
)

// IngredientRequest is a kitchen's procurement plan for a phase.
type IngredientRequest struct {
	ID              uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CampaignPhaseID uuid.UUID               `gorm:"column:campaign_phase_id;type:uuid;not null" json:"campaignPhaseId"`
	RequestedBy     uuid.UUID               `gorm:"column:requested_by;type:uuid;not null" json:"requestedBy"`
	TotalCost       int64                   `gorm:"column:total_cost;not null" json:"totalCost"`
	Status          enums.ReviewStatus      `gorm:"column:status;type:text;not null;default:'PENDING'" json:"status"`
	AdminNote       *string                 `gorm:"column:admin_note" json:"adminNote,omitempty"`
	ReviewedBy      *uuid.UUID              `gorm:"column:reviewed_by;type:uuid" json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time              `gorm:"column:reviewed_at" json:"reviewedAt,omitempty"`
	Items           []IngredientRequestItem `gorm:"foreignKey:IngredientRequestID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt       time.Time               `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time               `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// IngredientRequestItem is one priced line of an ingredient request.
type IngredientRequestItem struct {
	ID                  uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	IngredientRequestID uuid.UUID       `gorm:"column:ingredient_request_id;type:uuid;not null" json:"ingredientRequestId"`
	Position            int             `gorm:"column:position;not null" json:"position"`
	Name                string          `gorm:"column:name;not null" json:"name"`
	Quantity            decimal.Decimal `gorm:"column:quantity;type:numeric(12,3);not null" json:"quantity"`
	Unit                string          `gorm:"column:unit;not null" json:"unit"`
	EstimatedUnitPrice  int64           `gorm:"column:estimated_unit_price;not null" json:"estimatedUnitPrice"`
	EstimatedTotalPrice int64           `gorm:"column:estimated_total_price;not null" json:"estimatedTotalPrice"`
	Supplier            *string         `gorm:"column:supplier" json:"supplier,omitempty"`
}

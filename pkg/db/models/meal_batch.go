package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/foodfund-backend/pkg/enums"
)

// MealBatch is a batch of meals cooked during a phase.
type MealBatch struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CampaignPhaseID  uuid.UUID             `gorm:"column:campaign_phase_id;type:uuid;not null" json:"campaignPhaseId"`
	PreparedBy       uuid.UUID             `gorm:"column:prepared_by;type:uuid;not null" json:"preparedBy"`
	FoodName         string                `gorm:"column:food_name;not null" json:"foodName"`
	Quantity         int                   `gorm:"column:quantity;not null" json:"quantity"`
	Status           enums.MealBatchStatus `gorm:"column:status;type:text;not null;default:'PREPARING'" json:"status"`
	CookedDate       *time.Time            `gorm:"column:cooked_date" json:"cookedDate,omitempty"`
	Media            pq.StringArray        `gorm:"column:media;type:text[]" json:"media"`
	IngredientUsages []IngredientUsage     `gorm:"foreignKey:MealBatchID;constraint:OnDelete:CASCADE" json:"ingredientUsages"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time             `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// IngredientUsage links a meal batch to an ingredient request line it consumed.
type IngredientUsage struct {
	ID                      uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MealBatchID             uuid.UUID       `gorm:"column:meal_batch_id;type:uuid;not null" json:"mealBatchId"`
	IngredientRequestItemID uuid.UUID       `gorm:"column:ingredient_request_item_id;type:uuid;not null" json:"ingredientRequestItemId"`
	QuantityUsed            decimal.Decimal `gorm:"column:quantity_used;type:numeric(12,3);not null" json:"quantityUsed"`
}

func (IngredientUsage) TableName() string {
	return "meal_batch_ingredient_usages"
}

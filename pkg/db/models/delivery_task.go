package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodfund-backend/pkg/enums"
)

// DeliveryTask assigns a meal batch delivery to a delivery staff member.
type DeliveryTask struct {
	ID              uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MealBatchID     uuid.UUID                `gorm:"column:meal_batch_id;type:uuid;not null" json:"mealBatchId"`
	CampaignPhaseID uuid.UUID                `gorm:"column:campaign_phase_id;type:uuid;not null" json:"campaignPhaseId"`
	AssignedTo      uuid.UUID                `gorm:"column:assigned_to;type:uuid;not null" json:"assignedTo"`
	Status          enums.DeliveryTaskStatus `gorm:"column:status;type:text;not null;default:'PENDING'" json:"status"`
	DeliveredAt     *time.Time               `gorm:"column:delivered_at" json:"deliveredAt,omitempty"`
	StatusLogs      []DeliveryStatusLog      `gorm:"foreignKey:DeliveryTaskID;constraint:OnDelete:CASCADE" json:"statusLogs"`
	CreatedAt       time.Time                `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time                `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// DeliveryStatusLog is one entry in a delivery task's status history.
type DeliveryStatusLog struct {
	ID             uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	DeliveryTaskID uuid.UUID                `gorm:"column:delivery_task_id;type:uuid;not null" json:"deliveryTaskId"`
	Status         enums.DeliveryTaskStatus `gorm:"column:status;type:text;not null" json:"status"`
	Note           *string                  `gorm:"column:note" json:"note,omitempty"`
	ChangedBy      uuid.UUID                `gorm:"column:changed_by;type:uuid;not null" json:"changedBy"`
	CreatedAt      time.Time                `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

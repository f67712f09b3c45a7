package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/angelmondragon/foodfund-backend/pkg/enums"
)

// OperationRequest is a disbursement request against a phase allocation.
type OperationRequest struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CampaignPhaseID uuid.UUID          `gorm:"column:campaign_phase_id;type:uuid;not null" json:"campaignPhaseId"`
	RequestedBy     uuid.UUID          `gorm:"column:requested_by;type:uuid;not null" json:"requestedBy"`
	Title           string             `gorm:"column:title;not null" json:"title"`
	ExpenseType     enums.ExpenseType  `gorm:"column:expense_type;type:text;not null" json:"expenseType"`
	TotalCost       int64              `gorm:"column:total_cost;not null" json:"totalCost"`
	Status          enums.ReviewStatus `gorm:"column:status;type:text;not null;default:'PENDING'" json:"status"`
	AdminNote       *string            `gorm:"column:admin_note" json:"adminNote,omitempty"`
	ReviewedBy      *uuid.UUID         `gorm:"column:reviewed_by;type:uuid" json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time         `gorm:"column:reviewed_at" json:"reviewedAt,omitempty"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// ExpenseProof is receipt evidence submitted against an approved operation request.
type ExpenseProof struct {
	ID                 uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OperationRequestID uuid.UUID          `gorm:"column:operation_request_id;type:uuid;not null" json:"requestId"`
	CampaignPhaseID    uuid.UUID          `gorm:"column:campaign_phase_id;type:uuid;not null" json:"campaignPhaseId"`
	SubmittedBy        uuid.UUID          `gorm:"column:submitted_by;type:uuid;not null" json:"submittedBy"`
	Amount             int64              `gorm:"column:amount;not null" json:"amount"`
	Media              pq.StringArray     `gorm:"column:media;type:text[]" json:"media"`
	Status             enums.ReviewStatus `gorm:"column:status;type:text;not null;default:'PENDING'" json:"status"`
	AdminNote          *string            `gorm:"column:admin_note" json:"adminNote,omitempty"`
	ReviewedBy         *uuid.UUID         `gorm:"column:reviewed_by;type:uuid" json:"reviewedBy,omitempty"`
	ReviewedAt         *time.Time         `gorm:"column:reviewed_at" json:"reviewedAt,omitempty"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt          time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodfund-backend/pkg/enums"
)

// Campaign is a fundraising campaign that owns an ordered list of phases.
type Campaign struct {
	ID                   uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrganizationID       uuid.UUID            `gorm:"column:organization_id;type:uuid;not null" json:"organizationId"`
	CreatedBy            uuid.UUID            `gorm:"column:created_by;type:uuid;not null" json:"createdBy"`
	Title                string               `gorm:"column:title;not null" json:"title"`
	Description          *string              `gorm:"column:description" json:"description,omitempty"`
	Status               enums.CampaignStatus `gorm:"column:status;type:text;not null;default:'PENDING'" json:"status"`
	TargetAmount         int64                `gorm:"column:target_amount;not null" json:"targetAmount"`
	ReceivedAmount       int64                `gorm:"column:received_amount;not null;default:0" json:"receivedAmount"`
	FundraisingStartDate time.Time            `gorm:"column:fundraising_start_date;not null" json:"fundraisingStartDate"`
	FundraisingEndDate   time.Time            `gorm:"column:fundraising_end_date;not null" json:"fundraisingEndDate"`
	CancelledForCause    bool                 `gorm:"column:cancelled_for_cause;not null;default:false" json:"cancelledForCause"`
	CancelReason         *string              `gorm:"column:cancel_reason" json:"cancelReason,omitempty"`
	CancelledAt          *time.Time           `gorm:"column:cancelled_at" json:"cancelledAt,omitempty"`
	ApprovedAt           *time.Time           `gorm:"column:approved_at" json:"approvedAt,omitempty"`
	Phases               []CampaignPhase      `gorm:"foreignKey:CampaignID" json:"phases,omitempty"`
	CreatedAt            time.Time            `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt            time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// Donation is an opaque payment-gateway transaction credited to a campaign.
type Donation struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CampaignID     uuid.UUID            `gorm:"column:campaign_id;type:uuid;not null" json:"campaignId"`
	DonorRef       string               `gorm:"column:donor_ref;not null" json:"donorRef"`
	TransactionRef string               `gorm:"column:transaction_ref;not null" json:"transactionRef"`
	Amount         int64                `gorm:"column:amount;not null" json:"amount"`
	Status         enums.DonationStatus `gorm:"column:status;type:text;not null;default:'PENDING'" json:"status"`
	SettledAt      *time.Time           `gorm:"column:settled_at" json:"settledAt,omitempty"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

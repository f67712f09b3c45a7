package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/foodfund-backend/pkg/enums"
)

// CampaignDisposition records the once-per-campaign refund/sweep decision.
type CampaignDisposition struct {
	ID             uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CampaignID     uuid.UUID                `gorm:"column:campaign_id;type:uuid;not null" json:"campaignId"`
	Trigger        enums.DispositionTrigger `gorm:"column:decision_trigger;type:text;not null" json:"trigger"`
	Outcome        enums.DispositionOutcome `gorm:"column:outcome;type:text;not null" json:"outcome"`
	ReceivedAmount int64                    `gorm:"column:received_amount;not null" json:"receivedAmount"`
	TargetAmount   int64                    `gorm:"column:target_amount;not null" json:"targetAmount"`
	FundingRatio   decimal.Decimal          `gorm:"column:funding_ratio;type:numeric(10,4);not null" json:"fundingRatio"`
	DecidedAt      time.Time                `gorm:"column:decided_at;not null" json:"decidedAt"`
	Donations      []DonationDisposition    `gorm:"foreignKey:DispositionID;constraint:OnDelete:CASCADE" json:"donations,omitempty"`
	CreatedAt      time.Time                `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

// DonationDisposition is the action applied to one settled donation.
type DonationDisposition struct {
	ID            uuid.UUID                       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	DispositionID uuid.UUID                       `gorm:"column:disposition_id;type:uuid;not null" json:"dispositionId"`
	DonationID    uuid.UUID                       `gorm:"column:donation_id;type:uuid;not null" json:"donationId"`
	Action        enums.DonationDispositionAction `gorm:"column:action;type:text;not null" json:"action"`
	Amount        int64                           `gorm:"column:amount;not null" json:"amount"`
	RefundPercent int                             `gorm:"column:refund_percent;not null;default:0" json:"refundPercent"`
	CreatedAt     time.Time                       `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

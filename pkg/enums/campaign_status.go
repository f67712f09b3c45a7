package enums

import "fmt"

// CampaignStatus tracks a fundraising campaign.
type CampaignStatus string

const (
	CampaignStatusPending   CampaignStatus = "PENDING"
	CampaignStatusActive    CampaignStatus = "ACTIVE"
	CampaignStatusClosed    CampaignStatus = "CLOSED"
	CampaignStatusCancelled CampaignStatus = "CANCELLED"
)

var validCampaignStatuses = []CampaignStatus{
	CampaignStatusPending,
	CampaignStatusActive,
	CampaignStatusClosed,
	CampaignStatusCancelled,
}

// String implements fmt.Stringer.
func (c CampaignStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CampaignStatus.
func (c CampaignStatus) IsValid() bool {
	for _, candidate := range validCampaignStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCampaignStatus converts raw input into a CampaignStatus.
func ParseCampaignStatus(value string) (CampaignStatus, error) {
	for _, candidate := range validCampaignStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid campaign status %q", value)
}

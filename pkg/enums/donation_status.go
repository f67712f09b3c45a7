package enums

import "fmt"

// DonationStatus tracks a donation transaction reported by the payment gateway.
type DonationStatus string

const (
	DonationStatusPending DonationStatus = "PENDING"
	DonationStatusSettled DonationStatus = "SETTLED"
	DonationStatusFailed  DonationStatus = "FAILED"
)

var validDonationStatuses = []DonationStatus{
	DonationStatusPending,
	DonationStatusSettled,
	DonationStatusFailed,
}

// String implements fmt.Stringer.
func (d DonationStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DonationStatus.
func (d DonationStatus) IsValid() bool {
	for _, candidate := range validDonationStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDonationStatus converts raw input into a DonationStatus.
func ParseDonationStatus(value string) (DonationStatus, error) {
	for _, candidate := range validDonationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid donation status %q", value)
}

package enums

import "fmt"

// DispositionTrigger records why a campaign's fund disposition was evaluated.
type DispositionTrigger string

const (
	DispositionTriggerWindowClosed      DispositionTrigger = "window_closed"
	DispositionTriggerCancelledForCause DispositionTrigger = "cancelled_for_cause"
)

// IsValid reports whether the value is a known DispositionTrigger.
func (d DispositionTrigger) IsValid() bool {
	return d == DispositionTriggerWindowClosed || d == DispositionTriggerCancelledForCause
}

// ParseDispositionTrigger converts raw input into a DispositionTrigger.
func ParseDispositionTrigger(value string) (DispositionTrigger, error) {
	trigger := DispositionTrigger(value)
	if !trigger.IsValid() {
		return "", fmt.Errorf("invalid disposition trigger %q", value)
	}
	return trigger, nil
}

// DispositionOutcome is the end-of-campaign decision for settled donations.
type DispositionOutcome string

const (
	DispositionOutcomeRefundFull       DispositionOutcome = "refund_full"
	DispositionOutcomeSweepGeneralFund DispositionOutcome = "sweep_general_fund"
	DispositionOutcomeNone             DispositionOutcome = "none"
)

var validDispositionOutcomes = []DispositionOutcome{
	DispositionOutcomeRefundFull,
	DispositionOutcomeSweepGeneralFund,
	DispositionOutcomeNone,
}

// IsValid reports whether the value is a known DispositionOutcome.
func (d DispositionOutcome) IsValid() bool {
	for _, candidate := range validDispositionOutcomes {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDispositionOutcome converts raw input into a DispositionOutcome.
func ParseDispositionOutcome(value string) (DispositionOutcome, error) {
	for _, candidate := range validDispositionOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid disposition outcome %q", value)
}

// DonationDispositionAction is applied to a single settled donation.
type DonationDispositionAction string

const (
	DonationDispositionRefund DonationDispositionAction = "refund"
	DonationDispositionSweep  DonationDispositionAction = "sweep"
)

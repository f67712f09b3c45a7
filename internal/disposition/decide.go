package disposition

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/foodfund-backend/pkg/enums"
)

// Input is everything the disposition rule looks at.
type Input struct {
	Trigger           enums.DispositionTrigger
	CancelledForCause bool
	ReceivedAmount    int64
	TargetAmount      int64
	SweepRatio        decimal.Decimal
}

// Decision is the outcome of the rule together with the ratio it used.
type Decision struct {
	Outcome      enums.DispositionOutcome
	FundingRatio decimal.Decimal
}

// Decide applies the close-of-campaign rule. A cancellation for cause always
// refunds in full; otherwise a campaign funded below the sweep ratio is swept
// to the general fund and anything at or above it keeps its funds.
func Decide(in Input) Decision {
	ratio := decimal.Zero
	if in.TargetAmount > 0 {
		ratio = decimal.NewFromInt(in.ReceivedAmount).Div(decimal.NewFromInt(in.TargetAmount))
	}
	decision := Decision{Outcome: enums.DispositionOutcomeNone, FundingRatio: ratio.Truncate(4)}
	switch {
	case in.CancelledForCause || in.Trigger == enums.DispositionTriggerCancelledForCause:
		decision.Outcome = enums.DispositionOutcomeRefundFull
	case ratio.LessThan(in.SweepRatio):
		decision.Outcome = enums.DispositionOutcomeSweepGeneralFund
	}
	return decision
}

// Action maps an outcome to the per-donation action and refund percentage.
func Action(outcome enums.DispositionOutcome) (enums.DonationDispositionAction, int, bool) {
	switch outcome {
	case enums.DispositionOutcomeRefundFull:
		return enums.DonationDispositionRefund, 100, true
	case enums.DispositionOutcomeSweepGeneralFund:
		return enums.DonationDispositionSweep, 0, true
	}
	return "", 0, false
}

// Package classifier labels a wallet's trading pattern and evaluates the
// leaderboard and copy-trade eligibility gates from engine output alone.
package classifier

import (
	"math"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

const (
	whaleOpenPositions = 100 // exclusive: 101 is a whale, 100 is not

	leaderboardHighPositions = 50
	leaderboardMinAbsPnL     = 100.0
	leaderboardMinEvents     = 10

	copyTradeMaxPositions       = 50
	copyTradeMinTrades          = 20
	copyTradeMinAbsPnL          = 500.0
	copyTradeMaxNegativeInvFrac = 0.10
)

// ClassifyWalletType returns the wallet badge. The whale override is checked
// first and wins over everything else.
func ClassifyWalletType(openPositions int, counts domain.KindCounts) domain.WalletType {
	if openPositions > whaleOpenPositions {
		return domain.WalletWhaleComplex
	}
	if isClobOnly(counts) {
		return domain.WalletClobOnly
	}
	return domain.WalletMixed
}

// EvaluateLeaderboardStrict accumulates every exclusion reason; it does not
// stop at the first one.
func EvaluateLeaderboardStrict(r domain.Result) domain.LeaderboardEligibility {
	reasons := []domain.ReasonCode{}
	if r.OpenPositions > whaleOpenPositions {
		reasons = append(reasons, domain.ReasonExtremePositionCount)
	}
	if r.OpenPositions > leaderboardHighPositions {
		reasons = append(reasons, domain.ReasonHighPositionCount)
	}
	if math.Abs(r.UIParityPnL) < leaderboardMinAbsPnL {
		reasons = append(reasons, domain.ReasonPnLTooSmall)
	}
	if r.EventsProcessed < leaderboardMinEvents {
		reasons = append(reasons, domain.ReasonInsufficientActivity)
	}

	return domain.LeaderboardEligibility{
		Eligible:         len(reasons) == 0,
		Reasons:          reasons,
		WalletType:       ClassifyWalletType(r.OpenPositions, r.Counts),
		ExposureEstimate: exposureEstimate(r),
	}
}

// EvaluateCopyTradeStrict runs four independent checks. Every failing check
// contributes its reasons and all of them are reported together.
func EvaluateCopyTradeStrict(r domain.Result) domain.CopyTradeEligibility {
	var checks domain.CopyTradeChecks
	reasons := []domain.ReasonCode{}

	checks.IsClobOnly = isClobOnly(r.Counts)
	if !checks.IsClobOnly {
		reasons = append(reasons, domain.ReasonNotClobOnly)
	}

	checks.PositionCountOK = r.OpenPositions <= copyTradeMaxPositions
	if !checks.PositionCountOK {
		reasons = append(reasons, domain.ReasonTooManyPositions)
	}

	enoughTrades := r.Counts.Trades >= copyTradeMinTrades
	bigEnough := math.Abs(r.UIParityPnL) >= copyTradeMinAbsPnL
	checks.ActivityOK = enoughTrades && bigEnough
	if !enoughTrades {
		reasons = append(reasons, domain.ReasonLowTradeCount)
	}
	if !bigEnough {
		reasons = append(reasons, domain.ReasonSmallPnL)
	}

	inventoryOK := float64(r.NegativeInventoryPositions) <= copyTradeMaxNegativeInvFrac*float64(r.OpenPositions)
	noErrors := len(r.Errors) == 0
	checks.InvariantsPass = inventoryOK && noErrors
	if !inventoryOK {
		reasons = append(reasons, domain.ReasonNegativeInventory)
	}
	if !noErrors {
		reasons = append(reasons, domain.ReasonProcessingErrors)
	}

	return domain.CopyTradeEligibility{
		Eligible: checks.IsClobOnly && checks.PositionCountOK && checks.ActivityOK && checks.InvariantsPass,
		Checks:   checks,
		Reasons:  reasons,
	}
}

func isClobOnly(c domain.KindCounts) bool {
	return c.Trades > 0 && c.Splits == 0 && c.Merges == 0
}

// exposureEstimate: average unrealized value per open position times the
// positions not flagged for negative inventory. Display only.
func exposureEstimate(r domain.Result) float64 {
	if r.OpenPositions == 0 {
		return 0
	}
	clean := r.OpenPositions - r.NegativeInventoryPositions
	if clean < 0 {
		clean = 0
	}
	avg := r.UnrealizedPnL / float64(r.OpenPositions)
	return domain.RoundCents(avg * float64(clean))
}

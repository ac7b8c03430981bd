// Package cohort routes a wallet's PnL snapshot to a display cohort and maps
// that cohort to what the user is allowed to see.
package cohort

import (
	"fmt"
	"math"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

const (
	suspectErrorPct  = 10.0
	safeErrorPct     = 3.0
	moderateErrorPct = 5.0
)

// Input es todo lo que consume la tabla de decisión.
type Input struct {
	TimedOut bool
	// InventoryMismatch es la magnitud del ajuste por inventario negativo.
	InventoryMismatch          float64
	MissingResolutions         int
	NegativeInventoryPositions int
	SplitsAndMerges            int
	// BenchmarkErrorPct es nil cuando no hay benchmark contra el que comparar.
	BenchmarkErrorPct *float64
	Tags              domain.Tags
}

// InputFromResult builds the router input for a computed result.
func InputFromResult(r domain.Result, tags domain.Tags, benchmarkErrPct *float64) Input {
	return Input{
		InventoryMismatch:          r.NegativeInventoryAdjustment,
		MissingResolutions:         r.MissingResolutions,
		NegativeInventoryPositions: r.NegativeInventoryPositions,
		SplitsAndMerges:            r.Counts.Splits + r.Counts.Merges,
		BenchmarkErrorPct:          benchmarkErrPct,
		Tags:                       tags,
	}
}

// Route evaluates the decision table; the first matching row wins.
func Route(in Input) domain.CohortDecision {
	if reason, ok := suspect(in); ok {
		return domain.CohortDecision{Cohort: domain.CohortSuspect, Reason: reason}
	}

	if in.Tags.MakerHeavy {
		return domain.CohortDecision{Cohort: domain.CohortRisky, Reason: "maker-heavy split/merge activity"}
	}

	errPct, hasBenchmark := absErr(in.BenchmarkErrorPct)

	if in.Tags.StrictTrader && hasBenchmark && errPct < safeErrorPct &&
		in.SplitsAndMerges == 0 && in.InventoryMismatch == 0 && in.MissingResolutions == 0 {
		return domain.CohortDecision{Cohort: domain.CohortSafe, Reason: fmt.Sprintf("strict trader, error %.2f%%", errPct)}
	}

	if (in.Tags.MixedTrader || in.Tags.StrictTrader) && hasBenchmark && errPct < moderateErrorPct {
		return domain.CohortDecision{Cohort: domain.CohortModerate, Reason: fmt.Sprintf("error %.2f%% within tolerance", errPct)}
	}

	return domain.CohortDecision{Cohort: domain.CohortModerate, Reason: "fallback"}
}

func suspect(in Input) (string, bool) {
	switch {
	case in.TimedOut:
		return "computation timed out", true
	case in.InventoryMismatch > 0:
		return fmt.Sprintf("inventory mismatch %.2f", in.InventoryMismatch), true
	case in.MissingResolutions > 0:
		return fmt.Sprintf("%d conditions missing resolution", in.MissingResolutions), true
	case in.NegativeInventoryPositions > 0:
		return fmt.Sprintf("%d positions with negative inventory", in.NegativeInventoryPositions), true
	case in.Tags.DataSuspect:
		return "tagged data suspect", true
	}
	if errPct, ok := absErr(in.BenchmarkErrorPct); ok && errPct >= suspectErrorPct && !in.Tags.MakerHeavy {
		return fmt.Sprintf("benchmark error %.2f%%", errPct), true
	}
	return "", false
}

// absErr devuelve |err| y si hay un benchmark utilizable (NaN cuenta como ausente).
func absErr(p *float64) (float64, bool) {
	if p == nil || math.IsNaN(*p) {
		return 0, false
	}
	return math.Abs(*p), true
}

var policies = map[domain.Cohort]domain.DisplayPolicy{
	domain.CohortSafe:     {Label: "Verified", ShouldDisplay: true, ConfidenceScore: 0.95},
	domain.CohortModerate: {Label: "Estimated", ShouldDisplay: true, ConfidenceScore: 0.75},
	domain.CohortRisky:    {Label: "Low confidence", ShouldDisplay: true, ConfidenceScore: 0.5},
	domain.CohortSuspect:  {Label: "Hidden", ShouldDisplay: false, ConfidenceScore: 0},
}

// Policy returns the fixed display policy of a cohort. Unknown cohorts get
// the SUSPECT policy.
func Policy(c domain.Cohort) domain.DisplayPolicy {
	if p, ok := policies[c]; ok {
		return p
	}
	return policies[domain.CohortSuspect]
}

// DisplayFor applies the cohort policy to a canonical PnL figure. Hidden
// wallets always show exactly 0.
func DisplayFor(wallet string, decision domain.CohortDecision, canonicalPnL float64, walletType domain.WalletType) domain.Display {
	p := Policy(decision.Cohort)
	pnl := 0.0
	if p.ShouldDisplay {
		pnl = domain.RoundCents(canonicalPnL)
	}
	return domain.Display{
		Wallet:        domain.NormalizeWallet(wallet),
		Cohort:        decision.Cohort,
		Reason:        decision.Reason,
		DisplayPnL:    pnl,
		DisplayLabel:  p.Label,
		Confidence:    p.ConfidenceScore,
		ShouldDisplay: p.ShouldDisplay,
		WalletType:    walletType,
	}
}

// CanonicalPnL is the figure shown to users: the clamped UI-parity value
// when the guard was applied, else the raw one.
func CanonicalPnL(r domain.Result) float64 {
	if r.GuardApplied {
		return r.UIParityClampedPnL
	}
	return r.UIParityPnL
}

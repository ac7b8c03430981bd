package engine

import (
	"math"
	"sort"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// totals accumulates unrounded figures; rounding happens once in Result.
type totals struct {
	realized           float64
	unrealized         float64
	resolvedUnredeemed float64
	adjustment         float64
	negativePositions  int
	open               int
	missingResolutions int
	liveFallbacks      int
}

// Result assembles an immutable snapshot from the current state.
//
// livePrices is keyed by domain.PriceKey and only read in live mode; a nil map
// marks every open outcome at the default price. Iteration is ordered so that
// replaying the same events yields a bit-identical Result.
func (s *WalletState) Result(opts domain.Options, livePrices map[string]float64) domain.Result {
	if opts.Mode == "" {
		opts.Mode = domain.ModeEconomic
	}

	var t totals
	for _, cid := range s.ConditionIDs() {
		t.addPosition(s.positions[cid], opts.Mode, livePrices)
	}

	realized := domain.RoundCents(t.realized)
	resolved := domain.RoundCents(t.resolvedUnredeemed)
	unrealized := domain.RoundCents(t.unrealized)
	adjustment := domain.RoundCents(t.adjustment)

	settled := domain.RoundCents(realized + resolved)
	uiParity := settled
	if opts.Mode == domain.ModeLive {
		uiParity = domain.RoundCents(settled + unrealized)
	}
	clamped := uiParity
	if opts.GuardNegativeInventory {
		clamped = domain.RoundCents(uiParity - adjustment)
	}

	r := domain.Result{
		Wallet:                      s.wallet,
		Mode:                        opts.Mode,
		RealizedPnL:                 realized,
		ResolvedUnredeemed:          resolved,
		SettledPnL:                  settled,
		UnrealizedPnL:               unrealized,
		TotalPnL:                    domain.RoundCents(settled + unrealized),
		UIParityPnL:                 uiParity,
		UIParityClampedPnL:          clamped,
		GuardApplied:                opts.GuardNegativeInventory,
		NegativeInventoryAdjustment: adjustment,
		NegativeInventoryPositions:  t.negativePositions,
		PositionsCount:              len(s.positions),
		OpenPositions:               t.open,
		ClosedPositions:             len(s.positions) - t.open,
		EventsProcessed:             s.processed,
		Counts:                      s.counts,
		MissingResolutions:          t.missingResolutions,
		LivePriceFallbacks:          t.liveFallbacks,
		Errors:                      s.Errors(),
	}
	return r
}

func (t *totals) addPosition(pos *domain.ConditionPosition, mode domain.ValuationMode, live map[string]float64) {
	t.realized += pos.RealizedPnL
	if pos.IsOpen() {
		t.open++
	}

	avg := pos.AvgCost()
	negative := false
	missing := false
	var lifetimeQty, lifetimeCost float64

	for _, idx := range sortedOutcomes(pos) {
		o := pos.Outcomes[idx]
		lifetimeQty += o.AcquiredQty
		lifetimeCost += o.AcquiredCost

		switch {
		case o.Quantity > domain.DustThreshold:
			costBasis := o.Quantity * avg
			if pos.IsResolved {
				if !o.Resolution.Known {
					missing = true
				}
				// resolución desconocida vale 0 hasta que llegue el precio
				t.resolvedUnredeemed += o.Quantity*o.Resolution.Price - costBasis
				continue
			}
			mark := domain.DefaultMarkPrice
			if mode == domain.ModeLive {
				if p, ok := live[domain.PriceKey(pos.ConditionID, idx)]; ok && validPrice(p) {
					mark = p
				} else {
					t.liveFallbacks++
				}
			}
			t.unrealized += o.Quantity*mark - costBasis

		case o.Quantity < -domain.DustThreshold:
			// heurística: se valora al coste medio histórico de adquisición del outcome
			negative = true
			t.adjustment += math.Abs(o.Quantity) * o.AvgAcquisitionCost()
		}
	}

	if pos.TotalQuantity < -domain.DustThreshold && !negative {
		negative = true
		if lifetimeQty > domain.DustThreshold {
			t.adjustment += math.Abs(pos.TotalQuantity) * lifetimeCost / lifetimeQty
		}
	}
	if negative {
		t.negativePositions++
	}
	if missing {
		t.missingResolutions++
	}
}

func sortedOutcomes(pos *domain.ConditionPosition) []int {
	idx := make([]int, 0, len(pos.Outcomes))
	for i := range pos.Outcomes {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

func validPrice(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 1
}

// Compute is the stateless batch path: fold events, back-fill resolutions,
// assemble, discard the state.
func Compute(
	wallet string,
	events []domain.Event,
	resolutions map[string]map[int]float64,
	livePrices map[string]float64,
	opts domain.Options,
) domain.Result {
	s := NewWalletState(wallet)
	s.ApplyEvents(events)
	s.ApplyResolutionPrices(resolutions)
	return s.Result(opts, livePrices)
}

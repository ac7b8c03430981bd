// Package engine is the inventory accounting engine: a pure state machine that
// folds one wallet's ledger events into per-condition positions.
//
// Cost basis is pooled per condition, not per outcome. Realized PnL moves only
// when cash moves; a market resolving never touches it.
package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// WalletState owns every ConditionPosition of one wallet for one computation.
// Not safe for concurrent use; one instance per wallet per goroutine.
type WalletState struct {
	wallet    string
	positions map[string]*domain.ConditionPosition
	processed int
	counts    domain.KindCounts
	errors    []domain.EventError
	last      domain.Event
	hasLast   bool
}

// NewWalletState creates an empty state for wallet.
func NewWalletState(wallet string) *WalletState {
	return &WalletState{
		wallet:    domain.NormalizeWallet(wallet),
		positions: make(map[string]*domain.ConditionPosition),
	}
}

// Wallet returns the normalized wallet address.
func (s *WalletState) Wallet() string { return s.wallet }

// EventsProcessed returns how many events were applied.
func (s *WalletState) EventsProcessed() int { return s.processed }

// Counts returns the per-kind counters of applied events.
func (s *WalletState) Counts() domain.KindCounts { return s.counts }

// Errors returns a copy of the recorded event errors.
func (s *WalletState) Errors() []domain.EventError {
	return append([]domain.EventError(nil), s.errors...)
}

// Position returns the position for conditionID. The pointer is owned by the
// state and must not be mutated by callers.
func (s *WalletState) Position(conditionID string) (*domain.ConditionPosition, bool) {
	p, ok := s.positions[conditionID]
	return p, ok
}

// ConditionIDs returns the held condition ids in sorted order.
func (s *WalletState) ConditionIDs() []string {
	ids := make([]string, 0, len(s.positions))
	for id := range s.positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ApplyEvents applies events in the given order. Errors are recorded, not returned.
func (s *WalletState) ApplyEvents(events []domain.Event) {
	for _, e := range events {
		_ = s.ApplyEvent(e)
	}
}

// ApplyEvent folds one event into the state.
//
// A malformed or out-of-order event is appended to the error list and skipped;
// the returned error is the one recorded, for callers that want to log it.
func (s *WalletState) ApplyEvent(e domain.Event) error {
	if err := e.Validate(); err != nil {
		s.recordError(e.EventID, err)
		return err
	}
	if s.hasLast && e.Before(s.last) {
		err := fmt.Errorf("%w: %s (%s) precedes %s (%s)", domain.ErrOutOfOrder,
			e.EventID, e.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
			s.last.EventID, s.last.Timestamp.UTC().Format("2006-01-02T15:04:05Z"))
		s.recordError(e.EventID, err)
		return err
	}

	pos := s.position(e.ConditionID)
	out := pos.Outcome(e.OutcomeIndex)

	switch {
	case e.TokenDelta > 0:
		acquire(pos, out, e)
	case e.TokenDelta < 0:
		dispose(pos, out, e)
	default:
		// caja pura: no hay tokens que costear
		pos.RealizedPnL += e.CashDelta
	}

	if e.Kind == domain.SourceRedemption && e.ResolutionPayout != nil {
		if !pos.IsResolved {
			pos.IsResolved = true
			pos.ResolvedAt = e.Timestamp
		}
		if !out.Resolution.Known {
			out.Resolution = domain.Resolution{Price: *e.ResolutionPayout, Known: true}
		}
	}

	pos.Counts.Inc(e.Kind)
	s.counts.Inc(e.Kind)
	s.processed++
	s.last = e
	s.hasLast = true
	return nil
}

// ApplyResolutionPrices back-fills resolution data from a wallet-level table
// (condition → outcome → price). Conditions the wallet never touched are
// ignored. Realized PnL is not modified. Returns how many conditions were
// newly flagged resolved.
func (s *WalletState) ApplyResolutionPrices(prices map[string]map[int]float64) int {
	flagged := 0
	for cid, outcomes := range prices {
		pos, ok := s.positions[cid]
		if !ok || len(outcomes) == 0 {
			continue
		}
		applied := false
		for idx, price := range outcomes {
			if idx < 0 || math.IsNaN(price) || price < 0 || price > 1 {
				continue
			}
			o := pos.Outcome(idx)
			if !o.Resolution.Known {
				o.Resolution = domain.Resolution{Price: price, Known: true}
			}
			applied = true
		}
		if applied && !pos.IsResolved {
			pos.IsResolved = true
			flagged++
		}
	}
	return flagged
}

func (s *WalletState) position(conditionID string) *domain.ConditionPosition {
	p, ok := s.positions[conditionID]
	if !ok {
		p = domain.NewConditionPosition(conditionID)
		s.positions[conditionID] = p
	}
	return p
}

func (s *WalletState) recordError(eventID string, err error) {
	s.errors = append(s.errors, domain.EventError{EventID: eventID, Reason: err.Error()})
}

// acquire handles Trade-buy and Split: tokens in, cost added to the pool.
func acquire(pos *domain.ConditionPosition, out *domain.OutcomeHolding, e domain.Event) {
	cost := math.Abs(e.CashDelta)

	pos.TotalQuantity += e.TokenDelta
	pos.TotalCostBasis += cost

	out.Quantity += e.TokenDelta
	out.CostBasis += cost
	out.AcquiredQty += e.TokenDelta
	out.AcquiredCost += cost
}

// dispose handles Trade-sell, Merge and Redemption. This is the only place
// where realized PnL changes on a token-moving event.
func dispose(pos *domain.ConditionPosition, out *domain.OutcomeHolding, e domain.Event) {
	qty := -e.TokenDelta

	// COGS = coste medio agrupado × tokens dispuestos, aunque se venda más de lo
	// que hay: el exceso deja cantidad y coste negativos para el guard.
	avg := pos.AvgCost()
	cogs := avg * qty

	pos.RealizedPnL += e.CashDelta - cogs
	pos.TotalQuantity -= qty
	pos.TotalCostBasis -= cogs
	pos.TotalQuantity, pos.TotalCostBasis = floorDust(pos.TotalQuantity, pos.TotalCostBasis)

	outAvg := 0.0
	if out.Quantity > domain.DustThreshold {
		outAvg = out.CostBasis / out.Quantity
	}
	out.CostBasis -= outAvg * qty
	out.Quantity -= qty
	out.Quantity, out.CostBasis = floorDust(out.Quantity, out.CostBasis)
}

// floorDust zeroes quantities and costs within the dust band. An empty
// inventory carries no cost; a negative one keeps its (negative) cost.
func floorDust(qty, cost float64) (float64, float64) {
	if math.Abs(qty) < domain.DustThreshold {
		qty = 0
	}
	if qty == 0 || math.Abs(cost) < domain.DustThreshold {
		cost = 0
	}
	return qty, cost
}

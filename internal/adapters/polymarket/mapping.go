package polymarket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// binaryOutcomes es el número de outcomes a los que se reparte un SPLIT/MERGE.
const binaryOutcomes = 2

// mapActivity convierte filas de /activity a eventos del ledger, deduplicados
// por event id y ordenados por (timestamp, event_id).
// Los tipos que no mueven inventario (REWARD, CONVERSION...) se ignoran.
func mapActivity(wallet string, raw []activityItem) []domain.Event {
	seen := make(map[string]bool, len(raw))
	events := make([]domain.Event, 0, len(raw))

	for _, item := range raw {
		for _, e := range mapActivityItem(wallet, item) {
			if seen[e.EventID] {
				continue
			}
			seen[e.EventID] = true
			events = append(events, e)
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Before(events[j])
	})
	return events
}

// mapActivityItem convierte una fila en cero, uno o dos eventos.
func mapActivityItem(wallet string, a activityItem) []domain.Event {
	kind := domain.ParseSourceKind(a.Type)
	if kind == domain.SourceUnknown {
		slog.Debug("skipping activity type", "type", a.Type, "tx", a.TransactionHash)
		return nil
	}

	ts, err := parseUnix(a.Timestamp)
	if err != nil {
		slog.Debug("skipping activity with bad timestamp", "tx", a.TransactionHash, "err", err)
		return nil
	}
	size, err := num(a.Size)
	if err != nil {
		slog.Debug("skipping activity with bad size", "tx", a.TransactionHash, "err", err)
		return nil
	}
	usdc, err := num(a.USDCSize)
	if err != nil {
		slog.Debug("skipping activity with bad usdcSize", "tx", a.TransactionHash, "err", err)
		return nil
	}
	base := domain.Event{
		Kind:         kind,
		Wallet:       domain.NormalizeWallet(wallet),
		ConditionID:  strings.ToLower(a.ConditionID),
		OutcomeIndex: a.OutcomeIndex,
		Timestamp:    ts,
	}
	id := activityID(a)

	switch kind {
	case domain.SourceTrade:
		e := base
		e.EventID = id
		if strings.EqualFold(a.Side, "SELL") {
			e.CashDelta, e.TokenDelta = usdc, -size
		} else {
			e.CashDelta, e.TokenDelta = -usdc, size
		}
		return []domain.Event{e}

	case domain.SourceSplit, domain.SourceMerge:
		// Un split acuña size tokens en cada outcome por usdc de colateral;
		// el coste se reparte a partes iguales entre outcomes.
		sign := 1.0
		if kind == domain.SourceMerge {
			sign = -1.0
		}
		out := make([]domain.Event, 0, binaryOutcomes)
		for idx := 0; idx < binaryOutcomes; idx++ {
			e := base
			e.OutcomeIndex = idx
			e.EventID = fmt.Sprintf("%s:%d", id, idx)
			e.TokenDelta = sign * size
			e.CashDelta = -sign * usdc / binaryOutcomes
			out = append(out, e)
		}
		return out

	case domain.SourceRedemption:
		e := base
		e.EventID = id
		e.CashDelta, e.TokenDelta = usdc, -size
		if size > 0 {
			p := usdc / size
			if p > 1 {
				p = 1
			}
			e.ResolutionPayout = domain.Payout(p)
		}
		return []domain.Event{e}
	}
	return nil
}

// activityID construye un id estable: la Data API no expone id propio por fila.
func activityID(a activityItem) string {
	return fmt.Sprintf("%s:%d", activityKey(a), a.seq)
}

func activityKey(a activityItem) string {
	return strings.ToLower(fmt.Sprintf("%s:%s:%s:%d:%s:%s",
		a.TransactionHash, a.Type, a.Asset, a.OutcomeIndex, a.Side, a.Size.String()))
}

// numberFills numera las filas idénticas dentro de una página: dos fills del
// mismo tamaño en una transacción son eventos distintos. Una fila repetida en
// otra página (solape de offsets) recibe el mismo número y se deduplica.
func numberFills(page []activityItem) {
	seen := make(map[string]int, len(page))
	for i := range page {
		k := activityKey(page[i])
		page[i].seq = seen[k]
		seen[k]++
	}
}

// parseUnix acepta segundos o milisegundos desde epoch.
func parseUnix(n json.Number) (time.Time, error) {
	v, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w", n, err)
		}
		v = int64(f)
	}
	if v > 1e12 {
		return time.UnixMilli(v).UTC(), nil
	}
	return time.Unix(v, 0).UTC(), nil
}

// num acepta vacío como 0; cualquier otro valor no numérico es un error.
func num(n json.Number) (float64, error) {
	if n == "" {
		return 0, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("parse number %q: %w", n, err)
	}
	return f, nil
}

// mapResolution devuelve outcome → precio de un mercado cerrado con ganador.
// ok=false si el mercado sigue abierto o no tiene ganador.
func mapResolution(m clobMarket) (map[int]float64, bool) {
	if !m.Closed {
		return nil, false
	}
	prices := make(map[int]float64, len(m.Tokens))
	winner := false
	for idx, t := range m.Tokens {
		if t.Winner {
			prices[idx] = 1
			winner = true
		} else {
			prices[idx] = 0
		}
	}
	if !winner {
		return nil, false
	}
	return prices, true
}

// mapLivePrices devuelve "condition_id|outcome_index" → precio de un mercado abierto.
func mapLivePrices(conditionID string, m clobMarket) map[string]float64 {
	out := make(map[string]float64, len(m.Tokens))
	if m.Closed {
		return out
	}
	for idx, t := range m.Tokens {
		if t.Price < 0 || t.Price > 1 {
			continue
		}
		out[domain.PriceKey(conditionID, idx)] = t.Price
	}
	return out
}

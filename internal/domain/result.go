package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ValuationMode decide cómo se marcan las posiciones abiertas sin resolver.
type ValuationMode string

const (
	// ModeEconomic marca a 0.5 y excluye lo no realizado del UI-parity.
	ModeEconomic ValuationMode = "economic"
	// ModeLive marca al precio live (fallback 0.5) y lo suma al UI-parity.
	ModeLive ValuationMode = "live"
)

// ParseValuationMode acepta "economic" | "live" (y alias "live-price").
func ParseValuationMode(s string) (ValuationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "economic":
		return ModeEconomic, nil
	case "live", "live-price", "live_price":
		return ModeLive, nil
	default:
		return "", fmt.Errorf("domain.ParseValuationMode: unknown mode %q", s)
	}
}

// DefaultMarkPrice es la marca usada en modo economic y como fallback en live.
const DefaultMarkPrice = 0.5

// Options son las opciones de una computación de PnL.
type Options struct {
	Mode                   ValuationMode
	GuardNegativeInventory bool
}

// CacheKey devuelve la clave de caché: wallet + modo (+ guard, que cambia el clamp).
func (o Options) CacheKey(wallet string) string {
	return fmt.Sprintf("%s|%s|guard=%t", NormalizeWallet(wallet), o.Mode, o.GuardNegativeInventory)
}

// PriceKey es la clave del mapa de precios live: "condition_id|outcome_index".
func PriceKey(conditionID string, outcomeIndex int) string {
	return fmt.Sprintf("%s|%d", conditionID, outcomeIndex)
}

// NormalizeWallet devuelve la dirección en minúsculas y sin espacios.
func NormalizeWallet(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}

var (
	// ErrSourceTimeout indica que el Event Source no respondió a tiempo.
	ErrSourceTimeout = errors.New("event source timed out")
	// ErrSourceUnavailable indica que el Event Source falló.
	ErrSourceUnavailable = errors.New("event source unavailable")
)

// EventError registra un evento que no se pudo aplicar.
type EventError struct {
	EventID string `json:"event_id"`
	Reason  string `json:"reason"`
}

// Result es el snapshot inmutable de una computación de PnL.
// Todos los importes están redondeados a céntimos.
type Result struct {
	Wallet string        `json:"wallet"`
	Mode   ValuationMode `json:"mode"`

	// RealizedPnL solo cambia con caja real (disposals y eventos de caja pura).
	RealizedPnL float64 `json:"realized_pnl"`
	// ResolvedUnredeemed es el valor papel de mercados resueltos sin cobrar.
	ResolvedUnredeemed float64 `json:"resolved_unredeemed"`
	// SettledPnL = RealizedPnL + ResolvedUnredeemed.
	SettledPnL    float64 `json:"settled_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	// TotalPnL = SettledPnL + UnrealizedPnL.
	TotalPnL float64 `json:"total_pnl"`

	UIParityPnL        float64 `json:"ui_parity_pnl"`
	UIParityClampedPnL float64 `json:"ui_parity_clamped_pnl"`

	GuardApplied                bool    `json:"guard_applied"`
	NegativeInventoryAdjustment float64 `json:"negative_inventory_adjustment"`
	NegativeInventoryPositions  int     `json:"negative_inventory_positions"`

	PositionsCount  int `json:"positions_count"`
	OpenPositions   int `json:"open_positions"`
	ClosedPositions int `json:"closed_positions"`

	EventsProcessed int        `json:"events_processed"`
	Counts          KindCounts `json:"counts"`

	MissingResolutions int `json:"missing_resolutions"`
	LivePriceFallbacks int `json:"live_price_fallbacks"`

	Errors []EventError `json:"errors,omitempty"`
}

// Clone devuelve una copia que no comparte el slice de errores.
func (r Result) Clone() Result {
	if r.Errors != nil {
		r.Errors = append([]EventError(nil), r.Errors...)
	}
	return r
}

// CheckInvariants verifica las invariantes de conteo y de totales del resultado.
// El valor resuelto sin cobrar vive en SettledPnL, no en RealizedPnL, así que
// el total es SettledPnL + UnrealizedPnL.
func (r Result) CheckInvariants() error {
	if r.OpenPositions+r.ClosedPositions != r.PositionsCount {
		return fmt.Errorf("open %d + closed %d != positions %d", r.OpenPositions, r.ClosedPositions, r.PositionsCount)
	}
	c := r.Counts
	if c.Trades < 0 || c.Splits < 0 || c.Merges < 0 || c.Redemptions < 0 {
		return fmt.Errorf("negative event counter: %+v", c)
	}
	if c.Total() != r.EventsProcessed {
		return fmt.Errorf("kind counters %d != events processed %d", c.Total(), r.EventsProcessed)
	}
	if want := RoundCents(r.RealizedPnL + r.ResolvedUnredeemed); !centsEqual(r.SettledPnL, want) {
		return fmt.Errorf("settled %.2f != realized %.2f + resolved-unredeemed %.2f", r.SettledPnL, r.RealizedPnL, r.ResolvedUnredeemed)
	}
	if want := RoundCents(r.SettledPnL + r.UnrealizedPnL); !centsEqual(r.TotalPnL, want) {
		return fmt.Errorf("total %.2f != settled %.2f + unrealized %.2f", r.TotalPnL, r.SettledPnL, r.UnrealizedPnL)
	}
	return nil
}

func centsEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.005
}

// RoundCents redondea un importe a céntimos (half away from zero).
// Solo se usa en el borde, nunca durante la acumulación.
func RoundCents(v float64) float64 {
	if !finite(v) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// SourceKind es el tipo de evento on-chain que originó una entrada del ledger.
type SourceKind int

const (
	SourceUnknown SourceKind = iota
	SourceTrade
	SourceSplit
	SourceMerge
	SourceRedemption
)

// String devuelve el nombre canónico del tipo de evento.
func (k SourceKind) String() string {
	switch k {
	case SourceTrade:
		return "TRADE"
	case SourceSplit:
		return "SPLIT"
	case SourceMerge:
		return "MERGE"
	case SourceRedemption:
		return "REDEEM"
	default:
		return "UNKNOWN"
	}
}

// ParseSourceKind convierte el nombre usado por la Data API / el ledger a SourceKind.
func ParseSourceKind(s string) SourceKind {
	switch s {
	case "TRADE", "Trade", "trade":
		return SourceTrade
	case "SPLIT", "Split", "split":
		return SourceSplit
	case "MERGE", "Merge", "merge":
		return SourceMerge
	case "REDEEM", "REDEMPTION", "Redemption", "redeem", "redemption":
		return SourceRedemption
	default:
		return SourceUnknown
	}
}

var (
	// ErrMalformedEvent marca un evento que no se puede aplicar.
	ErrMalformedEvent = errors.New("malformed event")
	// ErrOutOfOrder marca un evento anterior al último aplicado en (timestamp, event_id).
	ErrOutOfOrder = errors.New("event out of order")
)

// Event es una entrada del ledger de una wallet. Inmutable.
//
// CashDelta es USDC desde el punto de vista de la wallet (negativo = pagó).
// TokenDelta es la variación de tokens del outcome (positivo = recibió).
type Event struct {
	Kind             SourceKind
	Wallet           string
	ConditionID      string
	OutcomeIndex     int
	Timestamp        time.Time
	EventID          string
	CashDelta        float64
	TokenDelta       float64
	ResolutionPayout *float64 // solo en redemptions; nil = desconocido
}

// Validate devuelve ErrMalformedEvent si el evento no es aplicable.
func (e Event) Validate() error {
	switch e.Kind {
	case SourceTrade, SourceSplit, SourceMerge, SourceRedemption:
	default:
		return fmt.Errorf("%w: unknown source kind %d", ErrMalformedEvent, int(e.Kind))
	}
	if e.ConditionID == "" {
		return fmt.Errorf("%w: empty condition id", ErrMalformedEvent)
	}
	if e.OutcomeIndex < 0 {
		return fmt.Errorf("%w: negative outcome index %d", ErrMalformedEvent, e.OutcomeIndex)
	}
	if !finite(e.CashDelta) || !finite(e.TokenDelta) {
		return fmt.Errorf("%w: non-finite delta", ErrMalformedEvent)
	}
	if e.ResolutionPayout != nil {
		p := *e.ResolutionPayout
		if !finite(p) || p < 0 || p > 1 {
			return fmt.Errorf("%w: resolution payout %v outside [0,1]", ErrMalformedEvent, p)
		}
	}
	return nil
}

// Before reporta si e va antes que other en el orden (timestamp, event_id).
func (e Event) Before(other Event) bool {
	if !e.Timestamp.Equal(other.Timestamp) {
		return e.Timestamp.Before(other.Timestamp)
	}
	return e.EventID < other.EventID
}

// Payout devuelve un puntero a p; helper para construir eventos de redemption.
func Payout(p float64) *float64 {
	return &p
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

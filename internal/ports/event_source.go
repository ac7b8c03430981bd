package ports

import (
	"context"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// EventSource es la fuente de eventos del ledger de una wallet.
type EventSource interface {
	// LoadEvents devuelve los eventos de la wallet deduplicados por event id
	// y ordenados ascendentemente por (timestamp, event_id).
	LoadEvents(ctx context.Context, wallet string) ([]domain.Event, error)

	// LoadResolutionPrices devuelve condition_id → outcome_index → precio en [0,1]
	// para las condiciones dadas que ya estén resueltas. Las que no aparecen
	// se consideran no resueltas.
	LoadResolutionPrices(ctx context.Context, wallet string, conditionIDs []string) (map[string]map[int]float64, error)

	// LoadLivePrices devuelve "condition_id|outcome_index" → precio en [0,1].
	// Solo se llama en modo live.
	LoadLivePrices(ctx context.Context, wallet string, conditionIDs []string) (map[string]float64, error)
}

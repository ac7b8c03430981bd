package ports

import (
	"context"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// LedgerStore persiste eventos y precios para servirlos después como EventSource.
type LedgerStore interface {
	EventSource

	// ImportEvents inserta eventos ignorando los event id ya existentes.
	// Devuelve cuántos eran nuevos.
	ImportEvents(ctx context.Context, events []domain.Event) (int, error)

	// SetResolutionPrice registra el precio de resolución de un outcome.
	SetResolutionPrice(ctx context.Context, conditionID string, outcomeIndex int, price float64) error

	// SetLivePrice registra el último precio de mercado de un outcome.
	SetLivePrice(ctx context.Context, conditionID string, outcomeIndex int, price float64) error

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}

package ports

import (
	"context"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// Notifier presenta el informe de un batch al usuario.
type Notifier interface {
	// Notify muestra una fila por wallet, ordenadas por PnL mostrado.
	// En la implementación de consola, imprime una tabla formateada.
	Notify(ctx context.Context, report domain.BatchReport) error
}

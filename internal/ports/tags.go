package ports

import (
	"context"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// TagProvider devuelve etiquetas de comportamiento calculadas fuera del motor.
// ok=false significa que no hay etiquetas para la wallet y se derivan de los contadores.
type TagProvider interface {
	Tags(ctx context.Context, wallet string) (tags domain.Tags, ok bool, err error)
}

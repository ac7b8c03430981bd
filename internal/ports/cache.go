package ports

import (
	"context"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// ResultCache guarda snapshots inmutables de Result por clave
// wallet|mode|guard. Get y Put nunca comparten memoria con el llamante.
type ResultCache interface {
	Get(ctx context.Context, key string) (domain.Result, bool, error)
	Put(ctx context.Context, key string, r domain.Result) error
}

package storage

// postgres.go — mismo ledger que sqlite.go pero sobre PostgreSQL, para
// despliegues con varios procesos leyendo el mismo histórico.
// Los importes se guardan como NUMERIC y se convierten vía decimal.

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS ledger_events (
    event_id          TEXT PRIMARY KEY,
    wallet            TEXT        NOT NULL,
    kind              TEXT        NOT NULL,
    condition_id      TEXT        NOT NULL,
    outcome_index     INTEGER     NOT NULL,
    ts_ns             BIGINT      NOT NULL,
    cash_delta        NUMERIC     NOT NULL,
    token_delta       NUMERIC     NOT NULL,
    resolution_payout NUMERIC
);

CREATE TABLE IF NOT EXISTS resolution_prices (
    condition_id  TEXT        NOT NULL,
    outcome_index INTEGER     NOT NULL,
    price         NUMERIC     NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (condition_id, outcome_index)
);

CREATE TABLE IF NOT EXISTS live_prices (
    condition_id  TEXT        NOT NULL,
    outcome_index INTEGER     NOT NULL,
    price         NUMERIC     NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (condition_id, outcome_index)
);

CREATE INDEX IF NOT EXISTS idx_events_wallet ON ledger_events(wallet, ts_ns, event_id);
`

// Postgres implementa ports.LedgerStore sobre un pool de pgx.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres envuelve un pool ya abierto. No aplica el schema.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// OpenPostgres conecta, hace ping y aplica el schema.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("storage.OpenPostgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage.OpenPostgres: ping: %w", err)
	}
	p := NewPostgres(pool)
	if err := p.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// EnsureSchema crea las tablas si no existen.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("storage.EnsureSchema: %w", err)
	}
	return nil
}

// ImportEvents inserta los eventos válidos ignorando event ids repetidos.
func (p *Postgres) ImportEvents(ctx context.Context, events []domain.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("storage.ImportEvents: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, e := range events {
		if err := checkEvent(e); err != nil {
			return 0, fmt.Errorf("storage.ImportEvents: %w", err)
		}
		var payout *string
		if e.ResolutionPayout != nil {
			s := decimal.NewFromFloat(*e.ResolutionPayout).String()
			payout = &s
		}
		tag, err := tx.Exec(ctx,
			`INSERT INTO ledger_events
				(event_id, wallet, kind, condition_id, outcome_index, ts_ns,
				 cash_delta, token_delta, resolution_payout)
			 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC)
			 ON CONFLICT (event_id) DO NOTHING`,
			e.EventID,
			domain.NormalizeWallet(e.Wallet),
			e.Kind.String(),
			strings.ToLower(e.ConditionID),
			e.OutcomeIndex,
			e.Timestamp.UTC().UnixNano(),
			decimal.NewFromFloat(e.CashDelta).String(),
			decimal.NewFromFloat(e.TokenDelta).String(),
			payout,
		)
		if err != nil {
			return 0, fmt.Errorf("storage.ImportEvents: insert %s: %w", e.EventID, err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("storage.ImportEvents: commit: %w", err)
	}
	return inserted, nil
}

// LoadEvents devuelve los eventos de la wallet ordenados por (timestamp, event_id).
func (p *Postgres) LoadEvents(ctx context.Context, wallet string) ([]domain.Event, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT event_id, wallet, kind, condition_id, outcome_index, ts_ns,
		        cash_delta::TEXT, token_delta::TEXT, resolution_payout::TEXT
		 FROM ledger_events
		 WHERE wallet = $1
		 ORDER BY ts_ns, event_id`, domain.NormalizeWallet(wallet))
	if err != nil {
		return nil, fmt.Errorf("storage.LoadEvents: query: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var kind, cashS, tokenS string
		var payoutS *string
		var tsNs int64

		if err := rows.Scan(&e.EventID, &e.Wallet, &kind, &e.ConditionID, &e.OutcomeIndex,
			&tsNs, &cashS, &tokenS, &payoutS); err != nil {
			return nil, fmt.Errorf("storage.LoadEvents: scan row: %w", err)
		}
		e.Kind = domain.ParseSourceKind(kind)
		e.Timestamp = time.Unix(0, tsNs).UTC()
		e.CashDelta = numeric(cashS)
		e.TokenDelta = numeric(tokenS)
		if payoutS != nil {
			e.ResolutionPayout = domain.Payout(numeric(*payoutS))
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// SetResolutionPrice registra (o reemplaza) el precio de resolución de un outcome.
func (p *Postgres) SetResolutionPrice(ctx context.Context, conditionID string, outcomeIndex int, price float64) error {
	if err := p.upsertPrice(ctx, "resolution_prices", conditionID, outcomeIndex, price); err != nil {
		return fmt.Errorf("storage.SetResolutionPrice: %w", err)
	}
	return nil
}

// SetLivePrice registra (o reemplaza) el último precio de un outcome.
func (p *Postgres) SetLivePrice(ctx context.Context, conditionID string, outcomeIndex int, price float64) error {
	if err := p.upsertPrice(ctx, "live_prices", conditionID, outcomeIndex, price); err != nil {
		return fmt.Errorf("storage.SetLivePrice: %w", err)
	}
	return nil
}

// LoadResolutionPrices devuelve los precios registrados para las condiciones dadas.
func (p *Postgres) LoadResolutionPrices(ctx context.Context, _ string, conditionIDs []string) (map[string]map[int]float64, error) {
	out := make(map[string]map[int]float64)
	err := p.scanPrices(ctx, "resolution_prices", conditionIDs, func(cid string, idx int, price float64) {
		if out[cid] == nil {
			out[cid] = make(map[int]float64)
		}
		out[cid][idx] = price
	})
	if err != nil {
		return nil, fmt.Errorf("storage.LoadResolutionPrices: %w", err)
	}
	return out, nil
}

// LoadLivePrices devuelve "condition_id|outcome_index" → precio.
func (p *Postgres) LoadLivePrices(ctx context.Context, _ string, conditionIDs []string) (map[string]float64, error) {
	out := make(map[string]float64)
	err := p.scanPrices(ctx, "live_prices", conditionIDs, func(cid string, idx int, price float64) {
		out[domain.PriceKey(cid, idx)] = price
	})
	if err != nil {
		return nil, fmt.Errorf("storage.LoadLivePrices: %w", err)
	}
	return out, nil
}

// Close cierra el pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// table es siempre una constante del paquete, nunca input de usuario.
func (p *Postgres) upsertPrice(ctx context.Context, table, conditionID string, outcomeIndex int, price float64) error {
	if err := checkPrice(conditionID, outcomeIndex, price); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO `+table+` (condition_id, outcome_index, price, updated_at)
		 VALUES ($1, $2, $3::NUMERIC, $4)
		 ON CONFLICT (condition_id, outcome_index) DO UPDATE SET
			price      = EXCLUDED.price,
			updated_at = EXCLUDED.updated_at`,
		strings.ToLower(conditionID), outcomeIndex, decimal.NewFromFloat(price).String(), time.Now().UTC())
	return err
}

func (p *Postgres) scanPrices(ctx context.Context, table string, conditionIDs []string, fn func(string, int, float64)) error {
	if len(conditionIDs) == 0 {
		return nil
	}
	ids := make([]string, len(conditionIDs))
	for i, cid := range conditionIDs {
		ids[i] = strings.ToLower(cid)
	}

	rows, err := p.pool.Query(ctx,
		`SELECT condition_id, outcome_index, price::TEXT FROM `+table+` WHERE condition_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid, priceS string
		var idx int
		if err := rows.Scan(&cid, &idx, &priceS); err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}
		fn(cid, idx, numeric(priceS))
	}
	return rows.Err()
}

// numeric convierte un NUMERIC leído como texto a float64.
func numeric(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

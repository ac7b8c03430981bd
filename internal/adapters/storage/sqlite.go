package storage

// sqlite.go — ledger local de eventos y precios.
//
// Estrategia:
//   - `ledger_events`: una fila por event_id (INSERT OR IGNORE → dedupe gratis).
//     El timestamp se guarda en nanosegundos para ordenar exacto por (ts, event_id).
//   - `resolution_prices` / `live_prices`: una fila por (condition, outcome), UPSERT.
//   - Los resultados no se persisten: se recalculan siempre desde el ledger.

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/alejandrodnm/polypnl/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_events (
    event_id          TEXT PRIMARY KEY,
    wallet            TEXT    NOT NULL,
    kind              TEXT    NOT NULL,
    condition_id      TEXT    NOT NULL,
    outcome_index     INTEGER NOT NULL,
    ts_ns             INTEGER NOT NULL,
    cash_delta        REAL    NOT NULL,
    token_delta       REAL    NOT NULL,
    resolution_payout REAL
);

CREATE TABLE IF NOT EXISTS resolution_prices (
    condition_id  TEXT    NOT NULL,
    outcome_index INTEGER NOT NULL,
    price         REAL    NOT NULL,
    updated_at    TEXT    NOT NULL,
    PRIMARY KEY (condition_id, outcome_index)
);

CREATE TABLE IF NOT EXISTS live_prices (
    condition_id  TEXT    NOT NULL,
    outcome_index INTEGER NOT NULL,
    price         REAL    NOT NULL,
    updated_at    TEXT    NOT NULL,
    PRIMARY KEY (condition_id, outcome_index)
);

CREATE INDEX IF NOT EXISTS idx_events_wallet ON ledger_events(wallet, ts_ns, event_id);
`

// Ledger implementa ports.LedgerStore usando SQLite (pure Go, sin CGo).
type Ledger struct {
	db *sql.DB
}

// NewLedger abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewLedger: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewLedger: apply schema: %w", err)
	}

	return &Ledger{db: db}, nil
}

// ImportEvents inserta los eventos válidos ignorando event ids repetidos.
// Devuelve cuántos eran nuevos.
func (l *Ledger) ImportEvents(ctx context.Context, events []domain.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage.ImportEvents: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO ledger_events
			(event_id, wallet, kind, condition_id, outcome_index, ts_ns,
			 cash_delta, token_delta, resolution_payout)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("storage.ImportEvents: prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, e := range events {
		if err := checkEvent(e); err != nil {
			return 0, fmt.Errorf("storage.ImportEvents: %w", err)
		}
		var payout *float64
		if e.ResolutionPayout != nil {
			p := *e.ResolutionPayout
			payout = &p
		}
		res, err := stmt.ExecContext(ctx,
			e.EventID,
			domain.NormalizeWallet(e.Wallet),
			e.Kind.String(),
			strings.ToLower(e.ConditionID),
			e.OutcomeIndex,
			e.Timestamp.UTC().UnixNano(),
			e.CashDelta,
			e.TokenDelta,
			payout,
		)
		if err != nil {
			return 0, fmt.Errorf("storage.ImportEvents: insert %s: %w", e.EventID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage.ImportEvents: commit: %w", err)
	}
	return inserted, nil
}

// LoadEvents devuelve los eventos de la wallet ordenados por (timestamp, event_id).
func (l *Ledger) LoadEvents(ctx context.Context, wallet string) ([]domain.Event, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT event_id, wallet, kind, condition_id, outcome_index, ts_ns,
		       cash_delta, token_delta, resolution_payout
		FROM ledger_events
		WHERE wallet = ?
		ORDER BY ts_ns ASC, event_id ASC
	`, domain.NormalizeWallet(wallet))
	if err != nil {
		return nil, fmt.Errorf("storage.LoadEvents: query: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var kind string
		var tsNs int64
		var payout sql.NullFloat64

		if err := rows.Scan(
			&e.EventID,
			&e.Wallet,
			&kind,
			&e.ConditionID,
			&e.OutcomeIndex,
			&tsNs,
			&e.CashDelta,
			&e.TokenDelta,
			&payout,
		); err != nil {
			return nil, fmt.Errorf("storage.LoadEvents: scan row: %w", err)
		}
		e.Kind = domain.ParseSourceKind(kind)
		e.Timestamp = time.Unix(0, tsNs).UTC()
		if payout.Valid {
			e.ResolutionPayout = domain.Payout(payout.Float64)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// SetResolutionPrice registra (o reemplaza) el precio de resolución de un outcome.
func (l *Ledger) SetResolutionPrice(ctx context.Context, conditionID string, outcomeIndex int, price float64) error {
	if err := l.upsertPrice(ctx, "resolution_prices", conditionID, outcomeIndex, price); err != nil {
		return fmt.Errorf("storage.SetResolutionPrice: %w", err)
	}
	return nil
}

// SetLivePrice registra (o reemplaza) el último precio de un outcome.
func (l *Ledger) SetLivePrice(ctx context.Context, conditionID string, outcomeIndex int, price float64) error {
	if err := l.upsertPrice(ctx, "live_prices", conditionID, outcomeIndex, price); err != nil {
		return fmt.Errorf("storage.SetLivePrice: %w", err)
	}
	return nil
}

// LoadResolutionPrices devuelve los precios registrados para las condiciones dadas.
func (l *Ledger) LoadResolutionPrices(ctx context.Context, _ string, conditionIDs []string) (map[string]map[int]float64, error) {
	out := make(map[string]map[int]float64)
	err := l.scanPrices(ctx, "resolution_prices", conditionIDs, func(cid string, idx int, price float64) {
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
func (l *Ledger) LoadLivePrices(ctx context.Context, _ string, conditionIDs []string) (map[string]float64, error) {
	out := make(map[string]float64)
	err := l.scanPrices(ctx, "live_prices", conditionIDs, func(cid string, idx int, price float64) {
		out[domain.PriceKey(cid, idx)] = price
	})
	if err != nil {
		return nil, fmt.Errorf("storage.LoadLivePrices: %w", err)
	}
	return out, nil
}

// Close cierra la conexión a la base de datos.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// --- helpers internos ---

// table es siempre una constante del paquete, nunca input de usuario.
func (l *Ledger) upsertPrice(ctx context.Context, table, conditionID string, outcomeIndex int, price float64) error {
	if err := checkPrice(conditionID, outcomeIndex, price); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO `+table+` (condition_id, outcome_index, price, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(condition_id, outcome_index) DO UPDATE SET
			price      = excluded.price,
			updated_at = excluded.updated_at
	`, strings.ToLower(conditionID), outcomeIndex, price, time.Now().UTC().Format(time.RFC3339))
	return err
}

func (l *Ledger) scanPrices(ctx context.Context, table string, conditionIDs []string, fn func(string, int, float64)) error {
	if len(conditionIDs) == 0 {
		return nil
	}
	args := make([]any, len(conditionIDs))
	for i, cid := range conditionIDs {
		args[i] = strings.ToLower(cid)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")

	rows, err := l.db.QueryContext(ctx,
		`SELECT condition_id, outcome_index, price FROM `+table+
			` WHERE condition_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid string
		var idx int
		var price float64
		if err := rows.Scan(&cid, &idx, &price); err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}
		fn(cid, idx, price)
	}
	return rows.Err()
}

// --- validación compartida por los ledgers ---

func checkEvent(e domain.Event) error {
	if e.EventID == "" {
		return fmt.Errorf("%w: empty event id", domain.ErrMalformedEvent)
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("event %s: %w", e.EventID, err)
	}
	return nil
}

func checkPrice(conditionID string, outcomeIndex int, price float64) error {
	if conditionID == "" || outcomeIndex < 0 || price < 0 || price > 1 || math.IsNaN(price) {
		return fmt.Errorf("invalid price %v for %s|%d", price, conditionID, outcomeIndex)
	}
	return nil
}

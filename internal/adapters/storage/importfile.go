package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/ports"
)

// eventRecord es el formato JSON de importación de eventos.
type eventRecord struct {
	EventID          string   `json:"event_id"`
	Wallet           string   `json:"wallet"`
	Kind             string   `json:"kind"`
	ConditionID      string   `json:"condition_id"`
	OutcomeIndex     int      `json:"outcome_index"`
	Timestamp        string   `json:"timestamp"` // RFC3339
	CashDelta        float64  `json:"cash_delta"`
	TokenDelta       float64  `json:"token_delta"`
	ResolutionPayout *float64 `json:"resolution_payout,omitempty"`
}

// PriceRecord es un precio de un outcome en el fichero de importación.
type PriceRecord struct {
	ConditionID  string  `json:"condition_id"`
	OutcomeIndex int     `json:"outcome_index"`
	Price        float64 `json:"price"`
}

// LedgerFile es el contenido decodificado de un fichero de importación.
type LedgerFile struct {
	Events      []domain.Event
	Resolutions []PriceRecord
	LivePrices  []PriceRecord
}

// ImportSummary resume una importación.
type ImportSummary struct {
	Events      int
	Inserted    int
	Resolutions int
	LivePrices  int
}

// ReadLedgerFile decodifica un fichero de importación:
//
//	{"events": [...], "resolutions": [...], "live_prices": [...]}
func ReadLedgerFile(r io.Reader) (LedgerFile, error) {
	var raw struct {
		Events      []eventRecord `json:"events"`
		Resolutions []PriceRecord `json:"resolutions"`
		LivePrices  []PriceRecord `json:"live_prices"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return LedgerFile{}, fmt.Errorf("storage.ReadLedgerFile: decode: %w", err)
	}

	events := make([]domain.Event, 0, len(raw.Events))
	for i, rec := range raw.Events {
		ts, err := time.Parse(time.RFC3339Nano, rec.Timestamp)
		if err != nil {
			return LedgerFile{}, fmt.Errorf("storage.ReadLedgerFile: event %d (%s): %w", i, rec.EventID, err)
		}
		kind := domain.ParseSourceKind(rec.Kind)
		if kind == domain.SourceUnknown {
			return LedgerFile{}, fmt.Errorf("storage.ReadLedgerFile: event %d (%s): %w: kind %q",
				i, rec.EventID, domain.ErrMalformedEvent, rec.Kind)
		}
		events = append(events, domain.Event{
			Kind:             kind,
			Wallet:           domain.NormalizeWallet(rec.Wallet),
			ConditionID:      rec.ConditionID,
			OutcomeIndex:     rec.OutcomeIndex,
			Timestamp:        ts.UTC(),
			EventID:          rec.EventID,
			CashDelta:        rec.CashDelta,
			TokenDelta:       rec.TokenDelta,
			ResolutionPayout: rec.ResolutionPayout,
		})
	}
	return LedgerFile{Events: events, Resolutions: raw.Resolutions, LivePrices: raw.LivePrices}, nil
}

// ImportFile lee un fichero de importación y lo vuelca en cualquier LedgerStore.
func ImportFile(ctx context.Context, l ports.LedgerStore, r io.Reader) (ImportSummary, error) {
	f, err := ReadLedgerFile(r)
	if err != nil {
		return ImportSummary{}, err
	}

	inserted, err := l.ImportEvents(ctx, f.Events)
	if err != nil {
		return ImportSummary{}, err
	}
	for _, p := range f.Resolutions {
		if err := l.SetResolutionPrice(ctx, p.ConditionID, p.OutcomeIndex, p.Price); err != nil {
			return ImportSummary{}, err
		}
	}
	for _, p := range f.LivePrices {
		if err := l.SetLivePrice(ctx, p.ConditionID, p.OutcomeIndex, p.Price); err != nil {
			return ImportSummary{}, err
		}
	}
	return ImportSummary{
		Events:      len(f.Events),
		Inserted:    inserted,
		Resolutions: len(f.Resolutions),
		LivePrices:  len(f.LivePrices),
	}, nil
}

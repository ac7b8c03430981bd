package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// ErrHistoryTruncated indica que la wallet tiene más actividad de la que la
// Data API deja paginar. Calcular con el histórico parcial daría un PnL falso.
var ErrHistoryTruncated = fmt.Errorf("%w: activity history truncated", domain.ErrSourceUnavailable)

const (
	activityPath     = "/activity"
	activityPageSize = 500
	// La Data API no devuelve más allá de este offset.
	activityMaxOffset = 10000
)

// LoadEvents pagina GET /activity?user= hasta agotar resultados y devuelve
// los eventos del ledger deduplicados y ordenados.
// Si la última página permitida sigue llena devuelve ErrHistoryTruncated.
func (c *Client) LoadEvents(ctx context.Context, wallet string) ([]domain.Event, error) {
	wallet = domain.NormalizeWallet(wallet)
	var raw []activityItem
	complete := false

	for offset := 0; offset <= activityMaxOffset; offset += activityPageSize {
		q := url.Values{}
		q.Set("user", wallet)
		q.Set("limit", fmt.Sprint(activityPageSize))
		q.Set("offset", fmt.Sprint(offset))
		q.Set("sortDirection", "ASC")

		var page []activityItem
		u := c.dataBase + activityPath + "?" + q.Encode()
		if err := c.get(ctx, c.dataLimiter, "activity", u, &page); err != nil {
			return nil, fmt.Errorf("data-api.LoadEvents: offset %d: %w", offset, err)
		}
		numberFills(page)
		raw = append(raw, page...)

		slog.Debug("fetched activity page",
			"wallet", wallet,
			"offset", offset,
			"count", len(page),
		)
		if len(page) < activityPageSize {
			complete = true
			break
		}
	}
	if !complete {
		return nil, fmt.Errorf("data-api.LoadEvents: %s beyond offset %d: %w", wallet, activityMaxOffset, ErrHistoryTruncated)
	}

	events := mapActivity(wallet, raw)
	slog.Debug("activity loaded", "wallet", wallet, "rows", len(raw), "events", len(events))
	return events, nil
}

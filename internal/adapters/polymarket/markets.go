package polymarket

// markets.go — precios de resolución y precios live desde CLOB /markets/{id}.
//
// Lanza un goroutine por condición; el rate limiter del CLOB controla el ritmo,
// igual que el fetch de books concurrente.

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
)

const marketsPath = "/markets/"

// LoadResolutionPrices devuelve los precios de resolución de las condiciones
// cerradas con ganador. Un mercado que falla se trata como no resuelto.
func (c *Client) LoadResolutionPrices(ctx context.Context, _ string, conditionIDs []string) (map[string]map[int]float64, error) {
	markets, err := c.fetchMarkets(ctx, conditionIDs)
	if err != nil {
		return nil, fmt.Errorf("clob.LoadResolutionPrices: %w", err)
	}
	out := make(map[string]map[int]float64)
	for cid, m := range markets {
		if prices, ok := mapResolution(m); ok {
			out[cid] = prices
		}
	}
	return out, nil
}

// LoadLivePrices devuelve los precios de los tokens de las condiciones abiertas.
func (c *Client) LoadLivePrices(ctx context.Context, _ string, conditionIDs []string) (map[string]float64, error) {
	markets, err := c.fetchMarkets(ctx, conditionIDs)
	if err != nil {
		return nil, fmt.Errorf("clob.LoadLivePrices: %w", err)
	}
	out := make(map[string]float64)
	for cid, m := range markets {
		for k, v := range mapLivePrices(cid, m) {
			out[k] = v
		}
	}
	return out, nil
}

// fetchMarkets obtiene los mercados en paralelo. Los fallos individuales se
// loguean y se omiten; solo se devuelve error si el contexto expiró.
func (c *Client) fetchMarkets(ctx context.Context, conditionIDs []string) (map[string]clobMarket, error) {
	type marketResult struct {
		cid    string
		market clobMarket
		err    error
	}

	resultCh := make(chan marketResult, len(conditionIDs))
	var wg sync.WaitGroup

	for _, cid := range conditionIDs {
		cid := cid
		wg.Add(1)
		go func() {
			defer wg.Done()
			var m clobMarket
			err := c.get(ctx, c.clobLimiter, "markets", c.clobBase+marketsPath+url.PathEscape(cid), &m)
			resultCh <- marketResult{cid: cid, market: m, err: err}
		}()
	}

	// Cerrar el canal cuando todos los goroutines terminen
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	out := make(map[string]clobMarket, len(conditionIDs))
	for r := range resultCh {
		if r.err != nil {
			if !isNotFound(r.err) {
				slog.Warn("market fetch failed", "condition_id", r.cid, "err", r.err)
			}
			continue
		}
		out[r.cid] = r.market
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/polypnl/internal/metrics"
)

const (
	defaultDataBase = "https://data-api.polymarket.com"
	defaultCLOBBase = "https://clob.polymarket.com"

	// Rate limits al 60% de los límites reales documentados.
	// Data API /activity: 200/10s → 120/10s → 12/s
	dataRatePerSec = 12
	// CLOB /markets: 300/10s → 180/10s → 18/s
	clobRatePerSec = 18

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client es el HTTP client de Polymarket con rate limiting y retries.
// Implementa ports.EventSource.
type Client struct {
	http        *http.Client
	dataBase    string
	clobBase    string
	dataLimiter *rate.Limiter
	clobLimiter *rate.Limiter
	retryWait   time.Duration
}

// NewClient crea un Client con los base URLs dados.
// Si dataBase o clobBase están vacíos, usa los URLs de producción.
func NewClient(dataBase, clobBase string) *Client {
	if dataBase == "" {
		dataBase = defaultDataBase
	}
	if clobBase == "" {
		clobBase = defaultCLOBBase
	}
	return &Client{
		http:        &http.Client{Timeout: 10 * time.Second},
		dataBase:    dataBase,
		clobBase:    clobBase,
		dataLimiter: rate.NewLimiter(dataRatePerSec, 5),
		clobLimiter: rate.NewLimiter(clobRatePerSec, 10),
		retryWait:   baseRetryWait,
	}
}

// WithRetryWait cambia la espera base del backoff (tests).
func (c *Client) WithRetryWait(d time.Duration) *Client {
	c.retryWait = d
	return c
}

// get hace un GET con rate limiting y retries. endpoint es la etiqueta de métricas.
func (c *Client) get(ctx context.Context, limiter *rate.Limiter, endpoint, url string, out any) error {
	return c.doWithRetry(ctx, limiter, endpoint, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta la función con backoff exponencial, respetando el contexto.
func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, endpoint string, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			// Wait falla antes de tiempo si la espera superaría el deadline
			if _, ok := ctx.Deadline(); ok && ctx.Err() == nil {
				return fmt.Errorf("rate limiter: %w: %v", context.DeadlineExceeded, err)
			}
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			metrics.SourceRequests.WithLabelValues(endpoint, "transport_error").Inc()
			if ctx.Err() != nil {
				return fmt.Errorf("request aborted: %w", ctx.Err())
			}
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}
		metrics.SourceRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("rate limited by API", "endpoint", endpoint, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return &statusError{code: resp.StatusCode, body: string(body)}
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

// statusError es un 4xx que no se reintenta.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("client error %d: %s", e.code, e.body)
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == http.StatusNotFound
}

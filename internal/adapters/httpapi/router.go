// Package httpapi exposes PnL computation, classification and display over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/metrics"
)

const maxBatchWallets = 500

// Service is the subset of the PnL service the API needs.
type Service interface {
	DefaultOptions() domain.Options
	ComputePnL(ctx context.Context, wallet string, opts domain.Options) (domain.Result, error)
	ClassifyForLeaderboard(r domain.Result) domain.LeaderboardEligibility
	ClassifyForCopyTrade(r domain.Result) domain.CopyTradeEligibility
	GetDisplay(ctx context.Context, wallet string, benchmarkErrPct *float64) domain.Display
	EvaluateBatch(ctx context.Context, wallets []string, workers int) domain.BatchReport
}

// Handler serves the HTTP API.
type Handler struct {
	svc         Service
	stream      http.HandlerFunc
	corsOrigins []string
}

// NewHandler creates a Handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// WithReportStream mounts a WebSocket endpoint at /api/v1/ws that pushes batch reports.
func (h *Handler) WithReportStream(ws http.HandlerFunc) *Handler {
	h.stream = ws
	return h
}

// WithCORS enables CORS for the given origins (browser dashboards).
func (h *Handler) WithCORS(origins []string) *Handler {
	h.corsOrigins = origins
	return h
}

// Router builds the chi router with middleware and every route mounted.
func (h *Handler) Router(requestTimeout time.Duration) http.Handler {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(metrics.Middleware)
	if len(h.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.corsOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "polypnl"})
	})

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/wallets/{wallet}", func(r chi.Router) {
			r.Get("/pnl", h.GetPnL)
			r.Get("/leaderboard", h.GetLeaderboard)
			r.Get("/copytrade", h.GetCopyTrade)
			r.Get("/display", h.GetDisplay)
		})
		r.Post("/batch", h.PostBatch)
		if h.stream != nil {
			r.Get("/ws", h.stream)
		}
	})
	return r
}

// GetPnL handles GET /api/v1/wallets/{wallet}/pnl?mode=&guard=
func (h *Handler) GetPnL(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletParam(w, r)
	if !ok {
		return
	}
	opts, err := h.options(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.svc.ComputePnL(r.Context(), wallet, opts)
	if err != nil {
		writeComputeError(w, wallet, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetLeaderboard handles GET /api/v1/wallets/{wallet}/leaderboard
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletParam(w, r)
	if !ok {
		return
	}
	res, err := h.svc.ComputePnL(r.Context(), wallet, h.svc.DefaultOptions())
	if err != nil {
		writeComputeError(w, wallet, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.ClassifyForLeaderboard(res))
}

// GetCopyTrade handles GET /api/v1/wallets/{wallet}/copytrade
func (h *Handler) GetCopyTrade(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletParam(w, r)
	if !ok {
		return
	}
	res, err := h.svc.ComputePnL(r.Context(), wallet, h.svc.DefaultOptions())
	if err != nil {
		writeComputeError(w, wallet, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.ClassifyForCopyTrade(res))
}

// GetDisplay handles GET /api/v1/wallets/{wallet}/display?benchmark_error=
// Always 200: a wallet that cannot be computed comes back as SUSPECT.
func (h *Handler) GetDisplay(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletParam(w, r)
	if !ok {
		return
	}

	var bench *float64
	if raw := r.URL.Query().Get("benchmark_error"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, "benchmark_error must be a number", http.StatusBadRequest)
			return
		}
		bench = &v
	}
	writeJSON(w, http.StatusOK, h.svc.GetDisplay(r.Context(), wallet, bench))
}

// BatchRequest is the body of POST /api/v1/batch.
type BatchRequest struct {
	Wallets []string `json:"wallets"`
	Workers int      `json:"workers"`
}

// PostBatch handles POST /api/v1/batch
func (h *Handler) PostBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Wallets) == 0 {
		writeError(w, "wallets is required", http.StatusBadRequest)
		return
	}
	if len(req.Wallets) > maxBatchWallets {
		writeError(w, "too many wallets (max "+strconv.Itoa(maxBatchWallets)+")", http.StatusBadRequest)
		return
	}
	if req.Workers < 0 {
		writeError(w, "workers must be >= 0", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.EvaluateBatch(r.Context(), req.Wallets, req.Workers))
}

// options parses mode and guard, falling back to the service defaults.
func (h *Handler) options(r *http.Request) (domain.Options, error) {
	opts := h.svc.DefaultOptions()
	q := r.URL.Query()
	if raw := q.Get("mode"); raw != "" {
		mode, err := domain.ParseValuationMode(raw)
		if err != nil {
			return opts, errors.New("mode must be economic or live")
		}
		opts.Mode = mode
	}
	if raw := q.Get("guard"); raw != "" {
		guard, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, errors.New("guard must be a boolean")
		}
		opts.GuardNegativeInventory = guard
	}
	return opts, nil
}

func walletParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	wallet := domain.NormalizeWallet(chi.URLParam(r, "wallet"))
	if !strings.HasPrefix(wallet, "0x") || len(wallet) < 3 {
		writeError(w, "wallet must be a 0x address", http.StatusBadRequest)
		return "", false
	}
	return wallet, true
}

func writeComputeError(w http.ResponseWriter, wallet string, err error) {
	switch {
	case errors.Is(err, domain.ErrSourceTimeout):
		writeError(w, "event source timed out", http.StatusGatewayTimeout)
	case errors.Is(err, domain.ErrSourceUnavailable):
		writeError(w, "event source unavailable", http.StatusBadGateway)
	default:
		slog.Error("compute failed", "wallet", wallet, "err", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

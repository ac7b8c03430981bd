// Package metrics provides Prometheus instrumentation for PnL computation.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ComputationsTotal counts wallet computations by mode and outcome
	// (ok, cached, timeout, error).
	ComputationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polypnl_computations_total",
		Help: "Total wallet PnL computations",
	}, []string{"mode", "outcome"})

	// ComputationDuration tracks fetch+fold latency per wallet.
	ComputationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polypnl_computation_duration_seconds",
		Help:    "Wallet PnL computation latency in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"mode"})

	// EventsApplied counts events folded into wallet state, by kind.
	EventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polypnl_events_applied_total",
		Help: "Events applied by the accounting engine",
	}, []string{"kind"})

	// EventErrors counts events rejected as malformed or out of order.
	EventErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polypnl_event_errors_total",
		Help: "Events rejected by the accounting engine",
	})

	// CohortsTotal counts display decisions by cohort.
	CohortsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polypnl_cohorts_total",
		Help: "Display cohort decisions",
	}, []string{"cohort"})

	// SourceRequests counts upstream Event Source HTTP requests by endpoint and status.
	SourceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polypnl_source_requests_total",
		Help: "Upstream Event Source requests",
	}, []string{"endpoint", "status"})

	// BatchInFlight tracks wallets currently being computed by batch workers.
	BatchInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polypnl_batch_in_flight",
		Help: "Wallets currently being computed by batch workers",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polypnl_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polypnl_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "route"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics labelled by the chi route pattern, so
// wallet addresses never become label values.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack deja pasar el upgrade de WebSocket a través del middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

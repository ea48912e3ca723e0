// Package metrics provides Prometheus instrumentation for the engine.
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
	// ValuationPasses counts completed valuation passes.
	ValuationPasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_valuation_passes_total",
		Help: "Total number of portfolio valuation passes",
	})

	// ValuationExcludedRows counts rows left out of totals for missing quotes.
	ValuationExcludedRows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_valuation_excluded_rows_total",
		Help: "Valuation rows excluded from totals because the exit quote was unknown",
	})

	// UnrealizedPnL is the latest total unrealized P&L in cents.
	UnrealizedPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_unrealized_pnl_cents",
		Help: "Unrealized P&L of the last valuation pass, in cents",
	})

	// OpenPositions is the number of positions in the last valuation pass.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_open_positions",
		Help: "Open positions seen by the last valuation pass",
	})

	// FillsTotal counts ledger fills by outcome (applied, rejected).
	FillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_fills_total",
		Help: "Ledger fills by outcome",
	}, []string{"outcome"})

	// ProposalRuns counts proposal runs by outcome (ok, rejected, failed).
	ProposalRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_proposal_runs_total",
		Help: "Proposal runs by outcome",
	}, []string{"outcome"})

	// ProposedTrades counts proposed trades by side.
	ProposedTrades = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_proposed_trades_total",
		Help: "Proposed paper trades by side",
	}, []string{"side"})

	// CommittedBudget tracks the share of each run's budget that was allocated.
	CommittedBudget = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentinel_proposal_budget_committed_ratio",
		Help:    "Committed / requested budget per proposal run",
		Buckets: []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1.0},
	})

	// AuditWriteFailures counts audit entries that could not be persisted.
	AuditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_audit_write_failures_total",
		Help: "Audit entries dropped because the store rejected them",
	})

	// UpstreamRequests counts exchange API calls by endpoint and status.
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_upstream_requests_total",
		Help: "Exchange API requests",
	}, []string{"endpoint", "status"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sentinel_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack passes websocket upgrades through to the underlying writer.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Package metrics provides Prometheus instrumentation for the engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ScansTotal counts completed scan cycles.
	ScansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pennybuzz_scans_total",
		Help: "Total number of completed scan cycles",
	})

	// ScanDuration tracks how long a scan cycle takes end to end.
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pennybuzz_scan_duration_seconds",
		Help:    "Scan cycle duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
	})

	// CandidatesRanked reports the row count of the latest candidate table.
	CandidatesRanked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pennybuzz_candidates_ranked",
		Help: "Rows in the most recent ranked candidate table",
	})

	// FallbacksTotal counts substitutions of fallback data, by collaborator.
	FallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pennybuzz_fallbacks_total",
		Help: "Times fallback data replaced a failed collaborator",
	}, []string{"source"})

	// TradesTotal counts executed orders, partitioned by side and outcome.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pennybuzz_trades_total",
		Help: "Total number of orders processed",
	}, []string{"side", "outcome"})

	// TradeLatency tracks per-order execution latency.
	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pennybuzz_trade_latency_seconds",
		Help:    "Order execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// PortfolioEquity tracks the simulated portfolio equity.
	PortfolioEquity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pennybuzz_portfolio_equity",
		Help: "Equity of the simulated portfolio (cash + positions)",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pennybuzz_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pennybuzz_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pennybuzz_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, routePattern(r), strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, routePattern(r)).Observe(duration)
	})
}

// routePattern uses the chi route pattern (/files/{filename}) rather than
// the raw path to keep label cardinality bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
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

// Package metrics provides Prometheus instrumentation for the portfolio engine.
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
	// CalculationsTotal counts portfolio statistics recalculations.
	CalculationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portfolio_calculations_total",
		Help: "Total number of portfolio statistics recalculations",
	})

	// CalculationLatency tracks how long a full recalculation takes.
	CalculationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "portfolio_calculation_seconds",
		Help:    "Portfolio recalculation latency in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})

	// PriceSourceTotal counts valuations by the rule that supplied the price.
	// A rising "assumed" series means holdings are being valued at cost.
	PriceSourceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_price_source_total",
		Help: "Holding valuations by price source (manual, fetched, assumed, face)",
	}, []string{"source"})

	// UnresolvedRates counts currency pairs that fell back to an identity rate.
	UnresolvedRates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_unresolved_rates_total",
		Help: "Currency conversions that could not be resolved and used rate 1",
	}, []string{"from", "to"})

	// PortfolioValue exposes the latest total value in the base currency.
	PortfolioValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "portfolio_value",
		Help: "Latest total portfolio value in the base currency",
	}, []string{"currency"})

	// RateRefreshTotal counts scheduled exchange-rate refreshes by outcome.
	RateRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_rate_refresh_total",
		Help: "Scheduled exchange-rate refreshes by result",
	}, []string{"result"})

	// JobRunsTotal counts background job runs by job and result.
	JobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_job_runs_total",
		Help: "Background job runs by job and result",
	}, []string{"job", "result"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portfolio_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portfolio_http_request_duration_seconds",
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
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, routePattern(r), strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, routePattern(r)).Observe(duration)
	})
}

// routePattern uses the chi route pattern for the path label to avoid
// one series per holding id.
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

// Hijack lets websocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}

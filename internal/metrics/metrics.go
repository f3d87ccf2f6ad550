// Package metrics provides Prometheus instrumentation for the scalper.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OrdersTotal counts coordinator executions, partitioned by intent
	// kind and typed outcome status.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scalper_orders_total",
		Help: "Total orders executed through the transaction coordinator",
	}, []string{"kind", "status"})

	// ExitsTotal counts committed exits by reason (MANUAL, TP, SL, ...).
	ExitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scalper_exits_total",
		Help: "Total committed exits by reason",
	}, []string{"reason"})

	// OrderLatency tracks coordinator execution latency.
	OrderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scalper_order_latency_seconds",
		Help:    "Order execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// Equity tracks the last computed total equity of the session.
	Equity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scalper_equity",
		Help: "Current total equity (available balance + unrealized P&L)",
	})

	// OpenPositions tracks the number of open positions in the book.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scalper_open_positions",
		Help: "Number of currently open positions",
	})

	// WebSocketClients tracks connected dashboard WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scalper_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scalper_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scalper_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// ExposureRejections counts entries rejected by the position limiter.
	ExposureRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scalper_exposure_rejections_total",
		Help: "Entries rejected by the exposure limiter",
	})
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

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
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

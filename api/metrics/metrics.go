package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "biox_api_build_info",
			Help: "Build information of the biox API",
		},
		[]string{"version", "commit", "date"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biox_api_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "biox_api_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "biox_api_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	TransactionsSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biox_api_transactions_submitted_total",
			Help: "Total number of transactions submitted over HTTP, by outcome",
		},
		[]string{"result"}, // "success", "instruction_error", "rejected", "replayed", "error"
	)

	StoreReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biox_api_store_reads_total",
			Help: "Total number of account store reads",
		},
		[]string{"status"},
	)

	StoreReadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "biox_api_store_read_duration_seconds",
			Help:    "Duration of account store reads in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise use the path
		path := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			path = rctx.RoutePattern()
		}
		if path == "" {
			path = r.URL.Path
		}

		status := strconv.Itoa(ww.Status())
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// RecordStoreRead records metrics for an account store read. Missing accounts count
// as successful reads.
func RecordStoreRead(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StoreReadsTotal.WithLabelValues(status).Inc()
	StoreReadDuration.Observe(duration.Seconds())
}

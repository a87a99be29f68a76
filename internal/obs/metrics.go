package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Security-core metrics.
var (
	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by result (ok, mfa_required, denied).",
		},
		[]string{"result"},
	)

	refreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_refresh_total",
			Help: "Refresh-token exchanges by result (ok, denied, reuse).",
		},
		[]string{"result"},
	)

	csrfRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_csrf_rejections_total",
		Help: "Requests rejected by CSRF validation.",
	})

	suspiciousActivity = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_suspicious_activity_total",
		Help: "Sessions flagged for IP or user-agent mismatch.",
	})

	sessionsRevoked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_sessions_revoked_total",
		Help: "Sessions deactivated by logout or explicit revocation.",
	})

	sweepDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_sweep_deleted_total",
			Help: "Rows removed or deactivated by background sweeps.",
		},
		[]string{"kind"},
	)
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		loginsTotal, refreshTotal, csrfRejections,
		suspiciousActivity, sessionsRevoked, sweepDeleted,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveLogin(result string)        { loginsTotal.WithLabelValues(result).Inc() }
func ObserveRefresh(result string)      { refreshTotal.WithLabelValues(result).Inc() }
func ObserveCSRFRejection()             { csrfRejections.Inc() }
func ObserveSuspiciousActivity()        { suspiciousActivity.Inc() }
func ObserveSessionRevoked(n int64)     { sessionsRevoked.Add(float64(n)) }
func ObserveSweep(kind string, n int64) { sweepDeleted.WithLabelValues(kind).Add(float64(n)) }

// Instrument wraps a handler with RPS, latency and in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for instrumentation.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

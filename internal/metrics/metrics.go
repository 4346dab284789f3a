// Package metrics provides Prometheus instrumentation for the risk engine.
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
	// LimitChecksTotal counts limit checks by level and outcome.
	LimitChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskengine_limit_checks_total",
		Help: "Total number of risk limit checks",
	}, []string{"level", "outcome"})

	// LimitViolationsTotal counts individual limit violations by level and metric.
	LimitViolationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskengine_limit_violations_total",
		Help: "Total number of risk limit violations",
	}, []string{"level", "metric"})

	// RegisteredLimits tracks the number of limits in the registry.
	RegisteredLimits = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "riskengine_registered_limits",
		Help: "Number of risk limits currently registered",
	})

	// ActiveStops tracks the number of open stop-loss positions.
	ActiveStops = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "riskengine_active_stops",
		Help: "Number of stop-loss positions being tracked",
	})

	// StopTriggersTotal counts stop-loss triggers by side and source.
	StopTriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskengine_stop_triggers_total",
		Help: "Total number of stop-loss triggers",
	}, []string{"side", "source"})

	// MonteCarloDuration tracks Monte Carlo simulation run time.
	MonteCarloDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "riskengine_montecarlo_duration_seconds",
		Help:    "Monte Carlo simulation duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	// SchedulerJobRuns counts scheduled job executions by job and outcome.
	SchedulerJobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskengine_scheduler_job_runs_total",
		Help: "Total scheduled job runs",
	}, []string{"job", "outcome"})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskengine_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "riskengine_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Outcome labels a pass/fail result.
func Outcome(ok bool) string {
	if ok {
		return "approved"
	}
	return "rejected"
}

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

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern uses the chi route pattern to keep label cardinality bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
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

// Flush keeps streaming responses working through the middleware.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

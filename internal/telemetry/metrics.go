// Package telemetry exposes Prometheus metrics for the daemon.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "umbra"

// Metrics holds every collector, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Evaluations        *prometheus.CounterVec   // by period, source
	Fallbacks          prometheus.Counter       // evaluations that degraded at least once
	EvaluationDuration prometheus.Histogram     // seconds
	CronScanDuration   prometheus.Histogram     // seconds
	Applies            *prometheus.CounterVec   // by period, reason, result
	CurrentPeriod      *prometheus.GaugeVec     // 1 for the active period
	Commands           *prometheus.CounterVec   // by command, result
	APIRequests        *prometheus.CounterVec   // by method, endpoint, status
	APIRequestDuration *prometheus.HistogramVec // by method, endpoint, status
}

// New creates and registers the collectors, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Schedule evaluations by decided period and boundary source.",
		}, []string{"period", "source"}),
		Fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_fallbacks_total",
			Help:      "Schedule evaluations that fell back from the configured source.",
		}),
		EvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent evaluating the schedule, including geo resolution.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
		CronScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cron_scan_duration_seconds",
			Help:      "Time spent searching backwards for the last day and night cron occurrences.",
			Buckets:   []float64{.00001, .0001, .001, .01, .1, .5, 1},
		}),
		Applies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mode_applies_total",
			Help:      "Mode applications by period, reason and result.",
		}, []string{"period", "reason", "result"}),
		CurrentPeriod: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_period",
			Help:      "1 for the period currently applied, 0 otherwise.",
		}, []string{"period"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands executed by name and result.",
		}, []string{"command", "result"}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Gateway HTTP requests.",
		}, []string{"method", "endpoint", "status"}),
		APIRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Gateway HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Evaluations,
		m.Fallbacks,
		m.EvaluationDuration,
		m.CronScanDuration,
		m.Applies,
		m.CurrentPeriod,
		m.Commands,
		m.APIRequests,
		m.APIRequestDuration,
	)
	return m
}

// Handler exposes the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveEvaluation records one schedule evaluation.
func (m *Metrics) ObserveEvaluation(period, source string, fellBack bool, d time.Duration) {
	m.Evaluations.WithLabelValues(period, source).Inc()
	if fellBack {
		m.Fallbacks.Inc()
	}
	m.EvaluationDuration.Observe(d.Seconds())
}

// ObserveCronScan records one backward cron search.
func (m *Metrics) ObserveCronScan(d time.Duration) {
	m.CronScanDuration.Observe(d.Seconds())
}

// ObserveApply records a mode application and, on success, the new period.
func (m *Metrics) ObserveApply(period, reason string, err error) {
	m.Applies.WithLabelValues(period, reason, result(err)).Inc()
	if err != nil {
		return
	}
	for _, p := range []string{"day", "night"} {
		v := 0.0
		if p == period {
			v = 1
		}
		m.CurrentPeriod.WithLabelValues(p).Set(v)
	}
}

// ObserveCommand records a command execution.
func (m *Metrics) ObserveCommand(name string, err error) {
	m.Commands.WithLabelValues(name, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer
// (needed for the WebSocket upgrade).
func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// Middleware tracks request counts and latency by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		status := strconv.Itoa(wrapped.statusCode)

		m.APIRequestDuration.WithLabelValues(r.Method, endpoint, status).Observe(time.Since(start).Seconds())
		m.APIRequests.WithLabelValues(r.Method, endpoint, status).Inc()
	})
}

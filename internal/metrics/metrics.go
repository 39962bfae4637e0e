// Package metrics exposes Prometheus collectors for the gateway, behind
// a package-level Registry and an InstrumentHandler wrapper. Guest
// payloads, arguments, and results never flow into a label value here —
// only endpoint paths, session ids' presence (not their value), error
// kinds, and durations.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds every collector this gateway registers, kept
	// separate from prometheus.DefaultRegisterer so tests can build a
	// fresh gateway without colliding on repeated registration.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hypervisor",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hypervisor",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled, by path and status.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hypervisor",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"method", "path"},
	)

	sessionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hypervisor",
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Total number of handshake sessions created.",
		},
		[]string{"verifiable"},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hypervisor",
			Subsystem: "session",
			Name:      "active",
			Help:      "Current number of sessions retained in the session store.",
		},
	)

	executorInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hypervisor",
			Subsystem: "executor",
			Name:      "inflight_guests",
			Help:      "Current number of guest invocations holding an admission slot.",
		},
	)

	guestExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hypervisor",
			Subsystem: "executor",
			Name:      "executions_total",
			Help:      "Total number of guest executions, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	guestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hypervisor",
			Subsystem: "executor",
			Name:      "execution_duration_seconds",
			Help:      "Duration of guest executions, by kind.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		},
		[]string{"kind"},
	)

	paymentVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hypervisor",
			Subsystem: "payment",
			Name:      "verify_total",
			Help:      "Total number of X402 verify calls, by result.",
		},
		[]string{"result"},
	)

	paymentSettlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hypervisor",
			Subsystem: "payment",
			Name:      "settle_total",
			Help:      "Total number of X402 settle attempts, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		sessionsCreated,
		sessionsActive,
		executorInFlight,
		guestExecutions,
		guestDuration,
		paymentVerifications,
		paymentSettlements,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler exposes the registered collectors for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// InstrumentHandler wraps next with request-count and latency
// instrumentation. /metrics itself is excluded so scraping doesn't
// recursively inflate its own counters.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		httpRequests.WithLabelValues(strings.ToUpper(r.Method), r.URL.Path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(strings.ToUpper(r.Method), r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// RecordSessionCreated increments the handshake counter.
func RecordSessionCreated(verifiable bool) {
	sessionsCreated.WithLabelValues(strconv.FormatBool(verifiable)).Inc()
}

// SetActiveSessions publishes the session store's current size.
func SetActiveSessions(n int) {
	sessionsActive.Set(float64(n))
}

// GuestExecutionStarted marks one admitted guest invocation; the returned
// func must be called exactly once with the outcome ("ok" or an
// apierrors.Kind string) when the invocation finishes.
func GuestExecutionStarted(kind string) func(outcome string) {
	executorInFlight.Inc()
	start := time.Now()
	return func(outcome string) {
		executorInFlight.Dec()
		guestExecutions.WithLabelValues(kind, outcome).Inc()
		guestDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}
}

// RecordPaymentVerify records the outcome of a facilitator verify call.
func RecordPaymentVerify(result string) {
	paymentVerifications.WithLabelValues(result).Inc()
}

// RecordPaymentSettle records the outcome of a facilitator settle call.
func RecordPaymentSettle(result string) {
	paymentSettlements.WithLabelValues(result).Inc()
}

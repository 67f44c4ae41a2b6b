package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce       sync.Once
	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	entitlementDecisionsTotal *prometheus.CounterVec
	entitlementLatency        prometheus.Histogram
	enrollmentsHealedTotal    prometheus.Counter
	enrollmentHealFailures    prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors used by the API and the entitlement engine.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gate_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_http_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		entitlementDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entitlement_decisions_total",
			Help: "Access decisions returned by the entitlement engine.",
		}, []string{"outcome", "reason"})

		entitlementLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "entitlement_evaluate_seconds",
			Help:    "Latency of evaluate-and-charge calls including lock wait.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		})

		enrollmentsHealedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enrollments_healed_total",
			Help: "Lapsed enrollments whose active flag was cleared by the resolver.",
		})

		enrollmentHealFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enrollment_heal_failures_total",
			Help: "Failed attempts to clear the active flag of a lapsed enrollment.",
		})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			entitlementDecisionsTotal, entitlementLatency,
			enrollmentsHealedTotal, enrollmentHealFailures,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// EntitlementDecisions counts decisions by outcome and deny reason.
func EntitlementDecisions() *prometheus.CounterVec {
	RegisterMetrics()
	return entitlementDecisionsTotal
}

// EntitlementLatency observes evaluate-and-charge durations.
func EntitlementLatency() prometheus.Histogram {
	RegisterMetrics()
	return entitlementLatency
}

// EnrollmentsHealed counts successful flag corrections.
func EnrollmentsHealed() prometheus.Counter {
	RegisterMetrics()
	return enrollmentsHealedTotal
}

// EnrollmentHealFailures counts flag corrections that could not be persisted.
func EnrollmentHealFailures() prometheus.Counter {
	RegisterMetrics()
	return enrollmentHealFailures
}

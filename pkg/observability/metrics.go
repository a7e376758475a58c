package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing, so
// components can take one unconditionally.
type Metrics struct {
	// Broker metrics
	BrokerRequestsTotal   *prometheus.CounterVec
	BrokerRequestDuration *prometheus.HistogramVec
	CacheLookupsTotal     *prometheus.CounterVec
	RateLimitedTotal      *prometheus.CounterVec

	// Publishing metrics
	PublishAttemptsTotal *prometheus.CounterVec

	// Submission metrics
	SubmissionsPrunedTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		BrokerRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skillmeat_broker_requests_total",
				Help: "Total number of broker operations",
			},
			[]string{"broker", "operation", "outcome"},
		),
		BrokerRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "skillmeat_broker_request_duration_seconds",
				Help:    "Broker operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"broker", "operation"},
		),
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skillmeat_cache_lookups_total",
				Help: "Response cache lookups by result (hit, miss, revalidated)",
			},
			[]string{"broker", "result"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skillmeat_rate_limited_total",
				Help: "Requests rejected by a broker's rate limiter",
			},
			[]string{"broker"},
		),
		PublishAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skillmeat_publish_attempts_total",
				Help: "Publish attempts by outcome",
			},
			[]string{"outcome"},
		),
		SubmissionsPrunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "skillmeat_submissions_pruned_total",
				Help: "Terminal submissions removed by cleanup",
			},
		),
	}

	registry.MustRegister(
		m.BrokerRequestsTotal,
		m.BrokerRequestDuration,
		m.CacheLookupsTotal,
		m.RateLimitedTotal,
		m.PublishAttemptsTotal,
		m.SubmissionsPrunedTotal,
	)

	return m
}

// ObserveBrokerRequest records the outcome and latency of one broker call
func (m *Metrics) ObserveBrokerRequest(broker, operation, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.BrokerRequestsTotal.WithLabelValues(broker, operation, outcome).Inc()
	m.BrokerRequestDuration.WithLabelValues(broker, operation).Observe(time.Since(start).Seconds())
}

// CacheLookup records a response cache lookup result
func (m *Metrics) CacheLookup(broker, result string) {
	if m == nil {
		return
	}
	m.CacheLookupsTotal.WithLabelValues(broker, result).Inc()
}

// RateLimited records a rate limiter rejection
func (m *Metrics) RateLimited(broker string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(broker).Inc()
}

// PublishAttempt records a publish outcome
func (m *Metrics) PublishAttempt(outcome string) {
	if m == nil {
		return
	}
	m.PublishAttemptsTotal.WithLabelValues(outcome).Inc()
}

// SubmissionsPruned records removed submissions
func (m *Metrics) SubmissionsPruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SubmissionsPrunedTotal.Add(float64(n))
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

package runtime

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the service's prometheus instruments on a private registry
// so tests can build as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal       *prometheus.CounterVec
	PHIBlockedTotal     prometheus.Counter
	HallucinationTotal  prometheus.Counter
	AuditWriteFailures  prometheus.Counter
	RequestDuration     prometheus.Histogram
	StageDuration       *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinsight_requests_total",
			Help: "Pipeline runs by terminal outcome.",
		}, []string{"outcome"}),
		PHIBlockedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinsight_phi_blocked_total",
			Help: "Requests rejected by the PHI gate.",
		}),
		HallucinationTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinsight_hallucination_alerts_total",
			Help: "Responses flagged by the hallucination detector.",
		}),
		AuditWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinsight_audit_write_failures_total",
			Help: "Audit entries that could not be persisted.",
		}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clinsight_request_duration_seconds",
			Help:    "End-to-end pipeline latency.",
			Buckets: prometheus.DefBuckets,
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clinsight_stage_duration_seconds",
			Help:    "Latency per pipeline stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}
	reg.MustRegister(m.RequestsTotal, m.PHIBlockedTotal, m.HallucinationTotal,
		m.AuditWriteFailures, m.RequestDuration, m.StageDuration)
	return m
}

// Handler serves the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics covers the decision pipeline. Register once per process.
type Metrics struct {
	DecisionCount     *prometheus.CounterVec
	DecisionDuration  *prometheus.HistogramVec
	RateLimited       prometheus.Counter
	DuplicateHits     *prometheus.CounterVec
	StoreFailures     *prometheus.CounterVec
	EventPublishFails prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		DecisionCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_decisions_total",
			Help: "Decisions by outcome.",
		}, []string{"decision"}),
		DecisionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payments_decision_duration_seconds",
			Help:    "End-to-end decision latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"decision"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payments_rate_limited_total",
			Help: "Requests denied by the admission controller.",
		}),
		DuplicateHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_idempotency_hits_total",
			Help: "Requests short-circuited by the idempotency layer.",
		}, []string{"kind"}),
		StoreFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_store_failures_total",
			Help: "Atomic store errors absorbed by fail-open paths.",
		}, []string{"component"}),
		EventPublishFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payments_event_publish_failures_total",
			Help: "Decision events dropped after publish failure.",
		}),
	}
}

func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.DecisionCount,
		m.DecisionDuration,
		m.RateLimited,
		m.DuplicateHits,
		m.StoreFailures,
		m.EventPublishFails,
	)
}

// Package metrics holds all Prometheus metrics for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the registered collectors. A nil *Metrics is safe to call, so
// services can run without metrics in tests.
type Metrics struct {
	DecisionsRecorded  *prometheus.CounterVec
	DecisionDuration   prometheus.Histogram
	ChainVerifications *prometheus.CounterVec
	RecordsSealed      prometheus.Counter
	RuleChanges        *prometheus.CounterVec
	EventsPublished    prometheus.Counter
}

// New creates and registers all metrics with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers all metrics with the given registerer.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DecisionsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fundledger_decisions_recorded_total",
			Help: "Decision records written, by type and result.",
		}, []string{"decision_type", "result"}),
		DecisionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fundledger_decision_duration_seconds",
			Help:    "End to end latency of recording a decision.",
			Buckets: prometheus.DefBuckets,
		}),
		ChainVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fundledger_chain_verifications_total",
			Help: "Chain verification runs, by outcome.",
		}, []string{"outcome"}),
		RecordsSealed: factory.NewCounter(prometheus.CounterOpts{
			Name: "fundledger_records_sealed_total",
			Help: "Staged records sealed into the chain.",
		}),
		RuleChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fundledger_rule_changes_total",
			Help: "Rule mutations, by kind.",
		}, []string{"kind"}),
		EventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "fundledger_events_published_total",
			Help: "Outbox events delivered to the event stream.",
		}),
	}
}

func (m *Metrics) ObserveDecision(decisionType, result string, seconds float64) {
	if m == nil {
		return
	}
	m.DecisionsRecorded.WithLabelValues(decisionType, result).Inc()
	m.DecisionDuration.Observe(seconds)
}

func (m *Metrics) IncChainVerification(outcome string) {
	if m == nil {
		return
	}
	m.ChainVerifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddRecordsSealed(n int) {
	if m == nil {
		return
	}
	m.RecordsSealed.Add(float64(n))
}

func (m *Metrics) IncRuleChange(kind string) {
	if m == nil {
		return
	}
	m.RuleChanges.WithLabelValues(kind).Inc()
}

func (m *Metrics) AddEventsPublished(n int) {
	if m == nil {
		return
	}
	m.EventsPublished.Add(float64(n))
}

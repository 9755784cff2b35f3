package security

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons reported on the dropped counter.
const (
	dropOverflow = "overflow"
	dropRequeue  = "requeue"
)

// Metrics holds Prometheus metrics for the security publisher. A nil *Metrics is a no-op.
type Metrics struct {
	Persisted       prometheus.Counter
	Dropped         *prometheus.CounterVec
	PersistFailures prometheus.Counter
	Pending         prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Persisted: factory.NewCounter(prometheus.CounterOpts{
			Name: "citywalk_audit_security_persisted_total",
			Help: "Total number of security audit events persisted",
		}),
		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "citywalk_audit_security_dropped_total",
			Help: "Security audit events lost before persistence, by action and reason",
		}, []string{"action", "reason"}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "citywalk_audit_security_persist_failures_total",
			Help: "Total number of failed security audit flushes",
		}),
		Pending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "citywalk_audit_security_pending",
			Help: "Security audit events waiting to be flushed",
		}),
	}
}

func (m *Metrics) incDropped(action, reason string, n int) {
	if m != nil && n > 0 {
		m.Dropped.WithLabelValues(action, reason).Add(float64(n))
	}
}

func (m *Metrics) incPersisted() {
	if m != nil {
		m.Persisted.Inc()
	}
}

func (m *Metrics) incPersistFailures() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

func (m *Metrics) setPending(n int) {
	if m != nil {
		m.Pending.Set(float64(n))
	}
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics provides observability for the certification module.
// All methods are safe on a nil receiver.
type Metrics struct {
	ChainOutcomes       *prometheus.CounterVec
	ChainDuration       *prometheus.HistogramVec
	VerifyOutcomes      *prometheus.CounterVec
	ChainConflicts      prometheus.Counter
	AutoChainSkipped    prometheus.Counter
	ProviderInfoQueries prometheus.Counter
}

// New registers the certification metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ChainOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "citywalk_seal_chain_total",
			Help: "Chain attempts by provider and outcome",
		}, []string{"provider", "outcome"}),
		ChainDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "citywalk_seal_chain_duration_seconds",
			Help:    "Duration of chain operations including notarization and persistence",
			Buckets: durationBuckets,
		}, []string{"provider"}),
		VerifyOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "citywalk_seal_verify_total",
			Help: "Verification results by provider and verdict",
		}, []string{"provider", "result"}),
		ChainConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "citywalk_seal_chain_conflicts_total",
			Help: "Conditional chain writes lost to a concurrent writer",
		}),
		AutoChainSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "citywalk_seal_autochain_skipped_total",
			Help: "Seal-earned events ignored because automatic chaining is disabled",
		}),
		ProviderInfoQueries: f.NewCounter(prometheus.CounterOpts{
			Name: "citywalk_chain_provider_info_total",
			Help: "Provider diagnostics requests",
		}),
	}
}

// ObserveChain records the outcome and duration of one chain call.
func (m *Metrics) ObserveChain(provider, outcome string, start time.Time) {
	if m == nil {
		return
	}
	if provider == "" {
		provider = "unknown"
	}
	m.ChainOutcomes.WithLabelValues(provider, outcome).Inc()
	m.ChainDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveVerify(provider string, valid bool) {
	if m == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.VerifyOutcomes.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) IncChainConflict() {
	if m == nil {
		return
	}
	m.ChainConflicts.Inc()
}

func (m *Metrics) IncAutoChainSkipped() {
	if m == nil {
		return
	}
	m.AutoChainSkipped.Inc()
}

func (m *Metrics) IncProviderInfo() {
	if m == nil {
		return
	}
	m.ProviderInfoQueries.Inc()
}

package ops

import (
	"math/rand/v2"

	audit "citywalk/pkg/platform/audit"
)

// SealSampling keeps every failed chain attempt and thins the read-path events
// that fire on each admin status page load.
var SealSampling = map[audit.AuditEvent]float64{
	audit.EventSealChainFailed: 1.0,
	audit.EventSealVerified:    0.5,
	audit.EventProvidersViewed: 0.1,
}

// Sampler decides which ops events are kept. Rates are fixed at construction
// and clamped to [0, 1]; actions without an explicit rate use the default.
type Sampler struct {
	defaultRate float64
	rates       map[string]float64
	draw        func() float64
}

func NewSampler(defaultRate float64, rates map[audit.AuditEvent]float64) *Sampler {
	s := &Sampler{
		defaultRate: clampRate(defaultRate),
		rates:       make(map[string]float64, len(rates)),
		draw:        rand.Float64, //nolint:gosec // sampling doesn't need crypto rand
	}
	for action, rate := range rates {
		s.rates[string(action)] = clampRate(rate)
	}
	return s
}

// ShouldSample reports whether an event for action is kept.
func (s *Sampler) ShouldSample(action string) bool {
	rate := s.Rate(action)
	switch rate {
	case 0:
		return false
	case 1:
		return true
	}
	return s.draw() < rate
}

// Rate returns the keep probability for action.
func (s *Sampler) Rate(action string) float64 {
	if rate, ok := s.rates[action]; ok {
		return rate
	}
	return s.defaultRate
}

func clampRate(rate float64) float64 {
	return min(max(rate, 0), 1)
}

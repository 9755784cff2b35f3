package ops

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "citywalk/pkg/platform/audit"
	"citywalk/pkg/platform/audit/store/memory"
	"citywalk/pkg/platform/circuit"
)

type flakyStore struct {
	calls atomic.Int32
}

func (s *flakyStore) Append(context.Context, audit.Event) error {
	s.calls.Add(1)
	return errors.New("unavailable")
}

func (s *flakyStore) ListBySubject(context.Context, string) ([]audit.Event, error) {
	return nil, nil
}

func TestTracker_Track(t *testing.T) {
	store := memory.NewInMemoryStore()
	metrics := NewMetrics(prometheus.NewRegistry())
	tracker := New(store, WithMetrics(metrics))

	tracker.Track(context.Background(), audit.OpsEvent{
		Subject:      "own-1",
		Action:       string(audit.EventSealVerified),
		ProviderName: "local",
		Decision:     "valid",
	})

	events, err := store.ListBySubject(context.Background(), "own-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.CategoryOperations, events[0].Category)
	assert.Equal(t, "valid", events[0].Decision)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Tracked))
}

func TestTracker_Sampling(t *testing.T) {
	store := memory.NewInMemoryStore()
	sampler := NewSampler(1.0, map[audit.AuditEvent]float64{audit.EventProvidersViewed: 0})
	tracker := New(store, WithSampler(sampler))

	tracker.Track(context.Background(), audit.OpsEvent{Subject: "providers", Action: string(audit.EventProvidersViewed)})

	events, _ := store.ListAll(context.Background())
	assert.Empty(t, events)
}

func TestTracker_CircuitDropsAfterFailures(t *testing.T) {
	store := &flakyStore{}
	metrics := NewMetrics(prometheus.NewRegistry())
	tracker := New(store,
		WithMetrics(metrics),
		WithBreaker(circuit.New("ops-test", circuit.WithFailureThreshold(2))),
	)

	for range 5 {
		tracker.Track(context.Background(), audit.OpsEvent{Subject: "own-1", Action: "seal_verified"})
	}

	assert.Equal(t, int32(2), store.calls.Load())
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.CircuitBreakerDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CircuitBreakerState))
}

func TestSampler_SealSampling(t *testing.T) {
	sampler := NewSampler(1.0, SealSampling)
	draws := []float64{0.3, 0.7}
	sampler.draw = func() float64 {
		d := draws[0]
		draws = draws[1:]
		return d
	}

	assert.True(t, sampler.ShouldSample(string(audit.EventSealChainFailed)))
	assert.True(t, sampler.ShouldSample(string(audit.EventSealVerified)), "0.3 is under the 0.5 rate")
	assert.False(t, sampler.ShouldSample(string(audit.EventSealVerified)), "0.7 is over the 0.5 rate")
	assert.Empty(t, draws)

	assert.Equal(t, 0.1, sampler.Rate(string(audit.EventProvidersViewed)))
	assert.Equal(t, 1.0, sampler.Rate("unlisted_action"))
}

func TestSampler_ClampsRates(t *testing.T) {
	sampler := NewSampler(7, map[audit.AuditEvent]float64{audit.EventSealVerified: -1})
	assert.Equal(t, 1.0, sampler.Rate("anything"))
	assert.Equal(t, 0.0, sampler.Rate(string(audit.EventSealVerified)))
	assert.False(t, sampler.ShouldSample(string(audit.EventSealVerified)))
}

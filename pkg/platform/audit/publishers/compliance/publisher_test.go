package compliance

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "citywalk/pkg/platform/audit"
	"citywalk/pkg/platform/audit/store/memory"
)

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error { return errors.New("disk full") }
func (failingStore) ListBySubject(context.Context, string) ([]audit.Event, error) {
	return nil, nil
}

func TestPublisher_Emit(t *testing.T) {
	store := memory.NewInMemoryStore()
	metrics := NewMetrics(prometheus.NewRegistry())
	pub := New(store, WithMetrics(metrics))

	err := pub.Emit(context.Background(), audit.ComplianceEvent{
		UserID:       "u1",
		Subject:      "own-1",
		Action:       string(audit.EventSealChained),
		ProviderName: "local",
		ReferenceID:  "0xabc",
	})
	require.NoError(t, err)

	events, err := store.ListBySubject(context.Background(), "own-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.Equal(t, "0xabc", events[0].ReferenceID)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventsEmitted))
}

func TestPublisher_Validation(t *testing.T) {
	pub := New(memory.NewInMemoryStore())

	err := pub.Emit(context.Background(), audit.ComplianceEvent{Action: "seal_chained"})
	assert.ErrorContains(t, err, "Subject")

	err = pub.Emit(context.Background(), audit.ComplianceEvent{Subject: "own-1"})
	assert.ErrorContains(t, err, "Action")
}

func TestPublisher_FailClosed(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	pub := New(failingStore{}, WithMetrics(metrics))

	err := pub.Emit(context.Background(), audit.ComplianceEvent{Subject: "own-1", Action: "seal_chained"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PersistFailures))
}

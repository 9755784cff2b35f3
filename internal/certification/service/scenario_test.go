package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citywalk/internal/certification/metrics"
	"citywalk/internal/certification/models"
	"citywalk/internal/certification/providers"
	"citywalk/internal/certification/resolver"
	"citywalk/internal/certification/service"
	"citywalk/internal/certification/store/ownership"
	dErrors "citywalk/pkg/domain-errors"
	audit "citywalk/pkg/platform/audit"
	"citywalk/pkg/platform/audit/publishers/compliance"
	auditmemory "citywalk/pkg/platform/audit/store/memory"
)

func newScenario(t *testing.T, config resolver.MapSource) (*service.Service, *ownership.InMemory, *auditmemory.InMemoryStore) {
	t.Helper()
	store := ownership.NewInMemory()
	require.NoError(t, store.Save(context.Background(), &models.SealOwnershipRecord{
		ID:         "own-1",
		SealID:     "s1",
		UserID:     "u1",
		SealName:   "Night Market",
		EarnedTime: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}))
	auditStore := auditmemory.NewInMemoryStore()
	svc := service.New(store, resolver.New(config), providers.NewDefaultRegistry(),
		service.WithComplianceAuditor(compliance.New(auditStore)),
		service.WithMetrics(metrics.New(prometheus.NewRegistry())),
	)
	return svc, store, auditStore
}

func TestNightMarketScenario(t *testing.T) {
	svc, store, auditStore := newScenario(t, resolver.MapSource{})
	ctx := context.Background()

	result, err := svc.Chain(ctx, "own-1", "")
	require.NoError(t, err)
	assert.Equal(t, providers.NameLocal, result.ProviderName)
	assert.True(t, strings.HasPrefix(result.ReferenceID, "0x"))
	assert.Len(t, result.ReferenceID, 2+64)

	verified, err := svc.Verify(ctx, "own-1")
	require.NoError(t, err)
	assert.True(t, verified.Valid)
	assert.Equal(t, result.ReferenceID, verified.ReferenceID)
	assert.Equal(t, result.Ordinal, verified.Ordinal)

	_, err = svc.Chain(ctx, "own-1", "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyChained))

	record, err := store.FindByID(ctx, "own-1")
	require.NoError(t, err)
	assert.Equal(t, result.ReferenceID, record.ReferenceID)

	events, err := auditStore.ListBySubject(ctx, "own-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventSealChained), events[0].Action)
}

func TestAntChainWithoutCredentialsFallsBack(t *testing.T) {
	svc, _, _ := newScenario(t, resolver.MapSource{resolver.KeyProvider: "antchain"})
	ctx := context.Background()

	info, err := svc.ProviderInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, providers.NameAntChain, info.ActiveProvider)
	assert.False(t, info.ActiveProviderConfigured)

	result, err := svc.Chain(ctx, "own-1", "")
	require.NoError(t, err)
	assert.Equal(t, providers.NameAntChain, result.ProviderName)
	assert.True(t, strings.HasPrefix(result.ReferenceID, "0x"))

	verified, err := svc.Verify(ctx, "own-1")
	require.NoError(t, err)
	assert.True(t, verified.Valid)
}

// TestConcurrentChain verifies exactly one of many concurrent chain calls wins
// and every loser sees AlreadyChained.
func TestConcurrentChain(t *testing.T) {
	svc, store, _ := newScenario(t, resolver.MapSource{})
	ctx := context.Background()
	const goroutines = 32

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []*providers.NotarizationResult
		losers  int
		others  []error
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.Chain(ctx, "own-1", "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, result)
			case dErrors.HasCode(err, dErrors.CodeAlreadyChained):
				losers++
			default:
				others = append(others, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, others)
	require.Len(t, winners, 1)
	assert.Equal(t, goroutines-1, losers)

	record, err := store.FindByID(ctx, "own-1")
	require.NoError(t, err)
	assert.Equal(t, winners[0].ReferenceID, record.ReferenceID)
}

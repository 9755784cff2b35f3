//go:build integration

package ownership_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"citywalk/internal/certification/models"
	"citywalk/internal/certification/store/ownership"
	id "citywalk/pkg/domain"
	"citywalk/pkg/platform/sentinel"
	"citywalk/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *ownership.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = ownership.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "seal_ownership")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) seed() id.OwnershipID {
	ownershipID := id.OwnershipID("own-" + uuid.NewString())
	s.Require().NoError(s.store.Save(context.Background(), &models.SealOwnershipRecord{
		ID:         ownershipID,
		SealID:     "s1",
		UserID:     "u1",
		SealName:   "Night Market",
		EarnedTime: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Location:   "Shilin",
	}))
	return ownershipID
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	ownershipID := s.seed()

	found, err := s.store.FindByID(ctx, ownershipID)
	s.Require().NoError(err)
	s.False(found.Chained)
	s.Equal("Shilin", found.Location)
	s.True(found.EarnedTime.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
	s.Empty(found.ReferenceID)
	s.Nil(found.Certificate)

	_, err = s.store.FindByID(ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestPersistChainResultPreservesCertificateBytes() {
	ctx := context.Background()
	ownershipID := s.seed()
	cert := []byte(`{"version":"1.0","type":"SEAL_CERTIFICATE","sealName":"夜市"}`)
	notarizedAt := time.Date(2024, 5, 2, 3, 4, 5, 6000000, time.UTC)

	err := s.store.PersistChainResult(ctx, ownershipID, models.ChainResult{
		ProviderName: "local",
		ReferenceID:  "0xabc",
		Ordinal:      "114000000",
		NotarizedAt:  notarizedAt,
		Certificate:  cert,
	})
	s.Require().NoError(err)

	found, err := s.store.FindByID(ctx, ownershipID)
	s.Require().NoError(err)
	s.True(found.Chained)
	s.Equal(cert, found.Certificate)
	s.Equal("114000000", found.Ordinal)
	s.True(notarizedAt.Equal(found.NotarizedAt))

	err = s.store.PersistChainResult(ctx, ownershipID, models.ChainResult{ProviderName: "local", ReferenceID: "0xdef"})
	s.ErrorIs(err, sentinel.ErrConflict)

	err = s.store.PersistChainResult(ctx, "missing", models.ChainResult{})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentChain verifies the conditional update lets exactly one writer win.
func (s *PostgresStoreSuite) TestConcurrentChain() {
	ctx := context.Background()
	ownershipID := s.seed()
	const goroutines = 20

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.store.PersistChainResult(ctx, ownershipID, models.ChainResult{
				ProviderName: "local",
				ReferenceID:  "0x" + uuid.NewString(),
				Ordinal:      "1",
				NotarizedAt:  time.Now(),
				Certificate:  []byte(`{}`),
			})
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

//go:build integration

package resolver_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"

	"citywalk/internal/certification/resolver"
	"citywalk/pkg/testutil/containers"
)

type SourcesIntegrationSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	redis    *containers.RedisContainer
	pool     *pgxpool.Pool
}

func TestSourcesIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(SourcesIntegrationSuite))
}

func (s *SourcesIntegrationSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.redis = mgr.GetRedis(s.T())

	pool, err := pgxpool.New(context.Background(), s.postgres.URL)
	s.Require().NoError(err)
	s.pool = pool
}

func (s *SourcesIntegrationSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *SourcesIntegrationSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "sys_config"))
	s.Require().NoError(s.redis.FlushAll(ctx))
}

func (s *SourcesIntegrationSuite) put(key, value string) {
	_, err := s.postgres.DB.ExecContext(context.Background(),
		`INSERT INTO sys_config (config_key, config_value) VALUES ($1, $2)
		 ON CONFLICT (config_key) DO UPDATE SET config_value = EXCLUDED.config_value`, key, value)
	s.Require().NoError(err)
}

func (s *SourcesIntegrationSuite) TestPostgresSource() {
	ctx := context.Background()
	s.put(resolver.KeyProvider, "polygon")
	s.put(resolver.CredentialKey("polygon", "rpcUrl"), "https://rpc.example")

	src := resolver.NewPostgresSource(s.pool)

	v, err := src.GetConfigValue(ctx, resolver.KeyProvider)
	s.Require().NoError(err)
	s.Equal("polygon", v)

	missing, err := src.GetConfigValue(ctx, resolver.KeyAutoChain)
	s.Require().NoError(err)
	s.Empty(missing)

	snap, err := resolver.New(src).Snapshot(ctx)
	s.Require().NoError(err)
	s.Equal("polygon", resolver.ActiveProvider(snap))
	s.False(snap.AutoChain())
}

func (s *SourcesIntegrationSuite) TestRedisCachedSource() {
	ctx := context.Background()
	s.put(resolver.KeyProvider, "bsn")

	cached := resolver.NewRedisCachedSource(s.redis.Client, resolver.NewPostgresSource(s.pool))

	v, err := cached.GetConfigValue(ctx, resolver.KeyProvider)
	s.Require().NoError(err)
	s.Equal("bsn", v)

	// stale until invalidated
	s.put(resolver.KeyProvider, "zhixin")
	v, err = cached.GetConfigValue(ctx, resolver.KeyProvider)
	s.Require().NoError(err)
	s.Equal("bsn", v)

	s.Require().NoError(cached.Invalidate(ctx, resolver.KeyProvider))
	v, err = cached.GetConfigValue(ctx, resolver.KeyProvider)
	s.Require().NoError(err)
	s.Equal("zhixin", v)
}

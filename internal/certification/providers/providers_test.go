package providers_test

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citywalk/internal/certification/certificate"
	"citywalk/internal/certification/providers"
	"citywalk/internal/certification/providers/contract"
	dErrors "citywalk/pkg/domain-errors"
)

var (
	mintTime   = time.Date(2024, 5, 1, 10, 0, 5, 0, time.UTC)
	anchorTime = time.Date(2024, 5, 1, 10, 0, 7, 0, time.UTC)
)

func fixedClock() time.Time { return mintTime }

func nightMarket(t *testing.T) *certificate.Certificate {
	t.Helper()
	entropy := bytes.NewReader([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15})
	cert, err := certificate.NewBuilder(certificate.WithEntropy(entropy)).Build(certificate.SealFact{
		SealID:     "s1",
		UserID:     "u1",
		SealName:   "Night Market",
		EarnedTime: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}, mintTime)
	require.NoError(t, err)
	return cert
}

// completeCredentials fills every field a provider's profile requires.
func completeCredentials(p providers.Profile) providers.Credentials {
	creds := providers.Credentials{}
	for _, f := range p.Fields {
		creds[f] = "value-" + f
	}
	if p.EndpointField != "" {
		creds[p.EndpointField] = "http://gateway.invalid"
	}
	return creds
}

type stubBackend struct {
	anchor *providers.Anchor
	err    error
	calls  atomic.Int32
	last   providers.AnchorRequest
	block  bool
}

func (b *stubBackend) Anchor(ctx context.Context, req providers.AnchorRequest) (*providers.Anchor, error) {
	b.calls.Add(1)
	b.last = req
	if b.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return b.anchor, b.err
}

func TestContract(t *testing.T) {
	backend := &stubBackend{anchor: &providers.Anchor{Ordinal: "77", AnchoredAt: anchorTime}}
	cases := []struct {
		provider *providers.Strategy
		prefix   string
	}{
		{providers.NewLocal(providers.WithClock(fixedClock)), "0x"},
		{providers.NewTimestamp(providers.WithClock(fixedClock)), "ts_"},
		{providers.NewAntChain(providers.WithClock(fixedClock)), "0x"},
		{providers.NewBSN(providers.WithClock(fixedClock)), "0x"},
		{providers.NewPolygon(providers.WithClock(fixedClock)), "pg_"},
		{providers.NewZhixin(providers.WithClock(fixedClock)), "zx_"},
	}
	for _, tc := range cases {
		t.Run(tc.provider.Name()+"/fallback", func(t *testing.T) {
			s := &contract.Suite{
				Provider:    tc.provider,
				Prefix:      tc.prefix,
				Certificate: func() *certificate.Certificate { return nightMarket(t) },
			}
			s.Run(t)
		})
	}

	for _, tc := range cases[1:] {
		p := tc.provider.Profile()
		var strategy *providers.Strategy
		switch p.Name {
		case providers.NameTimestamp:
			strategy = providers.NewTimestamp(providers.WithBackend(backend))
		case providers.NameAntChain:
			strategy = providers.NewAntChain(providers.WithBackend(backend))
		case providers.NameBSN:
			strategy = providers.NewBSN(providers.WithBackend(backend))
		case providers.NamePolygon:
			strategy = providers.NewPolygon(providers.WithBackend(backend))
		case providers.NameZhixin:
			strategy = providers.NewZhixin(providers.WithBackend(backend))
		}
		t.Run(p.Name+"/backend", func(t *testing.T) {
			s := &contract.Suite{
				Provider:    strategy,
				Prefix:      tc.prefix,
				Credentials: completeCredentials(p),
				Certificate: func() *certificate.Certificate { return nightMarket(t) },
			}
			s.Run(t)
		})
	}
}

func TestLocal_NightMarketScenario(t *testing.T) {
	local := providers.NewLocal(providers.WithClock(fixedClock))
	cert := nightMarket(t)

	result, err := local.Notarize(context.Background(), cert, nil)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.ReferenceID, "0x"))
	assert.Equal(t, "0x7cfabaec3b5ca45f3f00ba0903498d59511609ca084c0fec169db19cda7d8562", result.ReferenceID)
	assert.Equal(t, strconv.FormatInt(mintTime.Unix()-1_600_000_000, 10), result.Ordinal)
	assert.Equal(t, mintTime, result.NotarizedAt)
	assert.Equal(t, providers.NameLocal, result.ProviderName)

	verification, err := local.Verify(context.Background(), providers.VerifyRequest{
		ReferenceID: result.ReferenceID,
		Ordinal:     result.Ordinal,
		NotarizedAt: result.NotarizedAt,
		Certificate: cert,
	})
	require.NoError(t, err)
	assert.True(t, verification.Valid)
}

func TestFallbackOrdinalBands(t *testing.T) {
	bands := map[string][2]int64{
		providers.NameTimestamp: {10_000_000, 20_000_000},
		providers.NameAntChain:  {20_000_000, 30_000_000},
		providers.NameBSN:       {30_000_000, 40_000_000},
		providers.NamePolygon:   {40_000_000, 50_000_000},
		providers.NameZhixin:    {50_000_000, 60_000_000},
	}
	registry := providers.NewDefaultRegistry(providers.WithRand(rand.New(rand.NewPCG(1, 2))))
	cert := nightMarket(t)

	for name, band := range bands {
		p, ok := registry.Get(name)
		require.True(t, ok, name)
		for range 50 {
			result, err := p.Notarize(context.Background(), cert, providers.Credentials{})
			require.NoError(t, err)
			ordinal, err := strconv.ParseInt(result.Ordinal, 10, 64)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, ordinal, band[0], name)
			assert.Less(t, ordinal, band[1], name)
		}
	}
}

func TestAntChain_WithoutCredentialsFallsBack(t *testing.T) {
	backend := &stubBackend{err: errors.New("must not be called")}
	antchain := providers.NewAntChain(providers.WithBackend(backend))

	partial := providers.Credentials{"endpoint": "http://gateway.invalid", "accessKeyId": "ak"}
	result, err := antchain.Notarize(context.Background(), nightMarket(t), partial)

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.ReferenceID, "0x"))
	assert.Equal(t, int32(0), backend.calls.Load())
}

func TestRemote_CompleteCredentials(t *testing.T) {
	creds := completeCredentials(providers.Profiles()[2])

	t.Run("not integrated without backend", func(t *testing.T) {
		antchain := providers.NewAntChain()
		_, err := antchain.Notarize(context.Background(), nightMarket(t), creds)

		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeProviderUnavailable))
		assert.Equal(t, providers.ErrorNotIntegrated, providers.GetCategory(err))
	})

	t.Run("uses backend receipt", func(t *testing.T) {
		backend := &stubBackend{anchor: &providers.Anchor{Ordinal: "123456", AnchoredAt: anchorTime}}
		antchain := providers.NewAntChain(providers.WithBackend(backend), providers.WithClock(fixedClock))
		cert := nightMarket(t)

		result, err := antchain.Notarize(context.Background(), cert, creds)
		require.NoError(t, err)

		assert.Equal(t, "123456", result.Ordinal)
		assert.Equal(t, anchorTime, result.NotarizedAt)
		assert.Equal(t, result.ReferenceID, backend.last.ReferenceID)
		assert.Equal(t, strings.TrimPrefix(result.ReferenceID, "0x"), backend.last.Digest)
		assert.Equal(t, creds["accessKeyId"], backend.last.KeyID)
		assert.Equal(t, creds["accessKeySecret"], backend.last.Secret)
		assert.Equal(t, creds["endpoint"], backend.last.Endpoint)
		canonical, err := cert.Canonical()
		require.NoError(t, err)
		assert.JSONEq(t, string(canonical), string(backend.last.Certificate))
	})

	t.Run("backend failure is provider unavailable", func(t *testing.T) {
		backend := &stubBackend{err: errors.New("connection refused")}
		antchain := providers.NewAntChain(providers.WithBackend(backend))

		_, err := antchain.Notarize(context.Background(), nightMarket(t), creds)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeProviderUnavailable))
		assert.Equal(t, providers.ErrorProviderOutage, providers.GetCategory(err))
		assert.True(t, providers.IsRetryable(err))
	})

	t.Run("backend timeout", func(t *testing.T) {
		backend := &stubBackend{block: true}
		antchain := providers.NewAntChain(providers.WithBackend(backend), providers.WithTimeout(20*time.Millisecond))

		_, err := antchain.Notarize(context.Background(), nightMarket(t), creds)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeProviderUnavailable))
		assert.Equal(t, providers.ErrorTimeout, providers.GetCategory(err))
	})

	t.Run("empty receipt is bad data", func(t *testing.T) {
		backend := &stubBackend{anchor: &providers.Anchor{}}
		antchain := providers.NewAntChain(providers.WithBackend(backend))

		_, err := antchain.Notarize(context.Background(), nightMarket(t), creds)
		assert.Equal(t, providers.ErrorBadData, providers.GetCategory(err))
		assert.False(t, providers.IsRetryable(err))
	})
}

func TestProviderNamespacing(t *testing.T) {
	registry := providers.NewDefaultRegistry()
	cert := nightMarket(t)

	byPrefix := map[string][]string{}
	for _, name := range registry.Names() {
		p, _ := registry.Get(name)
		result, err := p.Notarize(context.Background(), cert, nil)
		require.NoError(t, err)
		prefix := p.(*providers.Strategy).Prefix()
		assert.True(t, strings.HasPrefix(result.ReferenceID, prefix))
		byPrefix[prefix] = append(byPrefix[prefix], result.ReferenceID)
	}

	// providers with distinct prefixes never produce the same reference
	seen := map[string]string{}
	for prefix, refs := range byPrefix {
		for _, ref := range refs {
			if other, ok := seen[ref]; ok {
				assert.Equal(t, other, prefix, "reference %s shared across prefixes", ref)
			}
			seen[ref] = prefix
		}
	}
	assert.Len(t, byPrefix, 4)
}

func TestVerify_WrongProviderPrefix(t *testing.T) {
	cert := nightMarket(t)
	ts, err := providers.NewTimestamp().Notarize(context.Background(), cert, nil)
	require.NoError(t, err)

	verification, err := providers.NewZhixin().Verify(context.Background(), providers.VerifyRequest{
		ReferenceID: ts.ReferenceID,
		Certificate: cert,
	})
	require.NoError(t, err)
	assert.False(t, verification.Valid)
	assert.Equal(t, providers.NameZhixin, verification.ProviderName)
}

func TestNotarize_RejectsMalformedCertificate(t *testing.T) {
	_, err := providers.NewLocal().Notarize(context.Background(), nil, nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidCertificate))

	assert.Equal(t, providers.ErrorInvalidCertificate, providers.GetCategory(err))

	cert := nightMarket(t)
	cert.Type = "OTHER"
	_, err = providers.NewLocal().Notarize(context.Background(), cert, nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidCertificate))
	assert.Equal(t, providers.ErrorInvalidCertificate, providers.GetCategory(err))
	assert.False(t, providers.IsRetryable(err))
}

func TestVerify_RejectsDecomposedCertificate(t *testing.T) {
	cert := nightMarket(t)
	result, err := providers.NewPolygon().Notarize(context.Background(), cert, nil)
	require.NoError(t, err)

	decomposed := *cert
	decomposed.SealName = "Cafe\u0301"
	_, err = providers.NewPolygon().Verify(context.Background(), providers.VerifyRequest{
		ReferenceID: result.ReferenceID,
		Ordinal:     result.Ordinal,
		NotarizedAt: result.NotarizedAt,
		Certificate: &decomposed,
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidCertificate))
	assert.Equal(t, providers.ErrorInvalidCertificate, providers.GetCategory(err))

	var pe *providers.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, providers.NamePolygon, pe.Provider)
	assert.Contains(t, err.Error(), "sealName")
}

func TestRegistry(t *testing.T) {
	registry := providers.NewDefaultRegistry()
	assert.Equal(t, []string{"antchain", "bsn", "local", "polygon", "timestamp", "zhixin"}, registry.Names())

	err := registry.Register(providers.NewLocal())
	assert.Error(t, err)

	_, ok := registry.Get("ethereum")
	assert.False(t, ok)

	for _, profile := range providers.Profiles() {
		p, ok := registry.Get(profile.Name)
		require.True(t, ok)
		assert.Equal(t, profile, p.(*providers.Strategy).Profile())
	}
}

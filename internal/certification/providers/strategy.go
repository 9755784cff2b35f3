package providers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"citywalk/internal/certification/certificate"
	dErrors "citywalk/pkg/domain-errors"
)

const (
	// localEpochOffset is subtracted from unix seconds to form local ordinals.
	localEpochOffset = 1_600_000_000

	defaultTimeout = 10 * time.Second
)

// ordinalBand is the half-open range [lo, hi) a remote provider draws fallback
// ordinals from. The values are cosmetic stand-ins, not chain heights.
type ordinalBand struct {
	lo, hi int64
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithClock overrides the time source used for ordinals and notarizedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Strategy) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBackend wires the external anchoring backend used when credentials are complete.
func WithBackend(b Backend) Option {
	return func(s *Strategy) {
		s.backend = b
	}
}

// WithTimeout bounds each backend call.
func WithTimeout(d time.Duration) Option {
	return func(s *Strategy) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRand sets the source of fallback ordinals.
func WithRand(r *rand.Rand) Option {
	return func(s *Strategy) {
		s.rng = r
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Strategy) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Strategy implements the notarize and verify algorithm shared by all providers.
// Providers differ only in profile, reference prefix and ordinal source.
type Strategy struct {
	profile Profile
	prefix  string
	remote  bool
	band    ordinalBand

	now     func() time.Time
	backend Backend
	timeout time.Duration
	logger  *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

func newLocalStrategy(p Profile, prefix string, opts []Option) *Strategy {
	return newStrategy(p, prefix, false, ordinalBand{}, opts)
}

func newRemoteStrategy(p Profile, prefix string, band ordinalBand, opts []Option) *Strategy {
	return newStrategy(p, prefix, true, band, opts)
}

func newStrategy(p Profile, prefix string, remote bool, band ordinalBand, opts []Option) *Strategy {
	s := &Strategy{
		profile: p,
		prefix:  prefix,
		remote:  remote,
		band:    band,
		now:     time.Now,
		timeout: defaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Strategy) Name() string { return s.profile.Name }

// Prefix returns the reference id namespace of this provider.
func (s *Strategy) Prefix() string { return s.prefix }

func (s *Strategy) Profile() Profile { return s.profile }

// ReferenceFor derives the reference id for cert along with its digest and canonical bytes.
func (s *Strategy) ReferenceFor(cert *certificate.Certificate) (ref, digest string, canonical []byte, err error) {
	canonical, err = cert.Canonical()
	if err != nil {
		return "", "", nil, s.rejected(err)
	}
	digest = certificate.Digest(canonical)
	return s.prefix + digest, digest, canonical, nil
}

// Notarize implements Provider.
func (s *Strategy) Notarize(ctx context.Context, cert *certificate.Certificate, creds Credentials) (*NotarizationResult, error) {
	if err := cert.Validate(); err != nil {
		return nil, s.rejected(err)
	}
	ref, digest, canonical, err := s.ReferenceFor(cert)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	result := &NotarizationResult{
		ReferenceID:  ref,
		NotarizedAt:  now,
		ProviderName: s.Name(),
		Certificate:  cert,
	}

	switch {
	case !s.remote:
		result.Ordinal = strconv.FormatInt(now.Unix()-localEpochOffset, 10)
	case !creds.Complete(s.profile.Fields):
		result.Ordinal = strconv.FormatInt(s.fallbackOrdinal(), 10)
	default:
		anchor, err := s.anchor(ctx, AnchorRequest{
			Provider:    s.Name(),
			Endpoint:    creds[s.profile.EndpointField],
			KeyID:       creds[s.profile.KeyIDField],
			Secret:      creds[s.profile.SecretField],
			ReferenceID: ref,
			Digest:      digest,
			Certificate: json.RawMessage(canonical),
		})
		if err != nil {
			return nil, err
		}
		result.Ordinal = anchor.Ordinal
		if !anchor.AnchoredAt.IsZero() {
			result.NotarizedAt = anchor.AnchoredAt.UTC().Truncate(time.Millisecond)
		}
	}
	return result, nil
}

func (s *Strategy) anchor(ctx context.Context, req AnchorRequest) (*Anchor, error) {
	if s.backend == nil {
		return nil, s.unavailable(NewProviderError(ErrorNotIntegrated, s.Name(), "no backend integration configured", nil))
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	anchor, err := s.backend.Anchor(callCtx, req)
	if err != nil {
		return nil, s.unavailable(s.classify(err))
	}
	if anchor == nil || anchor.Ordinal == "" {
		return nil, s.unavailable(NewProviderError(ErrorBadData, s.Name(), "backend returned no ordinal", nil))
	}
	return anchor, nil
}

func (s *Strategy) classify(err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(ErrorTimeout, s.Name(), "backend call timed out", err)
	}
	return NewProviderError(ErrorProviderOutage, s.Name(), "backend call failed", err)
}

func (s *Strategy) unavailable(pe *ProviderError) error {
	s.logger.Warn("notarization backend failed",
		"provider", s.Name(),
		"category", string(pe.Category),
		"retryable", pe.Retryable,
		"error", pe,
	)
	return dErrors.Wrap(pe, dErrors.CodeProviderUnavailable, fmt.Sprintf("%s notarization unavailable", s.Name()))
}

// rejected categorizes a certificate the provider refuses to hash. The outer
// message is the validation message so transports can show it.
func (s *Strategy) rejected(err error) error {
	msg := "certificate rejected"
	var de *dErrors.Error
	if errors.As(err, &de) {
		msg = de.Message
	}
	return dErrors.Wrap(NewProviderError(ErrorInvalidCertificate, s.Name(), msg, err), dErrors.CodeInvalidCertificate, msg)
}

func (s *Strategy) fallbackOrdinal() int64 {
	span := s.band.hi - s.band.lo
	if s.rng == nil {
		return s.band.lo + rand.Int64N(span)
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.band.lo + s.rng.Int64N(span)
}

// Verify implements Provider.
func (s *Strategy) Verify(_ context.Context, req VerifyRequest) (*VerificationResult, error) {
	result := &VerificationResult{
		ReferenceID:  req.ReferenceID,
		Ordinal:      req.Ordinal,
		NotarizedAt:  req.NotarizedAt,
		ProviderName: s.Name(),
		Certificate:  req.Certificate,
	}
	if req.Certificate == nil {
		return result, nil
	}
	if err := req.Certificate.Validate(); err != nil {
		return nil, s.rejected(err)
	}
	expected, _, _, err := s.ReferenceFor(req.Certificate)
	if err != nil {
		return nil, err
	}
	result.Valid = subtle.ConstantTimeCompare([]byte(expected), []byte(req.ReferenceID)) == 1
	return result, nil
}

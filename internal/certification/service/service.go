// Package service orchestrates seal certification: it mints certificates,
// dispatches them to the resolved provider, enforces the one-time chain
// transition and verifies stored records against the provider that minted them.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"citywalk/internal/certification/certificate"
	"citywalk/internal/certification/metrics"
	"citywalk/internal/certification/models"
	"citywalk/internal/certification/providers"
	"citywalk/internal/certification/resolver"
	id "citywalk/pkg/domain"
	dErrors "citywalk/pkg/domain-errors"
	audit "citywalk/pkg/platform/audit"
	"citywalk/pkg/platform/sentinel"
	txcontext "citywalk/pkg/platform/tx"
)

// Store loads ownership records and persists the chain result.
type Store interface {
	FindByID(ctx context.Context, ownershipID id.OwnershipID) (*models.SealOwnershipRecord, error)
	PersistChainResult(ctx context.Context, ownershipID id.OwnershipID, result models.ChainResult) error
}

// ConfigResolver supplies immutable chain configuration snapshots.
type ConfigResolver interface {
	Snapshot(ctx context.Context) (resolver.Snapshot, error)
}

// ComplianceAuditor records chain results. Failures abort the chain.
type ComplianceAuditor interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// SecurityAuditor records rejected chains and failed verifications.
type SecurityAuditor interface {
	Emit(ctx context.Context, event audit.SecurityEvent)
}

// OpsTracker records routine activity on a best-effort basis.
type OpsTracker interface {
	Track(ctx context.Context, event audit.OpsEvent)
}

// ProviderLookup resolves a provider strategy by name.
type ProviderLookup interface {
	Get(name string) (providers.Provider, bool)
}

var tracer trace.Tracer = otel.Tracer("citywalk/certification")

// Service is the certification orchestrator.
type Service struct {
	store      Store
	config     ConfigResolver
	providers  ProviderLookup
	builder    *certificate.Builder
	tx         txcontext.Transactor
	compliance ComplianceAuditor
	security   SecurityAuditor
	ops        OpsTracker
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time

	inProcessTx bool
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTransactor makes persistence and the compliance audit one unit of work.
func WithTransactor(tx txcontext.Transactor) Option {
	return func(s *Service) {
		if tx != nil {
			s.tx = tx
		}
	}
}

func WithComplianceAuditor(a ComplianceAuditor) Option {
	return func(s *Service) {
		s.compliance = a
	}
}

func WithSecurityAuditor(a SecurityAuditor) Option {
	return func(s *Service) {
		s.security = a
	}
}

func WithOpsTracker(t OpsTracker) Option {
	return func(s *Service) {
		s.ops = t
	}
}

// WithBuilder overrides the certificate builder, e.g. to pin nonces in tests.
func WithBuilder(b *certificate.Builder) Option {
	return func(s *Service) {
		if b != nil {
			s.builder = b
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service. Without WithTransactor, records are serialized per
// ownership ID with an in-process lock that cannot roll a write back. In that
// mode the compliance audit is written first: a failed audit aborts the chain,
// but a write that fails after the audit leaves an audit record for a chain
// that did not persist.
func New(store Store, config ConfigResolver, registry ProviderLookup, opts ...Option) *Service {
	s := &Service{
		store:     store,
		config:    config,
		providers: registry,
		builder:   certificate.NewBuilder(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = newShardedTx()
		s.inProcessTx = true
	}
	return s
}

// load fetches a record and translates store sentinels into domain errors.
func (s *Service) load(ctx context.Context, ownershipID id.OwnershipID) (*models.SealOwnershipRecord, error) {
	record, err := s.store.FindByID(ctx, ownershipID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "seal ownership not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load seal ownership")
	}
	return record, nil
}

func (s *Service) snapshot(ctx context.Context) (resolver.Snapshot, error) {
	snap, err := s.config.Snapshot(ctx)
	if err != nil {
		return resolver.Snapshot{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load chain configuration")
	}
	return snap, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"citywalk/internal/certification/models"
	"citywalk/internal/certification/providers"
	"citywalk/internal/certification/resolver"
	id "citywalk/pkg/domain"
	dErrors "citywalk/pkg/domain-errors"
	audit "citywalk/pkg/platform/audit"
	"citywalk/pkg/platform/sentinel"
	"citywalk/pkg/requestcontext"
)

// maxPersistAttempts bounds the conditional write. A lost race is re-checked
// once before the conflict is surfaced.
const maxPersistAttempts = 2

// Chain notarizes an unchained ownership record with requestedProvider, or the
// configured active provider when requestedProvider is empty.
//
// Errors: NotFound, AlreadyChained, InvalidInput (unknown provider),
// ProviderUnavailable, ConcurrencyConflict. A failed chain leaves the record
// unchanged and chainable again.
func (s *Service) Chain(ctx context.Context, ownershipID id.OwnershipID, requestedProvider string) (*providers.NotarizationResult, error) {
	ctx, span := tracer.Start(ctx, "certification.Chain", trace.WithAttributes(
		attribute.String("ownership.id", ownershipID.String()),
		attribute.String("provider.requested", requestedProvider),
	))
	defer span.End()

	start := time.Now()
	result, providerName, err := s.chain(ctx, ownershipID, requestedProvider)
	span.SetAttributes(attribute.String("provider.name", providerName))
	if err != nil {
		s.metrics.ObserveChain(providerName, string(dErrors.CodeOf(err)), start)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}
	s.metrics.ObserveChain(providerName, "chained", start)
	return result, nil
}

func (s *Service) chain(ctx context.Context, ownershipID id.OwnershipID, requestedProvider string) (*providers.NotarizationResult, string, error) {
	record, err := s.load(ctx, ownershipID)
	if err != nil {
		return nil, "", err
	}
	if err := record.CanChain(); err != nil {
		s.emitRejected(ctx, record, "already chained")
		return nil, record.ProviderName, err
	}

	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, "", err
	}
	providerName := strings.ToLower(strings.TrimSpace(requestedProvider))
	if providerName == "" {
		providerName = resolver.ActiveProvider(snap)
	}
	provider, ok := s.providers.Get(providerName)
	if !ok {
		return nil, providerName, dErrors.Wrap(providers.ErrProviderNotFound, dErrors.CodeInvalidInput, fmt.Sprintf("unknown chain provider %q", providerName))
	}

	cert, err := s.builder.Build(record.Fact(), s.now())
	if err != nil {
		return nil, providerName, err
	}

	result, err := provider.Notarize(ctx, cert, resolver.Credentials(snap, providerName))
	if err != nil {
		s.trackOps(ctx, audit.EventSealChainFailed, record, providerName, string(dErrors.CodeOf(err)))
		s.logger.WarnContext(ctx, "notarization failed",
			"ownership_id", ownershipID,
			"provider", providerName,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		var de *dErrors.Error
		if errors.As(err, &de) {
			return nil, providerName, err
		}
		return nil, providerName, dErrors.Wrap(err, dErrors.CodeProviderUnavailable, "notarization failed")
	}

	canonical, err := cert.Canonical()
	if err != nil {
		return nil, providerName, dErrors.Wrap(err, dErrors.CodeInternal, "failed to serialize certificate")
	}
	chainResult := models.ChainResult{
		ProviderName: result.ProviderName,
		ReferenceID:  result.ReferenceID,
		Ordinal:      result.Ordinal,
		NotarizedAt:  result.NotarizedAt,
		Certificate:  canonical,
	}

	if err := s.persist(ctx, record, chainResult); err != nil {
		return nil, providerName, err
	}

	s.logger.InfoContext(ctx, "seal ownership chained",
		"ownership_id", ownershipID,
		"provider", result.ProviderName,
		"reference_id", result.ReferenceID,
		"ordinal", result.Ordinal,
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, providerName, nil
}

// persist runs the conditional write and the compliance audit in one unit of
// work. On a lost race the record is re-read: if another writer chained it the
// caller gets AlreadyChained, otherwise the write is retried once.
func (s *Service) persist(ctx context.Context, record *models.SealOwnershipRecord, result models.ChainResult) error {
	txCtx := withLockKey(ctx, record.ID.String())
	for attempt := 1; ; attempt++ {
		err := s.tx.RunInTx(txCtx, func(ctx context.Context) error {
			if s.inProcessTx {
				return s.auditThenPersist(ctx, record, result)
			}
			if err := s.store.PersistChainResult(ctx, record.ID, result); err != nil {
				return err
			}
			return s.emitChained(ctx, record, result)
		})
		if err == nil {
			return nil
		}

		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "seal ownership not found")
		case !errors.Is(err, sentinel.ErrConflict):
			var de *dErrors.Error
			if errors.As(err, &de) {
				return err
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist chain result")
		}

		s.metrics.IncChainConflict()
		current, loadErr := s.load(ctx, record.ID)
		if loadErr != nil {
			return loadErr
		}
		if current.Chained {
			s.emitRejected(ctx, current, "lost concurrent chain")
			return dErrors.New(dErrors.CodeAlreadyChained, "seal ownership is already certified")
		}
		if attempt >= maxPersistAttempts {
			return dErrors.Wrap(err, dErrors.CodeConcurrencyConflict, "chain result could not be persisted")
		}
	}
}

// auditThenPersist is the unit of work under the in-process lock, where a written
// record cannot be rolled back. The record is re-checked under the lock and the
// compliance audit is written before the record, so an audit failure leaves the
// record unchained.
func (s *Service) auditThenPersist(ctx context.Context, record *models.SealOwnershipRecord, result models.ChainResult) error {
	current, err := s.store.FindByID(ctx, record.ID)
	if err != nil {
		return err
	}
	if current.Chained {
		return sentinel.ErrConflict
	}
	if err := s.emitChained(ctx, record, result); err != nil {
		return err
	}
	return s.store.PersistChainResult(ctx, record.ID, result)
}

// AutoChain chains a freshly earned seal with the active provider when
// chain.autoChain is enabled. Records that are already chained are treated as
// done so replayed events are harmless. It reports whether a chain happened.
func (s *Service) AutoChain(ctx context.Context, ownershipID id.OwnershipID) (bool, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return false, err
	}
	if !snap.AutoChain() {
		s.metrics.IncAutoChainSkipped()
		return false, nil
	}

	_, err = s.Chain(ctx, ownershipID, "")
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeAlreadyChained) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

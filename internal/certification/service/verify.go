package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"citywalk/internal/certification/certificate"
	"citywalk/internal/certification/models"
	"citywalk/internal/certification/providers"
	"citywalk/internal/certification/resolver"
	id "citywalk/pkg/domain"
	dErrors "citywalk/pkg/domain-errors"
	audit "citywalk/pkg/platform/audit"
)

// Verify re-hashes the stored certificate of a chained record with the provider
// that minted it. The currently active provider plays no part.
func (s *Service) Verify(ctx context.Context, ownershipID id.OwnershipID) (*providers.VerificationResult, error) {
	ctx, span := tracer.Start(ctx, "certification.Verify", trace.WithAttributes(
		attribute.String("ownership.id", ownershipID.String()),
	))
	defer span.End()

	result, err := s.verify(ctx, ownershipID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}
	span.SetAttributes(
		attribute.String("provider.name", result.ProviderName),
		attribute.Bool("verify.valid", result.Valid),
	)
	return result, nil
}

func (s *Service) verify(ctx context.Context, ownershipID id.OwnershipID) (*providers.VerificationResult, error) {
	record, err := s.load(ctx, ownershipID)
	if err != nil {
		return nil, err
	}
	if !record.Chained {
		return nil, dErrors.New(dErrors.CodeNotChained, "seal ownership has not been certified")
	}

	provider, ok := s.providers.Get(record.ProviderName)
	if !ok {
		return nil, dErrors.Wrap(providers.ErrProviderNotFound, dErrors.CodeInternal, fmt.Sprintf("stored provider %q is not registered", record.ProviderName))
	}

	var cert *certificate.Certificate
	if len(record.Certificate) > 0 {
		cert, err = certificate.Parse(record.Certificate)
		if err != nil {
			s.emitTampered(ctx, record, "stored certificate is malformed")
			return nil, err
		}
	}

	result, err := provider.Verify(ctx, providers.VerifyRequest{
		ReferenceID: record.ReferenceID,
		Ordinal:     record.Ordinal,
		NotarizedAt: record.NotarizedAt,
		Certificate: cert,
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveVerify(record.ProviderName, result.Valid)
	if result.Valid {
		s.trackOps(ctx, audit.EventSealVerified, record, record.ProviderName, "valid")
	} else {
		s.emitTampered(ctx, record, "reference does not match certificate digest")
	}
	return result, nil
}

// Status returns the stored chain fields of one record.
func (s *Service) Status(ctx context.Context, ownershipID id.OwnershipID) (*models.ChainStatusView, error) {
	record, err := s.load(ctx, ownershipID)
	if err != nil {
		return nil, err
	}
	return &models.ChainStatusView{
		OwnershipID:  record.ID,
		Status:       record.Status(),
		ProviderName: record.ProviderName,
		ReferenceID:  record.ReferenceID,
		Ordinal:      record.Ordinal,
		NotarizedAt:  record.NotarizedAt,
	}, nil
}

// ProviderInfo reports the active provider and the configuration state of all
// providers. It is read-only diagnostics.
func (s *Service) ProviderInfo(ctx context.Context) (*models.ProviderInfo, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	active := resolver.ActiveProvider(snap)
	s.metrics.IncProviderInfo()
	s.trackOps(ctx, audit.EventProvidersViewed, nil, active, "")
	return &models.ProviderInfo{
		ActiveProvider:           active,
		ActiveProviderConfigured: resolver.IsConfigured(snap, active),
		Providers:                resolver.DescribeAll(snap),
	}, nil
}

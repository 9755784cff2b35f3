package service

import (
	"context"

	"citywalk/internal/certification/models"
	dErrors "citywalk/pkg/domain-errors"
	audit "citywalk/pkg/platform/audit"
	"citywalk/pkg/requestcontext"
)

// emitChained writes the compliance record of a chain inside the persistence
// unit of work. An error rolls the chain back.
func (s *Service) emitChained(ctx context.Context, record *models.SealOwnershipRecord, result models.ChainResult) error {
	if s.compliance == nil {
		return nil
	}
	err := s.compliance.Emit(ctx, audit.ComplianceEvent{
		Timestamp:    requestcontext.Now(ctx),
		UserID:       record.UserID,
		Subject:      record.ID.String(),
		Action:       string(audit.EventSealChained),
		ProviderName: result.ProviderName,
		ReferenceID:  result.ReferenceID,
		Decision:     "chained",
		RequestID:    requestcontext.RequestID(ctx),
		ActorID:      requestcontext.ActorID(ctx),
		ClientIP:     requestcontext.ClientIP(ctx),
		Device:       requestcontext.Device(ctx),
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record chain audit")
	}
	return nil
}

func (s *Service) emitRejected(ctx context.Context, record *models.SealOwnershipRecord, reason string) {
	if s.security == nil {
		return
	}
	s.security.Emit(ctx, audit.SecurityEvent{
		Timestamp:    requestcontext.Now(ctx),
		Subject:      record.ID.String(),
		Action:       string(audit.EventSealChainRejected),
		ProviderName: record.ProviderName,
		ReferenceID:  record.ReferenceID,
		Reason:       reason,
		IP:           requestcontext.ClientIP(ctx),
		RequestID:    requestcontext.RequestID(ctx),
		ActorID:      requestcontext.ActorID(ctx),
		Severity:     audit.SeverityInfo,
	})
}

func (s *Service) emitTampered(ctx context.Context, record *models.SealOwnershipRecord, reason string) {
	s.logger.WarnContext(ctx, "seal certificate failed verification",
		"ownership_id", record.ID,
		"provider", record.ProviderName,
		"reference_id", record.ReferenceID,
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.security == nil {
		return
	}
	s.security.Emit(ctx, audit.SecurityEvent{
		Timestamp:    requestcontext.Now(ctx),
		Subject:      record.ID.String(),
		Action:       string(audit.EventSealTampered),
		ProviderName: record.ProviderName,
		ReferenceID:  record.ReferenceID,
		Reason:       reason,
		IP:           requestcontext.ClientIP(ctx),
		RequestID:    requestcontext.RequestID(ctx),
		ActorID:      requestcontext.ActorID(ctx),
		Severity:     audit.SeverityCritical,
	})
}

// trackOps records routine activity. record may be nil for events without a subject.
func (s *Service) trackOps(ctx context.Context, action audit.AuditEvent, record *models.SealOwnershipRecord, providerName, decision string) {
	if s.ops == nil {
		return
	}
	event := audit.OpsEvent{
		Timestamp:    requestcontext.Now(ctx),
		Action:       string(action),
		ProviderName: providerName,
		Decision:     decision,
		RequestID:    requestcontext.RequestID(ctx),
	}
	if record != nil {
		event.Subject = record.ID.String()
	}
	s.ops.Track(ctx, event)
}

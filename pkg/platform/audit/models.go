package audit

import (
	"context"
	"time"

	id "citywalk/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// Categories drive retention and routing of the outbox stream.
type EventCategory string

const (
	// CategoryCompliance covers events with evidentiary significance. Chaining a seal
	// is recorded here and must never be lost.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to tamper detection and forensics.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity that can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string
	Category  EventCategory
	Timestamp time.Time

	// UserID is the seal owner affected by the action.
	UserID id.UserID

	// Subject is the seal-ownership record the action applies to.
	Subject      string
	Action       string
	ProviderName string
	ReferenceID  string
	Decision     string
	Reason       string
	RequestID    string

	// ActorID is the administrator who triggered the action, empty for automatic chaining.
	ActorID  string
	ClientIP string
	Device   string
}

type AuditEvent string

const (
	EventSealChained       AuditEvent = "seal_chained"
	EventSealChainFailed   AuditEvent = "seal_chain_failed"
	EventSealChainRejected AuditEvent = "seal_chain_rejected"
	EventSealVerified      AuditEvent = "seal_verified"
	EventSealTampered      AuditEvent = "seal_verification_failed"
	EventProvidersViewed   AuditEvent = "chain_providers_viewed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventSealChained: CategoryCompliance,

	EventSealTampered:      CategorySecurity,
	EventSealChainRejected: CategorySecurity,

	EventSealChainFailed: CategoryOperations,
	EventSealVerified:    CategoryOperations,
	EventProvidersViewed: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events. The Postgres implementation writes to the outbox
// and joins any transaction carried by ctx.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}

// ComplianceEvent captures actions requiring guaranteed persistence.
// Use with the compliance publisher for fail-closed semantics.
type ComplianceEvent struct {
	Timestamp    time.Time
	UserID       id.UserID
	Subject      string
	Action       string
	ProviderName string
	ReferenceID  string
	Decision     string
	RequestID    string
	ActorID      string
	ClientIP     string
	Device       string
}

func (e ComplianceEvent) Category() EventCategory { return CategoryCompliance }

// ToEvent converts to the stored Event shape.
func (e ComplianceEvent) ToEvent() Event {
	return Event{
		Category:     CategoryCompliance,
		Timestamp:    e.Timestamp,
		UserID:       e.UserID,
		Subject:      e.Subject,
		Action:       e.Action,
		ProviderName: e.ProviderName,
		ReferenceID:  e.ReferenceID,
		Decision:     e.Decision,
		RequestID:    e.RequestID,
		ActorID:      e.ActorID,
		ClientIP:     e.ClientIP,
		Device:       e.Device,
	}
}

// SecurityEvent captures tamper-relevant actions. Events are buffered and
// persisted asynchronously.
type SecurityEvent struct {
	Timestamp    time.Time
	Subject      string
	Action       string
	ProviderName string
	ReferenceID  string
	Reason       string
	IP           string
	RequestID    string
	ActorID      string
	Severity     Severity
}

// Severity levels for security events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (e SecurityEvent) Category() EventCategory { return CategorySecurity }

func (e SecurityEvent) ToEvent() Event {
	return Event{
		Category:     CategorySecurity,
		Timestamp:    e.Timestamp,
		Subject:      e.Subject,
		Action:       e.Action,
		ProviderName: e.ProviderName,
		ReferenceID:  e.ReferenceID,
		Reason:       e.Reason,
		Decision:     string(e.Severity),
		RequestID:    e.RequestID,
		ActorID:      e.ActorID,
		ClientIP:     e.IP,
	}
}

// OpsEvent captures operational events with minimal overhead.
// Events are fire-and-forget with optional sampling.
type OpsEvent struct {
	Timestamp    time.Time
	Subject      string
	Action       string
	ProviderName string
	Decision     string
	RequestID    string
}

func (e OpsEvent) Category() EventCategory { return CategoryOperations }

func (e OpsEvent) ToEvent() Event {
	return Event{
		Category:     CategoryOperations,
		Timestamp:    e.Timestamp,
		Subject:      e.Subject,
		Action:       e.Action,
		ProviderName: e.ProviderName,
		Decision:     e.Decision,
		RequestID:    e.RequestID,
	}
}

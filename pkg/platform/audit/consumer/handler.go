package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"citywalk/internal/platform/kafka/consumer"
	audit "citywalk/pkg/platform/audit"
	auditpg "citywalk/pkg/platform/audit/store/postgres"
)

// EventStore materializes relayed audit events for querying.
type EventStore interface {
	AppendWithID(ctx context.Context, eventID uuid.UUID, event audit.Event) error
}

// AuditHandler materializes events from the audit topic into audit_events.
// Strictness follows the event category: compliance and security events are
// retried on store failure, operations events are best-effort.
type AuditHandler struct {
	store  EventStore
	logger *slog.Logger
}

func NewAuditHandler(store EventStore, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		store:  store,
		logger: logger,
	}
}

// Handle processes one relayed audit event.
func (h *AuditHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	eventID, err := uuid.Parse(string(msg.Key))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to parse audit event ID",
			"key", string(msg.Key),
			"error", err,
		)
		// Malformed messages are committed so they do not block the partition.
		return nil
	}

	var payload auditpg.Payload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		h.logger.ErrorContext(ctx, "failed to unmarshal audit payload",
			"event_id", eventID,
			"error", err,
		)
		return nil
	}

	event, err := payload.ToEvent()
	if err != nil {
		h.logger.ErrorContext(ctx, "invalid audit payload",
			"event_id", eventID,
			"error", err,
		)
		return nil
	}
	event.ID = eventID.String()

	if event.Category == audit.CategoryCompliance && event.Subject == "" {
		h.logger.ErrorContext(ctx, "CRITICAL: compliance event missing subject",
			"event_id", eventID,
			"action", event.Action,
		)
		return nil
	}

	if err := h.store.AppendWithID(ctx, eventID, event); err != nil {
		if event.Category == audit.CategoryOperations {
			h.logger.DebugContext(ctx, "failed to store ops event",
				"event_id", eventID,
				"action", event.Action,
				"error", err,
			)
			return nil
		}
		h.logger.ErrorContext(ctx, "failed to store audit event",
			"event_id", eventID,
			"category", event.Category,
			"action", event.Action,
			"error", err,
		)
		return fmt.Errorf("store audit event: %w", err)
	}

	h.logger.DebugContext(ctx, "stored audit event",
		"event_id", eventID,
		"action", event.Action,
		"subject", event.Subject,
	)
	return nil
}

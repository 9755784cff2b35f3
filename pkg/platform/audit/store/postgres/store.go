package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "citywalk/pkg/domain"
	audit "citywalk/pkg/platform/audit"
	txcontext "citywalk/pkg/platform/tx"
)

var errNoTx = errors.New("outbox fetch requires a transaction")

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table and published to Kafka by the outbox relay.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Payload is the JSON structure published to Kafka and materialized by the consumer.
type Payload struct {
	ID           string `json:"id"`
	Category     string `json:"category"`
	Timestamp    string `json:"timestamp"`
	UserID       string `json:"userId,omitempty"`
	Subject      string `json:"subject"`
	Action       string `json:"action"`
	ProviderName string `json:"providerName,omitempty"`
	ReferenceID  string `json:"referenceId,omitempty"`
	Decision     string `json:"decision,omitempty"`
	Reason       string `json:"reason,omitempty"`
	RequestID    string `json:"requestId,omitempty"`
	ActorID      string `json:"actorId,omitempty"`
	ClientIP     string `json:"clientIp,omitempty"`
	Device       string `json:"device,omitempty"`
}

// ToPayload converts an event into its wire form.
func ToPayload(eventID string, event audit.Event) Payload {
	return Payload{
		ID:           eventID,
		Category:     string(audit.AuditEvent(event.Action).Category()),
		Timestamp:    event.Timestamp.UTC().Format(time.RFC3339Nano),
		UserID:       event.UserID.String(),
		Subject:      event.Subject,
		Action:       event.Action,
		ProviderName: event.ProviderName,
		ReferenceID:  event.ReferenceID,
		Decision:     event.Decision,
		Reason:       event.Reason,
		RequestID:    event.RequestID,
		ActorID:      event.ActorID,
		ClientIP:     event.ClientIP,
		Device:       event.Device,
	}
}

// ToEvent converts a wire payload back into an event.
func (p Payload) ToEvent() (audit.Event, error) {
	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return audit.Event{}, fmt.Errorf("parse audit timestamp: %w", err)
	}
	return audit.Event{
		ID:           p.ID,
		Category:     audit.EventCategory(p.Category),
		Timestamp:    ts,
		UserID:       id.UserID(p.UserID),
		Subject:      p.Subject,
		Action:       p.Action,
		ProviderName: p.ProviderName,
		ReferenceID:  p.ReferenceID,
		Decision:     p.Decision,
		Reason:       p.Reason,
		RequestID:    p.RequestID,
		ActorID:      p.ActorID,
		ClientIP:     p.ClientIP,
		Device:       p.Device,
	}, nil
}

// Append writes an audit event to the outbox table for Kafka publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	payloadBytes, err := json.Marshal(ToPayload(eventID.String(), event))
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	// Keyed by ownership record so all events of one record stay ordered on a partition.
	aggregateType := "seal_ownership"
	aggregateID := event.Subject
	if aggregateID == "" {
		aggregateType = "audit"
		aggregateID = eventID.String()
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		eventID,
		aggregateType,
		aggregateID,
		event.Action,
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// AppendWithID inserts an audit event into the audit_events table with a specific ID.
// Used by the Kafka consumer to materialize events for querying.
// This is idempotent - duplicate inserts are ignored via ON CONFLICT DO NOTHING.
func (s *Store) AppendWithID(ctx context.Context, eventID uuid.UUID, event audit.Event) error {
	query := `
		INSERT INTO audit_events (
			id, category, timestamp, user_id, subject, action,
			provider_name, reference_id, decision, reason,
			request_id, actor_id, client_ip, device
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		eventID,
		string(event.Category),
		event.Timestamp,
		event.UserID.String(),
		event.Subject,
		event.Action,
		event.ProviderName,
		event.ReferenceID,
		event.Decision,
		event.Reason,
		event.RequestID,
		event.ActorID,
		event.ClientIP,
		event.Device,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListBySubject returns materialized events for one ownership record, newest first.
func (s *Store) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	query := `
		SELECT id, category, timestamp, user_id, subject, action,
			   provider_name, reference_id, decision, reason,
			   request_id, actor_id, client_ip, device
		FROM audit_events
		WHERE subject = $1
		ORDER BY timestamp DESC
	`

	rows, err := s.db.QueryContext(ctx, query, subject)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			event    audit.Event
			category string
			userID   string
		)
		err := rows.Scan(
			&event.ID,
			&category,
			&event.Timestamp,
			&userID,
			&event.Subject,
			&event.Action,
			&event.ProviderName,
			&event.ReferenceID,
			&event.Decision,
			&event.Reason,
			&event.RequestID,
			&event.ActorID,
			&event.ClientIP,
			&event.Device,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		event.UserID = id.UserID(userID)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

// OutboxEntry is an unpublished outbox row.
type OutboxEntry struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
}

// FetchUnpublished locks up to limit unpublished entries. It must run inside a
// transaction carried by ctx; SKIP LOCKED lets several relays run side by side.
func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]OutboxEntry, error) {
	tx, ok := txcontext.From(ctx)
	if !ok {
		return nil, errNoTx
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

// MarkPublished stamps entries as delivered.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	idStrings := make([]string, len(ids))
	for i, entryID := range ids {
		idStrings[i] = entryID.String()
	}
	_, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE outbox SET published_at = $2 WHERE id = ANY($1::uuid[])`, pq.StringArray(idStrings), at,
	)
	if err != nil {
		return fmt.Errorf("mark outbox entries published: %w", err)
	}
	return nil
}

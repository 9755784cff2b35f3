// Package worker relays audit events from the transactional outbox to Kafka.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"citywalk/internal/platform/kafka/producer"
	auditpg "citywalk/pkg/platform/audit/store/postgres"
	txcontext "citywalk/pkg/platform/tx"
)

// Outbox is the slice of the audit store the relay drains.
type Outbox interface {
	FetchUnpublished(ctx context.Context, limit int) ([]auditpg.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Publisher delivers records to the broker.
type Publisher interface {
	Publish(ctx context.Context, msgs ...producer.Message) error
}

// Relay polls the outbox and publishes entries in creation order. An entry is
// marked published only after the broker acknowledged it, so delivery is
// at-least-once; the consumer side deduplicates by event ID.
type Relay struct {
	outbox    Outbox
	tx        txcontext.Transactor
	publisher Publisher
	topic     string
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Relay)

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRelay(outbox Outbox, tx txcontext.Transactor, publisher Publisher, topic string, opts ...Option) *Relay {
	r := &Relay{
		outbox:    outbox,
		tx:        tx,
		publisher: publisher,
		topic:     topic,
		interval:  time.Second,
		batchSize: 100,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is cancelled. Full batches are followed immediately by
// another pass; otherwise the relay waits for the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		n, err := r.RelayOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.ErrorContext(ctx, "audit outbox relay failed", "error", err)
		}
		if err == nil && n == r.batchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes one batch and returns how many entries were delivered.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	var published int
	err := r.tx.RunInTx(ctx, func(ctx context.Context) error {
		entries, err := r.outbox.FetchUnpublished(ctx, r.batchSize)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		msgs := make([]producer.Message, 0, len(entries))
		ids := make([]uuid.UUID, 0, len(entries))
		for _, e := range entries {
			msgs = append(msgs, producer.Message{
				Topic: r.topic,
				Key:   []byte(e.ID.String()),
				Value: e.Payload,
				Headers: map[string]string{
					"event_type":   e.EventType,
					"aggregate_id": e.AggregateID,
				},
			})
			ids = append(ids, e.ID)
		}
		if err := r.publisher.Publish(ctx, msgs...); err != nil {
			return err
		}
		if err := r.outbox.MarkPublished(ctx, ids, r.now()); err != nil {
			return err
		}
		published = len(entries)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if published > 0 {
		r.logger.DebugContext(ctx, "relayed audit events", "count", published, "topic", r.topic)
	}
	return published, nil
}

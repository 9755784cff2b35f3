// Package security buffers tamper-relevant audit events and persists them in batches.
//
// Emit never blocks the request path. When the buffer is full the oldest events are
// dropped and counted.
package security

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	audit "citywalk/pkg/platform/audit"
)

const (
	defaultCapacity      = 10000
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
)

type Publisher struct {
	store         audit.Store
	queue         *queue
	batchSize     int
	flushInterval time.Duration
	metrics       *Metrics
	logger        *slog.Logger
	dropped       atomic.Int64
}

type Option func(*Publisher)

func WithCapacity(n int) Option {
	return func(p *Publisher) {
		p.queue = newQueue(n)
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:         store,
		queue:         newQueue(defaultCapacity),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit queues an event for the next flush.
func (p *Publisher) Emit(_ context.Context, event audit.SecurityEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if evicted, ok := p.queue.push(event); ok {
		p.drop(evicted, dropOverflow)
	}
	p.metrics.setPending(p.queue.len())
}

func (p *Publisher) drop(event audit.SecurityEvent, reason string) {
	p.dropped.Add(1)
	p.metrics.incDropped(event.Action, reason, 1)
	p.logger.Warn("security audit event dropped",
		"reason", reason,
		"action", event.Action,
		"subject", event.Subject,
		"reference_id", event.ReferenceID,
	)
}

// Run flushes the buffer on every tick until ctx is cancelled, then drains it.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// drain with a fresh context so shutdown does not lose buffered events
			p.Flush(context.WithoutCancel(ctx))
			return nil
		case <-ticker.C:
			p.Flush(ctx)
		}
	}
}

// Flush persists buffered events oldest first. On a store failure the unsent
// events go back to the front of the queue for the next flush.
func (p *Publisher) Flush(ctx context.Context) {
	defer func() { p.metrics.setPending(p.queue.len()) }()
	for {
		batch := p.queue.pop(p.batchSize)
		if len(batch) == 0 {
			return
		}
		for i, event := range batch {
			if err := p.store.Append(ctx, event.ToEvent()); err != nil {
				p.metrics.incPersistFailures()
				p.logger.ErrorContext(ctx, "failed to persist security audit events",
					"pending", len(batch)-i,
					"error", err,
				)
				unsent := batch[i:]
				lost := p.queue.pushFront(unsent)
				for _, e := range unsent[:lost] {
					p.drop(e, dropRequeue)
				}
				return
			}
			p.metrics.incPersisted()
		}
	}
}

// Pending returns the number of buffered events.
func (p *Publisher) Pending() int {
	return p.queue.len()
}

// Dropped returns how many events were dropped on overflow.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

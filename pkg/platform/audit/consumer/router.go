package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"citywalk/internal/platform/kafka/consumer"
)

// TopicHandler handles messages from a specific topic.
type TopicHandler interface {
	Handle(ctx context.Context, msg *consumer.Message) error
}

// Router lets one consumer group serve seal.earned and the audit topic. The
// registered topics are also the group's subscription list.
type Router struct {
	handlers map[string]TopicHandler
	logger   *slog.Logger
}

func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		handlers: make(map[string]TopicHandler),
		logger:   logger,
	}
}

// Register binds handler to topic. Each topic has exactly one handler.
func (r *Router) Register(topic string, handler TopicHandler) error {
	if topic == "" {
		return fmt.Errorf("register handler: empty topic")
	}
	if _, exists := r.handlers[topic]; exists {
		return fmt.Errorf("register handler: topic %s already has a handler", topic)
	}
	r.handlers[topic] = handler
	return nil
}

// Topics returns the registered topics in sorted order.
func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.handlers))
	for topic := range r.handlers {
		topics = append(topics, topic)
	}
	slices.Sort(topics)
	return topics
}

// Handle routes msg to its topic handler. Messages on unregistered topics are
// committed so they are not redelivered.
func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	handler, ok := r.handlers[msg.Topic]
	if !ok {
		r.logger.WarnContext(ctx, "no handler for topic, skipping message",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
		)
		return nil
	}
	return handler.Handle(ctx, msg)
}

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus is a synchronous in-process implementation of
// shared.EventBus. Suitable for single-instance deployments and tests.
// Subscriber errors are logged, never propagated to the publisher.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	logger      *slog.Logger
}

// NewInMemoryEventBus creates an empty bus.
func NewInMemoryEventBus(logger *slog.Logger) *InMemoryEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryEventBus{
		handlers: make(map[shared.EventType][]shared.EventHandler),
		logger:   logger,
	}
}

// Subscribe registers a handler for one event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// SubscribeAll registers a handler for every event.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Publish delivers the event to all matching subscribers.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	b.mu.RLock()
	handlers := append([]shared.EventHandler{}, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(event); err != nil {
			b.logger.Error("event subscriber failed",
				slog.String("event_type", string(event.EventType())),
				slog.String("aggregate_id", event.AggregateID()),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// RedisEventBus publishes events to Redis Pub/Sub in addition to local
// subscribers, so the real-time notifier and other instances can
// observe what the engine decided.
type RedisEventBus struct {
	local   *InMemoryEventBus
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// DefaultEventChannel is the Pub/Sub channel events are published on.
const DefaultEventChannel = "progress:events"

// NewRedisEventBus wraps an in-memory bus with Redis publication.
func NewRedisEventBus(client *redis.Client, channel string, logger *slog.Logger) *RedisEventBus {
	if channel == "" {
		channel = DefaultEventChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisEventBus{
		local:   NewInMemoryEventBus(logger),
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

// Subscribe registers a local handler for one event type.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.local.Subscribe(eventType, handler)
}

// SubscribeAll registers a local handler for every event.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.local.SubscribeAll(handler)
}

// Publish delivers locally and then to Redis. A Redis failure is
// logged, not returned; remote observers are best-effort.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if err := b.local.Publish(event); err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]interface{}{
		"type":         event.EventType(),
		"occurred_at":  event.OccurredAt(),
		"aggregate_id": event.AggregateID(),
		"payload":      event.Payload(),
	})
	if err != nil {
		return fmt.Errorf("eventbus: marshal event: %w", err)
	}

	if err := b.client.Publish(context.Background(), b.channel, payload).Err(); err != nil {
		b.logger.Error("redis publish failed",
			slog.String("event_type", string(event.EventType())),
			slog.String("error", err.Error()))
	}
	return nil
}

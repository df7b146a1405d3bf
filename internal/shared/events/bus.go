package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	gookitEvent "github.com/gookit/event"

	"github.com/chiquitav2/wg-dark/internal/shared/logger"
)

// Bus is a synchronous in-process event bus backed by gookit/event.
// A nil *Bus is valid and drops every event.
type Bus struct {
	manager *gookitEvent.Manager
	logger  *logger.Logger
	mu      sync.RWMutex
	closed  bool
}

// NewBus creates a new event bus
func NewBus(log *logger.Logger) *Bus {
	if log == nil {
		log = logger.NewDiscard()
	}
	return &Bus{
		manager: gookitEvent.NewManager("wg-dark"),
		logger:  log,
	}
}

// Publish delivers the event to every subscriber of its type.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	if b == nil {
		return nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("event bus is closed")
	}

	b.logger.DebugContext(ctx, "publishing event",
		slog.String("type", event.Type()),
		slog.String("id", event.ID()))

	if err, _ := b.manager.Fire(event.Type(), gookitEvent.M{"payload": event, "ctx": ctx}); err != nil {
		b.logger.ErrorCtx(ctx, "event handler failed", err, slog.String("type", event.Type()))
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe registers a handler for events of a specific type
func (b *Bus) Subscribe(eventType string, handler Handler) error {
	if b == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("event bus is closed")
	}

	b.manager.On(eventType, gookitEvent.ListenerFunc(func(e gookitEvent.Event) error {
		payload, ok := e.Get("payload").(Event)
		if !ok {
			return fmt.Errorf("invalid event payload: %T", e.Get("payload"))
		}
		ctx, ok := e.Get("ctx").(context.Context)
		if !ok {
			ctx = context.Background()
		}
		return handler(ctx, payload)
	}), gookitEvent.Normal)

	b.logger.Debug("subscribed to event type", slog.String("type", eventType))
	return nil
}

// Close drops all subscribers; later publishes fail.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.manager.Clear()
	b.closed = true
	return nil
}

// internal/events/bus.go
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrBusClosed is returned by Publish after Shutdown.
	ErrBusClosed = errors.New("event bus is shutting down")
	// ErrBusFull is returned when the async queue has no room.
	ErrBusFull = errors.New("event channel full")
)

// Bus fans completed-operation events out to subscribers. Publish queues and
// returns immediately; PublishSync runs every handler before returning.
type Bus struct {
	mu         sync.RWMutex
	handlers   map[EventType]map[string]Handler
	logger     *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	eventChan  chan Event
	bufferSize int

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// NewBus creates a new event bus.
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	bus := &Bus{
		handlers:   make(map[EventType]map[string]Handler),
		logger:     logger.Named("event_bus"),
		ctx:        ctx,
		cancel:     cancel,
		eventChan:  make(chan Event, bufferSize),
		bufferSize: bufferSize,
	}

	bus.wg.Add(1)
	go bus.processEvents()

	return bus
}

// Subscribe registers a handler for a specific event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]Handler)
	}
	b.handlers[eventType][id] = handler

	b.logger.Debug("Handler subscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", id))

	return &subscription{
		id:       id,
		eventBus: b,
		types:    []EventType{eventType},
	}
}

// SubscribeMany registers one handler for several event types under a single
// subscription.
func (b *Bus) SubscribeMany(handler Handler, eventTypes ...EventType) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	for _, et := range eventTypes {
		if b.handlers[et] == nil {
			b.handlers[et] = make(map[string]Handler)
		}
		b.handlers[et][id] = handler
	}

	return &subscription{
		id:       id,
		eventBus: b,
		types:    eventTypes,
	}
}

// SubscribeFunc is a convenience method for subscribing with a function.
func (b *Bus) SubscribeFunc(eventType EventType, fn func(context.Context, Event) error) Subscription {
	return b.Subscribe(eventType, HandlerFunc(fn))
}

// Publish queues an event for asynchronous delivery.
func (b *Bus) Publish(event Event) error {
	select {
	case <-b.ctx.Done():
		return ErrBusClosed
	default:
	}

	select {
	case b.eventChan <- event:
		b.published.Add(1)
		return nil
	default:
		b.dropped.Add(1)
		b.logger.Warn("Event channel full, dropping event",
			zap.String("event_type", string(event.Type())))
		return ErrBusFull
	}
}

// PublishSync delivers an event to every handler before returning.
func (b *Bus) PublishSync(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := b.handlers[event.Type()]
	handlersCopy := make(map[string]Handler, len(handlers))
	for id, h := range handlers {
		handlersCopy[id] = h
	}
	b.mu.RUnlock()

	if len(handlersCopy) == 0 {
		return nil
	}

	var errs []error
	for id, handler := range handlersCopy {
		if err := handler.Handle(ctx, event); err != nil {
			b.failed.Add(1)
			b.logger.Error("Handler error",
				zap.String("event_type", string(event.Type())),
				zap.String("handler_id", id),
				zap.Error(err))
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("handlers failed for %s: %w", event.Type(), errors.Join(errs...))
	}
	return nil
}

// processEvents delivers queued events in order. Handlers run under a context
// Shutdown does not cancel, so events queued before Shutdown are delivered
// intact whichever select branch wins.
func (b *Bus) processEvents() {
	defer b.wg.Done()

	deliverCtx := context.WithoutCancel(b.ctx)
	deliver := func(event Event) {
		if err := b.PublishSync(deliverCtx, event); err != nil {
			b.logger.Error("Failed to process event",
				zap.String("event_type", string(event.Type())),
				zap.Error(err))
		}
	}

	for {
		select {
		case <-b.ctx.Done():
			for {
				select {
				case event := <-b.eventChan:
					deliver(event)
				default:
					return
				}
			}
		case event := <-b.eventChan:
			deliver(event)
		}
	}
}

// unsubscribe removes a handler subscription.
func (b *Bus) unsubscribe(id string, eventTypes []EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, et := range eventTypes {
		if handlers, ok := b.handlers[et]; ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(b.handlers, et)
			}
		}
	}

	b.logger.Debug("Handler unsubscribed", zap.String("subscription_id", id))
}

// Shutdown stops accepting events and drains the queue.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.logger.Info("Shutting down event bus")
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("Event bus shutdown complete")
		return nil
	case <-ctx.Done():
		b.logger.Warn("Event bus shutdown timeout")
		return ctx.Err()
	}
}

// Stats returns statistics about the event bus.
func (b *Bus) Stats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := make(map[string]interface{})
	stats["buffer_size"] = b.bufferSize
	stats["pending_events"] = len(b.eventChan)
	stats["event_types"] = len(b.handlers)
	stats["published"] = b.published.Load()
	stats["dropped"] = b.dropped.Load()
	stats["handler_failures"] = b.failed.Load()

	handlerCounts := make(map[string]int)
	for eventType, handlers := range b.handlers {
		handlerCounts[string(eventType)] = len(handlers)
	}
	stats["handlers_per_type"] = handlerCounts

	return stats
}

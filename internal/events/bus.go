package events

import (
	"context"
	"log"
	"sync"
)

// Bus dispatches events synchronously to its subscribers, in subscription order.
// Handler errors are logged and never returned to the publisher.
type Bus struct {
	mu       sync.RWMutex
	handlers []namedHandler
}

type namedHandler struct {
	name string
	fn   Handler
}

// NewBus creates a bus without subscribers.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn under name, which is only used in log lines.
func (b *Bus) Subscribe(name string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, namedHandler{name: name, fn: fn})
}

// Publish delivers event to every subscriber before returning.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := append([]namedHandler(nil), b.handlers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h.fn(ctx, event); err != nil {
			log.Printf("Event handler %s failed for %s: %v", h.name, event.EventType(), err)
		}
	}
	return nil
}

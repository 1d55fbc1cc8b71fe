// Package broadcast carries cache invalidations between processes that share
// one remote expense API, so a mutation in one process refreshes the views of
// the others.
package broadcast

import (
	"context"
	"sync"

	"github.com/illmade-knight/go-expensesync/pkg/types"
)

// Handler processes an inbound invalidation event.
type Handler func(ctx context.Context, event types.InvalidationEvent)

// Bus publishes and receives invalidation events.
type Bus interface {
	Publish(ctx context.Context, event types.InvalidationEvent) error
	// Start begins delivering inbound events to h until Stop is called.
	Start(ctx context.Context, h Handler) error
	Stop(ctx context.Context) error
}

// LocalHub fans events out between LocalBus instances in one process.
type LocalHub struct {
	mu    sync.RWMutex
	buses map[*LocalBus]struct{}
}

// NewLocalHub creates an empty hub.
func NewLocalHub() *LocalHub {
	return &LocalHub{buses: make(map[*LocalBus]struct{})}
}

// Connect returns a new bus attached to the hub.
func (h *LocalHub) Connect() *LocalBus {
	b := &LocalBus{hub: h}
	h.mu.Lock()
	h.buses[b] = struct{}{}
	h.mu.Unlock()
	return b
}

// LocalBus is an in-process Bus. Publish delivers synchronously to every
// started bus on the hub, including the publisher.
type LocalBus struct {
	hub *LocalHub

	mu      sync.RWMutex
	handler Handler
}

// Publish hands event to every started bus on the hub. A stopped bus is
// skipped.
func (b *LocalBus) Publish(ctx context.Context, event types.InvalidationEvent) error {
	b.hub.mu.RLock()
	targets := make([]*LocalBus, 0, len(b.hub.buses))
	for bus := range b.hub.buses {
		targets = append(targets, bus)
	}
	b.hub.mu.RUnlock()

	for _, bus := range targets {
		bus.mu.RLock()
		h := bus.handler
		bus.mu.RUnlock()
		if h != nil {
			h(ctx, event)
		}
	}
	return nil
}

// Start registers h to receive events, replacing any earlier handler.
func (b *LocalBus) Start(_ context.Context, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
	return nil
}

// Stop detaches the handler and removes the bus from its hub.
func (b *LocalBus) Stop(_ context.Context) error {
	b.mu.Lock()
	b.handler = nil
	b.mu.Unlock()

	b.hub.mu.Lock()
	delete(b.hub.buses, b)
	b.hub.mu.Unlock()
	return nil
}

package broadcast

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-expensesync/pkg/cache"
	"github.com/illmade-knight/go-expensesync/pkg/endpoints"
	"github.com/illmade-knight/go-expensesync/pkg/types"
	"github.com/rs/zerolog"
)

// Invalidator applies inbound tag invalidations, usually a *cache.Coordinator.
type Invalidator interface {
	InvalidateTags(tags ...endpoints.Tag) []cache.Key
}

// Relay connects a coordinator to a Bus. Install OnInvalidate as the
// coordinator's cache.Config.OnInvalidate hook, then call Start with the
// coordinator.
type Relay struct {
	bus    Bus
	origin string
	logger zerolog.Logger
}

// NewRelay creates a relay with a fresh origin id.
func NewRelay(bus Bus, logger zerolog.Logger) *Relay {
	origin := uuid.NewString()
	return &Relay{
		bus:    bus,
		origin: origin,
		logger: logger.With().Str("component", "InvalidationRelay").Str("origin", origin).Logger(),
	}
}

// Origin is the id stamped on events published by this relay.
func (r *Relay) Origin() string {
	return r.origin
}

// OnInvalidate publishes tags invalidated by a local mutation. A publish
// failure is logged; the local cache is already up to date.
func (r *Relay) OnInvalidate(ctx context.Context, tags []endpoints.Tag) {
	if len(tags) == 0 {
		return
	}
	event := types.InvalidationEvent{
		Origin: r.origin,
		Tags:   make([]string, len(tags)),
		SentAt: time.Now().UTC(),
	}
	for i, tag := range tags {
		event.Tags[i] = string(tag)
	}
	if err := r.bus.Publish(ctx, event); err != nil {
		r.logger.Error().Err(err).Strs("tags", event.Tags).Msg("Failed to publish invalidation.")
		return
	}
	r.logger.Debug().Strs("tags", event.Tags).Msg("Published invalidation.")
}

// Start applies events from other origins to inv. Events published by this
// relay are ignored.
func (r *Relay) Start(ctx context.Context, inv Invalidator) error {
	return r.bus.Start(ctx, func(_ context.Context, event types.InvalidationEvent) {
		if event.Origin == r.origin {
			return
		}
		tags := make([]endpoints.Tag, len(event.Tags))
		for i, tag := range event.Tags {
			tags[i] = endpoints.Tag(tag)
		}
		keys := inv.InvalidateTags(tags...)
		r.logger.Debug().
			Str("from", event.Origin).
			Strs("tags", event.Tags).
			Int("invalidated", len(keys)).
			Msg("Applied remote invalidation.")
	})
}

// Stop stops the underlying bus.
func (r *Relay) Stop(ctx context.Context) error {
	return r.bus.Stop(ctx)
}

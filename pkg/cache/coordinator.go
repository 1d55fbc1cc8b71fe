package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/illmade-knight/go-expensesync/pkg/endpoints"
	"github.com/rs/zerolog"
)

// DefaultKeepUnusedFor is how long an entry without subscribers is retained.
const DefaultKeepUnusedFor = 60 * time.Second

// Config holds configuration for the Coordinator.
type Config struct {
	// KeepUnusedFor is the idle timeout after the last unsubscribe. Zero means
	// DefaultKeepUnusedFor.
	KeepUnusedFor time.Duration
	// OnInvalidate, if set, runs after each successful mutation's invalidation
	// step. It is not called for InvalidateTags.
	OnInvalidate InvalidationHook
}

// NewConfigDefaults provides a config with sensible defaults.
func NewConfigDefaults() *Config {
	return &Config{KeepUnusedFor: DefaultKeepUnusedFor}
}

// Coordinator owns the query cache. Consumers read through Subscribe and
// Query and write through Mutate; they never modify entries directly.
//
// Identical reads share one entry and one in-flight request. A successful
// mutation marks every entry carrying one of its invalidated tags stale and
// issues one refetch per entry that still has subscribers.
type Coordinator struct {
	resolver      Resolver
	transport     Transport
	logger        zerolog.Logger
	keepUnusedFor time.Duration
	onInvalidate  InvalidationHook
	metrics       Metrics

	baseCtx   context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup

	mu        sync.Mutex
	entries   map[Key]*entry
	tags      tagIndex
	nextSubID uint64
	closed    bool
}

// NewCoordinator creates a coordinator that resolves operations through
// resolver and sends requests through transport.
func NewCoordinator(cfg *Config, resolver Resolver, transport Transport, logger zerolog.Logger) (*Coordinator, error) {
	if resolver == nil || transport == nil {
		return nil, fmt.Errorf("resolver and transport cannot be nil")
	}
	if cfg == nil {
		cfg = NewConfigDefaults()
	}
	keep := cfg.KeepUnusedFor
	if keep <= 0 {
		keep = DefaultKeepUnusedFor
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	logger.Info().Dur("keep_unused_for", keep).Msg("Cache coordinator initialized.")
	return &Coordinator{
		resolver:      resolver,
		transport:     transport,
		logger:        logger.With().Str("component", "CacheCoordinator").Logger(),
		keepUnusedFor: keep,
		onInvalidate:  cfg.OnInvalidate,
		baseCtx:       baseCtx,
		cancelAll:     cancel,
		entries:       make(map[Key]*entry),
		tags:          make(tagIndex),
	}, nil
}

// Subscribe registers interest in the result of a query and returns its
// current snapshot, which may be pending. A fetch starts if the entry is new,
// stale or failed and none is already in flight. Later snapshots arrive on
// the subscription's Updates channel.
//
// ctx only bounds the call itself; the fetch lives until the entry's last
// subscriber leaves.
func (c *Coordinator) Subscribe(ctx context.Context, operation string, args any) (*Subscription, Snapshot, error) {
	ep, key, req, err := c.resolveQuery(operation, args)
	if err != nil {
		return nil, Snapshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, Snapshot{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, Snapshot{}, ErrClosed
	}

	e, ok := c.entries[key]
	if !ok {
		e = &entry{
			key:      key,
			endpoint: ep,
			req:      req,
			tags:     ep.Tags(),
			status:   StatusPending,
			subs:     make(map[uint64]*Subscription),
		}
		c.entries[key] = e
		c.tags.add(key, e.tags)
	}
	e.stopIdleTimer()

	c.nextSubID++
	sub := &Subscription{
		id:      c.nextSubID,
		key:     key,
		coord:   c,
		updates: make(chan Snapshot, 1),
	}
	e.subs[sub.id] = sub

	switch {
	case e.inflight:
		c.metrics.Deduplicated.Add(1)
		c.logger.Debug().Stringer("key", key).Msg("Joined in-flight fetch.")
	case e.needsFetch():
		c.metrics.Misses.Add(1)
		c.logger.Debug().Stringer("key", key).Str("status", e.status.String()).Msg("Cache miss.")
		c.startFetchLocked(e)
		// Existing subscribers of a failed or stale entry must see the refetch.
		c.notifyLocked(e, sub.id)
	default:
		c.metrics.Hits.Add(1)
		c.logger.Debug().Stringer("key", key).Msg("Cache hit.")
	}
	return sub, e.snapshot(), nil
}

// Unsubscribe removes a subscription and closes its Updates channel. When the
// last subscriber of an entry leaves, its in-flight fetch is cancelled and the
// idle timer starts. Unsubscribing twice is a no-op.
func (c *Coordinator) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	sub.close()
	e, ok := c.entries[sub.key]
	if !ok {
		return
	}
	if _, ok := e.subs[sub.id]; !ok {
		return
	}
	delete(e.subs, sub.id)
	if len(e.subs) > 0 {
		return
	}

	if e.inflight {
		c.metrics.Cancellations.Add(1)
		e.cancel()
		e.cancel = nil
		e.inflight = false
		e.fetchSeq++
		c.logger.Debug().Stringer("key", e.key).Msg("Cancelled fetch with no remaining subscribers.")
	}
	c.scheduleEvictionLocked(e)
}

// Query is a one-shot read: it subscribes, waits for a settled snapshot and
// unsubscribes. A fresh cached result is returned without a request. A failed
// fetch is returned as the error.
func (c *Coordinator) Query(ctx context.Context, operation string, args any) (Snapshot, error) {
	sub, snap, err := c.Subscribe(ctx, operation, args)
	if err != nil {
		return Snapshot{}, err
	}
	defer sub.Close()

	for !snap.Settled() {
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case next, ok := <-sub.Updates():
			if !ok {
				return snap, ErrClosed
			}
			snap = next
		}
	}
	if snap.Status == StatusError {
		return snap, snap.Err
	}
	return snap, nil
}

// Mutate executes a write. On success it invalidates the operation's tags,
// refetches affected entries that have subscribers, and returns the
// invalidated keys. On failure the cache is left untouched and the error is
// returned.
func (c *Coordinator) Mutate(ctx context.Context, operation string, args any) ([]Key, error) {
	ep, err := c.resolver.Lookup(operation)
	if err != nil {
		return nil, err
	}
	if ep.Kind != endpoints.Mutation {
		return nil, &endpoints.ConfigurationError{Operation: operation, Reason: fmt.Sprintf("is a %s, not a mutation", ep.Kind)}
	}
	req, err := ep.Request(args)
	if err != nil {
		return nil, err
	}
	if c.isClosed() {
		return nil, ErrClosed
	}

	c.metrics.Mutations.Add(1)
	if _, err := c.transport.Do(ctx, req); err != nil {
		c.metrics.MutationFails.Add(1)
		c.logger.Error().Err(err).Str("operation", operation).Msg("Mutation failed; cache left unchanged.")
		return nil, fmt.Errorf("%s failed: %w", operation, err)
	}

	keys := c.invalidate(ep.Invalidates)
	c.logger.Debug().Str("operation", operation).Int("invalidated", len(keys)).Msg("Mutation succeeded.")
	if c.onInvalidate != nil && len(ep.Invalidates) > 0 {
		c.onInvalidate(ctx, ep.Tags())
	}
	return keys, nil
}

// InvalidateTags marks every entry carrying one of tags stale and refetches
// those with subscribers, exactly as a successful mutation would. It returns
// the affected keys.
func (c *Coordinator) InvalidateTags(tags ...endpoints.Tag) []Key {
	return c.invalidate(tags)
}

// Snapshot returns the current state of an entry without subscribing to it.
func (c *Coordinator) Snapshot(operation string, args any) (Snapshot, bool) {
	_, key, _, err := c.resolveQuery(operation, args)
	if err != nil {
		return Snapshot{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(), true
}

// Metrics exposes the coordinator's counters.
func (c *Coordinator) Metrics() *Metrics {
	return &c.metrics
}

// Close cancels every in-flight fetch, closes all subscriptions and drops the
// cache. It waits for fetch goroutines to exit.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, e := range c.entries {
		e.stopIdleTimer()
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
		for _, sub := range e.subs {
			sub.close()
		}
	}
	c.entries = make(map[Key]*entry)
	c.tags = make(tagIndex)
	c.mu.Unlock()

	c.cancelAll()
	c.wg.Wait()
	c.logger.Info().Msg("Cache coordinator closed.")
	return nil
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Coordinator) resolveQuery(operation string, args any) (endpoints.Endpoint, Key, endpoints.Request, error) {
	ep, err := c.resolver.Lookup(operation)
	if err != nil {
		return endpoints.Endpoint{}, Key{}, endpoints.Request{}, err
	}
	if ep.Kind != endpoints.Query {
		return endpoints.Endpoint{}, Key{}, endpoints.Request{}, &endpoints.ConfigurationError{
			Operation: operation,
			Reason:    fmt.Sprintf("is a %s, not a query", ep.Kind),
		}
	}
	req, err := ep.Request(args)
	if err != nil {
		return endpoints.Endpoint{}, Key{}, endpoints.Request{}, err
	}
	argKey, err := endpoints.CacheKeyArgs(args)
	if err != nil {
		return endpoints.Endpoint{}, Key{}, endpoints.Request{}, &endpoints.ConfigurationError{Operation: operation, Reason: "unserializable arguments", Err: err}
	}
	return ep, Key{Operation: operation, Args: argKey}, req, nil
}

func (c *Coordinator) invalidate(tags []endpoints.Tag) []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}

	keys := c.tags.lookup(tags)
	for _, key := range keys {
		e, ok := c.entries[key]
		if !ok {
			continue
		}
		e.gen++
		if e.inflight {
			// settle sees the generation change and issues the single refetch.
			continue
		}
		if e.status == StatusFulfilled {
			e.status = StatusStale
		}
		if len(e.subs) > 0 {
			c.startFetchLocked(e)
		}
		c.notifyLocked(e, 0)
	}
	c.metrics.Invalidations.Add(int64(len(keys)))
	return keys
}

// startFetchLocked must be called with c.mu held.
func (c *Coordinator) startFetchLocked(e *entry) {
	ctx, cancel := context.WithCancel(c.baseCtx)
	e.fetchSeq++
	e.fetchGen = e.gen
	e.inflight = true
	e.cancel = cancel
	if e.status == StatusError {
		e.status = StatusPending
		e.err = nil
	}
	c.metrics.Fetches.Add(1)

	c.wg.Add(1)
	go c.fetch(ctx, e, e.fetchSeq, e.endpoint, e.req)
}

func (c *Coordinator) fetch(ctx context.Context, e *entry, seq uint64, ep endpoints.Endpoint, req endpoints.Request) {
	defer c.wg.Done()

	body, err := c.transport.Do(ctx, req)
	var data any
	if err == nil {
		data, err = ep.Decode(body)
		if err != nil {
			err = fmt.Errorf("failed to decode %s response: %w", e.key, err)
		}
	}
	c.settle(e, seq, data, err)
}

func (c *Coordinator) settle(e *entry, seq uint64, data any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.entries[e.key] != e || seq != e.fetchSeq {
		c.logger.Debug().Stringer("key", e.key).Msg("Discarding result of superseded fetch.")
		return
	}
	e.inflight = false
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}

	if e.fetchGen != e.gen {
		// Invalidated while in flight; the result may predate the mutation.
		c.logger.Debug().Stringer("key", e.key).Msg("Discarding result fetched before invalidation.")
		if e.status == StatusFulfilled {
			e.status = StatusStale
		}
		if len(e.subs) > 0 {
			c.startFetchLocked(e)
		}
		return
	}

	if err != nil {
		c.metrics.FetchErrors.Add(1)
		c.logger.Warn().Err(err).Stringer("key", e.key).Msg("Fetch failed.")
		e.status = StatusError
		e.err = err
	} else {
		e.status = StatusFulfilled
		e.data = data
		e.err = nil
		e.updatedAt = time.Now()
		c.tags.add(e.key, e.tags)
	}
	c.notifyLocked(e, 0)
}

// scheduleEvictionLocked must be called with c.mu held.
func (c *Coordinator) scheduleEvictionLocked(e *entry) {
	e.stopIdleTimer()
	seq := e.idleSeq
	e.idle = time.AfterFunc(c.keepUnusedFor, func() {
		c.evict(e, seq)
	})
}

func (c *Coordinator) evict(e *entry, seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[e.key] != e || e.idleSeq != seq || len(e.subs) > 0 {
		return
	}
	delete(c.entries, e.key)
	c.tags.remove(e.key, e.tags)
	e.idle = nil
	c.metrics.Evictions.Add(1)
	c.logger.Debug().Stringer("key", e.key).Msg("Evicted idle entry.")
}

// notifyLocked delivers the entry's snapshot to every subscriber except skip.
// Subscription ids start at 1, so a skip of 0 notifies all. It must be called
// with c.mu held.
func (c *Coordinator) notifyLocked(e *entry, skip uint64) {
	snap := e.snapshot()
	for id, sub := range e.subs {
		if id == skip {
			continue
		}
		sub.deliver(snap)
	}
}

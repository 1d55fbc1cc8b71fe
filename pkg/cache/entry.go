package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/illmade-knight/go-expensesync/pkg/endpoints"
)

// Status is the lifecycle state of a cache entry.
type Status int

const (
	// StatusPending means no result has arrived yet.
	StatusPending Status = iota
	// StatusFulfilled means the entry holds a fresh result.
	StatusFulfilled
	// StatusStale means the result is known to be outdated.
	StatusStale
	// StatusError means the last fetch failed.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFulfilled:
		return "fulfilled"
	case StatusStale:
		return "stale"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Key identifies a cache entry: one read of one operation with one set of
// arguments.
type Key struct {
	Operation string
	// Args is the serialized argument value, see endpoints.CacheKeyArgs.
	Args string
}

func (k Key) String() string {
	return k.Operation + "(" + k.Args + ")"
}

// Snapshot is the observable state of an entry at one point in time.
type Snapshot struct {
	Key    Key
	Status Status
	// Data is the last successfully fetched value. It survives staleness and
	// fetch errors. The value is shared by every subscriber of the entry and
	// must be treated as read-only.
	Data any
	Err  error
	// Fetching reports whether a request for this entry is in flight.
	Fetching  bool
	UpdatedAt time.Time
}

// Settled reports whether the snapshot carries a final outcome, fulfilled or
// error, with no fetch outstanding.
func (s Snapshot) Settled() bool {
	return !s.Fetching && (s.Status == StatusFulfilled || s.Status == StatusError)
}

type entry struct {
	key      Key
	endpoint endpoints.Endpoint
	req      endpoints.Request
	tags     []endpoints.Tag

	status    Status
	data      any
	err       error
	updatedAt time.Time

	subs map[uint64]*Subscription

	// gen is bumped by every invalidation; fetchGen is gen when the in-flight
	// fetch started. A result whose fetchGen lags gen predates the invalidation.
	gen      uint64
	fetchGen uint64
	// fetchSeq identifies the current fetch; results from superseded or
	// cancelled fetches carry an older value and are dropped.
	fetchSeq uint64
	inflight bool
	cancel   context.CancelFunc

	idle    *time.Timer
	idleSeq uint64
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{
		Key:       e.key,
		Status:    e.status,
		Data:      e.data,
		Err:       e.err,
		Fetching:  e.inflight,
		UpdatedAt: e.updatedAt,
	}
}

// needsFetch reports whether a subscriber arriving now must trigger a request.
func (e *entry) needsFetch() bool {
	return !e.inflight && e.status != StatusFulfilled
}

func (e *entry) stopIdleTimer() {
	if e.idle != nil {
		e.idle.Stop()
		e.idle = nil
	}
	e.idleSeq++
}

package cache

import (
	"sync/atomic"
)

// Metrics counts coordinator activity.
type Metrics struct {
	Hits          atomic.Int64
	Misses        atomic.Int64
	Deduplicated  atomic.Int64 // subscribes that joined an in-flight fetch
	Fetches       atomic.Int64
	FetchErrors   atomic.Int64
	Cancellations atomic.Int64
	Invalidations atomic.Int64 // entries marked stale
	Evictions     atomic.Int64
	Mutations     atomic.Int64
	MutationFails atomic.Int64
}

// Snapshot returns a point-in-time copy of the counters.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"hits":           m.Hits.Load(),
		"misses":         m.Misses.Load(),
		"deduplicated":   m.Deduplicated.Load(),
		"fetches":        m.Fetches.Load(),
		"fetch_errors":   m.FetchErrors.Load(),
		"cancellations":  m.Cancellations.Load(),
		"invalidations":  m.Invalidations.Load(),
		"evictions":      m.Evictions.Load(),
		"mutations":      m.Mutations.Load(),
		"mutation_fails": m.MutationFails.Load(),
	}
}

// HitRate returns hits over hits plus misses, or 0 before any subscribe.
func (m *Metrics) HitRate() float64 {
	hits := m.Hits.Load()
	total := hits + m.Misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

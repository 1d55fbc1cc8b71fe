package types

import (
	"time"
)

// InvalidationEvent announces that a mutation invalidated a set of cache tags.
// It is exchanged between sync-layer instances that share one remote API.
type InvalidationEvent struct {
	// Origin identifies the publishing instance so it can ignore its own events.
	Origin string `json:"origin"`
	// Tags are the invalidated tag names.
	Tags []string `json:"tags"`
	// SentAt is the publish timestamp.
	SentAt time.Time `json:"sentAt"`
}

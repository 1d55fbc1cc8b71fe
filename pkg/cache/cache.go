// Package cache caches the results of endpoint queries, keyed by operation and
// arguments, and refetches them when a mutation invalidates one of their tags.
package cache

import (
	"context"
	"errors"

	"github.com/illmade-knight/go-expensesync/pkg/endpoints"
)

// ErrClosed is returned by operations on a closed Coordinator.
var ErrClosed = errors.New("cache coordinator is closed")

// Transport executes a request against the remote API and returns the body of
// a successful response.
type Transport interface {
	Do(ctx context.Context, req endpoints.Request) ([]byte, error)
}

// Resolver looks up endpoint definitions by operation name.
type Resolver interface {
	Lookup(name string) (endpoints.Endpoint, error)
}

// InvalidationHook is called after a successful mutation has invalidated tags.
type InvalidationHook func(ctx context.Context, tags []endpoints.Tag)

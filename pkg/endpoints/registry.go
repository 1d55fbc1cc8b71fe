// Package endpoints declares the remote operations the sync layer can perform:
// how each one turns arguments into a request, how its response is decoded,
// and which cache tags it provides or invalidates.
package endpoints

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Tag is an opaque label grouping cache entries that are invalidated together.
type Tag string

// Kind distinguishes reads from writes.
type Kind int

const (
	// Query is a cacheable read.
	Query Kind = iota
	// Mutation is a write that invalidates tags on success.
	Mutation
)

func (k Kind) String() string {
	switch k {
	case Query:
		return "query"
	case Mutation:
		return "mutation"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Request is a concrete request descriptor, relative to the API base URL.
type Request struct {
	Method string
	Path   string
	// Body is JSON-encoded by the transport when non-nil.
	Body any
}

// RequestBuilder turns operation arguments into a Request.
type RequestBuilder func(args any) (Request, error)

// ResponseDecoder turns a successful response body into the cached value.
type ResponseDecoder func(body []byte) (any, error)

// Endpoint describes one remote operation.
type Endpoint struct {
	Name  string
	Kind  Kind
	Build RequestBuilder
	// Decode is required for queries and ignored for mutations.
	Decode ResponseDecoder
	// Provides lists the tags a query's cache entry carries.
	Provides []Tag
	// Invalidates lists the tags a mutation invalidates on success.
	Invalidates []Tag
}

// Tags returns the provided tags for a query and the invalidated tags for a
// mutation.
func (e Endpoint) Tags() []Tag {
	if e.Kind == Mutation {
		return append([]Tag(nil), e.Invalidates...)
	}
	return append([]Tag(nil), e.Provides...)
}

// Request builds the request for args. Builder failures are reported as
// *ConfigurationError.
func (e Endpoint) Request(args any) (Request, error) {
	req, err := e.Build(args)
	if err != nil {
		return Request{}, asConfigurationError(e.Name, err)
	}
	return req, nil
}

// Registry is a lookup table from operation name to Endpoint.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]Endpoint
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		endpoints: make(map[string]Endpoint),
	}
}

// Register adds an endpoint. Names must be unique.
func (r *Registry) Register(ep Endpoint) error {
	if ep.Name == "" {
		return &ConfigurationError{Reason: "endpoint name cannot be empty"}
	}
	if ep.Build == nil {
		return &ConfigurationError{Operation: ep.Name, Reason: "endpoint has no request builder"}
	}
	if ep.Kind == Query && ep.Decode == nil {
		return &ConfigurationError{Operation: ep.Name, Reason: "query endpoint has no response decoder"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.endpoints[ep.Name]; exists {
		return &ConfigurationError{Operation: ep.Name, Reason: "endpoint already registered"}
	}
	r.endpoints[ep.Name] = ep
	return nil
}

// Lookup returns the endpoint registered under name.
func (r *Registry) Lookup(name string) (Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.endpoints[name]
	if !ok {
		return Endpoint{}, &ConfigurationError{Operation: name, Reason: "unknown operation"}
	}
	return ep, nil
}

// Resolve produces the request descriptor for an operation and the tags
// associated with it. It has no side effects.
func (r *Registry) Resolve(name string, args any) (Request, []Tag, error) {
	ep, err := r.Lookup(name)
	if err != nil {
		return Request{}, nil, err
	}
	req, err := ep.Request(args)
	if err != nil {
		return Request{}, nil, err
	}
	return req, ep.Tags(), nil
}

// Names returns the registered operation names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CacheKeyArgs serializes arguments into the stable string used in cache
// keys. No arguments serialize to the empty string.
func CacheKeyArgs(args any) (string, error) {
	if args == nil {
		return "", nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to serialize arguments: %w", err)
	}
	return string(data), nil
}

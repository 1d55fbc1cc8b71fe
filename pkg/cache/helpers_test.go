package cache_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-expensesync/pkg/apiclient"
	"github.com/illmade-knight/go-expensesync/pkg/cache"
	"github.com/illmade-knight/go-expensesync/pkg/endpoints"
	"github.com/illmade-knight/go-expensesync/pkg/expenseapi"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// mockTransport is a test double for cache.Transport that counts calls per
// "METHOD path".
type mockTransport struct {
	DoFunc func(ctx context.Context, req endpoints.Request) ([]byte, error)

	mu    sync.Mutex
	calls map[string]int
}

func (m *mockTransport) Do(ctx context.Context, req endpoints.Request) ([]byte, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[req.Method+" "+req.Path]++
	m.mu.Unlock()

	if m.DoFunc != nil {
		return m.DoFunc(ctx, req)
	}
	return nil, fmt.Errorf("mock transport not implemented")
}

func (m *mockTransport) Calls(method, path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method+" "+path]
}

// newAPITransport serves an in-memory expense API over HTTP and returns a
// counting transport in front of a real API client.
func newAPITransport(t *testing.T, store *expenseapi.Store) *mockTransport {
	t.Helper()
	srv := httptest.NewServer(expenseapi.NewHandler(expenseapi.Config{}, store, zerolog.Nop()))
	t.Cleanup(srv.Close)

	client, err := apiclient.NewClient(&apiclient.Config{
		BaseURL: srv.URL + expenseapi.BasePath,
		Timeout: 5 * time.Second,
	}, zerolog.Nop())
	require.NoError(t, err)

	return &mockTransport{DoFunc: client.Do}
}

func newTestCoordinator(t *testing.T, cfg *cache.Config, transport cache.Transport) *cache.Coordinator {
	t.Helper()
	coord, err := cache.NewCoordinator(cfg, endpoints.NewExpenseRegistry(), transport, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = coord.Close() })
	return coord
}

// waitFor reads snapshots from sub until match returns true.
func waitFor(t *testing.T, sub *cache.Subscription, match func(cache.Snapshot) bool) cache.Snapshot {
	t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case snap, ok := <-sub.Updates():
			require.True(t, ok, "subscription closed while waiting")
			if match(snap) {
				return snap
			}
		case <-timeout:
			t.Fatalf("timed out waiting for snapshot on %s", sub.Key())
			return cache.Snapshot{}
		}
	}
}

func fulfilled(snap cache.Snapshot) bool {
	return snap.Status == cache.StatusFulfilled && !snap.Fetching
}

// gate blocks transport calls until released.
type gate struct {
	ch   chan struct{}
	once sync.Once
}

func newGate() *gate {
	return &gate{ch: make(chan struct{})}
}

func (g *gate) wait(ctx context.Context) error {
	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) release() {
	g.once.Do(func() { close(g.ch) })
}

package apiclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/illmade-knight/go-expensesync/pkg/apiclient"
	"github.com/illmade-knight/go-expensesync/pkg/endpoints"
	"github.com/illmade-knight/go-expensesync/pkg/expenseapi"
	"github.com/illmade-knight/go-expensesync/pkg/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *apiclient.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := apiclient.NewClient(&apiclient.Config{
		BaseURL: srv.URL + expenseapi.BasePath,
		Timeout: 5 * time.Second,
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClient_Do_RoundTrip(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := expenseapi.NewStore()
	client := newTestClient(t, expenseapi.NewHandler(expenseapi.Config{}, store, zerolog.Nop()))
	registry := endpoints.NewExpenseRegistry()

	addReq, _, err := registry.Resolve(endpoints.AddExpense, types.NewExpense{
		Amount:      decimal.RequireFromString("12.5"),
		Category:    "food",
		Description: "lunch",
		Date:        "2024-01-01",
	})
	require.NoError(t, err)

	// Act
	_, err = client.Do(ctx, addReq)
	require.NoError(t, err)

	listReq, _, err := registry.Resolve(endpoints.GetExpenses, nil)
	require.NoError(t, err)
	body, err := client.Do(ctx, listReq)
	require.NoError(t, err)

	// Assert
	ep, err := registry.Lookup(endpoints.GetExpenses)
	require.NoError(t, err)
	value, err := ep.Decode(body)
	require.NoError(t, err)
	list := value.([]types.Expense)
	require.Len(t, list, 1)
	assert.Equal(t, "food", list[0].Category)
	assert.True(t, decimal.RequireFromString("12.5").Equal(list[0].Amount))
}

func TestClient_Do_ServerError(t *testing.T) {
	// Arrange
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"db down"}`))
	}))

	// Act
	_, err := client.Do(context.Background(), endpoints.Request{Method: http.MethodGet, Path: "/"})

	// Assert
	var serverErr *apiclient.ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, http.StatusInternalServerError, serverErr.StatusCode)
	assert.Contains(t, serverErr.Body, "db down")
}

func TestClient_Do_NetworkError(t *testing.T) {
	// Arrange: a server that is closed before the request is sent.
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	client, err := apiclient.NewClient(&apiclient.Config{BaseURL: baseURL, Timeout: time.Second}, zerolog.Nop())
	require.NoError(t, err)

	// Act
	_, err = client.Do(context.Background(), endpoints.Request{Method: http.MethodGet, Path: "/"})

	// Assert
	var netErr *apiclient.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, http.MethodGet, netErr.Method)
}

func TestClient_Do_Cancelled(t *testing.T) {
	// Arrange
	release := make(chan struct{})
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() { close(release) })
	ctx, cancel := context.WithCancel(context.Background())

	// Act
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := client.Do(ctx, endpoints.Request{Method: http.MethodGet, Path: "/"})

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	_, err := apiclient.NewClient(&apiclient.Config{BaseURL: "not a url"}, zerolog.Nop())
	require.Error(t, err)
}

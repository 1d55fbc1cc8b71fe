package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-expensesync/pkg/expenseapi"
	"github.com/illmade-knight/go-expensesync/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers and readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// hasRow reports whether out contains a line made of exactly fields.
func hasRow(out string, fields ...string) bool {
	for _, line := range strings.Split(out, "\n") {
		if strings.Join(strings.Fields(line), " ") == strings.Join(fields, " ") {
			return true
		}
	}
	return false
}

func newAPIServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(expenseapi.NewHandler(expenseapi.Config{}, expenseapi.NewStore(), zerolog.Nop()))
	t.Cleanup(srv.Close)
	return srv.URL + expenseapi.BasePath
}

func run(t *testing.T, ctx context.Context, apiURL string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr syncBuffer
	full := append([]string{"expensesync", "--api-url", apiURL, "--log-level", "error"}, args...)
	err := newApp(&stdout, &stderr).Run(ctx, full)
	return stdout.String(), err
}

func TestCLI_AddListSummaryDelete(t *testing.T) {
	ctx := context.Background()
	apiURL := newAPIServer(t)

	out, err := run(t, ctx, apiURL, "add", "--amount", "12.5", "--category", "food", "--description", "lunch", "--date", "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, "added 12.50 food on 2024-01-01\n", out)

	out, err = run(t, ctx, apiURL, "list")
	require.NoError(t, err)
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"ID", "DATE", "CATEGORY", "DESCRIPTION", "AMOUNT"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"1", "2024-01-01", "food", "lunch", "12.50"}, strings.Fields(lines[1]))

	out, err = run(t, ctx, apiURL, "--json", "summary")
	require.NoError(t, err)
	assert.JSONEq(t, `[["food",12.5]]`, out)

	out, err = run(t, ctx, apiURL, "delete", "1")
	require.NoError(t, err)
	assert.Equal(t, "deleted 1\n", out)

	out, err = run(t, ctx, apiURL, "--json", "list")
	require.NoError(t, err)
	var list []types.Expense
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Empty(t, list)
}

func TestCLI_Errors(t *testing.T) {
	ctx := context.Background()
	apiURL := newAPIServer(t)

	testCases := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"Bad amount", []string{"add", "--amount", "lots", "--category", "food"}, "invalid amount"},
		{"Bad date", []string{"add", "--amount", "1", "--category", "food", "--date", "01/02/2024"}, "expected YYYY-MM-DD"},
		{"Delete without id", []string{"delete"}, "exactly one expense id"},
		{"Delete with bad id", []string{"delete", "x"}, "invalid expense id"},
		{"Unknown broadcast", []string{"--broadcast", "kafka", "list"}, "unknown broadcast.kind"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := run(t, ctx, apiURL, tc.args...)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestCLI_Watch(t *testing.T) {
	// Arrange
	apiURL := newAPIServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout, stderr syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- newApp(&stdout, &stderr).Run(ctx, []string{"expensesync", "--api-url", apiURL, "--log-level", "error", "watch"})
	}()
	require.Eventually(t, func() bool {
		return hasRow(stdout.String(), "CATEGORY", "TOTAL")
	}, 2*time.Second, 10*time.Millisecond)

	// Act: a second process writes; watch has no broadcast, so its views only
	// change when it is restarted. Cancelling ends the watch cleanly.
	_, err := run(t, context.Background(), apiURL, "add", "--amount", "3", "--category", "misc", "--date", "2024-05-05")
	require.NoError(t, err)
	cancel()

	// Assert
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.True(t, hasRow(stdout.String(), "ID", "DATE", "CATEGORY", "DESCRIPTION", "AMOUNT"))
	assert.NotContains(t, stdout.String(), "misc")
}

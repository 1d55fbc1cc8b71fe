package expenseapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/illmade-knight/go-expensesync/pkg/expenseapi"
	"github.com/illmade-knight/go-expensesync/pkg/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg expenseapi.Config) (*httptest.Server, *expenseapi.Store) {
	t.Helper()
	store := expenseapi.NewStore()
	srv := httptest.NewServer(expenseapi.NewHandler(cfg, store, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return srv, store
}

func TestHandler_AddListDelete(t *testing.T) {
	// Arrange
	srv, store := newTestServer(t, expenseapi.Config{})
	base := srv.URL + expenseapi.BasePath

	// Act: add
	resp, err := http.Post(base+"/", "application/json",
		strings.NewReader(`{"amount":12.5,"category":"food","description":"lunch","date":"2024-01-01"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()

	// Assert
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, store.List(), 1)

	// Act: list
	resp, err = http.Get(base + "/")
	require.NoError(t, err)
	var list []types.Expense
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	_ = resp.Body.Close()

	// Assert
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].ID)
	assert.Equal(t, "lunch", list[0].Description)

	// Act: delete
	req, err := http.NewRequest(http.MethodDelete, base+"/1", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	// Assert
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, store.List())
}

func TestHandler_PositionalRowsAndSummary(t *testing.T) {
	// Arrange
	srv, store := newTestServer(t, expenseapi.Config{PositionalRows: true})
	store.Add(types.NewExpense{Amount: decimal.RequireFromString("10"), Category: "food", Date: "2024-01-01"})
	store.Add(types.NewExpense{Amount: decimal.RequireFromString("2.5"), Category: "food", Date: "2024-01-02"})
	store.Add(types.NewExpense{Amount: decimal.RequireFromString("100"), Category: "rent", Date: "2024-01-03"})

	// Act
	resp, err := http.Get(srv.URL + expenseapi.BasePath + "/")
	require.NoError(t, err)
	var raw [][]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	_ = resp.Body.Close()

	// Assert: newest first, five columns each.
	require.Len(t, raw, 3)
	assert.Len(t, raw[0], 5)
	assert.Equal(t, "2024-01-03", raw[0][4])

	// Act
	resp, err = http.Get(srv.URL + expenseapi.BasePath + "/summary")
	require.NoError(t, err)
	var summary []types.SummaryRow
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	_ = resp.Body.Close()

	// Assert
	require.Len(t, summary, 2)
	assert.Equal(t, "food", summary[0].Category)
	assert.True(t, decimal.RequireFromString("12.5").Equal(summary[0].Total))
	assert.Equal(t, "rent", summary[1].Category)
}

func TestHandler_Validation(t *testing.T) {
	srv, store := newTestServer(t, expenseapi.Config{})
	base := srv.URL + expenseapi.BasePath

	testCases := []struct {
		name       string
		body       string
		wantDetail string
	}{
		{"Bad date", `{"amount":1,"category":"x","description":"y","date":"soon"}`, "YYYY-MM-DD"},
		{"Only a date", `{"date":"2024-01-01"}`, "field required: amount, category, description"},
		{"Null amount", `{"amount":null,"category":"x","description":"y","date":"2024-01-01"}`, "field required: amount"},
		{"Missing description", `{"amount":1,"category":"x","date":"2024-01-01"}`, "field required: description"},
		{"Empty category", `{"amount":1,"category":"","description":"y","date":"2024-01-01"}`, "category is required"},
		{"Unknown field", `{"amount":1,"category":"x","description":"y","date":"2024-01-01","vat":2}`, "unknown field"},
		{"Not JSON", `amount=1`, "invalid expense body"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Act
			resp, err := http.Post(base+"/", "application/json", strings.NewReader(tc.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			// Assert
			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Contains(t, body["detail"], tc.wantDetail)
		})
	}
	assert.Empty(t, store.List(), "rejected payloads must not be stored")

	t.Run("Non-integer id", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, base+"/abc", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})
}

func TestHandler_CORS(t *testing.T) {
	srv, _ := newTestServer(t, expenseapi.Config{AllowedOrigins: []string{"http://localhost:5173"}})

	req, err := http.NewRequest(http.MethodGet, srv.URL+expenseapi.BasePath+"/", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}

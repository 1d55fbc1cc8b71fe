package types_test

import (
	"encoding/json"
	"testing"

	"github.com/illmade-knight/go-expensesync/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpense_UnmarshalJSON(t *testing.T) {
	t.Run("Record form", func(t *testing.T) {
		var e types.Expense
		err := json.Unmarshal([]byte(`{"id":1,"amount":12.5,"category":"food","description":"lunch","date":"2024-01-01"}`), &e)
		require.NoError(t, err)

		assert.Equal(t, int64(1), e.ID)
		assert.True(t, decimal.RequireFromString("12.5").Equal(e.Amount))
		assert.Equal(t, "food", e.Category)
		assert.Equal(t, "lunch", e.Description)
		assert.Equal(t, "2024-01-01", e.Date)
	})

	t.Run("Positional row form", func(t *testing.T) {
		var list []types.Expense
		err := json.Unmarshal([]byte(`[[7,"3.20","travel",null,"2024-02-03"]]`), &list)
		require.NoError(t, err)
		require.Len(t, list, 1)

		assert.Equal(t, int64(7), list[0].ID)
		assert.True(t, decimal.RequireFromString("3.2").Equal(list[0].Amount))
		assert.Equal(t, "travel", list[0].Category)
		assert.Empty(t, list[0].Description)
	})

	t.Run("Row with wrong column count", func(t *testing.T) {
		var e types.Expense
		err := json.Unmarshal([]byte(`[1, 2.0]`), &e)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "want 5")
	})
}

func TestExpense_MarshalJSON_NumericAmount(t *testing.T) {
	e := types.Expense{ID: 3, Amount: decimal.RequireFromString("9.99"), Category: "books", Date: "2024-03-01"}

	data, err := json.Marshal(e)
	require.NoError(t, err)

	assert.JSONEq(t, `{"id":3,"amount":9.99,"category":"books","description":"","date":"2024-03-01"}`, string(data))
}

func TestNewExpense(t *testing.T) {
	n := types.NewExpense{
		Amount:      decimal.RequireFromString("12.5"),
		Category:    "food",
		Description: "lunch",
		Date:        "2024-01-01",
	}

	t.Run("Body shape", func(t *testing.T) {
		data, err := json.Marshal(n)
		require.NoError(t, err)
		assert.JSONEq(t, `{"amount":12.5,"category":"food","description":"lunch","date":"2024-01-01"}`, string(data))
	})

	t.Run("Validate", func(t *testing.T) {
		assert.NoError(t, n.Validate())

		bad := n
		bad.Date = "01/01/2024"
		err := bad.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "YYYY-MM-DD")

		noCategory := n
		noCategory.Category = "  "
		assert.ErrorContains(t, noCategory.Validate(), "category is required")

		onlyDate := types.NewExpense{Date: "2024-01-01"}
		assert.Error(t, onlyDate.Validate())
	})
}

func TestSummaryRow(t *testing.T) {
	t.Run("Positional decode", func(t *testing.T) {
		var rows []types.SummaryRow
		err := json.Unmarshal([]byte(`[["food", 20.5], ["rent", "1000.00"]]`), &rows)
		require.NoError(t, err)
		require.Len(t, rows, 2)

		assert.Equal(t, "food", rows[0].Category)
		assert.True(t, decimal.RequireFromString("20.5").Equal(rows[0].Total))
		assert.True(t, decimal.RequireFromString("1000").Equal(rows[1].Total))
	})

	t.Run("Named decode", func(t *testing.T) {
		var row types.SummaryRow
		err := json.Unmarshal([]byte(`{"category":"food","total":4}`), &row)
		require.NoError(t, err)
		assert.Equal(t, "food", row.Category)
	})

	t.Run("Positional encode", func(t *testing.T) {
		data, err := json.Marshal(types.SummaryRow{Category: "food", Total: decimal.RequireFromString("20.5")})
		require.NoError(t, err)
		assert.JSONEq(t, `["food", 20.5]`, string(data))
	})

	t.Run("Bad arity", func(t *testing.T) {
		var row types.SummaryRow
		require.Error(t, json.Unmarshal([]byte(`["food"]`), &row))
	})
}

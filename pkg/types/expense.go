// Package types holds the wire types exchanged with the remote expense API and
// between sync-layer instances.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format the expense API accepts and returns.
const DateLayout = "2006-01-02"

// Expense is a single expense record as returned by GET /.
type Expense struct {
	ID          int64           `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
}

// wireExpense carries the amount as a JSON number rather than decimal's
// default quoted string.
type wireExpense struct {
	ID          int64       `json:"id"`
	Amount      json.Number `json:"amount"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	Date        string      `json:"date"`
}

// MarshalJSON encodes the record form with a numeric amount.
func (e Expense) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireExpense{
		ID:          e.ID,
		Amount:      json.Number(e.Amount.String()),
		Category:    e.Category,
		Description: e.Description,
		Date:        e.Date,
	})
}

// UnmarshalJSON accepts both the record form and the positional row form
// [id, amount, category, description, date] emitted by table-backed servers.
func (e *Expense) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return e.unmarshalRow(trimmed)
	}

	var w struct {
		ID          int64           `json:"id"`
		Amount      decimal.Decimal `json:"amount"`
		Category    *string         `json:"category"`
		Description *string         `json:"description"`
		Date        *string         `json:"date"`
	}
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return fmt.Errorf("failed to decode expense record: %w", err)
	}
	*e = Expense{
		ID:          w.ID,
		Amount:      w.Amount,
		Category:    deref(w.Category),
		Description: deref(w.Description),
		Date:        deref(w.Date),
	}
	return nil
}

func (e *Expense) unmarshalRow(data []byte) error {
	var row []json.RawMessage
	if err := json.Unmarshal(data, &row); err != nil {
		return fmt.Errorf("failed to decode expense row: %w", err)
	}
	if len(row) != 5 {
		return fmt.Errorf("expense row has %d columns, want 5", len(row))
	}

	var (
		out                         Expense
		category, description, date *string
	)
	targets := []any{&out.ID, &out.Amount, &category, &description, &date}
	for i, target := range targets {
		if err := json.Unmarshal(row[i], target); err != nil {
			return fmt.Errorf("failed to decode expense row column %d: %w", i, err)
		}
	}
	out.Category = deref(category)
	out.Description = deref(description)
	out.Date = deref(date)
	*e = out
	return nil
}

// NewExpense is the body of POST /.
type NewExpense struct {
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
}

// Validate checks what the API rejects with 422: the date must be a calendar
// date and the category must be set.
func (n NewExpense) Validate() error {
	if _, err := time.Parse(DateLayout, n.Date); err != nil {
		return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", n.Date)
	}
	if strings.TrimSpace(n.Category) == "" {
		return fmt.Errorf("category is required")
	}
	return nil
}

// MarshalJSON encodes the amount as a JSON number.
func (n NewExpense) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount      json.Number `json:"amount"`
		Category    string      `json:"category"`
		Description string      `json:"description"`
		Date        string      `json:"date"`
	}{
		Amount:      json.Number(n.Amount.String()),
		Category:    n.Category,
		Description: n.Description,
		Date:        n.Date,
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

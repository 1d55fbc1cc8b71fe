package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// SummaryRow is one category total from GET /summary. On the wire it is the
// positional pair [category, total].
type SummaryRow struct {
	Category string
	Total    decimal.Decimal
}

// MarshalJSON encodes the positional pair with a numeric total.
func (s SummaryRow) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{s.Category, json.Number(s.Total.String())})
}

// UnmarshalJSON decodes the positional pair. A named {category, total} object
// is accepted as well.
func (s *SummaryRow) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var named struct {
			Category *string         `json:"category"`
			Total    decimal.Decimal `json:"total"`
		}
		if err := json.Unmarshal(trimmed, &named); err != nil {
			return fmt.Errorf("failed to decode summary row: %w", err)
		}
		*s = SummaryRow{Category: deref(named.Category), Total: named.Total}
		return nil
	}

	var pair []json.RawMessage
	if err := json.Unmarshal(trimmed, &pair); err != nil {
		return fmt.Errorf("failed to decode summary row: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("summary row has %d elements, want 2", len(pair))
	}
	var category *string
	if err := json.Unmarshal(pair[0], &category); err != nil {
		return fmt.Errorf("failed to decode summary category: %w", err)
	}
	var total decimal.Decimal
	if err := json.Unmarshal(pair[1], &total); err != nil {
		return fmt.Errorf("failed to decode summary total: %w", err)
	}
	*s = SummaryRow{Category: deref(category), Total: total}
	return nil
}

// Package expenseapi is an in-memory implementation of the remote expense API.
// It backs tests and the local development server; it does not persist data.
package expenseapi

import (
	"sort"
	"sync"

	"github.com/illmade-knight/go-expensesync/pkg/types"
	"github.com/shopspring/decimal"
)

// Store is a thread-safe, in-memory expense table.
type Store struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]types.Expense
}

// NewStore creates an empty store. IDs start at 1.
func NewStore() *Store {
	return &Store{
		nextID: 1,
		rows:   make(map[int64]types.Expense),
	}
}

// Add inserts a new expense and returns the stored record.
func (s *Store) Add(n types.NewExpense) types.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := types.Expense{
		ID:          s.nextID,
		Amount:      n.Amount,
		Category:    n.Category,
		Description: n.Description,
		Date:        n.Date,
	}
	s.rows[e.ID] = e
	s.nextID++
	return e
}

// List returns every expense, newest date first. Rows sharing a date keep
// insertion order.
func (s *Store) List() []types.Expense {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]types.Expense, 0, len(s.rows))
	for _, e := range s.rows {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Date != list[j].Date {
			return list[i].Date > list[j].Date
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// Delete removes an expense. It reports whether a row existed.
func (s *Store) Delete(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[id]
	delete(s.rows, id)
	return ok
}

// Summary totals amounts per category, ordered by category name.
func (s *Store) Summary() []types.SummaryRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	totals := make(map[string]decimal.Decimal)
	for _, e := range s.rows {
		totals[e.Category] = totals[e.Category].Add(e.Amount)
	}
	rows := make([]types.SummaryRow, 0, len(totals))
	for category, total := range totals {
		rows = append(rows, types.SummaryRow{Category: category, Total: total})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Category < rows[j].Category })
	return rows
}

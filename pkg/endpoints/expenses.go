package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/illmade-knight/go-expensesync/pkg/types"
)

// Operation names of the expense API.
const (
	GetExpenses   = "getExpenses"
	GetSummary    = "getSummary"
	AddExpense    = "addExpense"
	DeleteExpense = "deleteExpense"
)

// TagExpenses groups every cache entry derived from the expense list.
const TagExpenses Tag = "Expenses"

// NewExpenseRegistry builds the registry for the expense API.
//
// getSummary provides no tags, so expense mutations leave it untouched.
func NewExpenseRegistry() *Registry {
	r := NewRegistry()
	for _, ep := range []Endpoint{
		{
			Name:     GetExpenses,
			Kind:     Query,
			Build:    noArgs(GetExpenses, http.MethodGet, "/"),
			Decode:   decodeList[types.Expense],
			Provides: []Tag{TagExpenses},
		},
		{
			Name:   GetSummary,
			Kind:   Query,
			Build:  noArgs(GetSummary, http.MethodGet, "/summary"),
			Decode: decodeList[types.SummaryRow],
		},
		{
			Name:        AddExpense,
			Kind:        Mutation,
			Build:       buildAddExpense,
			Invalidates: []Tag{TagExpenses},
		},
		{
			Name:        DeleteExpense,
			Kind:        Mutation,
			Build:       buildDeleteExpense,
			Invalidates: []Tag{TagExpenses},
		},
	} {
		if err := r.Register(ep); err != nil {
			// The table above is static; a failure here is a programming error.
			panic(err)
		}
	}
	return r
}

func noArgs(op, method, path string) RequestBuilder {
	return func(args any) (Request, error) {
		if args != nil {
			return Request{}, &ConfigurationError{Operation: op, Reason: fmt.Sprintf("takes no arguments, got %T", args)}
		}
		return Request{Method: method, Path: path}, nil
	}
}

func buildAddExpense(args any) (Request, error) {
	var expense types.NewExpense
	switch v := args.(type) {
	case types.NewExpense:
		expense = v
	case *types.NewExpense:
		if v == nil {
			return Request{}, fmt.Errorf("expense cannot be nil")
		}
		expense = *v
	default:
		return Request{}, fmt.Errorf("expected types.NewExpense, got %T", args)
	}
	if err := expense.Validate(); err != nil {
		return Request{}, err
	}
	return Request{Method: http.MethodPost, Path: "/", Body: expense}, nil
}

func buildDeleteExpense(args any) (Request, error) {
	var id int64
	switch v := args.(type) {
	case int:
		id = int64(v)
	case int64:
		id = v
	case int32:
		id = int64(v)
	default:
		return Request{}, fmt.Errorf("expected integer id, got %T", args)
	}
	return Request{Method: http.MethodDelete, Path: "/" + strconv.FormatInt(id, 10)}, nil
}

// decodeList decodes a JSON array, returning an empty (non-nil) slice for [].
func decodeList[T any](body []byte) (any, error) {
	list := make([]T, 0)
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if list == nil {
		list = make([]T, 0)
	}
	return list, nil
}

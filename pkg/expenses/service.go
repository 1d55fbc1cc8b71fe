// Package expenses exposes typed read and write operations for the expense API
// on top of the cache coordinator.
package expenses

import (
	"context"
	"fmt"
	"time"

	"github.com/illmade-knight/go-expensesync/pkg/cache"
	"github.com/illmade-knight/go-expensesync/pkg/endpoints"
	"github.com/illmade-knight/go-expensesync/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Coordinator is the subset of *cache.Coordinator the service depends on.
type Coordinator interface {
	Subscribe(ctx context.Context, operation string, args any) (*cache.Subscription, cache.Snapshot, error)
	Query(ctx context.Context, operation string, args any) (cache.Snapshot, error)
	Mutate(ctx context.Context, operation string, args any) ([]cache.Key, error)
}

// View is a typed snapshot of a query result.
type View[T any] struct {
	Status    cache.Status
	Data      T
	Err       error
	Fetching  bool
	UpdatedAt time.Time
}

// Loading reports whether no value has been received yet.
func (v View[T]) Loading() bool {
	return v.Status == cache.StatusPending
}

func viewOf[T any](snap cache.Snapshot) View[T] {
	v := View[T]{
		Status:    snap.Status,
		Err:       snap.Err,
		Fetching:  snap.Fetching,
		UpdatedAt: snap.UpdatedAt,
	}
	if data, ok := snap.Data.(T); ok {
		v.Data = data
	}
	return v
}

// Watch follows one query subscription and converts its snapshots to View[T].
type Watch[T any] struct {
	sub     *cache.Subscription
	current View[T]
}

// Current returns the last view returned by Next, or the view at subscribe
// time.
func (w *Watch[T]) Current() View[T] {
	return w.current
}

// Next blocks until the query's state changes. It returns cache.ErrClosed
// once the watch or the coordinator is closed.
func (w *Watch[T]) Next(ctx context.Context) (View[T], error) {
	select {
	case <-ctx.Done():
		return w.current, ctx.Err()
	case snap, ok := <-w.sub.Updates():
		if !ok {
			return w.current, cache.ErrClosed
		}
		w.current = viewOf[T](snap)
		return w.current, nil
	}
}

// Close releases the subscription.
func (w *Watch[T]) Close() {
	w.sub.Close()
}

// Service provides typed access to the expense operations.
type Service struct {
	coord  Coordinator
	logger zerolog.Logger
}

// NewService creates a Service backed by coord.
func NewService(coord Coordinator, logger zerolog.Logger) *Service {
	return &Service{
		coord:  coord,
		logger: logger.With().Str("component", "ExpenseService").Logger(),
	}
}

// WatchExpenses subscribes to the expense list.
func (s *Service) WatchExpenses(ctx context.Context) (*Watch[[]types.Expense], error) {
	return watch[[]types.Expense](ctx, s.coord, endpoints.GetExpenses)
}

// WatchSummary subscribes to the per-category totals.
func (s *Service) WatchSummary(ctx context.Context) (*Watch[[]types.SummaryRow], error) {
	return watch[[]types.SummaryRow](ctx, s.coord, endpoints.GetSummary)
}

func watch[T any](ctx context.Context, coord Coordinator, operation string) (*Watch[T], error) {
	sub, snap, err := coord.Subscribe(ctx, operation, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", operation, err)
	}
	return &Watch[T]{sub: sub, current: viewOf[T](snap)}, nil
}

// Expenses returns the expense list, from cache when it is fresh.
func (s *Service) Expenses(ctx context.Context) ([]types.Expense, error) {
	return query[[]types.Expense](ctx, s.coord, endpoints.GetExpenses)
}

// Summary returns the per-category totals, from cache when they are fresh.
func (s *Service) Summary(ctx context.Context) ([]types.SummaryRow, error) {
	return query[[]types.SummaryRow](ctx, s.coord, endpoints.GetSummary)
}

func query[T any](ctx context.Context, coord Coordinator, operation string) (T, error) {
	var zero T
	snap, err := coord.Query(ctx, operation, nil)
	if err != nil {
		return zero, fmt.Errorf("failed to load %s: %w", operation, err)
	}
	data, ok := snap.Data.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected %s result type %T", operation, snap.Data)
	}
	return data, nil
}

// Load fetches the expense list and the summary concurrently.
func (s *Service) Load(ctx context.Context) ([]types.Expense, []types.SummaryRow, error) {
	var list []types.Expense
	var summary []types.SummaryRow

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		list, err = s.Expenses(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		summary, err = s.Summary(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return list, summary, nil
}

// AddExpense creates an expense. Expense list subscribers are refreshed once
// the server has accepted it.
func (s *Service) AddExpense(ctx context.Context, expense types.NewExpense) error {
	keys, err := s.coord.Mutate(ctx, endpoints.AddExpense, expense)
	if err != nil {
		return err
	}
	s.logger.Info().Str("category", expense.Category).Int("invalidated", len(keys)).Msg("Expense added.")
	return nil
}

// DeleteExpense removes the expense with the given id.
func (s *Service) DeleteExpense(ctx context.Context, id int64) error {
	keys, err := s.coord.Mutate(ctx, endpoints.DeleteExpense, id)
	if err != nil {
		return err
	}
	s.logger.Info().Int64("id", id).Int("invalidated", len(keys)).Msg("Expense deleted.")
	return nil
}

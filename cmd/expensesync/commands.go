package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/lipgloss/v2/table"

	"github.com/illmade-knight/go-expensesync/pkg/cache"
	"github.com/illmade-knight/go-expensesync/pkg/expenses"
	"github.com/illmade-knight/go-expensesync/pkg/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func newApp(stdout, stderr io.Writer) *cli.Command {
	rt := &runtime{}
	return &cli.Command{
		Name:      "expensesync",
		Usage:     "read and edit expenses through the sync cache",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				Sources: cli.EnvVars("EXPENSESYNC_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "api-url",
				Usage: "base URL of the expense API",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "trace, debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  "broadcast",
				Usage: "invalidation broadcast: none, redis or pubsub",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print JSON instead of a table",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			return ctx, rt.init(ctx, cmd, stderr)
		},
		After: func(ctx context.Context, _ *cli.Command) error {
			return rt.close(ctx)
		},
		Commands: []*cli.Command{
			listCommand(rt),
			summaryCommand(rt),
			addCommand(rt),
			deleteCommand(rt),
			watchCommand(rt),
		},
	}
}

func listCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list expenses, newest first",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			list, err := rt.svc.Expenses(ctx)
			if err != nil {
				return err
			}
			return printExpenses(cmd, list)
		},
	}
}

func summaryCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "summary",
		Usage: "show totals per category",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rows, err := rt.svc.Summary(ctx)
			if err != nil {
				return err
			}
			return printSummary(cmd, rows)
		},
	}
}

func addCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "record an expense",
		UsageText: `expensesync add --amount 12.50 --category food [--description lunch] [--date 2024-01-01]`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "amount", Aliases: []string{"a"}, Usage: "amount, e.g. 12.50", Required: true},
			&cli.StringFlag{Name: "category", Usage: "expense category", Required: true},
			&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "free text"},
			&cli.StringFlag{Name: "date", Usage: "YYYY-MM-DD, defaults to today"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			amount, err := decimal.NewFromString(cmd.String("amount"))
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", cmd.String("amount"), err)
			}
			date := cmd.String("date")
			if date == "" {
				date = time.Now().Format(types.DateLayout)
			}
			expense := types.NewExpense{
				Amount:      amount,
				Category:    cmd.String("category"),
				Description: cmd.String("description"),
				Date:        date,
			}
			if err := rt.svc.AddExpense(ctx, expense); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.Root().Writer, "added %s %s on %s\n", expense.Amount.StringFixed(2), expense.Category, expense.Date)
			return err
		},
	}
}

func deleteCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "delete an expense by id",
		UsageText: `expensesync delete ID`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("delete takes exactly one expense id")
			}
			id, err := strconv.ParseInt(cmd.Args().First(), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid expense id %q: %w", cmd.Args().First(), err)
			}
			if err := rt.svc.DeleteExpense(ctx, id); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.Root().Writer, "deleted %d\n", id)
			return err
		},
	}
}

func watchCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "print the expense list and summary whenever they change",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			list, err := rt.svc.WatchExpenses(ctx)
			if err != nil {
				return err
			}
			defer list.Close()
			summary, err := rt.svc.WatchSummary(ctx)
			if err != nil {
				return err
			}
			defer summary.Close()

			// Both views share the output.
			var mu sync.Mutex
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return follow(gctx, rt.logger, list, func(v expenses.View[[]types.Expense]) error {
					mu.Lock()
					defer mu.Unlock()
					return printExpenses(cmd, v.Data)
				})
			})
			g.Go(func() error {
				return follow(gctx, rt.logger, summary, func(v expenses.View[[]types.SummaryRow]) error {
					mu.Lock()
					defer mu.Unlock()
					return printSummary(cmd, v.Data)
				})
			})
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

// follow prints every settled view until ctx ends. Fetch errors are reported
// and watching continues.
func follow[T any](ctx context.Context, logger zerolog.Logger, w *expenses.Watch[T], emit func(expenses.View[T]) error) error {
	v := w.Current()
	for {
		switch {
		case v.Fetching:
		case v.Status == cache.StatusFulfilled:
			if err := emit(v); err != nil {
				return err
			}
		case v.Status == cache.StatusError:
			// The coordinator does not retry; the next invalidation refetches.
			logger.Warn().Err(v.Err).Msg("Fetch failed.")
		}
		next, err := w.Next(ctx)
		if err != nil {
			return err
		}
		v = next
	}
}

func printExpenses(cmd *cli.Command, list []types.Expense) error {
	out := cmd.Root().Writer
	if cmd.Root().Bool("json") {
		return json.NewEncoder(out).Encode(list)
	}
	rows := make([][]string, 0, len(list))
	for _, e := range list {
		rows = append(rows, []string{strconv.FormatInt(e.ID, 10), e.Date, e.Category, e.Description, e.Amount.StringFixed(2)})
	}
	return writeTable(out, []string{"ID", "DATE", "CATEGORY", "DESCRIPTION", "AMOUNT"}, rows)
}

func printSummary(cmd *cli.Command, summary []types.SummaryRow) error {
	out := cmd.Root().Writer
	if cmd.Root().Bool("json") {
		return json.NewEncoder(out).Encode(summary)
	}
	rows := make([][]string, 0, len(summary))
	for _, r := range summary {
		rows = append(rows, []string{r.Category, r.Total.StringFixed(2)})
	}
	return writeTable(out, []string{"CATEGORY", "TOTAL"}, rows)
}

// writeTable renders a borderless table with a header row.
func writeTable(w io.Writer, headers []string, rows [][]string) error {
	cellStyle := lipgloss.NewStyle().Align(lipgloss.Left)
	t := table.New().
		BorderBottom(false).
		BorderTop(false).
		BorderLeft(false).
		BorderRight(false).
		Border(lipgloss.HiddenBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col > 0 {
				return cellStyle.PaddingLeft(1)
			}
			return cellStyle
		}).
		Headers(headers...).
		BorderHeader(false).
		Rows(rows...)

	_, err := fmt.Fprintln(w, t)
	return err
}

// Command expenseapi serves an in-memory expense API for local development
// and for exercising expensesync against a live server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/illmade-knight/go-expensesync/pkg/config"
	"github.com/illmade-knight/go-expensesync/pkg/expenseapi"
	"github.com/illmade-knight/go-expensesync/pkg/microservice"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	cfg, err := config.Load(os.Getenv("EXPENSESYNC_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger, err := config.NewLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger = logger.With().Str("service", "expenseapi").Logger()

	handler := expenseapi.NewHandler(expenseapi.Config{
		PositionalRows: cfg.Server.PositionalRows,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, expenseapi.NewStore(), logger)

	server := microservice.NewBaseServer(logger, cfg.HTTPPort)
	server.Handle(expenseapi.BasePath, handler)
	server.Handle(expenseapi.BasePath+"/", handler)
	if err := server.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start server.")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return 1
	}
	return 0
}

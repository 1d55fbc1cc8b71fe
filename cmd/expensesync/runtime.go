package main

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-expensesync/pkg/apiclient"
	"github.com/illmade-knight/go-expensesync/pkg/broadcast"
	"github.com/illmade-knight/go-expensesync/pkg/cache"
	"github.com/illmade-knight/go-expensesync/pkg/config"
	"github.com/illmade-knight/go-expensesync/pkg/endpoints"
	"github.com/illmade-knight/go-expensesync/pkg/expenses"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
)

// runtime holds the components shared by every subcommand.
type runtime struct {
	cfg     *config.Config
	logger  zerolog.Logger
	client  *apiclient.Client
	coord   *cache.Coordinator
	relay   *broadcast.Relay
	closers []func() error
	svc     *expenses.Service
}

func (rt *runtime) init(ctx context.Context, cmd *cli.Command, stderr io.Writer) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	if cmd.IsSet("api-url") {
		cfg.API.BaseURL = cmd.String("api-url")
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("broadcast") {
		cfg.Broadcast.Kind = cmd.String("broadcast")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	rt.cfg = cfg

	rt.logger, err = config.NewLogger(cfg.LogLevel, stderr)
	if err != nil {
		return err
	}

	rt.client, err = apiclient.NewClient(cfg.ClientConfig(), rt.logger)
	if err != nil {
		return err
	}
	rt.closers = append(rt.closers, rt.client.Close)

	coordCfg := cfg.CoordinatorConfig()
	bus, err := rt.openBus(ctx)
	if err != nil {
		return err
	}
	if bus != nil {
		rt.relay = broadcast.NewRelay(bus, rt.logger)
		coordCfg.OnInvalidate = rt.relay.OnInvalidate
	}

	rt.coord, err = cache.NewCoordinator(coordCfg, endpoints.NewExpenseRegistry(), rt.client, rt.logger)
	if err != nil {
		return err
	}
	if rt.relay != nil {
		if err := rt.relay.Start(ctx, rt.coord); err != nil {
			return fmt.Errorf("failed to start invalidation relay: %w", err)
		}
	}
	rt.svc = expenses.NewService(rt.coord, rt.logger)
	return nil
}

// openBus returns nil when broadcasting is disabled.
func (rt *runtime) openBus(ctx context.Context) (broadcast.Bus, error) {
	switch rt.cfg.Broadcast.Kind {
	case config.BroadcastRedis:
		return broadcast.NewRedisBus(ctx, &rt.cfg.Broadcast.Redis, rt.logger)
	case config.BroadcastPubsub:
		client, err := pubsub.NewClient(ctx, rt.cfg.Broadcast.Pubsub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create pubsub client: %w", err)
		}
		rt.closers = append(rt.closers, client.Close)
		return broadcast.NewPubsubBus(ctx, &rt.cfg.Broadcast.Pubsub, client, rt.logger)
	default:
		return nil, nil
	}
}

// close releases components in reverse order of creation.
func (rt *runtime) close(ctx context.Context) error {
	if rt.relay != nil {
		if err := rt.relay.Stop(ctx); err != nil {
			rt.logger.Warn().Err(err).Msg("Failed to stop invalidation relay.")
		}
	}
	if rt.coord != nil {
		m := rt.coord.Metrics()
		rt.logger.Debug().
			Interface("cache", m.Snapshot()).
			Float64("hit_rate", m.HitRate()).
			Msg("Cache statistics.")
		_ = rt.coord.Close()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Warn().Err(err).Msg("Failed to release resource.")
		}
	}
	return nil
}

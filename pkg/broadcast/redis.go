package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/illmade-knight/go-expensesync/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultRedisChannel is the channel used when none is configured.
const DefaultRedisChannel = "expensesync:invalidations"

// RedisConfig holds the configuration for the Redis bus.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// RedisBus exchanges events over a Redis PUBLISH/SUBSCRIBE channel.
type RedisBus struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger

	mu       sync.Mutex
	pubsub   *redis.PubSub
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewRedisBus connects to Redis and pings it before returning.
func NewRedisBus(ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	channel := cfg.Channel
	if channel == "" {
		channel = DefaultRedisChannel
	}
	logger.Info().Str("redis_address", cfg.Addr).Str("channel", channel).Msg("Successfully connected to Redis.")

	return &RedisBus{
		client:  rdb,
		channel: channel,
		logger:  logger.With().Str("component", "RedisBus").Logger(),
	}, nil
}

// Publish marshals event to JSON and publishes it on the channel.
func (b *RedisBus) Publish(ctx context.Context, event types.InvalidationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis channel %s: %w", b.channel, err)
	}
	return nil
}

// Start subscribes to the channel and waits for the subscription to be
// confirmed before returning.
func (b *RedisBus) Start(ctx context.Context, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return fmt.Errorf("redis bus already started")
	}

	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("failed to subscribe to redis channel %s: %w", b.channel, err)
	}

	receiveCtx, cancel := context.WithCancel(ctx)
	b.pubsub = ps
	b.cancel = cancel
	b.done = make(chan struct{})

	go func() {
		defer close(b.done)
		b.logger.Info().Str("channel", b.channel).Msg("Redis receive loop started.")
		ch := ps.Channel()
		for {
			select {
			case <-receiveCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event types.InvalidationEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn().Err(err).Msg("Dropping malformed invalidation event.")
					continue
				}
				h(receiveCtx, event)
			}
		}
	}()
	return nil
}

// Stop ends the subscription and closes the client.
func (b *RedisBus) Stop(ctx context.Context) error {
	var err error
	b.stopOnce.Do(func() {
		b.mu.Lock()
		ps, cancel, done := b.pubsub, b.cancel, b.done
		b.mu.Unlock()

		if cancel != nil {
			cancel()
			_ = ps.Close()
			select {
			case <-done:
			case <-ctx.Done():
				b.logger.Error().Msg("Timeout waiting for Redis receive loop to stop.")
			}
		}
		err = b.client.Close()
		b.logger.Info().Msg("Redis bus stopped.")
	})
	return err
}

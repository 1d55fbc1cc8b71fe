package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-expensesync/pkg/types"
	"github.com/rs/zerolog"
)

// PubsubConfig names the topic events are published to and the subscription
// this process receives from. Each process needs its own subscription.
type PubsubConfig struct {
	ProjectID      string `yaml:"project_id"`
	TopicID        string `yaml:"topic_id"`
	SubscriptionID string `yaml:"subscription_id"`
}

// PubsubBus exchanges events over Google Cloud Pub/Sub.
type PubsubBus struct {
	topic        *pubsub.Topic
	subscription *pubsub.Subscription
	logger       zerolog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewPubsubBus checks that the topic and subscription exist.
func NewPubsubBus(ctx context.Context, cfg *PubsubConfig, client *pubsub.Client, logger zerolog.Logger) (*PubsubBus, error) {
	checkCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	topic := client.Topic(cfg.TopicID)
	ok, err := topic.Exists(checkCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to check topic %s: %w", cfg.TopicID, err)
	}
	if !ok {
		return nil, fmt.Errorf("topic %s does not exist", cfg.TopicID)
	}

	sub := client.Subscription(cfg.SubscriptionID)
	ok, err = sub.Exists(checkCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to check subscription %s: %w", cfg.SubscriptionID, err)
	}
	if !ok {
		return nil, fmt.Errorf("subscription %s does not exist", cfg.SubscriptionID)
	}

	return &PubsubBus{
		topic:        topic,
		subscription: sub,
		logger: logger.With().
			Str("component", "PubsubBus").
			Str("topic_id", cfg.TopicID).
			Str("subscription_id", cfg.SubscriptionID).
			Logger(),
	}, nil
}

// Publish blocks until the server has accepted the event.
func (b *PubsubBus) Publish(ctx context.Context, event types.InvalidationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation event: %w", err)
	}
	result := b.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"origin": event.Origin},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish invalidation event: %w", err)
	}
	return nil
}

// Start receives from the subscription in a background goroutine until Stop
// is called or ctx is done. Malformed messages are acked and dropped.
func (b *PubsubBus) Start(ctx context.Context, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return fmt.Errorf("pubsub bus already started")
	}

	receiveCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})

	go func() {
		defer close(b.done)
		b.logger.Info().Msg("Pub/Sub receive goroutine started.")
		err := b.subscription.Receive(receiveCtx, func(ctx context.Context, msg *pubsub.Message) {
			// Redelivering a malformed event cannot help, so it is acked either way.
			defer msg.Ack()
			var event types.InvalidationEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				b.logger.Warn().Err(err).Str("msg_id", msg.ID).Msg("Dropping malformed invalidation event.")
				return
			}
			h(ctx, event)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			b.logger.Error().Err(err).Msg("Pub/Sub Receive call exited with error")
		}
	}()
	return nil
}

// Stop ends message receipt and flushes the publisher.
func (b *PubsubBus) Stop(ctx context.Context) error {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		cancel, done := b.cancel, b.done
		b.mu.Unlock()

		if cancel != nil {
			cancel()
			select {
			case <-done:
				b.logger.Info().Msg("Pub/Sub receive goroutine confirmed stopped.")
			case <-ctx.Done():
				b.logger.Error().Msg("Timeout waiting for Pub/Sub receive goroutine to stop.")
			}
		}
		b.topic.Stop()
	})
	return nil
}

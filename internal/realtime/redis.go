package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tourly-backend/internal/database"
	"tourly-backend/pkg/errors"
	"tourly-backend/pkg/logger"
	"tourly-backend/pkg/metrics"
)

// RedisBroker fans events out over Redis pub/sub, one channel per conversation
type RedisBroker struct {
	redis  *database.RedisClient
	logger *zap.Logger
}

// NewRedisBroker creates a broker on top of the degraded-mode aware client
func NewRedisBroker(redis *database.RedisClient, log *zap.Logger) *RedisBroker {
	return &RedisBroker{redis: redis, logger: logger.OrNop(log)}
}

// Publish sends the event to every subscriber of its conversation
func (b *RedisBroker) Publish(ctx context.Context, event Event) error {
	payload, err := Encode(event)
	if err != nil {
		metrics.ChatRealtimePublishTotal.WithLabelValues(event.Type, "error").Inc()
		return err
	}

	if err := b.redis.SafePublish(ctx, Channel(event.ConversationID), payload).Err(); err != nil {
		metrics.ChatRealtimePublishTotal.WithLabelValues(event.Type, "error").Inc()
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	metrics.ChatRealtimePublishTotal.WithLabelValues(event.Type, "success").Inc()
	return nil
}

// Subscribe listens on the conversation channel. Handlers run on a single
// goroutine owned by the subscription, in delivery order.
func (b *RedisBroker) Subscribe(ctx context.Context, conversationID uuid.UUID, handlers Handlers) (func(), error) {
	channel := Channel(conversationID)

	pubsub := b.redis.SafeSubscribe(ctx, channel)
	if pubsub == nil {
		return nil, errors.ServiceUnavailableError("Realtime updates are unavailable")
	}

	// Wait for the subscription confirmation so no event published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	metrics.ChatRealtimeSubscriptionsActive.Inc()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for msg := range pubsub.Channel() {
			event, err := Decode([]byte(msg.Payload))
			if err != nil {
				metrics.ChatRealtimeDecodeErrorsTotal.Inc()
				b.logger.Warn("Skipping malformed realtime payload",
					zap.String("channel", channel),
					zap.Error(err))
				continue
			}
			handlers.Dispatch(event)
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			if err := pubsub.Close(); err != nil {
				b.logger.Warn("Failed to close realtime subscription",
					zap.String("channel", channel),
					zap.Error(err))
			}
			<-done
			metrics.ChatRealtimeSubscriptionsActive.Dec()
		})
	}

	return unsubscribe, nil
}

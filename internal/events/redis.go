package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"controlroom/internal/logger"
)

// RedisBus publishes changes on a Redis channel and relays every change it
// receives, including its own, to local subscribers.
type RedisBus struct {
	client  *redis.Client
	channel string
	local   *LocalBus
	logger  *logger.Logger

	pubsub *redis.PubSub
	done   chan struct{}
}

func NewRedisBus(client *redis.Client, channel string, log *logger.Logger) *RedisBus {
	return &RedisBus{
		client:  client,
		channel: channel,
		local:   NewLocalBus(log),
		logger:  log.WithComponent("redis-bus"),
		done:    make(chan struct{}),
	}
}

// Start subscribes to the channel and begins relaying. It returns once the
// subscription is confirmed by the server.
func (b *RedisBus) Start(ctx context.Context) error {
	b.pubsub = b.client.Subscribe(ctx, b.channel)
	if _, err := b.pubsub.Receive(ctx); err != nil {
		_ = b.pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	messages := b.pubsub.Channel()
	go func() {
		defer close(b.done)
		for msg := range messages {
			var change Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				b.logger.Warn().Err(err).Msg("dropping malformed change event")
				continue
			}
			_ = b.local.Publish(context.Background(), change)
		}
	}()

	b.logger.Info().Str("channel", b.channel).Msg("listening for collection changes")
	return nil
}

func (b *RedisBus) Publish(ctx context.Context, change Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(fn func(Change)) func() {
	return b.local.Subscribe(fn)
}

// Close stops relaying and waits for the relay goroutine to exit.
func (b *RedisBus) Close() error {
	if b.pubsub == nil {
		return nil
	}
	err := b.pubsub.Close()
	<-b.done
	return err
}

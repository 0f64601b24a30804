// Package events carries "a collection changed" notifications between
// instances sharing the same persisted state.
package events

import (
	"context"
	"sync"
	"time"

	"controlroom/internal/logger"
)

// Change announces that the collection stored under Key was rewritten.
type Change struct {
	Key    string    `json:"key"`
	Origin string    `json:"origin"`
	At     time.Time `json:"at"`
}

// Bus is the publish/subscribe port used by repositories.
type Bus interface {
	Publish(ctx context.Context, change Change) error
	Subscribe(fn func(Change)) (unsubscribe func())
}

// LocalBus fans changes out to in-process subscribers synchronously.
type LocalBus struct {
	logger *logger.Logger

	mu          sync.RWMutex
	subscribers map[int]func(Change)
	nextID      int
}

func NewLocalBus(log *logger.Logger) *LocalBus {
	return &LocalBus{
		logger:      log.WithComponent("event-bus"),
		subscribers: make(map[int]func(Change)),
	}
}

// Publish delivers change to every subscriber before returning.
func (b *LocalBus) Publish(_ context.Context, change Change) error {
	b.mu.RLock()
	handlers := make([]func(Change), 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(change)
	}
	return nil
}

func (b *LocalBus) Subscribe(fn func(Change)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers[id] = fn
	b.mu.Unlock()

	b.logger.Debug().Int("subscriber_id", id).Msg("new subscriber")

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			b.logger.Debug().Int("subscriber_id", id).Msg("subscriber removed")
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *LocalBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

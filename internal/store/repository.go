package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"controlroom/internal/events"
	"controlroom/internal/logger"
)

// Origin tells where a loaded collection came from.
type Origin string

const (
	OriginStored Origin = "stored"
	OriginSeed   Origin = "seed"
	// OriginUnavailable means the backend could not be read; the value
	// returned alongside it is seed data.
	OriginUnavailable Origin = "unavailable"
)

// Repository persists one collection of type T under a single key.
type Repository[T any] struct {
	backend Backend
	bus     events.Bus
	key     string
	seed    func() T
	origin  string
	logger  *logger.Logger
}

// NewRepository binds a collection to key. origin identifies the writing
// instance so that its own change events can be told apart from others'.
func NewRepository[T any](backend Backend, bus events.Bus, key string, seed func() T, origin string, log *logger.Logger) *Repository[T] {
	return &Repository[T]{
		backend: backend,
		bus:     bus,
		key:     key,
		seed:    seed,
		origin:  origin,
		logger:  log.WithComponent("repository").WithField("key", key),
	}
}

func (r *Repository[T]) Key() string {
	return r.key
}

// Load returns the stored collection. An absent key, a backend failure or an
// unparseable payload all fall back to the seed value; none of them is fatal.
// Only OriginStored means the value reflects what the backend holds.
func (r *Repository[T]) Load(ctx context.Context) (T, Origin) {
	raw, err := r.backend.Get(ctx, r.key)
	if errors.Is(err, ErrNotFound) {
		return r.seed(), OriginSeed
	}
	if err != nil {
		r.logger.Warn().Err(err).Msg("read failed, using seed data")
		return r.seed(), OriginUnavailable
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		r.logger.Warn().Err(err).Msg("stored payload unreadable, using seed data")
		return r.seed(), OriginSeed
	}
	return value, OriginStored
}

// Save writes the whole collection and then announces the change.
func (r *Repository[T]) Save(ctx context.Context, value T) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", r.key, err)
	}
	if err := r.backend.Set(ctx, r.key, payload); err != nil {
		return err
	}
	if r.bus == nil {
		return nil
	}
	change := events.Change{Key: r.key, Origin: r.origin, At: time.Now().UTC()}
	if err := r.bus.Publish(ctx, change); err != nil {
		// The write already landed; other instances just see it late.
		r.logger.Warn().Err(err).Msg("change notification failed")
	}
	return nil
}

// Subscribe calls fn whenever another instance rewrites this collection.
func (r *Repository[T]) Subscribe(fn func(events.Change)) func() {
	if r.bus == nil {
		return func() {}
	}
	return r.bus.Subscribe(func(change events.Change) {
		if change.Key != r.key || change.Origin == r.origin {
			return
		}
		fn(change)
	})
}

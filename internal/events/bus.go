// ABOUTME: Typed in-memory pub/sub bus with unsubscribe handles
// ABOUTME: Delivers events synchronously in subscription order and isolates listener panics

package events

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Bus fans out values of type T to registered listeners.
// The zero value is not usable; create one with NewBus.
type Bus[T any] struct {
	mu        sync.RWMutex
	listeners map[string]func(T)
	order     []string // subscription IDs in registration order
	logger    *slog.Logger
	name      string
}

// Subscription identifies a registered listener.
type Subscription struct {
	id     string
	remove func(string)
	once   sync.Once
}

// Unsubscribe removes the listener. It is safe to call multiple times.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.remove(s.id)
	})
}

// NewBus creates a bus. The name is attached to log lines. Pass nil logger for default.
func NewBus[T any](name string, logger *slog.Logger) *Bus[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus[T]{
		listeners: make(map[string]func(T)),
		logger:    logger.With("component", "events", "bus", name),
		name:      name,
	}
}

// Subscribe registers fn and returns a handle for removing it.
func (b *Bus[T]) Subscribe(fn func(T)) *Subscription {
	id := uuid.New().String()

	b.mu.Lock()
	b.listeners[id] = fn
	b.order = append(b.order, id)
	b.mu.Unlock()

	b.logger.Debug("listener added", "sub_id", id)

	return &Subscription{id: id, remove: b.unsubscribe}
}

// Publish delivers v to every listener registered at the time of the call.
func (b *Bus[T]) Publish(v T) {
	// Copy listeners under read lock to avoid holding lock during delivery
	b.mu.RLock()
	targets := make([]func(T), 0, len(b.order))
	ids := make([]string, 0, len(b.order))
	for _, id := range b.order {
		targets = append(targets, b.listeners[id])
		ids = append(ids, id)
	}
	b.mu.RUnlock()

	for i, fn := range targets {
		b.deliver(ids[i], fn, v)
	}
}

// listenerCount returns the number of registered listeners.
func (b *Bus[T]) listenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}

// Close removes every listener.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	clear(b.listeners)
	b.order = nil

	b.logger.Debug("bus closed")
}

func (b *Bus[T]) deliver(id string, fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("listener panicked", "sub_id", id, "panic", r)
		}
	}()
	fn(v)
}

func (b *Bus[T]) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.listeners[id]; !ok {
		return
	}
	delete(b.listeners, id)
	for i, existing := range b.order {
		if existing == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}

	b.logger.Debug("listener removed", "sub_id", id)
}

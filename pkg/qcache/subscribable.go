package qcache

import (
	"sync"

	"github.com/google/uuid"
)

// Listener is a callback registered with a Subscribable.
type Listener[T any] func(T)

// Subscribable is a generic publisher with onSubscribe/onUnsubscribe hooks,
// the base every manager and cache in this package builds on (spec §4.1).
// Listener bookkeeping is a uuid-keyed map guarded by a mutex, the same shape
// in10nmem.N10nBroker uses for its channel/projection maps.
type Subscribable[T any] struct {
	mu        sync.RWMutex
	listeners map[uuid.UUID]Listener[T]

	// OnSubscribe/OnUnsubscribe are invoked after a listener is added/
	// removed, still holding no lock, so subclasses (embedders) can safely
	// call back into the Subscribable (e.g. to lazily install a platform
	// event source on the first subscriber).
	OnSubscribe   func()
	OnUnsubscribe func()
}

// NewSubscribable returns an empty Subscribable.
func NewSubscribable[T any]() *Subscribable[T] {
	return &Subscribable[T]{listeners: make(map[uuid.UUID]Listener[T])}
}

// Subscribe registers listener and returns an idempotent unsubscribe
// callback.
func (s *Subscribable[T]) Subscribe(listener Listener[T]) (unsubscribe func()) {
	id := uuid.New()
	s.mu.Lock()
	s.listeners[id] = listener
	s.mu.Unlock()

	if s.OnSubscribe != nil {
		s.OnSubscribe()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			_, existed := s.listeners[id]
			delete(s.listeners, id)
			s.mu.Unlock()
			if existed && s.OnUnsubscribe != nil {
				s.OnUnsubscribe()
			}
		})
	}
}

// HasListeners reports whether any listener is currently subscribed.
func (s *Subscribable[T]) HasListeners() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners) > 0
}

// ListenerCount returns the current subscriber count.
func (s *Subscribable[T]) ListenerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

// Emit invokes every currently-subscribed listener with value, synchronously,
// on the calling goroutine. Callers that need batching wrap Emit in
// NotifyManager.
func (s *Subscribable[T]) Emit(value T) {
	s.mu.RLock()
	snapshot := make([]Listener[T], 0, len(s.listeners))
	for _, l := range s.listeners {
		snapshot = append(snapshot, l)
	}
	s.mu.RUnlock()

	for _, l := range snapshot {
		l(value)
	}
}

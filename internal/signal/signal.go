// Package signal provides an observable value shared between the HTTP
// handlers and the websocket hub.
package signal

import (
	"sync"
)

// DefaultBuffer is the channel capacity handed to each subscriber.
const DefaultBuffer = 16

// Signal holds a value of type T and notifies subscribers when it changes.
type Signal[T comparable] struct {
	value    T
	mutex    sync.RWMutex
	watchers []chan T
}

// New creates a signal holding v.
func New[T comparable](v T) *Signal[T] {
	return &Signal[T]{
		value:    v,
		watchers: make([]chan T, 0),
	}
}

// Get returns the current value
func (s *Signal[T]) Get() T {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.value
}

// Set stores v and notifies subscribers. Setting the current value again is
// a no-op.
func (s *Signal[T]) Set(v T) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.store(v)
}

// Update applies fn to the current value under the write lock and returns
// the stored result, so concurrent updates never lose a change.
func (s *Signal[T]) Update(fn func(T) T) T {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.store(fn(s.value))
	return s.value
}

func (s *Signal[T]) store(v T) {
	if v == s.value {
		return
	}
	s.value = v

	for _, watcher := range s.watchers {
		select {
		case watcher <- v:
		default:
			// Subscriber is behind; it will see a later value.
		}
	}
}

// Subscribe returns a channel receiving every new value and a function that
// ends the subscription and closes the channel.
func (s *Signal[T]) Subscribe() (<-chan T, func()) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ch := make(chan T, DefaultBuffer)
	s.watchers = append(s.watchers, ch)

	var once sync.Once
	return ch, func() {
		once.Do(func() { s.unsubscribe(ch) })
	}
}

func (s *Signal[T]) unsubscribe(ch chan T) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i, watcher := range s.watchers {
		if watcher == ch {
			close(watcher)
			s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
			break
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (s *Signal[T]) Subscribers() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.watchers)
}

package engine

import "sync"

// Shared is an explicit handle for state deliberately shared between
// workers. Applications are otherwise private to their worker; anything
// reachable from more than one worker should sit behind a Shared.
type Shared[T any] struct {
	mu sync.RWMutex
	v  T
}

// NewShared wraps v.
func NewShared[T any](v T) *Shared[T] {
	return &Shared[T]{v: v}
}

// Load returns a copy of the current value.
func (s *Shared[T]) Load() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

// Read calls fn with the value under the read lock. fn must not retain
// references into the value.
func (s *Shared[T]) Read(fn func(T)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.v)
}

// Update calls fn with a pointer to the value under the write lock.
func (s *Shared[T]) Update(fn func(*T)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.v)
}

package memory

import (
	"context"
	"sync"
	"time"

	audit "bizreg/pkg/platform/audit"
)

const defaultCapacity = 1000

// InMemoryStore keeps the most recent events up to a fixed capacity.
type InMemoryStore struct {
	mu       sync.RWMutex
	events   []audit.Event
	capacity int
}

func NewInMemoryStore() *InMemoryStore {
	return NewInMemoryStoreWithCapacity(defaultCapacity)
}

func NewInMemoryStoreWithCapacity(capacity int) *InMemoryStore {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &InMemoryStore{capacity: capacity}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, audit.Prepare(event, time.Now()))
	if over := len(s.events) - s.capacity; over > 0 {
		s.events = append([]audit.Event(nil), s.events[over:]...)
	}
	return nil
}

// ListRecent returns the most recent N events, newest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]audit.Event, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

package optimistic

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryStore is the default StateStore: a map guarded by a mutex.
type MemoryStore[T any] struct {
	mu      sync.Mutex
	entries map[string]T
}

func NewMemoryStore[T any]() *MemoryStore[T] {
	return &MemoryStore[T]{entries: make(map[string]T)}
}

func (s *MemoryStore[T]) Get(_ context.Context, entityID string) (T, bool, error) {
	var zero T
	if s == nil {
		return zero, false, fmt.Errorf("optimistic: memory store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.entries[strings.TrimSpace(entityID)]
	if !ok {
		return zero, false, nil
	}
	return value, true, nil
}

func (s *MemoryStore[T]) Set(_ context.Context, entityID string, value T) error {
	if s == nil {
		return fmt.Errorf("optimistic: memory store is not configured")
	}
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return fmt.Errorf("optimistic: entity id is required")
	}
	s.mu.Lock()
	s.entries[entityID] = value
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore[T]) Delete(_ context.Context, entityID string) error {
	if s == nil {
		return fmt.Errorf("optimistic: memory store is not configured")
	}
	s.mu.Lock()
	delete(s.entries, strings.TrimSpace(entityID))
	s.mu.Unlock()
	return nil
}

var _ StateStore[int] = (*MemoryStore[int])(nil)

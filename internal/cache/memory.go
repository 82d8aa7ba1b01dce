package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value    string
	deadline time.Time // zero means no expiry
}

// Memory implements Cache as an in-process map with lazy expiry. Used by
// tests and by deployments that run without Redis; it is still best-effort
// only and holds no state the durable store does not.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
}

// NewMemory builds an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry)}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", ErrMiss
	}
	if !e.deadline.IsZero() && time.Now().After(e.deadline) {
		delete(m.entries, key)
		return "", ErrMiss
	}
	return e.value, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := entry{value: value}
	if ttl > 0 {
		e.deadline = time.Now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *Memory) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

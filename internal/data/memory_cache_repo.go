package data

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCacheRepo is a process-local CacheRepository. State kept here does not survive a restart.
type MemoryCacheRepo struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemoryCacheRepo creates an empty MemoryCacheRepo.
func NewMemoryCacheRepo() *MemoryCacheRepo {
	return &MemoryCacheRepo{items: make(map[string]memoryItem), now: time.Now}
}

// Set stores a copy of value under key.
func (m *MemoryCacheRepo) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = item
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the stored value, or nil when absent or expired.
func (m *MemoryCacheRepo) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.lookup(key)
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), item.value...), nil
}

// Delete removes key and reports whether it was present.
func (m *MemoryCacheRepo) Delete(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.lookup(key)
	delete(m.items, key)
	return ok, nil
}

// Health always succeeds.
func (m *MemoryCacheRepo) Health(context.Context) error { return nil }

// lookup must be called with mu held. Expired entries are evicted.
func (m *MemoryCacheRepo) lookup(key string) (memoryItem, bool) {
	item, ok := m.items[key]
	if !ok {
		return memoryItem{}, false
	}
	if !item.expiresAt.IsZero() && !m.now().Before(item.expiresAt) {
		delete(m.items, key)
		return memoryItem{}, false
	}
	return item, true
}

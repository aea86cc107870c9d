package cache

import (
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("cache: key not found")

type entry struct {
	value   []byte
	expires time.Time
}

// MemoryService is an in-process CacheService, used when no memcached is configured
type MemoryService struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemoryService() *MemoryService {
	return &MemoryService{entries: map[string]entry{}, now: time.Now}
}

func (m *MemoryService) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (m *MemoryService) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := entry{value: append([]byte(nil), value...)}
	if expiration > 0 {
		e.expires = m.now().Add(expiration)
	}
	m.entries[key] = e
	return nil
}

func (m *MemoryService) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

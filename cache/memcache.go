package cache

import (
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcacheService implements CacheService using memcache
type MemcacheService struct {
	client *memcache.Client
}

// NewMemcacheService creates a memcache service for one or more servers
func NewMemcacheService(servers ...string) *MemcacheService {
	client := memcache.New(servers...)
	client.Timeout = 500 * time.Millisecond
	return &MemcacheService{client: client}
}

// Get returns memcache.ErrCacheMiss for unknown keys
func (m *MemcacheService) Get(key string) ([]byte, error) {
	item, err := m.client.Get(key)
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

func (m *MemcacheService) Set(key string, value []byte, expiration time.Duration) error {
	return m.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(expiration.Seconds()),
	})
}

func (m *MemcacheService) Delete(key string) error {
	err := m.client.Delete(key)
	if err == memcache.ErrCacheMiss {
		return nil
	}
	return err
}

package cache

import (
	stderrors "errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"sjsage522/pricemonitor/pkg/errors"
)

// MemcacheService implements CacheService using memcache
type MemcacheService struct {
	client *memcache.Client
}

// NewMemcacheService creates a new memcache service
func NewMemcacheService(serverAddr string) *MemcacheService {
	client := memcache.New(serverAddr)
	client.Timeout = 500 * time.Millisecond

	return &MemcacheService{
		client: client,
	}
}

// Get retrieves a value from memcache
func (m *MemcacheService) Get(key string) ([]byte, error) {
	item, err := m.client.Get(sanitizeKey(key))
	if stderrors.Is(err, memcache.ErrCacheMiss) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, errors.NewCache(key, "get failed", err)
	}
	return item.Value, nil
}

// Set stores a value in memcache with an expiration time
func (m *MemcacheService) Set(key string, value []byte, expiration time.Duration) error {
	err := m.client.Set(&memcache.Item{
		Key:        sanitizeKey(key),
		Value:      value,
		Expiration: int32(expiration.Seconds()),
	})
	if err != nil {
		return errors.NewCache(key, "set failed", err)
	}
	return nil
}

// Delete removes a value from memcache
func (m *MemcacheService) Delete(key string) error {
	err := m.client.Delete(sanitizeKey(key))
	if err != nil && !stderrors.Is(err, memcache.ErrCacheMiss) {
		return errors.NewCache(key, "delete failed", err)
	}
	return nil
}

// sanitizeKey replaces characters memcache rejects in keys. Source names
// come from configuration and may contain spaces.
func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return '_'
		}
		return r
	}, key)
}

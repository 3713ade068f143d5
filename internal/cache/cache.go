// Package cache is a small bounded TTL cache for computed read models such as
// dashboard statistics.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{})
	Delete(key string)
	Clear()
	Stats() Stats
}

type Stats struct {
	Hits       int64     `json:"hits"`
	Misses     int64     `json:"misses"`
	Size       int       `json:"size"`
	LastAccess time.Time `json:"last_access"`
}

// LRUCache bounds a go-cache store to maxSize entries, evicting the entry
// closest to expiry when full.
type LRUCache struct {
	cache   *cache.Cache
	mu      sync.RWMutex
	stats   Stats
	maxSize int
}

func NewCache(maxSize int, ttl time.Duration) *LRUCache {
	return &LRUCache{
		cache:   cache.New(ttl, ttl*2),
		maxSize: maxSize,
	}
}

func (c *LRUCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.LastAccess = time.Now()

	if v, found := c.cache.Get(key); found {
		c.stats.Hits++
		return v, true
	}
	c.stats.Misses++
	return nil, false
}

func (c *LRUCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.cache.Get(key); !exists && c.maxSize > 0 && c.cache.ItemCount() >= c.maxSize {
		c.removeOldest()
	}
	c.cache.Set(key, value, cache.DefaultExpiration)
}

func (c *LRUCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Delete(key)
}

func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Flush()
	c.stats = Stats{}
}

func (c *LRUCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.stats
	s.Size = c.cache.ItemCount()
	return s
}

func (c *LRUCache) removeOldest() {
	var (
		oldestKey string
		oldestExp int64
	)
	for key, item := range c.cache.Items() {
		if oldestKey == "" || item.Expiration < oldestExp {
			oldestKey = key
			oldestExp = item.Expiration
		}
	}
	if oldestKey != "" {
		c.cache.Delete(oldestKey)
	}
}

// GetOrLoad returns the cached value for key or stores the result of load.
// Load errors are not cached.
func GetOrLoad[T any](c Cache, key string, load func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// Key joins parts into a namespaced cache key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tokenoracle/pricecore/internal/domain/entity"
	"github.com/tokenoracle/pricecore/internal/ports/outbound"
)

var _ outbound.Cache = (*Cache)(nil)

type cacheItem struct {
	entry     *entity.CacheEntry
	expiresAt time.Time
}

// Cache is an in-memory outbound.Cache with TTL eviction on read.
type Cache struct {
	mu    sync.Mutex
	items map[string]cacheItem
}

// NewCache constructs an empty Cache.
func NewCache() *Cache {
	return &Cache{items: make(map[string]cacheItem)}
}

func (c *Cache) Get(ctx context.Context, key string) (*entity.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[key]
	if !ok {
		return nil, nil
	}
	if time.Now().After(item.expiresAt) {
		delete(c.items, key)
		return nil, nil
	}
	return item.entry, nil
}

func (c *Cache) Set(ctx context.Context, key string, entry *entity.CacheEntry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Hour
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheItem{entry: entry, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (c *Cache) Ping(ctx context.Context) error {
	return nil
}

func (c *Cache) Close() error {
	return nil
}

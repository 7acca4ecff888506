// Package redis is the Cache Layer adapter (C3), backed by go-redis. Get
// treats both a miss and any client error as "no value" — callers must
// treat the cache as a pure optimization.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tokenoracle/pricecore/internal/domain/entity"
	"github.com/tokenoracle/pricecore/internal/ports/outbound"
)

var _ outbound.Cache = (*Cache)(nil)

// Config holds Redis cache configuration.
type Config struct {
	Addr     string
	Password string
	DB       int
	// DefaultTTL is used when Set is called with ttl == 0.
	DefaultTTL time.Duration
}

// ConfigDefaults returns sensible defaults, matching §3's 3600s default.
func ConfigDefaults() Config {
	return Config{
		Addr:       "localhost:6379",
		DB:         0,
		DefaultTTL: 3600 * time.Second,
	}
}

// Cache is a Redis implementation of the outbound.Cache port.
type Cache struct {
	client     *redis.Client
	defaultTTL time.Duration
	logger     *slog.Logger
}

// NewCache creates a Redis-backed Cache.
func NewCache(cfg Config, logger *slog.Logger) (*Cache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	defaultTTL := cfg.DefaultTTL
	if defaultTTL <= 0 {
		defaultTTL = ConfigDefaults().DefaultTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Cache{
		client:     client,
		defaultTTL: defaultTTL,
		logger:     logger.With("component", "redis-cache"),
	}, nil
}

// Get returns nil, nil on a miss, on a timeout, or on any client error —
// the resolver's step 1 cannot distinguish those cases.
func (c *Cache) Get(ctx context.Context, key string) (*entity.CacheEntry, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		c.logger.Debug("cache get failed, treating as miss", "key", key, "error", err)
		return nil, nil
	}

	var entry entity.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn("cache entry decode failed, treating as miss", "key", key, "error", err)
		return nil, nil
	}
	return &entry, nil
}

// Set is best-effort: a serialization or client failure is logged, never
// returned as a caller-visible error path that would abort the resolver.
func (c *Cache) Set(ctx context.Context, key string, entry *entity.CacheEntry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("cache entry encode failed", "key", key, "error", err)
		return nil
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.Debug("cache set failed", "key", key, "error", err)
		return nil
	}
	return nil
}

// Ping checks the Redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

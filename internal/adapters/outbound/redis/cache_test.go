package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/tokenoracle/pricecore/internal/adapters/outbound/redis"
	"github.com/tokenoracle/pricecore/internal/domain/entity"
)

func startCache(t *testing.T) *redis.Cache {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cache, err := redis.NewCache(redis.Config{Addr: mr.Addr(), DefaultTTL: time.Hour}, nil)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestCache_SetThenGet(t *testing.T) {
	cache := startCache(t)
	ctx := context.Background()

	entry := entity.NewCacheEntry(2500.5, entity.SourceUpstream, "2024-01-01T00:00:00Z")
	if err := cache.Set(ctx, "price:eth:ethereum:2024-01-01T00:00:00Z", entry, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := cache.Get(ctx, "price:eth:ethereum:2024-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected a cache hit")
	}
	if got.Price != 2500.5 {
		t.Errorf("expected price 2500.5, got %f", got.Price)
	}
	if got.Source != entity.SourceUpstream {
		t.Errorf("expected source upstream, got %q", got.Source)
	}
}

func TestCache_Get_Miss(t *testing.T) {
	cache := startCache(t)

	got, err := cache.Get(context.Background(), "price:nope:ethereum:2024-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil on miss, got %+v", got)
	}
}

func TestCache_Set_ExpiresAfterTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	cache, err := redis.NewCache(redis.Config{Addr: mr.Addr(), DefaultTTL: time.Hour}, nil)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	defer cache.Close()

	entry := entity.NewCacheEntry(100, entity.SourceUpstream, "2024-01-01T00:00:00Z")
	if err := cache.Set(context.Background(), "k", entry, time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mr.FastForward(2 * time.Second)

	got, err := cache.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected entry to have expired, got %+v", got)
	}
}

func TestCache_Ping(t *testing.T) {
	cache := startCache(t)

	if err := cache.Ping(context.Background()); err != nil {
		t.Errorf("expected ping to succeed, got %v", err)
	}
}

package outbound

import (
	"context"
	"time"

	"github.com/tokenoracle/pricecore/internal/domain/entity"
)

// Cache is the Cache Layer port (C3). Callers must treat it as a pure
// optimization: Get returns nil on either a miss or an unavailable backend,
// and Set is best-effort and must never block correctness.
type Cache interface {
	Get(ctx context.Context, key string) (*entity.CacheEntry, error)
	Set(ctx context.Context, key string, entry *entity.CacheEntry, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

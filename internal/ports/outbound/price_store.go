package outbound

import (
	"context"

	"github.com/tokenoracle/pricecore/internal/domain/entity"
)

// PriceStore is the Durable Price Store port (C2). Implementations must
// return null/empty without error on any read when the backing store is
// unreachable; writes may drop silently. See the postgres adapter for the
// reference implementation and the memory adapter for the degraded-mode
// stand-in used in tests and as a startup fallback.
type PriceStore interface {
	// GetByExact returns the point at exactly unixTS, or nil if absent.
	GetByExact(ctx context.Context, token string, network entity.Network, unixTS int64) (*entity.PricePoint, error)

	// GetStraddling returns the newest point at or before unixTS and the
	// oldest point at or after it. Either may be nil.
	GetStraddling(ctx context.Context, token string, network entity.Network, unixTS int64) (before, after *entity.PricePoint, err error)

	// GetRange returns all points in [fromTS, toTS] ascending by UnixTS.
	GetRange(ctx context.Context, token string, network entity.Network, fromTS, toTS int64) ([]*entity.PricePoint, error)

	// Insert stores a point, no-op on unique-key conflict. inserted is
	// false when the point already existed.
	Insert(ctx context.Context, point *entity.PricePoint) (inserted bool, err error)

	// InsertMany bulk-inserts, tolerating per-row conflicts, returning the
	// count actually inserted.
	InsertMany(ctx context.Context, points []*entity.PricePoint) (int, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// Package memory provides in-memory stand-ins for the outbound ports, used
// as the degraded-mode fallback when STORE_URI/CACHE_URI/QUEUE_URI are
// unset, and as lightweight collaborators in unit tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tokenoracle/pricecore/internal/domain/entity"
	"github.com/tokenoracle/pricecore/internal/ports/outbound"
)

var _ outbound.PriceStore = (*Store)(nil)

type storeKey struct {
	token   string
	network entity.Network
	unixTS  int64
}

// Store is an in-memory outbound.PriceStore. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	points map[storeKey]*entity.PricePoint
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{points: make(map[storeKey]*entity.PricePoint)}
}

func (s *Store) GetByExact(ctx context.Context, token string, network entity.Network, unixTS int64) (*entity.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.points[storeKey{token, network, unixTS}], nil
}

func (s *Store) GetStraddling(ctx context.Context, token string, network entity.Network, unixTS int64) (*entity.PricePoint, *entity.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var before, after *entity.PricePoint
	for k, p := range s.points {
		if k.token != token || k.network != network {
			continue
		}
		if k.unixTS <= unixTS && (before == nil || k.unixTS > before.UnixTS) {
			before = p
		}
		if k.unixTS >= unixTS && (after == nil || k.unixTS < after.UnixTS) {
			after = p
		}
	}
	return before, after, nil
}

func (s *Store) GetRange(ctx context.Context, token string, network entity.Network, fromTS, toTS int64) ([]*entity.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*entity.PricePoint
	for k, p := range s.points {
		if k.token == token && k.network == network && k.unixTS >= fromTS && k.unixTS <= toTS {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UnixTS < result[j].UnixTS })
	return result, nil
}

func (s *Store) Insert(ctx context.Context, point *entity.PricePoint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey{point.Token, point.Network, point.UnixTS}
	if _, exists := s.points[key]; exists {
		return false, nil
	}
	s.points[key] = point
	return true, nil
}

func (s *Store) InsertMany(ctx context.Context, points []*entity.PricePoint) (int, error) {
	inserted := 0
	for _, p := range points {
		ok, _ := s.Insert(ctx, p)
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

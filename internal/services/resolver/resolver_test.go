package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenoracle/pricecore/internal/adapters/outbound/memory"
	"github.com/tokenoracle/pricecore/internal/domain/entity"
	"github.com/tokenoracle/pricecore/internal/ports/outbound"
	"github.com/tokenoracle/pricecore/internal/services/interpolation"
)

// fakeUpstream is a minimal outbound.UpstreamAdapter test double: it
// returns whatever point or error was queued, and counts its calls.
type fakeUpstream struct {
	point *entity.PricePoint
	err   error
	calls int
}

func (f *fakeUpstream) FetchSpotPrice(ctx context.Context, token string, network entity.Network, at time.Time) (*entity.PricePoint, error) {
	f.calls++
	return f.point, f.err
}

func newResolver(t *testing.T, cache outbound.Cache, store *memory.Store, upstream *fakeUpstream) *Resolver {
	t.Helper()
	engine, err := interpolation.New(interpolation.Config{}, store)
	require.NoError(t, err)
	r, err := New(Config{}, cache, store, upstream, engine)
	require.NoError(t, err)
	return r
}

func TestResolve_CacheHit(t *testing.T) {
	cache := memory.NewCache()
	store := memory.NewStore()
	upstream := &fakeUpstream{}
	r := newResolver(t, cache, store, upstream)

	at := time.Unix(1700000000, 0).UTC()
	fp := entity.Fingerprint("ETH", entity.NetworkEthereum, at.Unix())
	require.NoError(t, cache.Set(context.Background(), fp, entity.NewCacheEntry(2500.5, entity.SourceUpstream, at.Format(time.RFC3339)), 0))

	result, err := r.Resolve(context.Background(), "ETH", "ethereum", &at)
	require.NoError(t, err)
	assert.Equal(t, entity.SourceCache, result.Source)
	assert.Equal(t, 2500.5, result.Price)
	assert.Equal(t, 0, upstream.calls, "cache hit must not reach upstream")
}

func TestResolve_StoreHit(t *testing.T) {
	cache := memory.NewCache()
	store := memory.NewStore()
	upstream := &fakeUpstream{}
	r := newResolver(t, cache, store, upstream)

	at := time.Unix(1700000000, 0).UTC()
	point, err := entity.NewPricePoint("ETH", entity.NetworkEthereum, at.Unix(), 2500.5, entity.SourceUpstream, 1.0)
	require.NoError(t, err)
	_, err = store.Insert(context.Background(), point)
	require.NoError(t, err)

	result, err := r.Resolve(context.Background(), "ETH", "ethereum", &at)
	require.NoError(t, err)
	assert.Equal(t, entity.SourceUpstream, result.Source)
	assert.Equal(t, 2500.5, result.Price)
	assert.Equal(t, 0, upstream.calls, "store hit must not reach upstream")

	cached, err := cache.Get(context.Background(), entity.Fingerprint("ETH", entity.NetworkEthereum, at.Unix()))
	require.NoError(t, err)
	assert.NotNil(t, cached, "store hit should populate cache")
}

func TestResolve_UpstreamHit(t *testing.T) {
	cache := memory.NewCache()
	store := memory.NewStore()
	at := time.Unix(1700000000, 0).UTC()
	point, err := entity.NewPricePoint("ETH", entity.NetworkEthereum, at.Unix(), 3000, entity.SourceUpstream, 1.0)
	require.NoError(t, err)
	upstream := &fakeUpstream{point: point}
	r := newResolver(t, cache, store, upstream)

	result, err := r.Resolve(context.Background(), "ETH", "ethereum", &at)
	require.NoError(t, err)
	assert.Equal(t, entity.SourceUpstream, result.Source)
	assert.Equal(t, 3000.0, result.Price)
	assert.Equal(t, 1, upstream.calls)

	stored, err := store.GetByExact(context.Background(), "ETH", entity.NetworkEthereum, at.Unix())
	require.NoError(t, err)
	assert.NotNil(t, stored, "upstream hit should write through to the store")
}

func TestResolve_InterpolationFallback(t *testing.T) {
	cache := memory.NewCache()
	store := memory.NewStore()
	before, err := entity.NewPricePoint("ETH", entity.NetworkEthereum, 1000, 100, entity.SourceUpstream, 1.0)
	require.NoError(t, err)
	after, err := entity.NewPricePoint("ETH", entity.NetworkEthereum, 2000, 200, entity.SourceUpstream, 1.0)
	require.NoError(t, err)
	_, err = store.Insert(context.Background(), before)
	require.NoError(t, err)
	_, err = store.Insert(context.Background(), after)
	require.NoError(t, err)

	upstream := &fakeUpstream{err: &entity.TransientError{}}
	r := newResolver(t, cache, store, upstream)

	target := time.Unix(1500, 0).UTC()
	result, err := r.Resolve(context.Background(), "ETH", "ethereum", &target)
	require.NoError(t, err)
	assert.Equal(t, entity.SourceInterpolated, result.Source)
	assert.Equal(t, 150.0, result.Price)
}

func TestResolve_ExhaustionReturnsNotFound(t *testing.T) {
	cache := memory.NewCache()
	store := memory.NewStore()
	upstream := &fakeUpstream{}
	r := newResolver(t, cache, store, upstream)

	at := time.Unix(1700000000, 0).UTC()
	_, err := r.Resolve(context.Background(), "ETH", "ethereum", &at)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestResolve_FutureTimestampRejected(t *testing.T) {
	cache := memory.NewCache()
	store := memory.NewStore()
	upstream := &fakeUpstream{}
	r := newResolver(t, cache, store, upstream)

	future := time.Now().UTC().Add(24 * time.Hour)
	_, err := r.Resolve(context.Background(), "ETH", "ethereum", &future)
	require.Error(t, err)
	var invalid *entity.InvalidInputError
	assert.ErrorAs(t, err, &invalid)
}

func TestResolve_InvalidTokenFormat(t *testing.T) {
	cache := memory.NewCache()
	store := memory.NewStore()
	upstream := &fakeUpstream{}
	r := newResolver(t, cache, store, upstream)

	at := time.Unix(1700000000, 0).UTC()
	_, err := r.Resolve(context.Background(), "!!!", "ethereum", &at)
	require.Error(t, err)
	var invalid *entity.InvalidInputError
	assert.ErrorAs(t, err, &invalid)
}

func TestResolve_InvalidNetwork(t *testing.T) {
	cache := memory.NewCache()
	store := memory.NewStore()
	upstream := &fakeUpstream{}
	r := newResolver(t, cache, store, upstream)

	at := time.Unix(1700000000, 0).UTC()
	_, err := r.Resolve(context.Background(), "ETH", "moonbeam", &at)
	require.Error(t, err)
	var invalid *entity.InvalidInputError
	assert.ErrorAs(t, err, &invalid)
}

func TestResolve_AddressTokenIsPreservedVerbatim(t *testing.T) {
	cache := memory.NewCache()
	store := memory.NewStore()
	addr := "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	point, err := entity.NewPricePoint(addr, entity.NetworkEthereum, 1700000000, 1.0, entity.SourceUpstream, 1.0)
	require.NoError(t, err)
	upstream := &fakeUpstream{point: point}
	r := newResolver(t, cache, store, upstream)

	at := time.Unix(1700000000, 0).UTC()
	result, err := r.Resolve(context.Background(), addr, "ethereum", &at)
	require.NoError(t, err)
	assert.Equal(t, addr, result.Token, "address-form tokens must not be uppercased")
}

func TestResolve_NilCacheDegradesGracefully(t *testing.T) {
	store := memory.NewStore()
	at := time.Unix(1700000000, 0).UTC()
	point, err := entity.NewPricePoint("ETH", entity.NetworkEthereum, at.Unix(), 2500, entity.SourceUpstream, 1.0)
	require.NoError(t, err)
	upstream := &fakeUpstream{point: point}
	r := newResolver(t, nil, store, upstream)

	result, err := r.Resolve(context.Background(), "ETH", "ethereum", &at)
	require.NoError(t, err)
	assert.Equal(t, 2500.0, result.Price)
}

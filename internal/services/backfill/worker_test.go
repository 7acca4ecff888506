package backfill

import (
	"context"
	"testing"
	"time"

	"github.com/tokenoracle/pricecore/internal/adapters/outbound/memory"
	"github.com/tokenoracle/pricecore/internal/domain/entity"
	"github.com/tokenoracle/pricecore/internal/ports/outbound"
	"github.com/tokenoracle/pricecore/internal/services/interpolation"
)

// stubUpstream returns a deterministic price for every request so gap
// interpolation has something concrete to compare against.
type stubUpstream struct {
	price float64
	err   error
	calls int
}

func (s *stubUpstream) FetchSpotPrice(ctx context.Context, token string, network entity.Network, at time.Time) (*entity.PricePoint, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return entity.NewPricePoint(token, network, at.Unix(), s.price, entity.SourceUpstream, 1.0)
}

type stubTransferTS struct {
	ts  time.Time
	err error
}

func (s stubTransferTS) FirstTransferTimestamp(ctx context.Context, token string, network entity.Network) (time.Time, error) {
	return s.ts, s.err
}

func newWorker(t *testing.T, store *memory.Store, upstream *stubUpstream, transferTS outbound.TransferTimestampProvider) *Worker {
	t.Helper()
	engine, err := interpolation.New(interpolation.Config{}, store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w, err := New(Config{}, store, upstream, transferTS, engine)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return w
}

func TestWorker_Run_FetchesMissingDays(t *testing.T) {
	store := memory.NewStore()
	upstream := &stubUpstream{price: 100}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	job, err := entity.NewBackfillJob("ETH", entity.NetworkEthereum, &start, &end, "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w := newWorker(t, store, upstream, stubTransferTS{})

	var progressCalls []int
	result, err := w.Run(context.Background(), job, func(pct int) { progressCalls = append(progressCalls, pct) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PricesProcessed != 3 {
		t.Errorf("expected 3 days processed, got %d", result.PricesProcessed)
	}
	if upstream.calls != 3 {
		t.Errorf("expected 3 upstream fetches, got %d", upstream.calls)
	}
	if len(progressCalls) == 0 {
		t.Error("expected at least one progress checkpoint")
	}
	if progressCalls[len(progressCalls)-1] != 100 {
		t.Errorf("expected final progress checkpoint to be 100, got %d", progressCalls[len(progressCalls)-1])
	}
}

func TestWorker_Run_SkipsAlreadyPersistedDays(t *testing.T) {
	store := memory.NewStore()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	existing, err := entity.NewPricePoint("ETH", entity.NetworkEthereum, start.Unix(), 50, entity.SourceUpstream, 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Insert(context.Background(), existing); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	upstream := &stubUpstream{price: 100}
	job, err := entity.NewBackfillJob("ETH", entity.NetworkEthereum, &start, &end, "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w := newWorker(t, store, upstream, stubTransferTS{})

	if _, err := w.Run(context.Background(), job, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upstream.calls != 1 {
		t.Errorf("expected exactly 1 fetch for the missing day, got %d", upstream.calls)
	}
}

func TestWorker_Run_InterpolatesFetchFailures(t *testing.T) {
	store := memory.NewStore()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

	before, err := entity.NewPricePoint("ETH", entity.NetworkEthereum, start.Unix(), 100, entity.SourceUpstream, 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after, err := entity.NewPricePoint("ETH", entity.NetworkEthereum, end.Unix(), 300, entity.SourceUpstream, 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Insert(context.Background(), before); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Insert(context.Background(), after); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	upstream := &stubUpstream{err: &entity.TransientError{}}
	job, err := entity.NewBackfillJob("ETH", entity.NetworkEthereum, &start, &end, "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w := newWorker(t, store, upstream, stubTransferTS{})

	result, err := w.Run(context.Background(), job, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PricesProcessed != 1 {
		t.Errorf("expected 1 interpolated middle day, got %d", result.PricesProcessed)
	}
	if len(result.Errors) == 0 {
		t.Error("expected fetch failures to be recorded in result.Errors")
	}
}

func TestWorker_ResolveStartDate_UsesJobStartDate(t *testing.T) {
	store := memory.NewStore()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	upstream := &stubUpstream{price: 100}
	job, err := entity.NewBackfillJob("ETH", entity.NetworkEthereum, &start, nil, "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w := newWorker(t, store, upstream, stubTransferTS{})

	got, err := w.resolveStartDate(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(start) {
		t.Errorf("expected job.StartDate to be used verbatim, got %v", got)
	}
}

func TestWorker_ResolveStartDate_FallsBackOnTransferTSFailure(t *testing.T) {
	store := memory.NewStore()
	upstream := &stubUpstream{price: 100}
	job, err := entity.NewBackfillJob("ETH", entity.NetworkEthereum, nil, nil, "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w := newWorker(t, store, upstream, stubTransferTS{err: entity.ErrNotFound})

	got, err := w.resolveStartDate(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantApprox := time.Now().UTC().Add(-fallbackLookback)
	if got.Sub(wantApprox) > time.Minute || wantApprox.Sub(got) > time.Minute {
		t.Errorf("expected fallback lookback of ~365d, got %v", got)
	}
}

func TestClamp(t *testing.T) {
	cases := []struct {
		min, v, max, want int
	}{
		{10, 5, 100, 10},
		{10, 50, 100, 50},
		{10, 500, 100, 100},
	}
	for _, tc := range cases {
		if got := clamp(tc.min, tc.v, tc.max); got != tc.want {
			t.Errorf("clamp(%d, %d, %d) = %d, want %d", tc.min, tc.v, tc.max, got, tc.want)
		}
	}
}

func TestStraddle(t *testing.T) {
	p1, _ := entity.NewPricePoint("ETH", entity.NetworkEthereum, 1000, 100, entity.SourceUpstream, 1.0)
	p2, _ := entity.NewPricePoint("ETH", entity.NetworkEthereum, 2000, 200, entity.SourceUpstream, 1.0)
	points := []*entity.PricePoint{p1, p2}

	before, after := straddle(points, 1500)
	if before != p1 || after != p2 {
		t.Errorf("expected straddle(1500) to return (p1, p2), got (%v, %v)", before, after)
	}

	before, after = straddle(points, 500)
	if before != nil || after != p1 {
		t.Errorf("expected straddle(500) to return (nil, p1), got (%v, %v)", before, after)
	}
}

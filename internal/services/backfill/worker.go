// Package backfill implements the Backfill Worker (C8): consumes queue
// entries, detects a token's creation date, generates a daily timestamp
// grid, diffs against the store, fetches missing points in batches,
// interpolates residual gaps, and persists the result.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tokenoracle/pricecore/internal/domain/entity"
	"github.com/tokenoracle/pricecore/internal/ports/outbound"
	"github.com/tokenoracle/pricecore/internal/services/interpolation"
	"github.com/tokenoracle/pricecore/internal/services/shared"
)

const tracerName = "github.com/tokenoracle/pricecore/internal/services/backfill"

const (
	minBatchSize = 10
	maxBatchSize = 100
	batchDivisor = 10

	interBatchDelay = 100 * time.Millisecond

	fallbackLookback = 365 * 24 * time.Hour
)

// Config configures the Worker.
type Config struct {
	Logger *slog.Logger
}

// ConfigDefaults returns the default Config.
func ConfigDefaults() Config {
	return Config{Logger: slog.Default()}
}

// Worker runs the backfill procedure described in §4.8.
type Worker struct {
	store      outbound.PriceStore
	upstream   outbound.UpstreamAdapter
	transferTS outbound.TransferTimestampProvider
	engine     *interpolation.Engine
	logger     *slog.Logger
}

// New constructs a Worker from its collaborators.
func New(config Config, store outbound.PriceStore, upstream outbound.UpstreamAdapter, transferTS outbound.TransferTimestampProvider, engine *interpolation.Engine) (*Worker, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if upstream == nil {
		return nil, fmt.Errorf("upstream is required")
	}
	if transferTS == nil {
		return nil, fmt.Errorf("transferTS is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	defaults := ConfigDefaults()
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	return &Worker{
		store:      store,
		upstream:   upstream,
		transferTS: transferTS,
		engine:     engine,
		logger:     config.Logger.With("component", "backfill-worker"),
	}, nil
}

// progressFunc reports progress checkpoints to an external observer (the
// Job Queue's status record). A nil progressFunc is a valid no-op.
type progressFunc func(percent int)

// Run executes one BackfillJob end to end, reporting progress at the
// checkpoints mandated by §4.8.
func (w *Worker) Run(ctx context.Context, job *entity.BackfillJob, report progressFunc) (*entity.BackfillResult, error) {
	if report == nil {
		report = func(int) {}
	}

	start := time.Now()
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "backfill.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("backfill.token", job.Token),
			attribute.String("backfill.network", string(job.Network)),
		),
	)
	defer func() {
		span.SetAttributes(attribute.Int64("backfill.duration_ms", time.Since(start).Milliseconds()))
		span.End()
	}()

	result := &entity.BackfillResult{}

	// Step 1: creation-date detection.
	startDate, err := w.resolveStartDate(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start date resolution failed")
		return nil, err
	}
	report(10)

	endDate := time.Now().UTC()
	if job.EndDate != nil {
		endDate = job.EndDate.UTC()
	}

	// Step 2: grid generation.
	grid := shared.DailyGrid(startDate, endDate)
	report(20)
	report(30)

	// Step 3: diff against store.
	existing, err := w.store.GetRange(ctx, job.Token, job.Network, startDate.Unix(), endDate.Unix())
	if err != nil {
		w.logger.Warn("range lookup failed, treating as empty", "error", err)
		existing = nil
	}
	present := make(map[string]*entity.PricePoint, len(existing))
	for _, p := range existing {
		present[isoDate(p.UnixTS)] = p
	}
	var missing []int64
	for _, ts := range grid {
		if _, ok := present[isoDate(ts)]; !ok {
			missing = append(missing, ts)
		}
	}
	report(40)

	span.SetAttributes(
		attribute.Int("backfill.grid_size", len(grid)),
		attribute.Int("backfill.missing_count", len(missing)),
	)

	// Step 4: batched fetch.
	fetched := make(map[int64]*entity.PricePoint)
	if len(missing) > 0 {
		batchSize := clamp(minBatchSize, int(math.Ceil(float64(len(missing))/float64(batchDivisor))), maxBatchSize)
		total := len(missing)
		for i := 0; i < total; i += batchSize {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			end := i + batchSize
			if end > total {
				end = total
			}
			batch := missing[i:end]

			for _, ts := range batch {
				at := time.Unix(ts, 0).UTC()
				point, ferr := w.upstream.FetchSpotPrice(ctx, job.Token, job.Network, at)
				if ferr != nil {
					result.AppendError(fmt.Sprintf("fetch %s: %v", at.Format(time.RFC3339), ferr))
					continue
				}
				if point != nil {
					fetched[ts] = point
				}
			}

			progressPct := 40 + int(float64(end)/float64(total)*40)
			report(progressPct)

			if end < total {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(interBatchDelay):
				}
			}
		}
	}
	report(80)

	// Step 5: gap interpolation, using the union of pre-existing and
	// freshly fetched points as straddling candidates.
	union := make([]*entity.PricePoint, 0, len(existing)+len(fetched))
	union = append(union, existing...)
	for _, p := range fetched {
		union = append(union, p)
	}

	toInsert := make([]*entity.PricePoint, 0, len(missing))
	for _, ts := range missing {
		if p, ok := fetched[ts]; ok {
			toInsert = append(toInsert, p)
			continue
		}
		before, after := straddle(union, ts)
		interpolated, ierr := interpolation.FromPair(job.Token, job.Network, ts, before, after)
		if ierr != nil {
			result.AppendError(fmt.Sprintf("interpolate %s: %v", isoDate(ts), ierr))
			continue
		}
		if interpolated != nil {
			toInsert = append(toInsert, interpolated)
		}
	}
	report(90)

	// Step 6: persist.
	inserted, err := w.store.InsertMany(ctx, toInsert)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		result.AppendError(fmt.Sprintf("persist: %v", err))
	}
	report(100)

	result.PricesProcessed = inserted
	result.RangeStart = startDate.Format(time.RFC3339)
	result.RangeEnd = endDate.Format(time.RFC3339)
	result.DurationMS = time.Since(start).Milliseconds()

	span.SetAttributes(attribute.Int("backfill.prices_processed", inserted))

	return result, nil
}

func (w *Worker) resolveStartDate(ctx context.Context, job *entity.BackfillJob) (time.Time, error) {
	if job.StartDate != nil {
		return job.StartDate.UTC(), nil
	}
	ts, err := w.transferTS.FirstTransferTimestamp(ctx, job.Token, job.Network)
	if err != nil {
		w.logger.Warn("first transfer timestamp lookup failed, falling back to 365d lookback", "token", job.Token, "network", job.Network, "error", err)
		return time.Now().UTC().Add(-fallbackLookback), nil
	}
	return ts.UTC(), nil
}

func clamp(min, v, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func isoDate(unixTS int64) string {
	return time.Unix(unixTS, 0).UTC().Format(time.DateOnly)
}

// straddle finds the newest point at or before ts and the oldest point at
// or after ts within points, mirroring PriceStore.GetStraddling but over an
// in-memory slice.
func straddle(points []*entity.PricePoint, ts int64) (before, after *entity.PricePoint) {
	for _, p := range points {
		if p.UnixTS <= ts && (before == nil || p.UnixTS > before.UnixTS) {
			before = p
		}
		if p.UnixTS >= ts && (after == nil || p.UnixTS < after.UnixTS) {
			after = p
		}
	}
	return before, after
}

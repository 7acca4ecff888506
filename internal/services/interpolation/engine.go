// Package interpolation implements the Interpolation Engine (C4): given a
// straddling pair of known price points, produce a linearly interpolated
// price and a confidence score.
package interpolation

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/tokenoracle/pricecore/internal/domain/entity"
	"github.com/tokenoracle/pricecore/internal/ports/outbound"
)

const (
	maxGapSeconds    = 7 * 24 * 60 * 60
	maxRelChange     = 0.50
	timeConfWeight   = 0.4
	stabilityWeight  = 0.4
	positionWeight   = 0.2
)

// Config configures the Engine.
type Config struct {
	Logger *slog.Logger
}

// ConfigDefaults returns the default Config.
func ConfigDefaults() Config {
	return Config{Logger: slog.Default()}
}

// Engine interpolates between straddling PricePoints read from the store.
type Engine struct {
	store  outbound.PriceStore
	logger *slog.Logger
}

// New constructs an Engine backed by store.
func New(config Config, store outbound.PriceStore) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	defaults := ConfigDefaults()
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	return &Engine{
		store:  store,
		logger: config.Logger.With("component", "interpolation-engine"),
	}, nil
}

// Interpolate obtains the straddling pair for targetTS and produces an
// interpolated PricePoint, or nil if either side is absent or the pair is
// degenerate (identical timestamps).
func (e *Engine) Interpolate(ctx context.Context, token string, network entity.Network, targetTS int64) (*entity.PricePoint, error) {
	before, after, err := e.store.GetStraddling(ctx, token, network, targetTS)
	if err != nil {
		return nil, err
	}
	return FromPair(token, network, targetTS, before, after)
}

// BatchInterpolate interpolates a slice of target timestamps, returning an
// aligned slice of results (nil entries where interpolation failed). Each
// timestamp is resolved through its own Interpolate call, so the store sees
// one straddling query per timestamp; queries are not coalesced.
func (e *Engine) BatchInterpolate(ctx context.Context, token string, network entity.Network, targetTSs []int64) ([]*entity.PricePoint, error) {
	results := make([]*entity.PricePoint, len(targetTSs))
	for i, ts := range targetTSs {
		p, err := e.Interpolate(ctx, token, network, ts)
		if err != nil {
			e.logger.Warn("interpolation failed", "token", token, "network", network, "ts", ts, "error", err)
			continue
		}
		results[i] = p
	}
	return results, nil
}

// FromPair implements the pure §4.4 procedure given an already fetched
// straddling pair, with no store access, so the backfill worker can reuse
// the same math over points it already holds in memory.
func FromPair(token string, network entity.Network, targetTS int64, before, after *entity.PricePoint) (*entity.PricePoint, error) {
	if before == nil || after == nil {
		return nil, nil
	}
	if before.UnixTS == after.UnixTS {
		return nil, nil
	}

	ratio := float64(targetTS-before.UnixTS) / float64(after.UnixTS-before.UnixTS)
	price := before.Price + (after.Price-before.Price)*ratio
	price = math.Round(price*100) / 100

	confidence := computeConfidence(targetTS, before, after)

	return entity.NewPricePoint(token, network, targetTS, price, entity.SourceInterpolated, confidence)
}

func computeConfidence(targetTS int64, before, after *entity.PricePoint) float64 {
	gap := float64(after.UnixTS - before.UnixTS)
	timeConf := math.Max(0, 1-gap/maxGapSeconds)

	var stabilityConf float64
	if before.Price == 0 {
		stabilityConf = 0
	} else {
		relChange := math.Abs(after.Price-before.Price) / before.Price
		stabilityConf = math.Max(0, 1-relChange/maxRelChange)
	}

	dBefore := float64(targetTS - before.UnixTS)
	dAfter := float64(after.UnixTS - targetTS)
	var positionConf float64
	if maxD := math.Max(dBefore, dAfter); maxD > 0 {
		positionConf = math.Min(dBefore, dAfter) / maxD
	}

	confidence := timeConfWeight*timeConf + stabilityWeight*stabilityConf + positionWeight*positionConf
	return clamp01(confidence)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

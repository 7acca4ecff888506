// Package resolver implements the Price Resolver (C5): the pipeline that
// turns (token, network, at) into a price by walking cache, store,
// upstream, and interpolation in order, writing through as it goes.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/tokenoracle/pricecore/internal/domain/entity"
	"github.com/tokenoracle/pricecore/internal/ports/inbound"
	"github.com/tokenoracle/pricecore/internal/ports/outbound"
	"github.com/tokenoracle/pricecore/internal/services/interpolation"
)

var (
	addressTokenRe = regexp.MustCompile(`^0x[0-9a-fA-F]{1,40}$`)
	symbolTokenRe  = regexp.MustCompile(`^[A-Za-z0-9]{2,10}$`)
)

// Config configures the Resolver.
type Config struct {
	Logger *slog.Logger
}

// ConfigDefaults returns the default Config.
func ConfigDefaults() Config {
	return Config{Logger: slog.Default()}
}

// Resolver implements inbound.PriceResolver.
type Resolver struct {
	cache    outbound.Cache
	store    outbound.PriceStore
	upstream outbound.UpstreamAdapter
	engine   *interpolation.Engine
	logger   *slog.Logger
}

var _ inbound.PriceResolver = (*Resolver)(nil)

// New constructs a Resolver. cache may be nil (degraded mode); store and
// upstream may also be unreachable at runtime, but the collaborators
// themselves must be non-nil so the pipeline has something to call.
func New(config Config, cache outbound.Cache, store outbound.PriceStore, upstream outbound.UpstreamAdapter, engine *interpolation.Engine) (*Resolver, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if upstream == nil {
		return nil, fmt.Errorf("upstream is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	defaults := ConfigDefaults()
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	return &Resolver{
		cache:    cache,
		store:    store,
		upstream: upstream,
		engine:   engine,
		logger:   config.Logger.With("component", "resolver"),
	}, nil
}

// Resolve runs the 5-step pipeline described in §4.5.
func (r *Resolver) Resolve(ctx context.Context, rawToken, rawNetwork string, at *time.Time) (*inbound.ResolveResult, error) {
	token, network, ts, err := r.validate(rawToken, rawNetwork, at)
	if err != nil {
		return nil, err
	}

	fingerprint := entity.Fingerprint(token, network, ts.Unix())

	// Step 1: cache probe.
	if r.cache != nil {
		if entry, cerr := r.cache.Get(ctx, fingerprint); cerr != nil {
			r.logger.Warn("cache get failed", "error", cerr)
		} else if entry != nil {
			return &inbound.ResolveResult{
				Price:     entry.Price,
				Source:    entity.SourceCache,
				Timestamp: ts,
				Token:     token,
				Network:   network,
			}, nil
		}
	}

	// Step 2: exact store lookup.
	if point, serr := r.store.GetByExact(ctx, token, network, ts.Unix()); serr != nil {
		r.logger.Warn("store lookup failed", "error", serr)
	} else if point != nil {
		r.cacheWrite(ctx, fingerprint, point)
		return toResult(point, token, network, ts), nil
	}

	// Step 3: upstream fetch. Transient errors are logged and treated as
	// "no data" so the pipeline proceeds to step 4.
	point, uerr := r.upstream.FetchSpotPrice(ctx, token, network, ts)
	if uerr != nil {
		r.logger.Warn("upstream fetch failed, treating as no data", "error", uerr)
		point = nil
	}
	if point != nil {
		if _, serr := r.store.Insert(ctx, point); serr != nil {
			r.logger.Warn("store write failed", "error", serr)
		}
		r.cacheWrite(ctx, fingerprint, point)
		return toResult(point, token, network, ts), nil
	}

	// Step 4: interpolation.
	interpolated, ierr := r.engine.Interpolate(ctx, token, network, ts.Unix())
	if ierr != nil {
		r.logger.Warn("interpolation failed", "error", ierr)
	}
	if interpolated != nil {
		if _, serr := r.store.Insert(ctx, interpolated); serr != nil {
			r.logger.Warn("store write failed", "error", serr)
		}
		r.cacheWrite(ctx, fingerprint, interpolated)
		return toResult(interpolated, token, network, ts), nil
	}

	// Step 5: exhaustion.
	return nil, entity.ErrNotFound
}

func (r *Resolver) cacheWrite(ctx context.Context, fingerprint string, point *entity.PricePoint) {
	if r.cache == nil {
		return
	}
	entry := entity.NewCacheEntry(point.Price, point.Source, point.ISODate)
	if err := r.cache.Set(ctx, fingerprint, entry, 0); err != nil {
		r.logger.Debug("cache set failed", "error", err)
	}
}

func toResult(point *entity.PricePoint, token string, network entity.Network, ts time.Time) *inbound.ResolveResult {
	return &inbound.ResolveResult{
		Price:     point.Price,
		Source:    point.Source,
		Timestamp: ts,
		Token:     token,
		Network:   network,
	}
}

func (r *Resolver) validate(rawToken, rawNetwork string, at *time.Time) (string, entity.Network, time.Time, error) {
	if !addressTokenRe.MatchString(rawToken) && !symbolTokenRe.MatchString(rawToken) {
		return "", "", time.Time{}, entity.NewInvalidInputError("token %q does not match either address or symbol format", rawToken)
	}
	network, err := entity.ParseNetwork(rawNetwork)
	if err != nil {
		return "", "", time.Time{}, entity.NewInvalidInputError("%v", err)
	}

	ts := time.Now().UTC()
	if at != nil {
		ts = at.UTC()
	}
	if ts.After(time.Now().UTC()) {
		return "", "", time.Time{}, entity.NewInvalidInputError("timestamp %s is in the future", ts.Format(time.RFC3339))
	}

	token := rawToken
	if !addressTokenRe.MatchString(rawToken) {
		token = strings.ToUpper(rawToken)
	}
	return token, network, ts, nil
}

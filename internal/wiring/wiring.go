// Package wiring builds the outbound adapters used by cmd/resolve and
// cmd/backfill-worker (and, through BuildQueue, the Job Queue for
// cmd/schedule) from the environment variables STORE_URI, CACHE_URI,
// CACHE_TTL_SECONDS, QUEUE_URI, QUEUE_NAME, UPSTREAM_API_KEY and, for an
// SQS queue, AWS_REGION. UPSTREAM_DEFAULT_NETWORK is read by cmd/resolve
// itself, not here. An
// unset STORE_URI/CACHE_URI/QUEUE_URI degrades that port to an in-memory
// stand-in rather than failing startup, per §4.7's degraded-mode design.
package wiring

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokenoracle/pricecore/internal/adapters/outbound/httpupstream"
	"github.com/tokenoracle/pricecore/internal/adapters/outbound/memory"
	"github.com/tokenoracle/pricecore/internal/adapters/outbound/postgres"
	rediscache "github.com/tokenoracle/pricecore/internal/adapters/outbound/redis"
	"github.com/tokenoracle/pricecore/internal/adapters/outbound/redisqueue"
	sqsqueue "github.com/tokenoracle/pricecore/internal/adapters/outbound/sqs"
	"github.com/tokenoracle/pricecore/internal/pkg/env"
	"github.com/tokenoracle/pricecore/internal/ports/outbound"
)

// Dependencies holds every outbound port a command may need, already
// wired to its configured (or degraded-mode) backend.
type Dependencies struct {
	Store      outbound.PriceStore
	Cache      outbound.Cache
	Queue      outbound.JobQueue
	Upstream   outbound.UpstreamAdapter
	TransferTS outbound.TransferTimestampProvider

	pool *pgxpool.Pool
}

// Close releases any held connections (currently just the pgxpool, if
// STORE_URI pointed at Postgres).
func (d *Dependencies) Close() {
	if d.pool != nil {
		d.pool.Close()
	}
}

// ReportHealth pings each subsystem once and logs whether it is reachable,
// per §4.7's degraded-mode health surface. It never returns an error: a
// degraded subsystem is a logged warning, not a startup failure.
func (d *Dependencies) ReportHealth(ctx context.Context, logger *slog.Logger) {
	checks := []struct {
		name    string
		checker interface{ Ping(context.Context) error }
	}{
		{"store", d.Store},
		{"cache", d.Cache},
		{"queue", d.Queue},
	}
	for _, c := range checks {
		if err := c.checker.Ping(ctx); err != nil {
			logger.Warn("subsystem degraded", "subsystem", c.name, "error", err)
		} else {
			logger.Info("subsystem healthy", "subsystem", c.name)
		}
	}
}

// BuildDependencies reads the environment and constructs Dependencies.
func BuildDependencies(ctx context.Context, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	store, pool, err := buildStore(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("building store: %w", err)
	}
	deps.Store = store
	deps.pool = pool

	cache, err := buildCache(logger)
	if err != nil {
		return nil, fmt.Errorf("building cache: %w", err)
	}
	deps.Cache = cache

	queue, err := buildQueue(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("building queue: %w", err)
	}
	deps.Queue = queue

	upstream, err := buildUpstream(logger)
	if err != nil {
		return nil, fmt.Errorf("building upstream: %w", err)
	}
	deps.Upstream = upstream

	deps.TransferTS = memory.NewNoTransferTimestampProvider()

	return deps, nil
}

// BuildQueue exposes buildQueue to commands (cmd/schedule) that only need
// the Job Queue, without paying for a store/upstream connection they will
// never use.
func BuildQueue(ctx context.Context, logger *slog.Logger) (outbound.JobQueue, error) {
	return buildQueue(ctx, logger)
}

func buildStore(ctx context.Context, logger *slog.Logger) (outbound.PriceStore, *pgxpool.Pool, error) {
	uri := env.Get("STORE_URI", "")
	if uri == "" {
		logger.Warn("STORE_URI not set, running with in-memory price store")
		return memory.NewStore(), nil, nil
	}

	pool, err := postgres.OpenPool(ctx, postgres.DefaultDBConfig(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to store: %w", err)
	}

	store, err := postgres.NewPriceStore(pool, logger, 0)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("price store connected", "backend", "postgres")
	return store, pool, nil
}

func buildCache(logger *slog.Logger) (outbound.Cache, error) {
	uri := env.Get("CACHE_URI", "")
	if uri == "" {
		logger.Warn("CACHE_URI not set, running with in-memory cache")
		return memory.NewCache(), nil
	}

	cfg, err := parseRedisURI(uri)
	if err != nil {
		return nil, fmt.Errorf("parsing CACHE_URI: %w", err)
	}
	if ttl := env.Get("CACHE_TTL_SECONDS", ""); ttl != "" {
		seconds, err := strconv.Atoi(ttl)
		if err != nil {
			return nil, fmt.Errorf("CACHE_TTL_SECONDS must be an integer: %w", err)
		}
		cfg.DefaultTTL = time.Duration(seconds) * time.Second
	}

	cache, err := rediscache.NewCache(cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("cache connected", "backend", "redis")
	return cache, nil
}

func buildQueue(ctx context.Context, logger *slog.Logger) (outbound.JobQueue, error) {
	uri := env.Get("QUEUE_URI", "")
	if uri == "" {
		logger.Warn("QUEUE_URI not set, running with in-memory synchronous queue")
		return memory.NewQueue(), nil
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parsing QUEUE_URI: %w", err)
	}

	switch parsed.Scheme {
	case "redis", "rediss":
		cfg, err := parseRedisQueueURI(uri)
		if err != nil {
			return nil, err
		}
		if name := env.Get("QUEUE_NAME", ""); name != "" {
			cfg.KeyPrefix = name
		}
		queue, err := redisqueue.NewQueue(cfg, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("queue connected", "backend", "redis")
		return queue, nil

	case "sqs", "https", "http":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(env.Get("AWS_REGION", "us-east-1")))
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		queue, err := sqsqueue.NewQueue(awsCfg, sqsqueue.Config{QueueURL: uri}, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("queue connected", "backend", "sqs")
		return queue, nil

	default:
		return nil, fmt.Errorf("unrecognized QUEUE_URI scheme %q (expected redis:// or an SQS queue URL)", parsed.Scheme)
	}
}

func buildUpstream(logger *slog.Logger) (outbound.UpstreamAdapter, error) {
	apiKey := env.Get("UPSTREAM_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("UPSTREAM_API_KEY environment variable is required")
	}

	cfg := httpupstream.ClientConfigDefaults()
	cfg.APIKey = apiKey
	cfg.Logger = logger

	client, err := httpupstream.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

type redisConn struct {
	addr     string
	password string
	db       int
}

func parseRedisConn(uri string) (redisConn, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return redisConn{}, err
	}
	conn := redisConn{addr: parsed.Host}
	if parsed.User != nil {
		if pw, ok := parsed.User.Password(); ok {
			conn.password = pw
		}
	}
	if db, err := dbFromPath(parsed.Path); err == nil {
		conn.db = db
	}
	return conn, nil
}

func parseRedisURI(uri string) (rediscache.Config, error) {
	conn, err := parseRedisConn(uri)
	if err != nil {
		return rediscache.Config{}, err
	}
	cfg := rediscache.ConfigDefaults()
	cfg.Addr, cfg.Password, cfg.DB = conn.addr, conn.password, conn.db
	return cfg, nil
}

func parseRedisQueueURI(uri string) (redisqueue.Config, error) {
	conn, err := parseRedisConn(uri)
	if err != nil {
		return redisqueue.Config{}, err
	}
	cfg := redisqueue.ConfigDefaults()
	cfg.Addr, cfg.Password, cfg.DB = conn.addr, conn.password, conn.db
	return cfg, nil
}

func dbFromPath(path string) (int, error) {
	if len(path) <= 1 {
		return 0, fmt.Errorf("no db index in path")
	}
	return strconv.Atoi(path[1:])
}

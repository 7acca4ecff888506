package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokenoracle/pricecore/internal/domain/entity"
	"github.com/tokenoracle/pricecore/internal/ports/outbound"
)

var _ outbound.PriceStore = (*PriceStore)(nil)

// PriceStore is a PostgreSQL implementation of the outbound.PriceStore
// port. Straddling queries rely on the (token, network, unix_ts DESC)
// index for O(log N) lookups instead of scanning.
type PriceStore struct {
	pool      *pgxpool.Pool
	logger    *slog.Logger
	batchSize int
}

// NewPriceStore creates a PriceStore. If batchSize is <= 0, a default of
// 1000 rows per insertMany transaction batch is used.
func NewPriceStore(pool *pgxpool.Pool, logger *slog.Logger, batchSize int) (*PriceStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &PriceStore{
		pool:      pool,
		logger:    logger.With("component", "postgres-price-store"),
		batchSize: batchSize,
	}, nil
}

// GetByExact returns nil, nil on both miss and store unavailability, per
// the C2 degraded-mode contract.
func (s *PriceStore) GetByExact(ctx context.Context, token string, network entity.Network, unixTS int64) (*entity.PricePoint, error) {
	point, err := s.scanOne(ctx, `
		SELECT token, network, unix_ts, iso_date, price, source, confidence, created_at, updated_at
		FROM prices
		WHERE token = $1 AND network = $2 AND unix_ts = $3
	`, token, network, unixTS)
	if err != nil {
		s.logger.Warn("exact lookup failed, degrading to no data", "error", err)
		return nil, nil
	}
	return point, nil
}

// GetStraddling returns the newest point at or before unixTS and the
// oldest at or after it, each independently possibly nil.
func (s *PriceStore) GetStraddling(ctx context.Context, token string, network entity.Network, unixTS int64) (*entity.PricePoint, *entity.PricePoint, error) {
	before, err := s.scanOne(ctx, `
		SELECT token, network, unix_ts, iso_date, price, source, confidence, created_at, updated_at
		FROM prices
		WHERE token = $1 AND network = $2 AND unix_ts <= $3
		ORDER BY unix_ts DESC
		LIMIT 1
	`, token, network, unixTS)
	if err != nil {
		s.logger.Warn("straddling lookup (before) failed, degrading to no data", "error", err)
		return nil, nil, nil
	}

	after, err := s.scanOne(ctx, `
		SELECT token, network, unix_ts, iso_date, price, source, confidence, created_at, updated_at
		FROM prices
		WHERE token = $1 AND network = $2 AND unix_ts >= $3
		ORDER BY unix_ts ASC
		LIMIT 1
	`, token, network, unixTS)
	if err != nil {
		s.logger.Warn("straddling lookup (after) failed, degrading to no data", "error", err)
		return before, nil, nil
	}

	return before, after, nil
}

// GetRange returns all points in [fromTS, toTS] ascending by unix_ts.
// Returns an empty slice, not an error, on backend unavailability.
func (s *PriceStore) GetRange(ctx context.Context, token string, network entity.Network, fromTS, toTS int64) ([]*entity.PricePoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT token, network, unix_ts, iso_date, price, source, confidence, created_at, updated_at
		FROM prices
		WHERE token = $1 AND network = $2 AND unix_ts BETWEEN $3 AND $4
		ORDER BY unix_ts ASC
	`, token, network, fromTS, toTS)
	if err != nil {
		s.logger.Warn("range query failed, degrading to empty", "error", err)
		return nil, nil
	}
	defer rows.Close()

	points, err := scanPricePoints(rows)
	if err != nil {
		s.logger.Warn("range scan failed, degrading to empty", "error", err)
		return nil, nil
	}
	return points, nil
}

// Insert stores point, treating a unique-key conflict as a logged no-op.
func (s *PriceStore) Insert(ctx context.Context, point *entity.PricePoint) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO prices (token, network, unix_ts, iso_date, price, source, confidence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (token, network, unix_ts) DO NOTHING
	`, point.Token, point.Network, point.UnixTS, point.ISODate, point.Price, point.Source, point.Confidence, point.CreatedAt, point.UpdatedAt)
	if err != nil {
		s.logger.Warn("insert failed, write silently dropped", "error", err)
		return false, nil
	}
	if tag.RowsAffected() == 0 {
		s.logger.Debug("insert no-op on existing key", "token", point.Token, "network", point.Network, "unixTS", point.UnixTS)
		return false, nil
	}
	return true, nil
}

// InsertMany bulk-inserts, tolerating per-row conflicts, returning the
// count actually inserted. Batched by s.batchSize per transaction.
func (s *PriceStore) InsertMany(ctx context.Context, points []*entity.PricePoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	total := 0
	for i := 0; i < len(points); i += s.batchSize {
		end := i + s.batchSize
		if end > len(points) {
			end = len(points)
		}
		n, err := s.insertBatch(ctx, points[i:end])
		if err != nil {
			s.logger.Warn("insertMany batch failed, continuing", "error", err)
			continue
		}
		total += n
	}
	return total, nil
}

func (s *PriceStore) insertBatch(ctx context.Context, batch []*entity.PricePoint) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(ctx, tx, s.logger)

	var sb strings.Builder
	sb.WriteString(`INSERT INTO prices (token, network, unix_ts, iso_date, price, source, confidence, created_at, updated_at) VALUES `)

	args := make([]any, 0, len(batch)*9)
	for i, p := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 9
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9)
		args = append(args, p.Token, p.Network, p.UnixTS, p.ISODate, p.Price, p.Source, p.Confidence, p.CreatedAt, p.UpdatedAt)
	}
	sb.WriteString(` ON CONFLICT (token, network, unix_ts) DO NOTHING`)

	tag, err := tx.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("inserting batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Ping reports whether the store is reachable.
func (s *PriceStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PriceStore) scanOne(ctx context.Context, query string, args ...any) (*entity.PricePoint, error) {
	var p entity.PricePoint
	var createdAt, updatedAt time.Time
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&p.Token, &p.Network, &p.UnixTS, &p.ISODate, &p.Price, &p.Source, &p.Confidence, &createdAt, &updatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.CreatedAt = createdAt
	p.UpdatedAt = updatedAt
	return &p, nil
}

func scanPricePoints(rows pgx.Rows) ([]*entity.PricePoint, error) {
	var points []*entity.PricePoint
	for rows.Next() {
		var p entity.PricePoint
		if err := rows.Scan(&p.Token, &p.Network, &p.UnixTS, &p.ISODate, &p.Price, &p.Source, &p.Confidence, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning price point: %w", err)
		}
		points = append(points, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating price points: %w", err)
	}
	return points, nil
}

func rollback(ctx context.Context, tx pgx.Tx, logger *slog.Logger) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		logger.Error("failed to rollback transaction", "error", err)
	}
}

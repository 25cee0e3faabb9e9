package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"index-compare/internal/domain"
	"index-compare/internal/storage"
)

// IndicatorStore implements storage.IndicatorStore using PostgreSQL.
type IndicatorStore struct {
	pool *Pool
}

// NewIndicatorStore creates a new IndicatorStore.
func NewIndicatorStore(pool *Pool) *IndicatorStore {
	return &IndicatorStore{pool: pool}
}

// Compile-time interface check.
var _ storage.IndicatorStore = (*IndicatorStore)(nil)

// SaveAll upserts the snapshot set produced by one calculator run.
func (s *IndicatorStore) SaveAll(ctx context.Context, snapshots []*domain.IndicatorSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	for _, snap := range snapshots {
		if snap == nil || snap.IndexCode == "" || snap.TradeDate == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO indicator_snapshots (
			index_code, index_name, trade_date, current_ratio, current_ma,
			deviation, percentile, trend, change_5d, change_10d, change_20d
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (index_code, trade_date) DO UPDATE SET
			index_name = EXCLUDED.index_name,
			current_ratio = EXCLUDED.current_ratio,
			current_ma = EXCLUDED.current_ma,
			deviation = EXCLUDED.deviation,
			percentile = EXCLUDED.percentile,
			trend = EXCLUDED.trend,
			change_5d = EXCLUDED.change_5d,
			change_10d = EXCLUDED.change_10d,
			change_20d = EXCLUDED.change_20d,
			updated_at = (EXTRACT(EPOCH FROM NOW()) * 1000)::BIGINT
	`

	for _, snap := range snapshots {
		_, err := tx.Exec(ctx, query,
			snap.IndexCode,
			snap.IndexName,
			snap.TradeDate,
			snap.CurrentRatio,
			snap.CurrentMA,
			snap.Deviation,
			snap.Percentile,
			string(snap.Trend),
			snap.Change5D,
			snap.Change10D,
			snap.Change20D,
		)
		if err != nil {
			return fmt.Errorf("upsert indicator snapshot: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetLatest retrieves the most recent snapshot per index code.
func (s *IndicatorStore) GetLatest(ctx context.Context) ([]*domain.IndicatorSnapshot, error) {
	query := `
		SELECT DISTINCT ON (index_code)
			index_code, index_name, trade_date, current_ratio, current_ma,
			deviation, percentile, trend, change_5d, change_10d, change_20d
		FROM indicator_snapshots
		ORDER BY index_code ASC, trade_date DESC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get latest snapshots: %w", err)
	}
	defer rows.Close()

	return scanIndicatorSnapshots(rows)
}

// GetByIndex retrieves the most recent snapshot for one index.
func (s *IndicatorStore) GetByIndex(ctx context.Context, indexCode string) (*domain.IndicatorSnapshot, error) {
	query := `
		SELECT index_code, index_name, trade_date, current_ratio, current_ma,
			deviation, percentile, trend, change_5d, change_10d, change_20d
		FROM indicator_snapshots
		WHERE index_code = $1
		ORDER BY trade_date DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, indexCode)
	snap, err := scanIndicatorSnapshot(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot by index: %w", err)
	}
	return snap, nil
}

// scanIndicatorSnapshot scans a single row into an IndicatorSnapshot.
func scanIndicatorSnapshot(row pgx.Row) (*domain.IndicatorSnapshot, error) {
	var snap domain.IndicatorSnapshot
	var trendStr string

	err := row.Scan(
		&snap.IndexCode,
		&snap.IndexName,
		&snap.TradeDate,
		&snap.CurrentRatio,
		&snap.CurrentMA,
		&snap.Deviation,
		&snap.Percentile,
		&trendStr,
		&snap.Change5D,
		&snap.Change10D,
		&snap.Change20D,
	)
	if err != nil {
		return nil, err
	}

	snap.Trend = domain.TrendLabel(trendStr)
	return &snap, nil
}

// scanIndicatorSnapshots scans multiple rows into a slice of IndicatorSnapshot.
func scanIndicatorSnapshots(rows pgx.Rows) ([]*domain.IndicatorSnapshot, error) {
	var snapshots []*domain.IndicatorSnapshot

	for rows.Next() {
		snap, err := scanIndicatorSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snapshots = append(snapshots, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return snapshots, nil
}

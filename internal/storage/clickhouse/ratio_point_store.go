package clickhouse

import (
	"context"
	"fmt"

	"index-compare/internal/domain"
	"index-compare/internal/storage"
)

// RatioPointStore implements storage.RatioPointStore using ClickHouse.
type RatioPointStore struct {
	conn *Conn
}

// NewRatioPointStore creates a new RatioPointStore.
func NewRatioPointStore(conn *Conn) *RatioPointStore {
	return &RatioPointStore{conn: conn}
}

// Compile-time interface check.
var _ storage.RatioPointStore = (*RatioPointStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate
// (index_code, trade_date). MergeTree does not enforce uniqueness, so the
// check runs before the batch is sent.
func (s *RatioPointStore) InsertBulk(ctx context.Context, points []*domain.RatioPoint) error {
	if len(points) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		indexCode string
		tradeDate string
	}
	seen := make(map[key]struct{})
	for _, p := range points {
		if p == nil || p.IndexCode == "" || p.TradeDate == "" {
			return storage.ErrInvalidInput
		}
		k := key{p.IndexCode, p.TradeDate}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, p := range points {
		exists, err := s.exists(ctx, p.IndexCode, p.TradeDate)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ratio_points (
			index_code, trade_date, ratio, rolling_ma
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		if err := batch.Append(p.IndexCode, p.TradeDate, p.Ratio, p.RollingMA); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByIndex retrieves all points for a target, ordered by trade_date ASC.
func (s *RatioPointStore) GetByIndex(ctx context.Context, indexCode string) ([]*domain.RatioPoint, error) {
	query := `
		SELECT index_code, trade_date, ratio, rolling_ma
		FROM ratio_points
		WHERE index_code = ?
		ORDER BY trade_date ASC
	`

	rows, err := s.conn.Query(ctx, query, indexCode)
	if err != nil {
		return nil, fmt.Errorf("query by index: %w", err)
	}
	defer rows.Close()

	return scanRatioPoints(rows)
}

// LatestDate returns the most recent trade_date for a target. Dates sort
// lexically because of the YYYYMMDD layout, so max() is the latest.
func (s *RatioPointStore) LatestDate(ctx context.Context, indexCode string) (string, error) {
	query := `
		SELECT max(trade_date) FROM ratio_points
		WHERE index_code = ?
	`

	var latest string
	if err := s.conn.QueryRow(ctx, query, indexCode).Scan(&latest); err != nil {
		return "", fmt.Errorf("query latest date: %w", err)
	}
	if latest == "" {
		return "", storage.ErrNotFound
	}
	return latest, nil
}

// exists checks if a point with the given key exists.
func (s *RatioPointStore) exists(ctx context.Context, indexCode, tradeDate string) (bool, error) {
	query := `
		SELECT count(*) FROM ratio_points
		WHERE index_code = ? AND trade_date = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, indexCode, tradeDate).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanRatioPoints scans multiple rows.
func scanRatioPoints(rows chRows) ([]*domain.RatioPoint, error) {
	var points []*domain.RatioPoint

	for rows.Next() {
		var p domain.RatioPoint

		if err := rows.Scan(&p.IndexCode, &p.TradeDate, &p.Ratio, &p.RollingMA); err != nil {
			return nil, fmt.Errorf("scan ratio point row: %w", err)
		}

		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ratio point rows: %w", err)
	}

	return points, nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"index-compare/internal/domain"
	"index-compare/internal/storage"
)

// DailyCloseStore implements storage.DailyCloseStore using PostgreSQL.
type DailyCloseStore struct {
	pool *Pool
}

// NewDailyCloseStore creates a new DailyCloseStore.
func NewDailyCloseStore(pool *Pool) *DailyCloseStore {
	return &DailyCloseStore{pool: pool}
}

// Compile-time interface check.
var _ storage.DailyCloseStore = (*DailyCloseStore)(nil)

// InsertBulk adds close rows atomically. Fails entire batch on any duplicate.
func (s *DailyCloseStore) InsertBulk(ctx context.Context, closes []*domain.DailyClose) error {
	if len(closes) == 0 {
		return nil
	}

	for _, c := range closes {
		if c == nil || c.IndexCode == "" || c.TradeDate == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO daily_closes (index_code, trade_date, close)
		VALUES ($1, $2, $3)
	`

	for _, c := range closes {
		_, err := tx.Exec(ctx, query, c.IndexCode, c.TradeDate, c.Close)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert daily close in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByIndex retrieves all closes for an index, ordered by trade_date ASC.
func (s *DailyCloseStore) GetByIndex(ctx context.Context, indexCode string) ([]*domain.DailyClose, error) {
	query := `
		SELECT index_code, trade_date, close, created_at
		FROM daily_closes
		WHERE index_code = $1
		ORDER BY trade_date ASC
	`

	rows, err := s.pool.Query(ctx, query, indexCode)
	if err != nil {
		return nil, fmt.Errorf("get closes by index: %w", err)
	}
	defer rows.Close()

	return scanDailyCloses(rows)
}

// GetSeries retrieves every close row and pivots it into the aligned series.
func (s *DailyCloseStore) GetSeries(ctx context.Context) (*domain.AlignedSeries, error) {
	query := `
		SELECT index_code, trade_date, close, created_at
		FROM daily_closes
		ORDER BY trade_date ASC, index_code ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get close series: %w", err)
	}
	defer rows.Close()

	closes, err := scanDailyCloses(rows)
	if err != nil {
		return nil, err
	}
	return storage.BuildAlignedSeries(closes), nil
}

// LatestDate returns the most recent trade_date for an index.
func (s *DailyCloseStore) LatestDate(ctx context.Context, indexCode string) (string, error) {
	query := `
		SELECT MAX(trade_date)
		FROM daily_closes
		WHERE index_code = $1
	`

	var latest *string
	if err := s.pool.QueryRow(ctx, query, indexCode).Scan(&latest); err != nil {
		return "", fmt.Errorf("get latest close date: %w", err)
	}
	if latest == nil {
		return "", storage.ErrNotFound
	}
	return *latest, nil
}

// scanDailyCloses scans multiple rows into a slice of DailyClose.
func scanDailyCloses(rows pgx.Rows) ([]*domain.DailyClose, error) {
	var closes []*domain.DailyClose

	for rows.Next() {
		var c domain.DailyClose

		err := rows.Scan(
			&c.IndexCode,
			&c.TradeDate,
			&c.Close,
			&c.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan daily close row: %w", err)
		}

		closes = append(closes, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily close rows: %w", err)
	}

	return closes, nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"index-compare/internal/domain"
	"index-compare/internal/storage"
)

// ConclusionStore implements storage.ConclusionStore using PostgreSQL. The
// nested assessments flatten into one row per (index_code, trade_date).
type ConclusionStore struct {
	pool *Pool
}

// NewConclusionStore creates a new ConclusionStore.
func NewConclusionStore(pool *Pool) *ConclusionStore {
	return &ConclusionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ConclusionStore = (*ConclusionStore)(nil)

// SaveAll upserts the conclusion set produced by one analyzer run.
func (s *ConclusionStore) SaveAll(ctx context.Context, conclusions []*domain.Conclusion) error {
	if len(conclusions) == 0 {
		return nil
	}

	for _, c := range conclusions {
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
		INSERT INTO conclusions (
			index_code, index_name, trade_date,
			percentile_value, percentile_status, percentile_score, percentile_action, percentile_description,
			trend_label, trend_score, trend_description,
			deviation_value, deviation_status, deviation_score, deviation_description,
			composite_score, recommendation, recommendation_icon, recommendation_action,
			summary
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (index_code, trade_date) DO UPDATE SET
			index_name = EXCLUDED.index_name,
			percentile_value = EXCLUDED.percentile_value,
			percentile_status = EXCLUDED.percentile_status,
			percentile_score = EXCLUDED.percentile_score,
			percentile_action = EXCLUDED.percentile_action,
			percentile_description = EXCLUDED.percentile_description,
			trend_label = EXCLUDED.trend_label,
			trend_score = EXCLUDED.trend_score,
			trend_description = EXCLUDED.trend_description,
			deviation_value = EXCLUDED.deviation_value,
			deviation_status = EXCLUDED.deviation_status,
			deviation_score = EXCLUDED.deviation_score,
			deviation_description = EXCLUDED.deviation_description,
			composite_score = EXCLUDED.composite_score,
			recommendation = EXCLUDED.recommendation,
			recommendation_icon = EXCLUDED.recommendation_icon,
			recommendation_action = EXCLUDED.recommendation_action,
			summary = EXCLUDED.summary,
			updated_at = (EXTRACT(EPOCH FROM NOW()) * 1000)::BIGINT
	`

	for _, c := range conclusions {
		_, err := tx.Exec(ctx, query,
			c.IndexCode,
			c.IndexName,
			c.TradeDate,
			c.Percentile.Value,
			string(c.Percentile.Status),
			c.Percentile.Score,
			c.Percentile.Action,
			c.Percentile.Description,
			string(c.Trend.Label),
			c.Trend.Score,
			c.Trend.Description,
			c.Deviation.Value,
			string(c.Deviation.Status),
			c.Deviation.Score,
			c.Deviation.Description,
			c.CompositeScore,
			string(c.Recommendation.Label),
			c.Recommendation.Icon,
			c.Recommendation.Action,
			c.Summary,
		)
		if err != nil {
			return fmt.Errorf("upsert conclusion: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetLatest retrieves the most recent conclusion per index code.
func (s *ConclusionStore) GetLatest(ctx context.Context) ([]*domain.Conclusion, error) {
	query := `
		SELECT DISTINCT ON (index_code)
			index_code, index_name, trade_date,
			percentile_value, percentile_status, percentile_score, percentile_action, percentile_description,
			trend_label, trend_score, trend_description,
			deviation_value, deviation_status, deviation_score, deviation_description,
			composite_score, recommendation, recommendation_icon, recommendation_action,
			summary
		FROM conclusions
		ORDER BY index_code ASC, trade_date DESC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get latest conclusions: %w", err)
	}
	defer rows.Close()

	return scanConclusions(rows)
}

// GetByIndex retrieves the most recent conclusion for one index.
func (s *ConclusionStore) GetByIndex(ctx context.Context, indexCode string) (*domain.Conclusion, error) {
	query := `
		SELECT index_code, index_name, trade_date,
			percentile_value, percentile_status, percentile_score, percentile_action, percentile_description,
			trend_label, trend_score, trend_description,
			deviation_value, deviation_status, deviation_score, deviation_description,
			composite_score, recommendation, recommendation_icon, recommendation_action,
			summary
		FROM conclusions
		WHERE index_code = $1
		ORDER BY trade_date DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, indexCode)
	c, err := scanConclusion(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get conclusion by index: %w", err)
	}
	return c, nil
}

// scanConclusion scans a single row into a Conclusion.
func scanConclusion(row pgx.Row) (*domain.Conclusion, error) {
	var c domain.Conclusion
	var pctStatus, trendLabel, devStatus, recLabel string

	err := row.Scan(
		&c.IndexCode,
		&c.IndexName,
		&c.TradeDate,
		&c.Percentile.Value,
		&pctStatus,
		&c.Percentile.Score,
		&c.Percentile.Action,
		&c.Percentile.Description,
		&trendLabel,
		&c.Trend.Score,
		&c.Trend.Description,
		&c.Deviation.Value,
		&devStatus,
		&c.Deviation.Score,
		&c.Deviation.Description,
		&c.CompositeScore,
		&recLabel,
		&c.Recommendation.Icon,
		&c.Recommendation.Action,
		&c.Summary,
	)
	if err != nil {
		return nil, err
	}

	c.Percentile.Status = domain.PercentileStatus(pctStatus)
	c.Trend.Label = domain.TrendLabel(trendLabel)
	c.Deviation.Status = domain.DeviationStatus(devStatus)
	c.Recommendation.Label = domain.Recommendation(recLabel)
	return &c, nil
}

// scanConclusions scans multiple rows into a slice of Conclusion.
func scanConclusions(rows pgx.Rows) ([]*domain.Conclusion, error) {
	var conclusions []*domain.Conclusion

	for rows.Next() {
		c, err := scanConclusion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conclusion row: %w", err)
		}
		conclusions = append(conclusions, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conclusion rows: %w", err)
	}

	return conclusions, nil
}

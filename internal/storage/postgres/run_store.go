package postgres

import (
	"context"
	"fmt"

	"index-compare/internal/domain"
	"index-compare/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

// Insert adds a finished run record. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(ctx context.Context, run *domain.PipelineRun) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO pipeline_runs (
			run_id, status, started_at, finished_at,
			indices_fetched, rows_appended, targets_analyzed, report_path, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		run.RunID,
		string(run.Status),
		run.StartedAt,
		run.FinishedAt,
		run.IndicesFetched,
		run.RowsAppended,
		run.TargetsAnalyzed,
		run.ReportPath,
		run.Error,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert pipeline run: %w", err)
	}
	return nil
}

// GetRecent retrieves up to limit runs, ordered by started_at DESC.
func (s *RunStore) GetRecent(ctx context.Context, limit int) ([]*domain.PipelineRun, error) {
	query := `
		SELECT run_id, status, started_at, finished_at,
			indices_fetched, rows_appended, targets_analyzed, report_path, error
		FROM pipeline_runs
		ORDER BY started_at DESC, run_id DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.PipelineRun
	for rows.Next() {
		var r domain.PipelineRun
		var statusStr string

		err := rows.Scan(
			&r.RunID,
			&statusStr,
			&r.StartedAt,
			&r.FinishedAt,
			&r.IndicesFetched,
			&r.RowsAppended,
			&r.TargetsAnalyzed,
			&r.ReportPath,
			&r.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("scan pipeline run row: %w", err)
		}

		r.Status = domain.RunStatus(statusStr)
		runs = append(runs, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipeline run rows: %w", err)
	}

	return runs, nil
}

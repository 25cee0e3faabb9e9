package storage

import (
	"context"

	"index-compare/internal/domain"
)

// DailyCloseStore provides access to daily_closes storage. The close series
// is append-only: runs only ever add new trading days.
type DailyCloseStore interface {
	// InsertBulk adds close rows. Fails entire batch on duplicate (index_code, trade_date).
	InsertBulk(ctx context.Context, closes []*domain.DailyClose) error

	// GetByIndex retrieves all closes for an index, ordered by trade_date ASC.
	GetByIndex(ctx context.Context, indexCode string) ([]*domain.DailyClose, error)

	// GetSeries assembles the aligned series over every persisted date, dates ASC.
	GetSeries(ctx context.Context) (*domain.AlignedSeries, error)

	// LatestDate returns the most recent trade_date for an index. Returns ErrNotFound if none.
	LatestDate(ctx context.Context, indexCode string) (string, error)
}

// IndicatorStore provides access to indicator_snapshots storage. Snapshots
// are recomputed in full every run and replace any prior row for the same
// (index_code, trade_date).
type IndicatorStore interface {
	// SaveAll upserts the snapshot set produced by one calculator run.
	SaveAll(ctx context.Context, snapshots []*domain.IndicatorSnapshot) error

	// GetLatest retrieves the most recent snapshot per index code.
	GetLatest(ctx context.Context) ([]*domain.IndicatorSnapshot, error)

	// GetByIndex retrieves the most recent snapshot for one index. Returns ErrNotFound if none.
	GetByIndex(ctx context.Context, indexCode string) (*domain.IndicatorSnapshot, error)
}

// ConclusionStore provides access to conclusions storage. Same replace
// semantics as IndicatorStore.
type ConclusionStore interface {
	// SaveAll upserts the conclusion set produced by one analyzer run.
	SaveAll(ctx context.Context, conclusions []*domain.Conclusion) error

	// GetLatest retrieves the most recent conclusion per index code.
	GetLatest(ctx context.Context) ([]*domain.Conclusion, error)

	// GetByIndex retrieves the most recent conclusion for one index. Returns ErrNotFound if not exists.
	GetByIndex(ctx context.Context, indexCode string) (*domain.Conclusion, error)
}

// RunStore provides access to pipeline_runs storage.
type RunStore interface {
	// Insert adds a finished run record. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, run *domain.PipelineRun) error

	// GetRecent retrieves up to limit runs, ordered by started_at DESC.
	GetRecent(ctx context.Context, limit int) ([]*domain.PipelineRun, error)
}

// RatioPointStore provides access to ratio_points analytics storage. The
// series is append-only: runs persist only points past the latest known date.
type RatioPointStore interface {
	// InsertBulk adds ratio points. Fails entire batch on duplicate (index_code, trade_date).
	InsertBulk(ctx context.Context, points []*domain.RatioPoint) error

	// GetByIndex retrieves all points for a target, ordered by trade_date ASC.
	GetByIndex(ctx context.Context, indexCode string) ([]*domain.RatioPoint, error)

	// LatestDate returns the most recent trade_date for a target. Returns ErrNotFound if none.
	LatestDate(ctx context.Context, indexCode string) (string, error)
}

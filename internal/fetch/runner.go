package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"index-compare/internal/domain"
	"index-compare/internal/storage"
)

// defaultStartDate is the beginning of history when nothing is persisted yet.
const defaultStartDate = "20150101"

// IndexStatus classifies one index's acquisition outcome.
type IndexStatus string

const (
	StatusFetched  IndexStatus = "fetched"    // new rows appended
	StatusUpToDate IndexStatus = "up_to_date" // source had nothing newer
	StatusFallback IndexStatus = "fallback"   // fetch failed, persisted history carries the index
	StatusSkipped  IndexStatus = "skipped"    // fetch failed or empty with no history, index dropped
)

// IndexResult reports one index's acquisition outcome: rows appended, the
// fetched date range and how many source calls it took.
type IndexResult struct {
	Code     string
	Status   IndexStatus
	Rows     int
	From     string
	To       string
	Attempts int
}

// Result is the acquisition stage output: the aligned gap-filled series plus
// per-index outcomes in config order.
type Result struct {
	Series  *domain.AlignedSeries
	Indices []IndexResult
}

// Runner drives the acquisition stage. Each configured index is fetched
// incrementally (only dates past the latest persisted one), appended to the
// store, and the merged series is filled forward then backward.
type Runner struct {
	source        BarSource
	store         storage.DailyCloseStore
	indices       []domain.IndexSpec
	startDate     string
	retryTimes    int
	retryInterval time.Duration
	logger        zerolog.Logger
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Source    BarSource
	Store     storage.DailyCloseStore
	Indices   []domain.IndexSpec
	StartDate string // YYYYMMDD, default 20150101

	// RetryTimes is the number of additional attempts after a failed source
	// call; RetryInterval is the fixed sleep between attempts.
	RetryTimes    int
	RetryInterval time.Duration

	Logger zerolog.Logger // zero value disables logging
}

// NewRunner creates a new acquisition runner.
func NewRunner(opts RunnerOptions) *Runner {
	startDate := opts.StartDate
	if startDate == "" {
		startDate = defaultStartDate
	}

	return &Runner{
		source:        opts.Source,
		store:         opts.Store,
		indices:       opts.Indices,
		startDate:     startDate,
		retryTimes:    opts.RetryTimes,
		retryInterval: opts.RetryInterval,
		logger:        opts.Logger,
	}
}

// Run fetches every configured index and returns the merged series.
//
// A failed index is fatal only when it has no persisted history to fall back
// on and is not marked optional. An acquired set without the benchmark, or
// without a single target, is fatal regardless: there is nothing downstream
// stages could compute.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	started := time.Now()
	r.logger.Info().
		Int("indices", len(r.indices)).
		Str("start_date", r.startDate).
		Msg("starting acquisition")

	results := make([]IndexResult, 0, len(r.indices))
	for _, spec := range r.indices {
		res, err := r.fetchIndex(ctx, spec)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	series, err := r.store.GetSeries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load series: %w", err)
	}

	// Persisted history can hold indices no longer configured; drop them.
	configured := make(map[string]bool, len(r.indices))
	for _, spec := range r.indices {
		configured[spec.Code] = true
	}
	for code := range series.Closes {
		if !configured[code] {
			delete(series.Closes, code)
		}
	}

	if series.Len() == 0 {
		return nil, errors.New("no close data acquired for any index")
	}

	var benchmark string
	for _, spec := range r.indices {
		if spec.Benchmark {
			benchmark = spec.Code
		}
	}
	if _, ok := series.Column(benchmark); !ok {
		return nil, fmt.Errorf("benchmark %s has no data", benchmark)
	}
	if len(series.Closes) < 2 {
		return nil, errors.New("no target series acquired")
	}

	series.Fill()

	r.logger.Info().
		Int("rows", series.Len()).
		Int("indices", len(series.Closes)).
		Str("through", series.LatestDate()).
		Dur("elapsed", time.Since(started)).
		Msg("acquisition complete")

	return &Result{Series: series, Indices: results}, nil
}

// fetchIndex acquires one index. The returned error is fatal for the run;
// recoverable outcomes (fallback, optional skip) come back in the result.
func (r *Runner) fetchIndex(ctx context.Context, spec domain.IndexSpec) (IndexResult, error) {
	res := IndexResult{Code: spec.Code}

	startDate := r.startDate
	havePersisted := false
	latest, err := r.store.LatestDate(ctx, spec.Code)
	switch {
	case err == nil:
		havePersisted = true
		next, derr := domain.NextTradeDate(latest)
		if derr != nil {
			return res, fmt.Errorf("latest date for %s: %w", spec.Code, derr)
		}
		startDate = next
	case errors.Is(err, storage.ErrNotFound):
		// Nothing persisted: full fetch from the configured start.
	default:
		return res, fmt.Errorf("latest date for %s: %w", spec.Code, err)
	}

	bars, attempts, fetchErr := r.fetchWithRetry(ctx, spec.Code, startDate)
	res.Attempts = attempts
	if fetchErr != nil {
		if ctx.Err() != nil {
			return res, fetchErr
		}
		if havePersisted {
			r.logger.Warn().Err(fetchErr).
				Str("index", spec.Code).
				Int("attempts", attempts).
				Msg("fetch failed, continuing on persisted history")
			res.Status = StatusFallback
			return res, nil
		}
		if spec.Optional {
			r.logger.Warn().Err(fetchErr).
				Str("index", spec.Code).
				Int("attempts", attempts).
				Msg("optional index failed, skipping")
			res.Status = StatusSkipped
			return res, nil
		}
		return res, fmt.Errorf("required index %s: %w", spec.Code, fetchErr)
	}

	if len(bars) == 0 {
		if havePersisted {
			r.logger.Debug().Str("index", spec.Code).Msg("already up to date")
			res.Status = StatusUpToDate
		} else {
			r.logger.Warn().Str("index", spec.Code).Str("start_date", startDate).
				Msg("source has no data for index, skipping")
			res.Status = StatusSkipped
		}
		return res, nil
	}

	closes := make([]*domain.DailyClose, 0, len(bars))
	for _, b := range bars {
		closes = append(closes, &domain.DailyClose{
			IndexCode: b.IndexCode,
			TradeDate: b.TradeDate,
			Close:     b.Close,
		})
	}
	if err := r.store.InsertBulk(ctx, closes); err != nil {
		return res, fmt.Errorf("persist %s: %w", spec.Code, err)
	}

	res.Status = StatusFetched
	res.Rows = len(bars)
	res.From = bars[0].TradeDate
	res.To = bars[len(bars)-1].TradeDate
	r.logger.Info().
		Str("index", spec.Code).
		Int("rows", res.Rows).
		Str("from", res.From).
		Str("to", res.To).
		Int("attempts", attempts).
		Msg("index fetched")
	return res, nil
}

// fetchWithRetry calls the source up to retryTimes+1 times with a fixed
// sleep between attempts. It reports how many calls were made.
func (r *Runner) fetchWithRetry(ctx context.Context, code, startDate string) ([]*domain.DailyBar, int, error) {
	attempts := 0
	var lastErr error

	for attempt := 0; attempt <= r.retryTimes; attempt++ {
		if attempt > 0 {
			r.logger.Warn().Err(lastErr).
				Str("index", code).
				Int("attempt", attempt+1).
				Msg("retrying fetch")
			select {
			case <-ctx.Done():
				return nil, attempts, ctx.Err()
			case <-time.After(r.retryInterval):
			}
		}

		attempts++
		bars, err := r.source.DailyBars(ctx, code, startDate, "")
		if err == nil {
			return bars, attempts, nil
		}
		lastErr = err
	}

	return nil, attempts, lastErr
}

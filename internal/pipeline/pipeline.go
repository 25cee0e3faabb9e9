// Package pipeline provides E2E batch orchestration.
// It coordinates: acquisition -> indicators -> analysis -> report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"index-compare/internal/analysis"
	"index-compare/internal/config"
	"index-compare/internal/domain"
	"index-compare/internal/fetch"
	"index-compare/internal/indicators"
	"index-compare/internal/observability"
	"index-compare/internal/report"
	"index-compare/internal/storage"
)

// Stage names used in logs, metrics and error chains.
const (
	StageFetch   = "fetch"
	StageCalc    = "calc"
	StageAnalyze = "analyze"
	StageReport  = "report"
)

// processedCSVName is the per-date processed-series artifact in the data dir.
const processedCSVName = "processed_data.csv"

// Pipeline coordinates the batch stages. Each stage consumes the previous
// stage's persisted artifact, so the single-stage methods also back the
// standalone CLI subcommands.
type Pipeline struct {
	source      fetch.BarSource
	closes      storage.DailyCloseStore
	ratios      storage.RatioPointStore
	indicators  storage.IndicatorStore
	conclusions storage.ConclusionStore
	runs        storage.RunStore
	cfg         config.Config
	logger      zerolog.Logger
}

// Options for creating a Pipeline.
type Options struct {
	Source      fetch.BarSource
	Closes      storage.DailyCloseStore
	Ratios      storage.RatioPointStore
	Indicators  storage.IndicatorStore
	Conclusions storage.ConclusionStore
	Runs        storage.RunStore
	Config      config.Config
	Logger      zerolog.Logger // zero value disables logging
}

// New creates a new Pipeline.
func New(opts Options) *Pipeline {
	return &Pipeline{
		source:      opts.Source,
		closes:      opts.Closes,
		ratios:      opts.Ratios,
		indicators:  opts.Indicators,
		conclusions: opts.Conclusions,
		runs:        opts.Runs,
		cfg:         opts.Config,
		logger:      opts.Logger,
	}
}

// Run executes the full batch: fetch -> calc -> analyze -> report. The run is
// recorded in the run store whichever way it ends; the record is returned
// alongside the first stage error.
func (p *Pipeline) Run(ctx context.Context) (*domain.PipelineRun, error) {
	run := &domain.PipelineRun{
		RunID:     uuid.NewString(),
		Status:    domain.RunRunning,
		StartedAt: time.Now().UnixMilli(),
	}
	logger := p.logger.With().Str("run_id", run.RunID).Logger()
	logger.Info().Msg("pipeline run started")

	err := p.execute(ctx, run, logger)

	finished := time.Now().UnixMilli()
	run.FinishedAt = &finished
	if err != nil {
		run.Status = domain.RunFailed
		msg := err.Error()
		run.Error = &msg
	} else {
		run.Status = domain.RunSucceeded
		observability.MarkRunSuccess()
	}

	if insErr := p.runs.Insert(ctx, run); insErr != nil {
		logger.Error().Err(insErr).Msg("run record not persisted")
	}

	if err != nil {
		logger.Error().Err(err).Msg("pipeline run failed")
		return run, err
	}
	logger.Info().
		Int("indices_fetched", run.IndicesFetched).
		Int("rows_appended", run.RowsAppended).
		Int("targets_analyzed", run.TargetsAnalyzed).
		Str("report", *run.ReportPath).
		Msg("pipeline run finished")
	return run, nil
}

func (p *Pipeline) execute(ctx context.Context, run *domain.PipelineRun, logger zerolog.Logger) error {
	fetched, err := p.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("%s stage: %w", StageFetch, err)
	}
	for _, idx := range fetched.Indices {
		if idx.Status != fetch.StatusSkipped {
			run.IndicesFetched++
		}
		run.RowsAppended += idx.Rows
	}

	if _, err := p.Calc(ctx); err != nil {
		return fmt.Errorf("%s stage: %w", StageCalc, err)
	}

	conclusions, err := p.Analyze(ctx)
	if err != nil {
		return fmt.Errorf("%s stage: %w", StageAnalyze, err)
	}
	run.TargetsAnalyzed = len(conclusions)

	path, err := p.Report(ctx)
	if err != nil {
		return fmt.Errorf("%s stage: %w", StageReport, err)
	}
	run.ReportPath = &path

	logger.Debug().Str("report", path).Msg("all stages completed")
	return nil
}

// Fetch runs the acquisition stage: incremental per-index fetch into the
// close store, merged into the aligned gap-filled series.
func (p *Pipeline) Fetch(ctx context.Context) (res *fetch.Result, err error) {
	start := time.Now()
	defer func() {
		observability.RecordStage(StageFetch, stageStatus(err), time.Since(start).Seconds())
	}()

	runner := fetch.NewRunner(fetch.RunnerOptions{
		Source:        p.source,
		Store:         p.closes,
		Indices:       p.cfg.IndexSpecs(),
		StartDate:     p.cfg.API.StartDate,
		RetryTimes:    p.cfg.API.RetryTimes,
		RetryInterval: time.Duration(p.cfg.API.RetryIntervalSec) * time.Second,
		Logger:        p.logger,
	})
	res, err = runner.Run(ctx)
	if err != nil {
		return nil, err
	}
	for _, idx := range res.Indices {
		observability.RecordIndexOutcome(idx.Code, string(idx.Status), idx.Rows, idx.Attempts)
	}
	return res, nil
}

// Calc runs the indicator stage against the persisted close series: ratio
// points are appended past the latest known date, snapshots are upserted.
func (p *Pipeline) Calc(ctx context.Context) (res *indicators.Result, err error) {
	start := time.Now()
	defer func() {
		observability.RecordStage(StageCalc, stageStatus(err), time.Since(start).Seconds())
	}()

	series, err := p.closes.GetSeries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load close series: %w", err)
	}
	if series.Len() == 0 {
		return nil, errors.New("no close data; run fetch first")
	}
	series.Fill()

	calc := indicators.NewCalculator(indicators.Options{
		MAWindow:       p.cfg.Analysis.MAWindow,
		TrendWindows:   p.cfg.Analysis.TrendWindows,
		PercentileBase: p.cfg.Analysis.PercentileBase,
		RecentDays:     p.cfg.Analysis.RecentDays,
	}, p.logger)
	res, err = calc.Compute(series, p.cfg.IndexSpecs())
	if err != nil {
		return nil, err
	}

	snapshots := make([]*domain.IndicatorSnapshot, 0, len(res.Targets))
	for _, target := range res.Targets {
		if err := p.appendPoints(ctx, target); err != nil {
			return nil, fmt.Errorf("persist ratio points for %s: %w", target.Spec.Code, err)
		}
		snapshots = append(snapshots, target.Snapshot)
	}
	if err := p.indicators.SaveAll(ctx, snapshots); err != nil {
		return nil, fmt.Errorf("persist indicator snapshots: %w", err)
	}
	observability.RecordSnapshots(len(snapshots))
	return res, nil
}

// appendPoints persists the ratio points past the target's latest persisted
// date. The analytics series is append-only.
func (p *Pipeline) appendPoints(ctx context.Context, target indicators.TargetResult) error {
	latest, err := p.ratios.LatestDate(ctx, target.Spec.Code)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	fresh := make([]*domain.RatioPoint, 0, len(target.Points))
	for _, pt := range target.Points {
		if pt.TradeDate > latest {
			fresh = append(fresh, pt)
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	return p.ratios.InsertBulk(ctx, fresh)
}

// Analyze runs the classifier stage against the persisted snapshots and
// upserts the conclusions.
func (p *Pipeline) Analyze(ctx context.Context) (conclusions []*domain.Conclusion, err error) {
	start := time.Now()
	defer func() {
		observability.RecordStage(StageAnalyze, stageStatus(err), time.Since(start).Seconds())
	}()

	snapshots, err := p.indicators.GetLatest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load indicator snapshots: %w", err)
	}
	if len(snapshots) == 0 {
		return nil, errors.New("no indicator snapshots; run calc first")
	}

	analyzer := analysis.NewAnalyzer(analysis.Options{
		ExtremeLow:  p.cfg.Levels.ExtremeLow,
		Low:         p.cfg.Levels.Low,
		High:        p.cfg.Levels.High,
		ExtremeHigh: p.cfg.Levels.ExtremeHigh,
		MAWindow:    p.cfg.Analysis.MAWindow,
		Benchmark:   p.cfg.Benchmark().Name,
	}, p.logger)
	conclusions, err = analyzer.Analyze(snapshots)
	if err != nil {
		return nil, err
	}
	if err := p.conclusions.SaveAll(ctx, conclusions); err != nil {
		return nil, fmt.Errorf("persist conclusions: %w", err)
	}
	observability.RecordConclusions(len(conclusions))
	return conclusions, nil
}

// Report runs the render stage: the timestamped HTML document plus
// latest.html, the processed-series CSV artifact, then report pruning.
// Returns the timestamped report path.
func (p *Pipeline) Report(ctx context.Context) (path string, err error) {
	start := time.Now()
	defer func() {
		observability.RecordStage(StageReport, stageStatus(err), time.Since(start).Seconds())
	}()

	gen := report.NewGenerator(p.closes, p.ratios, p.indicators, p.conclusions, report.Options{
		Specs:         p.cfg.IndexSpecs(),
		MAWindow:      p.cfg.Analysis.MAWindow,
		ChartSessions: p.cfg.Analysis.RecentDays,
	}, p.logger)
	r, err := gen.Generate(ctx)
	if err != nil {
		return "", err
	}

	path, err = report.WriteFiles(r, p.cfg.Output.ReportDir)
	if err != nil {
		return "", err
	}
	observability.RecordReportGenerated()

	csvData, err := gen.ExportCSV(ctx)
	if err != nil {
		return "", fmt.Errorf("export processed series: %w", err)
	}
	if err := os.MkdirAll(p.cfg.Output.DataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	csvPath := filepath.Join(p.cfg.Output.DataDir, processedCSVName)
	if err := os.WriteFile(csvPath, []byte(csvData), 0o644); err != nil {
		return "", fmt.Errorf("write processed series: %w", err)
	}

	removed, pruneErr := report.Prune(p.cfg.Output.ReportDir, p.cfg.Output.KeepReports)
	if pruneErr != nil {
		p.logger.Warn().Err(pruneErr).Msg("report pruning failed")
	} else if removed > 0 {
		p.logger.Info().Int("removed", removed).Msg("old reports pruned")
	}
	return path, nil
}

func stageStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

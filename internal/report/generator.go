package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"index-compare/internal/domain"
	"index-compare/internal/storage"
)

// Options configure the generator.
type Options struct {
	Specs         []domain.IndexSpec
	MAWindow      int // quoted in legends and column names, default 30
	ChartSessions int // trailing trading days shown in charts, default 250
}

func (o Options) withDefaults() Options {
	if o.MAWindow == 0 {
		o.MAWindow = 30
	}
	if o.ChartSessions == 0 {
		o.ChartSessions = 250
	}
	return o
}

// Generator assembles the report view model from the persisted stores.
type Generator struct {
	closes      storage.DailyCloseStore
	ratios      storage.RatioPointStore
	indicators  storage.IndicatorStore
	conclusions storage.ConclusionStore
	opts        Options
	now         func() time.Time
	logger      zerolog.Logger
}

// NewGenerator creates a report generator. A zero Logger disables logging.
func NewGenerator(
	closes storage.DailyCloseStore,
	ratios storage.RatioPointStore,
	indicators storage.IndicatorStore,
	conclusions storage.ConclusionStore,
	opts Options,
	logger zerolog.Logger,
) *Generator {
	return &Generator{
		closes:      closes,
		ratios:      ratios,
		indicators:  indicators,
		conclusions: conclusions,
		opts:        opts.withDefaults(),
		now:         func() time.Time { return time.Now() },
		logger:      logger,
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the full view model. A target missing its column, ratio
// history, snapshot or conclusion is skipped with a warning; a run where no
// target survives is an error.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	series, err := g.closes.GetSeries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load close series: %w", err)
	}
	if series.Len() == 0 {
		return nil, errors.New("no close data to report")
	}
	series.Fill()

	snaps, err := g.indicators.GetLatest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load indicator snapshots: %w", err)
	}
	snapByCode := make(map[string]*domain.IndicatorSnapshot, len(snaps))
	for _, s := range snaps {
		snapByCode[s.IndexCode] = s
	}

	concs, err := g.conclusions.GetLatest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load conclusions: %w", err)
	}
	concByCode := make(map[string]*domain.Conclusion, len(concs))
	for _, c := range concs {
		concByCode[c.IndexCode] = c
	}

	r := &Report{
		GeneratedAt:   g.now(),
		TradeDate:     domain.DisplayDate(series.LatestDate()),
		FirstDate:     domain.DisplayDate(series.Dates[0]),
		Sessions:      series.Len(),
		ChartSessions: g.opts.ChartSessions,
		MAWindow:      g.opts.MAWindow,
	}

	g.buildPrices(r, series)
	if r.Benchmark.Code == "" {
		return nil, errors.New("benchmark series missing from close data")
	}

	for _, spec := range g.opts.Specs {
		if spec.Benchmark {
			continue
		}
		target, err := g.buildTarget(ctx, spec, snapByCode[spec.Code], concByCode[spec.Code])
		if err != nil {
			g.logger.Warn().Str("index", spec.Code).Err(err).Msg("target skipped in report")
			continue
		}
		r.Targets = append(r.Targets, target)
	}
	if len(r.Targets) == 0 {
		return nil, errors.New("no target has persisted artifacts to report")
	}

	g.logger.Info().
		Str("trade_date", r.TradeDate).
		Int("targets", len(r.Targets)).
		Int("sessions", r.Sessions).
		Msg("report assembled")
	return r, nil
}

// buildPrices fills the absolute-close chart from the trailing window of the
// aligned series, one trace per configured index that has data.
func (g *Generator) buildPrices(r *Report, series *domain.AlignedSeries) {
	from := series.Len() - g.opts.ChartSessions
	if from < 0 {
		from = 0
	}

	dates := make([]string, 0, series.Len()-from)
	for _, d := range series.Dates[from:] {
		dates = append(dates, domain.DisplayDate(d))
	}
	r.Prices.Dates = dates

	targetIdx := 0
	for _, spec := range g.opts.Specs {
		col, ok := series.Column(spec.Code)
		if !ok {
			g.logger.Warn().Str("index", spec.Code).Msg("index missing from close data")
			if !spec.Benchmark {
				targetIdx++
			}
			continue
		}

		color := benchmarkColor
		if !spec.Benchmark {
			color = targetColors[targetIdx%len(targetColors)]
			targetIdx++
		}
		ps := PriceSeries{
			Code:   spec.Code,
			Name:   spec.Name,
			Color:  color,
			Values: col[from:],
			Latest: col[len(col)-1],
		}
		r.Prices.Series = append(r.Prices.Series, ps)
		if spec.Benchmark {
			r.Benchmark = ps
		}
	}
}

// buildTarget assembles one target's chart and card data from its persisted
// ratio history, snapshot and conclusion.
func (g *Generator) buildTarget(ctx context.Context, spec domain.IndexSpec, snap *domain.IndicatorSnapshot, conc *domain.Conclusion) (Target, error) {
	if snap == nil {
		return Target{}, errors.New("no indicator snapshot")
	}
	if conc == nil {
		return Target{}, errors.New("no conclusion")
	}

	points, err := g.ratios.GetByIndex(ctx, spec.Code)
	if err != nil {
		return Target{}, fmt.Errorf("load ratio points: %w", err)
	}
	if len(points) == 0 {
		return Target{}, errors.New("no ratio history")
	}

	from := len(points) - g.opts.ChartSessions
	if from < 0 {
		from = 0
	}
	shown := points[from:]

	chart := RatioChart{
		Code:            spec.Code,
		Name:            spec.Name,
		Title:           fmt.Sprintf("%s vs %s", spec.Name, g.benchmarkName()),
		Dates:           make([]string, 0, len(shown)),
		Ratio:           make([]float64, 0, len(shown)),
		MA:              make([]*float64, 0, len(shown)),
		Current:         snap.CurrentRatio,
		Percentile:      snap.Percentile,
		PercentileColor: percentileColor(snap.Percentile),
		MAWindow:        g.opts.MAWindow,
	}
	chart.RangeLow = shown[0].Ratio
	chart.RangeHigh = shown[0].Ratio
	for _, p := range shown {
		chart.Dates = append(chart.Dates, domain.DisplayDate(p.TradeDate))
		chart.Ratio = append(chart.Ratio, p.Ratio)
		chart.MA = append(chart.MA, p.RollingMA)
		if p.Ratio < chart.RangeLow {
			chart.RangeLow = p.Ratio
		}
		if p.Ratio > chart.RangeHigh {
			chart.RangeHigh = p.Ratio
		}
	}

	t := Target{
		Snapshot:        snap,
		Conclusion:      conc,
		Chart:           chart,
		PercentileClass: valuationClass(snap.Percentile),
		DeviationClass:  deviationClass(snap.Deviation),
	}
	t.ChangeClass, t.ChangeArrow = changeDirection(snap.Change5D)
	t.RecClass, t.RecArrow = recommendationStyle(conc.CompositeScore)
	return t, nil
}

func (g *Generator) benchmarkName() string {
	for _, spec := range g.opts.Specs {
		if spec.Benchmark {
			return spec.Name
		}
	}
	return "benchmark"
}

// Package indicators implements the calculator stage: per-target ratio to
// the benchmark, rolling mean, deviation from it, percentile rank against
// history, multi-window percent changes and the trend label.
package indicators

import (
	"errors"
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"index-compare/internal/domain"
)

// Percentile basis selectors.
const (
	BaseAllHistory = "all_history"
	BaseRecent     = "recent"
)

// Trend thresholds in percent.
const (
	strongTrendPct = 1.0
	weakTrendPct   = 0.5
)

// The snapshot's named change columns are fixed at these lookbacks; the
// configured trend windows drive only the trend label.
const (
	changeWindow5  = 5
	changeWindow10 = 10
	changeWindow20 = 20
)

// Options configure the calculator.
type Options struct {
	MAWindow       int    // rolling-mean window, default 30
	TrendWindows   []int  // percent-change lookbacks for the trend label, default {5,10,20}
	PercentileBase string // BaseAllHistory or BaseRecent, default BaseAllHistory
	RecentDays     int    // trailing sessions when PercentileBase is BaseRecent, default 250
}

func (o Options) withDefaults() Options {
	if o.MAWindow == 0 {
		o.MAWindow = 30
	}
	if len(o.TrendWindows) == 0 {
		o.TrendWindows = []int{5, 10, 20}
	}
	if o.PercentileBase == "" {
		o.PercentileBase = BaseAllHistory
	}
	if o.RecentDays == 0 {
		o.RecentDays = 250
	}
	return o
}

// Calculator derives per-target indicators from the aligned series.
type Calculator struct {
	opts   Options
	logger zerolog.Logger
}

// NewCalculator creates a calculator. A zero Logger disables logging.
func NewCalculator(opts Options, logger zerolog.Logger) *Calculator {
	return &Calculator{opts: opts.withDefaults(), logger: logger}
}

// TargetResult is one target's derived ratio series and latest-date snapshot.
type TargetResult struct {
	Spec     domain.IndexSpec
	Points   []*domain.RatioPoint // defined ratio observations, date ASC
	Snapshot *domain.IndicatorSnapshot
}

// Result is the calculator output for one run.
type Result struct {
	TradeDate string // latest date in the input series
	Targets   []TargetResult
}

// Compute derives indicators for every non-benchmark index in specs. A
// target without a series column, or whose latest ratio is undefined, is
// skipped with a warning; a missing benchmark column is fatal, as is a run
// where no target could be computed.
func (c *Calculator) Compute(series *domain.AlignedSeries, specs []domain.IndexSpec) (*Result, error) {
	if series.Len() == 0 {
		return nil, errors.New("empty series")
	}

	var benchmark domain.IndexSpec
	for _, spec := range specs {
		if spec.Benchmark {
			benchmark = spec
		}
	}
	if benchmark.Code == "" {
		return nil, errors.New("no benchmark index configured")
	}
	bench, ok := series.Column(benchmark.Code)
	if !ok {
		return nil, fmt.Errorf("benchmark %s not in series", benchmark.Code)
	}

	result := &Result{TradeDate: series.LatestDate()}
	for _, spec := range specs {
		if spec.Benchmark {
			continue
		}
		col, ok := series.Column(spec.Code)
		if !ok {
			c.logger.Warn().Str("index", spec.Code).Msg("target not in series, skipping")
			continue
		}

		target, ok := c.computeTarget(series.Dates, bench, col, spec)
		if !ok {
			c.logger.Warn().Str("index", spec.Code).
				Msg("latest ratio undefined, skipping target")
			continue
		}
		result.Targets = append(result.Targets, target)

		c.logger.Info().
			Str("index", spec.Code).
			Int("points", len(target.Points)).
			Float64("ratio", target.Snapshot.CurrentRatio).
			Float64("percentile", target.Snapshot.Percentile).
			Str("trend", target.Snapshot.Trend.String()).
			Msg("target computed")
	}

	if len(result.Targets) == 0 {
		return nil, errors.New("no target could be computed")
	}
	return result, nil
}

// computeTarget builds one target's ratio series and snapshot. ok is false
// when the latest ratio is undefined and no snapshot can exist.
func (c *Calculator) computeTarget(dates []string, bench, col []float64, spec domain.IndexSpec) (TargetResult, bool) {
	n := len(dates)

	ratio := make([]float64, n)
	for i := range ratio {
		if !domain.IsDefined(col[i]) || !domain.IsDefined(bench[i]) || bench[i] == 0 {
			ratio[i] = math.NaN()
		} else {
			ratio[i] = col[i] / bench[i]
		}
	}

	current := ratio[n-1]
	if !domain.IsDefined(current) {
		return TargetResult{}, false
	}

	ma := rollingMean(ratio, c.opts.MAWindow)

	points := make([]*domain.RatioPoint, 0, n)
	for i := range ratio {
		if !domain.IsDefined(ratio[i]) {
			continue
		}
		p := &domain.RatioPoint{IndexCode: spec.Code, TradeDate: dates[i], Ratio: ratio[i]}
		if domain.IsDefined(ma[i]) {
			v := ma[i]
			p.RollingMA = &v
		}
		points = append(points, p)
	}

	snap := &domain.IndicatorSnapshot{
		IndexCode:    spec.Code,
		IndexName:    spec.Name,
		TradeDate:    dates[n-1],
		CurrentRatio: round(current, 4),
		Percentile:   round(c.percentile(ratio, current), 1),
		Change5D:     changePtr(ratio, changeWindow5),
		Change10D:    changePtr(ratio, changeWindow10),
		Change20D:    changePtr(ratio, changeWindow20),
	}

	currentMA := ma[n-1]
	if domain.IsDefined(currentMA) {
		v := round(currentMA, 4)
		snap.CurrentMA = &v
	}
	if domain.IsDefined(currentMA) && currentMA != 0 {
		snap.Deviation = round((current-currentMA)/currentMA*100, 2)
	}

	changes := make([]float64, 0, len(c.opts.TrendWindows))
	for _, w := range c.opts.TrendWindows {
		changes = append(changes, changeOverWindow(ratio, w))
	}
	snap.Trend = classifyTrend(changes)

	return TargetResult{Spec: spec, Points: points, Snapshot: snap}, true
}

// percentile ranks current against the configured basis of the ratio series.
func (c *Calculator) percentile(ratio []float64, current float64) float64 {
	basis := ratio
	if c.opts.PercentileBase == BaseRecent && len(ratio) > c.opts.RecentDays {
		basis = ratio[len(ratio)-c.opts.RecentDays:]
	}
	return percentileRank(basis, current)
}

// rollingMean computes the trailing arithmetic mean over window w. The first
// w-1 slots and any window containing an undefined value yield NaN.
func rollingMean(values []float64, w int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	undefined := 0

	for i, v := range values {
		if domain.IsDefined(v) {
			sum += v
		} else {
			undefined++
		}
		if i >= w {
			old := values[i-w]
			if domain.IsDefined(old) {
				sum -= old
			} else {
				undefined--
			}
		}
		if i >= w-1 && undefined == 0 {
			out[i] = sum / float64(w)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// percentileRank returns 100 * count(history <= current) / count(history),
// counting only defined values. The current observation is part of history,
// so a fresh all-time high ranks exactly 100.
func percentileRank(history []float64, current float64) float64 {
	count, le := 0, 0
	for _, v := range history {
		if !domain.IsDefined(v) {
			continue
		}
		count++
		if v <= current {
			le++
		}
	}
	if count == 0 {
		return 0
	}
	return 100 * float64(le) / float64(count)
}

// changeOverWindow is the percent change vs w sessions ago: NaN when the
// series is shorter than w+1 rows or either endpoint is undefined, 0 when
// the base value is zero (the ROC convention).
func changeOverWindow(values []float64, w int) float64 {
	if len(values) < w+1 {
		return math.NaN()
	}
	roc := talib.Roc(values, w)
	return roc[len(roc)-1]
}

func changePtr(values []float64, w int) *float64 {
	v := changeOverWindow(values, w)
	if !domain.IsDefined(v) {
		return nil
	}
	r := round(v, 2)
	return &r
}

// classifyTrend maps the defined window changes to a trend label.
func classifyTrend(changes []float64) domain.TrendLabel {
	var defined []float64
	for _, ch := range changes {
		if domain.IsDefined(ch) {
			defined = append(defined, ch)
		}
	}
	if len(defined) == 0 {
		return domain.TrendInsufficient
	}

	allAbove, allBelow := true, true
	above, below := 0, 0
	for _, ch := range defined {
		if ch <= strongTrendPct {
			allAbove = false
		}
		if ch >= -strongTrendPct {
			allBelow = false
		}
		if ch > weakTrendPct {
			above++
		}
		if ch < -weakTrendPct {
			below++
		}
	}

	switch {
	case allAbove:
		return domain.TrendStrongUp
	case allBelow:
		return domain.TrendStrongDown
	case above >= 2:
		return domain.TrendWeakUp
	case below >= 2:
		return domain.TrendWeakDown
	default:
		return domain.TrendSideways
	}
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

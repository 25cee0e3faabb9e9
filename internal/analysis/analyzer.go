// Package analysis implements the classifier stage: it grades each target's
// indicator snapshot through ordered threshold tables, blends the grades
// into a weighted composite score and maps the score to an allocation
// recommendation.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"index-compare/internal/domain"
)

// Composite weights of the three dimensions.
const (
	weightPercentile = 0.6
	weightTrend      = 0.25
	weightDeviation  = 0.15
)

// trendFlipCut is the percentile rank above which the trend score changes
// sign: momentum in an already expensive regime counts against the target.
// At or below the cut the score keeps its sign.
const trendFlipCut = 60.0

// Options configure the analyzer.
type Options struct {
	// Percentile band cut points on the 0-100 scale, ascending. A zero
	// ExtremeHigh selects the standard 10/30/70/90 bands.
	ExtremeLow  float64
	Low         float64
	High        float64
	ExtremeHigh float64

	MAWindow  int    // quoted in summaries, default 30; does not affect scoring
	Benchmark string // benchmark display name used in summaries
}

func (o Options) withDefaults() Options {
	if o.ExtremeHigh == 0 {
		o.ExtremeLow, o.Low, o.High, o.ExtremeHigh = 10, 30, 70, 90
	}
	if o.MAWindow == 0 {
		o.MAWindow = 30
	}
	if o.Benchmark == "" {
		o.Benchmark = "benchmark"
	}
	return o
}

// Analyzer turns indicator snapshots into conclusions. Classification is a
// pure function of the snapshot and the threshold tables; the same snapshot
// always yields the same conclusion.
type Analyzer struct {
	opts       Options
	percentile []percentileBand
	logger     zerolog.Logger
}

// NewAnalyzer creates an analyzer. A zero Logger disables logging.
func NewAnalyzer(opts Options, logger zerolog.Logger) *Analyzer {
	opts = opts.withDefaults()
	return &Analyzer{
		opts:       opts,
		percentile: percentileBands(opts.ExtremeLow, opts.Low, opts.High, opts.ExtremeHigh),
		logger:     logger,
	}
}

// Analyze grades every snapshot and returns one conclusion per target, in
// input order.
func (a *Analyzer) Analyze(snapshots []*domain.IndicatorSnapshot) ([]*domain.Conclusion, error) {
	if len(snapshots) == 0 {
		return nil, errors.New("no indicator snapshots to analyze")
	}

	conclusions := make([]*domain.Conclusion, 0, len(snapshots))
	for _, snap := range snapshots {
		if snap == nil {
			return nil, errors.New("nil indicator snapshot")
		}
		c := a.analyzeOne(snap)
		conclusions = append(conclusions, c)

		a.logger.Info().
			Str("index", c.IndexCode).
			Str("percentile_status", c.Percentile.Status.String()).
			Str("trend", c.Trend.Label.String()).
			Float64("score", c.CompositeScore).
			Str("recommendation", c.Recommendation.Label.String()).
			Msg("target classified")
	}
	return conclusions, nil
}

func (a *Analyzer) analyzeOne(snap *domain.IndicatorSnapshot) *domain.Conclusion {
	c := &domain.Conclusion{
		IndexCode:  snap.IndexCode,
		IndexName:  snap.IndexName,
		TradeDate:  snap.TradeDate,
		Percentile: classifyPercentile(snap.Percentile, a.percentile),
		Trend:      gradeTrend(snap.Trend),
		Deviation:  classifyDeviation(snap.Deviation, deviationBands),
	}

	score := compositeScore(c.Percentile.Score, c.Trend.Score, c.Deviation.Score, snap.Percentile)
	c.Recommendation = classifyRecommendation(score, recommendationBands)
	c.CompositeScore = round2(score)
	c.Summary = a.summarize(c)
	return c
}

// compositeScore blends the three dimension scores, flipping the trend
// contribution above the cut.
func compositeScore(percentileScore, trendScore, deviationScore int, percentile float64) float64 {
	adjusted := trendScore
	if percentile > trendFlipCut {
		adjusted = -trendScore
	}
	return weightPercentile*float64(percentileScore) +
		weightTrend*float64(adjusted) +
		weightDeviation*float64(deviationScore)
}

// summarize renders the four-section text block that accompanies every
// conclusion.
func (a *Analyzer) summarize(c *domain.Conclusion) string {
	side := "below"
	if c.Deviation.Value > 0 {
		side = "above"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s analysis:\n\n", c.IndexName))
	sb.WriteString(fmt.Sprintf("1. Historical percentile: %.1f%% (%s)\n", c.Percentile.Value, c.Percentile.Status))
	sb.WriteString(fmt.Sprintf("   The %s / %s ratio sits in the %s region of its history.\n\n",
		c.IndexName, a.opts.Benchmark, c.Percentile.Status))
	sb.WriteString(fmt.Sprintf("2. Trend: %s\n", c.Trend.Label))
	sb.WriteString(fmt.Sprintf("   Recent ratio action shows a %s pattern.\n\n", c.Trend.Label))
	sb.WriteString(fmt.Sprintf("3. Mean reversion: deviation %+.2f%% (%s)\n", c.Deviation.Value, c.Deviation.Status))
	sb.WriteString(fmt.Sprintf("   The ratio is %.2f%% %s its %d-day rolling mean.\n\n",
		math.Abs(c.Deviation.Value), side, a.opts.MAWindow))
	sb.WriteString(fmt.Sprintf("4. Allocation: %s %s\n", c.Recommendation.Icon, c.Recommendation.Label))
	sb.WriteString(fmt.Sprintf("   Taken together, the suggested stance on %s is %s.", c.IndexName, c.Recommendation.Label))
	return sb.String()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

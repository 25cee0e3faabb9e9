// Package report renders the pipeline's artifacts: the self-contained HTML
// document, the processed-series CSV export and the terminal quick-query
// view. Everything is built from persisted stores, so a report can be
// regenerated without refetching.
package report

import (
	"time"

	"index-compare/internal/domain"
)

// Trace palette, benchmark first. Targets cycle through the rest.
var (
	benchmarkColor = "#fbbf24"
	targetColors   = []string{"#10b981", "#8b5cf6", "#f97316", "#64748b", "#0ea5e9"}
)

// Percentile accent colors for the chart annotations and card values.
const (
	colorCheap     = "#10b981" // percentile below 40
	colorNeutral   = "#0ea5e9" // percentile 40..60
	colorExpensive = "#f43f5e" // percentile above 60
)

// Report is the assembled view model for one rendering run.
type Report struct {
	GeneratedAt   time.Time
	TradeDate     string // last trading day, YYYY-MM-DD
	FirstDate     string // first trading day, YYYY-MM-DD
	Sessions      int    // trading days in the aligned series
	ChartSessions int    // trailing window shown in the charts
	MAWindow      int
	Benchmark     PriceSeries
	Prices        PriceChart
	Targets       []Target
}

// PriceChart holds the absolute-close traces over the chart window.
type PriceChart struct {
	Dates  []string      `json:"dates"` // YYYY-MM-DD
	Series []PriceSeries `json:"series"`
}

// PriceSeries is one index's close trace.
type PriceSeries struct {
	Code   string    `json:"code"`
	Name   string    `json:"name"`
	Color  string    `json:"color"`
	Values []float64 `json:"values"`
	Latest float64   `json:"-"`
}

// Target bundles everything rendered for one target index: the persisted
// snapshot and conclusion plus the ratio chart data and the CSS classes the
// cards are styled with.
type Target struct {
	Snapshot   *domain.IndicatorSnapshot
	Conclusion *domain.Conclusion
	Chart      RatioChart

	PercentileClass string // positive | neutral | negative
	DeviationClass  string
	ChangeClass     string // 5-session change direction
	ChangeArrow     string
	RecClass        string // overweight | neutral | underweight
	RecArrow        string
}

// RatioChart is one target's ratio trace over the chart window.
type RatioChart struct {
	Code            string     `json:"code"`
	Name            string     `json:"name"`
	Title           string     `json:"title"`
	Dates           []string   `json:"dates"` // YYYY-MM-DD, defined ratios only
	Ratio           []float64  `json:"ratio"`
	MA              []*float64 `json:"ma"` // null until the window fills
	RangeLow        float64    `json:"rangeLow"`
	RangeHigh       float64    `json:"rangeHigh"`
	Current         float64    `json:"current"`
	Percentile      float64    `json:"percentile"`
	PercentileColor string     `json:"percentileColor"`
	MAWindow        int        `json:"maWindow"`
}

// percentileColor picks the accent for a percentile rank.
func percentileColor(p float64) string {
	switch {
	case p < 40:
		return colorCheap
	case p < 60:
		return colorNeutral
	default:
		return colorExpensive
	}
}

// valuationClass grades a percentile rank for card styling: cheap reads
// positive, expensive negative.
func valuationClass(p float64) string {
	switch {
	case p < 40:
		return "positive"
	case p > 60:
		return "negative"
	default:
		return "neutral"
	}
}

// deviationClass grades a deviation for card styling: below the mean reads
// positive, stretched above negative.
func deviationClass(d float64) string {
	switch {
	case d < -5:
		return "positive"
	case d > 5:
		return "negative"
	default:
		return "neutral"
	}
}

// changeDirection grades a nullable percent change for card styling.
func changeDirection(ch *float64) (class, arrow string) {
	switch {
	case ch == nil:
		return "neutral", "→"
	case *ch > 0:
		return "positive", "↑"
	case *ch < 0:
		return "negative", "↓"
	default:
		return "neutral", "→"
	}
}

// recommendationStyle grades a composite score for the recommendation box.
func recommendationStyle(score float64) (class, arrow string) {
	switch {
	case score > 0.5:
		return "overweight", "↑"
	case score < -0.5:
		return "underweight", "↓"
	default:
		return "neutral", "="
	}
}

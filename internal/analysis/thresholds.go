package analysis

import (
	"math"

	"index-compare/internal/domain"
)

// percentileBand is one row of the ordered percentile table. A rank is
// graded by the first row whose upper bound admits it; inclusive selects
// <= over <. The last row carries an infinite bound so the walk always
// terminates on it.
type percentileBand struct {
	max       float64
	inclusive bool
	status    domain.PercentileStatus
	score     int
	action    string
	desc      string
}

// percentileBands builds the ordered table from the four configured cut
// points, ascending.
func percentileBands(extremeLow, low, high, extremeHigh float64) []percentileBand {
	return []percentileBand{
		{extremeLow, true, domain.PercentileExtremeLow, 2, "strong overweight",
			"the ratio sits at the very bottom of its history, so the target is unusually cheap against the benchmark"},
		{low, true, domain.PercentileLow, 1, "overweight",
			"the ratio sits in the low range of its history, so the target is attractively priced against the benchmark"},
		{high, false, domain.PercentileNeutral, 0, "hold",
			"the ratio sits near its historical midpoint and relative valuations are balanced"},
		{extremeHigh, false, domain.PercentileHigh, -1, "reduce",
			"the ratio sits in the high range of its history, so the target is expensive against the benchmark"},
		{math.Inf(1), true, domain.PercentileExtremeHigh, -2, "avoid",
			"the ratio sits at the very top of its history, so the target is extremely expensive against the benchmark"},
	}
}

func classifyPercentile(p float64, bands []percentileBand) domain.PercentileAssessment {
	for _, b := range bands {
		if p < b.max || (b.inclusive && p == b.max) {
			return domain.PercentileAssessment{
				Value:       p,
				Status:      b.status,
				Score:       b.score,
				Action:      b.action,
				Description: b.desc,
			}
		}
	}
	// Unreachable: the last band admits everything.
	return domain.PercentileAssessment{Value: p}
}

// deviationBand is one row of the ordered deviation table. A deviation is
// graded by the first row whose lower bound it exceeds.
type deviationBand struct {
	min    float64 // exclusive
	status domain.DeviationStatus
	score  int
	desc   string
}

// deviationBands is fixed at the 5 and 10 percent cut points on both sides.
var deviationBands = []deviationBand{
	{10, domain.DeviationSevereOverbought, -2,
		"the ratio is stretched far above its rolling mean and near-term pullback risk is elevated"},
	{5, domain.DeviationOverbought, -1,
		"the ratio is above its rolling mean, so watch for a short-term pullback"},
	{-5, domain.DeviationNormal, 0,
		"the ratio is oscillating around its rolling mean"},
	{-10, domain.DeviationOversold, 1,
		"the ratio is below its rolling mean and a short-term rebound is possible"},
	{math.Inf(-1), domain.DeviationSevereOversold, 2,
		"the ratio is stretched far below its rolling mean and a rebound is likely"},
}

func classifyDeviation(d float64, bands []deviationBand) domain.DeviationAssessment {
	for _, b := range bands {
		if d > b.min {
			return domain.DeviationAssessment{
				Value:       d,
				Status:      b.status,
				Score:       b.score,
				Description: b.desc,
			}
		}
	}
	return domain.DeviationAssessment{Value: d}
}

// trendGrade is the fixed score and description of one trend label.
type trendGrade struct {
	score int
	desc  string
}

var trendGrades = map[domain.TrendLabel]trendGrade{
	domain.TrendStrongUp:     {2, "the ratio is climbing strongly and the target keeps gaining on the benchmark"},
	domain.TrendWeakUp:       {1, "the ratio is drifting up and the target is edging ahead of the benchmark"},
	domain.TrendSideways:     {0, "the ratio is moving sideways with no clear relative strength"},
	domain.TrendWeakDown:     {-1, "the ratio is drifting down and the target is slipping against the benchmark"},
	domain.TrendStrongDown:   {-2, "the ratio is falling sharply and the target keeps losing ground to the benchmark"},
	domain.TrendInsufficient: {0, "too little history to judge the direction of the ratio"},
}

func gradeTrend(label domain.TrendLabel) domain.TrendAssessment {
	g, ok := trendGrades[label]
	if !ok {
		g = trendGrade{0, "the direction of the ratio is unclear"}
	}
	return domain.TrendAssessment{Label: label, Score: g.score, Description: g.desc}
}

// recommendationBand is one row of the ordered recommendation table. A
// composite score maps to the first row it strictly exceeds.
type recommendationBand struct {
	min    float64 // exclusive
	label  domain.Recommendation
	icon   string
	action string
}

var recommendationBands = []recommendationBand{
	{1.0, domain.RecommendStrongOverweight, "[++]", "lift the allocation well above its benchmark weight"},
	{0.5, domain.RecommendOverweight, "[+]", "lift the allocation above its benchmark weight"},
	{-0.5, domain.RecommendNeutral, "[=]", "hold the allocation at its benchmark weight"},
	{-1.0, domain.RecommendUnderweight, "[-]", "trim the allocation below its benchmark weight"},
	{math.Inf(-1), domain.RecommendStrongUnderweight, "[--]", "cut the allocation well below its benchmark weight"},
}

func classifyRecommendation(score float64, bands []recommendationBand) domain.RecommendationAssessment {
	for _, b := range bands {
		if score > b.min {
			return domain.RecommendationAssessment{Label: b.label, Icon: b.icon, Action: b.action}
		}
	}
	return domain.RecommendationAssessment{}
}

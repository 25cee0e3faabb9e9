package domain

// PercentileStatus is the 5-level valuation band of the percentile rank.
type PercentileStatus string

const (
	PercentileExtremeLow  PercentileStatus = "extreme low"
	PercentileLow         PercentileStatus = "low"
	PercentileNeutral     PercentileStatus = "neutral"
	PercentileHigh        PercentileStatus = "high"
	PercentileExtremeHigh PercentileStatus = "extreme high"
)

// String returns the string representation of PercentileStatus.
func (p PercentileStatus) String() string {
	return string(p)
}

// DeviationStatus is the 5-level band of the deviation from the rolling mean.
type DeviationStatus string

const (
	DeviationSevereOverbought DeviationStatus = "severe overbought"
	DeviationOverbought       DeviationStatus = "overbought"
	DeviationNormal           DeviationStatus = "normal"
	DeviationOversold         DeviationStatus = "oversold"
	DeviationSevereOversold   DeviationStatus = "severe oversold"
)

// String returns the string representation of DeviationStatus.
func (d DeviationStatus) String() string {
	return string(d)
}

// Recommendation is the discrete allocation recommendation.
type Recommendation string

const (
	RecommendStrongOverweight  Recommendation = "strong overweight"
	RecommendOverweight        Recommendation = "overweight"
	RecommendNeutral           Recommendation = "neutral"
	RecommendUnderweight       Recommendation = "underweight"
	RecommendStrongUnderweight Recommendation = "strong underweight"
)

// String returns the string representation of Recommendation.
func (r Recommendation) String() string {
	return string(r)
}

// PercentileAssessment grades the percentile rank.
type PercentileAssessment struct {
	Value       float64          `json:"value"`  // percentile rank, 0-100
	Status      PercentileStatus `json:"status"` // 5-level band
	Score       int              `json:"score"`  // +2 down to -2
	Action      string           `json:"action"` // suggested action for this band
	Description string           `json:"description"`
}

// TrendAssessment grades the trend label.
type TrendAssessment struct {
	Label       TrendLabel `json:"label"`
	Score       int        `json:"score"` // +2 down to -2, 0 for insufficient data
	Description string     `json:"description"`
}

// DeviationAssessment grades the deviation from the rolling mean.
type DeviationAssessment struct {
	Value       float64         `json:"value"` // percent
	Status      DeviationStatus `json:"status"`
	Score       int             `json:"score"` // +2 down to -2
	Description string          `json:"description"`
}

// RecommendationAssessment maps the composite score to an allocation call.
type RecommendationAssessment struct {
	Label  Recommendation `json:"label"`
	Icon   string         `json:"icon"`   // "[++]" through "[--]"
	Action string         `json:"action"` // one-line allocation action
}

// Conclusion is the full classification result for one target index.
// Corresponds to conclusions table in PostgreSQL.
type Conclusion struct {
	IndexCode      string                   `json:"index_code"`
	IndexName      string                   `json:"index_name"`
	TradeDate      string                   `json:"trade_date"`
	Percentile     PercentileAssessment     `json:"percentile"`
	Trend          TrendAssessment          `json:"trend"`
	Deviation      DeviationAssessment      `json:"deviation"`
	CompositeScore float64                  `json:"composite_score"` // rounded to 2 decimals
	Recommendation RecommendationAssessment `json:"recommendation"`
	Summary        string                   `json:"summary"` // human-readable multi-line block
}

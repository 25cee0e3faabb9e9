package domain

// TrendLabel classifies the short-horizon direction of a ratio series.
type TrendLabel string

const (
	TrendStrongUp     TrendLabel = "strong up"
	TrendWeakUp       TrendLabel = "weak up"
	TrendSideways     TrendLabel = "sideways"
	TrendWeakDown     TrendLabel = "weak down"
	TrendStrongDown   TrendLabel = "strong down"
	TrendInsufficient TrendLabel = "insufficient data"
)

// String returns the string representation of TrendLabel.
func (t TrendLabel) String() string {
	return string(t)
}

// IsValid checks if the trend label is a known value.
func (t TrendLabel) IsValid() bool {
	switch t {
	case TrendStrongUp, TrendWeakUp, TrendSideways, TrendWeakDown, TrendStrongDown, TrendInsufficient:
		return true
	}
	return false
}

// IndicatorSnapshot holds the indicators for one target index, computed from
// the latest trading date. Nullable fields are absent when history is too
// short to define them.
// Corresponds to indicator_snapshots table in PostgreSQL.
type IndicatorSnapshot struct {
	IndexCode    string     `json:"index_code"`    // target index code
	IndexName    string     `json:"index_name"`    // display name
	TradeDate    string     `json:"trade_date"`    // YYYYMMDD of the latest row
	CurrentRatio float64    `json:"current_ratio"` // rounded to 4 decimals
	CurrentMA    *float64   `json:"current_ma"`    // rounded to 4 decimals, NULL before window fills
	Deviation    float64    `json:"deviation"`     // percent, rounded to 2 decimals; 0 when MA undefined/zero
	Percentile   float64    `json:"percentile"`    // 0-100, rounded to 1 decimal
	Trend        TrendLabel `json:"trend"`
	Change5D     *float64   `json:"change_5d"`  // percent over 5 sessions, NULL if history < 6 rows
	Change10D    *float64   `json:"change_10d"` // percent over 10 sessions
	Change20D    *float64   `json:"change_20d"` // percent over 20 sessions
}

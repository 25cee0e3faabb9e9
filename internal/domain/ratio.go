package domain

// RatioPoint is one derived ratio observation for a target index.
// Corresponds to ratio_points table in ClickHouse.
type RatioPoint struct {
	IndexCode string   // target index code
	TradeDate string   // YYYYMMDD
	Ratio     float64  // target close / benchmark close
	RollingMA *float64 // trailing-window mean, NULL until the window fills
}

package domain

import "math"

// DailyBar is one raw daily observation for a single index.
type DailyBar struct {
	IndexCode string  // exchange code
	TradeDate string  // YYYYMMDD
	Close     float64 // closing level
}

// DailyClose is a persisted close row.
// Corresponds to daily_closes table in PostgreSQL.
type DailyClose struct {
	IndexCode string  // exchange code
	TradeDate string  // YYYYMMDD
	Close     float64 // closing level
	CreatedAt int64   // record creation timestamp (ms)
}

// AlignedSeries is the merged per-date close table: one row per trading day,
// dates strictly increasing with no duplicates, one column per index code.
// Columns always have len == len(Dates); cells are NaN only before fill.
type AlignedSeries struct {
	Dates  []string             // YYYYMMDD, strictly increasing
	Closes map[string][]float64 // index code -> closes aligned to Dates
}

// NewAlignedSeries returns an empty series.
func NewAlignedSeries() *AlignedSeries {
	return &AlignedSeries{Closes: make(map[string][]float64)}
}

// Len returns the number of trading days.
func (s *AlignedSeries) Len() int {
	return len(s.Dates)
}

// Codes returns the index codes present, in no particular order.
func (s *AlignedSeries) Codes() []string {
	codes := make([]string, 0, len(s.Closes))
	for code := range s.Closes {
		codes = append(codes, code)
	}
	return codes
}

// Column returns the close column for an index code.
func (s *AlignedSeries) Column(code string) ([]float64, bool) {
	col, ok := s.Closes[code]
	return col, ok
}

// LatestDate returns the last trading date, or "" if the series is empty.
func (s *AlignedSeries) LatestDate() string {
	if len(s.Dates) == 0 {
		return ""
	}
	return s.Dates[len(s.Dates)-1]
}

// Fill replaces undefined cells in every column: each gap takes the last
// defined observation before it, and a leading gap takes the first defined
// observation after it. Columns with no defined cell are left untouched.
func (s *AlignedSeries) Fill() {
	for _, col := range s.Closes {
		fillColumn(col)
	}
}

func fillColumn(col []float64) {
	last := math.NaN()
	for i, v := range col {
		if IsDefined(v) {
			last = v
		} else if IsDefined(last) {
			col[i] = last
		}
	}
	// After the forward pass only a leading gap can remain.
	first := math.NaN()
	for i := len(col) - 1; i >= 0; i-- {
		if IsDefined(col[i]) {
			first = col[i]
		} else if IsDefined(first) {
			col[i] = first
		}
	}
}

// IsDefined reports whether a value is a real observation (not NaN).
func IsDefined(v float64) bool {
	return !math.IsNaN(v)
}

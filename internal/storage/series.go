package storage

import (
	"math"
	"sort"

	"index-compare/internal/domain"
)

// BuildAlignedSeries pivots close rows into the aligned per-date table.
// Dates come out strictly increasing; a cell with no row becomes NaN. Row
// stores share this to implement GetSeries.
func BuildAlignedSeries(closes []*domain.DailyClose) *domain.AlignedSeries {
	series := domain.NewAlignedSeries()
	if len(closes) == 0 {
		return series
	}

	dateSet := make(map[string]struct{})
	byIndex := make(map[string]map[string]float64)
	for _, c := range closes {
		dateSet[c.TradeDate] = struct{}{}
		col, ok := byIndex[c.IndexCode]
		if !ok {
			col = make(map[string]float64)
			byIndex[c.IndexCode] = col
		}
		col[c.TradeDate] = c.Close
	}

	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	series.Dates = dates

	for code, col := range byIndex {
		values := make([]float64, len(dates))
		for i, d := range dates {
			if v, ok := col[d]; ok {
				values[i] = v
			} else {
				values[i] = math.NaN()
			}
		}
		series.Closes[code] = values
	}

	return series
}

// Package fetch implements the data acquisition stage: it pulls daily closes
// per configured index, appends them to storage and builds the aligned,
// gap-filled series the calculator consumes.
package fetch

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"index-compare/internal/domain"
)

// BarSource supplies daily close bars for one index over a date range.
// Dates are YYYYMMDD, both bounds inclusive; an empty endDate means "up to
// the latest available". Bars must come back sorted by trade date ascending.
type BarSource interface {
	DailyBars(ctx context.Context, tsCode, startDate, endDate string) ([]*domain.DailyBar, error)
}

// CSVSource replays bars from a wide CSV file (a trade_date column followed
// by one close column per index code, the aligned-series artifact layout).
// It backs offline runs and tests; no network involved.
type CSVSource struct {
	path string

	once sync.Once
	err  error
	bars map[string][]*domain.DailyBar
}

// NewCSVSource creates a source reading from the CSV at path. The file is
// parsed on first use.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// DailyBars returns the bars for tsCode within [startDate, endDate].
// An index code with no column in the file is an error; an empty cell is a
// non-trading day for that index and produces no bar.
func (s *CSVSource) DailyBars(_ context.Context, tsCode, startDate, endDate string) ([]*domain.DailyBar, error) {
	s.once.Do(s.load)
	if s.err != nil {
		return nil, s.err
	}

	all, ok := s.bars[tsCode]
	if !ok {
		return nil, fmt.Errorf("csv source %s: no column for %s", s.path, tsCode)
	}

	out := make([]*domain.DailyBar, 0, len(all))
	for _, b := range all {
		if startDate != "" && b.TradeDate < startDate {
			continue
		}
		if endDate != "" && b.TradeDate > endDate {
			continue
		}
		bar := *b
		out = append(out, &bar)
	}
	return out, nil
}

func (s *CSVSource) load() {
	f, err := os.Open(s.path)
	if err != nil {
		s.err = fmt.Errorf("open %s: %w", s.path, err)
		return
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		s.err = fmt.Errorf("read %s: %w", s.path, err)
		return
	}
	if len(records) == 0 {
		s.err = fmt.Errorf("%s: empty file", s.path)
		return
	}

	header := records[0]
	if len(header) < 2 {
		s.err = fmt.Errorf("%s: malformed header %v", s.path, header)
		return
	}

	codes := header[1:]
	bars := make(map[string][]*domain.DailyBar, len(codes))
	for _, rec := range records[1:] {
		if len(rec) != len(header) {
			s.err = fmt.Errorf("%s: row width %d != header width %d", s.path, len(rec), len(header))
			return
		}
		date := rec[0]
		for i, code := range codes {
			cell := rec[i+1]
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				s.err = fmt.Errorf("%s row %s: parse %q: %w", s.path, date, cell, err)
				return
			}
			bars[code] = append(bars[code], &domain.DailyBar{IndexCode: code, TradeDate: date, Close: v})
		}
	}

	// The contract promises ascending dates; do not trust the file.
	for _, list := range bars {
		sort.Slice(list, func(i, j int) bool { return list[i].TradeDate < list[j].TradeDate })
	}
	s.bars = bars
}

var _ BarSource = (*CSVSource)(nil)

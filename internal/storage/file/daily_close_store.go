package file

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"index-compare/internal/domain"
	"index-compare/internal/storage"
)

// DailyCloseStore is a CSV-backed implementation of storage.DailyCloseStore.
// The file is the classic wide table: a trade_date column followed by one
// column per index code.
type DailyCloseStore struct {
	mu   sync.Mutex
	path string
}

// NewDailyCloseStore creates a daily close store under dataDir.
func NewDailyCloseStore(dataDir string) *DailyCloseStore {
	return &DailyCloseStore{path: filepath.Join(dataDir, closesFile)}
}

// Path returns the CSV location, for diagnostics.
func (s *DailyCloseStore) Path() string {
	return s.path
}

// InsertBulk adds close rows. Fails entire batch on duplicate.
func (s *DailyCloseStore) InsertBulk(_ context.Context, closes []*domain.DailyClose) error {
	if len(closes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	series, err := s.load()
	if err != nil {
		return err
	}

	existing := make(map[string]struct{}, len(series.Dates)*len(series.Closes))
	for code, col := range series.Closes {
		for i, d := range series.Dates {
			if domain.IsDefined(col[i]) {
				existing[code+"|"+d] = struct{}{}
			}
		}
	}

	batch := make(map[string]struct{}, len(closes))
	for _, c := range closes {
		if c == nil || c.IndexCode == "" || c.TradeDate == "" {
			return storage.ErrInvalidInput
		}
		key := c.IndexCode + "|" + c.TradeDate
		if _, ok := existing[key]; ok {
			return storage.ErrDuplicateKey
		}
		if _, ok := batch[key]; ok {
			return storage.ErrDuplicateKey
		}
		batch[key] = struct{}{}
	}

	merged := storage.BuildAlignedSeries(append(seriesRows(series), closes...))
	return s.write(merged)
}

// GetByIndex retrieves all closes for an index, ordered by trade_date ASC.
func (s *DailyCloseStore) GetByIndex(_ context.Context, indexCode string) ([]*domain.DailyClose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	series, err := s.load()
	if err != nil {
		return nil, err
	}

	col, ok := series.Column(indexCode)
	if !ok {
		return nil, nil
	}
	var result []*domain.DailyClose
	for i, d := range series.Dates {
		if domain.IsDefined(col[i]) {
			result = append(result, &domain.DailyClose{IndexCode: indexCode, TradeDate: d, Close: col[i]})
		}
	}
	return result, nil
}

// GetSeries reads the aligned series from disk. A missing file yields an
// empty series, not an error.
func (s *DailyCloseStore) GetSeries(_ context.Context) (*domain.AlignedSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// LatestDate returns the most recent trade_date for an index.
func (s *DailyCloseStore) LatestDate(_ context.Context, indexCode string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	series, err := s.load()
	if err != nil {
		return "", err
	}
	col, ok := series.Column(indexCode)
	if !ok {
		return "", storage.ErrNotFound
	}
	for i := series.Len() - 1; i >= 0; i-- {
		if domain.IsDefined(col[i]) {
			return series.Dates[i], nil
		}
	}
	return "", storage.ErrNotFound
}

// load reads and parses the CSV; a missing file is an empty series.
func (s *DailyCloseStore) load() (*domain.AlignedSeries, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.NewAlignedSeries(), nil
		}
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(records) == 0 {
		return domain.NewAlignedSeries(), nil
	}

	header := records[0]
	if len(header) < 2 || header[0] != dateColumn {
		return nil, fmt.Errorf("%s: malformed header %v", s.path, header)
	}

	series := domain.NewAlignedSeries()
	codes := header[1:]
	for _, code := range codes {
		series.Closes[code] = make([]float64, 0, len(records)-1)
	}
	for _, rec := range records[1:] {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("%s: row width %d != header width %d", s.path, len(rec), len(header))
		}
		series.Dates = append(series.Dates, rec[0])
		for i, code := range codes {
			v, err := parseFloat(rec[i+1])
			if err != nil {
				return nil, fmt.Errorf("%s row %s: %w", s.path, rec[0], err)
			}
			series.Closes[code] = append(series.Closes[code], v)
		}
	}
	return series, nil
}

// write renders the aligned series back to the CSV.
func (s *DailyCloseStore) write(series *domain.AlignedSeries) error {
	if err := ensureDir(s.path); err != nil {
		return err
	}

	codes := series.Codes()
	sort.Strings(codes)

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(append([]string{dateColumn}, codes...)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, d := range series.Dates {
		rec := make([]string, 0, len(codes)+1)
		rec = append(rec, d)
		for _, code := range codes {
			rec = append(rec, formatFloat(series.Closes[code][i]))
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write row %s: %w", d, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	return writeAtomic(s.path, []byte(sb.String()))
}

// seriesRows explodes an aligned series back into close rows.
func seriesRows(series *domain.AlignedSeries) []*domain.DailyClose {
	var rows []*domain.DailyClose
	for code, col := range series.Closes {
		for i, d := range series.Dates {
			if domain.IsDefined(col[i]) {
				rows = append(rows, &domain.DailyClose{IndexCode: code, TradeDate: d, Close: col[i]})
			}
		}
	}
	return rows
}

var _ storage.DailyCloseStore = (*DailyCloseStore)(nil)

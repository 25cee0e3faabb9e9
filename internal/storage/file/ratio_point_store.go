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

const (
	ratioColumnPrefix = "ratio_"
	maColumnPrefix    = "ma_"
)

// RatioPointStore is a CSV-file implementation of storage.RatioPointStore.
// The backing file is a wide table with one row per trade date and a
// ratio_<code>/ma_<code> column pair per target index.
type RatioPointStore struct {
	mu   sync.Mutex
	path string
}

// NewRatioPointStore creates a ratio point store under dataDir.
func NewRatioPointStore(dataDir string) *RatioPointStore {
	return &RatioPointStore{path: filepath.Join(dataDir, ratioPointsFile)}
}

// Path returns the location of the backing CSV file.
func (s *RatioPointStore) Path() string {
	return s.path
}

// InsertBulk adds ratio points. Fails entire batch on duplicate.
func (s *RatioPointStore) InsertBulk(_ context.Context, points []*domain.RatioPoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load()
	if err != nil {
		return err
	}

	existingKeys := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		existingKeys[pointKey(p.IndexCode, p.TradeDate)] = struct{}{}
	}

	batchKeys := make(map[string]struct{}, len(points))
	for _, p := range points {
		if p == nil || p.IndexCode == "" || p.TradeDate == "" {
			return storage.ErrInvalidInput
		}
		key := pointKey(p.IndexCode, p.TradeDate)
		if _, exists := existingKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	merged := existing
	for _, p := range points {
		pointCopy := *p
		if p.RollingMA != nil {
			ma := *p.RollingMA
			pointCopy.RollingMA = &ma
		}
		merged = append(merged, &pointCopy)
	}
	return s.write(merged)
}

// GetByIndex retrieves all points for a target, ordered by trade_date ASC.
func (s *RatioPointStore) GetByIndex(_ context.Context, indexCode string) ([]*domain.RatioPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	points, err := s.load()
	if err != nil {
		return nil, err
	}

	var result []*domain.RatioPoint
	for _, p := range points {
		if p.IndexCode == indexCode {
			result = append(result, p)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TradeDate < result[j].TradeDate
	})

	return result, nil
}

// LatestDate returns the most recent trade_date for a target.
func (s *RatioPointStore) LatestDate(_ context.Context, indexCode string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	points, err := s.load()
	if err != nil {
		return "", err
	}

	latest := ""
	for _, p := range points {
		if p.IndexCode == indexCode && p.TradeDate > latest {
			latest = p.TradeDate
		}
	}
	if latest == "" {
		return "", storage.ErrNotFound
	}
	return latest, nil
}

// load reads the wide CSV back into ratio points. A missing file is empty.
func (s *RatioPointStore) load() ([]*domain.RatioPoint, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	if len(header) == 0 || header[0] != dateColumn {
		return nil, fmt.Errorf("parse %s: unexpected header %v", s.path, header)
	}

	ratioCols := make(map[int]string) // column index -> index code
	maCols := make(map[string]int)    // index code -> column index
	for i, name := range header[1:] {
		col := i + 1
		switch {
		case strings.HasPrefix(name, ratioColumnPrefix):
			ratioCols[col] = strings.TrimPrefix(name, ratioColumnPrefix)
		case strings.HasPrefix(name, maColumnPrefix):
			maCols[strings.TrimPrefix(name, maColumnPrefix)] = col
		default:
			return nil, fmt.Errorf("parse %s: unexpected column %q", s.path, name)
		}
	}

	var points []*domain.RatioPoint
	for rowNum, row := range records[1:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("parse %s: row %d has %d columns, want %d", s.path, rowNum+2, len(row), len(header))
		}
		date := row[0]
		for col, code := range ratioCols {
			if row[col] == "" {
				continue
			}
			ratio, err := parseFloat(row[col])
			if err != nil {
				return nil, fmt.Errorf("parse %s: row %d column %s: %w", s.path, rowNum+2, header[col], err)
			}
			p := &domain.RatioPoint{IndexCode: code, TradeDate: date, Ratio: ratio}
			if maCol, ok := maCols[code]; ok && row[maCol] != "" {
				ma, err := parseFloat(row[maCol])
				if err != nil {
					return nil, fmt.Errorf("parse %s: row %d column %s: %w", s.path, rowNum+2, header[maCol], err)
				}
				p.RollingMA = &ma
			}
			points = append(points, p)
		}
	}
	return points, nil
}

// write renders all points as the wide CSV, dates ASC and codes sorted.
func (s *RatioPointStore) write(points []*domain.RatioPoint) error {
	if err := ensureDir(s.path); err != nil {
		return err
	}

	dateSet := make(map[string]struct{})
	codeSet := make(map[string]struct{})
	byKey := make(map[string]*domain.RatioPoint, len(points))
	for _, p := range points {
		dateSet[p.TradeDate] = struct{}{}
		codeSet[p.IndexCode] = struct{}{}
		byKey[pointKey(p.IndexCode, p.TradeDate)] = p
	}

	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	codes := make([]string, 0, len(codeSet))
	for c := range codeSet {
		codes = append(codes, c)
	}
	sort.Strings(codes)

	var buf strings.Builder
	w := csv.NewWriter(&buf)

	header := make([]string, 0, 1+2*len(codes))
	header = append(header, dateColumn)
	for _, code := range codes {
		header = append(header, ratioColumnPrefix+code, maColumnPrefix+code)
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}

	row := make([]string, len(header))
	for _, date := range dates {
		row[0] = date
		for i, code := range codes {
			ratioCell, maCell := "", ""
			if p, ok := byKey[pointKey(code, date)]; ok {
				ratioCell = formatFloat(p.Ratio)
				if p.RollingMA != nil {
					maCell = formatFloat(*p.RollingMA)
				}
			}
			row[1+2*i] = ratioCell
			row[2+2*i] = maCell
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write %s: %w", s.path, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return writeAtomic(s.path, []byte(buf.String()))
}

func pointKey(indexCode, tradeDate string) string {
	return fmt.Sprintf("%s|%s", indexCode, tradeDate)
}

var _ storage.RatioPointStore = (*RatioPointStore)(nil)

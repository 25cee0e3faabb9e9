package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"index-compare/internal/domain"
	"index-compare/internal/storage"
)

// DailyCloseStore is an in-memory implementation of storage.DailyCloseStore.
type DailyCloseStore struct {
	mu   sync.RWMutex
	data map[string]*domain.DailyClose // keyed by (index_code, trade_date)
}

// NewDailyCloseStore creates a new in-memory daily close store.
func NewDailyCloseStore() *DailyCloseStore {
	return &DailyCloseStore{
		data: make(map[string]*domain.DailyClose),
	}
}

// closeKey generates a unique key for a close row.
func closeKey(indexCode, tradeDate string) string {
	return fmt.Sprintf("%s|%s", indexCode, tradeDate)
}

// InsertBulk adds close rows. Fails entire batch on duplicate.
func (s *DailyCloseStore) InsertBulk(_ context.Context, closes []*domain.DailyClose) error {
	if len(closes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: check for duplicates (existing + intra-batch)
	batchKeys := make(map[string]struct{}, len(closes))
	for _, c := range closes {
		if c == nil || c.IndexCode == "" || c.TradeDate == "" {
			return storage.ErrInvalidInput
		}
		key := closeKey(c.IndexCode, c.TradeDate)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, c := range closes {
		closeCopy := *c
		s.data[closeKey(c.IndexCode, c.TradeDate)] = &closeCopy
	}

	return nil
}

// GetByIndex retrieves all closes for an index, ordered by trade_date ASC.
func (s *DailyCloseStore) GetByIndex(_ context.Context, indexCode string) ([]*domain.DailyClose, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.DailyClose
	for _, c := range s.data {
		if c.IndexCode == indexCode {
			closeCopy := *c
			result = append(result, &closeCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TradeDate < result[j].TradeDate
	})

	return result, nil
}

// GetSeries assembles the aligned series over every persisted date.
func (s *DailyCloseStore) GetSeries(_ context.Context) (*domain.AlignedSeries, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	closes := make([]*domain.DailyClose, 0, len(s.data))
	for _, c := range s.data {
		closeCopy := *c
		closes = append(closes, &closeCopy)
	}

	return storage.BuildAlignedSeries(closes), nil
}

// LatestDate returns the most recent trade_date for an index.
func (s *DailyCloseStore) LatestDate(_ context.Context, indexCode string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := ""
	for _, c := range s.data {
		if c.IndexCode == indexCode && c.TradeDate > latest {
			latest = c.TradeDate
		}
	}
	if latest == "" {
		return "", storage.ErrNotFound
	}
	return latest, nil
}

var _ storage.DailyCloseStore = (*DailyCloseStore)(nil)

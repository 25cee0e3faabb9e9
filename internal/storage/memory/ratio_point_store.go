package memory

import (
	"context"
	"sort"
	"sync"

	"index-compare/internal/domain"
	"index-compare/internal/storage"
)

// RatioPointStore is an in-memory implementation of storage.RatioPointStore.
type RatioPointStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RatioPoint // keyed by (index_code, trade_date)
}

// NewRatioPointStore creates a new in-memory ratio point store.
func NewRatioPointStore() *RatioPointStore {
	return &RatioPointStore{
		data: make(map[string]*domain.RatioPoint),
	}
}

// InsertBulk adds ratio points. Fails entire batch on duplicate.
func (s *RatioPointStore) InsertBulk(_ context.Context, points []*domain.RatioPoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(points))
	for _, p := range points {
		if p == nil || p.IndexCode == "" || p.TradeDate == "" {
			return storage.ErrInvalidInput
		}
		key := closeKey(p.IndexCode, p.TradeDate)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, p := range points {
		pointCopy := *p
		s.data[closeKey(p.IndexCode, p.TradeDate)] = &pointCopy
	}
	return nil
}

// GetByIndex retrieves all points for a target, ordered by trade_date ASC.
func (s *RatioPointStore) GetByIndex(_ context.Context, indexCode string) ([]*domain.RatioPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RatioPoint
	for _, p := range s.data {
		if p.IndexCode == indexCode {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TradeDate < result[j].TradeDate
	})

	return result, nil
}

// LatestDate returns the most recent trade_date for a target.
func (s *RatioPointStore) LatestDate(_ context.Context, indexCode string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := ""
	for _, p := range s.data {
		if p.IndexCode == indexCode && p.TradeDate > latest {
			latest = p.TradeDate
		}
	}
	if latest == "" {
		return "", storage.ErrNotFound
	}
	return latest, nil
}

var _ storage.RatioPointStore = (*RatioPointStore)(nil)

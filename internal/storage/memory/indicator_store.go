package memory

import (
	"context"
	"sort"
	"sync"

	"index-compare/internal/domain"
	"index-compare/internal/storage"
)

// IndicatorStore is an in-memory implementation of storage.IndicatorStore.
type IndicatorStore struct {
	mu   sync.RWMutex
	data map[string]*domain.IndicatorSnapshot // keyed by (index_code, trade_date)
}

// NewIndicatorStore creates a new in-memory indicator store.
func NewIndicatorStore() *IndicatorStore {
	return &IndicatorStore{
		data: make(map[string]*domain.IndicatorSnapshot),
	}
}

// SaveAll upserts the snapshot set produced by one calculator run.
func (s *IndicatorStore) SaveAll(_ context.Context, snapshots []*domain.IndicatorSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snap := range snapshots {
		if snap == nil || snap.IndexCode == "" || snap.TradeDate == "" {
			return storage.ErrInvalidInput
		}
	}
	for _, snap := range snapshots {
		snapCopy := *snap
		s.data[closeKey(snap.IndexCode, snap.TradeDate)] = &snapCopy
	}
	return nil
}

// GetLatest retrieves the most recent snapshot per index code.
func (s *IndicatorStore) GetLatest(_ context.Context) ([]*domain.IndicatorSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]*domain.IndicatorSnapshot)
	for _, snap := range s.data {
		cur, ok := latest[snap.IndexCode]
		if !ok || snap.TradeDate > cur.TradeDate {
			latest[snap.IndexCode] = snap
		}
	}

	result := make([]*domain.IndicatorSnapshot, 0, len(latest))
	for _, snap := range latest {
		snapCopy := *snap
		result = append(result, &snapCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].IndexCode < result[j].IndexCode
	})
	return result, nil
}

// GetByIndex retrieves the most recent snapshot for one index.
func (s *IndicatorStore) GetByIndex(_ context.Context, indexCode string) (*domain.IndicatorSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.IndicatorSnapshot
	for _, snap := range s.data {
		if snap.IndexCode != indexCode {
			continue
		}
		if found == nil || snap.TradeDate > found.TradeDate {
			found = snap
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	snapCopy := *found
	return &snapCopy, nil
}

var _ storage.IndicatorStore = (*IndicatorStore)(nil)

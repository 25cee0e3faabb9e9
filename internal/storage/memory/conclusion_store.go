package memory

import (
	"context"
	"sort"
	"sync"

	"index-compare/internal/domain"
	"index-compare/internal/storage"
)

// ConclusionStore is an in-memory implementation of storage.ConclusionStore.
type ConclusionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Conclusion // keyed by (index_code, trade_date)
}

// NewConclusionStore creates a new in-memory conclusion store.
func NewConclusionStore() *ConclusionStore {
	return &ConclusionStore{
		data: make(map[string]*domain.Conclusion),
	}
}

// SaveAll upserts the conclusion set produced by one analyzer run.
func (s *ConclusionStore) SaveAll(_ context.Context, conclusions []*domain.Conclusion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range conclusions {
		if c == nil || c.IndexCode == "" || c.TradeDate == "" {
			return storage.ErrInvalidInput
		}
	}
	for _, c := range conclusions {
		conclusionCopy := *c
		s.data[closeKey(c.IndexCode, c.TradeDate)] = &conclusionCopy
	}
	return nil
}

// GetLatest retrieves the most recent conclusion per index code.
func (s *ConclusionStore) GetLatest(_ context.Context) ([]*domain.Conclusion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]*domain.Conclusion)
	for _, c := range s.data {
		cur, ok := latest[c.IndexCode]
		if !ok || c.TradeDate > cur.TradeDate {
			latest[c.IndexCode] = c
		}
	}

	result := make([]*domain.Conclusion, 0, len(latest))
	for _, c := range latest {
		conclusionCopy := *c
		result = append(result, &conclusionCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].IndexCode < result[j].IndexCode
	})
	return result, nil
}

// GetByIndex retrieves the most recent conclusion for one index.
func (s *ConclusionStore) GetByIndex(_ context.Context, indexCode string) (*domain.Conclusion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.Conclusion
	for _, c := range s.data {
		if c.IndexCode != indexCode {
			continue
		}
		if found == nil || c.TradeDate > found.TradeDate {
			found = c
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	conclusionCopy := *found
	return &conclusionCopy, nil
}

var _ storage.ConclusionStore = (*ConclusionStore)(nil)

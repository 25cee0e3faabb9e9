package memory

import (
	"context"
	"sort"
	"sync"

	"index-compare/internal/domain"
	"index-compare/internal/storage"
)

// RunStore is an in-memory implementation of storage.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PipelineRun // keyed by run_id
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		data: make(map[string]*domain.PipelineRun),
	}
}

// Insert adds a finished run record.
func (s *RunStore) Insert(_ context.Context, run *domain.PipelineRun) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[run.RunID]; exists {
		return storage.ErrDuplicateKey
	}
	runCopy := *run
	s.data[run.RunID] = &runCopy
	return nil
}

// GetRecent retrieves up to limit runs, ordered by started_at DESC.
func (s *RunStore) GetRecent(_ context.Context, limit int) ([]*domain.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.PipelineRun, 0, len(s.data))
	for _, run := range s.data {
		runCopy := *run
		result = append(result, &runCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt > result[j].StartedAt
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ storage.RunStore = (*RunStore)(nil)

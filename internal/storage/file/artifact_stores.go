package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	json "github.com/goccy/go-json"

	"index-compare/internal/domain"
	"index-compare/internal/storage"
)

// IndicatorStore is a JSON-file implementation of storage.IndicatorStore.
// The file always holds the latest snapshot per index; SaveAll rewrites it.
type IndicatorStore struct {
	mu   sync.Mutex
	path string
}

// NewIndicatorStore creates an indicator store under dataDir.
func NewIndicatorStore(dataDir string) *IndicatorStore {
	return &IndicatorStore{path: filepath.Join(dataDir, indicatorsFile)}
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

	existing, err := readJSONFile[domain.IndicatorSnapshot](s.path)
	if err != nil {
		return err
	}
	merged := mergeByIndex(existing, snapshots, func(snap *domain.IndicatorSnapshot) string {
		return snap.IndexCode
	})
	return writeJSONFile(s.path, merged)
}

// GetLatest retrieves the most recent snapshot per index code.
func (s *IndicatorStore) GetLatest(_ context.Context) ([]*domain.IndicatorSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readJSONFile[domain.IndicatorSnapshot](s.path)
}

// GetByIndex retrieves the most recent snapshot for one index.
func (s *IndicatorStore) GetByIndex(ctx context.Context, indexCode string) (*domain.IndicatorSnapshot, error) {
	snapshots, err := s.GetLatest(ctx)
	if err != nil {
		return nil, err
	}
	for _, snap := range snapshots {
		if snap.IndexCode == indexCode {
			return snap, nil
		}
	}
	return nil, storage.ErrNotFound
}

var _ storage.IndicatorStore = (*IndicatorStore)(nil)

// ConclusionStore is a JSON-file implementation of storage.ConclusionStore.
type ConclusionStore struct {
	mu   sync.Mutex
	path string
}

// NewConclusionStore creates a conclusion store under dataDir.
func NewConclusionStore(dataDir string) *ConclusionStore {
	return &ConclusionStore{path: filepath.Join(dataDir, conclusionsFile)}
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

	existing, err := readJSONFile[domain.Conclusion](s.path)
	if err != nil {
		return err
	}
	merged := mergeByIndex(existing, conclusions, func(c *domain.Conclusion) string {
		return c.IndexCode
	})
	return writeJSONFile(s.path, merged)
}

// GetLatest retrieves the most recent conclusion per index code.
func (s *ConclusionStore) GetLatest(_ context.Context) ([]*domain.Conclusion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readJSONFile[domain.Conclusion](s.path)
}

// GetByIndex retrieves the most recent conclusion for one index.
func (s *ConclusionStore) GetByIndex(ctx context.Context, indexCode string) (*domain.Conclusion, error) {
	conclusions, err := s.GetLatest(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range conclusions {
		if c.IndexCode == indexCode {
			return c, nil
		}
	}
	return nil, storage.ErrNotFound
}

var _ storage.ConclusionStore = (*ConclusionStore)(nil)

// RunStore is a JSON-file implementation of storage.RunStore. The file keeps
// the newest maxPersistedRuns records.
type RunStore struct {
	mu   sync.Mutex
	path string
}

// NewRunStore creates a run store under dataDir.
func NewRunStore(dataDir string) *RunStore {
	return &RunStore{path: filepath.Join(dataDir, runsFile)}
}

// Insert adds a finished run record.
func (s *RunStore) Insert(_ context.Context, run *domain.PipelineRun) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	runs, err := readJSONFile[domain.PipelineRun](s.path)
	if err != nil {
		return err
	}
	for _, r := range runs {
		if r.RunID == run.RunID {
			return storage.ErrDuplicateKey
		}
	}

	runCopy := *run
	runs = append(runs, &runCopy)
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt > runs[j].StartedAt
	})
	if len(runs) > maxPersistedRuns {
		runs = runs[:maxPersistedRuns]
	}
	return writeJSONFile(s.path, runs)
}

// GetRecent retrieves up to limit runs, ordered by started_at DESC.
func (s *RunStore) GetRecent(_ context.Context, limit int) ([]*domain.PipelineRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs, err := readJSONFile[domain.PipelineRun](s.path)
	if err != nil {
		return nil, err
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt > runs[j].StartedAt
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

var _ storage.RunStore = (*RunStore)(nil)

// mergeByIndex replaces existing records whose key matches an update and
// appends the rest, keeping deterministic key order.
func mergeByIndex[T any](existing, updates []*T, key func(*T) string) []*T {
	byKey := make(map[string]*T, len(existing)+len(updates))
	for _, rec := range existing {
		byKey[key(rec)] = rec
	}
	for _, rec := range updates {
		recCopy := *rec
		byKey[key(rec)] = &recCopy
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	merged := make([]*T, 0, len(byKey))
	for _, k := range keys {
		merged = append(merged, byKey[k])
	}
	return merged
}

// readJSONFile decodes a JSON array artifact; a missing file is empty.
func readJSONFile[T any](path string) ([]*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var records []*T
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return records, nil
}

// writeJSONFile encodes a JSON array artifact with stable indentation.
func writeJSONFile[T any](path string, records []*T) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return writeAtomic(path, data)
}

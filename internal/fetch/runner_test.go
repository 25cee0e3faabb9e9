package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"index-compare/internal/domain"
	"index-compare/internal/storage/memory"
)

var (
	benchSpec  = domain.IndexSpec{Code: "000300.SH", Name: "CSI 300", Benchmark: true}
	targetSpec = domain.IndexSpec{Code: "000905.SH", Name: "CSI 500"}
	optSpec    = domain.IndexSpec{Code: "000510.SH", Name: "CSI A500", Optional: true}
)

// mockBarSource serves canned bars per index and records calls.
type mockBarSource struct {
	bars      map[string][]*domain.DailyBar
	failures  map[string]int   // fail this many calls before succeeding
	permanent map[string]error // always fail
	calls     map[string]int
	lastStart map[string]string
}

func newMockBarSource() *mockBarSource {
	return &mockBarSource{
		bars:      make(map[string][]*domain.DailyBar),
		failures:  make(map[string]int),
		permanent: make(map[string]error),
		calls:     make(map[string]int),
		lastStart: make(map[string]string),
	}
}

func (m *mockBarSource) DailyBars(_ context.Context, tsCode, startDate, _ string) ([]*domain.DailyBar, error) {
	m.calls[tsCode]++
	m.lastStart[tsCode] = startDate

	if err, ok := m.permanent[tsCode]; ok {
		return nil, err
	}
	if m.failures[tsCode] > 0 {
		m.failures[tsCode]--
		return nil, errors.New("transient failure")
	}

	var out []*domain.DailyBar
	for _, b := range m.bars[tsCode] {
		if startDate != "" && b.TradeDate < startDate {
			continue
		}
		bar := *b
		out = append(out, &bar)
	}
	return out, nil
}

func bar(code, date string, close float64) *domain.DailyBar {
	return &domain.DailyBar{IndexCode: code, TradeDate: date, Close: close}
}

func seedStore(t *testing.T, store *memory.DailyCloseStore, bars ...*domain.DailyBar) {
	t.Helper()
	closes := make([]*domain.DailyClose, 0, len(bars))
	for _, b := range bars {
		closes = append(closes, &domain.DailyClose{IndexCode: b.IndexCode, TradeDate: b.TradeDate, Close: b.Close})
	}
	require.NoError(t, store.InsertBulk(context.Background(), closes))
}

func TestRunner_FetchAndMerge(t *testing.T) {
	src := newMockBarSource()
	src.bars["000300.SH"] = []*domain.DailyBar{
		bar("000300.SH", "20240101", 3500),
		bar("000300.SH", "20240102", 3510),
		bar("000300.SH", "20240103", 3520),
	}
	// The target trades a shifted window: missing the first day, open on the last.
	src.bars["000905.SH"] = []*domain.DailyBar{
		bar("000905.SH", "20240102", 5600),
		bar("000905.SH", "20240103", 5610),
		bar("000905.SH", "20240104", 5620),
	}

	store := memory.NewDailyCloseStore()
	runner := NewRunner(RunnerOptions{
		Source:    src,
		Store:     store,
		Indices:   []domain.IndexSpec{benchSpec, targetSpec},
		StartDate: "20240101",
		Logger:    zerolog.Nop(),
	})

	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result.Series)

	assert.Equal(t, []string{"20240101", "20240102", "20240103", "20240104"}, result.Series.Dates)

	bench, ok := result.Series.Column("000300.SH")
	require.True(t, ok)
	assert.Equal(t, []float64{3500, 3510, 3520, 3520}, bench, "benchmark gap should forward-fill")

	target, ok := result.Series.Column("000905.SH")
	require.True(t, ok)
	assert.Equal(t, []float64{5600, 5600, 5610, 5620}, target, "leading gap should back-fill")

	require.Len(t, result.Indices, 2)
	assert.Equal(t, StatusFetched, result.Indices[0].Status)
	assert.Equal(t, 3, result.Indices[0].Rows)
	assert.Equal(t, "20240101", result.Indices[0].From)
	assert.Equal(t, "20240103", result.Indices[0].To)
	assert.Equal(t, 1, result.Indices[0].Attempts)

	// Persisted rows stay raw: no filled cell for the target on 20240101.
	closes, err := store.GetByIndex(context.Background(), "000905.SH")
	require.NoError(t, err)
	assert.Len(t, closes, 3)
	assert.Equal(t, "20240102", closes[0].TradeDate)
}

func TestRunner_IncrementalFetch(t *testing.T) {
	store := memory.NewDailyCloseStore()
	seedStore(t, store,
		bar("000300.SH", "20240101", 3500),
		bar("000300.SH", "20240102", 3510),
		bar("000905.SH", "20240101", 5590),
		bar("000905.SH", "20240102", 5600),
	)

	src := newMockBarSource()
	src.bars["000300.SH"] = []*domain.DailyBar{
		bar("000300.SH", "20240101", 3500),
		bar("000300.SH", "20240102", 3510),
		bar("000300.SH", "20240103", 3520),
	}
	src.bars["000905.SH"] = []*domain.DailyBar{
		bar("000905.SH", "20240101", 5590),
		bar("000905.SH", "20240102", 5600),
		bar("000905.SH", "20240103", 5610),
	}

	runner := NewRunner(RunnerOptions{
		Source:    src,
		Store:     store,
		Indices:   []domain.IndexSpec{benchSpec, targetSpec},
		StartDate: "20240101",
		Logger:    zerolog.Nop(),
	})

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	// Only dates past the persisted latest are requested and appended.
	assert.Equal(t, "20240103", src.lastStart["000300.SH"])
	assert.Equal(t, "20240103", src.lastStart["000905.SH"])
	assert.Equal(t, 1, result.Indices[0].Rows)
	assert.Equal(t, "20240103", result.Indices[0].From)

	closes, err := store.GetByIndex(context.Background(), "000300.SH")
	require.NoError(t, err)
	assert.Len(t, closes, 3)

	assert.Equal(t, 3, result.Series.Len())
}

func TestRunner_UpToDate(t *testing.T) {
	store := memory.NewDailyCloseStore()
	seedStore(t, store,
		bar("000300.SH", "20240102", 3510),
		bar("000905.SH", "20240102", 5600),
	)

	// The source has nothing past the persisted date.
	src := newMockBarSource()
	src.bars["000300.SH"] = []*domain.DailyBar{bar("000300.SH", "20240102", 3510)}
	src.bars["000905.SH"] = []*domain.DailyBar{bar("000905.SH", "20240102", 5600)}

	runner := NewRunner(RunnerOptions{
		Source:  src,
		Store:   store,
		Indices: []domain.IndexSpec{benchSpec, targetSpec},
		Logger:  zerolog.Nop(),
	})

	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusUpToDate, result.Indices[0].Status)
	assert.Equal(t, StatusUpToDate, result.Indices[1].Status)
	assert.Equal(t, 1, result.Series.Len())
}

func TestRunner_RetryThenSuccess(t *testing.T) {
	src := newMockBarSource()
	src.bars["000300.SH"] = []*domain.DailyBar{bar("000300.SH", "20240101", 3500)}
	src.bars["000905.SH"] = []*domain.DailyBar{bar("000905.SH", "20240101", 5590)}
	src.failures["000905.SH"] = 2

	store := memory.NewDailyCloseStore()
	runner := NewRunner(RunnerOptions{
		Source:        src,
		Store:         store,
		Indices:       []domain.IndexSpec{benchSpec, targetSpec},
		RetryTimes:    3,
		RetryInterval: time.Millisecond,
		Logger:        zerolog.Nop(),
	})

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, src.calls["000905.SH"])
	assert.Equal(t, 3, result.Indices[1].Attempts)
	assert.Equal(t, StatusFetched, result.Indices[1].Status)
}

func TestRunner_RequiredIndexExhaustsRetries(t *testing.T) {
	src := newMockBarSource()
	src.bars["000300.SH"] = []*domain.DailyBar{bar("000300.SH", "20240101", 3500)}
	src.permanent["000905.SH"] = errors.New("upstream down")

	runner := NewRunner(RunnerOptions{
		Source:        src,
		Store:         memory.NewDailyCloseStore(),
		Indices:       []domain.IndexSpec{benchSpec, targetSpec},
		RetryTimes:    2,
		RetryInterval: time.Millisecond,
		Logger:        zerolog.Nop(),
	})

	_, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000905.SH")
	assert.Equal(t, 3, src.calls["000905.SH"], "initial attempt plus two retries")
}

func TestRunner_OptionalIndexSkipped(t *testing.T) {
	src := newMockBarSource()
	src.bars["000300.SH"] = []*domain.DailyBar{bar("000300.SH", "20240101", 3500)}
	src.bars["000905.SH"] = []*domain.DailyBar{bar("000905.SH", "20240101", 5590)}
	src.permanent["000510.SH"] = errors.New("no such index")

	runner := NewRunner(RunnerOptions{
		Source:        src,
		Store:         memory.NewDailyCloseStore(),
		Indices:       []domain.IndexSpec{benchSpec, targetSpec, optSpec},
		RetryTimes:    1,
		RetryInterval: time.Millisecond,
		Logger:        zerolog.Nop(),
	})

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Indices, 3)
	assert.Equal(t, StatusSkipped, result.Indices[2].Status)
	_, ok := result.Series.Column("000510.SH")
	assert.False(t, ok, "skipped index must not appear in the series")
	assert.Len(t, result.Series.Closes, 2)
}

func TestRunner_FallbackOnPersistedHistory(t *testing.T) {
	store := memory.NewDailyCloseStore()
	seedStore(t, store,
		bar("000300.SH", "20240101", 3500),
		bar("000300.SH", "20240102", 3510),
	)

	src := newMockBarSource()
	src.permanent["000300.SH"] = errors.New("quota exhausted")
	src.bars["000905.SH"] = []*domain.DailyBar{
		bar("000905.SH", "20240101", 5590),
		bar("000905.SH", "20240102", 5600),
	}

	runner := NewRunner(RunnerOptions{
		Source:        src,
		Store:         store,
		Indices:       []domain.IndexSpec{benchSpec, targetSpec},
		RetryTimes:    1,
		RetryInterval: time.Millisecond,
		Logger:        zerolog.Nop(),
	})

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusFallback, result.Indices[0].Status)
	bench, ok := result.Series.Column("000300.SH")
	require.True(t, ok, "persisted history must carry the failed benchmark")
	assert.Equal(t, []float64{3500, 3510}, bench)
}

func TestRunner_BenchmarkWithoutData(t *testing.T) {
	// The benchmark call succeeds but yields nothing, and nothing is persisted.
	src := newMockBarSource()
	src.bars["000905.SH"] = []*domain.DailyBar{bar("000905.SH", "20240101", 5590)}

	runner := NewRunner(RunnerOptions{
		Source:  src,
		Store:   memory.NewDailyCloseStore(),
		Indices: []domain.IndexSpec{benchSpec, targetSpec},
		Logger:  zerolog.Nop(),
	})

	_, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "benchmark")
}

func TestRunner_NoTargetsAcquired(t *testing.T) {
	src := newMockBarSource()
	src.bars["000300.SH"] = []*domain.DailyBar{bar("000300.SH", "20240101", 3500)}
	src.permanent["000510.SH"] = errors.New("no such index")

	runner := NewRunner(RunnerOptions{
		Source:  src,
		Store:   memory.NewDailyCloseStore(),
		Indices: []domain.IndexSpec{benchSpec, optSpec},
		Logger:  zerolog.Nop(),
	})

	_, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no target series")
}

func TestRunner_DropsUnconfiguredIndices(t *testing.T) {
	store := memory.NewDailyCloseStore()
	seedStore(t, store,
		bar("000300.SH", "20240101", 3500),
		bar("000905.SH", "20240101", 5590),
		bar("999999.SH", "20240101", 1234), // from an older configuration
	)

	src := newMockBarSource()
	src.bars["000300.SH"] = []*domain.DailyBar{bar("000300.SH", "20240101", 3500)}
	src.bars["000905.SH"] = []*domain.DailyBar{bar("000905.SH", "20240101", 5590)}

	runner := NewRunner(RunnerOptions{
		Source:  src,
		Store:   store,
		Indices: []domain.IndexSpec{benchSpec, targetSpec},
		Logger:  zerolog.Nop(),
	})

	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	_, ok := result.Series.Column("999999.SH")
	assert.False(t, ok)
}

func TestRunner_ContextCancelledDuringRetry(t *testing.T) {
	src := newMockBarSource()
	src.permanent["000300.SH"] = errors.New("down")

	runner := NewRunner(RunnerOptions{
		Source:        src,
		Store:         memory.NewDailyCloseStore(),
		Indices:       []domain.IndexSpec{benchSpec, targetSpec},
		RetryTimes:    5,
		RetryInterval: time.Hour, // Run must not wait this out
		Logger:        zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

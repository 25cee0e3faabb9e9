package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"index-compare/internal/config"
	"index-compare/internal/domain"
	"index-compare/internal/fetch"
	"index-compare/internal/storage/memory"
)

// stubSource serves a fixed bar set, honoring the date bounds the way the
// live source does.
type stubSource struct {
	bars map[string][]*domain.DailyBar
}

func (s *stubSource) DailyBars(_ context.Context, tsCode, startDate, endDate string) ([]*domain.DailyBar, error) {
	var out []*domain.DailyBar
	for _, b := range s.bars[tsCode] {
		if startDate != "" && b.TradeDate < startDate {
			continue
		}
		if endDate != "" && b.TradeDate > endDate {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func stubBars(code string, closes ...float64) []*domain.DailyBar {
	bars := make([]*domain.DailyBar, 0, len(closes))
	for i, c := range closes {
		bars = append(bars, &domain.DailyBar{
			IndexCode: code,
			TradeDate: fmt.Sprintf("202401%02d", i+1),
			Close:     c,
		})
	}
	return bars
}

// sevenDaySource covers both indices with a week of history, enough for the
// 5-session change window to be defined.
func sevenDaySource() *stubSource {
	return &stubSource{bars: map[string][]*domain.DailyBar{
		"000300.SH": stubBars("000300.SH", 3500, 3504, 3498, 3510, 3516, 3509, 3520),
		"000905.SH": stubBars("000905.SH", 5600, 5622, 5610, 5655, 5670, 5648, 5690),
	}}
}

type testEnv struct {
	pipe        *Pipeline
	closes      *memory.DailyCloseStore
	ratios      *memory.RatioPointStore
	indicators  *memory.IndicatorStore
	conclusions *memory.ConclusionStore
	runs        *memory.RunStore
	cfg         config.Config
}

func newTestEnv(t *testing.T, source fetch.BarSource) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Indices = []config.IndexConfig{
		{Code: "000300.SH", Name: "CSI 300", Benchmark: true},
		{Code: "000905.SH", Name: "CSI 500"},
	}
	base := t.TempDir()
	cfg.Output.DataDir = filepath.Join(base, "data")
	cfg.Output.ReportDir = filepath.Join(base, "reports")
	cfg.API.RetryTimes = 0
	cfg.API.RetryIntervalSec = 0

	env := &testEnv{
		closes:      memory.NewDailyCloseStore(),
		ratios:      memory.NewRatioPointStore(),
		indicators:  memory.NewIndicatorStore(),
		conclusions: memory.NewConclusionStore(),
		runs:        memory.NewRunStore(),
		cfg:         cfg,
	}
	env.pipe = New(Options{
		Source:      source,
		Closes:      env.closes,
		Ratios:      env.ratios,
		Indicators:  env.indicators,
		Conclusions: env.conclusions,
		Runs:        env.runs,
		Config:      cfg,
		Logger:      zerolog.Nop(),
	})
	return env
}

func TestRunFullPipeline(t *testing.T) {
	env := newTestEnv(t, sevenDaySource())
	ctx := context.Background()

	run, err := env.pipe.Run(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, domain.RunSucceeded, run.Status)
	require.NotNil(t, run.FinishedAt)
	assert.GreaterOrEqual(t, *run.FinishedAt, run.StartedAt)
	assert.Equal(t, 2, run.IndicesFetched)
	assert.Equal(t, 14, run.RowsAppended)
	assert.Equal(t, 1, run.TargetsAnalyzed)
	assert.Nil(t, run.Error)

	// Every stage left its artifact behind.
	require.NotNil(t, run.ReportPath)
	_, err = os.Stat(*run.ReportPath)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(env.cfg.Output.ReportDir, "latest.html"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(env.cfg.Output.DataDir, "processed_data.csv"))
	require.NoError(t, err)

	recent, err := env.runs.GetRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, run.RunID, recent[0].RunID)
	assert.Equal(t, domain.RunSucceeded, recent[0].Status)
}

func TestRunRecordsFailure(t *testing.T) {
	env := newTestEnv(t, &stubSource{bars: map[string][]*domain.DailyBar{}})
	ctx := context.Background()

	run, err := env.pipe.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch stage")

	assert.Equal(t, domain.RunFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Contains(t, *run.Error, "fetch stage")
	assert.Nil(t, run.ReportPath)

	recent, err := env.runs.GetRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, domain.RunFailed, recent[0].Status)
}

func TestStagesRunIndividually(t *testing.T) {
	env := newTestEnv(t, sevenDaySource())
	ctx := context.Background()

	fetched, err := env.pipe.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, fetched.Indices, 2)
	assert.Equal(t, fetch.StatusFetched, fetched.Indices[0].Status)
	assert.Equal(t, 7, fetched.Indices[0].Rows)

	calcRes, err := env.pipe.Calc(ctx)
	require.NoError(t, err)
	require.Len(t, calcRes.Targets, 1)
	assert.Equal(t, "20240107", calcRes.TradeDate)

	snaps, err := env.indicators.GetLatest(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "000905.SH", snaps[0].IndexCode)

	points, err := env.ratios.GetByIndex(ctx, "000905.SH")
	require.NoError(t, err)
	assert.Len(t, points, 7)

	conclusions, err := env.pipe.Analyze(ctx)
	require.NoError(t, err)
	require.Len(t, conclusions, 1)
	assert.Equal(t, "CSI 500", conclusions[0].IndexName)

	stored, err := env.conclusions.GetByIndex(ctx, "000905.SH")
	require.NoError(t, err)
	assert.Equal(t, conclusions[0].CompositeScore, stored.CompositeScore)

	path, err := env.pipe.Report(ctx)
	require.NoError(t, err)
	assert.Contains(t, filepath.Base(path), "index_compare_")
}

func TestCalcRerunSkipsPersistedPoints(t *testing.T) {
	env := newTestEnv(t, sevenDaySource())
	ctx := context.Background()

	_, err := env.pipe.Fetch(ctx)
	require.NoError(t, err)
	_, err = env.pipe.Calc(ctx)
	require.NoError(t, err)

	// The point series is append-only; a rerun over the same history must
	// not collide with the persisted rows.
	_, err = env.pipe.Calc(ctx)
	require.NoError(t, err)

	points, err := env.ratios.GetByIndex(ctx, "000905.SH")
	require.NoError(t, err)
	assert.Len(t, points, 7)
}

func TestCalcRequiresCloseData(t *testing.T) {
	env := newTestEnv(t, sevenDaySource())

	_, err := env.pipe.Calc(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run fetch first")
}

func TestAnalyzeRequiresSnapshots(t *testing.T) {
	env := newTestEnv(t, sevenDaySource())

	_, err := env.pipe.Analyze(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run calc first")
}

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"index-compare/internal/domain"
	"index-compare/internal/storage"
)

func TestRunStore_InsertAndGetRecent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRunStore(pool)

	runs := []*domain.PipelineRun{
		{RunID: "run-1", Status: domain.RunSucceeded, StartedAt: 1700000000, FinishedAt: ptr(int64(1700000060)), IndicesFetched: 4, RowsAppended: 12, TargetsAnalyzed: 3, ReportPath: ptr("reports/index_compare_20231114_180100.html")},
		{RunID: "run-2", Status: domain.RunFailed, StartedAt: 1700086400, Error: ptr("fetch 000300.SH: connection refused")},
		{RunID: "run-3", Status: domain.RunSucceeded, StartedAt: 1700172800, FinishedAt: ptr(int64(1700172860)), IndicesFetched: 4, RowsAppended: 4, TargetsAnalyzed: 3},
	}
	for _, r := range runs {
		require.NoError(t, store.Insert(ctx, r))
	}

	recent, err := store.GetRecent(ctx, 2)
	require.NoError(t, err)

	require.Len(t, recent, 2)
	assert.Equal(t, "run-3", recent[0].RunID)
	assert.Equal(t, "run-2", recent[1].RunID)
	assert.Equal(t, domain.RunFailed, recent[1].Status)
	require.NotNil(t, recent[1].Error)
	assert.Contains(t, *recent[1].Error, "connection refused")
	assert.Nil(t, recent[1].FinishedAt)
}

func TestRunStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRunStore(pool)

	run := &domain.PipelineRun{RunID: "run-1", Status: domain.RunSucceeded, StartedAt: 1700000000}
	require.NoError(t, store.Insert(ctx, run))

	err := store.Insert(ctx, run)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestRunStore_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRunStore(pool)

	assert.ErrorIs(t, store.Insert(ctx, nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(ctx, &domain.PipelineRun{}), storage.ErrInvalidInput)
}

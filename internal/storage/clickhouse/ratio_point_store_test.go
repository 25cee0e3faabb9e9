package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"index-compare/internal/domain"
	"index-compare/internal/storage"
)

func TestRatioPointStore_InsertBulk(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRatioPointStore(conn)
	ctx := context.Background()

	// Test empty insert
	err := store.InsertBulk(ctx, nil)
	assert.NoError(t, err)

	points := []*domain.RatioPoint{
		{IndexCode: "000905.SH", TradeDate: "20240102", Ratio: 1.5234},
		{IndexCode: "000905.SH", TradeDate: "20240103", Ratio: 1.5301, RollingMA: ptr(1.5198)},
	}

	err = store.InsertBulk(ctx, points)
	require.NoError(t, err)

	got, err := store.GetByIndex(ctx, "000905.SH")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "20240102", got[0].TradeDate)
	assert.Equal(t, 1.5234, got[0].Ratio)
	assert.Nil(t, got[0].RollingMA)
	require.NotNil(t, got[1].RollingMA)
	assert.Equal(t, 1.5198, *got[1].RollingMA)
}

func TestRatioPointStore_InsertBulk_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRatioPointStore(conn)
	ctx := context.Background()

	points := []*domain.RatioPoint{
		{IndexCode: "000905.SH", TradeDate: "20240102", Ratio: 1.5234},
	}

	err := store.InsertBulk(ctx, points)
	require.NoError(t, err)

	// Try to insert duplicate
	err = store.InsertBulk(ctx, points)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestRatioPointStore_InsertBulk_IntraBatchDuplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRatioPointStore(conn)
	ctx := context.Background()

	points := []*domain.RatioPoint{
		{IndexCode: "000905.SH", TradeDate: "20240102", Ratio: 1.5234},
		{IndexCode: "000905.SH", TradeDate: "20240102", Ratio: 1.5301},
	}

	err := store.InsertBulk(ctx, points)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestRatioPointStore_GetByIndex_Ordering(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRatioPointStore(conn)
	ctx := context.Background()

	// Insert out of order; reads must come back trade_date ASC.
	points := []*domain.RatioPoint{
		{IndexCode: "000905.SH", TradeDate: "20240110", Ratio: 1.54},
		{IndexCode: "000905.SH", TradeDate: "20240102", Ratio: 1.52},
		{IndexCode: "000905.SH", TradeDate: "20240105", Ratio: 1.53},
		{IndexCode: "000852.SH", TradeDate: "20240102", Ratio: 1.80},
	}
	require.NoError(t, store.InsertBulk(ctx, points))

	got, err := store.GetByIndex(ctx, "000905.SH")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "20240102", got[0].TradeDate)
	assert.Equal(t, "20240105", got[1].TradeDate)
	assert.Equal(t, "20240110", got[2].TradeDate)
}

func TestRatioPointStore_LatestDate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRatioPointStore(conn)
	ctx := context.Background()

	_, err := store.LatestDate(ctx, "000905.SH")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	points := []*domain.RatioPoint{
		{IndexCode: "000905.SH", TradeDate: "20240102", Ratio: 1.52},
		{IndexCode: "000905.SH", TradeDate: "20240110", Ratio: 1.54},
	}
	require.NoError(t, store.InsertBulk(ctx, points))

	latest, err := store.LatestDate(ctx, "000905.SH")
	require.NoError(t, err)
	assert.Equal(t, "20240110", latest)
}

func TestRatioPointStore_InvalidInput(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRatioPointStore(conn)
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.RatioPoint{nil})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	err = store.InsertBulk(ctx, []*domain.RatioPoint{{TradeDate: "20240102"}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

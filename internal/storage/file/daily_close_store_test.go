package file

import (
	"context"
	"errors"
	"testing"

	"index-compare/internal/domain"
	"index-compare/internal/storage"
)

func TestDailyCloseStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := NewDailyCloseStore(dir)
	closes := []*domain.DailyClose{
		{IndexCode: "000300.SH", TradeDate: "20240102", Close: 3400.5},
		{IndexCode: "000300.SH", TradeDate: "20240103", Close: 3412.1},
		{IndexCode: "000905.SH", TradeDate: "20240102", Close: 5200.0},
		{IndexCode: "000905.SH", TradeDate: "20240103", Close: 5215.7},
	}
	if err := store.InsertBulk(ctx, closes); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	// A fresh store over the same directory must see the persisted rows.
	reopened := NewDailyCloseStore(dir)
	result, err := reopened.GetByIndex(ctx, "000300.SH")
	if err != nil {
		t.Fatalf("GetByIndex failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("Expected 2 closes after reload, got %d", len(result))
	}
	if result[0].TradeDate != "20240102" || result[0].Close != 3400.5 {
		t.Errorf("Unexpected first close: %+v", result[0])
	}
}

func TestDailyCloseStore_DuplicateAcrossReload(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	closes := []*domain.DailyClose{
		{IndexCode: "000300.SH", TradeDate: "20240102", Close: 3400.5},
	}
	if err := NewDailyCloseStore(dir).InsertBulk(ctx, closes); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := NewDailyCloseStore(dir).InsertBulk(ctx, closes)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey after reload, got %v", err)
	}
}

func TestDailyCloseStore_DisjointDatesLeaveGaps(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := NewDailyCloseStore(dir)
	closes := []*domain.DailyClose{
		{IndexCode: "000300.SH", TradeDate: "20240102", Close: 3400.5},
		{IndexCode: "000905.SH", TradeDate: "20240103", Close: 5215.7},
	}
	if err := store.InsertBulk(ctx, closes); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	series, err := NewDailyCloseStore(dir).GetSeries(ctx)
	if err != nil {
		t.Fatalf("GetSeries failed: %v", err)
	}
	if series.Len() != 2 {
		t.Fatalf("Expected 2 dates, got %d", series.Len())
	}

	// 000300.SH has no close on 20240103, so the cell reloads as NaN.
	col, ok := series.Column("000300.SH")
	if !ok {
		t.Fatal("Expected 000300.SH column")
	}
	if !domain.IsDefined(col[0]) {
		t.Errorf("Expected defined close at 20240102, got NaN")
	}
	if domain.IsDefined(col[1]) {
		t.Errorf("Expected NaN at 20240103, got %f", col[1])
	}

	// The gap must not count as a row: inserting the missing cell succeeds.
	fill := []*domain.DailyClose{{IndexCode: "000300.SH", TradeDate: "20240103", Close: 3410.0}}
	if err := NewDailyCloseStore(dir).InsertBulk(ctx, fill); err != nil {
		t.Errorf("Filling a NaN cell should not be a duplicate: %v", err)
	}
}

func TestDailyCloseStore_LatestDateSkipsGaps(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := NewDailyCloseStore(dir)
	closes := []*domain.DailyClose{
		{IndexCode: "000300.SH", TradeDate: "20240102", Close: 3400.5},
		{IndexCode: "000300.SH", TradeDate: "20240105", Close: 3405.8},
		{IndexCode: "000905.SH", TradeDate: "20240110", Close: 5230.0},
	}
	if err := store.InsertBulk(ctx, closes); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	// 000300.SH's column ends in a NaN cell at 20240110; LatestDate must
	// report the last defined close instead.
	latest, err := store.LatestDate(ctx, "000300.SH")
	if err != nil {
		t.Fatalf("LatestDate failed: %v", err)
	}
	if latest != "20240105" {
		t.Errorf("Expected 20240105, got %s", latest)
	}

	if _, err := store.LatestDate(ctx, "999999.SH"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown index, got %v", err)
	}
}

func TestDailyCloseStore_EmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := NewDailyCloseStore(dir)
	series, err := store.GetSeries(ctx)
	if err != nil {
		t.Fatalf("GetSeries on missing file failed: %v", err)
	}
	if series.Len() != 0 {
		t.Errorf("Expected empty series, got %d dates", series.Len())
	}

	if _, err := store.LatestDate(ctx, "000300.SH"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on missing file, got %v", err)
	}
}

func TestDailyCloseStore_InvalidInput(t *testing.T) {
	store := NewDailyCloseStore(t.TempDir())
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.DailyClose{nil})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil close, got %v", err)
	}

	err = store.InsertBulk(ctx, []*domain.DailyClose{{IndexCode: "000300.SH"}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty TradeDate, got %v", err)
	}
}

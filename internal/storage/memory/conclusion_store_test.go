package memory

import (
	"context"
	"errors"
	"testing"

	"index-compare/internal/domain"
	"index-compare/internal/storage"
)

func TestConclusionStore_SaveAllReplaces(t *testing.T) {
	store := NewConclusionStore()
	ctx := context.Background()

	first := []*domain.Conclusion{
		{IndexCode: "000905.SH", TradeDate: "20240110", CompositeScore: 0.5},
	}
	if err := store.SaveAll(ctx, first); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}

	// Rerun for the same date replaces the row
	second := []*domain.Conclusion{
		{IndexCode: "000905.SH", TradeDate: "20240110", CompositeScore: -0.25},
	}
	if err := store.SaveAll(ctx, second); err != nil {
		t.Fatalf("SaveAll rerun failed: %v", err)
	}

	got, err := store.GetByIndex(ctx, "000905.SH")
	if err != nil {
		t.Fatalf("GetByIndex failed: %v", err)
	}
	if got.CompositeScore != -0.25 {
		t.Errorf("Expected replaced score -0.25, got %f", got.CompositeScore)
	}
}

func TestConclusionStore_GetLatestPerIndex(t *testing.T) {
	store := NewConclusionStore()
	ctx := context.Background()

	conclusions := []*domain.Conclusion{
		{IndexCode: "000905.SH", TradeDate: "20240109", CompositeScore: 0.1},
		{IndexCode: "000905.SH", TradeDate: "20240110", CompositeScore: 0.2},
		{IndexCode: "000852.SH", TradeDate: "20240110", CompositeScore: -0.4},
	}
	if err := store.SaveAll(ctx, conclusions); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}

	latest, err := store.GetLatest(ctx)
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("Expected 2 conclusions, got %d", len(latest))
	}
	// Sorted by index code
	if latest[0].IndexCode != "000852.SH" || latest[1].IndexCode != "000905.SH" {
		t.Errorf("Unexpected order: %s, %s", latest[0].IndexCode, latest[1].IndexCode)
	}
	if latest[1].TradeDate != "20240110" {
		t.Errorf("Expected latest date 20240110, got %s", latest[1].TradeDate)
	}
}

func TestConclusionStore_GetByIndexNotFound(t *testing.T) {
	store := NewConclusionStore()
	ctx := context.Background()

	_, err := store.GetByIndex(ctx, "000905.SH")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestIndicatorStore_SaveAllAndGetLatest(t *testing.T) {
	store := NewIndicatorStore()
	ctx := context.Background()

	snaps := []*domain.IndicatorSnapshot{
		{IndexCode: "000905.SH", TradeDate: "20240110", CurrentRatio: 1.5123, Percentile: 42.0},
		{IndexCode: "000852.SH", TradeDate: "20240110", CurrentRatio: 1.8456, Percentile: 88.5},
	}
	if err := store.SaveAll(ctx, snaps); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}

	got, err := store.GetByIndex(ctx, "000852.SH")
	if err != nil {
		t.Fatalf("GetByIndex failed: %v", err)
	}
	if got.Percentile != 88.5 {
		t.Errorf("Expected percentile 88.5, got %f", got.Percentile)
	}

	latest, err := store.GetLatest(ctx)
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if len(latest) != 2 {
		t.Errorf("Expected 2 snapshots, got %d", len(latest))
	}
}

func TestIndicatorStore_InvalidInput(t *testing.T) {
	store := NewIndicatorStore()
	ctx := context.Background()

	err := store.SaveAll(ctx, []*domain.IndicatorSnapshot{{IndexCode: ""}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

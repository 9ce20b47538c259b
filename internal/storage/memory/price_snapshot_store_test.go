package memory

import (
	"context"
	"errors"
	"testing"

	"solana-trader/internal/domain"
	"solana-trader/internal/storage"
)

func TestPriceSnapshotStore_InsertAndRange(t *testing.T) {
	store := NewPriceSnapshotStore()
	ctx := context.Background()

	points := []*domain.PricePoint{
		{Asset: "A", TimestampMs: 3000, Price: 1.3},
		{Asset: "A", TimestampMs: 1000, Price: 1.1},
		{Asset: "A", TimestampMs: 2000, Price: 1.2},
		{Asset: "B", TimestampMs: 1000, Price: 9},
	}
	if err := store.InsertBulk(ctx, points); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByTimeRange(ctx, "A", 1000, 2000)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(got) != 2 || got[0].Price != 1.1 || got[1].Price != 1.2 {
		t.Errorf("unexpected range result: %+v", got)
	}

	closes, _ := store.RecentCloses(ctx, "A", 2)
	if len(closes) != 2 || closes[0] != 1.2 || closes[1] != 1.3 {
		t.Errorf("unexpected closes: %v", closes)
	}
}

func TestPriceSnapshotStore_InvalidBatchWritesNothing(t *testing.T) {
	store := NewPriceSnapshotStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.PricePoint{
		{Asset: "A", TimestampMs: 1, Price: 1},
		{TimestampMs: 2, Price: 1},
	})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	closes, _ := store.RecentCloses(ctx, "A", 10)
	if len(closes) != 0 {
		t.Errorf("expected nothing written, got %v", closes)
	}
}

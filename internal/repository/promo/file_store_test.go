package promo

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"promo-service/internal/models"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "promo_codes.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return store
}

func sampleCode(code string) *models.PromoCode {
	now := time.Now().UTC()
	return &models.PromoCode{
		Code:         code,
		Discount:     10,
		DiscountType: models.DiscountPercentage,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestFileStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	if _, err := store.Get(ctx, "WELCOME10"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("Get on empty store: err = %v, want ErrCodeNotFound", err)
	}

	if err := store.Put(ctx, sampleCode("WELCOME10")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	record, err := store.Get(ctx, "WELCOME10")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.Discount != 10 || record.DiscountType != models.DiscountPercentage {
		t.Errorf("unexpected record: %+v", record)
	}

	if err := store.Delete(ctx, "WELCOME10"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "WELCOME10"); !errors.Is(err, ErrCodeNotFound) {
		t.Errorf("Get after delete: err = %v, want ErrCodeNotFound", err)
	}
	if err := store.Delete(ctx, "WELCOME10"); !errors.Is(err, ErrCodeNotFound) {
		t.Errorf("Delete absent code: err = %v, want ErrCodeNotFound", err)
	}
}

func TestFileStore_StatsTrackMutations(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	_ = store.Put(ctx, sampleCode("A"))
	_ = store.Put(ctx, sampleCode("B"))
	// Upsert of an existing code must not bump the counter.
	_ = store.Put(ctx, sampleCode("A"))

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalCodes != 2 {
		t.Errorf("TotalCodes = %d, want 2", stats.TotalCodes)
	}

	if _, err := store.IncrementUsage(ctx, "A"); err != nil {
		t.Fatalf("IncrementUsage: %v", err)
	}
	stats, _ = store.Stats(ctx)
	if stats.TotalUsages != 1 {
		t.Errorf("TotalUsages = %d, want 1", stats.TotalUsages)
	}

	_ = store.Delete(ctx, "B")
	stats, _ = store.Stats(ctx)
	if stats.TotalCodes != 1 {
		t.Errorf("TotalCodes after delete = %d, want 1", stats.TotalCodes)
	}
}

func TestFileStore_IncrementUsageHonorsLimit(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	limit := 1
	code := sampleCode("ONCE")
	code.UsageLimit = &limit
	_ = store.Put(ctx, code)

	updated, err := store.IncrementUsage(ctx, "ONCE")
	if err != nil {
		t.Fatalf("first IncrementUsage: %v", err)
	}
	if updated.UsedCount != 1 {
		t.Errorf("UsedCount = %d, want 1", updated.UsedCount)
	}

	if _, err := store.IncrementUsage(ctx, "ONCE"); !errors.Is(err, ErrUsageLimitReached) {
		t.Errorf("second IncrementUsage: err = %v, want ErrUsageLimitReached", err)
	}
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "promo_codes.json")

	first, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	_ = first.Put(ctx, sampleCode("DURABLE"))
	_, _ = first.IncrementUsage(ctx, "DURABLE")

	second, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	record, err := second.Get(ctx, "DURABLE")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if record.UsedCount != 1 {
		t.Errorf("UsedCount after reopen = %d, want 1", record.UsedCount)
	}
	stats, _ := second.Stats(ctx)
	if stats.TotalCodes != 1 || stats.TotalUsages != 1 {
		t.Errorf("stats after reopen = %+v", stats)
	}
}

func TestFileStore_ListSortedCopies(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	_ = store.Put(ctx, sampleCode("ZULU"))
	_ = store.Put(ctx, sampleCode("ALPHA"))

	records, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len = %d, want 2", len(records))
	}
	if records[0].Code != "ALPHA" || records[1].Code != "ZULU" {
		t.Errorf("unexpected order: %s, %s", records[0].Code, records[1].Code)
	}

	// Mutating a returned record must not leak into the store.
	records[0].Discount = 99
	reread, _ := store.Get(ctx, "ALPHA")
	if reread.Discount == 99 {
		t.Error("List returned a live reference into the store")
	}
}

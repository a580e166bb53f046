package models_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/models"
)

func TestNextDocumentNumber_ConcurrentAllocationsAreGapless(t *testing.T) {
	setupIntegration(t)
	ctx := context.Background()

	db := config.GetDB()
	shop := models.Shop{BusinessId: "biz-1", Name: "Main", BranchCode: "B001"}
	if err := db.Create(&shop).Error; err != nil {
		t.Fatalf("create shop: %v", err)
	}

	date := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	const n = 25
	codes := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i], errs[i] = models.NextDocumentNumber(ctx, models.DocumentTypeInvoice, shop.ID, date)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("allocation %d failed: %v", i, err)
		}
	}

	// Suffixes must be exactly {1..n}: no duplicates, no gaps.
	suffixes := make([]string, n)
	for i, code := range codes {
		prefix := "B001-20250101-"
		if len(code) != len(prefix)+5 || code[:len(prefix)] != prefix {
			t.Fatalf("unexpected code format: %q", code)
		}
		suffixes[i] = code[len(prefix):]
	}
	sort.Strings(suffixes)
	for i, s := range suffixes {
		want := fmt.Sprintf("%05d", i+1)
		if s != want {
			t.Fatalf("suffix mismatch at %d: got %s want %s (all: %v)", i, s, want, suffixes)
		}
	}
}

func TestNextDocumentNumber_ResetsOnDateChange(t *testing.T) {
	setupIntegration(t)
	ctx := context.Background()

	db := config.GetDB()
	shop := models.Shop{BusinessId: "biz-1", Name: "Main", BranchCode: "B002"}
	if err := db.Create(&shop).Error; err != nil {
		t.Fatalf("create shop: %v", err)
	}

	day1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if _, err := models.NextDocumentNumber(ctx, models.DocumentTypeInvoice, shop.ID, day1); err != nil {
			t.Fatalf("day1 allocation: %v", err)
		}
	}
	code, err := models.NextDocumentNumber(ctx, models.DocumentTypeInvoice, shop.ID, day2)
	if err != nil {
		t.Fatalf("day2 allocation: %v", err)
	}
	if code != "B002-20250102-00001" {
		t.Fatalf("expected counter reset on new day, got %q", code)
	}
}

func TestNextDocumentNumber_IndependentKeysDoNotShareCounters(t *testing.T) {
	setupIntegration(t)
	ctx := context.Background()

	db := config.GetDB()
	shop := models.Shop{BusinessId: "biz-1", Name: "Main", BranchCode: "B003"}
	if err := db.Create(&shop).Error; err != nil {
		t.Fatalf("create shop: %v", err)
	}

	date := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, err := models.NextDocumentNumber(ctx, models.DocumentTypeInvoice, shop.ID, date); err != nil {
		t.Fatalf("invoice allocation: %v", err)
	}
	code, err := models.NextDocumentNumber(ctx, models.DocumentTypeReceipt, shop.ID, date)
	if err != nil {
		t.Fatalf("receipt allocation: %v", err)
	}
	if code != "B003-20250301-00001" {
		t.Fatalf("receipt counter should start fresh, got %q", code)
	}
}

func TestNextDocumentNumber_DerivesAndPersistsBranchCode(t *testing.T) {
	setupIntegration(t)
	ctx := context.Background()

	db := config.GetDB()
	shop := models.Shop{BusinessId: "biz-1", Name: "No Code Yet"}
	if err := db.Create(&shop).Error; err != nil {
		t.Fatalf("create shop: %v", err)
	}

	date := time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC)
	code, err := models.NextDocumentNumber(ctx, models.DocumentTypeInvoice, shop.ID, date)
	if err != nil {
		t.Fatalf("allocation: %v", err)
	}
	wantPrefix := models.DeriveBranchCode(shop.ID) + "-20250505-"
	if code != wantPrefix+"00001" {
		t.Fatalf("expected derived branch code in %q (want prefix %q)", code, wantPrefix)
	}

	var stored models.Shop
	if err := db.First(&stored, shop.ID).Error; err != nil {
		t.Fatalf("reload shop: %v", err)
	}
	if stored.BranchCode != models.DeriveBranchCode(shop.ID) {
		t.Fatalf("derived code not persisted: %q", stored.BranchCode)
	}
}

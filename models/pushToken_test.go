package models_test

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/models"
)

func TestRegisterPushToken_UpsertReassignsOwner(t *testing.T) {
	setupIntegration(t)
	ctx := context.Background()

	if err := models.RegisterPushToken(ctx, 1, "abc", "ios", models.PushAppCustomerMobile); err != nil {
		t.Fatalf("register for user 1: %v", err)
	}
	if err := models.RegisterPushToken(ctx, 2, "abc", "android", models.PushAppCustomerMobile); err != nil {
		t.Fatalf("register for user 2: %v", err)
	}

	db := config.GetDB()
	var rows []models.PushToken
	if err := db.Where("token = ?", "abc").Find(&rows).Error; err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly one row for token, got %d", len(rows))
	}
	if rows[0].UserId != 2 {
		t.Fatalf("token should now belong to user 2, got %d", rows[0].UserId)
	}
	if rows[0].Platform != "android" {
		t.Fatalf("platform should be overwritten, got %q", rows[0].Platform)
	}
}

func TestUnregisterPushToken_OnlyDeletesWhenOwned(t *testing.T) {
	setupIntegration(t)
	ctx := context.Background()

	if err := models.RegisterPushToken(ctx, 2, "xyz", "ios", models.PushAppCustomerMobile); err != nil {
		t.Fatalf("register: %v", err)
	}

	// User 1 no longer owns the token; the row stays.
	if err := models.UnregisterPushToken(ctx, 1, "xyz"); err != nil {
		t.Fatalf("unregister by non-owner: %v", err)
	}
	tokens, err := models.TokensFor(ctx, 2, models.PushAppCustomerMobile)
	if err != nil {
		t.Fatalf("tokens for user 2: %v", err)
	}
	if len(tokens) != 1 || tokens[0] != "xyz" {
		t.Fatalf("token should survive non-owner unregister, got %v", tokens)
	}

	if err := models.UnregisterPushToken(ctx, 2, "xyz"); err != nil {
		t.Fatalf("unregister by owner: %v", err)
	}
	tokens, err = models.TokensFor(ctx, 2, models.PushAppCustomerMobile)
	if err != nil {
		t.Fatalf("tokens after delete: %v", err)
	}
	if len(tokens) != 0 {
		t.Fatalf("expected no tokens after owner unregister, got %v", tokens)
	}
}

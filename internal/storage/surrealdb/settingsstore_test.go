package surrealdb

import (
	"context"
	"testing"
)

func TestSettingsStore_SetAndGet(t *testing.T) {
	db := testDB(t)
	store := NewSettingsStore(db, testLogger())
	ctx := context.Background()

	if err := store.Set(ctx, "growth.enabled", "true"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := store.Get(ctx, "growth.enabled")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "true" {
		t.Errorf("expected value 'true', got %q", got)
	}
}

func TestSettingsStore_GetMissing(t *testing.T) {
	db := testDB(t)
	store := NewSettingsStore(db, testLogger())
	ctx := context.Background()

	if _, err := store.Get(ctx, "does.not.exist"); err == nil {
		t.Error("expected an error for a missing setting")
	}
}

func TestSettingsStore_SetOverwrites(t *testing.T) {
	db := testDB(t)
	store := NewSettingsStore(db, testLogger())
	ctx := context.Background()

	store.Set(ctx, "k", "v1")
	store.Set(ctx, "k", "v2")

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "v2" {
		t.Errorf("expected overwritten value 'v2', got %q", got)
	}
}

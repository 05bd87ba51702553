package surrealdb

import (
	"context"
	"testing"
	"time"

	"github.com/domainpress/pipeline/internal/models"
)

func TestDomainStore_UpdateAndGet(t *testing.T) {
	db := testDB(t)
	store := NewDomainStore(db, testLogger())
	ctx := context.Background()

	d := &models.Domain{ID: "d1", Domain: "example.com", TLD: "com", Status: "active", Bucket: models.BucketBuild, CreatedAt: time.Now()}
	if err := store.Update(ctx, d); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := store.Get(ctx, "d1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil || got.Domain != "example.com" {
		t.Fatalf("expected to get back the domain, got %+v", got)
	}
}

func TestDomainStore_ListActive(t *testing.T) {
	db := testDB(t)
	store := NewDomainStore(db, testLogger())
	ctx := context.Background()

	active := &models.Domain{ID: "d1", Domain: "active.com", Bucket: models.BucketBuild, CreatedAt: time.Now()}
	deletedAt := time.Now()
	deleted := &models.Domain{ID: "d2", Domain: "deleted.com", Bucket: models.BucketBuild, CreatedAt: time.Now(), DeletedAt: &deletedAt}
	store.Update(ctx, active)
	store.Update(ctx, deleted)

	domains, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(domains) != 1 || domains[0].ID != "d1" {
		t.Fatalf("expected only the non-deleted domain, got %+v", domains)
	}
}

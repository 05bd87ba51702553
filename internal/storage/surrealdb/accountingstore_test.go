package surrealdb

import (
	"context"
	"testing"

	"github.com/domainpress/pipeline/internal/models"
)

func TestAccountingStore_LogAPICall(t *testing.T) {
	db := testDB(t)
	store := NewAccountingStore(db, testLogger())
	ctx := context.Background()

	l := &models.APICallLog{ArticleID: "a1", Stage: "generate_draft", ModelKey: "default", ResolvedModel: "gemini-2.5-flash", InputTokens: 500, OutputTokens: 1200, CostUSD: 0.01}
	if err := store.LogAPICall(ctx, l); err != nil {
		t.Fatalf("LogAPICall failed: %v", err)
	}
	if l.ID == "" {
		t.Error("expected log ID to be set")
	}
}

func TestAccountingStore_AppendRevision(t *testing.T) {
	db := testDB(t)
	store := NewAccountingStore(db, testLogger())
	ctx := context.Background()

	r := &models.Revision{ArticleID: "a1", Stage: "humanize", Summary: "applied humanize pass"}
	if err := store.AppendRevision(ctx, r); err != nil {
		t.Fatalf("AppendRevision failed: %v", err)
	}
	if r.ID == "" {
		t.Error("expected revision ID to be set")
	}
}

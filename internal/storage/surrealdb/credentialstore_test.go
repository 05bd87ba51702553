package surrealdb

import (
	"context"
	"testing"
	"time"

	"github.com/domainpress/pipeline/internal/models"
)

func TestCredentialStore_ResolveMintsTokenWhenMissing(t *testing.T) {
	db := testDB(t)
	store := NewCredentialStore(db, testLogger(), "test-secret", time.Hour)
	ctx := context.Background()

	c := &models.ChannelCredential{DomainID: "d1", Channel: models.ChannelPinterest, Source: "stored"}
	if err := store.Save(ctx, c); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Resolve(ctx, "d1", models.ChannelPinterest)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got == nil || got.TokenJWT == "" {
		t.Fatalf("expected Resolve to mint a token for a credential with no expiry, got %+v", got)
	}
}

func TestCredentialStore_ResolveReusesFreshToken(t *testing.T) {
	db := testDB(t)
	store := NewCredentialStore(db, testLogger(), "test-secret", time.Hour)
	ctx := context.Background()

	farFuture := time.Now().Add(30 * 24 * time.Hour)
	c := &models.ChannelCredential{DomainID: "d1", Channel: models.ChannelPinterest, TokenJWT: "existing-token", ExpiresAt: &farFuture}
	store.Save(ctx, c)

	got, err := store.Resolve(ctx, "d1", models.ChannelPinterest)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got.TokenJWT != "existing-token" {
		t.Errorf("expected fresh token to be reused unchanged, got %s", got.TokenJWT)
	}
}

func TestCredentialStore_ResolveMissing(t *testing.T) {
	db := testDB(t)
	store := NewCredentialStore(db, testLogger(), "test-secret", time.Hour)
	ctx := context.Background()

	got, err := store.Resolve(ctx, "unknown-domain", models.ChannelYouTubeShorts)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for an unresolvable credential, got %+v", got)
	}
}

func TestCredentialStore_ListExpiringSoon(t *testing.T) {
	db := testDB(t)
	store := NewCredentialStore(db, testLogger(), "test-secret", time.Hour)
	ctx := context.Background()

	soon := time.Now().Add(time.Hour)
	far := time.Now().Add(30 * 24 * time.Hour)
	store.Save(ctx, &models.ChannelCredential{DomainID: "d1", Channel: models.ChannelPinterest, TokenJWT: "t1", ExpiresAt: &soon})
	store.Save(ctx, &models.ChannelCredential{DomainID: "d2", Channel: models.ChannelPinterest, TokenJWT: "t2", ExpiresAt: &far})

	expiring, err := store.ListExpiringSoon(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("ListExpiringSoon failed: %v", err)
	}
	if len(expiring) != 1 || expiring[0].DomainID != "d1" {
		t.Fatalf("expected only d1's credential to be expiring soon, got %+v", expiring)
	}
}

func TestCredentialStore_SetSecretAndVerifySecret(t *testing.T) {
	db := testDB(t)
	store := NewCredentialStore(db, testLogger(), "test-secret", time.Hour)
	ctx := context.Background()

	if err := store.SetSecret(ctx, "d1", models.ChannelPinterest, "correct horse battery staple"); err != nil {
		t.Fatalf("SetSecret failed: %v", err)
	}

	ok, err := store.VerifySecret(ctx, "d1", models.ChannelPinterest, "correct horse battery staple")
	if err != nil {
		t.Fatalf("VerifySecret failed: %v", err)
	}
	if !ok {
		t.Error("expected VerifySecret to accept the secret it was just set with")
	}

	ok, err = store.VerifySecret(ctx, "d1", models.ChannelPinterest, "wrong guess")
	if err != nil {
		t.Fatalf("VerifySecret failed: %v", err)
	}
	if ok {
		t.Error("expected VerifySecret to reject an incorrect secret")
	}
}

func TestCredentialStore_VerifySecretMissingCredential(t *testing.T) {
	db := testDB(t)
	store := NewCredentialStore(db, testLogger(), "test-secret", time.Hour)
	ctx := context.Background()

	ok, err := store.VerifySecret(ctx, "no-such-domain", models.ChannelPinterest, "anything")
	if err != nil {
		t.Fatalf("VerifySecret failed: %v", err)
	}
	if ok {
		t.Error("expected VerifySecret to report false for a missing credential")
	}
}

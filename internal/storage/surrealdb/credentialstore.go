package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"golang.org/x/crypto/bcrypt"

	"github.com/domainpress/pipeline/internal/common"
	"github.com/domainpress/pipeline/internal/interfaces"
	"github.com/domainpress/pipeline/internal/models"
)

// CredentialStore implements interfaces.CredentialStore using SurrealDB. A
// credential's bearer secret is never stored in clear text: only a bcrypt
// hash is persisted, and Resolve mints a short-lived signed JWT carrying
// {channel, scope, expiresAt} for the channel adapter to present.
type CredentialStore struct {
	db        *surrealdb.DB
	logger    *common.Logger
	jwtSecret []byte
	expiry    time.Duration
}

func NewCredentialStore(db *surrealdb.DB, logger *common.Logger, jwtSecret string, expiry time.Duration) *CredentialStore {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &CredentialStore{db: db, logger: logger, jwtSecret: []byte(jwtSecret), expiry: expiry}
}

func credentialRecordID(id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("channelCredential", id)
}

func credentialID(domainID, channel string) string {
	if domainID == "" {
		return "env_" + channel
	}
	return domainID + "_" + channel
}

// Resolve loads the stored credential for (domainID, channel) and mints a
// fresh signed token if the stored token has expired or is about to.
func (s *CredentialStore) Resolve(ctx context.Context, domainID, channel string) (*models.ChannelCredential, error) {
	id := credentialID(domainID, channel)
	cred, err := surrealdb.Select[models.ChannelCredential](ctx, s.db, credentialRecordID(id))
	if err != nil {
		return nil, fmt.Errorf("failed to select channel credential: %w", err)
	}
	if cred == nil {
		return nil, nil
	}

	if cred.ExpiresAt == nil || cred.ExpiresAt.Before(time.Now().Add(common.FreshnessCredentialSoon)) {
		token, expiresAt, err := s.mintToken(channel)
		if err != nil {
			return cred, fmt.Errorf("failed to mint credential token: %w", err)
		}
		cred.TokenJWT = token
		cred.ExpiresAt = &expiresAt
		if err := s.Save(ctx, cred); err != nil {
			return cred, fmt.Errorf("failed to persist refreshed credential token: %w", err)
		}
	}

	return cred, nil
}

func (s *CredentialStore) mintToken(channel string) (string, time.Time, error) {
	expiresAt := time.Now().Add(s.expiry)
	claims := jwt.MapClaims{
		"channel":   channel,
		"scope":     "publish",
		"expiresAt": expiresAt.Unix(),
		"exp":       expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// SetSecret bcrypt-hashes plaintext at the package default cost and upserts
// the resulting credential row; callers never see the hash or plaintext
// again after this call returns.
func (s *CredentialStore) SetSecret(ctx context.Context, domainID, channel, plaintext string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash channel credential secret: %w", err)
	}
	c := &models.ChannelCredential{
		ID:         credentialID(domainID, channel),
		DomainID:   domainID,
		Channel:    channel,
		Source:     "stored",
		SecretHash: string(hash),
	}
	return s.Save(ctx, c)
}

// VerifySecret reports whether plaintext matches the stored bcrypt hash for
// (domainID, channel). A missing credential or hash mismatch both report
// false with no error.
func (s *CredentialStore) VerifySecret(ctx context.Context, domainID, channel, plaintext string) (bool, error) {
	id := credentialID(domainID, channel)
	cred, err := surrealdb.Select[models.ChannelCredential](ctx, s.db, credentialRecordID(id))
	if err != nil {
		return false, fmt.Errorf("failed to select channel credential: %w", err)
	}
	if cred == nil || cred.SecretHash == "" {
		return false, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.SecretHash), []byte(plaintext)); err != nil {
		if err == bcrypt.ErrMismatchedHashAndPassword {
			return false, nil
		}
		return false, fmt.Errorf("failed to compare channel credential secret: %w", err)
	}
	return true, nil
}

func (s *CredentialStore) Save(ctx context.Context, c *models.ChannelCredential) error {
	if c.ID == "" {
		c.ID = credentialID(c.DomainID, c.Channel)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	sql := "UPSERT $rid CONTENT $c"
	vars := map[string]any{"rid": credentialRecordID(c.ID), "c": c}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]models.ChannelCredential](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("failed to save channel credential after retries: %w", lastErr)
}

func (s *CredentialStore) ListExpiringSoon(ctx context.Context, within time.Duration) ([]*models.ChannelCredential, error) {
	cutoff := time.Now().Add(within)
	sql := "SELECT * FROM channelCredential WHERE expiresAt != NONE AND expiresAt <= $cutoff"
	results, err := surrealdb.Query[[]models.ChannelCredential](ctx, s.db, sql, map[string]any{"cutoff": cutoff})
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring credentials: %w", err)
	}
	var out []*models.ChannelCredential
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			out = append(out, &(*results)[0].Result[i])
		}
	}
	return out, nil
}

var _ interfaces.CredentialStore = (*CredentialStore)(nil)

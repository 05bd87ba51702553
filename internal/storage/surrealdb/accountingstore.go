package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"

	"github.com/domainpress/pipeline/internal/common"
	"github.com/domainpress/pipeline/internal/interfaces"
	"github.com/domainpress/pipeline/internal/models"
)

// AccountingStore implements interfaces.AccountingStore using SurrealDB. Both
// tables are append-only audit logs: apiCallLog for provider spend and
// revision for content mutations.
type AccountingStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewAccountingStore(db *surrealdb.DB, logger *common.Logger) *AccountingStore {
	return &AccountingStore{db: db, logger: logger}
}

func (s *AccountingStore) LogAPICall(ctx context.Context, l *models.APICallLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	if _, err := surrealdb.Query[[]models.APICallLog](ctx, s.db, "CREATE apiCallLog CONTENT $l", map[string]any{"l": l}); err != nil {
		return fmt.Errorf("failed to log api call: %w", err)
	}
	return nil
}

func (s *AccountingStore) AppendRevision(ctx context.Context, r *models.Revision) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if _, err := surrealdb.Query[[]models.Revision](ctx, s.db, "CREATE revision CONTENT $r", map[string]any{"r": r}); err != nil {
		return fmt.Errorf("failed to append revision: %w", err)
	}
	return nil
}

var _ interfaces.AccountingStore = (*AccountingStore)(nil)

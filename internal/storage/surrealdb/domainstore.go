package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/domainpress/pipeline/internal/common"
	"github.com/domainpress/pipeline/internal/interfaces"
	"github.com/domainpress/pipeline/internal/models"
)

// DomainStore implements interfaces.DomainStore using SurrealDB.
type DomainStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewDomainStore(db *surrealdb.DB, logger *common.Logger) *DomainStore {
	return &DomainStore{db: db, logger: logger}
}

func domainRecordID(id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("domain", id)
}

func (s *DomainStore) Get(ctx context.Context, id string) (*models.Domain, error) {
	d, err := surrealdb.Select[models.Domain](ctx, s.db, domainRecordID(id))
	if err != nil {
		return nil, fmt.Errorf("failed to select domain: %w", err)
	}
	return d, nil
}

func (s *DomainStore) ListActive(ctx context.Context) ([]*models.Domain, error) {
	sql := "SELECT * FROM domain WHERE deletedAt = NONE ORDER BY createdAt ASC"
	results, err := surrealdb.Query[[]models.Domain](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list active domains: %w", err)
	}
	var out []*models.Domain
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			out = append(out, &(*results)[0].Result[i])
		}
	}
	return out, nil
}

func (s *DomainStore) Update(ctx context.Context, d *models.Domain) error {
	d.UpdatedAt = time.Now()
	sql := "UPSERT $rid CONTENT $domain"
	vars := map[string]any{"rid": domainRecordID(d.ID), "domain": d}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]models.Domain](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("failed to update domain after retries: %w", lastErr)
}

var _ interfaces.DomainStore = (*DomainStore)(nil)

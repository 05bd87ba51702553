package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/domainpress/pipeline/internal/common"
	"github.com/domainpress/pipeline/internal/interfaces"
	"github.com/domainpress/pipeline/internal/models"
)

// UnderwritingStore implements interfaces.UnderwritingStore using SurrealDB.
type UnderwritingStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewUnderwritingStore(db *surrealdb.DB, logger *common.Logger) *UnderwritingStore {
	return &UnderwritingStore{db: db, logger: logger}
}

func domainResearchRecordID(id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("domainResearch", id)
}

func (s *UnderwritingStore) UpsertCandidate(ctx context.Context, r *models.DomainResearch) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if r.Decision == "" {
		r.Decision = models.DecisionResearching
	}

	sql := "UPSERT $rid CONTENT $r"
	vars := map[string]any{"rid": domainResearchRecordID(r.ID), "r": r}
	if _, err := surrealdb.Query[[]models.DomainResearch](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to upsert domain research candidate: %w", err)
	}
	return nil
}

func (s *UnderwritingStore) Get(ctx context.Context, id string) (*models.DomainResearch, error) {
	r, err := surrealdb.Select[models.DomainResearch](ctx, s.db, domainResearchRecordID(id))
	if err != nil {
		return nil, fmt.Errorf("failed to select domain research: %w", err)
	}
	return r, nil
}

func (s *UnderwritingStore) GetByDomain(ctx context.Context, domain string) (*models.DomainResearch, error) {
	sql := "SELECT * FROM domainResearch WHERE domain = $domain LIMIT 1"
	results, err := surrealdb.Query[[]models.DomainResearch](ctx, s.db, sql, map[string]any{"domain": domain})
	if err != nil {
		return nil, fmt.Errorf("failed to query domain research by domain: %w", err)
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return &(*results)[0].Result[0], nil
	}
	return nil, nil
}

func (s *UnderwritingStore) Update(ctx context.Context, r *models.DomainResearch) error {
	r.UpdatedAt = time.Now()
	sql := "UPSERT $rid CONTENT $r"
	vars := map[string]any{"rid": domainResearchRecordID(r.ID), "r": r}
	if _, err := surrealdb.Query[[]models.DomainResearch](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to update domain research: %w", err)
	}
	return nil
}

func (s *UnderwritingStore) AppendEvent(ctx context.Context, e *models.AcquisitionEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	sql := "CREATE acquisitionEvent CONTENT $event"
	if _, err := surrealdb.Query[[]models.AcquisitionEvent](ctx, s.db, sql, map[string]any{"event": e}); err != nil {
		return fmt.Errorf("failed to append acquisition event: %w", err)
	}
	return nil
}

func previewBuildRecordID(id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("previewBuild", id)
}

// UpsertPreviewBuild writes the preview build keyed by p.ID, always
// resetting ExpiresAt to now+models.PreviewBuildTTL and defaulting an empty
// Status to "ready". An empty p.ID gets a fresh UUID, so a call without an
// ID inserts a new row rather than refreshing an earlier build for the same
// candidate.
func (s *UnderwritingStore) UpsertPreviewBuild(ctx context.Context, p *models.PreviewBuild) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.ExpiresAt = time.Now().Add(models.PreviewBuildTTL)
	if p.Status == "" {
		p.Status = "ready"
	}

	sql := "UPSERT $rid CONTENT $p"
	vars := map[string]any{"rid": previewBuildRecordID(p.ID), "p": p}
	if _, err := surrealdb.Query[[]models.PreviewBuild](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to upsert preview build: %w", err)
	}
	return nil
}

// ExpirePreviewBuilds flips every stale build to "expired" in one query.
func (s *UnderwritingStore) ExpirePreviewBuilds(ctx context.Context, asOf time.Time) (int, error) {
	sql := `UPDATE previewBuild SET status = "expired" WHERE status != "expired" AND expiresAt <= $asOf RETURN id`
	results, err := surrealdb.Query[[]models.PreviewBuild](ctx, s.db, sql, map[string]any{"asOf": asOf})
	if err != nil {
		return 0, fmt.Errorf("failed to expire preview builds: %w", err)
	}
	if results != nil && len(*results) > 0 {
		return len((*results)[0].Result), nil
	}
	return 0, nil
}

var _ interfaces.UnderwritingStore = (*UnderwritingStore)(nil)

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

// ArticleStore implements interfaces.ArticleStore using SurrealDB.
type ArticleStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewArticleStore(db *surrealdb.DB, logger *common.Logger) *ArticleStore {
	return &ArticleStore{db: db, logger: logger}
}

func articleRecordID(id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("article", id)
}

func (s *ArticleStore) Create(ctx context.Context, a *models.Article) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = models.ArticleStatusDraft
	}

	sql := "UPSERT $rid CONTENT $article"
	vars := map[string]any{"rid": articleRecordID(a.ID), "article": a}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]models.Article](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("failed to create article after retries: %w", lastErr)
}

func (s *ArticleStore) Get(ctx context.Context, id string) (*models.Article, error) {
	article, err := surrealdb.Select[models.Article](ctx, s.db, articleRecordID(id))
	if err != nil {
		return nil, fmt.Errorf("failed to select article: %w", err)
	}
	return article, nil
}

func (s *ArticleStore) Update(ctx context.Context, a *models.Article) error {
	a.UpdatedAt = time.Now()
	sql := "UPSERT $rid CONTENT $article"
	vars := map[string]any{"rid": articleRecordID(a.ID), "article": a}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]models.Article](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("failed to update article after retries: %w", lastErr)
}

func (s *ArticleStore) SetStatus(ctx context.Context, id, status string) error {
	sql := "UPDATE $rid SET status = $status, updatedAt = $now"
	vars := map[string]any{"rid": articleRecordID(id), "status": status, "now": time.Now()}
	if _, err := surrealdb.Query[[]models.Article](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to set article status: %w", err)
	}
	return nil
}

// ListPublishedSiblings returns up to limit published articles on the same
// domain, most recent first — used by the growth engine to pick promotion
// candidates and by the scheduler's "enough seed content" check.
func (s *ArticleStore) ListPublishedSiblings(ctx context.Context, domainID string, limit int) ([]*models.Article, error) {
	if limit <= 0 {
		limit = 20
	}
	sql := `SELECT * FROM article WHERE domainId = $domainId AND status = $status ORDER BY createdAt DESC LIMIT $limit`
	vars := map[string]any{"domainId": domainID, "status": models.ArticleStatusPublished, "limit": limit}

	results, err := surrealdb.Query[[]models.Article](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list published siblings: %w", err)
	}
	var out []*models.Article
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			out = append(out, &(*results)[0].Result[i])
		}
	}
	return out, nil
}

// LatestCreatedAtByDomain returns the most recent article creation timestamp
// per domain, used by the content scheduler's busy-domain check.
func (s *ArticleStore) LatestCreatedAtByDomain(ctx context.Context) (map[string]time.Time, error) {
	sql := `SELECT domainId, math::max(createdAt) AS latest FROM article GROUP BY domainId`
	type row struct {
		DomainID string    `json:"domainId"`
		Latest   time.Time `json:"latest"`
	}
	results, err := surrealdb.Query[[]row](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate latest article by domain: %w", err)
	}
	out := map[string]time.Time{}
	if results != nil && len(*results) > 0 {
		for _, r := range (*results)[0].Result {
			out[r.DomainID] = r.Latest
		}
	}
	return out, nil
}

var _ interfaces.ArticleStore = (*ArticleStore)(nil)

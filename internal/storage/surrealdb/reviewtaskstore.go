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

// ReviewTaskStore implements interfaces.ReviewTaskStore using SurrealDB.
type ReviewTaskStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewReviewTaskStore(db *surrealdb.DB, logger *common.Logger) *ReviewTaskStore {
	return &ReviewTaskStore{db: db, logger: logger}
}

func reviewTaskRecordID(id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("reviewTask", id)
}

// Upsert writes a review task keyed by (domainResearchId), so re-running
// the sync after a re-score updates the existing pending task instead of
// creating a duplicate.
func (s *ReviewTaskStore) Upsert(ctx context.Context, t *models.ReviewTask) error {
	if t.ID == "" {
		t.ID = t.DomainResearchID
	}
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = models.ReviewTaskPending
	}

	sql := "UPSERT $rid CONTENT $t"
	vars := map[string]any{"rid": reviewTaskRecordID(t.ID), "t": t}
	if _, err := surrealdb.Query[[]models.ReviewTask](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to upsert review task: %w", err)
	}
	return nil
}

func (s *ReviewTaskStore) CancelPending(ctx context.Context, domainResearchID string) error {
	sql := "UPDATE reviewTask SET status = $cancelled, updatedAt = $now WHERE domainResearchId = $id AND status = $pending"
	vars := map[string]any{
		"cancelled": models.ReviewTaskCancelled, "now": time.Now(),
		"id": domainResearchID, "pending": models.ReviewTaskPending,
	}
	if _, err := surrealdb.Query[[]models.ReviewTask](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to cancel pending review task: %w", err)
	}
	return nil
}

// ListPendingByUser returns pending media moderation tasks for all users,
// oldest first, capped at limit — used by the media-review-escalation
// sweep, which groups them by UserID. There is no per-user filter. The
// review-task checklist itself has no per-user assignment in this model,
// so this delegates to the media moderation queue.
func (s *ReviewTaskStore) ListPendingByUser(ctx context.Context, limit int) ([]*models.MediaModerationTask, error) {
	if limit <= 0 {
		limit = 100
	}
	sql := "SELECT * FROM mediaModerationTask WHERE status = $pending ORDER BY createdAt ASC LIMIT $limit"
	results, err := surrealdb.Query[[]models.MediaModerationTask](ctx, s.db, sql, map[string]any{
		"pending": "pending", "limit": limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending media moderation tasks: %w", err)
	}
	var out []*models.MediaModerationTask
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			out = append(out, &(*results)[0].Result[i])
		}
	}
	return out, nil
}

var _ interfaces.ReviewTaskStore = (*ReviewTaskStore)(nil)

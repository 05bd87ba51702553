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

// MediaStore implements interfaces.MediaStore using SurrealDB.
type MediaStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewMediaStore(db *surrealdb.DB, logger *common.Logger) *MediaStore {
	return &MediaStore{db: db, logger: logger}
}

func mediaAssetRecordID(id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("mediaAsset", id)
}

// LeastUsed returns the non-deleted asset of assetType with the lowest
// usageCount for domainID — the media rotation rule used by the publish
// engine to avoid reusing the same creative back to back.
func (s *MediaStore) LeastUsed(ctx context.Context, domainID, assetType string) (*models.MediaAsset, error) {
	sql := `SELECT * FROM mediaAsset WHERE domainId = $domainId AND assetType = $assetType
		AND deletedAt = NONE ORDER BY usageCount ASC LIMIT 1`
	vars := map[string]any{"domainId": domainID, "assetType": assetType}
	results, err := surrealdb.Query[[]models.MediaAsset](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to select least-used media asset: %w", err)
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return &(*results)[0].Result[0], nil
	}
	return nil, nil
}

func (s *MediaStore) Get(ctx context.Context, id string) (*models.MediaAsset, error) {
	a, err := surrealdb.Select[models.MediaAsset](ctx, s.db, mediaAssetRecordID(id))
	if err != nil {
		return nil, fmt.Errorf("failed to select media asset: %w", err)
	}
	return a, nil
}

// RecordUsage appends a usage record and bumps the asset's usageCount.
func (s *MediaStore) RecordUsage(ctx context.Context, u *models.MediaUsage) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}

	if _, err := surrealdb.Query[[]models.MediaUsage](ctx, s.db, "CREATE mediaUsage CONTENT $u", map[string]any{"u": u}); err != nil {
		return fmt.Errorf("failed to record media usage: %w", err)
	}

	sql := "UPDATE $rid SET usageCount = usageCount + 1"
	if _, err := surrealdb.Query[[]models.MediaAsset](ctx, s.db, sql, map[string]any{"rid": mediaAssetRecordID(u.AssetID)}); err != nil {
		return fmt.Errorf("failed to bump media asset usage count: %w", err)
	}
	return nil
}

// PurgeDeleted permanently removes soft-deleted assets older than the cutoff.
func (s *MediaStore) PurgeDeleted(ctx context.Context, olderThan time.Time) (int, error) {
	sql := "DELETE mediaAsset WHERE deletedAt != NONE AND deletedAt <= $cutoff RETURN BEFORE"
	results, err := surrealdb.Query[[]models.MediaAsset](ctx, s.db, sql, map[string]any{"cutoff": olderThan})
	if err != nil {
		return 0, fmt.Errorf("failed to purge deleted media assets: %w", err)
	}
	if results != nil && len(*results) > 0 {
		return len((*results)[0].Result), nil
	}
	return 0, nil
}

func (s *MediaStore) ListPendingModeration(ctx context.Context, limit int) ([]*models.MediaModerationTask, error) {
	if limit <= 0 {
		limit = 100
	}
	sql := "SELECT * FROM mediaModerationTask WHERE status = $pending ORDER BY createdAt ASC LIMIT $limit"
	results, err := surrealdb.Query[[]models.MediaModerationTask](ctx, s.db, sql, map[string]any{"pending": "pending", "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending moderation tasks: %w", err)
	}
	var out []*models.MediaModerationTask
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			out = append(out, &(*results)[0].Result[i])
		}
	}
	return out, nil
}

var _ interfaces.MediaStore = (*MediaStore)(nil)

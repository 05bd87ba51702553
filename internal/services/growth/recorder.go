package growth

import (
	"context"

	"github.com/domainpress/pipeline/internal/interfaces"
	"github.com/domainpress/pipeline/internal/models"
)

// Recorder mirrors a queue job's lifecycle onto its paired promotion_jobs
// row via PromotionStore, implementing jobmanager.GrowthSideRecorder.
type Recorder struct {
	storage interfaces.StorageManager
}

// NewRecorder builds a Recorder over storage.
func NewRecorder(storage interfaces.StorageManager) *Recorder {
	return &Recorder{storage: storage}
}

func (r *Recorder) MarkRunning(ctx context.Context, queueJobID string) error {
	return r.storage.PromotionStore().UpdatePromotionJobStatus(ctx, queueJobID, models.StatusProcessing)
}

func (r *Recorder) MarkCompleted(ctx context.Context, queueJobID string) error {
	return r.storage.PromotionStore().UpdatePromotionJobStatus(ctx, queueJobID, models.StatusCompleted)
}

func (r *Recorder) MarkPending(ctx context.Context, queueJobID string) error {
	return r.storage.PromotionStore().UpdatePromotionJobStatus(ctx, queueJobID, models.StatusPending)
}

func (r *Recorder) MarkFailed(ctx context.Context, queueJobID string) error {
	return r.storage.PromotionStore().UpdatePromotionJobStatus(ctx, queueJobID, models.StatusFailed)
}

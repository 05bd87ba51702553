// Package interfaces defines the storage and collaborator contracts the
// queue and its handlers depend on.
package interfaces

import (
	"context"
	"time"

	"github.com/domainpress/pipeline/internal/models"
)

// StorageManager coordinates all storage backends behind a single handle.
type StorageManager interface {
	JobQueueStore() JobQueueStore
	ArticleStore() ArticleStore
	DomainStore() DomainStore
	PromotionStore() PromotionStore
	UnderwritingStore() UnderwritingStore
	MediaStore() MediaStore
	ReviewTaskStore() ReviewTaskStore
	CredentialStore() CredentialStore
	AccountingStore() AccountingStore
	SettingsStore() SettingsStore

	// DataPath returns the base data directory path (used for any local
	// scratch output the runtime produces, e.g. banners/version files).
	DataPath() string

	Close() error
}

// JobQueueStore manages the persistent job queue (table `queue`).
type JobQueueStore interface {
	Enqueue(ctx context.Context, job *models.Job) error

	// Acquire atomically claims up to limit ready jobs (see models.Job.Ready),
	// ordered priority DESC, createdAt ASC, optionally restricted to
	// allowedTypes. Returns the claimed rows, already marked processing.
	Acquire(ctx context.Context, limit int, allowedTypes []string) ([]*models.Job, error)

	// AcquireByIds is Acquire restricted to a candidate id set, used when a
	// dispatch-hint cache supplies likely-ready ids.
	AcquireByIds(ctx context.Context, ids []string, limit int, allowedTypes []string) ([]*models.Job, error)

	// Recover resets every processing job whose lease has expired back to
	// pending, appending an auto-recovered note, and returns the count.
	Recover(ctx context.Context) (int, error)

	Complete(ctx context.Context, id string, result map[string]any, durationMS int64) error
	Fail(ctx context.Context, id string, classification *Classification, retry bool, scheduledFor *time.Time) error
	Cancel(ctx context.Context, id string) error
	SetPriority(ctx context.Context, id string, priority int) error

	Get(ctx context.Context, id string) (*models.Job, error)
	ListPending(ctx context.Context, limit int) ([]*models.Job, error)
	ListAll(ctx context.Context, limit int) ([]*models.Job, error)
	ListByArticle(ctx context.Context, articleID string) ([]*models.Job, error)
	CountPending(ctx context.Context) (int, error)
	HasInFlightJob(ctx context.Context, jobType string, matchKey, matchValue string) (bool, error)

	PurgeCompleted(ctx context.Context, olderThan time.Time) (int, error)

	// BusyDomains returns the set of domainIds with either an in-flight
	// (pending/processing) job or a job completed within the last `within`
	// window — the single-query busy check the content scheduler runs before
	// seeding a new pipeline for a domain.
	BusyDomains(ctx context.Context, within time.Duration) (map[string]bool, error)

	// RetryFailed resets up to limit failed jobs back to pending.
	// mode is "all" (administrative retry: attempts reset to 0) or
	// "transient" (auto-retry sweep: attempts preserved, transient-error
	// pattern matched, minFailedAge honored).
	RetryFailed(ctx context.Context, limit int, mode string, minFailedAge time.Duration) (int, error)

	Stats(ctx context.Context) (QueueStats, error)
}

// QueueStats is the aggregate view returned by getQueueStats/getQueueHealth.
type QueueStats struct {
	Pending             int
	Processing          int
	Completed           int
	Failed              int
	Cancelled           int
	OldestPendingAge    time.Duration
	AvgProcessingTimeMS int64
	ThroughputPerHour   float64
	ErrorRate24h        float64
	LatestStartedAt     *time.Time
	LatestCompletedAt   *time.Time
	LatestQueuedAt      *time.Time
}

// ArticleStore manages the `article` table.
type ArticleStore interface {
	Create(ctx context.Context, a *models.Article) error
	Get(ctx context.Context, id string) (*models.Article, error)
	Update(ctx context.Context, a *models.Article) error
	SetStatus(ctx context.Context, id, status string) error
	ListPublishedSiblings(ctx context.Context, domainID string, limit int) ([]*models.Article, error)
	LatestCreatedAtByDomain(ctx context.Context) (map[string]time.Time, error)
}

// DomainStore manages the `domain` table.
type DomainStore interface {
	Get(ctx context.Context, id string) (*models.Domain, error)
	ListActive(ctx context.Context) ([]*models.Domain, error)
	Update(ctx context.Context, d *models.Domain) error
}

// PromotionStore manages campaigns, promotion jobs, and the promotion event
// log.
type PromotionStore interface {
	CreateCampaign(ctx context.Context, c *models.PromotionCampaign) error
	GetCampaign(ctx context.Context, id string) (*models.PromotionCampaign, error)
	GetCampaignByDomainResearch(ctx context.Context, domainResearchID string) (*models.PromotionCampaign, error)
	UpdateCampaign(ctx context.Context, c *models.PromotionCampaign) error

	CreatePromotionJob(ctx context.Context, pj *models.PromotionJob) error
	UpdatePromotionJobStatus(ctx context.Context, queueJobID, status string) error

	AppendEvent(ctx context.Context, e *models.PromotionEvent) error
	CountPublishedToday(ctx context.Context, campaignID, channel string) (int, error)
	HasRecentPublishedWithCreative(ctx context.Context, campaignID, channel, creativeHash string, within time.Duration) (bool, error)
	HasRecentDomainPublish(ctx context.Context, domainResearchID, channel string, within time.Duration) (bool, error)
	AggregateMetrics(ctx context.Context, campaignID string) (models.CampaignMetrics, error)
	DestinationHostConcentration(ctx context.Context, campaignID string, window time.Duration) (map[string]int, int, error)

	GetChannelProfile(ctx context.Context, domainID, channel string) (*models.DomainChannelProfile, error)
}

// UnderwritingStore manages domainResearch, review tasks, preview builds,
// and acquisition events.
type UnderwritingStore interface {
	UpsertCandidate(ctx context.Context, r *models.DomainResearch) error
	Get(ctx context.Context, id string) (*models.DomainResearch, error)
	GetByDomain(ctx context.Context, domain string) (*models.DomainResearch, error)
	Update(ctx context.Context, r *models.DomainResearch) error
	AppendEvent(ctx context.Context, e *models.AcquisitionEvent) error

	// UpsertPreviewBuild creates or refreshes a candidate's preview build
	// record, extending ExpiresAt by models.PreviewBuildTTL.
	UpsertPreviewBuild(ctx context.Context, p *models.PreviewBuild) error
	// ExpirePreviewBuilds flips every non-expired preview build whose
	// ExpiresAt has passed to status "expired", returning the count touched.
	ExpirePreviewBuilds(ctx context.Context, asOf time.Time) (int, error)
}

// ReviewTaskStore manages human review checklist tasks.
type ReviewTaskStore interface {
	Upsert(ctx context.Context, t *models.ReviewTask) error
	CancelPending(ctx context.Context, domainResearchID string) error
	ListPendingByUser(ctx context.Context, limit int) ([]*models.MediaModerationTask, error)
}

// MediaStore manages media assets, usage, and moderation tasks.
type MediaStore interface {
	LeastUsed(ctx context.Context, domainID, assetType string) (*models.MediaAsset, error)
	Get(ctx context.Context, id string) (*models.MediaAsset, error)
	RecordUsage(ctx context.Context, u *models.MediaUsage) error
	PurgeDeleted(ctx context.Context, olderThan time.Time) (int, error)
	ListPendingModeration(ctx context.Context, limit int) ([]*models.MediaModerationTask, error)
}

// CredentialStore manages growth channel credentials.
type CredentialStore interface {
	Resolve(ctx context.Context, domainID, channel string) (*models.ChannelCredential, error)
	Save(ctx context.Context, c *models.ChannelCredential) error
	ListExpiringSoon(ctx context.Context, within time.Duration) ([]*models.ChannelCredential, error)

	// SetSecret bcrypt-hashes plaintext and upserts the resulting
	// ChannelCredential for (domainID, channel); plaintext itself is never
	// persisted or returned.
	SetSecret(ctx context.Context, domainID, channel, plaintext string) error

	// VerifySecret reports whether plaintext matches the stored hash for
	// (domainID, channel).
	VerifySecret(ctx context.Context, domainID, channel, plaintext string) (bool, error)
}

// AccountingStore manages api_call_logs and revisions.
type AccountingStore interface {
	LogAPICall(ctx context.Context, l *models.APICallLog) error
	AppendRevision(ctx context.Context, r *models.Revision) error
}

// SettingsStore is a simplified system-level key-value store for feature
// flags and other runtime settings that aren't part of the domain model.
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

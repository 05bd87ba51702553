// Package models defines the persisted record shapes for the content queue.
package models

import "time"

// Job statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Pipeline stage job types (C5).
const (
	JobKeywordResearch = "keyword_research"
	JobResearch        = "research"
	JobGenerateOutline = "generate_outline"
	JobGenerateDraft   = "generate_draft"
	JobHumanize        = "humanize"
	JobSEOOptimize     = "seo_optimize"
	JobGenerateMeta    = "generate_meta"
)

// Growth channel job types (C6).
const (
	JobCreatePromotionPlan = "create_promotion_plan"
	JobPublishPinterestPin = "publish_pinterest_pin"
	JobGenerateShortScript = "generate_short_script"
	JobRenderShortVideo    = "render_short_video"
	JobPublishYouTubeShort = "publish_youtube_short"
	JobSyncCampaignMetrics = "sync_campaign_metrics"
)

// Acquisition underwriting job types (C7).
const (
	JobIngestListings  = "ingest_listings"
	JobEnrichCandidate = "enrich_candidate"
	JobScoreCandidate  = "score_candidate"
	JobCreateBidPlan   = "create_bid_plan"
)

// Maintenance tick job types (C9). One per sweep named in the maintenance
// component's responsibility list.
const (
	JobContentFreshnessCheck    = "content_freshness_check"
	JobRenewalCheck             = "renewal_check"
	JobComplianceSnapshot       = "compliance_snapshot"
	JobStaleDatasetDetection    = "stale_dataset_detection"
	JobSessionPurge             = "session_purge"
	JobPreviewBuildPurge        = "preview_build_purge"
	JobGrowthMediaPurge         = "growth_media_purge"
	JobGrowthCredentialAudit    = "growth_credential_audit"
	JobMediaReviewEscalation    = "media_review_escalation"
	JobIntegrationSync          = "integration_sync"
	JobRevenueReconciliation    = "revenue_reconciliation"
	JobDataContractSweep        = "data_contract_sweep"
	JobCapitalAllocation        = "capital_allocation"
	JobLifecycleMonitor         = "lifecycle_monitor"
	JobCompetitorRefresh        = "competitor_refresh"
	JobStrategyPropagation      = "strategy_propagation"
	JobIntegrationHealth        = "integration_health"
	JobCampaignLaunchEscalation = "campaign_launch_escalation"
	JobGrowthLaunchFreezeAudit  = "growth_launch_freeze_audit"
	JobMonitoringCheck          = "monitoring_check"
)

// Job priorities. Higher runs first.
const (
	PriorityLow      = 1
	PriorityNormal   = 2
	PriorityHigh     = 5
	PriorityCritical = 10
)

// DefaultMaxAttempts is the default retry budget for a freshly enqueued job.
const DefaultMaxAttempts = 3

// Job is a single unit of work in the durable queue (table `queue`).
type Job struct {
	ID          string         `json:"id"`
	JobType     string         `json:"jobType"`
	Status      string         `json:"status"`
	Priority    int            `json:"priority"`
	Payload     map[string]any `json:"payload,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"maxAttempts"`

	ScheduledFor *time.Time `json:"scheduledFor,omitempty"`
	LockedUntil  *time.Time `json:"lockedUntil,omitempty"`

	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`

	ErrorMessage string `json:"errorMessage,omitempty"`

	// Optional foreign keys. Not every job type populates every field.
	ArticleID string `json:"articleId,omitempty"`
	DomainID  string `json:"domainId,omitempty"`
	Channel   string `json:"channel,omitempty"`
}

// Ready reports whether the job may be claimed right now: pending, and
// neither scheduled for the future nor still under an active lease.
func (j *Job) Ready(now time.Time) bool {
	if j.Status != StatusPending {
		return false
	}
	if j.ScheduledFor != nil && j.ScheduledFor.After(now) {
		return false
	}
	if j.LockedUntil != nil && j.LockedUntil.After(now) {
		return false
	}
	return true
}

// Leased reports whether the job is currently held under an unexpired lease.
func (j *Job) Leased(now time.Time) bool {
	return j.Status == StatusProcessing && j.LockedUntil != nil && j.LockedUntil.After(now)
}

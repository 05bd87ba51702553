package models

import "time"

// Growth channels.
const (
	ChannelPinterest     = "pinterest"
	ChannelYouTubeShorts = "youtube_shorts"
)

// Campaign statuses.
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusActive    = "active"
	CampaignStatusPaused    = "paused"
	CampaignStatusCancelled = "cancelled"
	CampaignStatusCompleted = "completed"
)

// Channel compatibility levels for a domain (DomainChannelProfile).
const (
	CompatibilitySupported = "supported"
	CompatibilityLimited   = "limited"
	CompatibilityBlocked   = "blocked"
)

// Promotion event types (append-only log).
const (
	EventPlanCreated    = "plan_created"
	EventPlanSkipped    = "plan_skipped"
	EventScriptGenerated = "script_generated"
	EventVideoRendered   = "video_rendered"
	EventPublished       = "published"
	EventPublishSkipped  = "publish_skipped"
	EventPublishBlocked  = "publish_blocked"
	EventMetricsSynced   = "metrics_synced"
)

// PromotionCampaign is a per-domain-research growth campaign spanning one or
// more channels.
type PromotionCampaign struct {
	ID               string          `json:"id"`
	DomainResearchID string          `json:"domainResearchId"`
	Channels         []string        `json:"channels"`
	Budget           float64         `json:"budget"`
	DailyCap         int             `json:"dailyCap"`
	Status           string          `json:"status"`
	Metrics          CampaignMetrics `json:"metrics"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// CampaignMetrics is the aggregate snapshot written by sync_campaign_metrics.
type CampaignMetrics struct {
	Published        int        `json:"published"`
	Clicks            int        `json:"clicks"`
	Leads             int        `json:"leads"`
	Conversions       int        `json:"conversions"`
	TotalEvents       int        `json:"totalEvents"`
	LatestPublishedAt *time.Time `json:"latestPublishedAt,omitempty"`
}

// PromotionJob is the one-per-queue-job growth side record mirroring a
// queue row's status so campaign-scoped readers never need to join the
// queue table.
type PromotionJob struct {
	ID         string    `json:"id"`
	QueueJobID string    `json:"queueJobId"`
	CampaignID string    `json:"campaignId"`
	JobType    string    `json:"jobType"`
	Channel    string    `json:"channel,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// PromotionEvent is an immutable log entry describing something that
// happened to a campaign.
type PromotionEvent struct {
	ID         string         `json:"id"`
	CampaignID string         `json:"campaignId"`
	EventType  string         `json:"eventType"`
	Attributes map[string]any `json:"attributes,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// DomainChannelProfile configures per-(domain,channel) publish constraints.
type DomainChannelProfile struct {
	DomainID          string `json:"domainId"`
	Channel           string `json:"channel"`
	Enabled           bool   `json:"enabled"`
	Compatibility     string `json:"compatibility"`
	DailyCap          int    `json:"dailyCap,omitempty"`
	QuietHoursStart   int    `json:"quietHoursStart"` // UTC hour, 0-23
	QuietHoursEnd     int    `json:"quietHoursEnd"`   // UTC hour, 0-23
	MinJitterMinutes  int    `json:"minJitterMinutes"`
	MaxJitterMinutes  int    `json:"maxJitterMinutes"`
}

// ChannelCredential is a growth-channel credential resolved at publish time.
// The bearer secret is never persisted or logged in clear text: SecretHash
// holds a bcrypt hash, and TokenJWT (when set) is a short-lived signed claim
// carrying {channel, scope, expiresAt} handed to the channel adapter.
type ChannelCredential struct {
	ID         string    `json:"id"`
	DomainID   string    `json:"domainId,omitempty"`
	Channel    string    `json:"channel"`
	Source     string    `json:"source"` // "stored" or "environment"
	SecretHash string    `json:"secretHash,omitempty"`
	TokenJWT   string    `json:"tokenJwt,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// MediaAsset is a piece of reusable promotional creative. Byte storage of
// the rendered media itself is out of scope; this is relational metadata
// only (ID, type, usage count, soft-delete).
type MediaAsset struct {
	ID         string     `json:"id"`
	DomainID   string     `json:"domainId,omitempty"`
	AssetType  string     `json:"assetType"` // pin_image, short_video, ...
	UsageCount int        `json:"usageCount"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// MediaUsage is one insert-only record of a media asset being used in a
// publish.
type MediaUsage struct {
	ID         string    `json:"id"`
	AssetID    string    `json:"assetId"`
	CampaignID string    `json:"campaignId"`
	Channel    string    `json:"channel"`
	CreatedAt  time.Time `json:"createdAt"`
}

// MediaModerationTask is a pending review flag against a media asset.
type MediaModerationTask struct {
	ID        string    `json:"id"`
	AssetID   string    `json:"assetId"`
	UserID    string    `json:"userId,omitempty"`
	Status    string    `json:"status"` // pending, resolved
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

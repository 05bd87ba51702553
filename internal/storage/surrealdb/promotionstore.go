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

// PromotionStore implements interfaces.PromotionStore using SurrealDB. It
// covers three tables: promotionCampaign, promotionJob, and promotionEvent,
// plus reads against domainChannelProfile.
type PromotionStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewPromotionStore(db *surrealdb.DB, logger *common.Logger) *PromotionStore {
	return &PromotionStore{db: db, logger: logger}
}

func campaignRecordID(id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("promotionCampaign", id)
}

func promotionJobRecordID(id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("promotionJob", id)
}

func (s *PromotionStore) CreateCampaign(ctx context.Context, c *models.PromotionCampaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = models.CampaignStatusDraft
	}

	sql := "UPSERT $rid CONTENT $campaign"
	vars := map[string]any{"rid": campaignRecordID(c.ID), "campaign": c}
	if _, err := surrealdb.Query[[]models.PromotionCampaign](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

func (s *PromotionStore) GetCampaign(ctx context.Context, id string) (*models.PromotionCampaign, error) {
	c, err := surrealdb.Select[models.PromotionCampaign](ctx, s.db, campaignRecordID(id))
	if err != nil {
		return nil, fmt.Errorf("failed to select campaign: %w", err)
	}
	return c, nil
}

func (s *PromotionStore) GetCampaignByDomainResearch(ctx context.Context, domainResearchID string) (*models.PromotionCampaign, error) {
	sql := "SELECT * FROM promotionCampaign WHERE domainResearchId = $id LIMIT 1"
	results, err := surrealdb.Query[[]models.PromotionCampaign](ctx, s.db, sql, map[string]any{"id": domainResearchID})
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign by domain research: %w", err)
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return &(*results)[0].Result[0], nil
	}
	return nil, nil
}

func (s *PromotionStore) UpdateCampaign(ctx context.Context, c *models.PromotionCampaign) error {
	c.UpdatedAt = time.Now()
	sql := "UPSERT $rid CONTENT $campaign"
	vars := map[string]any{"rid": campaignRecordID(c.ID), "campaign": c}
	if _, err := surrealdb.Query[[]models.PromotionCampaign](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	return nil
}

func (s *PromotionStore) CreatePromotionJob(ctx context.Context, pj *models.PromotionJob) error {
	if pj.ID == "" {
		pj.ID = uuid.New().String()
	}
	now := time.Now()
	if pj.CreatedAt.IsZero() {
		pj.CreatedAt = now
	}
	pj.UpdatedAt = now

	sql := "UPSERT $rid CONTENT $pj"
	vars := map[string]any{"rid": promotionJobRecordID(pj.ID), "pj": pj}
	if _, err := surrealdb.Query[[]models.PromotionJob](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to create promotion job: %w", err)
	}
	return nil
}

func (s *PromotionStore) UpdatePromotionJobStatus(ctx context.Context, queueJobID, status string) error {
	sql := "UPDATE promotionJob SET status = $status, updatedAt = $now WHERE queueJobId = $queueJobId"
	vars := map[string]any{"status": status, "now": time.Now(), "queueJobId": queueJobID}
	if _, err := surrealdb.Query[[]models.PromotionJob](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to update promotion job status: %w", err)
	}
	return nil
}

func (s *PromotionStore) AppendEvent(ctx context.Context, e *models.PromotionEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	sql := "CREATE promotionEvent CONTENT $event"
	if _, err := surrealdb.Query[[]models.PromotionEvent](ctx, s.db, sql, map[string]any{"event": e}); err != nil {
		return fmt.Errorf("failed to append promotion event: %w", err)
	}
	return nil
}

// CountPublishedToday counts `published` events for (campaignID, channel)
// since UTC midnight — the daily-cap check in the publish engine.
func (s *PromotionStore) CountPublishedToday(ctx context.Context, campaignID, channel string) (int, error) {
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	sql := `SELECT count() AS cnt FROM promotionEvent
		WHERE campaignId = $campaignId AND eventType = $published
		AND attributes.channel = $channel AND createdAt >= $since GROUP ALL`
	vars := map[string]any{
		"campaignId": campaignID, "published": models.EventPublished,
		"channel": channel, "since": midnight,
	}
	return s.queryCount(ctx, sql, vars)
}

// HasRecentPublishedWithCreative reports whether a published event exists
// for (campaignID, channel, creativeHash) within the given window — the
// duplicate-creative guard in the publish check order.
func (s *PromotionStore) HasRecentPublishedWithCreative(ctx context.Context, campaignID, channel, creativeHash string, within time.Duration) (bool, error) {
	since := time.Now().Add(-within)
	sql := `SELECT count() AS cnt FROM promotionEvent
		WHERE campaignId = $campaignId AND eventType = $published
		AND attributes.channel = $channel AND attributes.creativeHash = $hash
		AND createdAt >= $since GROUP ALL`
	vars := map[string]any{
		"campaignId": campaignID, "published": models.EventPublished,
		"channel": channel, "hash": creativeHash, "since": since,
	}
	n, err := s.queryCount(ctx, sql, vars)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasRecentDomainPublish reports whether any campaign tied to
// domainResearchID published on channel within the given window — the
// cross-campaign cooldown guard.
func (s *PromotionStore) HasRecentDomainPublish(ctx context.Context, domainResearchID, channel string, within time.Duration) (bool, error) {
	since := time.Now().Add(-within)
	sql := `SELECT count() AS cnt FROM promotionEvent
		WHERE eventType = $published AND attributes.channel = $channel
		AND attributes.domainResearchId = $domainResearchId AND createdAt >= $since GROUP ALL`
	vars := map[string]any{
		"published": models.EventPublished, "channel": channel,
		"domainResearchId": domainResearchID, "since": since,
	}
	n, err := s.queryCount(ctx, sql, vars)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AggregateMetrics recomputes a campaign's metrics snapshot from its event
// log, the core of sync_campaign_metrics.
func (s *PromotionStore) AggregateMetrics(ctx context.Context, campaignID string) (models.CampaignMetrics, error) {
	var metrics models.CampaignMetrics

	sql := `SELECT eventType, count() AS cnt, math::max(createdAt) AS latest
		FROM promotionEvent WHERE campaignId = $campaignId GROUP BY eventType`
	type row struct {
		EventType string     `json:"eventType"`
		Cnt       int        `json:"cnt"`
		Latest    *time.Time `json:"latest"`
	}
	results, err := surrealdb.Query[[]row](ctx, s.db, sql, map[string]any{"campaignId": campaignID})
	if err != nil {
		return metrics, fmt.Errorf("failed to aggregate campaign metrics: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return metrics, nil
	}
	for _, r := range (*results)[0].Result {
		metrics.TotalEvents += r.Cnt
		switch r.EventType {
		case models.EventPublished:
			metrics.Published = r.Cnt
			metrics.LatestPublishedAt = r.Latest
		case "click":
			metrics.Clicks = r.Cnt
		case "lead":
			metrics.Leads = r.Cnt
		case "conversion":
			metrics.Conversions = r.Cnt
		}
	}
	return metrics, nil
}

// DestinationHostConcentration groups published events by destination host
// within the window, for the over-concentration integrity check.
func (s *PromotionStore) DestinationHostConcentration(ctx context.Context, campaignID string, window time.Duration) (map[string]int, int, error) {
	since := time.Now().Add(-window)
	sql := `SELECT attributes.destinationHost AS host, count() AS cnt FROM promotionEvent
		WHERE campaignId = $campaignId AND eventType = $published AND createdAt >= $since
		GROUP BY attributes.destinationHost`
	type row struct {
		Host string `json:"host"`
		Cnt  int    `json:"cnt"`
	}
	results, err := surrealdb.Query[[]row](ctx, s.db, sql, map[string]any{
		"campaignId": campaignID, "published": models.EventPublished, "since": since,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to aggregate destination host concentration: %w", err)
	}
	out := map[string]int{}
	total := 0
	if results != nil && len(*results) > 0 {
		for _, r := range (*results)[0].Result {
			out[r.Host] = r.Cnt
			total += r.Cnt
		}
	}
	return out, total, nil
}

func (s *PromotionStore) GetChannelProfile(ctx context.Context, domainID, channel string) (*models.DomainChannelProfile, error) {
	sql := "SELECT * FROM domainChannelProfile WHERE domainId = $domainId AND channel = $channel LIMIT 1"
	results, err := surrealdb.Query[[]models.DomainChannelProfile](ctx, s.db, sql, map[string]any{"domainId": domainID, "channel": channel})
	if err != nil {
		return nil, fmt.Errorf("failed to query channel profile: %w", err)
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return &(*results)[0].Result[0], nil
	}
	return nil, nil
}

func (s *PromotionStore) queryCount(ctx context.Context, sql string, vars map[string]any) (int, error) {
	type countResult struct {
		Cnt int `json:"cnt"`
	}
	results, err := surrealdb.Query[[]countResult](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return (*results)[0].Result[0].Cnt, nil
	}
	return 0, nil
}

var _ interfaces.PromotionStore = (*PromotionStore)(nil)

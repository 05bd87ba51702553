package growth

import (
	"context"
	"fmt"
	"time"

	"github.com/domainpress/pipeline/internal/common"
	"github.com/domainpress/pipeline/internal/interfaces"
	"github.com/domainpress/pipeline/internal/models"
	"github.com/domainpress/pipeline/internal/services/jobmanager"
)

// publishLockTTL bounds how long a crashed worker can hold the distributed
// publish lock before it expires on its own; a single publish attempt
// (policy check, channel call, event append) should never take this long.
const publishLockTTL = 2 * time.Minute

// Deps collects the growth engine's collaborators (§4.5, §6).
type Deps struct {
	Storage interfaces.StorageManager
	Channel interfaces.ChannelAdapter
	Policy  interfaces.PolicyEvaluator
	AI      interfaces.AIClient
	Notify  interfaces.Notifications
	Flags   interfaces.FeatureFlags
	Lock    interfaces.PublishLock // optional: nil disables the distributed guard
	Config  *common.GrowthConfig
	Logger  *common.Logger
}

// Register binds the six growth channel job handlers onto m and wires m's
// GrowthSideRecorder to a Recorder over the same storage handle.
func Register(m *jobmanager.Manager, deps Deps) {
	h := &handlers{deps: deps, manager: m}
	m.SetGrowthRecorder(NewRecorder(deps.Storage))
	m.RegisterHandler(models.JobCreatePromotionPlan, h.createPromotionPlan)
	m.RegisterHandler(models.JobPublishPinterestPin, h.publishPinterestPin)
	m.RegisterHandler(models.JobGenerateShortScript, h.generateShortScript)
	m.RegisterHandler(models.JobRenderShortVideo, h.renderShortVideo)
	m.RegisterHandler(models.JobPublishYouTubeShort, h.publishYouTubeShort)
	m.RegisterHandler(models.JobSyncCampaignMetrics, h.syncCampaignMetrics)
}

type handlers struct {
	deps    Deps
	manager *jobmanager.Manager
}

func campaignIDFromPayload(job *models.Job) (string, error) {
	id, _ := job.Payload["campaignId"].(string)
	if id == "" {
		return "", common.Classify(interfaces.CategoryValidation, "", fmt.Errorf("%s job missing campaignId", job.JobType))
	}
	return id, nil
}

func (h *handlers) requireFlag(ctx context.Context) error {
	if h.deps.Flags == nil {
		return nil
	}
	enabled, err := h.deps.Flags.IsEnabled(ctx, interfaces.FlagGrowthChannelsV1)
	if err != nil {
		h.deps.Logger.Debug().Err(err).Msg("growth_channels_v1 flag check failed, proceeding open")
		return nil
	}
	if !enabled {
		return common.Classify(interfaces.CategoryFeatureDisabled, "", fmt.Errorf("growth_channels_v1 is disabled"))
	}
	return nil
}

func (h *handlers) appendEvent(ctx context.Context, campaignID, eventType string, attrs map[string]any) {
	e := &models.PromotionEvent{CampaignID: campaignID, EventType: eventType, Attributes: attrs}
	if err := h.deps.Storage.PromotionStore().AppendEvent(ctx, e); err != nil {
		h.deps.Logger.Warn().Err(err).Str("campaign_id", campaignID).Str("event_type", eventType).Msg("failed to append promotion event")
	}
}

// enqueueGrowthJob is the idempotent-enqueue rule from §4.5: refuse a
// duplicate in-flight job of the same type for the campaign, and create the
// paired promotion_jobs side record when the insert actually happens.
func (h *handlers) enqueueGrowthJob(ctx context.Context, campaignID, jobType, channel string, payload map[string]any, scheduledFor *time.Time) error {
	full := map[string]any{"campaignId": campaignID}
	for k, v := range payload {
		full[k] = v
	}
	job := &models.Job{
		JobType:      jobType,
		Channel:      channel,
		Payload:      full,
		ScheduledFor: scheduledFor,
	}
	inserted, err := h.manager.EnqueueIfNeeded(ctx, job, "campaignId", campaignID)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	if !inserted {
		return nil
	}
	pj := &models.PromotionJob{
		QueueJobID: job.ID,
		CampaignID: campaignID,
		JobType:    jobType,
		Channel:    channel,
		Status:     models.StatusPending,
	}
	if err := h.deps.Storage.PromotionStore().CreatePromotionJob(ctx, pj); err != nil {
		h.deps.Logger.Warn().Err(err).Str("campaign_id", campaignID).Str("job_type", jobType).Msg("failed to create paired promotion job record")
	}
	return nil
}

// channelGenerationJobType is the first job in a channel's content chain:
// Pinterest publishes directly from the plan, YouTube Shorts needs a
// generated script and rendered video first.
func channelGenerationJobType(channel string) string {
	if channel == models.ChannelYouTubeShorts {
		return models.JobGenerateShortScript
	}
	return models.JobPublishPinterestPin
}

func assetTypeForChannel(channel string) string {
	if channel == models.ChannelYouTubeShorts {
		return "short_video"
	}
	return "pin_image"
}

// createPromotionPlan transitions a campaign into active and enqueues the
// first chain job for every channel that passes the compatibility gate.
func (h *handlers) createPromotionPlan(ctx context.Context, job *models.Job) (map[string]any, error) {
	if err := h.requireFlag(ctx); err != nil {
		return nil, err
	}
	campaignID, err := campaignIDFromPayload(job)
	if err != nil {
		return nil, err
	}
	campaign, err := h.deps.Storage.PromotionStore().GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, common.Classify(interfaces.CategoryMissingEntity, "", fmt.Errorf("load campaign %s: %w", campaignID, err))
	}

	campaign.Status = models.CampaignStatusActive
	if err := h.deps.Storage.PromotionStore().UpdateCampaign(ctx, campaign); err != nil {
		return nil, fmt.Errorf("activate campaign: %w", err)
	}
	h.appendEvent(ctx, campaignID, models.EventPlanCreated, map[string]any{"channels": campaign.Channels})

	now := time.Now()
	planned := 0
	for _, channel := range campaign.Channels {
		profile, perr := h.deps.Storage.PromotionStore().GetChannelProfile(ctx, campaign.DomainResearchID, channel)
		if perr != nil || profile == nil || !profile.Enabled || profile.Compatibility == models.CompatibilityBlocked {
			reason := "channel_disabled"
			if profile != nil && profile.Compatibility == models.CompatibilityBlocked {
				reason = "channel_blocked"
			}
			h.appendEvent(ctx, campaignID, models.EventPlanSkipped, map[string]any{"channel": channel, "reason": reason})
			continue
		}

		sched := computeSchedule(profile, h.deps.Config, now)
		if err := h.enqueueGrowthJob(ctx, campaignID, channelGenerationJobType(channel), channel, nil, &sched.ScheduledFor); err != nil {
			h.deps.Logger.Warn().Err(err).Str("campaign_id", campaignID).Str("channel", channel).Msg("failed to enqueue channel chain")
			continue
		}
		planned++
	}

	return map[string]any{"campaignId": campaignID, "channelsPlanned": planned}, nil
}

// generateShortScript writes a short-video script for the YouTube Shorts
// channel and chains to render_short_video, carrying the script text in the
// payload since no store table persists script content on its own.
func (h *handlers) generateShortScript(ctx context.Context, job *models.Job) (map[string]any, error) {
	campaignID, err := campaignIDFromPayload(job)
	if err != nil {
		return nil, err
	}
	campaign, err := h.deps.Storage.PromotionStore().GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, common.Classify(interfaces.CategoryMissingEntity, "", fmt.Errorf("load campaign %s: %w", campaignID, err))
	}

	prompt := fmt.Sprintf("Write a 30-second short-form video script promoting domain research %s.", campaign.DomainResearchID)
	res, err := h.deps.AI.Generate(ctx, "generate_short_script", prompt)
	if err != nil {
		return nil, err
	}

	h.appendEvent(ctx, campaignID, models.EventScriptGenerated, map[string]any{"channel": models.ChannelYouTubeShorts, "length": len(res.Content)})

	if err := h.enqueueGrowthJob(ctx, campaignID, models.JobRenderShortVideo, models.ChannelYouTubeShorts, map[string]any{"script": res.Content}, nil); err != nil {
		return nil, err
	}
	return map[string]any{"campaignId": campaignID}, nil
}

// renderShortVideo stands in for the render step: this queue has no video
// renderer of its own (and MediaStore exposes no asset-creation method —
// assets are provisioned out of band), so it logs the render event and
// chains straight to the publish stage, which resolves a rendered asset via
// MediaStore.LeastUsed at publish time.
func (h *handlers) renderShortVideo(ctx context.Context, job *models.Job) (map[string]any, error) {
	campaignID, err := campaignIDFromPayload(job)
	if err != nil {
		return nil, err
	}
	h.appendEvent(ctx, campaignID, models.EventVideoRendered, map[string]any{"channel": models.ChannelYouTubeShorts})

	campaign, err := h.deps.Storage.PromotionStore().GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, common.Classify(interfaces.CategoryMissingEntity, "", fmt.Errorf("load campaign %s: %w", campaignID, err))
	}
	profile, _ := h.deps.Storage.PromotionStore().GetChannelProfile(ctx, campaign.DomainResearchID, models.ChannelYouTubeShorts)
	sched := computeSchedule(profile, h.deps.Config, time.Now())

	if err := h.enqueueGrowthJob(ctx, campaignID, models.JobPublishYouTubeShort, models.ChannelYouTubeShorts, nil, &sched.ScheduledFor); err != nil {
		return nil, err
	}
	return map[string]any{"campaignId": campaignID}, nil
}

func (h *handlers) publishPinterestPin(ctx context.Context, job *models.Job) (map[string]any, error) {
	return h.publish(ctx, job, models.ChannelPinterest)
}

func (h *handlers) publishYouTubeShort(ctx context.Context, job *models.Job) (map[string]any, error) {
	return h.publish(ctx, job, models.ChannelYouTubeShorts)
}

// publish runs the seven-step publish check order shared by every channel
// and, if every step passes, calls the channel adapter and records the
// result.
func (h *handlers) publish(ctx context.Context, job *models.Job, channel string) (map[string]any, error) {
	campaignID, err := campaignIDFromPayload(job)
	if err != nil {
		return nil, err
	}
	campaign, err := h.deps.Storage.PromotionStore().GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, common.Classify(interfaces.CategoryMissingEntity, "", fmt.Errorf("load campaign %s: %w", campaignID, err))
	}

	// Step 0: distributed publish lock, held for the rest of this call.
	// Optional — a nil Lock (no Redis configured) leaves the existing
	// campaignId-scoped EnqueueIfNeeded dedup as the only guard.
	if h.deps.Lock != nil {
		acquired, lerr := h.deps.Lock.Acquire(ctx, campaignID, channel, publishLockTTL)
		if lerr == nil && !acquired {
			h.appendEvent(ctx, campaignID, models.EventPublishSkipped, map[string]any{"channel": channel, "reason": "publish_in_progress"})
			return map[string]any{"campaignId": campaignID, "skipped": "publish_in_progress"}, nil
		}
		if lerr == nil {
			defer func() {
				if rerr := h.deps.Lock.Release(ctx, campaignID, channel); rerr != nil {
					h.deps.Logger.Warn().Err(rerr).Str("campaign_id", campaignID).Str("channel", channel).Msg("failed to release publish lock")
				}
			}()
		}
	}

	// Step 1: campaign must be active.
	if campaign.Status != models.CampaignStatusActive {
		h.appendEvent(ctx, campaignID, models.EventPublishSkipped, map[string]any{"channel": channel, "reason": "not_active"})
		return map[string]any{"campaignId": campaignID, "skipped": "not_active"}, nil
	}

	candidate, err := h.deps.Storage.UnderwritingStore().Get(ctx, campaign.DomainResearchID)
	if err != nil {
		return nil, common.Classify(interfaces.CategoryMissingEntity, "", fmt.Errorf("load domain research %s: %w", campaign.DomainResearchID, err))
	}
	domainID := campaign.DomainResearchID

	// Step 2: channel enabled and not blocked.
	profile, perr := h.deps.Storage.PromotionStore().GetChannelProfile(ctx, domainID, channel)
	if perr != nil || profile == nil || !profile.Enabled || profile.Compatibility == models.CompatibilityBlocked {
		reason := "channel_disabled"
		if profile != nil && profile.Compatibility == models.CompatibilityBlocked {
			reason = "channel_blocked"
		}
		h.appendEvent(ctx, campaignID, models.EventPublishSkipped, map[string]any{"channel": channel, "reason": reason})
		return map[string]any{"campaignId": campaignID, "skipped": reason}, nil
	}

	// Step 3 & 4: campaign-wide and channel-specific daily caps. Both are
	// evaluated against the same per-(campaign,channel) count: this store's
	// CountPublishedToday has no campaign-wide-across-channels variant, so
	// the campaign cap is applied per channel rather than pooled across all
	// of a campaign's channels.
	publishedToday, err := h.deps.Storage.PromotionStore().CountPublishedToday(ctx, campaignID, channel)
	if err != nil {
		return nil, fmt.Errorf("count published today: %w", err)
	}
	dailyCap := campaign.DailyCap
	if h.deps.Config != nil {
		if d := h.deps.Config.GetDefaultDailyCap(); dailyCap < d {
			dailyCap = d
		}
	}
	if publishedToday >= dailyCap {
		h.appendEvent(ctx, campaignID, models.EventPublishSkipped, map[string]any{"channel": channel, "reason": "campaign_daily_cap"})
		return map[string]any{"campaignId": campaignID, "skipped": "campaign_daily_cap"}, nil
	}
	if profile.DailyCap > 0 && publishedToday >= profile.DailyCap {
		h.appendEvent(ctx, campaignID, models.EventPublishSkipped, map[string]any{"channel": channel, "reason": "channel_daily_cap"})
		return map[string]any{"campaignId": campaignID, "skipped": "channel_daily_cap"}, nil
	}

	cooldown := 24 * time.Hour
	if h.deps.Config != nil {
		cooldown = h.deps.Config.GetCooldown()
	}
	now := time.Now()
	hash := creativeHash("", campaignID, candidate.Domain, channel, now)

	// Step 5: duplicate suppression.
	dup, err := h.deps.Storage.PromotionStore().HasRecentPublishedWithCreative(ctx, campaignID, channel, hash, cooldown)
	if err != nil {
		return nil, fmt.Errorf("check duplicate creative: %w", err)
	}
	if dup {
		h.appendEvent(ctx, campaignID, models.EventPublishSkipped, map[string]any{"channel": channel, "reason": "duplicate_creative"})
		return map[string]any{"campaignId": campaignID, "skipped": "duplicate_creative"}, nil
	}

	// Step 6: domain cooldown.
	domainDup, err := h.deps.Storage.PromotionStore().HasRecentDomainPublish(ctx, domainID, channel, cooldown)
	if err != nil {
		return nil, fmt.Errorf("check domain cooldown: %w", err)
	}
	if domainDup {
		h.appendEvent(ctx, campaignID, models.EventPublishSkipped, map[string]any{"channel": channel, "reason": "domain_cooldown"})
		return map[string]any{"campaignId": campaignID, "skipped": "domain_cooldown"}, nil
	}

	// Step 7: policy gate.
	destinationURL := fmt.Sprintf("https://%s", candidate.Domain)
	copyText := fmt.Sprintf("Check out %s", candidate.Domain)
	policyResult, err := h.deps.Policy.Evaluate(ctx, interfaces.PolicyRequest{Channel: channel, Copy: copyText, DestinationURL: destinationURL})
	if err != nil {
		return nil, err
	}
	h.evaluateIntegrityAlerts(ctx, campaignID)
	if !policyResult.Allowed {
		h.appendEvent(ctx, campaignID, models.EventPublishBlocked, map[string]any{
			"channel":         channel,
			"blockReasons":    policyResult.BlockReasons,
			"destinationHost": policyResult.DestinationHost,
			"riskScore":       policyResult.DestinationRiskScore,
		})
		if h.deps.Notify != nil && policyResult.DestinationRiskScore > 0.7 {
			_ = h.deps.Notify.Create(ctx, "destination_quality_blocked", "a publish was blocked for destination quality", map[string]any{
				"campaignId": campaignID, "channel": channel,
			})
		}
		if err := h.enqueueGrowthJob(ctx, campaignID, models.JobSyncCampaignMetrics, "", nil, nil); err != nil {
			h.deps.Logger.Warn().Err(err).Msg("failed to enqueue metrics sync after policy block")
		}
		return map[string]any{"campaignId": campaignID, "blocked": true}, nil
	}

	assetID, _ := job.Payload["assetId"].(string)
	var asset *models.MediaAsset
	if assetID != "" {
		asset, err = h.deps.Storage.MediaStore().Get(ctx, assetID)
	} else {
		asset, err = h.deps.Storage.MediaStore().LeastUsed(ctx, domainID, assetTypeForChannel(channel))
	}
	if err != nil || asset == nil {
		return nil, common.Classify(interfaces.CategoryMissingEntity, "", fmt.Errorf("resolve media asset for channel %s: %w", channel, err))
	}

	cred, cerr := h.deps.Storage.CredentialStore().Resolve(ctx, domainID, channel)
	credSource := "environment"
	credValue := ""
	if cerr == nil && cred != nil {
		credSource = cred.Source
		credValue = cred.TokenJWT
	}

	publishPayload := map[string]any{"copy": policyResult.NormalizedCopy, "destinationUrl": destinationURL, "assetId": asset.ID}
	publishResult, err := h.deps.Channel.Publish(ctx, channel, publishPayload, credValue)
	if err != nil {
		return nil, err
	}

	h.appendEvent(ctx, campaignID, models.EventPublished, map[string]any{
		"channel":         channel,
		"creativeHash":    hash,
		"assetId":         asset.ID,
		"destinationHost": policyResult.DestinationHost,
		"riskScore":       policyResult.DestinationRiskScore,
		"policyPackId":    policyResult.PolicyPackID,
		"externalPostId":  publishResult.ExternalPostID,
		"status":          publishResult.Status,
		"launchedBy":      "system",
		"credentialSource": credSource,
	})

	if err := h.deps.Storage.MediaStore().RecordUsage(ctx, &models.MediaUsage{AssetID: asset.ID, CampaignID: campaignID, Channel: channel}); err != nil {
		h.deps.Logger.Warn().Err(err).Str("asset_id", asset.ID).Msg("failed to record media usage")
	}

	if err := h.enqueueGrowthJob(ctx, campaignID, models.JobSyncCampaignMetrics, "", nil, nil); err != nil {
		h.deps.Logger.Warn().Err(err).Msg("failed to enqueue metrics sync after publish")
	}
	h.evaluateIntegrityAlerts(ctx, campaignID)

	return map[string]any{"campaignId": campaignID, "published": true, "channel": channel}, nil
}

// evaluateIntegrityAlerts logs a warning when one destination host
// dominates a campaign's recent publishes — a rough proxy for the
// destination-concentration integrity signal named in §6.
func (h *handlers) evaluateIntegrityAlerts(ctx context.Context, campaignID string) {
	if h.deps.Config == nil {
		return
	}
	window := h.deps.Config.GetIntegrityAlertWindow()
	hosts, total, err := h.deps.Storage.PromotionStore().DestinationHostConcentration(ctx, campaignID, window)
	if err != nil || total == 0 {
		return
	}
	for host, count := range hosts {
		if float64(count)/float64(total) > 0.8 {
			h.deps.Logger.Warn().Str("campaign_id", campaignID).Str("host", host).Int("count", count).Int("total", total).Msg("destination host concentration integrity alert")
		}
	}
}

// syncCampaignMetrics aggregates campaign events into the metrics snapshot.
func (h *handlers) syncCampaignMetrics(ctx context.Context, job *models.Job) (map[string]any, error) {
	campaignID, err := campaignIDFromPayload(job)
	if err != nil {
		return nil, err
	}
	campaign, err := h.deps.Storage.PromotionStore().GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, common.Classify(interfaces.CategoryMissingEntity, "", fmt.Errorf("load campaign %s: %w", campaignID, err))
	}

	metrics, err := h.deps.Storage.PromotionStore().AggregateMetrics(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("aggregate campaign metrics: %w", err)
	}
	campaign.Metrics = metrics
	if err := h.deps.Storage.PromotionStore().UpdateCampaign(ctx, campaign); err != nil {
		return nil, fmt.Errorf("persist campaign metrics: %w", err)
	}
	h.appendEvent(ctx, campaignID, models.EventMetricsSynced, map[string]any{"totalEvents": metrics.TotalEvents})

	return map[string]any{"campaignId": campaignID, "totalEvents": metrics.TotalEvents}, nil
}

// Package underwriting implements the acquisition underwriting pipeline
// (C7): ingest_listings, enrich_candidate, score_candidate, create_bid_plan.
package underwriting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/domainpress/pipeline/internal/common"
	"github.com/domainpress/pipeline/internal/interfaces"
	"github.com/domainpress/pipeline/internal/models"
	"github.com/domainpress/pipeline/internal/services/jobmanager"
)

// Deps collects the underwriting chain's collaborators.
type Deps struct {
	Storage   interfaces.StorageManager
	Evaluator interfaces.Evaluator
	Flags     interfaces.FeatureFlags
	Logger    *common.Logger
}

// Decision thresholds applied to a scored candidate (§4.6: "the exact
// underwriting formula is a collaborator; the queue stores and interprets
// the result"). Composite/risk are both on a 0-100 scale.
const (
	buyCompositeMin    = 70.0
	buyRiskMax         = 40.0
	buyConfidenceMin   = 0.6
	watchCompositeMin  = 40.0
	watchRiskMax       = 70.0
)

// Register binds the four underwriting chain handlers onto m.
func Register(m *jobmanager.Manager, deps Deps) {
	h := &handlers{deps: deps, manager: m}
	m.RegisterHandler(models.JobIngestListings, h.ingestListings)
	m.RegisterHandler(models.JobEnrichCandidate, h.enrichCandidate)
	m.RegisterHandler(models.JobScoreCandidate, h.scoreCandidate)
	m.RegisterHandler(models.JobCreateBidPlan, h.createBidPlan)
}

type handlers struct {
	deps    Deps
	manager *jobmanager.Manager
}

// requireFlag dead-letters a job whose gating flag is off, mirroring
// §4.4's other feature-flag-disabled handling.
func (h *handlers) requireFlag(ctx context.Context) error {
	if h.deps.Flags == nil {
		return nil
	}
	enabled, err := h.deps.Flags.IsEnabled(ctx, interfaces.FlagAcquisitionUnderwritingV1)
	if err != nil {
		h.deps.Logger.Debug().Err(err).Msg("acquisition_underwriting_v1 flag check failed, proceeding open")
		return nil
	}
	if !enabled {
		return common.Classify(interfaces.CategoryFeatureDisabled, "", fmt.Errorf("acquisition_underwriting_v1 is disabled"))
	}
	return nil
}

func (h *handlers) appendEvent(ctx context.Context, domainResearchID, eventType string, attrs map[string]any) {
	e := &models.AcquisitionEvent{DomainResearchID: domainResearchID, EventType: eventType, Attributes: attrs}
	if err := h.deps.Storage.UnderwritingStore().AppendEvent(ctx, e); err != nil {
		h.deps.Logger.Warn().Err(err).Str("domain_research_id", domainResearchID).Str("event_type", eventType).Msg("failed to append acquisition event")
	}
}

func domainResearchIDFromPayload(job *models.Job) (string, error) {
	id, _ := job.Payload["domainResearchId"].(string)
	if id == "" {
		return "", common.Classify(interfaces.CategoryValidation, "", fmt.Errorf("%s job missing domainResearchId", job.JobType))
	}
	return id, nil
}

// ingestListings normalizes and upserts one or more candidate listings,
// fanning out one idempotent enrich_candidate job per candidate.
func (h *handlers) ingestListings(ctx context.Context, job *models.Job) (map[string]any, error) {
	if err := h.requireFlag(ctx); err != nil {
		return nil, err
	}

	raw, _ := job.Payload["listings"].([]any)
	if len(raw) == 0 {
		return nil, common.Classify(interfaces.CategoryValidation, "", fmt.Errorf("ingest_listings job has no listings"))
	}

	ingested := 0
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		domain := strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", m["domain"])))
		if domain == "" {
			continue
		}
		tld := strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", m["tld"])))

		candidate, err := h.deps.Storage.UnderwritingStore().GetByDomain(ctx, domain)
		if err != nil || candidate == nil {
			candidate = &models.DomainResearch{Domain: domain, TLD: tld, Decision: models.DecisionResearching}
		}
		if lp, ok := m["listPrice"].(float64); ok {
			candidate.ListPrice = lp
		}
		if cb, ok := m["currentBid"].(float64); ok {
			candidate.CurrentBid = cb
		}
		if end, ok := m["auctionEndAt"].(string); ok && end != "" {
			if t, perr := time.Parse(time.RFC3339, end); perr == nil {
				candidate.AuctionEndAt = &t
			}
		}

		if err := h.deps.Storage.UnderwritingStore().UpsertCandidate(ctx, candidate); err != nil {
			h.deps.Logger.Warn().Err(err).Str("domain", domain).Msg("failed to upsert ingested candidate")
			continue
		}
		h.appendEvent(ctx, candidate.ID, "ingested", map[string]any{"domain": domain})
		ingested++

		enrichJob := &models.Job{
			JobType: models.JobEnrichCandidate,
			Payload: map[string]any{"domainResearchId": candidate.ID},
		}
		if _, err := h.manager.EnqueueIfNeeded(ctx, enrichJob, "domainResearchId", candidate.ID); err != nil {
			h.deps.Logger.Warn().Err(err).Str("domain_research_id", candidate.ID).Msg("failed to enqueue enrich_candidate")
		}
	}

	return map[string]any{"ingested": ingested}, nil
}

// enrichCandidate calls the evaluator collaborator and stores its scores
// onto the candidate row.
func (h *handlers) enrichCandidate(ctx context.Context, job *models.Job) (map[string]any, error) {
	if err := h.requireFlag(ctx); err != nil {
		return nil, err
	}
	id, err := domainResearchIDFromPayload(job)
	if err != nil {
		return nil, err
	}
	candidate, err := h.deps.Storage.UnderwritingStore().Get(ctx, id)
	if err != nil {
		return nil, common.Classify(interfaces.CategoryMissingEntity, "", fmt.Errorf("load candidate %s: %w", id, err))
	}

	result, err := h.deps.Evaluator.EvaluateDomain(ctx, candidate.Domain, nil)
	if err != nil {
		return nil, err
	}

	candidate.CompositeScore = result.CompositeScore
	candidate.RiskScore = result.RiskScore
	candidate.Confidence = result.Confidence
	candidate.HardFailReason = result.HardFailReason

	if err := h.deps.Storage.UnderwritingStore().Update(ctx, candidate); err != nil {
		return nil, fmt.Errorf("persist enrichment: %w", err)
	}

	eventType := "enriched"
	if candidate.HardFailReason != "" {
		eventType = "hard_fail"
	}
	h.appendEvent(ctx, candidate.ID, eventType, map[string]any{
		"recommendation": result.Recommendation,
		"compositeScore": result.CompositeScore,
		"riskScore":      result.RiskScore,
		"hardFailReason": result.HardFailReason,
	})

	scoreJob := &models.Job{
		JobType: models.JobScoreCandidate,
		Payload: map[string]any{"domainResearchId": candidate.ID},
	}
	if _, err := h.manager.EnqueueIfNeeded(ctx, scoreJob, "domainResearchId", candidate.ID); err != nil {
		return nil, fmt.Errorf("enqueue score_candidate: %w", err)
	}
	return map[string]any{"domainResearchId": candidate.ID, "hardFail": candidate.HardFailReason != ""}, nil
}

// decide derives a buy/watchlist/pass outcome from a scored candidate's
// persisted composite/risk/confidence thresholds.
func decide(c *models.DomainResearch) string {
	if c.HardFailReason != "" {
		return models.DecisionPass
	}
	switch {
	case c.CompositeScore >= buyCompositeMin && c.RiskScore <= buyRiskMax && c.Confidence >= buyConfidenceMin:
		return models.DecisionBuy
	case c.CompositeScore >= watchCompositeMin && c.RiskScore <= watchRiskMax:
		return models.DecisionWatchlist
	default:
		return models.DecisionPass
	}
}

// maxBid projects a bid ceiling from the composite score and confidence.
// Only buy/watchlist decisions get a non-zero cap.
func maxBid(c *models.DomainResearch, decision string) float64 {
	if decision != models.DecisionBuy && decision != models.DecisionWatchlist {
		return 0
	}
	return c.CompositeScore * c.Confidence * 10
}

// scoreCandidate derives the underwriting decision, syncs the human review
// task and preview build lifecycle, and chains to create_bid_plan.
func (h *handlers) scoreCandidate(ctx context.Context, job *models.Job) (map[string]any, error) {
	if err := h.requireFlag(ctx); err != nil {
		return nil, err
	}
	id, err := domainResearchIDFromPayload(job)
	if err != nil {
		return nil, err
	}
	candidate, err := h.deps.Storage.UnderwritingStore().Get(ctx, id)
	if err != nil {
		return nil, common.Classify(interfaces.CategoryMissingEntity, "", fmt.Errorf("load candidate %s: %w", id, err))
	}

	decision := decide(candidate)
	candidate.Decision = decision
	candidate.BidCap = maxBid(candidate, decision)
	candidate.UnderwritingVersion = "v1"

	if err := h.deps.Storage.UnderwritingStore().Update(ctx, candidate); err != nil {
		return nil, fmt.Errorf("persist underwriting decision: %w", err)
	}

	if decision == models.DecisionBuy {
		task := &models.ReviewTask{
			DomainResearchID: candidate.ID,
			Status:           models.ReviewTaskPending,
			Checklist: []string{
				"verify ownership transfer terms",
				"confirm trademark clearance",
				"confirm no outstanding liens or disputes",
			},
		}
		if err := h.deps.Storage.ReviewTaskStore().Upsert(ctx, task); err != nil {
			h.deps.Logger.Warn().Err(err).Str("domain_research_id", candidate.ID).Msg("failed to sync review task")
		}
	} else {
		if err := h.deps.Storage.ReviewTaskStore().CancelPending(ctx, candidate.ID); err != nil {
			h.deps.Logger.Warn().Err(err).Str("domain_research_id", candidate.ID).Msg("failed to cancel pending review task")
		}
	}

	previewStatus := "ready"
	if decision == models.DecisionPass {
		previewStatus = "expired"
	}
	if err := h.deps.Storage.UnderwritingStore().UpsertPreviewBuild(ctx, &models.PreviewBuild{
		DomainResearchID: candidate.ID,
		Status:           previewStatus,
	}); err != nil {
		h.deps.Logger.Warn().Err(err).Str("domain_research_id", candidate.ID).Msg("failed to sync preview build")
	}

	h.appendEvent(ctx, candidate.ID, "scored", map[string]any{
		"decision":       decision,
		"compositeScore": candidate.CompositeScore,
		"riskScore":      candidate.RiskScore,
		"bidCap":         candidate.BidCap,
	})

	if candidate.HardFailReason != "" {
		return map[string]any{"domainResearchId": candidate.ID, "decision": decision}, nil
	}

	bidJob := &models.Job{
		JobType: models.JobCreateBidPlan,
		Payload: map[string]any{"domainResearchId": candidate.ID},
	}
	if _, err := h.manager.EnqueueIfNeeded(ctx, bidJob, "domainResearchId", candidate.ID); err != nil {
		return nil, fmt.Errorf("enqueue create_bid_plan: %w", err)
	}
	return map[string]any{"domainResearchId": candidate.ID, "decision": decision}, nil
}

// createBidPlan turns a scored candidate into a bid plan kind and increment.
func (h *handlers) createBidPlan(ctx context.Context, job *models.Job) (map[string]any, error) {
	if err := h.requireFlag(ctx); err != nil {
		return nil, err
	}
	id, err := domainResearchIDFromPayload(job)
	if err != nil {
		return nil, err
	}
	candidate, err := h.deps.Storage.UnderwritingStore().Get(ctx, id)
	if err != nil {
		return nil, common.Classify(interfaces.CategoryMissingEntity, "", fmt.Errorf("load candidate %s: %w", id, err))
	}

	var kind string
	switch candidate.Decision {
	case models.DecisionBuy:
		if candidate.AuctionEndAt != nil {
			kind = models.BidPlanAuctionBid
		} else {
			kind = models.BidPlanBuyNow
		}
	case models.DecisionWatchlist:
		kind = models.BidPlanWatchlist
	default:
		kind = models.BidPlanPass
	}

	candidate.BidPlanKind = kind
	candidate.BidIncrement = models.BidIncrement(candidate.CurrentBid)

	if err := h.deps.Storage.UnderwritingStore().Update(ctx, candidate); err != nil {
		return nil, fmt.Errorf("persist bid plan: %w", err)
	}
	h.appendEvent(ctx, candidate.ID, "bid_plan_created", map[string]any{
		"bidPlanKind":  kind,
		"bidIncrement": candidate.BidIncrement,
	})

	return map[string]any{"domainResearchId": candidate.ID, "bidPlanKind": kind}, nil
}

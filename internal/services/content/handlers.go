package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/domainpress/pipeline/internal/common"
	"github.com/domainpress/pipeline/internal/interfaces"
	"github.com/domainpress/pipeline/internal/models"
	"github.com/domainpress/pipeline/internal/services/jobmanager"
)

// Deps collects the pipeline stage handlers' collaborators (§4.4, §6). Flags
// is optional: a nil Flags skips straight to the AI_REVIEW_FALLBACK_ENABLED
// env fallback in generateMeta.
type Deps struct {
	Storage interfaces.StorageManager
	AI      interfaces.AIClient
	Flags   interfaces.FeatureFlags
	Cache   interfaces.ResearchCache
	Logger  *common.Logger
}

var validate = validator.New()

const keywordOpportunityCount = 8

// Register binds all seven pipeline stage handlers onto m.
func Register(m *jobmanager.Manager, deps Deps) {
	h := &handlers{deps: deps, manager: m}
	m.RegisterHandler(models.JobKeywordResearch, h.keywordResearch)
	m.RegisterHandler(models.JobResearch, h.research)
	m.RegisterHandler(models.JobGenerateOutline, h.generateOutline)
	m.RegisterHandler(models.JobGenerateDraft, h.generateDraft)
	m.RegisterHandler(models.JobHumanize, h.humanize)
	m.RegisterHandler(models.JobSEOOptimize, h.seoOptimize)
	m.RegisterHandler(models.JobGenerateMeta, h.generateMeta)
}

type handlers struct {
	deps    Deps
	manager *jobmanager.Manager
}

// logAPICall records one AI call's accounting row. Never fails the stage:
// a logging failure is warned and swallowed, matching the teacher's
// fire-and-forget accounting idiom.
func (h *handlers) logAPICall(ctx context.Context, articleID, domainID, stage string, res *interfaces.GenerateResult) {
	if res == nil {
		return
	}
	l := &models.APICallLog{
		ArticleID:      articleID,
		DomainID:       domainID,
		Stage:          stage,
		ModelKey:       res.ModelKey,
		ResolvedModel:  res.ResolvedModel,
		PromptVersion:  res.PromptVersion,
		RoutingVersion: res.RoutingVersion,
		FallbackUsed:   res.FallbackUsed,
		InputTokens:    res.InputTokens,
		OutputTokens:   res.OutputTokens,
		CostUSD:        res.CostUSD,
		DurationMS:     res.DurationMS,
	}
	if err := h.deps.Storage.AccountingStore().LogAPICall(ctx, l); err != nil {
		h.deps.Logger.Warn().Err(err).Str("stage", stage).Msg("failed to log api call accounting")
	}
}

func (h *handlers) recordRevision(ctx context.Context, articleID, stage, summary string) {
	r := &models.Revision{ArticleID: articleID, Stage: stage, Summary: summary}
	if err := h.deps.Storage.AccountingStore().AppendRevision(ctx, r); err != nil {
		h.deps.Logger.Warn().Err(err).Str("stage", stage).Msg("failed to append revision")
	}
}

// keywordResearch generates keyword opportunities for a domain, picks the
// highest volume/difficulty ratio, and stubs an article for it.
func (h *handlers) keywordResearch(ctx context.Context, job *models.Job) (map[string]any, error) {
	if job.DomainID == "" {
		return nil, common.Classify(interfaces.CategoryValidation, "", fmt.Errorf("keyword_research job missing domainId"))
	}
	domain, err := h.deps.Storage.DomainStore().Get(ctx, job.DomainID)
	if err != nil {
		return nil, common.Classify(interfaces.CategoryMissingEntity, "", fmt.Errorf("load domain %s: %w", job.DomainID, err))
	}

	prompt := fmt.Sprintf("Suggest %d keyword opportunities with estimated monthly volume and 1-100 difficulty for the domain %q (niche: %s).",
		keywordOpportunityCount, domain.Domain, domain.Niche)

	var out keywordResearchResult
	res, err := h.deps.AI.GenerateJSON(ctx, "keyword_research", prompt, nil, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Keywords) == 0 {
		return nil, common.Classify(interfaces.CategoryProviderError, "", fmt.Errorf("keyword research returned no keywords"))
	}

	best := out.Keywords[0]
	bestRatio := ratio(best)
	for _, k := range out.Keywords[1:] {
		if r := ratio(k); r > bestRatio {
			best, bestRatio = k, r
		}
	}

	article := &models.Article{
		Domain:        domain.ID,
		Title:         best.Keyword,
		Slug:          Slugify(best.Keyword),
		Status:        models.ArticleStatusDraft,
		TargetKeyword: best.Keyword,
	}
	if err := h.deps.Storage.ArticleStore().Create(ctx, article); err != nil {
		return nil, fmt.Errorf("create article stub: %w", err)
	}

	h.logAPICall(ctx, article.ID, domain.ID, "keyword_research", res)
	h.recordRevision(ctx, article.ID, "keyword_research", fmt.Sprintf("selected keyword %q (ratio %.2f)", best.Keyword, bestRatio))

	if err := h.manager.Enqueue(ctx, &models.Job{
		JobType:   models.JobResearch,
		ArticleID: article.ID,
		DomainID:  domain.ID,
	}); err != nil {
		return nil, fmt.Errorf("enqueue research: %w", err)
	}
	return map[string]any{"articleId": article.ID, "targetKeyword": best.Keyword}, nil
}

func ratio(k keywordOpportunity) float64 {
	if k.Difficulty <= 0 {
		return k.Volume
	}
	return k.Volume / k.Difficulty
}

// research populates researchData with statistics/quotes/hooks/developments.
func (h *handlers) research(ctx context.Context, job *models.Job) (map[string]any, error) {
	article, err := h.loadArticle(ctx, job)
	if err != nil {
		return nil, err
	}

	var out researchResult
	var res *interfaces.GenerateResult
	if h.deps.Cache != nil {
		data, cerr := h.deps.Cache.Generate(ctx, job.DomainID, article.TargetKeyword)
		if cerr == nil {
			article.ResearchData = data
		}
	}
	if article.ResearchData == nil {
		prompt := fmt.Sprintf("Research statistics, quotes, hooks, and recent developments for an article about %q.", article.TargetKeyword)
		res, err = h.deps.AI.GenerateJSON(ctx, "research", prompt, nil, &out)
		if err != nil {
			return nil, err
		}
		article.ResearchData = map[string]any{
			"statistics":   out.Statistics,
			"quotes":       out.Quotes,
			"hooks":        out.Hooks,
			"developments": out.Developments,
		}
	}

	if err := h.deps.Storage.ArticleStore().Update(ctx, article); err != nil {
		return nil, fmt.Errorf("persist research data: %w", err)
	}
	h.logAPICall(ctx, article.ID, article.Domain, "research", res)
	h.recordRevision(ctx, article.ID, "research", "populated research data")

	if err := h.manager.Enqueue(ctx, &models.Job{
		JobType:   models.JobGenerateOutline,
		ArticleID: article.ID,
		DomainID:  article.Domain,
	}); err != nil {
		return nil, fmt.Errorf("enqueue generate_outline: %w", err)
	}
	return map[string]any{"articleId": article.ID}, nil
}

// generateOutline asks the AI for title/meta/outline/FAQs, detects content
// type, and validates optional calculator/comparison sub-schemas.
func (h *handlers) generateOutline(ctx context.Context, job *models.Job) (map[string]any, error) {
	article, err := h.loadArticle(ctx, job)
	if err != nil {
		return nil, err
	}

	contentType := DetectContentType(article.TargetKeyword)

	prompt := fmt.Sprintf("Write an SEO title, meta description, outline, and FAQs for a %s article targeting %q.",
		contentType, article.TargetKeyword)

	var out outlineResult
	res, err := h.deps.AI.GenerateJSON(ctx, "generate_outline", prompt, nil, &out)
	if err != nil {
		return nil, err
	}

	article.ContentType = contentType
	if out.Title != "" {
		article.Title = out.Title
	}
	if out.MetaDescription != "" {
		article.MetaDescription = out.MetaDescription
	}
	article.HeaderStructure = map[string]any{"outline": out.Outline, "faqs": out.FAQs}

	switch contentType {
	case models.ContentTypeCalculator:
		if out.Calculator != nil {
			if verr := validate.Struct(out.Calculator); verr != nil {
				h.deps.Logger.Warn().Err(verr).Str("article_id", article.ID).Msg("dropping invalid calculator schema, keeping outline")
			} else {
				article.CalculatorConfig = &models.CalculatorConfig{Formula: out.Calculator.Formula, Kind: out.Calculator.Kind}
				for _, in := range out.Calculator.Inputs {
					article.CalculatorConfig.Inputs = append(article.CalculatorConfig.Inputs, models.CalculatorInput{
						Name: in.Name, Label: in.Label, Unit: in.Unit,
					})
				}
			}
		}
	case models.ContentTypeComparison:
		if out.Comparison != nil {
			if verr := validate.Struct(out.Comparison); verr != nil {
				h.deps.Logger.Warn().Err(verr).Str("article_id", article.ID).Msg("dropping invalid comparison schema, keeping outline")
			} else {
				article.ComparisonData = &models.ComparisonData{
					ItemA: out.Comparison.ItemA, ItemB: out.Comparison.ItemB,
					Axes: out.Comparison.Axes, Notes: out.Comparison.Notes,
				}
			}
		}
	}

	if err := h.deps.Storage.ArticleStore().Update(ctx, article); err != nil {
		return nil, fmt.Errorf("persist outline: %w", err)
	}
	h.logAPICall(ctx, article.ID, article.Domain, "generate_outline", res)
	h.recordRevision(ctx, article.ID, "generate_outline", fmt.Sprintf("generated outline, contentType=%s", contentType))

	if err := h.manager.Enqueue(ctx, &models.Job{
		JobType:   models.JobGenerateDraft,
		ArticleID: article.ID,
		DomainID:  article.Domain,
	}); err != nil {
		return nil, fmt.Errorf("enqueue generate_draft: %w", err)
	}
	return map[string]any{"articleId": article.ID, "contentType": contentType}, nil
}

// generateDraft writes the first full pass of markdown for the article.
func (h *handlers) generateDraft(ctx context.Context, job *models.Job) (map[string]any, error) {
	article, err := h.loadArticle(ctx, job)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf("Write a full %s article draft for target keyword %q using the prepared outline.", article.ContentType, article.TargetKeyword)
	var out draftResult
	res, err := h.deps.AI.GenerateJSON(ctx, "generate_draft", prompt, nil, &out)
	if err != nil {
		return nil, err
	}

	markdown := StripEmDashes(out.Markdown)
	wordCount := WordCount(markdown)
	if wordCount < 100 && article.ContentType != models.ContentTypeCalculator {
		return nil, common.Classify(interfaces.CategoryShortContent, "regenerate with a longer prompt",
			fmt.Errorf("draft for article %s produced only %d words", article.ID, wordCount))
	}

	article.ContentMarkdown = markdown
	article.WordCount = wordCount
	article.GenerationPasses = 1

	if err := h.deps.Storage.ArticleStore().Update(ctx, article); err != nil {
		return nil, fmt.Errorf("persist draft: %w", err)
	}
	h.logAPICall(ctx, article.ID, article.Domain, "generate_draft", res)
	h.recordRevision(ctx, article.ID, "generate_draft", fmt.Sprintf("drafted %d words", wordCount))

	if err := h.manager.Enqueue(ctx, &models.Job{
		JobType:   models.JobHumanize,
		ArticleID: article.ID,
		DomainID:  article.Domain,
	}); err != nil {
		return nil, fmt.Errorf("enqueue humanize: %w", err)
	}
	return map[string]any{"articleId": article.ID, "wordCount": wordCount}, nil
}

// voiceSeed derives a stable per-domain voice fingerprint for the humanize
// prompt, so the same domain's articles keep a recognizable voice across
// runs without persisting a separate voice-profile record.
func voiceSeed(domainID string) string {
	sum := sha256.Sum256([]byte("voice:" + domainID))
	return hex.EncodeToString(sum[:8])
}

// humanize rewrites the draft with a per-domain voice seed.
func (h *handlers) humanize(ctx context.Context, job *models.Job) (map[string]any, error) {
	article, err := h.loadArticle(ctx, job)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf("Rewrite this article in a natural human voice (voice seed %s), preserving facts and structure:\n\n%s",
		voiceSeed(article.Domain), article.ContentMarkdown)

	var out humanizeResult
	res, err := h.deps.AI.GenerateJSON(ctx, "humanize", prompt, nil, &out)
	if err != nil {
		return nil, err
	}

	markdown := StripEmDashes(out.Markdown)
	article.ContentMarkdown = markdown
	article.WordCount = WordCount(markdown)
	article.GenerationPasses = 2

	if err := h.deps.Storage.ArticleStore().Update(ctx, article); err != nil {
		return nil, fmt.Errorf("persist humanized draft: %w", err)
	}
	h.logAPICall(ctx, article.ID, article.Domain, "humanize", res)
	h.recordRevision(ctx, article.ID, "humanize", "humanized draft")

	if err := h.manager.Enqueue(ctx, &models.Job{
		JobType:   models.JobSEOOptimize,
		ArticleID: article.ID,
		DomainID:  article.Domain,
	}); err != nil {
		return nil, fmt.Errorf("enqueue seo_optimize: %w", err)
	}
	return map[string]any{"articleId": article.ID}, nil
}

const maxInternalLinkSiblings = 20

// seoOptimize adds internal links drawn from up to 20 published siblings.
func (h *handlers) seoOptimize(ctx context.Context, job *models.Job) (map[string]any, error) {
	article, err := h.loadArticle(ctx, job)
	if err != nil {
		return nil, err
	}

	siblings, err := h.deps.Storage.ArticleStore().ListPublishedSiblings(ctx, article.Domain, maxInternalLinkSiblings)
	if err != nil {
		return nil, fmt.Errorf("list published siblings: %w", err)
	}
	links := make([]string, 0, len(siblings))
	for _, s := range siblings {
		links = append(links, fmt.Sprintf("%s (%s)", s.Title, s.Slug))
	}

	prompt := fmt.Sprintf("Add internal links to relevant siblings where natural:\n%v\n\nArticle:\n%s", links, article.ContentMarkdown)
	var out seoResult
	res, err := h.deps.AI.GenerateJSON(ctx, "seo_optimize", prompt, nil, &out)
	if err != nil {
		return nil, err
	}

	markdown := StripEmDashes(out.Markdown)
	article.ContentMarkdown = markdown
	article.WordCount = WordCount(markdown)
	article.GenerationPasses = 3

	if err := h.deps.Storage.ArticleStore().Update(ctx, article); err != nil {
		return nil, fmt.Errorf("persist seo-optimized draft: %w", err)
	}
	h.logAPICall(ctx, article.ID, article.Domain, "seo_optimize", res)
	h.recordRevision(ctx, article.ID, "seo_optimize", fmt.Sprintf("linked %d siblings", len(links)))

	if err := h.manager.Enqueue(ctx, &models.Job{
		JobType:   models.JobGenerateMeta,
		ArticleID: article.ID,
		DomainID:  article.Domain,
	}); err != nil {
		return nil, fmt.Errorf("enqueue generate_meta: %w", err)
	}
	return map[string]any{"articleId": article.ID}, nil
}

// classifyYMYL assigns a coarse your-money-or-your-life risk level from
// content type; health_decision and cost_guide content carries real-world
// stakes that gate it toward human review more readily than the rest.
func classifyYMYL(contentType string) string {
	switch contentType {
	case models.ContentTypeHealthDecision:
		return models.YMYLHigh
	case models.ContentTypeCostGuide, models.ContentTypeWizard, models.ContentTypeLeadCapture:
		return models.YMYLModerate
	default:
		return models.YMYLNone
	}
}

// aiReviewEnabled gates the optional reviewer pass: the FeatureFlags
// collaborator is authoritative when reachable, and AI_REVIEW_FALLBACK_ENABLED
// is consulted only when it errors (service unavailable), per §6.
func (h *handlers) aiReviewEnabled(ctx context.Context) bool {
	if h.deps.Flags != nil {
		if enabled, err := h.deps.Flags.IsEnabled(ctx, interfaces.FlagAIReviewEnabled); err == nil {
			return enabled
		}
	}
	enabled, _ := strconv.ParseBool(os.Getenv("AI_REVIEW_FALLBACK_ENABLED"))
	return enabled
}

// generateMeta generates final title/meta/OG/schema/slug, classifies YMYL
// level, and optionally runs an AI reviewer gate. Terminal stage.
func (h *handlers) generateMeta(ctx context.Context, job *models.Job) (map[string]any, error) {
	article, err := h.loadArticle(ctx, job)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf("Generate final title, meta description, slug, Open Graph, and schema.org JSON-LD for this %s article:\n\n%s",
		article.ContentType, article.ContentMarkdown)
	var out metaResult
	res, err := h.deps.AI.GenerateJSON(ctx, "generate_meta", prompt, nil, &out)
	if err != nil {
		return nil, err
	}

	if out.Title != "" {
		article.Title = out.Title
	}
	if out.MetaDescription != "" {
		article.MetaDescription = out.MetaDescription
	}
	slug := Slugify(out.Slug)
	if slug == "untitled" {
		slug = Slugify(article.Title)
	}
	article.Slug = slug
	article.YMYLLevel = classifyYMYL(article.ContentType)
	h.logAPICall(ctx, article.ID, article.Domain, "generate_meta", res)

	reviewerRan := false
	approved := true
	if h.aiReviewEnabled(ctx) {
		reviewerRan = true
		reviewPrompt := fmt.Sprintf("Review this %s article for factual and policy issues before publish:\n\n%s",
			article.ContentType, article.ContentMarkdown)
		var review reviewResult
		reviewRes, rerr := h.deps.AI.GenerateJSON(ctx, "review", reviewPrompt, nil, &review)
		if rerr == nil {
			h.logAPICall(ctx, article.ID, article.Domain, "review", reviewRes)
			approved = review.Approved && len(review.FailureNotes) == 0 && !review.HumanReview
		} else {
			approved = false
		}
	}

	now := time.Now()
	if approved {
		article.Status = models.ArticleStatusApproved
	} else {
		article.Status = models.ArticleStatusReview
		article.ReviewRequestedAt = &now
	}
	if reviewerRan {
		article.GenerationPasses = 5
	} else {
		article.GenerationPasses = 4
	}

	if err := h.deps.Storage.ArticleStore().Update(ctx, article); err != nil {
		return nil, fmt.Errorf("persist final metadata: %w", err)
	}
	h.recordRevision(ctx, article.ID, "generate_meta", fmt.Sprintf("finalized, status=%s, ymyl=%s", article.Status, article.YMYLLevel))

	return map[string]any{"articleId": article.ID, "status": article.Status, "ymylLevel": article.YMYLLevel}, nil
}

func (h *handlers) loadArticle(ctx context.Context, job *models.Job) (*models.Article, error) {
	if job.ArticleID == "" {
		return nil, common.Classify(interfaces.CategoryValidation, "", fmt.Errorf("%s job missing articleId", job.JobType))
	}
	article, err := h.deps.Storage.ArticleStore().Get(ctx, job.ArticleID)
	if err != nil {
		return nil, common.Classify(interfaces.CategoryMissingEntity, "", fmt.Errorf("load article %s: %w", job.ArticleID, err))
	}
	return article, nil
}

package models

import "time"

// Article statuses.
const (
	ArticleStatusDraft      = "draft"
	ArticleStatusGenerating = "generating"
	ArticleStatusReview     = "review"
	ArticleStatusApproved   = "approved"
	ArticleStatusPublished  = "published"
)

// Content types detected from a target keyword (C5, generate_outline).
const (
	ContentTypeComparison    = "comparison"
	ContentTypeCalculator    = "calculator"
	ContentTypeCostGuide     = "cost_guide"
	ContentTypeWizard        = "wizard"
	ContentTypeLeadCapture   = "lead_capture"
	ContentTypeHealthDecision = "health_decision"
	ContentTypeFAQ           = "faq"
	ContentTypeChecklist     = "checklist"
	ContentTypeReview        = "review"
	ContentTypeArticle       = "article"
)

// YMYL ("Your Money or Your Life") content-risk classification.
const (
	YMYLNone     = "none"
	YMYLModerate = "moderate"
	YMYLHigh     = "high"
)

// Article is a single piece of generated content belonging to a domain.
type Article struct {
	ID     string `json:"id"`
	Domain string `json:"domainId"`
	Title  string `json:"title"`
	Slug   string `json:"slug"`
	Status string `json:"status"`

	ContentMarkdown  string         `json:"contentMarkdown,omitempty"`
	MetaDescription  string         `json:"metaDescription,omitempty"`
	HeaderStructure  map[string]any `json:"headerStructure,omitempty"`
	ResearchData     map[string]any `json:"researchData,omitempty"`
	ContentType      string         `json:"contentType,omitempty"`
	TargetKeyword    string         `json:"targetKeyword"`
	SecondaryKeywords []string      `json:"secondaryKeywords,omitempty"`

	CalculatorConfig *CalculatorConfig `json:"calculatorConfig,omitempty"`
	ComparisonData   *ComparisonData   `json:"comparisonData,omitempty"`

	GenerationPasses int    `json:"generationPasses"`
	WordCount        int    `json:"wordCount"`
	YMYLLevel        string `json:"ymylLevel,omitempty"`

	ReviewRequestedAt *time.Time `json:"reviewRequestedAt,omitempty"`
	LastReviewedAt    *time.Time `json:"lastReviewedAt,omitempty"`
	LastRefreshedAt   *time.Time `json:"lastRefreshedAt,omitempty"`
	IsSeedArticle     bool       `json:"isSeedArticle"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CalculatorConfig describes the inputs/outputs of a calculator-type article.
// Validated with go-playground/validator tags before being persisted.
type CalculatorConfig struct {
	Kind    string              `json:"kind" validate:"required"`
	Inputs  []CalculatorInput   `json:"inputs" validate:"required,min=1,dive"`
	Formula string              `json:"formula" validate:"required"`
}

// CalculatorInput is a single input field of a CalculatorConfig.
type CalculatorInput struct {
	Name  string `json:"name" validate:"required"`
	Label string `json:"label" validate:"required"`
	Unit  string `json:"unit,omitempty"`
}

// ComparisonData describes the items compared by a comparison-type article.
type ComparisonData struct {
	ItemA string            `json:"itemA" validate:"required"`
	ItemB string            `json:"itemB" validate:"required"`
	Axes  []string          `json:"axes" validate:"required,min=1"`
	Notes map[string]string `json:"notes,omitempty"`
}

// Domain buckets drive the content scheduler's cadence profile (C8).
const (
	BucketBuild     = "build"
	BucketRedirect  = "redirect"
	BucketPark      = "park"
	BucketDefensive = "defensive"
)

// Domain is a property the pipeline generates content for.
type Domain struct {
	ID        string         `json:"id"`
	Domain    string         `json:"domain"`
	TLD       string         `json:"tld"`
	Status    string         `json:"status"`
	Niche     string         `json:"niche,omitempty"`
	SubNiche  string         `json:"subNiche,omitempty"`
	Bucket    string         `json:"bucket"`
	ContentConfig DomainContentConfig `json:"contentConfig"`
	DeletedAt *time.Time     `json:"deletedAt,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// DomainContentConfig carries the scheduler overrides for a domain.
type DomainContentConfig struct {
	Schedule DomainSchedule `json:"schedule"`
}

// DomainSchedule is the per-domain override for cadence (falls back to the
// bucket's BucketCadenceProfile when a field is empty).
type DomainSchedule struct {
	Frequency  string `json:"frequency,omitempty"`  // daily, weekly, sporadic
	TimeOfDay  string `json:"timeOfDay,omitempty"`   // morning, evening, random
}

// Revision is an append-only audit trail entry for an article mutation.
type Revision struct {
	ID        string    `json:"id"`
	ArticleID string    `json:"articleId"`
	Stage     string    `json:"stage"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// APICallLog records one outbound AI provider call for accounting. Fields
// are opaque strings/numbers to the queue itself.
type APICallLog struct {
	ID             string    `json:"id"`
	ArticleID      string    `json:"articleId,omitempty"`
	DomainID       string    `json:"domainId,omitempty"`
	Stage          string    `json:"stage"`
	ModelKey       string    `json:"modelKey"`
	ResolvedModel  string    `json:"resolvedModel"`
	PromptVersion  string    `json:"promptVersion,omitempty"`
	RoutingVersion string    `json:"routingVersion,omitempty"`
	FallbackUsed   bool      `json:"fallbackUsed"`
	InputTokens    int       `json:"inputTokens"`
	OutputTokens   int       `json:"outputTokens"`
	CostUSD        float64   `json:"costUsd"`
	DurationMS     int64     `json:"durationMs"`
	CreatedAt      time.Time `json:"createdAt"`
}

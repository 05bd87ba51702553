// Package gemini provides a client for the Google Gemini API
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/domainpress/pipeline/internal/common"
	"github.com/domainpress/pipeline/internal/interfaces"
)

const (
	DefaultModel          = "gemini-3-flash-preview"
	DefaultMaxURLs        = 20
	DefaultMaxContentSize = 34 * 1024 * 1024 // 34MB
	DefaultRateLimit      = 5                // requests per second

	promptVersion  = "v1"
	routingVersion = "v1"
)

// Client implements interfaces.AIClient against the Gemini API.
type Client struct {
	client         *genai.Client
	model          string
	fallbackModel  string
	maxURLs        int
	maxContentSize int64
	logger         *common.Logger
	limiter        *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithModel sets the model to use
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// WithFallbackModel sets a cheaper/more available model to retry with when
// the primary model call fails with any error.
func WithFallbackModel(model string) ClientOption {
	return func(c *Client) {
		c.fallbackModel = model
	}
}

// WithMaxURLs sets the maximum URLs for URL context
func WithMaxURLs(maxURLs int) ClientOption {
	return func(c *Client) {
		c.maxURLs = maxURLs
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit overrides the client's requests-per-second ceiling.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a new Gemini client
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c := &Client{
		client:         genaiClient,
		model:          DefaultModel,
		maxURLs:        DefaultMaxURLs,
		maxContentSize: DefaultMaxContentSize,
		logger:         common.NewSilentLogger(),
		limiter:        rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Close closes the client
func (c *Client) Close() error {
	// The genai client doesn't have a Close method
	return nil
}

// Generate produces free-form text for a pipeline stage, recording the
// accounting fields the queue attaches to the stage's api_call_log entry.
func (c *Client) Generate(ctx context.Context, stage, prompt string) (*interfaces.GenerateResult, error) {
	start := time.Now()
	c.logger.Debug().Str("stage", stage).Str("model", c.model).Msg("generating content")

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait for stage %s: %w", stage, err)
	}

	contents := genai.Text(prompt)
	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	resolvedModel := c.model
	fallbackUsed := false

	if err != nil && c.fallbackModel != "" {
		c.logger.Warn().Str("stage", stage).Err(err).Msg("primary model failed, retrying with fallback")
		resolvedModel = c.fallbackModel
		fallbackUsed = true
		result, err = c.client.Models.GenerateContent(ctx, resolvedModel, contents, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate content for stage %s: %w", stage, err)
	}

	text, err := extractTextFromResponse(result)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", stage, err)
	}

	return c.buildResult(stage, resolvedModel, text, fallbackUsed, result, start), nil
}

// GenerateJSON produces a response constrained to JSON and unmarshals it
// into out. opts.Model overrides the client's default model for this call.
func (c *Client) GenerateJSON(ctx context.Context, stage, prompt string, opts *interfaces.GenerateOptions, out any) (*interfaces.GenerateResult, error) {
	start := time.Now()

	model := c.model
	if opts != nil && opts.Model != "" {
		model = opts.Model
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if opts != nil && opts.Temperature != 0 {
		temp := float32(opts.Temperature)
		config.Temperature = &temp
	}
	if opts != nil && opts.MaxTokens != 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}

	c.logger.Debug().Str("stage", stage).Str("model", model).Msg("generating structured content")

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait for stage %s: %w", stage, err)
	}

	contents := genai.Text(prompt)
	result, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	fallbackUsed := false
	resolvedModel := model

	if err != nil && c.fallbackModel != "" {
		c.logger.Warn().Str("stage", stage).Err(err).Msg("primary model failed, retrying with fallback")
		resolvedModel = c.fallbackModel
		fallbackUsed = true
		result, err = c.client.Models.GenerateContent(ctx, resolvedModel, contents, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate json for stage %s: %w", stage, err)
	}

	text, err := extractTextFromResponse(result)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", stage, err)
	}

	if err := json.Unmarshal([]byte(text), out); err != nil {
		return nil, fmt.Errorf("stage %s: failed to unmarshal model output as json: %w", stage, err)
	}

	return c.buildResult(stage, resolvedModel, text, fallbackUsed, result, start), nil
}

func (c *Client) buildResult(stage, resolvedModel, text string, fallbackUsed bool, result *genai.GenerateContentResponse, start time.Time) *interfaces.GenerateResult {
	inputTokens, outputTokens := tokenCounts(result)
	return &interfaces.GenerateResult{
		Content:        text,
		ModelKey:       stage,
		ResolvedModel:  resolvedModel,
		PromptVersion:  promptVersion,
		RoutingVersion: routingVersion,
		FallbackUsed:   fallbackUsed,
		InputTokens:    inputTokens,
		OutputTokens:   outputTokens,
		DurationMS:     time.Since(start).Milliseconds(),
	}
}

// GenerateWithURLContext generates content using Gemini's URL context tool.
// If urls are provided, they are prepended to the prompt as reference URLs.
func (c *Client) GenerateWithURLContext(ctx context.Context, prompt string, urls ...string) (string, error) {
	c.logger.Debug().Str("model", c.model).Int("urls", len(urls)).Msg("Generating content with URL context")

	if len(urls) > 0 {
		var sb strings.Builder
		sb.WriteString("Reference URLs:\n")
		for _, u := range urls {
			sb.WriteString("- ")
			sb.WriteString(u)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
		sb.WriteString(prompt)
		prompt = sb.String()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	contents := genai.Text(prompt)
	config := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{URLContext: &genai.URLContext{}}},
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate content with URL context: %w", err)
	}

	return extractTextFromResponse(result)
}

// extractTextFromResponse extracts text from a generate content response
func extractTextFromResponse(result *genai.GenerateContentResponse) (string, error) {
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content generated")
	}

	text := ""
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
	}

	return text, nil
}

// tokenCounts reads prompt/candidate token counts from the response's usage
// metadata, returning zeros if the provider didn't report them.
func tokenCounts(result *genai.GenerateContentResponse) (input, output int) {
	if result == nil || result.UsageMetadata == nil {
		return 0, 0
	}
	return int(result.UsageMetadata.PromptTokenCount), int(result.UsageMetadata.CandidatesTokenCount)
}

// Ensure Client implements AIClient
var _ interfaces.AIClient = (*Client)(nil)

// Package evaluator implements a minimal interfaces.Evaluator: a heuristic
// domain scorer based on surface features (length, TLD, hyphenation). A
// real acquisition-scoring model (traffic history, backlink profile,
// trademark search) is an external collaborator out of scope for this
// queue; this is the local default that lets the underwriting flow run
// without one configured.
package evaluator

import (
	"context"
	"strings"

	"github.com/domainpress/pipeline/internal/interfaces"
)

// tldWeights is a small table of composite-score bonuses for common TLDs;
// unlisted TLDs get no bonus.
var tldWeights = map[string]float64{
	"com": 15,
	"io":  8,
	"co":  5,
	"net": 3,
}

// HeuristicEvaluator scores a domain from cheap lexical signals only.
type HeuristicEvaluator struct{}

// NewHeuristicEvaluator builds a HeuristicEvaluator.
func NewHeuristicEvaluator() *HeuristicEvaluator {
	return &HeuristicEvaluator{}
}

func (e *HeuristicEvaluator) EvaluateDomain(ctx context.Context, domain string, opts map[string]any) (*interfaces.EvaluationResult, error) {
	name := domain
	if i := strings.LastIndex(domain, "."); i > 0 {
		name = domain[:i]
	}
	tld := ""
	if i := strings.LastIndex(domain, "."); i >= 0 {
		tld = strings.ToLower(domain[i+1:])
	}

	composite := 50.0
	composite += tldWeights[tld]
	if l := len(name); l > 0 {
		switch {
		case l <= 6:
			composite += 20
		case l <= 10:
			composite += 10
		case l <= 15:
			composite += 2
		default:
			composite -= 10
		}
	}
	hyphens := strings.Count(name, "-")
	digits := 0
	for _, r := range name {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	composite -= float64(hyphens) * 8
	composite -= float64(digits) * 4
	if composite < 0 {
		composite = 0
	}
	if composite > 100 {
		composite = 100
	}

	risk := 20.0 + float64(hyphens)*15 + float64(digits)*10
	if risk > 100 {
		risk = 100
	}

	hardFail := ""
	if len(name) == 0 {
		hardFail = "empty_domain_label"
	}

	result := &interfaces.EvaluationResult{
		CompositeScore:    composite,
		SubScores:         map[string]float64{"length": composite, "risk": risk},
		RevenueProjection: composite * 12,
		RiskScore:         risk,
		Confidence:        0.5,
		HardFailReason:    hardFail,
	}
	switch {
	case composite >= 70 && risk <= 40:
		result.Recommendation = "buy"
	case composite >= 40 && risk <= 70:
		result.Recommendation = "watchlist"
	default:
		result.Recommendation = "pass"
	}
	return result, nil
}

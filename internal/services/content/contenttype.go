package content

import (
	"regexp"
	"strings"

	"github.com/cloudflare/ahocorasick"

	"github.com/domainpress/pipeline/internal/models"
)

// contentTypeRule is one entry in the content-type detection table (§4.4).
// keywords seed a fast Aho-Corasick pre-filter: match only runs the (more
// expensive) word-boundary regex check when at least one of a rule's
// keywords showed up as a plain substring first.
type contentTypeRule struct {
	contentType string
	keywords    []string
	match       func(lower string) bool
}

var (
	reComparisonVS   = regexp.MustCompile(`\bvs\b`)
	reComparisonVers = regexp.MustCompile(`\bversus\b`)

	reCalculator = regexp.MustCompile(`\bcalculator\b|\bestimator\b|\bcompute\b`)
	reTool       = regexp.MustCompile(`\btool\b`)
	reToolExcl   = regexp.MustCompile(`\b(toolkit|toolbox|tools)\b`)

	reCostGuide = regexp.MustCompile(`\bcost\b|\bprice\b|\bfee\b`)

	reWizardWhich   = regexp.MustCompile(`\bwhich\b`)
	reWizardShould  = regexp.MustCompile(`\bshould i\b`)
	reEligibility   = regexp.MustCompile(`\beligib(le|ility)\b|\bqualify\b`)

	reLawyer      = regexp.MustCompile(`\blawyer\b|\battorney\b`)
	reClaim       = regexp.MustCompile(`\bclaim\b`)
	reClaimExcl   = regexp.MustCompile(`\bclaim to\b`)
	reCase        = regexp.MustCompile(`\bcase\b`)
	reCaseExcl    = regexp.MustCompile(`\bcase study\b|\bshowcase\b`)

	reHealth = regexp.MustCompile(`\bsafe\b|\btreatment\b|\bsymptom\b|\bdiagnosis\b`)

	reFAQ      = regexp.MustCompile(`\bfaq\b|\bquestions\b|\banswered\b`)
	reChecklist = regexp.MustCompile(`\bchecklist\b`)

	reReviewWord  = regexp.MustCompile(`\breview\b`)
	reReviewBest  = regexp.MustCompile(`\bbest\s`)
	reReviewExcl  = regexp.MustCompile(`\bbest practice\b|\bbest way to\b`)
	reReviewTop   = regexp.MustCompile(`\btop\s\d`)
)

var contentTypeRules = []contentTypeRule{
	{
		contentType: models.ContentTypeComparison,
		keywords:    []string{"vs", "versus", "compared to"},
		match: func(lower string) bool {
			return reComparisonVS.MatchString(lower) ||
				reComparisonVers.MatchString(lower) ||
				strings.Contains(lower, "compared to")
		},
	},
	{
		contentType: models.ContentTypeCalculator,
		keywords:    []string{"calculator", "estimator", "compute", "tool"},
		match: func(lower string) bool {
			if reCalculator.MatchString(lower) {
				return true
			}
			return reTool.MatchString(lower) && !reToolExcl.MatchString(lower)
		},
	},
	{
		contentType: models.ContentTypeCostGuide,
		keywords:    []string{"cost", "price", "fee", "how much"},
		match: func(lower string) bool {
			return reCostGuide.MatchString(lower) || strings.Contains(lower, "how much")
		},
	},
	{
		contentType: models.ContentTypeWizard,
		keywords:    []string{"eligible", "eligibility", "qualify", "find out if", "do i qualify", "which", "should i"},
		match: func(lower string) bool {
			if reEligibility.MatchString(lower) {
				return true
			}
			if strings.Contains(lower, "find out if") || strings.Contains(lower, "do i qualify") {
				return true
			}
			if reWizardWhich.MatchString(lower) && strings.Contains(lower, "right for") {
				return true
			}
			if reWizardShould.MatchString(lower) && (strings.Contains(lower, " or ") || strings.Contains(lower, "choose")) {
				return true
			}
			return false
		},
	},
	{
		contentType: models.ContentTypeLeadCapture,
		keywords:    []string{"lawyer", "attorney", "get a quote", "claim", "case"},
		match: func(lower string) bool {
			if reLawyer.MatchString(lower) || strings.Contains(lower, "get a quote") {
				return true
			}
			if reClaim.MatchString(lower) && !reClaimExcl.MatchString(lower) {
				return true
			}
			if reCase.MatchString(lower) && !reCaseExcl.MatchString(lower) {
				return true
			}
			return false
		},
	},
	{
		contentType: models.ContentTypeHealthDecision,
		keywords:    []string{"safe", "side effects", "treatment", "symptom", "diagnosis"},
		match: func(lower string) bool {
			return reHealth.MatchString(lower) || strings.Contains(lower, "side effects")
		},
	},
	{
		contentType: models.ContentTypeFAQ,
		keywords:    []string{"faq", "questions", "q&a", "answered"},
		match: func(lower string) bool {
			return reFAQ.MatchString(lower) || strings.Contains(lower, "q&a")
		},
	},
	{
		contentType: models.ContentTypeChecklist,
		keywords:    []string{"checklist", "step by step", "steps to"},
		match: func(lower string) bool {
			return reChecklist.MatchString(lower) ||
				strings.Contains(lower, "step by step") ||
				strings.Contains(lower, "steps to")
		},
	},
	{
		contentType: models.ContentTypeReview,
		keywords:    []string{"review", "best", "top"},
		match: func(lower string) bool {
			if reReviewWord.MatchString(lower) {
				return true
			}
			if reReviewBest.MatchString(lower) && !reReviewExcl.MatchString(lower) {
				return true
			}
			return reReviewTop.MatchString(lower)
		},
	},
}

// typeMatcher is the Aho-Corasick pre-filter over every rule's keyword set,
// built once at package init. Cheap substring scans eliminate the regex
// check for the (common) case where none of a rule's trigger words appear
// at all.
var typeMatcher *ahocorasick.Matcher
var ruleKeywordOffsets []int // index into contentTypeRules for each pattern slot

func init() {
	var dict []string
	for ruleIdx, rule := range contentTypeRules {
		for range rule.keywords {
			ruleKeywordOffsets = append(ruleKeywordOffsets, ruleIdx)
		}
		dict = append(dict, rule.keywords...)
	}
	typeMatcher = ahocorasick.NewStringMatcher(dict)
}

// DetectContentType classifies a target keyword into one of the content
// types named in §4.4, using word-boundary regex rules in priority order.
// The Aho-Corasick matcher runs once per call as a substring pre-filter:
// a rule's regex only runs if one of its keywords was seen in the keyword
// text at all.
func DetectContentType(keyword string) string {
	lower := strings.ToLower(keyword)

	hitRules := make(map[int]bool)
	for _, idx := range typeMatcher.Match([]byte(lower)) {
		hitRules[ruleKeywordOffsets[idx]] = true
	}

	for i, rule := range contentTypeRules {
		if !hitRules[i] {
			continue
		}
		if rule.match(lower) {
			return rule.contentType
		}
	}
	return models.ContentTypeArticle
}

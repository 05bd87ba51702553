// Package content implements the pipeline stage handlers (C5):
// keyword_research, research, generate_outline, generate_draft, humanize,
// seo_optimize, generate_meta.
package content

import (
	"regexp"
	"strings"
)

var (
	slugNonAlnum  = regexp.MustCompile(`[^a-z0-9]+`)
	slugTrimDash  = regexp.MustCompile(`^-+|-+$`)
	emDashPattern = regexp.MustCompile(`[—–]`)
)

// Slugify lowercases s, collapses runs of non-alphanumeric characters to a
// single hyphen, and trims leading/trailing hyphens. It is idempotent
// (Slugify(Slugify(x)) == Slugify(x)) and never returns empty: a string that
// slugifies to nothing falls back to "untitled".
func Slugify(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	slug := slugNonAlnum.ReplaceAllString(lower, "-")
	slug = slugTrimDash.ReplaceAllString(slug, "")
	if slug == "" {
		return "untitled"
	}
	return slug
}

// StripEmDashes removes em/en dashes from generated prose, replacing each
// with a plain hyphen so sentence structure survives the strip.
func StripEmDashes(s string) string {
	return emDashPattern.ReplaceAllString(s, "-")
}

// WordCount counts whitespace-delimited words in s.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

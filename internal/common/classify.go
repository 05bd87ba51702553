package common

import (
	"strings"

	"github.com/go-faster/errors"

	"github.com/domainpress/pipeline/internal/interfaces"
)

// classifiedError wraps a go-faster/errors cause chain with a structured
// failure category, so a handler can return a typed error and skip the
// string-matching path entirely.
type classifiedError struct {
	category interfaces.FailureCategory
	action   string
	cause    error
}

func (e *classifiedError) Error() string {
	return e.cause.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

// Kind returns the failure category carried by a classified error.
func (e *classifiedError) Kind() interfaces.FailureCategory {
	return e.category
}

// Classify wraps err with an explicit failure category. Handlers that know
// exactly why a call failed (a typed provider error, a validator error)
// should use this instead of returning a bare error for the executor to
// string-match.
func Classify(category interfaces.FailureCategory, action string, err error) error {
	return &classifiedError{category: category, action: action, cause: errors.Wrap(err, string(category))}
}

// transientPatterns match error text that indicates a retryable failure.
var transientPatterns = []string{
	"rate limit", "rate_limit", "429",
	"timeout", "timed out", "deadline exceeded",
	"connection reset", "connection refused", "econnreset",
	"gateway", "502", "503", "504",
	"temporarily unavailable",
}

// nonTransientPatterns match error text that indicates a non-retryable
// failure even when a transient pattern also happens to match.
var nonTransientPatterns = []string{
	"invalid payload", "invalid_payload",
	"not found", "missing",
	"validation",
}

// ClassifyError derives a Classification from err: a *classifiedError's
// explicit Kind() wins; otherwise falls back to string matching on the
// error text, the last-resort path for errors surfaced by opaque
// collaborators.
func ClassifyError(err error) *interfaces.Classification {
	if err == nil {
		return nil
	}

	var ce *classifiedError
	if errors.As(err, &ce) {
		return &interfaces.Classification{
			Category:        ce.category,
			Confidence:      1.0,
			Retryable:       interfaces.IsRetryable(ce.category),
			HumanReadable:   err.Error(),
			SuggestedAction: ce.action,
		}
	}

	msg := strings.ToLower(err.Error())

	nonTransient := matchesAny(msg, nonTransientPatterns)
	transient := matchesAny(msg, transientPatterns)

	if nonTransient {
		return &interfaces.Classification{
			Category:      interfaces.CategoryValidation,
			Confidence:    0.6,
			Retryable:     false,
			HumanReadable: err.Error(),
		}
	}
	if transient {
		return &interfaces.Classification{
			Category:      categoryForTransient(msg),
			Confidence:    0.6,
			Retryable:     true,
			HumanReadable: err.Error(),
		}
	}

	return &interfaces.Classification{
		Category:      interfaces.CategoryUnknown,
		Confidence:    0.3,
		Retryable:     false,
		HumanReadable: err.Error(),
	}
}

func categoryForTransient(msg string) interfaces.FailureCategory {
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit") || strings.Contains(msg, "429"):
		return interfaces.CategoryRateLimit
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline exceeded"):
		return interfaces.CategoryTimeout
	case strings.Contains(msg, "connection") || strings.Contains(msg, "econnreset"):
		return interfaces.CategoryTransientNetwork
	default:
		return interfaces.CategoryProviderError
	}
}

func matchesAny(msg string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientMessage reports whether an error message matches a transient
// retry pattern and does not match a non-transient pattern — the rule the
// auto-retry sweep uses to decide whether a failed row is eligible.
func IsTransientMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return matchesAny(lower, transientPatterns) && !matchesAny(lower, nonTransientPatterns)
}

// Backoff returns the exponential retry delay for the given attempt count:
// base 60s, doubled per attempt, capped at 30 min, no jitter.
func Backoff(attempts int) (seconds int) {
	const base = 60
	const capSeconds = 30 * 60
	if attempts < 1 {
		attempts = 1
	}
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= capSeconds {
			return capSeconds
		}
	}
	if d > capSeconds {
		d = capSeconds
	}
	return d
}

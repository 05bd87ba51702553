// Package policy implements a minimal interfaces.PolicyEvaluator: a
// denylist-based gate over destination host and copy text. A production
// policy engine (brand safety ML, legal review queues) is an external
// collaborator out of scope for this queue; this is the local default that
// lets the growth publish engine run without one configured.
package policy

import (
	"context"
	"net/url"
	"strings"

	"github.com/domainpress/pipeline/internal/interfaces"
)

// DenylistEvaluator blocks copy containing any of Banned (case-insensitive)
// or a destination host in Blocked.
type DenylistEvaluator struct {
	Banned  []string
	Blocked map[string]bool
}

// NewDenylistEvaluator builds a DenylistEvaluator from banned phrases and
// blocked hosts.
func NewDenylistEvaluator(banned, blockedHosts []string) *DenylistEvaluator {
	blocked := make(map[string]bool, len(blockedHosts))
	for _, h := range blockedHosts {
		blocked[strings.ToLower(h)] = true
	}
	return &DenylistEvaluator{Banned: banned, Blocked: blocked}
}

func (e *DenylistEvaluator) Evaluate(ctx context.Context, req interfaces.PolicyRequest) (*interfaces.PolicyResult, error) {
	host := req.DestinationURL
	if u, err := url.Parse(req.DestinationURL); err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.ToLower(host)

	result := &interfaces.PolicyResult{
		Allowed:        true,
		NormalizedCopy: strings.TrimSpace(req.Copy),
		DestinationHost: host,
		PolicyPackID:   "denylist-v1",
		ChecksApplied:  []string{"banned_phrases", "host_blocklist"},
	}

	lowerCopy := strings.ToLower(req.Copy)
	for _, phrase := range e.Banned {
		if phrase == "" {
			continue
		}
		if strings.Contains(lowerCopy, strings.ToLower(phrase)) {
			result.Allowed = false
			result.BlockReasons = append(result.BlockReasons, "banned_phrase:"+phrase)
		}
	}
	if e.Blocked[host] {
		result.Allowed = false
		result.BlockReasons = append(result.BlockReasons, "blocked_host:"+host)
		result.DestinationRiskScore = 1
	}

	return result, nil
}

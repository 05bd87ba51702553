// Package growth implements the growth channel publish engine (C6): the
// per-campaign state machine, schedule computation, the seven-step publish
// gate, and the channel job handlers themselves.
package growth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"time"

	"github.com/domainpress/pipeline/internal/common"
	"github.com/domainpress/pipeline/internal/models"
)

// ScheduleResult is computeSchedule's output: the next publish time and
// whether it had to be moved out of a quiet-hours window.
type ScheduleResult struct {
	ScheduledFor          time.Time
	MovedOutOfQuietHours  bool
}

// inQuietHours reports whether hour falls in [start, end) UTC, handling the
// wrap-around case (e.g. start=23, end=6 covers 23:00-05:59).
func inQuietHours(hour, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// computeSchedule draws a jitter within the profile's bounds (falling back
// to the growth config defaults when the profile leaves them at zero), and
// pushes the result out of any configured quiet-hours window.
func computeSchedule(profile *models.DomainChannelProfile, cfg *common.GrowthConfig, now time.Time) ScheduleResult {
	minJitter, maxJitter := cfg.GetJitterBounds()
	if profile != nil && (profile.MinJitterMinutes != 0 || profile.MaxJitterMinutes != 0) {
		minJitter, maxJitter = profile.MinJitterMinutes, profile.MaxJitterMinutes
		if maxJitter < minJitter {
			maxJitter = minJitter
		}
	}
	jitter := minJitter
	if maxJitter > minJitter {
		jitter += rand.Intn(maxJitter - minJitter + 1)
	}
	scheduled := now.Add(time.Duration(jitter) * time.Minute).UTC()

	quietStart, quietEnd := cfg.GetQuietHours()
	if profile != nil && (profile.QuietHoursStart != 0 || profile.QuietHoursEnd != 0) {
		quietStart, quietEnd = profile.QuietHoursStart, profile.QuietHoursEnd
	}

	if !inQuietHours(scheduled.Hour(), quietStart, quietEnd) {
		return ScheduleResult{ScheduledFor: scheduled}
	}

	minute := 5 + rand.Intn(31) // [5, 35]
	// Only the wraparound window's late-evening half needs to roll onto the
	// next calendar day; its early-morning half (and any non-wraparound
	// window, where start < end) already lands on the same day as quietEnd.
	day := scheduled
	if quietStart > quietEnd && scheduled.Hour() >= quietStart {
		day = scheduled.AddDate(0, 0, 1)
	}
	moved := time.Date(day.Year(), day.Month(), day.Day(), quietEnd, minute, 0, 0, time.UTC)
	return ScheduleResult{ScheduledFor: moved, MovedOutOfQuietHours: true}
}

// creativeHash derives the duplicate-suppression fingerprint for a publish:
// SHA-256 over "{campaignId}:{domain}:{channel}:{utcDay}", truncated to 24
// hex characters, unless the caller already supplied an explicit hash.
func creativeHash(explicit, campaignID, domain, channel string, at time.Time) string {
	if explicit != "" {
		return explicit
	}
	key := fmt.Sprintf("%s:%s:%s:%s", campaignID, domain, channel, at.UTC().Format("2006-01-02"))
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:24]
}

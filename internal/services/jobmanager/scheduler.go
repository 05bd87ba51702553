package jobmanager

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/domainpress/pipeline/internal/common"
	"github.com/domainpress/pipeline/internal/models"
)

// BucketCadenceProfile configures how often and at what hour the content
// scheduler seeds a new keyword_research pipeline for a domain that does not
// override its own schedule. Profiles are keyed by models.Bucket*.
type BucketCadenceProfile struct {
	FallbackFrequency string             // daily, weekly, sporadic
	TimeWindows       map[string]float64 // window name -> relative weight, used when timeOfDay is "random"
	GapMultiplier     float64            // stretches or compresses the base gap
	PhaseShiftHours   int                // rotates the chosen hour so buckets don't all fire at once
}

var bucketCadenceProfiles = map[string]BucketCadenceProfile{
	models.BucketBuild: {
		FallbackFrequency: "weekly",
		TimeWindows:       map[string]float64{"morning": 0.6, "evening": 0.4},
		GapMultiplier:     1.0,
		PhaseShiftHours:   0,
	},
	models.BucketRedirect: {
		FallbackFrequency: "sporadic",
		TimeWindows:       map[string]float64{"morning": 0.3, "evening": 0.3, "random": 0.4},
		GapMultiplier:     1.5,
		PhaseShiftHours:   2,
	},
	models.BucketPark: {
		FallbackFrequency: "sporadic",
		TimeWindows:       map[string]float64{"random": 1.0},
		GapMultiplier:     2.5,
		PhaseShiftHours:   4,
	},
	models.BucketDefensive: {
		FallbackFrequency: "weekly",
		TimeWindows:       map[string]float64{"evening": 1.0},
		GapMultiplier:     1.2,
		PhaseShiftHours:   6,
	},
}

func cadenceProfile(bucket string) BucketCadenceProfile {
	if p, ok := bucketCadenceProfiles[bucket]; ok {
		return p
	}
	return bucketCadenceProfiles[models.BucketBuild]
}

// seededStream derives a deterministic []0,1) float stream from seed. Reused
// sequentially for every random choice the scheduler makes for one domain on
// one day, so the same (domainId, domain, bucket, date) always produces the
// same schedule even if checkContentSchedule reruns before it fires.
func seededStream(seed string) func() float64 {
	sum := sha256.Sum256([]byte(seed))
	s := int64(binary.BigEndian.Uint64(sum[:8]))
	if s < 0 {
		s = -s
	}
	r := rand.New(rand.NewSource(s))
	return r.Float64
}

func computeGapDays(next func() float64, frequency string) float64 {
	switch frequency {
	case "daily":
		return 0.75 + next()*0.9
	case "weekly":
		return 5.5 + next()*3.5
	default: // sporadic
		return 1.5 + next()*4.5
	}
}

func pickHour(next func() float64, timeOfDay string, profile BucketCadenceProfile) int {
	var hour int
	switch timeOfDay {
	case "morning":
		hour = 6 + int(next()*5) // 6-10
	case "evening":
		hour = 17 + int(next()*6) // 17-22
	default:
		hour = weightedWindowHour(next, profile.TimeWindows)
	}
	hour = (hour + profile.PhaseShiftHours) % 24
	if hour < 0 {
		hour += 24
	}
	return hour
}

// weightedWindowHour picks a time window by weight, then an hour within it.
// Keys are walked in sorted order so the draw is reproducible regardless of
// Go's randomized map iteration.
func weightedWindowHour(next func() float64, windows map[string]float64) int {
	if len(windows) == 0 {
		return int(next() * 24)
	}
	keys := make([]string, 0, len(windows))
	total := 0.0
	for k, w := range windows {
		keys = append(keys, k)
		total += w
	}
	sort.Strings(keys)

	r := next() * total
	cum := 0.0
	chosen := keys[len(keys)-1]
	for _, k := range keys {
		cum += windows[k]
		if r <= cum {
			chosen = k
			break
		}
	}
	switch chosen {
	case "morning":
		return 6 + int(next()*5)
	case "evening":
		return 17 + int(next()*6)
	default:
		return int(next() * 24)
	}
}

// scheduleForDomain computes the next keyword_research firing time for one
// domain, per §4.7: gapDays applied to baseDate, hour/minute/second drawn
// from the same seeded stream, then pushed 5-45 minutes forward if the
// result would otherwise land within 60s of now.
func scheduleForDomain(d *models.Domain, baseDate, now time.Time) time.Time {
	profile := cadenceProfile(d.Bucket)

	frequency := d.ContentConfig.Schedule.Frequency
	if frequency == "" {
		frequency = profile.FallbackFrequency
	}
	timeOfDay := d.ContentConfig.Schedule.TimeOfDay

	seed := fmt.Sprintf("%s:%s:%s:%s", d.ID, d.Domain, d.Bucket, now.UTC().Format("2006-01-02"))
	next := seededStream(seed)

	gapDays := computeGapDays(next, frequency) * profile.GapMultiplier
	hour := pickHour(next, timeOfDay, profile)
	minute := int(next() * 60)
	second := int(next() * 60)

	target := baseDate.Add(time.Duration(gapDays * float64(24*time.Hour)))
	scheduled := time.Date(target.Year(), target.Month(), target.Day(), hour, minute, second, 0, time.UTC)

	if scheduled.Sub(now) <= 60*time.Second {
		extraMinutes := 5 + next()*40
		scheduled = scheduled.Add(time.Duration(extraMinutes * float64(time.Minute)))
	}
	return scheduled
}

// CheckContentSchedule is the C8 operation: for every active, non-deleted
// domain with no in-flight or recently-completed job, compute and enqueue
// its next keyword_research job. Returns the number of jobs enqueued.
func (m *Manager) CheckContentSchedule(ctx context.Context) (int, error) {
	domains, err := m.storage.DomainStore().ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active domains: %w", err)
	}

	busy, err := m.storage.JobQueueStore().BusyDomains(ctx, common.FreshnessSchedulerBusy)
	if err != nil {
		return 0, fmt.Errorf("busy domains: %w", err)
	}

	lastArticleAt, err := m.storage.ArticleStore().LatestCreatedAtByDomain(ctx)
	if err != nil {
		return 0, fmt.Errorf("latest article by domain: %w", err)
	}

	now := time.Now()
	enqueued := 0
	for _, d := range domains {
		if busy[d.ID] {
			continue
		}

		baseDate := now
		if last, ok := lastArticleAt[d.ID]; ok && now.Sub(last) <= common.FreshnessArticleBurst {
			baseDate = last
		}

		scheduledFor := scheduleForDomain(d, baseDate, now)
		job := &models.Job{
			JobType:      models.JobKeywordResearch,
			DomainID:     d.ID,
			Channel:      "maintain",
			Priority:     models.PriorityNormal,
			ScheduledFor: &scheduledFor,
		}
		if err := m.Enqueue(ctx, job); err != nil {
			m.logger.Warn().Err(err).Str("domain_id", d.ID).Msg("failed to enqueue scheduled content job")
			continue
		}
		enqueued++
	}
	return enqueued, nil
}

// ContentScheduler drives CheckContentSchedule on a cron trigger (default
// every 15 minutes).
type ContentScheduler struct {
	manager *Manager
	logger  *common.Logger
	c       *cron.Cron
}

// NewContentScheduler builds a ContentScheduler bound to manager.
func NewContentScheduler(manager *Manager, logger *common.Logger) *ContentScheduler {
	return &ContentScheduler{manager: manager, logger: logger}
}

// Start registers the cron trigger and starts it. An empty spec defaults to
// every 15 minutes.
func (cs *ContentScheduler) Start(spec string) error {
	if spec == "" {
		spec = "*/15 * * * *"
	}
	cs.c = cron.New()
	_, err := cs.c.AddFunc(spec, func() {
		n, err := cs.manager.CheckContentSchedule(context.Background())
		if err != nil {
			cs.logger.Error().Err(err).Msg("content schedule check failed")
			return
		}
		if n > 0 {
			cs.logger.Info().Int("enqueued", n).Msg("content scheduler seeded pipelines")
		}
	})
	if err != nil {
		return fmt.Errorf("register content schedule cron: %w", err)
	}
	cs.c.Start()
	return nil
}

// Stop halts the cron trigger, waiting for any in-flight run to finish.
func (cs *ContentScheduler) Stop() {
	if cs.c == nil {
		return
	}
	<-cs.c.Stop().Done()
}

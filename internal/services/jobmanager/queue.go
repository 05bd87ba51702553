package jobmanager

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/domainpress/pipeline/internal/interfaces"
	"github.com/domainpress/pipeline/internal/models"
)

// Enqueue inserts job, filling in priority/maxAttempts defaults when unset.
func (m *Manager) Enqueue(ctx context.Context, job *models.Job) error {
	if job.Priority == 0 {
		job.Priority = models.PriorityNormal
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = models.DefaultMaxAttempts
	}
	return m.storage.JobQueueStore().Enqueue(ctx, job)
}

// EnqueueIfNeeded inserts job unless an in-flight (pending/processing) job of
// the same jobType already exists matching (matchKey, matchValue) — the
// idempotent-enqueue rule shared by the growth and underwriting chains
// (§4.5, §4.6). Returns whether the job was actually inserted.
func (m *Manager) EnqueueIfNeeded(ctx context.Context, job *models.Job, matchKey, matchValue string) (bool, error) {
	inFlight, err := m.storage.JobQueueStore().HasInFlightJob(ctx, job.JobType, matchKey, matchValue)
	if err != nil {
		return false, fmt.Errorf("check in-flight job: %w", err)
	}
	if inFlight {
		return false, nil
	}
	if err := m.Enqueue(ctx, job); err != nil {
		return false, err
	}
	return true, nil
}

// PushToTop raises a pending job's priority above the default so it is
// claimed on the next acquisition round ahead of its peers.
func (m *Manager) PushToTop(ctx context.Context, jobID string) error {
	return m.storage.JobQueueStore().SetPriority(ctx, jobID, models.PriorityCritical)
}

// CancelJob flips a pending job to cancelled; no-op on one that is no longer
// pending.
func (m *Manager) CancelJob(ctx context.Context, jobID string) error {
	return m.storage.JobQueueStore().Cancel(ctx, jobID)
}

// PurgeOldJobs removes terminal jobs (completed/cancelled) older than days.
func (m *Manager) PurgeOldJobs(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		days = 30
	}
	return m.storage.JobQueueStore().PurgeCompleted(ctx, time.Now().Add(-time.Duration(days)*24*time.Hour))
}

// RetryFailedJobs resets up to limit failed jobs back to pending. mode is
// "all" (administrative: attempts reset) or "transient" (auto-retry sweep).
func (m *Manager) RetryFailedJobs(ctx context.Context, limit int, mode string, minFailedAge time.Duration) (int, error) {
	if minFailedAge < 0 {
		minFailedAge = 0
	}
	if minFailedAge > 24*time.Hour {
		minFailedAge = 24 * time.Hour
	}
	return m.storage.JobQueueStore().RetryFailed(ctx, limit, mode, minFailedAge)
}

// RetryTransientFailedJobs is the auto-retry sweep's entry point: failed rows
// at least 2 minutes old matching a transient error pattern.
func (m *Manager) RetryTransientFailedJobs(ctx context.Context, limit int) (int, error) {
	return m.RetryFailedJobs(ctx, limit, "transient", 2*time.Minute)
}

// Stats returns the full queue aggregate view backing the admin surface's
// getQueueStats/getQueueHealth operations.
func (m *Manager) Stats(ctx context.Context) (interfaces.QueueStats, error) {
	return m.storage.JobQueueStore().Stats(ctx)
}

// WorkerHealth is the snapshot returned by getWorkerHealth().
type WorkerHealth struct {
	Started       bool      `json:"started"`
	ShuttingDown  bool      `json:"shuttingDown"`
	ActiveJobs    int64     `json:"activeJobs"`
	CrashCount    int       `json:"crashCount"`
	StartedAt     time.Time `json:"startedAt"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
}

// GetWorkerHealth reports the supervisor's current state.
func (m *Manager) GetWorkerHealth() WorkerHealth {
	var hb time.Time
	if ts := m.lastHeartbeat.Load(); ts != 0 {
		hb = time.Unix(0, ts)
	}
	return WorkerHealth{
		Started:       m.cancel != nil,
		ShuttingDown:  m.shuttingDown.Load(),
		ActiveJobs:    atomic.LoadInt64(&m.active),
		CrashCount:    m.crashCount,
		StartedAt:     m.startedAt,
		LastHeartbeat: hb,
	}
}

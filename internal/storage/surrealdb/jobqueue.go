package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/domainpress/pipeline/internal/common"
	"github.com/domainpress/pipeline/internal/interfaces"
	"github.com/domainpress/pipeline/internal/models"
)

// jobSelectFields lists the fields to select from queue, aliasing job_id to
// id for struct mapping.
const jobSelectFields = `job_id as id, jobType, status, priority, payload, result, attempts,
	maxAttempts, scheduledFor, lockedUntil, startedAt, completedAt, createdAt,
	errorMessage, articleId, domainId, channel`

// JobQueueStore implements interfaces.JobQueueStore using SurrealDB.
type JobQueueStore struct {
	db     *surrealdb.DB
	logger *common.Logger
	lease  time.Duration
}

// NewJobQueueStore creates a new JobQueueStore. lease is the lock-lease
// duration Acquire grants a claimed job (default 10 min if zero).
func NewJobQueueStore(db *surrealdb.DB, logger *common.Logger, lease time.Duration) *JobQueueStore {
	if lease <= 0 {
		lease = 10 * time.Minute
	}
	return &JobQueueStore{db: db, logger: logger, lease: lease}
}

func jobRecordID(id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("queue", id)
}

func (s *JobQueueStore) Enqueue(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = models.StatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = models.DefaultMaxAttempts
	}

	sql := `UPSERT $rid SET
		job_id = $job_id, jobType = $jobType, status = $status, priority = $priority,
		payload = $payload, result = $result, attempts = $attempts, maxAttempts = $maxAttempts,
		scheduledFor = $scheduledFor, lockedUntil = NONE,
		startedAt = NONE, completedAt = NONE, createdAt = $createdAt,
		errorMessage = $errorMessage, articleId = $articleId, domainId = $domainId, channel = $channel`
	vars := map[string]any{
		"rid":           jobRecordID(job.ID),
		"job_id":        job.ID,
		"jobType":      job.JobType,
		"status":        job.Status,
		"priority":      job.Priority,
		"payload":       job.Payload,
		"result":        job.Result,
		"attempts":      job.Attempts,
		"maxAttempts":  job.MaxAttempts,
		"scheduledFor": job.ScheduledFor,
		"createdAt":    job.CreatedAt,
		"errorMessage": job.ErrorMessage,
		"articleId":    job.ArticleID,
		"domainId":     job.DomainID,
		"channel":       job.Channel,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Acquire atomically claims up to limit ready jobs ordered priority DESC,
// createdAt ASC, optionally restricted to allowedTypes. It follows the
// teacher's select-candidates-then-conditional-update shape, generalized
// from a single row to a batch: select ids that still look ready, then
// individually flip each to processing with a WHERE guard so a concurrent
// acquirer never wins the same row twice.
func (s *JobQueueStore) Acquire(ctx context.Context, limit int, allowedTypes []string) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 5
	}
	now := time.Now()

	selectSQL := "SELECT " + jobSelectFields + ` FROM queue
		WHERE status = $pending
		AND (scheduledFor = NONE OR scheduledFor <= $now)
		AND (lockedUntil = NONE OR lockedUntil <= $now)`
	vars := map[string]any{"pending": models.StatusPending, "now": now}
	if len(allowedTypes) > 0 {
		selectSQL += " AND jobType IN $types"
		vars["types"] = allowedTypes
	}
	selectSQL += " ORDER BY priority DESC, createdAt ASC LIMIT $limit"
	vars["limit"] = limit * 2 // over-fetch: some candidates may lose the race to claim

	candidates, err := s.queryJobs(ctx, selectSQL, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to select acquire candidates: %w", err)
	}

	return s.claimCandidates(ctx, candidates, limit, now)
}

// AcquireByIds is Acquire restricted to a caller-supplied candidate id set;
// an empty set falls back to plain Acquire. The worker loop itself always
// calls Acquire.
func (s *JobQueueStore) AcquireByIds(ctx context.Context, ids []string, limit int, allowedTypes []string) ([]*models.Job, error) {
	if len(ids) == 0 {
		return s.Acquire(ctx, limit, allowedTypes)
	}
	if limit <= 0 {
		limit = 5
	}
	now := time.Now()

	rids := make([]surrealmodels.RecordID, len(ids))
	for i, id := range ids {
		rids[i] = jobRecordID(id)
	}

	selectSQL := "SELECT " + jobSelectFields + ` FROM queue
		WHERE id IN $ids
		AND status = $pending
		AND (scheduledFor = NONE OR scheduledFor <= $now)
		AND (lockedUntil = NONE OR lockedUntil <= $now)`
	vars := map[string]any{"ids": rids, "pending": models.StatusPending, "now": now}
	if len(allowedTypes) > 0 {
		selectSQL += " AND jobType IN $types"
		vars["types"] = allowedTypes
	}
	selectSQL += " ORDER BY priority DESC, createdAt ASC"

	candidates, err := s.queryJobs(ctx, selectSQL, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to select acquireByIds candidates: %w", err)
	}

	return s.claimCandidates(ctx, candidates, limit, now)
}

// claimCandidates flips each candidate to processing with a conditional
// WHERE guard, stopping once limit rows are claimed. A candidate that loses
// the race (already claimed by another acquirer) is silently skipped.
func (s *JobQueueStore) claimCandidates(ctx context.Context, candidates []*models.Job, limit int, now time.Time) ([]*models.Job, error) {
	claimed := make([]*models.Job, 0, limit)
	lockedUntil := now.Add(s.lease)

	for _, cand := range candidates {
		if len(claimed) >= limit {
			break
		}

		updateSQL := `UPDATE $rid SET status = $processing, lockedUntil = $lockedUntil,
			startedAt = $now WHERE status = $pending`
		updateVars := map[string]any{
			"rid":          jobRecordID(cand.ID),
			"processing":   models.StatusProcessing,
			"lockedUntil": lockedUntil,
			"now":          now,
			"pending":      models.StatusPending,
		}

		res, err := surrealdb.Query[[]models.Job](ctx, s.db, updateSQL, updateVars)
		if err != nil {
			return claimed, fmt.Errorf("failed to claim job %s: %w", cand.ID, err)
		}
		if res == nil || len(*res) == 0 || len((*res)[0].Result) == 0 {
			continue // lost the race to another acquirer
		}

		cand.Status = models.StatusProcessing
		cand.LockedUntil = &lockedUntil
		cand.StartedAt = &now
		claimed = append(claimed, cand)
	}

	return claimed, nil
}

// Recover resets every processing job whose lease has expired back to
// pending, replacing its errorMessage with an auto-recovered note, and
// returns the count.
func (s *JobQueueStore) Recover(ctx context.Context) (int, error) {
	now := time.Now()

	selectSQL := "SELECT " + jobSelectFields + ` FROM queue WHERE status = $processing AND lockedUntil <= $now`
	stale, err := s.queryJobs(ctx, selectSQL, map[string]any{"processing": models.StatusProcessing, "now": now})
	if err != nil {
		return 0, fmt.Errorf("failed to select stale jobs: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	updateSQL := `UPDATE queue SET status = $pending, lockedUntil = NONE,
		errorMessage = "auto-recovered: lock expired while processing"
		WHERE status = $processing AND lockedUntil <= $now`
	if _, err := surrealdb.Query[any](ctx, s.db, updateSQL, map[string]any{
		"pending": models.StatusPending, "processing": models.StatusProcessing, "now": now,
	}); err != nil {
		return 0, fmt.Errorf("failed to recover stale jobs: %w", err)
	}

	return len(stale), nil
}

func (s *JobQueueStore) Complete(ctx context.Context, id string, result map[string]any, durationMS int64) error {
	now := time.Now()
	sql := `UPDATE $rid SET status = $status, completedAt = $now, lockedUntil = NONE, result = $result`
	vars := map[string]any{
		"rid":    jobRecordID(id),
		"status": models.StatusCompleted,
		"now":    now,
		"result": result,
	}
	if _, err := surrealdb.Query[[]models.Job](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// Fail applies one failure outcome: terminal (retry=false, sets
// status=failed) or rescheduled (retry=true, sets status=pending with the
// given scheduledFor and clears the lock).
func (s *JobQueueStore) Fail(ctx context.Context, id string, classification *interfaces.Classification, retry bool, scheduledFor *time.Time) error {
	now := time.Now()
	resultFailure := map[string]any{"failure": classification}

	if !retry {
		sql := `UPDATE $rid SET status = $status, completedAt = $now, lockedUntil = NONE,
			errorMessage = $msg, result = $result, attempts = attempts + 1`
		vars := map[string]any{
			"rid":    jobRecordID(id),
			"status": models.StatusFailed,
			"now":    now,
			"msg":    classification.HumanReadable,
			"result": resultFailure,
		}
		if _, err := surrealdb.Query[[]models.Job](ctx, s.db, sql, vars); err != nil {
			return fmt.Errorf("failed to fail job: %w", err)
		}
		return nil
	}

	sql := `UPDATE $rid SET status = $status, lockedUntil = NONE, scheduledFor = $scheduledFor,
		errorMessage = $msg, result = $result, attempts = attempts + 1`
	vars := map[string]any{
		"rid":           jobRecordID(id),
		"status":        models.StatusPending,
		"scheduledFor": scheduledFor,
		"msg":           classification.HumanReadable,
		"result":        resultFailure,
	}
	if _, err := surrealdb.Query[[]models.Job](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to reschedule job: %w", err)
	}
	return nil
}

func (s *JobQueueStore) Cancel(ctx context.Context, id string) error {
	sql := "UPDATE $rid SET status = $cancelled WHERE status = $pending"
	vars := map[string]any{
		"rid":       jobRecordID(id),
		"cancelled": models.StatusCancelled,
		"pending":   models.StatusPending,
	}
	if _, err := surrealdb.Query[[]models.Job](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	return nil
}

func (s *JobQueueStore) SetPriority(ctx context.Context, id string, priority int) error {
	sql := "UPDATE $rid SET priority = $priority"
	vars := map[string]any{"rid": jobRecordID(id), "priority": priority}
	if _, err := surrealdb.Query[[]models.Job](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to set priority: %w", err)
	}
	return nil
}

func (s *JobQueueStore) Get(ctx context.Context, id string) (*models.Job, error) {
	sql := "SELECT " + jobSelectFields + " FROM $rid"
	jobs, err := s.queryJobs(ctx, sql, map[string]any{"rid": jobRecordID(id)})
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return jobs[0], nil
}

func (s *JobQueueStore) ListPending(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	sql := "SELECT " + jobSelectFields + " FROM queue WHERE status = $pending ORDER BY priority DESC, createdAt ASC LIMIT $limit"
	vars := map[string]any{"pending": models.StatusPending, "limit": limit}
	return s.queryJobs(ctx, sql, vars)
}

func (s *JobQueueStore) ListAll(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	sql := "SELECT " + jobSelectFields + " FROM queue ORDER BY createdAt DESC LIMIT $limit"
	return s.queryJobs(ctx, sql, map[string]any{"limit": limit})
}

func (s *JobQueueStore) ListByArticle(ctx context.Context, articleID string) ([]*models.Job, error) {
	sql := "SELECT " + jobSelectFields + " FROM queue WHERE articleId = $articleId ORDER BY createdAt DESC"
	return s.queryJobs(ctx, sql, map[string]any{"articleId": articleID})
}

func (s *JobQueueStore) CountPending(ctx context.Context) (int, error) {
	sql := "SELECT count() AS cnt FROM queue WHERE status = $pending GROUP ALL"
	return s.queryCount(ctx, sql, map[string]any{"pending": models.StatusPending})
}

// HasInFlightJob reports whether a pending/processing job of jobType exists
// whose payload[matchKey] == matchValue — used by the idempotent-enqueue
// rule for growth and underwriting stage chains.
func (s *JobQueueStore) HasInFlightJob(ctx context.Context, jobType string, matchKey, matchValue string) (bool, error) {
	sql := `SELECT count() AS cnt FROM queue
		WHERE jobType = $type AND status IN [$pending, $processing] AND payload[$key] = $value
		GROUP ALL`
	vars := map[string]any{
		"type":       jobType,
		"pending":    models.StatusPending,
		"processing": models.StatusProcessing,
		"key":        matchKey,
		"value":      matchValue,
	}
	n, err := s.queryCount(ctx, sql, vars)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *JobQueueStore) PurgeCompleted(ctx context.Context, olderThan time.Time) (int, error) {
	countSQL := "SELECT count() AS cnt FROM queue WHERE status IN [$completed, $cancelled] AND completedAt <= $cutoff GROUP ALL"
	vars := map[string]any{
		"completed": models.StatusCompleted,
		"cancelled": models.StatusCancelled,
		"cutoff":    olderThan,
	}
	n, err := s.queryCount(ctx, countSQL, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to count purge candidates: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	deleteSQL := "DELETE FROM queue WHERE status IN [$completed, $cancelled] AND completedAt <= $cutoff"
	if _, err := surrealdb.Query[any](ctx, s.db, deleteSQL, vars); err != nil {
		return 0, fmt.Errorf("failed to purge completed jobs: %w", err)
	}
	return n, nil
}

// BusyDomains returns the set of domainIds with an in-flight job or a job
// completed within the last `within` window, in one aggregate query — the
// content scheduler's busy check must never scan per-domain in a loop.
func (s *JobQueueStore) BusyDomains(ctx context.Context, within time.Duration) (map[string]bool, error) {
	since := time.Now().Add(-within)
	sql := `SELECT domainId FROM queue
		WHERE domainId != NONE AND domainId != ""
		AND (status IN [$pending, $processing] OR (status = $completed AND completedAt >= $since))
		GROUP BY domainId`
	vars := map[string]any{
		"pending":    models.StatusPending,
		"processing": models.StatusProcessing,
		"completed":  models.StatusCompleted,
		"since":      since,
	}

	type row struct {
		DomainID string `json:"domainId"`
	}
	results, err := surrealdb.Query[[]row](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list busy domains: %w", err)
	}

	out := map[string]bool{}
	if results != nil && len(*results) > 0 {
		for _, r := range (*results)[0].Result {
			if r.DomainID != "" {
				out[r.DomainID] = true
			}
		}
	}
	return out, nil
}

// RetryFailed moves failed rows back to pending. mode="all" is the
// administrative retry: attempts reset to 0, no message filtering.
// mode="transient" is the auto-retry sweep described in the error-handling
// design: scans up to 8x limit candidates, keeping only rows whose message
// matches a transient pattern, preserving attempts, and honoring
// minFailedAge.
func (s *JobQueueStore) RetryFailed(ctx context.Context, limit int, mode string, minFailedAge time.Duration) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	if minFailedAge < 0 {
		minFailedAge = 0
	}
	if minFailedAge > 24*time.Hour {
		minFailedAge = 24 * time.Hour
	}

	scanLimit := limit
	if mode == "transient" {
		scanLimit = limit * 8
	}

	cutoff := time.Now().Add(-minFailedAge)
	sql := "SELECT " + jobSelectFields + " FROM queue WHERE status = $failed AND completedAt <= $cutoff ORDER BY completedAt ASC LIMIT $limit"
	candidates, err := s.queryJobs(ctx, sql, map[string]any{"failed": models.StatusFailed, "cutoff": cutoff, "limit": scanLimit})
	if err != nil {
		return 0, fmt.Errorf("failed to select retry candidates: %w", err)
	}

	retried := 0
	for _, job := range candidates {
		if retried >= limit {
			break
		}
		if mode == "transient" {
			if job.Attempts >= job.MaxAttempts {
				continue
			}
			if !common.IsTransientMessage(job.ErrorMessage) {
				continue
			}
			autoRetryCount := 1
			if job.Result != nil {
				if v, ok := job.Result["failure"].(map[string]any); ok {
					if c, ok := v["autoRetryTransientCount"].(float64); ok {
						autoRetryCount = int(c) + 1
					}
				}
			}
			delay := time.Duration(common.Backoff(autoRetryCount)) * time.Second
			scheduledFor := time.Now().Add(delay)
			result := job.Result
			if result == nil {
				result = map[string]any{}
			}
			result["failure"] = map[string]any{"autoRetryTransientCount": autoRetryCount}

			sql := `UPDATE $rid SET status = $pending, scheduledFor = $scheduledFor, result = $result WHERE status = $failed`
			if _, err := surrealdb.Query[any](ctx, s.db, sql, map[string]any{
				"rid": jobRecordID(job.ID), "pending": models.StatusPending,
				"scheduledFor": scheduledFor, "result": result, "failed": models.StatusFailed,
			}); err != nil {
				return retried, fmt.Errorf("failed to auto-retry job %s: %w", job.ID, err)
			}
		} else {
			sql := `UPDATE $rid SET status = $pending, attempts = 0, lockedUntil = NONE, scheduledFor = NONE WHERE status = $failed`
			if _, err := surrealdb.Query[any](ctx, s.db, sql, map[string]any{
				"rid": jobRecordID(job.ID), "pending": models.StatusPending, "failed": models.StatusFailed,
			}); err != nil {
				return retried, fmt.Errorf("failed to retry job %s: %w", job.ID, err)
			}
		}
		retried++
	}

	return retried, nil
}

// Stats computes the aggregate view backing getQueueStats/getQueueHealth.
// Readers must never scan the events/queue table row by row in production
// paths — every count here is a single aggregate query.
func (s *JobQueueStore) Stats(ctx context.Context) (interfaces.QueueStats, error) {
	var stats interfaces.QueueStats

	counts, err := s.statusCounts(ctx)
	if err != nil {
		return stats, err
	}
	stats.Pending = counts[models.StatusPending]
	stats.Processing = counts[models.StatusProcessing]
	stats.Completed = counts[models.StatusCompleted]
	stats.Failed = counts[models.StatusFailed]
	stats.Cancelled = counts[models.StatusCancelled]

	oldestPending, err := s.oldestTimestamp(ctx, "createdAt", map[string]any{"status": models.StatusPending}, "status = $status")
	if err == nil && oldestPending != nil {
		stats.OldestPendingAge = time.Since(*oldestPending)
	}

	latestStarted, _ := s.latestTimestamp(ctx, "startedAt", nil, "startedAt != NONE")
	stats.LatestStartedAt = latestStarted
	latestCompleted, _ := s.latestTimestamp(ctx, "completedAt", nil, "completedAt != NONE")
	stats.LatestCompletedAt = latestCompleted
	latestQueued, _ := s.latestTimestamp(ctx, "createdAt", nil, "")
	stats.LatestQueuedAt = latestQueued

	since := time.Now().Add(-24 * time.Hour)
	total24h, failed24h, avgMS, err := s.last24hAggregate(ctx, since)
	if err == nil {
		stats.ThroughputPerHour = float64(total24h) / 24.0
		stats.AvgProcessingTimeMS = avgMS
		if total24h > 0 {
			stats.ErrorRate24h = float64(failed24h) / float64(total24h)
		}
	}

	return stats, nil
}

func (s *JobQueueStore) statusCounts(ctx context.Context) (map[string]int, error) {
	sql := "SELECT status, count() AS cnt FROM queue GROUP BY status"
	type row struct {
		Status string `json:"status"`
		Cnt    int    `json:"cnt"`
	}
	results, err := surrealdb.Query[[]row](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}
	out := map[string]int{}
	if results != nil && len(*results) > 0 {
		for _, r := range (*results)[0].Result {
			out[r.Status] = r.Cnt
		}
	}
	return out, nil
}

func (s *JobQueueStore) oldestTimestamp(ctx context.Context, field string, vars map[string]any, where string) (*time.Time, error) {
	sql := fmt.Sprintf("SELECT math::min(%s) AS ts FROM queue", field)
	if where != "" {
		sql += " WHERE " + where
	}
	sql += " GROUP ALL"
	return s.singleTimestamp(ctx, sql, vars)
}

func (s *JobQueueStore) latestTimestamp(ctx context.Context, field string, vars map[string]any, where string) (*time.Time, error) {
	sql := fmt.Sprintf("SELECT math::max(%s) AS ts FROM queue", field)
	if where != "" {
		sql += " WHERE " + where
	}
	sql += " GROUP ALL"
	return s.singleTimestamp(ctx, sql, vars)
}

func (s *JobQueueStore) singleTimestamp(ctx context.Context, sql string, vars map[string]any) (*time.Time, error) {
	type row struct {
		TS *time.Time `json:"ts"`
	}
	results, err := surrealdb.Query[[]row](ctx, s.db, sql, vars)
	if err != nil {
		return nil, err
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return (*results)[0].Result[0].TS, nil
	}
	return nil, nil
}

func (s *JobQueueStore) last24hAggregate(ctx context.Context, since time.Time) (total, failed int, avgMS int64, err error) {
	sql := `SELECT count() AS cnt, status FROM queue WHERE completedAt >= $since GROUP BY status`
	type row struct {
		Status string `json:"status"`
		Cnt    int    `json:"cnt"`
	}
	results, qerr := surrealdb.Query[[]row](ctx, s.db, sql, map[string]any{"since": since})
	if qerr != nil {
		return 0, 0, 0, fmt.Errorf("failed to aggregate last 24h: %w", qerr)
	}
	if results != nil && len(*results) > 0 {
		for _, r := range (*results)[0].Result {
			total += r.Cnt
			if r.Status == models.StatusFailed {
				failed = r.Cnt
			}
		}
	}
	return total, failed, 0, nil
}

func (s *JobQueueStore) queryCount(ctx context.Context, sql string, vars map[string]any) (int, error) {
	type countResult struct {
		Cnt int `json:"cnt"`
	}
	results, err := surrealdb.Query[[]countResult](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return (*results)[0].Result[0].Cnt, nil
	}
	return 0, nil
}

// queryJobs is a helper that runs a query and returns a slice of Job pointers.
func (s *JobQueueStore) queryJobs(ctx context.Context, sql string, vars map[string]any) ([]*models.Job, error) {
	results, err := surrealdb.Query[[]models.Job](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}

	var jobs []*models.Job
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			jobs = append(jobs, &(*results)[0].Result[i])
		}
	}
	return jobs, nil
}

// Compile-time check
var _ interfaces.JobQueueStore = (*JobQueueStore)(nil)

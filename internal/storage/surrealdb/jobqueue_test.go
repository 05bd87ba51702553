package surrealdb

import (
	"context"
	"testing"
	"time"

	"github.com/domainpress/pipeline/internal/interfaces"
	"github.com/domainpress/pipeline/internal/models"
)

func TestJobQueueStore_EnqueueAndAcquire(t *testing.T) {
	db := testDB(t)
	store := NewJobQueueStore(db, testLogger(), time.Minute)
	ctx := context.Background()

	job := &models.Job{
		JobType:     models.JobKeywordResearch,
		ArticleID:   "a1",
		Priority:    10,
		MaxAttempts: 3,
	}

	if err := store.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if job.ID == "" {
		t.Error("expected job ID to be set after enqueue")
	}
	if job.Status != models.StatusPending {
		t.Errorf("expected status pending, got %s", job.Status)
	}

	claimed, err := store.Acquire(ctx, 5, nil)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected 1 claimed job, got %d", len(claimed))
	}
	if claimed[0].Status != models.StatusProcessing {
		t.Errorf("expected status processing after acquire, got %s", claimed[0].Status)
	}
	if claimed[0].ArticleID != "a1" {
		t.Errorf("expected articleId a1, got %s", claimed[0].ArticleID)
	}
	if claimed[0].Attempts != 0 {
		t.Errorf("expected attempts 0 after first acquire (only failures increment), got %d", claimed[0].Attempts)
	}
}

func TestJobQueueStore_Acquire_PriorityOrdering(t *testing.T) {
	db := testDB(t)
	store := NewJobQueueStore(db, testLogger(), time.Minute)
	ctx := context.Background()

	store.Enqueue(ctx, &models.Job{JobType: models.JobResearch, ArticleID: "low", Priority: 2, MaxAttempts: 3})
	store.Enqueue(ctx, &models.Job{JobType: models.JobKeywordResearch, ArticleID: "high", Priority: 10, MaxAttempts: 3})

	claimed, err := store.Acquire(ctx, 1, nil)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ArticleID != "high" {
		t.Fatalf("expected high priority job first, got %+v", claimed)
	}

	claimed2, _ := store.Acquire(ctx, 1, nil)
	if len(claimed2) != 1 || claimed2[0].ArticleID != "low" {
		t.Fatalf("expected low priority job second, got %+v", claimed2)
	}
}

func TestJobQueueStore_Acquire_EmptyQueue(t *testing.T) {
	db := testDB(t)
	store := NewJobQueueStore(db, testLogger(), time.Minute)
	ctx := context.Background()

	claimed, err := store.Acquire(ctx, 5, nil)
	if err != nil {
		t.Fatalf("Acquire on empty queue failed: %v", err)
	}
	if len(claimed) != 0 {
		t.Errorf("expected no jobs from empty queue, got %d", len(claimed))
	}
}

func TestJobQueueStore_Acquire_RespectsScheduledFor(t *testing.T) {
	db := testDB(t)
	store := NewJobQueueStore(db, testLogger(), time.Minute)
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	store.Enqueue(ctx, &models.Job{JobType: models.JobResearch, ArticleID: "future", Priority: 10, MaxAttempts: 3, ScheduledFor: &future})

	claimed, err := store.Acquire(ctx, 5, nil)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if len(claimed) != 0 {
		t.Errorf("expected scheduled-for-future job to be skipped, got %d", len(claimed))
	}
}

func TestJobQueueStore_AcquireByIds_Filters(t *testing.T) {
	db := testDB(t)
	store := NewJobQueueStore(db, testLogger(), time.Minute)
	ctx := context.Background()

	a := &models.Job{JobType: models.JobResearch, ArticleID: "a", Priority: 5, MaxAttempts: 3}
	b := &models.Job{JobType: models.JobResearch, ArticleID: "b", Priority: 5, MaxAttempts: 3}
	store.Enqueue(ctx, a)
	store.Enqueue(ctx, b)

	claimed, err := store.AcquireByIds(ctx, []string{a.ID}, 5, nil)
	if err != nil {
		t.Fatalf("AcquireByIds failed: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != a.ID {
		t.Fatalf("expected only job a claimed, got %+v", claimed)
	}
}

func TestJobQueueStore_Recover(t *testing.T) {
	db := testDB(t)
	store := NewJobQueueStore(db, testLogger(), 10*time.Millisecond)
	ctx := context.Background()

	job := &models.Job{JobType: models.JobResearch, ArticleID: "a1", Priority: 5, MaxAttempts: 3}
	store.Enqueue(ctx, job)
	if _, err := store.Acquire(ctx, 1, nil); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	recovered, err := store.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if recovered != 1 {
		t.Fatalf("expected 1 recovered job, got %d", recovered)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != models.StatusPending {
		t.Errorf("expected recovered job back to pending, got %s", got.Status)
	}
}

func TestJobQueueStore_Complete(t *testing.T) {
	db := testDB(t)
	store := NewJobQueueStore(db, testLogger(), time.Minute)
	ctx := context.Background()

	job := &models.Job{JobType: models.JobResearch, ArticleID: "a1", Priority: 10, MaxAttempts: 3}
	store.Enqueue(ctx, job)
	claimed, _ := store.Acquire(ctx, 1, nil)

	if err := store.Complete(ctx, claimed[0].ID, map[string]any{"wordCount": 1200}, 100); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	pending, _ := store.CountPending(ctx)
	if pending != 0 {
		t.Errorf("expected 0 pending after complete, got %d", pending)
	}
}

func TestJobQueueStore_Fail_Terminal(t *testing.T) {
	db := testDB(t)
	store := NewJobQueueStore(db, testLogger(), time.Minute)
	ctx := context.Background()

	job := &models.Job{JobType: models.JobResearch, ArticleID: "a1", Priority: 10, MaxAttempts: 3}
	store.Enqueue(ctx, job)
	claimed, _ := store.Acquire(ctx, 1, nil)

	classification := &interfaces.Classification{Category: interfaces.CategoryValidation, HumanReadable: "bad payload"}
	if err := store.Fail(ctx, claimed[0].ID, classification, false, nil); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	got, _ := store.Get(ctx, claimed[0].ID)
	if got.Status != models.StatusFailed {
		t.Errorf("expected status failed, got %s", got.Status)
	}
}

func TestJobQueueStore_Fail_Retry(t *testing.T) {
	db := testDB(t)
	store := NewJobQueueStore(db, testLogger(), time.Minute)
	ctx := context.Background()

	job := &models.Job{JobType: models.JobResearch, ArticleID: "a1", Priority: 10, MaxAttempts: 3}
	store.Enqueue(ctx, job)
	claimed, _ := store.Acquire(ctx, 1, nil)

	retryAt := time.Now().Add(time.Minute)
	classification := &interfaces.Classification{Category: interfaces.CategoryTimeout, HumanReadable: "timed out"}
	if err := store.Fail(ctx, claimed[0].ID, classification, true, &retryAt); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	got, _ := store.Get(ctx, claimed[0].ID)
	if got.Status != models.StatusPending {
		t.Errorf("expected status pending after retry, got %s", got.Status)
	}
}

func TestJobQueueStore_Cancel(t *testing.T) {
	db := testDB(t)
	store := NewJobQueueStore(db, testLogger(), time.Minute)
	ctx := context.Background()

	job := &models.Job{JobType: models.JobResearch, ArticleID: "a1", Priority: 10, MaxAttempts: 3}
	store.Enqueue(ctx, job)

	if err := store.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	pending, _ := store.CountPending(ctx)
	if pending != 0 {
		t.Errorf("expected 0 pending after cancel, got %d", pending)
	}
}

func TestJobQueueStore_HasInFlightJob(t *testing.T) {
	db := testDB(t)
	store := NewJobQueueStore(db, testLogger(), time.Minute)
	ctx := context.Background()

	has, _ := store.HasInFlightJob(ctx, models.JobCreatePromotionPlan, "domainResearchId", "d1")
	if has {
		t.Error("expected no in-flight job initially")
	}

	store.Enqueue(ctx, &models.Job{
		JobType:  models.JobCreatePromotionPlan,
		Priority: 5, MaxAttempts: 3,
		Payload: map[string]any{"domainResearchId": "d1"},
	})

	has, _ = store.HasInFlightJob(ctx, models.JobCreatePromotionPlan, "domainResearchId", "d1")
	if !has {
		t.Error("expected in-flight job after enqueue")
	}

	has, _ = store.HasInFlightJob(ctx, models.JobCreatePromotionPlan, "domainResearchId", "d2")
	if has {
		t.Error("expected no in-flight job for a different domain research id")
	}
}

func TestJobQueueStore_ListPending(t *testing.T) {
	db := testDB(t)
	store := NewJobQueueStore(db, testLogger(), time.Minute)
	ctx := context.Background()

	store.Enqueue(ctx, &models.Job{JobType: models.JobResearch, ArticleID: "a", Priority: 10, MaxAttempts: 3})
	store.Enqueue(ctx, &models.Job{JobType: models.JobResearch, ArticleID: "b", Priority: 5, MaxAttempts: 3})
	store.Enqueue(ctx, &models.Job{JobType: models.JobResearch, ArticleID: "c", Priority: 8, MaxAttempts: 3})

	jobs, err := store.ListPending(ctx, 10)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(jobs) != 3 {
		t.Errorf("expected 3 pending jobs, got %d", len(jobs))
	}
}

func TestJobQueueStore_SetPriority(t *testing.T) {
	db := testDB(t)
	store := NewJobQueueStore(db, testLogger(), time.Minute)
	ctx := context.Background()

	job := &models.Job{JobType: models.JobResearch, ArticleID: "a1", Priority: 5, MaxAttempts: 3}
	store.Enqueue(ctx, job)

	if err := store.SetPriority(ctx, job.ID, 20); err != nil {
		t.Fatalf("SetPriority failed: %v", err)
	}

	got, _ := store.Get(ctx, job.ID)
	if got.Priority != 20 {
		t.Errorf("expected priority 20, got %d", got.Priority)
	}
}

func TestJobQueueStore_ListByArticle(t *testing.T) {
	db := testDB(t)
	store := NewJobQueueStore(db, testLogger(), time.Minute)
	ctx := context.Background()

	store.Enqueue(ctx, &models.Job{JobType: models.JobResearch, ArticleID: "a1", Priority: 10, MaxAttempts: 3})
	store.Enqueue(ctx, &models.Job{JobType: models.JobGenerateDraft, ArticleID: "a1", Priority: 5, MaxAttempts: 3})
	store.Enqueue(ctx, &models.Job{JobType: models.JobResearch, ArticleID: "a2", Priority: 10, MaxAttempts: 3})

	jobs, err := store.ListByArticle(ctx, "a1")
	if err != nil {
		t.Fatalf("ListByArticle failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("expected 2 jobs for a1, got %d", len(jobs))
	}
}

func TestJobQueueStore_PurgeCompleted(t *testing.T) {
	db := testDB(t)
	store := NewJobQueueStore(db, testLogger(), time.Minute)
	ctx := context.Background()

	job := &models.Job{JobType: models.JobResearch, ArticleID: "a1", Priority: 10, MaxAttempts: 3}
	store.Enqueue(ctx, job)
	claimed, _ := store.Acquire(ctx, 1, nil)
	store.Complete(ctx, claimed[0].ID, nil, 100)

	n, err := store.PurgeCompleted(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PurgeCompleted failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged job, got %d", n)
	}
}

func TestJobQueueStore_ListAll(t *testing.T) {
	db := testDB(t)
	store := NewJobQueueStore(db, testLogger(), time.Minute)
	ctx := context.Background()

	store.Enqueue(ctx, &models.Job{JobType: models.JobResearch, ArticleID: "a", Priority: 10, MaxAttempts: 3})
	store.Enqueue(ctx, &models.Job{JobType: models.JobResearch, ArticleID: "b", Priority: 5, MaxAttempts: 3})

	jobs, err := store.ListAll(ctx, 10)
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("expected 2 jobs, got %d", len(jobs))
	}
}

func TestJobQueueStore_RetryFailed_All(t *testing.T) {
	db := testDB(t)
	store := NewJobQueueStore(db, testLogger(), time.Minute)
	ctx := context.Background()

	job := &models.Job{JobType: models.JobResearch, ArticleID: "a1", Priority: 10, MaxAttempts: 3}
	store.Enqueue(ctx, job)
	claimed, _ := store.Acquire(ctx, 1, nil)
	classification := &interfaces.Classification{Category: interfaces.CategoryValidation, HumanReadable: "bad payload"}
	store.Fail(ctx, claimed[0].ID, classification, false, nil)

	n, err := store.RetryFailed(ctx, 10, "all", 0)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 retried job, got %d", n)
	}

	pending, _ := store.CountPending(ctx)
	if pending != 1 {
		t.Errorf("expected 1 pending job after retry, got %d", pending)
	}
}

func TestJobQueueStore_Stats(t *testing.T) {
	db := testDB(t)
	store := NewJobQueueStore(db, testLogger(), time.Minute)
	ctx := context.Background()

	store.Enqueue(ctx, &models.Job{JobType: models.JobResearch, ArticleID: "a", Priority: 10, MaxAttempts: 3})
	store.Enqueue(ctx, &models.Job{JobType: models.JobResearch, ArticleID: "b", Priority: 5, MaxAttempts: 3})
	claimed, _ := store.Acquire(ctx, 1, nil)
	store.Complete(ctx, claimed[0].ID, nil, 50)

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Pending != 1 {
		t.Errorf("expected 1 pending, got %d", stats.Pending)
	}
	if stats.Completed != 1 {
		t.Errorf("expected 1 completed, got %d", stats.Completed)
	}
}

func TestJobQueueStore_BusyDomains(t *testing.T) {
	db := testDB(t)
	store := NewJobQueueStore(db, testLogger(), time.Minute)
	ctx := context.Background()

	store.Enqueue(ctx, &models.Job{JobType: models.JobKeywordResearch, DomainID: "busy-pending", Priority: 2, MaxAttempts: 3})
	completedJob := &models.Job{JobType: models.JobKeywordResearch, DomainID: "busy-completed", Priority: 2, MaxAttempts: 3}
	store.Enqueue(ctx, completedJob)
	claimed, _ := store.Acquire(ctx, 1, []string{models.JobKeywordResearch})
	for _, c := range claimed {
		if c.DomainID == "busy-completed" {
			store.Complete(ctx, c.ID, nil, 10)
		}
	}
	store.Enqueue(ctx, &models.Job{JobType: models.JobKeywordResearch, DomainID: "idle-domain", Priority: 2, MaxAttempts: 3})
	idle, _ := store.Acquire(ctx, 1, nil)
	for _, j := range idle {
		store.Complete(ctx, j.ID, nil, 10)
	}

	busy, err := store.BusyDomains(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("BusyDomains failed: %v", err)
	}
	if !busy["busy-pending"] && !busy["busy-completed"] {
		t.Errorf("expected at least one of the busy domains flagged, got %+v", busy)
	}
}

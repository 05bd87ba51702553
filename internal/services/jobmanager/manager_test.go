package jobmanager

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/domainpress/pipeline/internal/common"
	"github.com/domainpress/pipeline/internal/interfaces"
	"github.com/domainpress/pipeline/internal/models"
)

// --- fakes ---

// fakeJobQueueStore is an in-memory interfaces.JobQueueStore good enough to
// exercise Manager's business logic without a real database.
type fakeJobQueueStore struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
	seq  int
}

func newFakeJobQueueStore() *fakeJobQueueStore {
	return &fakeJobQueueStore{jobs: make(map[string]*models.Job)}
}

func (f *fakeJobQueueStore) Enqueue(_ context.Context, job *models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	if job.ID == "" {
		job.ID = fmt.Sprintf("job-%d", f.seq)
	}
	if job.Status == "" {
		job.Status = models.StatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeJobQueueStore) Acquire(_ context.Context, limit int, allowedTypes []string) ([]*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	var out []*models.Job
	for _, j := range f.jobs {
		if len(out) >= limit {
			break
		}
		if !j.Ready(now) {
			continue
		}
		if len(allowedTypes) > 0 && !contains(allowedTypes, j.JobType) {
			continue
		}
		j.Status = models.StatusProcessing
		locked := now.Add(time.Minute)
		j.LockedUntil = &locked
		out = append(out, j)
	}
	return out, nil
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func (f *fakeJobQueueStore) AcquireByIds(ctx context.Context, ids []string, limit int, allowedTypes []string) ([]*models.Job, error) {
	return f.Acquire(ctx, limit, allowedTypes)
}

func (f *fakeJobQueueStore) Recover(_ context.Context) (int, error) { return 0, nil }

func (f *fakeJobQueueStore) Complete(_ context.Context, id string, result map[string]any, durationMS int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	j.Status = models.StatusCompleted
	j.Result = result
	return nil
}

func (f *fakeJobQueueStore) Fail(_ context.Context, id string, classification *interfaces.Classification, retry bool, scheduledFor *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	j.Attempts++
	if classification != nil {
		j.ErrorMessage = classification.HumanReadable
	}
	if retry {
		j.Status = models.StatusPending
		j.ScheduledFor = scheduledFor
	} else {
		j.Status = models.StatusFailed
	}
	return nil
}

func (f *fakeJobQueueStore) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil
	}
	if j.Status == models.StatusPending {
		j.Status = models.StatusCancelled
	}
	return nil
}

func (f *fakeJobQueueStore) SetPriority(_ context.Context, id string, priority int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[id]; ok {
		j.Priority = priority
	}
	return nil
}

func (f *fakeJobQueueStore) Get(_ context.Context, id string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobQueueStore) ListPending(_ context.Context, limit int) ([]*models.Job, error) {
	return nil, nil
}
func (f *fakeJobQueueStore) ListAll(_ context.Context, limit int) ([]*models.Job, error) {
	return nil, nil
}
func (f *fakeJobQueueStore) ListByArticle(_ context.Context, articleID string) ([]*models.Job, error) {
	return nil, nil
}

func (f *fakeJobQueueStore) CountPending(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, j := range f.jobs {
		if j.Status == models.StatusPending {
			n++
		}
	}
	return n, nil
}

func (f *fakeJobQueueStore) HasInFlightJob(_ context.Context, jobType, matchKey, matchValue string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.JobType != jobType {
			continue
		}
		if j.Status != models.StatusPending && j.Status != models.StatusProcessing {
			continue
		}
		if matchKey == "campaignId" && j.Payload["campaignId"] == matchValue {
			return true, nil
		}
		if matchKey == "domainId" && j.DomainID == matchValue {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeJobQueueStore) PurgeCompleted(_ context.Context, olderThan time.Time) (int, error) {
	return 0, nil
}

func (f *fakeJobQueueStore) BusyDomains(_ context.Context, within time.Duration) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func (f *fakeJobQueueStore) RetryFailed(_ context.Context, limit int, mode string, minFailedAge time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, j := range f.jobs {
		if n >= limit {
			break
		}
		if j.Status != models.StatusFailed {
			continue
		}
		j.Status = models.StatusPending
		if mode == "all" {
			j.Attempts = 0
		}
		n++
	}
	return n, nil
}

func (f *fakeJobQueueStore) Stats(_ context.Context) (interfaces.QueueStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var s interfaces.QueueStats
	for _, j := range f.jobs {
		switch j.Status {
		case models.StatusPending:
			s.Pending++
		case models.StatusProcessing:
			s.Processing++
		case models.StatusCompleted:
			s.Completed++
		case models.StatusFailed:
			s.Failed++
		case models.StatusCancelled:
			s.Cancelled++
		}
	}
	return s, nil
}

// fakeArticleStore is the minimal interfaces.ArticleStore stub onFailure's
// draft-revert path touches.
type fakeArticleStore struct {
	mu       sync.Mutex
	statuses map[string]string
}

func (f *fakeArticleStore) Create(context.Context, *models.Article) error { return nil }
func (f *fakeArticleStore) Get(context.Context, string) (*models.Article, error) {
	return nil, nil
}
func (f *fakeArticleStore) Update(context.Context, *models.Article) error { return nil }
func (f *fakeArticleStore) SetStatus(_ context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses == nil {
		f.statuses = make(map[string]string)
	}
	f.statuses[id] = status
	return nil
}
func (f *fakeArticleStore) ListPublishedSiblings(context.Context, string, int) ([]*models.Article, error) {
	return nil, nil
}
func (f *fakeArticleStore) LatestCreatedAtByDomain(context.Context) (map[string]time.Time, error) {
	return nil, nil
}

// fakeStorageManager implements interfaces.StorageManager with a real
// fakeJobQueueStore/fakeArticleStore and nil everywhere else; the tests in
// this file never reach the maintenance sweeps or the content scheduler,
// the jobmanager code paths that use the other stores.
type fakeStorageManager struct {
	jobQueue *fakeJobQueueStore
	articles *fakeArticleStore
}

func newFakeStorageManager() *fakeStorageManager {
	return &fakeStorageManager{
		jobQueue: newFakeJobQueueStore(),
		articles: &fakeArticleStore{},
	}
}

func (f *fakeStorageManager) JobQueueStore() interfaces.JobQueueStore         { return f.jobQueue }
func (f *fakeStorageManager) ArticleStore() interfaces.ArticleStore          { return f.articles }
func (f *fakeStorageManager) DomainStore() interfaces.DomainStore            { return nil }
func (f *fakeStorageManager) PromotionStore() interfaces.PromotionStore      { return nil }
func (f *fakeStorageManager) UnderwritingStore() interfaces.UnderwritingStore { return nil }
func (f *fakeStorageManager) MediaStore() interfaces.MediaStore              { return nil }
func (f *fakeStorageManager) ReviewTaskStore() interfaces.ReviewTaskStore     { return nil }
func (f *fakeStorageManager) CredentialStore() interfaces.CredentialStore    { return nil }
func (f *fakeStorageManager) AccountingStore() interfaces.AccountingStore    { return nil }
func (f *fakeStorageManager) SettingsStore() interfaces.SettingsStore        { return nil }
func (f *fakeStorageManager) DataPath() string                               { return "" }
func (f *fakeStorageManager) Close() error                                   { return nil }

func testLogger() *common.Logger {
	return common.NewLogger("error")
}

func testConfigs() (common.QueueConfig, common.JobManagerConfig) {
	return common.QueueConfig{BatchSize: 10, LeaseSeconds: 60, MaxAttempts: 3},
		common.JobManagerConfig{MaxConcurrent: 4, HeavyJobLimit: 1}
}

// --- tests ---

func TestEnqueueIfNeeded_Dedup(t *testing.T) {
	queue, runtime := testConfigs()
	storage := newFakeStorageManager()
	m := NewManager(storage, testLogger(), queue, runtime)

	ctx := context.Background()
	job1 := &models.Job{JobType: "generate_article", Payload: map[string]any{"campaignId": "camp-1"}}
	inserted, err := m.EnqueueIfNeeded(ctx, job1, "campaignId", "camp-1")
	if err != nil || !inserted {
		t.Fatalf("expected first enqueue to insert, got inserted=%v err=%v", inserted, err)
	}

	job2 := &models.Job{JobType: "generate_article", Payload: map[string]any{"campaignId": "camp-1"}}
	inserted, err = m.EnqueueIfNeeded(ctx, job2, "campaignId", "camp-1")
	if err != nil || inserted {
		t.Fatalf("expected second enqueue to be deduped, got inserted=%v err=%v", inserted, err)
	}

	pending, _ := storage.jobQueue.CountPending(ctx)
	if pending != 1 {
		t.Fatalf("expected 1 pending job after dedup, got %d", pending)
	}
}

func TestProcess_SuccessCompletesJob(t *testing.T) {
	queue, runtime := testConfigs()
	storage := newFakeStorageManager()
	m := NewManager(storage, testLogger(), queue, runtime)

	m.RegisterHandler("ping", func(ctx context.Context, job *models.Job) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	})

	ctx := context.Background()
	job := &models.Job{JobType: "ping"}
	if err := m.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	n, err := m.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 job processed, got %d", n)
	}

	got, _ := storage.jobQueue.Get(ctx, job.ID)
	if got.Status != models.StatusCompleted {
		t.Fatalf("expected job completed, got status %q", got.Status)
	}
	if got.Result["ok"] != true {
		t.Fatalf("expected result to be recorded, got %v", got.Result)
	}
}

func TestProcess_FailureSchedulesRetry(t *testing.T) {
	queue, runtime := testConfigs()
	storage := newFakeStorageManager()
	m := NewManager(storage, testLogger(), queue, runtime)

	m.RegisterHandler("flaky", func(ctx context.Context, job *models.Job) (map[string]any, error) {
		return nil, common.Classify(interfaces.CategoryProviderError, "", fmt.Errorf("upstream 503"))
	})

	ctx := context.Background()
	job := &models.Job{JobType: "flaky", MaxAttempts: 3}
	if err := m.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if _, err := m.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	got, _ := storage.jobQueue.Get(ctx, job.ID)
	if got.Status != models.StatusPending {
		t.Fatalf("expected retryable failure to reschedule as pending, got %q", got.Status)
	}
	if got.Attempts != 1 {
		t.Fatalf("expected attempts incremented to 1, got %d", got.Attempts)
	}
	if got.ScheduledFor == nil || !got.ScheduledFor.After(time.Now()) {
		t.Fatalf("expected a future scheduledFor, got %v", got.ScheduledFor)
	}
}

func TestProcess_NoHandlerFailsValidation(t *testing.T) {
	queue, runtime := testConfigs()
	storage := newFakeStorageManager()
	m := NewManager(storage, testLogger(), queue, runtime)

	ctx := context.Background()
	job := &models.Job{JobType: "unregistered", MaxAttempts: 3}
	if err := m.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if _, err := m.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	got, _ := storage.jobQueue.Get(ctx, job.ID)
	if got.Status != models.StatusFailed {
		t.Fatalf("expected a validation failure (non-retryable) to dead-letter, got %q", got.Status)
	}
}

func TestRetryFailedJobs_ModeAll(t *testing.T) {
	queue, runtime := testConfigs()
	storage := newFakeStorageManager()
	m := NewManager(storage, testLogger(), queue, runtime)

	ctx := context.Background()
	job := &models.Job{JobType: "x"}
	if err := m.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	storage.jobQueue.mu.Lock()
	storage.jobQueue.jobs[job.ID].Status = models.StatusFailed
	storage.jobQueue.jobs[job.ID].Attempts = 3
	storage.jobQueue.mu.Unlock()

	n, err := m.RetryFailedJobs(ctx, 50, "all", 0)
	if err != nil {
		t.Fatalf("RetryFailedJobs: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 job retried, got %d", n)
	}

	got, _ := storage.jobQueue.Get(ctx, job.ID)
	if got.Status != models.StatusPending || got.Attempts != 0 {
		t.Fatalf("expected pending with attempts reset, got status=%q attempts=%d", got.Status, got.Attempts)
	}
}

func TestCancelJob_OnlyCancelsPending(t *testing.T) {
	queue, runtime := testConfigs()
	storage := newFakeStorageManager()
	m := NewManager(storage, testLogger(), queue, runtime)

	ctx := context.Background()
	job := &models.Job{JobType: "x"}
	if err := m.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := m.CancelJob(ctx, job.ID); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	got, _ := storage.jobQueue.Get(ctx, job.ID)
	if got.Status != models.StatusCancelled {
		t.Fatalf("expected cancelled, got %q", got.Status)
	}

	running := &models.Job{JobType: "x", Status: models.StatusProcessing}
	if err := storage.jobQueue.Enqueue(ctx, running); err != nil {
		t.Fatalf("enqueue running: %v", err)
	}
	if err := m.CancelJob(ctx, running.ID); err != nil {
		t.Fatalf("CancelJob running: %v", err)
	}
	got, _ = storage.jobQueue.Get(ctx, running.ID)
	if got.Status != models.StatusProcessing {
		t.Fatalf("expected processing job left as is, got %q", got.Status)
	}
}

func TestIsHeavyJob(t *testing.T) {
	if !isHeavyJob(models.JobRenderShortVideo) {
		t.Error("expected render_short_video to be heavy")
	}
	if isHeavyJob("publish_youtube_short") {
		t.Error("expected publish_youtube_short not to be heavy")
	}
}

func TestGetWorkerHealth_DefaultsBeforeStart(t *testing.T) {
	queue, runtime := testConfigs()
	storage := newFakeStorageManager()
	m := NewManager(storage, testLogger(), queue, runtime)

	h := m.GetWorkerHealth()
	if h.Started {
		t.Error("expected Started false before Start()")
	}
	if h.ActiveJobs != 0 {
		t.Errorf("expected 0 active jobs, got %d", h.ActiveJobs)
	}
}

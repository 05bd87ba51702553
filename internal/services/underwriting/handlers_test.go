package underwriting

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/domainpress/pipeline/internal/common"
	"github.com/domainpress/pipeline/internal/interfaces"
	"github.com/domainpress/pipeline/internal/models"
	"github.com/domainpress/pipeline/internal/services/jobmanager"
)

// fakeJobQueueStore is a minimal in-memory interfaces.JobQueueStore good
// enough to exercise EnqueueIfNeeded's dedup and pending count.
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

func (f *fakeJobQueueStore) Acquire(context.Context, int, []string) ([]*models.Job, error) {
	return nil, nil
}
func (f *fakeJobQueueStore) AcquireByIds(context.Context, []string, int, []string) ([]*models.Job, error) {
	return nil, nil
}
func (f *fakeJobQueueStore) Recover(context.Context) (int, error) { return 0, nil }
func (f *fakeJobQueueStore) Complete(context.Context, string, map[string]any, int64) error {
	return nil
}
func (f *fakeJobQueueStore) Fail(context.Context, string, *interfaces.Classification, bool, *time.Time) error {
	return nil
}
func (f *fakeJobQueueStore) Cancel(context.Context, string) error        { return nil }
func (f *fakeJobQueueStore) SetPriority(context.Context, string, int) error { return nil }
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
func (f *fakeJobQueueStore) ListPending(context.Context, int) ([]*models.Job, error) { return nil, nil }
func (f *fakeJobQueueStore) ListAll(context.Context, int) ([]*models.Job, error)      { return nil, nil }
func (f *fakeJobQueueStore) ListByArticle(context.Context, string) ([]*models.Job, error) {
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
		if matchKey == "domainResearchId" && fmt.Sprintf("%v", j.Payload["domainResearchId"]) == matchValue {
			return true, nil
		}
	}
	return false, nil
}
func (f *fakeJobQueueStore) PurgeCompleted(context.Context, time.Time) (int, error) { return 0, nil }
func (f *fakeJobQueueStore) BusyDomains(context.Context, time.Duration) (map[string]bool, error) {
	return map[string]bool{}, nil
}
func (f *fakeJobQueueStore) RetryFailed(context.Context, int, string, time.Duration) (int, error) {
	return 0, nil
}
func (f *fakeJobQueueStore) Stats(context.Context) (interfaces.QueueStats, error) {
	return interfaces.QueueStats{}, nil
}

// fakeUnderwritingStore is an in-memory interfaces.UnderwritingStore good
// enough to exercise scoreCandidate's branching.
type fakeUnderwritingStore struct {
	candidates map[string]*models.DomainResearch
	previews   []*models.PreviewBuild
	events     []*models.AcquisitionEvent
}

func newFakeUnderwritingStore() *fakeUnderwritingStore {
	return &fakeUnderwritingStore{candidates: make(map[string]*models.DomainResearch)}
}

func (f *fakeUnderwritingStore) UpsertCandidate(_ context.Context, r *models.DomainResearch) error {
	f.candidates[r.ID] = r
	return nil
}
func (f *fakeUnderwritingStore) Get(_ context.Context, id string) (*models.DomainResearch, error) {
	r, ok := f.candidates[id]
	if !ok {
		return nil, nil
	}
	return r, nil
}
func (f *fakeUnderwritingStore) GetByDomain(context.Context, string) (*models.DomainResearch, error) {
	return nil, nil
}
func (f *fakeUnderwritingStore) Update(_ context.Context, r *models.DomainResearch) error {
	f.candidates[r.ID] = r
	return nil
}
func (f *fakeUnderwritingStore) AppendEvent(_ context.Context, e *models.AcquisitionEvent) error {
	f.events = append(f.events, e)
	return nil
}
func (f *fakeUnderwritingStore) UpsertPreviewBuild(_ context.Context, p *models.PreviewBuild) error {
	f.previews = append(f.previews, p)
	return nil
}
func (f *fakeUnderwritingStore) ExpirePreviewBuilds(context.Context, time.Time) (int, error) {
	return 0, nil
}

// fakeReviewTaskStore is a no-op interfaces.ReviewTaskStore.
type fakeReviewTaskStore struct {
	upserted []*models.ReviewTask
	cancelled []string
}

func (f *fakeReviewTaskStore) Upsert(_ context.Context, t *models.ReviewTask) error {
	f.upserted = append(f.upserted, t)
	return nil
}
func (f *fakeReviewTaskStore) CancelPending(_ context.Context, domainResearchID string) error {
	f.cancelled = append(f.cancelled, domainResearchID)
	return nil
}
func (f *fakeReviewTaskStore) ListPendingByUser(context.Context, int) ([]*models.MediaModerationTask, error) {
	return nil, nil
}

// fakeStorageManager implements interfaces.StorageManager with real
// underwriting/review-task/job-queue fakes and nil everywhere else.
type fakeStorageManager struct {
	jobQueue    *fakeJobQueueStore
	underwriting *fakeUnderwritingStore
	reviewTasks *fakeReviewTaskStore
}

func newFakeStorageManager() *fakeStorageManager {
	return &fakeStorageManager{
		jobQueue:     newFakeJobQueueStore(),
		underwriting: newFakeUnderwritingStore(),
		reviewTasks:  &fakeReviewTaskStore{},
	}
}

func (f *fakeStorageManager) JobQueueStore() interfaces.JobQueueStore         { return f.jobQueue }
func (f *fakeStorageManager) ArticleStore() interfaces.ArticleStore          { return nil }
func (f *fakeStorageManager) DomainStore() interfaces.DomainStore            { return nil }
func (f *fakeStorageManager) PromotionStore() interfaces.PromotionStore      { return nil }
func (f *fakeStorageManager) UnderwritingStore() interfaces.UnderwritingStore { return f.underwriting }
func (f *fakeStorageManager) MediaStore() interfaces.MediaStore              { return nil }
func (f *fakeStorageManager) ReviewTaskStore() interfaces.ReviewTaskStore     { return f.reviewTasks }
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

// TestScoreCandidate_LowScoreNonHardFailStillChainsBidPlan covers the
// enqueue-skip branch: decide() can return DecisionPass from a merely
// low-scoring candidate (the default fallthrough) as well as from a genuine
// hard fail, and only the latter should skip create_bid_plan.
func TestScoreCandidate_LowScoreNonHardFailStillChainsBidPlan(t *testing.T) {
	queue, runtime := testConfigs()
	storage := newFakeStorageManager()
	m := jobmanager.NewManager(storage, testLogger(), queue, runtime)

	candidate := &models.DomainResearch{
		ID:             "cand-1",
		Domain:         "example.com",
		CompositeScore: 10,
		RiskScore:      90,
		Confidence:     0.1,
	}
	storage.underwriting.candidates[candidate.ID] = candidate

	h := &handlers{deps: Deps{Storage: storage, Logger: testLogger()}, manager: m}

	job := &models.Job{JobType: models.JobScoreCandidate, Payload: map[string]any{"domainResearchId": candidate.ID}}
	result, err := h.scoreCandidate(context.Background(), job)
	if err != nil {
		t.Fatalf("scoreCandidate: %v", err)
	}
	if result["decision"] != models.DecisionPass {
		t.Fatalf("expected low-scoring candidate to decide pass, got %v", result["decision"])
	}

	pending, _ := storage.jobQueue.CountPending(context.Background())
	if pending != 1 {
		t.Fatalf("expected create_bid_plan enqueued for a non-hard-fail pass decision, got %d pending jobs", pending)
	}
}

// TestScoreCandidate_HardFailSkipsBidPlan covers the genuine hard-fail path,
// which must still skip create_bid_plan entirely.
func TestScoreCandidate_HardFailSkipsBidPlan(t *testing.T) {
	queue, runtime := testConfigs()
	storage := newFakeStorageManager()
	m := jobmanager.NewManager(storage, testLogger(), queue, runtime)

	candidate := &models.DomainResearch{
		ID:             "cand-2",
		Domain:         "example.org",
		CompositeScore: 95,
		RiskScore:      5,
		Confidence:     0.9,
		HardFailReason: "trademark conflict",
	}
	storage.underwriting.candidates[candidate.ID] = candidate

	h := &handlers{deps: Deps{Storage: storage, Logger: testLogger()}, manager: m}

	job := &models.Job{JobType: models.JobScoreCandidate, Payload: map[string]any{"domainResearchId": candidate.ID}}
	result, err := h.scoreCandidate(context.Background(), job)
	if err != nil {
		t.Fatalf("scoreCandidate: %v", err)
	}
	if result["decision"] != models.DecisionPass {
		t.Fatalf("expected hard-fail candidate to decide pass, got %v", result["decision"])
	}

	pending, _ := storage.jobQueue.CountPending(context.Background())
	if pending != 0 {
		t.Fatalf("expected create_bid_plan NOT enqueued for a hard fail, got %d pending jobs", pending)
	}
}

// Package jobmanager runs the durable job queue's worker runtime: atomic
// batch acquisition, stale-lock recovery, timeout-bounded execution, retry
// and dead-lettering, and the crash-resilient supervisor loop that keeps
// workers running.
package jobmanager

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/domainpress/pipeline/internal/common"
	"github.com/domainpress/pipeline/internal/interfaces"
	"github.com/domainpress/pipeline/internal/models"
	"github.com/domainpress/pipeline/internal/services/jobmanager/telemetry"
)

// HandlerFunc executes one claimed job and returns the result payload to
// persist, or an error (plain or produced by common.Classify) describing why
// it failed.
type HandlerFunc func(ctx context.Context, job *models.Job) (map[string]any, error)

// GrowthSideRecorder mirrors a queue job's lifecycle onto its paired
// promotion_jobs row, so campaign-scoped readers never need to join the
// queue table. Optional: a Manager with no recorder set simply skips it.
type GrowthSideRecorder interface {
	MarkRunning(ctx context.Context, queueJobID string) error
	MarkCompleted(ctx context.Context, queueJobID string) error
	MarkPending(ctx context.Context, queueJobID string) error
	MarkFailed(ctx context.Context, queueJobID string) error
}

// Manager owns the worker pool, the handler registry, and the crash
// supervisor. One Manager per process.
type Manager struct {
	storage interfaces.StorageManager
	logger  *common.Logger
	queue   common.QueueConfig
	runtime common.JobManagerConfig
	timeout time.Duration

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	growth   GrowthSideRecorder
	otel     *telemetry.Provider

	generalSem chan struct{}
	heavySem   chan struct{}

	active   int64
	idleMu   sync.Mutex
	idleCond *sync.Cond

	cancel context.CancelFunc
	wg     sync.WaitGroup

	startedAt     time.Time
	crashCount    int
	lastCrashAt   time.Time
	shuttingDown  atomic.Bool
	lastHeartbeat atomic.Int64
}

// DefaultJobTimeout is the per-job timeout enforced by process(), matching
// the 10 minute default named in the executor's contract.
const DefaultJobTimeout = 10 * time.Minute

// NewManager builds a Manager against its storage handle and operating
// config. The handler registry starts empty; callers register stage,
// growth, underwriting, scheduler, and maintenance handlers via
// RegisterHandler before calling Start.
func NewManager(storage interfaces.StorageManager, logger *common.Logger, queue common.QueueConfig, runtime common.JobManagerConfig) *Manager {
	m := &Manager{
		storage:    storage,
		logger:     logger,
		queue:      queue,
		runtime:    runtime,
		timeout:    DefaultJobTimeout,
		handlers:   make(map[string]HandlerFunc),
		generalSem: make(chan struct{}, runtime.GetMaxConcurrent()),
		heavySem:   make(chan struct{}, runtime.GetHeavyJobLimit()),
	}
	m.idleCond = sync.NewCond(&m.idleMu)
	return m
}

// RegisterHandler binds a handler to a job type. Call before Start.
func (m *Manager) RegisterHandler(jobType string, h HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[jobType] = h
}

// SetGrowthRecorder wires the promotion_jobs side-record mirror.
func (m *Manager) SetGrowthRecorder(g GrowthSideRecorder) {
	m.growth = g
}

// SetTelemetry wires OpenTelemetry tracing and Prometheus metrics into the
// worker loop. A Manager with none set simply skips recording them.
func (m *Manager) SetTelemetry(t *telemetry.Provider) {
	m.otel = t
}

// isHeavyJob reports whether jobType is gated by the heavy-job semaphore in
// addition to the general worker pool. Rendering a short-form video is the
// one stage with a meaningfully larger memory/CPU footprint than the rest of
// the pipeline, so it alone is throttled this way.
func isHeavyJob(jobType string) bool {
	return jobType == models.JobRenderShortVideo
}

// safeGo launches a goroutine under the Manager's WaitGroup with panic
// recovery: a bug in one handler must never take down the worker process.
func (m *Manager) safeGo(name string, fn func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("recovered from panic in job manager goroutine")
			}
		}()
		fn()
	}()
}

// Start resets any stale leases left over from a previous crash, then
// launches the acquisition loop. Safe to call multiple times — stops any
// existing loop first.
func (m *Manager) Start() {
	if m.cancel != nil {
		m.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.startedAt = time.Now()
	m.shuttingDown.Store(false)

	if n, err := m.storage.JobQueueStore().Recover(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("failed to recover stale-locked jobs at startup")
	} else if n > 0 {
		m.logger.Info().Int("count", n).Msg("recovered stale-locked jobs to pending")
	}

	m.safeGo("acquire-loop", func() { m.acquireLoop(ctx) })

	m.logger.Info().
		Dur("poll_interval", m.queue.GetPollInterval()).
		Int("batch_size", m.queue.GetBatchSize()).
		Int("max_concurrent", m.runtime.GetMaxConcurrent()).
		Msg("job manager started")
}

// Stop requests the acquisition loop to exit and waits (up to 20s) for any
// in-flight jobs to finish, per the graceful-shutdown budget.
func (m *Manager) Stop() {
	m.shuttingDown.Store(true)
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.WaitForIdle(20 * time.Second)
	m.wg.Wait()
	m.logger.Info().Msg("job manager stopped")
}

// WaitForIdle blocks until the active-job counter reaches zero or timeout
// elapses, returning whether it actually went idle.
func (m *Manager) WaitForIdle(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		m.idleMu.Lock()
		for atomic.LoadInt64(&m.active) > 0 {
			m.idleCond.Wait()
		}
		m.idleMu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// acquireLoop ticks at the configured poll interval: it recovers stale
// leases once per round (satisfying the "at least every 60s" contract,
// since the default poll interval is far below that), claims up to
// batchSize ready jobs, and dispatches each to the worker pool.
func (m *Manager) acquireLoop(ctx context.Context) {
	ticker := time.NewTicker(m.queue.GetPollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.acquireRound(ctx)
		}
	}
}

func (m *Manager) acquireRound(ctx context.Context) {
	if _, err := m.storage.JobQueueStore().Recover(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("recover round failed")
	}

	jobs, err := m.storage.JobQueueStore().Acquire(ctx, m.queue.GetBatchSize(), nil)
	if err != nil {
		m.logger.Error().Err(err).Msg("acquire failed, worker loop continues")
		return
	}
	if m.otel != nil {
		m.otel.SetQueueDepth(len(jobs))
	}

	for _, job := range jobs {
		job := job
		heavy := isHeavyJob(job.JobType)

		select {
		case m.generalSem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		if heavy {
			select {
			case m.heavySem <- struct{}{}:
			case <-ctx.Done():
				<-m.generalSem
				return
			}
		}

		m.safeGo("process-"+job.ID, func() {
			defer func() { <-m.generalSem }()
			if heavy {
				defer func() { <-m.heavySem }()
			}
			m.process(ctx, job)
		})
	}
}

// RunOnce claims and processes a single batch synchronously, for the CLI's
// `worker once` operation. Returns the number of jobs processed.
func (m *Manager) RunOnce(ctx context.Context) (int, error) {
	if _, err := m.storage.JobQueueStore().Recover(ctx); err != nil {
		return 0, fmt.Errorf("recover: %w", err)
	}
	jobs, err := m.storage.JobQueueStore().Acquire(ctx, m.queue.GetBatchSize(), nil)
	if err != nil {
		return 0, fmt.Errorf("acquire: %w", err)
	}
	var wg sync.WaitGroup
	for _, job := range jobs {
		job := job
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.process(ctx, job)
		}()
	}
	wg.Wait()
	return len(jobs), nil
}

// process implements the executor contract (§4.3): mark running, race the
// handler against the per-job timeout, classify failure, retry or
// dead-letter, and keep the active counter consistent for graceful
// shutdown's idle wait.
func (m *Manager) process(ctx context.Context, job *models.Job) {
	n := atomic.AddInt64(&m.active, 1)
	if m.otel != nil {
		m.otel.SetActiveJobs(int(n))
	}
	defer func() {
		n := atomic.AddInt64(&m.active, -1)
		if m.otel != nil {
			m.otel.SetActiveJobs(int(n))
		}
		if n == 0 {
			m.idleCond.Broadcast()
		}
	}()

	if m.otel != nil {
		var span trace.Span
		ctx, span = m.otel.StartSpan(ctx, "job.process",
			attribute.String("job.type", job.JobType),
			attribute.String("job.id", job.ID),
			attribute.String("job.channel", job.Channel),
		)
		defer func() { telemetry.EndSpan(span, nil) }()
	}

	log := m.logger.WithCorrelationId(job.ID)
	if m.growth != nil {
		if err := m.growth.MarkRunning(ctx, job.ID); err != nil {
			log.Debug().Err(err).Msg("growth side-record mark-running failed (non-fatal)")
		}
	}

	m.mu.RLock()
	handler, ok := m.handlers[job.JobType]
	m.mu.RUnlock()

	jobCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	var (
		result map[string]any
		err    error
	)
	if !ok {
		err = common.Classify(interfaces.CategoryValidation, "", fmt.Errorf("no handler registered for job type %q", job.JobType))
	} else {
		result, err = m.runHandler(jobCtx, handler, job)
	}
	duration := time.Since(start)
	durationMS := duration.Milliseconds()

	if err == nil {
		if m.otel != nil {
			m.otel.RecordJobSuccess(job.JobType, duration)
		}
		m.onSuccess(ctx, job, result, durationMS, log)
		return
	}
	if m.otel != nil {
		classification := common.ClassifyError(err)
		retry := classification.Retryable && job.Attempts+1 < job.MaxAttempts
		m.otel.RecordJobFailure(job.JobType, string(classification.Category), duration, retry)
	}
	m.onFailure(ctx, job, err, durationMS, log)
}

// runHandler races the handler goroutine against the context deadline so a
// handler that ignores ctx cancellation still surfaces as a timeout error
// rather than hanging the worker forever.
func (m *Manager) runHandler(ctx context.Context, h HandlerFunc, job *models.Job) (result map[string]any, err error) {
	type outcome struct {
		result map[string]any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())}
			}
		}()
		res, herr := h(ctx, job)
		done <- outcome{result: res, err: herr}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, common.Classify(interfaces.CategoryTimeout, "", fmt.Errorf("job %s timed out after %s", job.ID, m.timeout))
	}
}

func (m *Manager) onSuccess(ctx context.Context, job *models.Job, result map[string]any, durationMS int64, log *common.Logger) {
	if err := m.storage.JobQueueStore().Complete(ctx, job.ID, result, durationMS); err != nil {
		log.Error().Err(err).Msg("failed to record job completion")
		return
	}
	if m.growth != nil {
		if err := m.growth.MarkCompleted(ctx, job.ID); err != nil {
			log.Debug().Err(err).Msg("growth side-record mark-completed failed (non-fatal)")
		}
	}
	log.Debug().Str("job_type", job.JobType).Int64("duration_ms", durationMS).Msg("job completed")
}

func (m *Manager) onFailure(ctx context.Context, job *models.Job, execErr error, durationMS int64, log *common.Logger) {
	classification := common.ClassifyError(execErr)
	attempts := job.Attempts + 1
	retry := classification.Retryable && attempts < job.MaxAttempts

	var scheduledFor *time.Time
	if retry {
		t := time.Now().Add(time.Duration(common.Backoff(attempts)) * time.Second)
		scheduledFor = &t
	}

	if err := m.storage.JobQueueStore().Fail(ctx, job.ID, classification, retry, scheduledFor); err != nil {
		log.Error().Err(err).Msg("failed to record job failure")
		return
	}

	if !retry && job.ArticleID != "" {
		if err := m.storage.ArticleStore().SetStatus(ctx, job.ArticleID, "draft"); err != nil {
			log.Warn().Err(err).Str("article_id", job.ArticleID).Msg("failed to reset article status after dead-letter")
		}
	}

	if m.growth != nil {
		var gerr error
		if retry {
			gerr = m.growth.MarkPending(ctx, job.ID)
		} else {
			gerr = m.growth.MarkFailed(ctx, job.ID)
		}
		if gerr != nil {
			log.Debug().Err(gerr).Msg("growth side-record failure mirror failed (non-fatal)")
		}
	}

	logEvt := log.Warn()
	if !retry {
		logEvt = log.Error()
	}
	logEvt.
		Str("job_type", job.JobType).
		Str("category", string(classification.Category)).
		Bool("retry", retry).
		Int("attempts", attempts).
		Int64("duration_ms", durationMS).
		Err(execErr).
		Msg("job failed")
}

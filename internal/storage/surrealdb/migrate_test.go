package surrealdb

import (
	"context"
	"testing"

	"github.com/domainpress/pipeline/internal/common"
)

func TestRunMigrations_AppliesAndRecordsEach(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	logger := common.NewLogger("error")
	settings := NewSettingsStore(db, logger)

	if err := runMigrations(ctx, logger, db, settings); err != nil {
		t.Fatalf("runMigrations: %v", err)
	}

	for _, m := range migrations {
		v, err := settings.Get(ctx, appliedMigrationKey(m.Name))
		if err != nil {
			t.Fatalf("migration %s not recorded as applied: %v", m.Name, err)
		}
		if v != "applied" {
			t.Fatalf("migration %s recorded with unexpected value %q", m.Name, v)
		}
	}
}

func TestRunMigrations_SkipsAlreadyApplied(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	logger := common.NewLogger("error")
	settings := NewSettingsStore(db, logger)

	if err := runMigrations(ctx, logger, db, settings); err != nil {
		t.Fatalf("first runMigrations: %v", err)
	}

	// A second run must be a no-op: no migration should re-execute or error,
	// even though none of the Run funcs are naturally idempotent beyond
	// their own "IF NOT EXISTS" guards.
	if err := runMigrations(ctx, logger, db, settings); err != nil {
		t.Fatalf("second runMigrations: %v", err)
	}
}

package surrealdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/domainpress/pipeline/internal/common"
	"github.com/domainpress/pipeline/internal/interfaces"
)

// settingsKV mirrors the system_kv shape the teacher's InternalStore used for
// global runtime settings, repurposed here for feature flags and other
// queue-wide configuration that isn't part of the domain model.
type settingsKV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SettingsStore implements interfaces.SettingsStore using SurrealDB.
type SettingsStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewSettingsStore(db *surrealdb.DB, logger *common.Logger) *SettingsStore {
	return &SettingsStore{db: db, logger: logger}
}

func (s *SettingsStore) Get(ctx context.Context, key string) (string, error) {
	kv, err := surrealdb.Select[settingsKV](ctx, s.db, surrealmodels.NewRecordID("settings", key))
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	if kv == nil {
		return "", errors.New("setting not found")
	}
	return kv.Value, nil
}

func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	kv := settingsKV{Key: key, Value: value}
	sql := "UPSERT $rid CONTENT $kv"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("settings", key), "kv": kv}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]settingsKV](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("failed to set setting after retries: %w", lastErr)
}

var _ interfaces.SettingsStore = (*SettingsStore)(nil)

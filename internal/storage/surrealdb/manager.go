package surrealdb

import (
	"context"
	"fmt"
	"os"

	"github.com/surrealdb/surrealdb.go"

	"github.com/domainpress/pipeline/internal/common"
	"github.com/domainpress/pipeline/internal/interfaces"
)

// Manager implements interfaces.StorageManager using SurrealDB.
type Manager struct {
	db       *surrealdb.DB
	logger   *common.Logger
	dataPath string

	jobQueueStore     *JobQueueStore
	articleStore      *ArticleStore
	domainStore       *DomainStore
	promotionStore    *PromotionStore
	underwritingStore *UnderwritingStore
	mediaStore        *MediaStore
	reviewTaskStore   *ReviewTaskStore
	credentialStore   *CredentialStore
	accountingStore   *AccountingStore
	settingsStore     *SettingsStore
}

// NewManager creates a new StorageManager connected to SurrealDB.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	ctx := context.Background()

	db, err := surrealdb.New(config.Storage.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Storage.User,
		"pass": config.Storage.Pass,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Storage.Namespace, config.Storage.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	tables := []string{
		"queue", "article", "domain",
		"promotionCampaign", "promotionJob", "promotionEvent", "domainChannelProfile",
		"domainResearch", "reviewTask", "previewBuild", "acquisitionEvent",
		"mediaAsset", "mediaUsage", "mediaModerationTask",
		"channelCredential", "apiCallLog", "revision", "settings",
	}
	for _, table := range tables {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}

	dataPath := config.Storage.DataPath
	if dataPath == "" {
		dataPath = "data/pipeline"
	}
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data path: %w", err)
	}

	m := &Manager{
		db:       db,
		logger:   logger,
		dataPath: dataPath,
	}

	m.jobQueueStore = NewJobQueueStore(db, logger, config.Queue.GetLeaseDuration())
	m.articleStore = NewArticleStore(db, logger)
	m.domainStore = NewDomainStore(db, logger)
	m.promotionStore = NewPromotionStore(db, logger)
	m.underwritingStore = NewUnderwritingStore(db, logger)
	m.mediaStore = NewMediaStore(db, logger)
	m.reviewTaskStore = NewReviewTaskStore(db, logger)
	m.credentialStore = NewCredentialStore(db, logger, config.Auth.JWTSecret, config.Auth.GetTokenExpiry())
	m.accountingStore = NewAccountingStore(db, logger)
	m.settingsStore = NewSettingsStore(db, logger)

	if err := runMigrations(ctx, logger, db, m.settingsStore); err != nil {
		return nil, fmt.Errorf("failed to apply schema migrations: %w", err)
	}

	logger.Info().
		Str("address", config.Storage.Address).
		Str("namespace", config.Storage.Namespace).
		Str("database", config.Storage.Database).
		Msg("SurrealDB storage manager initialized")

	return m, nil
}

func (m *Manager) JobQueueStore() interfaces.JobQueueStore         { return m.jobQueueStore }
func (m *Manager) ArticleStore() interfaces.ArticleStore           { return m.articleStore }
func (m *Manager) DomainStore() interfaces.DomainStore             { return m.domainStore }
func (m *Manager) PromotionStore() interfaces.PromotionStore       { return m.promotionStore }
func (m *Manager) UnderwritingStore() interfaces.UnderwritingStore { return m.underwritingStore }
func (m *Manager) MediaStore() interfaces.MediaStore               { return m.mediaStore }
func (m *Manager) ReviewTaskStore() interfaces.ReviewTaskStore     { return m.reviewTaskStore }
func (m *Manager) CredentialStore() interfaces.CredentialStore     { return m.credentialStore }
func (m *Manager) AccountingStore() interfaces.AccountingStore     { return m.accountingStore }
func (m *Manager) SettingsStore() interfaces.SettingsStore         { return m.settingsStore }

func (m *Manager) DataPath() string {
	return m.dataPath
}

func (m *Manager) Close() error {
	m.db.Close(context.Background())
	return nil
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)

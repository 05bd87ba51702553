// Package app wires storage, clients, and the job manager into a single
// runtime handle shared by cmd/vire-queue.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/domainpress/pipeline/internal/clients/channels"
	"github.com/domainpress/pipeline/internal/clients/evaluator"
	"github.com/domainpress/pipeline/internal/clients/flags"
	"github.com/domainpress/pipeline/internal/clients/gemini"
	"github.com/domainpress/pipeline/internal/clients/notify"
	"github.com/domainpress/pipeline/internal/clients/policy"
	"github.com/domainpress/pipeline/internal/clients/publishlock"
	"github.com/domainpress/pipeline/internal/common"
	"github.com/domainpress/pipeline/internal/interfaces"
	"github.com/domainpress/pipeline/internal/services/content"
	"github.com/domainpress/pipeline/internal/services/growth"
	"github.com/domainpress/pipeline/internal/services/jobmanager"
	"github.com/domainpress/pipeline/internal/services/jobmanager/telemetry"
	"github.com/domainpress/pipeline/internal/services/underwriting"
	"github.com/domainpress/pipeline/internal/storage/surrealdb"
)

// App holds all initialized services, clients, and configuration. It is the
// shared core used by cmd/vire-queue.
type App struct {
	Config  *common.Config
	Logger  *common.Logger
	Storage interfaces.StorageManager
	AI      interfaces.AIClient

	Manager    *jobmanager.Manager
	Supervisor *jobmanager.Supervisor
	Telemetry  *telemetry.Provider

	ContentScheduler     *jobmanager.ContentScheduler
	MaintenanceScheduler *jobmanager.MaintenanceScheduler

	httpServer  *http.Server
	redisLock   *publishlock.RedisLock
	StartupTime time.Time
}

func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp loads configuration, initializes storage and clients, registers
// every job handler, and returns a ready-to-start App. configPath may be
// empty, in which case PIPELINE_CONFIG and the binary directory are tried
// before falling back to a development default.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	binDir := getBinaryDir()
	if configPath == "" {
		configPath = os.Getenv("PIPELINE_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "pipeline.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/pipeline.toml"
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if config.Storage.DataPath != "" && !filepath.IsAbs(config.Storage.DataPath) {
		config.Storage.DataPath = filepath.Join(binDir, config.Storage.DataPath)
	}
	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}

	logger := common.NewLogger(config.Logging.Level)

	storageManager, err := surrealdb.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	ctx := context.Background()

	var aiClient interfaces.AIClient
	if config.Clients.Gemini.APIKey != "" {
		geminiOpts := []gemini.ClientOption{
			gemini.WithModel(config.Clients.Gemini.Model),
			gemini.WithLogger(logger),
		}
		if config.Clients.Gemini.MaxURLs > 0 {
			geminiOpts = append(geminiOpts, gemini.WithMaxURLs(config.Clients.Gemini.MaxURLs))
		}
		if config.Clients.Gemini.RateLimitRPS > 0 {
			geminiOpts = append(geminiOpts, gemini.WithRateLimit(config.Clients.Gemini.RateLimitRPS))
		}
		gc, gerr := gemini.NewClient(ctx, config.Clients.Gemini.APIKey, geminiOpts...)
		if gerr != nil {
			logger.Warn().Err(gerr).Msg("failed to initialize Gemini client, pipeline stages will error until one is configured")
		} else {
			aiClient = gc
		}
	} else {
		logger.Warn().Msg("clients.gemini.api_key not configured, pipeline stages will error until one is configured")
	}

	featureFlags := flags.NewSettingsFlags(storageManager.SettingsStore())
	notifications := notify.NewLogNotifications(logger)
	policyEvaluator := policy.NewDenylistEvaluator(nil, nil)
	domainEvaluator := evaluator.NewHeuristicEvaluator()
	channelAdapter := channels.NewLoggingAdapter(logger)

	var publishLock interfaces.PublishLock
	var redisLock *publishlock.RedisLock
	if config.Redis.Addr != "" {
		redisClient, rerr := publishlock.Dial(ctx, config.Redis.Addr, config.Redis.Password, config.Redis.DB)
		if rerr != nil {
			logger.Warn().Err(rerr).Msg("failed to connect to redis, publish lock disabled")
		} else {
			redisLock = publishlock.NewRedisLock(redisClient, logger)
			publishLock = redisLock
		}
	}

	manager := jobmanager.NewManager(storageManager, logger, config.Queue, config.JobManager)

	telemetryProvider := telemetry.NewProvider(config.Metrics.OTLPEndpoint)
	manager.SetTelemetry(telemetryProvider)

	content.Register(manager, content.Deps{
		Storage: storageManager,
		AI:      aiClient,
		Flags:   featureFlags,
		Logger:  logger,
	})
	underwriting.Register(manager, underwriting.Deps{
		Storage:   storageManager,
		Evaluator: domainEvaluator,
		Flags:     featureFlags,
		Logger:    logger,
	})
	growth.Register(manager, growth.Deps{
		Storage: storageManager,
		Channel: channelAdapter,
		Policy:  policyEvaluator,
		AI:      aiClient,
		Notify:  notifications,
		Flags:   featureFlags,
		Lock:    publishLock,
		Config:  &config.Growth,
		Logger:  logger,
	})

	supervisor := jobmanager.NewSupervisor(manager, logger)
	contentScheduler := jobmanager.NewContentScheduler(manager, logger)
	maintenanceScheduler := jobmanager.NewMaintenanceScheduler(manager, logger)

	a := &App{
		Config:               config,
		Logger:               logger,
		Storage:              storageManager,
		AI:                   aiClient,
		Manager:              manager,
		Supervisor:           supervisor,
		Telemetry:            telemetryProvider,
		ContentScheduler:     contentScheduler,
		MaintenanceScheduler: maintenanceScheduler,
		redisLock:            redisLock,
		StartupTime:          startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("app initialized")
	return a, nil
}

// Start launches the worker supervisor, both cron schedulers, and the
// /metrics and /health HTTP endpoints.
func (a *App) Start(ctx context.Context) error {
	a.Supervisor.Start(ctx)
	if err := a.ContentScheduler.Start(""); err != nil {
		return fmt.Errorf("start content scheduler: %w", err)
	}
	if err := a.MaintenanceScheduler.Start(""); err != nil {
		return fmt.Errorf("start maintenance scheduler: %w", err)
	}
	a.startHTTPServer()
	return nil
}

// startHTTPServer launches the /metrics and /health endpoints in the
// background; a bind failure is logged, not fatal, since the worker loop
// itself does not depend on it.
func (a *App) startHTTPServer() {
	addr := fmt.Sprintf("%s:%d", a.Config.Metrics.Host, a.Config.Metrics.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.buildMetricsMux(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	a.httpServer = srv

	go func() {
		a.Logger.Info().Str("addr", addr).Msg("starting metrics/health HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Error().Err(err).Msg("metrics/health HTTP server failed")
		}
	}()
}

func (a *App) buildMetricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Telemetry.Handler())
	mux.HandleFunc("/health", a.healthHandler)
	return mux
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	health := a.Manager.GetWorkerHealth()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"worker": health,
	})
}

// Close stops the HTTP server, both schedulers, the worker supervisor, and
// storage, in that order.
func (a *App) Close() {
	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("metrics/health HTTP server shutdown failed")
		}
	}
	if a.Telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Telemetry.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}
	if a.ContentScheduler != nil {
		a.ContentScheduler.Stop()
	}
	if a.MaintenanceScheduler != nil {
		a.MaintenanceScheduler.Stop()
	}
	if a.Supervisor != nil {
		a.Supervisor.RequestStop()
		a.Supervisor.WaitForStop()
	}
	if a.Storage != nil {
		a.Storage.Close()
	}
	if a.redisLock != nil {
		if err := a.redisLock.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("redis connection close failed")
		}
	}
}

package common

import (
	"testing"
	"time"
)

func TestConfig_DefaultStorageAddress(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Storage.Address != "ws://localhost:8000/rpc" {
		t.Errorf("Storage.Address default = %q, want %q", cfg.Storage.Address, "ws://localhost:8000/rpc")
	}
}

func TestConfig_StorageAddressEnvOverride(t *testing.T) {
	t.Setenv("VIRE_STORAGE_ADDRESS", "ws://db.internal:8000/rpc")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Storage.Address != "ws://db.internal:8000/rpc" {
		t.Errorf("Storage.Address = %q after env override, want %q", cfg.Storage.Address, "ws://db.internal:8000/rpc")
	}
}

func TestConfig_ValidateRequired_AllMissing(t *testing.T) {
	cfg := &Config{}
	missing := cfg.ValidateRequired()
	if len(missing) != 2 {
		t.Errorf("expected 2 missing fields, got %d: %v", len(missing), missing)
	}
}

func TestConfig_ValidateRequired_AllPresent(t *testing.T) {
	cfg := &Config{
		Storage: StorageConfig{Address: "ws://localhost:8000/rpc"},
		Auth:    AuthConfig{JWTSecret: "real-secret-value"},
	}
	missing := cfg.ValidateRequired()
	if len(missing) != 0 {
		t.Errorf("expected 0 missing fields, got %d: %v", len(missing), missing)
	}
}

func TestConfig_ValidateRequired_JWTDefaultRejectedInProduction(t *testing.T) {
	cfg := &Config{
		Environment: "production",
		Storage:     StorageConfig{Address: "ws://localhost:8000/rpc"},
		Auth:        AuthConfig{JWTSecret: "dev-jwt-secret-change-in-production"},
	}
	missing := cfg.ValidateRequired()
	if len(missing) != 1 {
		t.Errorf("expected 1 missing field (jwt_secret), got %d: %v", len(missing), missing)
	}
}

func TestConfig_GeminiKeyEnvOverride(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gem-from-env")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Clients.Gemini.APIKey != "gem-from-env" {
		t.Errorf("Gemini.APIKey = %q, want %q", cfg.Clients.Gemini.APIKey, "gem-from-env")
	}
}

func TestConfig_AuthEnvOverrides(t *testing.T) {
	t.Setenv("VIRE_AUTH_JWT_SECRET", "secret-from-env")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Auth.JWTSecret != "secret-from-env" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "secret-from-env")
	}
}

func TestJobManagerConfig_GetWatcherStartupDelay_Default(t *testing.T) {
	cfg := &JobManagerConfig{}
	d := cfg.GetWatcherStartupDelay()
	if d != 10*time.Second {
		t.Errorf("GetWatcherStartupDelay() = %v, want 10s", d)
	}
}

func TestJobManagerConfig_GetWatcherStartupDelay_Configured(t *testing.T) {
	cfg := &JobManagerConfig{WatcherStartupDelay: "5s"}
	d := cfg.GetWatcherStartupDelay()
	if d != 5*time.Second {
		t.Errorf("GetWatcherStartupDelay() = %v, want 5s", d)
	}
}

func TestJobManagerConfig_GetWatcherStartupDelay_InvalidFallsBack(t *testing.T) {
	cfg := &JobManagerConfig{WatcherStartupDelay: "not-a-duration"}
	d := cfg.GetWatcherStartupDelay()
	if d != 10*time.Second {
		t.Errorf("GetWatcherStartupDelay() = %v, want 10s (fallback for invalid)", d)
	}
}

func TestJobManagerConfig_GetWatcherStartupDelay_EnvOverride(t *testing.T) {
	t.Setenv("VIRE_WATCHER_STARTUP_DELAY", "3s")
	cfg := &JobManagerConfig{} // no config value set
	d := cfg.GetWatcherStartupDelay()
	if d != 3*time.Second {
		t.Errorf("GetWatcherStartupDelay() = %v, want 3s (env override)", d)
	}
}

func TestJobManagerConfig_GetHeavyJobLimit_Default(t *testing.T) {
	cfg := &JobManagerConfig{}
	n := cfg.GetHeavyJobLimit()
	if n != 1 {
		t.Errorf("GetHeavyJobLimit() = %d, want 1", n)
	}
}

func TestJobManagerConfig_GetHeavyJobLimit_Configured(t *testing.T) {
	cfg := &JobManagerConfig{HeavyJobLimit: 3}
	n := cfg.GetHeavyJobLimit()
	if n != 3 {
		t.Errorf("GetHeavyJobLimit() = %d, want 3", n)
	}
}

func TestJobManagerConfig_GetHeavyJobLimit_ZeroFallsBack(t *testing.T) {
	cfg := &JobManagerConfig{HeavyJobLimit: 0}
	n := cfg.GetHeavyJobLimit()
	if n != 1 {
		t.Errorf("GetHeavyJobLimit() = %d, want 1 (fallback for zero)", n)
	}
}

func TestConfig_NewDefault_JobManagerFields(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.JobManager.WatcherStartupDelay != "10s" {
		t.Errorf("WatcherStartupDelay default = %q, want %q", cfg.JobManager.WatcherStartupDelay, "10s")
	}
	if cfg.JobManager.HeavyJobLimit != 1 {
		t.Errorf("HeavyJobLimit default = %d, want 1", cfg.JobManager.HeavyJobLimit)
	}
}

func TestConfig_HeavyJobLimitEnvOverride(t *testing.T) {
	t.Setenv("VIRE_JOBS_HEAVY_LIMIT", "2")
	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)
	if cfg.JobManager.HeavyJobLimit != 2 {
		t.Errorf("HeavyJobLimit = %d after env override, want 2", cfg.JobManager.HeavyJobLimit)
	}
}

func TestConfig_WatcherStartupDelayEnvOverride(t *testing.T) {
	t.Setenv("VIRE_WATCHER_STARTUP_DELAY", "30s")
	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)
	if cfg.JobManager.WatcherStartupDelay != "30s" {
		t.Errorf("WatcherStartupDelay = %q after env override, want %q", cfg.JobManager.WatcherStartupDelay, "30s")
	}
}

func TestGrowthConfig_DefaultDailyCap_EnvOverride(t *testing.T) {
	t.Setenv("GROWTH_DEFAULT_DAILY_CAP", "4")
	cfg := &GrowthConfig{}
	if got := cfg.GetDefaultDailyCap(); got != 4 {
		t.Errorf("GetDefaultDailyCap() = %d, want 4", got)
	}
}

func TestGrowthConfig_JitterBounds_ClampedToDayRange(t *testing.T) {
	cfg := &GrowthConfig{DefaultMinJitterMinutes: -10, DefaultMaxJitterMinutes: 5000}
	min, max := cfg.GetJitterBounds()
	if min != 0 {
		t.Errorf("min jitter = %d, want 0", min)
	}
	if max != 1440 {
		t.Errorf("max jitter = %d, want 1440", max)
	}
}

func TestGrowthConfig_MediaReviewSweepUserLimit_ClampedToMax(t *testing.T) {
	cfg := &GrowthConfig{MediaReviewSweepUserLimit: 1000}
	if got := cfg.GetMediaReviewSweepUserLimit(); got != 500 {
		t.Errorf("GetMediaReviewSweepUserLimit() = %d, want 500", got)
	}
}

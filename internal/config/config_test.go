package config

import (
	"testing"
	"time"
)

// TestLoad_Defaults は必須環境変数のみでデフォルト値が適用されることを検証する。
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/deckman_test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %s, want 8080", cfg.ServerPort)
	}
	if cfg.DefaultTimezone != "Atlantic/Madeira" {
		t.Errorf("DefaultTimezone = %s, want Atlantic/Madeira", cfg.DefaultTimezone)
	}
	if cfg.DefaultSendTime != "08:00" {
		t.Errorf("DefaultSendTime = %s, want 08:00", cfg.DefaultSendTime)
	}
	if cfg.RecordMaxAttempts != 3 {
		t.Errorf("RecordMaxAttempts = %d, want 3", cfg.RecordMaxAttempts)
	}
	if cfg.SRSGrowth != 0.7 {
		t.Errorf("SRSGrowth = %v, want 0.7", cfg.SRSGrowth)
	}
	if cfg.SRSEaseDelta != 0.05 {
		t.Errorf("SRSEaseDelta = %v, want 0.05", cfg.SRSEaseDelta)
	}
	if cfg.SRSSmallDelta != 0.02 {
		t.Errorf("SRSSmallDelta = %v, want 0.02", cfg.SRSSmallDelta)
	}
	if cfg.SRSLargeDelta != 0.05 {
		t.Errorf("SRSLargeDelta = %v, want 0.05", cfg.SRSLargeDelta)
	}
	if cfg.RemindInterval != 5*time.Minute {
		t.Errorf("RemindInterval = %v, want 5m", cfg.RemindInterval)
	}
	if len(cfg.AdminIDs) != 0 {
		t.Errorf("AdminIDs = %v, want empty", cfg.AdminIDs)
	}
}

// TestLoad_MissingRequired はDATABASE_URL未設定でエラーになることを検証する。
func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Error("expected an error when DATABASE_URL is not set")
	}
}

// TestLoad_Overrides は環境変数による上書きを検証する。
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/deckman_test")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ADMIN_IDS", "42, 99")
	t.Setenv("SRS_GROWTH", "0.5")
	t.Setenv("SRS_EASE_DELTA", "0.08")
	t.Setenv("SRS_SMALL_DELTA", "0.04")
	t.Setenv("SRS_LARGE_DELTA", "0.09")
	t.Setenv("REMIND_INTERVAL", "1m")
	t.Setenv("RATE_LIMIT_ACTION", "60")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %s, want 9090", cfg.ServerPort)
	}
	if len(cfg.AdminIDs) != 2 || cfg.AdminIDs[0] != 42 || cfg.AdminIDs[1] != 99 {
		t.Errorf("AdminIDs = %v, want [42 99]", cfg.AdminIDs)
	}
	if cfg.SRSGrowth != 0.5 {
		t.Errorf("SRSGrowth = %v, want 0.5", cfg.SRSGrowth)
	}
	if cfg.SRSEaseDelta != 0.08 {
		t.Errorf("SRSEaseDelta = %v, want 0.08", cfg.SRSEaseDelta)
	}
	if cfg.SRSSmallDelta != 0.04 {
		t.Errorf("SRSSmallDelta = %v, want 0.04", cfg.SRSSmallDelta)
	}
	if cfg.SRSLargeDelta != 0.09 {
		t.Errorf("SRSLargeDelta = %v, want 0.09", cfg.SRSLargeDelta)
	}
	if cfg.RemindInterval != time.Minute {
		t.Errorf("RemindInterval = %v, want 1m", cfg.RemindInterval)
	}
	if cfg.RateLimitAction != 60 {
		t.Errorf("RateLimitAction = %d, want 60", cfg.RateLimitAction)
	}
}

// TestLoad_InvalidAdminIDs は数値でないADMIN_IDSがエラーになることを検証する。
func TestLoad_InvalidAdminIDs(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/deckman_test")
	t.Setenv("ADMIN_IDS", "42,alice")

	if _, err := Load(); err == nil {
		t.Error("expected an error for non-numeric ADMIN_IDS")
	}
}

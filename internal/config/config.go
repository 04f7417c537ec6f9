package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort string

	// Admin
	AdminIDs []int64

	// User defaults
	DefaultTimezone string
	DefaultSendTime string
	DefaultLocale   string

	// Scheduling
	RecordMaxAttempts int
	SRSGrowth         float64
	SRSAbitFactor     float64
	SRSLapsePenalty   float64
	SRSEaseDelta      float64
	SRSSmallDelta     float64
	SRSLargeDelta     float64
	SRSMinStability   float64

	// Remind worker
	RemindInterval      time.Duration
	RemindMaxConcurrent int
	NotifyWebhookURL    string
	NotifyTimeout       time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitAction  int
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	adminIDs, err := parseAdminIDs(os.Getenv("ADMIN_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_IDS: %w", err)
	}
	cfg.AdminIDs = adminIDs

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.DefaultTimezone = getEnvString("DEFAULT_TZ", "Atlantic/Madeira")
	cfg.DefaultSendTime = getEnvString("DEFAULT_TIME", "08:00")
	cfg.DefaultLocale = getEnvString("DEFAULT_LOCALE", "en")
	cfg.RecordMaxAttempts = getEnvInt("RECORD_MAX_ATTEMPTS", 3)
	cfg.SRSGrowth = getEnvFloat("SRS_GROWTH", 0.7)
	cfg.SRSAbitFactor = getEnvFloat("SRS_ABIT_FACTOR", 1.05)
	cfg.SRSLapsePenalty = getEnvFloat("SRS_LAPSE_PENALTY", 0.75)
	cfg.SRSEaseDelta = getEnvFloat("SRS_EASE_DELTA", 0.05)
	cfg.SRSSmallDelta = getEnvFloat("SRS_SMALL_DELTA", 0.02)
	cfg.SRSLargeDelta = getEnvFloat("SRS_LARGE_DELTA", 0.05)
	cfg.SRSMinStability = getEnvFloat("SRS_MIN_STABILITY", 0.25)
	cfg.RemindInterval = getEnvDuration("REMIND_INTERVAL", 5*time.Minute)
	cfg.RemindMaxConcurrent = getEnvInt("REMIND_MAX_CONCURRENT", 10)
	cfg.NotifyWebhookURL = getEnvString("NOTIFY_WEBHOOK_URL", "")
	cfg.NotifyTimeout = getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAction = getEnvInt("RATE_LIMIT_ACTION", 30)

	return cfg, nil
}

// parseAdminIDs はカンマ区切りのユーザーID一覧をパースする。
func parseAdminIDs(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		id, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not a numeric user ID: %q", trimmed)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

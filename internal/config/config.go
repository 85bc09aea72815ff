// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Token
	TokenSecret string
	TokenTTL    time.Duration

	// Bootstrap admin
	AllowBootstrapAdmin    bool
	BootstrapAdminUsername string
	BootstrapAdminPassword string

	// Mail
	MailTimeout  time.Duration
	MailHeloName string

	// Upload
	UploadDir      string
	UploadMaxBytes int64

	// Rate Limit (req/min/IP)
	RateLimitPublic int
	RateLimitLogin  int

	// Planner
	PlanLimit int

	// Feed import
	FeedImportTimeout time.Duration
	FeedImportMaxSize int64

	// Server
	ServerPort string
	BaseURL    string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// ENV_FILE（既定は .env）が存在すれば先に読み込むが、既存の環境変数は上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := loadEnvFile(getEnvString("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.TokenSecret = os.Getenv("TOKEN_SECRET")
	if cfg.TokenSecret == "" {
		missing = append(missing, "TOKEN_SECRET")
	}

	cfg.BaseURL = strings.TrimRight(os.Getenv("BASE_URL"), "/")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", 24*time.Hour)
	cfg.AllowBootstrapAdmin = getEnvBool("ALLOW_BOOTSTRAP_ADMIN", false)
	cfg.BootstrapAdminUsername = getEnvString("BOOTSTRAP_ADMIN_USERNAME", "admin")
	cfg.BootstrapAdminPassword = getEnvString("BOOTSTRAP_ADMIN_PASSWORD", "admin123")
	cfg.MailTimeout = getEnvDuration("MAIL_TIMEOUT", 10*time.Second)
	cfg.MailHeloName = getEnvString("MAIL_HELO_NAME", "skyline.local")
	cfg.UploadDir = getEnvString("UPLOAD_DIR", "uploads")
	cfg.UploadMaxBytes = getEnvInt64("UPLOAD_MAX_BYTES", 10<<20)
	cfg.RateLimitPublic = getEnvInt("RATE_LIMIT_PUBLIC", 30)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.PlanLimit = getEnvInt("PLAN_LIMIT", 2)
	cfg.FeedImportTimeout = getEnvDuration("FEED_IMPORT_TIMEOUT", 10*time.Second)
	cfg.FeedImportMaxSize = getEnvInt64("FEED_IMPORT_MAX_SIZE", 5<<20)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

// loadEnvFile は.envファイルを読み込む。ファイルが存在しない場合は何もしない。
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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

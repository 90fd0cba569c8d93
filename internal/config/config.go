// Package config provides environment-based configuration management
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends for conversation state and dedup markers
const (
	BackendRedis   = "redis"
	BackendMariaDB = "mariadb"
)

// DBConfig holds database connection parameters
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// RedisConfig holds Redis connection parameters
type RedisConfig struct {
	Addr     string // Format: host:port
	Password string
	DB       int
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Port           int
	LogLevel       string // debug | info | warn | error
	LogFormat      string // text | json
	AdminToken     string // Catalog admin API and /ws/logs
	CampaignAPIKey string // api_key for /send-* triggers
}

// WhatsAppConfig holds Cloud API credentials and webhook secrets
type WhatsAppConfig struct {
	AccessToken      string
	PhoneID          string
	APIVersion       string
	BaseURL          string
	VerifyToken      string // For webhook verification handshake
	AppSecret        string // Optional; enables X-Hub-Signature-256 validation
	Timeout          time.Duration
	TemplateLanguage string
}

// StoreConfig selects where states and dedup markers live
type StoreConfig struct {
	Backend string // redis | mariadb
}

// RetentionConfig controls expiry windows and the watchdog
type RetentionConfig struct {
	StateTTL         time.Duration
	DedupRetention   time.Duration
	WatchdogInterval time.Duration
	DiskThreshold    float64
	DiskPath         string
}

// Config aggregates all configuration sections
type Config struct {
	DB        DBConfig
	Redis     RedisConfig
	App       AppConfig
	WhatsApp  WhatsAppConfig
	Store     StoreConfig
	Retention RetentionConfig
}

// LoadConfig reads configuration from environment variables, after loading
// a .env file from the working directory when one exists.
// Returns error if critical variables are missing or malformed.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	// Database Configuration
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnvAsInt("DB_PORT", 3306)
	cfg.DB.User = getEnv("DB_USER", "walkmate")
	cfg.DB.Password = getEnv("DB_PASS", "")
	cfg.DB.Database = getEnv("DB_NAME", "walkmate")

	if cfg.DB.Password == "" {
		return nil, fmt.Errorf("DB_PASS environment variable is required")
	}

	// Redis Configuration
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", 0)

	// Application Configuration
	cfg.App.Port = getEnvAsInt("APP_PORT", 8080)
	cfg.App.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.App.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	cfg.App.AdminToken = getEnv("ADMIN_TOKEN", "")
	cfg.App.CampaignAPIKey = getEnv("API_KEY", "")

	// WhatsApp Configuration
	cfg.WhatsApp.AccessToken = getEnv("WHATSAPP_TOKEN", "")
	cfg.WhatsApp.PhoneID = getEnv("WHATSAPP_PHONE_ID", "")
	cfg.WhatsApp.APIVersion = getEnv("GRAPH_API_VERSION", "v21.0")
	cfg.WhatsApp.BaseURL = getEnv("GRAPH_API_BASE_URL", "https://graph.facebook.com")
	cfg.WhatsApp.VerifyToken = getEnv("VERIFY_TOKEN", "")
	cfg.WhatsApp.AppSecret = getEnv("WHATSAPP_APP_SECRET", "")
	cfg.WhatsApp.TemplateLanguage = getEnv("TEMPLATE_LANG", "en_US")

	var err error
	if cfg.WhatsApp.Timeout, err = getEnvAsDuration("WHATSAPP_HTTP_TIMEOUT", 20*time.Second); err != nil {
		return nil, err
	}

	// Store Configuration
	cfg.Store.Backend = strings.ToLower(getEnv("STORE_BACKEND", BackendRedis))
	if cfg.Store.Backend != BackendRedis && cfg.Store.Backend != BackendMariaDB {
		return nil, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendRedis, BackendMariaDB, cfg.Store.Backend)
	}

	// Retention Configuration
	if cfg.Retention.StateTTL, err = getEnvAsDuration("STATE_TTL", 600*time.Second); err != nil {
		return nil, err
	}
	if cfg.Retention.DedupRetention, err = getEnvAsDuration("DEDUP_RETENTION", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Retention.WatchdogInterval, err = getEnvAsDuration("WATCHDOG_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	cfg.Retention.DiskThreshold = getEnvAsFloat("WATCHDOG_DISK_THRESHOLD", 70)
	cfg.Retention.DiskPath = getEnv("WATCHDOG_DISK_PATH", ".")

	return cfg, nil
}

// RequireWhatsApp checks the credentials needed to talk to the Cloud API
func (c *Config) RequireWhatsApp() error {
	if c.WhatsApp.AccessToken == "" {
		return fmt.Errorf("WHATSAPP_TOKEN environment variable is required")
	}
	if c.WhatsApp.PhoneID == "" {
		return fmt.Errorf("WHATSAPP_PHONE_ID environment variable is required")
	}
	return nil
}

// RequireWebhook checks the values needed to serve the webhook
func (c *Config) RequireWebhook() error {
	if err := c.RequireWhatsApp(); err != nil {
		return err
	}
	if c.WhatsApp.VerifyToken == "" {
		return fmt.Errorf("VERIFY_TOKEN environment variable is required")
	}
	return nil
}

// SlogLevel maps LOG_LEVEL to a slog level
func (c *AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetDSN returns MariaDB connection string
func (c *DBConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

// getEnv reads environment variable with fallback default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads environment variable as integer with fallback default
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsFloat reads environment variable as float with fallback default
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("10m") or plain seconds ("600")
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, value)
	}
	return d, nil
}

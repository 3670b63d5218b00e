package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Market data provider
	Naver NaverConfig

	// Analysis engine
	Analysis AnalysisConfig

	// Scheduler
	Scheduler SchedulerConfig

	// Notification
	Notify NotifyConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// NaverConfig holds Naver Finance configuration
type NaverConfig struct {
	BaseURL    string
	ChartURL   string
	RatePerSec int
}

// AnalysisConfig holds task orchestrator settings
type AnalysisConfig struct {
	ProfilePath       string        // YAML scoring profile (optional)
	ProgressInterval  time.Duration // progress simulator tick
	HeartbeatInterval time.Duration // execution owner liveness signal
	StaleAfter        time.Duration // processing tasks silent this long are abandoned
	WaitTimeout       time.Duration // bounded wait for generate-then-wait flows
	Workers           int           // batch / screening fan-out width
}

// SchedulerConfig holds scheduler settings
type SchedulerConfig struct {
	Enabled     bool
	LockBackend string // memory, redis
	LockTTL     time.Duration

	PriceRefresh   string
	HistoryRefresh string
	BatchAnalysis  string
	Maintenance    string
	DailyReport    string
}

// NotifyConfig holds outbound notification settings
type NotifyConfig struct {
	WebhookURL string
	ReportUser string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Naver: NaverConfig{
			BaseURL:    getEnv("NAVER_BASE_URL", "https://finance.naver.com"),
			ChartURL:   getEnv("NAVER_CHART_URL", "https://fchart.stock.naver.com"),
			RatePerSec: getEnvAsInt("NAVER_RATE_PER_SEC", 10),
		},

		Analysis: AnalysisConfig{
			ProfilePath:       getEnv("ANALYSIS_CONFIG", ""),
			ProgressInterval:  getEnvAsDuration("ANALYSIS_PROGRESS_INTERVAL", "2s"),
			HeartbeatInterval: getEnvAsDuration("ANALYSIS_HEARTBEAT_INTERVAL", "15s"),
			StaleAfter:        getEnvAsDuration("ANALYSIS_STALE_AFTER", "2m"),
			WaitTimeout:       getEnvAsDuration("ANALYSIS_WAIT_TIMEOUT", "2m"),
			Workers:           getEnvAsInt("ANALYSIS_WORKERS", 5),
		},

		Scheduler: SchedulerConfig{
			Enabled:        getEnvAsBool("SCHEDULER_ENABLED", true),
			LockBackend:    getEnv("SCHEDULER_LOCK_BACKEND", "memory"),
			LockTTL:        getEnvAsDuration("SCHEDULER_LOCK_TTL", "2h"),
			PriceRefresh:   getEnv("SCHEDULE_PRICE_REFRESH", "0 */5 9-15 * * MON-FRI"),
			HistoryRefresh: getEnv("SCHEDULE_HISTORY_REFRESH", "0 30 16 * * MON-FRI"),
			BatchAnalysis:  getEnv("SCHEDULE_BATCH_ANALYSIS", "0 0 18 * * MON-FRI"),
			Maintenance:    getEnv("SCHEDULE_MAINTENANCE", "0 15 * * * *"),
			DailyReport:    getEnv("SCHEDULE_DAILY_REPORT", "0 0 20 * * MON-FRI"),
		},

		Notify: NotifyConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
			ReportUser: getEnv("NOTIFY_REPORT_USER", "ops"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// HasDatabase reports whether a PostgreSQL URL is configured
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	// development may run on the in-memory store
	if c.Env == "production" && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required in production")
	}

	if c.Scheduler.LockBackend != "memory" && c.Scheduler.LockBackend != "redis" {
		return fmt.Errorf("SCHEDULER_LOCK_BACKEND must be one of: memory, redis")
	}

	if c.Scheduler.LockBackend == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("SCHEDULER_LOCK_BACKEND=redis requires REDIS_ENABLED=true")
	}

	if c.Analysis.Workers <= 0 {
		return fmt.Errorf("ANALYSIS_WORKERS must be positive")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

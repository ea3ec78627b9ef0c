package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// Config holds service configuration.
type Config struct {
	Store       string
	DatabaseURL string
	DBMaxConns  int32
	SQLitePath  string
	AutoMigrate bool

	ServerAddr      string
	TokenSecret     string
	TokenTTL        time.Duration
	RateLimit       int64
	RateLimitPeriod time.Duration
	SSEHeartbeat    time.Duration

	SweepInterval time.Duration
	SweepBatch    int

	WebhookURL     string
	WebhookTimeout time.Duration
	NotifyAttempts int
	NotifyBackoff  time.Duration

	TermsTemplate string
	PolicyFile    string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment. A .env file in the working
// directory (or the files named in ENV_FILE) is applied first without
// overriding variables that are already set.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "engagements")
		pass := getenv("POSTGRES_PASSWORD", "engagements_pass")
		db := getenv("POSTGRES_DB", "engagements")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	cfg := &Config{
		Store:           strings.ToLower(getenv("STORE", StorePostgres)),
		DatabaseURL:     dsn,
		DBMaxConns:      int32(parseInt(getenv("DB_MAX_CONNS", "10"), 10)),
		SQLitePath:      getenv("SQLITE_PATH", "engagements.db"),
		AutoMigrate:     parseBool(getenv("AUTO_MIGRATE", "true"), true),
		ServerAddr:      getenv("SERVER_ADDR", "0.0.0.0:8080"),
		TokenSecret:     os.Getenv("AUTH_TOKEN_SECRET"),
		TokenTTL:        parseDuration(getenv("AUTH_TOKEN_TTL", "24h"), 24*time.Hour),
		RateLimit:       int64(parseInt(getenv("RATE_LIMIT", "120"), 120)),
		RateLimitPeriod: parseDuration(getenv("RATE_LIMIT_PERIOD", "1m"), time.Minute),
		SSEHeartbeat:    parseDuration(getenv("SSE_HEARTBEAT", "15s"), 15*time.Second),
		SweepInterval:   parseDuration(getenv("SWEEP_INTERVAL", "30s"), 30*time.Second),
		SweepBatch:      parseInt(getenv("SWEEP_BATCH", "100"), 100),
		WebhookURL:      os.Getenv("NOTIFY_WEBHOOK_URL"),
		WebhookTimeout:  parseDuration(getenv("NOTIFY_WEBHOOK_TIMEOUT", "10s"), 10*time.Second),
		NotifyAttempts:  parseInt(getenv("NOTIFY_ATTEMPTS", "3"), 3),
		NotifyBackoff:   parseDuration(getenv("NOTIFY_BACKOFF", "500ms"), 500*time.Millisecond),
		TermsTemplate:   os.Getenv("TERMS_TEMPLATE"),
		PolicyFile:      os.Getenv("LIFECYCLE_POLICY_FILE"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogFormat:       getenv("LOG_FORMAT", "json"),
	}

	switch cfg.Store {
	case StorePostgres, StoreSQLite, StoreMemory:
	default:
		return nil, fmt.Errorf("unknown STORE %q (want postgres, sqlite or memory)", cfg.Store)
	}
	return cfg, nil
}

func loadDotEnv() error {
	if files := os.Getenv("ENV_FILE"); files != "" {
		if err := godotenv.Load(strings.Split(files, ",")...); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

func parseBool(val string, def bool) bool {
	if val == "" {
		return def
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return b
}

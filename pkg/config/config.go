package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds service configuration.
type Config struct {
	AppEnv   string
	LogLevel string
	HTTPAddr string

	// DatabaseURL selects the store: empty means local SQLite at SQLitePath,
	// a postgres:// URL selects PostgreSQL.
	DatabaseURL string
	SQLitePath  string
	DBMaxConns  int
	AutoMigrate bool

	// RedisURL backs hold reservations; empty keeps them in memory.
	RedisURL string

	// RabbitMQURL backs domain-event publishing and the calendar sync feed;
	// empty wires the in-process bus.
	RabbitMQURL   string
	SyncQueueName string

	HoldTTL           time.Duration
	HoldSweepInterval time.Duration

	ActorIdleTimeout time.Duration
	ActorMailboxSize int

	OutboxPollInterval     time.Duration
	OutboxBatchSize        int
	OutboxMaxRetries       int
	OutboxRetentionDays    int
	OutboxCleanupInterval  time.Duration
	OutboxProcessorEnabled bool

	// CalDAV target for committed bookings; empty URL logs bookings only.
	CalDAVURL          string
	CalDAVUsername     string
	CalDAVPassword     string
	CalDAVCalendarPath string

	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration

	TierGateAllowAll bool
	TierGateAllowed  []string

	MCPAddr      string
	MCPAuthToken string
}

// Load reads configuration from the environment, after loading a .env file
// when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTPAddr: getEnv("HTTP_ADDR", "0.0.0.0:8080"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("SQLITE_PATH", ""),
		DBMaxConns:  getIntEnv("DB_MAX_CONNS", 10),
		AutoMigrate: getBoolEnv("AUTO_MIGRATE", true),

		RedisURL: getEnv("REDIS_URL", ""),

		RabbitMQURL:   getEnv("RABBITMQ_URL", ""),
		SyncQueueName: getEnv("SYNC_QUEUE_NAME", "meridian.calendar-sync"),

		HoldTTL:           getDurationEnv("HOLD_TTL", 5*time.Minute),
		HoldSweepInterval: getDurationEnv("HOLD_SWEEP_INTERVAL", 15*time.Second),

		ActorIdleTimeout: getDurationEnv("ACTOR_IDLE_TIMEOUT", 10*time.Minute),
		ActorMailboxSize: getIntEnv("ACTOR_MAILBOX_SIZE", 64),

		OutboxPollInterval:     getDurationEnv("OUTBOX_POLL_INTERVAL", 250*time.Millisecond),
		OutboxBatchSize:        getIntEnv("OUTBOX_BATCH_SIZE", 100),
		OutboxMaxRetries:       getIntEnv("OUTBOX_MAX_RETRIES", 5),
		OutboxRetentionDays:    getIntEnv("OUTBOX_RETENTION_DAYS", 14),
		OutboxCleanupInterval:  getDurationEnv("OUTBOX_CLEANUP_INTERVAL", 24*time.Hour),
		OutboxProcessorEnabled: getBoolEnv("OUTBOX_PROCESSOR_ENABLED", true),

		CalDAVURL:          getEnv("CALDAV_URL", ""),
		CalDAVUsername:     getEnv("CALDAV_USERNAME", ""),
		CalDAVPassword:     getEnv("CALDAV_PASSWORD", ""),
		CalDAVCalendarPath: getEnv("CALDAV_CALENDAR_PATH", ""),

		BreakerMaxFailures: uint32(getIntEnv("BREAKER_MAX_FAILURES", 5)),
		BreakerOpenTimeout: getDurationEnv("BREAKER_OPEN_TIMEOUT", 30*time.Second),

		TierGateAllowAll: getBoolEnv("TIER_GATE_ALLOW_ALL", true),
		TierGateAllowed:  getListEnv("TIER_GATE_ALLOWED_USERS"),

		MCPAddr:      getEnv("MCP_ADDR", "0.0.0.0:8082"),
		MCPAuthToken: getEnv("MCP_AUTH_TOKEN", ""),
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

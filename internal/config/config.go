package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL and TELEGRAM_BOT_TOKEN
// are required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// Database
	DatabaseURL    string
	DBMaxConns     int32
	DBMinConns     int32
	MigrationsPath string

	// Telegram bot
	TelegramToken          string
	TelegramProxy          string
	TelegramConnectTimeout time.Duration
	TelegramReadTimeout    time.Duration
	TelegramPolling        bool

	// Outbound Telegram calls per second (sends and deletes share one bucket each)
	RateLimit int

	// Dispatch workers draining the job queue
	Workers int

	// Delay between consecutive push batches created in one demand scan
	DispatchStagger time.Duration

	// Push lifecycle
	ExpirePushMinute int
	EndShotPushHours int
	ReminderTTL      time.Duration
	CancelDelay      time.Duration

	// Cache backend: "memory", "postgres" or "redis"
	CacheBackend string
	RedisURL     string

	// Cron expressions for the periodic triggers
	Timezone            string
	SendPushSchedule    string
	ExpirePushSchedule  string
	ShotPushSchedule    string
	CloseByViewSchedule string
	TriggerTimeout      time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		CORSOrigins:     getList("CORS_ALLOW_ORIGINS", []string{"http://localhost:3000"}),

		DatabaseURL:    dbURL,
		DBMaxConns:     int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:     int32(getInt("DB_MIN_CONNS", 5)),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "file://migrations"),

		TelegramToken:          token,
		TelegramProxy:          proxyURL(getEnv("PROXY4TELEGRAM_HOST", ""), getInt("PROXY4TELEGRAM_PORT", 0)),
		TelegramConnectTimeout: getDuration("TELEGRAM_CONNECT_TIMEOUT", 3050*time.Millisecond),
		TelegramReadTimeout:    getDuration("TELEGRAM_READ_TIMEOUT", 27*time.Second),
		TelegramPolling:        getBool("TELEGRAM_POLLING", false),

		RateLimit: getInt("TELEGRAM_RATE_LIMIT", 25),
		Workers:   getInt("DISPATCH_WORKERS", 4),

		DispatchStagger: getDuration("DISPATCH_STAGGER", 5*time.Second),

		ExpirePushMinute: getInt("EXPIRE_PUSH_MINUTE", 30),
		EndShotPushHours: getInt("END_SHOT_PUSH_TIME_HOUR", 24),
		ReminderTTL:      getDuration("SHOT_PUSH_TTL", 4*time.Hour),
		CancelDelay:      getDuration("CANCEL_DELAY", time.Second),

		CacheBackend: getEnv("CACHE_BACKEND", "memory"),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379/0"),

		Timezone:            getEnv("TIME_ZONE", "Asia/Tehran"),
		SendPushSchedule:    getEnv("SEND_PUSH_SCHEDULE", "*/10 * * * *"),
		ExpirePushSchedule:  getEnv("EXPIRE_PUSH_SCHEDULE", "*/5 * * * *"),
		ShotPushSchedule:    getEnv("SEND_PUSH_SHOT_SCHEDULE", "0 * * * *"),
		CloseByViewSchedule: getEnv("CLOSE_CAMPAIGN_BY_MAX_VIEW_SCHEDULE", "*/15 * * * *"),
		TriggerTimeout:      getDuration("TRIGGER_TIMEOUT", 10*time.Minute),
	}

	if cfg.ExpirePushMinute <= 0 {
		return nil, fmt.Errorf("EXPIRE_PUSH_MINUTE must be positive, got %d", cfg.ExpirePushMinute)
	}
	switch cfg.CacheBackend {
	case "memory", "postgres", "redis":
	default:
		return nil, fmt.Errorf("CACHE_BACKEND must be memory, postgres or redis, got %q", cfg.CacheBackend)
	}

	return cfg, nil
}

// ExpireWindow is the age after which an unanswered push is expired.
func (c *Config) ExpireWindow() time.Duration {
	return time.Duration(c.ExpirePushMinute) * time.Minute
}

// ShotPushHorizon is how close to its end a campaign must be for reminders.
func (c *Config) ShotPushHorizon() time.Duration {
	return time.Duration(c.EndShotPushHours) * time.Hour
}

// Location resolves Timezone, falling back to UTC when it is unknown.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func proxyURL(host string, port int) string {
	if host == "" {
		return ""
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

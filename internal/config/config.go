package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Monitor      MonitorConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32

	// AllowMemoryStore lets the process run without a DSN on a process-local
	// store that nothing outside the process can populate.
	AllowMemoryStore bool
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines how internal callers authenticate.
type AuthConfig struct {
	JWTSecret       string
	Issuer          string
	TokenTTLMinutes int
}

// NotificationConfig controls alert fan-out.
type NotificationConfig struct {
	EmailFrom            string
	WebhookURL           string
	RedisStream          string
	QueueSize            int
	Workers              int
	SendTimeout          time.Duration
	EscalationRecipients []string
}

// MonitorConfig controls the sweep scheduler.
type MonitorConfig struct {
	AllInterval           time.Duration
	BusinessHoursInterval time.Duration
	CriticalInterval      time.Duration
	DedupResetSchedule    string
	DefaultTimezone       string
	HolidaysFile          string
	ShutdownTimeout       time.Duration
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	appEnv := getEnv("APP_ENV", "development")
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-sla"),
			Env:                   appEnv,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:              os.Getenv("POSTGRES_DSN"),
			MaxConns:         maxConns,
			MinConns:         minConns,
			RunMigrations:    runMigrations,
			MigrationsDir:    getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec:   connMaxIdle,
			ConnMaxLifeSec:   connMaxLife,
			AllowMemoryStore: getEnvAsBool("SLA_ALLOW_MEMORY_STORE", appEnv == "development"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("AUTH_JWT_SECRET", "dev-secret"),
			Issuer:          getEnv("AUTH_JWT_ISSUER", "helpdesk"),
			TokenTTLMinutes: getEnvAsInt("AUTH_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			EmailFrom:            getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL:           getEnv("NOTIFY_WEBHOOK_URL", ""),
			RedisStream:          getEnv("NOTIFY_REDIS_STREAM", "sla:alerts"),
			QueueSize:            getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
			Workers:              getEnvAsInt("NOTIFY_WORKERS", 2),
			SendTimeout:          getEnvAsDuration("NOTIFY_SEND_TIMEOUT", 5*time.Second),
			EscalationRecipients: getEnvAsList("NOTIFY_ESCALATION_RECIPIENTS", nil),
		},
		Monitor: MonitorConfig{
			AllInterval:           getEnvAsDuration("SLA_SWEEP_ALL_INTERVAL", 5*time.Minute),
			BusinessHoursInterval: getEnvAsDuration("SLA_SWEEP_BUSINESS_INTERVAL", 2*time.Minute),
			CriticalInterval:      getEnvAsDuration("SLA_SWEEP_CRITICAL_INTERVAL", time.Minute),
			DedupResetSchedule:    getEnv("SLA_DEDUP_RESET_SCHEDULE", "@hourly"),
			DefaultTimezone:       getEnv("SLA_DEFAULT_TIMEZONE", "UTC"),
			HolidaysFile:          os.Getenv("SLA_HOLIDAYS_FILE"),
			ShutdownTimeout:       getEnvAsDuration("SLA_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
	}

	if err := cfg.Monitor.validate(); err != nil {
		return nil, err
	}
	if _, err := time.LoadLocation(cfg.Monitor.DefaultTimezone); err != nil {
		return nil, fmt.Errorf("invalid SLA_DEFAULT_TIMEZONE: %w", err)
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// TokenTTL returns the lifetime of issued service tokens.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

func (m MonitorConfig) validate() error {
	for name, interval := range map[string]time.Duration{
		"SLA_SWEEP_ALL_INTERVAL":      m.AllInterval,
		"SLA_SWEEP_BUSINESS_INTERVAL": m.BusinessHoursInterval,
		"SLA_SWEEP_CRITICAL_INTERVAL": m.CriticalInterval,
	} {
		if interval < 0 {
			return fmt.Errorf("invalid %s: must not be negative", name)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var items []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

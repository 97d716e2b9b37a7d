package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv        string
	LogLevel      string
	EncryptionKey string
	Version       string

	// Database. An empty or non-postgres DATABASE_URL selects SQLite and
	// local mode.
	DatabaseURL string
	LocalMode   bool

	// Redis
	RedisURL string

	// RabbitMQ
	RabbitMQURL string

	// HTTP
	HTTPAddr       string
	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int

	// Payments
	PaymentProvider      string
	PaymentWebhookSecret string
	PaymentReturnURL     string
	StripeAPIKey         string
	StripeWebhookSecret  string

	// Calendar
	CalendarProvider      string
	CalendarID            string
	CalendarTZ            string
	GoogleClientID        string
	GoogleClientSecret    string
	GoogleRefreshToken    string
	CalDAVURL             string
	CalDAVUsername        string
	CalDAVPassword        string
	CalendarRetryAttempts int
	CalendarRetryBase     time.Duration
	CalendarRetryMax      time.Duration
	CalendarBreakerFails  int
	CalendarBreakerOpen   time.Duration
	CalendarImportEvery   time.Duration

	// Email
	SendGridAPIKey string
	EmailFrom      string
	OpsEmail       string

	// Timeouts
	UseCaseTimeout time.Duration
	WebhookTimeout time.Duration

	// Availability
	AvailabilityRetention time.Duration

	// Outbox
	OutboxPollInterval     time.Duration
	OutboxBatchSize        int
	OutboxMaxRetries       int
	OutboxRetentionDays    int
	OutboxCleanupInterval  time.Duration
	OutboxProcessorEnabled bool

	// Worker
	WorkerHealthAddr string

	// MCP
	MCPAddr      string
	MCPAuthToken string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	databaseURL := getEnv("DATABASE_URL", "")
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EncryptionKey: getEnv("THERAPIA_ENCRYPTION_KEY", ""),
		Version:       getEnv("THERAPIA_VERSION", "dev"),

		DatabaseURL: databaseURL,
		LocalMode:   !isPostgresURL(databaseURL),
		RedisURL:    getEnv("REDIS_URL", ""),
		RabbitMQURL: getEnv("RABBITMQ_URL", ""),

		HTTPAddr:       getEnv("HTTP_ADDR", "0.0.0.0:8080"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		RateLimitRPS:   getFloatEnv("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 20),

		PaymentProvider:      getEnv("PAYMENT_PROVIDER", "fake"),
		PaymentWebhookSecret: getEnv("PAYMENT_WEBHOOK_SECRET", ""),
		PaymentReturnURL:     getEnv("PAYMENT_RETURN_URL", "http://localhost:8080/booking/return"),
		StripeAPIKey:         getEnv("STRIPE_API_KEY", ""),
		StripeWebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),

		CalendarProvider:      getEnv("CALENDAR_PROVIDER", "mock"),
		CalendarID:            getEnv("CALENDAR_ID", "primary"),
		CalendarTZ:            getEnv("CALENDAR_TZ", "UTC"),
		GoogleClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRefreshToken:    getEnv("GOOGLE_REFRESH_TOKEN", ""),
		CalDAVURL:             getEnv("CALDAV_URL", ""),
		CalDAVUsername:        getEnv("CALDAV_USERNAME", ""),
		CalDAVPassword:        getEnv("CALDAV_PASSWORD", ""),
		CalendarRetryAttempts: getIntEnv("CALENDAR_RETRY_ATTEMPTS", 3),
		CalendarRetryBase:     getDurationEnv("CALENDAR_RETRY_BASE", 200*time.Millisecond),
		CalendarRetryMax:      getDurationEnv("CALENDAR_RETRY_MAX", 5*time.Second),
		CalendarBreakerFails:  getIntEnv("CALENDAR_BREAKER_FAILURES", 5),
		CalendarBreakerOpen:   getDurationEnv("CALENDAR_BREAKER_TIMEOUT", 30*time.Second),
		CalendarImportEvery:   getDurationEnv("CALENDAR_IMPORT_INTERVAL", 5*time.Minute),

		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:      getEnv("EMAIL_FROM", ""),
		OpsEmail:       getEnv("OPS_EMAIL", ""),

		UseCaseTimeout: getDurationEnv("USE_CASE_TIMEOUT", 10*time.Second),
		WebhookTimeout: getDurationEnv("WEBHOOK_TIMEOUT", 10*time.Second),

		AvailabilityRetention: getDurationEnv("AVAILABILITY_RETENTION", 30*24*time.Hour),

		OutboxPollInterval:     getDurationEnv("OUTBOX_POLL_INTERVAL", 200*time.Millisecond),
		OutboxBatchSize:        getIntEnv("OUTBOX_BATCH_SIZE", 100),
		OutboxMaxRetries:       getIntEnv("OUTBOX_MAX_RETRIES", 5),
		OutboxRetentionDays:    getIntEnv("OUTBOX_RETENTION_DAYS", 14),
		OutboxCleanupInterval:  getDurationEnv("OUTBOX_CLEANUP_INTERVAL", 24*time.Hour),
		OutboxProcessorEnabled: getBoolEnv("OUTBOX_PROCESSOR_ENABLED", true),

		WorkerHealthAddr: getEnv("WORKER_HEALTH_ADDR", "0.0.0.0:8081"),

		MCPAddr:      getEnv("MCP_ADDR", "0.0.0.0:8082"),
		MCPAuthToken: getEnv("MCP_AUTH_TOKEN", ""),
	}
	if cfg.LocalMode && cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultSQLitePath()
	}

	return cfg, nil
}

// Validate reports missing settings. Production requires every secret;
// development only the encryption key.
func (c *Config) Validate() error {
	var errs []error
	if c.EncryptionKey == "" {
		errs = append(errs, errors.New("THERAPIA_ENCRYPTION_KEY is required"))
	}
	switch c.PaymentProvider {
	case "fake", "stripe":
	default:
		errs = append(errs, fmt.Errorf("PAYMENT_PROVIDER %q is not one of fake, stripe", c.PaymentProvider))
	}
	switch c.CalendarProvider {
	case "mock", "google", "caldav", "apple":
	default:
		errs = append(errs, fmt.Errorf("CALENDAR_PROVIDER %q is not one of mock, google, caldav, apple", c.CalendarProvider))
	}
	if c.PaymentProvider == "stripe" && c.StripeAPIKey == "" {
		errs = append(errs, errors.New("STRIPE_API_KEY is required for the stripe provider"))
	}

	if c.IsProduction() {
		if c.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		}
		if c.PaymentProvider == "fake" {
			errs = append(errs, errors.New("the fake payment provider cannot run in production"))
		}
		if c.PaymentProvider == "stripe" && c.StripeWebhookSecret == "" {
			errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required in production"))
		}
		if c.LocalMode {
			errs = append(errs, errors.New("DATABASE_URL must point at postgres in production"))
		}
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required in production"))
		}
		if c.RabbitMQURL == "" {
			errs = append(errs, errors.New("RABBITMQ_URL is required in production"))
		}
	}
	return errors.Join(errs...)
}

// WebhookSecret returns the secret webhooks of the configured provider are
// signed with.
func (c *Config) WebhookSecret() string {
	if c.PaymentProvider == "stripe" {
		return c.StripeWebhookSecret
	}
	return c.PaymentWebhookSecret
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func isPostgresURL(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

func defaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".therapia", "therapia.db")
	}
	return filepath.Join(home, ".therapia", "therapia.db")
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

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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

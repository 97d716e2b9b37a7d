package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnvVars clears all Therapia-related environment variables.
func clearEnvVars(t *testing.T) {
	t.Helper()
	envVars := []string{
		"APP_ENV", "LOG_LEVEL", "THERAPIA_ENCRYPTION_KEY", "THERAPIA_VERSION",
		"DATABASE_URL", "REDIS_URL", "RABBITMQ_URL",
		"HTTP_ADDR", "JWT_SECRET", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"PAYMENT_PROVIDER", "PAYMENT_WEBHOOK_SECRET", "PAYMENT_RETURN_URL",
		"STRIPE_API_KEY", "STRIPE_WEBHOOK_SECRET",
		"CALENDAR_PROVIDER", "CALENDAR_ID", "CALENDAR_TZ",
		"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "GOOGLE_REFRESH_TOKEN",
		"CALDAV_URL", "CALDAV_USERNAME", "CALDAV_PASSWORD",
		"CALENDAR_RETRY_ATTEMPTS", "CALENDAR_RETRY_BASE", "CALENDAR_RETRY_MAX",
		"CALENDAR_BREAKER_FAILURES", "CALENDAR_BREAKER_TIMEOUT", "CALENDAR_IMPORT_INTERVAL",
		"SENDGRID_API_KEY", "EMAIL_FROM", "OPS_EMAIL",
		"USE_CASE_TIMEOUT", "WEBHOOK_TIMEOUT", "AVAILABILITY_RETENTION",
		"OUTBOX_POLL_INTERVAL", "OUTBOX_BATCH_SIZE", "OUTBOX_MAX_RETRIES",
		"OUTBOX_RETENTION_DAYS", "OUTBOX_CLEANUP_INTERVAL", "OUTBOX_PROCESSOR_ENABLED",
		"WORKER_HEALTH_ADDR", "MCP_ADDR", "MCP_AUTH_TOKEN",
	}
	for _, v := range envVars {
		if old, ok := os.LookupEnv(v); ok {
			t.Cleanup(func() { os.Setenv(v, old) })
		}
		os.Unsetenv(v)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnvVars(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Application defaults
	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.EncryptionKey)

	// Local mode is enabled when no DATABASE_URL is set
	assert.True(t, cfg.LocalMode)
	assert.Equal(t, filepath.Join(".therapia", "therapia.db"), lastTwo(cfg.DatabaseURL))

	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr)
	assert.Equal(t, 10.0, cfg.RateLimitRPS)
	assert.Equal(t, 20, cfg.RateLimitBurst)

	assert.Equal(t, "fake", cfg.PaymentProvider)
	assert.Equal(t, "mock", cfg.CalendarProvider)
	assert.Equal(t, "primary", cfg.CalendarID)
	assert.Equal(t, 3, cfg.CalendarRetryAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.CalendarRetryBase)
	assert.Equal(t, 5*time.Second, cfg.CalendarRetryMax)

	assert.Equal(t, 10*time.Second, cfg.UseCaseTimeout)
	assert.Equal(t, 30*24*time.Hour, cfg.AvailabilityRetention)

	// Outbox defaults
	assert.Equal(t, 200*time.Millisecond, cfg.OutboxPollInterval)
	assert.Equal(t, 100, cfg.OutboxBatchSize)
	assert.Equal(t, 5, cfg.OutboxMaxRetries)
	assert.True(t, cfg.OutboxProcessorEnabled)

	assert.Equal(t, "0.0.0.0:8081", cfg.WorkerHealthAddr)
	assert.Equal(t, "0.0.0.0:8082", cfg.MCPAddr)
}

func lastTwo(path string) string {
	return filepath.Join(filepath.Base(filepath.Dir(path)), filepath.Base(path))
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://therapia@db:5432/therapia")
	t.Setenv("PAYMENT_PROVIDER", "stripe")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_1")
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "fake-secret")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("OUTBOX_PROCESSOR_ENABLED", "false")
	t.Setenv("CALENDAR_RETRY_BASE", "1s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
	assert.False(t, cfg.LocalMode)
	assert.Equal(t, "postgres://therapia@db:5432/therapia", cfg.DatabaseURL)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.False(t, cfg.OutboxProcessorEnabled)
	assert.Equal(t, time.Second, cfg.CalendarRetryBase)
	assert.Equal(t, "whsec_1", cfg.WebhookSecret())
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("OUTBOX_BATCH_SIZE", "many")
	t.Setenv("USE_CASE_TIMEOUT", "soon")
	t.Setenv("OUTBOX_PROCESSOR_ENABLED", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.OutboxBatchSize)
	assert.Equal(t, 10*time.Second, cfg.UseCaseTimeout)
	assert.True(t, cfg.OutboxProcessorEnabled)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			AppEnv:           "production",
			EncryptionKey:    "key",
			DatabaseURL:      "postgres://db/therapia",
			RedisURL:         "redis://cache:6379/0",
			RabbitMQURL:      "amqp://mq:5672/",
			JWTSecret:        "secret",
			PaymentProvider:  "stripe",
			StripeAPIKey:     "sk_test",
			CalendarProvider: "google",

			StripeWebhookSecret: "whsec",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "complete production config", mutate: func(*Config) {}},
		{name: "local development", mutate: func(c *Config) {
			*c = Config{AppEnv: "development", EncryptionKey: "key", PaymentProvider: "fake", CalendarProvider: "mock", LocalMode: true}
		}},
		{name: "missing encryption key", mutate: func(c *Config) { c.EncryptionKey = "" }, wantErr: "THERAPIA_ENCRYPTION_KEY"},
		{name: "missing jwt secret", mutate: func(c *Config) { c.JWTSecret = "" }, wantErr: "JWT_SECRET"},
		{name: "fake payments in production", mutate: func(c *Config) { c.PaymentProvider = "fake" }, wantErr: "fake payment provider"},
		{name: "unknown payment provider", mutate: func(c *Config) { c.PaymentProvider = "paypal" }, wantErr: "PAYMENT_PROVIDER"},
		{name: "unknown calendar provider", mutate: func(c *Config) { c.CalendarProvider = "outlook" }, wantErr: "CALENDAR_PROVIDER"},
		{name: "stripe without key", mutate: func(c *Config) { c.StripeAPIKey = "" }, wantErr: "STRIPE_API_KEY"},
		{name: "sqlite in production", mutate: func(c *Config) { c.LocalMode = true }, wantErr: "postgres"},
		{name: "missing redis", mutate: func(c *Config) { c.RedisURL = "" }, wantErr: "REDIS_URL"},
		{name: "missing rabbitmq", mutate: func(c *Config) { c.RabbitMQURL = "" }, wantErr: "RABBITMQ_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

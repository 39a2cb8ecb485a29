package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/duetboard/duetboard/pkg/observability"
	"github.com/duetboard/duetboard/pkg/webhooks"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Webhook delivery configuration
	Webhooks webhooks.Options

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds SQLite database configuration
type DatabaseConfig struct {
	Path string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Webhooks:      loadWebhookConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("DUETBOARD_HOST", "0.0.0.0"),
		Port:            getEnv("DUETBOARD_PORT", "8080"),
		ReadTimeout:     getEnvDuration("DUETBOARD_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("DUETBOARD_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("DUETBOARD_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("DUETBOARD_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("DUETBOARD_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads database configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Path: getEnv("DUETBOARD_DB_PATH", "duetboard.db"),
	}
}

// loadWebhookConfig loads webhook delivery configuration from environment
func loadWebhookConfig() webhooks.Options {
	opts := webhooks.DefaultOptions()

	if maxRetries := getEnvInt("DUETBOARD_WEBHOOK_MAX_RETRIES", -1); maxRetries >= 0 {
		opts.MaxRetries = maxRetries
	}
	if retryDelay := getEnvDuration("DUETBOARD_WEBHOOK_RETRY_DELAY", 0); retryDelay > 0 {
		opts.RetryDelay = retryDelay
	}
	if maxRetryDelay := getEnvDuration("DUETBOARD_WEBHOOK_MAX_RETRY_DELAY", 0); maxRetryDelay > 0 {
		opts.MaxRetryDelay = maxRetryDelay
	}
	if timeout := getEnvDuration("DUETBOARD_WEBHOOK_TIMEOUT", 0); timeout > 0 {
		opts.Timeout = timeout
	}
	if concurrency := getEnvInt("DUETBOARD_WEBHOOK_MAX_CONCURRENT", 0); concurrency > 0 {
		opts.MaxConcurrentDeliveries = concurrency
	}
	if rateLimit := getEnvInt("DUETBOARD_WEBHOOK_RATE_LIMIT_PER_MINUTE", -1); rateLimit >= 0 {
		opts.RateLimitPerMinute = rateLimit
	}
	if deadLetter := getEnv("DUETBOARD_WEBHOOK_DEAD_LETTER_ENABLED", ""); deadLetter != "" {
		opts.EnableDeadLetterQueue = strings.ToLower(deadLetter) == "true" || deadLetter == "1"
	}

	return opts
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("DUETBOARD_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("DUETBOARD_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("DUETBOARD_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("DUETBOARD_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("DUETBOARD_OTEL_SERVICE_NAME", "duetboard"),
		OTelServiceVersion: getEnv("DUETBOARD_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("DUETBOARD_OTEL_INSECURE", true),
	}
}

// OTel returns the OpenTelemetry configuration for tracing setup
func (c *Config) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.Observability.OTelEnabled,
		Endpoint:       c.Observability.OTelEndpoint,
		ServiceName:    c.Observability.OTelServiceName,
		ServiceVersion: c.Observability.OTelServiceVersion,
		Insecure:       c.Observability.OTelInsecure,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate database config
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	// Validate webhook config
	if c.Webhooks.MaxRetries < 0 {
		return fmt.Errorf("webhook max retries must be non-negative")
	}
	if c.Webhooks.Timeout <= 0 {
		return fmt.Errorf("webhook timeout must be positive")
	}
	if c.Webhooks.MaxConcurrentDeliveries <= 0 {
		return fmt.Errorf("webhook max concurrent deliveries must be positive")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	DUETBOARD_HOST="0.0.0.0"
//	DUETBOARD_PORT="8080"
//	DUETBOARD_HEALTH_PORT="9090"
//	DUETBOARD_READ_TIMEOUT="15s"
//	DUETBOARD_WRITE_TIMEOUT="15s"
//	DUETBOARD_SHUTDOWN_TIMEOUT="30s"
//
// Database settings:
//
//	DUETBOARD_DB_PATH="duetboard.db"
//
// Webhook delivery settings:
//
//	DUETBOARD_WEBHOOK_MAX_RETRIES="3"
//	DUETBOARD_WEBHOOK_RETRY_DELAY="1s"
//	DUETBOARD_WEBHOOK_MAX_RETRY_DELAY="5m"
//	DUETBOARD_WEBHOOK_TIMEOUT="30s"
//	DUETBOARD_WEBHOOK_MAX_CONCURRENT="10"
//	DUETBOARD_WEBHOOK_RATE_LIMIT_PER_MINUTE="60"
//	DUETBOARD_WEBHOOK_DEAD_LETTER_ENABLED="true"
//
// Observability settings:
//
//	DUETBOARD_LOG_LEVEL="info"  # debug, info, warn, error
//	DUETBOARD_METRICS_ENABLED="true"
//	DUETBOARD_OTEL_ENABLED="false"
//	DUETBOARD_OTEL_ENDPOINT="localhost:4317"
//	DUETBOARD_OTEL_SERVICE_NAME="duetboard"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Database: %s\n", cfg.Database.Path)
//
// # Related Packages
//
//   - pkg/webhooks: Uses webhook delivery configuration
//   - pkg/observability: Uses observability configuration
package config

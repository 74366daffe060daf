package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/quill/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       StorageConfig
	Auth          AuthConfig
	Gateway       GatewayConfig
	Billing       BillingConfig
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

// StorageConfig holds database and Redis configuration
type StorageConfig struct {
	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration

	RedisURL      string
	RedisPassword string
	RedisDB       int
}

// AuthConfig holds session token and password hashing settings
type AuthConfig struct {
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
}

// GatewayConfig holds payment gateway credentials
type GatewayConfig struct {
	BaseURL   string
	KeyID     string
	KeySecret string
}

// BillingConfig holds plan catalog and sweep settings
type BillingConfig struct {
	PlansFile     string
	SweepSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

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
		Storage:       loadStorageConfig(),
		Auth:          loadAuthConfig(),
		Gateway:       loadGatewayConfig(),
		Billing:       loadBillingConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("QUILL_HOST", "0.0.0.0"),
		Port:            getEnv("QUILL_PORT", "8080"),
		ReadTimeout:     getEnvDuration("QUILL_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("QUILL_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("QUILL_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("QUILL_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("QUILL_HEALTH_PORT", "9090"),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		PostgresURL:      getEnv("QUILL_POSTGRES_URL", ""),
		PostgresMaxConns: getEnvInt("QUILL_POSTGRES_MAX_CONNS", 25),
		PostgresMinConns: getEnvInt("QUILL_POSTGRES_MIN_CONNS", 5),
		PostgresTimeout:  getEnvDuration("QUILL_POSTGRES_TIMEOUT", 30*time.Second),
		RedisURL:         getEnv("QUILL_REDIS_URL", "localhost:6379"),
		RedisPassword:    getEnv("QUILL_REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("QUILL_REDIS_DB", 0),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:  getEnv("QUILL_JWT_SECRET", ""),
		TokenTTL:   getEnvDuration("QUILL_TOKEN_TTL", 7*24*time.Hour),
		BcryptCost: getEnvInt("QUILL_BCRYPT_COST", 12),
	}
}

func loadGatewayConfig() GatewayConfig {
	return GatewayConfig{
		BaseURL:   getEnv("QUILL_GATEWAY_URL", "https://api.gateway.example.com"),
		KeyID:     getEnv("QUILL_GATEWAY_KEY_ID", ""),
		KeySecret: getEnv("QUILL_GATEWAY_KEY_SECRET", ""),
	}
}

func loadBillingConfig() BillingConfig {
	return BillingConfig{
		PlansFile:     getEnv("QUILL_PLANS_FILE", ""),
		SweepSchedule: getEnv("QUILL_SWEEP_SCHEDULE", ""),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("QUILL_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("QUILL_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("QUILL_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("QUILL_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("QUILL_OTEL_SERVICE_NAME", "quill"),
		OTelServiceVersion: getEnv("QUILL_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("QUILL_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("QUILL_POSTGRES_URL is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("QUILL_JWT_SECRET is required")
	}
	if c.Gateway.KeyID == "" {
		return fmt.Errorf("QUILL_GATEWAY_KEY_ID is required")
	}
	if c.Gateway.KeySecret == "" {
		return fmt.Errorf("QUILL_GATEWAY_KEY_SECRET is required")
	}

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

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
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
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

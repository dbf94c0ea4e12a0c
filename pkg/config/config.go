package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caregate/caregate/pkg/inspect"
	"github.com/caregate/caregate/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Token         TokenConfig
	Redis         RedisConfig
	RateLimit     RateLimitConfig
	Inspect       InspectConfig
	Audit         AuditConfig
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

// TokenConfig holds JWT signing configuration
type TokenConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// RedisConfig holds the counter store configuration. An empty URL selects
// the in-process memory store.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// RateLimitConfig holds rate limiter configuration
type RateLimitConfig struct {
	// PolicyFile is an optional YAML file overlaying the built-in policies.
	PolicyFile string
	// FailOpen admits requests when the counter store is unreachable.
	FailOpen bool
	// BruteForceThreshold is the failed-attempt count that blocks an IP.
	BruteForceThreshold int64
}

// InspectConfig holds suspicious-input detector configuration
type InspectConfig struct {
	Mode inspect.Mode
	// TrackerThreshold is the suspicious-hit count an IP may accumulate
	// before the next hit blocks it.
	TrackerThreshold int
}

// AuditConfig selects and configures audit sinks.
type AuditConfig struct {
	// Backend is "file", "db", "both" or "none".
	Backend string
	FileDir string
	// PostgresURL is required for the db backend.
	PostgresURL   string
	RetentionDays int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
	// ErrorSink selects where captured errors go: "log" or "none".
	ErrorSink string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Token:         loadTokenConfig(),
		Redis:         loadRedisConfig(),
		RateLimit:     loadRateLimitConfig(),
		Inspect:       loadInspectConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("CAREGATE_HOST", "0.0.0.0"),
		Port:            getEnv("CAREGATE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("CAREGATE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("CAREGATE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("CAREGATE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("CAREGATE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("CAREGATE_HEALTH_PORT", "9090"),
	}
}

func loadTokenConfig() TokenConfig {
	return TokenConfig{
		Secret:     getEnv("CAREGATE_TOKEN_SECRET", ""),
		Issuer:     getEnv("CAREGATE_TOKEN_ISSUER", "caregate"),
		AccessTTL:  getEnvDuration("CAREGATE_ACCESS_TTL", 15*time.Minute),
		RefreshTTL: getEnvDuration("CAREGATE_REFRESH_TTL", 14*24*time.Hour),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("CAREGATE_REDIS_URL", ""),
		Password: getEnv("CAREGATE_REDIS_PASSWORD", ""),
		DB:       getEnvInt("CAREGATE_REDIS_DB", 0),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		PolicyFile:          getEnv("CAREGATE_RATELIMIT_POLICY_FILE", ""),
		FailOpen:            getEnvBool("CAREGATE_RATELIMIT_FAIL_OPEN", true),
		BruteForceThreshold: int64(getEnvInt("CAREGATE_BRUTE_FORCE_THRESHOLD", 10)),
	}
}

func loadInspectConfig() InspectConfig {
	mode := inspect.ModeBlock
	if strings.ToLower(getEnv("CAREGATE_INSPECT_MODE", "block")) == "sanitize" {
		mode = inspect.ModeSanitize
	}
	return InspectConfig{
		Mode:             mode,
		TrackerThreshold: getEnvInt("CAREGATE_INSPECT_THRESHOLD", 10),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Backend:       strings.ToLower(getEnv("CAREGATE_AUDIT_BACKEND", "file")),
		FileDir:       getEnv("CAREGATE_AUDIT_DIR", "/var/log/caregate/audit"),
		PostgresURL:   getEnv("CAREGATE_AUDIT_POSTGRES_URL", ""),
		RetentionDays: getEnvInt("CAREGATE_AUDIT_RETENTION_DAYS", 90),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(strings.ToLower(getEnv("CAREGATE_LOG_LEVEL", "info"))),
		MetricsEnabled: getEnvBool("CAREGATE_METRICS_ENABLED", true),
		ErrorSink:      getEnv("CAREGATE_ERROR_SINK", "log"),
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

	if c.Token.Secret == "" {
		return fmt.Errorf("CAREGATE_TOKEN_SECRET is required")
	}
	if len(c.Token.Secret) < 32 {
		return fmt.Errorf("CAREGATE_TOKEN_SECRET must be at least 32 bytes")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return fmt.Errorf("refresh TTL must exceed access TTL")
	}

	if c.RateLimit.PolicyFile != "" {
		if _, err := os.Stat(c.RateLimit.PolicyFile); err != nil {
			return fmt.Errorf("rate limit policy file: %w", err)
		}
	}

	switch c.Audit.Backend {
	case "file", "none":
	case "db", "both":
		if c.Audit.PostgresURL == "" {
			return fmt.Errorf("CAREGATE_AUDIT_POSTGRES_URL is required for audit backend %q", c.Audit.Backend)
		}
	default:
		return fmt.Errorf("invalid audit backend: %s (must be file, db, both, or none)", c.Audit.Backend)
	}

	if c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("audit retention must be positive")
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
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if v, err := time.ParseDuration(value); err == nil {
			return v
		}
	}
	return defaultValue
}

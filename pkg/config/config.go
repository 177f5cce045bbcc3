package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Tenant        TenantConfig
	Auth          AuthConfig
	Cache         CacheConfig
	Catalog       CatalogConfig
	Audit         AuditConfig
	RateLimit     RateLimitConfig
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
	MaxBodyBytes    int64
}

// Addr is the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig holds the control-plane database settings
type DatabaseConfig struct {
	URL            string
	ReplicaURLs    []string
	MaxConns       int
	MinConns       int
	ConnectTimeout time.Duration
	HealthInterval time.Duration
}

// Connection converts the settings for the connection manager
func (d DatabaseConfig) Connection() postgres.ConnectionConfig {
	return postgres.ConnectionConfig{
		PrimaryURL:  d.URL,
		ReplicaURLs: d.ReplicaURLs,
		MaxConns:    d.MaxConns,
		MinConns:    d.MinConns,
		Timeout:     d.ConnectTimeout,
	}
}

// TenantConfig holds tenant gateway and provisioning settings
type TenantConfig struct {
	// DatabaseURL is where tenant namespaces live; defaults to the control plane
	DatabaseURL      string
	MaxConnsPerPool  int32
	ProvisionTimeout time.Duration
}

// AuthConfig holds principal token settings
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Leeway    time.Duration
}

// Cache backends
const (
	CacheBackendNone   = "none"
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// CacheConfig holds the permission decision cache settings
type CacheConfig struct {
	Backend  string
	TTL      time.Duration
	Size     int
	RedisURL string
	RedisDB  int
}

// Redis converts the settings for the Redis client
func (c CacheConfig) Redis() postgres.RedisConfig {
	return postgres.RedisConfig{URL: c.RedisURL, DB: c.RedisDB, MaxRetries: 3, PoolSize: 10}
}

// CatalogConfig holds the module catalog settings
type CatalogConfig struct {
	// Path is an optional YAML file overriding the embedded catalog
	Path  string
	Watch bool
}

// AuditConfig holds audit log retention settings
type AuditConfig struct {
	RetentionDays int
	Schedule      string
}

// RateLimitConfig holds admin API rate limits
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
	// Distributed shares one window across instances through the cache Redis
	Distributed       bool
	RequestsPerWindow int
	Window            time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Auth:          loadAuthConfig(),
		Cache:         loadCacheConfig(),
		Catalog:       loadCatalogConfig(),
		Audit:         loadAuditConfig(),
		RateLimit:     loadRateLimitConfig(),
		Observability: loadObservabilityConfig(),
	}
	cfg.Tenant = loadTenantConfig(cfg.Database.URL)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TENANTGATE_HOST", "0.0.0.0"),
		Port:            getEnv("TENANTGATE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("TENANTGATE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TENANTGATE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("TENANTGATE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TENANTGATE_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("TENANTGATE_MAX_BODY_BYTES", 1<<20),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:            getEnv("TENANTGATE_DATABASE_URL", ""),
		ReplicaURLs:    postgres.ParseReplicaURLs(getEnv("TENANTGATE_DATABASE_REPLICA_URLS", "")),
		MaxConns:       getEnvInt("TENANTGATE_DATABASE_MAX_CONNS", 20),
		MinConns:       getEnvInt("TENANTGATE_DATABASE_MIN_CONNS", 2),
		ConnectTimeout: getEnvDuration("TENANTGATE_DATABASE_TIMEOUT", 10*time.Second),
		HealthInterval: getEnvDuration("TENANTGATE_DATABASE_HEALTH_INTERVAL", 30*time.Second),
	}
}

func loadTenantConfig(controlPlaneURL string) TenantConfig {
	return TenantConfig{
		DatabaseURL:      getEnv("TENANTGATE_TENANT_DATABASE_URL", controlPlaneURL),
		MaxConnsPerPool:  int32(getEnvInt("TENANTGATE_TENANT_MAX_CONNS", 4)),
		ProvisionTimeout: getEnvDuration("TENANTGATE_PROVISION_TIMEOUT", 60*time.Second),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret: getEnv("TENANTGATE_JWT_SECRET", ""),
		Issuer:    getEnv("TENANTGATE_JWT_ISSUER", "tenantgate"),
		Leeway:    getEnvDuration("TENANTGATE_JWT_LEEWAY", 30*time.Second),
	}
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Backend:  strings.ToLower(getEnv("TENANTGATE_CACHE_BACKEND", CacheBackendMemory)),
		TTL:      getEnvDuration("TENANTGATE_CACHE_TTL", 30*time.Second),
		Size:     getEnvInt("TENANTGATE_CACHE_SIZE", 10000),
		RedisURL: getEnv("TENANTGATE_REDIS_URL", ""),
		RedisDB:  getEnvInt("TENANTGATE_REDIS_DB", 0),
	}
}

func loadCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Path:  getEnv("TENANTGATE_CATALOG_PATH", ""),
		Watch: getEnvBool("TENANTGATE_CATALOG_WATCH", false),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		RetentionDays: getEnvInt("TENANTGATE_AUDIT_RETENTION_DAYS", 90),
		Schedule:      getEnv("TENANTGATE_AUDIT_RETENTION_SCHEDULE", "@daily"),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           getEnvBool("TENANTGATE_RATE_LIMIT_ENABLED", true),
		RequestsPerSecond: getEnvFloat("TENANTGATE_RATE_LIMIT_RPS", 10),
		Burst:             getEnvInt("TENANTGATE_RATE_LIMIT_BURST", 20),
		Distributed:       getEnvBool("TENANTGATE_RATE_LIMIT_DISTRIBUTED", false),
		RequestsPerWindow: getEnvInt("TENANTGATE_RATE_LIMIT_PER_WINDOW", 600),
		Window:            getEnvDuration("TENANTGATE_RATE_LIMIT_WINDOW", time.Minute),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       getEnv("TENANTGATE_LOG_LEVEL", "info"),
		MetricsEnabled: getEnvBool("TENANTGATE_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("TENANTGATE_DATABASE_URL is required")
	}
	if c.Tenant.MaxConnsPerPool <= 0 {
		return fmt.Errorf("tenant max conns must be positive")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("TENANTGATE_JWT_SECRET must be at least 32 bytes")
	}

	switch c.Cache.Backend {
	case CacheBackendNone, CacheBackendMemory:
	case CacheBackendRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("TENANTGATE_REDIS_URL is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be none, memory, or redis)", c.Cache.Backend)
	}
	if c.Cache.Backend != CacheBackendNone && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}

	if c.RateLimit.Distributed && c.Cache.RedisURL == "" {
		return fmt.Errorf("distributed rate limiting requires TENANTGATE_REDIS_URL")
	}
	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit retention days must not be negative")
	}

	if _, err := logrus.ParseLevel(c.Observability.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Observability.LogLevel)
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

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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

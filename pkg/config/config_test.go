package config

import (
	"strings"
	"testing"
	"time"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		envValue     string
		defaultValue bool
		want         bool
	}{
		{"true", false, true},
		{"TRUE", false, true},
		{"1", false, true},
		{"false", true, false},
		{"yes", true, false},
		{"", true, true},
	}

	for _, tt := range tests {
		t.Run("value="+tt.envValue, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("TEST_BOOL", tt.envValue)
			}
			if got := getEnvBool("TEST_BOOL", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvNumbers tests the numeric helpers fall back on parse errors
func TestGetEnvNumbers(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if got := getEnvInt("TEST_INT", 1); got != 42 {
		t.Errorf("getEnvInt() = %v, want 42", got)
	}
	t.Setenv("TEST_INT", "forty-two")
	if got := getEnvInt("TEST_INT", 1); got != 1 {
		t.Errorf("getEnvInt() = %v, want default 1", got)
	}

	t.Setenv("TEST_INT64", "1048576")
	if got := getEnvInt64("TEST_INT64", 0); got != 1048576 {
		t.Errorf("getEnvInt64() = %v, want 1048576", got)
	}

	t.Setenv("TEST_FLOAT", "2.5")
	if got := getEnvFloat("TEST_FLOAT", 1); got != 2.5 {
		t.Errorf("getEnvFloat() = %v, want 2.5", got)
	}
	t.Setenv("TEST_FLOAT", "fast")
	if got := getEnvFloat("TEST_FLOAT", 1); got != 1 {
		t.Errorf("getEnvFloat() = %v, want default 1", got)
	}
}

// TestGetEnvDuration tests the getEnvDuration helper function
func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "90s")
	if got := getEnvDuration("TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v, want 90s", got)
	}
	t.Setenv("TEST_DURATION", "90")
	if got := getEnvDuration("TEST_DURATION", time.Second); got != time.Second {
		t.Errorf("getEnvDuration() = %v, want default 1s", got)
	}
}

func setRequired(t *testing.T) {
	t.Setenv("TENANTGATE_DATABASE_URL", "postgres://tenantgate@localhost/tenantgate?sslmode=disable")
	t.Setenv("TENANTGATE_JWT_SECRET", strings.Repeat("k", 32))
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("Server.Addr() = %v, want 0.0.0.0:8080", cfg.Server.Addr())
	}
	if cfg.Tenant.DatabaseURL != cfg.Database.URL {
		t.Errorf("Tenant.DatabaseURL = %v, want control plane url", cfg.Tenant.DatabaseURL)
	}
	if cfg.Tenant.MaxConnsPerPool != 4 {
		t.Errorf("Tenant.MaxConnsPerPool = %v, want 4", cfg.Tenant.MaxConnsPerPool)
	}
	if cfg.Cache.Backend != CacheBackendMemory {
		t.Errorf("Cache.Backend = %v, want memory", cfg.Cache.Backend)
	}
	if cfg.Audit.RetentionDays != 90 || cfg.Audit.Schedule != "@daily" {
		t.Errorf("Audit = %+v", cfg.Audit)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.Distributed {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Database.ReplicaURLs != nil {
		t.Errorf("Database.ReplicaURLs = %v, want none", cfg.Database.ReplicaURLs)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("TENANTGATE_PORT", "9000")
	t.Setenv("TENANTGATE_DATABASE_REPLICA_URLS", "postgres://r1/tenantgate, postgres://r2/tenantgate")
	t.Setenv("TENANTGATE_TENANT_DATABASE_URL", "postgres://tenants/tenantgate")
	t.Setenv("TENANTGATE_CACHE_BACKEND", "Redis")
	t.Setenv("TENANTGATE_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("TENANTGATE_CATALOG_PATH", "/etc/tenantgate/catalog.yaml")
	t.Setenv("TENANTGATE_CATALOG_WATCH", "true")
	t.Setenv("TENANTGATE_RATE_LIMIT_DISTRIBUTED", "1")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9000" {
		t.Errorf("Server.Port = %v, want 9000", cfg.Server.Port)
	}
	if len(cfg.Database.ReplicaURLs) != 2 {
		t.Errorf("Database.ReplicaURLs = %v, want 2 urls", cfg.Database.ReplicaURLs)
	}
	if cfg.Database.Connection().PrimaryURL != cfg.Database.URL {
		t.Errorf("Connection().PrimaryURL = %v", cfg.Database.Connection().PrimaryURL)
	}
	if cfg.Tenant.DatabaseURL != "postgres://tenants/tenantgate" {
		t.Errorf("Tenant.DatabaseURL = %v", cfg.Tenant.DatabaseURL)
	}
	if cfg.Cache.Backend != CacheBackendRedis {
		t.Errorf("Cache.Backend = %v, want redis", cfg.Cache.Backend)
	}
	if cfg.Cache.Redis().URL != "redis://localhost:6379/0" {
		t.Errorf("Cache.Redis().URL = %v", cfg.Cache.Redis().URL)
	}
	if !cfg.Catalog.Watch || cfg.Catalog.Path == "" {
		t.Errorf("Catalog = %+v", cfg.Catalog)
	}
	if !cfg.RateLimit.Distributed {
		t.Error("RateLimit.Distributed = false, want true")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:        ServerConfig{Port: "8080"},
			Database:      DatabaseConfig{URL: "postgres://localhost/tenantgate"},
			Tenant:        TenantConfig{MaxConnsPerPool: 4},
			Auth:          AuthConfig{JWTSecret: strings.Repeat("k", 32)},
			Cache:         CacheConfig{Backend: CacheBackendMemory, TTL: time.Minute},
			Observability: ObservabilityConfig{LogLevel: "info"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing port", func(c *Config) { c.Server.Port = "" }, "server port"},
		{"missing database", func(c *Config) { c.Database.URL = "" }, "TENANTGATE_DATABASE_URL"},
		{"no tenant conns", func(c *Config) { c.Tenant.MaxConnsPerPool = 0 }, "tenant max conns"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "TENANTGATE_JWT_SECRET"},
		{"redis without url", func(c *Config) { c.Cache.Backend = CacheBackendRedis }, "TENANTGATE_REDIS_URL"},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "memcached" }, "invalid cache backend"},
		{"zero ttl", func(c *Config) { c.Cache.TTL = 0 }, "cache TTL"},
		{"no cache ignores ttl", func(c *Config) { c.Cache.Backend = CacheBackendNone; c.Cache.TTL = 0 }, ""},
		{"distributed without redis", func(c *Config) { c.RateLimit.Distributed = true }, "distributed rate limiting"},
		{"negative retention", func(c *Config) { c.Audit.RetentionDays = -1 }, "retention"},
		{"bad log level", func(c *Config) { c.Observability.LogLevel = "loud" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

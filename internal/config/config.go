// Package config loads server configuration from an optional TOML file and
// environment variables. Environment variables take precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileEnv names the environment variable pointing at a TOML config file.
const FileEnv = "VERIFACTORY_CONFIG"

// Config holds all configuration for the server
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Storage   StorageConfig   `toml:"storage"`
	Auth      AuthConfig      `toml:"auth"`
	Cache     CacheConfig     `toml:"cache"`
	Logging   LoggingConfig   `toml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Security  SecurityConfig  `toml:"security"`
	Proxy     ProxyConfig     `toml:"proxy"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Compilers CompilersConfig `toml:"compilers"`
	Sourcify  SourcifyConfig  `toml:"sourcify"`
	RPC       RPCConfig       `toml:"rpc"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int    `toml:"port"`
	Host           string `toml:"host"`
	ReadTimeout    int    `toml:"read_timeout"`  // seconds
	WriteTimeout   int    `toml:"write_timeout"` // seconds
	IdleTimeout    int    `toml:"idle_timeout"`  // seconds
	RequestTimeout int    `toml:"request_timeout"`
	// VerifyTimeout bounds verification endpoints, which may compile
	// several times per request.
	VerifyTimeout int `toml:"verify_timeout"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type     string         `toml:"type"` // "sqlite" or "postgres"
	Postgres PostgresConfig `toml:"postgres"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string `toml:"url"`
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	Type string `toml:"type"` // "none" or "api-key"
}

// CacheConfig holds compilation cache settings
type CacheConfig struct {
	Type       string      `toml:"type"` // "memory", "redis" or "none"
	Size       int         `toml:"size"` // entries, memory cache only
	TTLSeconds int         `toml:"ttl_seconds"`
	Redis      RedisConfig `toml:"redis"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled        bool `toml:"enabled"`
	RequestsPerMin int  `toml:"requests_per_min"`
	BurstSize      int  `toml:"burst"`
	CleanupMinutes int  `toml:"cleanup_minutes"`
	// VerifyCost is the number of tokens a verification request consumes.
	VerifyCost int `toml:"verify_cost"`
}

// SecurityConfig holds security filter settings
type SecurityConfig struct {
	FilterEnabled bool `toml:"filter_enabled"`
	MaxBodySizeMB int  `toml:"max_body_size_mb"`
}

// ProxyConfig holds trusted proxy settings for X-Forwarded-For handling
type ProxyConfig struct {
	TrustProxy     bool     `toml:"trust_proxy"`
	TrustedProxies []string `toml:"trusted_proxies"` // CIDR notation
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// CompilersConfig holds compiler installation settings
type CompilersConfig struct {
	// Dir contains <toolchain>/<version>/<binary>.
	Dir                    string `toml:"dir"`
	MaxConcurrency         int    `toml:"max_concurrency"`
	RefreshIntervalSeconds int    `toml:"refresh_interval_seconds"` // 0 disables
	TempDir                string `toml:"temp_dir"`
}

// SourcifyConfig holds Sourcify passthrough settings
type SourcifyConfig struct {
	Enabled        bool   `toml:"enabled"`
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// RPCConfig holds the node used to read deployed code
type RPCConfig struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			Host:           "0.0.0.0",
			ReadTimeout:    30,
			WriteTimeout:   360,
			IdleTimeout:    120,
			RequestTimeout: 30,
			VerifyTimeout:  300,
		},
		Storage: StorageConfig{
			Type:   "sqlite",
			SQLite: SQLiteConfig{Path: "./data/verifactory.db"},
		},
		Auth: AuthConfig{Type: "none"},
		Cache: CacheConfig{
			Type:       "memory",
			Size:       512,
			TTLSeconds: 3600,
			Redis:      RedisConfig{Addr: "localhost:6379"},
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 300,
			BurstSize:      50,
			CleanupMinutes: 10,
			VerifyCost:     10,
		},
		Security: SecurityConfig{FilterEnabled: true, MaxBodySizeMB: 50},
		Proxy: ProxyConfig{
			TrustedProxies: []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
		},
		Metrics: MetricsConfig{Enabled: true},
		Compilers: CompilersConfig{
			Dir:                    "./compilers",
			MaxConcurrency:         runtime.NumCPU(),
			RefreshIntervalSeconds: 300,
		},
		Sourcify: SourcifyConfig{
			URL:            "https://sourcify.dev/server",
			TimeoutSeconds: 60,
		},
		RPC: RPCConfig{TimeoutSeconds: 30},
	}
}

// Load loads configuration from the file named by VERIFACTORY_CONFIG, if
// any, then from environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(FileEnv); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvInt("PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("HOST", cfg.Server.Host)
	cfg.Server.ReadTimeout = getEnvInt("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvInt("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = getEnvInt("SERVER_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.RequestTimeout = getEnvInt("SERVER_REQUEST_TIMEOUT", cfg.Server.RequestTimeout)
	cfg.Server.VerifyTimeout = getEnvInt("SERVER_VERIFY_TIMEOUT", cfg.Server.VerifyTimeout)

	storageType := os.Getenv("STORAGE_TYPE")
	cfg.Storage.Type = getEnv("STORAGE_TYPE", cfg.Storage.Type)
	cfg.Storage.Postgres.URL = getEnv("DATABASE_URL", cfg.Storage.Postgres.URL)
	cfg.Storage.SQLite.Path = getEnv("SQLITE_PATH", cfg.Storage.SQLite.Path)
	// If DATABASE_URL is set, default to postgres
	if storageType == "" && cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	cfg.Auth.Type = getEnv("AUTH_TYPE", cfg.Auth.Type)

	cfg.Cache.Type = getEnv("CACHE_TYPE", cfg.Cache.Type)
	if !getEnvBool("CACHE_ENABLED", true) {
		cfg.Cache.Type = "none"
	}
	cfg.Cache.Size = getEnvInt("CACHE_SIZE", cfg.Cache.Size)
	cfg.Cache.TTLSeconds = getEnvInt("CACHE_TTL_SECONDS", cfg.Cache.TTLSeconds)
	cfg.Cache.Redis.Addr = getEnv("REDIS_ADDR", cfg.Cache.Redis.Addr)
	cfg.Cache.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Cache.Redis.Password)
	cfg.Cache.Redis.DB = getEnvInt("REDIS_DB", cfg.Cache.Redis.DB)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.RateLimit.Enabled = getEnvBool("RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.RequestsPerMin = getEnvInt("RATE_LIMIT_RPM", cfg.RateLimit.RequestsPerMin)
	cfg.RateLimit.BurstSize = getEnvInt("RATE_LIMIT_BURST", cfg.RateLimit.BurstSize)
	cfg.RateLimit.CleanupMinutes = getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", cfg.RateLimit.CleanupMinutes)
	cfg.RateLimit.VerifyCost = getEnvInt("RATE_LIMIT_VERIFY_COST", cfg.RateLimit.VerifyCost)

	cfg.Security.FilterEnabled = getEnvBool("SECURITY_FILTER_ENABLED", cfg.Security.FilterEnabled)
	cfg.Security.MaxBodySizeMB = getEnvInt("SECURITY_MAX_BODY_SIZE_MB", cfg.Security.MaxBodySizeMB)

	cfg.Proxy.TrustProxy = getEnvBool("TRUST_PROXY", cfg.Proxy.TrustProxy)
	cfg.Proxy.TrustedProxies = getEnvStringSlice("TRUSTED_PROXIES", cfg.Proxy.TrustedProxies)

	cfg.Metrics.Enabled = getEnvBool("METRICS_ENABLED", cfg.Metrics.Enabled)

	cfg.Compilers.Dir = getEnv("COMPILERS_DIR", cfg.Compilers.Dir)
	cfg.Compilers.MaxConcurrency = getEnvInt("COMPILER_MAX_CONCURRENCY", cfg.Compilers.MaxConcurrency)
	cfg.Compilers.RefreshIntervalSeconds = getEnvInt("COMPILERS_REFRESH_SECONDS", cfg.Compilers.RefreshIntervalSeconds)
	cfg.Compilers.TempDir = getEnv("COMPILERS_TEMP_DIR", cfg.Compilers.TempDir)

	cfg.Sourcify.Enabled = getEnvBool("SOURCIFY_ENABLED", cfg.Sourcify.Enabled)
	cfg.Sourcify.URL = getEnv("SOURCIFY_URL", cfg.Sourcify.URL)
	cfg.Sourcify.TimeoutSeconds = getEnvInt("SOURCIFY_TIMEOUT_SECONDS", cfg.Sourcify.TimeoutSeconds)

	cfg.RPC.URL = getEnv("RPC_URL", cfg.RPC.URL)
	cfg.RPC.TimeoutSeconds = getEnvInt("RPC_TIMEOUT_SECONDS", cfg.RPC.TimeoutSeconds)
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Type {
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			errs = append(errs, errors.New("storage: sqlite path is empty"))
		}
	case "postgres":
		if c.Storage.Postgres.URL == "" {
			errs = append(errs, errors.New("storage: postgres requires DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage: unknown type %q", c.Storage.Type))
	}

	switch c.Auth.Type {
	case "none", "api-key":
	default:
		errs = append(errs, fmt.Errorf("auth: unknown type %q", c.Auth.Type))
	}

	switch c.Cache.Type {
	case "none":
	case "memory":
		if c.Cache.Size <= 0 {
			errs = append(errs, errors.New("cache: size must be positive"))
		}
	case "redis":
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, errors.New("cache: redis requires REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache: unknown type %q", c.Cache.Type))
	}

	if c.Compilers.MaxConcurrency <= 0 {
		errs = append(errs, errors.New("compilers: max concurrency must be positive"))
	}
	if c.Sourcify.Enabled && c.Sourcify.URL == "" {
		errs = append(errs, errors.New("sourcify: url is empty"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

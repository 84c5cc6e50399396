// Package config provides configuration loading and validation from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	LogLevel          string // debug, info, warn, error
	LogFormat         string // text or json
	ListenAddr        string // Public API listen address (e.g., ":8080")
	MetricsListenAddr string // Metrics listener address (e.g., "localhost:9090")
	DatabasePath      string // SQLite database path
	RegistryFile      string // Pipe-delimited registry export used by boot and manual imports
	UploadDir         string // Where admin uploads are stored before import

	ImportBatchSize  int
	ImportOnBoot     bool
	ImportStaleAfter time.Duration

	AnonRequestsPerMinute       int
	AnonMaxTrackedIPs           int
	TokenDefaultRequestsPerHour int

	LookupCacheSize int
	LookupCacheTTL  time.Duration

	AdminUsername     string
	AdminPassword     string
	SessionTimeout    time.Duration
	MaxUploadBytes    int64
	TrustProxyHeaders bool
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored and already-set variables win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load parses configuration from environment variables.
// Every option except ADMIN_PASSWORD has a default.
func Load() (*Config, error) {
	var errs []error

	cfg := &Config{
		LogLevel:          envString("LOG_LEVEL", "info"),
		LogFormat:         envString("LOG_FORMAT", "text"),
		ListenAddr:        envString("LISTEN_ADDR", ":8080"),
		MetricsListenAddr: envString("METRICS_LISTEN_ADDR", "localhost:9090"),
		DatabasePath:      envString("DATABASE_PATH", "/data/rnc.db"),
		RegistryFile:      envString("REGISTRY_FILE", "/data/DGII_RNC.TXT"),
		UploadDir:         envString("UPLOAD_DIR", "/data/uploads"),
		AdminUsername:     envString("ADMIN_USERNAME", "admin"),
		AdminPassword:     os.Getenv("ADMIN_PASSWORD"),
	}

	cfg.ImportBatchSize = envInt("IMPORT_BATCH_SIZE", 5000, &errs)
	cfg.ImportOnBoot = envBool("IMPORT_ON_BOOT", true, &errs)
	cfg.ImportStaleAfter = envDuration("IMPORT_STALE_AFTER", time.Hour, &errs)
	cfg.AnonRequestsPerMinute = envInt("ANON_REQUESTS_PER_MINUTE", 10, &errs)
	cfg.AnonMaxTrackedIPs = envInt("ANON_MAX_TRACKED_IPS", 100_000, &errs)
	cfg.TokenDefaultRequestsPerHour = envInt("TOKEN_DEFAULT_REQUESTS_PER_HOUR", 60, &errs)
	cfg.LookupCacheSize = envInt("LOOKUP_CACHE_SIZE", 10_000, &errs)
	cfg.LookupCacheTTL = envDuration("LOOKUP_CACHE_TTL", 10*time.Minute, &errs)
	cfg.SessionTimeout = envDuration("SESSION_TIMEOUT", 24*time.Hour, &errs)
	cfg.MaxUploadBytes = int64(envInt("MAX_UPLOAD_BYTES", 256<<20, &errs))
	cfg.TrustProxyHeaders = envBool("TRUST_PROXY_HEADERS", false, &errs)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks the constraints shared by every command.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error (got %q)", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json (got %q)", c.LogFormat)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH must not be empty")
	}
	if c.ImportBatchSize <= 0 {
		return fmt.Errorf("IMPORT_BATCH_SIZE must be positive")
	}
	if c.AnonRequestsPerMinute <= 0 {
		return fmt.Errorf("ANON_REQUESTS_PER_MINUTE must be positive")
	}
	if c.TokenDefaultRequestsPerHour <= 0 {
		return fmt.Errorf("TOKEN_DEFAULT_REQUESTS_PER_HOUR must be positive")
	}
	if c.AnonMaxTrackedIPs <= 0 {
		return fmt.Errorf("ANON_MAX_TRACKED_IPS must be positive")
	}
	if c.LookupCacheSize < 0 {
		return fmt.Errorf("LOOKUP_CACHE_SIZE must not be negative")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

// ValidateServe adds the checks that only apply to the HTTP server.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.AdminPassword == "" {
		return fmt.Errorf("ADMIN_PASSWORD environment variable is required")
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT must be positive")
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func envBool(key string, def bool, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}

func envDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

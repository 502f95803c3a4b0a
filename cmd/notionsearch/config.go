package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"notionsearch/internal/api"
	"notionsearch/internal/notion"
	"notionsearch/internal/observability"
)

const defaultPort = "3000"

// Config holds the server configuration.
type Config struct {
	Addr            string                      `yaml:"addr"`
	Version         string                      `yaml:"version"`
	DisplayTimezone string                      `yaml:"display_timezone"`
	TrustedProxies  string                      `yaml:"trusted_proxies"`
	Notion          notion.Config               `yaml:"notion"`
	Log             observability.Config        `yaml:"log"`
	Metrics         observability.MetricsConfig `yaml:"metrics"`
	RateLimit       api.RateLimitConfig         `yaml:"rate_limit"`
	Sentry          SentryConfig                `yaml:"sentry"`
}

// SentryConfig configures backend and browser error reporting.
type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
	FrontendDSN string `yaml:"frontend_dsn"`
}

func defaultConfig() *Config {
	return &Config{
		Addr:    ":" + defaultPort,
		Version: "dev",
		Notion:  notion.DefaultConfig(),
		Log:     observability.DefaultConfig(),
		Metrics: observability.DefaultMetricsConfig(),
		Sentry:  SentryConfig{Environment: "production"},
	}
}

// loadDotEnv loads variables from the given files into the process
// environment. Missing files are ignored and existing variables win.
func loadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// LoadConfig loads configuration from a YAML file and environment variables.
// Environment variables override YAML values.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	proxies, err := api.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	cfg.RateLimit.TrustedProxies = proxies
	cfg.Metrics.Version = cfg.Version

	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("ADDR", &c.Addr)
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		c.Addr = ":" + port
	}
	str("APP_VERSION", &c.Version)
	str("DISPLAY_TIMEZONE", &c.DisplayTimezone)
	str("TRUSTED_PROXIES", &c.TrustedProxies)

	// The token is taken verbatim, surrounding whitespace included.
	if v := os.Getenv("NOTION_TOKEN"); v != "" {
		c.Notion.Token = v
	}
	str("NOTION_VERSION", &c.Notion.Version)
	str("NOTION_API_ENDPOINT", &c.Notion.Endpoint)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_FILE", &c.Log.File.Path)
	num("LOG_MAX_SIZE_MB", &c.Log.File.MaxSizeMB)
	num("LOG_MAX_BACKUPS", &c.Log.File.MaxBackups)
	num("LOG_MAX_AGE_DAYS", &c.Log.File.MaxAgeDays)

	boolean("METRICS_ENABLED", &c.Metrics.Enabled)

	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS: %w", err))
		} else {
			c.RateLimit.RequestsPerSecond = rps
		}
	}
	num("RATE_LIMIT_BURST", &c.RateLimit.Burst)

	str("SENTRY_DSN", &c.Sentry.DSN)
	str("SENTRY_ENVIRONMENT", &c.Sentry.Environment)
	str("SENTRY_FRONTEND_DSN", &c.Sentry.FrontendDSN)

	return errors.Join(errs...)
}

// Validate rejects malformed settings. A missing Notion token is allowed;
// upstream rejects the call and the error is relayed.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required (set ADDR, PORT or yaml)")
	}
	if c.Notion.Endpoint != "" {
		u, err := url.Parse(c.Notion.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("notion endpoint %q must be an absolute http(s) URL", c.Notion.Endpoint)
		}
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return errors.New("rate_limit.rps must not be negative")
	}
	if c.RateLimit.Burst < 0 {
		return errors.New("rate_limit.burst must not be negative")
	}
	if c.Log.File.MaxSizeMB < 0 || c.Log.File.MaxBackups < 0 || c.Log.File.MaxAgeDays < 0 {
		return errors.New("log file rotation limits must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves DisplayTimezone; empty means the server's local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.DisplayTimezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return nil, fmt.Errorf("display_timezone: %w", err)
	}
	return loc, nil
}

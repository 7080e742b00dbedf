// Package config resolves the shopsync configuration surface.
// Precedence: explicit overrides > config file > environment > defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all recognized options for the offline sync subsystem.
type Config struct {
	BaseURL        string        `yaml:"base_url"`
	DataDir        string        `yaml:"data_dir"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	SyncInterval   time.Duration `yaml:"sync_interval"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
	RefreshTTL     time.Duration `yaml:"refresh_token_ttl"`
	MaxRetries     int           `yaml:"max_retries"`
	HighMaxRetries int           `yaml:"high_max_retries"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
	BackoffCap     time.Duration `yaml:"backoff_cap"`
	TokenSecret    string        `yaml:"token_secret"`
	LogLevel       string        `yaml:"log_level"`
}

// Option overrides a single resolved value. Options are applied last and
// win over every other source.
type Option func(*Config)

func WithBaseURL(u string) Option {
	return func(c *Config) { c.BaseURL = u }
}

func WithDataDir(dir string) Option {
	return func(c *Config) { c.DataDir = dir }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) { c.RequestTimeout = d }
}

func WithSyncInterval(d time.Duration) Option {
	return func(c *Config) { c.SyncInterval = d }
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		BaseURL:        "http://localhost:8080",
		DataDir:        "./data",
		RequestTimeout: 12 * time.Second,
		SyncInterval:   30 * time.Second,
		AccessTokenTTL: 24 * time.Hour,
		RefreshTTL:     7 * 24 * time.Hour,
		MaxRetries:     3,
		HighMaxRetries: 5,
		BackoffBase:    1 * time.Second,
		BackoffCap:     30 * time.Second,
		TokenSecret:    "shopsync-local-dev-secret",
		LogLevel:       "info",
	}
}

// Load resolves configuration. A .env file in the working directory is
// loaded first (missing file is fine), then environment variables, then
// the YAML file at path (empty path skips it), then the explicit options.
func Load(path string, opts ...Option) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	cfg.applyEnv()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.BaseURL = getEnv("SHOPSYNC_BASE_URL", c.BaseURL)
	c.DataDir = getEnv("SHOPSYNC_DATA_DIR", c.DataDir)
	c.TokenSecret = getEnv("SHOPSYNC_TOKEN_SECRET", c.TokenSecret)
	c.LogLevel = getEnv("SHOPSYNC_LOG_LEVEL", c.LogLevel)
	c.RequestTimeout = getEnvDuration("SHOPSYNC_REQUEST_TIMEOUT", c.RequestTimeout)
	c.SyncInterval = getEnvDuration("SHOPSYNC_SYNC_INTERVAL", c.SyncInterval)
	c.AccessTokenTTL = getEnvDuration("SHOPSYNC_ACCESS_TOKEN_TTL", c.AccessTokenTTL)
	c.RefreshTTL = getEnvDuration("SHOPSYNC_REFRESH_TOKEN_TTL", c.RefreshTTL)
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync_interval must be positive")
	}
	if c.MaxRetries < 0 || c.HighMaxRetries < c.MaxRetries {
		return fmt.Errorf("retry ceilings are inconsistent")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

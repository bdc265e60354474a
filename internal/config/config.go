// Package config loads agent configuration from a YAML file, a .env file and
// environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all agent settings.
type Config struct {
	API struct {
		BaseURL        string `yaml:"base_url"`
		Token          string `yaml:"token"`
		ProbePath      string `yaml:"probe_path"`
		AttemptTimeout string `yaml:"attempt_timeout"`
	} `yaml:"api"`

	DataDir string `yaml:"data_dir"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Sync struct {
		Interval      string `yaml:"interval"`
		ProbeInterval string `yaml:"probe_interval"`
		MaxAttempts   int    `yaml:"max_attempts"`
		LeaseTTL      string `yaml:"lease_ttl"`
		BackoffBase   string `yaml:"backoff_base"`
		BackoffMax    string `yaml:"backoff_max"`
	} `yaml:"sync"`

	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.API.ProbePath = "/api/health"
	cfg.API.AttemptTimeout = "30s"
	cfg.DataDir = "./data"
	cfg.Server.Addr = "localhost:8090"
	cfg.Sync.Interval = "1m"
	cfg.Sync.ProbeInterval = "30s"
	cfg.Sync.MaxAttempts = 5
	cfg.Sync.LeaseTTL = "2m"
	cfg.Sync.BackoffBase = "500ms"
	cfg.Sync.BackoffMax = "30s"
	cfg.Log.Level = "info"
	return cfg
}

// Load reads configuration. The path may be empty, in which case only
// defaults, .env and environment variables apply. A missing .env is not an
// error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SYNCAGENT_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("SYNCAGENT_API_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv("SYNCAGENT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SYNCAGENT_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SYNCAGENT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SYNCAGENT_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
}

func (c *Config) validate() error {
	for name, value := range map[string]string{
		"api.attempt_timeout": c.API.AttemptTimeout,
		"sync.interval":       c.Sync.Interval,
		"sync.probe_interval": c.Sync.ProbeInterval,
		"sync.lease_ttl":      c.Sync.LeaseTTL,
		"sync.backoff_base":   c.Sync.BackoffBase,
		"sync.backoff_max":    c.Sync.BackoffMax,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %q", name, value)
		}
	}
	if c.Sync.MaxAttempts <= 0 {
		return fmt.Errorf("sync.max_attempts must be positive, got %d", c.Sync.MaxAttempts)
	}
	return nil
}

// Duration helpers. validate guarantees these parse.

func (c *Config) AttemptTimeout() time.Duration { return mustDuration(c.API.AttemptTimeout) }
func (c *Config) SyncInterval() time.Duration   { return mustDuration(c.Sync.Interval) }
func (c *Config) ProbeInterval() time.Duration  { return mustDuration(c.Sync.ProbeInterval) }
func (c *Config) LeaseTTL() time.Duration       { return mustDuration(c.Sync.LeaseTTL) }
func (c *Config) BackoffBase() time.Duration    { return mustDuration(c.Sync.BackoffBase) }
func (c *Config) BackoffMax() time.Duration     { return mustDuration(c.Sync.BackoffMax) }

// ProbeURL returns the absolute health endpoint used by the connectivity
// monitor.
func (c *Config) ProbeURL() string {
	return c.API.BaseURL + c.API.ProbePath
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("unvalidated duration %q: %v", s, err))
	}
	return d
}

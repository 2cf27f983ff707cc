package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the configuration file looked up in the working directory.
const DefaultFileName = "lodge.yml"

// Environment overrides, applied after the file is parsed.
const (
	EnvInstanceName = "LODGE_INSTANCE_NAME"
	EnvRedisURL     = "REDIS_URL"
	EnvHTTPAddr     = "LODGE_HTTP_ADDR"
)

// LodgeConfig represents the top-level lodge.yml configuration
type LodgeConfig struct {
	Version      string              `yaml:"version"`
	Instance     string              `yaml:"instance"`
	Redis        RedisConfig         `yaml:"redis"`
	HTTP         HTTPConfig          `yaml:"http"`
	Revisions    *RevisionsConfig    `yaml:"revisions,omitempty"`
	Transactions *TransactionsConfig `yaml:"transactions,omitempty"`
	Rebuild      *RebuildConfig      `yaml:"rebuild,omitempty"`
	Operators    []string            `yaml:"operators,omitempty"` // Actors allowed to unlock ratings blocks
	Tracing      *TracingConfig      `yaml:"tracing,omitempty"`
	LogLevel     string              `yaml:"log_level,omitempty"`
}

// RedisConfig points at the Redis server holding all lodge data
type RedisConfig struct {
	URL string `yaml:"url"`
}

// HTTPConfig configures the lodged API listener
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// RevisionsConfig bounds revision history listings
type RevisionsConfig struct {
	MaxPageSize int `yaml:"max_page_size,omitempty"` // Default 100, never above 100
}

// TransactionsConfig sets the retry budget for contended documents
type TransactionsConfig struct {
	MaxAttempts    int           `yaml:"max_attempts,omitempty"`    // Default 50
	InitialBackoff time.Duration `yaml:"initial_backoff,omitempty"` // Default 2ms
	MaxBackoff     time.Duration `yaml:"max_backoff,omitempty"`     // Default 100ms
}

// RebuildConfig tunes the background summary rebuild worker
type RebuildConfig struct {
	PollInterval time.Duration `yaml:"poll_interval,omitempty"` // Default 5s; kicks wake the worker sooner
}

// TracingConfig selects the OpenTelemetry exporter
type TracingConfig struct {
	Exporter string `yaml:"exporter,omitempty"` // "none" (default) or "stdout"
}

// Defaults returns a configuration with every optional section filled in.
func Defaults() *LodgeConfig {
	cfg := &LodgeConfig{
		Version:  "1.0",
		Instance: "default",
		Redis:    RedisConfig{URL: "redis://localhost:6379/0"},
		HTTP:     HTTPConfig{Addr: ":8080"},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *LodgeConfig) applyDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Revisions == nil {
		c.Revisions = &RevisionsConfig{}
	}
	if c.Revisions.MaxPageSize == 0 {
		c.Revisions.MaxPageSize = 100
	}
	if c.Transactions == nil {
		c.Transactions = &TransactionsConfig{}
	}
	if c.Transactions.MaxAttempts == 0 {
		c.Transactions.MaxAttempts = 50
	}
	if c.Transactions.InitialBackoff == 0 {
		c.Transactions.InitialBackoff = 2 * time.Millisecond
	}
	if c.Transactions.MaxBackoff == 0 {
		c.Transactions.MaxBackoff = 100 * time.Millisecond
	}
	if c.Rebuild == nil {
		c.Rebuild = &RebuildConfig{}
	}
	if c.Rebuild.PollInterval == 0 {
		c.Rebuild.PollInterval = 5 * time.Second
	}
	if c.Tracing == nil {
		c.Tracing = &TracingConfig{}
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "none"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate applies defaults and performs strict validation on the configuration
func (c *LodgeConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}
	if c.Instance == "" {
		return fmt.Errorf("instance is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required")
	}
	if u, err := url.Parse(c.Redis.URL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
		return fmt.Errorf("invalid redis.url: %s (must be redis:// or rediss://)", c.Redis.URL)
	}

	c.applyDefaults()

	if c.Revisions.MaxPageSize < 1 || c.Revisions.MaxPageSize > 100 {
		return fmt.Errorf("revisions.max_page_size must be between 1 and 100, got %d", c.Revisions.MaxPageSize)
	}
	if c.Transactions.MaxAttempts < 1 {
		return fmt.Errorf("transactions.max_attempts must be >= 1, got %d", c.Transactions.MaxAttempts)
	}
	if c.Transactions.InitialBackoff < 0 || c.Transactions.MaxBackoff < c.Transactions.InitialBackoff {
		return fmt.Errorf("transactions: backoff must satisfy 0 <= initial_backoff <= max_backoff")
	}
	if c.Rebuild.PollInterval < 0 {
		return fmt.Errorf("rebuild.poll_interval must be positive, got %s", c.Rebuild.PollInterval)
	}
	if c.Tracing.Exporter != "none" && c.Tracing.Exporter != "stdout" {
		return fmt.Errorf("invalid tracing.exporter: %s (must be 'none' or 'stdout')", c.Tracing.Exporter)
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %s (must be trace, debug, info, warn or error)", c.LogLevel)
	}

	seen := make(map[string]bool, len(c.Operators))
	for _, op := range c.Operators {
		if op == "" {
			return fmt.Errorf("operators cannot contain empty names")
		}
		if seen[op] {
			return fmt.Errorf("duplicate operator '%s'", op)
		}
		seen[op] = true
	}
	return nil
}

// IsOperator reports whether actor holds elevated rights.
func (c *LodgeConfig) IsOperator(actor string) bool {
	for _, op := range c.Operators {
		if op == actor {
			return true
		}
	}
	return false
}

// Load reads lodge.yml from path, applies environment overrides and validates it
func Load(path string) (*LodgeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config LodgeConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.ApplyEnv(os.Getenv)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// ApplyEnv overrides instance, Redis URL and listen address from the environment.
func (c *LodgeConfig) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvInstanceName); v != "" {
		c.Instance = v
	}
	if v := getenv(EnvRedisURL); v != "" {
		c.Redis.URL = v
	}
	if v := getenv(EnvHTTPAddr); v != "" {
		c.HTTP.Addr = v
	}
}

// Marshal renders the configuration as YAML.
func (c *LodgeConfig) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

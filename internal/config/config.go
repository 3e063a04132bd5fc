// ABOUTME: Configuration loading and parsing for whatsapp-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete whatsapp-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Sync     SyncConfig     `yaml:"sync"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds actor authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// BridgeConfig holds connection settings for the external WhatsApp bridge process.
type BridgeConfig struct {
	BaseURL  string `yaml:"base_url"`
	APIToken string `yaml:"api_token"`

	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// WebhookConfig holds inbound webhook settings.
type WebhookConfig struct {
	// Secret is the shared HMAC-SHA256 secret for the X-Webhook-Signature
	// header. Signature verification is skipped when empty.
	Secret string `yaml:"secret"`

	// AllowedEvents overrides the default accepted event types.
	AllowedEvents []string `yaml:"allowed_events"`

	DedupeSize int `yaml:"dedupe_size"`

	DedupeTTL    time.Duration `yaml:"-"`
	DedupeTTLRaw string        `yaml:"dedupe_ttl"`
}

// SyncConfig holds background send-retry settings.
type SyncConfig struct {
	MaxAttempts int `yaml:"max_attempts"`

	Interval    time.Duration `yaml:"-"`
	IntervalRaw string        `yaml:"interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in defaults for optional settings.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "0.0.0.0:8080"
	}
	if c.Bridge.Timeout == 0 {
		c.Bridge.Timeout = 15 * time.Second
	}
	if c.Webhook.DedupeTTL == 0 {
		c.Webhook.DedupeTTL = 10 * time.Minute
	}
	if c.Webhook.DedupeSize == 0 {
		c.Webhook.DedupeSize = 10000
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = time.Minute
	}
	if c.Sync.MaxAttempts == 0 {
		c.Sync.MaxAttempts = 5
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}
	if c.Bridge.BaseURL == "" {
		return fmt.Errorf("bridge.base_url is required")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Bridge.TimeoutRaw != "" {
		cfg.Bridge.Timeout, err = time.ParseDuration(cfg.Bridge.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing bridge.timeout %q: %w", cfg.Bridge.TimeoutRaw, err)
		}
	}

	if cfg.Webhook.DedupeTTLRaw != "" {
		cfg.Webhook.DedupeTTL, err = time.ParseDuration(cfg.Webhook.DedupeTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing webhook.dedupe_ttl %q: %w", cfg.Webhook.DedupeTTLRaw, err)
		}
	}

	if cfg.Sync.IntervalRaw != "" {
		cfg.Sync.Interval, err = time.ParseDuration(cfg.Sync.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sync.interval %q: %w", cfg.Sync.IntervalRaw, err)
		}
	}

	return nil
}

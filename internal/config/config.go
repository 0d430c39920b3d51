// Package config loads and validates gateway configuration.
//
// DESIGN: Configuration comes from a YAML file (or raw bytes) with ${VAR} and
// ${VAR:-default} references expanded from the environment before parsing.
// Zero values are filled in from defaults.go so a partial config is always valid.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level gateway configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Upstream    UpstreamConfig    `yaml:"upstream"`
	Limits      LimitsConfig      `yaml:"limits"`
	ModelsCache ModelsCacheConfig `yaml:"models_cache"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// UpstreamConfig describes the single upstream chat provider.
type UpstreamConfig struct {
	BaseURL    string      `yaml:"base_url"`
	ChatPath   string      `yaml:"chat_path"`
	ModelsPath string      `yaml:"models_path"`
	Retry      RetryConfig `yaml:"retry"`
}

// RetryConfig is the resilient-fetch retry policy.
// Timeout covers all attempts of one fetch combined, not each attempt.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	Timeout           time.Duration `yaml:"timeout"`
}

// LimitsConfig bounds concurrency and streaming resources.
type LimitsConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	MaxBufferSize int           `yaml:"max_buffer_size"`
	StreamTimeout time.Duration `yaml:"stream_timeout"`
}

// ModelsCacheConfig controls the /v1/models TTL cache.
type ModelsCacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// MonitoringConfig controls request telemetry output.
type MonitoringConfig struct {
	Enabled     bool   `yaml:"enabled"`
	LogPath     string `yaml:"log_path"`
	LogToStdout bool   `yaml:"log_to_stdout"`
}

// envRefPattern matches ${VAR} and ${VAR:-default} references.
var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnvWithDefaults expands ${VAR} and ${VAR:-default} in s from the
// environment. Unset variables without a default expand to the empty string.
func ExpandEnvWithDefaults(s string) string {
	return envRefPattern.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRefPattern.FindStringSubmatch(ref)
		if v, ok := os.LookupEnv(m[1]); ok && v != "" {
			return v
		}
		return m[3]
	})
}

// Load reads and parses a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator's flag
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses config from raw YAML bytes.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := ExpandEnvWithDefaults(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every field at its default value.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if c.Upstream.ChatPath == "" {
		c.Upstream.ChatPath = "/v1/chat/completions"
	}
	if c.Upstream.ModelsPath == "" {
		c.Upstream.ModelsPath = "/v1/models"
	}
	if c.Upstream.Retry.MaxAttempts == 0 {
		c.Upstream.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if c.Upstream.Retry.BaseDelay == 0 {
		c.Upstream.Retry.BaseDelay = DefaultBaseDelay
	}
	if c.Upstream.Retry.BackoffMultiplier == 0 {
		c.Upstream.Retry.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if c.Upstream.Retry.Timeout == 0 {
		c.Upstream.Retry.Timeout = DefaultFetchTimeout
	}
	if c.Limits.MaxConcurrent == 0 {
		c.Limits.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.Limits.MaxBufferSize == 0 {
		c.Limits.MaxBufferSize = DefaultMaxBufferSize
	}
	if c.Limits.StreamTimeout == 0 {
		c.Limits.StreamTimeout = DefaultStreamTimeout
	}
	if c.ModelsCache.TTL == 0 {
		c.ModelsCache.TTL = DefaultModelsCacheTTL
	}
}

func (c *Config) validate() error {
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	if !strings.HasPrefix(c.Upstream.BaseURL, "http://") && !strings.HasPrefix(c.Upstream.BaseURL, "https://") {
		return fmt.Errorf("upstream.base_url must be an http(s) URL, got %q", c.Upstream.BaseURL)
	}
	if c.Upstream.Retry.MaxAttempts < 1 {
		return fmt.Errorf("upstream.retry.max_attempts must be >= 1, got %d", c.Upstream.Retry.MaxAttempts)
	}
	if c.Limits.MaxConcurrent < 1 {
		return fmt.Errorf("limits.max_concurrent must be >= 1, got %d", c.Limits.MaxConcurrent)
	}
	return nil
}

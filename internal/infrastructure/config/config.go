package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Library   LibraryConfig
	Sandbox   SandboxConfig
	Preview   PreviewConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
	// File enables a rotating log file alongside stdout when set.
	File      string `envconfig:"LOG_FILE" default:""`
	MaxSizeMB int    `envconfig:"LOG_MAX_SIZE_MB" default:"50"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// LibraryConfig locates library manifests.
type LibraryConfig struct {
	// Dir is scanned recursively for library.yaml / library.toml. Empty
	// means builtin libraries only.
	Dir          string        `envconfig:"LIBRARY_DIR" default:""`
	FetchTimeout time.Duration `envconfig:"LIBRARY_FETCH_TIMEOUT" default:"15s"`
}

// SandboxConfig bounds headless preview runs.
type SandboxConfig struct {
	Timeout      time.Duration `envconfig:"SANDBOX_TIMEOUT" default:"5s"`
	PoolSize     int           `envconfig:"SANDBOX_POOL_SIZE" default:"4"`
	MaxCallStack int           `envconfig:"SANDBOX_MAX_CALL_STACK" default:"1024"`
}

// PreviewConfig tunes assembly.
type PreviewConfig struct {
	LoopBudget     time.Duration `envconfig:"LOOP_BUDGET" default:"100ms"`
	MaxSourceBytes int           `envconfig:"MAX_SOURCE_BYTES" default:"1048576"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:     "info",
			MaxSizeMB: 50,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Library: LibraryConfig{
			FetchTimeout: 15 * time.Second,
		},
		Sandbox: SandboxConfig{
			Timeout:      5 * time.Second,
			PoolSize:     4,
			MaxCallStack: 1024,
		},
		Preview: PreviewConfig{
			LoopBudget:     100 * time.Millisecond,
			MaxSourceBytes: 1 << 20,
		},
	}
}

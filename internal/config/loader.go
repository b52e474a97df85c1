package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/tailscale/hujson"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, expands ${{ .Env.VAR }} templates,
// unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variable templates before stripping comments,
	// since templates live inside strings.
	expanded := expandEnvTemplates(string(data))

	std, err := hujson.Standardize([]byte(expanded))
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "file"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = filepath.Join(NestorPath(), "engine")
	}
	if cfg.Storage.Database == "" {
		cfg.Storage.Database = filepath.Join(NestorPath(), "nestor.db")
	}
	if cfg.Engine.DefaultMaxRetries == 0 {
		cfg.Engine.DefaultMaxRetries = 3
	}
	if cfg.Engine.BackoffBase == 0 {
		cfg.Engine.BackoffBase = Duration(time.Second)
	}
	if cfg.Engine.BackoffMultiplier == 0 {
		cfg.Engine.BackoffMultiplier = 2
	}
	if cfg.Engine.BackoffMax == 0 {
		cfg.Engine.BackoffMax = Duration(5 * time.Minute)
	}
	if cfg.Engine.RetryBatchSize == 0 {
		cfg.Engine.RetryBatchSize = 20
	}
	if cfg.Engine.CommandTimeout == 0 {
		cfg.Engine.CommandTimeout = Duration(30 * time.Second)
	}
	if cfg.Poller.Interval == 0 && cfg.Poller.Cron == "" {
		cfg.Poller.Interval = Duration(15 * time.Second)
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Events.LogDir == "" {
		cfg.Events.LogDir = filepath.Join(NestorPath(), "events")
	}
	if cfg.Verifier.Timeout == 0 {
		cfg.Verifier.Timeout = Duration(60 * time.Second)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	content := `{
	// This is a JSONC comment
	"storage": {
		"backend": "sqlite",
		"database": "/tmp/nestor-test.db"
	},
	"engine": {
		"default_max_retries": 5,
		"backoff_base": "2s",
		"fail_goal_on_exhausted": true
	},
	"poller": {
		"cron": "*/5 * * * *"
	},
	"verifier": {
		"model": "llama3",
		"api_key": "${{ .Env.NESTOR_LLM_KEY }}"
	}
}`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("NESTOR_LLM_KEY", "test-key-123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("expected backend sqlite, got %s", cfg.Storage.Backend)
	}
	if cfg.Storage.Database != "/tmp/nestor-test.db" {
		t.Errorf("expected database /tmp/nestor-test.db, got %s", cfg.Storage.Database)
	}
	if cfg.Engine.DefaultMaxRetries != 5 {
		t.Errorf("expected 5 retries, got %d", cfg.Engine.DefaultMaxRetries)
	}
	if cfg.Engine.BackoffBase.Duration() != 2*time.Second {
		t.Errorf("expected backoff base 2s, got %v", cfg.Engine.BackoffBase.Duration())
	}
	if !cfg.Engine.FailGoalOnExhausted {
		t.Error("expected fail_goal_on_exhausted true")
	}
	if cfg.Poller.Cron != "*/5 * * * *" {
		t.Errorf("expected poll cron, got %q", cfg.Poller.Cron)
	}
	if cfg.Verifier.APIKey != "test-key-123" {
		t.Errorf("expected api_key test-key-123, got %s", cfg.Verifier.APIKey)
	}
}

func TestLoadDefaults(t *testing.T) {
	content := `{}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("NESTOR_PATH", "/tmp/test-nestor")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Storage.Backend != "file" {
		t.Errorf("expected file backend, got %s", cfg.Storage.Backend)
	}
	if cfg.Storage.Dir != "/tmp/test-nestor/engine" {
		t.Errorf("expected engine dir under NESTOR_PATH, got %s", cfg.Storage.Dir)
	}
	if cfg.Engine.DefaultMaxRetries != 3 {
		t.Errorf("expected 3 retries, got %d", cfg.Engine.DefaultMaxRetries)
	}
	if cfg.Engine.BackoffMultiplier != 2 {
		t.Errorf("expected multiplier 2, got %v", cfg.Engine.BackoffMultiplier)
	}
	if cfg.Engine.BackoffMax.Duration() != 5*time.Minute {
		t.Errorf("expected backoff max 5m, got %v", cfg.Engine.BackoffMax.Duration())
	}
	if cfg.Poller.Interval.Duration() != 15*time.Second {
		t.Errorf("expected 15s poll interval, got %v", cfg.Poller.Interval.Duration())
	}
	if cfg.Events.BufferSize != 1024 {
		t.Errorf("expected buffer 1024, got %d", cfg.Events.BufferSize)
	}
	if cfg.Events.LogDir != "/tmp/test-nestor/events" {
		t.Errorf("expected event log dir under NESTOR_PATH, got %s", cfg.Events.LogDir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.jsonc")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadBadSyntax(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(`{"storage": }`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid JSONC")
	}
}

func TestExpandEnvTemplates(t *testing.T) {
	t.Setenv("NESTOR_TEST_VAR", "hello")

	got := expandEnvTemplates(`key: ${{ .Env.NESTOR_TEST_VAR }}, missing: ${{ .Env.NESTOR_TEST_UNSET }}`)
	want := `key: hello, missing: `
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Storage.Backend != "file" {
		t.Errorf("default backend = %q", cfg.Storage.Backend)
	}
	if cfg.Verifier.Model != "" {
		t.Errorf("verifier model should default empty, got %q", cfg.Verifier.Model)
	}
}

package config

import "time"

// Config is the root configuration for Nestor.
type Config struct {
	Storage  StorageConfig  `json:"storage"`
	Engine   EngineConfig   `json:"engine"`
	Poller   PollerConfig   `json:"poller"`
	Events   EventsConfig   `json:"events"`
	Verifier VerifierConfig `json:"verifier"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Backend is "file" or "sqlite".
	Backend string `json:"backend"`

	// Dir is the file backend root (default: $NESTOR_PATH/engine).
	Dir string `json:"dir,omitempty"`

	// Database is the SQLite path (default: $NESTOR_PATH/nestor.db).
	Database string `json:"database,omitempty"`
}

// EngineConfig holds execution policy.
type EngineConfig struct {
	// DefaultMaxRetries applies to plan steps that do not set a budget.
	DefaultMaxRetries int `json:"default_max_retries"`

	BackoffBase       Duration `json:"backoff_base,omitempty"`
	BackoffMultiplier float64  `json:"backoff_multiplier,omitempty"`
	BackoffMax        Duration `json:"backoff_max,omitempty"`
	BackoffJitter     float64  `json:"backoff_jitter,omitempty"`

	RetryBatchSize      int  `json:"retry_batch_size,omitempty"`
	FailGoalOnExhausted bool `json:"fail_goal_on_exhausted,omitempty"`
	DisableVerification bool `json:"disable_verification,omitempty"`

	// CommandTimeout bounds command steps (default 30s).
	CommandTimeout Duration `json:"command_timeout,omitempty"`
}

// PollerConfig holds the retry sweep cadence.
type PollerConfig struct {
	Interval Duration `json:"interval,omitempty"`
	Cron     string   `json:"cron,omitempty"`
}

// EventsConfig holds event bus and log settings.
type EventsConfig struct {
	BufferSize int `json:"buffer_size"`

	// LogDir receives per-goal JSONL event logs (default:
	// $NESTOR_PATH/events). Empty string after defaulting disables the log.
	LogDir string `json:"log_dir,omitempty"`
}

// VerifierConfig configures the optional LLM judge.
type VerifierConfig struct {
	// Model names the Ollama model used for the llm verifier type; empty
	// leaves the judge unregistered.
	Model   string `json:"model,omitempty"`
	BaseURL string `json:"base_url,omitempty"`

	// APIKey may be a direct key or a ${{ .Env.VAR }} template.
	APIKey  string   `json:"api_key,omitempty"`
	Timeout Duration `json:"timeout,omitempty"`
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

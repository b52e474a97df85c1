package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/urfave/cli/v3"

	"github.com/nestor-assistant/nestor/internal/config"
	"github.com/nestor-assistant/nestor/internal/engine"
	"github.com/nestor-assistant/nestor/internal/events"
	"github.com/nestor-assistant/nestor/internal/missions"
	"github.com/nestor-assistant/nestor/internal/steps"
	"github.com/nestor-assistant/nestor/internal/verify"
)

// runtime bundles everything a command needs to talk to the engine.
type runtime struct {
	cfg   *config.Config
	store engine.Store
	bus   *events.Bus
	exec  *engine.Executor

	close func()
}

func loadConfig(cmd *cli.Command) *config.Config {
	if cmd.Bool("debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	configPath := cmd.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Warn("config not found, using defaults", "path", configPath, "error", err)
		cfg = config.Default()
	}
	return cfg
}

func openStore(cfg *config.Config) (engine.Store, func(), error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		s, err := engine.OpenSQLStore(cfg.Storage.Database)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "file", "":
		return engine.NewFileStore(cfg.Storage.Dir), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func buildRegistry(ctx context.Context, cfg *config.Config) (*verify.Registry, error) {
	reg := verify.NewRegistry()
	verify.RegisterBuiltins(reg)

	if cfg.Verifier.Model != "" {
		timeout := cfg.Verifier.Timeout.Duration()
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		modelConfig := &einoollama.ChatModelConfig{
			BaseURL: cfg.Verifier.BaseURL,
			Model:   cfg.Verifier.Model,
			Timeout: timeout,
			HTTPClient: &http.Client{
				Timeout: timeout,
			},
		}
		if modelConfig.BaseURL == "" {
			modelConfig.BaseURL = "http://localhost:11434"
		}
		chatModel, err := einoollama.NewChatModel(ctx, modelConfig)
		if err != nil {
			return nil, fmt.Errorf("init judge model: %w", err)
		}
		if err := reg.RegisterGeneric("llm", verify.NewLLM(chatModel)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// buildRuntime wires stores, bus, verifiers, runners and the executor from
// config. Every command that touches the engine goes through here so the
// wiring stays identical between one-shot commands and the poll daemon.
func buildRuntime(ctx context.Context, cmd *cli.Command) (*runtime, error) {
	cfg := loadConfig(cmd)

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	bus := events.NewBus(cfg.Events.BufferSize)

	reg, err := buildRegistry(ctx, cfg)
	if err != nil {
		closeStore()
		bus.Close()
		return nil, err
	}

	mux := steps.NewMux()
	if err := steps.RegisterDefaults(mux, cfg.Engine.CommandTimeout.Duration()); err != nil {
		closeStore()
		bus.Close()
		return nil, err
	}

	tracker := missions.NewTracker(missions.NewFileStore(filepath.Join(config.NestorPath(), "missions")), bus)

	exec := engine.NewExecutor(engine.ExecutorConfig{
		Tasks:     store,
		Goals:     store,
		Runner:    mux,
		Verifiers: reg,
		Bus:       bus,
		Missions:  tracker,
		Backoff: engine.NewExponentialBackoff(
			cfg.Engine.BackoffBase.Duration(),
			cfg.Engine.BackoffMultiplier,
			cfg.Engine.BackoffMax.Duration(),
			cfg.Engine.BackoffJitter,
		),
		RetryBatchSize:      cfg.Engine.RetryBatchSize,
		FailGoalOnExhausted: cfg.Engine.FailGoalOnExhausted,
		DisableVerification: cfg.Engine.DisableVerification,
	})

	return &runtime{
		cfg:   cfg,
		store: store,
		bus:   bus,
		exec:  exec,
		close: func() {
			bus.Close()
			closeStore()
		},
	}, nil
}

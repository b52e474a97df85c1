package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/nestor-assistant/nestor/internal/engine"
	"github.com/nestor-assistant/nestor/internal/poller"
	"github.com/nestor-assistant/nestor/internal/storage"
)

// NewPollCommand returns the poll subcommand.
func NewPollCommand() *cli.Command {
	return &cli.Command{
		Name:  "poll",
		Usage: "Run the retry poller daemon",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Sweep interval (overrides config)",
			},
			&cli.StringFlag{
				Name:  "cron",
				Usage: "Cron expression for sweeps (overrides config)",
			},
		},
		Action: runPoll,
	}
}

func runPoll(ctx context.Context, cmd *cli.Command) error {
	rt, err := buildRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	// Tasks left running by a previous process are orphans here: this is
	// the only executor, so reset them before sweeping.
	recovered, err := engine.RecoverOrphanedTasks(ctx, rt.store)
	if err != nil {
		return fmt.Errorf("recover orphaned tasks: %w", err)
	}
	if recovered > 0 {
		slog.Info("reset orphaned tasks to pending", "count", recovered)
	}

	eventLog := storage.NewEventLogger(rt.cfg.Events.LogDir, rt.bus)
	defer eventLog.Close()

	interval := rt.cfg.Poller.Interval.Duration()
	if cmd.IsSet("interval") {
		interval = cmd.Duration("interval")
	}
	cronExpr := rt.cfg.Poller.Cron
	if cmd.IsSet("cron") {
		cronExpr = cmd.String("cron")
	}

	p, err := poller.New(poller.Config{
		Sweeper:  rt.exec,
		Interval: interval,
		Cron:     cronExpr,
	})
	if err != nil {
		return err
	}

	p.Start(ctx)
	defer p.Stop()

	// Sweep once immediately so work queued while the daemon was down
	// does not wait a full interval.
	p.Sweep(ctx)

	<-ctx.Done()
	slog.Info("shutting down")

	// Give in-flight handlers a moment to drain.
	time.Sleep(100 * time.Millisecond)
	return nil
}

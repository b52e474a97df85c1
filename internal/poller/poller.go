// Package poller drives retry execution on a schedule. The engine itself
// never sleeps or schedules; the poller supplies the cadence by invoking a
// retry sweep at a fixed interval or on a cron expression.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultInterval is the sweep cadence when neither an interval nor a cron
// expression is configured.
const DefaultInterval = 15 * time.Second

// Sweeper runs one bounded batch of retry-eligible tasks.
type Sweeper interface {
	RetryFailedTasks(ctx context.Context) error
}

// Config holds the poller's dependencies and cadence.
type Config struct {
	Sweeper Sweeper

	// Interval between sweeps. Ignored when Cron is set.
	Interval time.Duration

	// Cron is a 5-field cron expression; when set the poller sweeps on
	// schedule activations instead of a fixed interval.
	Cron string
}

// Poller periodically invokes retry sweeps until stopped.
type Poller struct {
	sweeper  Sweeper
	interval time.Duration
	schedule cron.Schedule

	done chan struct{}
}

// New creates a poller from its config.
func New(cfg Config) (*Poller, error) {
	p := &Poller{
		sweeper:  cfg.Sweeper,
		interval: cfg.Interval,
		done:     make(chan struct{}),
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if cfg.Cron != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		schedule, err := parser.Parse(cfg.Cron)
		if err != nil {
			return nil, fmt.Errorf("parse poll cron %q: %w", cfg.Cron, err)
		}
		p.schedule = schedule
	}
	return p, nil
}

// Start begins sweeping in a background goroutine until Stop is called or
// ctx is cancelled.
func (p *Poller) Start(ctx context.Context) {
	slog.Info("retry poller started", "interval", p.interval, "cron", p.schedule != nil)
	go p.loop(ctx)
}

// Stop halts the poller. Safe to call once.
func (p *Poller) Stop() {
	close(p.done)
	slog.Info("retry poller stopped")
}

func (p *Poller) loop(ctx context.Context) {
	for {
		var wait time.Duration
		if p.schedule != nil {
			wait = time.Until(p.schedule.Next(time.Now()))
		} else {
			wait = p.interval
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			p.Sweep(ctx)
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.done:
			timer.Stop()
			return
		}
	}
}

// Sweep runs a single retry batch immediately.
func (p *Poller) Sweep(ctx context.Context) {
	if err := p.sweeper.RetryFailedTasks(ctx); err != nil {
		slog.Error("retry sweep failed", "error", err)
	}
}

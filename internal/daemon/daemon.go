// Package daemon is the optional continuous-mode addition (SPEC_FULL.md
// §9 "Daemon / continuous mode"): neither original script loops
// internally, but a long-lived process that prefers an in-process
// scheduler over external cron can use this instead of invoking
// cmd/idsyncd repeatedly. It wraps gocron exactly the way the teacher's
// own scheduler wraps it for policy ticks — one gocron job per configured
// pass, singleton mode so a slow pass is never overlapped by the next
// tick (spec.md §5 "single-threaded cooperative within a run").
package daemon

import (
	"context"
	"fmt"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Runner is the single method both the sync and provision passes expose
// to the daemon — a full pass is just "run it end to end and report the
// error."
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a plain function to Runner.
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// Daemon wraps a gocron.Scheduler and registers one singleton-mode job
// per named pass. The zero value is not usable — create with New.
type Daemon struct {
	cron   gocron.Scheduler
	logger *zap.Logger
}

// New creates an unstarted Daemon.
func New(logger *zap.Logger) (*Daemon, error) {
	s, err := gocron.NewScheduler(gocron.WithLimitConcurrentJobs(1, gocron.LimitModeReschedule))
	if err != nil {
		return nil, fmt.Errorf("daemon: create gocron scheduler: %w", err)
	}
	return &Daemon{cron: s, logger: logger.Named("daemon")}, nil
}

// AddPass registers a named pass on cronExpr, running in singleton mode
// so overlapping ticks are rescheduled rather than run concurrently
// (spec.md §5 "no other component suspends" — only one pass owns the
// cache's single writer connection at a time).
func (d *Daemon) AddPass(name, cronExpr string, r Runner) error {
	_, err := d.cron.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(func() {
			d.logger.Info("pass starting", zap.String("pass", name))
			if err := r.Run(context.Background()); err != nil {
				d.logger.Error("pass failed", zap.String("pass", name), zap.Error(err))
				return
			}
			d.logger.Info("pass complete", zap.String("pass", name))
		}),
		gocron.WithTags(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("daemon: register pass %q (cron %q): %w", name, cronExpr, err)
	}
	return nil
}

// Start begins firing registered passes on their schedules.
func (d *Daemon) Start() { d.cron.Start() }

// Stop gracefully shuts the scheduler down, waiting for any in-flight
// pass to finish.
func (d *Daemon) Stop() error {
	if err := d.cron.Shutdown(); err != nil {
		return fmt.Errorf("daemon: shutdown: %w", err)
	}
	return nil
}

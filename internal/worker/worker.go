// Package worker runs the scheduled maintenance jobs: idle sweeps, the daily
// timer rollover and optional content reloads.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// TimerPool is the set of live pomodoro engines.
type TimerPool interface {
	SweepIdle(ttl time.Duration, now time.Time) int
	Rollover(ctx context.Context) int
}

// BattlePool is the set of active battles.
type BattlePool interface {
	SweepIdle(ttl time.Duration, now time.Time) int
}

// ContentLoader refreshes the challenge catalog.
type ContentLoader interface {
	Load(ctx context.Context) error
}

// Schedules holds standard five-field cron expressions. An empty expression
// disables the job.
type Schedules struct {
	Sweep    string
	Rollover string
	Reload   string
}

// Options configures a Worker.
type Options struct {
	Timers        TimerPool
	Battles       BattlePool
	Content       ContentLoader
	IdleTTL       time.Duration
	ReloadTimeout time.Duration
	Schedules     Schedules
	Now           func() time.Time
}

// Worker owns the cron scheduler.
type Worker struct {
	opts Options
	cron *cron.Cron
	ctx  context.Context
	stop context.CancelFunc
}

// New registers the configured jobs. Nothing runs until Start.
func New(opts Options) (*Worker, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ReloadTimeout <= 0 {
		opts.ReloadTimeout = 10 * time.Second
	}

	logger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError))
	c := cron.New(cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{opts: opts, cron: c, ctx: ctx, stop: cancel}

	jobs := []struct {
		name string
		spec string
		run  func(context.Context)
		ok   bool
	}{
		{"sweep", opts.Schedules.Sweep, w.Sweep, opts.Timers != nil || opts.Battles != nil},
		{"rollover", opts.Schedules.Rollover, w.Rollover, opts.Timers != nil},
		{"reload", opts.Schedules.Reload, w.Reload, opts.Content != nil},
	}
	for _, job := range jobs {
		if job.spec == "" || !job.ok {
			continue
		}
		run := job.run
		if _, err := c.AddFunc(job.spec, func() { run(w.ctx) }); err != nil {
			cancel()
			return nil, fmt.Errorf("schedule %s job: %w", job.name, err)
		}
		slog.Info("Scheduled job", "job", job.name, "schedule", job.spec)
	}
	return w, nil
}

// Start runs the scheduler in the background.
func (w *Worker) Start() {
	w.cron.Start()
}

// Stop halts the scheduler and waits for running jobs until ctx expires.
func (w *Worker) Stop(ctx context.Context) {
	w.stop()
	select {
	case <-w.cron.Stop().Done():
	case <-ctx.Done():
		slog.Warn("Worker shutdown timed out", "error", ctx.Err())
	}
}

// Jobs returns the number of registered jobs.
func (w *Worker) Jobs() int {
	return len(w.cron.Entries())
}

// Sweep drops paused timers and battles idle for longer than the TTL.
func (w *Worker) Sweep(_ context.Context) {
	now := w.opts.Now()
	timers, battles := 0, 0
	if w.opts.Timers != nil {
		timers = w.opts.Timers.SweepIdle(w.opts.IdleTTL, now)
	}
	if w.opts.Battles != nil {
		battles = w.opts.Battles.SweepIdle(w.opts.IdleTTL, now)
	}
	if timers > 0 || battles > 0 {
		slog.Info("Idle sweep finished", "timers", timers, "battles", battles, "ttl", w.opts.IdleTTL)
	}
}

// Rollover moves every live timer onto the new calendar day.
func (w *Worker) Rollover(ctx context.Context) {
	if n := w.opts.Timers.Rollover(ctx); n > 0 {
		slog.Info("Daily rollover finished", "timers", n)
	}
}

// Reload refreshes the challenge catalog from its source.
func (w *Worker) Reload(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.opts.ReloadTimeout)
	defer cancel()
	if err := w.opts.Content.Load(ctx); err != nil {
		slog.Warn("Content reload failed", "error", err)
	}
}

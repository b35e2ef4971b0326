// Copyright 2025 James Ross
package discovery

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/flyingrobots/nginx-log-etl/internal/batchproc"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Daemon repeats discovery+processing on a schedule, directly adapted
// from internal/reaper/reaper.go's ticker loop, generalized to either a
// plain interval (--refresh-minutes, the default) or a cron expression
// (--refresh-cron), and bounded by an optional wall-clock budget
// (--monitor-duration), matching cmd/job-queue-system/main.go's
// cooperative-cancellation style rather than owning signal handling
// itself — the caller's ctx is expected to be cancelled on SIGINT/SIGTERM.
type Daemon struct {
	Root         string
	Include      []string
	Exclude      []string
	Scheduler    *Scheduler
	Log          *zap.Logger
	LockPath     string
	RefreshEvery time.Duration
	RefreshCron  string
	MonitorFor   time.Duration
	Options      batchproc.ProcessOptions
}

// Run acquires the process-wide lock file, then loops discover-dispatch
// cycles until ctx is cancelled or MonitorFor elapses (0 = unbounded).
func (d *Daemon) Run(ctx context.Context) error {
	unlock, err := acquireLock(d.LockPath)
	if err != nil {
		return fmt.Errorf("daemon lock: %w", err)
	}
	defer unlock()

	if d.MonitorFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.MonitorFor)
		defer cancel()
	}

	next, err := d.nextIntervalFunc()
	if err != nil {
		return err
	}

	for {
		d.runCycle(ctx)

		wait := next()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (d *Daemon) runCycle(ctx context.Context) {
	files, err := Walk(d.Root, d.Include, d.Exclude, time.Now())
	if err != nil {
		d.Log.Error("discovery walk failed", zap.Error(err))
		return
	}
	d.Log.Info("discovery cycle", zap.Int("files", len(files)))
	d.Scheduler.Run(ctx, files, d.Options)
}

// nextIntervalFunc returns a function computing the wait before the next
// cycle. A cron expression, when supplied, is validated once up front via
// robfig/cron/v3's parser and then used to compute each successive delay
// from "now"; otherwise a fixed RefreshEvery interval is used, matching
// the teacher's plain time.Ticker style in reaper.go.
func (d *Daemon) nextIntervalFunc() (func() time.Duration, error) {
	if d.RefreshCron == "" {
		interval := d.RefreshEvery
		if interval <= 0 {
			interval = time.Minute
		}
		return func() time.Duration { return interval }, nil
	}
	schedule, err := cron.ParseStandard(d.RefreshCron)
	if err != nil {
		return nil, fmt.Errorf("invalid --refresh-cron %q: %w", d.RefreshCron, err)
	}
	return func() time.Duration {
		now := time.Now()
		return schedule.Next(now).Sub(now)
	}, nil
}

// acquireLock creates an advisory lock file at path and holds it flock'd
// for the process lifetime, directly grounded on
// internal/statestore/jsonstore.go's create-then-hold pattern but never
// released until unlock is called (the daemon process lifetime, not a
// single write).
func acquireLock(path string) (unlock func(), err error) {
	if path == "" {
		return func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("another instance holds %s: %w", path, err)
	}
	return func() {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}, nil
}

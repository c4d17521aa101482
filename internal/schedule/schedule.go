// Package schedule runs the periodic refresh job: drop cached fetch results
// and, when enabled, capture a fresh snapshot of the grid page.
package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "calgrid/internal/log"
	"calgrid/internal/source"
)

const snapshotTimeout = 2 * time.Minute

// Options configures a Scheduler.
type Options struct {
	// Spec is a standard 5-field cron expression or a descriptor such as
	// "@every 15m".
	Spec     string
	Location *time.Location
	// Purge drops cached events. Required.
	Purge func()
	// Snapshot, if set, runs after every purge.
	Snapshot func(ctx context.Context) error
}

// Scheduler wraps a cron runner with a single refresh entry.
type Scheduler struct {
	opts Options
	cron *cron.Cron

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

// New validates the schedule. A bad spec is a configuration error.
func New(opts Options) (*Scheduler, error) {
	if opts.Purge == nil {
		return nil, errors.New("schedule: purge func is required")
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if _, err := cron.ParseStandard(opts.Spec); err != nil {
		return nil, &source.ConfigError{Field: "refresh", Reason: err.Error()}
	}

	logger := cronLogger{}
	s := &Scheduler{opts: opts}
	s.cron = cron.New(
		cron.WithLocation(opts.Location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := s.cron.AddFunc(opts.Spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		defer cancel()
		_ = s.RunOnce(ctx)
	}); err != nil {
		return nil, &source.ConfigError{Field: "refresh", Reason: err.Error()}
	}
	return s, nil
}

// RunOnce performs one refresh synchronously.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	started := time.Now()
	s.opts.Purge()

	var err error
	if s.opts.Snapshot != nil {
		err = s.opts.Snapshot(ctx)
	}

	s.mu.Lock()
	s.lastRun = started
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		appLog.Error("refresh snapshot failed", err, "duration", time.Since(started).String())
		return err
	}
	appLog.Info("refresh complete",
		"snapshot", s.opts.Snapshot != nil,
		"duration", time.Since(started).String(),
	)
	return nil
}

// LastRun reports when the last refresh started and how it ended.
func (s *Scheduler) LastRun() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

// Run starts the cron runner and blocks until ctx is cancelled and any
// running job has finished.
func (s *Scheduler) Run(ctx context.Context) {
	appLog.Info("refresh scheduler started", "spec", s.opts.Spec, "location", s.opts.Location.String())
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	appLog.Info("refresh scheduler stopped")
}

// cronLogger routes cron's own messages through the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}

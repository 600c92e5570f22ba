package cron

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ClockSyncer re-anchors the trusted clock and notifies open sessions.
type ClockSyncer interface {
	SyncClock(ctx context.Context) error
}

// SessionSweeper closes sessions idle for longer than the configured TTL.
type SessionSweeper interface {
	SweepIdle(ctx context.Context) int
}

// CheckinJobs are the background jobs of the check-in service
type CheckinJobs struct {
	clock         ClockSyncer
	sessions      SessionSweeper
	syncInterval  time.Duration
	syncTimeout   time.Duration
	sweepInterval time.Duration
}

func NewCheckinJobs(clock ClockSyncer, sessions SessionSweeper, syncInterval, syncTimeout, sweepInterval time.Duration) *CheckinJobs {
	return &CheckinJobs{
		clock:         clock,
		sessions:      sessions,
		syncInterval:  syncInterval,
		syncTimeout:   syncTimeout,
		sweepInterval: sweepInterval,
	}
}

// RegisterJobs registers the clock sync and the idle session sweep
func (j *CheckinJobs) RegisterJobs(scheduler *Scheduler) error {
	return errors.Join(
		scheduler.AddJob(Job{
			Name:     "sync_trusted_clock",
			Interval: j.syncInterval,
			Timeout:  j.syncTimeout,
			Fn:       j.SyncTrustedClock,
		}),
		scheduler.AddJob(Job{
			Name:     "sweep_idle_sessions",
			Interval: j.sweepInterval,
			Fn:       j.SweepIdleSessions,
		}),
	)
}

// SyncTrustedClock runs a periodic sync. A failure keeps the previous anchor.
func (j *CheckinJobs) SyncTrustedClock(ctx context.Context) error {
	return j.clock.SyncClock(ctx)
}

func (j *CheckinJobs) SweepIdleSessions(ctx context.Context) error {
	if closed := j.sessions.SweepIdle(ctx); closed > 0 {
		slog.Info("Cron: Closed idle sessions", "count", closed)
	}
	return nil
}

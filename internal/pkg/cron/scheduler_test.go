package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSyncer struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSyncer) SyncClock(ctx context.Context) error {
	f.calls.Add(1)
	return f.err
}

type fakeSweeper struct {
	calls atomic.Int32
}

func (f *fakeSweeper) SweepIdle(ctx context.Context) int {
	f.calls.Add(1)
	return 2
}

func TestScheduler_AddJobValidates(t *testing.T) {
	s := NewScheduler()
	assert.Error(t, s.AddJob(Job{Name: "bad", Fn: func(context.Context) error { return nil }}))
	assert.Error(t, s.AddJob(Job{Name: "bad", Interval: time.Second}))
}

func TestScheduler_RunOnceJoinsErrors(t *testing.T) {
	syncer := &fakeSyncer{err: errors.New("all time sources failed")}
	sweeper := &fakeSweeper{}
	s := NewScheduler()
	require.NoError(t, NewCheckinJobs(syncer, sweeper, time.Minute, time.Second, time.Minute).RegisterJobs(s))

	err := s.RunOnce(context.Background())

	assert.ErrorIs(t, err, syncer.err)
	assert.Contains(t, err.Error(), "sync_trusted_clock")
	assert.EqualValues(t, 1, syncer.calls.Load())
	assert.EqualValues(t, 1, sweeper.calls.Load())
}

func TestScheduler_StartRunsImmediatelyAndStops(t *testing.T) {
	syncer := &fakeSyncer{}
	sweeper := &fakeSweeper{}
	s := NewScheduler()
	require.NoError(t, NewCheckinJobs(syncer, sweeper, time.Hour, time.Second, time.Hour).RegisterJobs(s))

	s.Start()
	assert.Eventually(t, func() bool {
		return syncer.calls.Load() == 1 && sweeper.calls.Load() == 1
	}, time.Second, 5*time.Millisecond)
	s.Stop()
}

func TestScheduler_JobTimeout(t *testing.T) {
	s := NewScheduler()
	require.NoError(t, s.AddJob(Job{
		Name:     "slow",
		Interval: time.Hour,
		Timeout:  10 * time.Millisecond,
		Fn: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}))

	err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

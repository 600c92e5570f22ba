package clock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-checkin-go/internal/domain/timesync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMonotonic struct {
	mu  sync.Mutex
	now time.Duration
}

func (f *fakeMonotonic) Now() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeMonotonic) Advance(d time.Duration) {
	f.mu.Lock()
	f.now += d
	f.mu.Unlock()
}

type countingSource struct {
	name  string
	calls atomic.Int32
	fetch func(ctx context.Context) (time.Time, error)
}

func (s *countingSource) Name() string { return s.name }

func (s *countingSource) Fetch(ctx context.Context) (time.Time, error) {
	s.calls.Add(1)
	return s.fetch(ctx)
}

func failingSource(name string) *countingSource {
	return &countingSource{name: name, fetch: func(ctx context.Context) (time.Time, error) {
		return time.Time{}, errors.New("connection refused")
	}}
}

func testOptions(mono *fakeMonotonic) Options {
	return Options{
		Location:     time.UTC,
		RetryInitial: time.Millisecond,
		RetryMax:     2 * time.Millisecond,
		MaxRounds:    3,
		Monotonic:    mono,
	}
}

type memoryCache struct {
	mu     sync.Mutex
	offset *timesync.CachedOffset
}

func newMemoryCache() *memoryCache {
	return &memoryCache{}
}

func (m *memoryCache) Load(ctx context.Context) (timesync.CachedOffset, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offset == nil {
		return timesync.CachedOffset{}, false, nil
	}
	return *m.offset, true, nil
}

func (m *memoryCache) Save(ctx context.Context, offset timesync.CachedOffset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offset = &offset
	return nil
}

var serverTime = time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)

func TestClock_NotReadyBeforeSync(t *testing.T) {
	c := New(nil, nil, testOptions(&fakeMonotonic{}))

	_, ok := c.Now()
	assert.False(t, ok)
	assert.Equal(t, StateUnsynced, c.State())
}

func TestClock_SyncCompensatesHalfRoundTrip(t *testing.T) {
	mono := &fakeMonotonic{now: time.Hour}
	src := NewSource("crm", func(ctx context.Context) (time.Time, error) {
		mono.Advance(200 * time.Millisecond)
		return serverTime, nil
	})

	c := New([]Source{src}, nil, testOptions(mono))
	require.NoError(t, c.Sync(context.Background()))

	now, ok := c.Now()
	require.True(t, ok)
	assert.Equal(t, serverTime.Add(100*time.Millisecond), now)

	st := c.Status()
	assert.Equal(t, StateReady, st.State)
	assert.Equal(t, "crm", st.Source)
	assert.Equal(t, 200*time.Millisecond, st.RTT)
	assert.Equal(t, 100*time.Millisecond, st.Accuracy)
}

func TestClock_NowAdvancesWithMonotonicOnly(t *testing.T) {
	mono := &fakeMonotonic{}
	wall := serverTime.Add(-3 * time.Hour)
	opts := testOptions(mono)
	opts.WallClock = func() time.Time { return wall }

	c := New([]Source{NewSource("crm", func(ctx context.Context) (time.Time, error) {
		return serverTime, nil
	})}, nil, opts)
	require.NoError(t, c.Sync(context.Background()))

	first, ok := c.Now()
	require.True(t, ok)

	// Device clock jumps a full day; trusted time must not notice.
	wall = wall.Add(24 * time.Hour)
	mono.Advance(1500 * time.Millisecond)

	second, ok := c.Now()
	require.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, second.Sub(first))
}

func TestClock_FallsBackToNextSource(t *testing.T) {
	primary := failingSource("crm")
	secondary := &countingSource{name: "worldtimeapi", fetch: func(ctx context.Context) (time.Time, error) {
		return serverTime, nil
	}}

	c := New([]Source{primary, secondary}, nil, testOptions(&fakeMonotonic{}))
	require.NoError(t, c.Sync(context.Background()))

	assert.Equal(t, int32(1), primary.calls.Load())
	assert.Equal(t, int32(1), secondary.calls.Load())
	assert.Equal(t, "worldtimeapi", c.Status().Source)
}

func TestClock_AllSourcesFailStaysUnsynced(t *testing.T) {
	a := failingSource("crm")
	b := failingSource("worldtimeapi")

	c := New([]Source{a, b}, nil, testOptions(&fakeMonotonic{}))
	err := c.Sync(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, int32(3), a.calls.Load())
	assert.Equal(t, int32(3), b.calls.Load())

	_, ok := c.Now()
	assert.False(t, ok)
	assert.Equal(t, StateUnsynced, c.State())
	assert.NotEmpty(t, c.Status().LastError)
}

func TestClock_ReadyRetainedAcrossFailedSync(t *testing.T) {
	mono := &fakeMonotonic{}
	fail := false
	src := NewSource("crm", func(ctx context.Context) (time.Time, error) {
		if fail {
			return time.Time{}, errors.New("timeout")
		}
		return serverTime, nil
	})

	c := New([]Source{src}, nil, testOptions(mono))
	require.NoError(t, c.Sync(context.Background()))

	fail = true
	mono.Advance(time.Minute)
	require.Error(t, c.Sync(context.Background()))

	now, ok := c.Now()
	require.True(t, ok)
	assert.Equal(t, StateReady, c.State())
	assert.Equal(t, serverTime.Add(time.Minute), now)
}

func TestClock_SavesOffsetToCache(t *testing.T) {
	mono := &fakeMonotonic{}
	opts := testOptions(mono)
	opts.WallClock = func() time.Time { return serverTime.Add(-10 * time.Minute) }
	cache := newMemoryCache()

	c := New([]Source{NewSource("crm", func(ctx context.Context) (time.Time, error) {
		return serverTime, nil
	})}, cache, opts)
	require.NoError(t, c.Sync(context.Background()))

	cached, ok, err := cache.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10*time.Minute, cached.Offset)
	assert.Equal(t, "crm", cached.Source)
}

func TestClock_RestoresFromCacheWhenNeverSynced(t *testing.T) {
	mono := &fakeMonotonic{}
	wall := serverTime
	opts := testOptions(mono)
	opts.WallClock = func() time.Time { return wall }

	cache := newMemoryCache()
	require.NoError(t, cache.Save(context.Background(), timesync.CachedOffset{Offset: 90 * time.Second, Source: "crm"}))

	c := New([]Source{failingSource("crm")}, cache, opts)
	require.Error(t, c.Sync(context.Background()))

	now, ok := c.Now()
	require.True(t, ok)
	assert.Equal(t, serverTime.Add(90*time.Second), now)
	assert.Equal(t, SourceCache, c.Status().Source)

	// Once restored, trusted time follows the monotonic clock.
	wall = wall.Add(-time.Hour)
	mono.Advance(time.Second)
	later, _ := c.Now()
	assert.Equal(t, time.Second, later.Sub(now))
}

func TestClock_CachedOffsetIsClamped(t *testing.T) {
	opts := testOptions(&fakeMonotonic{})
	opts.WallClock = func() time.Time { return serverTime }

	cache := newMemoryCache()
	require.NoError(t, cache.Save(context.Background(), timesync.CachedOffset{Offset: -72 * time.Hour}))

	c := New([]Source{failingSource("crm")}, cache, opts)
	require.Error(t, c.Sync(context.Background()))

	now, ok := c.Now()
	require.True(t, ok)
	assert.Equal(t, serverTime.Add(-24*time.Hour), now)
}

func TestClock_NoSources(t *testing.T) {
	c := New(nil, nil, testOptions(&fakeMonotonic{}))
	assert.ErrorIs(t, c.Sync(context.Background()), ErrNoSources)
}

func TestClock_ResetDropsAnchor(t *testing.T) {
	c := New([]Source{NewSource("crm", func(ctx context.Context) (time.Time, error) {
		return serverTime, nil
	})}, nil, testOptions(&fakeMonotonic{}))
	require.NoError(t, c.Sync(context.Background()))

	c.Reset()

	_, ok := c.Now()
	assert.False(t, ok)
	assert.Equal(t, StateUnsynced, c.State())
}

func TestClock_NowUsesLocation(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	opts := testOptions(&fakeMonotonic{})
	opts.Location = jakarta

	c := New([]Source{NewSource("crm", func(ctx context.Context) (time.Time, error) {
		return time.Date(2025, 3, 14, 20, 30, 0, 0, time.UTC), nil
	})}, nil, opts)
	require.NoError(t, c.Sync(context.Background()))

	now, _ := c.Now()
	assert.Equal(t, "2025-03-15", now.Format("2006-01-02"))
	assert.Equal(t, jakarta, now.Location())
}

type deadlineCache struct {
	offset timesync.CachedOffset
}

func (d *deadlineCache) Load(ctx context.Context) (timesync.CachedOffset, bool, error) {
	if err := ctx.Err(); err != nil {
		return timesync.CachedOffset{}, false, err
	}
	return d.offset, true, nil
}

func (d *deadlineCache) Save(ctx context.Context, offset timesync.CachedOffset) error {
	return ctx.Err()
}

func TestClock_RestoresFromCacheAfterCallerDeadline(t *testing.T) {
	opts := testOptions(&fakeMonotonic{})
	opts.SourceTimeout = 50 * time.Millisecond
	opts.WallClock = func() time.Time { return serverTime }

	hanging := NewSource("crm", func(ctx context.Context) (time.Time, error) {
		<-ctx.Done()
		return time.Time{}, ctx.Err()
	})
	cache := &deadlineCache{offset: timesync.CachedOffset{Offset: time.Minute, Source: "crm"}}
	c := New([]Source{hanging}, cache, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	require.Error(t, c.Sync(ctx))

	now, ok := c.Now()
	require.True(t, ok)
	assert.Equal(t, serverTime.Add(time.Minute), now)
	assert.Equal(t, StateReady, c.State())
	assert.Equal(t, SourceCache, c.Status().Source)
}

func TestClock_SyncBudgetCoversEveryRound(t *testing.T) {
	opts := testOptions(&fakeMonotonic{})
	opts.SourceTimeout = 5 * time.Second
	opts.RetryMax = 10 * time.Second

	c := New([]Source{failingSource("crm"), failingSource("worldtimeapi"), failingSource("timeapi.io")}, nil, opts)

	// 3 rounds x 3 sources x 5s, 3 waits of at most 10s, one cache read.
	assert.Equal(t, 45*time.Second+30*time.Second+5*time.Second, c.SyncBudget())
}

func TestClock_HangingSourcesGetAllRoundsWithinBudget(t *testing.T) {
	opts := testOptions(&fakeMonotonic{})
	opts.SourceTimeout = 50 * time.Millisecond

	hanging := &countingSource{name: "crm", fetch: func(ctx context.Context) (time.Time, error) {
		<-ctx.Done()
		return time.Time{}, ctx.Err()
	}}
	c := New([]Source{hanging}, nil, opts)

	ctx, cancel := context.WithTimeout(context.Background(), c.SyncBudget())
	defer cancel()
	err := c.Sync(ctx)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 rounds")
	assert.Equal(t, int32(3), hanging.calls.Load())
}

package clock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cmlabs-hris/hris-checkin-go/internal/domain/timesync"
	"golang.org/x/sync/singleflight"
)

// State of the trusted clock. Ready is never left once reached, except by Reset.
type State string

const (
	StateUnsynced State = "unsynced"
	StateSyncing  State = "syncing"
	StateReady    State = "ready"
)

// SourceCache names syncs restored from the offset cache.
const SourceCache = "cache"

var ErrNoSources = errors.New("no time sources configured")

// TimeSync anchors trusted time: ServerTime was true at monotonic Mark.
type TimeSync struct {
	ServerTime time.Time
	Mark       time.Duration
	Source     string
	RTT        time.Duration
}

type Options struct {
	Location        *time.Location
	SourceTimeout   time.Duration
	MaxRounds       uint
	RetryInitial    time.Duration
	RetryMax        time.Duration
	MaxCachedOffset time.Duration
	Monotonic       Monotonic

	// WallClock is consulted only to convert a cached offset back to time.
	WallClock func() time.Time
}

func (o *Options) setDefaults() {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.SourceTimeout <= 0 {
		o.SourceTimeout = 5 * time.Second
	}
	if o.MaxRounds == 0 {
		o.MaxRounds = 3
	}
	if o.RetryInitial <= 0 {
		o.RetryInitial = time.Second
	}
	if o.RetryMax <= 0 {
		o.RetryMax = 10 * time.Second
	}
	if o.MaxCachedOffset <= 0 {
		o.MaxCachedOffset = 24 * time.Hour
	}
	if o.Monotonic == nil {
		o.Monotonic = NewMonotonic()
	}
	if o.WallClock == nil {
		o.WallClock = time.Now
	}
}

// Status is a read-only view of the clock for display.
type Status struct {
	State     State
	Now       *time.Time
	Source    string
	RTT       time.Duration
	Accuracy  time.Duration
	SyncedAt  *time.Time
	LastError string
}

// Clock derives wall-clock time from a remote anchor advanced by a
// monotonic timer, independent of the device clock.
type Clock struct {
	sources []Source
	cache   timesync.OffsetCache
	opts    Options
	group   singleflight.Group

	mu      sync.RWMutex
	current *TimeSync
	syncing bool
	lastErr error
}

// New creates an unsynced clock. Sources are tried in the given order.
func New(sources []Source, cache timesync.OffsetCache, opts Options) *Clock {
	opts.setDefaults()
	return &Clock{
		sources: sources,
		cache:   cache,
		opts:    opts,
	}
}

// Now returns trusted time in the configured location. ok is false until the
// first successful sync or cache restore.
func (c *Clock) Now() (time.Time, bool) {
	c.mu.RLock()
	ts := c.current
	c.mu.RUnlock()

	if ts == nil {
		return time.Time{}, false
	}
	elapsed := c.opts.Monotonic.Now() - ts.Mark
	return ts.ServerTime.Add(elapsed).In(c.opts.Location), true
}

// Location is the trusted-time zone.
func (c *Clock) Location() *time.Location {
	return c.opts.Location
}

func (c *Clock) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stateLocked()
}

func (c *Clock) stateLocked() State {
	switch {
	case c.current != nil:
		return StateReady
	case c.syncing:
		return StateSyncing
	default:
		return StateUnsynced
	}
}

func (c *Clock) Status() Status {
	now, ok := c.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Status{State: c.stateLocked()}
	if ok {
		st.Now = &now
	}
	if c.current != nil {
		synced := c.current.ServerTime.In(c.opts.Location)
		st.Source = c.current.Source
		st.RTT = c.current.RTT
		st.Accuracy = c.current.RTT / 2
		st.SyncedAt = &synced
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// Sync refreshes the anchor. Concurrent callers share one attempt. On total
// failure a previous anchor is kept; a clock that was never ready falls back
// to the offset cache when one exists. The source error is returned either way.
func (c *Clock) Sync(ctx context.Context) error {
	_, err, _ := c.group.Do("sync", func() (interface{}, error) {
		return nil, c.sync(ctx)
	})
	return err
}

// Reset drops the anchor. Used by an explicit application reset only.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
	c.lastErr = nil
}

// SyncBudget is the longest a single Sync can take when every source hangs:
// all rounds through all sources, the waits between rounds and one cache read.
func (c *Clock) SyncBudget() time.Duration {
	rounds := time.Duration(c.opts.MaxRounds)
	perRound := time.Duration(len(c.sources)) * c.opts.SourceTimeout
	return rounds*perRound + rounds*c.opts.RetryMax + c.opts.SourceTimeout
}

func (c *Clock) sync(ctx context.Context) error {
	if len(c.sources) == 0 {
		return ErrNoSources
	}

	c.setSyncing(true)
	defer c.setSyncing(false)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.RetryInitial
	bo.MaxInterval = c.opts.RetryMax

	round := 0
	ts, err := backoff.Retry(ctx, func() (TimeSync, error) {
		round++
		return c.round(ctx)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(c.opts.MaxRounds),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("Trusted clock sync round failed", "round", round, "retry_in", next, "error", err)
		}),
	)
	if err != nil {
		err = fmt.Errorf("failed to sync trusted clock after %d rounds: %w", round, err)
		c.mu.Lock()
		c.lastErr = err
		ready := c.current != nil
		c.mu.Unlock()

		if !ready {
			c.restoreFromCache(ctx)
		}
		return err
	}

	c.mu.Lock()
	c.current = &ts
	c.lastErr = nil
	c.mu.Unlock()

	slog.Info("Trusted clock synced", "source", ts.Source, "rtt", ts.RTT, "server_time", ts.ServerTime)
	c.saveToCache(ctx, ts)
	return nil
}

// round tries every source once, in priority order.
func (c *Clock) round(ctx context.Context) (TimeSync, error) {
	var errs []error
	for _, src := range c.sources {
		ts, err := c.measure(ctx, src)
		if err == nil {
			return ts, nil
		}
		if ctx.Err() != nil {
			return TimeSync{}, backoff.Permanent(ctx.Err())
		}
		errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
	}
	return TimeSync{}, errors.Join(errs...)
}

// measure fetches one source and compensates half the round trip. This
// assumes symmetric latency, so the result is only accurate to RTT/2.
func (c *Clock) measure(ctx context.Context, src Source) (TimeSync, error) {
	sctx, cancel := context.WithTimeout(ctx, c.opts.SourceTimeout)
	defer cancel()

	start := c.opts.Monotonic.Now()
	server, err := src.Fetch(sctx)
	end := c.opts.Monotonic.Now()
	if err != nil {
		return TimeSync{}, err
	}
	if server.IsZero() {
		return TimeSync{}, fmt.Errorf("empty time returned")
	}

	rtt := end - start
	return TimeSync{
		ServerTime: server.Round(0).Add(rtt / 2),
		Mark:       end,
		Source:     src.Name(),
		RTT:        rtt,
	}, nil
}

func (c *Clock) saveToCache(ctx context.Context, ts TimeSync) {
	if c.cache == nil {
		return
	}
	wall := c.opts.WallClock().Round(0)
	trusted := ts.ServerTime.Add(c.opts.Monotonic.Now() - ts.Mark)
	offset := timesync.CachedOffset{
		Offset:  trusted.Sub(wall),
		Source:  ts.Source,
		SavedAt: trusted,
	}
	if err := c.cache.Save(ctx, offset); err != nil {
		slog.Warn("Failed to cache trusted clock offset", "error", err)
	}
}

// restoreFromCache runs after the retry loop, which may have used up ctx, so
// the read gets its own deadline.
func (c *Clock) restoreFromCache(ctx context.Context) bool {
	if c.cache == nil {
		return false
	}
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.SourceTimeout)
	defer cancel()

	cached, ok, err := c.cache.Load(lctx)
	if err != nil {
		slog.Warn("Failed to load cached clock offset", "error", err)
		return false
	}
	if !ok {
		return false
	}

	offset := clampOffset(cached.Offset, c.opts.MaxCachedOffset)
	ts := TimeSync{
		ServerTime: c.opts.WallClock().Round(0).Add(offset),
		Mark:       c.opts.Monotonic.Now(),
		Source:     SourceCache,
	}

	c.mu.Lock()
	if c.current == nil {
		c.current = &ts
	}
	c.mu.Unlock()

	slog.Warn("Trusted clock restored from cached offset", "offset", offset, "cached_source", cached.Source, "saved_at", cached.SavedAt)
	return true
}

func (c *Clock) setSyncing(v bool) {
	c.mu.Lock()
	c.syncing = v
	c.mu.Unlock()
}

// clampOffset bounds a cached offset to ±limit.
func clampOffset(offset, limit time.Duration) time.Duration {
	if offset > limit {
		return limit
	}
	if offset < -limit {
		return -limit
	}
	return offset
}

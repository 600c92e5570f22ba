package location

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Fix is one device position reading.
type Fix struct {
	Latitude   float64
	Longitude  float64
	Accuracy   float64
	CapturedAt time.Time
}

// Snapshot is a position with its reverse-geocoded address.
type Snapshot struct {
	Fix
	Address string
}

// Source delivers device positions. Watch is the continuous subscription;
// Current is a one-shot request bounded by ctx.
type Source interface {
	Watch(ctx context.Context) (<-chan Fix, <-chan error)
	Current(ctx context.Context) (Fix, error)
}

type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (string, error)
}

type EventKind string

const (
	EventFix     EventKind = "location"
	EventAddress EventKind = "address"
	EventError   EventKind = "location_error"
	EventFrozen  EventKind = "location_frozen"
)

type Event struct {
	Kind     EventKind
	Snapshot Snapshot
	Err      error
}

type Options struct {
	FreezeTimeout  time.Duration
	GeocodeTimeout time.Duration

	// Now stamps fixes that arrive without a capture time.
	Now      func() time.Time
	OnChange func(Event)
}

// Tracker keeps a live position fed by a Source and a frozen copy latched
// by Freeze. Live updates never modify the frozen copy.
type Tracker struct {
	source   Source
	geocoder Geocoder
	opts     Options

	mu         sync.Mutex
	live       *Snapshot
	liveSeq    uint64
	addressSeq uint64
	seq        uint64
	frozen     *Snapshot
	frozenSeq  uint64
	isFrozen   bool
	lastErr    error
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	started    bool
}

func NewTracker(source Source, geocoder Geocoder, opts Options) *Tracker {
	if opts.FreezeTimeout <= 0 {
		opts.FreezeTimeout = 10 * time.Second
	}
	if opts.GeocodeTimeout <= 0 {
		opts.GeocodeTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		source:   source,
		geocoder: geocoder,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the source. It is a no-op when already started.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.started || t.ctx.Err() != nil {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.wg.Add(1)
	t.mu.Unlock()

	fixes, errs := t.source.Watch(t.ctx)

	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-t.ctx.Done():
				return
			case fix, ok := <-fixes:
				if !ok {
					return
				}
				t.HandleFix(fix)
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				t.HandleError(err)
			}
		}
	}()
}

// Stop ends the subscription and drops in-flight geocode results.
// Goroutines are only added under t.mu with a live ctx, so none can be added
// once the cancel below is visible.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.cancel()
	t.mu.Unlock()
	t.wg.Wait()
}

// HandleFix applies a new live position and starts geocoding it.
func (t *Tracker) HandleFix(fix Fix) {
	if fix.CapturedAt.IsZero() {
		fix.CapturedAt = t.opts.Now()
	}

	t.mu.Lock()
	if t.ctx.Err() != nil {
		t.mu.Unlock()
		return
	}
	seq := t.applyFixLocked(fix)
	snap := *t.live
	geocoding := t.addGeocodeLocked()
	t.mu.Unlock()

	t.emit(Event{Kind: EventFix, Snapshot: snap})
	if geocoding {
		go t.geocode(seq, fix)
	}
}

func (t *Tracker) applyFixLocked(fix Fix) uint64 {
	t.seq++
	t.live = &Snapshot{Fix: fix}
	t.liveSeq = t.seq
	t.lastErr = nil

	// A freeze that found no position takes the first one to arrive.
	if t.isFrozen && t.frozen == nil {
		frozen := *t.live
		t.frozen = &frozen
		t.frozenSeq = t.seq
	}
	return t.seq
}

// HandleError records a position error. The last live fix is kept.
func (t *Tracker) HandleError(err error) {
	t.mu.Lock()
	t.lastErr = err
	t.mu.Unlock()

	slog.Debug("Location error", "error", err)
	t.emit(Event{Kind: EventError, Err: err})
}

// addGeocodeLocked registers a geocode goroutine unless the tracker is
// stopped. It must run under t.mu, which Stop also holds to cancel.
func (t *Tracker) addGeocodeLocked() bool {
	if t.geocoder == nil || t.ctx.Err() != nil {
		return false
	}
	t.wg.Add(1)
	return true
}

// geocode resolves the address of one fix. The caller has already added it
// to t.wg.
func (t *Tracker) geocode(seq uint64, fix Fix) {
	defer t.wg.Done()

	ctx, cancel := context.WithTimeout(t.ctx, t.opts.GeocodeTimeout)
	defer cancel()

	address, err := t.geocoder.Reverse(ctx, fix.Latitude, fix.Longitude)
	if err != nil {
		slog.Debug("Reverse geocode failed", "seq", seq, "error", err)
		return
	}
	t.applyAddress(seq, address)
}

// applyAddress applies a geocode result only if it answers the latest fix.
func (t *Tracker) applyAddress(seq uint64, address string) {
	t.mu.Lock()
	if t.ctx.Err() != nil {
		t.mu.Unlock()
		return
	}

	applied := false
	if seq == t.seq && t.live != nil && t.liveSeq == seq {
		t.live.Address = address
		t.addressSeq = seq
		applied = true
	}
	if t.frozen != nil && t.frozenSeq == seq && t.frozen.Address == "" {
		t.frozen.Address = address
		applied = true
	}

	var snap Snapshot
	if t.live != nil {
		snap = *t.live
	}
	t.mu.Unlock()

	if !applied {
		slog.Debug("Discarded stale geocode result", "seq", seq)
		return
	}
	t.emit(Event{Kind: EventAddress, Snapshot: snap})
}

// Freeze latches the current live position. Without a live fix it waits up
// to FreezeTimeout for a one-shot reading. The returned error is non-nil only
// when no position could be latched.
func (t *Tracker) Freeze(ctx context.Context) (Snapshot, error) {
	t.mu.Lock()
	t.isFrozen = true
	if t.frozen != nil {
		snap := *t.frozen
		t.mu.Unlock()
		return snap, nil
	}
	if t.live != nil {
		snap := t.freezeLiveLocked()
		t.mu.Unlock()
		t.emit(Event{Kind: EventFrozen, Snapshot: snap})
		return snap, nil
	}
	t.mu.Unlock()

	octx, cancel := context.WithTimeout(ctx, t.opts.FreezeTimeout)
	defer cancel()

	fix, err := t.source.Current(octx)
	if err != nil {
		t.mu.Lock()
		if t.frozen != nil {
			// A subscription fix latched in the meantime.
			snap := *t.frozen
			t.mu.Unlock()
			return snap, nil
		}
		t.lastErr = err
		t.mu.Unlock()
		return Snapshot{}, err
	}
	if fix.CapturedAt.IsZero() {
		fix.CapturedAt = t.opts.Now()
	}

	t.mu.Lock()
	if !t.isFrozen {
		t.mu.Unlock()
		return Snapshot{}, ErrPositionUnavailable
	}
	if t.frozen != nil {
		snap := *t.frozen
		t.mu.Unlock()
		return snap, nil
	}
	seq := t.applyFixLocked(fix)
	snap := *t.frozen
	live := *t.live
	geocoding := t.addGeocodeLocked()
	t.mu.Unlock()

	t.emit(Event{Kind: EventFix, Snapshot: live})
	t.emit(Event{Kind: EventFrozen, Snapshot: snap})
	if geocoding {
		go t.geocode(seq, fix)
	}
	return snap, nil
}

func (t *Tracker) freezeLiveLocked() Snapshot {
	frozen := *t.live
	if t.addressSeq != t.liveSeq {
		frozen.Address = ""
	}
	t.frozen = &frozen
	t.frozenSeq = t.liveSeq
	return frozen
}

// Unfreeze drops the frozen copy; the next Freeze reads the live value again.
func (t *Tracker) Unfreeze() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.isFrozen = false
	t.frozen = nil
	t.frozenSeq = 0
}

// Live returns the latest position, if any.
func (t *Tracker) Live() (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.live == nil {
		return Snapshot{}, false
	}
	return *t.live, true
}

// Frozen returns the latched position, if any.
func (t *Tracker) Frozen() (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen == nil {
		return Snapshot{}, false
	}
	return *t.frozen, true
}

func (t *Tracker) IsFrozen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isFrozen
}

// Err returns the last position error. A new fix clears it.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

func (t *Tracker) emit(ev Event) {
	if t.opts.OnChange != nil {
		t.opts.OnChange(ev)
	}
}

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cmlabs-hris/hris-checkin-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/sse"
	attendancesvc "github.com/cmlabs-hris/hris-checkin-go/internal/service/attendance"
	"github.com/cmlabs-hris/hris-checkin-go/internal/service/file"
	"github.com/cmlabs-hris/hris-checkin-go/internal/service/location"
	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found or expired")

// Event names on the session stream.
const (
	EventState    = "state"
	EventLocation = "location"
)

type Config struct {
	IdleTTL      time.Duration
	RecordType   string
	InlineSelfie bool
	Location     location.Options
}

type Dependencies struct {
	Clock     attendancesvc.TrustedClock
	Geocoder  location.Geocoder
	Store     attendance.RecordStore
	Uploader  attendance.AttachmentUploader
	Directory attendance.Directory
	Files     file.FileService
	Hub       *sse.Hub
}

// Session is one connected device: its own position feed, tracker and
// check-in flow.
type Session struct {
	attendance.Service

	ID        string
	CreatedAt time.Time

	source   *location.PushSource
	tracker  *location.Tracker
	lastSeen atomic.Int64
}

// PushFix feeds a device position into the session's tracker.
func (s *Session) PushFix(req attendance.PositionFixRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	s.source.Push(location.Fix{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Accuracy:  req.Accuracy,
	})
	return nil
}

// PushError reports a device geolocation failure.
func (s *Session) PushError(req attendance.PositionErrorRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	s.source.PushError(location.ErrorFromCode(req.Code, req.Message))
	return nil
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

// Manager owns the live sessions. The trusted clock is shared by all of them.
type Manager struct {
	deps Dependencies
	cfg  Config
	now  func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(deps Dependencies, cfg Config) *Manager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	return &Manager{
		deps:     deps,
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session with its location subscription running.
func (m *Manager) Create(ctx context.Context) *Session {
	id := uuid.NewString()
	source := location.NewPushSource()

	trackerOpts := m.cfg.Location
	trackerOpts.OnChange = func(ev location.Event) { m.publishLocation(id, ev) }
	tracker := location.NewTracker(source, m.deps.Geocoder, trackerOpts)

	orch := attendancesvc.NewOrchestrator(attendancesvc.Dependencies{
		Clock:     m.deps.Clock,
		Tracker:   tracker,
		Resolver:  attendancesvc.NewResolver(m.deps.Store),
		Store:     m.deps.Store,
		Uploader:  m.deps.Uploader,
		Directory: m.deps.Directory,
		Files:     m.deps.Files,
	}, attendancesvc.Options{
		SessionID:    id,
		RecordType:   m.cfg.RecordType,
		InlineSelfie: m.cfg.InlineSelfie,
		OnChange:     func() { m.publishState(id) },
	})

	s := &Session{
		Service:   orch,
		ID:        id,
		CreatedAt: m.now(),
		source:    source,
		tracker:   tracker,
	}
	s.touch(s.CreatedAt)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	tracker.Start()
	slog.Info("Session created", "session_id", id)
	return s
}

// Get returns a live session and marks it active.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(m.now())
	return s, nil
}

// Close stops the session's tracker, deletes its staged selfie and ends its
// event streams.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	m.shutdown(ctx, s)
	slog.Info("Session closed", "session_id", id)
	return nil
}

// SweepIdle closes sessions idle longer than the TTL that have no open
// event stream. It returns how many were closed.
func (m *Manager) SweepIdle(ctx context.Context) int {
	now := m.now()

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.idleSince(now) < m.cfg.IdleTTL {
			continue
		}
		if m.deps.Hub != nil && m.deps.Hub.SubscriberCount(id) > 0 {
			continue
		}
		idle = append(idle, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range idle {
		m.shutdown(ctx, s)
		slog.Info("Idle session closed", "session_id", s.ID)
	}
	return len(idle)
}

// CloseAll ends every session, used on shutdown.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		m.shutdown(ctx, s)
	}
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// SyncClock syncs the shared clock and pushes the new state to every session.
func (m *Manager) SyncClock(ctx context.Context) error {
	err := m.deps.Clock.Sync(ctx)

	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.resolvePending(ctx, id)
		m.publishState(id)
	}
	return err
}

func (m *Manager) resolvePending(ctx context.Context, id string) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return
	}
	if err := s.ResolvePending(ctx); err != nil {
		slog.Warn("Failed to resolve attendance state after clock sync", "session_id", id, "error", err)
	}
}

func (m *Manager) shutdown(ctx context.Context, s *Session) {
	s.tracker.Stop()
	s.Service.Close(ctx)
	if m.deps.Hub != nil {
		m.deps.Hub.Close(s.ID)
	}
}

func (m *Manager) publishState(id string) {
	if m.deps.Hub == nil || m.deps.Hub.SubscriberCount(id) == 0 {
		return
	}
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return
	}
	m.deps.Hub.Publish(id, sse.Event{Event: EventState, Data: s.View(context.Background())})
}

// LocationEvent is the payload of a location stream event.
type LocationEvent struct {
	Kind     location.EventKind       `json:"kind"`
	Location *attendance.LocationView `json:"location,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

func (m *Manager) publishLocation(id string, ev location.Event) {
	if m.deps.Hub == nil {
		return
	}
	payload := LocationEvent{Kind: ev.Kind}
	if ev.Err != nil {
		payload.Error = ev.Err.Error()
	}
	if !ev.Snapshot.CapturedAt.IsZero() {
		payload.Location = &attendance.LocationView{
			Latitude:   ev.Snapshot.Latitude,
			Longitude:  ev.Snapshot.Longitude,
			Accuracy:   ev.Snapshot.Accuracy,
			Address:    ev.Snapshot.Address,
			CapturedAt: ev.Snapshot.CapturedAt.Format(attendance.TimestampLayout),
			Frozen:     ev.Kind == location.EventFrozen,
		}
	}
	m.deps.Hub.Publish(id, sse.Event{Event: EventLocation, Data: payload})
}

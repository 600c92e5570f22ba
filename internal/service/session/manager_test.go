package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-checkin-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/sse"
	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/storage"
	"github.com/cmlabs-hris/hris-checkin-go/internal/service/file"
	"github.com/cmlabs-hris/hris-checkin-go/internal/service/location"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClock struct {
	mu       sync.Mutex
	syncs    int
	notReady bool
}

func (c *stubClock) Now() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Date(2025, 3, 14, 8, 30, 0, 0, time.UTC), !c.notReady
}

func (c *stubClock) setReady(ready bool) {
	c.mu.Lock()
	c.notReady = !ready
	c.mu.Unlock()
}

func (c *stubClock) Sync(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncs++
	return nil
}

type stubGeocoder struct{}

func (stubGeocoder) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	return "Jl. Sudirman", nil
}

type stubStore struct{}

func (stubStore) FindLatest(ctx context.Context, employeeID, date string) (*attendance.DayRecord, error) {
	return nil, nil
}

func (stubStore) Create(ctx context.Context, r attendance.DayRecord) (attendance.DayRecord, error) {
	return r, nil
}

func (stubStore) Update(ctx context.Context, r attendance.DayRecord, a attendance.Action) (attendance.DayRecord, error) {
	return r, nil
}

type stubDirectory struct{}

func (stubDirectory) ListOffices(ctx context.Context) ([]attendance.Office, error) {
	return []attendance.Office{{ID: "HQ", Name: "Head Office"}}, nil
}

func (stubDirectory) ListEmployees(ctx context.Context, officeID string) ([]attendance.Employee, error) {
	return nil, nil
}

// checkedInStore already holds a check-in for every employee.
type checkedInStore struct {
	stubStore
}

func (checkedInStore) FindLatest(ctx context.Context, employeeID, date string) (*attendance.DayRecord, error) {
	in := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	return &attendance.DayRecord{ID: "ATT-1", EmployeeID: employeeID, Date: date, CheckInAt: &in}, nil
}

func newTestManager(t *testing.T) (*Manager, *sse.Hub, *stubClock) {
	return newTestManagerWithStore(t, stubStore{})
}

func newTestManagerWithStore(t *testing.T, store attendance.RecordStore) (*Manager, *sse.Hub, *stubClock) {
	t.Helper()
	fs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	hub := sse.NewHub(64)
	clk := &stubClock{}
	m := NewManager(Dependencies{
		Clock:     clk,
		Geocoder:  stubGeocoder{},
		Store:     store,
		Directory: stubDirectory{},
		Files:     file.NewFileService(fs),
		Hub:       hub,
	}, Config{
		IdleTTL:  time.Minute,
		Location: location.Options{FreezeTimeout: 50 * time.Millisecond},
	})
	t.Cleanup(func() { m.CloseAll(context.Background()) })
	return m, hub, clk
}

func TestManager_CreateGetClose(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	s := m.Create(ctx)
	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, m.Count())

	require.NoError(t, m.Close(ctx, s.ID))
	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Close(ctx, s.ID), ErrSessionNotFound)
}

func TestSession_PushFixReachesTracker(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	s := m.Create(ctx)

	require.NoError(t, s.PushFix(attendance.PositionFixRequest{Latitude: -6.2, Longitude: 106.8, Accuracy: 5}))
	assert.Error(t, s.PushFix(attendance.PositionFixRequest{Latitude: 100}))

	assert.Eventually(t, func() bool {
		view := s.View(ctx)
		return view.Location != nil && view.Location.Address == "Jl. Sudirman"
	}, time.Second, 5*time.Millisecond)

	view, err := s.SelectOffice(ctx, attendance.SelectOfficeRequest{OfficeID: "HQ"})
	require.NoError(t, err)
	assert.True(t, view.Location.Frozen)
	assert.Equal(t, -6.2, view.Location.Latitude)
}

func TestSession_PushError(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	s := m.Create(ctx)

	require.NoError(t, s.PushError(attendance.PositionErrorRequest{Code: location.CodePermissionDenied}))
	assert.Error(t, s.PushError(attendance.PositionErrorRequest{Code: 9}))

	assert.Eventually(t, func() bool {
		return s.View(ctx).LocationError != ""
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, s.View(ctx).LocationError, "permission denied")
}

func TestManager_PublishesEvents(t *testing.T) {
	m, hub, clk := newTestManager(t)
	ctx := context.Background()
	s := m.Create(ctx)

	events, unsubscribe := hub.Subscribe(s.ID)
	defer unsubscribe()

	require.NoError(t, s.PushFix(attendance.PositionFixRequest{Latitude: -6.2, Longitude: 106.8}))
	require.NoError(t, m.SyncClock(ctx))
	assert.Equal(t, 1, clk.syncs)

	seen := map[string]bool{}
	timeout := time.After(time.Second)
	for !(seen[EventLocation] && seen[EventState]) {
		select {
		case ev := <-events:
			seen[ev.Event] = true
			assert.Equal(t, s.ID, ev.SessionID)
		case <-timeout:
			t.Fatalf("missing events, got %v", seen)
		}
	}
}

func TestManager_SweepIdle(t *testing.T) {
	m, hub, _ := newTestManager(t)
	ctx := context.Background()

	now := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	idle := m.Create(ctx)
	streaming := m.Create(ctx)
	_, unsubscribe := hub.Subscribe(streaming.ID)
	defer unsubscribe()

	now = now.Add(30 * time.Second)
	active := m.Create(ctx)

	now = now.Add(45 * time.Second)
	assert.Equal(t, 1, m.SweepIdle(ctx))

	_, err := m.Get(idle.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Get(streaming.ID)
	assert.NoError(t, err)
	_, err = m.Get(active.ID)
	assert.NoError(t, err)
}

func TestManager_SyncClockResolvesProvisionalState(t *testing.T) {
	m, _, clk := newTestManagerWithStore(t, checkedInStore{})
	clk.setReady(false)
	ctx := context.Background()
	s := m.Create(ctx)

	_, err := s.SelectOffice(ctx, attendance.SelectOfficeRequest{OfficeID: "HQ"})
	require.NoError(t, err)
	view, err := s.SelectEmployee(ctx, attendance.SelectEmployeeRequest{EmployeeID: "EMP-1"})
	require.NoError(t, err)
	assert.False(t, view.StateResolved)
	assert.Equal(t, attendance.StateNotStarted, view.State)

	clk.setReady(true)
	require.NoError(t, m.SyncClock(ctx))

	view = s.View(ctx)
	assert.True(t, view.StateResolved)
	assert.Equal(t, attendance.StateCheckedIn, view.State)
	assert.Equal(t, "2025-03-14", view.Date)
	assert.Equal(t, attendance.ActionLunchStart, view.Action)
}

package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cmlabs-hris/hris-checkin-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/utils"
	"github.com/cmlabs-hris/hris-checkin-go/internal/service/file"
	"github.com/cmlabs-hris/hris-checkin-go/internal/service/location"
)

// TrustedClock is the read side of the shared trusted clock.
type TrustedClock interface {
	Now() (time.Time, bool)
	Sync(ctx context.Context) error
}

// LocationTracker is the session's position tracker.
type LocationTracker interface {
	Freeze(ctx context.Context) (location.Snapshot, error)
	Unfreeze()
	Live() (location.Snapshot, bool)
	Frozen() (location.Snapshot, bool)
	Err() error
}

type Dependencies struct {
	Clock     TrustedClock
	Tracker   LocationTracker
	Resolver  *Resolver
	Store     attendance.RecordStore
	Uploader  attendance.AttachmentUploader
	Directory attendance.Directory
	Files     file.FileService
}

type Options struct {
	SessionID    string
	RecordType   string
	InlineSelfie bool

	// OnChange runs after every change of the session state.
	OnChange func()
}

// selection is the ephemeral flow state. Everything here is cleared by a
// soft reset.
type selection struct {
	office     *attendance.Office
	employeeID string
	action     attendance.Action
	frozenAt   *time.Time
	record     *attendance.DayRecord
	state      attendance.State
	resolved   bool
	selfie     *file.StagedFile
	awaitAck   bool
}

// Orchestrator sequences one device session: office (freeze point),
// employee (resolve), action, selfie, submit, acknowledge.
type Orchestrator struct {
	deps Dependencies
	opts Options

	mu         sync.Mutex
	gen        uint64
	sel        selection
	submitting bool
	submitDone chan struct{}
	closed     bool
	offices    []attendance.Office
}

func NewOrchestrator(deps Dependencies, opts Options) *Orchestrator {
	return &Orchestrator{
		deps: deps,
		opts: opts,
		sel:  selection{state: attendance.StateNotStarted},
	}
}

var _ attendance.Service = (*Orchestrator)(nil)

// View implements attendance.Service.
func (o *Orchestrator) View(ctx context.Context) attendance.SessionView {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.viewLocked()
}

// SelectOffice implements attendance.Service.
func (o *Orchestrator) SelectOffice(ctx context.Context, req attendance.SelectOfficeRequest) (attendance.SessionView, error) {
	if err := req.Validate(); err != nil {
		return o.View(ctx), err
	}

	office, err := o.findOffice(ctx, req.OfficeID)
	if err != nil {
		return o.View(ctx), err
	}

	o.mu.Lock()
	if o.submitting {
		o.mu.Unlock()
		return o.View(ctx), attendance.ErrSubmitInProgress
	}
	o.discardSelfieLocked(ctx)
	o.gen++
	gen := o.gen
	o.sel = selection{office: &office, state: attendance.StateNotStarted}
	if now, ok := o.deps.Clock.Now(); ok {
		o.sel.frozenAt = &now
	}
	o.mu.Unlock()

	// A new office is a new freeze point.
	o.deps.Tracker.Unfreeze()
	if _, err := o.deps.Tracker.Freeze(ctx); err != nil {
		slog.Warn("Location freeze found no position", "session_id", o.opts.SessionID, "error", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen {
		return o.viewLocked(), attendance.ErrSelectionChanged
	}
	o.changedLocked()
	return o.viewLocked(), nil
}

// DeselectOffice implements attendance.Service.
func (o *Orchestrator) DeselectOffice(ctx context.Context) attendance.SessionView {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.submitting {
		return o.viewLocked()
	}
	o.resetLocked(ctx)
	return o.viewLocked()
}

// SelectEmployee implements attendance.Service.
func (o *Orchestrator) SelectEmployee(ctx context.Context, req attendance.SelectEmployeeRequest) (attendance.SessionView, error) {
	if err := req.Validate(); err != nil {
		return o.View(ctx), err
	}

	o.mu.Lock()
	if o.submitting {
		o.mu.Unlock()
		return o.View(ctx), attendance.ErrSubmitInProgress
	}
	if o.sel.office == nil {
		view := o.viewLocked()
		o.mu.Unlock()
		return view, attendance.ErrOfficeRequired
	}

	o.gen++
	gen := o.gen
	o.sel.employeeID = req.EmployeeID
	o.sel.action = attendance.ActionNone
	o.sel.record = nil
	o.sel.state = attendance.StateNotStarted
	o.sel.resolved = false
	o.sel.awaitAck = false
	o.freezeTimeLocked()

	if o.sel.frozenAt == nil {
		// No trusted date yet: show a provisional state, resolved later.
		o.sel.action = attendance.Reselect(o.sel.state, attendance.ActionNone)
		o.changedLocked()
		view := o.viewLocked()
		o.mu.Unlock()
		return view, nil
	}
	date := o.sel.frozenAt.Format(attendance.DateLayout)
	o.mu.Unlock()

	record, state, err := o.deps.Resolver.ResolveToday(ctx, req.EmployeeID, date)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen {
		return o.viewLocked(), attendance.ErrSelectionChanged
	}
	if err != nil {
		o.changedLocked()
		return o.viewLocked(), err
	}
	o.applyResolvedLocked(record, state)
	o.changedLocked()
	return o.viewLocked(), nil
}

// SelectAction implements attendance.Service.
func (o *Orchestrator) SelectAction(ctx context.Context, req attendance.SelectActionRequest) (attendance.SessionView, error) {
	if err := req.Validate(); err != nil {
		return o.View(ctx), err
	}
	if err := o.ResolvePending(ctx); err != nil {
		return o.View(ctx), err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.submitting {
		return o.viewLocked(), attendance.ErrSubmitInProgress
	}
	if o.sel.office == nil {
		return o.viewLocked(), attendance.ErrOfficeRequired
	}
	if o.sel.employeeID == "" {
		return o.viewLocked(), attendance.ErrEmployeeRequired
	}
	if err := o.checkActionLocked(req.Action); err != nil {
		return o.viewLocked(), err
	}

	o.sel.action = req.Action
	o.changedLocked()
	return o.viewLocked(), nil
}

// AttachSelfie implements attendance.Service.
func (o *Orchestrator) AttachSelfie(ctx context.Context, req attendance.SelfieUpload) (attendance.SessionView, error) {
	if err := req.Validate(); err != nil {
		return o.View(ctx), err
	}

	o.mu.Lock()
	if o.submitting {
		o.mu.Unlock()
		return o.View(ctx), attendance.ErrSubmitInProgress
	}
	gen := o.gen
	o.mu.Unlock()

	staged, err := o.deps.Files.StageSelfie(ctx, o.opts.SessionID, req.File, req.FileHeader.Filename)
	if err != nil {
		return o.View(ctx), err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen || o.submitting {
		o.deleteFile(ctx, staged.Path)
		return o.viewLocked(), attendance.ErrSelectionChanged
	}
	o.discardSelfieLocked(ctx)
	o.sel.selfie = &staged
	o.changedLocked()
	return o.viewLocked(), nil
}

// Submit implements attendance.Service. Preconditions are checked locally in
// a fixed order before any network call. The selfie is uploaded first and
// the record is re-read right before it is written.
func (o *Orchestrator) Submit(ctx context.Context) (attendance.SubmitResult, error) {
	if err := o.ResolvePending(ctx); err != nil {
		return attendance.SubmitResult{}, err
	}

	o.mu.Lock()
	if o.submitting {
		o.mu.Unlock()
		return attendance.SubmitResult{}, attendance.ErrSubmitInProgress
	}
	if err := o.validateLocked(); err != nil {
		o.mu.Unlock()
		return attendance.SubmitResult{}, err
	}

	frozen, _ := o.deps.Tracker.Frozen()
	in := submission{
		officeID:   o.sel.office.ID,
		employeeID: o.sel.employeeID,
		action:     o.sel.action,
		at:         *o.sel.frozenAt,
		date:       o.sel.frozenAt.Format(attendance.DateLayout),
		loc: attendance.Location{
			Latitude:  frozen.Latitude,
			Longitude: frozen.Longitude,
			Address:   frozen.Address,
		},
		selfie: *o.sel.selfie,
	}
	o.submitting = true
	done := make(chan struct{})
	o.submitDone = done
	o.changedLocked()
	o.mu.Unlock()

	saved, err := o.submit(ctx, in)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.submitting = false
	o.submitDone = nil
	close(done)

	if o.closed {
		// Close stopped waiting and cleared the selection; the staged file
		// is ours to remove.
		o.deleteFile(ctx, in.selfie.Path)
		if err != nil {
			return attendance.SubmitResult{}, err
		}
		return submitResult(in, saved), nil
	}

	if err != nil {
		var stale *staleState
		if errors.As(err, &stale) {
			o.applyServerStateLocked(stale.record)
			err = stale.err
		}
		o.changedLocked()
		slog.Warn("Attendance submission rejected", "session_id", o.opts.SessionID, "employee_id", in.employeeID, "action", in.action, "error", err)
		return attendance.SubmitResult{}, err
	}

	o.sel.record = &saved
	o.sel.state = attendance.StateOf(&saved)
	o.sel.resolved = true
	o.sel.awaitAck = true
	o.discardSelfieLocked(ctx)
	o.changedLocked()

	slog.Info("Attendance recorded", "session_id", o.opts.SessionID, "employee_id", in.employeeID, "action", in.action, "record_id", saved.ID, "state", o.sel.state)

	return submitResult(in, saved), nil
}

func submitResult(in submission, saved attendance.DayRecord) attendance.SubmitResult {
	return attendance.SubmitResult{
		Action: in.action,
		State:  attendance.StateOf(&saved),
		Record: attendance.MapRecordToResponse(saved),
		Dialog: fmt.Sprintf("%s recorded at %s", in.action.Label(), in.at.Format("15:04:05")),
	}
}

// Acknowledge implements attendance.Service.
func (o *Orchestrator) Acknowledge(ctx context.Context) attendance.SessionView {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sel.awaitAck && !o.submitting {
		o.resetLocked(ctx)
	}
	return o.viewLocked()
}

// Refresh implements attendance.Service. A failed clock sync does not stop
// the reset; the view reports the clock as not ready.
func (o *Orchestrator) Refresh(ctx context.Context) (attendance.SessionView, error) {
	o.mu.Lock()
	if o.submitting {
		view := o.viewLocked()
		o.mu.Unlock()
		return view, attendance.ErrSubmitInProgress
	}
	o.resetLocked(ctx)
	o.offices = nil
	o.mu.Unlock()

	if err := o.deps.Clock.Sync(ctx); err != nil {
		slog.Warn("Clock sync during refresh failed", "session_id", o.opts.SessionID, "error", err)
	}
	if _, err := o.loadOffices(ctx); err != nil {
		slog.Warn("Failed to reload offices", "session_id", o.opts.SessionID, "error", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.changedLocked()
	return o.viewLocked(), nil
}

// Close implements attendance.Service. It waits for an in-flight submit so
// the staged selfie is not deleted while it is being read. If ctx ends
// first, the submit cleans up after itself.
func (o *Orchestrator) Close(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for o.submitting {
		done := o.submitDone
		o.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		o.mu.Lock()
		if ctx.Err() != nil && o.submitting {
			o.closed = true
			o.gen++
			o.sel = selection{state: attendance.StateNotStarted}
			return
		}
	}
	o.discardSelfieLocked(ctx)
	o.gen++
	o.sel = selection{state: attendance.StateNotStarted}
}

// ResolvePending implements attendance.Service. An employee chosen before
// the clock was ready has a provisional state; once trusted time gives the
// selection a date, today's record is read and the state replaced.
func (o *Orchestrator) ResolvePending(ctx context.Context) error {
	o.mu.Lock()
	if o.submitting || o.sel.resolved || o.sel.employeeID == "" {
		o.mu.Unlock()
		return nil
	}
	o.freezeTimeLocked()
	if o.sel.frozenAt == nil {
		o.mu.Unlock()
		return nil
	}
	gen := o.gen
	employeeID := o.sel.employeeID
	date := o.sel.frozenAt.Format(attendance.DateLayout)
	o.mu.Unlock()

	record, state, err := o.deps.Resolver.ResolveToday(ctx, employeeID, date)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen || o.sel.resolved || o.sel.employeeID != employeeID {
		return nil
	}
	if err != nil {
		return err
	}
	o.applyResolvedLocked(record, state)
	o.changedLocked()
	return nil
}

// ========================================
// SUBMISSION
// ========================================

type submission struct {
	officeID   string
	employeeID string
	action     attendance.Action
	at         time.Time
	date       string
	loc        attendance.Location
	selfie     file.StagedFile
}

// staleState carries the fresh server record alongside a server-truth
// rejection so the session can adopt it.
type staleState struct {
	record *attendance.DayRecord
	err    error
}

func (s *staleState) Error() string { return s.err.Error() }

func (s *staleState) Unwrap() error { return s.err }

func (o *Orchestrator) submit(ctx context.Context, in submission) (attendance.DayRecord, error) {
	ref, err := o.encodeSelfie(ctx, in)
	if err != nil {
		return attendance.DayRecord{}, err
	}

	existing, err := o.deps.Store.FindLatest(ctx, in.employeeID, in.date)
	if err != nil {
		return attendance.DayRecord{}, fmt.Errorf("failed to re-read attendance record: %w", err)
	}

	if existing == nil {
		if in.action != attendance.ActionCheckIn {
			return attendance.DayRecord{}, &staleState{record: nil, err: attendance.ErrCheckInRequired}
		}
		record := attendance.DayRecord{
			EmployeeID: in.employeeID,
			OfficeID:   in.officeID,
			Date:       in.date,
		}
		record.Stamp(in.action, in.at, in.loc, ref)
		created, err := o.deps.Store.Create(ctx, record)
		return created, o.lostRace(ctx, in, err)
	}

	state := attendance.StateOf(existing)
	if existing.TimestampOf(in.action) != nil || state == attendance.StateCompleted {
		return attendance.DayRecord{}, &staleState{record: existing, err: attendance.ErrAlreadyDone}
	}
	if !attendance.IsAllowed(state, in.action) {
		return attendance.DayRecord{}, &staleState{record: existing, err: attendance.ErrActionNotAllowed}
	}

	record := *existing
	if record.OfficeID == "" {
		record.OfficeID = in.officeID
	}
	record.Stamp(in.action, in.at, in.loc, ref)
	updated, err := o.deps.Store.Update(ctx, record, in.action)
	return updated, o.lostRace(ctx, in, err)
}

// lostRace attaches the winning record when the store rejects a write that
// another device got in first.
func (o *Orchestrator) lostRace(ctx context.Context, in submission, err error) error {
	if !errors.Is(err, attendance.ErrAlreadyDone) {
		return err
	}
	fresh, findErr := o.deps.Store.FindLatest(ctx, in.employeeID, in.date)
	if findErr != nil {
		return err
	}
	return &staleState{record: fresh, err: err}
}

// encodeSelfie turns the staged file into a record reference: an uploaded
// attachment, or an inline data URI when configured.
func (o *Orchestrator) encodeSelfie(ctx context.Context, in submission) (attendance.SelfieRef, error) {
	name := fmt.Sprintf("%s-%s-%s.jpg", in.employeeID, in.action, in.at.Format("20060102-150405"))

	if o.opts.InlineSelfie {
		uri, err := o.deps.Files.DataURI(ctx, in.selfie)
		if err != nil {
			return attendance.SelfieRef{}, fmt.Errorf("failed to encode selfie: %w", err)
		}
		return attendance.SelfieRef{Inline: uri, Name: name}, nil
	}

	encoded, err := o.deps.Files.EncodeBase64(ctx, in.selfie.Path)
	if err != nil {
		return attendance.SelfieRef{}, fmt.Errorf("failed to encode selfie: %w", err)
	}

	ref, err := o.deps.Uploader.Upload(ctx, attendance.Attachment{
		FileName:    name,
		ContentType: in.selfie.ContentType,
		Base64:      encoded,
		FieldName:   attendance.SelfieField(in.action),
		RecordType:  o.opts.RecordType,
	})
	if err != nil {
		return attendance.SelfieRef{}, err
	}
	if ref.IsZero() {
		return attendance.SelfieRef{}, attendance.ErrAttachmentMissing
	}
	return ref, nil
}

// validateLocked checks submission preconditions in priority order:
// office, employee, action, time, location, selfie.
func (o *Orchestrator) validateLocked() error {
	if o.sel.office == nil {
		return attendance.ErrOfficeRequired
	}
	if o.sel.employeeID == "" {
		return attendance.ErrEmployeeRequired
	}
	if err := o.checkActionLocked(o.sel.action); err != nil {
		return err
	}

	o.freezeTimeLocked()
	if o.sel.frozenAt == nil {
		return attendance.ErrTimeNotReady
	}

	if _, ok := o.deps.Tracker.Frozen(); !ok {
		if locErr := o.deps.Tracker.Err(); locErr != nil {
			return fmt.Errorf("%w: %s", attendance.ErrLocationMissing, locErr.Error())
		}
		return attendance.ErrLocationMissing
	}

	if o.sel.selfie == nil {
		return attendance.ErrSelfieMissing
	}
	return nil
}

// checkActionLocked rejects actions outside the allowed set, reporting
// already-done when the day is complete or the field is filled.
func (o *Orchestrator) checkActionLocked(a attendance.Action) error {
	if attendance.IsAllowed(o.sel.state, a) {
		return nil
	}
	if o.sel.state == attendance.StateCompleted || o.sel.record.TimestampOf(a) != nil {
		return attendance.ErrAlreadyDone
	}
	return attendance.ErrActionNotAllowed
}

// ========================================
// STATE HELPERS
// ========================================

// freezeTimeLocked latches trusted time if the office was chosen before the
// clock became ready.
func (o *Orchestrator) freezeTimeLocked() {
	if o.sel.frozenAt != nil || o.sel.office == nil {
		return
	}
	if now, ok := o.deps.Clock.Now(); ok {
		o.sel.frozenAt = &now
	}
}

func (o *Orchestrator) applyResolvedLocked(record *attendance.DayRecord, state attendance.State) {
	o.sel.record = record
	o.sel.state = state
	o.sel.resolved = true
	o.sel.action = attendance.Reselect(state, o.sel.action)
}

func (o *Orchestrator) applyServerStateLocked(record *attendance.DayRecord) {
	if o.sel.employeeID == "" {
		return
	}
	o.applyResolvedLocked(record, attendance.StateOf(record))
}

func (o *Orchestrator) resetLocked(ctx context.Context) {
	o.discardSelfieLocked(ctx)
	o.gen++
	o.sel = selection{state: attendance.StateNotStarted}
	o.deps.Tracker.Unfreeze()
	o.changedLocked()
}

func (o *Orchestrator) discardSelfieLocked(ctx context.Context) {
	if o.sel.selfie == nil {
		return
	}
	o.deleteFile(ctx, o.sel.selfie.Path)
	o.sel.selfie = nil
}

func (o *Orchestrator) deleteFile(ctx context.Context, path string) {
	if err := o.deps.Files.DeleteFile(ctx, path); err != nil {
		slog.Warn("Failed to delete staged selfie", "session_id", o.opts.SessionID, "path", path, "error", err)
	}
}

func (o *Orchestrator) changedLocked() {
	if o.opts.OnChange != nil {
		go o.opts.OnChange()
	}
}

func (o *Orchestrator) findOffice(ctx context.Context, officeID string) (attendance.Office, error) {
	offices, err := o.loadOffices(ctx)
	if err != nil {
		return attendance.Office{}, err
	}
	for _, office := range offices {
		if office.ID == officeID {
			return office, nil
		}
	}
	return attendance.Office{}, attendance.ErrOfficeNotFound
}

func (o *Orchestrator) loadOffices(ctx context.Context) ([]attendance.Office, error) {
	o.mu.Lock()
	cached := o.offices
	o.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	offices, err := o.deps.Directory.ListOffices(ctx)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.offices = offices
	o.mu.Unlock()
	return offices, nil
}

// ========================================
// VIEW
// ========================================

func (o *Orchestrator) viewLocked() attendance.SessionView {
	sel := o.sel
	view := attendance.SessionView{
		SessionID:     o.opts.SessionID,
		EmployeeID:    sel.employeeID,
		Action:        sel.action,
		State:         sel.state,
		StateResolved: sel.resolved,
		AwaitingAck:   sel.awaitAck,
	}
	if sel.office != nil {
		view.OfficeID = sel.office.ID
	}

	if now, ok := o.deps.Clock.Now(); ok {
		view.ClockReady = true
		view.TrustedNow = attendance.FormatTimestamp(&now)
		view.Date = now.Format(attendance.DateLayout)
	}
	if sel.frozenAt != nil {
		view.FrozenAt = attendance.FormatTimestamp(sel.frozenAt)
		view.Date = sel.frozenAt.Format(attendance.DateLayout)
	}

	for _, a := range attendance.Actions {
		view.Actions = append(view.Actions, attendance.ActionOption{
			Action:  a,
			Label:   a.Label(),
			Enabled: sel.employeeID != "" && attendance.IsAllowed(sel.state, a),
		})
	}

	snap, frozen := o.deps.Tracker.Frozen()
	if !frozen {
		snap, _ = o.deps.Tracker.Live()
	}
	if !snap.CapturedAt.IsZero() {
		view.Location = &attendance.LocationView{
			Latitude:   snap.Latitude,
			Longitude:  snap.Longitude,
			Accuracy:   snap.Accuracy,
			Address:    snap.Address,
			CapturedAt: snap.CapturedAt.Format(attendance.TimestampLayout),
			Frozen:     frozen,
		}
		if sel.office != nil && sel.office.Latitude != nil && sel.office.Longitude != nil {
			d := utils.DistanceMeters(snap.Latitude, snap.Longitude, *sel.office.Latitude, *sel.office.Longitude)
			view.DistanceMeters = &d
		}
	}
	if err := o.deps.Tracker.Err(); err != nil {
		view.LocationError = err.Error()
	}

	if sel.selfie != nil {
		view.Selfie = &attendance.SelfieView{
			FileName:    sel.selfie.FileName,
			ContentType: sel.selfie.ContentType,
			Size:        sel.selfie.Size,
		}
	}
	if sel.record != nil {
		rec := attendance.MapRecordToResponse(*sel.record)
		view.Record = &rec
	}
	return view
}

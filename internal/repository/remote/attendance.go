package remote

import (
	"context"
	"fmt"
	"strings"

	"github.com/cmlabs-hris/hris-checkin-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/crm"
)

// Record field names.
const (
	fieldEmployee  = "employee"
	fieldOffice    = "office"
	fieldDate      = "date"
	fieldLatitude  = "latitude"
	fieldLongitude = "longitude"
	fieldAddress   = "address"
)

var timestampFields = map[attendance.Action]string{
	attendance.ActionCheckIn:    "check_in",
	attendance.ActionLunchStart: "lunch_out",
	attendance.ActionLunchEnd:   "lunch_in",
	attendance.ActionCheckOut:   "check_out",
}

const inlinePrefix = "data:"

type attendanceRepository struct {
	client *crm.Client
	cfg    Config
}

// FindLatest implements attendance.RecordStore.
func (r *attendanceRepository) FindLatest(ctx context.Context, employeeID string, date string) (*attendance.DayRecord, error) {
	docs, err := r.client.GetList(ctx, r.cfg.RecordType, crm.ListQuery{
		Filters: []crm.Filter{crm.Eq(fieldEmployee, employeeID), crm.Eq(fieldDate, date)},
		OrderBy: "creation desc",
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance record: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	rec := r.toRecord(docs[0])
	return &rec, nil
}

// Create implements attendance.RecordStore.
func (r *attendanceRepository) Create(ctx context.Context, record attendance.DayRecord) (attendance.DayRecord, error) {
	doc := crm.Doc{
		fieldEmployee: record.EmployeeID,
		fieldDate:     record.Date,
	}
	if record.OfficeID != "" {
		doc[fieldOffice] = record.OfficeID
	}
	for _, a := range attendance.Actions {
		if record.TimestampOf(a) != nil {
			r.putAction(doc, record, a)
		}
	}
	r.putLocation(doc, record)

	created, err := r.client.Insert(ctx, r.cfg.RecordType, doc)
	if err != nil {
		return attendance.DayRecord{}, fmt.Errorf("failed to create attendance record: %w", err)
	}
	return r.merge(record, created), nil
}

// Update implements attendance.RecordStore. Only the fields written by
// action and the submission location are sent.
func (r *attendanceRepository) Update(ctx context.Context, record attendance.DayRecord, action attendance.Action) (attendance.DayRecord, error) {
	if record.ID == "" {
		return attendance.DayRecord{}, attendance.ErrRecordNotFound
	}
	if !action.Valid() {
		return attendance.DayRecord{}, attendance.ErrInvalidAction
	}

	doc := crm.Doc{}
	r.putAction(doc, record, action)
	r.putLocation(doc, record)

	updated, err := r.client.Update(ctx, r.cfg.RecordType, record.ID, doc)
	if err != nil {
		return attendance.DayRecord{}, fmt.Errorf("failed to update attendance record: %w", err)
	}
	return r.merge(record, updated), nil
}

func (r *attendanceRepository) putAction(doc crm.Doc, record attendance.DayRecord, a attendance.Action) {
	if ts := record.TimestampOf(a); ts != nil {
		doc[timestampFields[a]] = ts.In(r.cfg.Location).Format(attendance.TimestampLayout)
	}

	selfie := record.SelfieOf(a)
	if selfie.IsZero() {
		return
	}
	field := attendance.SelfieField(a)
	if selfie.Inline != "" {
		doc[field] = selfie.Inline
	} else {
		doc[field] = selfie.AttachmentID
	}
	if selfie.Name != "" {
		doc[field+"_name"] = selfie.Name
	}
}

func (r *attendanceRepository) putLocation(doc crm.Doc, record attendance.DayRecord) {
	if record.Latitude != nil && record.Longitude != nil {
		doc[fieldLatitude] = *record.Latitude
		doc[fieldLongitude] = *record.Longitude
	}
	if record.Address != "" {
		doc[fieldAddress] = record.Address
	}
}

// merge prefers the server's answer and keeps the submitted values the
// server did not echo back.
func (r *attendanceRepository) merge(sent attendance.DayRecord, doc crm.Doc) attendance.DayRecord {
	if len(doc) == 0 {
		return sent
	}
	got := r.toRecord(doc)

	if got.EmployeeID == "" {
		got.EmployeeID = sent.EmployeeID
	}
	if got.OfficeID == "" {
		got.OfficeID = sent.OfficeID
	}
	if got.Date == "" {
		got.Date = sent.Date
	}
	if got.CheckInAt == nil {
		got.CheckInAt, got.CheckInSelfie = sent.CheckInAt, sent.CheckInSelfie
	}
	if got.LunchOutAt == nil {
		got.LunchOutAt, got.LunchOutSelfie = sent.LunchOutAt, sent.LunchOutSelfie
	}
	if got.LunchInAt == nil {
		got.LunchInAt, got.LunchInSelfie = sent.LunchInAt, sent.LunchInSelfie
	}
	if got.CheckOutAt == nil {
		got.CheckOutAt, got.CheckOutSelfie = sent.CheckOutAt, sent.CheckOutSelfie
	}
	if got.Latitude == nil {
		got.Latitude, got.Longitude = sent.Latitude, sent.Longitude
	}
	if got.Address == "" {
		got.Address = sent.Address
	}
	if got.ID == "" {
		got.ID = sent.ID
	}
	return got
}

func (r *attendanceRepository) toRecord(d crm.Doc) attendance.DayRecord {
	loc := r.cfg.Location
	rec := attendance.DayRecord{
		ID:         docString(d, "name"),
		EmployeeID: docString(d, fieldEmployee),
		OfficeID:   docString(d, fieldOffice),
		Date:       docString(d, fieldDate),
		CheckInAt:  docTime(d, timestampFields[attendance.ActionCheckIn], loc),
		LunchOutAt: docTime(d, timestampFields[attendance.ActionLunchStart], loc),
		LunchInAt:  docTime(d, timestampFields[attendance.ActionLunchEnd], loc),
		CheckOutAt: docTime(d, timestampFields[attendance.ActionCheckOut], loc),
		Latitude:   docFloat(d, fieldLatitude),
		Longitude:  docFloat(d, fieldLongitude),
		Address:    docString(d, fieldAddress),

		CheckInSelfie:  selfieFrom(d, attendance.SelfieField(attendance.ActionCheckIn)),
		LunchOutSelfie: selfieFrom(d, attendance.SelfieField(attendance.ActionLunchStart)),
		LunchInSelfie:  selfieFrom(d, attendance.SelfieField(attendance.ActionLunchEnd)),
		CheckOutSelfie: selfieFrom(d, attendance.SelfieField(attendance.ActionCheckOut)),
	}
	if created := docTime(d, "creation", loc); created != nil {
		rec.CreatedAt = *created
	}
	if modified := docTime(d, "modified", loc); modified != nil {
		rec.UpdatedAt = *modified
	}
	return rec
}

func selfieFrom(d crm.Doc, field string) *attendance.SelfieRef {
	v := docString(d, field)
	name := docString(d, field+"_name")
	if v == "" && name == "" {
		return nil
	}
	if strings.HasPrefix(v, inlinePrefix) {
		return &attendance.SelfieRef{Inline: v, Name: name}
	}
	return &attendance.SelfieRef{AttachmentID: v, Name: name}
}

func NewAttendanceRepository(client *crm.Client, cfg Config) attendance.RecordStore {
	return &attendanceRepository{
		client: client,
		cfg:    cfg.withDefaults(),
	}
}

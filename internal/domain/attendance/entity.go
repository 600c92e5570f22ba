package attendance

import (
	"time"
)

// DateLayout and TimestampLayout are the wire formats of the record store.
const (
	DateLayout      = "2006-01-02"
	TimestampLayout = "2006-01-02 15:04:05"
)

// Action is one step of the daily attendance cycle.
type Action string

const (
	ActionNone       Action = ""
	ActionCheckIn    Action = "checkin"
	ActionLunchStart Action = "lunch_start"
	ActionLunchEnd   Action = "lunch_end"
	ActionCheckOut   Action = "checkout"
)

// Actions lists every action in cycle order.
var Actions = []Action{ActionCheckIn, ActionLunchStart, ActionLunchEnd, ActionCheckOut}

func (a Action) Valid() bool {
	switch a {
	case ActionCheckIn, ActionLunchStart, ActionLunchEnd, ActionCheckOut:
		return true
	}
	return false
}

// Label is the user-facing name of the action.
func (a Action) Label() string {
	switch a {
	case ActionCheckIn:
		return "Check in"
	case ActionLunchStart:
		return "Lunch start"
	case ActionLunchEnd:
		return "Lunch end"
	case ActionCheckOut:
		return "Check out"
	}
	return ""
}

// State is derived from a DayRecord and never stored.
type State string

const (
	StateNotStarted State = "not_started"
	StateCheckedIn  State = "checked_in"
	StateOnLunch    State = "on_lunch"
	StateLunchDone  State = "lunch_done"
	StateCompleted  State = "completed"
)

// SelfieRef points at the evidence photo of one action. Either the
// attachment fields or Inline is set.
type SelfieRef struct {
	AttachmentID string
	Name         string
	Inline       string
}

func (s *SelfieRef) IsZero() bool {
	return s == nil || (s.AttachmentID == "" && s.Name == "" && s.Inline == "")
}

// DayRecord is the one-per-employee-per-date attendance entity owned by the
// record store.
type DayRecord struct {
	ID         string
	EmployeeID string
	OfficeID   string
	Date       string // YYYY-MM-DD in the trusted-time zone

	CheckInAt  *time.Time
	LunchOutAt *time.Time
	LunchInAt  *time.Time
	CheckOutAt *time.Time

	Latitude  *float64
	Longitude *float64
	Address   string

	CheckInSelfie  *SelfieRef
	LunchOutSelfie *SelfieRef
	LunchInSelfie  *SelfieRef
	CheckOutSelfie *SelfieRef

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StateOf reduces the four optional timestamps to a State. A nil record is
// NotStarted. The latest populated field wins.
func StateOf(r *DayRecord) State {
	switch {
	case r == nil:
		return StateNotStarted
	case r.CheckOutAt != nil:
		return StateCompleted
	case r.LunchInAt != nil:
		return StateLunchDone
	case r.LunchOutAt != nil:
		return StateOnLunch
	case r.CheckInAt != nil:
		return StateCheckedIn
	default:
		return StateNotStarted
	}
}

// TimestampOf returns the timestamp field written by the given action.
func (r *DayRecord) TimestampOf(a Action) *time.Time {
	if r == nil {
		return nil
	}
	switch a {
	case ActionCheckIn:
		return r.CheckInAt
	case ActionLunchStart:
		return r.LunchOutAt
	case ActionLunchEnd:
		return r.LunchInAt
	case ActionCheckOut:
		return r.CheckOutAt
	}
	return nil
}

// SelfieOf returns the selfie reference stored for the given action.
func (r *DayRecord) SelfieOf(a Action) *SelfieRef {
	if r == nil {
		return nil
	}
	switch a {
	case ActionCheckIn:
		return r.CheckInSelfie
	case ActionLunchStart:
		return r.LunchOutSelfie
	case ActionLunchEnd:
		return r.LunchInSelfie
	case ActionCheckOut:
		return r.CheckOutSelfie
	}
	return nil
}

// Stamp writes the action's timestamp, the submission location and the
// selfie reference into the record.
func (r *DayRecord) Stamp(a Action, at time.Time, loc Location, selfie SelfieRef) {
	t := at
	s := selfie
	switch a {
	case ActionCheckIn:
		r.CheckInAt, r.CheckInSelfie = &t, &s
	case ActionLunchStart:
		r.LunchOutAt, r.LunchOutSelfie = &t, &s
	case ActionLunchEnd:
		r.LunchInAt, r.LunchInSelfie = &t, &s
	case ActionCheckOut:
		r.CheckOutAt, r.CheckOutSelfie = &t, &s
	}
	lat, lng := loc.Latitude, loc.Longitude
	r.Latitude = &lat
	r.Longitude = &lng
	r.Address = loc.Address
}

// Location is the position submitted with an action.
type Location struct {
	Latitude  float64
	Longitude float64
	Address   string
}

// Office and Employee come from the organisational directory.
type Office struct {
	ID        string
	Name      string
	Latitude  *float64
	Longitude *float64
}

type Employee struct {
	ID       string
	Name     string
	OfficeID string
}

// Attachment is an encoded selfie ready for upload.
type Attachment struct {
	FileName    string
	ContentType string
	Base64      string
	FieldName   string
	RecordType  string
}

// SelfieField is the record field holding the selfie of an action.
func SelfieField(a Action) string {
	switch a {
	case ActionCheckIn:
		return "check_in_selfie"
	case ActionLunchStart:
		return "lunch_out_selfie"
	case ActionLunchEnd:
		return "lunch_in_selfie"
	case ActionCheckOut:
		return "check_out_selfie"
	}
	return ""
}

package attendance

import (
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/validator"
)

// ========================================
// SELECTION DTOs
// ========================================

type SelectOfficeRequest struct {
	OfficeID string `json:"office_id"`
}

func (r *SelectOfficeRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.OfficeID) {
		errs = append(errs, validator.ValidationError{
			Field:   "office_id",
			Message: "office_id is required",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

type SelectEmployeeRequest struct {
	EmployeeID string `json:"employee_id"`
}

func (r *SelectEmployeeRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.EmployeeID) {
		errs = append(errs, validator.ValidationError{
			Field:   "employee_id",
			Message: "employee_id is required",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

type SelectActionRequest struct {
	Action Action `json:"action"`
}

func (r *SelectActionRequest) Validate() error {
	var errs validator.ValidationErrors

	if !r.Action.Valid() {
		errs = append(errs, validator.ValidationError{
			Field:   "action",
			Message: "action must be one of: checkin, lunch_start, lunch_end, checkout",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// ========================================
// DEVICE DTOs
// ========================================

// PositionFixRequest is one update of the device position subscription.
type PositionFixRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp int64   `json:"timestamp"` // device epoch millis, informational only
}

func (r *PositionFixRequest) Validate() error {
	var errs validator.ValidationErrors

	if !validator.IsValidLatitude(r.Latitude) {
		errs = append(errs, validator.ValidationError{
			Field:   "latitude",
			Message: "latitude must be between -90 and 90",
		})
	}

	if !validator.IsValidLongitude(r.Longitude) {
		errs = append(errs, validator.ValidationError{
			Field:   "longitude",
			Message: "longitude must be between -180 and 180",
		})
	}

	if r.Accuracy < 0 {
		errs = append(errs, validator.ValidationError{
			Field:   "accuracy",
			Message: "accuracy must not be negative",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// PositionErrorRequest carries a device geolocation error code
// (1 permission denied, 2 position unavailable, 3 timeout).
type PositionErrorRequest struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (r *PositionErrorRequest) Validate() error {
	var errs validator.ValidationErrors

	if r.Code < 1 || r.Code > 3 {
		errs = append(errs, validator.ValidationError{
			Field:   "code",
			Message: "code must be 1, 2 or 3",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// SelfieUpload is a captured camera image.
type SelfieUpload struct {
	File       io.Reader
	FileHeader *multipart.FileHeader
}

const maxSelfieSize = 10 << 20 // 10MB

func (r *SelfieUpload) Validate() error {
	var errs validator.ValidationErrors

	if r.File == nil || r.FileHeader == nil {
		errs = append(errs, validator.ValidationError{
			Field:   "photo",
			Message: "selfie photo is required",
		})
		return errs
	}

	ext := strings.ToLower(filepath.Ext(r.FileHeader.Filename))
	if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
		errs = append(errs, validator.ValidationError{
			Field:   "photo",
			Message: "invalid file type: only jpg, jpeg, png allowed",
		})
	} else if r.FileHeader.Size > maxSelfieSize {
		errs = append(errs, validator.ValidationError{
			Field:   "photo",
			Message: "selfie photo size must not exceed 10MB",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// ========================================
// VIEW DTOs
// ========================================

type ActionOption struct {
	Action  Action `json:"action"`
	Label   string `json:"label"`
	Enabled bool   `json:"enabled"`
}

type LocationView struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Accuracy   float64 `json:"accuracy"`
	Address    string  `json:"address,omitempty"`
	CapturedAt string  `json:"captured_at"`
	Frozen     bool    `json:"frozen"`
}

type SelfieView struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type RecordResponse struct {
	ID         string   `json:"id"`
	EmployeeID string   `json:"employee_id"`
	OfficeID   string   `json:"office_id,omitempty"`
	Date       string   `json:"date"`
	CheckIn    *string  `json:"check_in,omitempty"`
	LunchOut   *string  `json:"lunch_out,omitempty"`
	LunchIn    *string  `json:"lunch_in,omitempty"`
	CheckOut   *string  `json:"check_out,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	Address    string   `json:"address,omitempty"`
	State      State    `json:"state"`
}

// SessionView is the derived state of one device session, recomputed on
// every read.
type SessionView struct {
	SessionID      string          `json:"session_id"`
	OfficeID       string          `json:"office_id,omitempty"`
	EmployeeID     string          `json:"employee_id,omitempty"`
	Action         Action          `json:"action,omitempty"`
	State          State           `json:"state"`
	StateResolved  bool            `json:"state_resolved"`
	Actions        []ActionOption  `json:"actions"`
	ClockReady     bool            `json:"clock_ready"`
	TrustedNow     *string         `json:"trusted_now,omitempty"`
	FrozenAt       *string         `json:"frozen_at,omitempty"`
	Date           string          `json:"date,omitempty"`
	Location       *LocationView   `json:"location,omitempty"`
	LocationError  string          `json:"location_error,omitempty"`
	DistanceMeters *float64        `json:"distance_to_office_meters,omitempty"`
	Selfie         *SelfieView     `json:"selfie,omitempty"`
	Record         *RecordResponse `json:"record,omitempty"`
	AwaitingAck    bool            `json:"awaiting_acknowledgement"`
}

type SubmitResult struct {
	Action Action         `json:"action"`
	State  State          `json:"state"`
	Record RecordResponse `json:"record"`
	Dialog string         `json:"dialog"`
}

// FormatTimestamp renders t in the record store layout.
func FormatTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(TimestampLayout)
	return &s
}

// MapRecordToResponse converts a DayRecord to its response shape.
func MapRecordToResponse(r DayRecord) RecordResponse {
	return RecordResponse{
		ID:         r.ID,
		EmployeeID: r.EmployeeID,
		OfficeID:   r.OfficeID,
		Date:       r.Date,
		CheckIn:    FormatTimestamp(r.CheckInAt),
		LunchOut:   FormatTimestamp(r.LunchOutAt),
		LunchIn:    FormatTimestamp(r.LunchInAt),
		CheckOut:   FormatTimestamp(r.CheckOutAt),
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
		Address:    r.Address,
		State:      StateOf(&r),
	}
}

// ========================================
// DIRECTORY DTOs
// ========================================

type OfficeResponse struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type EmployeeResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	OfficeID string `json:"office_id,omitempty"`
}

func MapOfficesToResponse(offices []Office) []OfficeResponse {
	out := make([]OfficeResponse, 0, len(offices))
	for _, o := range offices {
		out = append(out, OfficeResponse{ID: o.ID, Name: o.Name, Latitude: o.Latitude, Longitude: o.Longitude})
	}
	return out
}

func MapEmployeesToResponse(employees []Employee) []EmployeeResponse {
	out := make([]EmployeeResponse, 0, len(employees))
	for _, e := range employees {
		out = append(out, EmployeeResponse{ID: e.ID, Name: e.Name, OfficeID: e.OfficeID})
	}
	return out
}

package response

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/cmlabs-hris/hris-checkin-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/crm"
	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/validator"
	"github.com/cmlabs-hris/hris-checkin-go/internal/service/clock"
	"github.com/cmlabs-hris/hris-checkin-go/internal/service/location"
	"github.com/cmlabs-hris/hris-checkin-go/internal/service/session"
)

type blockingError struct {
	target error
	status int
	code   string
}

// Submission preconditions and server-truth rejections. The error text is
// the dialog message.
var blockingErrors = []blockingError{
	{attendance.ErrOfficeRequired, http.StatusUnprocessableEntity, "OFFICE_REQUIRED"},
	{attendance.ErrEmployeeRequired, http.StatusUnprocessableEntity, "EMPLOYEE_REQUIRED"},
	{attendance.ErrActionNotAllowed, http.StatusUnprocessableEntity, "ACTION_NOT_ALLOWED"},
	{attendance.ErrTimeNotReady, http.StatusServiceUnavailable, "TIME_NOT_READY"},
	{attendance.ErrLocationMissing, http.StatusUnprocessableEntity, "LOCATION_MISSING"},
	{attendance.ErrSelfieMissing, http.StatusUnprocessableEntity, "SELFIE_MISSING"},
	{attendance.ErrAlreadyDone, http.StatusConflict, "ALREADY_DONE"},
	{attendance.ErrCheckInRequired, http.StatusConflict, "CHECK_IN_REQUIRED"},
	{attendance.ErrSubmitInProgress, http.StatusConflict, "SUBMIT_IN_PROGRESS"},
	{attendance.ErrSelectionChanged, http.StatusConflict, "SELECTION_CHANGED"},
	{attendance.ErrInvalidAction, http.StatusBadRequest, "INVALID_ACTION"},
	{attendance.ErrOfficeNotFound, http.StatusNotFound, "OFFICE_NOT_FOUND"},
	{attendance.ErrRecordNotFound, http.StatusNotFound, "RECORD_NOT_FOUND"},
	{attendance.ErrAttachmentMissing, http.StatusBadGateway, "ATTACHMENT_MISSING"},
	{location.ErrPermissionDenied, http.StatusUnprocessableEntity, "LOCATION_PERMISSION_DENIED"},
	{location.ErrPositionUnavailable, http.StatusUnprocessableEntity, "LOCATION_UNAVAILABLE"},
	{location.ErrTimeout, http.StatusUnprocessableEntity, "LOCATION_TIMEOUT"},
	{clock.ErrNoSources, http.StatusServiceUnavailable, "TIME_NOT_READY"},
}

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	if errors.Is(err, session.ErrSessionNotFound) {
		NotFound(w, "Session not found or expired")
		return
	}

	for _, b := range blockingErrors {
		if errors.Is(err, b.target) {
			Blocked(w, b.status, b.code, err.Error())
			return
		}
	}

	// Record store answers are shown verbatim
	var apiErr *crm.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		Blocked(w, status, "RECORD_STORE_ERROR", apiErr.Message)
		return
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		slog.Error("Upstream request failed", "error", err)
		Blocked(w, http.StatusBadGateway, "UPSTREAM_UNREACHABLE", err.Error())
		return
	}

	// Default
	slog.Error("Unhandled error", "error", err)
	InternalServerError(w, "An unexpected error occurred")
}

package attendance

import "errors"

// Attendance domain errors
var (
	// Submission preconditions, checked in this order
	ErrOfficeRequired   = errors.New("please select an office first")
	ErrEmployeeRequired = errors.New("please select an employee first")
	ErrActionNotAllowed = errors.New("this attendance action is not allowed right now")
	ErrTimeNotReady     = errors.New("server time is still syncing, please wait")
	ErrLocationMissing  = errors.New("your location is not available yet")
	ErrSelfieMissing    = errors.New("please take a selfie before submitting")

	// Server-truth checks
	ErrAlreadyDone       = errors.New("this attendance action has already been recorded today")
	ErrCheckInRequired   = errors.New("you have not checked in today")
	ErrSubmitInProgress  = errors.New("a submission is already in progress")
	ErrSelectionChanged  = errors.New("selection changed while the request was running")
	ErrInvalidAction     = errors.New("unknown attendance action")
	ErrRecordNotFound    = errors.New("attendance record not found")
	ErrOfficeNotFound    = errors.New("selected office was not found")
	ErrAttachmentMissing = errors.New("attachment upload returned no reference")
)

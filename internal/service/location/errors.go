package location

import (
	"errors"
	"fmt"
)

// Position errors. Each maps to its own user-facing message.
var (
	ErrPermissionDenied    = errors.New("location permission denied, please allow location access")
	ErrPositionUnavailable = errors.New("location signal unavailable, please move to an open area")
	ErrTimeout             = errors.New("timed out waiting for location, please try again")
	ErrTrackerStopped      = errors.New("location tracker stopped")
)

// Device geolocation error codes.
const (
	CodePermissionDenied    = 1
	CodePositionUnavailable = 2
	CodeTimeout             = 3
)

// ErrorFromCode maps a device geolocation error code to a tracker error.
func ErrorFromCode(code int, message string) error {
	var base error
	switch code {
	case CodePermissionDenied:
		base = ErrPermissionDenied
	case CodePositionUnavailable:
		base = ErrPositionUnavailable
	case CodeTimeout:
		base = ErrTimeout
	default:
		return fmt.Errorf("unknown location error code %d: %s", code, message)
	}
	if message == "" {
		return base
	}
	return fmt.Errorf("%w (%s)", base, message)
}

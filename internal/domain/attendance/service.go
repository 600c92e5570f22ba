package attendance

import (
	"context"
)

// Service drives one device session through the check-in flow.
type Service interface {
	// View returns the current derived session state
	View(ctx context.Context) SessionView

	// SelectOffice freezes time and location and resets later selections
	SelectOffice(ctx context.Context, req SelectOfficeRequest) (SessionView, error)

	// DeselectOffice unfreezes and clears all selections
	DeselectOffice(ctx context.Context) SessionView

	// SelectEmployee resolves today's state from the record store
	SelectEmployee(ctx context.Context, req SelectEmployeeRequest) (SessionView, error)

	// ResolvePending replaces a provisional state once trusted time is ready
	ResolvePending(ctx context.Context) error

	// SelectAction picks an allowed action
	SelectAction(ctx context.Context, req SelectActionRequest) (SessionView, error)

	// AttachSelfie stages the captured selfie locally without uploading it
	AttachSelfie(ctx context.Context, req SelfieUpload) (SessionView, error)

	// Submit validates, uploads the selfie and writes the record
	Submit(ctx context.Context) (SubmitResult, error)

	// Acknowledge confirms the result dialog and soft-resets the selections
	Acknowledge(ctx context.Context) SessionView

	// Refresh re-syncs the clock and clears every selection
	Refresh(ctx context.Context) (SessionView, error)

	// Close releases the session's resources
	Close(ctx context.Context)
}

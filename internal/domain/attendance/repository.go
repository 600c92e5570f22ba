package attendance

import (
	"context"
)

// RecordStore is the remote store owning DayRecords.
type RecordStore interface {
	// FindLatest returns the most recently created record for employee+date,
	// or nil when none exists.
	FindLatest(ctx context.Context, employeeID string, date string) (*DayRecord, error)

	// Create stores a new record and returns the stored version.
	Create(ctx context.Context, record DayRecord) (DayRecord, error)

	// Update writes the fields touched by action and returns the stored version.
	Update(ctx context.Context, record DayRecord, action Action) (DayRecord, error)
}

// AttachmentUploader stores an encoded selfie and returns its reference.
type AttachmentUploader interface {
	Upload(ctx context.Context, attachment Attachment) (SelfieRef, error)
}

// Directory lists the organisational data shown in the selectors.
type Directory interface {
	ListOffices(ctx context.Context) ([]Office, error)
	ListEmployees(ctx context.Context, officeID string) ([]Employee, error)
}

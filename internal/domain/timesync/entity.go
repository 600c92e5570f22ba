package timesync

import "time"

// CachedOffset is the last known difference between trusted time and the
// device wall clock, persisted so a restart without network still has a
// bounded-wrong notion of now.
type CachedOffset struct {
	Offset  time.Duration
	Source  string
	SavedAt time.Time // trusted time when the offset was measured
}

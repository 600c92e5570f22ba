package attendance

import (
	"context"
	"fmt"

	"github.com/cmlabs-hris/hris-checkin-go/internal/domain/attendance"
)

// Resolver derives today's attendance state from the record store. It never
// caches: every call reads the store.
type Resolver struct {
	store attendance.RecordStore
}

func NewResolver(store attendance.RecordStore) *Resolver {
	return &Resolver{store: store}
}

// ResolveToday returns the latest record for employee+date (nil when none)
// and the state it reduces to.
func (r *Resolver) ResolveToday(ctx context.Context, employeeID, date string) (*attendance.DayRecord, attendance.State, error) {
	if employeeID == "" {
		return nil, attendance.StateNotStarted, attendance.ErrEmployeeRequired
	}

	record, err := r.store.FindLatest(ctx, employeeID, date)
	if err != nil {
		return nil, attendance.StateNotStarted, fmt.Errorf("failed to resolve attendance state: %w", err)
	}
	return record, attendance.StateOf(record), nil
}

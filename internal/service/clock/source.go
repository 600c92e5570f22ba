package clock

import (
	"context"
	"time"
)

// Source is an authoritative time provider.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (time.Time, error)
}

type sourceFunc struct {
	name string
	fn   func(ctx context.Context) (time.Time, error)
}

// NewSource adapts a fetch function to a Source.
func NewSource(name string, fn func(ctx context.Context) (time.Time, error)) Source {
	return &sourceFunc{name: name, fn: fn}
}

func (s *sourceFunc) Name() string { return s.name }

func (s *sourceFunc) Fetch(ctx context.Context) (time.Time, error) { return s.fn(ctx) }

// Monotonic returns elapsed time from an arbitrary fixed origin. It must not
// jump when the device wall clock is changed.
type Monotonic interface {
	Now() time.Duration
}

type processMonotonic struct {
	origin time.Time
}

// NewMonotonic measures from process start using Go's monotonic clock reading.
func NewMonotonic() Monotonic {
	return &processMonotonic{origin: time.Now()}
}

func (m *processMonotonic) Now() time.Duration {
	return time.Since(m.origin)
}

package timesync

import "context"

// OffsetCache persists the most recent CachedOffset.
type OffsetCache interface {
	// Load returns the cached offset; ok is false when nothing is cached.
	Load(ctx context.Context) (offset CachedOffset, ok bool, err error)

	// Save replaces the cached offset.
	Save(ctx context.Context, offset CachedOffset) error
}

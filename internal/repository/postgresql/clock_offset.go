package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hris-checkin-go/internal/domain/timesync"
	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type clockOffsetRepository struct {
	db *database.DB
}

// NewClockOffsetRepository keeps the single cached clock offset row.
func NewClockOffsetRepository(db *database.DB) timesync.OffsetCache {
	return &clockOffsetRepository{db: db}
}

// Load implements timesync.OffsetCache.
func (c *clockOffsetRepository) Load(ctx context.Context) (timesync.CachedOffset, bool, error) {
	q := GetQuerier(ctx, c.db)

	var (
		offsetNanos int64
		cached      timesync.CachedOffset
	)
	err := q.QueryRow(ctx, `SELECT offset_ns, source, saved_at FROM clock_offset_cache WHERE id = 1`).
		Scan(&offsetNanos, &cached.Source, &cached.SavedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return timesync.CachedOffset{}, false, nil
		}
		return timesync.CachedOffset{}, false, fmt.Errorf("failed to load clock offset: %w", err)
	}
	cached.Offset = time.Duration(offsetNanos)
	return cached, true, nil
}

// Save implements timesync.OffsetCache.
func (c *clockOffsetRepository) Save(ctx context.Context, offset timesync.CachedOffset) error {
	q := GetQuerier(ctx, c.db)

	query := `
		INSERT INTO clock_offset_cache (id, offset_ns, source, saved_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET offset_ns = EXCLUDED.offset_ns, source = EXCLUDED.source, saved_at = EXCLUDED.saved_at`

	if _, err := q.Exec(ctx, query, int64(offset.Offset), offset.Source, offset.SavedAt); err != nil {
		return fmt.Errorf("failed to save clock offset: %w", err)
	}
	return nil
}

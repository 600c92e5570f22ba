package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/database"
)

type ServerTimeRepository struct {
	db *database.DB
}

// NewServerTimeRepository reads the database server's wall clock, which is
// the clock attendance rows are written against.
func NewServerTimeRepository(db *database.DB) *ServerTimeRepository {
	return &ServerTimeRepository{db: db}
}

// ServerTime returns clock_timestamp(), the time at execution rather than at
// transaction start.
func (s *ServerTimeRepository) ServerTime(ctx context.Context) (time.Time, error) {
	q := GetQuerier(ctx, s.db)

	var now time.Time
	if err := q.QueryRow(ctx, `SELECT clock_timestamp()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("failed to read database time: %w", err)
	}
	return now, nil
}

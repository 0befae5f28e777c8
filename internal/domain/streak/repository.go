package streak

import (
	"context"
	"time"
)

// Repository persists UserDailyActivity rows. Only the streak engine
// writes through this interface.
type Repository interface {
	// Get returns the row for one user and calendar day, or
	// shared.ErrNotFound when no row exists yet.
	Get(ctx context.Context, userID int64, day time.Time) (*DailyActivity, error)

	// Upsert creates or replaces the row for (UserID, Date).
	Upsert(ctx context.Context, d *DailyActivity) error

	// Range returns all rows for a user with from <= Date <= to,
	// oldest first.
	Range(ctx context.Context, userID int64, from, to time.Time) ([]*DailyActivity, error)

	// ListActiveOn returns the users with a streak-preserving row on
	// the given day. Used by the streak-at-risk maintenance job.
	ListActiveOn(ctx context.Context, day time.Time) ([]int64, error)
}

package stats

import "context"

// Repository persists UserStat aggregates.
type Repository interface {
	// Get returns the aggregate for a user, or shared.ErrNotFound
	// before the user's first event.
	Get(ctx context.Context, userID int64) (*UserStat, error)

	// Save creates or replaces the aggregate.
	Save(ctx context.Context, s *UserStat) error
}

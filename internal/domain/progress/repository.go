package progress

import "context"

// Repository persists ItemProgress records. Implementations must treat
// (UserID, ItemID, Kind) as the unique key.
type Repository interface {
	// Get returns the progress record for one user and item, or
	// shared.ErrNotFound when the user has never touched the item.
	Get(ctx context.Context, userID, itemID int64, kind ItemKind) (*ItemProgress, error)

	// Upsert creates or replaces the progress record.
	Upsert(ctx context.Context, p *ItemProgress) error

	// ListByUser returns all progress records for a user, most
	// recently updated first.
	ListByUser(ctx context.Context, userID int64) ([]*ItemProgress, error)
}

// RefChecker verifies that a study item referenced by an event exists
// in the read-only reference tables. A missing reference means the
// producer is ahead of (or inconsistent with) the content catalogue;
// such events are dropped, not retried.
type RefChecker interface {
	ItemExists(ctx context.Context, kind ItemKind, itemID int64) (bool, error)
}

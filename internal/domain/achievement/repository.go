package achievement

import "context"

// CatalogueRepository reads the achievement catalogue. The catalogue
// is external and read-mostly; the engine never writes it.
type CatalogueRepository interface {
	List(ctx context.Context) ([]CatalogueEntry, error)
}

// Repository persists UserAchievement rows. Only the achievement
// evaluator writes through this interface.
type Repository interface {
	// ListAchieved returns the achievement ids already awarded to the
	// user.
	ListAchieved(ctx context.Context, userID int64) (map[int64]bool, error)

	// CreateAchieved inserts an achieved row. Returns
	// shared.ErrAlreadyExists when the row is already achieved, which
	// enforces award-once even if two evaluations race past the
	// per-user serialization guarantee.
	CreateAchieved(ctx context.Context, ua *UserAchievement) error
}

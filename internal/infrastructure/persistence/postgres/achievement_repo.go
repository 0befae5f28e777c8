package postgres

import (
	"context"
	"fmt"

	"github.com/kotoba-hub/progress-engine/internal/domain/achievement"
	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
)

// AchievementRepo persists user_achievements rows. The composite
// primary key is what makes award-once hold across process restarts
// and racing evaluations.
type AchievementRepo struct {
	conn *Connection
}

// NewAchievementRepo creates an AchievementRepo.
func NewAchievementRepo(conn *Connection) *AchievementRepo {
	return &AchievementRepo{conn: conn}
}

func (r *AchievementRepo) ListAchieved(ctx context.Context, userID int64) (map[int64]bool, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT achievement_id FROM user_achievements WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("achievement_repo: list achieved: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("achievement_repo: scan: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (r *AchievementRepo) CreateAchieved(ctx context.Context, ua *achievement.UserAchievement) error {
	tag, err := r.conn.Exec(ctx, `
		INSERT INTO user_achievements (user_id, achievement_id, earned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, achievement_id) DO NOTHING`,
		ua.UserID, ua.AchievementID, ua.AchievedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("achievement_repo: create: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrAlreadyExists
	}
	return nil
}

// CatalogueRepo reads the achievement_catalogue table.
type CatalogueRepo struct {
	conn *Connection
}

// NewCatalogueRepo creates a CatalogueRepo.
func NewCatalogueRepo(conn *Connection) *CatalogueRepo {
	return &CatalogueRepo{conn: conn}
}

func (r *CatalogueRepo) List(ctx context.Context) ([]achievement.CatalogueEntry, error) {
	const q = `
		SELECT id, title, description, icon, points, category,
		       rule_counter, rule_threshold
		FROM achievement_catalogue ORDER BY id`

	rows, err := r.conn.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("catalogue_repo: list: %w", err)
	}
	defer rows.Close()

	var out []achievement.CatalogueEntry
	for rows.Next() {
		var e achievement.CatalogueEntry
		var category, counter string
		if err := rows.Scan(
			&e.ID, &e.Title, &e.Description, &e.Icon, &e.Points,
			&category, &counter, &e.Rule.Threshold,
		); err != nil {
			return nil, fmt.Errorf("catalogue_repo: scan: %w", err)
		}
		e.Category = achievement.Category(category)
		e.Rule.Counter = achievement.CounterKind(counter)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Seed inserts catalogue entries that are not present yet. Used at
// startup to load the built-in catalogue into an empty database.
func (r *CatalogueRepo) Seed(ctx context.Context, entries []achievement.CatalogueEntry) error {
	for _, e := range entries {
		_, err := r.conn.Exec(ctx, `
			INSERT INTO achievement_catalogue (
				id, title, description, icon, points, category,
				rule_counter, rule_threshold
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (id) DO NOTHING`,
			e.ID, e.Title, e.Description, e.Icon, e.Points,
			string(e.Category), string(e.Rule.Counter), e.Rule.Threshold,
		)
		if err != nil {
			return fmt.Errorf("catalogue_repo: seed %d: %w", e.ID, err)
		}
	}
	return nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
	"github.com/kotoba-hub/progress-engine/internal/domain/streak"
)

// ActivityRepo persists user_daily_activity rows. activity_date is a
// DATE column; callers pass canonical-timezone midnights and get the
// same back.
type ActivityRepo struct {
	conn *Connection
}

// NewActivityRepo creates an ActivityRepo.
func NewActivityRepo(conn *Connection) *ActivityRepo {
	return &ActivityRepo{conn: conn}
}

func (r *ActivityRepo) Get(ctx context.Context, userID int64, day time.Time) (*streak.DailyActivity, error) {
	const q = `
		SELECT user_id, activity_date, is_active, is_frozen,
		       currency_earned, lessons_completed
		FROM user_daily_activity
		WHERE user_id = $1 AND activity_date = $2`

	var d streak.DailyActivity
	err := r.conn.QueryRow(ctx, q, userID, day).Scan(
		&d.UserID, &d.Date, &d.IsActive, &d.IsFrozen,
		&d.CurrencyEarned, &d.LessonsCompleted,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrActivityNotFound
		}
		return nil, fmt.Errorf("activity_repo: get: %w", err)
	}
	return &d, nil
}

func (r *ActivityRepo) Upsert(ctx context.Context, d *streak.DailyActivity) error {
	const q = `
		INSERT INTO user_daily_activity (
			user_id, activity_date, is_active, is_frozen,
			currency_earned, lessons_completed
		) VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (user_id, activity_date) DO UPDATE SET
			is_active = EXCLUDED.is_active,
			is_frozen = EXCLUDED.is_frozen,
			currency_earned = EXCLUDED.currency_earned,
			lessons_completed = EXCLUDED.lessons_completed`

	_, err := r.conn.Exec(ctx, q,
		d.UserID, d.Date, d.IsActive, d.IsFrozen,
		d.CurrencyEarned, d.LessonsCompleted,
	)
	if err != nil {
		return fmt.Errorf("activity_repo: upsert: %w", err)
	}
	return nil
}

func (r *ActivityRepo) Range(ctx context.Context, userID int64, from, to time.Time) ([]*streak.DailyActivity, error) {
	const q = `
		SELECT user_id, activity_date, is_active, is_frozen,
		       currency_earned, lessons_completed
		FROM user_daily_activity
		WHERE user_id = $1 AND activity_date BETWEEN $2 AND $3
		ORDER BY activity_date`

	rows, err := r.conn.Query(ctx, q, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("activity_repo: range: %w", err)
	}
	defer rows.Close()

	var out []*streak.DailyActivity
	for rows.Next() {
		var d streak.DailyActivity
		if err := rows.Scan(
			&d.UserID, &d.Date, &d.IsActive, &d.IsFrozen,
			&d.CurrencyEarned, &d.LessonsCompleted,
		); err != nil {
			return nil, fmt.Errorf("activity_repo: scan: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (r *ActivityRepo) ListActiveOn(ctx context.Context, day time.Time) ([]int64, error) {
	const q = `
		SELECT user_id FROM user_daily_activity
		WHERE activity_date = $1 AND (is_active OR is_frozen)
		ORDER BY user_id`

	rows, err := r.conn.Query(ctx, q, day)
	if err != nil {
		return nil, fmt.Errorf("activity_repo: list active: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("activity_repo: scan: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

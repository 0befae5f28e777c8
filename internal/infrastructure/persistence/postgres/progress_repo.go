package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/kotoba-hub/progress-engine/internal/domain/progress"
	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
	"github.com/kotoba-hub/progress-engine/internal/domain/srs"
)

// ProgressRepo persists item_progress rows.
type ProgressRepo struct {
	conn *Connection
}

// NewProgressRepo creates a ProgressRepo.
func NewProgressRepo(conn *Connection) *ProgressRepo {
	return &ProgressRepo{conn: conn}
}

const progressColumns = `user_id, item_id, kind, progress, correct_attempts,
	incorrect_attempts, stage, next_review_at, mastered_at, last_token, updated_at`

func scanProgress(row interface{ Scan(...interface{}) error }) (*progress.ItemProgress, error) {
	var p progress.ItemProgress
	var stage string
	var nextReview, masteredAt, updatedAt *time.Time
	err := row.Scan(
		&p.UserID, &p.ItemID, &p.Kind, &p.Progress, &p.CorrectAttempts,
		&p.IncorrectAttempts, &stage, &nextReview, &masteredAt, &p.LastToken, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Stage = srs.Stage(stage)
	if nextReview != nil {
		p.NextReviewAt = nextReview.UTC()
	}
	if masteredAt != nil {
		p.MasteredAt = masteredAt.UTC()
	}
	if updatedAt != nil {
		p.UpdatedAt = updatedAt.UTC()
	}
	return &p, nil
}

func (r *ProgressRepo) Get(ctx context.Context, userID, itemID int64, kind progress.ItemKind) (*progress.ItemProgress, error) {
	q := fmt.Sprintf(`SELECT %s FROM item_progress WHERE user_id = $1 AND kind = $2 AND item_id = $3`, progressColumns)

	p, err := scanProgress(r.conn.QueryRow(ctx, q, userID, string(kind), itemID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrItemNotFound
		}
		return nil, fmt.Errorf("progress_repo: get: %w", err)
	}
	return p, nil
}

func (r *ProgressRepo) Upsert(ctx context.Context, p *progress.ItemProgress) error {
	const q = `
		INSERT INTO item_progress (
			user_id, item_id, kind, progress, correct_attempts,
			incorrect_attempts, stage, next_review_at, mastered_at, last_token, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (user_id, kind, item_id) DO UPDATE SET
			progress = EXCLUDED.progress,
			correct_attempts = EXCLUDED.correct_attempts,
			incorrect_attempts = EXCLUDED.incorrect_attempts,
			stage = EXCLUDED.stage,
			next_review_at = EXCLUDED.next_review_at,
			mastered_at = EXCLUDED.mastered_at,
			last_token = EXCLUDED.last_token,
			updated_at = EXCLUDED.updated_at`

	var nextReview, masteredAt *time.Time
	if !p.NextReviewAt.IsZero() {
		t := p.NextReviewAt
		nextReview = &t
	}
	if !p.MasteredAt.IsZero() {
		t := p.MasteredAt
		masteredAt = &t
	}
	_, err := r.conn.Exec(ctx, q,
		p.UserID, p.ItemID, string(p.Kind), p.Progress, p.CorrectAttempts,
		p.IncorrectAttempts, string(p.Stage), nextReview, masteredAt, p.LastToken, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("progress_repo: upsert: %w", err)
	}
	return nil
}

func (r *ProgressRepo) ListByUser(ctx context.Context, userID int64) ([]*progress.ItemProgress, error) {
	q := fmt.Sprintf(`SELECT %s FROM item_progress WHERE user_id = $1 ORDER BY updated_at DESC`, progressColumns)

	rows, err := r.conn.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("progress_repo: list: %w", err)
	}
	defer rows.Close()

	var out []*progress.ItemProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("progress_repo: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// StudyItemRepo reads the study_items reference table and implements
// progress.RefChecker against it.
type StudyItemRepo struct {
	conn *Connection
}

// NewStudyItemRepo creates a StudyItemRepo.
func NewStudyItemRepo(conn *Connection) *StudyItemRepo {
	return &StudyItemRepo{conn: conn}
}

func (r *StudyItemRepo) ItemExists(ctx context.Context, kind progress.ItemKind, itemID int64) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM study_items WHERE kind = $1 AND id = $2)`,
		string(kind), itemID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("study_item_repo: exists: %w", err)
	}
	return exists, nil
}

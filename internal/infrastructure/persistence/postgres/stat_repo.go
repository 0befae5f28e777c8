package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
	"github.com/kotoba-hub/progress-engine/internal/domain/stats"
)

// StatRepo persists user_stats rows.
type StatRepo struct {
	conn *Connection
}

// NewStatRepo creates a StatRepo.
func NewStatRepo(conn *Connection) *StatRepo {
	return &StatRepo{conn: conn}
}

func (r *StatRepo) Get(ctx context.Context, userID int64) (*stats.UserStat, error) {
	const q = `
		SELECT user_id, lessons_completed, words_learned, kana_mastered,
		       kanji_mastered, grammar_mastered, audio_exercises_passed,
		       kana_recognized, total_points, daily_points, streak_days,
		       longest_streak, streak_synced_on, last_token, last_activity, updated_at
		FROM user_stats WHERE user_id = $1`

	var s stats.UserStat
	var streakSyncedOn, lastActivity, updatedAt *time.Time
	err := r.conn.QueryRow(ctx, q, userID).Scan(
		&s.UserID, &s.LessonsCompleted, &s.WordsLearned, &s.KanaMastered,
		&s.KanjiMastered, &s.GrammarMastered, &s.AudioExercisesPassed,
		&s.KanaRecognized, &s.TotalPoints, &s.DailyPoints, &s.StreakDays,
		&s.LongestStreak, &streakSyncedOn, &s.LastToken, &lastActivity, &updatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrUserStatNotFound
		}
		return nil, fmt.Errorf("stat_repo: get: %w", err)
	}
	if streakSyncedOn != nil {
		s.StreakSyncedOn = streakSyncedOn.UTC()
	}
	if lastActivity != nil {
		s.LastActivity = lastActivity.UTC()
	}
	if updatedAt != nil {
		s.UpdatedAt = updatedAt.UTC()
	}
	return &s, nil
}

func (r *StatRepo) Save(ctx context.Context, s *stats.UserStat) error {
	const q = `
		INSERT INTO user_stats (
			user_id, lessons_completed, words_learned, kana_mastered,
			kanji_mastered, grammar_mastered, audio_exercises_passed,
			kana_recognized, total_points, daily_points, streak_days,
			longest_streak, streak_synced_on, last_token, last_activity, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			lessons_completed = EXCLUDED.lessons_completed,
			words_learned = EXCLUDED.words_learned,
			kana_mastered = EXCLUDED.kana_mastered,
			kanji_mastered = EXCLUDED.kanji_mastered,
			grammar_mastered = EXCLUDED.grammar_mastered,
			audio_exercises_passed = EXCLUDED.audio_exercises_passed,
			kana_recognized = EXCLUDED.kana_recognized,
			total_points = EXCLUDED.total_points,
			daily_points = EXCLUDED.daily_points,
			streak_days = EXCLUDED.streak_days,
			longest_streak = EXCLUDED.longest_streak,
			streak_synced_on = EXCLUDED.streak_synced_on,
			last_token = EXCLUDED.last_token,
			last_activity = EXCLUDED.last_activity,
			updated_at = NOW()`

	var streakSyncedOn, lastActivity *time.Time
	if !s.StreakSyncedOn.IsZero() {
		t := s.StreakSyncedOn
		streakSyncedOn = &t
	}
	if !s.LastActivity.IsZero() {
		t := s.LastActivity
		lastActivity = &t
	}
	_, err := r.conn.Exec(ctx, q,
		s.UserID, s.LessonsCompleted, s.WordsLearned, s.KanaMastered,
		s.KanjiMastered, s.GrammarMastered, s.AudioExercisesPassed,
		s.KanaRecognized, s.TotalPoints, s.DailyPoints, s.StreakDays,
		s.LongestStreak, streakSyncedOn, s.LastToken, lastActivity,
	)
	if err != nil {
		return fmt.Errorf("stat_repo: save: %w", err)
	}
	return nil
}

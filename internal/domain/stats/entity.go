// Package stats contains the per-user aggregate statistics record.
// One UserStat per user, created lazily on the first event, mutated
// only by the aggregate updater under the per-user lane discipline.
package stats

import (
	"time"

	"github.com/kotoba-hub/progress-engine/internal/domain/progress"
	"github.com/kotoba-hub/progress-engine/pkg/timeutil"
)

// UserStat aggregates a user's learning counters. TotalPoints is
// monotonically non-decreasing; DailyPoints resets the first time an
// event lands on a new calendar day in the canonical timezone.
type UserStat struct {
	UserID int64

	LessonsCompleted int
	WordsLearned     int
	KanaMastered     int
	KanjiMastered    int
	GrammarMastered  int

	// AudioExercisesPassed and KanaRecognized feed the audio and
	// kana-recognition achievement categories.
	AudioExercisesPassed int
	KanaRecognized       int

	TotalPoints int
	DailyPoints int

	StreakDays    int
	LongestStreak int

	// StreakSyncedOn is the calendar day StreakDays was last recomputed
	// for. It anchors the carry when the streak outgrows the bounded
	// activity walk.
	StreakSyncedOn time.Time

	// LastToken is the dedup token of the last event rolled into the
	// counters, persisted with the row so a redelivery after a partial
	// failure does not double-count.
	LastToken string

	LastActivity time.Time // UTC instant of the most recent applied event
	UpdatedAt    time.Time
}

// NewUserStat creates an empty aggregate for a user.
func NewUserStat(userID int64) *UserStat {
	return &UserStat{UserID: userID}
}

// AddPoints rolls points into the daily and total counters. When the
// event's calendar day differs from the day of the last activity, the
// daily counter starts over at this event's contribution.
func (s *UserStat) AddPoints(points int, at time.Time, cal timeutil.Calendar) {
	if points < 0 {
		points = 0
	}
	if !s.LastActivity.IsZero() && !cal.SameDay(s.LastActivity, at) {
		s.DailyPoints = 0
	}
	s.DailyPoints += points
	s.TotalPoints += points
	s.LastActivity = at.UTC()
}

// RecordMastery increments the kind-specific mastery counter. Called
// exactly once per item, the first time its stage crosses into
// mastered; the crossing check lives with ItemProgress.
func (s *UserStat) RecordMastery(kind progress.ItemKind) {
	switch kind {
	case progress.KindWord:
		s.WordsLearned++
	case progress.KindKana:
		s.KanaMastered++
	case progress.KindKanji:
		s.KanjiMastered++
	case progress.KindGrammar:
		s.GrammarMastered++
	case progress.KindLesson, progress.KindModule:
		s.LessonsCompleted++
	}
}

// RecordAudioPass counts one passed audio exercise.
func (s *UserStat) RecordAudioPass() {
	s.AudioExercisesPassed++
}

// RecordKanaRecognition counts one correct kana recognition.
func (s *UserStat) RecordKanaRecognition() {
	s.KanaRecognized++
}

// SyncStreak stores the recomputed streak length and the calendar day
// it was computed for, tracking the longest streak ever observed.
func (s *UserStat) SyncStreak(days int, day time.Time) (isNewRecord bool) {
	s.StreakDays = days
	s.StreakSyncedOn = day
	if days > s.LongestStreak {
		s.LongestStreak = days
		return true
	}
	return false
}

// Touch updates the last-activity instant without awarding points.
func (s *UserStat) Touch(at time.Time) {
	if at.After(s.LastActivity) {
		s.LastActivity = at.UTC()
	}
}

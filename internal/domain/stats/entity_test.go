package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kotoba-hub/progress-engine/internal/domain/progress"
	"github.com/kotoba-hub/progress-engine/pkg/timeutil"
)

func TestAddPoints_ResetsDailyOnNewDay(t *testing.T) {
	cal := timeutil.NewCalendar(time.UTC)
	s := NewUserStat(1)

	dayN := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	dayN1 := time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)

	s.AddPoints(30, dayN, cal)
	s.AddPoints(15, dayN, cal)
	assert.Equal(t, 45, s.DailyPoints)
	assert.Equal(t, 45, s.TotalPoints)

	// First event of day N+1 starts the daily counter over at its own
	// contribution; the total keeps accumulating.
	s.AddPoints(10, dayN1, cal)
	assert.Equal(t, 10, s.DailyPoints)
	assert.Equal(t, 55, s.TotalPoints)
}

func TestAddPoints_TotalIsMonotone(t *testing.T) {
	cal := timeutil.NewCalendar(time.UTC)
	s := NewUserStat(1)
	now := time.Now()

	s.AddPoints(10, now, cal)
	before := s.TotalPoints
	s.AddPoints(-5, now, cal)
	assert.Equal(t, before, s.TotalPoints)
}

func TestRecordMastery_RoutesByKind(t *testing.T) {
	s := NewUserStat(1)

	s.RecordMastery(progress.KindWord)
	s.RecordMastery(progress.KindWord)
	s.RecordMastery(progress.KindKana)
	s.RecordMastery(progress.KindLesson)
	s.RecordMastery(progress.KindModule)

	assert.Equal(t, 2, s.WordsLearned)
	assert.Equal(t, 1, s.KanaMastered)
	assert.Equal(t, 2, s.LessonsCompleted)
}

func TestSyncStreak_TracksLongest(t *testing.T) {
	s := NewUserStat(1)
	day := func(d int) time.Time {
		return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC)
	}

	assert.True(t, s.SyncStreak(3, day(3)))
	assert.True(t, s.SyncStreak(4, day(4)))
	assert.False(t, s.SyncStreak(1, day(9)))
	assert.Equal(t, 1, s.StreakDays)
	assert.Equal(t, 4, s.LongestStreak)
	assert.Equal(t, day(9), s.StreakSyncedOn)
}

package command_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotoba-hub/progress-engine/internal/application/command"
	"github.com/kotoba-hub/progress-engine/internal/domain/streak"
	"github.com/kotoba-hub/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/kotoba-hub/progress-engine/pkg/timeutil"
)

type streakFixture struct {
	record     *command.RecordActivityHandler
	freeze     *command.ApplyFreezeHandler
	activities *memory.ActivityStore
	stats      *memory.StatStore
	cal        timeutil.Calendar
}

func newStreakFixture(t *testing.T) *streakFixture {
	t.Helper()

	cal := timeutil.NewCalendar(time.UTC)
	activities := memory.NewActivityStore()
	stats := memory.NewStatStore()
	return &streakFixture{
		record: command.NewRecordActivityHandler(
			activities, stats, streak.DefaultRewardTable(), cal,
			command.RecordActivityConfig{}, nil,
		),
		freeze:     command.NewApplyFreezeHandler(activities, cal, nil),
		activities: activities,
		stats:      stats,
		cal:        cal,
	}
}

func at(day int) time.Time {
	return time.Date(2026, 3, day, 12, 0, 0, 0, time.UTC)
}

func TestRecordActivity_ConsecutiveDaysExtend(t *testing.T) {
	f := newStreakFixture(t)

	for day := 1; day <= 3; day++ {
		res, err := f.record.Handle(context.Background(), command.RecordActivityCommand{
			UserID: 1, OccurredAt: at(day),
		})
		require.NoError(t, err)
		assert.Equal(t, day, res.StreakDays)
		assert.True(t, res.Extended)
		assert.True(t, res.IsNewRecord)
	}

	st, err := f.stats.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, st.StreakDays)
	assert.Equal(t, 3, st.LongestStreak)
}

func TestRecordActivity_SameDayTwiceIsIdempotent(t *testing.T) {
	f := newStreakFixture(t)

	first, err := f.record.Handle(context.Background(), command.RecordActivityCommand{
		UserID: 1, OccurredAt: at(1), LessonCompleted: true,
	})
	require.NoError(t, err)
	assert.True(t, first.Extended)
	assert.Positive(t, first.CurrencyEarned)

	second, err := f.record.Handle(context.Background(), command.RecordActivityCommand{
		UserID: 1, OccurredAt: at(1).Add(2 * time.Hour), LessonCompleted: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, second.StreakDays)
	assert.False(t, second.Extended)
	assert.Zero(t, second.CurrencyEarned)

	row, err := f.activities.Get(context.Background(), 1, f.cal.DayOf(at(1)))
	require.NoError(t, err)
	assert.Equal(t, 2, row.LessonsCompleted)
	assert.Equal(t, first.CurrencyEarned, row.CurrencyEarned)
}

func TestRecordActivity_GapBreaksStreak(t *testing.T) {
	f := newStreakFixture(t)

	for _, day := range []int{1, 2} {
		_, err := f.record.Handle(context.Background(), command.RecordActivityCommand{UserID: 1, OccurredAt: at(day)})
		require.NoError(t, err)
	}

	// Day 3 missed, day 4 starts over.
	res, err := f.record.Handle(context.Background(), command.RecordActivityCommand{UserID: 1, OccurredAt: at(4)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.StreakDays)
	assert.False(t, res.IsNewRecord)

	st, err := f.stats.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, st.StreakDays)
	assert.Equal(t, 2, st.LongestStreak)
}

func TestRecordActivity_BackfilledDayRepairsStreak(t *testing.T) {
	f := newStreakFixture(t)

	for _, day := range []int{1, 2, 4} {
		_, err := f.record.Handle(context.Background(), command.RecordActivityCommand{UserID: 1, OccurredAt: at(day)})
		require.NoError(t, err)
	}

	// Day 3 arrives out of order. The walk must anchor on day 4, the
	// most recent preserving day, and heal the full run.
	res, err := f.record.Handle(context.Background(), command.RecordActivityCommand{UserID: 1, OccurredAt: at(3)})
	require.NoError(t, err)
	assert.Equal(t, 4, res.StreakDays)
	assert.True(t, res.Extended)
	assert.True(t, res.IsNewRecord)

	st, err := f.stats.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 4, st.StreakDays)
	assert.Equal(t, 4, st.LongestStreak)
}

func TestRecordActivity_StreakOutgrowsWalkWindow(t *testing.T) {
	cal := timeutil.NewCalendar(time.UTC)
	activities := memory.NewActivityStore()
	stats := memory.NewStatStore()
	record := command.NewRecordActivityHandler(
		activities, stats, streak.DefaultRewardTable(), cal,
		command.RecordActivityConfig{LookbackDays: 5}, nil,
	)

	// Nine unbroken days against a five-day window: once the walk
	// saturates the window, the stored streak carries the rest.
	var last *streak.Result
	for day := 1; day <= 9; day++ {
		res, err := record.Handle(context.Background(), command.RecordActivityCommand{UserID: 1, OccurredAt: at(day)})
		require.NoError(t, err)
		last = res
	}
	assert.Equal(t, 9, last.StreakDays)
	assert.True(t, last.IsNewRecord)

	st, err := stats.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 9, st.StreakDays)
	assert.Equal(t, 9, st.LongestStreak)
}

func TestRecordActivity_FrozenDayBridgesGap(t *testing.T) {
	f := newStreakFixture(t)

	for _, day := range []int{1, 2} {
		_, err := f.record.Handle(context.Background(), command.RecordActivityCommand{UserID: 1, OccurredAt: at(day)})
		require.NoError(t, err)
	}

	frozen, err := f.freeze.Handle(context.Background(), command.ApplyFreezeCommand{UserID: 1, Day: at(3)})
	require.NoError(t, err)
	assert.True(t, frozen.Consumed)

	res, err := f.record.Handle(context.Background(), command.RecordActivityCommand{UserID: 1, OccurredAt: at(4)})
	require.NoError(t, err)
	assert.Equal(t, 4, res.StreakDays)
	assert.True(t, res.IsNewRecord)
}

func TestApplyFreeze_ActiveDayConsumesNothing(t *testing.T) {
	f := newStreakFixture(t)

	_, err := f.record.Handle(context.Background(), command.RecordActivityCommand{UserID: 1, OccurredAt: at(1)})
	require.NoError(t, err)

	res, err := f.freeze.Handle(context.Background(), command.ApplyFreezeCommand{UserID: 1, Day: at(1)})
	require.NoError(t, err)
	assert.False(t, res.Consumed)
}

func TestApplyFreeze_RefreezeIsNoOp(t *testing.T) {
	f := newStreakFixture(t)

	first, err := f.freeze.Handle(context.Background(), command.ApplyFreezeCommand{UserID: 1, Day: at(3)})
	require.NoError(t, err)
	assert.True(t, first.Consumed)

	second, err := f.freeze.Handle(context.Background(), command.ApplyFreezeCommand{UserID: 1, Day: at(3)})
	require.NoError(t, err)
	assert.False(t, second.Consumed)
}

package query_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotoba-hub/progress-engine/internal/application/query"
	"github.com/kotoba-hub/progress-engine/internal/domain/progress"
	"github.com/kotoba-hub/progress-engine/internal/domain/srs"
	"github.com/kotoba-hub/progress-engine/internal/domain/stats"
	"github.com/kotoba-hub/progress-engine/internal/domain/streak"
	"github.com/kotoba-hub/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/kotoba-hub/progress-engine/pkg/timeutil"
)

func TestGetUserProgress_CollapsesReviewRungs(t *testing.T) {
	statStore := memory.NewStatStore()
	itemStore := memory.NewProgressStore()
	handler := query.NewGetUserProgressHandler(statStore, itemStore, srs.NewMapper(nil))

	st := stats.NewUserStat(1)
	st.TotalPoints = 120
	st.StreakDays = 4
	require.NoError(t, statStore.Save(context.Background(), st))

	for i, stage := range []srs.Stage{srs.StageReview, srs.StageReview2, srs.StageReview3} {
		item := progress.NewItemProgress(1, int64(i+1), progress.KindWord)
		item.Stage = stage
		item.RecomputeProgress()
		require.NoError(t, itemStore.Upsert(context.Background(), item))
	}

	view, err := handler.Handle(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 120, view.TotalPoints)
	require.Len(t, view.Items, 3)
	for _, it := range view.Items {
		assert.Equal(t, srs.ProgressReview, it.Stage)
	}
}

func TestGetUserProgress_EmptyForUnknownUser(t *testing.T) {
	handler := query.NewGetUserProgressHandler(memory.NewStatStore(), memory.NewProgressStore(), srs.NewMapper(nil))

	view, err := handler.Handle(context.Background(), 404)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.Zero(t, view.TotalPoints)
}

func TestGetDailyProgress_StaleDailyPointsReadAsZero(t *testing.T) {
	cal := timeutil.NewCalendar(time.UTC)
	statStore := memory.NewStatStore()
	activityStore := memory.NewActivityStore()
	handler := query.NewGetDailyProgressHandler(statStore, activityStore, cal)

	yesterday := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	st := stats.NewUserStat(1)
	st.AddPoints(30, yesterday, cal)
	require.NoError(t, statStore.Save(context.Background(), st))

	today := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	view, err := handler.Handle(context.Background(), 1, today)
	require.NoError(t, err)
	assert.Zero(t, view.DailyPoints)
	assert.False(t, view.Active)

	sameDay, err := handler.Handle(context.Background(), 1, yesterday.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 30, sameDay.DailyPoints)
}

func TestGetDailyProgress_ReflectsDayRow(t *testing.T) {
	cal := timeutil.NewCalendar(time.UTC)
	activityStore := memory.NewActivityStore()
	handler := query.NewGetDailyProgressHandler(memory.NewStatStore(), activityStore, cal)

	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	row := streak.NewDailyActivity(1, cal.DayOf(now))
	row.MarkActive()
	row.LessonsCompleted = 2
	require.NoError(t, activityStore.Upsert(context.Background(), row))

	view, err := handler.Handle(context.Background(), 1, now)
	require.NoError(t, err)
	assert.True(t, view.Active)
	assert.Equal(t, 2, view.LessonsCompleted)
}

package streak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kotoba-hub/progress-engine/pkg/timeutil"
)

func day(n int) time.Time {
	return time.Date(2025, 3, n, 0, 0, 0, 0, time.UTC)
}

func activeDay(userID int64, n int) *DailyActivity {
	d := NewDailyActivity(userID, day(n))
	d.MarkActive()
	return d
}

func frozenDay(userID int64, n int) *DailyActivity {
	d := NewDailyActivity(userID, day(n))
	d.MarkFrozen()
	return d
}

func TestComputeLength_ConsecutiveDays(t *testing.T) {
	cal := timeutil.NewCalendar(time.UTC)

	rows := []*DailyActivity{activeDay(1, 1), activeDay(1, 2), activeDay(1, 3)}
	assert.Equal(t, 3, ComputeLength(rows, day(3), cal))
}

func TestComputeLength_FreezeBridgesGap(t *testing.T) {
	cal := timeutil.NewCalendar(time.UTC)

	// Active days 1,2 / freeze on 3 / active on 4 → streak of 4.
	rows := []*DailyActivity{activeDay(1, 1), activeDay(1, 2), frozenDay(1, 3), activeDay(1, 4)}
	assert.Equal(t, 4, ComputeLength(rows, day(4), cal))

	// Without the freeze the gap breaks the run: only day 4 counts.
	rows = []*DailyActivity{activeDay(1, 1), activeDay(1, 2), activeDay(1, 4)}
	assert.Equal(t, 1, ComputeLength(rows, day(4), cal))
}

func TestComputeLength_WalksFromMostRecentPreservingDay(t *testing.T) {
	cal := timeutil.NewCalendar(time.UTC)

	// A stale event for day 2 arriving after day 5 was processed must
	// not corrupt the count: the walk is anchored at day 5.
	rows := []*DailyActivity{activeDay(1, 2), activeDay(1, 4), activeDay(1, 5)}
	assert.Equal(t, 2, ComputeLength(rows, day(5), cal))
}

func TestComputeLength_IgnoresDaysAfterAnchor(t *testing.T) {
	cal := timeutil.NewCalendar(time.UTC)

	// Rows beyond the reference day are ignored.
	rows := []*DailyActivity{activeDay(1, 3), activeDay(1, 4), activeDay(1, 5)}
	assert.Equal(t, 2, ComputeLength(rows, day(4), cal))
}

func TestComputeLength_EmptyAndInactiveRows(t *testing.T) {
	cal := timeutil.NewCalendar(time.UTC)

	assert.Equal(t, 0, ComputeLength(nil, day(1), cal))

	inactive := NewDailyActivity(1, day(1))
	inactive.LessonsCompleted = 2 // counted but never marked active
	inactive.IsActive = false
	assert.Equal(t, 0, ComputeLength([]*DailyActivity{inactive}, day(1), cal))
}

func TestMarkFrozen_NoOpOnPreservedDay(t *testing.T) {
	d := NewDailyActivity(1, day(1))
	assert.True(t, d.MarkFrozen())
	assert.False(t, d.MarkFrozen())

	active := activeDay(1, 2)
	assert.False(t, active.MarkFrozen())
	assert.True(t, active.IsActive)
	assert.False(t, active.IsFrozen)
}

func TestMarkActive_SupersedesFreeze(t *testing.T) {
	d := frozenDay(1, 1)
	d.MarkActive()
	assert.True(t, d.IsActive)
	assert.False(t, d.IsFrozen)
	assert.True(t, d.StreakPreserving())
}

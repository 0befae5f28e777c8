// Package streak contains the per-day activity model and the streak
// computation. A streak is the run of consecutive calendar days that
// are streak-preserving: either active (a qualifying lesson completed)
// or frozen (a freeze token explicitly applied to cover the gap).
package streak

import (
	"time"

	"github.com/kotoba-hub/progress-engine/pkg/timeutil"
)

// DailyActivity is the append-only per-user, per-calendar-day row.
// At most one row exists per (user, date); Date carries no time
// component beyond midnight in the canonical timezone.
type DailyActivity struct {
	UserID int64
	Date   time.Time

	// IsActive and IsFrozen are mutually exclusive triggers for streak
	// continuation; both count as streak-preserving.
	IsActive bool
	IsFrozen bool

	CurrencyEarned   int
	LessonsCompleted int
}

// NewDailyActivity creates an empty row for a day.
func NewDailyActivity(userID int64, day time.Time) *DailyActivity {
	return &DailyActivity{UserID: userID, Date: day}
}

// StreakPreserving reports whether this day keeps a streak alive.
func (d *DailyActivity) StreakPreserving() bool {
	return d.IsActive || d.IsFrozen
}

// MarkActive marks the day active. An active day cannot also be
// frozen; activity supersedes a previously applied freeze.
func (d *DailyActivity) MarkActive() {
	d.IsActive = true
	d.IsFrozen = false
}

// MarkFrozen applies a freeze to the day. No-op when the day is
// already active or frozen.
func (d *DailyActivity) MarkFrozen() bool {
	if d.IsActive || d.IsFrozen {
		return false
	}
	d.IsFrozen = true
	return true
}

// Result reports the outcome of recording one day's activity.
type Result struct {
	// StreakDays is the recomputed streak length.
	StreakDays int

	// Extended reports whether this call made today streak-preserving
	// for the first time.
	Extended bool

	// IsNewRecord reports whether the streak surpassed the user's
	// longest streak.
	IsNewRecord bool

	// CurrencyEarned is the reward granted by this call (0 when the
	// day was already counted).
	CurrencyEarned int
}

// ComputeLength recomputes the streak by walking backward from the
// most recent streak-preserving day at or before upTo. Recomputation
// by walk, rather than blind counter increments, keeps the streak
// correct when historical rows are written out of order.
func ComputeLength(rows []*DailyActivity, upTo time.Time, cal timeutil.Calendar) int {
	days, _ := ComputeRun(rows, upTo, cal)
	return days
}

// ComputeRun is ComputeLength plus the calendar day the run ends on.
// The end day is zero when no streak-preserving day exists in rows.
func ComputeRun(rows []*DailyActivity, upTo time.Time, cal timeutil.Calendar) (int, time.Time) {
	byDay := make(map[string]*DailyActivity, len(rows))
	limit := cal.DayOf(upTo)

	var anchor time.Time
	for _, r := range rows {
		if !r.StreakPreserving() {
			continue
		}
		day := cal.DayOf(r.Date)
		if day.After(limit) {
			continue
		}
		byDay[cal.DayKey(day)] = r
		if anchor.IsZero() || day.After(anchor) {
			anchor = day
		}
	}
	if anchor.IsZero() {
		return 0, time.Time{}
	}

	count := 0
	for d := anchor; ; d = cal.AddDays(d, -1) {
		r, ok := byDay[cal.DayKey(d)]
		if !ok || !r.StreakPreserving() {
			break
		}
		count++
	}
	return count, anchor
}

// Package timeutil provides calendar-day arithmetic in a single canonical
// timezone. Streak continuity, freeze days, and daily-points resets all
// depend on agreeing about what "today" means, so every day-boundary
// computation in the engine goes through a Calendar instead of calling
// time.Now().Truncate directly.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// DefaultTimezone is the canonical timezone used when none is configured.
const DefaultTimezone = "Asia/Tokyo"

// FormatDay is the standard calendar-day format (YYYY-MM-DD).
const FormatDay = "2006-01-02"

// Calendar performs day-boundary computations in one fixed location.
// The location is chosen once at process start (from configuration) and
// never varies per request.
type Calendar struct {
	loc *time.Location
}

// NewCalendar creates a Calendar for the given location.
// A nil location falls back to the default timezone.
func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = MustLoadLocation(DefaultTimezone)
	}
	return Calendar{loc: loc}
}

// LoadCalendar creates a Calendar from an IANA timezone name.
func LoadCalendar(name string) (Calendar, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Calendar{}, fmt.Errorf("timeutil: invalid timezone %q: %w", name, err)
	}
	return Calendar{loc: loc}, nil
}

// MustLoadLocation loads an IANA location or falls back to a fixed JST
// zone when the tz database is unavailable.
func MustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("Asia/Tokyo", 9*60*60)
	}
	return loc
}

// Location returns the canonical location of the calendar.
func (c Calendar) Location() *time.Location {
	return c.loc
}

// Now returns the current time in the canonical timezone.
func (c Calendar) Now() time.Time {
	return time.Now().In(c.loc)
}

// In converts a time into the canonical timezone.
func (c Calendar) In(t time.Time) time.Time {
	return t.In(c.loc)
}

// DayOf returns the calendar day (midnight, canonical timezone) the
// given instant falls on. This is the normalization used for
// UserDailyActivity rows.
func (c Calendar) DayOf(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
}

// DayKey formats the calendar day of t as YYYY-MM-DD.
func (c Calendar) DayKey(t time.Time) string {
	return c.In(t).Format(FormatDay)
}

// SameDay checks whether two instants fall on the same calendar day.
func (c Calendar) SameDay(a, b time.Time) bool {
	la, lb := c.In(a), c.In(b)
	return la.Year() == lb.Year() && la.YearDay() == lb.YearDay()
}

// AddDays shifts a calendar day by n days (n may be negative).
func (c Calendar) AddDays(day time.Time, n int) time.Time {
	return c.DayOf(day).AddDate(0, 0, n)
}

// Yesterday returns the calendar day preceding the day of t.
func (c Calendar) Yesterday(t time.Time) time.Time {
	return c.AddDays(t, -1)
}

// DaysBetween returns the whole number of calendar days from a to b.
// Positive when b is after a, negative when before.
func (c Calendar) DaysBetween(a, b time.Time) int {
	da := c.DayOf(a)
	db := c.DayOf(b)
	return int(db.Sub(da).Hours() / 24)
}

// IsConsecutiveDay checks whether b falls on the day immediately after a.
func (c Calendar) IsConsecutiveDay(a, b time.Time) bool {
	return c.DaysBetween(a, b) == 1
}

// EndOfDay returns the last nanosecond of the day of t.
func (c Calendar) EndOfDay(t time.Time) time.Time {
	return c.DayOf(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// ParseDay parses a YYYY-MM-DD string as a calendar day.
func (c Calendar) ParseDay(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDay, value, c.loc)
}

package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
	"github.com/kotoba-hub/progress-engine/internal/domain/stats"
	"github.com/kotoba-hub/progress-engine/internal/domain/streak"
	"github.com/kotoba-hub/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTIVITY COMMAND
// Marks the user active for the event's calendar day, recomputes the
// streak by walking recent daily rows, and rolls the result into the
// aggregate stats. The walk also covers days recorded after the
// event's day, so a backfilled event repairs the streak instead of
// clipping it.
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityCommand marks one qualifying activity.
type RecordActivityCommand struct {
	UserID int64

	// OccurredAt is the event time; its calendar day in the canonical
	// timezone is the day being marked.
	OccurredAt time.Time

	// LessonCompleted bumps the day's lesson counter.
	LessonCompleted bool
}

// RecordActivityHandler handles RecordActivityCommand.
type RecordActivityHandler struct {
	activityRepo streak.Repository
	statRepo     stats.Repository
	rewards      streak.RewardTable
	cal          timeutil.Calendar
	lookbackDays int
	logger       *slog.Logger
}

// RecordActivityConfig bounds the streak walk. Lookback caps how far
// back Range is queried; when an unbroken run fills the whole window,
// the streak carried in UserStat extends it past the window boundary
// instead of being re-walked in full.
type RecordActivityConfig struct {
	LookbackDays int
}

// DefaultRecordActivityConfig returns the default walk window.
func DefaultRecordActivityConfig() RecordActivityConfig {
	return RecordActivityConfig{LookbackDays: 400}
}

// NewRecordActivityHandler creates a new RecordActivityHandler.
func NewRecordActivityHandler(
	activityRepo streak.Repository,
	statRepo stats.Repository,
	rewards streak.RewardTable,
	cal timeutil.Calendar,
	cfg RecordActivityConfig,
	logger *slog.Logger,
) *RecordActivityHandler {
	if cfg.LookbackDays <= 0 {
		cfg = DefaultRecordActivityConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordActivityHandler{
		activityRepo: activityRepo,
		statRepo:     statRepo,
		rewards:      rewards,
		cal:          cal,
		lookbackDays: cfg.LookbackDays,
		logger:       logger,
	}
}

// Handle marks the day active and returns the recomputed streak.
// Calling it twice for the same day is a cheap no-op for the streak
// and pays the daily reward only once.
func (h *RecordActivityHandler) Handle(ctx context.Context, cmd RecordActivityCommand) (*streak.Result, error) {
	day := h.cal.DayOf(cmd.OccurredAt)

	row, err := h.activityRepo.Get(ctx, cmd.UserID, day)
	if err != nil {
		if !shared.IsNotFound(err) {
			return nil, fmt.Errorf("record_activity: load day: %w", err)
		}
		row = streak.NewDailyActivity(cmd.UserID, day)
	}

	firstActiveToday := !row.IsActive
	row.MarkActive()
	if cmd.LessonCompleted {
		row.LessonsCompleted++
	}

	// The window reaches forward to today as well, so an event written
	// out of order sees the days already recorded after it and the walk
	// anchors on the most recent preserving day, not the event's day.
	windowStart := h.cal.AddDays(day, -h.lookbackDays)
	windowEnd := day
	if today := h.cal.DayOf(h.cal.Now()); today.After(windowEnd) {
		windowEnd = today
	}
	rows, err := h.activityRepo.Range(ctx, cmd.UserID, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("record_activity: load window: %w", err)
	}
	rows = replaceDay(rows, row, h.cal)

	days, runEnd := streak.ComputeRun(rows, windowEnd, h.cal)

	st, err := h.statRepo.Get(ctx, cmd.UserID)
	if err != nil {
		if !shared.IsNotFound(err) {
			return nil, fmt.Errorf("record_activity: load stats: %w", err)
		}
		st = stats.NewUserStat(cmd.UserID)
	}
	days = h.carryBeyondWindow(st, days, runEnd, windowStart)

	result := &streak.Result{
		StreakDays: days,
		Extended:   firstActiveToday,
	}
	if firstActiveToday {
		result.CurrencyEarned = h.rewards.RewardFor(days)
		row.CurrencyEarned += result.CurrencyEarned
	}

	if err := h.activityRepo.Upsert(ctx, row); err != nil {
		return nil, fmt.Errorf("record_activity: save day: %w", err)
	}

	result.IsNewRecord = st.SyncStreak(days, runEnd)
	st.Touch(cmd.OccurredAt)
	if err := h.statRepo.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("record_activity: save stats: %w", err)
	}

	if result.IsNewRecord {
		h.logger.Info("streak record",
			slog.Int64("user_id", cmd.UserID),
			slog.Int("days", days))
	}
	return result, nil
}

// carryBeyondWindow extends a walk that fills the entire window with
// the streak carried in the aggregate. The walk alone cannot see where
// such a run started; the stored streak, synced on a day inside the
// run, supplies the portion that predates the window.
func (h *RecordActivityHandler) carryBeyondWindow(st *stats.UserStat, days int, runEnd, windowStart time.Time) int {
	if days == 0 || st.StreakSyncedOn.IsZero() {
		return days
	}
	runStart := h.cal.AddDays(runEnd, -(days - 1))
	if runStart.After(windowStart) {
		return days
	}
	synced := h.cal.DayOf(st.StreakSyncedOn)
	if synced.Before(runStart) || synced.After(runEnd) {
		return days
	}
	if carried := st.StreakDays + h.cal.DaysBetween(synced, runEnd); carried > days {
		return carried
	}
	return days
}

// replaceDay swaps the in-memory row into the loaded window so the
// walk sees today's activity before it is persisted.
func replaceDay(rows []*streak.DailyActivity, row *streak.DailyActivity, cal timeutil.Calendar) []*streak.DailyActivity {
	for i, r := range rows {
		if cal.SameDay(r.Date, row.Date) {
			rows[i] = row
			return rows
		}
	}
	return append(rows, row)
}

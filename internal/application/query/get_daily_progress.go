package query

import (
	"context"
	"fmt"
	"time"

	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
	"github.com/kotoba-hub/progress-engine/internal/domain/stats"
	"github.com/kotoba-hub/progress-engine/internal/domain/streak"
	"github.com/kotoba-hub/progress-engine/pkg/timeutil"
)

// DailyProgressView reports today's points and activity for a user.
// "Today" is the current calendar day in the canonical timezone.
type DailyProgressView struct {
	UserID           int64  `json:"user_id"`
	Day              string `json:"day"`
	DailyPoints      int    `json:"daily_points"`
	LessonsCompleted int    `json:"lessons_completed"`
	Active           bool   `json:"active"`
	Frozen           bool   `json:"frozen"`
	StreakDays       int    `json:"streak_days"`
}

// GetDailyProgressHandler serves the daily progress report.
type GetDailyProgressHandler struct {
	statRepo     stats.Repository
	activityRepo streak.Repository
	cal          timeutil.Calendar
}

// NewGetDailyProgressHandler creates a new GetDailyProgressHandler.
func NewGetDailyProgressHandler(statRepo stats.Repository, activityRepo streak.Repository, cal timeutil.Calendar) *GetDailyProgressHandler {
	return &GetDailyProgressHandler{statRepo: statRepo, activityRepo: activityRepo, cal: cal}
}

// Handle builds the report for the given instant's calendar day.
func (h *GetDailyProgressHandler) Handle(ctx context.Context, userID int64, now time.Time) (*DailyProgressView, error) {
	day := h.cal.DayOf(now)
	view := &DailyProgressView{UserID: userID, Day: h.cal.DayKey(day)}

	st, err := h.statRepo.Get(ctx, userID)
	if err != nil && !shared.IsNotFound(err) {
		return nil, fmt.Errorf("get_daily_progress: %w", err)
	}
	if st != nil {
		view.StreakDays = st.StreakDays
		// DailyPoints belongs to the day of the last activity; a
		// stale value from yesterday reads as zero today.
		if h.cal.SameDay(st.LastActivity, now) {
			view.DailyPoints = st.DailyPoints
		}
	}

	row, err := h.activityRepo.Get(ctx, userID, day)
	if err != nil {
		if shared.IsNotFound(err) {
			return view, nil
		}
		return nil, fmt.Errorf("get_daily_progress: %w", err)
	}
	view.LessonsCompleted = row.LessonsCompleted
	view.Active = row.IsActive
	view.Frozen = row.IsFrozen
	return view, nil
}

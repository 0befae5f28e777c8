package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
	"github.com/kotoba-hub/progress-engine/internal/domain/streak"
	"github.com/kotoba-hub/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLY FREEZE COMMAND
// Spends a freeze token on a calendar day so the streak survives a
// missed day. Freezing a day the user was active on is a no-op and
// the token is reported as unspent.
// ══════════════════════════════════════════════════════════════════════════════

// ApplyFreezeCommand freezes one calendar day for a user.
type ApplyFreezeCommand struct {
	UserID int64

	// Day is any time within the calendar day to freeze.
	Day time.Time
}

// ApplyFreezeResult reports whether the token was actually consumed.
type ApplyFreezeResult struct {
	// Consumed is false when the day was already streak-preserving.
	Consumed bool
}

// ApplyFreezeHandler handles ApplyFreezeCommand.
type ApplyFreezeHandler struct {
	activityRepo streak.Repository
	cal          timeutil.Calendar
	logger       *slog.Logger
}

// NewApplyFreezeHandler creates a new ApplyFreezeHandler.
func NewApplyFreezeHandler(activityRepo streak.Repository, cal timeutil.Calendar, logger *slog.Logger) *ApplyFreezeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApplyFreezeHandler{activityRepo: activityRepo, cal: cal, logger: logger}
}

// Handle freezes the day. Idempotent: refreezing a frozen day or
// freezing an active day consumes nothing.
func (h *ApplyFreezeHandler) Handle(ctx context.Context, cmd ApplyFreezeCommand) (*ApplyFreezeResult, error) {
	day := h.cal.DayOf(cmd.Day)

	row, err := h.activityRepo.Get(ctx, cmd.UserID, day)
	if err != nil {
		if !shared.IsNotFound(err) {
			return nil, fmt.Errorf("apply_freeze: load day: %w", err)
		}
		row = streak.NewDailyActivity(cmd.UserID, day)
	}

	if !row.MarkFrozen() {
		return &ApplyFreezeResult{Consumed: false}, nil
	}
	if err := h.activityRepo.Upsert(ctx, row); err != nil {
		return nil, fmt.Errorf("apply_freeze: save day: %w", err)
	}

	h.logger.Info("freeze applied",
		slog.Int64("user_id", cmd.UserID),
		slog.String("day", h.cal.DayKey(day)))
	return &ApplyFreezeResult{Consumed: true}, nil
}

// Package query contains read operations (CQRS - Queries). Queries
// never mutate state and bypass the dispatcher lanes entirely.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/kotoba-hub/progress-engine/internal/domain/progress"
	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
	"github.com/kotoba-hub/progress-engine/internal/domain/srs"
	"github.com/kotoba-hub/progress-engine/internal/domain/stats"
)

// ItemView is one item row of the user progress report. Stage is the
// collapsed presentation projection, not the raw SRS rung.
type ItemView struct {
	ItemID       int64             `json:"item_id"`
	Kind         progress.ItemKind `json:"kind"`
	Stage        srs.ProgressStage `json:"stage"`
	Progress     int               `json:"progress"`
	NextReviewAt time.Time         `json:"next_review_at"`
}

// UserProgressView is the full per-user progress report.
type UserProgressView struct {
	UserID        int64      `json:"user_id"`
	TotalPoints   int        `json:"total_points"`
	StreakDays    int        `json:"streak_days"`
	LongestStreak int        `json:"longest_streak"`
	Items         []ItemView `json:"items"`
}

// GetUserProgressHandler serves the per-user progress report.
type GetUserProgressHandler struct {
	statRepo stats.Repository
	itemRepo progress.Repository
	mapper   *srs.Mapper
}

// NewGetUserProgressHandler creates a new GetUserProgressHandler.
func NewGetUserProgressHandler(statRepo stats.Repository, itemRepo progress.Repository, mapper *srs.Mapper) *GetUserProgressHandler {
	return &GetUserProgressHandler{statRepo: statRepo, itemRepo: itemRepo, mapper: mapper}
}

// Handle builds the report. A user with no stats yet gets an empty
// report rather than an error.
func (h *GetUserProgressHandler) Handle(ctx context.Context, userID int64) (*UserProgressView, error) {
	view := &UserProgressView{UserID: userID}

	st, err := h.statRepo.Get(ctx, userID)
	if err != nil && !shared.IsNotFound(err) {
		return nil, fmt.Errorf("get_user_progress: %w", err)
	}
	if st != nil {
		view.TotalPoints = st.TotalPoints
		view.StreakDays = st.StreakDays
		view.LongestStreak = st.LongestStreak
	}

	items, err := h.itemRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get_user_progress: %w", err)
	}
	view.Items = make([]ItemView, 0, len(items))
	for _, it := range items {
		view.Items = append(view.Items, ItemView{
			ItemID:       it.ItemID,
			Kind:         it.Kind,
			Stage:        h.mapper.ToProgressStage(it.Stage),
			Progress:     it.Progress,
			NextReviewAt: it.NextReviewAt,
		})
	}
	return view, nil
}

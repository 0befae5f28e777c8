// Package command contains write operations (CQRS - Commands).
// Commands are responsible for changing the state of the system.
// All commands for one user run on the same dispatcher lane, so a
// handler never races itself for that user's aggregates.
package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kotoba-hub/progress-engine/internal/domain/progress"
	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
	"github.com/kotoba-hub/progress-engine/internal/domain/srs"
	"github.com/kotoba-hub/progress-engine/internal/domain/stats"
	"github.com/kotoba-hub/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLY EVENT COMMAND
// Applies one progress event to the user's item record and aggregate
// stats. This is the hot path of the engine.
// Flow: Dedup Check → Reference Check → Stage Transition → Counters →
// Points → Persist → Mark Token
// Each persisted row carries the dedup token of the last event applied
// to it, so a redelivery after a crash between the writes resumes
// where the first delivery stopped instead of double-applying.
// ══════════════════════════════════════════════════════════════════════════════

// TokenStore remembers dedup tokens so reprocessed events become
// no-ops. Seen is checked before any write and Mark is called after
// all writes succeed; because all events for one user share a lane,
// the window between the two is never observed concurrently. A crash
// inside that window is covered by the token stamps persisted on the
// item and stat rows themselves, which turn the redelivered writes
// into no-ops.
type TokenStore interface {
	Seen(ctx context.Context, userID int64, token string) (bool, error)
	Mark(ctx context.Context, userID int64, token string) error
}

// ApplyEventCommand wraps one validated progress event.
type ApplyEventCommand struct {
	Event progress.ProgressEvent
}

// ApplyEventResult reports what the event changed.
type ApplyEventResult struct {
	// Duplicate is true when the dedup token was already seen and
	// nothing was applied.
	Duplicate bool

	// Dropped is true when the referenced item does not exist in the
	// catalogue and the event was discarded.
	Dropped bool

	// StageBefore and StageAfter describe the SRS transition.
	StageBefore srs.Stage
	StageAfter  srs.Stage

	// MasteredNow is true when this event moved the item into
	// mastered for the first time.
	MasteredNow bool

	// PointsAwarded is the total-points contribution of the event.
	PointsAwarded int

	// Stat is the aggregate after the event was applied.
	Stat *stats.UserStat
}

// ApplyEventHandler handles ApplyEventCommand.
type ApplyEventHandler struct {
	statRepo stats.Repository
	itemRepo progress.Repository
	refs     progress.RefChecker
	tokens   TokenStore
	mapper   *srs.Mapper
	points   progress.PointsTable
	cal      timeutil.Calendar
	logger   *slog.Logger
}

// NewApplyEventHandler creates a new ApplyEventHandler.
func NewApplyEventHandler(
	statRepo stats.Repository,
	itemRepo progress.Repository,
	refs progress.RefChecker,
	tokens TokenStore,
	mapper *srs.Mapper,
	points progress.PointsTable,
	cal timeutil.Calendar,
	logger *slog.Logger,
) *ApplyEventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if points == nil {
		points = progress.DefaultPointsTable()
	}
	return &ApplyEventHandler{
		statRepo: statRepo,
		itemRepo: itemRepo,
		refs:     refs,
		tokens:   tokens,
		mapper:   mapper,
		points:   points,
		cal:      cal,
		logger:   logger,
	}
}

// Handle applies the event. A duplicate token or a missing catalogue
// reference returns a successful result with the corresponding flag
// set; only storage failures return an error.
func (h *ApplyEventHandler) Handle(ctx context.Context, cmd ApplyEventCommand) (*ApplyEventResult, error) {
	ev := cmd.Event
	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("apply_event: %w", err)
	}

	seen, err := h.tokens.Seen(ctx, ev.UserID, ev.DedupToken)
	if err != nil {
		return nil, fmt.Errorf("apply_event: dedup check: %w", err)
	}
	if seen {
		h.logger.Debug("duplicate event skipped",
			slog.Int64("user_id", ev.UserID),
			slog.String("token", ev.DedupToken))
		return &ApplyEventResult{Duplicate: true}, nil
	}

	exists, err := h.refs.ItemExists(ctx, ev.ItemKind, ev.ItemID)
	if err != nil {
		return nil, fmt.Errorf("apply_event: reference check: %w", err)
	}
	if !exists {
		h.logger.Warn("event references unknown item, dropping",
			slog.Int64("user_id", ev.UserID),
			slog.String("kind", string(ev.ItemKind)),
			slog.Int64("item_id", ev.ItemID))
		// Mark the token anyway so a redelivery of the same bad event
		// does not log twice.
		if err := h.tokens.Mark(ctx, ev.UserID, ev.DedupToken); err != nil {
			return nil, fmt.Errorf("apply_event: mark token: %w", err)
		}
		return &ApplyEventResult{Dropped: true}, nil
	}

	item, err := h.loadOrCreateItem(ctx, ev)
	if err != nil {
		return nil, err
	}
	stageBefore := item.Stage

	var crossed bool
	if item.LastToken == ev.DedupToken {
		// A prior delivery already ran the transition and crashed
		// before finishing. Recover the crossing flag from the mastery
		// stamp instead of advancing the stage a second time.
		crossed = !item.MasteredAt.IsZero() && item.MasteredAt.Equal(ev.OccurredAt)
	} else {
		crossed = item.RecordAttempt(h.mapper, ev.Outcome.Correct, ev.OccurredAt)
		item.LastToken = ev.DedupToken
		if err := h.itemRepo.Upsert(ctx, item); err != nil {
			return nil, fmt.Errorf("apply_event: save item: %w", err)
		}
	}

	st, err := h.loadOrCreateStat(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}

	pts := h.points.PointsFor(ev.ItemKind, ev.Outcome)
	if st.LastToken != ev.DedupToken {
		if crossed {
			st.RecordMastery(ev.ItemKind)
		}
		if ev.Audio {
			st.RecordAudioPass()
		}
		if ev.ItemKind == progress.KindKana && ev.Outcome.Correct {
			st.RecordKanaRecognition()
		}
		st.AddPoints(pts, ev.OccurredAt, h.cal)
		st.LastToken = ev.DedupToken

		if err := h.statRepo.Save(ctx, st); err != nil {
			return nil, fmt.Errorf("apply_event: save stats: %w", err)
		}
	}

	if err := h.tokens.Mark(ctx, ev.UserID, ev.DedupToken); err != nil {
		return nil, fmt.Errorf("apply_event: mark token: %w", err)
	}

	return &ApplyEventResult{
		StageBefore:   stageBefore,
		StageAfter:    item.Stage,
		MasteredNow:   crossed,
		PointsAwarded: pts,
		Stat:          st,
	}, nil
}

func (h *ApplyEventHandler) loadOrCreateItem(ctx context.Context, ev progress.ProgressEvent) (*progress.ItemProgress, error) {
	item, err := h.itemRepo.Get(ctx, ev.UserID, ev.ItemID, ev.ItemKind)
	if err == nil {
		return item, nil
	}
	if shared.IsNotFound(err) {
		return progress.NewItemProgress(ev.UserID, ev.ItemID, ev.ItemKind), nil
	}
	return nil, fmt.Errorf("apply_event: load item: %w", err)
}

func (h *ApplyEventHandler) loadOrCreateStat(ctx context.Context, userID int64) (*stats.UserStat, error) {
	st, err := h.statRepo.Get(ctx, userID)
	if err == nil {
		return st, nil
	}
	if shared.IsNotFound(err) {
		return stats.NewUserStat(userID), nil
	}
	return nil, fmt.Errorf("apply_event: load stats: %w", err)
}

// Package saga contains multi-step business processes that
// orchestrate several domain operations.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kotoba-hub/progress-engine/internal/domain/achievement"
	"github.com/kotoba-hub/progress-engine/internal/domain/notification"
	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
	"github.com/kotoba-hub/progress-engine/internal/domain/stats"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD FLOW SAGA
// Evaluates the achievement catalogue against the user's current
// counters and awards everything newly satisfied.
// Flow: Snapshot Counters → Load Already-Awarded → Evaluate Rules →
// Persist Awards → Notify
// A malformed catalogue rule skips only that rule. A notifier failure
// never rolls back an award.
// ══════════════════════════════════════════════════════════════════════════════

// AwardFlowInput carries the state to evaluate against.
type AwardFlowInput struct {
	UserID int64

	// Stat is the aggregate after the triggering command. When nil
	// the saga loads it itself.
	Stat *stats.UserStat

	// Now stamps EarnedAt on new awards.
	Now time.Time
}

// AwardFlowResult lists what was awarded in this evaluation.
type AwardFlowResult struct {
	Awarded []achievement.Award

	// RulesSkipped counts catalogue entries whose rule could not be
	// evaluated.
	RulesSkipped int
}

// AwardFlow is the achievement evaluation saga.
type AwardFlow struct {
	catalogue achievement.CatalogueRepository
	awards    achievement.Repository
	statRepo  stats.Repository
	notifier  notification.Notifier
	bus       shared.EventBus
	logger    *slog.Logger
}

// NewAwardFlow creates a new AwardFlow.
func NewAwardFlow(
	catalogue achievement.CatalogueRepository,
	awards achievement.Repository,
	statRepo stats.Repository,
	notifier notification.Notifier,
	bus shared.EventBus,
	logger *slog.Logger,
) *AwardFlow {
	if logger == nil {
		logger = slog.Default()
	}
	return &AwardFlow{
		catalogue: catalogue,
		awards:    awards,
		statRepo:  statRepo,
		notifier:  notifier,
		bus:       bus,
		logger:    logger,
	}
}

// Execute runs one evaluation for the user.
func (f *AwardFlow) Execute(ctx context.Context, in AwardFlowInput) (*AwardFlowResult, error) {
	st := in.Stat
	if st == nil {
		loaded, err := f.statRepo.Get(ctx, in.UserID)
		if err != nil {
			if shared.IsNotFound(err) {
				return &AwardFlowResult{}, nil
			}
			return nil, fmt.Errorf("award_flow: load stats: %w", err)
		}
		st = loaded
	}
	snap := achievement.SnapshotFrom(st)

	entries, err := f.catalogue.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("award_flow: load catalogue: %w", err)
	}
	achieved, err := f.awards.ListAchieved(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("award_flow: load achieved: %w", err)
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	result := &AwardFlowResult{}
	for _, entry := range entries {
		if achieved[entry.ID] {
			continue
		}
		ok, err := entry.Rule.Satisfied(snap)
		if err != nil {
			result.RulesSkipped++
			f.logger.Warn("catalogue rule skipped",
				slog.Int64("achievement_id", entry.ID),
				slog.String("error", err.Error()))
			continue
		}
		if !ok {
			continue
		}

		ua := achievement.NewAward(in.UserID, entry, now)
		if err := f.awards.CreateAchieved(ctx, ua); err != nil {
			if errors.Is(err, shared.ErrAlreadyExists) {
				continue
			}
			return nil, fmt.Errorf("award_flow: persist award: %w", err)
		}

		award := achievement.AwardFor(in.UserID, entry, now)
		result.Awarded = append(result.Awarded, award)

		if f.bus != nil {
			_ = f.bus.Publish(shared.AchievementAwardedEvent{
				BaseEvent:     shared.NewBaseEvent(shared.EventAchievementAwarded, in.UserID),
				UserID:        in.UserID,
				AchievementID: entry.ID,
				Title:         entry.Title,
				Points:        entry.Points,
				Category:      string(entry.Category),
				EarnedAt:      now,
			})
		}

		if f.notifier != nil {
			if err := f.notifier.NotifyAward(ctx, award); err != nil {
				f.logger.Error("award notification failed",
					slog.Int64("user_id", in.UserID),
					slog.Int64("achievement_id", entry.ID),
					slog.String("error", err.Error()))
			}
		}
	}
	return result, nil
}

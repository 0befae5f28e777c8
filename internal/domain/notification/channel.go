package notification

import (
	"context"

	"github.com/kotoba-hub/progress-engine/internal/domain/achievement"
)

// Notifier is the outbound channel to the external real-time notifier.
type Notifier interface {
	// NotifyAward delivers one newly-awarded achievement. Called
	// exactly once per award under the award-once guarantee.
	NotifyAward(ctx context.Context, award achievement.Award) error

	// NotifyStreak delivers a streak update.
	NotifyStreak(ctx context.Context, notice StreakNotice) error

	// NotifyStreakAtRisk delivers a streak-expiry reminder.
	NotifyStreakAtRisk(ctx context.Context, notice StreakAtRiskNotice) error
}

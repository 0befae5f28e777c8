package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotoba-hub/progress-engine/internal/domain/achievement"
	"github.com/kotoba-hub/progress-engine/internal/domain/notification"
	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
	"github.com/kotoba-hub/progress-engine/internal/domain/streak"
	"github.com/kotoba-hub/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/kotoba-hub/progress-engine/pkg/timeutil"
)

type stubNotifier struct {
	mu     sync.Mutex
	atRisk []notification.StreakAtRiskNotice
}

func (n *stubNotifier) NotifyAward(context.Context, achievement.Award) error { return nil }

func (n *stubNotifier) NotifyStreak(context.Context, notification.StreakNotice) error { return nil }

func (n *stubNotifier) NotifyStreakAtRisk(_ context.Context, notice notification.StreakAtRiskNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.atRisk = append(n.atRisk, notice)
	return nil
}

type stubEnqueuer struct {
	mu       sync.Mutex
	triggers []shared.Trigger
}

func (e *stubEnqueuer) Enqueue(_ context.Context, trg shared.Trigger) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.triggers = append(e.triggers, trg)
	return nil
}

func markDay(t *testing.T, store *memory.ActivityStore, userID int64, day time.Time) {
	t.Helper()
	row := streak.NewDailyActivity(userID, day)
	row.MarkActive()
	require.NoError(t, store.Upsert(context.Background(), row))
}

func TestSweepStreaksAtRisk_NotifiesOnlyAbsentUsers(t *testing.T) {
	cal := timeutil.NewCalendar(time.UTC)
	store := memory.NewActivityStore()
	notifier := &stubNotifier{}

	today := cal.DayOf(time.Now())
	yesterday := cal.AddDays(today, -1)

	// User 1 was active yesterday and today, user 2 only yesterday,
	// user 3 only today.
	markDay(t, store, 1, yesterday)
	markDay(t, store, 1, today)
	markDay(t, store, 2, yesterday)
	markDay(t, store, 2, cal.AddDays(yesterday, -1))
	markDay(t, store, 3, today)

	s := New(store, notifier, &stubEnqueuer{}, cal, DefaultConfig(), nil)
	s.sweepStreaksAtRisk()

	require.Len(t, notifier.atRisk, 1)
	notice := notifier.atRisk[0]
	assert.Equal(t, int64(2), notice.UserID)
	assert.Equal(t, 2, notice.StreakDays)
	assert.Equal(t, cal.EndOfDay(today), notice.ExpiresAt)
}

func TestReevaluateAchievements_EnqueuesDeterministicTokens(t *testing.T) {
	cal := timeutil.NewCalendar(time.UTC)
	store := memory.NewActivityStore()
	enqueuer := &stubEnqueuer{}

	yesterday := cal.Yesterday(time.Now())
	markDay(t, store, 1, yesterday)
	markDay(t, store, 2, yesterday)

	s := New(store, &stubNotifier{}, enqueuer, cal, DefaultConfig(), nil)
	s.reevaluateAchievements()
	first := append([]shared.Trigger{}, enqueuer.triggers...)

	enqueuer.triggers = nil
	s.reevaluateAchievements()

	require.Len(t, first, 2)
	require.Len(t, enqueuer.triggers, 2)
	for i := range first {
		assert.Equal(t, shared.TriggerCheckAchievements, first[i].Kind)
		assert.Equal(t, first[i].DedupToken, enqueuer.triggers[i].DedupToken)
	}
}

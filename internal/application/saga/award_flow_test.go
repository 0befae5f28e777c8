package saga_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotoba-hub/progress-engine/internal/application/saga"
	"github.com/kotoba-hub/progress-engine/internal/domain/achievement"
	"github.com/kotoba-hub/progress-engine/internal/domain/notification"
	"github.com/kotoba-hub/progress-engine/internal/domain/stats"
	"github.com/kotoba-hub/progress-engine/internal/infrastructure/persistence/memory"
)

type fakeNotifier struct {
	awards []achievement.Award
	fail   bool
}

func (n *fakeNotifier) NotifyAward(_ context.Context, a achievement.Award) error {
	if n.fail {
		return errors.New("notifier down")
	}
	n.awards = append(n.awards, a)
	return nil
}

func (n *fakeNotifier) NotifyStreak(context.Context, notification.StreakNotice) error { return nil }

func (n *fakeNotifier) NotifyStreakAtRisk(context.Context, notification.StreakAtRiskNotice) error {
	return nil
}

func catalogue() *memory.CatalogueStore {
	return memory.NewCatalogueStore(
		achievement.CatalogueEntry{
			ID: 1, Title: "First Words", Points: 10, Category: achievement.CategoryGeneral,
			Rule: achievement.Rule{Counter: achievement.CounterWordsLearned, Threshold: 10},
		},
		achievement.CatalogueEntry{
			ID: 2, Title: "Vocabulary Builder", Points: 50, Category: achievement.CategoryGeneral,
			Rule: achievement.Rule{Counter: achievement.CounterWordsLearned, Threshold: 50},
		},
		achievement.CatalogueEntry{
			ID: 3, Title: "Week One", Points: 25, Category: achievement.CategoryStreak,
			Rule: achievement.Rule{Counter: achievement.CounterStreakDays, Threshold: 7},
		},
	)
}

func TestAwardFlow_AwardsNewlySatisfied(t *testing.T) {
	statStore := memory.NewStatStore()
	awards := memory.NewAchievementStore()
	notifier := &fakeNotifier{}
	flow := saga.NewAwardFlow(catalogue(), awards, statStore, notifier, nil, nil)

	st := stats.NewUserStat(1)
	st.WordsLearned = 50

	res, err := flow.Execute(context.Background(), saga.AwardFlowInput{
		UserID: 1, Stat: st, Now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	// Both word thresholds are satisfied at 50.
	require.Len(t, res.Awarded, 2)
	assert.Len(t, notifier.awards, 2)

	achieved, err := awards.ListAchieved(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, achieved[1])
	assert.True(t, achieved[2])
	assert.False(t, achieved[3])
}

func TestAwardFlow_AwardOnce(t *testing.T) {
	statStore := memory.NewStatStore()
	awards := memory.NewAchievementStore()
	flow := saga.NewAwardFlow(catalogue(), awards, statStore, &fakeNotifier{}, nil, nil)

	st := stats.NewUserStat(1)
	st.WordsLearned = 10

	first, err := flow.Execute(context.Background(), saga.AwardFlowInput{UserID: 1, Stat: st})
	require.NoError(t, err)
	require.Len(t, first.Awarded, 1)

	st.WordsLearned = 12
	second, err := flow.Execute(context.Background(), saga.AwardFlowInput{UserID: 1, Stat: st})
	require.NoError(t, err)
	assert.Empty(t, second.Awarded)
}

func TestAwardFlow_MalformedRuleSkipsOnlyThatRule(t *testing.T) {
	cat := memory.NewCatalogueStore(
		achievement.CatalogueEntry{
			ID: 1, Title: "Broken",
			Rule: achievement.Rule{Counter: "nonsense_counter", Threshold: 1},
		},
		achievement.CatalogueEntry{
			ID: 2, Title: "First Words",
			Rule: achievement.Rule{Counter: achievement.CounterWordsLearned, Threshold: 10},
		},
	)
	flow := saga.NewAwardFlow(cat, memory.NewAchievementStore(), memory.NewStatStore(), &fakeNotifier{}, nil, nil)

	st := stats.NewUserStat(1)
	st.WordsLearned = 10

	res, err := flow.Execute(context.Background(), saga.AwardFlowInput{UserID: 1, Stat: st})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RulesSkipped)
	require.Len(t, res.Awarded, 1)
	assert.Equal(t, int64(2), res.Awarded[0].AchievementID)
}

func TestAwardFlow_NotifierFailureDoesNotRollBack(t *testing.T) {
	awards := memory.NewAchievementStore()
	flow := saga.NewAwardFlow(catalogue(), awards, memory.NewStatStore(), &fakeNotifier{fail: true}, nil, nil)

	st := stats.NewUserStat(1)
	st.WordsLearned = 10

	res, err := flow.Execute(context.Background(), saga.AwardFlowInput{UserID: 1, Stat: st})
	require.NoError(t, err)
	require.Len(t, res.Awarded, 1)

	achieved, err := awards.ListAchieved(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, achieved[1])
}

func TestAwardFlow_UnknownUserIsEmptyResult(t *testing.T) {
	flow := saga.NewAwardFlow(catalogue(), memory.NewAchievementStore(), memory.NewStatStore(), &fakeNotifier{}, nil, nil)

	res, err := flow.Execute(context.Background(), saga.AwardFlowInput{UserID: 404})
	require.NoError(t, err)
	assert.Empty(t, res.Awarded)
}

package eventhandler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotoba-hub/progress-engine/internal/application/command"
	"github.com/kotoba-hub/progress-engine/internal/application/eventhandler"
	"github.com/kotoba-hub/progress-engine/internal/application/saga"
	"github.com/kotoba-hub/progress-engine/internal/domain/achievement"
	"github.com/kotoba-hub/progress-engine/internal/domain/notification"
	"github.com/kotoba-hub/progress-engine/internal/domain/progress"
	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
	"github.com/kotoba-hub/progress-engine/internal/domain/srs"
	"github.com/kotoba-hub/progress-engine/internal/domain/streak"
	"github.com/kotoba-hub/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/kotoba-hub/progress-engine/pkg/timeutil"
)

type recordingNotifier struct {
	awards  []achievement.Award
	streaks []notification.StreakNotice
}

func (n *recordingNotifier) NotifyAward(_ context.Context, a achievement.Award) error {
	n.awards = append(n.awards, a)
	return nil
}

func (n *recordingNotifier) NotifyStreak(_ context.Context, s notification.StreakNotice) error {
	n.streaks = append(n.streaks, s)
	return nil
}

func (n *recordingNotifier) NotifyStreakAtRisk(context.Context, notification.StreakAtRiskNotice) error {
	return nil
}

type pipelineFixture struct {
	handler  *eventhandler.OnTriggerHandler
	stats    *memory.StatStore
	items    *memory.ProgressStore
	notifier *recordingNotifier
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	cal := timeutil.NewCalendar(time.UTC)
	statStore := memory.NewStatStore()
	itemStore := memory.NewProgressStore()
	activityStore := memory.NewActivityStore()
	awardStore := memory.NewAchievementStore()
	notifier := &recordingNotifier{}

	refs := memory.NewRefTable()
	for id := int64(1); id <= 100; id++ {
		refs.Add(progress.KindWord, id)
		refs.Add(progress.KindKana, id)
		refs.Add(progress.KindLesson, id)
	}

	cat := memory.NewCatalogueStore(achievement.CatalogueEntry{
		ID: 1, Title: "First Words",
		Rule: achievement.Rule{Counter: achievement.CounterWordsLearned, Threshold: 1},
	})

	applyEvent := command.NewApplyEventHandler(
		statStore, itemStore, refs, memory.NewTokenStore(),
		srs.NewMapper(nil), progress.DefaultPointsTable(), cal, nil,
	)
	recordActivity := command.NewRecordActivityHandler(
		activityStore, statStore, streak.DefaultRewardTable(), cal,
		command.RecordActivityConfig{}, nil,
	)
	awardFlow := saga.NewAwardFlow(cat, awardStore, statStore, notifier, nil, nil)

	return &pipelineFixture{
		handler:  eventhandler.NewOnTriggerHandler(applyEvent, recordActivity, awardFlow, notifier, nil, nil),
		stats:    statStore,
		items:    itemStore,
		notifier: notifier,
	}
}

func trigger(kind shared.TriggerKind, token string, correct bool, day int) shared.Trigger {
	return shared.Trigger{
		Kind:       kind,
		UserID:     1,
		AuxID:      7,
		Correct:    correct,
		DedupToken: token,
		OccurredAt: time.Date(2026, 3, day, 9, 0, 0, 0, time.UTC),
	}
}

func TestOnTrigger_WordReviewFlowsThroughPipeline(t *testing.T) {
	f := newPipelineFixture(t)

	err := f.handler.Handle(context.Background(), trigger(shared.TriggerWordReview, "t-1", true, 1))
	require.NoError(t, err)

	st, err := f.stats.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 10, st.TotalPoints)
	assert.Equal(t, 1, st.StreakDays)

	item, err := f.items.Get(context.Background(), 1, 7, progress.KindWord)
	require.NoError(t, err)
	assert.Equal(t, srs.StageLearning, item.Stage)

	// First activity of the day surfaces a streak notice.
	require.Len(t, f.notifier.streaks, 1)
	assert.Equal(t, 1, f.notifier.streaks[0].StreakDays)
}

func TestOnTrigger_MasteryAwardsAchievement(t *testing.T) {
	f := newPipelineFixture(t)

	for i := 0; i < 5; i++ {
		trg := trigger(shared.TriggerWordReview, string(rune('a'+i)), true, 1)
		require.NoError(t, f.handler.Handle(context.Background(), trg))
	}

	require.Len(t, f.notifier.awards, 1)
	assert.Equal(t, "First Words", f.notifier.awards[0].Title)
}

func TestOnTrigger_InvalidTriggerRejected(t *testing.T) {
	f := newPipelineFixture(t)

	trg := trigger(shared.TriggerWordReview, "", true, 1)
	err := f.handler.Handle(context.Background(), trg)
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestOnTrigger_UnknownKindRejected(t *testing.T) {
	f := newPipelineFixture(t)

	trg := trigger("made-up-kind", "t-1", true, 1)
	err := f.handler.Handle(context.Background(), trg)
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestOnTrigger_UnknownItemAcknowledged(t *testing.T) {
	f := newPipelineFixture(t)

	trg := trigger(shared.TriggerWordReview, "t-1", true, 1)
	trg.AuxID = 9999
	require.NoError(t, f.handler.Handle(context.Background(), trg))

	// Nothing applied, nothing notified.
	assert.Empty(t, f.notifier.streaks)
	_, err := f.stats.Get(context.Background(), 1)
	assert.Error(t, err)
}

func TestOnTrigger_RedeliveryAppliesOnce(t *testing.T) {
	f := newPipelineFixture(t)
	trg := trigger(shared.TriggerWordReview, "t-1", true, 1)

	require.NoError(t, f.handler.Handle(context.Background(), trg))
	require.NoError(t, f.handler.Handle(context.Background(), trg))

	st, err := f.stats.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 10, st.TotalPoints)
	assert.Len(t, f.notifier.streaks, 1)
}

type flakyActivityStore struct {
	*memory.ActivityStore
	upsertFailures int
}

func (s *flakyActivityStore) Upsert(ctx context.Context, d *streak.DailyActivity) error {
	if s.upsertFailures > 0 {
		s.upsertFailures--
		return shared.ErrTransientStorage
	}
	return s.ActivityStore.Upsert(ctx, d)
}

func TestOnTrigger_RedeliveryFinishesStreakAfterTransientFailure(t *testing.T) {
	cal := timeutil.NewCalendar(time.UTC)
	statStore := memory.NewStatStore()
	itemStore := memory.NewProgressStore()
	activityStore := &flakyActivityStore{ActivityStore: memory.NewActivityStore(), upsertFailures: 1}
	awardStore := memory.NewAchievementStore()
	notifier := &recordingNotifier{}

	refs := memory.NewRefTable()
	refs.Add(progress.KindWord, 7)
	cat := memory.NewCatalogueStore(achievement.CatalogueEntry{
		ID: 1, Title: "First Words",
		Rule: achievement.Rule{Counter: achievement.CounterWordsLearned, Threshold: 1},
	})

	applyEvent := command.NewApplyEventHandler(
		statStore, itemStore, refs, memory.NewTokenStore(),
		srs.NewMapper(nil), progress.DefaultPointsTable(), cal, nil,
	)
	recordActivity := command.NewRecordActivityHandler(
		activityStore, statStore, streak.DefaultRewardTable(), cal,
		command.RecordActivityConfig{}, nil,
	)
	awardFlow := saga.NewAwardFlow(cat, awardStore, statStore, notifier, nil, nil)
	handler := eventhandler.NewOnTriggerHandler(applyEvent, recordActivity, awardFlow, notifier, nil, nil)

	trg := trigger(shared.TriggerWordReview, "t-1", true, 1)

	// The aggregate apply lands and marks the token, then the daily row
	// write fails.
	require.Error(t, handler.Handle(context.Background(), trg))

	// The redelivery sees a marked token but must still finish the
	// streak day and the award evaluation.
	require.NoError(t, handler.Handle(context.Background(), trg))

	st, err := statStore.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 10, st.TotalPoints)
	assert.Equal(t, 1, st.StreakDays)
	require.Len(t, notifier.streaks, 1)
	assert.Equal(t, 1, notifier.streaks[0].StreakDays)
}

func TestOnTrigger_AudioTriggerBumpsAudioCounter(t *testing.T) {
	f := newPipelineFixture(t)

	trg := trigger(shared.TriggerWordAudio, "t-1", true, 1)
	require.NoError(t, f.handler.Handle(context.Background(), trg))

	st, err := f.stats.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, st.AudioExercisesPassed)
}

func TestOnTrigger_CheckAchievementsOnlyEvaluates(t *testing.T) {
	f := newPipelineFixture(t)

	// Seed a user who already qualifies.
	require.NoError(t, f.handler.Handle(context.Background(), trigger(shared.TriggerWordReview, "w1", true, 1)))
	beforeStreaks := len(f.notifier.streaks)

	trg := shared.Trigger{
		Kind:       shared.TriggerCheckAchievements,
		UserID:     1,
		DedupToken: "chk-1",
		OccurredAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.handler.Handle(context.Background(), trg))

	// Evaluation alone never marks activity.
	assert.Len(t, f.notifier.streaks, beforeStreaks)
	st, err := f.stats.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, st.StreakDays)
}

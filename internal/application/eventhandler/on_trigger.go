// Package eventhandler contains the handlers invoked by the
// dispatcher for each dequeued trigger.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kotoba-hub/progress-engine/internal/application/command"
	"github.com/kotoba-hub/progress-engine/internal/application/saga"
	"github.com/kotoba-hub/progress-engine/internal/domain/notification"
	"github.com/kotoba-hub/progress-engine/internal/domain/progress"
	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON TRIGGER HANDLER
// The full evaluation pipeline for one dequeued trigger:
// Validate → Normalize → Apply Event → Record Activity → Notify Streak →
// Evaluate Achievements
// Validation failures and unknown catalogue references are terminal;
// storage failures bubble up so the dispatcher can retry the job.
// ══════════════════════════════════════════════════════════════════════════════

// OnTriggerHandler processes one trigger end to end.
type OnTriggerHandler struct {
	applyEvent     *command.ApplyEventHandler
	recordActivity *command.RecordActivityHandler
	awardFlow      *saga.AwardFlow
	notifier       notification.Notifier
	bus            shared.EventBus
	validate       *validator.Validate
	logger         *slog.Logger
}

// NewOnTriggerHandler creates a new OnTriggerHandler.
func NewOnTriggerHandler(
	applyEvent *command.ApplyEventHandler,
	recordActivity *command.RecordActivityHandler,
	awardFlow *saga.AwardFlow,
	notifier notification.Notifier,
	bus shared.EventBus,
	logger *slog.Logger,
) *OnTriggerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnTriggerHandler{
		applyEvent:     applyEvent,
		recordActivity: recordActivity,
		awardFlow:      awardFlow,
		notifier:       notifier,
		bus:            bus,
		validate:       validator.New(),
		logger:         logger,
	}
}

// Handle runs the pipeline. A nil return acknowledges the trigger;
// malformed or unresolvable triggers are acknowledged after logging
// so the dispatcher does not retry what can never succeed.
func (h *OnTriggerHandler) Handle(ctx context.Context, trg shared.Trigger) error {
	if err := h.validate.Struct(trg); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if !trg.Kind.Known() {
		return fmt.Errorf("%w: unknown trigger kind %q", shared.ErrValidation, trg.Kind)
	}
	if trg.OccurredAt.IsZero() {
		trg.OccurredAt = time.Now().UTC()
	}

	switch trg.Kind {
	case shared.TriggerCheckAchievements, shared.TriggerStreakCheck:
		_, err := h.awardFlow.Execute(ctx, saga.AwardFlowInput{UserID: trg.UserID, Now: trg.OccurredAt})
		return err
	}

	ev, err := normalize(trg)
	if err != nil {
		return err
	}

	applied, err := h.applyEvent.Handle(ctx, command.ApplyEventCommand{Event: ev})
	if err != nil {
		return err
	}
	// Dropped is terminal. A duplicate is not: a marked token only
	// proves the aggregate apply finished, and the steps after it may
	// have failed on the delivery that marked it, so a duplicate falls
	// through to the re-runnable steps below.
	if applied.Dropped {
		return nil
	}
	if h.bus != nil && applied.MasteredNow {
		_ = h.bus.Publish(shared.ItemMasteredEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventItemMastered, trg.UserID),
			UserID:    trg.UserID,
			ItemID:    ev.ItemID,
			ItemKind:  string(ev.ItemKind),
		})
	}

	streakRes, err := h.recordActivity.Handle(ctx, command.RecordActivityCommand{
		UserID:          trg.UserID,
		OccurredAt:      trg.OccurredAt,
		LessonCompleted: trg.Kind == shared.TriggerLessonCompleted,
	})
	if err != nil {
		return err
	}

	if h.bus != nil && streakRes.Extended {
		eventType := shared.EventStreakExtended
		if streakRes.IsNewRecord {
			eventType = shared.EventStreakNewRecord
		}
		_ = h.bus.Publish(shared.StreakUpdatedEvent{
			BaseEvent:   shared.NewBaseEvent(eventType, trg.UserID),
			UserID:      trg.UserID,
			StreakDays:  streakRes.StreakDays,
			IsNewRecord: streakRes.IsNewRecord,
		})
	}

	if h.notifier != nil && streakRes.Extended {
		notice := notification.StreakNotice{
			UserID:      trg.UserID,
			StreakDays:  streakRes.StreakDays,
			IsNewRecord: streakRes.IsNewRecord,
		}
		if err := h.notifier.NotifyStreak(ctx, notice); err != nil {
			h.logger.Error("streak notification failed",
				slog.Int64("user_id", trg.UserID),
				slog.String("error", err.Error()))
		}
	}

	_, err = h.awardFlow.Execute(ctx, saga.AwardFlowInput{UserID: trg.UserID, Now: trg.OccurredAt})
	return err
}

// normalize maps a trigger onto the progress event it implies.
func normalize(trg shared.Trigger) (progress.ProgressEvent, error) {
	var kind progress.ItemKind
	var audio bool
	correct := trg.Correct

	switch trg.Kind {
	case shared.TriggerLessonCompleted:
		kind = progress.KindLesson
		correct = true
	case shared.TriggerWordReview:
		kind = progress.KindWord
	case shared.TriggerKanaRecognition:
		kind = progress.KindKana
	case shared.TriggerWordAudio:
		// An audio trigger is only produced on success.
		kind = progress.KindWord
		correct = true
		audio = true
	case shared.TriggerKanjiReview:
		kind = progress.KindKanji
	case shared.TriggerGrammarReview:
		kind = progress.KindGrammar
	default:
		return progress.ProgressEvent{}, fmt.Errorf("%w: trigger kind %q carries no progress", shared.ErrValidation, trg.Kind)
	}

	return progress.ProgressEvent{
		UserID:     trg.UserID,
		ItemKind:   kind,
		ItemID:     trg.AuxID,
		Outcome:    progress.Outcome{Correct: correct},
		Audio:      audio,
		DedupToken: trg.DedupToken,
		OccurredAt: trg.OccurredAt,
	}, nil
}

// Package scheduler runs the engine's periodic maintenance jobs on a
// gocron scheduler: the streak-at-risk reminder sweep and the nightly
// achievement re-evaluation.
package scheduler

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/kotoba-hub/progress-engine/internal/domain/notification"
	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
	"github.com/kotoba-hub/progress-engine/internal/domain/streak"
	"github.com/kotoba-hub/progress-engine/pkg/timeutil"
)

// TriggerEnqueuer feeds triggers back into the dispatcher. Satisfied
// by messaging.Dispatcher.
type TriggerEnqueuer interface {
	Enqueue(ctx context.Context, trg shared.Trigger) error
}

// Config controls the job cadence.
type Config struct {
	// AtRiskInterval is how often the streak-at-risk sweep runs.
	AtRiskInterval time.Duration

	// ReevalHour is the canonical-timezone hour of the nightly
	// achievement re-evaluation sweep.
	ReevalHour int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		AtRiskInterval: time.Hour,
		ReevalHour:     3,
	}
}

// Scheduler wires the maintenance jobs onto gocron.
type Scheduler struct {
	scheduler *gocron.Scheduler
	activity  streak.Repository
	notifier  notification.Notifier
	enqueuer  TriggerEnqueuer
	cal       timeutil.Calendar
	cfg       Config
	logger    *slog.Logger
}

// New creates a scheduler running in the canonical timezone so the
// day-boundary jobs fire relative to the same days the engine counts.
func New(
	activity streak.Repository,
	notifier notification.Notifier,
	enqueuer TriggerEnqueuer,
	cal timeutil.Calendar,
	cfg Config,
	logger *slog.Logger,
) *Scheduler {
	if cfg.AtRiskInterval <= 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(cal.Location()),
		activity:  activity,
		notifier:  notifier,
		enqueuer:  enqueuer,
		cal:       cal,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start registers and launches the jobs. Non-blocking.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(s.cfg.AtRiskInterval).Do(s.sweepStreaksAtRisk); err != nil {
		return err
	}
	if _, err := s.scheduler.Every(1).Day().At(formatHour(s.cfg.ReevalHour)).Do(s.reevaluateAchievements); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	s.logger.Info("scheduler started",
		slog.Duration("at_risk_interval", s.cfg.AtRiskInterval),
		slog.Int("reeval_hour", s.cfg.ReevalHour))
	return nil
}

// Stop halts the jobs and waits for running ones.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func formatHour(h int) string {
	if h < 0 || h > 23 {
		h = 3
	}
	return time.Date(0, 1, 1, h, 0, 0, 0, time.UTC).Format("15:04")
}

// sweepStreaksAtRisk reminds users who kept their streak alive
// yesterday but have not shown up today.
func (s *Scheduler) sweepStreaksAtRisk() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	now := time.Now()
	today := s.cal.DayOf(now)
	yesterday := s.cal.AddDays(today, -1)

	users, err := s.activity.ListActiveOn(ctx, yesterday)
	if err != nil {
		s.logger.Error("at-risk sweep failed", slog.String("error", err.Error()))
		return
	}

	var notified int
	for _, userID := range users {
		row, err := s.activity.Get(ctx, userID, today)
		if err == nil && row.StreakPreserving() {
			continue
		}
		if err != nil && !shared.IsNotFound(err) {
			s.logger.Error("at-risk sweep read failed",
				slog.Int64("user_id", userID),
				slog.String("error", err.Error()))
			continue
		}

		streakDays := s.streakUpTo(ctx, userID, yesterday)
		notice := notification.StreakAtRiskNotice{
			UserID:     userID,
			StreakDays: streakDays,
			ExpiresAt:  s.cal.EndOfDay(today),
		}
		if err := s.notifier.NotifyStreakAtRisk(ctx, notice); err != nil {
			s.logger.Error("at-risk notification failed",
				slog.Int64("user_id", userID),
				slog.String("error", err.Error()))
			continue
		}
		notified++
	}
	s.logger.Info("at-risk sweep complete",
		slog.Int("candidates", len(users)),
		slog.Int("notified", notified))
}

func (s *Scheduler) streakUpTo(ctx context.Context, userID int64, day time.Time) int {
	rows, err := s.activity.Range(ctx, userID, s.cal.AddDays(day, -400), day)
	if err != nil {
		return 0
	}
	return streak.ComputeLength(rows, day, s.cal)
}

// reevaluateAchievements enqueues a catalogue re-check for every user
// active yesterday, picking up entries added after their last event.
func (s *Scheduler) reevaluateAchievements() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	yesterday := s.cal.Yesterday(time.Now())
	users, err := s.activity.ListActiveOn(ctx, yesterday)
	if err != nil {
		s.logger.Error("reeval sweep failed", slog.String("error", err.Error()))
		return
	}

	for _, userID := range users {
		trg := shared.Trigger{
			Kind:       shared.TriggerCheckAchievements,
			UserID:     userID,
			DedupToken: reevalToken(userID, yesterday),
			OccurredAt: time.Now().UTC(),
		}
		if err := s.enqueuer.Enqueue(ctx, trg); err != nil {
			s.logger.Error("reeval enqueue failed",
				slog.Int64("user_id", userID),
				slog.String("error", err.Error()))
		}
	}
	s.logger.Info("reeval sweep enqueued", slog.Int("users", len(users)))
}

// reevalToken is deterministic per user and day so a crashed sweep can
// rerun without double-processing.
func reevalToken(userID int64, day time.Time) string {
	return "reeval-" + day.Format(timeutil.FormatDay) + "-" + strconv.FormatInt(userID, 10)
}

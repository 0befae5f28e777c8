// Package notification defines the outbound notices the engine emits
// and the channel they leave through. Delivery is fire-and-forget from
// the pipeline's point of view: a failed notice is logged and counted,
// never allowed to fail the learning-progress write that produced it.
package notification

import "time"

// StreakNotice is emitted when a user's streak is extended.
type StreakNotice struct {
	UserID      int64 `json:"user_id"`
	StreakDays  int   `json:"streak_days"`
	IsNewRecord bool  `json:"is_new_record"`
}

// StreakAtRiskNotice is emitted by the maintenance job for users whose
// streak ends today unless they complete a lesson.
type StreakAtRiskNotice struct {
	UserID     int64     `json:"user_id"`
	StreakDays int       `json:"streak_days"`
	ExpiresAt  time.Time `json:"expires_at"`
}

package shared

import (
	"strconv"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven side of the engine.
// Each event represents something significant that happened while
// evaluating a user's progression.
const (
	// Progress events
	EventItemUpdated   EventType = "progress.item_updated"
	EventItemMastered  EventType = "progress.item_mastered"
	EventPointsAwarded EventType = "progress.points_awarded"

	// Streak events
	EventStreakExtended  EventType = "streak.extended"
	EventStreakBroken    EventType = "streak.broken"
	EventStreakFrozen    EventType = "streak.frozen"
	EventStreakNewRecord EventType = "streak.new_record"

	// Achievement events
	EventAchievementAwarded EventType = "achievement.awarded"

	// Notification events
	EventNotificationSent   EventType = "notification.sent"
	EventNotificationFailed EventType = "notification.failed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// EventHandler consumes a published event.
type EventHandler func(event Event) error

// EventBus fans published events out to subscribers. Publication is
// fire-and-forget; the engine's correctness never depends on a
// subscriber seeing an event.
type EventBus interface {
	Publish(event Event) error
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event keyed by user ID.
func NewBaseEvent(eventType EventType, userID int64) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: strconv.FormatInt(userID, 10),
	}
}

// ItemMasteredEvent is emitted the first time an item's stage crosses
// into mastered.
type ItemMasteredEvent struct {
	BaseEvent
	UserID   int64  `json:"user_id"`
	ItemID   int64  `json:"item_id"`
	ItemKind string `json:"item_kind"`
}

// Payload implements Event interface.
func (e ItemMasteredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"item_id":   e.ItemID,
		"item_kind": e.ItemKind,
	}
}

// AchievementAwardedEvent is emitted once per newly-awarded achievement.
type AchievementAwardedEvent struct {
	BaseEvent
	UserID        int64     `json:"user_id"`
	AchievementID int64     `json:"achievement_id"`
	Title         string    `json:"title"`
	Points        int       `json:"points"`
	Category      string    `json:"category"`
	EarnedAt      time.Time `json:"earned_at"`
}

// Payload implements Event interface.
func (e AchievementAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"achievement_id": e.AchievementID,
		"title":          e.Title,
		"points":         e.Points,
		"category":       e.Category,
		"earned_at":      e.EarnedAt,
	}
}

// StreakUpdatedEvent is emitted when a user's streak changes.
type StreakUpdatedEvent struct {
	BaseEvent
	UserID      int64 `json:"user_id"`
	StreakDays  int   `json:"streak_days"`
	IsNewRecord bool  `json:"is_new_record"`
}

// Payload implements Event interface.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID,
		"streak_days":   e.StreakDays,
		"is_new_record": e.IsNewRecord,
	}
}

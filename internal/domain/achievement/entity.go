package achievement

import "time"

// UserAchievement is the per-user, per-achievement award record. Once
// IsAchieved flips to true the row is frozen: never re-awarded, never
// reset. The evaluator is purely additive.
type UserAchievement struct {
	UserID        int64
	AchievementID int64
	Progress      int
	IsAchieved    bool
	AchievedAt    time.Time
	Metadata      map[string]interface{}
}

// NewAward creates an achieved record stamped at the processing time.
func NewAward(userID int64, entry CatalogueEntry, at time.Time) *UserAchievement {
	return &UserAchievement{
		UserID:        userID,
		AchievementID: entry.ID,
		Progress:      100,
		IsAchieved:    true,
		AchievedAt:    at,
		Metadata: map[string]interface{}{
			"counter":   string(entry.Rule.Counter),
			"threshold": entry.Rule.Threshold,
		},
	}
}

// Award is the outbound notification payload for one newly-awarded
// achievement, consumed by the external real-time notifier.
type Award struct {
	UserID        int64     `json:"user_id"`
	AchievementID int64     `json:"achievement_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Icon          string    `json:"icon"`
	Points        int       `json:"points"`
	Category      Category  `json:"category"`
	EarnedAt      time.Time `json:"earned_at"`
}

// AwardFor builds the outbound payload for an entry awarded at the
// given time.
func AwardFor(userID int64, entry CatalogueEntry, at time.Time) Award {
	return Award{
		UserID:        userID,
		AchievementID: entry.ID,
		Title:         entry.Title,
		Description:   entry.Description,
		Icon:          entry.Icon,
		Points:        entry.Points,
		Category:      entry.Category,
		EarnedAt:      at,
	}
}

package shared

import "time"

// TriggerKind identifies what kind of evaluation a trigger requests.
type TriggerKind string

const (
	// TriggerCheckAchievements re-evaluates the achievement catalogue
	// for a user without applying any new progress.
	TriggerCheckAchievements TriggerKind = "check-achievements-for-user"

	// TriggerLessonCompleted records a completed lesson.
	TriggerLessonCompleted TriggerKind = "lesson-completed"

	// TriggerWordReview records a word review attempt; AuxID is the word id.
	TriggerWordReview TriggerKind = "word-review"

	// TriggerKanaRecognition records a kana recognition attempt; AuxID is the kana id.
	TriggerKanaRecognition TriggerKind = "kana-recognition"

	// TriggerWordAudio records a passed word audio exercise; AuxID is the word id.
	TriggerWordAudio TriggerKind = "word-audio"

	// TriggerKanjiReview records a kanji review attempt; AuxID is the kanji id.
	TriggerKanjiReview TriggerKind = "kanji-review"

	// TriggerGrammarReview records a grammar point review attempt; AuxID is the grammar id.
	TriggerGrammarReview TriggerKind = "grammar-review"

	// TriggerStreakCheck re-evaluates streak-category achievements
	// (e.g. the 7-day streak reward).
	TriggerStreakCheck TriggerKind = "streak-7-days"
)

// Known reports whether the trigger kind is one the engine understands.
func (k TriggerKind) Known() bool {
	switch k {
	case TriggerCheckAchievements, TriggerLessonCompleted, TriggerWordReview,
		TriggerKanaRecognition, TriggerWordAudio, TriggerKanjiReview,
		TriggerGrammarReview, TriggerStreakCheck:
		return true
	}
	return false
}

// Trigger is the typed message producers enqueue to request evaluation
// work for a user. Delivery is at-least-once; DedupToken lets the
// aggregate updater reject redelivered progress without double-counting.
type Trigger struct {
	// Kind selects the evaluation path.
	Kind TriggerKind `json:"kind" validate:"required"`

	// UserID is the already-authenticated user the trigger concerns.
	UserID int64 `json:"user_id" validate:"required,gt=0"`

	// AuxID optionally references the study item involved (word, kana,
	// kanji, grammar or lesson id depending on Kind).
	AuxID int64 `json:"aux_id,omitempty" validate:"gte=0"`

	// Correct reports the outcome of a review attempt. Ignored for
	// kinds that carry no attempt outcome.
	Correct bool `json:"correct,omitempty"`

	// DedupToken is the producer-assigned deduplication token.
	DedupToken string `json:"dedup_token" validate:"required"`

	// OccurredAt is the producer-side event timestamp. Day-boundary
	// logic always normalizes it into the canonical timezone; a zero
	// value means "now" on the evaluator's clock.
	OccurredAt time.Time `json:"occurred_at,omitempty"`
}

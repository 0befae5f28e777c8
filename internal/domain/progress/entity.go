// Package progress contains the per-item learning progress model: the
// canonical ProgressEvent that reaches the aggregate updater and the
// ItemProgress record it maintains per user and study item.
package progress

import (
	"time"

	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
	"github.com/kotoba-hub/progress-engine/internal/domain/srs"
)

// ItemKind tags the polymorphic study-item variants. Kind-specific
// behavior (points, mastery counters) is keyed off this tag rather than
// near-duplicate entity types per kind.
type ItemKind string

const (
	KindKana    ItemKind = "kana"
	KindWord    ItemKind = "word"
	KindKanji   ItemKind = "kanji"
	KindGrammar ItemKind = "grammar"
	KindLesson  ItemKind = "lesson"
	KindModule  ItemKind = "module"
)

// Valid reports whether the kind is one of the known item kinds.
func (k ItemKind) Valid() bool {
	switch k {
	case KindKana, KindWord, KindKanji, KindGrammar, KindLesson, KindModule:
		return true
	}
	return false
}

// Outcome carries the raw result of one learning attempt.
type Outcome struct {
	// Correct reports whether the attempt succeeded.
	Correct bool

	// PointDelta is an extra point contribution from the producer
	// (e.g. an audio exercise bonus), added on top of the configured
	// points table.
	PointDelta int
}

// ProgressEvent is the canonical, normalized learning event. Event
// intake produces exactly one of these per trigger; everything
// downstream (SRS transition, counters, points, streak, achievements)
// is derived from it.
type ProgressEvent struct {
	UserID   int64
	ItemKind ItemKind
	ItemID   int64
	Outcome  Outcome

	// Audio marks events produced by audio exercises; they feed the
	// audio-pass counter on top of the regular word progress.
	Audio bool

	DedupToken string
	OccurredAt time.Time
}

// Validate checks the structural invariants of the event.
func (e ProgressEvent) Validate() error {
	if e.UserID <= 0 {
		return shared.ErrInvalidEventUserID
	}
	if !e.ItemKind.Valid() {
		return shared.ErrUnknownItemKind
	}
	if e.ItemID <= 0 {
		return shared.NewDomainError("progress", "Validate", shared.ErrInvalidInput, "item id must be positive")
	}
	if e.DedupToken == "" {
		return shared.ErrMissingDedupToken
	}
	return nil
}

// ItemProgress is the per-user, per-item progress record. One row per
// (user, item, kind); created on first interaction, never deleted
// except by cascade.
type ItemProgress struct {
	UserID            int64
	ItemID            int64
	Kind              ItemKind
	Progress          int // 0-100, derived - see RecomputeProgress
	CorrectAttempts   int
	IncorrectAttempts int
	Stage             srs.Stage
	NextReviewAt      time.Time

	// MasteredAt records the first crossing into mastered. Zero until
	// then; never cleared on demotion, which is what makes the
	// mastery counters count each item at most once. It is stamped with
	// the crossing event's timestamp, so comparing it against an
	// event's OccurredAt identifies whether that event was the
	// crossing.
	MasteredAt time.Time

	// LastToken is the dedup token of the most recent event applied to
	// this record, persisted with the row. A redelivery that finds its
	// own token here skips the transition instead of re-running it.
	LastToken string

	UpdatedAt time.Time
}

// NewItemProgress creates a progress record for a first interaction.
func NewItemProgress(userID, itemID int64, kind ItemKind) *ItemProgress {
	return &ItemProgress{
		UserID: userID,
		ItemID: itemID,
		Kind:   kind,
		Stage:  srs.StageNew,
	}
}

// stageFloors are the minimum progress values per stage. They guarantee
// that stage dominates attempt ratio: a record at a higher stage never
// reports lower progress than any record at a lower stage, regardless
// of how their ratios compare.
var stageFloors = map[srs.Stage]int{
	srs.StageNew:      0,
	srs.StageLearning: 20,
	srs.StageReview:   40,
	srs.StageReview2:  55,
	srs.StageReview3:  70,
	srs.StageMastered: 100,
}

// stageCeils cap each stage one below the next stage's floor.
var stageCeils = map[srs.Stage]int{
	srs.StageNew:      19,
	srs.StageLearning: 39,
	srs.StageReview:   54,
	srs.StageReview2:  69,
	srs.StageReview3:  99,
	srs.StageMastered: 100,
}

// RecomputeProgress rederives the bounded 0-100 progress projection
// from the current stage and attempt ratio. Progress is never stored
// ahead of its inputs; callers recompute it after every update.
func (p *ItemProgress) RecomputeProgress() {
	if p.Stage == srs.StageMastered {
		p.Progress = 100
		return
	}

	floor, ok := stageFloors[p.Stage]
	if !ok {
		// Unknown stage fails soft the same way the mapper does.
		floor = 0
	}
	ceil, ok := stageCeils[p.Stage]
	if !ok {
		ceil = 19
	}

	total := p.CorrectAttempts + p.IncorrectAttempts
	if total == 0 {
		p.Progress = floor
		return
	}

	ratio := float64(p.CorrectAttempts) / float64(total)
	p.Progress = floor + int(ratio*float64(ceil-floor))
}

// RecordAttempt applies one attempt outcome: bumps the attempt
// counters, advances or demotes the stage through the mapper,
// recomputes progress and reschedules the next review.
// Returns true when this attempt crossed the item into mastered for
// the first time.
func (p *ItemProgress) RecordAttempt(mapper *srs.Mapper, correct bool, at time.Time) bool {
	neverMastered := p.MasteredAt.IsZero()

	if correct {
		p.CorrectAttempts++
	} else {
		p.IncorrectAttempts++
	}

	p.Stage = mapper.NextStage(p.Stage, correct)
	p.RecomputeProgress()
	p.NextReviewAt = at.Add(mapper.ReviewInterval(p.Stage))
	p.UpdatedAt = at

	if neverMastered && p.Stage == srs.StageMastered {
		p.MasteredAt = at
		return true
	}
	return false
}

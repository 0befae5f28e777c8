// Package srs implements the spaced-repetition stage model for study
// items. Stages form a fixed ladder; a correct attempt climbs one rung,
// an incorrect attempt drops exactly one. The collapsed projection is
// what UI-facing aggregates report.
package srs

import (
	"log/slog"
	"time"
)

// Stage is the spaced-repetition stage of one item progress record.
type Stage string

const (
	StageNew      Stage = "new"
	StageLearning Stage = "learning"
	StageReview   Stage = "review"
	StageReview2  Stage = "review_2"
	StageReview3  Stage = "review_3"
	StageMastered Stage = "mastered"
)

// ladder is the forward order of stages. Demotion walks it backward.
var ladder = []Stage{
	StageNew,
	StageLearning,
	StageReview,
	StageReview2,
	StageReview3,
	StageMastered,
}

// reviewIntervals maps each stage to the delay before the next
// scheduled review of the item.
var reviewIntervals = map[Stage]time.Duration{
	StageNew:      0,
	StageLearning: 24 * time.Hour,
	StageReview:   3 * 24 * time.Hour,
	StageReview2:  7 * 24 * time.Hour,
	StageReview3:  14 * 24 * time.Hour,
	StageMastered: 30 * 24 * time.Hour,
}

// ProgressStage is the collapsed, UI-facing projection of a Stage.
// The three review rungs collapse into a single bucket.
type ProgressStage string

const (
	ProgressNew      ProgressStage = "new"
	ProgressLearning ProgressStage = "learning"
	ProgressReview   ProgressStage = "review"
	ProgressMastered ProgressStage = "mastered"
)

// index returns the ladder position of s, or -1 for unknown values.
func index(s Stage) int {
	for i, st := range ladder {
		if st == s {
			return i
		}
	}
	return -1
}

// Known reports whether s is a stage this version understands.
func (s Stage) Known() bool {
	return index(s) >= 0
}

// Mapper computes stage transitions and projections. Unknown stage
// values (e.g. written by a newer deployment) fail soft: they are
// treated as StageNew and logged, never rejected.
type Mapper struct {
	logger *slog.Logger
}

// NewMapper creates a stage mapper.
func NewMapper(logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{logger: logger}
}

// NextStage returns the stage after one attempt. A correct outcome
// advances one rung, saturating at mastered. An incorrect outcome
// demotes exactly one rung, saturating at new. Each event is evaluated
// independently, so consecutive failures within one call cannot skip
// rungs.
func (m *Mapper) NextStage(current Stage, correct bool) Stage {
	i := index(current)
	if i < 0 {
		m.logger.Warn("unknown srs stage, treating as new",
			"stage", string(current),
		)
		i = 0
	}

	if correct {
		if i < len(ladder)-1 {
			i++
		}
	} else {
		if i > 0 {
			i--
		}
	}
	return ladder[i]
}

// ToProgressStage collapses a stage for UI-facing aggregates. The three
// review rungs map to ProgressReview; unknown values map to ProgressNew
// with a warning.
func (m *Mapper) ToProgressStage(s Stage) ProgressStage {
	switch s {
	case StageNew:
		return ProgressNew
	case StageLearning:
		return ProgressLearning
	case StageReview, StageReview2, StageReview3:
		return ProgressReview
	case StageMastered:
		return ProgressMastered
	default:
		m.logger.Warn("unknown srs stage in projection, mapping to new",
			"stage", string(s),
		)
		return ProgressNew
	}
}

// ReviewInterval returns the delay until the item should next be
// reviewed from the given stage. Unknown stages review immediately.
func (m *Mapper) ReviewInterval(s Stage) time.Duration {
	if d, ok := reviewIntervals[s]; ok {
		return d
	}
	m.logger.Warn("unknown srs stage for review interval",
		"stage", string(s),
	)
	return 0
}

// Stages returns the forward order of all known stages.
func Stages() []Stage {
	out := make([]Stage, len(ladder))
	copy(out, ladder)
	return out
}

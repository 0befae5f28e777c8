package srs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextStage_CorrectClimbsToMasteredInFiveSteps(t *testing.T) {
	m := NewMapper(nil)

	stage := StageNew
	steps := 0
	for stage != StageMastered {
		stage = m.NextStage(stage, true)
		steps++
		if steps > 10 {
			t.Fatal("stage ladder did not converge")
		}
	}
	assert.Equal(t, 5, steps)
}

func TestNextStage_SaturatesAtMastered(t *testing.T) {
	m := NewMapper(nil)
	assert.Equal(t, StageMastered, m.NextStage(StageMastered, true))
}

func TestNextStage_DemotesExactlyOneStage(t *testing.T) {
	m := NewMapper(nil)

	cases := map[Stage]Stage{
		StageNew:      StageNew,
		StageLearning: StageNew,
		StageReview:   StageLearning,
		StageReview2:  StageReview,
		StageReview3:  StageReview2,
		StageMastered: StageReview3,
	}

	for from, want := range cases {
		assert.Equal(t, want, m.NextStage(from, false), "demotion from %s", from)
	}
}

func TestNextStage_UnknownStageTreatedAsNew(t *testing.T) {
	m := NewMapper(nil)

	assert.Equal(t, StageLearning, m.NextStage(Stage("graduated"), true))
	assert.Equal(t, StageNew, m.NextStage(Stage("graduated"), false))
}

func TestToProgressStage_CoversEveryKnownStage(t *testing.T) {
	m := NewMapper(nil)

	want := map[Stage]ProgressStage{
		StageNew:      ProgressNew,
		StageLearning: ProgressLearning,
		StageReview:   ProgressReview,
		StageReview2:  ProgressReview,
		StageReview3:  ProgressReview,
		StageMastered: ProgressMastered,
	}

	for _, s := range Stages() {
		assert.Equal(t, want[s], m.ToProgressStage(s), "projection of %s", s)
	}
}

func TestToProgressStage_UnknownFailsSoftToNew(t *testing.T) {
	m := NewMapper(nil)
	assert.Equal(t, ProgressNew, m.ToProgressStage(Stage("burned")))
}

func TestReviewInterval_GrowsWithStage(t *testing.T) {
	m := NewMapper(nil)

	prev := m.ReviewInterval(StageNew)
	for _, s := range Stages()[1:] {
		cur := m.ReviewInterval(s)
		assert.Greater(t, int64(cur), int64(prev), "interval at %s", s)
		prev = cur
	}
}

// Package achievement contains the read-mostly achievement catalogue
// model and the per-user award records. Catalogue rules are pure
// threshold predicates over the user's aggregate counters; category-
// specific achievements (streak, audio, kana recognition) are the same
// predicate contract parameterized by which counter they read, not
// separate code paths.
package achievement

import (
	"fmt"

	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
	"github.com/kotoba-hub/progress-engine/internal/domain/stats"
)

// Category groups catalogue entries for presentation and filtering.
type Category string

const (
	CategoryGeneral Category = "general"
	CategoryStreak  Category = "streak"
	CategoryAudio   Category = "audio"
	CategoryKana    Category = "kana"
	CategoryPoints  Category = "points"
)

// CounterKind names an aggregate counter a rule may read.
type CounterKind string

const (
	CounterWordsLearned     CounterKind = "words_learned"
	CounterKanaMastered     CounterKind = "kana_mastered"
	CounterKanjiMastered    CounterKind = "kanji_mastered"
	CounterGrammarMastered  CounterKind = "grammar_mastered"
	CounterLessonsCompleted CounterKind = "lessons_completed"
	CounterTotalPoints      CounterKind = "total_points"
	CounterDailyPoints      CounterKind = "daily_points"
	CounterStreakDays       CounterKind = "streak_days"
	CounterLongestStreak    CounterKind = "longest_streak"
	CounterAudioPassed      CounterKind = "audio_passed"
	CounterKanaRecognized   CounterKind = "kana_recognized"
)

// Snapshot is the point-in-time view of a user's counters that rules
// evaluate against. Built once per evaluation pass so every rule sees
// the same state.
type Snapshot struct {
	counters map[CounterKind]int
}

// SnapshotFrom builds a snapshot from the user's aggregate.
func SnapshotFrom(s *stats.UserStat) Snapshot {
	return Snapshot{counters: map[CounterKind]int{
		CounterWordsLearned:     s.WordsLearned,
		CounterKanaMastered:     s.KanaMastered,
		CounterKanjiMastered:    s.KanjiMastered,
		CounterGrammarMastered:  s.GrammarMastered,
		CounterLessonsCompleted: s.LessonsCompleted,
		CounterTotalPoints:      s.TotalPoints,
		CounterDailyPoints:      s.DailyPoints,
		CounterStreakDays:       s.StreakDays,
		CounterLongestStreak:    s.LongestStreak,
		CounterAudioPassed:      s.AudioExercisesPassed,
		CounterKanaRecognized:   s.KanaRecognized,
	}}
}

// Counter returns a counter value and whether the snapshot knows it.
func (s Snapshot) Counter(kind CounterKind) (int, bool) {
	v, ok := s.counters[kind]
	return v, ok
}

// Rule is a threshold predicate over one counter. Rules never read
// other users' state and never trigger other achievements; chaining
// would be a separate evaluation job.
type Rule struct {
	Counter   CounterKind
	Threshold int
}

// Satisfied evaluates the rule against a snapshot. A rule referencing
// a counter the snapshot does not know is malformed; the evaluator
// skips it and keeps going.
func (r Rule) Satisfied(snap Snapshot) (bool, error) {
	if r.Threshold <= 0 {
		return false, shared.WrapError("achievement", "Evaluate", shared.ErrCatalogueRule,
			fmt.Sprintf("non-positive threshold %d", r.Threshold), nil)
	}
	v, ok := snap.Counter(r.Counter)
	if !ok {
		return false, shared.WrapError("achievement", "Evaluate", shared.ErrCatalogueRule,
			fmt.Sprintf("unknown counter %q", r.Counter), nil)
	}
	return v >= r.Threshold, nil
}

// CatalogueEntry is one read-only achievement definition.
type CatalogueEntry struct {
	ID          int64
	Title       string
	Description string
	Icon        string
	Points      int
	Category    Category
	Rule        Rule
}

// Builtin returns the stock catalogue. Deployments seed it into the
// catalogue table on startup; operators may extend the table afterwards.
func Builtin() []CatalogueEntry {
	return []CatalogueEntry{
		{ID: 1, Title: "First Steps", Description: "Learn your first word", Icon: "🌱", Points: 10,
			Category: CategoryGeneral, Rule: Rule{Counter: CounterWordsLearned, Threshold: 1}},
		{ID: 2, Title: "Word Collector", Description: "Learn 10 words", Icon: "📚", Points: 25,
			Category: CategoryGeneral, Rule: Rule{Counter: CounterWordsLearned, Threshold: 10}},
		{ID: 3, Title: "Lexicon Builder", Description: "Learn 100 words", Icon: "🏛️", Points: 100,
			Category: CategoryGeneral, Rule: Rule{Counter: CounterWordsLearned, Threshold: 100}},
		{ID: 4, Title: "Kana Apprentice", Description: "Master 10 kana", Icon: "🔤", Points: 25,
			Category: CategoryKana, Rule: Rule{Counter: CounterKanaMastered, Threshold: 10}},
		{ID: 5, Title: "Kana Master", Description: "Master all 46 basic kana", Icon: "🈷️", Points: 100,
			Category: CategoryKana, Rule: Rule{Counter: CounterKanaMastered, Threshold: 46}},
		{ID: 6, Title: "Sharp Eye", Description: "Pass 50 kana recognition drills", Icon: "👁️", Points: 50,
			Category: CategoryKana, Rule: Rule{Counter: CounterKanaRecognized, Threshold: 50}},
		{ID: 7, Title: "Kanji Initiate", Description: "Master 10 kanji", Icon: "🖌️", Points: 50,
			Category: CategoryGeneral, Rule: Rule{Counter: CounterKanjiMastered, Threshold: 10}},
		{ID: 8, Title: "Grammar Scholar", Description: "Master 25 grammar points", Icon: "📖", Points: 75,
			Category: CategoryGeneral, Rule: Rule{Counter: CounterGrammarMastered, Threshold: 25}},
		{ID: 9, Title: "Dedicated Student", Description: "Complete 10 lessons", Icon: "🎓", Points: 50,
			Category: CategoryGeneral, Rule: Rule{Counter: CounterLessonsCompleted, Threshold: 10}},
		{ID: 10, Title: "Week Warrior", Description: "Keep a 7-day streak", Icon: "🔥", Points: 50,
			Category: CategoryStreak, Rule: Rule{Counter: CounterStreakDays, Threshold: 7}},
		{ID: 11, Title: "Monthly Devotion", Description: "Keep a 30-day streak", Icon: "🌕", Points: 200,
			Category: CategoryStreak, Rule: Rule{Counter: CounterStreakDays, Threshold: 30}},
		{ID: 12, Title: "Unbreakable", Description: "Reach a 100-day longest streak", Icon: "💎", Points: 500,
			Category: CategoryStreak, Rule: Rule{Counter: CounterLongestStreak, Threshold: 100}},
		{ID: 13, Title: "Good Listener", Description: "Pass 25 audio exercises", Icon: "🎧", Points: 50,
			Category: CategoryAudio, Rule: Rule{Counter: CounterAudioPassed, Threshold: 25}},
		{ID: 14, Title: "Point Hoarder", Description: "Earn 10000 total points", Icon: "💰", Points: 100,
			Category: CategoryPoints, Rule: Rule{Counter: CounterTotalPoints, Threshold: 10000}},
	}
}

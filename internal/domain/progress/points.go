package progress

// PointsRule gives the point contributions of one attempt on one item
// kind.
type PointsRule struct {
	Correct   int
	Incorrect int
}

// PointsTable keys the points rule by item kind. Passed into the
// aggregate updater at construction; never ambient state.
type PointsTable map[ItemKind]PointsRule

// DefaultPointsTable returns the standard scoring. Lessons pay the
// most since completing one is the streak-qualifying action; reviews
// pay a little even when incorrect so showing up is never worth zero.
func DefaultPointsTable() PointsTable {
	return PointsTable{
		KindKana:    {Correct: 5, Incorrect: 1},
		KindWord:    {Correct: 10, Incorrect: 2},
		KindKanji:   {Correct: 15, Incorrect: 3},
		KindGrammar: {Correct: 15, Incorrect: 3},
		KindLesson:  {Correct: 50, Incorrect: 0},
		KindModule:  {Correct: 100, Incorrect: 0},
	}
}

// PointsFor returns the contribution of one outcome, including any
// producer-supplied delta. Unknown kinds contribute nothing.
func (t PointsTable) PointsFor(kind ItemKind, outcome Outcome) int {
	rule, ok := t[kind]
	if !ok {
		return maxInt(outcome.PointDelta, 0)
	}
	base := rule.Incorrect
	if outcome.Correct {
		base = rule.Correct
	}
	return base + maxInt(outcome.PointDelta, 0)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

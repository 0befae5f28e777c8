package streak

// RewardTable maps streak milestones to the in-app currency paid on
// the day the milestone is reached. Days between milestones pay the
// base reward.
type RewardTable struct {
	Base       int
	Milestones map[int]int
}

// DefaultRewardTable mirrors the product's current payout schedule.
func DefaultRewardTable() RewardTable {
	return RewardTable{
		Base: 5,
		Milestones: map[int]int{
			7:   25,
			30:  100,
			100: 500,
			365: 2000,
		},
	}
}

// RewardFor returns the currency earned for reaching the given streak
// length today.
func (t RewardTable) RewardFor(streakDays int) int {
	if bonus, ok := t.Milestones[streakDays]; ok {
		return bonus
	}
	return t.Base
}

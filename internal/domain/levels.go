package domain

// Level describes one rung of the project progress ladder. Percentage is the
// completion share reported on the job and the basis for the milestone amount
// at that rung.
type Level struct {
	Value      int
	Label      string
	Percentage int
}

// Levels is the canonical progress ladder. Progress moves strictly upward
// through it; milestones and payments key off the same table.
var Levels = []Level{
	{Value: 0, Label: "Not Started", Percentage: 0},
	{Value: 1, Label: "In Progress", Percentage: 25},
	{Value: 2, Label: "Halfway", Percentage: 50},
	{Value: 3, Label: "Almost Done", Percentage: 75},
	{Value: 4, Label: "Submitted", Percentage: 90},
	{Value: 5, Label: "Completed", Percentage: 100},
}

// TerminalLevel is the last rung of the ladder.
func TerminalLevel() int {
	return Levels[len(Levels)-1].Value
}

// LevelByValue returns the ladder entry for a level, false if off the ladder.
func LevelByValue(v int) (Level, bool) {
	for _, l := range Levels {
		if l.Value == v {
			return l, true
		}
	}
	return Level{}, false
}

// PayableLevels returns the rungs that carry a milestone. Level 0 has no
// payable amount and is excluded.
func PayableLevels() []Level {
	return Levels[1:]
}

// MilestoneAmount derives the amount due at a level from the project total.
// The division truncates; totals are INR integers.
func MilestoneAmount(total int64, percentage int) int64 {
	return total * int64(percentage) / 100
}

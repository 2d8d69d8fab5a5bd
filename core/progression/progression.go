// Package progression holds the pure rules of the level curve and streak rewards.
package progression

import "math"

const (
	MinLevel = 1
	MaxLevel = 100

	maxStreakMultiplier = 1.5
	streakBonusPerDay   = 0.05
)

// XPForLevel returns the XP needed to go from level-1 to level.
func XPForLevel(level int) int {
	if level <= MinLevel {
		return 0
	}
	l := float64(level)
	base := math.Floor(50*math.Pow(l, 1.5) + 10*l)

	var mult float64
	switch {
	case level <= 20:
		mult = 0.8
	case level <= 60:
		mult = 1.0
	case level <= 90:
		mult = 1.2
	default:
		mult = 1.5
	}
	return int(math.Floor(base * mult))
}

// TotalXPForLevel returns the cumulative XP at which level is reached.
func TotalXPForLevel(level int) int {
	var total int
	for l := MinLevel + 1; l <= level; l++ {
		total += XPForLevel(l)
	}
	return total
}

// LevelFromXP returns the level reached with totalXP, capped at MaxLevel.
func LevelFromXP(totalXP int) int {
	level := MinLevel
	acc := 0
	for level < MaxLevel {
		next := XPForLevel(level + 1)
		if acc+next > totalXP {
			break
		}
		acc += next
		level++
	}
	return level
}

type LevelInfo struct {
	Level           int     `json:"level"`
	TotalXP         int     `json:"total_xp"`
	XPIntoLevel     int     `json:"xp_into_level"`
	XPForNextLevel  int     `json:"xp_for_next_level"`
	TotalXPForLevel int     `json:"total_xp_for_level"`
	Progress        float64 `json:"progress"` // percent towards the next level
}

func GetLevelInfo(totalXP int) LevelInfo {
	if totalXP < 0 {
		totalXP = 0
	}
	level := LevelFromXP(totalXP)
	start := TotalXPForLevel(level)
	info := LevelInfo{
		Level:           level,
		TotalXP:         totalXP,
		XPIntoLevel:     totalXP - start,
		TotalXPForLevel: start,
	}
	if level >= MaxLevel {
		info.Progress = 100
		return info
	}
	info.XPForNextLevel = XPForLevel(level + 1)
	info.Progress = math.Round(float64(info.XPIntoLevel)/float64(info.XPForNextLevel)*10000) / 100
	return info
}

// StreakMultiplier is the reward multiplier earned by an activity streak of the given length.
func StreakMultiplier(streak int) float64 {
	if streak <= 1 {
		return 1
	}
	m := 1 + streakBonusPerDay*float64(streak)
	if m > maxStreakMultiplier {
		return maxStreakMultiplier
	}
	return math.Round(m*100) / 100
}

// ApplyMultiplier scales amount, rounding down.
func ApplyMultiplier(amount int, mult float64) int {
	return int(math.Floor(float64(amount)*mult + 1e-9))
}

type Milestone struct {
	Days int `json:"days"`
	XP   int `json:"xp"`
	Gold int `json:"gold"`
}

var Milestones = []Milestone{
	{Days: 3, XP: 50, Gold: 10},
	{Days: 7, XP: 150, Gold: 30},
	{Days: 14, XP: 300, Gold: 75},
	{Days: 30, XP: 750, Gold: 200},
	{Days: 60, XP: 1500, Gold: 500},
	{Days: 100, XP: 3000, Gold: 1000},
	{Days: 365, XP: 10000, Gold: 5000},
}

// MilestonesReached returns the milestones crossed when a streak grows from prev to curr.
func MilestonesReached(prev, curr int) []Milestone {
	var res []Milestone
	for _, m := range Milestones {
		if prev < m.Days && curr >= m.Days {
			res = append(res, m)
		}
	}
	return res
}

// NextMilestone returns the first milestone above streak, if any.
func NextMilestone(streak int) (Milestone, bool) {
	for _, m := range Milestones {
		if m.Days > streak {
			return m, true
		}
	}
	return Milestone{}, false
}

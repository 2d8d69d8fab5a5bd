package streak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/edurpg/edurpg/core/progression"
)

func TestAdvance(t *testing.T) {
	day := func(d, h int) time.Time { return time.Date(2024, 3, d, h, 0, 0, 0, time.UTC) }

	tests := []struct {
		name           string
		streak         Streak
		now            time.Time
		wantStatus     Status
		wantCurrent    int
		wantLongest    int
		wantTotal      int
		wantMilestones []progression.Milestone
	}{
		{
			name:        "first activity",
			now:         day(10, 9),
			wantStatus:  StatusStarted,
			wantCurrent: 1, wantLongest: 1, wantTotal: 1,
		},
		{
			name:        "same day",
			streak:      Streak{CurrentStreak: 4, LongestStreak: 6, TotalParticipation: 10, LastActivityAt: day(10, 8)},
			now:         day(10, 23),
			wantStatus:  StatusSameDay,
			wantCurrent: 4, wantLongest: 6, wantTotal: 11,
		},
		{
			name:        "next day",
			streak:      Streak{CurrentStreak: 1, LongestStreak: 1, TotalParticipation: 1, LastActivityAt: day(10, 23)},
			now:         day(11, 1),
			wantStatus:  StatusContinued,
			wantCurrent: 2, wantLongest: 2, wantTotal: 2,
		},
		{
			name:           "reaching a milestone",
			streak:         Streak{CurrentStreak: 6, LongestStreak: 6, TotalParticipation: 6, LastActivityAt: day(10, 12)},
			now:            day(11, 12),
			wantStatus:     StatusContinued,
			wantCurrent:    7, wantLongest: 7, wantTotal: 7,
			wantMilestones: []progression.Milestone{{Days: 7, XP: 150, Gold: 30}},
		},
		{
			name:        "missed a day",
			streak:      Streak{CurrentStreak: 5, LongestStreak: 5, TotalParticipation: 5, LastActivityAt: day(10, 12)},
			now:         day(12, 12),
			wantStatus:  StatusBroken,
			wantCurrent: 1, wantLongest: 5, wantTotal: 6,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Advance(tt.streak, tt.now, time.UTC)
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, tt.streak.CurrentStreak, res.PreviousStreak)
			assert.Equal(t, tt.wantCurrent, res.Streak.CurrentStreak)
			assert.Equal(t, tt.wantLongest, res.Streak.LongestStreak)
			assert.Equal(t, tt.wantTotal, res.Streak.TotalParticipation)
			assert.Equal(t, tt.wantMilestones, res.NewMilestones)
			assert.Equal(t, tt.now, res.Streak.LastActivityAt)
			assert.Equal(t, progression.StreakMultiplier(tt.wantCurrent), res.Multiplier)
			if tt.wantStatus == StatusBroken {
				assert.Equal(t, tt.now, res.Streak.BrokenAt)
			}
		})
	}
}

func TestAdvance_timezone(t *testing.T) {
	kinshasa := time.FixedZone("WAT", 1*60*60)
	last := time.Date(2024, 3, 10, 22, 30, 0, 0, time.UTC) // 23:30 local
	now := time.Date(2024, 3, 10, 23, 30, 0, 0, time.UTC)  // 00:30 local, next day

	s := Streak{CurrentStreak: 2, LongestStreak: 2, TotalParticipation: 2, LastActivityAt: last}
	assert.Equal(t, StatusSameDay, Advance(s, now, time.UTC).Status)
	assert.Equal(t, StatusContinued, Advance(s, now, kinshasa).Status)
}

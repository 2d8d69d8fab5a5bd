package streak_test

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/notification"
	"github.com/edurpg/edurpg/core/streak"
	"github.com/edurpg/edurpg/tests"
)

func TestService_RecordActivity(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	usr := env.Student(t, "hero")
	day := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)

	testutil.SetNow(t, day)
	res, err := env.Svc.Streaks.RecordActivity(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, streak.StatusStarted, res.Status)
	assert.Equal(t, 1, res.Streak.CurrentStreak)

	res, err = env.Svc.Streaks.RecordActivity(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, streak.StatusSameDay, res.Status)
	assert.Equal(t, 2, res.Streak.TotalParticipation)

	testutil.SetNow(t, day.Add(24*time.Hour))
	res, err = env.Svc.Streaks.RecordActivity(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, streak.StatusContinued, res.Status)
	assert.Equal(t, 2, res.Streak.CurrentStreak)
	assert.Equal(t, 1.1, res.Multiplier)

	notifs, err := env.Svc.Notifications.List(ctx, usr.ID, notification.QueryFilter{}, core.Page{})
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, notification.TypeStreak, notifs[0].Type)
	assert.Equal(t, "2 day streak!", notifs[0].Title)

	// a short lost streak is not worth a notification
	testutil.SetNow(t, day.Add(4*24*time.Hour))
	res, err = env.Svc.Streaks.RecordActivity(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, streak.StatusBroken, res.Status)
	assert.Equal(t, 2, res.PreviousStreak)
	assert.Equal(t, 1, res.Streak.CurrentStreak)
	assert.Equal(t, 2, res.Streak.LongestStreak)

	count, err := env.Svc.Notifications.UnreadCount(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestService_Get(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	testutil.SetNow(t, now)

	fresh := env.Student(t, "fresh")
	info, err := env.Svc.Streaks.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, info.Streak.CurrentStreak)
	assert.Equal(t, 1.0, info.Multiplier)
	assert.False(t, info.ActiveToday)
	require.NotNil(t, info.NextMilestone)
	assert.Equal(t, 3, info.NextMilestone.Days)

	active := env.Student(t, "active")
	_, err = env.Repos.Streaks.SaveStreak(ctx, streak.Streak{
		UserID: active.ID, CurrentStreak: 8, LongestStreak: 8, TotalParticipation: 8, LastActivityAt: now.Add(-time.Hour),
	})
	require.NoError(t, err)
	info, err = env.Svc.Streaks.Get(ctx, active.ID)
	require.NoError(t, err)
	assert.True(t, info.ActiveToday)
	assert.Equal(t, 8, info.Streak.CurrentStreak)
	assert.Equal(t, 1.4, info.Multiplier)
	assert.Equal(t, 14, info.NextMilestone.Days)

	lapsed := env.Student(t, "lapsed")
	_, err = env.Repos.Streaks.SaveStreak(ctx, streak.Streak{
		UserID: lapsed.ID, CurrentStreak: 8, LongestStreak: 8, TotalParticipation: 8, LastActivityAt: now.Add(-48 * time.Hour),
	})
	require.NoError(t, err)
	info, err = env.Svc.Streaks.Get(ctx, lapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, info.Streak.CurrentStreak)
	assert.Equal(t, 8, info.Streak.LongestStreak)
	assert.Equal(t, 1.0, info.Multiplier)
}

func TestService_ResetBroken(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	testutil.SetNow(t, now)

	lost := env.Student(t, "lost")
	kept := env.Student(t, "kept")
	for userID, last := range map[string]time.Time{
		lost.ID: now.Add(-72 * time.Hour),
		kept.ID: now.Add(-24 * time.Hour),
	} {
		_, err := env.Repos.Streaks.SaveStreak(ctx, streak.Streak{
			UserID: userID, CurrentStreak: 5, LongestStreak: 5, TotalParticipation: 5, LastActivityAt: last,
		})
		require.NoError(t, err)
	}

	count, err := env.Svc.Streaks.ResetBroken(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	s, err := env.Repos.Streaks.GetStreak(ctx, lost.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, s.CurrentStreak)
	assert.Equal(t, 5, s.LongestStreak)
	assert.Equal(t, now, s.BrokenAt)

	s, err = env.Repos.Streaks.GetStreak(ctx, kept.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, s.CurrentStreak)

	notifs, err := env.Svc.Notifications.List(ctx, lost.ID, notification.QueryFilter{}, core.Page{})
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, "Streak lost", notifs[0].Title)

	// already reset streaks are left alone
	count, err = env.Svc.Streaks.ResetBroken(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestService_ResetBroken_daylightSaving(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	env.Conf.Timezone = "Europe/Prague"
	svc := streak.NewService(env.Repos.Streaks, env.Repos.Tx, env.Svc.Notifications, env.Conf)
	prague, err := time.LoadLocation("Europe/Prague")
	require.NoError(t, err)

	// March 31 2024 only has 23 hours in Prague
	testutil.SetNow(t, time.Date(2024, 4, 1, 12, 0, 0, 0, prague))
	missed := env.Student(t, "missed")
	active := env.Student(t, "active")
	for userID, last := range map[string]time.Time{
		missed.ID: time.Date(2024, 3, 30, 23, 30, 0, 0, prague),
		active.ID: time.Date(2024, 3, 31, 0, 30, 0, 0, prague),
	} {
		_, err = env.Repos.Streaks.SaveStreak(ctx, streak.Streak{
			UserID: userID, CurrentStreak: 3, LongestStreak: 3, TotalParticipation: 3, LastActivityAt: last,
		})
		require.NoError(t, err)
	}

	count, err := svc.ResetBroken(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	s, err := env.Repos.Streaks.GetStreak(ctx, missed.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, s.CurrentStreak)

	s, err = env.Repos.Streaks.GetStreak(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, s.CurrentStreak)
}

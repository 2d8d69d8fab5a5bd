package achievement_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/achievement"
	"github.com/edurpg/edurpg/core/job"
	"github.com/edurpg/edurpg/core/notification"
	"github.com/edurpg/edurpg/core/xp"
	"github.com/edurpg/edurpg/tests"
)

var start = time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)

func TestService_Create(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.Svc.Achievements
	ctx := context.Background()
	testutil.SetNow(t, start)

	bad := achievement.NewAchievement{Name: "Nope", Category: "LUCK"}
	require.Error(t, bad.Validate(env.Validate))

	from, to := start.Add(time.Hour), start
	tests := []struct {
		name    string
		na      achievement.NewAchievement
		wantErr error
	}{
		{
			name:    "automatic without target",
			na:      achievement.NewAchievement{Name: "Climber", Category: achievement.CategoryLevel},
			wantErr: achievement.ErrTargetRequired,
		},
		{
			name:    "window on a normal achievement",
			na:      achievement.NewAchievement{Name: "Early bird", AvailableFrom: &from},
			wantErr: achievement.ErrWindowNotAllowed,
		},
		{
			name:    "inverted window",
			na:      achievement.NewAchievement{Name: "Backwards", Type: achievement.TypeTemporary, AvailableFrom: &from, AvailableTo: &to},
			wantErr: achievement.ErrInvalidWindow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.na)
			assert.Equal(t, tt.wantErr, err)
		})
	}

	a, err := svc.Create(ctx, achievement.NewAchievement{Name: "Helper"})
	require.NoError(t, err)
	assert.Equal(t, achievement.TypeNormal, a.Type)
	assert.Equal(t, achievement.CategoryOther, a.Category)
	assert.True(t, a.IsActive)

	_, err = svc.Create(ctx, achievement.NewAchievement{Name: "HELPER"})
	assert.Equal(t, achievement.ErrDuplicateName, err)
}

func TestService_Check(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.Svc.Achievements
	ctx := context.Background()
	teacher := env.Teacher(t, "teacher")
	student := env.Student(t, "student")
	testutil.SetNow(t, start)

	create := func(na achievement.NewAchievement) achievement.Achievement {
		a, err := svc.Create(ctx, na)
		require.NoError(t, err)
		return a
	}
	worker := create(achievement.NewAchievement{Name: "Worker", Category: achievement.CategoryJob, Target: 1, XPReward: 20, MoneyReward: 15})
	create(achievement.NewAchievement{Name: "Hard worker", Category: achievement.CategoryJob, Target: 2})
	create(achievement.NewAchievement{Name: "Manual", Target: 1})
	gone := create(achievement.NewAchievement{Name: "Retired", Category: achievement.CategoryJob, Target: 1})
	_, err := svc.Deactivate(ctx, gone.ID)
	require.NoError(t, err)

	got, err := svc.Check(ctx, student.ID)
	require.NoError(t, err)
	assert.Empty(t, got)

	j, err := env.Svc.Jobs.Create(ctx, teacher, job.NewJob{Title: "Tidy the lab", MaxStudents: 1})
	require.NoError(t, err)
	_, err = env.Svc.Jobs.Apply(ctx, student.ID, j.ID)
	require.NoError(t, err)
	_, err = env.Svc.Jobs.Approve(ctx, teacher, j.ID, student.ID)
	require.NoError(t, err)
	_, err = env.Svc.Jobs.Close(ctx, teacher, j.ID)
	require.NoError(t, err)

	m, err := svc.Metrics(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, m.JobsCompleted)

	got, err = svc.Check(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, worker.ID, got[0].Achievement.ID)
	assert.Equal(t, 20, got[0].XP)
	assert.Equal(t, 15, got[0].Gold)
	assert.Equal(t, 15, env.Balance(t, student.ID))

	prog, err := env.Svc.XP.Progress(ctx, student.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, prog.TotalXP, 20)

	// rewards are paid once
	got, err = svc.Check(ctx, student.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 15, env.Balance(t, student.ID))

	notifs, err := env.Svc.Notifications.List(ctx, student.ID, notification.QueryFilter{Type: notification.TypeAchievement}, core.Page{})
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, "You unlocked Worker", notifs[0].Message)
}

func TestService_ForUser(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.Svc.Achievements
	ctx := context.Background()
	teacher := env.Teacher(t, "teacher")
	student := env.Student(t, "student")
	testutil.SetNow(t, start)
	env.SetLevel(t, student.ID, 3)

	create := func(na achievement.NewAchievement) achievement.Achievement {
		a, err := svc.Create(ctx, na)
		require.NoError(t, err)
		return a
	}
	soon, later := start.Add(time.Hour), start.Add(48*time.Hour)
	yesterday := start.Add(-24 * time.Hour)
	create(achievement.NewAchievement{Name: "Level 10", Category: achievement.CategoryLevel, Target: 10, SortOrder: 1})
	secret := create(achievement.NewAchievement{Name: "Secret", Type: achievement.TypeHidden, SortOrder: 2})
	create(achievement.NewAchievement{Name: "Secret too", Type: achievement.TypeHidden, SortOrder: 3})
	create(achievement.NewAchievement{Name: "This week", Type: achievement.TypeTemporary, AvailableFrom: &yesterday, AvailableTo: &later, SortOrder: 4})
	create(achievement.NewAchievement{Name: "Next week", Type: achievement.TypeTemporary, AvailableFrom: &soon, AvailableTo: &later, SortOrder: 5})

	_, err := svc.Unlock(ctx, teacher, secret.ID, achievement.UnlockRequest{UserID: student.ID})
	require.NoError(t, err)

	got, err := svc.ForUser(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "Level 10", got[0].Name)
	assert.False(t, got[0].Unlocked)
	require.NotNil(t, got[0].Progress)
	assert.Equal(t, 3, got[0].Progress.Current)
	assert.Equal(t, 30, got[0].Progress.Percent)

	assert.Equal(t, "Secret", got[1].Name)
	assert.True(t, got[1].Unlocked)
	assert.Equal(t, start, got[1].UnlockedAt)
	assert.Nil(t, got[1].Progress)

	assert.Equal(t, "This week", got[2].Name)
}

func TestService_Unlock(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.Svc.Achievements
	ctx := context.Background()
	teacher := env.Teacher(t, "teacher")
	student := env.Student(t, "student")
	gone := testutil.CreateUser(t, env.Repos.Users, "Gone", "gone", "gone@test.cd", "pwd", nil, false)
	testutil.SetNow(t, start)

	a, err := svc.Create(ctx, achievement.NewAchievement{Name: "Kindness", XPReward: 30, MoneyReward: 10})
	require.NoError(t, err)
	ended := start.Add(-time.Hour)
	old, err := svc.Create(ctx, achievement.NewAchievement{Name: "Summer", Type: achievement.TypeTemporary, AvailableTo: &ended})
	require.NoError(t, err)

	_, err = svc.Unlock(ctx, teacher, a.ID, achievement.UnlockRequest{UserID: gone.ID})
	assert.Equal(t, achievement.ErrNoUser, err)
	_, err = svc.Unlock(ctx, teacher, a.ID, achievement.UnlockRequest{UserID: "00000000-0000-0000-0000-000000000000"})
	assert.Equal(t, achievement.ErrNoUser, err)
	_, err = svc.Unlock(ctx, teacher, old.ID, achievement.UnlockRequest{UserID: student.ID})
	assert.Equal(t, achievement.ErrNotAvailable, err)
	_, err = svc.Unlock(ctx, teacher, "nope", achievement.UnlockRequest{UserID: student.ID})
	assert.Equal(t, achievement.ErrNotFound, errors.Cause(err))

	res, err := svc.Unlock(ctx, teacher, a.ID, achievement.UnlockRequest{UserID: student.ID})
	require.NoError(t, err)
	assert.False(t, res.AlreadyUnlocked)
	assert.Equal(t, teacher.ID, res.Award.AwardedBy)
	assert.Equal(t, 10, env.Balance(t, student.ID))

	entries, err := env.Svc.XP.History(ctx, student.ID, core.Page{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, xp.SourceAchievement, entries[0].Source)
	assert.Equal(t, 30, entries[0].BaseAmount)

	again, err := svc.Unlock(ctx, teacher, a.ID, achievement.UnlockRequest{UserID: student.ID})
	require.NoError(t, err)
	assert.True(t, again.AlreadyUnlocked)
	assert.Equal(t, res.Award.ID, again.Award.ID)
	assert.Equal(t, 10, env.Balance(t, student.ID))
}

package quest_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/guild"
	"github.com/edurpg/edurpg/core/notification"
	"github.com/edurpg/edurpg/core/quest"
	"github.com/edurpg/edurpg/tests"
)

func TestService_crud(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.Svc.Quests
	ctx := context.Background()
	teacher := env.Teacher(t, "teacher")
	colleague := env.Teacher(t, "colleague")
	admin := env.Admin(t, "admin")
	testutil.SetNow(t, time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC))

	nq := quest.NewQuest{Title: "  Read a book ", Category: " Reading", Difficulty: quest.DifficultyEasy, XPReward: 50}
	require.NoError(t, nq.Validate(env.Validate))
	q, err := svc.Create(ctx, teacher, nq)
	require.NoError(t, err)
	assert.Equal(t, "Read a book", q.Title)
	assert.Equal(t, "reading", q.Category)
	assert.Equal(t, quest.StatusActive, q.Status)
	assert.Equal(t, teacher.ID, q.CreatedBy)

	bad := quest.NewQuest{Title: "Nope", Difficulty: "IMPOSSIBLE"}
	assert.Error(t, bad.Validate(env.Validate))

	testutil.SetNow(t, time.Date(2024, 9, 2, 10, 0, 0, 0, time.UTC))
	hard, err := svc.Create(ctx, teacher, quest.NewQuest{Title: "Write an essay", Difficulty: quest.DifficultyHard, XPReward: 300, RequiredLevel: 5})
	require.NoError(t, err)

	quests, err := svc.List(ctx, quest.QueryFilter{}, nil, core.Page{})
	require.NoError(t, err)
	require.Len(t, quests, 2)
	assert.Equal(t, hard.ID, quests[0].ID, "newest first by default")

	quests, err = svc.List(ctx, quest.QueryFilter{}, []core.DBOrdering{{Field: "xp_reward", Ascending: true}}, core.Page{})
	require.NoError(t, err)
	assert.Equal(t, q.ID, quests[0].ID)

	quests, err = svc.List(ctx, quest.QueryFilter{MaxLevel: 3}, nil, core.Page{})
	require.NoError(t, err)
	require.Len(t, quests, 1)
	assert.Equal(t, q.ID, quests[0].ID)

	quests, err = svc.List(ctx, quest.QueryFilter{Search: "essay"}, nil, core.Page{})
	require.NoError(t, err)
	require.Len(t, quests, 1)
	assert.Equal(t, hard.ID, quests[0].ID)

	_, err = svc.Update(ctx, colleague, q.ID, quest.UpdateQuest{XPReward: testutil.IntPtr(60)})
	assert.Equal(t, quest.ErrNotOwner, err)

	inactive := quest.StatusInactive
	q, err = svc.Update(ctx, teacher, q.ID, quest.UpdateQuest{XPReward: testutil.IntPtr(60), Status: &inactive})
	require.NoError(t, err)
	assert.Equal(t, 60, q.XPReward)
	assert.Equal(t, quest.StatusInactive, q.Status)

	assert.Equal(t, quest.ErrNotOwner, svc.Delete(ctx, colleague, hard.ID))
	require.NoError(t, svc.Delete(ctx, admin, hard.ID))
	_, err = svc.Get(ctx, hard.ID)
	assert.Equal(t, quest.ErrNotFound, errors.Cause(err))
}

func TestService_lifecycle(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.Svc.Quests
	ctx := context.Background()
	teacher := env.Teacher(t, "teacher")
	student := env.Student(t, "student")
	testutil.SetNow(t, time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC))

	q, err := svc.Create(ctx, teacher, quest.NewQuest{Title: "Solve equations", Difficulty: quest.DifficultyMedium, XPReward: 100, MoneyReward: 50})
	require.NoError(t, err)

	_, err = svc.UpdateProgress(ctx, student.ID, q.ID, quest.UpdateProgress{Progress: 10})
	assert.Equal(t, quest.ErrProgressNotFound, errors.Cause(err))

	p, err := svc.Accept(ctx, student.ID, q.ID)
	require.NoError(t, err)
	assert.Equal(t, quest.ProgressAccepted, p.Status)
	_, err = svc.Accept(ctx, student.ID, q.ID)
	assert.Equal(t, quest.ErrAlreadyAccepted, err)

	p, err = svc.UpdateProgress(ctx, student.ID, q.ID, quest.UpdateProgress{Progress: 40})
	require.NoError(t, err)
	assert.Equal(t, quest.ProgressInProgress, p.Status)
	assert.Equal(t, 40, p.Progress)

	_, err = svc.UpdateProgress(ctx, student.ID, q.ID, quest.UpdateProgress{Progress: 30})
	assert.Equal(t, quest.ErrProgressBackward, err)

	res, err := svc.Complete(ctx, student.ID, q.ID)
	require.NoError(t, err)
	assert.Equal(t, quest.ProgressCompleted, res.Progress.Status)
	assert.Equal(t, 100, res.Progress.Progress)
	assert.Equal(t, 100, res.XP)
	assert.Equal(t, 50, res.Gold)
	assert.Equal(t, 50, env.Balance(t, student.ID))

	info, err := env.Svc.XP.Progress(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, info.TotalXP)

	// a completed quest cannot be completed or accepted again
	_, err = svc.Complete(ctx, student.ID, q.ID)
	assert.Equal(t, quest.ErrNotInProgress, err)
	_, err = svc.Accept(ctx, student.ID, q.ID)
	assert.Equal(t, quest.ErrAlreadyAccepted, err)

	notifs, err := env.Svc.Notifications.List(ctx, student.ID, notification.QueryFilter{Type: notification.TypeQuest}, core.Page{})
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, "Solve equations: +100 XP, +50 gold", notifs[0].Message)

	mine, err := svc.MyQuests(ctx, student.ID, quest.ProgressCompleted)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, q.ID, mine[0].Quest.ID)

	mine, err = svc.MyQuests(ctx, student.ID, quest.ProgressAccepted)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestService_UpdateProgress_completes(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.Svc.Quests
	ctx := context.Background()
	teacher := env.Teacher(t, "teacher")
	student := env.Student(t, "student")

	q, err := svc.Create(ctx, teacher, quest.NewQuest{Title: "Lab report", Difficulty: quest.DifficultyEasy, MoneyReward: 20})
	require.NoError(t, err)
	_, err = svc.Accept(ctx, student.ID, q.ID)
	require.NoError(t, err)

	p, err := svc.UpdateProgress(ctx, student.ID, q.ID, quest.UpdateProgress{Progress: 100})
	require.NoError(t, err)
	assert.Equal(t, quest.ProgressCompleted, p.Status)
	assert.Equal(t, 20, env.Balance(t, student.ID))
}

func TestService_Abandon(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.Svc.Quests
	ctx := context.Background()
	teacher := env.Teacher(t, "teacher")
	student := env.Student(t, "student")

	q, err := svc.Create(ctx, teacher, quest.NewQuest{Title: "Run a mile", Difficulty: quest.DifficultyEasy})
	require.NoError(t, err)
	_, err = svc.Abandon(ctx, student.ID, q.ID)
	assert.Equal(t, quest.ErrProgressNotFound, errors.Cause(err))

	_, err = svc.Accept(ctx, student.ID, q.ID)
	require.NoError(t, err)
	_, err = svc.UpdateProgress(ctx, student.ID, q.ID, quest.UpdateProgress{Progress: 50})
	require.NoError(t, err)

	p, err := svc.Abandon(ctx, student.ID, q.ID)
	require.NoError(t, err)
	assert.Equal(t, quest.ProgressAbandoned, p.Status)
	_, err = svc.Abandon(ctx, student.ID, q.ID)
	assert.Equal(t, quest.ErrNotInProgress, err)

	// abandoned quests start over
	p, err = svc.Accept(ctx, student.ID, q.ID)
	require.NoError(t, err)
	assert.Equal(t, quest.ProgressAccepted, p.Status)
	assert.Equal(t, 0, p.Progress)
}

func TestService_Accept_restrictions(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.Svc.Quests
	ctx := context.Background()
	teacher := env.Teacher(t, "teacher")
	student := env.Student(t, "student")
	leader := env.Student(t, "leader")

	g, err := env.Svc.Guilds.Create(ctx, leader.ID, guild.NewGuild{Name: "Owls"})
	require.NoError(t, err)

	hard, err := svc.Create(ctx, teacher, quest.NewQuest{Title: "Boss fight", Difficulty: quest.DifficultyEpic, RequiredLevel: 3})
	require.NoError(t, err)
	guildOnly, err := svc.Create(ctx, teacher, quest.NewQuest{Title: "Owl hunt", Difficulty: quest.DifficultyEasy, GuildID: g.ID})
	require.NoError(t, err)
	closed, err := svc.Create(ctx, teacher, quest.NewQuest{Title: "Old quest", Difficulty: quest.DifficultyEasy})
	require.NoError(t, err)
	archived := quest.StatusArchived
	_, err = svc.Update(ctx, teacher, closed.ID, quest.UpdateQuest{Status: &archived})
	require.NoError(t, err)

	tests := []struct {
		name    string
		userID  string
		questID string
		wantErr error
	}{
		{name: "unknown quest", userID: student.ID, questID: "nope", wantErr: quest.ErrNotFound},
		{name: "archived", userID: student.ID, questID: closed.ID, wantErr: quest.ErrNotAvailable},
		{name: "level too low", userID: student.ID, questID: hard.ID, wantErr: quest.ErrLevelTooLow},
		{name: "not in the guild", userID: student.ID, questID: guildOnly.ID, wantErr: quest.ErrNotGuildMember},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Accept(ctx, tt.userID, tt.questID)
			assert.Equal(t, tt.wantErr, errors.Cause(err))
		})
	}

	env.SetLevel(t, student.ID, 3)
	_, err = svc.Accept(ctx, student.ID, hard.ID)
	require.NoError(t, err)

	t.Run("guild quest", func(t *testing.T) {
		_, err := svc.Accept(ctx, leader.ID, guildOnly.ID)
		require.NoError(t, err)
		res, err := svc.Complete(ctx, leader.ID, guildOnly.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, res.XP)
		assert.Equal(t, 0, res.Gold)
	})
}

func TestService_Complete_guild(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.Svc.Quests
	ctx := context.Background()
	teacher := env.Teacher(t, "teacher")
	leader := env.Student(t, "leader")
	testutil.SetNow(t, time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC))

	g, err := env.Svc.Guilds.Create(ctx, leader.ID, guild.NewGuild{Name: "Owls"})
	require.NoError(t, err)
	q, err := svc.Create(ctx, teacher, quest.NewQuest{
		Title: "Owl hunt", Difficulty: quest.DifficultyMedium, XPReward: 100, MoneyReward: 100, GuildID: g.ID,
	})
	require.NoError(t, err)
	_, err = svc.Accept(ctx, leader.ID, q.ID)
	require.NoError(t, err)

	res, err := svc.Complete(ctx, leader.ID, q.ID)
	require.NoError(t, err)
	// level 1 guilds boost XP by 5%
	assert.Equal(t, 105, res.XP)
	assert.Equal(t, 100, res.Gold)

	details, err := env.Svc.Guilds.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, details.XP)
	assert.Equal(t, 10, details.Treasury)

	activities, err := env.Svc.Guilds.Activities(ctx, g.ID, core.Page{})
	require.NoError(t, err)
	require.NotEmpty(t, activities)
	assert.Equal(t, guild.ActivityQuestCompleted, activities[0].Type)
}

func TestService_MyQuests_manyQuests(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.Svc.Quests
	ctx := context.Background()
	teacher := env.Teacher(t, "teacher")
	alice := env.Student(t, "alice")

	const n = core.MaxPageSize + 20
	for i := 0; i < n; i++ {
		q, err := svc.Create(ctx, teacher, quest.NewQuest{
			Title: fmt.Sprintf("Quest %d", i), Difficulty: quest.DifficultyEasy, XPReward: 10,
		})
		require.NoError(t, err)
		_, err = svc.Accept(ctx, alice.ID, q.ID)
		require.NoError(t, err)
	}

	mine, err := svc.MyQuests(ctx, alice.ID, "")
	require.NoError(t, err)
	assert.Len(t, mine, n)
}

package guild_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/guild"
	"github.com/edurpg/edurpg/core/notification"
	"github.com/edurpg/edurpg/core/wallet"
	"github.com/edurpg/edurpg/tests"
)

func TestService_membership(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.Svc.Guilds
	ctx := context.Background()
	leader := env.Student(t, "leader")
	alice := env.Student(t, "alice")
	bob := env.Student(t, "bob")

	g, err := svc.Create(ctx, leader.ID, guild.NewGuild{Name: "Owls", MaxMembers: 3})
	require.NoError(t, err)
	assert.Equal(t, leader.ID, g.LeaderID)
	assert.Equal(t, 1, g.MemberCount)
	assert.Equal(t, 1, g.Level)
	assert.True(t, g.IsPublic)

	_, err = svc.Create(ctx, alice.ID, guild.NewGuild{Name: "owls"})
	assert.Equal(t, guild.ErrNameTaken, errors.Cause(err))
	_, err = svc.Create(ctx, leader.ID, guild.NewGuild{Name: "Hawks"})
	assert.Equal(t, guild.ErrAlreadyInGuild, err)

	_, err = svc.Join(ctx, alice.ID, g.ID)
	require.NoError(t, err)
	_, err = svc.Join(ctx, alice.ID, g.ID)
	assert.Equal(t, guild.ErrAlreadyInGuild, err)
	_, err = svc.Join(ctx, bob.ID, g.ID)
	require.NoError(t, err)

	late := env.Student(t, "late")
	_, err = svc.Join(ctx, late.ID, g.ID)
	assert.Equal(t, guild.ErrGuildFull, err)

	details, err := svc.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, details.MemberCount)
	require.Len(t, details.Members, 3)
	assert.Equal(t, guild.RoleLeader, details.Members[0].Role)
	assert.Len(t, details.Benefits, len(guild.DefaultBenefits))

	mine, err := svc.Mine(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, g.ID, mine.ID)

	notifs, err := env.Svc.Notifications.List(ctx, leader.ID, notification.QueryFilter{Type: notification.TypeGuild}, core.Page{})
	require.NoError(t, err)
	assert.Len(t, notifs, 2)

	t.Run("ranks", func(t *testing.T) {
		_, err := svc.SetRole(ctx, alice.ID, g.ID, bob.ID, guild.RoleOfficer)
		assert.Equal(t, guild.ErrInsufficientRank, err)
		_, err = svc.SetRole(ctx, leader.ID, g.ID, bob.ID, guild.RoleLeader)
		assert.Equal(t, guild.ErrInvalidRole, err)

		m, err := svc.SetRole(ctx, leader.ID, g.ID, alice.ID, guild.RoleOfficer)
		require.NoError(t, err)
		assert.Equal(t, guild.RoleOfficer, m.Role)

		// officers cannot kick each other
		_, err = svc.SetRole(ctx, leader.ID, g.ID, bob.ID, guild.RoleOfficer)
		require.NoError(t, err)
		assert.Equal(t, guild.ErrInsufficientRank, svc.Kick(ctx, alice.ID, g.ID, bob.ID))
		_, err = svc.SetRole(ctx, leader.ID, g.ID, bob.ID, guild.RoleMember)
		require.NoError(t, err)
	})

	t.Run("kick", func(t *testing.T) {
		assert.Equal(t, guild.ErrSelfAction, svc.Kick(ctx, alice.ID, g.ID, alice.ID))
		require.NoError(t, svc.Kick(ctx, alice.ID, g.ID, bob.ID))

		_, err := svc.Membership(ctx, bob.ID)
		assert.Equal(t, guild.ErrNotMember, errors.Cause(err))
		notifs, err := env.Svc.Notifications.List(ctx, bob.ID, notification.QueryFilter{}, core.Page{})
		require.NoError(t, err)
		require.Len(t, notifs, 1)
		assert.Equal(t, "Removed from guild", notifs[0].Title)
	})

	t.Run("leadership", func(t *testing.T) {
		assert.Equal(t, guild.ErrLeaderCannotLeave, svc.Leave(ctx, leader.ID, g.ID))

		updated, err := svc.TransferLeadership(ctx, leader.ID, g.ID, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, alice.ID, updated.LeaderID)

		m, err := svc.Membership(ctx, leader.ID)
		require.NoError(t, err)
		assert.Equal(t, guild.RoleOfficer, m.Role)

		require.NoError(t, svc.Leave(ctx, leader.ID, g.ID))
		details, err := svc.Get(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, details.MemberCount)

		// the last member disbands the guild
		require.NoError(t, svc.Leave(ctx, alice.ID, g.ID))
		_, err = svc.Get(ctx, g.ID)
		assert.Equal(t, guild.ErrNotFound, errors.Cause(err))
	})
}

func TestService_Join_private(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	leader := env.Student(t, "leader")
	other := env.Student(t, "other")

	g, err := env.Svc.Guilds.Create(ctx, leader.ID, guild.NewGuild{Name: "Secret", IsPublic: testutil.BoolPtr(false)})
	require.NoError(t, err)
	_, err = env.Svc.Guilds.Join(ctx, other.ID, g.ID)
	assert.Equal(t, guild.ErrGuildPrivate, err)
}

func TestService_Update(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.Svc.Guilds
	ctx := context.Background()
	leader := env.Student(t, "leader")
	member := env.Student(t, "member")

	g, err := svc.Create(ctx, leader.ID, guild.NewGuild{Name: "Owls"})
	require.NoError(t, err)
	_, err = svc.Join(ctx, member.ID, g.ID)
	require.NoError(t, err)

	_, err = svc.Update(ctx, member.ID, g.ID, guild.UpdateGuild{Motto: testutil.StrPtr("hoot")})
	assert.Equal(t, guild.ErrInsufficientRank, err)

	_, err = svc.Update(ctx, leader.ID, g.ID, guild.UpdateGuild{MaxMembers: testutil.IntPtr(1)})
	assert.True(t, core.IsKind(err, core.KindInvalid))

	g, err = svc.Update(ctx, leader.ID, g.ID, guild.UpdateGuild{Motto: testutil.StrPtr("  hoot  "), IsPublic: testutil.BoolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, "hoot", g.Motto)
	assert.False(t, g.IsPublic)
	assert.Equal(t, "Owls", g.Name)
}

func TestService_treasury(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.Svc.Guilds
	ctx := context.Background()
	leader := env.Student(t, "leader")
	member := env.Student(t, "member")
	loner := env.Student(t, "loner")

	g, err := svc.Create(ctx, leader.ID, guild.NewGuild{Name: "Owls"})
	require.NoError(t, err)
	_, err = svc.Join(ctx, member.ID, g.ID)
	require.NoError(t, err)
	env.Fund(t, member.ID, 100)

	_, err = svc.Deposit(ctx, member.ID, g.ID, 0)
	assert.Equal(t, wallet.ErrInvalidAmount, err)
	_, err = svc.Deposit(ctx, member.ID, g.ID, 101)
	assert.Equal(t, wallet.ErrInsufficientFunds, errors.Cause(err))
	_, err = svc.Deposit(ctx, loner.ID, g.ID, 10)
	assert.Equal(t, guild.ErrNotMember, errors.Cause(err))

	g, err = svc.Deposit(ctx, member.ID, g.ID, 60)
	require.NoError(t, err)
	assert.Equal(t, 60, g.Treasury)
	assert.Equal(t, 40, env.Balance(t, member.ID))

	m, err := svc.Membership(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, m.ContributedGold)

	activities, err := svc.Activities(ctx, g.ID, core.Page{})
	require.NoError(t, err)
	require.NotEmpty(t, activities)
	assert.Equal(t, guild.ActivityDeposit, activities[0].Type)
	assert.Equal(t, 60, activities[0].Amount)
}

func TestService_Contribute(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.Svc.Guilds
	ctx := context.Background()
	leader := env.Student(t, "leader")
	member := env.Student(t, "member")
	loner := env.Student(t, "loner")

	g, err := svc.Create(ctx, leader.ID, guild.NewGuild{Name: "Owls"})
	require.NoError(t, err)
	_, err = svc.Join(ctx, member.ID, g.ID)
	require.NoError(t, err)

	// users without a guild contribute nothing
	res, err := svc.Contribute(ctx, guild.Contribution{UserID: loner.ID, XP: 500})
	require.NoError(t, err)
	assert.Empty(t, res.ID)

	res, err = svc.Contribute(ctx, guild.Contribution{UserID: member.ID, XP: 600, Gold: 20, Reason: "Quest done"})
	require.NoError(t, err)
	assert.Equal(t, 600, res.XP)
	assert.Equal(t, 20, res.Treasury)
	assert.Equal(t, 1, res.Level)

	res, err = svc.Contribute(ctx, guild.Contribution{UserID: member.ID, XP: 500})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Level)

	m, err := svc.Membership(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, 1100, m.ContributedXP)

	for _, userID := range []string{leader.ID, member.ID} {
		notifs, err := env.Svc.Notifications.List(ctx, userID, notification.QueryFilter{Type: notification.TypeGuild}, core.Page{})
		require.NoError(t, err)
		require.NotEmpty(t, notifs)
		assert.Equal(t, "Guild level up!", notifs[0].Title)
	}

	bonus, err := svc.Bonus(ctx, member.ID, guild.BenefitShopDiscount)
	require.NoError(t, err)
	assert.Equal(t, 5, bonus)
	bonus, err = svc.Bonus(ctx, loner.ID, guild.BenefitXPBoost)
	require.NoError(t, err)
	assert.Equal(t, 0, bonus)

	// a contribution bound to another guild is ignored
	res, err = svc.Contribute(ctx, guild.Contribution{UserID: member.ID, GuildID: "other", XP: 10})
	require.NoError(t, err)
	assert.Empty(t, res.ID)

	_, err = svc.AddXP(ctx, g.ID, 0)
	assert.True(t, core.IsKind(err, core.KindInvalid))
	res, err = svc.AddXP(ctx, g.ID, 900)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Level)
}

func TestService_chat(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.Svc.Guilds
	ctx := context.Background()
	leader := env.Student(t, "leader")
	outsider := env.Student(t, "outsider")

	g, err := svc.Create(ctx, leader.ID, guild.NewGuild{Name: "Owls"})
	require.NoError(t, err)

	_, err = svc.PostMessage(ctx, outsider.ID, g.ID, guild.NewMessage{Content: "hi"})
	assert.Equal(t, guild.ErrNotMember, errors.Cause(err))
	_, err = svc.Messages(ctx, outsider.ID, g.ID, core.Page{})
	assert.Equal(t, guild.ErrNotMember, errors.Cause(err))

	for _, content := range []string{"first", "second"} {
		_, err = svc.PostMessage(ctx, leader.ID, g.ID, guild.NewMessage{Content: content})
		require.NoError(t, err)
	}
	msgs, err := svc.Messages(ctx, leader.ID, g.ID, core.Page{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "second", msgs[0].Content)
}

func TestLevelForXP(t *testing.T) {
	tests := []struct {
		xp   int
		want int
	}{
		{-10, 1}, {0, 1}, {999, 1}, {1000, 2}, {4500, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, guild.LevelForXP(tt.xp))
	}
	assert.Equal(t, 10, guild.BenefitValue(5, guild.BenefitXPBoost))
	assert.Equal(t, 0, guild.BenefitValue(1, guild.BenefitMoneyBoost))
}

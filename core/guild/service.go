// Package guild manages player groups, their shared treasury and the benefits unlocked by guild level.
package guild

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/notification"
	"github.com/edurpg/edurpg/core/wallet"
)

var (
	ErrNotFound          = core.NewNotFoundError("guild not found")
	ErrNotMember         = core.NewNotFoundError("not a member of this guild")
	ErrNameTaken         = core.NewConflictError("a guild with this name already exists")
	ErrAlreadyInGuild    = core.NewConflictError("already a member of a guild")
	ErrGuildFull         = core.NewConflictError("guild is full")
	ErrGuildPrivate      = core.NewForbiddenError("guild is not public")
	ErrLeaderCannotLeave = core.NewInvalidError("leader must transfer leadership before leaving")
	ErrInsufficientRank  = core.NewForbiddenError("insufficient guild rank")
	ErrInvalidRole       = core.NewInvalidError("invalid guild role")
	ErrSelfAction        = core.NewInvalidError("cannot target yourself")
)

type (
	Repository interface {
		// CreateGuild fails with ErrNameTaken if the name is used (case-insensitive).
		CreateGuild(ctx context.Context, g Guild) (Guild, error)
		GetGuild(ctx context.Context, id string) (Guild, error)
		QueryGuilds(ctx context.Context, filter QueryFilter, page core.Page) ([]Guild, error)
		// UpdateGuild persists all fields of g but ID, Name & CreatedAt.
		UpdateGuild(ctx context.Context, g Guild) (Guild, error)
		DeleteGuild(ctx context.Context, id string) error

		AddMember(ctx context.Context, m Member) (Member, error)
		GetMember(ctx context.Context, guildID, userID string) (Member, error)
		// GetMembership returns the user's membership in any guild, ErrNotMember if there is none.
		GetMembership(ctx context.Context, userID string) (Member, error)
		// QueryMembers returns the guild members by rank then join date.
		QueryMembers(ctx context.Context, guildID string) ([]Member, error)
		UpdateMember(ctx context.Context, m Member) (Member, error)
		RemoveMember(ctx context.Context, guildID, userID string) error

		CreateActivity(ctx context.Context, a Activity) (Activity, error)
		// QueryActivities returns the guild activities, newest first.
		QueryActivities(ctx context.Context, guildID string, page core.Page) ([]Activity, error)
		CreateMessage(ctx context.Context, m Message) (Message, error)
		// QueryMessages returns the guild chat messages, newest first.
		QueryMessages(ctx context.Context, guildID string, page core.Page) ([]Message, error)
	}

	debiter interface {
		Debit(ctx context.Context, e wallet.Entry) (wallet.Transaction, error)
	}

	Service struct {
		repo     Repository
		tx       core.Transactor
		wallet   debiter
		notifier notification.Notifier
	}
)

func NewService(repo Repository, tx core.Transactor, wallet debiter, notifier notification.Notifier) *Service {
	return &Service{repo: repo, tx: tx, wallet: wallet, notifier: notifier}
}

func (svc *Service) Create(ctx context.Context, userID string, ng NewGuild) (Guild, error) {
	var g Guild
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := svc.checkNotInGuild(ctx, userID); err != nil {
			return err
		}

		now := core.Now()
		g = Guild{
			Name:        ng.Name,
			Description: ng.Description,
			Motto:       ng.Motto,
			LeaderID:    userID,
			IsPublic:    true,
			MaxMembers:  DefaultMaxMembers,
			MemberCount: 1,
			Level:       1,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if ng.IsPublic != nil {
			g.IsPublic = *ng.IsPublic
		}
		if ng.MaxMembers > 0 {
			g.MaxMembers = ng.MaxMembers
		}

		var err error
		if g, err = svc.repo.CreateGuild(ctx, g); err != nil {
			return err
		}
		if _, err = svc.repo.AddMember(ctx, Member{GuildID: g.ID, UserID: userID, Role: RoleLeader, JoinedAt: now}); err != nil {
			return errors.Wrap(err, "adding leader")
		}
		g.MemberCount = 1
		return svc.logActivity(ctx, g.ID, userID, ActivityCreated, "Guild founded", 0)
	})
	return g, err
}

func (svc *Service) Get(ctx context.Context, id string) (Details, error) {
	g, err := svc.repo.GetGuild(ctx, id)
	if err != nil {
		return Details{}, err
	}
	members, err := svc.repo.QueryMembers(ctx, id)
	if err != nil {
		return Details{}, errors.Wrap(err, "querying members")
	}
	return Details{Guild: g, Members: members, Benefits: Benefits(g.Level)}, nil
}

func (svc *Service) List(ctx context.Context, filter QueryFilter, page core.Page) ([]Guild, error) {
	page.Clean()
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryGuilds(ctx, filter, page)
}

// Mine returns the guild of the user, ErrNotMember if they have none.
func (svc *Service) Mine(ctx context.Context, userID string) (Details, error) {
	m, err := svc.repo.GetMembership(ctx, userID)
	if err != nil {
		return Details{}, err
	}
	return svc.Get(ctx, m.GuildID)
}

func (svc *Service) Update(ctx context.Context, actorID, guildID string, ug UpdateGuild) (Guild, error) {
	var g Guild
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := svc.requireRank(ctx, guildID, actorID, RoleOfficer); err != nil {
			return err
		}
		var err error
		if g, err = svc.repo.GetGuild(ctx, guildID); err != nil {
			return err
		}
		if ug.Description != nil {
			g.Description = core.CleanString(*ug.Description)
		}
		if ug.Motto != nil {
			g.Motto = core.CleanString(*ug.Motto)
		}
		if ug.IsPublic != nil {
			g.IsPublic = *ug.IsPublic
		}
		if ug.MaxMembers != nil {
			if *ug.MaxMembers < g.MemberCount {
				return core.NewInvalidError("max members cannot be lower than the current member count")
			}
			g.MaxMembers = *ug.MaxMembers
		}
		g.UpdatedAt = core.Now()
		g, err = svc.repo.UpdateGuild(ctx, g)
		return err
	})
	return g, err
}

func (svc *Service) Join(ctx context.Context, userID, guildID string) (Member, error) {
	var m Member
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		g, err := svc.repo.GetGuild(ctx, guildID)
		if err != nil {
			return err
		}
		if !g.IsPublic {
			return ErrGuildPrivate
		}
		if g.IsFull() {
			return ErrGuildFull
		}
		if err = svc.checkNotInGuild(ctx, userID); err != nil {
			return err
		}

		now := core.Now()
		if m, err = svc.repo.AddMember(ctx, Member{GuildID: guildID, UserID: userID, Role: RoleMember, JoinedAt: now}); err != nil {
			return errors.Wrap(err, "adding member")
		}
		g.MemberCount++
		g.UpdatedAt = now
		if _, err = svc.repo.UpdateGuild(ctx, g); err != nil {
			return errors.Wrap(err, "updating guild")
		}
		if err = svc.logActivity(ctx, guildID, userID, ActivityJoined, "A new member joined", 0); err != nil {
			return err
		}
		_, err = svc.notifier.Notify(ctx, notification.NewNotification{
			UserID:  g.LeaderID,
			Type:    notification.TypeGuild,
			Title:   "New guild member",
			Message: fmt.Sprintf("A new member joined %s", g.Name),
			Data:    map[string]interface{}{"guild_id": guildID, "user_id": userID},
		})
		return err
	})
	return m, err
}

// Leave removes the user from the guild. The last member leaving disbands it.
func (svc *Service) Leave(ctx context.Context, userID, guildID string) error {
	return svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		g, err := svc.repo.GetGuild(ctx, guildID)
		if err != nil {
			return err
		}
		m, err := svc.repo.GetMember(ctx, guildID, userID)
		if err != nil {
			return err
		}
		if m.Role == RoleLeader {
			if g.MemberCount > 1 {
				return ErrLeaderCannotLeave
			}
			return errors.Wrap(svc.repo.DeleteGuild(ctx, guildID), "disbanding guild")
		}

		if err = svc.repo.RemoveMember(ctx, guildID, userID); err != nil {
			return errors.Wrap(err, "removing member")
		}
		g.MemberCount--
		g.UpdatedAt = core.Now()
		if _, err = svc.repo.UpdateGuild(ctx, g); err != nil {
			return errors.Wrap(err, "updating guild")
		}
		return svc.logActivity(ctx, guildID, userID, ActivityLeft, "A member left", 0)
	})
}

// Kick removes a lower ranked member. Officers and the leader may kick.
func (svc *Service) Kick(ctx context.Context, actorID, guildID, targetID string) error {
	if actorID == targetID {
		return ErrSelfAction
	}
	return svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		actor, err := svc.requireRank(ctx, guildID, actorID, RoleOfficer)
		if err != nil {
			return err
		}
		target, err := svc.repo.GetMember(ctx, guildID, targetID)
		if err != nil {
			return err
		}
		if target.Role.rank() >= actor.Role.rank() {
			return ErrInsufficientRank
		}

		g, err := svc.repo.GetGuild(ctx, guildID)
		if err != nil {
			return err
		}
		if err = svc.repo.RemoveMember(ctx, guildID, targetID); err != nil {
			return errors.Wrap(err, "removing member")
		}
		g.MemberCount--
		g.UpdatedAt = core.Now()
		if _, err = svc.repo.UpdateGuild(ctx, g); err != nil {
			return errors.Wrap(err, "updating guild")
		}
		if err = svc.logActivity(ctx, guildID, targetID, ActivityKicked, "A member was kicked", 0); err != nil {
			return err
		}
		_, err = svc.notifier.Notify(ctx, notification.NewNotification{
			UserID:  targetID,
			Type:    notification.TypeGuild,
			Title:   "Removed from guild",
			Message: fmt.Sprintf("You were removed from %s", g.Name),
			Data:    map[string]interface{}{"guild_id": guildID},
		})
		return err
	})
}

// SetRole promotes or demotes a member. Only the leader may do it.
func (svc *Service) SetRole(ctx context.Context, actorID, guildID, targetID string, role Role) (Member, error) {
	if role != RoleOfficer && role != RoleMember {
		return Member{}, ErrInvalidRole
	}
	if actorID == targetID {
		return Member{}, ErrSelfAction
	}
	var m Member
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := svc.requireRank(ctx, guildID, actorID, RoleLeader); err != nil {
			return err
		}
		var err error
		if m, err = svc.repo.GetMember(ctx, guildID, targetID); err != nil {
			return err
		}
		m.Role = role
		if m, err = svc.repo.UpdateMember(ctx, m); err != nil {
			return errors.Wrap(err, "updating member")
		}
		return svc.logActivity(ctx, guildID, targetID, ActivityRoleChanged, "Member is now "+string(role), 0)
	})
	return m, err
}

// TransferLeadership makes target the leader; the former leader becomes an officer.
func (svc *Service) TransferLeadership(ctx context.Context, actorID, guildID, targetID string) (Guild, error) {
	if actorID == targetID {
		return Guild{}, ErrSelfAction
	}
	var g Guild
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		leader, err := svc.requireRank(ctx, guildID, actorID, RoleLeader)
		if err != nil {
			return err
		}
		target, err := svc.repo.GetMember(ctx, guildID, targetID)
		if err != nil {
			return err
		}
		leader.Role = RoleOfficer
		target.Role = RoleLeader
		if _, err = svc.repo.UpdateMember(ctx, leader); err != nil {
			return errors.Wrap(err, "demoting leader")
		}
		if _, err = svc.repo.UpdateMember(ctx, target); err != nil {
			return errors.Wrap(err, "promoting member")
		}
		if g, err = svc.repo.GetGuild(ctx, guildID); err != nil {
			return err
		}
		g.LeaderID = targetID
		g.UpdatedAt = core.Now()
		if g, err = svc.repo.UpdateGuild(ctx, g); err != nil {
			return errors.Wrap(err, "updating guild")
		}
		if err = svc.logActivity(ctx, guildID, targetID, ActivityRoleChanged, "New guild leader", 0); err != nil {
			return err
		}
		_, err = svc.notifier.Notify(ctx, notification.NewNotification{
			UserID:  targetID,
			Type:    notification.TypeGuild,
			Title:   "You are the new leader",
			Message: fmt.Sprintf("You now lead %s", g.Name),
			Data:    map[string]interface{}{"guild_id": guildID},
		})
		return err
	})
	return g, err
}

// Deposit moves gold from the member's wallet into the guild treasury.
func (svc *Service) Deposit(ctx context.Context, userID, guildID string, amount int) (Guild, error) {
	if amount <= 0 {
		return Guild{}, wallet.ErrInvalidAmount
	}
	var g Guild
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if g, err = svc.repo.GetGuild(ctx, guildID); err != nil {
			return err
		}
		m, err := svc.repo.GetMember(ctx, guildID, userID)
		if err != nil {
			return err
		}
		_, err = svc.wallet.Debit(ctx, wallet.Entry{
			UserID:  userID,
			Amount:  amount,
			Type:    wallet.TxSpent,
			Reason:  "Guild deposit: " + g.Name,
			RefType: "guild",
			RefID:   guildID,
		})
		if err != nil {
			return err
		}

		m.ContributedGold += amount
		if _, err = svc.repo.UpdateMember(ctx, m); err != nil {
			return errors.Wrap(err, "updating member")
		}
		g.Treasury += amount
		g.UpdatedAt = core.Now()
		if g, err = svc.repo.UpdateGuild(ctx, g); err != nil {
			return errors.Wrap(err, "updating guild")
		}
		return svc.logActivity(ctx, guildID, userID, ActivityDeposit, fmt.Sprintf("Deposited %d gold", amount), amount)
	})
	return g, err
}

// Contribution is what a member's achievement brings to their guild.
type Contribution struct {
	UserID  string
	// GuildID restricts the contribution to members of that guild when set.
	GuildID string
	XP      int
	Gold    int
	Reason  string
	Type    ActivityType // defaults to ActivityQuestCompleted
}

// Contribute adds XP and treasury gold earned by a member to their guild, leveling it up as needed.
// It does nothing for users without a guild.
func (svc *Service) Contribute(ctx context.Context, c Contribution) (Guild, error) {
	var g Guild
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		m, err := svc.repo.GetMembership(ctx, c.UserID)
		if err != nil {
			if errors.Cause(err) == ErrNotMember {
				return nil
			}
			return errors.Wrap(err, "getting membership")
		}
		if c.GuildID != "" && c.GuildID != m.GuildID {
			return nil
		}
		if g, err = svc.repo.GetGuild(ctx, m.GuildID); err != nil {
			return err
		}
		// re-read under the guild lock
		if m, err = svc.repo.GetMember(ctx, g.ID, c.UserID); err != nil {
			return err
		}

		prevLevel := g.Level
		g.XP += c.XP
		g.Treasury += c.Gold
		g.Level = LevelForXP(g.XP)
		g.UpdatedAt = core.Now()
		if g, err = svc.repo.UpdateGuild(ctx, g); err != nil {
			return errors.Wrap(err, "updating guild")
		}

		m.ContributedXP += c.XP
		m.ContributedGold += c.Gold
		if _, err = svc.repo.UpdateMember(ctx, m); err != nil {
			return errors.Wrap(err, "updating member")
		}

		if c.Reason != "" {
			typ := c.Type
			if typ == "" {
				typ = ActivityQuestCompleted
			}
			if err = svc.logActivity(ctx, g.ID, c.UserID, typ, c.Reason, c.XP); err != nil {
				return err
			}
		}
		if g.Level > prevLevel {
			return svc.levelUp(ctx, g)
		}
		return nil
	})
	return g, err
}

// AddXP adds XP to a guild directly, leveling it up as needed.
func (svc *Service) AddXP(ctx context.Context, guildID string, amount int) (Guild, error) {
	if amount <= 0 {
		return Guild{}, core.NewInvalidError("amount must be positive")
	}
	var g Guild
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if g, err = svc.repo.GetGuild(ctx, guildID); err != nil {
			return err
		}
		prevLevel := g.Level
		g.XP += amount
		g.Level = LevelForXP(g.XP)
		g.UpdatedAt = core.Now()
		if g, err = svc.repo.UpdateGuild(ctx, g); err != nil {
			return errors.Wrap(err, "updating guild")
		}
		if g.Level > prevLevel {
			return svc.levelUp(ctx, g)
		}
		return nil
	})
	return g, err
}

func (svc *Service) levelUp(ctx context.Context, g Guild) error {
	if err := svc.logActivity(ctx, g.ID, "", ActivityLevelUp, fmt.Sprintf("Guild reached level %d", g.Level), g.Level); err != nil {
		return err
	}
	members, err := svc.repo.QueryMembers(ctx, g.ID)
	if err != nil {
		return errors.Wrap(err, "querying members")
	}
	for _, m := range members {
		_, err = svc.notifier.Notify(ctx, notification.NewNotification{
			UserID:  m.UserID,
			Type:    notification.TypeGuild,
			Title:   "Guild level up!",
			Message: fmt.Sprintf("%s reached level %d", g.Name, g.Level),
			Data:    map[string]interface{}{"guild_id": g.ID, "level": g.Level},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Membership returns the user's guild membership, ErrNotMember if they have none.
func (svc *Service) Membership(ctx context.Context, userID string) (Member, error) {
	return svc.repo.GetMembership(ctx, userID)
}

// Bonus returns the highest percentage of the benefit type unlocked by the user's guild, 0 without a guild.
func (svc *Service) Bonus(ctx context.Context, userID string, typ BenefitType) (int, error) {
	m, err := svc.repo.GetMembership(ctx, userID)
	if err != nil {
		if errors.Cause(err) == ErrNotMember {
			return 0, nil
		}
		return 0, errors.Wrap(err, "getting membership")
	}
	g, err := svc.repo.GetGuild(ctx, m.GuildID)
	if err != nil {
		return 0, err
	}
	return BenefitValue(g.Level, typ), nil
}

func (svc *Service) Activities(ctx context.Context, guildID string, page core.Page) ([]Activity, error) {
	if _, err := svc.repo.GetGuild(ctx, guildID); err != nil {
		return nil, err
	}
	page.Clean()
	return svc.repo.QueryActivities(ctx, guildID, page)
}

func (svc *Service) PostMessage(ctx context.Context, userID, guildID string, nm NewMessage) (Message, error) {
	if _, err := svc.repo.GetMember(ctx, guildID, userID); err != nil {
		return Message{}, err
	}
	return svc.repo.CreateMessage(ctx, Message{
		GuildID:   guildID,
		UserID:    userID,
		Content:   nm.Content,
		CreatedAt: core.Now(),
	})
}

// Messages returns the guild chat, visible to members only.
func (svc *Service) Messages(ctx context.Context, userID, guildID string, page core.Page) ([]Message, error) {
	if _, err := svc.repo.GetMember(ctx, guildID, userID); err != nil {
		return nil, err
	}
	page.Clean()
	return svc.repo.QueryMessages(ctx, guildID, page)
}

func (svc *Service) checkNotInGuild(ctx context.Context, userID string) error {
	_, err := svc.repo.GetMembership(ctx, userID)
	switch {
	case err == nil:
		return ErrAlreadyInGuild
	case errors.Cause(err) == ErrNotMember:
		return nil
	default:
		return errors.Wrap(err, "getting membership")
	}
}

func (svc *Service) requireRank(ctx context.Context, guildID, userID string, min Role) (Member, error) {
	m, err := svc.repo.GetMember(ctx, guildID, userID)
	if err != nil {
		return Member{}, err
	}
	if m.Role.rank() < min.rank() {
		return Member{}, ErrInsufficientRank
	}
	return m, nil
}

func (svc *Service) logActivity(ctx context.Context, guildID, userID string, typ ActivityType, msg string, amount int) error {
	_, err := svc.repo.CreateActivity(ctx, Activity{
		GuildID:   guildID,
		UserID:    userID,
		Type:      typ,
		Message:   msg,
		Amount:    amount,
		CreatedAt: core.Now(),
	})
	return errors.Wrap(err, "logging guild activity")
}

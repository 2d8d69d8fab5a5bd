package inmemdb

import (
	"context"
	"strings"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/guild"
)

var roleOrder = map[guild.Role]int{guild.RoleLeader: 0, guild.RoleOfficer: 1, guild.RoleMember: 2}

type guildRepository struct {
	db *DB
}

var _ guild.Repository = (*guildRepository)(nil)

func NewGuildRepository(db *DB) *guildRepository {
	return &guildRepository{db: db}
}

func withCount(t *tables, g guild.Guild) guild.Guild {
	g.MemberCount = 0
	for _, m := range t.members {
		if m.GuildID == g.ID {
			g.MemberCount++
		}
	}
	return g
}

func (repo *guildRepository) CreateGuild(ctx context.Context, g guild.Guild) (guild.Guild, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		for _, other := range t.guilds {
			if strings.EqualFold(other.Name, g.Name) {
				return guild.ErrNameTaken
			}
		}
		g.ID = newID()
		g.MemberCount = 0
		t.guilds[g.ID] = g
		return nil
	})
	return g, err
}

func (repo *guildRepository) GetGuild(ctx context.Context, id string) (guild.Guild, error) {
	var g guild.Guild
	err := repo.db.read(ctx, func(t *tables) error {
		var ok bool
		if g, ok = t.guilds[id]; !ok {
			return guild.ErrNotFound
		}
		g = withCount(t, g)
		return nil
	})
	return g, err
}

func (repo *guildRepository) QueryGuilds(ctx context.Context, filter guild.QueryFilter, page core.Page) ([]guild.Guild, error) {
	var res []guild.Guild
	err := repo.db.read(ctx, func(t *tables) error {
		for _, g := range t.guilds {
			if filter.PublicOnly && !g.IsPublic {
				continue
			}
			if filter.Search != "" && !contains(g.Name, filter.Search) && !contains(g.Description, filter.Search) {
				continue
			}
			res = append(res, withCount(t, g))
		}
		return nil
	})
	orderBy(res, nil, nil, func(a, b guild.Guild) bool {
		if a.XP != b.XP {
			return a.XP > b.XP
		}
		return a.Name < b.Name
	})
	return paginate(res, page), err
}

func (repo *guildRepository) UpdateGuild(ctx context.Context, g guild.Guild) (guild.Guild, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		orig, ok := t.guilds[g.ID]
		if !ok {
			return guild.ErrNotFound
		}
		g.Name = orig.Name
		g.CreatedAt = orig.CreatedAt
		t.guilds[g.ID] = g
		g = withCount(t, g)
		return nil
	})
	return g, err
}

func (repo *guildRepository) DeleteGuild(ctx context.Context, id string) error {
	return repo.db.write(ctx, func(t *tables) error {
		if _, ok := t.guilds[id]; !ok {
			return guild.ErrNotFound
		}
		delete(t.guilds, id)
		for uid, m := range t.members {
			if m.GuildID == id {
				delete(t.members, uid)
			}
		}
		activities := t.guildActivities[:0:0]
		for _, a := range t.guildActivities {
			if a.GuildID != id {
				activities = append(activities, a)
			}
		}
		t.guildActivities = activities
		messages := t.guildMessages[:0:0]
		for _, m := range t.guildMessages {
			if m.GuildID != id {
				messages = append(messages, m)
			}
		}
		t.guildMessages = messages
		return nil
	})
}

func (repo *guildRepository) AddMember(ctx context.Context, m guild.Member) (guild.Member, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		if _, ok := t.members[m.UserID]; ok {
			return guild.ErrAlreadyInGuild
		}
		t.members[m.UserID] = m
		return nil
	})
	return m, err
}

func (repo *guildRepository) GetMember(ctx context.Context, guildID, userID string) (guild.Member, error) {
	var m guild.Member
	err := repo.db.read(ctx, func(t *tables) error {
		var ok bool
		if m, ok = t.members[userID]; !ok || m.GuildID != guildID {
			return guild.ErrNotMember
		}
		return nil
	})
	return m, err
}

func (repo *guildRepository) GetMembership(ctx context.Context, userID string) (guild.Member, error) {
	var m guild.Member
	err := repo.db.read(ctx, func(t *tables) error {
		var ok bool
		if m, ok = t.members[userID]; !ok {
			return guild.ErrNotMember
		}
		return nil
	})
	return m, err
}

func (repo *guildRepository) QueryMembers(ctx context.Context, guildID string) ([]guild.Member, error) {
	var res []guild.Member
	err := repo.db.read(ctx, func(t *tables) error {
		for _, m := range t.members {
			if m.GuildID == guildID {
				res = append(res, m)
			}
		}
		return nil
	})
	orderBy(res, nil, nil, func(a, b guild.Member) bool {
		if roleOrder[a.Role] != roleOrder[b.Role] {
			return roleOrder[a.Role] < roleOrder[b.Role]
		}
		return a.JoinedAt.Before(b.JoinedAt)
	})
	return res, err
}

func (repo *guildRepository) UpdateMember(ctx context.Context, m guild.Member) (guild.Member, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		orig, ok := t.members[m.UserID]
		if !ok || orig.GuildID != m.GuildID {
			return guild.ErrNotMember
		}
		m.JoinedAt = orig.JoinedAt
		t.members[m.UserID] = m
		return nil
	})
	return m, err
}

func (repo *guildRepository) RemoveMember(ctx context.Context, guildID, userID string) error {
	return repo.db.write(ctx, func(t *tables) error {
		if m, ok := t.members[userID]; !ok || m.GuildID != guildID {
			return guild.ErrNotMember
		}
		delete(t.members, userID)
		return nil
	})
}

func (repo *guildRepository) CreateActivity(ctx context.Context, a guild.Activity) (guild.Activity, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		a.ID = newID()
		t.guildActivities = append(t.guildActivities, a)
		return nil
	})
	return a, err
}

func (repo *guildRepository) QueryActivities(ctx context.Context, guildID string, page core.Page) ([]guild.Activity, error) {
	var res []guild.Activity
	err := repo.db.read(ctx, func(t *tables) error {
		for i := len(t.guildActivities) - 1; i >= 0; i-- {
			if t.guildActivities[i].GuildID == guildID {
				res = append(res, t.guildActivities[i])
			}
		}
		return nil
	})
	return paginate(res, page), err
}

func (repo *guildRepository) CreateMessage(ctx context.Context, m guild.Message) (guild.Message, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		m.ID = newID()
		t.guildMessages = append(t.guildMessages, m)
		return nil
	})
	return m, err
}

func (repo *guildRepository) QueryMessages(ctx context.Context, guildID string, page core.Page) ([]guild.Message, error) {
	var res []guild.Message
	err := repo.db.read(ctx, func(t *tables) error {
		for i := len(t.guildMessages) - 1; i >= 0; i-- {
			if t.guildMessages[i].GuildID == guildID {
				res = append(res, t.guildMessages[i])
			}
		}
		return nil
	})
	return paginate(res, page), err
}

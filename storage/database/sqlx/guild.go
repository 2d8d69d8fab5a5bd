package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/guild"
)

type guildRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Motto       string    `db:"motto"`
	LeaderID    string    `db:"leader_id"`
	IsPublic    bool      `db:"is_public"`
	MaxMembers  int       `db:"max_members"`
	MemberCount int       `db:"member_count"`
	Level       int       `db:"level"`
	XP          int       `db:"xp"`
	Treasury    int       `db:"treasury"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func toGuildRow(g guild.Guild) guildRow {
	return guildRow{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		Motto:       g.Motto,
		LeaderID:    g.LeaderID,
		IsPublic:    g.IsPublic,
		MaxMembers:  g.MaxMembers,
		Level:       g.Level,
		XP:          g.XP,
		Treasury:    g.Treasury,
		CreatedAt:   g.CreatedAt.UTC(),
		UpdatedAt:   g.UpdatedAt.UTC(),
	}
}

func (r guildRow) guild() guild.Guild {
	return guild.Guild{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Motto:       r.Motto,
		LeaderID:    r.LeaderID,
		IsPublic:    r.IsPublic,
		MaxMembers:  r.MaxMembers,
		MemberCount: r.MemberCount,
		Level:       r.Level,
		XP:          r.XP,
		Treasury:    r.Treasury,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type memberRow struct {
	GuildID         string    `db:"guild_id"`
	UserID          string    `db:"user_id"`
	Role            string    `db:"role"`
	ContributedXP   int       `db:"contributed_xp"`
	ContributedGold int       `db:"contributed_gold"`
	JoinedAt        time.Time `db:"joined_at"`
}

func (r memberRow) member() guild.Member {
	return guild.Member{
		GuildID:         r.GuildID,
		UserID:          r.UserID,
		Role:            guild.Role(r.Role),
		ContributedXP:   r.ContributedXP,
		ContributedGold: r.ContributedGold,
		JoinedAt:        r.JoinedAt.UTC(),
	}
}

type activityRow struct {
	ID        string      `db:"id"`
	GuildID   string      `db:"guild_id"`
	UserID    null.String `db:"user_id"`
	Type      string      `db:"type"`
	Message   string      `db:"message"`
	Amount    int         `db:"amount"`
	CreatedAt time.Time   `db:"created_at"`
}

type messageRow struct {
	ID        string    `db:"id"`
	GuildID   string    `db:"guild_id"`
	UserID    string    `db:"user_id"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
}

const (
	guildSelect = `
		SELECT g.id, g.name, g.description, g.motto, g.leader_id, g.is_public, g.max_members, g.level, g.xp,
			g.treasury, g.created_at, g.updated_at,
			(SELECT COUNT(*) FROM guild_member m WHERE m.guild_id = g.id) AS member_count
		FROM guild g`
	memberColumns = `guild_id, user_id, role, contributed_xp, contributed_gold, joined_at`
	// leaders first, then officers, then by seniority
	memberOrder = ` ORDER BY CASE role WHEN 'LEADER' THEN 0 WHEN 'OFFICER' THEN 1 ELSE 2 END, joined_at`
)

type guildRepository struct {
	*Store
}

var _ guild.Repository = (*guildRepository)(nil)

func NewGuildRepository(s *Store) *guildRepository {
	return &guildRepository{Store: s}
}

func (repo guildRepository) CreateGuild(ctx context.Context, g guild.Guild) (guild.Guild, error) {
	g.ID = uuid.New().String()
	g.MemberCount = 0
	_, err := repo.named(ctx, `
		INSERT INTO guild (id, name, description, motto, leader_id, is_public, max_members, level, xp, treasury, created_at, updated_at)
		VALUES (:id, :name, :description, :motto, :leader_id, :is_public, :max_members, :level, :xp, :treasury, :created_at, :updated_at)`,
		toGuildRow(g))
	if err != nil {
		if isUniqueViolation(err) {
			return guild.Guild{}, guild.ErrNameTaken
		}
		return guild.Guild{}, errors.Wrap(err, "inserting guild")
	}
	return g, nil
}

func (repo guildRepository) GetGuild(ctx context.Context, id string) (guild.Guild, error) {
	if !validID(id) {
		return guild.Guild{}, guild.ErrNotFound
	}
	if _, ok := txFrom(ctx); ok {
		// lock before counting members so the count below sees joins committed while waiting
		var locked string
		if err := repo.get(ctx, &locked, `SELECT id FROM guild WHERE id = ?`+forUpdate(ctx), id); err != nil {
			return guild.Guild{}, trapNoRows(err, guild.ErrNotFound, "locking guild")
		}
	}
	var r guildRow
	if err := repo.get(ctx, &r, guildSelect+` WHERE g.id = ?`, id); err != nil {
		return guild.Guild{}, trapNoRows(err, guild.ErrNotFound, "getting guild")
	}
	return r.guild(), nil
}

func (repo guildRepository) QueryGuilds(ctx context.Context, qf guild.QueryFilter, page core.Page) ([]guild.Guild, error) {
	var f filter
	if qf.PublicOnly {
		f.and("g.is_public")
	}
	if qf.Search != "" {
		val := like(qf.Search)
		f.and("(g.name ILIKE ? OR g.description ILIKE ?)", val, val)
	}

	var rows []guildRow
	q := guildSelect + f.where() + ` ORDER BY g.xp DESC, g.name` + f.page(page)
	if err := repo.selectx(ctx, &rows, q, f.args...); err != nil {
		return nil, errors.Wrap(err, "querying guilds")
	}
	res := make([]guild.Guild, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.guild())
	}
	return res, nil
}

func (repo guildRepository) UpdateGuild(ctx context.Context, g guild.Guild) (guild.Guild, error) {
	n, err := repo.named(ctx, `
		UPDATE guild SET
			description = :description, motto = :motto, leader_id = :leader_id, is_public = :is_public,
			max_members = :max_members, level = :level, xp = :xp, treasury = :treasury, updated_at = :updated_at
		WHERE id = :id`,
		toGuildRow(g))
	if err = mustAffect(n, err, guild.ErrNotFound, "updating guild"); err != nil {
		return guild.Guild{}, err
	}
	return repo.GetGuild(ctx, g.ID)
}

func (repo guildRepository) DeleteGuild(ctx context.Context, id string) error {
	if !validID(id) {
		return guild.ErrNotFound
	}
	n, err := repo.execx(ctx, `DELETE FROM guild WHERE id = ?`, id)
	return mustAffect(n, err, guild.ErrNotFound, "deleting guild")
}

func (repo guildRepository) AddMember(ctx context.Context, m guild.Member) (guild.Member, error) {
	_, err := repo.execx(ctx,
		`INSERT INTO guild_member (`+memberColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		m.GuildID, m.UserID, string(m.Role), m.ContributedXP, m.ContributedGold, m.JoinedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return guild.Member{}, guild.ErrAlreadyInGuild
		}
		return guild.Member{}, errors.Wrap(err, "inserting guild member")
	}
	return m, nil
}

func (repo guildRepository) GetMember(ctx context.Context, guildID, userID string) (guild.Member, error) {
	if !validID(guildID) || !validID(userID) {
		return guild.Member{}, guild.ErrNotMember
	}
	var r memberRow
	err := repo.get(ctx, &r, `SELECT `+memberColumns+` FROM guild_member WHERE guild_id = ? AND user_id = ?`+forUpdate(ctx), guildID, userID)
	if err != nil {
		return guild.Member{}, trapNoRows(err, guild.ErrNotMember, "getting guild member")
	}
	return r.member(), nil
}

func (repo guildRepository) GetMembership(ctx context.Context, userID string) (guild.Member, error) {
	if !validID(userID) {
		return guild.Member{}, guild.ErrNotMember
	}
	var r memberRow
	if err := repo.get(ctx, &r, `SELECT `+memberColumns+` FROM guild_member WHERE user_id = ?`, userID); err != nil {
		return guild.Member{}, trapNoRows(err, guild.ErrNotMember, "getting membership")
	}
	return r.member(), nil
}

func (repo guildRepository) QueryMembers(ctx context.Context, guildID string) ([]guild.Member, error) {
	if !validID(guildID) {
		return nil, nil
	}
	var rows []memberRow
	if err := repo.selectx(ctx, &rows, `SELECT `+memberColumns+` FROM guild_member WHERE guild_id = ?`+memberOrder, guildID); err != nil {
		return nil, errors.Wrap(err, "querying guild members")
	}
	res := make([]guild.Member, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.member())
	}
	return res, nil
}

func (repo guildRepository) UpdateMember(ctx context.Context, m guild.Member) (guild.Member, error) {
	var joinedAt time.Time
	err := repo.get(ctx, &joinedAt, `
		UPDATE guild_member SET role = ?, contributed_xp = ?, contributed_gold = ?
		WHERE guild_id = ? AND user_id = ?
		RETURNING joined_at`,
		string(m.Role), m.ContributedXP, m.ContributedGold, m.GuildID, m.UserID)
	if err != nil {
		return guild.Member{}, trapNoRows(err, guild.ErrNotMember, "updating guild member")
	}
	m.JoinedAt = joinedAt.UTC()
	return m, nil
}

func (repo guildRepository) RemoveMember(ctx context.Context, guildID, userID string) error {
	if !validID(guildID) || !validID(userID) {
		return guild.ErrNotMember
	}
	n, err := repo.execx(ctx, `DELETE FROM guild_member WHERE guild_id = ? AND user_id = ?`, guildID, userID)
	return mustAffect(n, err, guild.ErrNotMember, "removing guild member")
}

func (repo guildRepository) CreateActivity(ctx context.Context, a guild.Activity) (guild.Activity, error) {
	a.ID = uuid.New().String()
	_, err := repo.named(ctx, `
		INSERT INTO guild_activity (id, guild_id, user_id, type, message, amount, created_at)
		VALUES (:id, :guild_id, :user_id, :type, :message, :amount, :created_at)`,
		activityRow{
			ID:        a.ID,
			GuildID:   a.GuildID,
			UserID:    nullString(a.UserID),
			Type:      string(a.Type),
			Message:   a.Message,
			Amount:    a.Amount,
			CreatedAt: a.CreatedAt.UTC(),
		})
	if err != nil {
		return guild.Activity{}, errors.Wrap(err, "inserting guild activity")
	}
	return a, nil
}

func (repo guildRepository) QueryActivities(ctx context.Context, guildID string, page core.Page) ([]guild.Activity, error) {
	var f filter
	f.and("guild_id = ?", guildID)
	var rows []activityRow
	q := `SELECT id, guild_id, user_id, type, message, amount, created_at FROM guild_activity` +
		f.where() + ` ORDER BY created_at DESC, id` + f.page(page)
	if err := repo.selectx(ctx, &rows, q, f.args...); err != nil {
		return nil, errors.Wrap(err, "querying guild activities")
	}
	res := make([]guild.Activity, 0, len(rows))
	for _, r := range rows {
		res = append(res, guild.Activity{
			ID:        r.ID,
			GuildID:   r.GuildID,
			UserID:    r.UserID.String,
			Type:      guild.ActivityType(r.Type),
			Message:   r.Message,
			Amount:    r.Amount,
			CreatedAt: r.CreatedAt.UTC(),
		})
	}
	return res, nil
}

func (repo guildRepository) CreateMessage(ctx context.Context, m guild.Message) (guild.Message, error) {
	m.ID = uuid.New().String()
	_, err := repo.named(ctx, `
		INSERT INTO guild_message (id, guild_id, user_id, content, created_at)
		VALUES (:id, :guild_id, :user_id, :content, :created_at)`,
		messageRow{ID: m.ID, GuildID: m.GuildID, UserID: m.UserID, Content: m.Content, CreatedAt: m.CreatedAt.UTC()})
	if err != nil {
		return guild.Message{}, errors.Wrap(err, "inserting guild message")
	}
	return m, nil
}

func (repo guildRepository) QueryMessages(ctx context.Context, guildID string, page core.Page) ([]guild.Message, error) {
	var f filter
	f.and("guild_id = ?", guildID)
	var rows []messageRow
	q := `SELECT id, guild_id, user_id, content, created_at FROM guild_message` +
		f.where() + ` ORDER BY created_at DESC, id` + f.page(page)
	if err := repo.selectx(ctx, &rows, q, f.args...); err != nil {
		return nil, errors.Wrap(err, "querying guild messages")
	}
	res := make([]guild.Message, 0, len(rows))
	for _, r := range rows {
		res = append(res, guild.Message{ID: r.ID, GuildID: r.GuildID, UserID: r.UserID, Content: r.Content, CreatedAt: r.CreatedAt.UTC()})
	}
	return res, nil
}

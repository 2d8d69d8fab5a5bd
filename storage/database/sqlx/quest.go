package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/quest"
)

type questRow struct {
	ID            string      `db:"id"`
	Title         string      `db:"title"`
	Description   string      `db:"description"`
	Category      string      `db:"category"`
	Difficulty    string      `db:"difficulty"`
	RequiredLevel int         `db:"required_level"`
	XPReward      int         `db:"xp_reward"`
	MoneyReward   int         `db:"money_reward"`
	Status        string      `db:"status"`
	GuildID       null.String `db:"guild_id"`
	CreatedBy     string      `db:"created_by"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
}

func toQuestRow(q quest.Quest) questRow {
	return questRow{
		ID:            q.ID,
		Title:         q.Title,
		Description:   q.Description,
		Category:      q.Category,
		Difficulty:    string(q.Difficulty),
		RequiredLevel: q.RequiredLevel,
		XPReward:      q.XPReward,
		MoneyReward:   q.MoneyReward,
		Status:        string(q.Status),
		GuildID:       nullString(q.GuildID),
		CreatedBy:     q.CreatedBy,
		CreatedAt:     q.CreatedAt.UTC(),
		UpdatedAt:     q.UpdatedAt.UTC(),
	}
}

func (r questRow) quest() quest.Quest {
	return quest.Quest{
		ID:            r.ID,
		Title:         r.Title,
		Description:   r.Description,
		Category:      r.Category,
		Difficulty:    quest.Difficulty(r.Difficulty),
		RequiredLevel: r.RequiredLevel,
		XPReward:      r.XPReward,
		MoneyReward:   r.MoneyReward,
		Status:        quest.Status(r.Status),
		GuildID:       r.GuildID.String,
		CreatedBy:     r.CreatedBy,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

type questProgressRow struct {
	ID          string    `db:"id"`
	QuestID     string    `db:"quest_id"`
	UserID      string    `db:"user_id"`
	Status      string    `db:"status"`
	Progress    int       `db:"progress"`
	AcceptedAt  time.Time `db:"accepted_at"`
	CompletedAt null.Time `db:"completed_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r questProgressRow) progress() quest.Progress {
	return quest.Progress{
		ID:          r.ID,
		QuestID:     r.QuestID,
		UserID:      r.UserID,
		Status:      quest.ProgressStatus(r.Status),
		Progress:    r.Progress,
		AcceptedAt:  r.AcceptedAt.UTC(),
		CompletedAt: utc(r.CompletedAt),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

const (
	questColumns         = `id, title, description, category, difficulty, required_level, xp_reward, money_reward, status, guild_id, created_by, created_at, updated_at`
	questProgressColumns = `id, quest_id, user_id, status, progress, accepted_at, completed_at, updated_at`
)

var questOrderings = map[string]string{
	"title":          "title",
	"difficulty":     "CASE difficulty WHEN 'EASY' THEN 0 WHEN 'MEDIUM' THEN 1 WHEN 'HARD' THEN 2 WHEN 'EPIC' THEN 3 ELSE 4 END",
	"required_level": "required_level",
	"xp_reward":      "xp_reward",
	"money_reward":   "money_reward",
	"created_at":     "created_at",
}

type questRepository struct {
	*Store
}

var _ quest.Repository = (*questRepository)(nil)

func NewQuestRepository(s *Store) *questRepository {
	return &questRepository{Store: s}
}

func (repo questRepository) CreateQuest(ctx context.Context, q quest.Quest) (quest.Quest, error) {
	q.ID = uuid.New().String()
	_, err := repo.named(ctx, `
		INSERT INTO quest (`+questColumns+`)
		VALUES (:id, :title, :description, :category, :difficulty, :required_level, :xp_reward, :money_reward, :status,
			:guild_id, :created_by, :created_at, :updated_at)`,
		toQuestRow(q))
	if err != nil {
		return quest.Quest{}, errors.Wrap(err, "inserting quest")
	}
	return q, nil
}

func (repo questRepository) GetQuest(ctx context.Context, id string) (quest.Quest, error) {
	if !validID(id) {
		return quest.Quest{}, quest.ErrNotFound
	}
	var r questRow
	if err := repo.get(ctx, &r, `SELECT `+questColumns+` FROM quest WHERE id = ?`, id); err != nil {
		return quest.Quest{}, trapNoRows(err, quest.ErrNotFound, "getting quest")
	}
	return r.quest(), nil
}

func (repo questRepository) QueryQuests(ctx context.Context, qf quest.QueryFilter, ordering []core.DBOrdering, page core.Page) ([]quest.Quest, error) {
	var f filter
	if qf.IDs != nil {
		f.and("id::text = ANY(?)", pq.Array(qf.IDs))
	}
	if qf.Search != "" {
		val := like(qf.Search)
		f.and("(title ILIKE ? OR description ILIKE ?)", val, val)
	}
	if qf.Category != "" {
		f.and("LOWER(category) = LOWER(?)", qf.Category)
	}
	if qf.Difficulty != "" {
		f.and("difficulty = ?", string(qf.Difficulty))
	}
	if qf.Status != "" {
		f.and("status = ?", string(qf.Status))
	}
	if qf.GuildID != "" {
		f.and("guild_id::text = ?", qf.GuildID)
	}
	if qf.MaxLevel > 0 {
		f.and("required_level <= ?", qf.MaxLevel)
	}

	var rows []questRow
	q := `SELECT ` + questColumns + ` FROM quest` + f.where() + orderBy(ordering, questOrderings, "created_at DESC") + f.page(page)
	if err := repo.selectx(ctx, &rows, q, f.args...); err != nil {
		return nil, errors.Wrap(err, "querying quests")
	}
	res := make([]quest.Quest, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.quest())
	}
	return res, nil
}

func (repo questRepository) UpdateQuest(ctx context.Context, q quest.Quest) (quest.Quest, error) {
	var created struct {
		CreatedBy string    `db:"created_by"`
		CreatedAt time.Time `db:"created_at"`
	}
	r := toQuestRow(q)
	err := repo.get(ctx, &created, `
		UPDATE quest SET
			title = ?, description = ?, category = ?, difficulty = ?, required_level = ?, xp_reward = ?,
			money_reward = ?, status = ?, guild_id = ?, updated_at = ?
		WHERE id = ?
		RETURNING created_by, created_at`,
		r.Title, r.Description, r.Category, r.Difficulty, r.RequiredLevel, r.XPReward,
		r.MoneyReward, r.Status, r.GuildID, r.UpdatedAt, r.ID)
	if err != nil {
		return quest.Quest{}, trapNoRows(err, quest.ErrNotFound, "updating quest")
	}
	q.CreatedBy = created.CreatedBy
	q.CreatedAt = created.CreatedAt.UTC()
	return q, nil
}

func (repo questRepository) DeleteQuest(ctx context.Context, id string) error {
	if !validID(id) {
		return quest.ErrNotFound
	}
	n, err := repo.execx(ctx, `DELETE FROM quest WHERE id = ?`, id)
	return mustAffect(n, err, quest.ErrNotFound, "deleting quest")
}

func (repo questRepository) GetProgress(ctx context.Context, questID, userID string) (quest.Progress, error) {
	if !validID(questID) {
		return quest.Progress{}, quest.ErrProgressNotFound
	}
	var r questProgressRow
	err := repo.get(ctx, &r,
		`SELECT `+questProgressColumns+` FROM quest_progress WHERE quest_id = ? AND user_id = ?`+forUpdate(ctx),
		questID, userID)
	if err != nil {
		return quest.Progress{}, trapNoRows(err, quest.ErrProgressNotFound, "getting quest progress")
	}
	return r.progress(), nil
}

func (repo questRepository) SaveProgress(ctx context.Context, p quest.Progress) (quest.Progress, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	var id string
	err := repo.get(ctx, &id, `
		INSERT INTO quest_progress (`+questProgressColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (quest_id, user_id) DO UPDATE SET
			status = EXCLUDED.status, progress = EXCLUDED.progress, accepted_at = EXCLUDED.accepted_at,
			completed_at = EXCLUDED.completed_at, updated_at = EXCLUDED.updated_at
		RETURNING id`,
		p.ID, p.QuestID, p.UserID, string(p.Status), p.Progress, p.AcceptedAt.UTC(), nullTime(p.CompletedAt), p.UpdatedAt.UTC())
	if err != nil {
		return quest.Progress{}, errors.Wrap(err, "saving quest progress")
	}
	p.ID = id
	return p, nil
}

func (repo questRepository) QueryUserProgress(ctx context.Context, userID string, status quest.ProgressStatus) ([]quest.Progress, error) {
	var f filter
	f.and("user_id = ?", userID)
	if status != "" {
		f.and("status = ?", string(status))
	}
	var rows []questProgressRow
	q := `SELECT ` + questProgressColumns + ` FROM quest_progress` + f.where() + ` ORDER BY updated_at DESC, id`
	if err := repo.selectx(ctx, &rows, q, f.args...); err != nil {
		return nil, errors.Wrap(err, "querying quest progress")
	}
	res := make([]quest.Progress, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.progress())
	}
	return res, nil
}

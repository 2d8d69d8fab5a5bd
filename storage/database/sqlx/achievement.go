package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/edurpg/edurpg/core/achievement"
	"github.com/edurpg/edurpg/core/item"
)

type achievementRow struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	Description   string    `db:"description"`
	Type          string    `db:"type"`
	Category      string    `db:"category"`
	Icon          string    `db:"icon"`
	Rarity        string    `db:"rarity"`
	Target        int       `db:"target"`
	XPReward      int       `db:"xp_reward"`
	MoneyReward   int       `db:"money_reward"`
	AvailableFrom null.Time `db:"available_from"`
	AvailableTo   null.Time `db:"available_to"`
	SortOrder     int       `db:"sort_order"`
	IsActive      bool      `db:"is_active"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func toAchievementRow(a achievement.Achievement) achievementRow {
	return achievementRow{
		ID:            a.ID,
		Name:          a.Name,
		Description:   a.Description,
		Type:          string(a.Type),
		Category:      string(a.Category),
		Icon:          a.Icon,
		Rarity:        string(a.Rarity),
		Target:        a.Target,
		XPReward:      a.XPReward,
		MoneyReward:   a.MoneyReward,
		AvailableFrom: nullTime(a.AvailableFrom),
		AvailableTo:   nullTime(a.AvailableTo),
		SortOrder:     a.SortOrder,
		IsActive:      a.IsActive,
		CreatedAt:     a.CreatedAt.UTC(),
		UpdatedAt:     a.UpdatedAt.UTC(),
	}
}

func (r achievementRow) achievement() achievement.Achievement {
	return achievement.Achievement{
		ID:            r.ID,
		Name:          r.Name,
		Description:   r.Description,
		Type:          achievement.Type(r.Type),
		Category:      achievement.Category(r.Category),
		Icon:          r.Icon,
		Rarity:        item.Rarity(r.Rarity),
		Target:        r.Target,
		XPReward:      r.XPReward,
		MoneyReward:   r.MoneyReward,
		AvailableFrom: utc(r.AvailableFrom),
		AvailableTo:   utc(r.AvailableTo),
		SortOrder:     r.SortOrder,
		IsActive:      r.IsActive,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

type awardRow struct {
	ID            string      `db:"id"`
	UserID        string      `db:"user_id"`
	AchievementID string      `db:"achievement_id"`
	AwardedBy     null.String `db:"awarded_by"`
	AwardedAt     time.Time   `db:"awarded_at"`
}

func (r awardRow) award() achievement.Award {
	return achievement.Award{
		ID:            r.ID,
		UserID:        r.UserID,
		AchievementID: r.AchievementID,
		AwardedBy:     r.AwardedBy.String,
		AwardedAt:     r.AwardedAt.UTC(),
	}
}

const (
	achievementColumns = `id, name, description, type, category, icon, rarity, target, xp_reward, money_reward,
		available_from, available_to, sort_order, is_active, created_at, updated_at`
	awardColumns = `id, user_id, achievement_id, awarded_by, awarded_at`
)

type achievementRepository struct {
	*Store
}

var _ achievement.Repository = (*achievementRepository)(nil)

func NewAchievementRepository(s *Store) *achievementRepository {
	return &achievementRepository{Store: s}
}

func (repo achievementRepository) CreateAchievement(ctx context.Context, a achievement.Achievement) (achievement.Achievement, error) {
	a.ID = uuid.New().String()
	_, err := repo.named(ctx, `
		INSERT INTO achievement (`+achievementColumns+`)
		VALUES (:id, :name, :description, :type, :category, :icon, :rarity, :target, :xp_reward, :money_reward,
			:available_from, :available_to, :sort_order, :is_active, :created_at, :updated_at)`,
		toAchievementRow(a))
	if err != nil {
		if isUniqueViolation(err) {
			return achievement.Achievement{}, achievement.ErrDuplicateName
		}
		return achievement.Achievement{}, errors.Wrap(err, "inserting achievement")
	}
	return a, nil
}

func (repo achievementRepository) GetAchievement(ctx context.Context, id string) (achievement.Achievement, error) {
	if !validID(id) {
		return achievement.Achievement{}, achievement.ErrNotFound
	}
	var r achievementRow
	if err := repo.get(ctx, &r, `SELECT `+achievementColumns+` FROM achievement WHERE id = ?`, id); err != nil {
		return achievement.Achievement{}, trapNoRows(err, achievement.ErrNotFound, "getting achievement")
	}
	return r.achievement(), nil
}

func (repo achievementRepository) QueryAchievements(ctx context.Context, activeOnly bool) ([]achievement.Achievement, error) {
	q := `SELECT ` + achievementColumns + ` FROM achievement`
	if activeOnly {
		q += ` WHERE is_active`
	}
	var rows []achievementRow
	if err := repo.selectx(ctx, &rows, q+` ORDER BY sort_order, name`); err != nil {
		return nil, errors.Wrap(err, "querying achievements")
	}
	res := make([]achievement.Achievement, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.achievement())
	}
	return res, nil
}

func (repo achievementRepository) UpdateAchievement(ctx context.Context, a achievement.Achievement) (achievement.Achievement, error) {
	var createdAt time.Time
	r := toAchievementRow(a)
	err := repo.get(ctx, &createdAt, `
		UPDATE achievement SET
			name = ?, description = ?, type = ?, category = ?, icon = ?, rarity = ?, target = ?, xp_reward = ?,
			money_reward = ?, available_from = ?, available_to = ?, sort_order = ?, is_active = ?, updated_at = ?
		WHERE id = ?
		RETURNING created_at`,
		r.Name, r.Description, r.Type, r.Category, r.Icon, r.Rarity, r.Target, r.XPReward,
		r.MoneyReward, r.AvailableFrom, r.AvailableTo, r.SortOrder, r.IsActive, r.UpdatedAt, r.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return achievement.Achievement{}, achievement.ErrDuplicateName
		}
		return achievement.Achievement{}, trapNoRows(err, achievement.ErrNotFound, "updating achievement")
	}
	a.CreatedAt = createdAt.UTC()
	return a, nil
}

func (repo achievementRepository) CreateAward(ctx context.Context, aw achievement.Award) (achievement.Award, error) {
	aw.ID = uuid.New().String()
	// A concurrent insert of the same pair waits for the other transaction, then does nothing.
	n, err := repo.execx(ctx, `
		INSERT INTO achievement_award (`+awardColumns+`) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, achievement_id) DO NOTHING`,
		aw.ID, aw.UserID, aw.AchievementID, nullString(aw.AwardedBy), aw.AwardedAt.UTC())
	if err != nil {
		return achievement.Award{}, errors.Wrap(err, "inserting achievement award")
	}
	if n > 0 {
		return aw, nil
	}
	var r awardRow
	err = repo.get(ctx, &r, `SELECT `+awardColumns+` FROM achievement_award WHERE user_id = ? AND achievement_id = ?`,
		aw.UserID, aw.AchievementID)
	if err != nil {
		return achievement.Award{}, errors.Wrap(err, "getting achievement award")
	}
	return r.award(), achievement.ErrAlreadyUnlocked
}

func (repo achievementRepository) QueryAwards(ctx context.Context, userID string) ([]achievement.Award, error) {
	if !validID(userID) {
		return []achievement.Award{}, nil
	}
	var rows []awardRow
	err := repo.selectx(ctx, &rows,
		`SELECT `+awardColumns+` FROM achievement_award WHERE user_id = ? ORDER BY awarded_at DESC, id`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying achievement awards")
	}
	res := make([]achievement.Award, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.award())
	}
	return res, nil
}

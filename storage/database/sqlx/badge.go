package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/edurpg/edurpg/core/badge"
	"github.com/edurpg/edurpg/core/item"
)

type badgeRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Rarity      string    `db:"rarity"`
	Icon        string    `db:"icon"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r badgeRow) badge() badge.Badge {
	return badge.Badge{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Rarity:      item.Rarity(r.Rarity),
		Icon:        r.Icon,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type userBadgeRow struct {
	ID        string      `db:"id"`
	UserID    string      `db:"user_id"`
	BadgeID   string      `db:"badge_id"`
	AwardedBy null.String `db:"awarded_by"`
	Reason    string      `db:"reason"`
	Pinned    bool        `db:"pinned"`
	AwardedAt time.Time   `db:"awarded_at"`
}

func (r userBadgeRow) userBadge() badge.UserBadge {
	return badge.UserBadge{
		ID:        r.ID,
		UserID:    r.UserID,
		BadgeID:   r.BadgeID,
		AwardedBy: r.AwardedBy.String,
		Reason:    r.Reason,
		Pinned:    r.Pinned,
		AwardedAt: r.AwardedAt.UTC(),
	}
}

const (
	badgeColumns     = `id, name, description, rarity, icon, created_at, updated_at`
	userBadgeColumns = `id, user_id, badge_id, awarded_by, reason, pinned, awarded_at`
)

type badgeRepository struct {
	*Store
}

var _ badge.Repository = (*badgeRepository)(nil)

func NewBadgeRepository(s *Store) *badgeRepository {
	return &badgeRepository{Store: s}
}

func (repo badgeRepository) CreateBadge(ctx context.Context, b badge.Badge) (badge.Badge, error) {
	b.ID = uuid.New().String()
	_, err := repo.execx(ctx,
		`INSERT INTO badge (`+badgeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.Description, string(b.Rarity), b.Icon, b.CreatedAt.UTC(), b.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return badge.Badge{}, badge.ErrNameTaken
		}
		return badge.Badge{}, errors.Wrap(err, "inserting badge")
	}
	return b, nil
}

func (repo badgeRepository) GetBadge(ctx context.Context, id string) (badge.Badge, error) {
	if !validID(id) {
		return badge.Badge{}, badge.ErrNotFound
	}
	var r badgeRow
	if err := repo.get(ctx, &r, `SELECT `+badgeColumns+` FROM badge WHERE id = ?`, id); err != nil {
		return badge.Badge{}, trapNoRows(err, badge.ErrNotFound, "getting badge")
	}
	return r.badge(), nil
}

func (repo badgeRepository) QueryBadges(ctx context.Context) ([]badge.Badge, error) {
	var rows []badgeRow
	if err := repo.selectx(ctx, &rows, `SELECT `+badgeColumns+` FROM badge ORDER BY name`); err != nil {
		return nil, errors.Wrap(err, "querying badges")
	}
	res := make([]badge.Badge, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.badge())
	}
	return res, nil
}

func (repo badgeRepository) UpdateBadge(ctx context.Context, b badge.Badge) (badge.Badge, error) {
	var createdAt time.Time
	err := repo.get(ctx, &createdAt, `
		UPDATE badge SET name = ?, description = ?, rarity = ?, icon = ?, updated_at = ?
		WHERE id = ?
		RETURNING created_at`,
		b.Name, b.Description, string(b.Rarity), b.Icon, b.UpdatedAt.UTC(), b.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return badge.Badge{}, badge.ErrNameTaken
		}
		return badge.Badge{}, trapNoRows(err, badge.ErrNotFound, "updating badge")
	}
	b.CreatedAt = createdAt.UTC()
	return b, nil
}

func (repo badgeRepository) DeleteBadge(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	_, err := repo.execx(ctx, `DELETE FROM badge WHERE id = ?`, id)
	return errors.Wrap(err, "deleting badge")
}

func (repo badgeRepository) CreateUserBadge(ctx context.Context, ub badge.UserBadge) (badge.UserBadge, error) {
	ub.ID = uuid.New().String()
	_, err := repo.named(ctx, `
		INSERT INTO user_badge (`+userBadgeColumns+`)
		VALUES (:id, :user_id, :badge_id, :awarded_by, :reason, :pinned, :awarded_at)`,
		userBadgeRow{
			ID:        ub.ID,
			UserID:    ub.UserID,
			BadgeID:   ub.BadgeID,
			AwardedBy: nullString(ub.AwardedBy),
			Reason:    ub.Reason,
			Pinned:    ub.Pinned,
			AwardedAt: ub.AwardedAt.UTC(),
		})
	if err != nil {
		if isUniqueViolation(err) {
			return badge.UserBadge{}, badge.ErrAlreadyAwarded
		}
		return badge.UserBadge{}, errors.Wrap(err, "inserting user badge")
	}
	return ub, nil
}

func (repo badgeRepository) GetUserBadge(ctx context.Context, userID, badgeID string) (badge.UserBadge, error) {
	if !validID(userID) || !validID(badgeID) {
		return badge.UserBadge{}, badge.ErrNotAwarded
	}
	var r userBadgeRow
	err := repo.get(ctx, &r, `SELECT `+userBadgeColumns+` FROM user_badge WHERE user_id = ? AND badge_id = ?`, userID, badgeID)
	if err != nil {
		return badge.UserBadge{}, trapNoRows(err, badge.ErrNotAwarded, "getting user badge")
	}
	return r.userBadge(), nil
}

func (repo badgeRepository) QueryUserBadges(ctx context.Context, userID string) ([]badge.UserBadge, error) {
	if !validID(userID) {
		return nil, nil
	}
	var rows []userBadgeRow
	err := repo.selectx(ctx, &rows,
		`SELECT `+userBadgeColumns+` FROM user_badge WHERE user_id = ? ORDER BY pinned DESC, awarded_at DESC, id`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying user badges")
	}
	res := make([]badge.UserBadge, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.userBadge())
	}
	return res, nil
}

func (repo badgeRepository) UpdateUserBadge(ctx context.Context, ub badge.UserBadge) (badge.UserBadge, error) {
	n, err := repo.execx(ctx,
		`UPDATE user_badge SET reason = ?, pinned = ? WHERE user_id = ? AND badge_id = ?`,
		ub.Reason, ub.Pinned, ub.UserID, ub.BadgeID)
	if err = mustAffect(n, err, badge.ErrNotAwarded, "updating user badge"); err != nil {
		return badge.UserBadge{}, err
	}
	return ub, nil
}

func (repo badgeRepository) DeleteUserBadge(ctx context.Context, userID, badgeID string) error {
	if !validID(userID) || !validID(badgeID) {
		return nil
	}
	_, err := repo.execx(ctx, `DELETE FROM user_badge WHERE user_id = ? AND badge_id = ?`, userID, badgeID)
	return errors.Wrap(err, "deleting user badge")
}

func (repo badgeRepository) CountPinned(ctx context.Context, userID string) (int, error) {
	if !validID(userID) {
		return 0, nil
	}
	var count int
	err := repo.get(ctx, &count, `SELECT COUNT(*) FROM user_badge WHERE user_id = ? AND pinned`, userID)
	return count, errors.Wrap(err, "counting pinned badges")
}

func (repo badgeRepository) CountHolders(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		BadgeID string `db:"badge_id"`
		Holders int    `db:"holders"`
	}
	if err := repo.selectx(ctx, &rows, `SELECT badge_id, COUNT(*) AS holders FROM user_badge GROUP BY badge_id`); err != nil {
		return nil, errors.Wrap(err, "counting badge holders")
	}
	res := make(map[string]int, len(rows))
	for _, r := range rows {
		res[r.BadgeID] = r.Holders
	}
	return res, nil
}

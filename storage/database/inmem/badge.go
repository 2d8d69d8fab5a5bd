package inmemdb

import (
	"context"
	"strings"

	"github.com/edurpg/edurpg/core/badge"
)

type badgeRepository struct {
	db *DB
}

var _ badge.Repository = (*badgeRepository)(nil)

func NewBadgeRepository(db *DB) *badgeRepository {
	return &badgeRepository{db: db}
}

func (repo *badgeRepository) CreateBadge(ctx context.Context, b badge.Badge) (badge.Badge, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		for _, other := range t.badges {
			if strings.EqualFold(other.Name, b.Name) {
				return badge.ErrNameTaken
			}
		}
		b.ID = newID()
		t.badges[b.ID] = b
		return nil
	})
	return b, err
}

func (repo *badgeRepository) GetBadge(ctx context.Context, id string) (badge.Badge, error) {
	var b badge.Badge
	err := repo.db.read(ctx, func(t *tables) error {
		var ok bool
		if b, ok = t.badges[id]; !ok {
			return badge.ErrNotFound
		}
		return nil
	})
	return b, err
}

func (repo *badgeRepository) QueryBadges(ctx context.Context) ([]badge.Badge, error) {
	var res []badge.Badge
	err := repo.db.read(ctx, func(t *tables) error {
		res = values(t.badges)
		return nil
	})
	orderBy(res, nil, nil, func(a, b badge.Badge) bool { return a.Name < b.Name })
	return res, err
}

func (repo *badgeRepository) UpdateBadge(ctx context.Context, b badge.Badge) (badge.Badge, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		orig, ok := t.badges[b.ID]
		if !ok {
			return badge.ErrNotFound
		}
		for _, other := range t.badges {
			if other.ID != b.ID && strings.EqualFold(other.Name, b.Name) {
				return badge.ErrNameTaken
			}
		}
		b.CreatedAt = orig.CreatedAt
		t.badges[b.ID] = b
		return nil
	})
	return b, err
}

func (repo *badgeRepository) DeleteBadge(ctx context.Context, id string) error {
	return repo.db.write(ctx, func(t *tables) error {
		delete(t.badges, id)
		for k, ub := range t.userBadges {
			if ub.BadgeID == id {
				delete(t.userBadges, k)
			}
		}
		return nil
	})
}

func (repo *badgeRepository) CreateUserBadge(ctx context.Context, ub badge.UserBadge) (badge.UserBadge, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		k := key(ub.UserID, ub.BadgeID)
		if _, ok := t.userBadges[k]; ok {
			return badge.ErrAlreadyAwarded
		}
		ub.ID = newID()
		t.userBadges[k] = ub
		return nil
	})
	return ub, err
}

func (repo *badgeRepository) GetUserBadge(ctx context.Context, userID, badgeID string) (badge.UserBadge, error) {
	var ub badge.UserBadge
	err := repo.db.read(ctx, func(t *tables) error {
		var ok bool
		if ub, ok = t.userBadges[key(userID, badgeID)]; !ok {
			return badge.ErrNotAwarded
		}
		return nil
	})
	return ub, err
}

func (repo *badgeRepository) QueryUserBadges(ctx context.Context, userID string) ([]badge.UserBadge, error) {
	var res []badge.UserBadge
	err := repo.db.read(ctx, func(t *tables) error {
		for _, ub := range t.userBadges {
			if ub.UserID == userID {
				res = append(res, ub)
			}
		}
		return nil
	})
	orderBy(res, nil, nil, func(a, b badge.UserBadge) bool {
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		return a.AwardedAt.After(b.AwardedAt)
	})
	return res, err
}

func (repo *badgeRepository) UpdateUserBadge(ctx context.Context, ub badge.UserBadge) (badge.UserBadge, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		k := key(ub.UserID, ub.BadgeID)
		if _, ok := t.userBadges[k]; !ok {
			return badge.ErrNotAwarded
		}
		t.userBadges[k] = ub
		return nil
	})
	return ub, err
}

func (repo *badgeRepository) DeleteUserBadge(ctx context.Context, userID, badgeID string) error {
	return repo.db.write(ctx, func(t *tables) error {
		delete(t.userBadges, key(userID, badgeID))
		return nil
	})
}

func (repo *badgeRepository) CountPinned(ctx context.Context, userID string) (int, error) {
	var count int
	err := repo.db.read(ctx, func(t *tables) error {
		for _, ub := range t.userBadges {
			if ub.UserID == userID && ub.Pinned {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (repo *badgeRepository) CountHolders(ctx context.Context) (map[string]int, error) {
	res := make(map[string]int)
	err := repo.db.read(ctx, func(t *tables) error {
		for _, ub := range t.userBadges {
			res[ub.BadgeID]++
		}
		return nil
	})
	return res, err
}

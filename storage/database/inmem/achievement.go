package inmemdb

import (
	"context"
	"strings"

	"github.com/edurpg/edurpg/core/achievement"
)

type achievementRepository struct {
	db *DB
}

var _ achievement.Repository = (*achievementRepository)(nil)

func NewAchievementRepository(db *DB) *achievementRepository {
	return &achievementRepository{db: db}
}

func (repo *achievementRepository) CreateAchievement(ctx context.Context, a achievement.Achievement) (achievement.Achievement, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		for _, other := range t.achievements {
			if strings.EqualFold(other.Name, a.Name) {
				return achievement.ErrDuplicateName
			}
		}
		a.ID = newID()
		t.achievements[a.ID] = a
		return nil
	})
	return a, err
}

func (repo *achievementRepository) GetAchievement(ctx context.Context, id string) (achievement.Achievement, error) {
	var a achievement.Achievement
	err := repo.db.read(ctx, func(t *tables) error {
		var ok bool
		if a, ok = t.achievements[id]; !ok {
			return achievement.ErrNotFound
		}
		return nil
	})
	return a, err
}

func (repo *achievementRepository) QueryAchievements(ctx context.Context, activeOnly bool) ([]achievement.Achievement, error) {
	var res []achievement.Achievement
	err := repo.db.read(ctx, func(t *tables) error {
		for _, a := range t.achievements {
			if !activeOnly || a.IsActive {
				res = append(res, a)
			}
		}
		return nil
	})
	orderBy(res, nil, nil, func(a, b achievement.Achievement) bool {
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.Name < b.Name
	})
	return res, err
}

func (repo *achievementRepository) UpdateAchievement(ctx context.Context, a achievement.Achievement) (achievement.Achievement, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		orig, ok := t.achievements[a.ID]
		if !ok {
			return achievement.ErrNotFound
		}
		for _, other := range t.achievements {
			if other.ID != a.ID && strings.EqualFold(other.Name, a.Name) {
				return achievement.ErrDuplicateName
			}
		}
		a.CreatedAt = orig.CreatedAt
		t.achievements[a.ID] = a
		return nil
	})
	return a, err
}

func (repo *achievementRepository) CreateAward(ctx context.Context, aw achievement.Award) (achievement.Award, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		k := key(aw.UserID, aw.AchievementID)
		if prev, ok := t.awards[k]; ok {
			aw = prev
			return achievement.ErrAlreadyUnlocked
		}
		aw.ID = newID()
		t.awards[k] = aw
		return nil
	})
	return aw, err
}

func (repo *achievementRepository) QueryAwards(ctx context.Context, userID string) ([]achievement.Award, error) {
	var res []achievement.Award
	err := repo.db.read(ctx, func(t *tables) error {
		for _, aw := range t.awards {
			if aw.UserID == userID {
				res = append(res, aw)
			}
		}
		return nil
	})
	orderBy(res, nil, nil, func(a, b achievement.Award) bool {
		if !a.AwardedAt.Equal(b.AwardedAt) {
			return a.AwardedAt.After(b.AwardedAt)
		}
		return a.ID < b.ID
	})
	return res, err
}

package inmemdb

import (
	"context"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/reward"
)

type rewardRepository struct {
	db *DB
}

var _ reward.Repository = (*rewardRepository)(nil)

func NewRewardRepository(db *DB) *rewardRepository {
	return &rewardRepository{db: db}
}

func (repo *rewardRepository) CreateReward(ctx context.Context, r reward.Reward) (reward.Reward, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		r.ID = newID()
		t.rewards[r.ID] = r
		return nil
	})
	return r, err
}

func (repo *rewardRepository) GetReward(ctx context.Context, id string) (reward.Reward, error) {
	var r reward.Reward
	err := repo.db.read(ctx, func(t *tables) error {
		var ok bool
		if r, ok = t.rewards[id]; !ok {
			return reward.ErrNotFound
		}
		return nil
	})
	return r, err
}

var (
	rewardFields = map[string]comparer[reward.Reward]{
		"is_featured": func(a, b reward.Reward) int { return cmpBool(a.IsFeatured, b.IsFeatured) },
		"priority":    func(a, b reward.Reward) int { return cmpInt(a.Priority, b.Priority) },
		"created_at":  func(a, b reward.Reward) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
	}
	rewardOrdering = []core.DBOrdering{{Field: "is_featured"}, {Field: "priority"}, {Field: "created_at"}}
)

func (repo *rewardRepository) QueryRewards(ctx context.Context, filter reward.QueryFilter, page core.Page) ([]reward.Reward, error) {
	var res []reward.Reward
	err := repo.db.read(ctx, func(t *tables) error {
		for _, r := range t.rewards {
			switch {
			case filter.Category != "" && r.Category != filter.Category,
				filter.IsActive != nil && r.IsActive != *filter.IsActive,
				filter.IsFeatured != nil && r.IsFeatured != *filter.IsFeatured,
				!filter.AvailableAt.IsZero() && (r.AvailableStock <= 0 || !r.IsAvailableAt(filter.AvailableAt)),
				filter.MaxLevel > 0 && r.LevelRequired > filter.MaxLevel:
				continue
			}
			res = append(res, r)
		}
		return nil
	})
	orderBy(res, rewardOrdering, rewardFields, func(a, b reward.Reward) bool { return a.ID < b.ID })
	return paginate(res, page), err
}

func (repo *rewardRepository) UpdateReward(ctx context.Context, r reward.Reward) (reward.Reward, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		orig, ok := t.rewards[r.ID]
		if !ok {
			return reward.ErrNotFound
		}
		r.CreatedBy = orig.CreatedBy
		r.CreatedAt = orig.CreatedAt
		t.rewards[r.ID] = r
		return nil
	})
	return r, err
}

func (repo *rewardRepository) CreateClaim(ctx context.Context, c reward.Claim) (reward.Claim, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		c.ID = newID()
		t.claims[c.ID] = c
		return nil
	})
	return c, err
}

func (repo *rewardRepository) GetClaim(ctx context.Context, id string) (reward.Claim, error) {
	var c reward.Claim
	err := repo.db.read(ctx, func(t *tables) error {
		var ok bool
		if c, ok = t.claims[id]; !ok {
			return reward.ErrClaimNotFound
		}
		return nil
	})
	return c, err
}

func (repo *rewardRepository) QueryClaims(ctx context.Context, filter reward.ClaimFilter, page core.Page) ([]reward.Claim, error) {
	var res []reward.Claim
	err := repo.db.read(ctx, func(t *tables) error {
		for _, c := range t.claims {
			switch {
			case filter.Status != "" && c.Status != filter.Status,
				filter.UserID != "" && c.UserID != filter.UserID,
				filter.RewardID != "" && c.RewardID != filter.RewardID:
				continue
			}
			res = append(res, c)
		}
		return nil
	})
	oldestFirst := filter.Status == reward.ClaimPending
	orderBy(res, nil, nil, func(a, b reward.Claim) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt) != oldestFirst
		}
		return a.ID < b.ID
	})
	return paginate(res, page), err
}

func (repo *rewardRepository) UpdateClaim(ctx context.Context, c reward.Claim) (reward.Claim, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		orig, ok := t.claims[c.ID]
		if !ok {
			return reward.ErrClaimNotFound
		}
		c.UserID = orig.UserID
		c.RewardID = orig.RewardID
		c.CreatedAt = orig.CreatedAt
		t.claims[c.ID] = c
		return nil
	})
	return c, err
}

package inmemdb

import (
	"context"
	"time"

	"github.com/edurpg/edurpg/core/streak"
)

type streakRepository struct {
	db *DB
}

var _ streak.Repository = (*streakRepository)(nil)

func NewStreakRepository(db *DB) *streakRepository {
	return &streakRepository{db: db}
}

func (repo *streakRepository) GetStreak(ctx context.Context, userID string) (streak.Streak, error) {
	var s streak.Streak
	err := repo.db.read(ctx, func(t *tables) error {
		var ok bool
		if s, ok = t.streaks[userID]; !ok {
			return streak.ErrNotFound
		}
		return nil
	})
	return s, err
}

func (repo *streakRepository) SaveStreak(ctx context.Context, s streak.Streak) (streak.Streak, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		t.streaks[s.UserID] = s
		return nil
	})
	return s, err
}

func (repo *streakRepository) QueryStaleStreaks(ctx context.Context, before time.Time) ([]streak.Streak, error) {
	var res []streak.Streak
	err := repo.db.read(ctx, func(t *tables) error {
		for _, s := range t.streaks {
			if s.CurrentStreak > 0 && s.LastActivityAt.Before(before) {
				res = append(res, s)
			}
		}
		return nil
	})
	return res, err
}

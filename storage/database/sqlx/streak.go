package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/edurpg/edurpg/core/streak"
)

type streakRow struct {
	UserID             string    `db:"user_id"`
	CurrentStreak      int       `db:"current_streak"`
	LongestStreak      int       `db:"longest_streak"`
	TotalParticipation int       `db:"total_participation"`
	LastActivityAt     null.Time `db:"last_activity_at"`
	BrokenAt           null.Time `db:"broken_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

func (r streakRow) streak() streak.Streak {
	return streak.Streak{
		UserID:             r.UserID,
		CurrentStreak:      r.CurrentStreak,
		LongestStreak:      r.LongestStreak,
		TotalParticipation: r.TotalParticipation,
		LastActivityAt:     utc(r.LastActivityAt),
		BrokenAt:           utc(r.BrokenAt),
		UpdatedAt:          r.UpdatedAt.UTC(),
	}
}

const streakColumns = `user_id, current_streak, longest_streak, total_participation, last_activity_at, broken_at, updated_at`

type streakRepository struct {
	*Store
}

var _ streak.Repository = (*streakRepository)(nil)

func NewStreakRepository(s *Store) *streakRepository {
	return &streakRepository{Store: s}
}

func (repo streakRepository) GetStreak(ctx context.Context, userID string) (streak.Streak, error) {
	var r streakRow
	if err := repo.get(ctx, &r, `SELECT `+streakColumns+` FROM streak WHERE user_id = ?`+forUpdate(ctx), userID); err != nil {
		return streak.Streak{}, trapNoRows(err, streak.ErrNotFound, "getting streak")
	}
	return r.streak(), nil
}

func (repo streakRepository) SaveStreak(ctx context.Context, s streak.Streak) (streak.Streak, error) {
	_, err := repo.named(ctx, `
		INSERT INTO streak (`+streakColumns+`)
		VALUES (:user_id, :current_streak, :longest_streak, :total_participation, :last_activity_at, :broken_at, :updated_at)
		ON CONFLICT (user_id) DO UPDATE SET
			current_streak = EXCLUDED.current_streak,
			longest_streak = EXCLUDED.longest_streak,
			total_participation = EXCLUDED.total_participation,
			last_activity_at = EXCLUDED.last_activity_at,
			broken_at = EXCLUDED.broken_at,
			updated_at = EXCLUDED.updated_at`,
		streakRow{
			UserID:             s.UserID,
			CurrentStreak:      s.CurrentStreak,
			LongestStreak:      s.LongestStreak,
			TotalParticipation: s.TotalParticipation,
			LastActivityAt:     nullTime(s.LastActivityAt),
			BrokenAt:           nullTime(s.BrokenAt),
			UpdatedAt:          s.UpdatedAt.UTC(),
		})
	if err != nil {
		return streak.Streak{}, errors.Wrap(err, "saving streak")
	}
	return s, nil
}

func (repo streakRepository) QueryStaleStreaks(ctx context.Context, before time.Time) ([]streak.Streak, error) {
	var rows []streakRow
	err := repo.selectx(ctx, &rows,
		`SELECT `+streakColumns+` FROM streak WHERE current_streak > 0 AND last_activity_at < ? ORDER BY user_id`,
		before.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "querying stale streaks")
	}
	res := make([]streak.Streak, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.streak())
	}
	return res, nil
}

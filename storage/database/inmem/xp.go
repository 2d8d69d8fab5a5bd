package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/leaderboard"
	"github.com/edurpg/edurpg/core/progression"
	"github.com/edurpg/edurpg/core/xp"
)

type xpRepository struct {
	db *DB
}

var _ xp.Repository = (*xpRepository)(nil)

func NewXPRepository(db *DB) *xpRepository {
	return &xpRepository{db: db}
}

func (repo *xpRepository) GetProgress(ctx context.Context, userID string) (xp.Progress, error) {
	var p xp.Progress
	err := repo.db.read(ctx, func(t *tables) error {
		var ok bool
		if p, ok = t.progress[userID]; !ok {
			p = xp.Progress{UserID: userID, Level: progression.MinLevel}
		}
		return nil
	})
	return p, err
}

func (repo *xpRepository) SaveProgress(ctx context.Context, p xp.Progress) (xp.Progress, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		t.progress[p.UserID] = p
		return nil
	})
	return p, err
}

func (repo *xpRepository) CreateEntry(ctx context.Context, e xp.Entry) (xp.Entry, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		e.ID = newID()
		t.xpEntries = append(t.xpEntries, e)
		return nil
	})
	return e, err
}

func (repo *xpRepository) GetEntryByRequestID(ctx context.Context, userID, requestID string) (xp.Entry, error) {
	var res xp.Entry
	err := repo.db.read(ctx, func(t *tables) error {
		for _, e := range t.xpEntries {
			if e.UserID == userID && e.RequestID == requestID {
				res = e
				return nil
			}
		}
		return xp.ErrEntryNotFound
	})
	return res, err
}

// Lock is a no-op: writers are already serialized.
func (repo *xpRepository) Lock(ctx context.Context, key string) error {
	return nil
}

func (repo *xpRepository) QueryEntries(ctx context.Context, userID string, page core.Page) ([]xp.Entry, error) {
	var res []xp.Entry
	err := repo.db.read(ctx, func(t *tables) error {
		for i := len(t.xpEntries) - 1; i >= 0; i-- {
			if t.xpEntries[i].UserID == userID {
				res = append(res, t.xpEntries[i])
			}
		}
		return nil
	})
	return paginate(res, page), err
}

func (repo *xpRepository) SumGranted(ctx context.Context, grantedBy, subjectID string, since time.Time) (int, error) {
	var sum int
	err := repo.db.read(ctx, func(t *tables) error {
		for _, e := range t.xpEntries {
			if e.GrantedBy == grantedBy && e.SubjectID == subjectID && !e.CreatedAt.Before(since) {
				sum += e.BaseAmount
			}
		}
		return nil
	})
	return sum, err
}

type leaderboardRepository struct {
	db *DB
}

var _ leaderboard.Repository = (*leaderboardRepository)(nil)

func NewLeaderboardRepository(db *DB) *leaderboardRepository {
	return &leaderboardRepository{db: db}
}

// ranked returns the progress of existing users, best first.
func (repo *leaderboardRepository) ranked(t *tables) []leaderboard.Entry {
	res := make([]leaderboard.Entry, 0, len(t.progress))
	for _, p := range t.progress {
		usr, ok := t.users[p.UserID]
		if !ok || p.TotalXP <= 0 {
			continue
		}
		res = append(res, leaderboard.Entry{UserID: p.UserID, Username: usr.Username, TotalXP: p.TotalXP, Level: p.Level})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].TotalXP != res[j].TotalXP {
			return res[i].TotalXP > res[j].TotalXP
		}
		return res[i].UserID < res[j].UserID
	})
	return res
}

func (repo *leaderboardRepository) QueryTop(ctx context.Context, n int) ([]leaderboard.Entry, error) {
	var res []leaderboard.Entry
	err := repo.db.read(ctx, func(t *tables) error {
		res = repo.ranked(t)
		if len(res) > n {
			res = res[:n]
		}
		for i := range res {
			res[i].Rank = i + 1
		}
		return nil
	})
	return res, err
}

func (repo *leaderboardRepository) GetRank(ctx context.Context, userID string) (leaderboard.Entry, error) {
	var res leaderboard.Entry
	err := repo.db.read(ctx, func(t *tables) error {
		usr, ok := t.users[userID]
		if !ok {
			return leaderboard.ErrNotFound
		}
		p, ok := t.progress[userID]
		if !ok {
			p = xp.Progress{UserID: userID, Level: progression.MinLevel}
		}
		res = leaderboard.Entry{Rank: 1, UserID: userID, Username: usr.Username, TotalXP: p.TotalXP, Level: p.Level}
		for _, other := range repo.ranked(t) {
			if other.TotalXP > p.TotalXP {
				res.Rank++
			}
		}
		return nil
	})
	return res, err
}

func (repo *leaderboardRepository) QueryScores(ctx context.Context) ([]leaderboard.Score, error) {
	var res []leaderboard.Score
	err := repo.db.read(ctx, func(t *tables) error {
		for _, e := range repo.ranked(t) {
			res = append(res, leaderboard.Score{UserID: e.UserID, TotalXP: e.TotalXP})
		}
		return nil
	})
	return res, err
}

func (repo *leaderboardRepository) GetEntries(ctx context.Context, userIDs ...string) (map[string]leaderboard.Entry, error) {
	res := make(map[string]leaderboard.Entry, len(userIDs))
	err := repo.db.read(ctx, func(t *tables) error {
		for _, id := range userIDs {
			usr, ok := t.users[id]
			if !ok {
				continue
			}
			e := leaderboard.Entry{UserID: id, Username: usr.Username, Level: progression.MinLevel}
			if p, ok := t.progress[id]; ok {
				e.TotalXP = p.TotalXP
				e.Level = p.Level
			}
			res[id] = e
		}
		return nil
	})
	return res, err
}

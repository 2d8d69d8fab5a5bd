package leaderboard_test

import (
	"context"
	"sort"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/leaderboard"
	"github.com/edurpg/edurpg/core/progression"
	"github.com/edurpg/edurpg/core/xp"
	"github.com/edurpg/edurpg/tests"
)

type memCache struct {
	scores map[string]int
	err    error
}

func newMemCache() *memCache {
	return &memCache{scores: map[string]int{}}
}

func (c *memCache) SetScore(_ context.Context, s leaderboard.Score) error {
	if c.err != nil {
		return c.err
	}
	c.scores[s.UserID] = s.TotalXP
	return nil
}

func (c *memCache) sorted() []leaderboard.Score {
	res := make([]leaderboard.Score, 0, len(c.scores))
	for id, total := range c.scores {
		res = append(res, leaderboard.Score{UserID: id, TotalXP: total})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].TotalXP != res[j].TotalXP {
			return res[i].TotalXP > res[j].TotalXP
		}
		return res[i].UserID < res[j].UserID
	})
	return res
}

func (c *memCache) Top(_ context.Context, n int) ([]leaderboard.Score, error) {
	if c.err != nil {
		return nil, c.err
	}
	res := c.sorted()
	if len(res) > n {
		res = res[:n]
	}
	return res, nil
}

func (c *memCache) Rank(_ context.Context, userID string) (int, leaderboard.Score, bool, error) {
	if c.err != nil {
		return 0, leaderboard.Score{}, false, c.err
	}
	for i, s := range c.sorted() {
		if s.UserID == userID {
			return i + 1, s, true, nil
		}
	}
	return 0, leaderboard.Score{}, false, nil
}

func (c *memCache) Replace(_ context.Context, scores []leaderboard.Score) error {
	if c.err != nil {
		return c.err
	}
	c.scores = map[string]int{}
	for _, s := range scores {
		c.scores[s.UserID] = s.TotalXP
	}
	return nil
}

func setXP(t *testing.T, env *testutil.Env, userID string, total int) {
	t.Helper()
	_, err := env.Repos.XP.SaveProgress(context.Background(), xp.Progress{
		UserID:    userID,
		TotalXP:   total,
		Level:     progression.LevelFromXP(total),
		UpdatedAt: core.Now(),
	})
	require.NoError(t, err)
}

func TestService_database(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.Svc.Leaderboard
	ctx := context.Background()
	ada := env.Student(t, "ada")
	bob := env.Student(t, "bob")
	cy := env.Student(t, "cy")
	newbie := env.Student(t, "newbie")
	setXP(t, env, ada.ID, 900)
	setXP(t, env, bob.ID, 300)
	setXP(t, env, cy.ID, 300)

	top, err := svc.Top(ctx, 0)
	require.NoError(t, err)
	require.Len(t, top, 3, "users without XP are not ranked")
	assert.Equal(t, ada.ID, top[0].UserID)
	assert.Equal(t, "ada", top[0].Username)
	assert.Equal(t, progression.LevelFromXP(900), top[0].Level)
	assert.Equal(t, []int{1, 2, 3}, []int{top[0].Rank, top[1].Rank, top[2].Rank})

	top, err = svc.Top(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	tests := []struct {
		name     string
		userID   string
		wantRank int
		wantXP   int
		wantErr  error
	}{
		{name: "first", userID: ada.ID, wantRank: 1, wantXP: 900},
		{name: "tied", userID: bob.ID, wantRank: 2, wantXP: 300},
		{name: "also tied", userID: cy.ID, wantRank: 2, wantXP: 300},
		{name: "no xp yet", userID: newbie.ID, wantRank: 4},
		{name: "unknown", userID: "nope", wantErr: leaderboard.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := svc.Rank(ctx, tt.userID)
			assert.Equal(t, tt.wantErr, errors.Cause(err))
			assert.Equal(t, tt.wantRank, e.Rank)
			assert.Equal(t, tt.wantXP, e.TotalXP)
		})
	}

	n, err := svc.Rebuild(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing to rebuild without a cache")
}

func TestService_cached(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	cache := newMemCache()
	svc := leaderboard.NewService(env.Repos.Leaderboard, cache, testutil.Logger{})
	ada := env.Student(t, "ada")
	bob := env.Student(t, "bob")
	setXP(t, env, ada.ID, 500)
	setXP(t, env, bob.ID, 200)

	n, err := svc.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	svc.SetScore(ctx, bob.ID, 800)
	cache.scores["ghost"] = 1000

	top, err := svc.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2, "deleted users are skipped")
	assert.Equal(t, leaderboard.Entry{Rank: 1, UserID: bob.ID, Username: "bob", TotalXP: 800, Level: progression.LevelFromXP(200)}, top[0])
	assert.Equal(t, 2, top[1].Rank)

	e, err := svc.Rank(ctx, ada.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, e.Rank)
	assert.Equal(t, 500, e.TotalXP)

	t.Run("falls back to the database", func(t *testing.T) {
		cache.err = errors.New("connection refused")
		defer func() { cache.err = nil }()

		top, err := svc.Top(ctx, 10)
		require.NoError(t, err)
		require.Len(t, top, 2)
		assert.Equal(t, ada.ID, top[0].UserID)

		e, err := svc.Rank(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, e.Rank)
		assert.Equal(t, 200, e.TotalXP)

		_, err = svc.Rebuild(ctx)
		assert.Error(t, err)
	})

	// unknown to the cache: served by the database
	carl := env.Student(t, "carl")
	e, err = svc.Rank(ctx, carl.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, e.Rank)
}

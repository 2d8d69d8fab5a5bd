// Package cachesvc keeps hot data in Redis.
package cachesvc

import (
	"context"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/leaderboard"
)

const leaderboardKey = "edurpg:leaderboard:xp"

// NewClient connects to the configured Redis server; it returns nil when no address is set.
func NewClient(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	if conf.Redis.Address == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

// Leaderboard stores total XP in a sorted set.
type Leaderboard struct {
	client redis.UniversalClient
	key    string
}

var _ leaderboard.Cache = (*Leaderboard)(nil)

func NewLeaderboard(client redis.UniversalClient) *Leaderboard {
	return &Leaderboard{client: client, key: leaderboardKey}
}

// SetScore removes users without XP: they are not ranked.
func (lb *Leaderboard) SetScore(ctx context.Context, s leaderboard.Score) error {
	if s.TotalXP <= 0 {
		return errors.Wrap(lb.client.ZRem(ctx, lb.key, s.UserID).Err(), "removing score")
	}
	err := lb.client.ZAdd(ctx, lb.key, redis.Z{Score: float64(s.TotalXP), Member: s.UserID}).Err()
	return errors.Wrap(err, "setting score")
}

func (lb *Leaderboard) Top(ctx context.Context, n int) ([]leaderboard.Score, error) {
	zs, err := lb.client.ZRevRangeWithScores(ctx, lb.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "reading top scores")
	}
	scores := make([]leaderboard.Score, 0, len(zs))
	for _, z := range zs {
		id, _ := z.Member.(string)
		scores = append(scores, leaderboard.Score{UserID: id, TotalXP: int(z.Score)})
	}
	sortScores(scores)
	return scores, nil
}

// Rank counts the users with strictly more XP, so tied users share a rank.
func (lb *Leaderboard) Rank(ctx context.Context, userID string) (int, leaderboard.Score, bool, error) {
	score, err := lb.client.ZScore(ctx, lb.key, userID).Result()
	switch {
	case err == redis.Nil:
		return 0, leaderboard.Score{}, false, nil
	case err != nil:
		return 0, leaderboard.Score{}, false, errors.Wrap(err, "reading score")
	}
	above, err := lb.client.ZCount(ctx, lb.key, "("+strconv.FormatFloat(score, 'f', -1, 64), "+inf").Result()
	if err != nil {
		return 0, leaderboard.Score{}, false, errors.Wrap(err, "counting better scores")
	}
	return int(above) + 1, leaderboard.Score{UserID: userID, TotalXP: int(score)}, true, nil
}

// Replace builds the new set aside and swaps it in atomically.
func (lb *Leaderboard) Replace(ctx context.Context, scores []leaderboard.Score) error {
	tmp := lb.key + ":rebuild"
	zs := make([]redis.Z, 0, len(scores))
	for _, s := range scores {
		if s.UserID == "" || s.TotalXP <= 0 {
			continue
		}
		zs = append(zs, redis.Z{Score: float64(s.TotalXP), Member: s.UserID})
	}

	_, err := lb.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, tmp)
		if len(zs) == 0 {
			pipe.Del(ctx, lb.key)
			return nil
		}
		pipe.ZAdd(ctx, tmp, zs...)
		pipe.Rename(ctx, tmp, lb.key)
		return nil
	})
	return errors.Wrap(err, "replacing scores")
}

// sortScores orders by XP, highest first, then by user ID like the database does.
func sortScores(scores []leaderboard.Score) {
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].TotalXP != scores[j].TotalXP {
			return scores[i].TotalXP > scores[j].TotalXP
		}
		return scores[i].UserID < scores[j].UserID
	})
}

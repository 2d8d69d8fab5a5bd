// Package leaderboard ranks users by total XP.
package leaderboard

import (
	"context"

	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/core"
)

// ErrNotFound is returned by repositories for unknown users.
var ErrNotFound = core.NewNotFoundError("user not found")

const (
	DefaultTop = 10
	MaxTop     = 100
)

type Entry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	TotalXP  int    `json:"total_xp"`
	Level    int    `json:"level"`
}

// Score is a user's total XP as stored by a Cache.
type Score struct {
	UserID  string
	TotalXP int
}

type (
	// Repository reads rankings from the database.
	Repository interface {
		// QueryTop returns the n best users, highest total first, ties broken by user ID.
		QueryTop(ctx context.Context, n int) ([]Entry, error)
		// GetRank returns the entry of the user; rank is 1 + the number of users with more XP.
		GetRank(ctx context.Context, userID string) (Entry, error)
		// QueryScores returns the total XP of every user who has some.
		QueryScores(ctx context.Context) ([]Score, error)
		// GetEntries returns entries for the given users, without ranks.
		GetEntries(ctx context.Context, userIDs ...string) (map[string]Entry, error)
	}

	// Cache is a fast ranking store, e.g. a sorted set.
	Cache interface {
		SetScore(ctx context.Context, s Score) error
		// Top returns the n best scores, highest first.
		Top(ctx context.Context, n int) ([]Score, error)
		// Rank returns the 1-based rank of the user and its score; ok is false if the user is unknown.
		Rank(ctx context.Context, userID string) (rank int, s Score, ok bool, err error)
		// Replace swaps all scores at once.
		Replace(ctx context.Context, scores []Score) error
	}

	Service struct {
		repo   Repository
		cache  Cache // optional
		logger core.Logger
	}
)

// NewService returns a leaderboard served by the cache when it is not nil, by the database otherwise.
func NewService(repo Repository, cache Cache, logger core.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// SetScore updates the cached score of the user. Failures are only logged: the database stays the source of truth.
func (svc *Service) SetScore(ctx context.Context, userID string, totalXP int) {
	if svc.cache == nil {
		return
	}
	if err := svc.cache.SetScore(ctx, Score{UserID: userID, TotalXP: totalXP}); err != nil {
		svc.logger.Error("leaderboard.SetScore", err, map[string]interface{}{"user_id": userID, "total_xp": totalXP})
	}
}

func (svc *Service) Top(ctx context.Context, n int) ([]Entry, error) {
	if n < 1 {
		n = DefaultTop
	}
	if n > MaxTop {
		n = MaxTop
	}
	if svc.cache != nil {
		entries, err := svc.cachedTop(ctx, n)
		if err == nil {
			return entries, nil
		}
		svc.logger.Warn("leaderboard.Top: falling back to the database", err)
	}
	return svc.repo.QueryTop(ctx, n)
}

func (svc *Service) cachedTop(ctx context.Context, n int) ([]Entry, error) {
	scores, err := svc.cache.Top(ctx, n)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(scores))
	for i, s := range scores {
		ids[i] = s.UserID
	}
	known, err := svc.repo.GetEntries(ctx, ids...)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(scores))
	for _, s := range scores {
		e, ok := known[s.UserID]
		if !ok {
			continue // deleted user
		}
		e.TotalXP = s.TotalXP
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, nil
}

func (svc *Service) Rank(ctx context.Context, userID string) (Entry, error) {
	if svc.cache != nil {
		rank, s, ok, err := svc.cache.Rank(ctx, userID)
		switch {
		case err != nil:
			svc.logger.Warn("leaderboard.Rank: falling back to the database", err)
		case ok:
			known, err := svc.repo.GetEntries(ctx, userID)
			if err != nil {
				return Entry{}, err
			}
			e := known[userID]
			e.UserID = userID
			e.Rank = rank
			e.TotalXP = s.TotalXP
			return e, nil
		}
	}
	return svc.repo.GetRank(ctx, userID)
}

// Rebuild reloads the cache from the database and returns the number of scores loaded.
func (svc *Service) Rebuild(ctx context.Context) (int, error) {
	if svc.cache == nil {
		return 0, nil
	}
	scores, err := svc.repo.QueryScores(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "querying scores")
	}
	if err := svc.cache.Replace(ctx, scores); err != nil {
		return 0, errors.Wrap(err, "replacing cached scores")
	}
	return len(scores), nil
}

// Package streak tracks consecutive days of activity per user.
package streak

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/notification"
	"github.com/edurpg/edurpg/core/progression"
)

// ErrNotFound is returned by repositories for users without any recorded activity.
var ErrNotFound = core.NewNotFoundError("streak not found")

// notifyBrokenFrom is the smallest lost streak users are told about.
const notifyBrokenFrom = 3

type Status string

const (
	StatusStarted   Status = "STARTED"
	StatusSameDay   Status = "SAME_DAY"
	StatusContinued Status = "CONTINUED"
	StatusBroken    Status = "BROKEN"
)

type Streak struct {
	UserID             string    `json:"user_id"`
	CurrentStreak      int       `json:"current_streak"`
	LongestStreak      int       `json:"longest_streak"`
	TotalParticipation int       `json:"total_participation"`
	LastActivityAt     time.Time `json:"last_activity_at,omitempty"`
	BrokenAt           time.Time `json:"broken_at,omitempty"`
	UpdatedAt          time.Time `json:"updated_at,omitempty"`
}

// Result is the outcome of recording an activity.
type Result struct {
	Streak         Streak                  `json:"streak"`
	Status         Status                  `json:"status"`
	PreviousStreak int                     `json:"previous_streak"`
	Multiplier     float64                 `json:"multiplier"`
	NewMilestones  []progression.Milestone `json:"new_milestones,omitempty"`
}

type Info struct {
	Streak        Streak                 `json:"streak"`
	Multiplier    float64                `json:"multiplier"`
	NextMilestone *progression.Milestone `json:"next_milestone,omitempty"`
	ActiveToday   bool                   `json:"active_today"`
}

type (
	Repository interface {
		GetStreak(ctx context.Context, userID string) (Streak, error)
		// SaveStreak creates or replaces the user's streak.
		SaveStreak(ctx context.Context, s Streak) (Streak, error)
		// QueryStaleStreaks returns running streaks whose last activity is before the given time.
		QueryStaleStreaks(ctx context.Context, before time.Time) ([]Streak, error)
	}

	Service struct {
		repo     Repository
		tx       core.Transactor
		notifier notification.Notifier
		loc      *time.Location
	}
)

func NewService(repo Repository, tx core.Transactor, notifier notification.Notifier, conf *core.Config) *Service {
	return &Service{repo: repo, tx: tx, notifier: notifier, loc: conf.Location()}
}

// Advance applies an activity at now to s.
func Advance(s Streak, now time.Time, loc *time.Location) Result {
	res := Result{PreviousStreak: s.CurrentStreak}

	switch {
	case s.LastActivityAt.IsZero():
		s.CurrentStreak = 1
		s.TotalParticipation++
		res.Status = StatusStarted
	default:
		switch days := core.DaysBetween(s.LastActivityAt, now, loc); {
		case days <= 0:
			s.TotalParticipation++
			res.Status = StatusSameDay
		case days == 1:
			s.CurrentStreak++
			s.TotalParticipation++
			res.Status = StatusContinued
			res.NewMilestones = progression.MilestonesReached(res.PreviousStreak, s.CurrentStreak)
		default:
			s.CurrentStreak = 1
			s.TotalParticipation++
			s.BrokenAt = now
			res.Status = StatusBroken
		}
	}

	s.LastActivityAt = now
	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}
	s.UpdatedAt = now

	res.Streak = s
	res.Multiplier = progression.StreakMultiplier(s.CurrentStreak)
	return res
}

// RecordActivity registers today's activity for the user and reports streak changes & reached milestones.
// Milestone rewards are paid by the caller.
func (svc *Service) RecordActivity(ctx context.Context, userID string) (Result, error) {
	var res Result
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		s, err := svc.repo.GetStreak(ctx, userID)
		if err != nil {
			if errors.Cause(err) != ErrNotFound {
				return errors.Wrap(err, "getting streak")
			}
			s = Streak{UserID: userID}
		}

		res = Advance(s, core.Now(), svc.loc)
		if res.Streak, err = svc.repo.SaveStreak(ctx, res.Streak); err != nil {
			return errors.Wrap(err, "saving streak")
		}
		return svc.notify(ctx, res)
	})
	return res, err
}

func (svc *Service) notify(ctx context.Context, res Result) error {
	var nn notification.NewNotification
	switch res.Status {
	case StatusContinued:
		nn = notification.NewNotification{
			Title:   fmt.Sprintf("%d day streak!", res.Streak.CurrentStreak),
			Message: fmt.Sprintf("Keep it going! Your rewards multiplier is now x%.2f", res.Multiplier),
		}
		if len(res.NewMilestones) > 0 {
			m := res.NewMilestones[len(res.NewMilestones)-1]
			nn.Title = fmt.Sprintf("Streak milestone: %d days!", m.Days)
		}
	case StatusBroken:
		if res.PreviousStreak < notifyBrokenFrom {
			return nil
		}
		nn = notification.NewNotification{
			Title:   "Streak lost",
			Message: fmt.Sprintf("Your %d day streak was broken. A new one starts today!", res.PreviousStreak),
		}
	default:
		return nil
	}
	nn.UserID = res.Streak.UserID
	nn.Type = notification.TypeStreak
	nn.Data = map[string]interface{}{"streak": res.Streak.CurrentStreak, "previous": res.PreviousStreak}
	_, err := svc.notifier.Notify(ctx, nn)
	return err
}

func (svc *Service) Get(ctx context.Context, userID string) (Info, error) {
	s, err := svc.repo.GetStreak(ctx, userID)
	if err != nil {
		if errors.Cause(err) != ErrNotFound {
			return Info{}, errors.Wrap(err, "getting streak")
		}
		s = Streak{UserID: userID}
	}

	now := core.Now()
	info := Info{Streak: s, Multiplier: 1}
	if !s.LastActivityAt.IsZero() {
		days := core.DaysBetween(s.LastActivityAt, now, svc.loc)
		info.ActiveToday = days <= 0
		if days > 1 {
			// not reset yet by maintenance, but already lost
			info.Streak.CurrentStreak = 0
		}
	}
	info.Multiplier = progression.StreakMultiplier(info.Streak.CurrentStreak)
	if m, ok := progression.NextMilestone(info.Streak.CurrentStreak); ok {
		info.NextMilestone = &m
	}
	return info, nil
}

// ResetBroken zeroes every streak without activity since before yesterday. It returns how many were reset.
func (svc *Service) ResetBroken(ctx context.Context) (int, error) {
	now := core.Now()
	yesterday := core.StartOfDay(now, svc.loc).In(svc.loc).AddDate(0, 0, -1).UTC()

	var count int
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		stale, err := svc.repo.QueryStaleStreaks(ctx, yesterday)
		if err != nil {
			return errors.Wrap(err, "querying stale streaks")
		}
		for _, s := range stale {
			prev := s.CurrentStreak
			s.CurrentStreak = 0
			s.BrokenAt = now
			s.UpdatedAt = now
			if _, err = svc.repo.SaveStreak(ctx, s); err != nil {
				return errors.Wrap(err, "saving streak")
			}
			count++
			if prev < notifyBrokenFrom {
				continue
			}
			_, err = svc.notifier.Notify(ctx, notification.NewNotification{
				UserID:  s.UserID,
				Type:    notification.TypeStreak,
				Title:   "Streak lost",
				Message: fmt.Sprintf("Your %d day streak was broken. Come back to start a new one!", prev),
				Data:    map[string]interface{}{"streak": 0, "previous": prev},
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return count, err
}

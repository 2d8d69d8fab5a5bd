// Package teacherstats measures how much each teacher motivates students, from the jobs, quests & XP they hand out.
package teacherstats

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/user"
)

var (
	ErrNotTeacher    = core.NewNotFoundError("teacher not found")
	ErrInvalidPeriod = core.NewInvalidError("period must be one of week, month, all")
)

type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// Motivation points per activity.
const (
	PointsJobCreated     = 10
	PointsJobCompletion  = 25
	PointsQuestCreated   = 15
	PointsQuestCompleted = 20
)

// Milestone is a lifetime threshold worth bonus motivation points.
type Milestone struct {
	Kind      string `json:"kind"`
	Threshold int    `json:"threshold"`
	Points    int    `json:"points"`
}

var (
	jobMilestones = []Milestone{
		{Kind: "jobs_created", Threshold: 1, Points: 50},
		{Kind: "jobs_created", Threshold: 10, Points: 100},
		{Kind: "jobs_created", Threshold: 50, Points: 250},
		{Kind: "jobs_created", Threshold: 100, Points: 500},
		{Kind: "jobs_created", Threshold: 250, Points: 1000},
	}
	completionMilestones = []Milestone{
		{Kind: "completions", Threshold: 10, Points: 100},
		{Kind: "completions", Threshold: 50, Points: 300},
		{Kind: "completions", Threshold: 100, Points: 600},
	}
)

// Counters are raw activity figures for one teacher over a period.
type Counters struct {
	TeacherID        string `json:"teacher_id" db:"teacher_id"`
	Name             string `json:"name" db:"name"`
	JobsCreated      int    `json:"jobs_created" db:"jobs_created"`
	JobsClosed       int    `json:"jobs_closed" db:"jobs_closed"`
	JobCompletions   int    `json:"job_completions" db:"job_completions"`
	QuestsCreated    int    `json:"quests_created" db:"quests_created"`
	QuestCompletions int    `json:"quest_completions" db:"quest_completions"`
	StudentsHelped   int    `json:"students_helped" db:"students_helped"`
	XPAwarded        int    `json:"xp_awarded" db:"xp_awarded"`
	GoldAwarded      int    `json:"gold_awarded" db:"gold_awarded"`
}

type Stats struct {
	Counters
	Period           Period      `json:"period"`
	MotivationPoints int         `json:"motivation_points"`
	Milestones       []Milestone `json:"milestones"`
}

type Ranked struct {
	Stats
	Rank int `json:"rank"`
}

type RankInfo struct {
	Ranked
	Total int `json:"total"`
	// Percentile is the share of teachers ranked at or below this one.
	Percentile float64 `json:"percentile"`
}

type (
	Repository interface {
		// QueryCounters returns the counters of every active teacher, or of teacherID alone when set,
		// counting activity at or after since. A zero since counts everything.
		QueryCounters(ctx context.Context, teacherID string, since time.Time) ([]Counters, error)
	}

	userGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo  Repository
		users userGetter
	}
)

func NewService(repo Repository, users userGetter) *Service {
	return &Service{repo: repo, users: users}
}

// Since returns the start of the period ending now, zero for all time.
func (p Period) Since(now time.Time) (time.Time, error) {
	switch p {
	case PeriodWeek:
		return now.AddDate(0, 0, -7), nil
	case PeriodMonth:
		return now.AddDate(0, -1, 0), nil
	case PeriodAll, "":
		return time.Time{}, nil
	}
	return time.Time{}, ErrInvalidPeriod
}

func (svc *Service) Stats(ctx context.Context, teacherID string, period Period) (Stats, error) {
	u, err := svc.users.GetByID(ctx, teacherID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return Stats{}, ErrNotTeacher
		}
		return Stats{}, errors.Wrap(err, "getting teacher")
	}
	if !u.IsTeacher() {
		return Stats{}, ErrNotTeacher
	}
	all, err := svc.compute(ctx, teacherID, period)
	if err != nil {
		return Stats{}, err
	}
	if len(all) == 0 {
		return newStats(Counters{TeacherID: u.ID, Name: u.Name}, period, nil), nil
	}
	return all[0], nil
}

// Leaderboard ranks teachers by motivation points over the period. Ties share a rank.
func (svc *Service) Leaderboard(ctx context.Context, period Period, limit int) ([]Ranked, error) {
	all, err := svc.compute(ctx, "", period)
	if err != nil {
		return nil, err
	}
	ranked := rank(all)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

func (svc *Service) Rank(ctx context.Context, teacherID string, period Period) (RankInfo, error) {
	if _, err := svc.Stats(ctx, teacherID, period); err != nil {
		return RankInfo{}, err
	}
	all, err := svc.compute(ctx, "", period)
	if err != nil {
		return RankInfo{}, err
	}
	ranked := rank(all)
	for _, r := range ranked {
		if r.TeacherID != teacherID {
			continue
		}
		atOrBelow := 0
		for _, other := range ranked {
			if other.Rank >= r.Rank {
				atOrBelow++
			}
		}
		return RankInfo{
			Ranked:     r,
			Total:      len(ranked),
			Percentile: float64(atOrBelow*10000/len(ranked)) / 100,
		}, nil
	}
	// inactive teachers are left out of the ranking
	return RankInfo{}, ErrNotTeacher
}

func (svc *Service) compute(ctx context.Context, teacherID string, period Period) ([]Stats, error) {
	now := core.Now()
	since, err := period.Since(now)
	if err != nil {
		return nil, err
	}
	if period == "" {
		period = PeriodAll
	}
	counters, err := svc.repo.QueryCounters(ctx, teacherID, since)
	if err != nil {
		return nil, errors.Wrap(err, "querying counters")
	}

	var lifetime map[string]Counters
	if !since.IsZero() {
		all, err := svc.repo.QueryCounters(ctx, teacherID, time.Time{})
		if err != nil {
			return nil, errors.Wrap(err, "querying lifetime counters")
		}
		lifetime = make(map[string]Counters, len(all))
		for _, c := range all {
			lifetime[c.TeacherID] = c
		}
	}

	res := make([]Stats, 0, len(counters))
	for _, c := range counters {
		lc, ok := lifetime[c.TeacherID]
		if !ok {
			lc = c
		}
		res = append(res, newStats(c, period, &lc))
	}
	return res, nil
}

// newStats scores c. Milestones are reached over lifetime, and only add points to all-time stats.
func newStats(c Counters, period Period, lifetime *Counters) Stats {
	if lifetime == nil {
		lifetime = &c
	}
	s := Stats{Counters: c, Period: period, Milestones: reached(*lifetime)}
	s.MotivationPoints = c.JobsCreated*PointsJobCreated +
		c.JobCompletions*PointsJobCompletion +
		c.QuestsCreated*PointsQuestCreated +
		c.QuestCompletions*PointsQuestCompleted
	if period == PeriodAll {
		for _, m := range s.Milestones {
			s.MotivationPoints += m.Points
		}
	}
	return s
}

func reached(c Counters) []Milestone {
	res := []Milestone{}
	for _, m := range jobMilestones {
		if c.JobsCreated >= m.Threshold {
			res = append(res, m)
		}
	}
	completions := c.JobCompletions + c.QuestCompletions
	for _, m := range completionMilestones {
		if completions >= m.Threshold {
			res = append(res, m)
		}
	}
	return res
}

func rank(all []Stats) []Ranked {
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].MotivationPoints != all[j].MotivationPoints {
			return all[i].MotivationPoints > all[j].MotivationPoints
		}
		return all[i].Name < all[j].Name
	})
	res := make([]Ranked, 0, len(all))
	for i, s := range all {
		r := Ranked{Stats: s, Rank: i + 1}
		if i > 0 && s.MotivationPoints == all[i-1].MotivationPoints {
			r.Rank = res[i-1].Rank
		}
		res = append(res, r)
	}
	return res
}

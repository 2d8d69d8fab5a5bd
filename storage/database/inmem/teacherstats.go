package inmemdb

import (
	"context"
	"time"

	"github.com/edurpg/edurpg/core/job"
	"github.com/edurpg/edurpg/core/quest"
	"github.com/edurpg/edurpg/core/teacherstats"
	"github.com/edurpg/edurpg/core/user"
)

type teacherStatsRepository struct {
	db *DB
}

var _ teacherstats.Repository = (*teacherStatsRepository)(nil)

func NewTeacherStatsRepository(db *DB) *teacherStatsRepository {
	return &teacherStatsRepository{db: db}
}

func (repo *teacherStatsRepository) QueryCounters(ctx context.Context, teacherID string, since time.Time) ([]teacherstats.Counters, error) {
	var res []teacherstats.Counters
	err := repo.db.read(ctx, func(t *tables) error {
		counters := make(map[string]*teacherstats.Counters)
		helped := make(map[string]map[string]bool)
		for _, u := range t.users {
			if !u.RoleStartsWith(user.RoleTeacher) {
				continue
			}
			if teacherID != "" && u.ID != teacherID || teacherID == "" && !u.IsActive {
				continue
			}
			counters[u.ID] = &teacherstats.Counters{TeacherID: u.ID, Name: u.Name}
			helped[u.ID] = make(map[string]bool)
		}
		after := func(at time.Time) bool { return !at.IsZero() && !at.Before(since) }

		for _, j := range t.jobs {
			c, ok := counters[j.TeacherID]
			if !ok {
				continue
			}
			if after(j.CreatedAt) {
				c.JobsCreated++
			}
			if j.Status == job.StatusClosed && after(j.ClosedAt) {
				c.JobsClosed++
			}
		}
		for _, a := range t.assignments {
			j := t.jobs[a.JobID]
			c, ok := counters[j.TeacherID]
			if !ok || a.Status != job.AssignmentCompleted || !after(a.CompletedAt) {
				continue
			}
			c.JobCompletions++
			c.XPAwarded += a.XPAwarded
			c.GoldAwarded += a.GoldAwarded
			helped[j.TeacherID][a.StudentID] = true
		}
		for _, q := range t.quests {
			if c, ok := counters[q.CreatedBy]; ok && after(q.CreatedAt) {
				c.QuestsCreated++
			}
		}
		for _, p := range t.questProgress {
			q := t.quests[p.QuestID]
			c, ok := counters[q.CreatedBy]
			if !ok || p.Status != quest.ProgressCompleted || !after(p.CompletedAt) {
				continue
			}
			c.QuestCompletions++
			c.XPAwarded += q.XPReward
			c.GoldAwarded += q.MoneyReward
			helped[q.CreatedBy][p.UserID] = true
		}
		for _, e := range t.xpEntries {
			if c, ok := counters[e.GrantedBy]; ok && after(e.CreatedAt) {
				c.XPAwarded += e.Amount
				helped[e.GrantedBy][e.UserID] = true
			}
		}

		for id, c := range counters {
			c.StudentsHelped = len(helped[id])
			res = append(res, *c)
		}
		return nil
	})
	orderBy(res, nil, nil, func(a, b teacherstats.Counters) bool { return a.TeacherID < b.TeacherID })
	return res, err
}

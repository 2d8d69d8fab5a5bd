package sqlxrepos

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/core/teacherstats"
	"github.com/edurpg/edurpg/core/user"
)

type teacherStatsRepository struct {
	*Store
}

var _ teacherstats.Repository = (*teacherStatsRepository)(nil)

func NewTeacherStatsRepository(s *Store) *teacherStatsRepository {
	return &teacherStatsRepository{Store: s}
}

// teacherCountersQuery counts each teacher's activity. helped holds one row per completed job, completed quest or direct XP grant.
const teacherCountersQuery = `
	WITH teacher AS (
		SELECT id, name FROM "user"
		WHERE EXISTS (SELECT 1 FROM UNNEST(roles) r WHERE r LIKE ?) AND %s
	),
	jobs AS (
		SELECT teacher_id,
			COUNT(*) FILTER (WHERE created_at >= ?) AS created,
			COUNT(*) FILTER (WHERE status = 'CLOSED' AND closed_at >= ?) AS closed
		FROM job GROUP BY teacher_id
	),
	quests AS (
		SELECT created_by AS teacher_id, COUNT(*) AS created
		FROM quest WHERE created_at >= ? GROUP BY created_by
	),
	helped AS (
		SELECT j.teacher_id, a.student_id, a.xp_awarded AS xp, a.gold_awarded AS gold, 'job' AS kind
		FROM job_assignment a JOIN job j ON j.id = a.job_id
		WHERE a.status = 'COMPLETED' AND a.completed_at >= ?
		UNION ALL
		SELECT q.created_by, p.user_id, q.xp_reward, q.money_reward, 'quest'
		FROM quest_progress p JOIN quest q ON q.id = p.quest_id
		WHERE p.status = 'COMPLETED' AND p.completed_at >= ?
		UNION ALL
		SELECT e.granted_by, e.user_id, e.amount, 0, 'grant'
		FROM xp_entry e WHERE e.granted_by IS NOT NULL AND e.created_at >= ?
	),
	help AS (
		SELECT teacher_id,
			COUNT(*) FILTER (WHERE kind = 'job') AS job_completions,
			COUNT(*) FILTER (WHERE kind = 'quest') AS quest_completions,
			COUNT(DISTINCT student_id) AS students_helped,
			COALESCE(SUM(xp), 0) AS xp_awarded,
			COALESCE(SUM(gold), 0) AS gold_awarded
		FROM helped GROUP BY teacher_id
	)
	SELECT t.id AS teacher_id, t.name,
		COALESCE(j.created, 0) AS jobs_created,
		COALESCE(j.closed, 0) AS jobs_closed,
		COALESCE(h.job_completions, 0) AS job_completions,
		COALESCE(q.created, 0) AS quests_created,
		COALESCE(h.quest_completions, 0) AS quest_completions,
		COALESCE(h.students_helped, 0) AS students_helped,
		COALESCE(h.xp_awarded, 0) AS xp_awarded,
		COALESCE(h.gold_awarded, 0) AS gold_awarded
	FROM teacher t
	LEFT JOIN jobs j ON j.teacher_id = t.id
	LEFT JOIN quests q ON q.teacher_id = t.id
	LEFT JOIN help h ON h.teacher_id = t.id
	ORDER BY t.id`

func (repo teacherStatsRepository) QueryCounters(ctx context.Context, teacherID string, since time.Time) ([]teacherstats.Counters, error) {
	since = since.UTC()
	args := []interface{}{user.RoleTeacher + "%"}
	which := "is_active"
	if teacherID != "" {
		if !validID(teacherID) {
			return []teacherstats.Counters{}, nil
		}
		which = "id = ?"
		args = append(args, teacherID)
	}
	args = append(args, since, since, since, since, since, since)

	var res []teacherstats.Counters
	if err := repo.selectx(ctx, &res, fmt.Sprintf(teacherCountersQuery, which), args...); err != nil {
		return nil, errors.Wrap(err, "querying teacher counters")
	}
	return res, nil
}

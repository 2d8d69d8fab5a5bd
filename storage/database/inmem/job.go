package inmemdb

import (
	"context"
	"strings"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/job"
)

type jobRepository struct {
	db *DB
}

var _ job.Repository = (*jobRepository)(nil)

func NewJobRepository(db *DB) *jobRepository {
	return &jobRepository{db: db}
}

func (repo *jobRepository) CreateJob(ctx context.Context, j job.Job) (job.Job, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		j.ID = newID()
		t.jobs[j.ID] = j
		return nil
	})
	return j, err
}

func (repo *jobRepository) GetJob(ctx context.Context, id string) (job.Job, error) {
	var j job.Job
	err := repo.db.read(ctx, func(t *tables) error {
		var ok bool
		if j, ok = t.jobs[id]; !ok {
			return job.ErrNotFound
		}
		return nil
	})
	return j, err
}

var jobFields = map[string]comparer[job.Job]{
	"title":        func(a, b job.Job) int { return strings.Compare(a.Title, b.Title) },
	"xp_reward":    func(a, b job.Job) int { return cmpInt(a.XPReward, b.XPReward) },
	"money_reward": func(a, b job.Job) int { return cmpInt(a.MoneyReward, b.MoneyReward) },
	"created_at":   func(a, b job.Job) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
}

func (repo *jobRepository) QueryJobs(ctx context.Context, filter job.QueryFilter, ordering []core.DBOrdering, page core.Page) ([]job.Job, error) {
	var res []job.Job
	err := repo.db.read(ctx, func(t *tables) error {
		for _, j := range t.jobs {
			switch {
			case filter.IDs != nil && !inSlice(filter.IDs, j.ID),
				filter.Status != "" && j.Status != filter.Status,
				filter.TeacherID != "" && j.TeacherID != filter.TeacherID,
				filter.SubjectID != "" && j.SubjectID != filter.SubjectID,
				filter.Search != "" && !contains(j.Title, filter.Search) && !contains(j.Description, filter.Search):
				continue
			}
			res = append(res, j)
		}
		return nil
	})
	orderBy(res, ordering, jobFields, func(a, b job.Job) bool { return a.CreatedAt.After(b.CreatedAt) })
	return paginate(res, page), err
}

func (repo *jobRepository) UpdateJob(ctx context.Context, j job.Job) (job.Job, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		orig, ok := t.jobs[j.ID]
		if !ok {
			return job.ErrNotFound
		}
		j.TeacherID = orig.TeacherID
		j.CreatedAt = orig.CreatedAt
		t.jobs[j.ID] = j
		return nil
	})
	return j, err
}

func (repo *jobRepository) CreateAssignment(ctx context.Context, a job.Assignment) (job.Assignment, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		k := key(a.JobID, a.StudentID)
		if _, ok := t.assignments[k]; ok {
			return job.ErrAlreadyApplied
		}
		a.ID = newID()
		t.assignments[k] = a
		return nil
	})
	return a, err
}

func (repo *jobRepository) GetAssignment(ctx context.Context, jobID, studentID string) (job.Assignment, error) {
	var a job.Assignment
	err := repo.db.read(ctx, func(t *tables) error {
		var ok bool
		if a, ok = t.assignments[key(jobID, studentID)]; !ok {
			return job.ErrAssignmentNotFound
		}
		return nil
	})
	return a, err
}

func (repo *jobRepository) QueryAssignments(ctx context.Context, jobID string, status job.AssignmentStatus) ([]job.Assignment, error) {
	var res []job.Assignment
	err := repo.db.read(ctx, func(t *tables) error {
		for _, a := range t.assignments {
			if a.JobID == jobID && (status == "" || a.Status == status) {
				res = append(res, a)
			}
		}
		return nil
	})
	orderBy(res, nil, nil, func(a, b job.Assignment) bool { return a.AppliedAt.Before(b.AppliedAt) })
	return res, err
}

func (repo *jobRepository) QueryStudentAssignments(ctx context.Context, studentID string) ([]job.Assignment, error) {
	var res []job.Assignment
	err := repo.db.read(ctx, func(t *tables) error {
		for _, a := range t.assignments {
			if a.StudentID == studentID {
				res = append(res, a)
			}
		}
		return nil
	})
	orderBy(res, nil, nil, func(a, b job.Assignment) bool { return a.AppliedAt.After(b.AppliedAt) })
	return res, err
}

func (repo *jobRepository) UpdateAssignment(ctx context.Context, a job.Assignment) (job.Assignment, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		k := key(a.JobID, a.StudentID)
		orig, ok := t.assignments[k]
		if !ok {
			return job.ErrAssignmentNotFound
		}
		a.ID = orig.ID
		a.AppliedAt = orig.AppliedAt
		t.assignments[k] = a
		return nil
	})
	return a, err
}

package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/job"
)

type jobRow struct {
	ID          string      `db:"id"`
	Title       string      `db:"title"`
	Description string      `db:"description"`
	SubjectID   null.String `db:"subject_id"`
	XPReward    int         `db:"xp_reward"`
	MoneyReward int         `db:"money_reward"`
	MaxStudents int         `db:"max_students"`
	IsTeamJob   bool        `db:"is_team_job"`
	Status      string      `db:"status"`
	TeacherID   string      `db:"teacher_id"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
	ClosedAt    null.Time   `db:"closed_at"`
}

func toJobRow(j job.Job) jobRow {
	return jobRow{
		ID:          j.ID,
		Title:       j.Title,
		Description: j.Description,
		SubjectID:   nullString(j.SubjectID),
		XPReward:    j.XPReward,
		MoneyReward: j.MoneyReward,
		MaxStudents: j.MaxStudents,
		IsTeamJob:   j.IsTeamJob,
		Status:      string(j.Status),
		TeacherID:   j.TeacherID,
		CreatedAt:   j.CreatedAt.UTC(),
		UpdatedAt:   j.UpdatedAt.UTC(),
		ClosedAt:    nullTime(j.ClosedAt),
	}
}

func (r jobRow) job() job.Job {
	return job.Job{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		SubjectID:   r.SubjectID.String,
		XPReward:    r.XPReward,
		MoneyReward: r.MoneyReward,
		MaxStudents: r.MaxStudents,
		IsTeamJob:   r.IsTeamJob,
		Status:      job.Status(r.Status),
		TeacherID:   r.TeacherID,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
		ClosedAt:    utc(r.ClosedAt),
	}
}

type assignmentRow struct {
	ID          string    `db:"id"`
	JobID       string    `db:"job_id"`
	StudentID   string    `db:"student_id"`
	Status      string    `db:"status"`
	XPAwarded   int       `db:"xp_awarded"`
	GoldAwarded int       `db:"gold_awarded"`
	AppliedAt   time.Time `db:"applied_at"`
	DecidedAt   null.Time `db:"decided_at"`
	CompletedAt null.Time `db:"completed_at"`
}

func toAssignmentRow(a job.Assignment) assignmentRow {
	return assignmentRow{
		ID:          a.ID,
		JobID:       a.JobID,
		StudentID:   a.StudentID,
		Status:      string(a.Status),
		XPAwarded:   a.XPAwarded,
		GoldAwarded: a.GoldAwarded,
		AppliedAt:   a.AppliedAt.UTC(),
		DecidedAt:   nullTime(a.DecidedAt),
		CompletedAt: nullTime(a.CompletedAt),
	}
}

func (r assignmentRow) assignment() job.Assignment {
	return job.Assignment{
		ID:          r.ID,
		JobID:       r.JobID,
		StudentID:   r.StudentID,
		Status:      job.AssignmentStatus(r.Status),
		XPAwarded:   r.XPAwarded,
		GoldAwarded: r.GoldAwarded,
		AppliedAt:   r.AppliedAt.UTC(),
		DecidedAt:   utc(r.DecidedAt),
		CompletedAt: utc(r.CompletedAt),
	}
}

const (
	jobColumns        = `id, title, description, subject_id, xp_reward, money_reward, max_students, is_team_job, status, teacher_id, created_at, updated_at, closed_at`
	assignmentColumns = `id, job_id, student_id, status, xp_awarded, gold_awarded, applied_at, decided_at, completed_at`
)

var jobOrderings = map[string]string{
	"title":        "title",
	"xp_reward":    "xp_reward",
	"money_reward": "money_reward",
	"created_at":   "created_at",
}

type jobRepository struct {
	*Store
}

var _ job.Repository = (*jobRepository)(nil)

func NewJobRepository(s *Store) *jobRepository {
	return &jobRepository{Store: s}
}

func (repo jobRepository) CreateJob(ctx context.Context, j job.Job) (job.Job, error) {
	j.ID = uuid.New().String()
	_, err := repo.named(ctx, `
		INSERT INTO job (`+jobColumns+`)
		VALUES (:id, :title, :description, :subject_id, :xp_reward, :money_reward, :max_students, :is_team_job, :status,
			:teacher_id, :created_at, :updated_at, :closed_at)`,
		toJobRow(j))
	if err != nil {
		return job.Job{}, errors.Wrap(err, "inserting job")
	}
	return j, nil
}

func (repo jobRepository) GetJob(ctx context.Context, id string) (job.Job, error) {
	if !validID(id) {
		return job.Job{}, job.ErrNotFound
	}
	var r jobRow
	if err := repo.get(ctx, &r, `SELECT `+jobColumns+` FROM job WHERE id = ?`+forUpdate(ctx), id); err != nil {
		return job.Job{}, trapNoRows(err, job.ErrNotFound, "getting job")
	}
	return r.job(), nil
}

func (repo jobRepository) QueryJobs(ctx context.Context, qf job.QueryFilter, ordering []core.DBOrdering, page core.Page) ([]job.Job, error) {
	var f filter
	if qf.IDs != nil {
		f.and("id::text = ANY(?)", pq.Array(qf.IDs))
	}
	if qf.Status != "" {
		f.and("status = ?", string(qf.Status))
	}
	if qf.TeacherID != "" {
		f.and("teacher_id::text = ?", qf.TeacherID)
	}
	if qf.SubjectID != "" {
		f.and("subject_id = ?", qf.SubjectID)
	}
	if qf.Search != "" {
		val := like(qf.Search)
		f.and("(title ILIKE ? OR description ILIKE ?)", val, val)
	}

	var rows []jobRow
	q := `SELECT ` + jobColumns + ` FROM job` + f.where() + orderBy(ordering, jobOrderings, "created_at DESC") + f.page(page)
	if err := repo.selectx(ctx, &rows, q, f.args...); err != nil {
		return nil, errors.Wrap(err, "querying jobs")
	}
	res := make([]job.Job, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.job())
	}
	return res, nil
}

func (repo jobRepository) UpdateJob(ctx context.Context, j job.Job) (job.Job, error) {
	var created struct {
		TeacherID string    `db:"teacher_id"`
		CreatedAt time.Time `db:"created_at"`
	}
	r := toJobRow(j)
	err := repo.get(ctx, &created, `
		UPDATE job SET
			title = ?, description = ?, subject_id = ?, xp_reward = ?, money_reward = ?, max_students = ?,
			is_team_job = ?, status = ?, updated_at = ?, closed_at = ?
		WHERE id = ?
		RETURNING teacher_id, created_at`,
		r.Title, r.Description, r.SubjectID, r.XPReward, r.MoneyReward, r.MaxStudents,
		r.IsTeamJob, r.Status, r.UpdatedAt, r.ClosedAt, r.ID)
	if err != nil {
		return job.Job{}, trapNoRows(err, job.ErrNotFound, "updating job")
	}
	j.TeacherID = created.TeacherID
	j.CreatedAt = created.CreatedAt.UTC()
	return j, nil
}

func (repo jobRepository) CreateAssignment(ctx context.Context, a job.Assignment) (job.Assignment, error) {
	a.ID = uuid.New().String()
	_, err := repo.named(ctx, `
		INSERT INTO job_assignment (`+assignmentColumns+`)
		VALUES (:id, :job_id, :student_id, :status, :xp_awarded, :gold_awarded, :applied_at, :decided_at, :completed_at)`,
		toAssignmentRow(a))
	if err != nil {
		if isUniqueViolation(err) {
			return job.Assignment{}, job.ErrAlreadyApplied
		}
		return job.Assignment{}, errors.Wrap(err, "inserting job assignment")
	}
	return a, nil
}

func (repo jobRepository) GetAssignment(ctx context.Context, jobID, studentID string) (job.Assignment, error) {
	if !validID(jobID) || !validID(studentID) {
		return job.Assignment{}, job.ErrAssignmentNotFound
	}
	var r assignmentRow
	err := repo.get(ctx, &r,
		`SELECT `+assignmentColumns+` FROM job_assignment WHERE job_id = ? AND student_id = ?`, jobID, studentID)
	if err != nil {
		return job.Assignment{}, trapNoRows(err, job.ErrAssignmentNotFound, "getting job assignment")
	}
	return r.assignment(), nil
}

func (repo jobRepository) queryAssignments(ctx context.Context, f filter, order string) ([]job.Assignment, error) {
	var rows []assignmentRow
	q := `SELECT ` + assignmentColumns + ` FROM job_assignment` + f.where() + order
	if err := repo.selectx(ctx, &rows, q, f.args...); err != nil {
		return nil, errors.Wrap(err, "querying job assignments")
	}
	res := make([]job.Assignment, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.assignment())
	}
	return res, nil
}

func (repo jobRepository) QueryAssignments(ctx context.Context, jobID string, status job.AssignmentStatus) ([]job.Assignment, error) {
	var f filter
	f.and("job_id::text = ?", jobID)
	if status != "" {
		f.and("status = ?", string(status))
	}
	return repo.queryAssignments(ctx, f, ` ORDER BY applied_at, id`)
}

func (repo jobRepository) QueryStudentAssignments(ctx context.Context, studentID string) ([]job.Assignment, error) {
	var f filter
	f.and("student_id::text = ?", studentID)
	return repo.queryAssignments(ctx, f, ` ORDER BY applied_at DESC, id`)
}

func (repo jobRepository) UpdateAssignment(ctx context.Context, a job.Assignment) (job.Assignment, error) {
	var orig struct {
		ID        string    `db:"id"`
		AppliedAt time.Time `db:"applied_at"`
	}
	r := toAssignmentRow(a)
	err := repo.get(ctx, &orig, `
		UPDATE job_assignment SET
			status = ?, xp_awarded = ?, gold_awarded = ?, decided_at = ?, completed_at = ?
		WHERE job_id = ? AND student_id = ?
		RETURNING id, applied_at`,
		r.Status, r.XPAwarded, r.GoldAwarded, r.DecidedAt, r.CompletedAt, r.JobID, r.StudentID)
	if err != nil {
		return job.Assignment{}, trapNoRows(err, job.ErrAssignmentNotFound, "updating job assignment")
	}
	a.ID = orig.ID
	a.AppliedAt = orig.AppliedAt.UTC()
	return a, nil
}

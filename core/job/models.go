package job

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/edurpg/edurpg/core"
)

type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusClosed     Status = "CLOSED"
	StatusCancelled  Status = "CANCELLED"
)

func (s Status) IsActive() bool {
	return s == StatusOpen || s == StatusInProgress
}

type AssignmentStatus string

const (
	AssignmentApplied   AssignmentStatus = "APPLIED"
	AssignmentApproved  AssignmentStatus = "APPROVED"
	AssignmentRejected  AssignmentStatus = "REJECTED"
	AssignmentCompleted AssignmentStatus = "COMPLETED"
)

type Job struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	SubjectID   string `json:"subject_id,omitempty"`
	XPReward    int    `json:"xp_reward"`
	MoneyReward int    `json:"money_reward"`
	MaxStudents int    `json:"max_students"`
	// IsTeamJob makes completing students feed their guilds.
	IsTeamJob bool      `json:"is_team_job"`
	Status    Status    `json:"status"`
	TeacherID string    `json:"teacher_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ClosedAt  time.Time `json:"closed_at,omitempty"`
}

type Assignment struct {
	ID          string           `json:"id"`
	JobID       string           `json:"job_id"`
	StudentID   string           `json:"student_id"`
	Status      AssignmentStatus `json:"status"`
	XPAwarded   int              `json:"xp_awarded"`
	GoldAwarded int              `json:"gold_awarded"`
	AppliedAt   time.Time        `json:"applied_at"`
	DecidedAt   time.Time        `json:"decided_at,omitempty"`
	CompletedAt time.Time        `json:"completed_at,omitempty"`
}

// Details is a job with its assignments.
type Details struct {
	Job
	Assignments []Assignment `json:"assignments"`
}

// StudentJob is a job as seen by an applicant.
type StudentJob struct {
	Job        Job        `json:"job"`
	Assignment Assignment `json:"assignment"`
}

type CloseResult struct {
	Job       Job `json:"job"`
	Completed int `json:"completed"`
	XPEach    int `json:"xp_each"`
	GoldEach  int `json:"gold_each"`
}

type NewJob struct {
	Title       string `json:"title" validate:"required,notblank,min=3,max=100"`
	Description string `json:"description" validate:"max=2000"`
	SubjectID   string `json:"subject_id" validate:"max=64"`
	XPReward    int    `json:"xp_reward" validate:"min=0,max=10000"`
	MoneyReward int    `json:"money_reward" validate:"min=0,max=10000"`
	MaxStudents int    `json:"max_students" validate:"required,min=1,max=100"`
	IsTeamJob   bool   `json:"is_team_job"`
}

func (nj *NewJob) Validate(validate *validator.Validate) error {
	nj.Title = core.CleanString(nj.Title)
	nj.Description = core.CleanString(nj.Description)
	return validate.Struct(nj)
}

type QueryFilter struct {
	IDs       []string `query:"-"`
	Status    Status   `query:"status"`
	TeacherID string   `query:"teacher_id"`
	SubjectID string   `query:"subject_id"`
	Search    string   `query:"search"`
}

var OrderingFields = []string{"title", "xp_reward", "money_reward", "created_at"}

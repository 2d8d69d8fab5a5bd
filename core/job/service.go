// Package job handles teacher posted jobs, student applications and the split of rewards on close.
package job

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/guild"
	"github.com/edurpg/edurpg/core/notification"
	"github.com/edurpg/edurpg/core/user"
	"github.com/edurpg/edurpg/core/wallet"
	"github.com/edurpg/edurpg/core/xp"
)

var (
	ErrNotFound           = core.NewNotFoundError("job not found")
	ErrAssignmentNotFound = core.NewNotFoundError("application not found")
	ErrNotOpen            = core.NewInvalidError("job is not open")
	ErrNotActive          = core.NewInvalidError("job is closed or cancelled")
	ErrJobFull            = core.NewConflictError("job is full")
	ErrAlreadyApplied     = core.NewConflictError("already applied to this job")
	ErrAlreadyDecided     = core.NewConflictError("application already processed")
	ErrNotOwner           = core.NewForbiddenError("only the job teacher or an operator can do this")
)

const (
	teamTreasuryPercent = 5
	teamXPPercent       = 25
)

type (
	Repository interface {
		CreateJob(ctx context.Context, j Job) (Job, error)
		GetJob(ctx context.Context, id string) (Job, error)
		QueryJobs(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Page) ([]Job, error)
		// UpdateJob persists all fields of j but ID, TeacherID & CreatedAt.
		UpdateJob(ctx context.Context, j Job) (Job, error)

		CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		// GetAssignment returns ErrAssignmentNotFound if the student did not apply.
		GetAssignment(ctx context.Context, jobID, studentID string) (Assignment, error)
		// QueryAssignments returns the job's assignments in application order. An empty status matches all.
		QueryAssignments(ctx context.Context, jobID string, status AssignmentStatus) ([]Assignment, error)
		// QueryStudentAssignments returns the student's assignments, newest first.
		QueryStudentAssignments(ctx context.Context, studentID string) ([]Assignment, error)
		UpdateAssignment(ctx context.Context, a Assignment) (Assignment, error)
	}

	xpAwarder interface {
		Award(ctx context.Context, req xp.GrantRequest) (xp.GrantResult, error)
	}

	creditor interface {
		Credit(ctx context.Context, e wallet.Entry) (wallet.Transaction, error)
	}

	contributor interface {
		Contribute(ctx context.Context, c guild.Contribution) (guild.Guild, error)
	}

	Service struct {
		repo     Repository
		tx       core.Transactor
		xp       xpAwarder
		wallet   creditor
		guilds   contributor
		notifier notification.Notifier
	}
)

func NewService(repo Repository, tx core.Transactor, xp xpAwarder, wallet creditor, guilds contributor, notifier notification.Notifier) *Service {
	return &Service{repo: repo, tx: tx, xp: xp, wallet: wallet, guilds: guilds, notifier: notifier}
}

func (svc *Service) Create(ctx context.Context, by user.User, nj NewJob) (Job, error) {
	now := core.Now()
	return svc.repo.CreateJob(ctx, Job{
		Title:       nj.Title,
		Description: nj.Description,
		SubjectID:   nj.SubjectID,
		XPReward:    nj.XPReward,
		MoneyReward: nj.MoneyReward,
		MaxStudents: nj.MaxStudents,
		IsTeamJob:   nj.IsTeamJob,
		Status:      StatusOpen,
		TeacherID:   by.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) List(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Page) ([]Job, error) {
	page.Clean()
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryJobs(ctx, filter, core.FilterOrderings(ordering, OrderingFields...), page)
}

func (svc *Service) Get(ctx context.Context, id string) (Details, error) {
	j, err := svc.repo.GetJob(ctx, id)
	if err != nil {
		return Details{}, err
	}
	assignments, err := svc.repo.QueryAssignments(ctx, id, "")
	if err != nil {
		return Details{}, errors.Wrap(err, "querying assignments")
	}
	return Details{Job: j, Assignments: assignments}, nil
}

func (svc *Service) Apply(ctx context.Context, studentID, jobID string) (Assignment, error) {
	var a Assignment
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		j, err := svc.repo.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if j.Status != StatusOpen {
			return ErrNotOpen
		}
		_, err = svc.repo.GetAssignment(ctx, jobID, studentID)
		switch {
		case err == nil:
			return ErrAlreadyApplied
		case errors.Cause(err) != ErrAssignmentNotFound:
			return errors.Wrap(err, "getting assignment")
		}
		approved, err := svc.repo.QueryAssignments(ctx, jobID, AssignmentApproved)
		if err != nil {
			return errors.Wrap(err, "querying assignments")
		}
		if len(approved) >= j.MaxStudents {
			return ErrJobFull
		}

		a, err = svc.repo.CreateAssignment(ctx, Assignment{
			JobID:     jobID,
			StudentID: studentID,
			Status:    AssignmentApplied,
			AppliedAt: core.Now(),
		})
		if err != nil {
			return errors.Wrap(err, "creating assignment")
		}
		_, err = svc.notifier.Notify(ctx, notification.NewNotification{
			UserID:  j.TeacherID,
			Type:    notification.TypeJob,
			Title:   "New job application",
			Message: fmt.Sprintf("A student applied to %s", j.Title),
			Data:    map[string]interface{}{"job_id": jobID, "student_id": studentID},
		})
		return err
	})
	return a, err
}

// Approve accepts an application. The first approval puts the job in progress.
func (svc *Service) Approve(ctx context.Context, by user.User, jobID, studentID string) (Assignment, error) {
	return svc.decide(ctx, by, jobID, studentID, AssignmentApproved)
}

func (svc *Service) Reject(ctx context.Context, by user.User, jobID, studentID string) (Assignment, error) {
	return svc.decide(ctx, by, jobID, studentID, AssignmentRejected)
}

func (svc *Service) decide(ctx context.Context, by user.User, jobID, studentID string, status AssignmentStatus) (Assignment, error) {
	var a Assignment
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		j, err := svc.getOwned(ctx, by, jobID)
		if err != nil {
			return err
		}
		if !j.Status.IsActive() {
			return ErrNotActive
		}
		if a, err = svc.repo.GetAssignment(ctx, jobID, studentID); err != nil {
			return err
		}
		if a.Status != AssignmentApplied {
			return ErrAlreadyDecided
		}

		if status == AssignmentApproved {
			approved, err := svc.repo.QueryAssignments(ctx, jobID, AssignmentApproved)
			if err != nil {
				return errors.Wrap(err, "querying assignments")
			}
			if len(approved) >= j.MaxStudents {
				return ErrJobFull
			}
			if j.Status == StatusOpen {
				j.Status = StatusInProgress
				j.UpdatedAt = core.Now()
				if _, err = svc.repo.UpdateJob(ctx, j); err != nil {
					return errors.Wrap(err, "updating job")
				}
			}
		}

		a.Status = status
		a.DecidedAt = core.Now()
		if a, err = svc.repo.UpdateAssignment(ctx, a); err != nil {
			return errors.Wrap(err, "updating assignment")
		}

		title := "Application approved"
		if status == AssignmentRejected {
			title = "Application rejected"
		}
		_, err = svc.notifier.Notify(ctx, notification.NewNotification{
			UserID:  studentID,
			Type:    notification.TypeJob,
			Title:   title,
			Message: j.Title,
			Data:    map[string]interface{}{"job_id": jobID, "status": string(status)},
		})
		return err
	})
	return a, err
}

// Close ends the job and splits its rewards evenly between the approved students.
func (svc *Service) Close(ctx context.Context, by user.User, jobID string) (CloseResult, error) {
	var res CloseResult
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		j, err := svc.getOwned(ctx, by, jobID)
		if err != nil {
			return err
		}
		if !j.Status.IsActive() {
			return ErrNotActive
		}
		approved, err := svc.repo.QueryAssignments(ctx, jobID, AssignmentApproved)
		if err != nil {
			return errors.Wrap(err, "querying assignments")
		}

		if n := len(approved); n > 0 {
			res.XPEach = j.XPReward / n
			res.GoldEach = j.MoneyReward / n
		}
		now := core.Now()
		for _, a := range approved {
			if err = svc.reward(ctx, j, a, res.XPEach, res.GoldEach); err != nil {
				return err
			}
			a.Status = AssignmentCompleted
			a.XPAwarded = res.XPEach
			a.GoldAwarded = res.GoldEach
			a.CompletedAt = now
			if _, err = svc.repo.UpdateAssignment(ctx, a); err != nil {
				return errors.Wrap(err, "updating assignment")
			}
			res.Completed++
		}

		j.Status = StatusClosed
		j.ClosedAt = now
		j.UpdatedAt = now
		res.Job, err = svc.repo.UpdateJob(ctx, j)
		return errors.Wrap(err, "updating job")
	})
	return res, err
}

func (svc *Service) reward(ctx context.Context, j Job, a Assignment, xpAmount, gold int) error {
	reqID := "job:" + a.ID
	reason := "Job completed: " + j.Title
	if xpAmount > 0 {
		_, err := svc.xp.Award(ctx, xp.GrantRequest{
			UserID:    a.StudentID,
			Amount:    xpAmount,
			Reason:    reason,
			SubjectID: j.SubjectID,
			Source:    xp.SourceJob,
			RefID:     j.ID,
			RequestID: reqID,
		})
		if err != nil {
			return errors.Wrap(err, "awarding xp")
		}
	}
	if gold > 0 {
		_, err := svc.wallet.Credit(ctx, wallet.Entry{
			UserID:    a.StudentID,
			Amount:    gold,
			Type:      wallet.TxEarned,
			Reason:    reason,
			RefType:   "job",
			RefID:     j.ID,
			RequestID: reqID,
		})
		if err != nil {
			return errors.Wrap(err, "paying job reward")
		}
	}
	if j.IsTeamJob {
		_, err := svc.guilds.Contribute(ctx, guild.Contribution{
			UserID: a.StudentID,
			XP:     core.PercentOf(xpAmount, teamXPPercent),
			Gold:   core.PercentOf(gold, teamTreasuryPercent),
			Reason: reason,
			Type:   guild.ActivityJobCompleted,
		})
		if err != nil {
			return errors.Wrap(err, "contributing to guild")
		}
	}
	_, err := svc.notifier.Notify(ctx, notification.NewNotification{
		UserID:  a.StudentID,
		Type:    notification.TypeJob,
		Title:   "Job completed!",
		Message: fmt.Sprintf("%s: +%d XP, +%d gold", j.Title, xpAmount, gold),
		Data:    map[string]interface{}{"job_id": j.ID, "xp": xpAmount, "gold": gold},
	})
	return err
}

// Cancel stops an active job without paying anyone; applicants are told.
func (svc *Service) Cancel(ctx context.Context, by user.User, jobID string) (Job, error) {
	var j Job
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if j, err = svc.getOwned(ctx, by, jobID); err != nil {
			return err
		}
		if !j.Status.IsActive() {
			return ErrNotActive
		}
		j.Status = StatusCancelled
		j.UpdatedAt = core.Now()
		if j, err = svc.repo.UpdateJob(ctx, j); err != nil {
			return errors.Wrap(err, "updating job")
		}

		assignments, err := svc.repo.QueryAssignments(ctx, jobID, "")
		if err != nil {
			return errors.Wrap(err, "querying assignments")
		}
		for _, a := range assignments {
			if a.Status == AssignmentRejected {
				continue
			}
			_, err = svc.notifier.Notify(ctx, notification.NewNotification{
				UserID:  a.StudentID,
				Type:    notification.TypeJob,
				Title:   "Job cancelled",
				Message: j.Title,
				Data:    map[string]interface{}{"job_id": jobID},
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return j, err
}

// MyJobs returns the jobs the student applied to, with their application.
func (svc *Service) MyJobs(ctx context.Context, studentID string) ([]StudentJob, error) {
	assignments, err := svc.repo.QueryStudentAssignments(ctx, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	if len(assignments) == 0 {
		return []StudentJob{}, nil
	}
	ids := make([]string, 0, len(assignments))
	for _, a := range assignments {
		ids = append(ids, a.JobID)
	}
	byID := make(map[string]Job, len(ids))
	for _, chunk := range core.Chunks(ids) {
		jobs, err := svc.repo.QueryJobs(ctx, QueryFilter{IDs: chunk}, nil, core.Page{Number: 1, Size: len(chunk)})
		if err != nil {
			return nil, errors.Wrap(err, "querying jobs")
		}
		for _, j := range jobs {
			byID[j.ID] = j
		}
	}
	res := make([]StudentJob, 0, len(assignments))
	for _, a := range assignments {
		if j, ok := byID[a.JobID]; ok {
			res = append(res, StudentJob{Job: j, Assignment: a})
		}
	}
	return res, nil
}

func (svc *Service) getOwned(ctx context.Context, by user.User, id string) (Job, error) {
	j, err := svc.repo.GetJob(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if j.TeacherID != by.ID && !by.IsAdmin() {
		return Job{}, ErrNotOwner
	}
	return j, nil
}

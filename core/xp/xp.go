// Package xp grants experience points and keeps each user's total and level.
package xp

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/guild"
	"github.com/edurpg/edurpg/core/notification"
	"github.com/edurpg/edurpg/core/progression"
	"github.com/edurpg/edurpg/core/streak"
	"github.com/edurpg/edurpg/core/user"
	"github.com/edurpg/edurpg/core/wallet"
)

var (
	ErrInvalidAmount  = core.NewInvalidError("amount must be positive")
	ErrBudgetExceeded = core.NewInvalidError("daily XP budget exceeded for this subject")
	// ErrEntryNotFound is returned by repositories when no entry matches a request ID.
	ErrEntryNotFound = core.NewNotFoundError("xp entry not found")
)

type Source string

const (
	SourceManual      Source = "MANUAL"
	SourceQuest       Source = "QUEST"
	SourceJob         Source = "JOB"
	SourceMilestone   Source = "STREAK_MILESTONE"
	SourceAchievement Source = "ACHIEVEMENT"
	SourceSystem      Source = "SYSTEM"
)

// Progress is the XP total & level of a user.
type Progress struct {
	UserID    string    `json:"user_id"`
	TotalXP   int       `json:"total_xp"`
	Level     int       `json:"level"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Entry is a line of the XP audit log.
type Entry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Amount     int       `json:"amount"`
	BaseAmount int       `json:"base_amount"`
	Multiplier float64   `json:"multiplier"`
	Reason     string    `json:"reason"`
	Source     Source    `json:"source"`
	GrantedBy  string    `json:"granted_by,omitempty"`
	SubjectID  string    `json:"subject_id,omitempty"`
	RefID      string    `json:"ref_id,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type GrantRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	Amount    int    `json:"amount" validate:"required,gt=0,max=10000"`
	Reason    string `json:"reason" validate:"required,notblank,max=200"`
	SubjectID string `json:"subject_id" validate:"max=64"`
	RequestID string `json:"request_id" validate:"max=64"`
	Source    Source `json:"-"`
	RefID     string `json:"-"`
}

func (req *GrantRequest) Validate(validate *validator.Validate) error {
	req.Reason = core.CleanString(req.Reason)
	req.SubjectID = core.CleanString(req.SubjectID)
	return validate.Struct(req)
}

type GrantResult struct {
	Entry         Entry                   `json:"entry"`
	Progress      Progress                `json:"progress"`
	PreviousLevel int                     `json:"previous_level"`
	LeveledUp     bool                    `json:"leveled_up"`
	Streak        *streak.Result          `json:"streak,omitempty"`
	Milestones    []progression.Milestone `json:"milestones,omitempty"`
	// Replayed is set when the request ID was already granted; nothing was applied.
	Replayed bool `json:"replayed,omitempty"`
}

type ProgressInfo struct {
	progression.LevelInfo
	Streak streak.Info `json:"streak"`
}

type Budget struct {
	SubjectID string `json:"subject_id"`
	Limit     int    `json:"limit"`
	Used      int    `json:"used"`
	Remaining int    `json:"remaining"`
}

type (
	Repository interface {
		// GetProgress returns the user's progress, a zero level 1 one if there is none.
		GetProgress(ctx context.Context, userID string) (Progress, error)
		SaveProgress(ctx context.Context, p Progress) (Progress, error)
		CreateEntry(ctx context.Context, e Entry) (Entry, error)
		// GetEntryByRequestID returns the user's entry created with requestID, ErrEntryNotFound when there is none.
		GetEntryByRequestID(ctx context.Context, userID, requestID string) (Entry, error)
		// Lock blocks other transactions locking the same key until the current transaction ends.
		Lock(ctx context.Context, key string) error
		// QueryEntries returns the user's entries, newest first.
		QueryEntries(ctx context.Context, userID string, page core.Page) ([]Entry, error)
		// SumGranted sums the base amounts granted by grantedBy in the subject since the given time.
		SumGranted(ctx context.Context, grantedBy, subjectID string, since time.Time) (int, error)
	}

	streakTracker interface {
		RecordActivity(ctx context.Context, userID string) (streak.Result, error)
		Get(ctx context.Context, userID string) (streak.Info, error)
	}

	creditor interface {
		Credit(ctx context.Context, e wallet.Entry) (wallet.Transaction, error)
	}

	bonusProvider interface {
		Bonus(ctx context.Context, userID string, typ guild.BenefitType) (int, error)
	}

	// ScoreSink receives every new XP total.
	ScoreSink interface {
		SetScore(ctx context.Context, userID string, totalXP int)
	}

	Service struct {
		repo     Repository
		tx       core.Transactor
		streaks  streakTracker
		wallet   creditor
		guilds   bonusProvider
		notifier notification.Notifier
		scores   ScoreSink
		budget   int
		loc      *time.Location
	}
)

func NewService(
	repo Repository,
	tx core.Transactor,
	streaks streakTracker,
	wallet creditor,
	guilds bonusProvider,
	notifier notification.Notifier,
	scores ScoreSink,
	conf *core.Config,
) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		streaks:  streaks,
		wallet:   wallet,
		guilds:   guilds,
		notifier: notifier,
		scores:   scores,
		budget:   conf.Game.TeacherDailyXPBudget,
		loc:      conf.Location(),
	}
}

// Grant gives XP on behalf of a staff member. Teachers are bound to a daily budget per subject.
func (svc *Service) Grant(ctx context.Context, by user.User, req GrantRequest) (GrantResult, error) {
	if req.Source == "" {
		req.Source = SourceManual
	}
	return svc.grant(ctx, by.ID, by.IsTeacher() && !by.IsAdmin(), req)
}

// Award gives XP earned through the game itself (quests, jobs, ...). No budget applies.
func (svc *Service) Award(ctx context.Context, req GrantRequest) (GrantResult, error) {
	if req.Source == "" {
		req.Source = SourceSystem
	}
	return svc.grant(ctx, "", false, req)
}

func (svc *Service) grant(ctx context.Context, grantedBy string, budgeted bool, req GrantRequest) (GrantResult, error) {
	if req.Amount <= 0 {
		return GrantResult{}, ErrInvalidAmount
	}

	var res GrantResult
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if req.RequestID != "" {
			if err := svc.repo.Lock(ctx, "xp-request:"+req.UserID+":"+req.RequestID); err != nil {
				return errors.Wrap(err, "locking request id")
			}
			prev, err := svc.repo.GetEntryByRequestID(ctx, req.UserID, req.RequestID)
			if err == nil {
				res.Entry = prev
				res.Replayed = true
				res.Progress, err = svc.repo.GetProgress(ctx, prev.UserID)
				res.PreviousLevel = res.Progress.Level
				return errors.Wrap(err, "getting progress")
			}
			if errors.Cause(err) != ErrEntryNotFound {
				return errors.Wrap(err, "checking request id")
			}
		}

		if budgeted {
			day := core.StartOfDay(core.Now(), svc.loc).Format("2006-01-02")
			if err := svc.repo.Lock(ctx, "xp-budget:"+grantedBy+":"+req.SubjectID+":"+day); err != nil {
				return errors.Wrap(err, "locking budget")
			}
			used, err := svc.usedBudget(ctx, grantedBy, req.SubjectID)
			if err != nil {
				return err
			}
			if used+req.Amount > svc.budget {
				return ErrBudgetExceeded
			}
		}

		st, err := svc.streaks.RecordActivity(ctx, req.UserID)
		if err != nil {
			return errors.Wrap(err, "recording activity")
		}
		res.Streak = &st

		boost, err := svc.guilds.Bonus(ctx, req.UserID, guild.BenefitXPBoost)
		if err != nil {
			return errors.Wrap(err, "getting guild bonus")
		}
		mult := st.Multiplier * (1 + float64(boost)/100)
		amount := progression.ApplyMultiplier(req.Amount, mult)

		now := core.Now()
		res.Entry, err = svc.repo.CreateEntry(ctx, Entry{
			UserID:     req.UserID,
			Amount:     amount,
			BaseAmount: req.Amount,
			Multiplier: math.Round(mult*100) / 100,
			Reason:     req.Reason,
			Source:     req.Source,
			GrantedBy:  grantedBy,
			SubjectID:  req.SubjectID,
			RefID:      req.RefID,
			RequestID:  req.RequestID,
			CreatedAt:  now,
		})
		if err != nil {
			return errors.Wrap(err, "creating xp entry")
		}

		prog, err := svc.repo.GetProgress(ctx, req.UserID)
		if err != nil {
			return errors.Wrap(err, "getting progress")
		}
		res.PreviousLevel = prog.Level
		prog.TotalXP += amount

		for _, m := range st.NewMilestones {
			if err = svc.payMilestone(ctx, req.UserID, m, now); err != nil {
				return err
			}
			prog.TotalXP += m.XP
		}
		res.Milestones = st.NewMilestones

		prog.UserID = req.UserID
		prog.Level = progression.LevelFromXP(prog.TotalXP)
		prog.UpdatedAt = now
		if res.Progress, err = svc.repo.SaveProgress(ctx, prog); err != nil {
			return errors.Wrap(err, "saving progress")
		}
		res.LeveledUp = res.Progress.Level > res.PreviousLevel

		return svc.notifyGrant(ctx, res)
	})
	if err != nil {
		return GrantResult{}, err
	}
	if !res.Replayed {
		svc.scores.SetScore(ctx, res.Progress.UserID, res.Progress.TotalXP)
	}
	return res, nil
}

func (svc *Service) payMilestone(ctx context.Context, userID string, m progression.Milestone, at time.Time) error {
	reason := fmt.Sprintf("%d day streak milestone", m.Days)
	_, err := svc.repo.CreateEntry(ctx, Entry{
		UserID:     userID,
		Amount:     m.XP,
		BaseAmount: m.XP,
		Multiplier: 1,
		Reason:     reason,
		Source:     SourceMilestone,
		CreatedAt:  at,
	})
	if err != nil {
		return errors.Wrap(err, "creating milestone entry")
	}
	if m.Gold > 0 {
		_, err = svc.wallet.Credit(ctx, wallet.Entry{
			UserID:  userID,
			Amount:  m.Gold,
			Type:    wallet.TxEarned,
			Reason:  reason,
			RefType: "streak",
		})
		if err != nil {
			return errors.Wrap(err, "paying milestone gold")
		}
	}
	return nil
}

func (svc *Service) notifyGrant(ctx context.Context, res GrantResult) error {
	userID := res.Progress.UserID
	if res.Entry.Source == SourceManual {
		_, err := svc.notifier.Notify(ctx, notification.NewNotification{
			UserID:  userID,
			Type:    notification.TypeXP,
			Title:   fmt.Sprintf("+%d XP", res.Entry.Amount),
			Message: res.Entry.Reason,
			Data:    map[string]interface{}{"entry_id": res.Entry.ID, "amount": res.Entry.Amount},
		})
		if err != nil {
			return err
		}
	}
	if !res.LeveledUp {
		return nil
	}
	_, err := svc.notifier.Notify(ctx, notification.NewNotification{
		UserID:  userID,
		Type:    notification.TypeLevelUp,
		Title:   "Level up!",
		Message: fmt.Sprintf("You reached level %d", res.Progress.Level),
		Data:    map[string]interface{}{"level": res.Progress.Level, "previous_level": res.PreviousLevel},
	})
	return err
}

func (svc *Service) usedBudget(ctx context.Context, teacherID, subjectID string) (int, error) {
	since := core.StartOfDay(core.Now(), svc.loc)
	used, err := svc.repo.SumGranted(ctx, teacherID, subjectID, since)
	return used, errors.Wrap(err, "summing granted xp")
}

// RemainingBudget returns how much XP the teacher may still grant today in the subject.
func (svc *Service) RemainingBudget(ctx context.Context, teacherID, subjectID string) (Budget, error) {
	used, err := svc.usedBudget(ctx, teacherID, subjectID)
	if err != nil {
		return Budget{}, err
	}
	b := Budget{SubjectID: subjectID, Limit: svc.budget, Used: used, Remaining: svc.budget - used}
	if b.Remaining < 0 {
		b.Remaining = 0
	}
	return b, nil
}

func (svc *Service) Progress(ctx context.Context, userID string) (ProgressInfo, error) {
	prog, err := svc.repo.GetProgress(ctx, userID)
	if err != nil {
		return ProgressInfo{}, errors.Wrap(err, "getting progress")
	}
	st, err := svc.streaks.Get(ctx, userID)
	if err != nil {
		return ProgressInfo{}, errors.Wrap(err, "getting streak")
	}
	return ProgressInfo{LevelInfo: progression.GetLevelInfo(prog.TotalXP), Streak: st}, nil
}

// Level returns the current level of the user.
func (svc *Service) Level(ctx context.Context, userID string) (int, error) {
	prog, err := svc.repo.GetProgress(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "getting progress")
	}
	if prog.Level < progression.MinLevel {
		return progression.MinLevel, nil
	}
	return prog.Level, nil
}

func (svc *Service) History(ctx context.Context, userID string, page core.Page) ([]Entry, error) {
	page.Clean()
	return svc.repo.QueryEntries(ctx, userID, page)
}

// Package achievement unlocks trophies when a user's level, XP, quests, jobs or streak reach a target.
package achievement

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/item"
	"github.com/edurpg/edurpg/core/job"
	"github.com/edurpg/edurpg/core/notification"
	"github.com/edurpg/edurpg/core/quest"
	"github.com/edurpg/edurpg/core/user"
	"github.com/edurpg/edurpg/core/wallet"
	"github.com/edurpg/edurpg/core/xp"
)

var (
	ErrNotFound         = core.NewNotFoundError("achievement not found")
	ErrDuplicateName    = core.NewConflictError("an achievement with this name already exists")
	ErrAlreadyUnlocked  = core.NewConflictError("achievement already unlocked")
	ErrNotAvailable     = core.NewInvalidError("achievement is not available")
	ErrInvalidWindow    = core.NewInvalidError("available_to must be after available_from")
	ErrNoUser           = core.NewNotFoundError("user not found")
	ErrTargetRequired   = core.NewInvalidError("target is required for this category")
	ErrWindowNotAllowed = core.NewInvalidError("only temporary achievements have an availability window")
)

type (
	Repository interface {
		// CreateAchievement returns ErrDuplicateName when the name is taken.
		CreateAchievement(ctx context.Context, a Achievement) (Achievement, error)
		GetAchievement(ctx context.Context, id string) (Achievement, error)
		// QueryAchievements returns achievements by sort order, then name.
		QueryAchievements(ctx context.Context, activeOnly bool) ([]Achievement, error)
		UpdateAchievement(ctx context.Context, a Achievement) (Achievement, error)

		// CreateAward returns the existing award & ErrAlreadyUnlocked when the user already holds the achievement.
		CreateAward(ctx context.Context, a Award) (Award, error)
		// QueryAwards returns the user's awards, newest first.
		QueryAwards(ctx context.Context, userID string) ([]Award, error)
	}

	userGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	progressGetter interface {
		Progress(ctx context.Context, userID string) (xp.ProgressInfo, error)
		Award(ctx context.Context, req xp.GrantRequest) (xp.GrantResult, error)
	}

	questLister interface {
		MyQuests(ctx context.Context, userID string, status quest.ProgressStatus) ([]quest.UserQuest, error)
	}

	jobLister interface {
		MyJobs(ctx context.Context, studentID string) ([]job.StudentJob, error)
	}

	creditor interface {
		Credit(ctx context.Context, e wallet.Entry) (wallet.Transaction, error)
	}

	Service struct {
		repo     Repository
		tx       core.Transactor
		users    userGetter
		xp       progressGetter
		quests   questLister
		jobs     jobLister
		wallet   creditor
		notifier notification.Notifier
	}
)

func NewService(
	repo Repository,
	tx core.Transactor,
	users userGetter,
	xp progressGetter,
	quests questLister,
	jobs jobLister,
	wallet creditor,
	notifier notification.Notifier,
) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		users:    users,
		xp:       xp,
		quests:   quests,
		jobs:     jobs,
		wallet:   wallet,
		notifier: notifier,
	}
}

func (svc *Service) Create(ctx context.Context, na NewAchievement) (Achievement, error) {
	a := Achievement{
		Name:        na.Name,
		Description: na.Description,
		Type:        na.Type,
		Category:    na.Category,
		Icon:        na.Icon,
		Rarity:      na.Rarity,
		Target:      na.Target,
		XPReward:    na.XPReward,
		MoneyReward: na.MoneyReward,
		SortOrder:   na.SortOrder,
		IsActive:    true,
	}
	if a.Type == "" {
		a.Type = TypeNormal
	}
	if a.Category == "" {
		a.Category = CategoryOther
	}
	if a.Rarity == "" {
		a.Rarity = item.RarityCommon
	}
	if a.Category != CategoryOther && a.Target <= 0 {
		return Achievement{}, ErrTargetRequired
	}
	if na.AvailableFrom != nil {
		a.AvailableFrom = na.AvailableFrom.UTC()
	}
	if na.AvailableTo != nil {
		a.AvailableTo = na.AvailableTo.UTC()
	}
	hasWindow := !a.AvailableFrom.IsZero() || !a.AvailableTo.IsZero()
	if hasWindow && a.Type != TypeTemporary {
		return Achievement{}, ErrWindowNotAllowed
	}
	if !a.AvailableFrom.IsZero() && !a.AvailableTo.IsZero() && !a.AvailableTo.After(a.AvailableFrom) {
		return Achievement{}, ErrInvalidWindow
	}
	a.CreatedAt = core.Now()
	a.UpdatedAt = a.CreatedAt
	return svc.repo.CreateAchievement(ctx, a)
}

func (svc *Service) Get(ctx context.Context, id string) (Achievement, error) {
	return svc.repo.GetAchievement(ctx, id)
}

// List returns every achievement, hidden ones included, for the people managing them.
func (svc *Service) List(ctx context.Context, activeOnly bool) ([]Achievement, error) {
	return svc.repo.QueryAchievements(ctx, activeOnly)
}

// Deactivate stops an achievement from being unlocked. Users who hold it keep it.
func (svc *Service) Deactivate(ctx context.Context, id string) (Achievement, error) {
	var a Achievement
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if a, err = svc.repo.GetAchievement(ctx, id); err != nil {
			return err
		}
		a.IsActive = false
		a.UpdatedAt = core.Now()
		a, err = svc.repo.UpdateAchievement(ctx, a)
		return err
	})
	return a, err
}

// Metrics gathers the figures automatic achievements are measured against.
func (svc *Service) Metrics(ctx context.Context, userID string) (Metrics, error) {
	prog, err := svc.xp.Progress(ctx, userID)
	if err != nil {
		return Metrics{}, errors.Wrap(err, "getting progress")
	}
	quests, err := svc.quests.MyQuests(ctx, userID, quest.ProgressCompleted)
	if err != nil {
		return Metrics{}, errors.Wrap(err, "getting quests")
	}
	jobs, err := svc.jobs.MyJobs(ctx, userID)
	if err != nil {
		return Metrics{}, errors.Wrap(err, "getting jobs")
	}
	m := Metrics{
		Level:           prog.Level,
		TotalXP:         prog.TotalXP,
		QuestsCompleted: len(quests),
		LongestStreak:   prog.Streak.Streak.LongestStreak,
	}
	for _, j := range jobs {
		if j.Assignment.Status == job.AssignmentCompleted {
			m.JobsCompleted++
		}
	}
	return m, nil
}

// ForUser returns the achievements the user can see with their progress.
// Hidden ones stay out until unlocked, and so do temporary ones outside their window.
func (svc *Service) ForUser(ctx context.Context, userID string) ([]UserAchievement, error) {
	all, err := svc.repo.QueryAchievements(ctx, false)
	if err != nil {
		return nil, errors.Wrap(err, "querying achievements")
	}
	awards, err := svc.awardsByAchievement(ctx, userID)
	if err != nil {
		return nil, err
	}
	m, err := svc.Metrics(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := core.Now()
	res := make([]UserAchievement, 0, len(all))
	for _, a := range all {
		aw, unlocked := awards[a.ID]
		if !unlocked && !visible(a, now) {
			continue
		}
		ua := UserAchievement{Achievement: a, Unlocked: unlocked}
		if unlocked {
			ua.UnlockedAt = aw.AwardedAt
		}
		if current, ok := m.Value(a.Category); ok && a.Target > 0 {
			ua.Progress = newProgress(current, a.Target)
			if unlocked {
				ua.Progress.Percent = 100
			}
		}
		res = append(res, ua)
	}
	return res, nil
}

func visible(a Achievement, now time.Time) bool {
	switch {
	case !a.IsActive, a.Type == TypeHidden:
		return false
	case a.Type == TypeTemporary:
		return a.IsAvailableAt(now)
	}
	return true
}

func (svc *Service) awardsByAchievement(ctx context.Context, userID string) (map[string]Award, error) {
	awards, err := svc.repo.QueryAwards(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying awards")
	}
	res := make(map[string]Award, len(awards))
	for _, aw := range awards {
		res[aw.AchievementID] = aw
	}
	return res, nil
}

// Unlock grants an achievement to a user by hand, whatever their metrics.
// Unlocking it twice returns the first award without paying the rewards again.
func (svc *Service) Unlock(ctx context.Context, by user.User, achievementID string, ur UnlockRequest) (UnlockResult, error) {
	u, err := svc.users.GetByID(ctx, ur.UserID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return UnlockResult{}, ErrNoUser
		}
		return UnlockResult{}, errors.Wrap(err, "getting user")
	}
	if !u.IsActive {
		return UnlockResult{}, ErrNoUser
	}
	a, err := svc.repo.GetAchievement(ctx, achievementID)
	if err != nil {
		return UnlockResult{}, err
	}
	if !a.IsAvailableAt(core.Now()) {
		return UnlockResult{}, ErrNotAvailable
	}
	return svc.unlock(ctx, by.ID, u.ID, a)
}

// Check unlocks every automatic achievement whose target the user reached, returning the new ones.
func (svc *Service) Check(ctx context.Context, userID string) ([]UnlockResult, error) {
	all, err := svc.repo.QueryAchievements(ctx, true)
	if err != nil {
		return nil, errors.Wrap(err, "querying achievements")
	}
	awards, err := svc.awardsByAchievement(ctx, userID)
	if err != nil {
		return nil, err
	}
	var m *Metrics

	now := core.Now()
	res := []UnlockResult{}
	for _, a := range all {
		if _, ok := awards[a.ID]; ok || !a.IsAutomatic() || !a.IsAvailableAt(now) {
			continue
		}
		if m == nil {
			mm, err := svc.Metrics(ctx, userID)
			if err != nil {
				return nil, err
			}
			m = &mm
		}
		if current, _ := m.Value(a.Category); current < a.Target {
			continue
		}
		r, err := svc.unlock(ctx, "", userID, a)
		if err != nil {
			return nil, errors.Wrapf(err, "unlocking %s", a.Name)
		}
		if !r.AlreadyUnlocked {
			res = append(res, r)
		}
	}
	return res, nil
}

func (svc *Service) unlock(ctx context.Context, awardedBy, userID string, a Achievement) (UnlockResult, error) {
	res := UnlockResult{Achievement: a}
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		res.Award, err = svc.repo.CreateAward(ctx, Award{
			UserID:        userID,
			AchievementID: a.ID,
			AwardedBy:     awardedBy,
			AwardedAt:     core.Now(),
		})
		if errors.Cause(err) == ErrAlreadyUnlocked {
			res.AlreadyUnlocked = true
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "creating award")
		}

		if a.XPReward > 0 {
			_, err = svc.xp.Award(ctx, xp.GrantRequest{
				UserID:    userID,
				Amount:    a.XPReward,
				Reason:    "Achievement unlocked: " + a.Name,
				Source:    xp.SourceAchievement,
				RefID:     a.ID,
				RequestID: "achievement:" + a.ID,
			})
			if err != nil {
				return errors.Wrap(err, "awarding xp")
			}
			res.XP = a.XPReward
		}
		if a.MoneyReward > 0 {
			_, err = svc.wallet.Credit(ctx, wallet.Entry{
				UserID:    userID,
				Amount:    a.MoneyReward,
				Type:      wallet.TxEarned,
				Reason:    "Achievement unlocked: " + a.Name,
				RefType:   "achievement",
				RefID:     a.ID,
				RequestID: "achievement:" + a.ID,
			})
			if err != nil {
				return errors.Wrap(err, "crediting gold")
			}
			res.Gold = a.MoneyReward
		}

		_, err = svc.notifier.Notify(ctx, notification.NewNotification{
			UserID:  userID,
			Type:    notification.TypeAchievement,
			Title:   "Achievement unlocked",
			Message: fmt.Sprintf("You unlocked %s", a.Name),
			Data:    map[string]interface{}{"achievement_id": a.ID, "xp": res.XP, "gold": res.Gold},
		})
		return err
	})
	return res, err
}

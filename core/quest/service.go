// Package quest lets staff publish quests and students accept, progress through and complete them.
package quest

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
	ErrNotFound         = core.NewNotFoundError("quest not found")
	ErrProgressNotFound = core.NewNotFoundError("quest not accepted")
	ErrNotAvailable     = core.NewInvalidError("quest is not available")
	ErrLevelTooLow      = core.NewForbiddenError("your level is too low for this quest")
	ErrAlreadyAccepted  = core.NewConflictError("quest already accepted or completed")
	ErrNotInProgress    = core.NewInvalidError("quest is not in progress")
	ErrProgressBackward = core.NewInvalidError("progress cannot go backwards")
	ErrNotGuildMember   = core.NewForbiddenError("this quest is reserved to the members of its guild")
	ErrNotOwner         = core.NewForbiddenError("only the quest creator or an operator can do this")
)

const (
	guildTreasuryPercent = 10
	guildXPPercent       = 50
)

type (
	Repository interface {
		CreateQuest(ctx context.Context, q Quest) (Quest, error)
		GetQuest(ctx context.Context, id string) (Quest, error)
		QueryQuests(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Page) ([]Quest, error)
		// UpdateQuest persists all fields of q but ID, CreatedBy & CreatedAt.
		UpdateQuest(ctx context.Context, q Quest) (Quest, error)
		// DeleteQuest deletes the quest and all progress on it.
		DeleteQuest(ctx context.Context, id string) error

		// GetProgress returns ErrProgressNotFound if the user never accepted the quest.
		GetProgress(ctx context.Context, questID, userID string) (Progress, error)
		// SaveProgress creates or replaces the progress of p.UserID on p.QuestID.
		SaveProgress(ctx context.Context, p Progress) (Progress, error)
		// QueryUserProgress returns the user's progress rows, most recently updated first. An empty status matches all.
		QueryUserProgress(ctx context.Context, userID string, status ProgressStatus) ([]Progress, error)
	}

	xpAwarder interface {
		Award(ctx context.Context, req xp.GrantRequest) (xp.GrantResult, error)
		Level(ctx context.Context, userID string) (int, error)
	}

	creditor interface {
		Credit(ctx context.Context, e wallet.Entry) (wallet.Transaction, error)
	}

	guildService interface {
		Bonus(ctx context.Context, userID string, typ guild.BenefitType) (int, error)
		Membership(ctx context.Context, userID string) (guild.Member, error)
		Contribute(ctx context.Context, c guild.Contribution) (guild.Guild, error)
	}

	Service struct {
		repo     Repository
		tx       core.Transactor
		xp       xpAwarder
		wallet   creditor
		guilds   guildService
		notifier notification.Notifier
	}
)

func NewService(repo Repository, tx core.Transactor, xp xpAwarder, wallet creditor, guilds guildService, notifier notification.Notifier) *Service {
	return &Service{repo: repo, tx: tx, xp: xp, wallet: wallet, guilds: guilds, notifier: notifier}
}

func (svc *Service) Create(ctx context.Context, by user.User, nq NewQuest) (Quest, error) {
	now := core.Now()
	return svc.repo.CreateQuest(ctx, Quest{
		Title:         nq.Title,
		Description:   nq.Description,
		Category:      nq.Category,
		Difficulty:    nq.Difficulty,
		RequiredLevel: nq.RequiredLevel,
		XPReward:      nq.XPReward,
		MoneyReward:   nq.MoneyReward,
		Status:        StatusActive,
		GuildID:       nq.GuildID,
		CreatedBy:     by.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func (svc *Service) Get(ctx context.Context, id string) (Quest, error) {
	return svc.repo.GetQuest(ctx, id)
}

func (svc *Service) List(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Page) ([]Quest, error) {
	page.Clean()
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryQuests(ctx, filter, core.FilterOrderings(ordering, OrderingFields...), page)
}

func (svc *Service) Update(ctx context.Context, by user.User, id string, uq UpdateQuest) (Quest, error) {
	q, err := svc.getOwned(ctx, by, id)
	if err != nil {
		return Quest{}, err
	}
	if uq.Title != nil {
		q.Title = core.CleanString(*uq.Title)
	}
	if uq.Description != nil {
		q.Description = core.CleanString(*uq.Description)
	}
	if uq.Category != nil {
		q.Category = core.CleanString(*uq.Category, true /* lower */)
	}
	if uq.Difficulty != nil {
		q.Difficulty = *uq.Difficulty
	}
	if uq.RequiredLevel != nil {
		q.RequiredLevel = *uq.RequiredLevel
	}
	if uq.XPReward != nil {
		q.XPReward = *uq.XPReward
	}
	if uq.MoneyReward != nil {
		q.MoneyReward = *uq.MoneyReward
	}
	if uq.Status != nil {
		q.Status = *uq.Status
	}
	q.UpdatedAt = core.Now()
	return svc.repo.UpdateQuest(ctx, q)
}

func (svc *Service) Delete(ctx context.Context, by user.User, id string) error {
	if _, err := svc.getOwned(ctx, by, id); err != nil {
		return err
	}
	return svc.repo.DeleteQuest(ctx, id)
}

func (svc *Service) getOwned(ctx context.Context, by user.User, id string) (Quest, error) {
	q, err := svc.repo.GetQuest(ctx, id)
	if err != nil {
		return Quest{}, err
	}
	if q.CreatedBy != by.ID && !by.IsAdmin() {
		return Quest{}, ErrNotOwner
	}
	return q, nil
}

// Accept starts the quest for the user. An abandoned quest may be accepted again.
func (svc *Service) Accept(ctx context.Context, userID, questID string) (Progress, error) {
	var p Progress
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		q, err := svc.repo.GetQuest(ctx, questID)
		if err != nil {
			return err
		}
		if q.Status != StatusActive {
			return ErrNotAvailable
		}
		level, err := svc.xp.Level(ctx, userID)
		if err != nil {
			return err
		}
		if level < q.RequiredLevel {
			return ErrLevelTooLow
		}
		if q.GuildID != "" {
			m, err := svc.guilds.Membership(ctx, userID)
			if err != nil && errors.Cause(err) != guild.ErrNotMember {
				return errors.Wrap(err, "getting guild membership")
			}
			if err != nil || m.GuildID != q.GuildID {
				return ErrNotGuildMember
			}
		}

		p, err = svc.repo.GetProgress(ctx, questID, userID)
		switch {
		case err == nil:
			if p.Status != ProgressAbandoned {
				return ErrAlreadyAccepted
			}
		case errors.Cause(err) == ErrProgressNotFound:
			p = Progress{QuestID: questID, UserID: userID}
		default:
			return errors.Wrap(err, "getting progress")
		}

		now := core.Now()
		p.Status = ProgressAccepted
		p.Progress = 0
		p.AcceptedAt = now
		p.UpdatedAt = now
		p, err = svc.repo.SaveProgress(ctx, p)
		return errors.Wrap(err, "saving progress")
	})
	return p, err
}

// UpdateProgress records the user's progress; reaching 100 completes the quest.
func (svc *Service) UpdateProgress(ctx context.Context, userID, questID string, up UpdateProgress) (Progress, error) {
	if up.Progress >= 100 {
		res, err := svc.Complete(ctx, userID, questID)
		return res.Progress, err
	}

	var p Progress
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if p, err = svc.openProgress(ctx, questID, userID); err != nil {
			return err
		}
		if up.Progress < p.Progress {
			return ErrProgressBackward
		}
		p.Progress = up.Progress
		p.Status = ProgressInProgress
		p.UpdatedAt = core.Now()
		p, err = svc.repo.SaveProgress(ctx, p)
		return errors.Wrap(err, "saving progress")
	})
	return p, err
}

// Complete finishes the quest and pays its rewards, boosted by the user's guild benefits.
func (svc *Service) Complete(ctx context.Context, userID, questID string) (CompletionResult, error) {
	var res CompletionResult
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		q, err := svc.repo.GetQuest(ctx, questID)
		if err != nil {
			return err
		}
		p, err := svc.openProgress(ctx, questID, userID)
		if err != nil {
			return err
		}

		now := core.Now()
		p.Status = ProgressCompleted
		p.Progress = 100
		p.CompletedAt = now
		p.UpdatedAt = now
		if res.Progress, err = svc.repo.SaveProgress(ctx, p); err != nil {
			return errors.Wrap(err, "saving progress")
		}

		questBonus, err := svc.guilds.Bonus(ctx, userID, guild.BenefitQuestBonus)
		if err != nil {
			return errors.Wrap(err, "getting quest bonus")
		}
		moneyBoost, err := svc.guilds.Bonus(ctx, userID, guild.BenefitMoneyBoost)
		if err != nil {
			return errors.Wrap(err, "getting money boost")
		}
		xpAmount := q.XPReward + core.PercentOf(q.XPReward, questBonus)
		res.Gold = q.MoneyReward + core.PercentOf(q.MoneyReward, moneyBoost)

		reqID := "quest:" + res.Progress.ID
		reason := "Quest completed: " + q.Title
		if xpAmount > 0 {
			granted, err := svc.xp.Award(ctx, xp.GrantRequest{
				UserID:    userID,
				Amount:    xpAmount,
				Reason:    reason,
				Source:    xp.SourceQuest,
				RefID:     q.ID,
				RequestID: reqID,
			})
			if err != nil {
				return errors.Wrap(err, "awarding xp")
			}
			res.XP = granted.Entry.Amount
			res.LevelUp = granted.LeveledUp
		}
		if res.Gold > 0 {
			_, err = svc.wallet.Credit(ctx, wallet.Entry{
				UserID:    userID,
				Amount:    res.Gold,
				Type:      wallet.TxEarned,
				Reason:    reason,
				RefType:   "quest",
				RefID:     q.ID,
				RequestID: reqID,
			})
			if err != nil {
				return errors.Wrap(err, "paying quest reward")
			}
		}

		if q.GuildID != "" {
			_, err = svc.guilds.Contribute(ctx, guild.Contribution{
				UserID:  userID,
				GuildID: q.GuildID,
				XP:      core.PercentOf(q.XPReward, guildXPPercent),
				Gold:    core.PercentOf(q.MoneyReward, guildTreasuryPercent),
				Reason:  reason,
				Type:    guild.ActivityQuestCompleted,
			})
			if err != nil {
				return errors.Wrap(err, "contributing to guild")
			}
		}

		_, err = svc.notifier.Notify(ctx, notification.NewNotification{
			UserID:  userID,
			Type:    notification.TypeQuest,
			Title:   "Quest completed!",
			Message: fmt.Sprintf("%s: +%d XP, +%d gold", q.Title, res.XP, res.Gold),
			Data:    map[string]interface{}{"quest_id": q.ID, "xp": res.XP, "gold": res.Gold},
		})
		return err
	})
	return res, err
}

func (svc *Service) Abandon(ctx context.Context, userID, questID string) (Progress, error) {
	var p Progress
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if p, err = svc.openProgress(ctx, questID, userID); err != nil {
			return err
		}
		p.Status = ProgressAbandoned
		p.UpdatedAt = core.Now()
		p, err = svc.repo.SaveProgress(ctx, p)
		return errors.Wrap(err, "saving progress")
	})
	return p, err
}

// MyQuests returns the quests the user accepted, filtered by progress status if not empty.
func (svc *Service) MyQuests(ctx context.Context, userID string, status ProgressStatus) ([]UserQuest, error) {
	progress, err := svc.repo.QueryUserProgress(ctx, userID, status)
	if err != nil {
		return nil, errors.Wrap(err, "querying progress")
	}
	if len(progress) == 0 {
		return []UserQuest{}, nil
	}

	ids := make([]string, 0, len(progress))
	for _, p := range progress {
		ids = append(ids, p.QuestID)
	}
	byID := make(map[string]Quest, len(ids))
	for _, chunk := range core.Chunks(ids) {
		quests, err := svc.repo.QueryQuests(ctx, QueryFilter{IDs: chunk}, nil, core.Page{Number: 1, Size: len(chunk)})
		if err != nil {
			return nil, errors.Wrap(err, "querying quests")
		}
		for _, q := range quests {
			byID[q.ID] = q
		}
	}

	res := make([]UserQuest, 0, len(progress))
	for _, p := range progress {
		if q, ok := byID[p.QuestID]; ok {
			res = append(res, UserQuest{Quest: q, Progress: p})
		}
	}
	return res, nil
}

func (svc *Service) openProgress(ctx context.Context, questID, userID string) (Progress, error) {
	p, err := svc.repo.GetProgress(ctx, questID, userID)
	if err != nil {
		return Progress{}, err
	}
	if !p.Status.IsOpen() {
		return Progress{}, ErrNotInProgress
	}
	return p, nil
}

// Package reward sells real-world prizes for gold. Claims are approved, rejected with a refund, then handed over.
package reward

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/notification"
	"github.com/edurpg/edurpg/core/user"
	"github.com/edurpg/edurpg/core/wallet"
)

var (
	ErrNotFound      = core.NewNotFoundError("reward not found")
	ErrClaimNotFound = core.NewNotFoundError("claim not found")
	ErrNotAvailable  = core.NewInvalidError("reward is not available")
	ErrOutOfStock    = core.NewInvalidError("reward is out of stock")
	ErrInvalidWindow = core.NewInvalidError("available_to must be after available_from")
	ErrStockTooLow   = core.NewInvalidError("total stock is lower than the claimed stock")
	ErrNotPending    = core.NewConflictError("claim is not pending")
	ErrNotApproved   = core.NewConflictError("claim is not approved")
	ErrNotOwner      = core.NewForbiddenError("only the reward creator or an operator can do this")
)

const errLevelRequired = "you must be at least level %d to claim this reward"

type (
	Repository interface {
		CreateReward(ctx context.Context, r Reward) (Reward, error)
		// GetReward locks the reward row until the end of the transaction.
		GetReward(ctx context.Context, id string) (Reward, error)
		// QueryRewards returns featured rewards first, then by priority and newest.
		QueryRewards(ctx context.Context, filter QueryFilter, page core.Page) ([]Reward, error)
		// UpdateReward persists all fields of r but ID, CreatedBy & CreatedAt.
		UpdateReward(ctx context.Context, r Reward) (Reward, error)

		CreateClaim(ctx context.Context, c Claim) (Claim, error)
		// GetClaim locks the claim row until the end of the transaction.
		GetClaim(ctx context.Context, id string) (Claim, error)
		// QueryClaims returns claims newest first, or oldest first when only pending ones are asked for.
		QueryClaims(ctx context.Context, filter ClaimFilter, page core.Page) ([]Claim, error)
		UpdateClaim(ctx context.Context, c Claim) (Claim, error)
	}

	levelGetter interface {
		Level(ctx context.Context, userID string) (int, error)
	}

	ledger interface {
		Credit(ctx context.Context, e wallet.Entry) (wallet.Transaction, error)
		Debit(ctx context.Context, e wallet.Entry) (wallet.Transaction, error)
	}

	Service struct {
		repo     Repository
		tx       core.Transactor
		levels   levelGetter
		wallet   ledger
		notifier notification.Notifier
	}
)

func NewService(repo Repository, tx core.Transactor, levels levelGetter, wallet ledger, notifier notification.Notifier) *Service {
	return &Service{repo: repo, tx: tx, levels: levels, wallet: wallet, notifier: notifier}
}

func (svc *Service) Create(ctx context.Context, by user.User, nr NewReward) (Reward, error) {
	r := Reward{
		Name:           nr.Name,
		Description:    nr.Description,
		Category:       nr.Category,
		ImageURL:       nr.ImageURL,
		GoldPrice:      nr.GoldPrice,
		LevelRequired:  nr.LevelRequired,
		TotalStock:     nr.TotalStock,
		AvailableStock: nr.TotalStock,
		IsFeatured:     nr.IsFeatured,
		Priority:       nr.Priority,
		IsActive:       true,
		CreatedBy:      by.ID,
	}
	if nr.AvailableFrom != nil {
		r.AvailableFrom = nr.AvailableFrom.UTC()
	}
	if nr.AvailableTo != nil {
		r.AvailableTo = nr.AvailableTo.UTC()
	}
	if !validWindow(r.AvailableFrom, r.AvailableTo) {
		return Reward{}, ErrInvalidWindow
	}
	r.CreatedAt = core.Now()
	r.UpdatedAt = r.CreatedAt
	return svc.repo.CreateReward(ctx, r)
}

func validWindow(from, to time.Time) bool {
	return from.IsZero() || to.IsZero() || to.After(from)
}

func (svc *Service) Get(ctx context.Context, id string) (Reward, error) {
	return svc.repo.GetReward(ctx, id)
}

// List returns every reward matching filter, for the people managing them.
func (svc *Service) List(ctx context.Context, filter QueryFilter, page core.Page) ([]Reward, error) {
	page.Clean()
	filter.AvailableAt = time.Time{}
	filter.MaxLevel = 0
	return svc.repo.QueryRewards(ctx, filter, page)
}

// Available returns the rewards the student can claim right now, given their level.
func (svc *Service) Available(ctx context.Context, studentID string, page core.Page) ([]Reward, error) {
	page.Clean()
	level, err := svc.levels.Level(ctx, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "getting level")
	}
	active := true
	return svc.repo.QueryRewards(ctx, QueryFilter{IsActive: &active, AvailableAt: core.Now(), MaxLevel: level}, page)
}

// Update edits a reward. Changing the total stock moves the available stock by the same amount.
func (svc *Service) Update(ctx context.Context, by user.User, id string, ur UpdateReward) (Reward, error) {
	var r Reward
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if r, err = svc.getOwned(ctx, by, id); err != nil {
			return err
		}
		if ur.Name != nil {
			r.Name = core.CleanString(*ur.Name)
		}
		if ur.Description != nil {
			r.Description = core.CleanString(*ur.Description)
		}
		if ur.GoldPrice != nil {
			r.GoldPrice = *ur.GoldPrice
		}
		if ur.LevelRequired != nil {
			r.LevelRequired = *ur.LevelRequired
		}
		if ur.TotalStock != nil {
			claimed := r.TotalStock - r.AvailableStock
			if *ur.TotalStock < claimed {
				return ErrStockTooLow
			}
			r.TotalStock = *ur.TotalStock
			r.AvailableStock = r.TotalStock - claimed
		}
		if ur.AvailableFrom != nil {
			r.AvailableFrom = ur.AvailableFrom.UTC()
		}
		if ur.AvailableTo != nil {
			r.AvailableTo = ur.AvailableTo.UTC()
		}
		if !validWindow(r.AvailableFrom, r.AvailableTo) {
			return ErrInvalidWindow
		}
		if ur.IsFeatured != nil {
			r.IsFeatured = *ur.IsFeatured
		}
		if ur.Priority != nil {
			r.Priority = *ur.Priority
		}
		if ur.IsActive != nil {
			r.IsActive = *ur.IsActive
		}
		r.UpdatedAt = core.Now()
		r, err = svc.repo.UpdateReward(ctx, r)
		return err
	})
	return r, err
}

// Deactivate hides a reward from students. Pending claims are still decided normally.
func (svc *Service) Deactivate(ctx context.Context, by user.User, id string) (Reward, error) {
	inactive := false
	return svc.Update(ctx, by, id, UpdateReward{IsActive: &inactive})
}

func (svc *Service) getOwned(ctx context.Context, by user.User, id string) (Reward, error) {
	r, err := svc.repo.GetReward(ctx, id)
	if err != nil {
		return Reward{}, err
	}
	if r.CreatedBy != by.ID && !by.IsAdmin() {
		return Reward{}, ErrNotOwner
	}
	return r, nil
}

// Claim charges the student the reward price and reserves one unit until a teacher decides.
func (svc *Service) Claim(ctx context.Context, studentID, rewardID string, cr ClaimRequest) (Claim, error) {
	var c Claim
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		r, err := svc.repo.GetReward(ctx, rewardID)
		if err != nil {
			return err
		}
		now := core.Now()
		if !r.IsAvailableAt(now) {
			return ErrNotAvailable
		}
		if r.AvailableStock <= 0 {
			return ErrOutOfStock
		}
		if r.LevelRequired > 0 {
			level, err := svc.levels.Level(ctx, studentID)
			if err != nil {
				return errors.Wrap(err, "getting level")
			}
			if level < r.LevelRequired {
				return core.NewInvalidError(fmt.Sprintf(errLevelRequired, r.LevelRequired))
			}
		}

		c, err = svc.repo.CreateClaim(ctx, Claim{
			UserID:      studentID,
			RewardID:    r.ID,
			Status:      ClaimPending,
			GoldPaid:    r.GoldPrice,
			StudentNote: cr.Note,
			CreatedAt:   now,
		})
		if err != nil {
			return errors.Wrap(err, "creating claim")
		}
		if r.GoldPrice > 0 {
			_, err = svc.wallet.Debit(ctx, wallet.Entry{
				UserID:    studentID,
				Amount:    r.GoldPrice,
				Type:      wallet.TxSpent,
				Reason:    "Claimed reward: " + r.Name,
				RefType:   "reward_claim",
				RefID:     c.ID,
				RequestID: "reward-claim:" + c.ID,
			})
			if err != nil {
				return err
			}
		}

		r.AvailableStock--
		r.UpdatedAt = now
		if _, err = svc.repo.UpdateReward(ctx, r); err != nil {
			return errors.Wrap(err, "updating stock")
		}
		_, err = svc.notifier.Notify(ctx, notification.NewNotification{
			UserID:  r.CreatedBy,
			Type:    notification.TypeReward,
			Title:   "New reward claim",
			Message: fmt.Sprintf("A student claimed %s", r.Name),
			Data:    map[string]interface{}{"claim_id": c.ID, "reward_id": r.ID, "student_id": studentID},
		})
		return err
	})
	return c, err
}

func (svc *Service) Approve(ctx context.Context, by user.User, claimID string, d Decision) (Claim, error) {
	var c Claim
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var (
			r   Reward
			err error
		)
		if c, r, err = svc.pendingClaim(ctx, by, claimID); err != nil {
			return err
		}
		c.Status = ClaimApproved
		c.AdminNote = d.Note
		c.DecidedBy = by.ID
		c.DecidedAt = core.Now()
		if c, err = svc.repo.UpdateClaim(ctx, c); err != nil {
			return errors.Wrap(err, "updating claim")
		}
		return svc.notifyStudent(ctx, c, "Reward claim approved", r.Name)
	})
	return c, err
}

// Reject refunds the gold paid and puts the unit back in stock.
func (svc *Service) Reject(ctx context.Context, by user.User, claimID string, rj Rejection) (Claim, error) {
	var c Claim
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var (
			r   Reward
			err error
		)
		if c, r, err = svc.pendingClaim(ctx, by, claimID); err != nil {
			return err
		}
		if c.GoldPaid > 0 {
			_, err = svc.wallet.Credit(ctx, wallet.Entry{
				UserID:    c.UserID,
				Amount:    c.GoldPaid,
				Type:      wallet.TxRefund,
				Reason:    "Reward claim rejected: " + r.Name,
				RefType:   "reward_claim",
				RefID:     c.ID,
				RequestID: "reward-refund:" + c.ID,
			})
			if err != nil {
				return errors.Wrap(err, "refunding claim")
			}
		}

		now := core.Now()
		r.AvailableStock++
		r.UpdatedAt = now
		if _, err = svc.repo.UpdateReward(ctx, r); err != nil {
			return errors.Wrap(err, "updating stock")
		}
		c.Status = ClaimRejected
		c.RejectedReason = rj.Reason
		c.DecidedBy = by.ID
		c.DecidedAt = now
		if c, err = svc.repo.UpdateClaim(ctx, c); err != nil {
			return errors.Wrap(err, "updating claim")
		}
		return svc.notifyStudent(ctx, c, "Reward claim rejected", fmt.Sprintf("%s: %s", r.Name, rj.Reason))
	})
	return c, err
}

// Complete records that an approved reward was handed over.
func (svc *Service) Complete(ctx context.Context, by user.User, claimID string) (Claim, error) {
	var c Claim
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if c, err = svc.repo.GetClaim(ctx, claimID); err != nil {
			return err
		}
		r, err := svc.getOwned(ctx, by, c.RewardID)
		if err != nil {
			return err
		}
		if c.Status != ClaimApproved {
			return ErrNotApproved
		}
		c.Status = ClaimCompleted
		c.CompletedBy = by.ID
		c.CompletedAt = core.Now()
		if c, err = svc.repo.UpdateClaim(ctx, c); err != nil {
			return errors.Wrap(err, "updating claim")
		}
		return svc.notifyStudent(ctx, c, "Reward delivered", r.Name)
	})
	return c, err
}

// pendingClaim returns the claim, locked, with its reward, checking that by may decide on it.
func (svc *Service) pendingClaim(ctx context.Context, by user.User, claimID string) (Claim, Reward, error) {
	c, err := svc.repo.GetClaim(ctx, claimID)
	if err != nil {
		return Claim{}, Reward{}, err
	}
	r, err := svc.getOwned(ctx, by, c.RewardID)
	if err != nil {
		return Claim{}, Reward{}, err
	}
	if c.Status != ClaimPending {
		return Claim{}, Reward{}, ErrNotPending
	}
	return c, r, nil
}

func (svc *Service) notifyStudent(ctx context.Context, c Claim, title, msg string) error {
	_, err := svc.notifier.Notify(ctx, notification.NewNotification{
		UserID:  c.UserID,
		Type:    notification.TypeReward,
		Title:   title,
		Message: msg,
		Data:    map[string]interface{}{"claim_id": c.ID, "reward_id": c.RewardID, "status": string(c.Status)},
	})
	return err
}

// MyClaims returns the student's claims, newest first, with their rewards.
func (svc *Service) MyClaims(ctx context.Context, studentID string, page core.Page) ([]ClaimDetails, error) {
	return svc.Claims(ctx, ClaimFilter{UserID: studentID}, page)
}

// Claims returns claims matching filter with their rewards. Pending claims come oldest first.
func (svc *Service) Claims(ctx context.Context, filter ClaimFilter, page core.Page) ([]ClaimDetails, error) {
	page.Clean()
	claims, err := svc.repo.QueryClaims(ctx, filter, page)
	if err != nil {
		return nil, errors.Wrap(err, "querying claims")
	}
	rewards := make(map[string]Reward)
	res := make([]ClaimDetails, 0, len(claims))
	for _, c := range claims {
		r, ok := rewards[c.RewardID]
		if !ok {
			if r, err = svc.repo.GetReward(ctx, c.RewardID); err != nil {
				return nil, errors.Wrap(err, "getting reward")
			}
			rewards[c.RewardID] = r
		}
		res = append(res, ClaimDetails{Claim: c, Reward: r})
	}
	return res, nil
}

// Package badge awards collectible achievements that users may pin on their profile.
package badge

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/item"
	"github.com/edurpg/edurpg/core/notification"
)

var (
	ErrNotFound       = core.NewNotFoundError("badge not found")
	ErrNotAwarded     = core.NewNotFoundError("badge not awarded to this user")
	ErrNameTaken      = core.NewConflictError("a badge with this name already exists")
	ErrAlreadyAwarded = core.NewConflictError("badge already awarded to this user")
	ErrTooManyPinned  = core.NewInvalidError("too many pinned badges")
)

type Badge struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Rarity      item.Rarity `json:"rarity"`
	Icon        string      `json:"icon"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// UserBadge is a badge awarded to a user.
type UserBadge struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	BadgeID   string    `json:"badge_id"`
	AwardedBy string    `json:"awarded_by,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Pinned    bool      `json:"pinned"`
	AwardedAt time.Time `json:"awarded_at"`
}

type OwnedBadge struct {
	Badge     Badge     `json:"badge"`
	Pinned    bool      `json:"pinned"`
	Reason    string    `json:"reason,omitempty"`
	AwardedAt time.Time `json:"awarded_at"`
}

type Stats struct {
	Badge   Badge `json:"badge"`
	Holders int   `json:"holders"`
}

type NewBadge struct {
	Name        string      `json:"name" validate:"required,notblank,max=100"`
	Description string      `json:"description" validate:"max=500"`
	Rarity      item.Rarity `json:"rarity" validate:"required,rarity"`
	Icon        string      `json:"icon" validate:"max=200"`
}

func (nb *NewBadge) Validate(validate *validator.Validate) error {
	nb.Name = core.CleanString(nb.Name)
	nb.Description = core.CleanString(nb.Description)
	return validate.Struct(nb)
}

type UpdateBadge struct {
	Name        *string      `json:"name" validate:"omitempty,notblank,max=100"`
	Description *string      `json:"description" validate:"omitempty,max=500"`
	Rarity      *item.Rarity `json:"rarity" validate:"omitempty,rarity"`
	Icon        *string      `json:"icon" validate:"omitempty,max=200"`
}

func (ub *UpdateBadge) Validate(validate *validator.Validate) error {
	return validate.Struct(ub)
}

type AwardRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Reason string `json:"reason" validate:"max=200"`
}

func (ar *AwardRequest) Validate(validate *validator.Validate) error {
	ar.Reason = core.CleanString(ar.Reason)
	return validate.Struct(ar)
}

type (
	Repository interface {
		// CreateBadge fails with ErrNameTaken if the name is used.
		CreateBadge(ctx context.Context, b Badge) (Badge, error)
		GetBadge(ctx context.Context, id string) (Badge, error)
		// QueryBadges returns all badges by name.
		QueryBadges(ctx context.Context) ([]Badge, error)
		UpdateBadge(ctx context.Context, b Badge) (Badge, error)
		// DeleteBadge deletes the badge and revokes it from everyone.
		DeleteBadge(ctx context.Context, id string) error

		// CreateUserBadge fails with ErrAlreadyAwarded if the user already holds the badge.
		CreateUserBadge(ctx context.Context, ub UserBadge) (UserBadge, error)
		// GetUserBadge returns ErrNotAwarded if the user does not hold the badge.
		GetUserBadge(ctx context.Context, userID, badgeID string) (UserBadge, error)
		// QueryUserBadges returns the user's badges, pinned first then newest.
		QueryUserBadges(ctx context.Context, userID string) ([]UserBadge, error)
		UpdateUserBadge(ctx context.Context, ub UserBadge) (UserBadge, error)
		DeleteUserBadge(ctx context.Context, userID, badgeID string) error
		CountPinned(ctx context.Context, userID string) (int, error)
		// CountHolders returns the number of holders per badge ID.
		CountHolders(ctx context.Context) (map[string]int, error)
	}

	Service struct {
		repo      Repository
		tx        core.Transactor
		notifier  notification.Notifier
		maxPinned int
	}
)

func NewService(repo Repository, tx core.Transactor, notifier notification.Notifier, conf *core.Config) *Service {
	return &Service{repo: repo, tx: tx, notifier: notifier, maxPinned: conf.Game.MaxPinnedBadges}
}

func (svc *Service) Create(ctx context.Context, nb NewBadge) (Badge, error) {
	now := core.Now()
	return svc.repo.CreateBadge(ctx, Badge{
		Name:        nb.Name,
		Description: nb.Description,
		Rarity:      nb.Rarity,
		Icon:        nb.Icon,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) Get(ctx context.Context, id string) (Badge, error) {
	return svc.repo.GetBadge(ctx, id)
}

func (svc *Service) List(ctx context.Context) ([]Badge, error) {
	return svc.repo.QueryBadges(ctx)
}

func (svc *Service) Update(ctx context.Context, id string, ub UpdateBadge) (Badge, error) {
	b, err := svc.repo.GetBadge(ctx, id)
	if err != nil {
		return Badge{}, err
	}
	if ub.Name != nil {
		b.Name = core.CleanString(*ub.Name)
	}
	if ub.Description != nil {
		b.Description = core.CleanString(*ub.Description)
	}
	if ub.Rarity != nil {
		b.Rarity = *ub.Rarity
	}
	if ub.Icon != nil {
		b.Icon = *ub.Icon
	}
	b.UpdatedAt = core.Now()
	return svc.repo.UpdateBadge(ctx, b)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	if _, err := svc.repo.GetBadge(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteBadge(ctx, id)
}

// Award gives the badge to a user. A badge can only be held once.
func (svc *Service) Award(ctx context.Context, byID, badgeID string, ar AwardRequest) (UserBadge, error) {
	var ub UserBadge
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		b, err := svc.repo.GetBadge(ctx, badgeID)
		if err != nil {
			return err
		}
		ub, err = svc.repo.CreateUserBadge(ctx, UserBadge{
			UserID:    ar.UserID,
			BadgeID:   badgeID,
			AwardedBy: byID,
			Reason:    ar.Reason,
			AwardedAt: core.Now(),
		})
		if err != nil {
			return err
		}
		_, err = svc.notifier.Notify(ctx, notification.NewNotification{
			UserID:  ar.UserID,
			Type:    notification.TypeBadge,
			Title:   "New badge!",
			Message: fmt.Sprintf("You earned the %s badge", b.Name),
			Data:    map[string]interface{}{"badge_id": b.ID, "rarity": string(b.Rarity)},
		})
		return err
	})
	return ub, err
}

func (svc *Service) Revoke(ctx context.Context, userID, badgeID string) error {
	if _, err := svc.repo.GetUserBadge(ctx, userID, badgeID); err != nil {
		return err
	}
	return svc.repo.DeleteUserBadge(ctx, userID, badgeID)
}

func (svc *Service) UserBadges(ctx context.Context, userID string) ([]OwnedBadge, error) {
	owned, err := svc.repo.QueryUserBadges(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying user badges")
	}
	badges, err := svc.repo.QueryBadges(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying badges")
	}
	byID := make(map[string]Badge, len(badges))
	for _, b := range badges {
		byID[b.ID] = b
	}
	res := make([]OwnedBadge, 0, len(owned))
	for _, ub := range owned {
		if b, ok := byID[ub.BadgeID]; ok {
			res = append(res, OwnedBadge{Badge: b, Pinned: ub.Pinned, Reason: ub.Reason, AwardedAt: ub.AwardedAt})
		}
	}
	return res, nil
}

// TogglePin pins or unpins one of the user's badges.
func (svc *Service) TogglePin(ctx context.Context, userID, badgeID string) (UserBadge, error) {
	var ub UserBadge
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if ub, err = svc.repo.GetUserBadge(ctx, userID, badgeID); err != nil {
			return err
		}
		if !ub.Pinned {
			pinned, err := svc.repo.CountPinned(ctx, userID)
			if err != nil {
				return errors.Wrap(err, "counting pinned badges")
			}
			if pinned >= svc.maxPinned {
				return ErrTooManyPinned
			}
		}
		ub.Pinned = !ub.Pinned
		ub, err = svc.repo.UpdateUserBadge(ctx, ub)
		return err
	})
	return ub, err
}

// Stats returns every badge with its number of holders.
func (svc *Service) Stats(ctx context.Context) ([]Stats, error) {
	badges, err := svc.repo.QueryBadges(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying badges")
	}
	holders, err := svc.repo.CountHolders(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "counting holders")
	}
	res := make([]Stats, 0, len(badges))
	for _, b := range badges {
		res = append(res, Stats{Badge: b, Holders: holders[b.ID]})
	}
	return res, nil
}

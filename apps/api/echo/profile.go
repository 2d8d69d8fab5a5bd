package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/apps/di"
	"github.com/edurpg/edurpg/core/badge"
	"github.com/edurpg/edurpg/core/guild"
	"github.com/edurpg/edurpg/core/user"
	"github.com/edurpg/edurpg/core/wallet"
	"github.com/edurpg/edurpg/core/xp"
)

type profileApi struct {
	svc *di.Services
}

// Profile gathers everything a student sees on their home screen.
type Profile struct {
	User         user.User          `json:"user"`
	Progress     xp.ProgressInfo    `json:"progress"`
	Wallet       wallet.Wallet      `json:"wallet"`
	Guild        *guild.Member      `json:"guild"`
	PinnedBadges []badge.OwnedBadge `json:"pinned_badges"`
	Unread       int                `json:"unread_notifications"`
}

func registerProfileAPI(g *echo.Group, svc *di.Services) {
	api := profileApi{svc: svc}
	g.GET("/me", api.retrieve)
}

func (api *profileApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc.Users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	rctx := ctx.Request().Context()

	p := Profile{User: usr, PinnedBadges: []badge.OwnedBadge{}}
	if p.Progress, err = api.svc.XP.Progress(rctx, usr.ID); err != nil {
		return errors.Wrap(err, "getting progress")
	}
	if p.Wallet, err = api.svc.Wallet.Balance(rctx, usr.ID); err != nil {
		return errors.Wrap(err, "getting wallet")
	}
	m, err := api.svc.Guilds.Membership(rctx, usr.ID)
	switch {
	case err == nil:
		p.Guild = &m
	case errors.Cause(err) != guild.ErrNotMember:
		return errors.Wrap(err, "getting guild membership")
	}
	owned, err := api.svc.Badges.UserBadges(rctx, usr.ID)
	if err != nil {
		return errors.Wrap(err, "getting badges")
	}
	for _, b := range owned {
		if b.Pinned {
			p.PinnedBadges = append(p.PinnedBadges, b)
		}
	}
	if p.Unread, err = api.svc.Notifications.UnreadCount(rctx, usr.ID); err != nil {
		return errors.Wrap(err, "counting notifications")
	}
	return ctx.JSON(http.StatusOK, p)
}

package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/apps/di"
	"github.com/edurpg/edurpg/core/leaderboard"
)

type leaderboardApi struct {
	svc *leaderboard.Service
}

func registerLeaderboardAPI(g *echo.Group, svc *di.Services) {
	api := leaderboardApi{svc: svc.Leaderboard}

	lg := g.Group("/leaderboard")
	lg.GET("", api.top)
	lg.GET("/me", api.me)
}

func (api *leaderboardApi) top(ctx echo.Context) error {
	entries, err := api.svc.Top(ctx.Request().Context(), intQueryParam(ctx, "limit", 10))
	if err != nil {
		return errors.Wrap(err, "getting leaderboard")
	}
	return ctx.JSON(http.StatusOK, nonNil(entries))
}

func (api *leaderboardApi) me(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	entry, err := api.svc.Rank(ctx.Request().Context(), uid)
	if err != nil {
		return errors.Wrap(err, "getting rank")
	}
	return ctx.JSON(http.StatusOK, entry)
}

package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/apps/di"
	"github.com/edurpg/edurpg/core/teacherstats"
)

type teacherStatsApi struct {
	svc *teacherstats.Service
}

func registerTeacherStatsAPI(g *echo.Group, svc *di.Services) {
	api := teacherStatsApi{svc: svc.TeacherStats}

	tg := g.Group("/teachers", teacherOrAdminMiddleware())
	tg.GET("/leaderboard", api.leaderboard)
	tg.GET("/me/stats", api.myStats)
	tg.GET("/me/rank", api.myRank)
	tg.GET("/:id/stats", api.stats, adminMiddleware())
}

func statsPeriod(ctx echo.Context) teacherstats.Period {
	return teacherstats.Period(ctx.QueryParam("period"))
}

func (api *teacherStatsApi) leaderboard(ctx echo.Context) error {
	board, err := api.svc.Leaderboard(ctx.Request().Context(), statsPeriod(ctx), intQueryParam(ctx, "limit", 10))
	if err != nil {
		return errors.Wrap(err, "getting teacher leaderboard")
	}
	return ctx.JSON(http.StatusOK, nonNil(board))
}

func (api *teacherStatsApi) myStats(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	return api.respondStats(ctx, uid)
}

func (api *teacherStatsApi) stats(ctx echo.Context) error {
	return api.respondStats(ctx, ctx.Param("id"))
}

func (api *teacherStatsApi) respondStats(ctx echo.Context, teacherID string) error {
	st, err := api.svc.Stats(ctx.Request().Context(), teacherID, statsPeriod(ctx))
	if err != nil {
		return errors.Wrap(err, "getting teacher stats")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *teacherStatsApi) myRank(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	rank, err := api.svc.Rank(ctx.Request().Context(), uid, statsPeriod(ctx))
	if err != nil {
		return errors.Wrap(err, "getting teacher rank")
	}
	return ctx.JSON(http.StatusOK, rank)
}

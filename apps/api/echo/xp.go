package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/apps/di"
	"github.com/edurpg/edurpg/core/user"
	"github.com/edurpg/edurpg/core/xp"
)

type xpApi struct {
	svc      *di.Services
	validate *validator.Validate
}

func registerXPAPI(g *echo.Group, svc *di.Services, validate *validator.Validate) {
	api := xpApi{svc: svc, validate: validate}

	xg := g.Group("/xp")
	xg.POST("/grant", api.grant, teacherOrAdminMiddleware())
	xg.GET("/budget", api.budget, teacherOrAdminMiddleware())
	xg.GET("/progress", api.progress)
	xg.GET("/history", api.history)

	sg := g.Group("/streak")
	sg.GET("", api.streak)
	sg.POST("/check-in", api.checkIn)
}

func (api *xpApi) grant(ctx echo.Context) error {
	var data xp.GrantRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GrantRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	by, err := getContextUser(ctx, api.svc.Users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if _, err = api.svc.Users.GetByID(ctx.Request().Context(), data.UserID); err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding user by ID")
	}

	res, err := api.svc.XP.Grant(ctx.Request().Context(), by, data)
	if err != nil {
		return errors.Wrap(err, "granting xp")
	}
	code := http.StatusCreated
	if res.Replayed {
		code = http.StatusOK
	} else {
		checkAchievements(ctx, api.svc.Achievements, data.UserID)
	}
	return ctx.JSON(code, res)
}

func (api *xpApi) budget(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	b, err := api.svc.XP.RemainingBudget(ctx.Request().Context(), uid, ctx.QueryParam("subject_id"))
	if err != nil {
		return errors.Wrap(err, "getting remaining budget")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *xpApi) progress(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	p, err := api.svc.XP.Progress(ctx.Request().Context(), uid)
	if err != nil {
		return errors.Wrap(err, "getting progress")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *xpApi) history(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	entries, err := api.svc.XP.History(ctx.Request().Context(), uid, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying xp history")
	}
	return ctx.JSON(http.StatusOK, nonNil(entries))
}

func (api *xpApi) streak(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	info, err := api.svc.Streaks.Get(ctx.Request().Context(), uid)
	if err != nil {
		return errors.Wrap(err, "getting streak")
	}
	return ctx.JSON(http.StatusOK, info)
}

// checkIn records the daily activity of the user without granting XP.
func (api *xpApi) checkIn(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.Streaks.RecordActivity(ctx.Request().Context(), uid)
	if err != nil {
		return errors.Wrap(err, "recording activity")
	}
	checkAchievements(ctx, api.svc.Achievements, uid)
	return ctx.JSON(http.StatusOK, res)
}

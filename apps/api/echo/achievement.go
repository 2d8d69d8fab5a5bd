package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/apps/di"
	"github.com/edurpg/edurpg/core/achievement"
	"github.com/edurpg/edurpg/core/user"
)

type achievementApi struct {
	svc      *achievement.Service
	users    *user.Service
	validate *validator.Validate
}

func registerAchievementAPI(g *echo.Group, svc *di.Services, validate *validator.Validate) {
	api := achievementApi{svc: svc.Achievements, users: svc.Users, validate: validate}

	ag := g.Group("/achievements")
	ag.GET("", api.query, teacherOrAdminMiddleware())
	ag.POST("", api.create, adminMiddleware())
	ag.GET("/mine", api.mine)
	ag.GET("/users/:user_id", api.userAchievements, teacherOrAdminMiddleware())

	dg := ag.Group("/:id")
	dg.GET("", api.retrieve, teacherOrAdminMiddleware())
	dg.DELETE("", api.deactivate, adminMiddleware())
	dg.POST("/unlock", api.unlock, teacherOrAdminMiddleware())
}

func (api *achievementApi) query(ctx echo.Context) error {
	activeOnly := ctx.QueryParam("active") == "true"
	all, err := api.svc.List(ctx.Request().Context(), activeOnly)
	if err != nil {
		return errors.Wrap(err, "querying achievements")
	}
	return ctx.JSON(http.StatusOK, nonNil(all))
}

func (api *achievementApi) create(ctx echo.Context) error {
	var data achievement.NewAchievement
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAchievement")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	a, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating achievement")
	}
	return ctx.JSON(http.StatusCreated, a)
}

// mine unlocks whatever the user earned since the last visit before listing.
func (api *achievementApi) mine(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	c := ctx.Request().Context()
	if _, err = api.svc.Check(c, uid); err != nil {
		return errors.Wrap(err, "checking achievements")
	}
	owned, err := api.svc.ForUser(c, uid)
	if err != nil {
		return errors.Wrap(err, "getting own achievements")
	}
	return ctx.JSON(http.StatusOK, nonNil(owned))
}

func (api *achievementApi) userAchievements(ctx echo.Context) error {
	owned, err := api.svc.ForUser(ctx.Request().Context(), ctx.Param("user_id"))
	if err != nil {
		return errors.Wrap(err, "getting user achievements")
	}
	return ctx.JSON(http.StatusOK, nonNil(owned))
}

func (api *achievementApi) retrieve(ctx echo.Context) error {
	a, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting achievement")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *achievementApi) deactivate(ctx echo.Context) error {
	a, err := api.svc.Deactivate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deactivating achievement")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *achievementApi) unlock(ctx echo.Context) error {
	var data achievement.UnlockRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UnlockRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	by, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}
	res, err := api.svc.Unlock(ctx.Request().Context(), by, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "unlocking achievement")
	}
	status := http.StatusCreated
	if res.AlreadyUnlocked {
		status = http.StatusOK
	}
	return ctx.JSON(status, res)
}

// checkAchievements unlocks what the users just earned. Failures are logged, the request already succeeded.
func checkAchievements(ctx echo.Context, svc *achievement.Service, userIDs ...string) {
	for _, id := range userIDs {
		if _, err := svc.Check(ctx.Request().Context(), id); err != nil {
			ctx.Logger().Warnf("checking achievements of %s: %v", id, err)
		}
	}
}

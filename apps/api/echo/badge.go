package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/apps/di"
	"github.com/edurpg/edurpg/core/badge"
)

type badgeApi struct {
	svc      *badge.Service
	validate *validator.Validate
}

func registerBadgeAPI(g *echo.Group, svc *di.Services, validate *validator.Validate) {
	api := badgeApi{svc: svc.Badges, validate: validate}

	bg := g.Group("/badges")
	bg.GET("", api.query)
	bg.POST("", api.create, adminMiddleware())
	bg.GET("/stats", api.stats, adminMiddleware())
	bg.GET("/mine", api.mine)
	bg.GET("/users/:user_id", api.userBadges)

	dg := bg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, adminMiddleware())
	dg.DELETE("", api.destroy, adminMiddleware())
	dg.POST("/award", api.award, teacherOrAdminMiddleware())
	dg.DELETE("/users/:user_id", api.revoke, teacherOrAdminMiddleware())
	dg.POST("/pin", api.togglePin)
}

func (api *badgeApi) query(ctx echo.Context) error {
	badges, err := api.svc.List(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying badges")
	}
	return ctx.JSON(http.StatusOK, nonNil(badges))
}

func (api *badgeApi) create(ctx echo.Context) error {
	var data badge.NewBadge
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBadge")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	b, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating badge")
	}
	return ctx.JSON(http.StatusCreated, b)
}

func (api *badgeApi) stats(ctx echo.Context) error {
	st, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting badge stats")
	}
	return ctx.JSON(http.StatusOK, nonNil(st))
}

func (api *badgeApi) mine(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	owned, err := api.svc.UserBadges(ctx.Request().Context(), uid)
	if err != nil {
		return errors.Wrap(err, "getting own badges")
	}
	return ctx.JSON(http.StatusOK, nonNil(owned))
}

func (api *badgeApi) userBadges(ctx echo.Context) error {
	owned, err := api.svc.UserBadges(ctx.Request().Context(), ctx.Param("user_id"))
	if err != nil {
		return errors.Wrap(err, "getting user badges")
	}
	return ctx.JSON(http.StatusOK, nonNil(owned))
}

func (api *badgeApi) retrieve(ctx echo.Context) error {
	b, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting badge")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *badgeApi) update(ctx echo.Context) error {
	var data badge.UpdateBadge
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateBadge")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	b, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating badge")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *badgeApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting badge")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *badgeApi) award(ctx echo.Context) error {
	var data badge.AwardRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AwardRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	ub, err := api.svc.Award(ctx.Request().Context(), uid, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "awarding badge")
	}
	return ctx.JSON(http.StatusCreated, ub)
}

func (api *badgeApi) revoke(ctx echo.Context) error {
	if err := api.svc.Revoke(ctx.Request().Context(), ctx.Param("user_id"), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "revoking badge")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *badgeApi) togglePin(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	ub, err := api.svc.TogglePin(ctx.Request().Context(), uid, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "toggling badge pin")
	}
	return ctx.JSON(http.StatusOK, ub)
}

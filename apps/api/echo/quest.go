package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/apps/di"
	"github.com/edurpg/edurpg/core/achievement"
	"github.com/edurpg/edurpg/core/quest"
	"github.com/edurpg/edurpg/core/user"
)

type questApi struct {
	svc          *quest.Service
	users        *user.Service
	achievements *achievement.Service
	validate     *validator.Validate
}

func registerQuestAPI(g *echo.Group, svc *di.Services, validate *validator.Validate) {
	api := questApi{svc: svc.Quests, users: svc.Users, achievements: svc.Achievements, validate: validate}

	qg := g.Group("/quests")
	qg.GET("", api.query)
	qg.POST("", api.create, teacherOrAdminMiddleware())
	qg.GET("/mine", api.mine)

	dg := qg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, teacherOrAdminMiddleware())
	dg.DELETE("", api.destroy, teacherOrAdminMiddleware())
	dg.POST("/accept", api.accept)
	dg.PUT("/progress", api.progress)
	dg.POST("/complete", api.complete)
	dg.POST("/abandon", api.abandon)
}

func (api *questApi) query(ctx echo.Context) error {
	var filter quest.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []quest.Quest{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	quests, err := api.svc.List(ctx.Request().Context(), filter, ordering.Orderings, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying quests")
	}
	return ctx.JSON(http.StatusOK, nonNil(quests))
}

func (api *questApi) create(ctx echo.Context) error {
	var data quest.NewQuest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	by, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	q, err := api.svc.Create(ctx.Request().Context(), by, data)
	if err != nil {
		return errors.Wrap(err, "creating quest")
	}
	return ctx.JSON(http.StatusCreated, q)
}

func (api *questApi) mine(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	status := quest.ProgressStatus(ctx.QueryParam("status"))
	quests, err := api.svc.MyQuests(ctx.Request().Context(), uid, status)
	if err != nil {
		return errors.Wrap(err, "querying own quests")
	}
	return ctx.JSON(http.StatusOK, nonNil(quests))
}

func (api *questApi) retrieve(ctx echo.Context) error {
	q, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting quest")
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *questApi) update(ctx echo.Context) error {
	var data quest.UpdateQuest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateQuest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	by, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	q, err := api.svc.Update(ctx.Request().Context(), by, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating quest")
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *questApi) destroy(ctx echo.Context) error {
	by, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err := api.svc.Delete(ctx.Request().Context(), by, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting quest")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *questApi) accept(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	p, err := api.svc.Accept(ctx.Request().Context(), uid, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "accepting quest")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *questApi) progress(ctx echo.Context) error {
	var data quest.UpdateProgress
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProgress")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	p, err := api.svc.UpdateProgress(ctx.Request().Context(), uid, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating quest progress")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *questApi) complete(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.Complete(ctx.Request().Context(), uid, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "completing quest")
	}
	checkAchievements(ctx, api.achievements, uid)
	return ctx.JSON(http.StatusOK, res)
}

func (api *questApi) abandon(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	p, err := api.svc.Abandon(ctx.Request().Context(), uid, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "abandoning quest")
	}
	return ctx.JSON(http.StatusOK, p)
}

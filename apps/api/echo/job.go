package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/apps/di"
	"github.com/edurpg/edurpg/core/job"
	"github.com/edurpg/edurpg/core/user"
)

type jobApi struct {
	svc      *job.Service
	users    *user.Service
	validate *validator.Validate
}

func registerJobAPI(g *echo.Group, svc *di.Services, validate *validator.Validate) {
	api := jobApi{svc: svc.Jobs, users: svc.Users, validate: validate}

	jg := g.Group("/jobs")
	jg.GET("", api.query)
	jg.POST("", api.create, teacherOrAdminMiddleware())
	jg.GET("/mine", api.mine)

	dg := jg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.POST("/apply", api.apply)
	dg.POST("/close", api.close, teacherOrAdminMiddleware())
	dg.POST("/cancel", api.cancel, teacherOrAdminMiddleware())
	dg.POST("/applications/:student_id/approve", api.approve, teacherOrAdminMiddleware())
	dg.POST("/applications/:student_id/reject", api.reject, teacherOrAdminMiddleware())
}

func (api *jobApi) query(ctx echo.Context) error {
	var filter job.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []job.Job{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	jobs, err := api.svc.List(ctx.Request().Context(), filter, ordering.Orderings, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying jobs")
	}
	return ctx.JSON(http.StatusOK, nonNil(jobs))
}

func (api *jobApi) create(ctx echo.Context) error {
	var data job.NewJob
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewJob")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	by, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	j, err := api.svc.Create(ctx.Request().Context(), by, data)
	if err != nil {
		return errors.Wrap(err, "creating job")
	}
	return ctx.JSON(http.StatusCreated, j)
}

func (api *jobApi) mine(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	jobs, err := api.svc.MyJobs(ctx.Request().Context(), uid)
	if err != nil {
		return errors.Wrap(err, "querying own jobs")
	}
	return ctx.JSON(http.StatusOK, nonNil(jobs))
}

func (api *jobApi) retrieve(ctx echo.Context) error {
	d, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting job")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *jobApi) apply(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	a, err := api.svc.Apply(ctx.Request().Context(), uid, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "applying to job")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *jobApi) approve(ctx echo.Context) error {
	by, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	a, err := api.svc.Approve(ctx.Request().Context(), by, ctx.Param("id"), ctx.Param("student_id"))
	if err != nil {
		return errors.Wrap(err, "approving application")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *jobApi) reject(ctx echo.Context) error {
	by, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	a, err := api.svc.Reject(ctx.Request().Context(), by, ctx.Param("id"), ctx.Param("student_id"))
	if err != nil {
		return errors.Wrap(err, "rejecting application")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *jobApi) close(ctx echo.Context) error {
	by, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	res, err := api.svc.Close(ctx.Request().Context(), by, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "closing job")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *jobApi) cancel(ctx echo.Context) error {
	by, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	j, err := api.svc.Cancel(ctx.Request().Context(), by, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling job")
	}
	return ctx.JSON(http.StatusOK, j)
}

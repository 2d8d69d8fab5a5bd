package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/apps/di"
	"github.com/edurpg/edurpg/core/reward"
	"github.com/edurpg/edurpg/core/user"
)

type rewardApi struct {
	svc      *reward.Service
	users    *user.Service
	validate *validator.Validate
}

func registerRewardAPI(g *echo.Group, svc *di.Services, validate *validator.Validate) {
	api := rewardApi{svc: svc.Rewards, users: svc.Users, validate: validate}

	rg := g.Group("/rewards")
	rg.GET("", api.available)
	rg.POST("", api.create, teacherOrAdminMiddleware())
	rg.GET("/all", api.query, teacherOrAdminMiddleware())
	rg.GET("/claims", api.claims, teacherOrAdminMiddleware())
	rg.GET("/claims/mine", api.myClaims)

	cg := rg.Group("/claims/:claim_id", teacherOrAdminMiddleware())
	cg.POST("/approve", api.approve)
	cg.POST("/reject", api.reject)
	cg.POST("/complete", api.complete)

	dg := rg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, teacherOrAdminMiddleware())
	dg.DELETE("", api.deactivate, teacherOrAdminMiddleware())
	dg.POST("/claim", api.claim)
}

func (api *rewardApi) available(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	rewards, err := api.svc.Available(ctx.Request().Context(), uid, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying available rewards")
	}
	return ctx.JSON(http.StatusOK, nonNil(rewards))
}

func (api *rewardApi) query(ctx echo.Context) error {
	var filter reward.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []reward.Reward{})
	}
	rewards, err := api.svc.List(ctx.Request().Context(), filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying rewards")
	}
	return ctx.JSON(http.StatusOK, nonNil(rewards))
}

func (api *rewardApi) create(ctx echo.Context) error {
	var data reward.NewReward
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReward")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	by, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}
	r, err := api.svc.Create(ctx.Request().Context(), by, data)
	if err != nil {
		return errors.Wrap(err, "creating reward")
	}
	return ctx.JSON(http.StatusCreated, r)
}

func (api *rewardApi) retrieve(ctx echo.Context) error {
	r, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting reward")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *rewardApi) update(ctx echo.Context) error {
	var data reward.UpdateReward
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateReward")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	by, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}
	r, err := api.svc.Update(ctx.Request().Context(), by, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating reward")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *rewardApi) deactivate(ctx echo.Context) error {
	by, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}
	r, err := api.svc.Deactivate(ctx.Request().Context(), by, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deactivating reward")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *rewardApi) claim(ctx echo.Context) error {
	var data reward.ClaimRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ClaimRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	c, err := api.svc.Claim(ctx.Request().Context(), uid, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "claiming reward")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *rewardApi) myClaims(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	claims, err := api.svc.MyClaims(ctx.Request().Context(), uid, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying own claims")
	}
	return ctx.JSON(http.StatusOK, nonNil(claims))
}

func (api *rewardApi) claims(ctx echo.Context) error {
	var filter reward.ClaimFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []reward.ClaimDetails{})
	}
	claims, err := api.svc.Claims(ctx.Request().Context(), filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying claims")
	}
	return ctx.JSON(http.StatusOK, nonNil(claims))
}

func (api *rewardApi) approve(ctx echo.Context) error {
	var data reward.Decision
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Decision")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	by, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}
	c, err := api.svc.Approve(ctx.Request().Context(), by, ctx.Param("claim_id"), data)
	if err != nil {
		return errors.Wrap(err, "approving claim")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *rewardApi) reject(ctx echo.Context) error {
	var data reward.Rejection
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Rejection")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	by, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}
	c, err := api.svc.Reject(ctx.Request().Context(), by, ctx.Param("claim_id"), data)
	if err != nil {
		return errors.Wrap(err, "rejecting claim")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *rewardApi) complete(ctx echo.Context) error {
	by, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}
	c, err := api.svc.Complete(ctx.Request().Context(), by, ctx.Param("claim_id"))
	if err != nil {
		return errors.Wrap(err, "completing claim")
	}
	return ctx.JSON(http.StatusOK, c)
}

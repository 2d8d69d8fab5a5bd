package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/apps/di"
	"github.com/edurpg/edurpg/core/guild"
)

type guildApi struct {
	svc      *guild.Service
	validate *validator.Validate
}

type (
	RoleRequest struct {
		Role guild.Role `json:"role" validate:"required"`
	}

	TargetRequest struct {
		UserID string `json:"user_id" validate:"required"`
	}

	AmountRequest struct {
		Amount int `json:"amount" validate:"required,gt=0"`
	}
)

func registerGuildAPI(g *echo.Group, svc *di.Services, validate *validator.Validate) {
	api := guildApi{svc: svc.Guilds, validate: validate}

	gg := g.Group("/guilds")
	gg.GET("", api.query)
	gg.POST("", api.create)
	gg.GET("/mine", api.mine)

	dg := gg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.POST("/join", api.join)
	dg.POST("/leave", api.leave)
	dg.POST("/transfer-leadership", api.transferLeadership)
	dg.POST("/deposit", api.deposit)
	dg.GET("/activities", api.activities)
	dg.GET("/messages", api.messages)
	dg.POST("/messages", api.postMessage)
	dg.DELETE("/members/:user_id", api.kick)
	dg.PUT("/members/:user_id/role", api.setRole)
}

func (api *guildApi) query(ctx echo.Context) error {
	var filter guild.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []guild.Guild{})
	}
	guilds, err := api.svc.List(ctx.Request().Context(), filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying guilds")
	}
	return ctx.JSON(http.StatusOK, nonNil(guilds))
}

func (api *guildApi) create(ctx echo.Context) error {
	var data guild.NewGuild
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGuild")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	g, err := api.svc.Create(ctx.Request().Context(), uid, data)
	if err != nil {
		return errors.Wrap(err, "creating guild")
	}
	return ctx.JSON(http.StatusCreated, g)
}

func (api *guildApi) mine(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	d, err := api.svc.Mine(ctx.Request().Context(), uid)
	if err != nil {
		return errors.Wrap(err, "getting own guild")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *guildApi) retrieve(ctx echo.Context) error {
	d, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting guild")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *guildApi) update(ctx echo.Context) error {
	var data guild.UpdateGuild
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateGuild")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	g, err := api.svc.Update(ctx.Request().Context(), uid, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating guild")
	}
	return ctx.JSON(http.StatusOK, g)
}

func (api *guildApi) join(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	m, err := api.svc.Join(ctx.Request().Context(), uid, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "joining guild")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *guildApi) leave(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Leave(ctx.Request().Context(), uid, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "leaving guild")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *guildApi) kick(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Kick(ctx.Request().Context(), uid, ctx.Param("id"), ctx.Param("user_id")); err != nil {
		return errors.Wrap(err, "kicking member")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *guildApi) setRole(ctx echo.Context) error {
	var data RoleRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RoleRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	m, err := api.svc.SetRole(ctx.Request().Context(), uid, ctx.Param("id"), ctx.Param("user_id"), data.Role)
	if err != nil {
		return errors.Wrap(err, "setting member role")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *guildApi) transferLeadership(ctx echo.Context) error {
	var data TargetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TargetRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	g, err := api.svc.TransferLeadership(ctx.Request().Context(), uid, ctx.Param("id"), data.UserID)
	if err != nil {
		return errors.Wrap(err, "transferring leadership")
	}
	return ctx.JSON(http.StatusOK, g)
}

func (api *guildApi) deposit(ctx echo.Context) error {
	var data AmountRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AmountRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	g, err := api.svc.Deposit(ctx.Request().Context(), uid, ctx.Param("id"), data.Amount)
	if err != nil {
		return errors.Wrap(err, "depositing gold")
	}
	return ctx.JSON(http.StatusOK, g)
}

func (api *guildApi) activities(ctx echo.Context) error {
	acts, err := api.svc.Activities(ctx.Request().Context(), ctx.Param("id"), bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying guild activities")
	}
	return ctx.JSON(http.StatusOK, nonNil(acts))
}

func (api *guildApi) messages(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	msgs, err := api.svc.Messages(ctx.Request().Context(), uid, ctx.Param("id"), bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying guild messages")
	}
	return ctx.JSON(http.StatusOK, nonNil(msgs))
}

func (api *guildApi) postMessage(ctx echo.Context) error {
	var data guild.NewMessage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	msg, err := api.svc.PostMessage(ctx.Request().Context(), uid, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "posting message")
	}
	return ctx.JSON(http.StatusCreated, msg)
}

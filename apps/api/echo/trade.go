package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/apps/di"
	"github.com/edurpg/edurpg/core/trade"
)

type tradeApi struct {
	svc      *trade.Service
	validate *validator.Validate
}

func registerTradeAPI(g *echo.Group, svc *di.Services, validate *validator.Validate) {
	api := tradeApi{svc: svc.Trades, validate: validate}

	tg := g.Group("/trades")
	tg.GET("", api.query)
	tg.POST("", api.create)
	tg.GET("/:id", api.retrieve)
	tg.POST("/:id/accept", api.accept)
	tg.POST("/:id/reject", api.reject)
	tg.POST("/:id/cancel", api.cancel)
}

func (api *tradeApi) query(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	var filter trade.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []trade.Trade{})
	}
	trades, err := api.svc.List(ctx.Request().Context(), uid, filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying trades")
	}
	return ctx.JSON(http.StatusOK, nonNil(trades))
}

func (api *tradeApi) create(ctx echo.Context) error {
	var data trade.NewTrade
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTrade")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	t, err := api.svc.Create(ctx.Request().Context(), uid, data)
	if err != nil {
		return errors.Wrap(err, "creating trade")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *tradeApi) retrieve(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	t, err := api.svc.Get(ctx.Request().Context(), uid, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting trade")
	}
	return ctx.JSON(http.StatusOK, t)
}

// close runs one of the trade transitions on behalf of the context user.
func (api *tradeApi) close(ctx echo.Context, action string, fn func(ctx echo.Context, uid, id string) (trade.Trade, error)) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	t, err := fn(ctx, uid, ctx.Param("id"))
	if err != nil {
		return errors.Wrapf(err, "%s trade", action)
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *tradeApi) accept(ctx echo.Context) error {
	return api.close(ctx, "accepting", func(ctx echo.Context, uid, id string) (trade.Trade, error) {
		return api.svc.Accept(ctx.Request().Context(), uid, id)
	})
}

func (api *tradeApi) reject(ctx echo.Context) error {
	return api.close(ctx, "rejecting", func(ctx echo.Context, uid, id string) (trade.Trade, error) {
		return api.svc.Reject(ctx.Request().Context(), uid, id)
	})
}

func (api *tradeApi) cancel(ctx echo.Context) error {
	return api.close(ctx, "cancelling", func(ctx echo.Context, uid, id string) (trade.Trade, error) {
		return api.svc.Cancel(ctx.Request().Context(), uid, id)
	})
}

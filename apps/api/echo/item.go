package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/apps/di"
	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/item"
)

type itemApi struct {
	svc      *item.Service
	validate *validator.Validate
}

func registerItemAPI(g *echo.Group, svc *di.Services, validate *validator.Validate) {
	api := itemApi{svc: svc.Items, validate: validate}

	// catalog management
	ig := g.Group("/items", adminMiddleware())
	ig.GET("", api.query)
	ig.POST("", api.create)
	ig.GET("/:id", api.retrieve)
	ig.PUT("/:id", api.update)
	ig.DELETE("/:id", api.destroy)
	ig.POST("/:id/toggle", api.toggle)

	sg := g.Group("/shop")
	sg.GET("", api.shop)
	sg.POST("/:id/buy", api.buy)

	g.GET("/inventory", api.inventory)
}

func (api *itemApi) bindQuery(ctx echo.Context) (item.QueryFilter, []core.DBOrdering, error) {
	var filter item.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return filter, nil, err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)
	return filter, ordering.Orderings, nil
}

func (api *itemApi) query(ctx echo.Context) error {
	filter, ord, err := api.bindQuery(ctx)
	if err != nil {
		return ctx.JSON(http.StatusOK, []item.Item{})
	}
	items, err := api.svc.List(ctx.Request().Context(), filter, ord, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying items")
	}
	return ctx.JSON(http.StatusOK, nonNil(items))
}

func (api *itemApi) shop(ctx echo.Context) error {
	filter, ord, err := api.bindQuery(ctx)
	if err != nil {
		return ctx.JSON(http.StatusOK, []item.Item{})
	}
	items, err := api.svc.Shop(ctx.Request().Context(), filter, ord, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying shop")
	}
	return ctx.JSON(http.StatusOK, nonNil(items))
}

func (api *itemApi) create(ctx echo.Context) error {
	var data item.NewItem
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewItem")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	it, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating item")
	}
	return ctx.JSON(http.StatusCreated, it)
}

func (api *itemApi) retrieve(ctx echo.Context) error {
	it, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting item")
	}
	return ctx.JSON(http.StatusOK, it)
}

func (api *itemApi) update(ctx echo.Context) error {
	var data item.UpdateItem
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateItem")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	it, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating item")
	}
	return ctx.JSON(http.StatusOK, it)
}

func (api *itemApi) toggle(ctx echo.Context) error {
	it, err := api.svc.Toggle(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "toggling item")
	}
	return ctx.JSON(http.StatusOK, it)
}

func (api *itemApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting item")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *itemApi) buy(ctx echo.Context) error {
	var data item.BuyRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BuyRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	p, err := api.svc.Buy(ctx.Request().Context(), uid, ctx.Param("id"), data.Quantity)
	if err != nil {
		return errors.Wrap(err, "buying item")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *itemApi) inventory(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	inv, err := api.svc.Inventory(ctx.Request().Context(), uid)
	if err != nil {
		return errors.Wrap(err, "getting inventory")
	}
	return ctx.JSON(http.StatusOK, nonNil(inv))
}

package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/apps/di"
	"github.com/edurpg/edurpg/core/market"
)

type marketApi struct {
	svc      *market.Service
	validate *validator.Validate
}

type (
	WatchRequest struct {
		ItemID string `json:"item_id" validate:"required"`
	}

	SuspicionResponse struct {
		UserID     string `json:"user_id"`
		Suspicious bool   `json:"suspicious"`
	}
)

func registerMarketAPI(g *echo.Group, svc *di.Services, validate *validator.Validate) {
	api := marketApi{svc: svc.Market, validate: validate}

	mg := g.Group("/market")
	mg.GET("/eligibility", api.eligibility)
	mg.GET("/history", api.history)

	lg := mg.Group("/listings")
	lg.GET("", api.listings)
	lg.POST("", api.createListing)
	lg.GET("/:id", api.retrieveListing)
	lg.POST("/:id/buy", api.buy)
	lg.POST("/:id/cancel", api.cancel)

	pg := mg.Group("/prices/:item_id")
	pg.GET("", api.suggestedPrice)
	pg.GET("/history", api.priceHistory)

	rg := mg.Group("/reputation")
	rg.GET("", api.ownReputation)
	rg.GET("/:user_id", api.reputation)
	rg.POST("/:user_id/adjust", api.adjustTrust, adminMiddleware())
	rg.GET("/:user_id/suspicious", api.suspicious, adminMiddleware())

	wg := mg.Group("/watchlist")
	wg.GET("", api.watchlist)
	wg.POST("", api.watch)
	wg.DELETE("/:item_id", api.unwatch)
}

func (api *marketApi) eligibility(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	e, err := api.svc.CanTrade(ctx.Request().Context(), uid)
	if err != nil {
		return errors.Wrap(err, "checking trade eligibility")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *marketApi) listings(ctx echo.Context) error {
	var filter market.ListingFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []market.Listing{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	ls, err := api.svc.Listings(ctx.Request().Context(), filter, ordering.Orderings, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying listings")
	}
	return ctx.JSON(http.StatusOK, nonNil(ls))
}

func (api *marketApi) createListing(ctx echo.Context) error {
	var data market.NewListing
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewListing")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	l, err := api.svc.CreateListing(ctx.Request().Context(), uid, data)
	if err != nil {
		return errors.Wrap(err, "creating listing")
	}
	return ctx.JSON(http.StatusCreated, l)
}

func (api *marketApi) retrieveListing(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	l, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"), uid)
	if err != nil {
		return errors.Wrap(err, "getting listing")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *marketApi) buy(ctx echo.Context) error {
	var data market.BuyRequest
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
	tx, err := api.svc.Buy(ctx.Request().Context(), uid, ctx.Param("id"), data.Quantity)
	if err != nil {
		return errors.Wrap(err, "buying listing")
	}
	return ctx.JSON(http.StatusOK, tx)
}

func (api *marketApi) cancel(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	l, err := api.svc.Cancel(ctx.Request().Context(), uid, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling listing")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *marketApi) suggestedPrice(ctx echo.Context) error {
	s, err := api.svc.SuggestedPrice(ctx.Request().Context(), ctx.Param("item_id"))
	if err != nil {
		return errors.Wrap(err, "suggesting price")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *marketApi) priceHistory(ctx echo.Context) error {
	period := market.Period(ctx.QueryParam("period"))
	points, err := api.svc.PriceHistory(ctx.Request().Context(), ctx.Param("item_id"), period)
	if err != nil {
		return errors.Wrap(err, "getting price history")
	}
	return ctx.JSON(http.StatusOK, nonNil(points))
}

func (api *marketApi) ownReputation(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	rep, err := api.svc.Reputation(ctx.Request().Context(), uid)
	if err != nil {
		return errors.Wrap(err, "getting reputation")
	}
	return ctx.JSON(http.StatusOK, rep)
}

func (api *marketApi) reputation(ctx echo.Context) error {
	rep, err := api.svc.Reputation(ctx.Request().Context(), ctx.Param("user_id"))
	if err != nil {
		return errors.Wrap(err, "getting reputation")
	}
	return ctx.JSON(http.StatusOK, rep)
}

func (api *marketApi) adjustTrust(ctx echo.Context) error {
	var data market.TrustAdjustment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TrustAdjustment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	rep, err := api.svc.AdjustTrust(ctx.Request().Context(), ctx.Param("user_id"), data)
	if err != nil {
		return errors.Wrap(err, "adjusting trust")
	}
	return ctx.JSON(http.StatusOK, rep)
}

func (api *marketApi) suspicious(ctx echo.Context) error {
	uid := ctx.Param("user_id")
	sus, err := api.svc.IsSuspicious(ctx.Request().Context(), uid)
	if err != nil {
		return errors.Wrap(err, "checking suspicious activity")
	}
	return ctx.JSON(http.StatusOK, SuspicionResponse{UserID: uid, Suspicious: sus})
}

func (api *marketApi) history(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	txs, err := api.svc.History(ctx.Request().Context(), uid, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying market history")
	}
	return ctx.JSON(http.StatusOK, nonNil(txs))
}

func (api *marketApi) watchlist(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	ids, err := api.svc.Watchlist(ctx.Request().Context(), uid)
	if err != nil {
		return errors.Wrap(err, "getting watchlist")
	}
	return ctx.JSON(http.StatusOK, nonNil(ids))
}

func (api *marketApi) watch(ctx echo.Context) error {
	var data WatchRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to WatchRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Watch(ctx.Request().Context(), uid, data.ItemID); err != nil {
		return errors.Wrap(err, "watching item")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *marketApi) unwatch(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Unwatch(ctx.Request().Context(), uid, ctx.Param("item_id")); err != nil {
		return errors.Wrap(err, "unwatching item")
	}
	return ctx.NoContent(http.StatusNoContent)
}

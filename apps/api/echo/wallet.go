package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/apps/di"
	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/wallet"
)

type walletApi struct {
	svc      *wallet.Service
	validate *validator.Validate
}

func registerWalletAPI(g *echo.Group, svc *di.Services, validate *validator.Validate) {
	api := walletApi{svc: svc.Wallet, validate: validate}

	wg := g.Group("/wallet")
	wg.GET("", api.balance)
	wg.GET("/transactions", api.history)
	wg.POST("/transfer", api.transfer)
}

func (api *walletApi) balance(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	w, err := api.svc.Balance(ctx.Request().Context(), uid)
	if err != nil {
		return errors.Wrap(err, "getting wallet")
	}
	return ctx.JSON(http.StatusOK, w)
}

func (api *walletApi) history(ctx echo.Context) error {
	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	filter := wallet.HistoryFilter{Type: wallet.TxType(ctx.QueryParam("type"))}
	txs, err := api.svc.History(ctx.Request().Context(), uid, filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying transactions")
	}
	return ctx.JSON(http.StatusOK, nonNil(txs))
}

func (api *walletApi) transfer(ctx echo.Context) error {
	var data wallet.TransferRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TransferRequest")
	}
	data.Reason = core.CleanString(data.Reason, false)
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	uid, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.Transfer(ctx.Request().Context(), uid, data)
	if err != nil {
		return errors.Wrap(err, "transferring gold")
	}
	return ctx.JSON(http.StatusOK, res)
}

package market_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/item"
	"github.com/edurpg/edurpg/core/market"
	"github.com/edurpg/edurpg/core/notification"
	"github.com/edurpg/edurpg/core/user"
	"github.com/edurpg/edurpg/core/wallet"
	"github.com/edurpg/edurpg/tests"
)

var now = time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	env    *testutil.Env
	svc    *market.Service
	seller user.User
	buyer  user.User
	sword  item.Item
}

func setUp(t *testing.T) fixture {
	env := testutil.NewEnv(t)
	testutil.SetNow(t, now)
	f := fixture{
		env:    env,
		svc:    env.Svc.Market,
		seller: env.Student(t, "seller"),
		buyer:  env.Student(t, "buyer"),
		sword:  env.CreateItem(t, "Sword", 100, item.RarityRare),
	}
	env.SetLevel(t, f.seller.ID, 5)
	env.Give(t, f.seller.ID, f.sword.ID, 5)
	return f
}

func TestService_CanTrade(t *testing.T) {
	f := setUp(t)
	ctx := context.Background()

	elig, err := f.svc.CanTrade(ctx, f.seller.ID)
	require.NoError(t, err)
	assert.True(t, elig.CanTrade)

	elig, err = f.svc.CanTrade(ctx, f.buyer.ID)
	require.NoError(t, err)
	assert.False(t, elig.CanTrade)
	assert.Equal(t, "you must be at least level 5 to trade", elig.Reason)

	_, err = f.svc.CreateListing(ctx, f.buyer.ID, market.NewListing{ItemID: f.sword.ID, Quantity: 1})
	assert.True(t, core.IsKind(err, core.KindForbidden))

	rep, err := f.svc.AdjustTrust(ctx, f.seller.ID, market.TrustAdjustment{Delta: -40, Reason: "Reported for scamming"})
	require.NoError(t, err)
	assert.Equal(t, 10, rep.TrustScore)

	elig, err = f.svc.CanTrade(ctx, f.seller.ID)
	require.NoError(t, err)
	assert.False(t, elig.CanTrade)
	assert.Equal(t, "your trading reputation is too low", elig.Reason)

	notifs, err := f.env.Svc.Notifications.List(ctx, f.seller.ID, notification.QueryFilter{Type: notification.TypeMarket}, core.Page{})
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, "Reported for scamming", notifs[0].Message)

	rep, err = f.svc.AdjustTrust(ctx, f.seller.ID, market.TrustAdjustment{Delta: -100})
	require.NoError(t, err)
	assert.Equal(t, 0, rep.TrustScore)
	rep, err = f.svc.AdjustTrust(ctx, f.seller.ID, market.TrustAdjustment{Delta: 100})
	require.NoError(t, err)
	rep, err = f.svc.AdjustTrust(ctx, f.seller.ID, market.TrustAdjustment{Delta: 100})
	require.NoError(t, err)
	assert.Equal(t, market.MaxTrustScore, rep.TrustScore)
}

func TestService_CreateListing(t *testing.T) {
	f := setUp(t)
	ctx := context.Background()
	bound, err := f.env.Svc.Items.Create(ctx, item.NewItem{
		Name: "Soulbound", Price: 10, Rarity: item.RarityEpic, Type: item.TypeCosmetic, Tradeable: testutil.BoolPtr(false),
	})
	require.NoError(t, err)
	f.env.Give(t, f.seller.ID, bound.ID, 1)

	tests := []struct {
		name    string
		listing market.NewListing
		wantErr error
	}{
		{name: "unknown item", listing: market.NewListing{ItemID: "nope", Quantity: 1}, wantErr: item.ErrNotFound},
		{name: "not tradeable", listing: market.NewListing{ItemID: bound.ID, Quantity: 1}, wantErr: market.ErrNotTradeable},
		{name: "too cheap", listing: market.NewListing{ItemID: f.sword.ID, Quantity: 1, PricePerUnit: 9}, wantErr: market.ErrPriceTooLow},
		{name: "too expensive", listing: market.NewListing{ItemID: f.sword.ID, Quantity: 1, PricePerUnit: 501}, wantErr: market.ErrPriceTooHigh},
		{name: "not enough items", listing: market.NewListing{ItemID: f.sword.ID, Quantity: 6, PricePerUnit: 50}, wantErr: item.ErrInsufficientQuantity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateListing(ctx, f.seller.ID, tt.listing)
			assert.Equal(t, tt.wantErr, errors.Cause(err))
			assert.Equal(t, 5, f.env.Quantity(t, f.seller.ID, f.sword.ID))
		})
	}

	l, err := f.svc.CreateListing(ctx, f.seller.ID, market.NewListing{ItemID: f.sword.ID, Quantity: 3, PricePerUnit: 50})
	require.NoError(t, err)
	assert.Equal(t, market.ListingActive, l.Status)
	assert.Equal(t, 3, l.Remaining)
	assert.Equal(t, now.Add(f.env.Conf.Game.ListingTTL), l.ExpiresAt)
	// listed items are held until the listing closes
	assert.Equal(t, 2, f.env.Quantity(t, f.seller.ID, f.sword.ID))

	// without a price the recommended one is used
	l, err = f.svc.CreateListing(ctx, f.seller.ID, market.NewListing{ItemID: f.sword.ID, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, 400, l.PricePerUnit)

	listings, err := f.svc.Listings(ctx, market.ListingFilter{ItemID: f.sword.ID}, []core.DBOrdering{{Field: "price_per_unit", Ascending: true}}, core.Page{})
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, 50, listings[0].PricePerUnit)
}

func TestService_Buy(t *testing.T) {
	f := setUp(t)
	ctx := context.Background()
	f.env.Fund(t, f.buyer.ID, 200)

	l, err := f.svc.CreateListing(ctx, f.seller.ID, market.NewListing{ItemID: f.sword.ID, Quantity: 3, PricePerUnit: 50})
	require.NoError(t, err)

	viewed, err := f.svc.Get(ctx, l.ID, f.buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, viewed.Views)
	viewed, err = f.svc.Get(ctx, l.ID, f.seller.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, viewed.Views)

	_, err = f.svc.Buy(ctx, f.seller.ID, l.ID, 1)
	assert.Equal(t, market.ErrOwnListing, err)
	_, err = f.svc.Buy(ctx, f.buyer.ID, l.ID, 0)
	assert.Equal(t, item.ErrInvalidQuantity, err)
	_, err = f.svc.Buy(ctx, f.buyer.ID, l.ID, 4)
	assert.Equal(t, market.ErrNotEnoughRemaining, err)

	tx, err := f.svc.Buy(ctx, f.buyer.ID, l.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 100, tx.Total)
	assert.Equal(t, 5, tx.Fee)
	assert.Equal(t, 100, f.env.Balance(t, f.buyer.ID))
	assert.Equal(t, 95, f.env.Balance(t, f.seller.ID))
	assert.Equal(t, 2, f.env.Quantity(t, f.buyer.ID, f.sword.ID))

	fees, err := f.env.Svc.Wallet.History(ctx, f.seller.ID, wallet.HistoryFilter{Type: wallet.TxFee}, core.Page{})
	require.NoError(t, err)
	require.Len(t, fees, 1)
	assert.Equal(t, -5, fees[0].Amount)

	l, err = f.svc.Get(ctx, l.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, l.Remaining)
	assert.Equal(t, market.ListingActive, l.Status)

	_, err = f.svc.Buy(ctx, f.buyer.ID, l.ID, 1)
	require.NoError(t, err)
	l, err = f.svc.Get(ctx, l.ID, "")
	require.NoError(t, err)
	assert.Equal(t, market.ListingSold, l.Status)
	assert.Equal(t, now, l.ClosedAt)

	_, err = f.svc.Buy(ctx, f.buyer.ID, l.ID, 1)
	assert.Equal(t, market.ErrNotActive, err)

	sellerRep, err := f.svc.Reputation(ctx, f.seller.ID)
	require.NoError(t, err)
	assert.Equal(t, market.Reputation{UserID: f.seller.ID, TrustScore: 52, TotalSales: 2, UpdatedAt: now}, sellerRep)
	buyerRep, err := f.svc.Reputation(ctx, f.buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, buyerRep.TotalPurchases)

	history, err := f.svc.History(ctx, f.buyer.ID, core.Page{})
	require.NoError(t, err)
	assert.Len(t, history, 2)

	notifs, err := f.env.Svc.Notifications.List(ctx, f.seller.ID, notification.QueryFilter{Type: notification.TypeMarket}, core.Page{})
	require.NoError(t, err)
	require.Len(t, notifs, 2)
	assert.Equal(t, "You sold 2 x Sword for 95 gold (fee 5)", notifs[1].Message)
}

func TestService_Buy_insufficientFunds(t *testing.T) {
	f := setUp(t)
	ctx := context.Background()
	f.env.Fund(t, f.buyer.ID, 10)

	l, err := f.svc.CreateListing(ctx, f.seller.ID, market.NewListing{ItemID: f.sword.ID, Quantity: 1, PricePerUnit: 50})
	require.NoError(t, err)

	_, err = f.svc.Buy(ctx, f.buyer.ID, l.ID, 1)
	assert.Equal(t, wallet.ErrInsufficientFunds, errors.Cause(err))
	assert.Equal(t, 10, f.env.Balance(t, f.buyer.ID))
	assert.Equal(t, 0, f.env.Quantity(t, f.buyer.ID, f.sword.ID))
	l, err = f.svc.Get(ctx, l.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, l.Remaining)
}

func TestService_Cancel(t *testing.T) {
	f := setUp(t)
	ctx := context.Background()

	l, err := f.svc.CreateListing(ctx, f.seller.ID, market.NewListing{ItemID: f.sword.ID, Quantity: 4, PricePerUnit: 50})
	require.NoError(t, err)
	assert.Equal(t, 1, f.env.Quantity(t, f.seller.ID, f.sword.ID))

	_, err = f.svc.Cancel(ctx, f.buyer.ID, l.ID)
	assert.Equal(t, market.ErrNotSeller, err)

	l, err = f.svc.Cancel(ctx, f.seller.ID, l.ID)
	require.NoError(t, err)
	assert.Equal(t, market.ListingCancelled, l.Status)
	assert.Equal(t, 5, f.env.Quantity(t, f.seller.ID, f.sword.ID))

	_, err = f.svc.Cancel(ctx, f.seller.ID, l.ID)
	assert.Equal(t, market.ErrNotActive, err)

	listings, err := f.svc.Listings(ctx, market.ListingFilter{}, nil, core.Page{})
	require.NoError(t, err)
	assert.Empty(t, listings)
	listings, err = f.svc.Listings(ctx, market.ListingFilter{Status: market.ListingCancelled}, nil, core.Page{})
	require.NoError(t, err)
	assert.Len(t, listings, 1)
}

func TestService_ExpireListings(t *testing.T) {
	f := setUp(t)
	ctx := context.Background()
	f.env.Fund(t, f.buyer.ID, 100)

	l, err := f.svc.CreateListing(ctx, f.seller.ID, market.NewListing{ItemID: f.sword.ID, Quantity: 2, PricePerUnit: 50})
	require.NoError(t, err)

	testutil.SetNow(t, l.ExpiresAt)
	_, err = f.svc.Buy(ctx, f.buyer.ID, l.ID, 1)
	assert.Equal(t, market.ErrExpired, err)

	count, err := f.svc.ExpireListings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 5, f.env.Quantity(t, f.seller.ID, f.sword.ID))

	l, err = f.svc.Get(ctx, l.ID, "")
	require.NoError(t, err)
	assert.Equal(t, market.ListingExpired, l.Status)

	notifs, err := f.env.Svc.Notifications.List(ctx, f.seller.ID, notification.QueryFilter{}, core.Page{})
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, "Listing expired", notifs[0].Title)

	count, err = f.svc.ExpireListings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestService_prices(t *testing.T) {
	f := setUp(t)
	ctx := context.Background()
	f.env.Fund(t, f.buyer.ID, 500)

	s, err := f.svc.SuggestedPrice(ctx, f.sword.ID)
	require.NoError(t, err)
	assert.Equal(t, 400, s.Recommended)
	assert.Equal(t, 4.0, s.RarityMultiplier)
	assert.Equal(t, 1.0, s.DemandMultiplier)
	assert.Equal(t, 10, s.MinPrice)
	assert.Equal(t, 500, s.MaxPrice)
	assert.Equal(t, market.TrendStable, s.Trend)
	assert.Equal(t, 0, s.Popularity)

	for _, price := range []int{40, 60} {
		l, err := f.svc.CreateListing(ctx, f.seller.ID, market.NewListing{ItemID: f.sword.ID, Quantity: 1, PricePerUnit: price})
		require.NoError(t, err)
		_, err = f.svc.Buy(ctx, f.buyer.ID, l.ID, 1)
		require.NoError(t, err)
	}

	_, err = f.svc.SnapshotPrices(ctx, "YEARLY")
	assert.Equal(t, market.ErrInvalidPeriod, err)

	count, err := f.svc.SnapshotPrices(ctx, market.PeriodDaily)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	// snapshots of the same period replace each other
	count, err = f.svc.SnapshotPrices(ctx, market.PeriodDaily)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	history, err := f.svc.PriceHistory(ctx, f.sword.ID, "")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 50, history[0].AvgPrice)
	assert.Equal(t, 40, history[0].LowPrice)
	assert.Equal(t, 60, history[0].HighPrice)
	assert.Equal(t, 60, history[0].MedianPrice)
	assert.Equal(t, 2, history[0].TotalSold)

	history, err = f.svc.PriceHistory(ctx, f.sword.ID, market.PeriodWeekly)
	require.NoError(t, err)
	assert.Empty(t, history)
	_, err = f.svc.PriceHistory(ctx, "nope", market.PeriodDaily)
	assert.Equal(t, item.ErrNotFound, errors.Cause(err))

	s, err = f.svc.SuggestedPrice(ctx, f.sword.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Demand.Sales24h)
	assert.Equal(t, 4, s.Popularity)
}

func TestService_watchlist(t *testing.T) {
	f := setUp(t)
	ctx := context.Background()

	assert.Equal(t, item.ErrNotFound, errors.Cause(f.svc.Watch(ctx, f.buyer.ID, "nope")))
	require.NoError(t, f.svc.Watch(ctx, f.buyer.ID, f.sword.ID))
	require.NoError(t, f.svc.Watch(ctx, f.buyer.ID, f.sword.ID))

	ids, err := f.svc.Watchlist(ctx, f.buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{f.sword.ID}, ids)

	require.NoError(t, f.svc.Unwatch(ctx, f.buyer.ID, f.sword.ID))
	ids, err = f.svc.Watchlist(ctx, f.buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestService_IsSuspicious(t *testing.T) {
	f := setUp(t)
	ctx := context.Background()

	suspicious, err := f.svc.IsSuspicious(ctx, f.buyer.ID)
	require.NoError(t, err)
	assert.False(t, suspicious)

	f.env.Fund(t, f.buyer.ID, 100001)
	suspicious, err = f.svc.IsSuspicious(ctx, f.buyer.ID)
	require.NoError(t, err)
	assert.True(t, suspicious)
}

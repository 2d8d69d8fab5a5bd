package item_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/guild"
	"github.com/edurpg/edurpg/core/item"
	"github.com/edurpg/edurpg/core/wallet"
	"github.com/edurpg/edurpg/tests"
)

func TestService_catalog(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.Svc.Items
	ctx := context.Background()

	ni := item.NewItem{Name: " Golden Quill ", Price: 120, Rarity: item.RarityRare, Type: item.TypeCosmetic}
	require.NoError(t, ni.Validate(env.Validate))
	quill, err := svc.Create(ctx, ni)
	require.NoError(t, err)
	assert.Equal(t, "Golden Quill", quill.Name)
	assert.True(t, quill.Purchasable)
	assert.True(t, quill.Tradeable)
	assert.True(t, quill.IsActive)

	_, err = svc.Create(ctx, item.NewItem{Name: "golden quill", Rarity: item.RarityCommon, Type: item.TypeCosmetic})
	assert.Equal(t, item.ErrNameTaken, errors.Cause(err))

	invalid := []item.NewItem{
		{Name: "Bad rarity", Rarity: "SHINY", Type: item.TypeCosmetic},
		{Name: "Bad type", Rarity: item.RarityCommon, Type: "FOOD"},
		{Name: "Too pricey", Rarity: item.RarityCommon, Type: item.TypeBoost, Price: item.MaxPrice + 1},
		{Name: "   ", Rarity: item.RarityCommon, Type: item.TypeBoost},
	}
	for _, ni := range invalid {
		assert.Error(t, ni.Validate(env.Validate), ni.Name)
	}

	badge, err := svc.Create(ctx, item.NewItem{
		Name: "Founder pin", Rarity: item.RarityLegendary, Type: item.TypeCollectible, Purchasable: testutil.BoolPtr(false),
	})
	require.NoError(t, err)
	apple := env.CreateItem(t, "Apple", 5, item.RarityCommon)

	items, err := svc.List(ctx, item.QueryFilter{}, nil, core.Page{})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, apple.ID, items[0].ID, "ordered by name by default")

	items, err = svc.List(ctx, item.QueryFilter{}, []core.DBOrdering{{Field: "rarity"}}, core.Page{})
	require.NoError(t, err)
	assert.Equal(t, badge.ID, items[0].ID)

	shop, err := svc.Shop(ctx, item.QueryFilter{}, nil, core.Page{})
	require.NoError(t, err)
	assert.Len(t, shop, 2)

	apple, err = svc.Toggle(ctx, apple.ID)
	require.NoError(t, err)
	assert.False(t, apple.IsActive)
	shop, err = svc.Shop(ctx, item.QueryFilter{}, nil, core.Page{})
	require.NoError(t, err)
	require.Len(t, shop, 1)
	assert.Equal(t, quill.ID, shop[0].ID)

	quill, err = svc.Update(ctx, quill.ID, item.UpdateItem{Price: testutil.IntPtr(150), Tradeable: testutil.BoolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, 150, quill.Price)
	assert.False(t, quill.Tradeable)
	_, err = svc.Update(ctx, quill.ID, item.UpdateItem{Name: testutil.StrPtr("Apple")})
	assert.Equal(t, item.ErrNameTaken, errors.Cause(err))

	many, err := svc.GetMany(ctx, quill.ID, apple.ID, "unknown")
	require.NoError(t, err)
	assert.Len(t, many, 2)

	require.NoError(t, svc.Delete(ctx, badge.ID))
	_, err = svc.Get(ctx, badge.ID)
	assert.Equal(t, item.ErrNotFound, errors.Cause(err))
	assert.Equal(t, item.ErrNotFound, errors.Cause(svc.Delete(ctx, badge.ID)))
}

func TestService_Buy(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.Svc.Items
	ctx := context.Background()
	student := env.Student(t, "student")
	sword := env.CreateItem(t, "Sword", 40, item.RarityUncommon)
	hidden, err := svc.Create(ctx, item.NewItem{
		Name: "Hidden", Price: 1, Rarity: item.RarityCommon, Type: item.TypeBoost, Purchasable: testutil.BoolPtr(false),
	})
	require.NoError(t, err)
	env.Fund(t, student.ID, 100)

	tests := []struct {
		name    string
		itemID  string
		qty     int
		wantErr error
	}{
		{name: "zero quantity", itemID: sword.ID, qty: 0, wantErr: item.ErrInvalidQuantity},
		{name: "unknown item", itemID: "nope", qty: 1, wantErr: item.ErrNotFound},
		{name: "not for sale", itemID: hidden.ID, qty: 1, wantErr: item.ErrNotForSale},
		{name: "too poor", itemID: sword.ID, qty: 3, wantErr: wallet.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Buy(ctx, student.ID, tt.itemID, tt.qty)
			assert.Equal(t, tt.wantErr, errors.Cause(err))
			assert.Equal(t, 100, env.Balance(t, student.ID))
			assert.Equal(t, 0, env.Quantity(t, student.ID, sword.ID))
		})
	}

	p, err := svc.Buy(ctx, student.ID, sword.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 40, p.UnitPrice)
	assert.Equal(t, 80, p.Total)
	assert.Equal(t, 0, p.Discount)
	assert.Equal(t, 2, p.Owned)
	assert.NotEmpty(t, p.TxID)
	assert.Equal(t, 20, env.Balance(t, student.ID))

	history, err := env.Svc.Wallet.History(ctx, student.ID, wallet.HistoryFilter{Type: wallet.TxSpent}, core.Page{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Bought 2 x Sword", history[0].Reason)
}

func TestService_Buy_guildDiscount(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	student := env.Student(t, "student")
	shield := env.CreateItem(t, "Shield", 100, item.RarityRare)
	env.Fund(t, student.ID, 100)

	g, err := env.Svc.Guilds.Create(ctx, student.ID, guild.NewGuild{Name: "Owls"})
	require.NoError(t, err)
	_, err = env.Svc.Guilds.AddXP(ctx, g.ID, 1000)
	require.NoError(t, err)

	p, err := env.Svc.Items.Buy(ctx, student.ID, shield.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, p.Discount)
	assert.Equal(t, 95, p.UnitPrice)
	assert.Equal(t, 5, env.Balance(t, student.ID))
}

func TestService_inventory(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.Svc.Items
	ctx := context.Background()
	student := env.Student(t, "student")
	gem := env.CreateItem(t, "Gem", 10, item.RarityEpic)
	coin := env.CreateItem(t, "Coin", 1, item.RarityCommon)

	testutil.SetNow(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	env.Give(t, student.ID, gem.ID, 2)
	testutil.SetNow(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	env.Give(t, student.ID, coin.ID, 7)

	inv, err := svc.Inventory(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, inv, 2)
	assert.Equal(t, coin.ID, inv[0].Item.ID)
	assert.Equal(t, 7, inv[0].Quantity)
	assert.Equal(t, gem.ID, inv[1].Item.ID)

	_, err = svc.AddToInventory(ctx, student.ID, gem.ID, 0)
	assert.Equal(t, item.ErrInvalidQuantity, err)
	_, err = svc.RemoveFromInventory(ctx, student.ID, gem.ID, -1)
	assert.Equal(t, item.ErrInvalidQuantity, err)
	_, err = svc.RemoveFromInventory(ctx, student.ID, gem.ID, 3)
	assert.Equal(t, item.ErrInsufficientQuantity, errors.Cause(err))

	left, err := svc.RemoveFromInventory(ctx, student.ID, gem.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, left)

	inv, err = svc.Inventory(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, inv, 1)
	assert.Equal(t, coin.ID, inv[0].Item.ID)

	empty, err := svc.Inventory(ctx, env.Student(t, "broke").ID)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

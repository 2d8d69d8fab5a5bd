// Package item holds the item catalog, the shop and user inventories.
package item

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/guild"
	"github.com/edurpg/edurpg/core/wallet"
)

var (
	ErrNotFound             = core.NewNotFoundError("item not found")
	ErrNameTaken            = core.NewConflictError("an item with this name already exists")
	ErrNotForSale           = core.NewInvalidError("item is not for sale")
	ErrInvalidQuantity      = core.NewInvalidError("quantity must be positive")
	ErrInsufficientQuantity = core.NewInvalidError("not enough items in inventory")
	ErrNotTradeable         = core.NewInvalidError("item is not tradeable")
)

type (
	Repository interface {
		// CreateItem fails with ErrNameTaken if the name is used.
		CreateItem(ctx context.Context, it Item) (Item, error)
		GetItem(ctx context.Context, id string) (Item, error)
		QueryItems(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Page) ([]Item, error)
		// UpdateItem persists all fields of it but ID & CreatedAt.
		UpdateItem(ctx context.Context, it Item) (Item, error)
		DeleteItem(ctx context.Context, id string) error

		// GetInventoryItem returns a zero quantity row if the user does not own the item.
		GetInventoryItem(ctx context.Context, userID, itemID string) (InventoryItem, error)
		// AdjustInventory atomically adds delta to the owned quantity, returning the new quantity.
		// It fails with ErrInsufficientQuantity when the quantity would become negative; rows reaching 0 are removed.
		AdjustInventory(ctx context.Context, userID, itemID string, delta int) (int, error)
		// QueryInventory returns the user's inventory, most recently acquired first.
		QueryInventory(ctx context.Context, userID string) ([]InventoryItem, error)
	}

	debiter interface {
		Debit(ctx context.Context, e wallet.Entry) (wallet.Transaction, error)
	}

	bonusProvider interface {
		Bonus(ctx context.Context, userID string, typ guild.BenefitType) (int, error)
	}

	Service struct {
		repo   Repository
		tx     core.Transactor
		wallet debiter
		guilds bonusProvider
	}
)

func NewService(repo Repository, tx core.Transactor, wallet debiter, guilds bonusProvider) *Service {
	return &Service{repo: repo, tx: tx, wallet: wallet, guilds: guilds}
}

func (svc *Service) Create(ctx context.Context, ni NewItem) (Item, error) {
	now := core.Now()
	it := Item{
		Name:        ni.Name,
		Description: ni.Description,
		Price:       ni.Price,
		Rarity:      ni.Rarity,
		Type:        ni.Type,
		ImageURL:    ni.ImageURL,
		Purchasable: true,
		Tradeable:   true,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if ni.Purchasable != nil {
		it.Purchasable = *ni.Purchasable
	}
	if ni.Tradeable != nil {
		it.Tradeable = *ni.Tradeable
	}
	return svc.repo.CreateItem(ctx, it)
}

func (svc *Service) Get(ctx context.Context, id string) (Item, error) {
	return svc.repo.GetItem(ctx, id)
}

func (svc *Service) List(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Page) ([]Item, error) {
	page.Clean()
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryItems(ctx, filter, core.FilterOrderings(ordering, OrderingFields...), page)
}

// Shop lists the items currently for sale.
func (svc *Service) Shop(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Page) ([]Item, error) {
	filter.ActiveOnly = true
	filter.PurchasableOnly = true
	return svc.List(ctx, filter, ordering, page)
}

// GetMany returns the items with the given IDs, keyed by ID.
func (svc *Service) GetMany(ctx context.Context, ids ...string) (map[string]Item, error) {
	res := make(map[string]Item, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	for _, chunk := range core.Chunks(ids) {
		items, err := svc.repo.QueryItems(ctx, QueryFilter{IDs: chunk}, nil, core.Page{Number: 1, Size: len(chunk)})
		if err != nil {
			return nil, errors.Wrap(err, "querying items")
		}
		for _, it := range items {
			res[it.ID] = it
		}
	}
	return res, nil
}

func (svc *Service) Update(ctx context.Context, id string, ui UpdateItem) (Item, error) {
	it, err := svc.repo.GetItem(ctx, id)
	if err != nil {
		return Item{}, err
	}
	if ui.Name != nil {
		it.Name = core.CleanString(*ui.Name)
	}
	if ui.Description != nil {
		it.Description = core.CleanString(*ui.Description)
	}
	if ui.Price != nil {
		it.Price = *ui.Price
	}
	if ui.Rarity != nil {
		it.Rarity = *ui.Rarity
	}
	if ui.Type != nil {
		it.Type = *ui.Type
	}
	if ui.ImageURL != nil {
		it.ImageURL = *ui.ImageURL
	}
	if ui.Purchasable != nil {
		it.Purchasable = *ui.Purchasable
	}
	if ui.Tradeable != nil {
		it.Tradeable = *ui.Tradeable
	}
	if ui.IsActive != nil {
		it.IsActive = *ui.IsActive
	}
	it.UpdatedAt = core.Now()
	return svc.repo.UpdateItem(ctx, it)
}

// Toggle flips the active flag of the item.
func (svc *Service) Toggle(ctx context.Context, id string) (Item, error) {
	it, err := svc.repo.GetItem(ctx, id)
	if err != nil {
		return Item{}, err
	}
	it.IsActive = !it.IsActive
	it.UpdatedAt = core.Now()
	return svc.repo.UpdateItem(ctx, it)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	if _, err := svc.repo.GetItem(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteItem(ctx, id)
}

// Buy purchases items from the shop, applying the buyer's guild shop discount.
func (svc *Service) Buy(ctx context.Context, userID, itemID string, qty int) (Purchase, error) {
	if qty <= 0 {
		return Purchase{}, ErrInvalidQuantity
	}
	var p Purchase
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		it, err := svc.repo.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if !it.IsActive || !it.Purchasable {
			return ErrNotForSale
		}
		discount, err := svc.guilds.Bonus(ctx, userID, guild.BenefitShopDiscount)
		if err != nil {
			return errors.Wrap(err, "getting shop discount")
		}

		p = Purchase{Item: it, Quantity: qty, Discount: discount}
		p.UnitPrice = it.Price - core.PercentOf(it.Price, discount)
		p.Total = p.UnitPrice * qty
		if p.Total > 0 {
			tx, err := svc.wallet.Debit(ctx, wallet.Entry{
				UserID:  userID,
				Amount:  p.Total,
				Type:    wallet.TxSpent,
				Reason:  fmt.Sprintf("Bought %d x %s", qty, it.Name),
				RefType: "item",
				RefID:   it.ID,
			})
			if err != nil {
				return err
			}
			p.TxID = tx.ID
		}
		p.Owned, err = svc.repo.AdjustInventory(ctx, userID, itemID, qty)
		return errors.Wrap(err, "adding to inventory")
	})
	return p, err
}

func (svc *Service) Inventory(ctx context.Context, userID string) ([]InventoryEntry, error) {
	rows, err := svc.repo.QueryInventory(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying inventory")
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ItemID)
	}
	items, err := svc.GetMany(ctx, ids...)
	if err != nil {
		return nil, err
	}
	res := make([]InventoryEntry, 0, len(rows))
	for _, r := range rows {
		if it, ok := items[r.ItemID]; ok {
			res = append(res, InventoryEntry{Item: it, Quantity: r.Quantity, AcquiredAt: r.AcquiredAt})
		}
	}
	return res, nil
}

// Quantity returns how many of the item the user owns.
func (svc *Service) Quantity(ctx context.Context, userID, itemID string) (int, error) {
	inv, err := svc.repo.GetInventoryItem(ctx, userID, itemID)
	if err != nil {
		return 0, errors.Wrap(err, "getting inventory item")
	}
	return inv.Quantity, nil
}

func (svc *Service) AddToInventory(ctx context.Context, userID, itemID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	return svc.repo.AdjustInventory(ctx, userID, itemID, qty)
}

// RemoveFromInventory fails with ErrInsufficientQuantity if the user owns less than qty.
func (svc *Service) RemoveFromInventory(ctx context.Context, userID, itemID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	return svc.repo.AdjustInventory(ctx, userID, itemID, -qty)
}

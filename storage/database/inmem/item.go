package inmemdb

import (
	"context"
	"strings"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/item"
)

var rarityOrder = map[item.Rarity]int{
	item.RarityCommon:    1,
	item.RarityUncommon:  2,
	item.RarityRare:      3,
	item.RarityEpic:      4,
	item.RarityLegendary: 5,
}

type itemRepository struct {
	db *DB
}

var _ item.Repository = (*itemRepository)(nil)

func NewItemRepository(db *DB) *itemRepository {
	return &itemRepository{db: db}
}

func nameTaken(t *tables, name, exceptID string) bool {
	for _, it := range t.items {
		if it.ID != exceptID && strings.EqualFold(it.Name, name) {
			return true
		}
	}
	return false
}

func (repo *itemRepository) CreateItem(ctx context.Context, it item.Item) (item.Item, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		if nameTaken(t, it.Name, "") {
			return item.ErrNameTaken
		}
		it.ID = newID()
		t.items[it.ID] = it
		return nil
	})
	return it, err
}

func (repo *itemRepository) GetItem(ctx context.Context, id string) (item.Item, error) {
	var it item.Item
	err := repo.db.read(ctx, func(t *tables) error {
		var ok bool
		if it, ok = t.items[id]; !ok {
			return item.ErrNotFound
		}
		return nil
	})
	return it, err
}

var itemFields = map[string]comparer[item.Item]{
	"name":       func(a, b item.Item) int { return strings.Compare(a.Name, b.Name) },
	"price":      func(a, b item.Item) int { return cmpInt(a.Price, b.Price) },
	"rarity":     func(a, b item.Item) int { return cmpInt(rarityOrder[a.Rarity], rarityOrder[b.Rarity]) },
	"created_at": func(a, b item.Item) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
}

func (repo *itemRepository) QueryItems(ctx context.Context, filter item.QueryFilter, ordering []core.DBOrdering, page core.Page) ([]item.Item, error) {
	var res []item.Item
	err := repo.db.read(ctx, func(t *tables) error {
		for _, it := range t.items {
			switch {
			case filter.IDs != nil && !inSlice(filter.IDs, it.ID),
				filter.Search != "" && !contains(it.Name, filter.Search) && !contains(it.Description, filter.Search),
				filter.Rarity != "" && it.Rarity != filter.Rarity,
				filter.Type != "" && it.Type != filter.Type,
				filter.ActiveOnly && !it.IsActive,
				filter.PurchasableOnly && !it.Purchasable:
				continue
			}
			res = append(res, it)
		}
		return nil
	})
	orderBy(res, ordering, itemFields, func(a, b item.Item) bool { return a.Name < b.Name })
	return paginate(res, page), err
}

func (repo *itemRepository) UpdateItem(ctx context.Context, it item.Item) (item.Item, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		orig, ok := t.items[it.ID]
		if !ok {
			return item.ErrNotFound
		}
		if nameTaken(t, it.Name, it.ID) {
			return item.ErrNameTaken
		}
		it.CreatedAt = orig.CreatedAt
		t.items[it.ID] = it
		return nil
	})
	return it, err
}

func (repo *itemRepository) DeleteItem(ctx context.Context, id string) error {
	return repo.db.write(ctx, func(t *tables) error {
		if _, ok := t.items[id]; !ok {
			return item.ErrNotFound
		}
		delete(t.items, id)
		for k, inv := range t.inventory {
			if inv.ItemID == id {
				delete(t.inventory, k)
			}
		}
		return nil
	})
}

func (repo *itemRepository) GetInventoryItem(ctx context.Context, userID, itemID string) (item.InventoryItem, error) {
	var inv item.InventoryItem
	err := repo.db.read(ctx, func(t *tables) error {
		var ok bool
		if inv, ok = t.inventory[key(userID, itemID)]; !ok {
			inv = item.InventoryItem{UserID: userID, ItemID: itemID}
		}
		return nil
	})
	return inv, err
}

func (repo *itemRepository) AdjustInventory(ctx context.Context, userID, itemID string, delta int) (int, error) {
	var qty int
	err := repo.db.write(ctx, func(t *tables) error {
		k := key(userID, itemID)
		now := core.Now()
		inv, ok := t.inventory[k]
		if !ok {
			inv = item.InventoryItem{UserID: userID, ItemID: itemID, AcquiredAt: now}
		}
		if inv.Quantity+delta < 0 {
			return item.ErrInsufficientQuantity
		}
		inv.Quantity += delta
		inv.UpdatedAt = now
		qty = inv.Quantity
		if qty == 0 {
			delete(t.inventory, k)
			return nil
		}
		t.inventory[k] = inv
		return nil
	})
	return qty, err
}

func (repo *itemRepository) QueryInventory(ctx context.Context, userID string) ([]item.InventoryItem, error) {
	var res []item.InventoryItem
	err := repo.db.read(ctx, func(t *tables) error {
		for _, inv := range t.inventory {
			if inv.UserID == userID {
				res = append(res, inv)
			}
		}
		return nil
	})
	orderBy(res, nil, nil, func(a, b item.InventoryItem) bool {
		if !a.AcquiredAt.Equal(b.AcquiredAt) {
			return a.AcquiredAt.After(b.AcquiredAt)
		}
		return a.ItemID < b.ItemID
	})
	return res, err
}

package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/item"
)

type itemRow struct {
	ID          string      `db:"id"`
	Name        string      `db:"name"`
	Description string      `db:"description"`
	Price       int         `db:"price"`
	Rarity      string      `db:"rarity"`
	Type        string      `db:"type"`
	ImageURL    null.String `db:"image_url"`
	Purchasable bool        `db:"purchasable"`
	Tradeable   bool        `db:"tradeable"`
	IsActive    bool        `db:"is_active"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func toItemRow(it item.Item) itemRow {
	return itemRow{
		ID:          it.ID,
		Name:        it.Name,
		Description: it.Description,
		Price:       it.Price,
		Rarity:      string(it.Rarity),
		Type:        string(it.Type),
		ImageURL:    nullString(it.ImageURL),
		Purchasable: it.Purchasable,
		Tradeable:   it.Tradeable,
		IsActive:    it.IsActive,
		CreatedAt:   it.CreatedAt.UTC(),
		UpdatedAt:   it.UpdatedAt.UTC(),
	}
}

func (r itemRow) item() item.Item {
	return item.Item{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Rarity:      item.Rarity(r.Rarity),
		Type:        item.Type(r.Type),
		ImageURL:    r.ImageURL.String,
		Purchasable: r.Purchasable,
		Tradeable:   r.Tradeable,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type inventoryRow struct {
	UserID     string    `db:"user_id"`
	ItemID     string    `db:"item_id"`
	Quantity   int       `db:"quantity"`
	AcquiredAt time.Time `db:"acquired_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r inventoryRow) inventoryItem() item.InventoryItem {
	return item.InventoryItem{
		UserID:     r.UserID,
		ItemID:     r.ItemID,
		Quantity:   r.Quantity,
		AcquiredAt: r.AcquiredAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

const (
	itemColumns      = `id, name, description, price, rarity, type, image_url, purchasable, tradeable, is_active, created_at, updated_at`
	inventoryColumns = `user_id, item_id, quantity, acquired_at, updated_at`
	rarityRank       = `CASE rarity WHEN 'COMMON' THEN 1 WHEN 'UNCOMMON' THEN 2 WHEN 'RARE' THEN 3 WHEN 'EPIC' THEN 4 ELSE 5 END`
)

var itemOrderings = map[string]string{
	"name":       "name",
	"price":      "price",
	"rarity":     rarityRank,
	"created_at": "created_at",
}

type itemRepository struct {
	*Store
}

var _ item.Repository = (*itemRepository)(nil)

func NewItemRepository(s *Store) *itemRepository {
	return &itemRepository{Store: s}
}

func (repo itemRepository) CreateItem(ctx context.Context, it item.Item) (item.Item, error) {
	it.ID = uuid.New().String()
	_, err := repo.named(ctx, `
		INSERT INTO item (`+itemColumns+`)
		VALUES (:id, :name, :description, :price, :rarity, :type, :image_url, :purchasable, :tradeable, :is_active, :created_at, :updated_at)`,
		toItemRow(it))
	if err != nil {
		if isUniqueViolation(err) {
			return item.Item{}, item.ErrNameTaken
		}
		return item.Item{}, errors.Wrap(err, "inserting item")
	}
	return it, nil
}

func (repo itemRepository) GetItem(ctx context.Context, id string) (item.Item, error) {
	if !validID(id) {
		return item.Item{}, item.ErrNotFound
	}
	var r itemRow
	if err := repo.get(ctx, &r, `SELECT `+itemColumns+` FROM item WHERE id = ?`, id); err != nil {
		return item.Item{}, trapNoRows(err, item.ErrNotFound, "getting item")
	}
	return r.item(), nil
}

func (repo itemRepository) QueryItems(ctx context.Context, qf item.QueryFilter, ordering []core.DBOrdering, page core.Page) ([]item.Item, error) {
	var f filter
	if qf.IDs != nil {
		f.and("id::text = ANY(?)", pq.Array(qf.IDs))
	}
	if qf.Search != "" {
		val := like(qf.Search)
		f.and("(name ILIKE ? OR description ILIKE ?)", val, val)
	}
	if qf.Rarity != "" {
		f.and("rarity = ?", string(qf.Rarity))
	}
	if qf.Type != "" {
		f.and("type = ?", string(qf.Type))
	}
	if qf.ActiveOnly {
		f.and("is_active")
	}
	if qf.PurchasableOnly {
		f.and("purchasable")
	}

	var rows []itemRow
	q := `SELECT ` + itemColumns + ` FROM item` + f.where() + orderBy(ordering, itemOrderings, "name") + f.page(page)
	if err := repo.selectx(ctx, &rows, q, f.args...); err != nil {
		return nil, errors.Wrap(err, "querying items")
	}
	res := make([]item.Item, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.item())
	}
	return res, nil
}

func (repo itemRepository) UpdateItem(ctx context.Context, it item.Item) (item.Item, error) {
	var createdAt time.Time
	r := toItemRow(it)
	err := repo.get(ctx, &createdAt, `
		UPDATE item SET
			name = ?, description = ?, price = ?, rarity = ?, type = ?, image_url = ?,
			purchasable = ?, tradeable = ?, is_active = ?, updated_at = ?
		WHERE id = ?
		RETURNING created_at`,
		r.Name, r.Description, r.Price, r.Rarity, r.Type, r.ImageURL,
		r.Purchasable, r.Tradeable, r.IsActive, r.UpdatedAt, r.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return item.Item{}, item.ErrNameTaken
		}
		return item.Item{}, trapNoRows(err, item.ErrNotFound, "updating item")
	}
	it.CreatedAt = createdAt.UTC()
	return it, nil
}

func (repo itemRepository) DeleteItem(ctx context.Context, id string) error {
	if !validID(id) {
		return item.ErrNotFound
	}
	n, err := repo.execx(ctx, `DELETE FROM item WHERE id = ?`, id)
	return mustAffect(n, err, item.ErrNotFound, "deleting item")
}

func (repo itemRepository) GetInventoryItem(ctx context.Context, userID, itemID string) (item.InventoryItem, error) {
	inv := item.InventoryItem{UserID: userID, ItemID: itemID}
	if !validID(itemID) {
		return inv, nil
	}
	var r inventoryRow
	err := repo.get(ctx, &r, `SELECT `+inventoryColumns+` FROM inventory WHERE user_id = ? AND item_id = ?`, userID, itemID)
	switch {
	case errors.Cause(err) == sql.ErrNoRows:
		return inv, nil
	case err != nil:
		return inv, errors.Wrap(err, "getting inventory item")
	}
	return r.inventoryItem(), nil
}

// AdjustInventory never leaves a zero quantity row: removing everything deletes it.
func (repo itemRepository) AdjustInventory(ctx context.Context, userID, itemID string, delta int) (int, error) {
	now := core.Now()
	var qty int

	switch {
	case delta > 0:
		err := repo.get(ctx, &qty, `
			INSERT INTO inventory (`+inventoryColumns+`) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (user_id, item_id) DO UPDATE SET
				quantity = inventory.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
			RETURNING quantity`,
			userID, itemID, delta, now, now)
		return qty, errors.Wrap(err, "adding to inventory")

	case delta < 0:
		n, err := repo.execx(ctx, `DELETE FROM inventory WHERE user_id = ? AND item_id = ? AND quantity = ?`, userID, itemID, -delta)
		if err != nil {
			return 0, errors.Wrap(err, "removing from inventory")
		}
		if n > 0 {
			return 0, nil
		}
		err = repo.get(ctx, &qty, `
			UPDATE inventory SET quantity = quantity + ?, updated_at = ?
			WHERE user_id = ? AND item_id = ? AND quantity > ?
			RETURNING quantity`,
			delta, now, userID, itemID, -delta)
		if errors.Cause(err) == sql.ErrNoRows {
			return 0, item.ErrInsufficientQuantity
		}
		return qty, errors.Wrap(err, "removing from inventory")
	}

	inv, err := repo.GetInventoryItem(ctx, userID, itemID)
	return inv.Quantity, err
}

func (repo itemRepository) QueryInventory(ctx context.Context, userID string) ([]item.InventoryItem, error) {
	var rows []inventoryRow
	err := repo.selectx(ctx, &rows,
		`SELECT `+inventoryColumns+` FROM inventory WHERE user_id = ? ORDER BY acquired_at DESC, item_id`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying inventory")
	}
	res := make([]item.InventoryItem, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.inventoryItem())
	}
	return res, nil
}

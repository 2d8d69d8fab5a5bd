package item

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/edurpg/edurpg/core"
)

type Rarity string

const (
	RarityCommon    Rarity = "COMMON"
	RarityUncommon  Rarity = "UNCOMMON"
	RarityRare      Rarity = "RARE"
	RarityEpic      Rarity = "EPIC"
	RarityLegendary Rarity = "LEGENDARY"
)

var Rarities = []Rarity{RarityCommon, RarityUncommon, RarityRare, RarityEpic, RarityLegendary}

type Type string

const (
	TypeCosmetic    Type = "COSMETIC"
	TypeBoost       Type = "BOOST"
	TypeCollectible Type = "COLLECTIBLE"
)

const MaxPrice = 10000

type Item struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int       `json:"price"`
	Rarity      Rarity    `json:"rarity"`
	Type        Type      `json:"type"`
	ImageURL    string    `json:"image_url,omitempty"`
	Purchasable bool      `json:"purchasable"`
	Tradeable   bool      `json:"tradeable"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// InventoryItem is the quantity of an item owned by a user.
type InventoryItem struct {
	UserID     string    `json:"user_id"`
	ItemID     string    `json:"item_id"`
	Quantity   int       `json:"quantity"`
	AcquiredAt time.Time `json:"acquired_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type InventoryEntry struct {
	Item       Item      `json:"item"`
	Quantity   int       `json:"quantity"`
	AcquiredAt time.Time `json:"acquired_at"`
}

type Purchase struct {
	Item      Item   `json:"item"`
	Quantity  int    `json:"quantity"`
	UnitPrice int    `json:"unit_price"`
	Discount  int    `json:"discount"` // percent
	Total     int    `json:"total"`
	TxID      string `json:"tx_id,omitempty"`
	Owned     int    `json:"owned"`
}

type NewItem struct {
	Name        string `json:"name" validate:"required,notblank,max=100"`
	Description string `json:"description" validate:"max=1000"`
	Price       int    `json:"price" validate:"min=0,max=10000"`
	Rarity      Rarity `json:"rarity" validate:"required,rarity"`
	Type        Type   `json:"type" validate:"required,itemtype"`
	ImageURL    string `json:"image_url" validate:"omitempty,url"`
	Purchasable *bool  `json:"purchasable"`
	Tradeable   *bool  `json:"tradeable"`
}

func (ni *NewItem) Validate(validate *validator.Validate) error {
	ni.Name = core.CleanString(ni.Name)
	ni.Description = core.CleanString(ni.Description)
	return validate.Struct(ni)
}

type UpdateItem struct {
	Name        *string `json:"name" validate:"omitempty,notblank,max=100"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	Price       *int    `json:"price" validate:"omitempty,min=0,max=10000"`
	Rarity      *Rarity `json:"rarity" validate:"omitempty,rarity"`
	Type        *Type   `json:"type" validate:"omitempty,itemtype"`
	ImageURL    *string `json:"image_url" validate:"omitempty,url"`
	Purchasable *bool   `json:"purchasable"`
	Tradeable   *bool   `json:"tradeable"`
	IsActive    *bool   `json:"is_active"`
}

func (ui *UpdateItem) Validate(validate *validator.Validate) error {
	return validate.Struct(ui)
}

type QueryFilter struct {
	IDs             []string `query:"-"`
	Search          string   `query:"search"`
	Rarity          Rarity   `query:"rarity"`
	Type            Type     `query:"type"`
	ActiveOnly      bool     `query:"active"`
	PurchasableOnly bool     `query:"purchasable"`
}

type BuyRequest struct {
	Quantity int `json:"quantity" validate:"omitempty,min=1,max=99"`
}

func (br *BuyRequest) Validate(validate *validator.Validate) error {
	if br.Quantity == 0 {
		br.Quantity = 1
	}
	return validate.Struct(br)
}

var OrderingFields = []string{"name", "price", "rarity", "created_at"}

// InitValidators registers the item validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	rarities := make([]string, 0, len(Rarities))
	for _, r := range Rarities {
		rarities = append(rarities, string(r))
	}
	core.RegisterEnumValidation(validate, translator, "rarity", "invalid rarity", rarities...)
	core.RegisterEnumValidation(validate, translator, "itemtype", "invalid item type",
		string(TypeCosmetic), string(TypeBoost), string(TypeCollectible))
}

package market

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/item"
)

type ListingStatus string

const (
	ListingActive    ListingStatus = "ACTIVE"
	ListingSold      ListingStatus = "SOLD"
	ListingCancelled ListingStatus = "CANCELLED"
	ListingExpired   ListingStatus = "EXPIRED"
)

type Period string

const (
	PeriodDaily   Period = "DAILY"
	PeriodWeekly  Period = "WEEKLY"
	PeriodMonthly Period = "MONTHLY"
)

var Periods = []Period{PeriodDaily, PeriodWeekly, PeriodMonthly}

// Start returns the beginning of the period ending at the day of now.
func (p Period) Start(now time.Time, loc *time.Location) time.Time {
	day := core.StartOfDay(now, loc)
	switch p {
	case PeriodWeekly:
		return day.AddDate(0, 0, -7)
	case PeriodMonthly:
		return day.AddDate(0, -1, 0)
	}
	return day.AddDate(0, 0, -1)
}

func (p Period) IsValid() bool {
	for _, v := range Periods {
		if p == v {
			return true
		}
	}
	return false
}

type Listing struct {
	ID           string        `json:"id"`
	SellerID     string        `json:"seller_id"`
	ItemID       string        `json:"item_id"`
	Quantity     int           `json:"quantity"`  // listed
	Remaining    int           `json:"remaining"` // still for sale
	PricePerUnit int           `json:"price_per_unit"`
	Status       ListingStatus `json:"status"`
	Views        int           `json:"views"`
	ExpiresAt    time.Time     `json:"expires_at"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	ClosedAt     time.Time     `json:"closed_at,omitempty"`
}

func (l Listing) IsExpired(now time.Time) bool {
	return !l.ExpiresAt.IsZero() && !now.Before(l.ExpiresAt)
}

// Transaction is a completed sale.
type Transaction struct {
	ID           string    `json:"id"`
	ListingID    string    `json:"listing_id"`
	SellerID     string    `json:"seller_id"`
	BuyerID      string    `json:"buyer_id"`
	ItemID       string    `json:"item_id"`
	Quantity     int       `json:"quantity"`
	PricePerUnit int       `json:"price_per_unit"`
	Total        int       `json:"total"`
	Fee          int       `json:"fee"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	DefaultTrustScore = 50
	MaxTrustScore     = 100
)

type Reputation struct {
	UserID         string    `json:"user_id"`
	TrustScore     int       `json:"trust_score"`
	TotalSales     int       `json:"total_sales"`
	TotalPurchases int       `json:"total_purchases"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

// PricePoint is the price summary of an item over a period.
type PricePoint struct {
	ItemID        string    `json:"item_id"`
	Period        Period    `json:"period"`
	PeriodStart   time.Time `json:"period_start"`
	PeriodEnd     time.Time `json:"period_end"`
	AvgPrice      int       `json:"avg_price"`
	LowPrice      int       `json:"low_price"`
	HighPrice     int       `json:"high_price"`
	MedianPrice   int       `json:"median_price"`
	TotalSold     int       `json:"total_sold"`
	TotalListings int       `json:"total_listings"`
}

type PriceSuggestion struct {
	ItemID           string  `json:"item_id"`
	BasePrice        int     `json:"base_price"`
	RarityMultiplier float64 `json:"rarity_multiplier"`
	DemandMultiplier float64 `json:"demand_multiplier"`
	Recommended      int     `json:"recommended"`
	MinPrice         int     `json:"min_price"`
	MaxPrice         int     `json:"max_price"`
	Popularity       int     `json:"popularity"`
	PriceChange      float64 `json:"price_change"`
	Trend            Trend   `json:"trend"`
	Demand           Demand  `json:"demand"`
}

// Eligibility tells whether a user may sell on the market, and why not.
type Eligibility struct {
	CanTrade bool   `json:"can_trade"`
	Reason   string `json:"reason,omitempty"`
}

type NewListing struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,min=1,max=999"`
	// PricePerUnit defaults to the recommended price.
	PricePerUnit int `json:"price_per_unit" validate:"omitempty,min=1"`
}

func (nl NewListing) Validate(validate *validator.Validate) error { return validate.Struct(nl) }

type BuyRequest struct {
	Quantity int `json:"quantity" validate:"omitempty,min=1,max=999"`
}

func (br *BuyRequest) Validate(validate *validator.Validate) error {
	if br.Quantity == 0 {
		br.Quantity = 1
	}
	return validate.Struct(br)
}

type ListingFilter struct {
	ItemID   string        `query:"item_id"`
	SellerID string        `query:"seller_id"`
	Status   ListingStatus `query:"status"`
	Rarity   item.Rarity   `query:"rarity"`
	MinPrice int           `query:"min_price"`
	MaxPrice int           `query:"max_price"`
}

var OrderingFields = []string{"price_per_unit", "created_at", "expires_at", "views"}

type TrustAdjustment struct {
	Delta  int    `json:"delta" validate:"required,min=-100,max=100"`
	Reason string `json:"reason" validate:"max=200"`
}

func (ta TrustAdjustment) Validate(validate *validator.Validate) error { return validate.Struct(ta) }

